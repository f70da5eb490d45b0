package models

// HarvestResponse is the response for POST /api/v1/harvest.
type HarvestResponse struct {
	// Success indicates whether the pipeline reached the done state.
	// Individual download failures do not make a run unsuccessful.
	Success bool `json:"success"`

	// RunID identifies this run in logs and webhook deliveries.
	RunID string `json:"run_id,omitempty"`

	// TargetURL is the page that was harvested.
	TargetURL string `json:"target_url,omitempty"`

	// OutputDir is the server-side directory holding the downloaded files.
	OutputDir string `json:"output_dir,omitempty"`

	// PageTitle is the rendered page title, when one could be extracted.
	PageTitle string `json:"page_title,omitempty"`

	// Outcomes lists one entry per resolved asset in ascending ordinal order.
	Outcomes []FetchOutcome `json:"outcomes,omitempty"`

	// Summary aggregates the outcomes.
	Summary Summary `json:"summary"`

	// Timing provides duration breakdowns for the run.
	Timing TimingInfo `json:"timing"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// RenderMs is the time spent opening the session, navigating,
	// scrolling and harvesting element attributes.
	RenderMs int64 `json:"render_ms"`

	// DownloadMs is the time spent fetching assets to disk.
	DownloadMs int64 `json:"download_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status   string   `json:"status"` // "healthy" or "degraded"
	Uptime   string   `json:"uptime"`
	RunStats RunStats `json:"run_stats"`
	Version  string   `json:"version"`
}

// RunStats reports the state of the pipeline run slots.
type RunStats struct {
	MaxRuns    int `json:"max_runs"`
	ActiveRuns int `json:"active_runs"`
}
