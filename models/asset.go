package models

// FetchStatus is the terminal state of a single asset download.
type FetchStatus string

const (
	StatusSuccess FetchStatus = "success"
	StatusFailed  FetchStatus = "failed"
)

// FailReason classifies why an asset download failed.
type FailReason string

const (
	// FailNetwork covers DNS, connection, TLS and HTTP status failures.
	FailNetwork FailReason = "network"

	// FailTimeout covers deadline and cancellation failures.
	FailTimeout FailReason = "timeout"

	// FailFilesystem covers errors creating or writing the destination file.
	FailFilesystem FailReason = "filesystem"
)

// ResolvedAsset is one downloadable asset discovered on the rendered page.
// Ordinals start at 1 and follow document order; elements that were skipped
// during harvesting (stale handles, empty URLs) do not consume an ordinal.
type ResolvedAsset struct {
	// SourceURL is the absolute URL chosen for this asset. When the element
	// carried a non-empty srcset, this is the last srcset candidate.
	SourceURL string `json:"source_url"`

	// Ordinal is the 1-based position among resolved assets.
	Ordinal int `json:"ordinal"`
}

// FetchOutcome records the result of downloading one resolved asset.
// A failed outcome never aborts sibling downloads.
type FetchOutcome struct {
	Ordinal   int    `json:"ordinal"`
	SourceURL string `json:"source_url"`

	// Path is the destination file, always {ordinal}.jpg inside the output
	// directory. On failure the file does not exist.
	Path string `json:"path"`

	Status FetchStatus `json:"status"`

	// Reason and Error are populated only when Status is StatusFailed.
	Reason FailReason `json:"reason,omitempty"`
	Error  string     `json:"error,omitempty"`

	// Bytes and SHA256 are populated only when Status is StatusSuccess.
	Bytes  int64  `json:"bytes,omitempty"`
	SHA256 string `json:"sha256,omitempty"`
}

// Failed reports whether this outcome represents a failed download.
func (o FetchOutcome) Failed() bool {
	return o.Status == StatusFailed
}

// Summary aggregates the outcomes of one run.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Summarize counts successes and failures across outcomes.
func Summarize(outcomes []FetchOutcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		if o.Failed() {
			s.Failed++
		} else {
			s.Succeeded++
		}
	}
	return s
}

// HarvestResult is the terminal output of a completed pipeline run.
// A result is produced only when the run reached the done state; runs that
// fail earlier return an error instead.
type HarvestResult struct {
	RunID     string         `json:"run_id"`
	TargetURL string         `json:"target_url"`
	OutputDir string         `json:"output_dir"`
	PageTitle string         `json:"page_title,omitempty"`
	Outcomes  []FetchOutcome `json:"outcomes"`
	Summary   Summary        `json:"summary"`
	Timing    TimingInfo     `json:"timing"`
}
