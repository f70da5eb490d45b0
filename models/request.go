package models

// HarvestRequest is the payload for POST /api/v1/harvest.
type HarvestRequest struct {
	// URL is the target page to harvest. Required.
	URL string `json:"url" binding:"required,url"`

	// Selector is the CSS selector for harvestable elements.
	// Default: "img".
	Selector string `json:"selector,omitempty"`

	// SrcAttr is the attribute holding the primary asset URL.
	// Default: "src".
	SrcAttr string `json:"src_attr,omitempty"`

	// SrcsetAttr is the attribute holding responsive candidates.
	// Default: "srcset".
	SrcsetAttr string `json:"srcset_attr,omitempty"`

	// Timeout is the maximum duration in seconds for the entire run
	// (session open + navigation + scrolling + harvest + downloads).
	// Default: 90. Max: 600.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=600"`

	// ScrollPasses caps how many viewport-height scroll steps are used to
	// materialize lazily loaded content. Default: 20.
	ScrollPasses int `json:"scroll_passes,omitempty" binding:"omitempty,min=0,max=200"`

	// Concurrency is the number of parallel asset downloads.
	// Default: 1 (strictly sequential). Max: 16.
	Concurrency int `json:"concurrency,omitempty" binding:"omitempty,min=1,max=16"`

	// Manifest requests a manifest.md summary file in the output directory.
	// Default: false.
	Manifest bool `json:"manifest,omitempty"`

	// MaxAge enables response caching. A cached response younger than
	// MaxAge milliseconds is returned without re-running the pipeline.
	// 0 disables caching for this request.
	MaxAge int64 `json:"max_age,omitempty" binding:"omitempty,min=0"`

	// WebhookURL, when set, receives an asynchronous POST with the run
	// outcome after the pipeline reaches a terminal state.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`
}

// Defaults applies default values to unset fields.
func (r *HarvestRequest) Defaults() {
	if r.Selector == "" {
		r.Selector = "img"
	}
	if r.SrcAttr == "" {
		r.SrcAttr = "src"
	}
	if r.SrcsetAttr == "" {
		r.SrcsetAttr = "srcset"
	}
	if r.Timeout == 0 {
		r.Timeout = 90
	}
	if r.ScrollPasses == 0 {
		r.ScrollPasses = 20
	}
	if r.Concurrency == 0 {
		r.Concurrency = 1
	}
}
