// Package renderer drives a headless browser session that materializes
// dynamically loaded pages. Pages that populate content on scroll only expose
// their full element set after the viewport has walked the document, so a
// session couples navigation with scroll-driven materialization before any
// element is harvested.
package renderer

import (
	"context"

	"github.com/use-agent/scrollgrab/config"
)

// Element is a live handle to one rendered DOM node. Handles are only valid
// while the page keeps the node alive; a page mutation can invalidate them at
// any time, in which case reads fail with an error wrapping ErrStaleElement.
type Element interface {
	// Attribute reads a single attribute. ok reports whether the attribute
	// is present on the element; an absent attribute is not an error.
	Attribute(ctx context.Context, name string) (value string, ok bool, err error)
}

// Session is a single rendering context bound to one navigated page.
// Sessions are not safe for concurrent use and must be closed exactly once.
type Session interface {
	// Navigate loads the target URL and waits for the DOM to settle.
	Navigate(ctx context.Context, url string) error

	// ScrollToBottom walks the viewport down the document in steps,
	// pausing after each step so lazy loaders can populate content.
	// It returns once the page height stops growing or the pass budget
	// is exhausted.
	ScrollToBottom(ctx context.Context) error

	// Query returns live handles for all elements matching the CSS
	// selector, in document order.
	Query(ctx context.Context, selector string) ([]Element, error)

	// HTML returns the current serialized DOM.
	HTML(ctx context.Context) (string, error)

	// Close releases the session and its browser process.
	Close() error
}

// Opener creates a Session. The pipeline takes an Opener rather than a
// concrete session so tests can substitute a fake renderer.
type Opener func(ctx context.Context, browserCfg config.BrowserConfig, harvestCfg config.HarvestConfig) (Session, error)
