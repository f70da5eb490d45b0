// Package harvest turns a rendered page into an ordered list of resolved,
// downloadable assets.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/andybalholm/cascadia"
	"github.com/use-agent/scrollgrab/config"
	"github.com/use-agent/scrollgrab/models"
	"github.com/use-agent/scrollgrab/renderer"
	"github.com/use-agent/scrollgrab/srcset"
)

// Harvester reads asset URLs off matching elements. It is stateless across
// runs; one Harvester can serve many sessions.
type Harvester struct {
	selector   string
	srcAttr    string
	srcsetAttr string
	base       *url.URL
}

// New builds a Harvester from config, applying defaults for unset fields.
func New(cfg config.HarvestConfig) *Harvester {
	h := &Harvester{
		selector:   cfg.Selector,
		srcAttr:    cfg.SrcAttr,
		srcsetAttr: cfg.SrcsetAttr,
	}
	if h.selector == "" {
		h.selector = "img"
	}
	if h.srcAttr == "" {
		h.srcAttr = "src"
	}
	if h.srcsetAttr == "" {
		h.srcsetAttr = "srcset"
	}
	return h
}

// SetBase sets the page URL used to resolve relative asset URLs. The
// renderer hands back attribute values as written in the markup, which on
// most pages means relative paths.
func (h *Harvester) SetBase(pageURL string) error {
	base, err := url.Parse(pageURL)
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", pageURL, err)
	}
	h.base = base
	return nil
}

// Harvest queries the session for matching elements and resolves one asset
// URL per element, assigning 1-based ordinals in document order.
//
// Stale element handles are skipped silently: the page keeps mutating while
// we iterate (lazy loaders swap nodes in and out), so an element vanishing
// between enumeration and read is expected. A skipped element consumes no
// ordinal. Elements that yield no usable URL are skipped the same way.
//
// An empty result with a nil error is a valid outcome.
func (h *Harvester) Harvest(ctx context.Context, sess renderer.Session) ([]models.ResolvedAsset, error) {
	if _, err := cascadia.Parse(h.selector); err != nil {
		return nil, models.NewPipelineError(
			models.ErrCodeHarvest,
			fmt.Sprintf("invalid selector %q", h.selector),
			err,
		)
	}

	elements, err := sess.Query(ctx, h.selector)
	if err != nil {
		return nil, models.NewPipelineError(
			models.ErrCodeHarvest,
			"element query failed",
			err,
		)
	}

	assets := make([]models.ResolvedAsset, 0, len(elements))
	stale := 0
	for i, el := range elements {
		primary, _, err := el.Attribute(ctx, h.srcAttr)
		if err != nil {
			if errors.Is(err, renderer.ErrStaleElement) {
				stale++
				slog.Debug("skipping stale element", "index", i)
				continue
			}
			return nil, models.NewPipelineError(
				models.ErrCodeHarvest,
				fmt.Sprintf("reading %q from element %d failed", h.srcAttr, i),
				err,
			)
		}

		responsive, _, err := el.Attribute(ctx, h.srcsetAttr)
		if err != nil {
			if errors.Is(err, renderer.ErrStaleElement) {
				stale++
				slog.Debug("skipping stale element", "index", i)
				continue
			}
			return nil, models.NewPipelineError(
				models.ErrCodeHarvest,
				fmt.Sprintf("reading %q from element %d failed", h.srcsetAttr, i),
				err,
			)
		}

		resolved, ok := h.resolveURL(srcset.Best(primary, responsive))
		if !ok {
			continue
		}
		assets = append(assets, models.ResolvedAsset{
			SourceURL: resolved,
			Ordinal:   len(assets) + 1,
		})
	}

	slog.Info("harvest complete",
		"selector", h.selector,
		"matched", len(elements),
		"resolved", len(assets),
		"stale_skipped", stale,
	)
	return assets, nil
}

// resolveURL makes the chosen URL fetchable. Relative URLs resolve against
// the page URL when one was set; anything that does not end up as http(s)
// (data URIs, javascript:, empty values) is rejected.
func (h *Harvester) resolveURL(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	if h.base == nil {
		return raw, true
	}
	resolved, err := h.base.Parse(raw)
	if err != nil {
		return "", false
	}
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	return resolved.String(), true
}
