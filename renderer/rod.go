package renderer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/scrollgrab/config"
	"github.com/use-agent/scrollgrab/models"
	"github.com/ysmood/gson"
)

// domSettle is the quiet window used to decide the DOM has stopped mutating
// after navigation and the diff ratio tolerated within it.
const (
	domSettleWindow = 300 * time.Millisecond
	domSettleDiff   = 0.1
)

// rodSession drives one Chromium process with a single page. The process is
// launched on Open and killed on Close; nothing is pooled or reused, so a
// crashed page can never leak into a later run.
type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	router   *rod.HijackRouter
	cfg      config.BrowserConfig
	drive    config.HarvestConfig
}

// Open launches a browser, creates one page and prepares it for navigation.
// On any failure the partially launched process is torn down before return.
func Open(ctx context.Context, browserCfg config.BrowserConfig, harvestCfg config.HarvestConfig) (Session, error) {
	l := launcher.New().
		Context(ctx).
		Headless(browserCfg.Headless).
		NoSandbox(browserCfg.NoSandbox)

	if browserCfg.BrowserBin != "" {
		l = l.Bin(browserCfg.BrowserBin)
	}
	if browserCfg.Viewport == "" || browserCfg.Viewport == "max" {
		l.Set(flags.Flag("start-maximized"))
	}

	// Background throttling would stall the timers lazy loaders depend on
	// when the window is headless or occluded.
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewPipelineError(
			models.ErrCodeSessionCreate,
			"failed to launch browser",
			err,
		)
	}
	slog.Debug("browser launched", "controlURL", controlURL)

	browser := rod.New().Context(ctx).ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, models.NewPipelineError(
			models.ErrCodeSessionCreate,
			"failed to connect to browser",
			err,
		)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, models.NewPipelineError(
			models.ErrCodeSessionCreate,
			"failed to create page",
			err,
		)
	}

	if w, h, ok := parseViewport(browserCfg.Viewport); ok {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             w,
			Height:            h,
			DeviceScaleFactor: 1,
		}); err != nil {
			slog.Warn("viewport override failed, using browser default",
				"viewport", browserCfg.Viewport, "error", err)
		}
	}

	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{
			"Accept-Language": "en-US,en;q=0.9",
		}),
	}.Call(page)

	router := setupBlocking(page, harvestCfg.BlockedResourceTypes)

	return &rodSession{
		launcher: l,
		browser:  browser,
		page:     page,
		router:   router,
		cfg:      browserCfg,
		drive:    harvestCfg,
	}, nil
}

// Navigate loads the URL under the configured navigation timeout, then waits
// for the DOM to settle before handing the page to the harvester.
func (s *rodSession) Navigate(ctx context.Context, url string) error {
	if s.drive.NavTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.drive.NavTimeout)
		defer cancel()
	}
	p := s.page.Context(ctx)

	if err := p.Navigate(url); err != nil {
		return categorize(err, "navigation to target URL failed")
	}

	if err := p.WaitDOMStable(domSettleWindow, domSettleDiff); err != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM",
			"error", err)
	}
	return nil
}

// ScrollToBottom steps the viewport down the document, one viewport height at
// a time, pausing after each step. Each pause gives intersection observers
// and scroll handlers a chance to attach the real asset URLs to elements that
// were placeholders at load time. The walk ends when the bottom is reached
// and the document height has stopped growing, or after ScrollPasses steps.
func (s *rodSession) ScrollToBottom(ctx context.Context) error {
	p := s.page.Context(ctx)

	res, err := p.Eval(`() => window.innerHeight`)
	if err != nil {
		return fmt.Errorf("failed to get viewport height: %w", err)
	}
	viewportHeight := res.Value.Int()

	lastHeight := -1
	for pass := 1; pass <= s.drive.ScrollPasses; pass++ {
		if err := p.Mouse.Scroll(0, float64(viewportHeight), 0); err != nil {
			return fmt.Errorf("scroll pass %d failed: %w", pass, err)
		}

		// Pause between scroll steps to let lazy-loaded content trigger.
		select {
		case <-time.After(s.drive.ScrollSettle):
		case <-ctx.Done():
			return ctx.Err()
		}

		res, err := p.Eval(`() => ({
			bottom: window.scrollY + window.innerHeight,
			height: document.body.scrollHeight,
		})`)
		if err != nil {
			return fmt.Errorf("scroll pass %d: failed to read page metrics: %w", pass, err)
		}
		bottom := res.Value.Get("bottom").Int()
		height := res.Value.Get("height").Int()

		if bottom >= height && height == lastHeight {
			slog.Debug("page height settled", "passes", pass, "height", height)
			return nil
		}
		lastHeight = height
	}

	slog.Debug("scroll pass budget exhausted", "passes", s.drive.ScrollPasses,
		"height", lastHeight)
	return nil
}

// Query returns handles for every element matching the selector, in the
// order the renderer reports them.
func (s *rodSession) Query(ctx context.Context, selector string) ([]Element, error) {
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = &rodElement{el: el}
	}
	return out, nil
}

// HTML returns the serialized DOM in its current, post-scroll state.
func (s *rodSession) HTML(ctx context.Context) (string, error) {
	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("failed to extract page HTML: %w", err)
	}
	return html, nil
}

// Close tears down the page, the browser connection and the launched
// process. The launcher kill is a backstop for the case where the browser
// stopped responding to the graceful close.
func (s *rodSession) Close() error {
	if s.router != nil {
		_ = s.router.Stop()
	}
	_ = s.page.Close()
	err := s.browser.Close()
	s.launcher.Kill()
	if err != nil {
		return fmt.Errorf("browser close: %w", err)
	}
	return nil
}

// rodElement adapts a rod element handle to the Element interface.
type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		if isStale(err) {
			return "", false, fmt.Errorf("attribute %q: %w", name, ErrStaleElement)
		}
		return "", false, fmt.Errorf("attribute %q: %w", name, err)
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

// configToProto maps human-readable config strings to Rod protocol resource types.
var configToProto = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
	"Script":     proto.NetworkResourceTypeScript,
}

// setupBlocking installs a request interceptor that drops the configured
// resource types during rendering. Harvesting reads attributes, not pixels,
// so blocking heavyweight types trades fidelity for speed on slow pages.
//
// Returns the running HijackRouter so the caller can stop it on Close.
// Returns nil if there is nothing to block.
func setupBlocking(page *rod.Page, blockedTypes []string) *rod.HijackRouter {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(blockedTypes))
	for _, name := range blockedTypes {
		if rt, ok := configToProto[name]; ok {
			blocked[rt] = struct{}{}
		}
	}
	if len(blocked) == 0 {
		return nil
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if _, shouldBlock := blocked[ctx.Request.Type()]; shouldBlock {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// router.Run() blocks, so it must live in its own goroutine.
	// It will exit when router.Stop() is called.
	go router.Run()

	return router
}

// parseViewport turns "1920x1080" into a width and height pair.
// "max", empty and malformed values report ok=false, leaving the window size
// to the launcher flags.
func parseViewport(v string) (width, height int, ok bool) {
	if v == "" || v == "max" {
		return 0, 0, false
	}
	w, h, found := strings.Cut(v, "x")
	if !found {
		return 0, 0, false
	}
	width, errW := strconv.Atoi(strings.TrimSpace(w))
	height, errH := strconv.Atoi(strings.TrimSpace(h))
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		return 0, 0, false
	}
	return width, height, true
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorize wraps a renderer error with the pipeline error code matching
// its cause.
func categorize(err error, msg string) *models.PipelineError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewPipelineError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewPipelineError(models.ErrCodeTimeout, "run canceled", err)
	default:
		return models.NewPipelineError(models.ErrCodeNavigation, msg, err)
	}
}
