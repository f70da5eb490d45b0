// Package pipeline orchestrates one extraction run: open a rendering
// session, navigate, materialize lazy content, harvest asset URLs and
// download them. A run always ends in a terminal state; callers get either a
// complete result or a terminal error, never both.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/scrollgrab/config"
	"github.com/use-agent/scrollgrab/fetch"
	"github.com/use-agent/scrollgrab/harvest"
	"github.com/use-agent/scrollgrab/manifest"
	"github.com/use-agent/scrollgrab/models"
	"github.com/use-agent/scrollgrab/renderer"
)

// Harvester resolves downloadable assets from a rendered session.
type Harvester interface {
	Harvest(ctx context.Context, sess renderer.Session) ([]models.ResolvedAsset, error)
}

// Fetcher downloads resolved assets into a directory, one outcome per asset
// in discovery order.
type Fetcher interface {
	FetchAll(ctx context.Context, assets []models.ResolvedAsset, destDir string) []models.FetchOutcome
}

// Pipeline drives one target URL to a terminal state. A Pipeline is
// single-use: construct a new one per run.
type Pipeline struct {
	targetURL  string
	outputDir  string
	browserCfg config.BrowserConfig
	harvestCfg config.HarvestConfig

	open          renderer.Opener
	harvester     Harvester
	fetcher       Fetcher
	writeManifest bool

	mu      sync.Mutex
	state   State
	started bool
}

// New wires a production pipeline for one target URL.
func New(cfg *config.Config, targetURL, outputDir string) *Pipeline {
	f := fetch.New(cfg.Fetch)
	f.SetReferer(targetURL)

	h := harvest.New(cfg.Harvest)
	if err := h.SetBase(targetURL); err != nil {
		slog.Warn("target URL unusable as base, keeping raw asset URLs",
			"url", targetURL, "error", err)
	}

	return &Pipeline{
		targetURL:     targetURL,
		outputDir:     outputDir,
		browserCfg:    cfg.Browser,
		harvestCfg:    cfg.Harvest,
		open:          renderer.Open,
		harvester:     h,
		fetcher:       f,
		writeManifest: cfg.Harvest.Manifest,
		state:         StateIdle,
	}
}

// State returns the pipeline's current lifecycle position.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	slog.Debug("pipeline state", "state", s.String())
}

// begin claims the single run slot. It reports false if Run was already
// called on this pipeline.
func (p *Pipeline) begin() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return false
	}
	p.started = true
	return true
}

// Run drives the pipeline to a terminal state.
//
// Lifecycle (numbered steps match the inline comments):
//
//	1. Run deadline       – hard ceiling on the entire run
//	2. Open session       – launch the browser, one session per run
//	3. DEFER: release     – the session is closed exactly once, on every path
//	4. Navigate           – load the target URL, wait for the DOM to settle
//	5. Materialize        – scroll the viewport down to trigger lazy loading
//	6. Harvest            – resolve one asset URL per matching element
//	7. Output directory   – create destDir before any download starts
//	8. Download           – per-asset isolation; failures become outcomes
//	9. Manifest           – optional run summary, never fatal
//	10. Done              – assemble the result
//
// Download failures do not fail the run: a run is Done as long as every
// asset produced an outcome, and the summary says how many of them failed.
func (p *Pipeline) Run(ctx context.Context) (*models.HarvestResult, error) {
	// ── 0. Single-use guard ───────────────────────────────────────────
	if !p.begin() {
		return nil, models.NewPipelineError(
			models.ErrCodeInternal,
			"pipeline already ran; construct a new one",
			nil,
		)
	}

	runID := uuid.NewString()
	log := slog.With("run_id", runID, "url", p.targetURL)
	start := time.Now()

	// ── 1. Run deadline ───────────────────────────────────────────────
	if p.harvestCfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.harvestCfg.RunTimeout)
		defer cancel()
	}

	// ── 2. Open session ───────────────────────────────────────────────
	sess, err := p.open(ctx, p.browserCfg, p.harvestCfg)
	if err != nil {
		p.setState(StateFailed)
		return nil, err
	}
	p.setState(StateSessionOpen)
	log.Info("session open")

	// ── 3. CRITICAL DEFER: release the session exactly once ──────────
	// Every exit path below runs through this defer and nothing else
	// closes the session, so a crash-prone browser process can never
	// outlive its run.
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			log.Warn("session close failed", "error", closeErr)
		} else {
			log.Debug("session released")
		}
	}()

	// ── 4. Navigate ───────────────────────────────────────────────────
	if err := sess.Navigate(ctx, p.targetURL); err != nil {
		p.setState(StateFailed)
		return nil, err
	}
	p.setState(StateNavigated)
	log.Info("navigated")

	// ── 5. Materialize lazy content ───────────────────────────────────
	// Scroll trouble alone is not fatal: whatever portion of the page
	// did materialize is still worth harvesting. A dead context will
	// surface as a harvest failure immediately after.
	if err := sess.ScrollToBottom(ctx); err != nil {
		log.Warn("scroll materialization incomplete", "error", err)
	}

	// ── 6. Harvest ────────────────────────────────────────────────────
	assets, err := p.harvester.Harvest(ctx, sess)
	if err != nil {
		p.setState(StateFailed)
		return nil, err
	}
	p.setState(StateHarvested)
	log.Info("harvested", "assets", len(assets))

	// ── 6b. Page snapshot (best-effort, feeds title and manifest) ────
	snapshot, snapErr := sess.HTML(ctx)
	if snapErr != nil {
		log.Debug("page snapshot unavailable", "error", snapErr)
	}
	renderMs := time.Since(start).Milliseconds()

	// ── 7. Output directory ───────────────────────────────────────────
	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		p.setState(StateFailed)
		return nil, models.NewPipelineError(
			models.ErrCodeInternal,
			fmt.Sprintf("failed to create output directory %q", p.outputDir),
			err,
		)
	}

	// ── 8. Download ───────────────────────────────────────────────────
	p.setState(StateDownloading)
	downloadStart := time.Now()
	outcomes := p.fetcher.FetchAll(ctx, assets, p.outputDir)
	downloadMs := time.Since(downloadStart).Milliseconds()

	// A canceled run must not report itself complete, even though the
	// fetch stage degraded the remaining assets to failed outcomes.
	if ctxErr := ctx.Err(); ctxErr != nil {
		p.setState(StateFailed)
		return nil, models.NewPipelineError(
			models.ErrCodeTimeout,
			"run canceled during download",
			ctxErr,
		)
	}

	// ── 9. Manifest (optional, never fatal) ───────────────────────────
	if p.writeManifest {
		if err := manifest.Write(p.outputDir, manifest.Input{
			TargetURL:   p.targetURL,
			RunID:       runID,
			HTML:        snapshot,
			Outcomes:    outcomes,
			RetrievedAt: time.Now(),
		}); err != nil {
			log.Warn("manifest write failed", "error", err)
		}
	}

	// ── 10. Done ──────────────────────────────────────────────────────
	p.setState(StateDone)
	summary := models.Summarize(outcomes)
	log.Info("pipeline done",
		"assets", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
	)

	return &models.HarvestResult{
		RunID:     runID,
		TargetURL: p.targetURL,
		OutputDir: p.outputDir,
		PageTitle: manifest.PageTitle(snapshot),
		Outcomes:  outcomes,
		Summary:   summary,
		Timing: models.TimingInfo{
			TotalMs:    time.Since(start).Milliseconds(),
			RenderMs:   renderMs,
			DownloadMs: downloadMs,
		},
	}, nil
}
