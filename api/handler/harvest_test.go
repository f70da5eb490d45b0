package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/scrollgrab/cache"
	"github.com/use-agent/scrollgrab/config"
	"github.com/use-agent/scrollgrab/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{
			MaxRuns:    2,
			OutputRoot: t.TempDir(),
		},
		Harvest: config.HarvestConfig{
			Selector:   "img",
			SrcAttr:    "src",
			SrcsetAttr: "srcset",
			RunTimeout: 90 * time.Second,
		},
		Fetch: config.FetchConfig{Concurrency: 1},
	}
}

// okRunner returns a Runner producing a two-outcome result, one succeeded
// and one failed, mirroring a partially degraded run.
func okRunner(calls *atomic.Int32) Runner {
	return func(ctx context.Context, cfg *config.Config, targetURL, outputDir string) (*models.HarvestResult, error) {
		if calls != nil {
			calls.Add(1)
		}
		outcomes := []models.FetchOutcome{
			{Ordinal: 1, SourceURL: "https://cdn.example.com/a.jpg", Path: filepath.Join(outputDir, "1.jpg"), Status: models.StatusSuccess, Bytes: 512},
			{Ordinal: 2, SourceURL: "https://cdn.example.com/b.jpg", Status: models.StatusFailed, Reason: models.FailTimeout},
		}
		return &models.HarvestResult{
			RunID:     "run-1",
			TargetURL: targetURL,
			OutputDir: outputDir,
			PageTitle: "Gallery",
			Outcomes:  outcomes,
			Summary:   models.Summarize(outcomes),
			Timing:    models.TimingInfo{RenderMs: 100, DownloadMs: 50},
		}, nil
	}
}

func postHarvest(t *testing.T, cfg *config.Config, cc *cache.Cache, gate *RunGate, run Runner, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := gin.New()
	r.POST("/harvest", Harvest(cfg, cc, gate, run))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/harvest", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) models.HarvestResponse {
	t.Helper()
	var resp models.HarvestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, w.Body.String())
	}
	return resp
}

func TestHarvestSuccess(t *testing.T) {
	cfg := testConfig(t)
	w := postHarvest(t, cfg, nil, NewRunGate(1), okRunner(nil),
		`{"url":"https://example.com/gallery"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, http.StatusOK, w.Body.String())
	}
	resp := decodeResponse(t, w)
	if !resp.Success {
		t.Error("Success = false, want true")
	}
	if resp.RunID != "run-1" {
		t.Errorf("RunID = %q, want %q", resp.RunID, "run-1")
	}
	if got := len(resp.Outcomes); got != 2 {
		t.Fatalf("len(Outcomes) = %d, want 2", got)
	}
	if resp.Summary.Succeeded != 1 || resp.Summary.Failed != 1 {
		t.Errorf("Summary = %+v, want 1 succeeded / 1 failed", resp.Summary)
	}
	if resp.CacheStatus != "" {
		t.Errorf("CacheStatus = %q, want empty without max_age", resp.CacheStatus)
	}
	if !strings.HasPrefix(resp.OutputDir, cfg.Server.OutputRoot) {
		t.Errorf("OutputDir = %q, want under %q", resp.OutputDir, cfg.Server.OutputRoot)
	}
}

func TestHarvestInvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"url":`},
		{"missing url", `{}`},
		{"not a url", `{"url":"not a url"}`},
		{"timeout too large", `{"url":"https://example.com","timeout":601}`},
		{"concurrency too large", `{"url":"https://example.com","concurrency":64}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postHarvest(t, testConfig(t), nil, NewRunGate(1), okRunner(nil), tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			resp := decodeResponse(t, w)
			if resp.Success {
				t.Error("Success = true, want false")
			}
			if resp.Error == nil || resp.Error.Code != models.ErrCodeInvalidInput {
				t.Errorf("Error = %+v, want code %s", resp.Error, models.ErrCodeInvalidInput)
			}
		})
	}
}

func TestHarvestPipelineErrorStatus(t *testing.T) {
	tests := []struct {
		code       string
		wantStatus int
	}{
		{models.ErrCodeTimeout, http.StatusGatewayTimeout},
		{models.ErrCodeSessionCreate, http.StatusBadGateway},
		{models.ErrCodeNavigation, http.StatusBadGateway},
		{models.ErrCodeHarvest, http.StatusBadGateway},
		{models.ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			failing := func(ctx context.Context, cfg *config.Config, targetURL, outputDir string) (*models.HarvestResult, error) {
				return nil, models.NewPipelineError(tt.code, "boom", nil)
			}
			w := postHarvest(t, testConfig(t), nil, NewRunGate(1), failing,
				`{"url":"https://example.com"}`)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			resp := decodeResponse(t, w)
			if resp.Success {
				t.Error("Success = true, want false")
			}
			if resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("Error = %+v, want code %s", resp.Error, tt.code)
			}
		})
	}
}

func TestHarvestPlainErrorBecomesInternal(t *testing.T) {
	failing := func(ctx context.Context, cfg *config.Config, targetURL, outputDir string) (*models.HarvestResult, error) {
		return nil, context.DeadlineExceeded
	}
	w := postHarvest(t, testConfig(t), nil, NewRunGate(1), failing,
		`{"url":"https://example.com"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	resp := decodeResponse(t, w)
	if resp.Error == nil || resp.Error.Code != models.ErrCodeInternal {
		t.Errorf("Error = %+v, want code %s", resp.Error, models.ErrCodeInternal)
	}
}

func TestHarvestBusy(t *testing.T) {
	gate := NewRunGate(1)
	if !gate.TryAcquire() {
		t.Fatal("could not claim the only slot")
	}
	defer gate.Release()

	var calls atomic.Int32
	w := postHarvest(t, testConfig(t), nil, gate, okRunner(&calls),
		`{"url":"https://example.com"}`)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	resp := decodeResponse(t, w)
	if resp.Error == nil || resp.Error.Code != models.ErrCodeServerBusy {
		t.Errorf("Error = %+v, want code %s", resp.Error, models.ErrCodeServerBusy)
	}
	if calls.Load() != 0 {
		t.Errorf("runner ran %d times while gate was full, want 0", calls.Load())
	}
}

func TestHarvestReleasesSlot(t *testing.T) {
	gate := NewRunGate(1)
	w := postHarvest(t, testConfig(t), nil, gate, okRunner(nil),
		`{"url":"https://example.com"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := gate.Stats().ActiveRuns; got != 0 {
		t.Errorf("ActiveRuns after request = %d, want 0", got)
	}
}

func TestHarvestReleasesSlotOnFailure(t *testing.T) {
	gate := NewRunGate(1)
	failing := func(ctx context.Context, cfg *config.Config, targetURL, outputDir string) (*models.HarvestResult, error) {
		return nil, models.NewPipelineError(models.ErrCodeNavigation, "nope", nil)
	}
	postHarvest(t, testConfig(t), nil, gate, failing, `{"url":"https://example.com"}`)
	if got := gate.Stats().ActiveRuns; got != 0 {
		t.Errorf("ActiveRuns after failed request = %d, want 0", got)
	}
}

func TestHarvestCacheMissThenHit(t *testing.T) {
	cfg := testConfig(t)
	cc := cache.New(10)
	gate := NewRunGate(1)
	var calls atomic.Int32
	body := `{"url":"https://example.com/gallery","max_age":60000}`

	first := postHarvest(t, cfg, cc, gate, okRunner(&calls), body)
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d, want %d", first.Code, http.StatusOK)
	}
	if got := decodeResponse(t, first).CacheStatus; got != "miss" {
		t.Errorf("first CacheStatus = %q, want %q", got, "miss")
	}

	second := postHarvest(t, cfg, cc, gate, okRunner(&calls), body)
	if second.Code != http.StatusOK {
		t.Fatalf("second status = %d, want %d", second.Code, http.StatusOK)
	}
	resp := decodeResponse(t, second)
	if resp.CacheStatus != "hit" {
		t.Errorf("second CacheStatus = %q, want %q", resp.CacheStatus, "hit")
	}
	if resp.RunID != "run-1" {
		t.Errorf("cached RunID = %q, want %q", resp.RunID, "run-1")
	}
	if calls.Load() != 1 {
		t.Errorf("runner ran %d times, want 1 (second request should hit cache)", calls.Load())
	}
}

func TestHarvestCacheKeyedBySelector(t *testing.T) {
	cfg := testConfig(t)
	cc := cache.New(10)
	gate := NewRunGate(1)
	var calls atomic.Int32

	postHarvest(t, cfg, cc, gate, okRunner(&calls),
		`{"url":"https://example.com","max_age":60000}`)
	postHarvest(t, cfg, cc, gate, okRunner(&calls),
		`{"url":"https://example.com","max_age":60000,"selector":"picture img"}`)

	if calls.Load() != 2 {
		t.Errorf("runner ran %d times, want 2 (different selectors must not share entries)", calls.Load())
	}
}

func TestHarvestOverlayAppliesRequestTunables(t *testing.T) {
	var gotCfg *config.Config
	var gotDir string
	capture := func(ctx context.Context, cfg *config.Config, targetURL, outputDir string) (*models.HarvestResult, error) {
		gotCfg, gotDir = cfg, outputDir
		return &models.HarvestResult{RunID: "run-1", TargetURL: targetURL, OutputDir: outputDir}, nil
	}

	cfg := testConfig(t)
	w := postHarvest(t, cfg, nil, NewRunGate(1), capture,
		`{"url":"https://example.com","selector":"picture img","timeout":30,"scroll_passes":5,"concurrency":4,"manifest":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	if gotCfg.Harvest.Selector != "picture img" {
		t.Errorf("Selector = %q, want %q", gotCfg.Harvest.Selector, "picture img")
	}
	if gotCfg.Harvest.RunTimeout != 30*time.Second {
		t.Errorf("RunTimeout = %v, want 30s", gotCfg.Harvest.RunTimeout)
	}
	if gotCfg.Harvest.ScrollPasses != 5 {
		t.Errorf("ScrollPasses = %d, want 5", gotCfg.Harvest.ScrollPasses)
	}
	if gotCfg.Fetch.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", gotCfg.Fetch.Concurrency)
	}
	if !gotCfg.Harvest.Manifest {
		t.Error("Manifest = false, want true")
	}
	if base := cfg.Server.OutputRoot; !strings.HasPrefix(gotDir, base) || gotDir == base {
		t.Errorf("outputDir = %q, want a fresh directory under %q", gotDir, base)
	}
}

func TestHarvestOverlayDoesNotMutateServerConfig(t *testing.T) {
	cfg := testConfig(t)
	postHarvest(t, cfg, nil, NewRunGate(1), okRunner(nil),
		`{"url":"https://example.com","selector":"picture img","concurrency":8}`)

	if cfg.Harvest.Selector != "img" {
		t.Errorf("server Selector mutated to %q", cfg.Harvest.Selector)
	}
	if cfg.Fetch.Concurrency != 1 {
		t.Errorf("server Concurrency mutated to %d", cfg.Fetch.Concurrency)
	}
}
