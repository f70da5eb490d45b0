package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/use-agent/scrollgrab/cache"
	"github.com/use-agent/scrollgrab/config"
	"github.com/use-agent/scrollgrab/models"
	"github.com/use-agent/scrollgrab/webhook"
)

// Runner executes one pipeline run and returns its result. The production
// implementation constructs a fresh pipeline per call; tests substitute
// their own.
type Runner func(ctx context.Context, cfg *config.Config, targetURL, outputDir string) (*models.HarvestResult, error)

// Harvest returns a handler for POST /api/v1/harvest.
//
// Orchestration flow:
//  1. Parse & validate request, apply defaults.
//  2. Cache lookup (when max_age is set).
//  3. Claim a run slot, or answer 503 immediately.
//  4. Run the pipeline into a server-side per-run directory.
//  5. Respond, store in cache, notify webhook.
func Harvest(cfg *config.Config, cc *cache.Cache, gate *RunGate, run Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.HarvestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.HarvestResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		req.Defaults()

		// ── 1b. Cache lookup ───────────────────────────────────────
		// The stored value is shared between requests, so mutate a copy.
		cacheKey := cache.Key(req.URL, req.Selector, req.SrcAttr, req.SrcsetAttr)
		if cc != nil && req.MaxAge > 0 {
			if cached, hit := cc.Get(cacheKey, req.MaxAge); hit {
				resp := *cached
				resp.CacheStatus = "hit"
				resp.Timing = models.TimingInfo{
					TotalMs: time.Since(totalStart).Milliseconds(),
				}
				c.JSON(http.StatusOK, resp)
				return
			}
		}

		// ── 2. Claim a run slot ────────────────────────────────────
		if !gate.TryAcquire() {
			c.JSON(http.StatusServiceUnavailable, models.HarvestResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeServerBusy,
					Message: fmt.Sprintf("all %d run slots are busy, retry later", gate.Stats().MaxRuns),
				},
			})
			return
		}
		defer gate.Release()

		// ── 3. Run the pipeline ────────────────────────────────────
		// The output directory is server-controlled: clients never pick
		// filesystem paths. The response reports where the files went.
		runCfg := overlay(cfg, &req)
		outputDir := filepath.Join(cfg.Server.OutputRoot, uuid.NewString())

		result, err := run(c.Request.Context(), runCfg, req.URL, outputDir)
		if err != nil {
			notifyFailure(&req, cfg, err)
			respondError(c, err, models.TimingInfo{
				TotalMs: time.Since(totalStart).Milliseconds(),
			})
			return
		}

		// ── 4. Assemble response ───────────────────────────────────
		resp := &models.HarvestResponse{
			Success:   true,
			RunID:     result.RunID,
			TargetURL: result.TargetURL,
			OutputDir: result.OutputDir,
			PageTitle: result.PageTitle,
			Outcomes:  result.Outcomes,
			Summary:   result.Summary,
			Timing: models.TimingInfo{
				TotalMs:    time.Since(totalStart).Milliseconds(),
				RenderMs:   result.Timing.RenderMs,
				DownloadMs: result.Timing.DownloadMs,
			},
		}

		// ── 5. Cache store ─────────────────────────────────────────
		// Store a copy: the stored value may be served to other requests
		// while this one still mutates resp below.
		if cc != nil && req.MaxAge > 0 {
			stored := *resp
			cc.Set(cacheKey, &stored)
			resp.CacheStatus = "miss"
		}

		// ── 6. Webhook notification ────────────────────────────────
		if req.WebhookURL != "" {
			webhook.DeliverAsync(req.WebhookURL, cfg.Webhook.Secret, &webhook.Event{
				Type:      webhook.EventRunCompleted,
				RunID:     result.RunID,
				Timestamp: time.Now().Unix(),
				Data:      resp,
			})
		}

		c.JSON(http.StatusOK, resp)
	}
}

// overlay builds the per-request run config: the server's config with the
// request's tunables applied on top. Request defaults are the API defaults,
// so every overlaid field is always set.
func overlay(base *config.Config, req *models.HarvestRequest) *config.Config {
	cfg := *base
	cfg.Harvest.Selector = req.Selector
	cfg.Harvest.SrcAttr = req.SrcAttr
	cfg.Harvest.SrcsetAttr = req.SrcsetAttr
	cfg.Harvest.RunTimeout = time.Duration(req.Timeout) * time.Second
	cfg.Harvest.ScrollPasses = req.ScrollPasses
	cfg.Harvest.Manifest = req.Manifest
	cfg.Fetch.Concurrency = req.Concurrency
	return &cfg
}

// notifyFailure delivers a harvest.failed event when the request asked for
// webhook notifications. Data carries the same response shape as completed
// events, so webhook consumers decode one payload type.
func notifyFailure(req *models.HarvestRequest, cfg *config.Config, err error) {
	if req.WebhookURL == "" {
		return
	}
	var pipeErr *models.PipelineError
	if !errors.As(err, &pipeErr) {
		pipeErr = models.NewPipelineError(models.ErrCodeInternal, err.Error(), err)
	}
	webhook.DeliverAsync(req.WebhookURL, cfg.Webhook.Secret, &webhook.Event{
		Type:      webhook.EventRunFailed,
		Timestamp: time.Now().Unix(),
		Data: &models.HarvestResponse{
			Success:   false,
			TargetURL: req.URL,
			Error:     pipeErr.ToDetail(),
		},
	})
}

// respondError maps a PipelineError to the correct HTTP status code and
// writes a structured JSON error response.
func respondError(c *gin.Context, err error, timing models.TimingInfo) {
	var pipeErr *models.PipelineError
	if !errors.As(err, &pipeErr) {
		pipeErr = models.NewPipelineError(models.ErrCodeInternal, err.Error(), err)
	}

	c.JSON(mapErrorToStatus(pipeErr), models.HarvestResponse{
		Success: false,
		Error:   pipeErr.ToDetail(),
		Timing:  timing,
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.PipelineError) int {
	switch e.Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeSessionCreate, models.ErrCodeNavigation, models.ErrCodeHarvest:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeServerBusy:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}
