// Package fetch downloads resolved assets to local files, one file per
// ordinal. Failures are isolated per asset: a download that fails is
// recorded on its outcome and never aborts its siblings.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/use-agent/scrollgrab/config"
	"github.com/use-agent/scrollgrab/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// maxAssetBytes caps a single download. Anything larger is treated as a
// failed fetch rather than silently truncated.
const maxAssetBytes = 50 * 1024 * 1024

// Fetcher downloads assets over plain HTTP with origin-friendly pacing.
// It is safe for concurrent use.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	cfg     config.FetchConfig
	referer string
}

// New builds a Fetcher from config, applying defaults for unset fields.
func New(cfg config.FetchConfig) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 4
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 2
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = chromeUA
	}
	return &Fetcher{
		client:  &http.Client{},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cfg:     cfg,
	}
}

// SetReferer sets the Referer header sent with asset requests. Image CDNs
// commonly reject requests that do not carry the gallery page as referer.
func (f *Fetcher) SetReferer(pageURL string) {
	f.referer = pageURL
}

// FetchAll downloads every asset and returns one outcome per asset, indexed
// by discovery position. Outcomes land in the slice slot matching their
// asset, so the report stays in ascending ordinal order even when concurrent
// downloads finish out of order.
func (f *Fetcher) FetchAll(ctx context.Context, assets []models.ResolvedAsset, destDir string) []models.FetchOutcome {
	outcomes := make([]models.FetchOutcome, len(assets))

	if f.cfg.Concurrency == 1 {
		for i, asset := range assets {
			outcomes[i] = f.Fetch(ctx, asset, destDir)
		}
		return outcomes
	}

	g := new(errgroup.Group)
	g.SetLimit(f.cfg.Concurrency)
	for i, asset := range assets {
		g.Go(func() error {
			outcomes[i] = f.Fetch(ctx, asset, destDir)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// Fetch downloads one asset to destDir/{ordinal}.jpg. The extension is
// fixed regardless of content type; ordinals, not names, identify assets.
// Failures are returned as a failed outcome, never as an error.
func (f *Fetcher) Fetch(ctx context.Context, asset models.ResolvedAsset, destDir string) models.FetchOutcome {
	outcome := models.FetchOutcome{
		Ordinal:   asset.Ordinal,
		SourceURL: asset.SourceURL,
		Path:      filepath.Join(destDir, fmt.Sprintf("%d.jpg", asset.Ordinal)),
	}

	var err error
	for attempt := 0; ; attempt++ {
		var written int64
		var sum string
		written, sum, err = f.download(ctx, asset.SourceURL, outcome.Path)
		if err == nil {
			outcome.Status = models.StatusSuccess
			outcome.Bytes = written
			outcome.SHA256 = sum
			return outcome
		}
		if attempt >= f.cfg.Retries || ctx.Err() != nil {
			break
		}
		backoff := time.Duration(attempt+1) * 500 * time.Millisecond
		slog.Debug("retrying asset fetch",
			"ordinal", asset.Ordinal, "attempt", attempt+1, "error", err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	outcome.Status = models.StatusFailed
	outcome.Reason = classify(err)
	outcome.Error = err.Error()
	slog.Warn("asset fetch failed",
		"ordinal", asset.Ordinal,
		"url", asset.SourceURL,
		"reason", outcome.Reason,
		"error", err,
	)
	return outcome
}

// download performs one retrieval attempt. If the destination file was
// created before the failure, it is removed so a failed ordinal leaves no
// partial file behind.
func (f *Fetcher) download(ctx context.Context, srcURL, path string) (int64, string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	if err := f.limiter.Wait(ctx); err != nil {
		// rate.Limiter reports an unwrapped error when the remaining
		// deadline cannot cover the required wait.
		return 0, "", fmt.Errorf("rate limit wait: %v: %w", err, context.DeadlineExceeded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if f.referer != "" {
		req.Header.Set("Referer", f.referer)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, "", fmt.Errorf("HTTP %d for %s", resp.StatusCode, srcURL)
	}

	dst, err := os.Create(path)
	if err != nil {
		return 0, "", fmt.Errorf("create file: %w", err)
	}

	hash := sha256.New()
	written, err := io.Copy(io.MultiWriter(dst, hash), io.LimitReader(resp.Body, maxAssetBytes+1))
	if err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return 0, "", fmt.Errorf("copy body: %w", err)
	}
	if written > maxAssetBytes {
		_ = dst.Close()
		_ = os.Remove(path)
		return 0, "", fmt.Errorf("asset exceeds %d byte cap", maxAssetBytes)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		return 0, "", fmt.Errorf("close file: %w", err)
	}

	return written, hex.EncodeToString(hash.Sum(nil)), nil
}

// classify maps a download error to its failure reason. Deadline and
// cancellation beat everything else; filesystem errors surface as
// *fs.PathError from the os layer; the rest is the network's fault.
func classify(err error) models.FailReason {
	var pathErr *fs.PathError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return models.FailTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return models.FailTimeout
	case errors.As(err, &pathErr):
		return models.FailFilesystem
	default:
		return models.FailNetwork
	}
}
