package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Harvest   HarvestConfig
	Fetch     FetchConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Webhook   WebhookConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"

	// MaxRuns caps concurrent pipeline runs. Each run owns a full browser
	// session, so this is effectively a browser-process limit.
	MaxRuns int // default: 2

	// OutputRoot is the directory under which per-run output directories
	// are created in serve mode.
	OutputRoot string // default: "./harvests"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// Viewport is "max" for a maximized window or "WxH" (e.g. "1920x1080")
	// for a fixed size. Lazy loaders key off viewport intersection, so a
	// larger viewport materializes more content per scroll pass.
	Viewport string // default: "max"

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string
}

// HarvestConfig controls page materialization and element harvesting.
type HarvestConfig struct {
	// Selector matches the elements to harvest.
	Selector string // default: "img"

	// SrcAttr is the attribute holding the primary asset URL.
	SrcAttr string // default: "src"

	// SrcsetAttr is the attribute holding responsive candidates.
	SrcsetAttr string // default: "srcset"

	// NavTimeout is the max time for page navigation alone.
	NavTimeout time.Duration // default: 20s

	// RunTimeout is the deadline for one entire pipeline run.
	RunTimeout time.Duration // default: 90s

	// ScrollPasses caps the viewport-height scroll steps used to trigger
	// lazy loading. Scrolling stops early once the page height settles.
	ScrollPasses int // default: 20

	// ScrollSettle is the pause after each scroll step, giving lazy
	// loaders time to observe the viewport and swap attributes in.
	ScrollSettle time.Duration // default: 400ms

	// BlockedResourceTypes lists CDP resource types to block during
	// rendering ("Media", "Font", ...). Empty means load everything;
	// attribute harvesting does not need the image bytes themselves, but
	// some pages gate later swaps on earlier loads, so blocking is opt-in.
	BlockedResourceTypes []string

	// Manifest writes a manifest.md run summary into the output directory.
	Manifest bool // default: false
}

// FetchConfig controls asset downloads.
type FetchConfig struct {
	// Timeout is the per-asset download deadline.
	Timeout time.Duration // default: 30s

	// RequestsPerSecond is the sustained request rate against the origin.
	RequestsPerSecond float64 // default: 4

	// Burst is the token bucket burst size.
	Burst int // default: 2

	// Concurrency is the number of parallel downloads. 1 keeps downloads
	// strictly sequential in ordinal order.
	Concurrency int // default: 1

	// Retries is the number of re-attempts per asset after a failure.
	// 0 means a single attempt.
	Retries int // default: 0

	// UserAgent is sent with asset requests.
	UserAgent string // default: a current Chrome UA
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys. Empty disables the check.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// CacheConfig controls the harvest response cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached responses.
	MaxEntries int // default: 1000
}

// WebhookConfig controls outbound result notifications.
type WebhookConfig struct {
	// Secret signs webhook payloads with HMAC-SHA256 when set.
	Secret string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:       envOr("SCROLLGRAB_HOST", "0.0.0.0"),
			Port:       envIntOr("SCROLLGRAB_PORT", 8080),
			Mode:       envOr("SCROLLGRAB_MODE", "release"),
			MaxRuns:    envIntOr("SCROLLGRAB_MAX_RUNS", 2),
			OutputRoot: envOr("SCROLLGRAB_OUTPUT_ROOT", "./harvests"),
		},
		Browser: BrowserConfig{
			Headless:   envBoolOr("SCROLLGRAB_HEADLESS", true),
			Viewport:   envOr("SCROLLGRAB_VIEWPORT", "max"),
			NoSandbox:  envBoolOr("SCROLLGRAB_NO_SANDBOX", false),
			BrowserBin: os.Getenv("SCROLLGRAB_BROWSER_BIN"),
		},
		Harvest: HarvestConfig{
			Selector:             envOr("SCROLLGRAB_SELECTOR", "img"),
			SrcAttr:              envOr("SCROLLGRAB_SRC_ATTR", "src"),
			SrcsetAttr:           envOr("SCROLLGRAB_SRCSET_ATTR", "srcset"),
			NavTimeout:           envDurationOr("SCROLLGRAB_NAV_TIMEOUT", 20*time.Second),
			RunTimeout:           envDurationOr("SCROLLGRAB_RUN_TIMEOUT", 90*time.Second),
			ScrollPasses:         envIntOr("SCROLLGRAB_SCROLL_PASSES", 20),
			ScrollSettle:         envDurationOr("SCROLLGRAB_SCROLL_SETTLE", 400*time.Millisecond),
			BlockedResourceTypes: envSliceOr("SCROLLGRAB_BLOCKED_RESOURCES", nil),
			Manifest:             envBoolOr("SCROLLGRAB_MANIFEST", false),
		},
		Fetch: FetchConfig{
			Timeout:           envDurationOr("SCROLLGRAB_FETCH_TIMEOUT", 30*time.Second),
			RequestsPerSecond: envFloatOr("SCROLLGRAB_FETCH_RPS", 4.0),
			Burst:             envIntOr("SCROLLGRAB_FETCH_BURST", 2),
			Concurrency:       envIntOr("SCROLLGRAB_FETCH_CONCURRENCY", 1),
			Retries:           envIntOr("SCROLLGRAB_FETCH_RETRIES", 0),
			UserAgent:         os.Getenv("SCROLLGRAB_FETCH_UA"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("SCROLLGRAB_AUTH_ENABLED", true),
			APIKeys: envSliceOr("SCROLLGRAB_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("SCROLLGRAB_RATE_RPS", 5.0),
			Burst:             envIntOr("SCROLLGRAB_RATE_BURST", 10),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("SCROLLGRAB_CACHE_MAX_ENTRIES", 1000),
		},
		Webhook: WebhookConfig{
			Secret: os.Getenv("SCROLLGRAB_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("SCROLLGRAB_LOG_LEVEL", "info"),
			Format: envOr("SCROLLGRAB_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
