package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.MaxRuns != 2 {
		t.Errorf("Server.MaxRuns = %d, want 2", cfg.Server.MaxRuns)
	}
	if !cfg.Browser.Headless {
		t.Error("Browser.Headless = false, want true")
	}
	if cfg.Browser.Viewport != "max" {
		t.Errorf("Browser.Viewport = %q, want \"max\"", cfg.Browser.Viewport)
	}
	if cfg.Harvest.Selector != "img" {
		t.Errorf("Harvest.Selector = %q, want \"img\"", cfg.Harvest.Selector)
	}
	if cfg.Harvest.SrcAttr != "src" || cfg.Harvest.SrcsetAttr != "srcset" {
		t.Errorf("attrs = %q/%q, want src/srcset", cfg.Harvest.SrcAttr, cfg.Harvest.SrcsetAttr)
	}
	if cfg.Harvest.ScrollPasses != 20 {
		t.Errorf("Harvest.ScrollPasses = %d, want 20", cfg.Harvest.ScrollPasses)
	}
	if cfg.Harvest.Manifest {
		t.Error("Harvest.Manifest = true, want false")
	}
	if cfg.Fetch.Timeout != 30*time.Second {
		t.Errorf("Fetch.Timeout = %v, want 30s", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.Concurrency != 1 {
		t.Errorf("Fetch.Concurrency = %d, want 1", cfg.Fetch.Concurrency)
	}
	if cfg.Fetch.Retries != 0 {
		t.Errorf("Fetch.Retries = %d, want 0", cfg.Fetch.Retries)
	}
	if !cfg.Auth.Enabled {
		t.Error("Auth.Enabled = false, want true")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want \"json\"", cfg.Log.Format)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SCROLLGRAB_PORT", "9090")
	t.Setenv("SCROLLGRAB_HEADLESS", "false")
	t.Setenv("SCROLLGRAB_VIEWPORT", "1280x720")
	t.Setenv("SCROLLGRAB_SELECTOR", "figure img.photo")
	t.Setenv("SCROLLGRAB_SRCSET_ATTR", "data-srcset")
	t.Setenv("SCROLLGRAB_SCROLL_SETTLE", "150ms")
	t.Setenv("SCROLLGRAB_FETCH_CONCURRENCY", "4")
	t.Setenv("SCROLLGRAB_FETCH_RETRIES", "2")
	t.Setenv("SCROLLGRAB_API_KEYS", "key1, key2")
	t.Setenv("SCROLLGRAB_BLOCKED_RESOURCES", "Media,Font")

	cfg := Load()

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Browser.Headless {
		t.Error("Browser.Headless = true, want false")
	}
	if cfg.Browser.Viewport != "1280x720" {
		t.Errorf("Browser.Viewport = %q, want \"1280x720\"", cfg.Browser.Viewport)
	}
	if cfg.Harvest.Selector != "figure img.photo" {
		t.Errorf("Harvest.Selector = %q", cfg.Harvest.Selector)
	}
	if cfg.Harvest.SrcsetAttr != "data-srcset" {
		t.Errorf("Harvest.SrcsetAttr = %q, want \"data-srcset\"", cfg.Harvest.SrcsetAttr)
	}
	if cfg.Harvest.ScrollSettle != 150*time.Millisecond {
		t.Errorf("Harvest.ScrollSettle = %v, want 150ms", cfg.Harvest.ScrollSettle)
	}
	if cfg.Fetch.Concurrency != 4 {
		t.Errorf("Fetch.Concurrency = %d, want 4", cfg.Fetch.Concurrency)
	}
	if cfg.Fetch.Retries != 2 {
		t.Errorf("Fetch.Retries = %d, want 2", cfg.Fetch.Retries)
	}
	want := []string{"key1", "key2"}
	if len(cfg.Auth.APIKeys) != 2 || cfg.Auth.APIKeys[0] != want[0] || cfg.Auth.APIKeys[1] != want[1] {
		t.Errorf("Auth.APIKeys = %v, want %v", cfg.Auth.APIKeys, want)
	}
	if len(cfg.Harvest.BlockedResourceTypes) != 2 {
		t.Errorf("BlockedResourceTypes = %v, want two entries", cfg.Harvest.BlockedResourceTypes)
	}
}

func TestInvalidEnvFallsBack(t *testing.T) {
	t.Setenv("SCROLLGRAB_PORT", "not-a-number")
	t.Setenv("SCROLLGRAB_NAV_TIMEOUT", "soon")
	t.Setenv("SCROLLGRAB_HEADLESS", "maybe")

	cfg := Load()

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want fallback 8080", cfg.Server.Port)
	}
	if cfg.Harvest.NavTimeout != 20*time.Second {
		t.Errorf("Harvest.NavTimeout = %v, want fallback 20s", cfg.Harvest.NavTimeout)
	}
	if !cfg.Browser.Headless {
		t.Error("Browser.Headless = false, want fallback true")
	}
}
