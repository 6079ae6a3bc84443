package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("POS_CONFIG_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadFallsBackOnInvalidNumbers(t *testing.T) {
	t.Setenv("POS_CONFIG_FILE", "")
	t.Setenv("SALE_MAX_ATTEMPTS", "0")
	t.Setenv("CATALOG_CACHE_TTL_SECONDS", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.SaleMaxAttempts != 3 {
		t.Fatalf("expected default of 3 attempts, got %d", cfg.SaleMaxAttempts)
	}
	if cfg.CatalogCacheTTL() != 30*time.Second {
		t.Fatalf("expected default ttl of 30s, got %s", cfg.CatalogCacheTTL())
	}
}

func TestLoadReadsYAMLOverlayBelowEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pos.yaml")
	overlay := []byte("PORT: 9090\nSTORE_TIMEZONE: Asia/Jakarta\nSALE_MAX_ATTEMPTS: 5\nOTEL_STDOUT: true\n")
	if err := os.WriteFile(path, overlay, 0o600); err != nil {
		t.Fatalf("write overlay: %v", err)
	}
	t.Setenv("POS_CONFIG_FILE", path)
	t.Setenv("PORT", "")
	t.Setenv("STORE_TIMEZONE", "")
	t.Setenv("SALE_MAX_ATTEMPTS", "7")
	t.Setenv("OTEL_STDOUT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("expected port from overlay, got %s", cfg.Port)
	}
	if cfg.SaleMaxAttempts != 7 {
		t.Fatalf("expected environment to win over overlay, got %d", cfg.SaleMaxAttempts)
	}
	if !cfg.OTelStdout {
		t.Fatalf("expected OTEL_STDOUT from overlay")
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Asia/Jakarta" {
		t.Fatalf("expected Asia/Jakarta location, got %v (%v)", loc, err)
	}
}

func TestLoadRejectsUnknownTimezone(t *testing.T) {
	t.Setenv("POS_CONFIG_FILE", "")
	t.Setenv("STORE_TIMEZONE", "Mars/Olympus")

	if _, err := Load(); err == nil {
		t.Fatalf("expected unknown time zone to be rejected")
	}
}

func TestLoadReportsMissingOverlay(t *testing.T) {
	t.Setenv("POS_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Fatalf("expected missing overlay file to fail")
	}
}
