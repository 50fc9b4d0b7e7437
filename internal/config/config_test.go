package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TASKHUB_AUTH_SECRET", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected addr: %s", cfg.Addr)
	}
	if cfg.AuthIssuer != "taskhub" || cfg.AuthAudience != "taskhub-api" {
		t.Fatalf("unexpected issuer/audience: %s/%s", cfg.AuthIssuer, cfg.AuthAudience)
	}
	if cfg.AccessTTL() != time.Hour {
		t.Fatalf("expected 60m access ttl, got %v", cfg.AccessTTL())
	}
	if cfg.RefreshTTL() != 7*24*time.Hour {
		t.Fatalf("expected 7d refresh ttl, got %v", cfg.RefreshTTL())
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("TASKHUB_AUTH_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing secret")
	}
}

func TestLoadRejectsNonPositiveTTL(t *testing.T) {
	t.Setenv("TASKHUB_AUTH_SECRET", "test-secret")
	t.Setenv("TASKHUB_ACCESS_TTL_MINUTES", "0")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for zero access ttl")
	}
}
