package config

import (
	"testing"
	"time"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_ACCESS_SECRET", "secret")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is empty")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/outreach")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("SMTP_HOST", "")
	t.Setenv("CORS_ORIGINS", "http://localhost:4200")
	t.Setenv("ENGAGEMENT_TIMEZONE", "Europe/Amsterdam")
	t.Setenv("ENGAGEMENT_REFRESH_INTERVAL", "30m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GetEmailEnabled() {
		t.Fatal("expected email disabled without SMTP_HOST")
	}
	if got := cfg.GetEngagementLocation().String(); got != "Europe/Amsterdam" {
		t.Fatalf("expected Europe/Amsterdam, got %q", got)
	}
	if cfg.GetEngagementRefreshInterval() != 30*time.Minute {
		t.Fatalf("expected 30m refresh interval, got %s", cfg.GetEngagementRefreshInterval())
	}
	if cfg.GetAsynqQueueName() != "default" {
		t.Fatalf("expected default queue, got %q", cfg.GetAsynqQueueName())
	}
}

func TestLoadRejectsWildcardCORSWithCredentials(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/outreach")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("CORS_ORIGINS", "*")
	t.Setenv("CORS_ALLOW_CREDENTIALS", "true")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for wildcard CORS with credentials")
	}
}

func TestNilLocationFallsBackToUTC(t *testing.T) {
	cfg := &Config{}
	if cfg.GetEngagementLocation() != time.UTC {
		t.Fatal("expected UTC fallback")
	}
}
