package config

import (
	"testing"
	"time"
)

func TestLoadConfigAppliesDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("APP_ENV", "Dev")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %q", cfg.Port)
	}
	if cfg.AppEnv != "development" {
		t.Fatalf("expected normalized env, got %q", cfg.AppEnv)
	}
	if cfg.ReminderInterval != 15*time.Minute || cfg.ReminderLead != 24*time.Hour {
		t.Fatalf("unexpected reminder settings: %s / %s", cfg.ReminderInterval, cfg.ReminderLead)
	}
	if cfg.BrokerEnabled() {
		t.Fatalf("expected broker to be disabled without RABBIT_URL")
	}
}

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected missing JWT_SECRET to fail")
	}
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("EVENT_DISPATCH_INTERVAL", "soon")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected invalid duration to fail")
	}
}

func TestNormalizeEnv(t *testing.T) {
	cases := map[string]string{
		"prod":    "production",
		" Stage ": "staging",
		"testing": "test",
		"QA":      "qa",
	}
	for input, want := range cases {
		if got := normalizeEnv(input); got != want {
			t.Fatalf("normalizeEnv(%q) = %q, want %q", input, got, want)
		}
	}
}
