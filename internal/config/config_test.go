package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.jwt_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.HTTPAddress != defaultHTTPAddress {
		t.Fatalf("unexpected http address %q", cfg.HTTPAddress)
	}
	if cfg.DatabaseDriver != DriverSQLite || cfg.DatabasePath != defaultDatabasePath {
		t.Fatalf("unexpected database defaults: %s %s", cfg.DatabaseDriver, cfg.DatabasePath)
	}
	if cfg.JWTAudience != "authenticated" {
		t.Fatalf("unexpected audience %q", cfg.JWTAudience)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSOrigins)
	}
	if cfg.FeedCacheTTL != 30*time.Second {
		t.Fatalf("unexpected feed cache ttl %s", cfg.FeedCacheTTL)
	}
	if !cfg.MetricsEnabled {
		t.Fatalf("expected metrics to be enabled by default")
	}
}

func TestLoadSplitsCORSOrigins(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.jwt_secret", "secret")
	configViper.Set("cors.origins", "https://a.example.com, https://b.example.com,,")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example.com" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSOrigins)
	}
}

func TestLoadValidationFailures(t *testing.T) {
	testCases := []struct {
		name      string
		overrides map[string]any
		wantError string
	}{
		{
			name:      "missing-verification-mode",
			overrides: map[string]any{},
			wantError: "auth.jwt_secret",
		},
		{
			name:      "unknown-driver",
			overrides: map[string]any{"auth.jwt_secret": "s", "database.driver": "mysql"},
			wantError: "not supported",
		},
		{
			name:      "postgres-without-dsn",
			overrides: map[string]any{"auth.jwt_secret": "s", "database.driver": "postgres"},
			wantError: "database.dsn",
		},
		{
			name:      "sqlite-without-path",
			overrides: map[string]any{"auth.jwt_secret": "s", "database.path": " "},
			wantError: "database.path",
		},
		{
			name:      "non-positive-ttl",
			overrides: map[string]any{"auth.jwt_secret": "s", "redis.feed_ttl_seconds": 0},
			wantError: "redis.feed_ttl_seconds",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			for key, value := range testCase.overrides {
				configViper.Set(key, value)
			}
			_, err := Load(configViper)
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), testCase.wantError) {
				t.Fatalf("expected error mentioning %q, got %v", testCase.wantError, err)
			}
		})
	}
}

func TestLoadAcceptsUnverifiedDevelopmentMode(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.allow_unverified", true)

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if !cfg.AllowUnverified {
		t.Fatalf("expected unverified mode to be enabled")
	}
}
