package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "zero cache ttl",
			mutate: func(cfg *Config) {
				cfg.CacheTTL = 0
			},
			wantErr: "cache ttl",
		},
		{
			name: "max delay below min delay",
			mutate: func(cfg *Config) {
				cfg.MinDelay = 5 * time.Second
				cfg.MaxDelay = time.Second
			},
			wantErr: "max delay",
		},
		{
			name: "zero max pages",
			mutate: func(cfg *Config) {
				cfg.MaxPages = 0
			},
			wantErr: "max pages",
		},
		{
			name: "negative platform retries",
			mutate: func(cfg *Config) {
				cfg.PlatformRetries = -1
			},
			wantErr: "platform retries",
		},
		{
			name: "invalid rate url",
			mutate: func(cfg *Config) {
				cfg.RateAPIURL = "http://"
			},
			wantErr: "rate api url",
		},
		{
			name: "non-positive fallback rate",
			mutate: func(cfg *Config) {
				cfg.EURUSDRate = 0
			},
			wantErr: "fallback rate",
		},
		{
			name: "fluent without host",
			mutate: func(cfg *Config) {
				cfg.FluentEnabled = true
				cfg.FluentHost = ""
			},
			wantErr: "fluent host",
		},
		{
			name: "unknown log level",
			mutate: func(cfg *Config) {
				cfg.LogLevel = "loud"
			},
			wantErr: "log level",
		},
		{
			name: "empty user agent",
			mutate: func(cfg *Config) {
				cfg.UserAgent = ""
			},
			wantErr: "user agent",
		},
		{
			name: "backoff above cap",
			mutate: func(cfg *Config) {
				cfg.RetryBackoff = time.Minute
				cfg.RetryBackoffMax = time.Second
			},
			wantErr: "retry backoff",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.CacheTTL != 6*time.Hour {
		t.Fatalf("expected 6h cache ttl, got %s", cfg.CacheTTL)
	}
	if cfg.EURUSDRate != 1.08 {
		t.Fatalf("expected 1.08 fallback rate, got %v", cfg.EURUSDRate)
	}
}

func TestLoadOverlaysEnvironment(t *testing.T) {
	t.Setenv("CARSCRAPER_CACHE_TTL", "2h")
	t.Setenv("CARSCRAPER_MAX_PAGES", "3")
	t.Setenv("CARSCRAPER_HEADLESS", "false")
	t.Setenv("CARSCRAPER_EUR_USD_RATE", "1.12")
	t.Setenv("CARSCRAPER_LOG_LEVEL", "debug")
	t.Setenv("CARSCRAPER_RANDOM_USER_AGENT", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheTTL != 2*time.Hour {
		t.Errorf("cache ttl = %s, want 2h", cfg.CacheTTL)
	}
	if cfg.MaxPages != 3 {
		t.Errorf("max pages = %d, want 3", cfg.MaxPages)
	}
	if cfg.Headless {
		t.Errorf("headless should be disabled")
	}
	if cfg.EURUSDRate != 1.12 {
		t.Errorf("rate = %v, want 1.12", cfg.EURUSDRate)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug", cfg.LogLevel)
	}
	if !cfg.RandomUserAgent {
		t.Errorf("random user agent should be enabled")
	}
}

func TestRandomUserAgentAllowsEmptyUserAgent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UserAgent = ""
	cfg.RandomUserAgent = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected random user agent to stand in for an empty one, got %v", err)
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("CARSCRAPER_TEST_MIN_DELAY_PROBE=1\nCARSCRAPER_MAX_RETRIES=7\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("CARSCRAPER_TEST_MIN_DELAY_PROBE")
		os.Unsetenv("CARSCRAPER_MAX_RETRIES")
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxRetries != 7 {
		t.Fatalf("max retries = %d, want 7", cfg.MaxRetries)
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("CARSCRAPER_CACHE_SIZE", "lots")
	t.Setenv("CARSCRAPER_MIN_DELAY", "soon")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err == nil {
		t.Fatal("expected error for malformed values")
	}
	for _, key := range []string{"CARSCRAPER_CACHE_SIZE", "CARSCRAPER_MIN_DELAY"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}
