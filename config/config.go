package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds service configuration.
type Config struct {
	// Cache
	CacheTTL          time.Duration
	CacheSize         int
	CachePartial      bool
	JobRetention      time.Duration
	SchedulerInterval time.Duration

	// Scraping
	MinDelay         time.Duration
	MaxDelay         time.Duration
	AdapterTimeout   time.Duration
	RequestTimeout   time.Duration
	MaxPages         int
	MaxRetries       int
	RetryBackoff     time.Duration
	RetryBackoffMax  time.Duration
	PlatformRetries  int
	UserAgent        string
	RandomUserAgent  bool
	RespectRobotsTxt bool
	Headless         bool
	BrowserPath      string
	RenderWait       time.Duration

	// Currency
	EURUSDRate  float64
	RateAPIURL  string
	RateMaxAge  time.Duration
	RateTimeout time.Duration

	// Infrastructure
	MetricsAddr   string
	DatabaseURL   string
	AMQPURL       string
	AMQPExchange  string
	FluentEnabled bool
	FluentHost    string
	FluentPort    int
	FluentTag     string
	LogLevel      string
	LogJSON       bool
	OutputFile    string
	OutputFormat  string // csv, json, or dual
}

// DefaultConfig returns conservative defaults that keep the marketplaces happy.
func DefaultConfig() *Config {
	return &Config{
		CacheTTL:          6 * time.Hour,
		CacheSize:         512,
		CachePartial:      true,
		JobRetention:      24 * time.Hour,
		SchedulerInterval: 12 * time.Hour,
		MinDelay:          3 * time.Second,
		MaxDelay:          8 * time.Second,
		AdapterTimeout:    5 * time.Minute,
		RequestTimeout:    30 * time.Second,
		MaxPages:          10,
		MaxRetries:        3,
		RetryBackoff:      2 * time.Second,
		RetryBackoffMax:   16 * time.Second,
		PlatformRetries:   0,
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		RespectRobotsTxt:  false,
		Headless:          true,
		RenderWait:        4 * time.Second,
		EURUSDRate:        1.08,
		RateAPIURL:        "https://api.frankfurter.app/latest?from=EUR&to=USD",
		RateMaxAge:        time.Hour,
		RateTimeout:       5 * time.Second,
		AMQPExchange:      "carscraper.jobs",
		FluentPort:        24224,
		FluentTag:         "carscraper",
		LogLevel:          "info",
		OutputFile:        "output/listings.csv",
		OutputFormat:      "csv",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache size must be positive")
	}
	if c.JobRetention < 0 {
		return fmt.Errorf("job retention cannot be negative")
	}
	if c.MinDelay < 0 {
		return fmt.Errorf("min delay cannot be negative")
	}
	if c.MaxDelay < c.MinDelay {
		return fmt.Errorf("max delay (%s) cannot be below min delay (%s)", c.MaxDelay, c.MinDelay)
	}
	if c.AdapterTimeout <= 0 {
		return fmt.Errorf("adapter timeout must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.PlatformRetries < 0 {
		return fmt.Errorf("platform retries cannot be negative")
	}
	if c.UserAgent == "" && !c.RandomUserAgent {
		return fmt.Errorf("user agent cannot be empty unless random user agents are enabled")
	}
	if c.EURUSDRate <= 0 {
		return fmt.Errorf("eur/usd fallback rate must be positive")
	}
	if c.RateAPIURL != "" {
		parsed, err := url.Parse(c.RateAPIURL)
		if err != nil {
			return fmt.Errorf("invalid rate api url: %w", err)
		}
		if parsed.Host == "" {
			return fmt.Errorf("rate api url must include a host")
		}
	}
	if c.FluentEnabled && c.FluentHost == "" {
		return fmt.Errorf("fluent host is required when fluent logging is enabled")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be debug, info, warn, or error")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	return nil
}
