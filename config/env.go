package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix namespaces every variable read by Load.
const EnvPrefix = "CARSCRAPER_"

// Load reads optional .env files, then overlays CARSCRAPER_* variables on the defaults.
// A missing .env file is not an error.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := DefaultConfig()
	var errs []error
	durations := map[string]*time.Duration{
		"CACHE_TTL":          &cfg.CacheTTL,
		"JOB_RETENTION":      &cfg.JobRetention,
		"SCHEDULER_INTERVAL": &cfg.SchedulerInterval,
		"MIN_DELAY":          &cfg.MinDelay,
		"MAX_DELAY":          &cfg.MaxDelay,
		"ADAPTER_TIMEOUT":    &cfg.AdapterTimeout,
		"REQUEST_TIMEOUT":    &cfg.RequestTimeout,
		"RETRY_BACKOFF":      &cfg.RetryBackoff,
		"RETRY_BACKOFF_MAX":  &cfg.RetryBackoffMax,
		"RENDER_WAIT":        &cfg.RenderWait,
		"RATE_MAX_AGE":       &cfg.RateMaxAge,
		"RATE_TIMEOUT":       &cfg.RateTimeout,
	}
	for key, dst := range durations {
		if v, ok, err := EnvDuration(EnvPrefix + key); err != nil {
			errs = append(errs, err)
		} else if ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"CACHE_SIZE":       &cfg.CacheSize,
		"MAX_PAGES":        &cfg.MaxPages,
		"MAX_RETRIES":      &cfg.MaxRetries,
		"PLATFORM_RETRIES": &cfg.PlatformRetries,
		"FLUENT_PORT":      &cfg.FluentPort,
	}
	for key, dst := range ints {
		if v, ok, err := EnvInt(EnvPrefix + key); err != nil {
			errs = append(errs, err)
		} else if ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"CACHE_PARTIAL":     &cfg.CachePartial,
		"RANDOM_USER_AGENT": &cfg.RandomUserAgent,
		"RESPECT_ROBOTS":    &cfg.RespectRobotsTxt,
		"HEADLESS":          &cfg.Headless,
		"FLUENT_ENABLED":    &cfg.FluentEnabled,
		"LOG_JSON":          &cfg.LogJSON,
	}
	for key, dst := range bools {
		if v, ok, err := EnvBool(EnvPrefix + key); err != nil {
			errs = append(errs, err)
		} else if ok {
			*dst = v
		}
	}

	strs := map[string]*string{
		"USER_AGENT":    &cfg.UserAgent,
		"BROWSER_PATH":  &cfg.BrowserPath,
		"RATE_API_URL":  &cfg.RateAPIURL,
		"METRICS_ADDR":  &cfg.MetricsAddr,
		"DATABASE_URL":  &cfg.DatabaseURL,
		"AMQP_URL":      &cfg.AMQPURL,
		"AMQP_EXCHANGE": &cfg.AMQPExchange,
		"FLUENT_HOST":   &cfg.FluentHost,
		"FLUENT_TAG":    &cfg.FluentTag,
		"LOG_LEVEL":     &cfg.LogLevel,
		"OUTPUT":        &cfg.OutputFile,
		"FORMAT":        &cfg.OutputFormat,
	}
	for key, dst := range strs {
		if v, ok := EnvString(EnvPrefix + key); ok {
			*dst = v
		}
	}

	if v, ok, err := EnvFloat(EnvPrefix + "EUR_USD_RATE"); err != nil {
		errs = append(errs, err)
	} else if ok {
		cfg.EURUSDRate = v
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	v, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

// EnvBool parses key with strconv.ParseBool.
func EnvBool(key string) (bool, bool, error) {
	v, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false, fmt.Errorf("%s: %w", key, err)
	}
	return b, true, nil
}

// EnvFloat parses key as a float64.
func EnvFloat(key string) (float64, bool, error) {
	v, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return f, true, nil
}

// EnvDuration parses key with time.ParseDuration.
func EnvDuration(key string) (time.Duration, bool, error) {
	v, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return d, true, nil
}
