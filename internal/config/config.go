// Package config resolves runtime settings for seisstreamd and seisctl from
// environment variables, with flag.String-style inline defaults so every
// setting has one documented fallback.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config is every setting seisstreamd and seisctl need: where the object
// store lives, where FDSN data comes from, and how the server listens.
type Config struct {
	S3Bucket             string
	S3Endpoint           string
	S3Region             string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	FDSNBaseURL          string
	ListenAddr           string
	HighpassHz           float64
	LogLevel             string
	LedgerPath           string
	MaxConcurrentDays    int
	MaxConcurrentFetches int
}

// Load resolves Config from the environment, applying the same defaults
// documented here regardless of which binary calls it.
func Load() (Config, error) {
	cfg := Config{
		S3Bucket:             getenv("SEIS_S3_BUCKET", ""),
		S3Endpoint:           getenv("SEIS_S3_ENDPOINT", ""),
		S3Region:             getenv("SEIS_S3_REGION", "us-east-1"),
		AWSAccessKeyID:       getenv("SEIS_AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getenv("SEIS_AWS_SECRET_ACCESS_KEY", ""),
		FDSNBaseURL:          getenv("SEIS_FDSN_BASE_URL", "https://service.iris.edu/fdsnws/dataselect/1/query"),
		ListenAddr:           getenv("SEIS_LISTEN_ADDR", ":8080"),
		LogLevel:             getenv("SEIS_LOG_LEVEL", "info"),
		LedgerPath:           getenv("SEIS_LEDGER_PATH", "./seisstream-ledger.sqlite"),
	}

	var err error
	if cfg.HighpassHz, err = getenvFloat("SEIS_HIGHPASS_HZ", 0); err != nil {
		return Config{}, err
	}
	if cfg.MaxConcurrentDays, err = getenvInt("SEIS_MAX_CONCURRENT_DAYS", 4); err != nil {
		return Config{}, err
	}
	if cfg.MaxConcurrentFetches, err = getenvInt("SEIS_MAX_CONCURRENT_FETCHES", 8); err != nil {
		return Config{}, err
	}

	if cfg.S3Bucket == "" {
		return Config{}, fmt.Errorf("config: SEIS_S3_BUCKET is required")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return f, nil
}

func getenvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}
