// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	BotToken    string // bearer credential required on gateway endpoints; empty disables auth (dev)
	LogLevel    string
	DBPath      string // PII-free usage statistics database

	SessionTimeout time.Duration
	SweepInterval  time.Duration
	MaxRetries     int
	MinBirthYear   int

	GeocoderURL       string
	GeocodeConfidence float64
	ChartEngineURL    string
	RasterURL         string
	UpstreamTimeout   time.Duration
	GenerationTimeout time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		BotToken:    getEnv("BOT_TOKEN", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DBPath:      getEnv("DB_PATH", "./data/usage.db"),

		SessionTimeout: time.Duration(getEnvInt("SESSION_TIMEOUT", 1800)) * time.Second,
		SweepInterval:  time.Duration(getEnvInt("SWEEP_INTERVAL", 60)) * time.Second,
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		MinBirthYear:   getEnvInt("MIN_BIRTH_YEAR", 1900),

		GeocoderURL:       getEnv("GEOCODER_URL", "http://localhost:8100"),
		GeocodeConfidence: getEnvFloat("GEOCODE_CONFIDENCE", 0.8),
		ChartEngineURL:    getEnv("CHART_ENGINE_URL", "http://localhost:8200"),
		RasterURL:         getEnv("RASTER_URL", "http://localhost:8300"),
		UpstreamTimeout:   time.Duration(getEnvInt("UPSTREAM_TIMEOUT", 10)) * time.Second,
		GenerationTimeout: time.Duration(getEnvInt("GENERATION_TIMEOUT", 60)) * time.Second,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT must be > 0")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be > 0")
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("MAX_RETRIES must be > 0")
	}
	if c.MinBirthYear < 1 {
		return fmt.Errorf("MIN_BIRTH_YEAR must be a positive year")
	}
	if c.GeocodeConfidence < 0 || c.GeocodeConfidence > 1 {
		return fmt.Errorf("GEOCODE_CONFIDENCE must be between 0 and 1")
	}
	if c.GeocoderURL == "" {
		return fmt.Errorf("GEOCODER_URL cannot be empty")
	}
	if c.ChartEngineURL == "" {
		return fmt.Errorf("CHART_ENGINE_URL cannot be empty")
	}
	if c.RasterURL == "" {
		return fmt.Errorf("RASTER_URL cannot be empty")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// SlogLevel maps the configured log level to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}
