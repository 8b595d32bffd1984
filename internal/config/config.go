// Package config provides configuration management for StageZero.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all StageZero configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Redis      RedisConfig      `yaml:"redis"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Artifacts  ArtifactsConfig  `yaml:"artifacts"`
	Delivery   DeliveryConfig   `yaml:"delivery"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	RateLimit       RateLimit     `yaml:"rate_limit"`
}

// RateLimit holds request throttling settings for the analysis endpoints.
type RateLimit struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// RedisConfig holds Redis connection settings. Redis backs the
// latest-report cache and the rate limiter; the service runs without it.
type RedisConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Addr        string        `yaml:"addr"`
	PasswordEnv string        `yaml:"password_env"`
	DB          int           `yaml:"db"`
	PoolSize    int           `yaml:"pool_size"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// CorpusConfig holds technique corpus settings.
type CorpusConfig struct {
	Path string `yaml:"path"`
}

// ClassifierConfig holds classification engine settings.
type ClassifierConfig struct {
	Workers      int `yaml:"workers"`       // 0 = one per CPU
	ExcerptBytes int `yaml:"excerpt_bytes"` // raw text kept per record in artifacts
}

// ArtifactsConfig holds handoff artifact settings.
type ArtifactsConfig struct {
	Dir       string `yaml:"dir"`
	UploadDir string `yaml:"upload_dir"`
}

// DeliveryConfig holds Watsonx delivery settings.
type DeliveryConfig struct {
	Enabled   bool          `yaml:"enabled"`
	BaseURL   string        `yaml:"base_url"`
	ProjectID string        `yaml:"project_id"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Default returns sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxUploadBytes:  256 * 1024 * 1024,
			RateLimit: RateLimit{
				Enabled:           false,
				RequestsPerMinute: 30,
			},
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 1 * time.Hour,
		},
		Corpus: CorpusConfig{
			Path: "mitre_data/enterprise-attack.json",
		},
		Classifier: ClassifierConfig{
			Workers:      0,
			ExcerptBytes: 4096,
		},
		Artifacts: ArtifactsConfig{
			Dir:       "artifacts",
			UploadDir: "uploaded_logs",
		},
		Delivery: DeliveryConfig{
			Enabled:   false,
			BaseURL:   "https://eu-de.ml.cloud.ibm.com",
			APIKeyEnv: "WATSONX_API_KEY",
			Timeout:   30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
