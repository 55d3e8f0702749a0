package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file. Environment variables in the
// file body are expanded before parsing, so secrets stay out of the file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Explorer.PageSize == 0 {
		cfg.Explorer.PageSize = 1000
	}
	if cfg.Explorer.RequestsPerSecond == 0 {
		cfg.Explorer.RequestsPerSecond = 4
	}
	if cfg.Explorer.CacheTTL == 0 {
		cfg.Explorer.CacheTTL = 60 * time.Second
	}
	if cfg.Notes.Kind == 0 {
		cfg.Notes.Kind = 1111
	}
	if cfg.Notes.KeyFile == "" {
		cfg.Notes.KeyFile = "notescan.key"
	}
	if cfg.Ingest.PollInterval == 0 {
		cfg.Ingest.PollInterval = 20 * time.Second
	}
	if cfg.Ingest.WindowSize == 0 {
		cfg.Ingest.WindowSize = 500
	}
	if cfg.Ingest.MaxEventsPerMinute == 0 {
		cfg.Ingest.MaxEventsPerMinute = 12
	}
	if cfg.Ingest.BufferSize == 0 {
		cfg.Ingest.BufferSize = 50
	}
}
