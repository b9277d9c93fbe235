package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/hotstore/internal/hot/dialect"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "pgx"
	}
	if _, err := dialect.ForDriver(cfg.Database.Driver); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Reorg.MaxDepth == 0 {
		cfg.Reorg.MaxDepth = 100
	}
	if cfg.Reorg.LockTTL == 0 {
		cfg.Reorg.LockTTL = time.Minute
	}
	if cfg.Stats.Interval == 0 {
		cfg.Stats.Interval = 30 * time.Second
	}

	return &cfg, nil
}
