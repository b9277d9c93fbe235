package config

import (
	"fmt"
	"time"

	"github.com/vietddude/hotstore/internal/hot/schema"
	"github.com/vietddude/hotstore/internal/indexing/reorg"
	redisclient "github.com/vietddude/hotstore/internal/infra/redis"
	"github.com/vietddude/hotstore/internal/infra/storage/sqlstore"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database sqlstore.Config    `yaml:"database"`
	Reorg    reorg.Config       `yaml:"reorg"`
	Stats    StatsConfig        `yaml:"stats"`
	Entities []EntityConfig     `yaml:"entities"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// StatsConfig controls the hot-block statistics refresher.
type StatsConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// EntityConfig declares one tracked entity table.
type EntityConfig struct {
	Name       string         `yaml:"name"`
	Table      string         `yaml:"table"`
	PrimaryKey string         `yaml:"primary_key"`
	Columns    []ColumnConfig `yaml:"columns"`
}

// ColumnConfig declares one non-key column.
type ColumnConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"` // text, int, float, bool, binary, json
}

// RedisEnabled reports whether a Redis URL was configured.
func (c *AppConfig) RedisEnabled() bool {
	return c.Redis.URL != ""
}

// Registry builds the schema registry from the entity declarations.
func (c *AppConfig) Registry() (*schema.Registry, error) {
	entities := make([]schema.Entity, 0, len(c.Entities))
	for _, ec := range c.Entities {
		e := schema.Entity{
			Name:       ec.Name,
			Table:      ec.Table,
			PrimaryKey: ec.PrimaryKey,
			Columns:    make([]schema.Column, len(ec.Columns)),
		}
		for i, cc := range ec.Columns {
			kind, err := schema.ParseKind(cc.Kind)
			if err != nil {
				return nil, fmt.Errorf("entity %s column %s: %w", ec.Name, cc.Name, err)
			}
			e.Columns[i] = schema.Column{Name: cc.Name, Kind: kind}
		}
		entities = append(entities, e)
	}

	reg := schema.NewRegistry()
	if err := reg.Register(entities...); err != nil {
		return nil, err
	}
	return reg, nil
}
