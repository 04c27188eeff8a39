// Package config loads the engine configuration from a YAML file and
// QENGINE_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/syssam/qengine/dialect"
	"github.com/syssam/qengine/schema"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// QENGINE_DATASOURCE_DSN overrides datasource.dsn.
const EnvPrefix = "QENGINE"

// Config holds the engine configuration.
type Config struct {
	Datasource Datasource `mapstructure:"datasource"`
	Cache      Cache      `mapstructure:"cache"`
	Request    Request    `mapstructure:"request"`
	Log        Log        `mapstructure:"log"`
}

// Datasource configures the database.
type Datasource struct {
	// Driver is one of postgres, mysql or sqlite.
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	// RelationMode is foreignKeys or emulated.
	RelationMode       string        `mapstructure:"relation_mode"`
	MaxOpenConns       int           `mapstructure:"max_open_conns"`
	MaxIdleConns       int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `mapstructure:"conn_max_lifetime"`
	StatementTimeout   time.Duration `mapstructure:"statement_timeout"`
	SlowQueryThreshold time.Duration `mapstructure:"slow_query_threshold"`
	Debug              bool          `mapstructure:"debug"`
}

// Cache configures the read cache.
type Cache struct {
	Enabled bool          `mapstructure:"enabled"`
	Size    int           `mapstructure:"size"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// Request configures the request handler.
type Request struct {
	Addr        string `mapstructure:"addr"`
	Concurrency int    `mapstructure:"concurrency"`
}

// Log configures logging.
type Log struct {
	// Level is debug, info, warn or error.
	Level string `mapstructure:"level"`
	// Format is text or json.
	Format string `mapstructure:"format"`
}

var defaults = map[string]any{
	"datasource.driver":               dialect.SQLite,
	"datasource.dsn":                  "file:qengine.db?_pragma=foreign_keys(1)",
	"datasource.relation_mode":        "foreignKeys",
	"datasource.max_open_conns":       0,
	"datasource.max_idle_conns":       2,
	"datasource.conn_max_lifetime":    "0s",
	"datasource.statement_timeout":    "0s",
	"datasource.slow_query_threshold": "200ms",
	"datasource.debug":                false,
	"cache.enabled":                   false,
	"cache.size":                      4096,
	"cache.ttl":                       "1m",
	"request.addr":                    ":4466",
	"request.concurrency":             8,
	"log.level":                       "info",
	"log.format":                      "text",
}

// Load reads the configuration file at path, or qengine.yaml in the working
// directory if path is empty. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("qengine")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}
	return decode(v)
}

// Read reads a YAML configuration from r.
func Read(r io.Reader) (*Config, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	switch c.Datasource.Driver {
	case dialect.Postgres, dialect.MySQL, dialect.SQLite:
	default:
		return fmt.Errorf("config: unsupported datasource driver %q", c.Datasource.Driver)
	}
	if c.Datasource.DSN == "" {
		return errors.New("config: datasource dsn is required")
	}
	if _, err := c.Datasource.Mode(); err != nil {
		return err
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("config: unsupported log format %q", c.Log.Format)
	}
	if c.Cache.Enabled && c.Cache.TTL < 0 {
		return errors.New("config: cache ttl must not be negative")
	}
	return nil
}

// Mode returns the relation mode of the datasource.
func (d Datasource) Mode() (schema.RelationMode, error) {
	mode, err := schema.ParseRelationMode(d.RelationMode)
	if err != nil {
		return 0, fmt.Errorf("config: %w", err)
	}
	return mode, nil
}

// SlogLevel returns the slog level of the configuration.
func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("config: log level: %w", err)
	}
	return level, nil
}

// Logger returns a logger writing to w in the configured format and level.
func (l Log) Logger(w io.Writer) *slog.Logger {
	level, err := l.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
