// Package config loads tasklist settings from an optional YAML file and the
// TASKLIST_* environment. Environment values win over the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"tasklist/internal/adapters/events"
	"tasklist/internal/auth"
	"tasklist/internal/blob"
	"tasklist/internal/core"
)

// DefaultListenAddr is used when no listen address is configured.
const DefaultListenAddr = ":8080"

// Config is the full server configuration.
type Config struct {
	Listen    string             `yaml:"listen"`
	JWTSecret string             `yaml:"jwt_secret"`
	Storage   core.StorageConfig `yaml:"storage"`
	Blob      blob.Config        `yaml:"blob"`
	Events    events.Config      `yaml:"events"`
	Log       LogConfig          `yaml:"log"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads path (skipped when empty), applies environment overrides, fills
// defaults and validates the result.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decode(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) {
	set := func(dst *string, name string) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
	set(&cfg.Listen, "TASKLIST_LISTEN_ADDR")
	set(&cfg.JWTSecret, "TASKLIST_JWT_SECRET")
	set(&cfg.Log.Level, "TASKLIST_LOG_LEVEL")
	set(&cfg.Log.Format, "TASKLIST_LOG_FORMAT")
	set(&cfg.Events.RedisAddr, "TASKLIST_REDIS_ADDR")
	if v := os.Getenv("TASKLIST_EVENTS_DRIVER"); v != "" {
		cfg.Events.Driver = events.Driver(v)
	}
	if v := os.Getenv("TASKLIST_ALLOWED_ORIGINS"); v != "" {
		cfg.Events.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Events.AllowedOrigins = append(cfg.Events.AllowedOrigins, o)
			}
		}
	}

	storage := core.StorageConfigFromEnv()
	if storage.Driver != "" {
		cfg.Storage.Driver = storage.Driver
	}
	set(&cfg.Storage.SQLitePath, "TASKLIST_SQLITE_PATH")
	set(&cfg.Storage.PostgresDSN, "TASKLIST_POSTGRES_DSN")

	b := blob.ConfigFromEnv()
	if b.Driver != "" {
		cfg.Blob.Driver = b.Driver
	}
	set(&cfg.Blob.FSRoot, "TASKLIST_BLOB_FS_ROOT")
	set(&cfg.Blob.S3.Bucket, "TASKLIST_BLOB_S3_BUCKET")
	set(&cfg.Blob.S3.Region, "TASKLIST_BLOB_S3_REGION")
	set(&cfg.Blob.S3.Endpoint, "TASKLIST_BLOB_S3_ENDPOINT")
	set(&cfg.Blob.S3.AccessKeyID, "TASKLIST_BLOB_S3_ACCESS_KEY_ID")
	set(&cfg.Blob.S3.SecretAccessKey, "TASKLIST_BLOB_S3_SECRET_ACCESS_KEY")
	if b.S3.PathStyle {
		cfg.Blob.S3.PathStyle = true
	}
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListenAddr
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = core.StorageSQLite
	}
	if c.Blob.Driver == "" {
		c.Blob.Driver = blob.DriverFilesystem
	}
	if c.Events.Driver == "" {
		c.Events.Driver = events.DriverMemory
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate rejects weak secrets and unknown drivers.
func (c Config) Validate() error {
	if err := auth.ValidateSecret([]byte(c.JWTSecret)); err != nil {
		return fmt.Errorf("jwt_secret: %w", err)
	}
	switch c.Storage.Driver {
	case core.StorageMemory, core.StorageSQLite, core.StoragePostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == core.StoragePostgres && c.Storage.PostgresDSN == "" {
		return errors.New("storage.postgres_dsn is required for the postgres driver")
	}
	switch c.Blob.Driver {
	case blob.DriverFilesystem, blob.DriverS3, blob.DriverMemory:
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	if c.Blob.Driver == blob.DriverS3 && c.Blob.S3.Bucket == "" {
		return errors.New("blob.s3.bucket is required for the s3 driver")
	}
	switch c.Events.Driver {
	case events.DriverMemory, events.DriverRedis:
	default:
		return fmt.Errorf("unknown events driver %q", c.Events.Driver)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return lvl, nil
}

// NewLogger builds the slog logger described by lc, writing to w.
func NewLogger(lc LogConfig, w io.Writer) *slog.Logger {
	lvl, err := parseLevel(lc.Level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(lc.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
