// Package config loads service settings with precedence
// file > environment > defaults. Environment variables use the SEIAC_
// prefix (SEIAC_LISTEN_ADDR, SEIAC_DATABASE_PATH, ...); a .env file in the
// working directory is honored when present.
package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config holds every runtime setting.
type Config struct {
	ListenAddr   string        `mapstructure:"listen_addr"`
	DatabasePath string        `mapstructure:"database_path"`
	LogLevel     string        `mapstructure:"log_level"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// MessageTTL applies to publishes that do not choose their own TTL.
	MessageTTL time.Duration `mapstructure:"message_ttl"`
	// BlockMinutes applies to blocks that do not choose a duration.
	BlockMinutes int `mapstructure:"block_minutes"`
	// PollInterval is the tick of the websocket live feed.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// SweepInterval drives the periodic housekeeping sweep; 0 disables it,
	// leaving expiry purely lazy.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// Load reads configuration from an optional file plus environment.
func Load(path string) (*Config, error) {
	// .env is a convenience for local development; missing is fine
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, errors.Wrap(err, "loading .env")
		}
	}

	v := viper.New()
	v.SetDefault("listen_addr", "0.0.0.0:8080")
	v.SetDefault("database_path", "./seiac-live.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("read_timeout", 30*time.Second)
	v.SetDefault("write_timeout", 30*time.Second)
	v.SetDefault("message_ttl", 90*time.Second)
	v.SetDefault("block_minutes", 10)
	v.SetDefault("poll_interval", 3*time.Second)
	v.SetDefault("sweep_interval", 5*time.Minute)

	v.SetEnvPrefix("SEIAC")
	v.AutomaticEnv()
	// bind explicitly: AutomaticEnv alone does not surface keys in Unmarshal
	for _, key := range []string{
		"listen_addr", "database_path", "log_level", "read_timeout",
		"write_timeout", "message_ttl", "block_minutes", "poll_interval",
		"sweep_interval",
	} {
		_ = v.BindEnv(key)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config file %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshaling config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen_addr cannot be empty")
	}
	if c.DatabasePath == "" {
		return errors.New("database_path cannot be empty")
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return errors.New("http timeouts must be positive")
	}
	if c.MessageTTL <= 0 {
		return errors.New("message_ttl must be positive")
	}
	if c.BlockMinutes < 1 {
		return errors.New("block_minutes must be at least 1")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}
	if c.SweepInterval < 0 {
		return errors.New("sweep_interval cannot be negative")
	}
	return nil
}
