// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port       int    `yaml:"port"`
	HMACSecret string `yaml:"hmac_secret"` // verifies the identity tokens minted by the account service
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type GatewayConfig struct {
	BaseURL     string        `yaml:"base_url"`
	AccessToken string        `yaml:"access_token"` // read-only credential for the provider gateway
	Timeout     time.Duration `yaml:"timeout"`
}

type EntitlementConfig struct {
	BaseURL     string        `yaml:"base_url"`
	AccessToken string        `yaml:"access_token"`
	Timeout     time.Duration `yaml:"timeout"`
}

type ConfirmConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`       // scheduled status-check period
	RedirectDelay     time.Duration `yaml:"redirect_delay"`      // delay before signalling the success redirect
	MaxPollChecks     int           `yaml:"max_poll_checks"`     // 0 = poll until dismissed
	SessionLockTTL    time.Duration `yaml:"session_lock_ttl"`    // one active upgrade per user
	ManualCheckLimit  int           `yaml:"manual_check_limit"`  // manual checks allowed per window
	ManualCheckWindow time.Duration `yaml:"manual_check_window"` // rate-limit window
}

type ReconcilerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
	BatchSize  int           `yaml:"batch_size"`
}

type Config struct {
	Log         LogConfig         `yaml:"log"`
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	Entitlement EntitlementConfig `yaml:"entitlement"`
	Confirm     ConfirmConfig     `yaml:"confirm"`
	Reconciler  ReconcilerConfig  `yaml:"reconciler"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Gateway.Timeout <= 0 {
		cfg.Gateway.Timeout = 15 * time.Second
	}
	if cfg.Entitlement.Timeout <= 0 {
		cfg.Entitlement.Timeout = 10 * time.Second
	}
	if cfg.Confirm.PollInterval <= 0 {
		cfg.Confirm.PollInterval = 5 * time.Second
	}
	if cfg.Confirm.RedirectDelay <= 0 {
		cfg.Confirm.RedirectDelay = time.Second
	}
	if cfg.Confirm.SessionLockTTL <= 0 {
		cfg.Confirm.SessionLockTTL = 15 * time.Minute
	}
	if cfg.Confirm.ManualCheckLimit <= 0 {
		cfg.Confirm.ManualCheckLimit = 6
	}
	if cfg.Confirm.ManualCheckWindow <= 0 {
		cfg.Confirm.ManualCheckWindow = time.Minute
	}
	if cfg.Reconciler.Interval <= 0 {
		cfg.Reconciler.Interval = time.Minute
	}
	if cfg.Reconciler.StaleAfter <= 0 {
		cfg.Reconciler.StaleAfter = 10 * time.Minute
	}
	if cfg.Reconciler.BatchSize <= 0 {
		cfg.Reconciler.BatchSize = 200
	}
	// Minimal validation
	if cfg.Server.HMACSecret == "" {
		return nil, errors.New("server.hmac_secret is required")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Gateway.BaseURL == "" {
		return nil, errors.New("gateway.base_url is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
