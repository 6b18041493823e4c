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

type AdminConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"` // empty disables redis; tokens stay in memory
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type IAPConfig struct {
	APIURL                    string        `yaml:"api_url"`
	AndroidPackageName        string        `yaml:"android_package_name"`
	PremiumLifetimeProductIDs []string      `yaml:"premium_lifetime_product_ids"`
	Workers                   int           `yaml:"workers"`        // update-channel reconciliation fan-out
	UpdateBuffer              int           `yaml:"update_buffer"`  // purchase event channel buffer
	RequestTimeout            time.Duration `yaml:"request_timeout"`
}

type Config struct {
	Log   LogConfig   `yaml:"log"`
	Admin AdminConfig `yaml:"admin"`
	Redis RedisConfig `yaml:"redis"`
	IAP   IAPConfig   `yaml:"iap"`

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
	if cfg.Admin.Port <= 0 {
		cfg.Admin.Port = 8080
	}
	if cfg.IAP.Workers <= 0 {
		cfg.IAP.Workers = 4
	}
	if cfg.IAP.UpdateBuffer <= 0 {
		cfg.IAP.UpdateBuffer = 16
	}
	if cfg.IAP.RequestTimeout <= 0 {
		cfg.IAP.RequestTimeout = 15 * time.Second
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = 24 * time.Hour
	}

	// Minimal validation
	if cfg.IAP.APIURL == "" {
		return nil, errors.New("iap.api_url is required")
	}
	if cfg.IAP.AndroidPackageName == "" {
		return nil, errors.New("iap.android_package_name is required")
	}
	if len(cfg.IAP.PremiumLifetimeProductIDs) == 0 {
		return nil, errors.New("iap.premium_lifetime_product_ids is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}
