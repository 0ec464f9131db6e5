package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env         string            `yaml:"env"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	NATS        NATSConfig        `yaml:"nats"`
	Server      ServerConfig      `yaml:"server"`
	Pools       map[string]string `yaml:"pools"`  // pool id -> display name
	Quotes      map[string]string `yaml:"quotes"` // asset -> USD price, decimal string
	Resolutions ResolutionsConfig `yaml:"resolutions"`
}

type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	MaxOpenConns   int    `yaml:"maxOpenConns"`
	BatchSize      int    `yaml:"batchSize"`
	FlushTimeoutMs int    `yaml:"flushTimeoutMs"`
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type ServerConfig struct {
	GRPCAddr string `yaml:"grpcAddr"`
	HTTPAddr string `yaml:"httpAddr"`
}

// ResolutionsConfig lists bucket widths in seconds per series family.
type ResolutionsConfig struct {
	Trade   []int64 `yaml:"trade"`
	Carry   []int64 `yaml:"carry"`
	Funding []int64 `yaml:"funding"`
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides connection fields from
// env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("PERP_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("PERP_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	return cfg, Validate(cfg)
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Postgres.MaxOpenConns == 0 {
		cfg.Postgres.MaxOpenConns = 10
	}
	if cfg.Postgres.BatchSize == 0 {
		cfg.Postgres.BatchSize = 100
	}
	if cfg.Postgres.FlushTimeoutMs == 0 {
		cfg.Postgres.FlushTimeoutMs = 500
	}
	if cfg.Server.GRPCAddr == "" {
		cfg.Server.GRPCAddr = ":9090"
	}
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = ":8080"
	}
	if len(cfg.Resolutions.Trade) == 0 {
		cfg.Resolutions.Trade = []int64{900, 3600, 86400, 604800}
	}
	if len(cfg.Resolutions.Carry) == 0 {
		cfg.Resolutions.Carry = []int64{3600, 86400}
	}
	if len(cfg.Resolutions.Funding) == 0 {
		cfg.Resolutions.Funding = []int64{60, 3600}
	}
}

// Validate ensures required fields are present and well formed.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required (or PERP_POSTGRES_DSN)")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required (or PERP_NATS_URL)")
	}
	if cfg.Postgres.BatchSize <= 0 {
		return errors.New("postgres.batchSize must be > 0")
	}
	if cfg.Postgres.FlushTimeoutMs <= 0 {
		return errors.New("postgres.flushTimeoutMs must be > 0")
	}
	for family, widths := range map[string][]int64{
		"trade":   cfg.Resolutions.Trade,
		"carry":   cfg.Resolutions.Carry,
		"funding": cfg.Resolutions.Funding,
	} {
		for _, w := range widths {
			if w <= 0 {
				return fmt.Errorf("resolutions.%s entries must be > 0, got %d", family, w)
			}
		}
	}
	for asset, price := range cfg.Quotes {
		if _, err := decimal.NewFromString(price); err != nil {
			return fmt.Errorf("quotes.%s: invalid decimal %q", asset, price)
		}
	}
	return nil
}

// QuotePrices parses the quotes table into decimals. Call after Validate.
func (c AppConfig) QuotePrices() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(c.Quotes))
	for asset, price := range c.Quotes {
		d, err := decimal.NewFromString(price)
		if err != nil {
			continue
		}
		out[asset] = d
	}
	return out
}
