// Package config loads the server configuration from a YAML file, a .env
// file and environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/atmx/ledger-engine/internal/catalog"
	"github.com/atmx/ledger-engine/internal/ledger"
	"github.com/atmx/ledger-engine/internal/store"
)

// Config holds all application configuration.
type Config struct {
	Game struct {
		Teams       int    `yaml:"teams"`
		StarterCash int64  `yaml:"starter_cash"`
		FinalRound  int    `yaml:"final_round"`
		Currency    string `yaml:"currency"`
	} `yaml:"game"`
	Ledger struct {
		Policy string `yaml:"policy"`
	} `yaml:"ledger"`
	Market struct {
		TickCron      string             `yaml:"tick_cron"`
		TicksPerRound int                `yaml:"ticks_per_round"`
		AutoEndRound  bool               `yaml:"auto_end_round"`
		Seed          uint64             `yaml:"seed"`
		Stocks        []catalog.StockDef `yaml:"stocks"`
	} `yaml:"market"`
	Server struct {
		Port     string `yaml:"port"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"server"`
	Database struct {
		URL        string `yaml:"url"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Redis struct {
		URL string        `yaml:"url"`
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"redis"`
}

// Load reads config from a YAML file, then applies .env and environment
// variable overrides and fills defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("LEDGER_POLICY"); v != "" {
		cfg.Ledger.Policy = v
	}
	if v := os.Getenv("TICK_CRON"); v != "" {
		cfg.Market.TickCron = v
	}
	if v := os.Getenv("MARKET_SEED"); v != "" {
		if seed, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Market.Seed = seed
		}
	}
	if v := os.Getenv("GAME_TEAMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Game.Teams = n
		}
	}

	// Defaults
	if cfg.Game.Teams == 0 {
		cfg.Game.Teams = 8
	}
	if cfg.Game.StarterCash == 0 {
		cfg.Game.StarterCash = 10000
	}
	if cfg.Game.FinalRound == 0 {
		cfg.Game.FinalRound = 5
	}
	if cfg.Game.Currency == "" {
		cfg.Game.Currency = "TWD"
	}
	if cfg.Ledger.Policy == "" {
		cfg.Ledger.Policy = string(ledger.PolicyStrict)
	}
	if cfg.Market.TickCron == "" {
		cfg.Market.TickCron = "*/30 * * * * *"
	}
	if cfg.Market.TicksPerRound == 0 {
		cfg.Market.TicksPerRound = 20
	}
	if len(cfg.Market.Stocks) == 0 {
		cfg.Market.Stocks = catalog.DefaultDefs()
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = 30 * time.Second
	}

	return cfg, nil
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	if c.Game.Teams <= 0 {
		return fmt.Errorf("game.teams must be positive")
	}
	if c.Game.StarterCash < 0 {
		return fmt.Errorf("game.starter_cash must not be negative")
	}
	if c.Game.FinalRound <= 0 {
		return fmt.Errorf("game.final_round must be positive")
	}
	if _, err := ledger.ParsePolicy(c.Ledger.Policy); err != nil {
		return fmt.Errorf("ledger.policy: %w", err)
	}
	if c.Market.TicksPerRound <= 0 {
		return fmt.Errorf("market.ticks_per_round must be positive")
	}
	if _, err := c.Catalog(); err != nil {
		return fmt.Errorf("market.stocks: %w", err)
	}
	for i, s := range c.Market.Stocks {
		if len(s.Quarters) < c.Game.FinalRound {
			slog.Warn("stock has fewer quarters than rounds; later rounds drift on noise only",
				"stock", i, "symbol", s.Symbol, "quarters", len(s.Quarters), "rounds", c.Game.FinalRound)
		}
	}
	if c.Redis.URL != "" && c.Database.URL == "" && c.Database.SQLitePath == "" {
		return fmt.Errorf("redis.url needs a primary store (database.url or database.sqlite_path)")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// Policy returns the parsed ledger policy.
func (c *Config) Policy() ledger.Policy {
	p, err := ledger.ParsePolicy(c.Ledger.Policy)
	if err != nil {
		return ledger.PolicyStrict
	}
	return p
}

// Catalog parses the configured stock list.
func (c *Config) Catalog() (*catalog.Catalog, error) {
	return catalog.Parse(c.Market.Stocks)
}

// SlogLevel maps server.log_level onto a slog level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.Server.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("server.log_level: unknown level %q", c.Server.LogLevel)
}

// StoreOptions maps the database and redis sections onto store.Open.
func (c *Config) StoreOptions() store.OpenOptions {
	return store.OpenOptions{
		PostgresURL: c.Database.URL,
		SQLitePath:  c.Database.SQLitePath,
		RedisURL:    c.Redis.URL,
		RedisTTL:    c.Redis.TTL,
	}
}
