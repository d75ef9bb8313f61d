package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/varoOP/shinkrolist/internal/domain"
	"github.com/varoOP/shinkrolist/internal/jikan"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "SHINKROLIST"

// SetDefaults registers the default of every key and maps nested keys to
// environment variables, so catalog.base_url reads SHINKROLIST_CATALOG_BASE_URL.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("catalog.base_url", jikan.DefaultBaseURL)
	v.SetDefault("catalog.timeout", 10*time.Second)
	v.SetDefault("cache.fresh_for", 5*time.Minute)
	v.SetDefault("cache.sweep_interval", 10*time.Minute)
	v.SetDefault("database.driver", string(domain.StoreDriverSQLite))
	v.SetDefault("database.dir", ".")
	v.SetDefault("auth.token_ttl", 720*time.Hour)
	v.SetDefault("list.page_size", 10)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load loads configuration from multiple sources:
// 1. Config file (config.yaml or $HOME/.shinkrolist.yaml, optional)
// 2. Environment variables (SHINKROLIST_*)
// 3. Defaults from SetDefaults
func Load() (*domain.Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*domain.Config, error) {
	cfg := &domain.Config{
		CatalogBaseURL:    v.GetString("catalog.base_url"),
		CatalogTimeout:    v.GetDuration("catalog.timeout"),
		CacheFreshFor:     v.GetDuration("cache.fresh_for"),
		CacheSweepEvery:   v.GetDuration("cache.sweep_interval"),
		DatabaseDriver:    domain.StoreDriver(strings.ToLower(v.GetString("database.driver"))),
		DatabaseDSN:       v.GetString("database.dsn"),
		DatabaseDir:       v.GetString("database.dir"),
		AuthSecret:        v.GetString("auth.secret"),
		AuthToken:         v.GetString("auth.token"),
		AuthTokenTTL:      v.GetDuration("auth.token_ttl"),
		ListPageSize:      v.GetInt("list.page_size"),
		ServerAddr:        v.GetString("server.addr"),
		DiscordWebhookURL: v.GetString("discord_webhook_url"),
		LogLevel:          v.GetString("log_level"),
	}

	if cfg.CatalogBaseURL == "" {
		cfg.CatalogBaseURL = jikan.DefaultBaseURL
	}

	switch cfg.DatabaseDriver {
	case domain.StoreDriverSQLite:
		if cfg.DatabaseDir == "" {
			cfg.DatabaseDir = "."
		}
	case domain.StoreDriverPostgres:
		if cfg.DatabaseDSN == "" {
			return nil, fmt.Errorf("database.dsn is required for the postgres driver (set via config.yaml or %s_DATABASE_DSN environment variable)", EnvPrefix)
		}
	case domain.StoreDriverMemory:
	default:
		return nil, fmt.Errorf("invalid database.driver: %s (must be 'sqlite', 'postgres', or 'memory')", cfg.DatabaseDriver)
	}

	if cfg.CatalogTimeout <= 0 {
		return nil, fmt.Errorf("catalog.timeout must be positive, got %s", cfg.CatalogTimeout)
	}
	if cfg.CacheFreshFor < 0 {
		return nil, fmt.Errorf("cache.fresh_for must not be negative, got %s", cfg.CacheFreshFor)
	}
	if cfg.ListPageSize <= 0 {
		return nil, fmt.Errorf("list.page_size must be positive, got %d", cfg.ListPageSize)
	}

	if cfg.AuthSecret != "" && len(cfg.AuthSecret) < 16 {
		return nil, fmt.Errorf("auth.secret must be at least 16 characters")
	}
	if cfg.AuthToken != "" && cfg.AuthSecret == "" {
		return nil, fmt.Errorf("auth.token is set but auth.secret is empty (set via config.yaml or %s_AUTH_SECRET environment variable)", EnvPrefix)
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("invalid log_level: %s", cfg.LogLevel)
	}

	return cfg, nil
}
