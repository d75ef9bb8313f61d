package domain

import "time"

// StoreDriver selects the backend holding personal status records.
type StoreDriver string

const (
	// StoreDriverSQLite stores records in a local sqlite file (default)
	StoreDriverSQLite StoreDriver = "sqlite"
	// StoreDriverPostgres stores records in a hosted postgres database
	StoreDriverPostgres StoreDriver = "postgres"
	// StoreDriverMemory keeps records in memory for the life of the process
	StoreDriverMemory StoreDriver = "memory"
)

type Config struct {
	CatalogBaseURL    string        `toml:"catalog_base_url" mapstructure:"catalog_base_url"`
	CatalogTimeout    time.Duration `toml:"catalog_timeout" mapstructure:"catalog_timeout"`
	CacheFreshFor     time.Duration `toml:"cache_fresh_for" mapstructure:"cache_fresh_for"`
	CacheSweepEvery   time.Duration `toml:"cache_sweep_interval" mapstructure:"cache_sweep_interval"`
	DatabaseDriver    StoreDriver   `toml:"database_driver" mapstructure:"database_driver"`
	DatabaseDSN       string        `toml:"database_dsn" mapstructure:"database_dsn"`
	DatabaseDir       string        `toml:"database_dir" mapstructure:"database_dir"`
	AuthSecret        string        `toml:"auth_secret" mapstructure:"auth_secret"`
	AuthToken         string        `toml:"auth_token" mapstructure:"auth_token"`
	AuthTokenTTL      time.Duration `toml:"auth_token_ttl" mapstructure:"auth_token_ttl"`
	ListPageSize      int           `toml:"list_page_size" mapstructure:"list_page_size"`
	ServerAddr        string        `toml:"server_addr" mapstructure:"server_addr"`
	DiscordWebhookURL string        `toml:"discord_webhook_url" mapstructure:"discord_webhook_url"`
	LogLevel          string        `toml:"log_level" mapstructure:"log_level"`
}
