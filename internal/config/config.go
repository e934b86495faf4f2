// Package config loads bot settings from code defaults, an optional TOML file
// and the environment, in that order of precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Supported storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Secrets read from the environment. They are never taken from the TOML file.
const (
	EnvDiscordToken = "DISCORD_TOKEN"
	EnvRiotAPIKey   = "RIOT_API_KEY"
	EnvDatabaseDSN  = "DATABASE_DSN"
)

var (
	ErrMissingSecret = errors.New("missing secret")
	ErrInvalid       = errors.New("invalid config")
)

type Config struct {
	Discord Discord `koanf:"discord"`
	Riot    Riot    `koanf:"riot"`
	Storage Storage `koanf:"storage"`
	Cache   Cache   `koanf:"cache"`
	Link    Link    `koanf:"link"`
	Admin   Admin   `koanf:"admin"`
	Log     Log     `koanf:"log"`
}

type Discord struct {
	Token          string        `koanf:"-"`
	CommandTimeout time.Duration `koanf:"command_timeout"`
}

type Riot struct {
	APIKey            string        `koanf:"-"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Timeout           time.Duration `koanf:"timeout"`
}

type Storage struct {
	Driver   string `koanf:"driver"`    // postgres or sqlite
	DSN      string `koanf:"-"`         // postgres connection string
	Path     string `koanf:"path"`      // sqlite database file
	MaxConns int    `koanf:"max_conns"` // pool bound; callers queue beyond it
}

type Cache struct {
	LinkTTL time.Duration `koanf:"link_ttl"`
}

type Link struct {
	PerUserBurst    int           `koanf:"per_user_burst"`
	PerUserInterval time.Duration `koanf:"per_user_interval"`
}

type Admin struct {
	Addr           string        `koanf:"addr"`            // gRPC health listener, empty disables
	MetricsAddr    string        `koanf:"metrics_addr"`    // Prometheus listener, empty disables
	HealthInterval time.Duration `koanf:"health_interval"` // store ping period
	Reflection     bool          `koanf:"reflection"`
}

type Log struct {
	Debug bool `koanf:"debug"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Discord: Discord{CommandTimeout: 15 * time.Second},
		Riot:    Riot{RequestsPerSecond: 20, Timeout: 10 * time.Second},
		Storage: Storage{Driver: DriverPostgres, Path: "data/riotlink.db", MaxConns: 5},
		Cache:   Cache{LinkTTL: time.Hour},
		Link:    Link{PerUserBurst: 3, PerUserInterval: time.Minute},
		Admin:   Admin{Addr: ":8081", MetricsAddr: ":9090", HealthInterval: 15 * time.Second},
	}
}

// Load merges defaults, the TOML file at path (skipped when empty) and the
// environment, including a .env file in the working directory if present.
// The result is not validated; call Validate after applying flag overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		if err := k.Unmarshal("", cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	_ = godotenv.Load()
	ApplyEnv(cfg, os.Getenv)
	return cfg, nil
}

// ApplyEnv copies secrets from getenv into cfg. Empty values are ignored.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv(EnvDiscordToken); v != "" {
		cfg.Discord.Token = v
	}
	if v := getenv(EnvRiotAPIKey); v != "" {
		cfg.Riot.APIKey = v
	}
	if v := getenv(EnvDatabaseDSN); v != "" {
		cfg.Storage.DSN = v
	}
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	switch {
	case c.Discord.Token == "":
		return fmt.Errorf("%w: %s", ErrMissingSecret, EnvDiscordToken)
	case c.Riot.APIKey == "":
		return fmt.Errorf("%w: %s", ErrMissingSecret, EnvRiotAPIKey)
	case c.Storage.Driver != DriverPostgres && c.Storage.Driver != DriverSQLite:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalid, c.Storage.Driver)
	case c.Storage.Driver == DriverPostgres && c.Storage.DSN == "":
		return fmt.Errorf("%w: %s", ErrMissingSecret, EnvDatabaseDSN)
	case c.Storage.Driver == DriverSQLite && c.Storage.Path == "":
		return fmt.Errorf("%w: storage.path is required for sqlite", ErrInvalid)
	case c.Storage.MaxConns <= 0:
		return fmt.Errorf("%w: storage.max_conns must be positive", ErrInvalid)
	case c.Cache.LinkTTL <= 0:
		return fmt.Errorf("%w: cache.link_ttl must be positive", ErrInvalid)
	case c.Link.PerUserBurst <= 0 || c.Link.PerUserInterval <= 0:
		return fmt.Errorf("%w: link.per_user_burst and link.per_user_interval must be positive", ErrInvalid)
	case c.Riot.RequestsPerSecond <= 0:
		return fmt.Errorf("%w: riot.requests_per_second must be positive", ErrInvalid)
	case c.Discord.CommandTimeout <= 0:
		return fmt.Errorf("%w: discord.command_timeout must be positive", ErrInvalid)
	}
	return nil
}
