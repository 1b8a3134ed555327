// Package config defines the top-level configuration for the ledger
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by RAINFUND_* environment
// variables.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Database    DatabaseConfig    `toml:"database"`
	NATS        NATSConfig        `toml:"nats"`
	Core        CoreConfig        `toml:"core"`
	Persistence PersistenceConfig `toml:"persistence"`
	Snapshot    SnapshotConfig    `toml:"snapshot"`
	Faucet      FaucetConfig      `toml:"faucet"`
	Metrics     MetricsConfig     `toml:"metrics"`
	LogLevel    string            `toml:"log_level"`
}

// ServerConfig holds HTTP API parameters.
type ServerConfig struct {
	Addr          string   `toml:"addr"`
	APIKey        string   `toml:"api_key"`
	CORSOrigins   []string `toml:"cors_origins"`
	SubmitTimeout duration `toml:"submit_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	MaxOpenConns  int    `toml:"max_open_conns"`
	MaxIdleConns  int    `toml:"max_idle_conns"`
	RunMigrations bool   `toml:"run_migrations"`
	MigrationsDir string `toml:"migrations_dir"`
}

// ConnString returns the lib/pq connection string, preferring an explicit
// DSN over the individual host/port fields.
func (d DatabaseConfig) ConnString() string {
	if strings.TrimSpace(d.DSN) != "" {
		return d.DSN
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Database, d.User, d.Password, d.SSLMode)
}

// NATSConfig holds JetStream connection parameters.
type NATSConfig struct {
	URL     string `toml:"url"`
	Enabled bool   `toml:"enabled"`
}

// CoreConfig holds deterministic-core parameters. Owner is the only
// address allowed to change tier prices; Custody receives premium and
// investment pulls and pays claims out.
type CoreConfig struct {
	Owner                 string `toml:"owner"`
	Custody               string `toml:"custody"`
	CommandChannelSize    int    `toml:"command_channel_size"`
	PersistChannelSize    int    `toml:"persist_channel_size"`
	ProjectionChannelSize int    `toml:"projection_channel_size"`
	PublishChannelSize    int    `toml:"publish_channel_size"`
}

// PersistenceConfig holds event-log batch writer parameters.
type PersistenceConfig struct {
	BatchSize    int      `toml:"batch_size"`
	FlushTimeout duration `toml:"flush_timeout"`
}

// SnapshotConfig holds periodic snapshot parameters.
type SnapshotConfig struct {
	Interval duration `toml:"interval"`
	Enabled  bool     `toml:"enabled"`
}

// FaucetConfig controls the dev-only mint endpoint.
type FaucetConfig struct {
	Enabled bool `toml:"enabled"`
}

// MetricsConfig holds the Prometheus/health listener parameters.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder
// can parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:          ":8080",
			CORSOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
			SubmitTimeout: duration{10 * time.Second},
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "rainfund",
			User:          "postgres",
			SSLMode:       "disable",
			MaxOpenConns:  10,
			MaxIdleConns:  2,
			RunMigrations: true,
			MigrationsDir: "migrations",
		},
		NATS: NATSConfig{
			URL:     "nats://localhost:4222",
			Enabled: true,
		},
		Core: CoreConfig{
			CommandChannelSize:    256,
			PersistChannelSize:    1024,
			ProjectionChannelSize: 2048,
			PublishChannelSize:    1024,
		},
		Persistence: PersistenceConfig{
			BatchSize:    100,
			FlushTimeout: duration{50 * time.Millisecond},
		},
		Snapshot: SnapshotConfig{
			Interval: duration{5 * time.Minute},
			Enabled:  true,
		},
		Faucet: FaucetConfig{
			Enabled: false,
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Server.Addr == "" {
		errs = append(errs, "server: addr must not be empty")
	}
	if c.Server.SubmitTimeout.Duration <= 0 {
		errs = append(errs, "server: submit_timeout must be > 0")
	}

	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.MaxOpenConns < 1 {
		errs = append(errs, "database: max_open_conns must be >= 1")
	}
	if c.Database.MaxIdleConns < 0 {
		errs = append(errs, "database: max_idle_conns must be >= 0")
	}
	if c.Database.RunMigrations && c.Database.MigrationsDir == "" {
		errs = append(errs, "database: migrations_dir is required when run_migrations is set")
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "nats: url must not be empty when enabled")
	}

	if c.Core.Owner == "" {
		errs = append(errs, "core: owner address must be set")
	} else if !common.IsHexAddress(c.Core.Owner) {
		errs = append(errs, fmt.Sprintf("core: owner %q is not a valid hex address", c.Core.Owner))
	}
	if c.Core.Custody == "" {
		errs = append(errs, "core: custody address must be set")
	} else if !common.IsHexAddress(c.Core.Custody) {
		errs = append(errs, fmt.Sprintf("core: custody %q is not a valid hex address", c.Core.Custody))
	}
	if c.Core.CommandChannelSize < 1 {
		errs = append(errs, "core: command_channel_size must be >= 1")
	}
	if c.Core.PersistChannelSize < 1 {
		errs = append(errs, "core: persist_channel_size must be >= 1")
	}
	if c.Core.ProjectionChannelSize < 1 {
		errs = append(errs, "core: projection_channel_size must be >= 1")
	}
	if c.Core.PublishChannelSize < 1 {
		errs = append(errs, "core: publish_channel_size must be >= 1")
	}

	if c.Persistence.BatchSize < 1 {
		errs = append(errs, "persistence: batch_size must be >= 1")
	}
	if c.Persistence.FlushTimeout.Duration <= 0 {
		errs = append(errs, "persistence: flush_timeout must be > 0")
	}

	if c.Snapshot.Enabled && c.Snapshot.Interval.Duration <= 0 {
		errs = append(errs, "snapshot: interval must be > 0 when enabled")
	}

	if c.Metrics.Addr == "" {
		errs = append(errs, "metrics: addr must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// OwnerAddress returns the parsed owner address. Call only after Validate.
func (c *Config) OwnerAddress() common.Address {
	return common.HexToAddress(c.Core.Owner)
}

// CustodyAddress returns the parsed custody address. Call only after Validate.
func (c *Config) CustodyAddress() common.Address {
	return common.HexToAddress(c.Core.Custody)
}
