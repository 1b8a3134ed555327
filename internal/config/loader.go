package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies RAINFUND_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
// An empty path skips the file and uses defaults plus env overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known RAINFUND_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// Server
	setStr(&cfg.Server.Addr, "RAINFUND_SERVER_ADDR")
	setStr(&cfg.Server.APIKey, "RAINFUND_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "RAINFUND_SERVER_CORS_ORIGINS")
	setDuration(&cfg.Server.SubmitTimeout, "RAINFUND_SERVER_SUBMIT_TIMEOUT")

	// Database
	setStr(&cfg.Database.DSN, "RAINFUND_DATABASE_DSN")
	setStr(&cfg.Database.Host, "RAINFUND_DATABASE_HOST")
	setInt(&cfg.Database.Port, "RAINFUND_DATABASE_PORT")
	setStr(&cfg.Database.Database, "RAINFUND_DATABASE_NAME")
	setStr(&cfg.Database.User, "RAINFUND_DATABASE_USER")
	setStr(&cfg.Database.Password, "RAINFUND_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "RAINFUND_DATABASE_SSLMODE")
	setInt(&cfg.Database.MaxOpenConns, "RAINFUND_DATABASE_MAX_OPEN_CONNS")
	setInt(&cfg.Database.MaxIdleConns, "RAINFUND_DATABASE_MAX_IDLE_CONNS")
	setBool(&cfg.Database.RunMigrations, "RAINFUND_DATABASE_RUN_MIGRATIONS")
	setStr(&cfg.Database.MigrationsDir, "RAINFUND_DATABASE_MIGRATIONS_DIR")

	// NATS
	setStr(&cfg.NATS.URL, "RAINFUND_NATS_URL")
	setBool(&cfg.NATS.Enabled, "RAINFUND_NATS_ENABLED")

	// Core
	setStr(&cfg.Core.Owner, "RAINFUND_CORE_OWNER")
	setStr(&cfg.Core.Custody, "RAINFUND_CORE_CUSTODY")
	setInt(&cfg.Core.CommandChannelSize, "RAINFUND_CORE_COMMAND_CHANNEL_SIZE")
	setInt(&cfg.Core.PersistChannelSize, "RAINFUND_CORE_PERSIST_CHANNEL_SIZE")
	setInt(&cfg.Core.ProjectionChannelSize, "RAINFUND_CORE_PROJECTION_CHANNEL_SIZE")
	setInt(&cfg.Core.PublishChannelSize, "RAINFUND_CORE_PUBLISH_CHANNEL_SIZE")

	// Persistence
	setInt(&cfg.Persistence.BatchSize, "RAINFUND_PERSISTENCE_BATCH_SIZE")
	setDuration(&cfg.Persistence.FlushTimeout, "RAINFUND_PERSISTENCE_FLUSH_TIMEOUT")

	// Snapshot
	setBool(&cfg.Snapshot.Enabled, "RAINFUND_SNAPSHOT_ENABLED")
	setDuration(&cfg.Snapshot.Interval, "RAINFUND_SNAPSHOT_INTERVAL")

	// Faucet
	setBool(&cfg.Faucet.Enabled, "RAINFUND_FAUCET_ENABLED")

	// Metrics
	setStr(&cfg.Metrics.Addr, "RAINFUND_METRICS_ADDR")

	// Top-level
	setStr(&cfg.LogLevel, "RAINFUND_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
