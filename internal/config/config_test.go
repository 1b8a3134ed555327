package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validOwner = "0x00000000000000000000000000000000000000AA"
const validCustody = "0x00000000000000000000000000000000000000CC"

func validConfig() Config {
	cfg := Defaults()
	cfg.Core.Owner = validOwner
	cfg.Core.Custody = validCustody
	return cfg
}

func TestDefaults_ValidOnceAddressesSet(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidate_MissingOwner(t *testing.T) {
	cfg := validConfig()
	cfg.Core.Owner = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for empty owner")
	}
	if !strings.Contains(err.Error(), "owner") {
		t.Errorf("error should mention owner: %v", err)
	}
}

func TestValidate_BadCustodyAddress(t *testing.T) {
	cfg := validConfig()
	cfg.Core.Custody = "not-hex"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid custody address")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "shout"
	cfg.Persistence.BatchSize = 0
	cfg.Metrics.Addr = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"log_level", "batch_size", "metrics"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s: %v", want, err)
		}
	}
}

func TestLoad_TOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
log_level = "debug"

[server]
addr = ":9999"
submit_timeout = "3s"

[core]
owner = "` + validOwner + `"
custody = "` + validCustody + `"

[persistence]
batch_size = 250
flush_timeout = "25ms"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("addr: got %q", cfg.Server.Addr)
	}
	if cfg.Server.SubmitTimeout.Duration != 3*time.Second {
		t.Errorf("submit_timeout: got %v", cfg.Server.SubmitTimeout.Duration)
	}
	if cfg.Persistence.BatchSize != 250 {
		t.Errorf("batch_size: got %d", cfg.Persistence.BatchSize)
	}
	if cfg.Persistence.FlushTimeout.Duration != 25*time.Millisecond {
		t.Errorf("flush_timeout: got %v", cfg.Persistence.FlushTimeout.Duration)
	}
	// Untouched sections keep defaults
	if cfg.Database.Port != 5432 {
		t.Errorf("database port default: got %d", cfg.Database.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate after load: %v", err)
	}
}

func TestLoad_EnvOverridesBeatFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[core]
owner = "` + validOwner + `"
custody = "` + validCustody + `"

[nats]
url = "nats://file:4222"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("RAINFUND_NATS_URL", "nats://env:4222")
	t.Setenv("RAINFUND_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("RAINFUND_FAUCET_ENABLED", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NATS.URL != "nats://env:4222" {
		t.Errorf("nats url: got %q", cfg.NATS.URL)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("cors origins: got %v", cfg.Server.CORSOrigins)
	}
	if !cfg.Faucet.Enabled {
		t.Error("faucet should be enabled via env")
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr: got %q", cfg.Server.Addr)
	}
}

func TestConnString(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, Database: "rainfund", User: "u", Password: "p", SSLMode: "require"}
	got := d.ConnString()
	want := "host=db port=5433 dbname=rainfund user=u password=p sslmode=require"
	if got != want {
		t.Errorf("conn string:\n got %q\nwant %q", got, want)
	}

	d.DSN = "postgres://u:p@db/rainfund"
	if d.ConnString() != d.DSN {
		t.Errorf("dsn should take precedence, got %q", d.ConnString())
	}
}
