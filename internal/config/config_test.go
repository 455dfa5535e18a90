package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	pkgconfig "casedesk/pkg/config"
)

func writeConfig(t *testing.T, base string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(base), 0o600); err != nil {
		t.Fatal(err)
	}
	return dir
}

func clearOverrides(t *testing.T) {
	for _, key := range []string{"JWT_SECRET", "STORE_DRIVER", "SERVER_PORT", "REDIS_ADDR", "MQ_URL", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}
}

func TestLoadFromDefaults(t *testing.T) {
	clearOverrides(t)
	dir := writeConfig(t, "jwt:\n  secret: abc\n")

	cfg, err := LoadFrom("", dir)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Store.Driver != DriverPostgres {
		t.Errorf("driver = %q, want postgres", cfg.Store.Driver)
	}
	if cfg.Addr() != ":8085" {
		t.Errorf("addr = %q", cfg.Addr())
	}
	if cfg.Notification.SweepInterval() != time.Hour || cfg.Notification.UnreadCacheTTL() != time.Minute {
		t.Errorf("notification = %+v", cfg.Notification)
	}
}

func TestLoadFromEnvironmentOverrides(t *testing.T) {
	clearOverrides(t)
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("SERVER_PORT", ":9000")
	dir := writeConfig(t, `
jwt:
  secret: abc
notification:
  sweep_interval_seconds: 30
  unread_cache_ttl_seconds: 5
`)

	cfg, err := LoadFrom("", dir)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Store.Driver != DriverMemory {
		t.Errorf("driver = %q, want memory", cfg.Store.Driver)
	}
	if cfg.Addr() != ":9000" {
		t.Errorf("addr = %q", cfg.Addr())
	}
	if cfg.Notification.SweepInterval() != 30*time.Second || cfg.Notification.UnreadCacheTTL() != 5*time.Second {
		t.Errorf("notification = %+v", cfg.Notification)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing secret", Config{}},
		{"unsubstituted secret", Config{JWT: pkgconfig.JWTConfig{Secret: "${JWT_SECRET}"}}},
		{"unknown driver", Config{Store: StoreConfig{Driver: "cassandra"}, JWT: pkgconfig.JWTConfig{Secret: "abc"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRepositoryConfigFiles(t *testing.T) {
	clearOverrides(t)
	t.Setenv("DB_PASSWORD", "")

	cfg, err := LoadFrom("local", filepath.Join("..", "..", "config"))
	if err != nil {
		t.Fatalf("LoadFrom(local): %v", err)
	}
	if cfg.Store.Driver != DriverMemory || cfg.Log.Level != "debug" {
		t.Errorf("local config = %+v", cfg)
	}
}
