package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keyhub.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":3456" {
		t.Errorf("addr = %q, want :3456", cfg.Server.Addr)
	}
	if cfg.Database.DSN != "keyhub.db" {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
	if cfg.Checker.Schedule != "0 * * * *" {
		t.Errorf("schedule = %q", cfg.Checker.Schedule)
	}
	if !cfg.Checker.IsEnabled() {
		t.Error("checker should default to enabled")
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9999"
  read_timeout: 10s
database:
  dsn: ":memory:"
checker:
  schedule: "*/5 * * * *"
  enabled: false
logging:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("read_timeout = %v", cfg.Server.ReadTimeout)
	}
	if cfg.Database.DSN != ":memory:" {
		t.Errorf("dsn = %q", cfg.Database.DSN)
	}
	if cfg.Checker.IsEnabled() {
		t.Error("checker should be disabled")
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	// Unset fields keep their defaults.
	if cfg.Server.WriteTimeout != 300*time.Second {
		t.Errorf("write_timeout = %v, want default", cfg.Server.WriteTimeout)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/does/not/exist.yaml"); err == nil {
		t.Error("missing file should fail")
	}
}

func TestEnvExpansion(t *testing.T) {
	t.Setenv("KEYHUB_TEST_DSN", "/data/keyhub.db")
	path := writeConfig(t, "database:\n  dsn: ${KEYHUB_TEST_DSN}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.DSN != "/data/keyhub.db" {
		t.Errorf("dsn = %q, want expanded value", cfg.Database.DSN)
	}
}

func TestEnvExpansionUnsetKept(t *testing.T) {
	path := writeConfig(t, "database:\n  dsn: ${KEYHUB_UNSET_VAR}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.DSN != "${KEYHUB_UNSET_VAR}" {
		t.Errorf("dsn = %q, want literal placeholder kept", cfg.Database.DSN)
	}
}

func TestPortOverride(t *testing.T) {
	t.Setenv("PORT", "8123")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":8123" {
		t.Errorf("addr = %q, want :8123", cfg.Server.Addr)
	}
}
