package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "huddle.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resolved != path {
		t.Fatalf("unexpected path %q", resolved)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}

	def := Default()
	if cfg.Realtime.URL != def.Realtime.URL || cfg.Realtime.MaxReconnectAttempts != 5 || cfg.Realtime.ReconnectBaseDelay != time.Second {
		t.Fatalf("unexpected realtime config: %+v", cfg.Realtime)
	}
	if cfg.API.HistoryPageSize != 20 || cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadFileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	data := []byte(`
log_level: debug
realtime:
  url: ws://file/ws
  reconnect_base_delay: 2s
api:
  history_page_size: 50
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("HUDDLE_REALTIME_URL", "ws://env/ws")
	t.Setenv("HUDDLE_SERVER_JWT_SECRET", "from-env")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Fatalf("file value lost: %q", cfg.LogLevel)
	}
	if cfg.Realtime.URL != "ws://env/ws" {
		t.Fatalf("env must override file, got %q", cfg.Realtime.URL)
	}
	if cfg.Realtime.ReconnectBaseDelay != 2*time.Second {
		t.Fatalf("duration not decoded: %s", cfg.Realtime.ReconnectBaseDelay)
	}
	if cfg.API.HistoryPageSize != 50 {
		t.Fatalf("file value lost: %d", cfg.API.HistoryPageSize)
	}
	if cfg.Server.JWTSecret != "from-env" {
		t.Fatalf("env for a key absent from the file was ignored: %q", cfg.Server.JWTSecret)
	}
	if cfg.Realtime.MaxReconnectAttempts != 5 {
		t.Fatalf("default lost: %d", cfg.Realtime.MaxReconnectAttempts)
	}
}

func TestResolveConfigPathFromEnv(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "conf")
	t.Setenv("HUDDLE_CONFIG_DEFAULT_PATH", dir)

	if got := resolveConfigPath(""); got != filepath.Join(dir, "huddle.yaml") {
		t.Fatalf("unexpected path %q", got)
	}
	if got := resolveConfigPath("/explicit.yaml"); got != "/explicit.yaml" {
		t.Fatalf("explicit path ignored: %q", got)
	}
}
