package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := parse([]byte(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected default port 8000, got %d", cfg.Server.Port)
	}
	if cfg.Remote.Enabled {
		t.Error("expected remote disabled by default")
	}
	if cfg.Remote.Key != "slovolov:configs" {
		t.Errorf("unexpected default remote key %q", cfg.Remote.Key)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default level info, got %q", cfg.Logging.Level)
	}
}

func TestParseOverrides(t *testing.T) {
	data := []byte(`
output:
  data_dir: /tmp/slovolov
remote:
  enabled: true
  addr: redis.internal:6379
server:
  port: 9090
logging:
  level: debug
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GetDataDir() != "/tmp/slovolov" {
		t.Errorf("expected /tmp/slovolov, got %q", cfg.GetDataDir())
	}
	if !cfg.Remote.Enabled || cfg.Remote.Addr != "redis.internal:6379" {
		t.Errorf("remote not parsed: %+v", cfg.Remote)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected level debug, got %q", cfg.Logging.Level)
	}
}

func TestParseInvalidYAML(t *testing.T) {
	if _, err := parse([]byte("server: [not a map")); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestDefaultConfigYAMLParses(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("default config does not parse: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
}

func TestResolveConfigPathExplicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 1234\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	resolved, err := ResolveConfigPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved != path {
		t.Errorf("expected %q, got %q", path, resolved)
	}

	if _, err := ResolveConfigPath(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit path")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 4321\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4321 {
		t.Errorf("expected port 4321, got %d", cfg.Server.Port)
	}
}
