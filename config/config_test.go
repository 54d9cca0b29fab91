package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ncstreamer/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:9002" {
		t.Fatalf("addr = %s", cfg.Addr())
	}
	if cfg.Server.Workers < 1 {
		t.Fatalf("workers = %d", cfg.Server.Workers)
	}
	if cfg.Server.WriteTimeout != 10*time.Second {
		t.Fatalf("write timeout = %v", cfg.Server.WriteTimeout)
	}
	if cfg.Log.Path != "remote_server.log" {
		t.Fatalf("log path = %q", cfg.Log.Path)
	}
	if cfg.Quality() != model.Presets["medium"] {
		t.Fatalf("quality = %v", cfg.Quality())
	}
	if cfg.Server.FrameRate != 0 {
		t.Fatalf("frame rate limiter on by default: %v", cfg.Server.FrameRate)
	}
	if cfg.Auth.Enable {
		t.Fatal("auth enabled by default")
	}
	if !cfg.Metrics.Enable {
		t.Fatal("metrics disabled by default")
	}
}

func TestLoadFlags(t *testing.T) {
	cfg, err := Load([]string{
		"--remote-port", "9100",
		"--workers", "3",
		"--in-memory-local-storage",
		"--video-quality", "high",
		"--auth-token", "secret",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9100 || cfg.Server.Workers != 3 {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if !cfg.Storage.InMemory {
		t.Fatal("in-memory storage not set")
	}
	if cfg.Quality() != model.Presets["high"] {
		t.Fatalf("quality = %v", cfg.Quality())
	}
	if !cfg.Auth.Enable || cfg.Auth.Token != "secret" {
		t.Fatalf("auth = %+v", cfg.Auth)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("NCSTREAMER_SERVER_PORT", "9200")
	t.Setenv("NCSTREAMER_STREAMING_DESIGNATED_USER", "alice")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9200 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.Streaming.DesignatedUser != "alice" {
		t.Fatalf("designated user = %q", cfg.Streaming.DesignatedUser)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ncstreamer.yaml")
	data := []byte("server:\n  port: 9300\n  queue_size: 8\nlog:\n  debug: true\nmetrics:\n  enable: false\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9300 || cfg.Server.QueueSize != 8 {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if !cfg.Log.Debug {
		t.Fatal("debug not set from file")
	}
	if cfg.Metrics.Enable {
		t.Fatal("metrics still enabled")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")}); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"port out of range", []string{"--remote-port", "70000"}},
		{"no workers", []string{"--workers", "0"}},
		{"bad quality", []string{"--video-quality", "ultra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.args); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateAuthNeedsToken(t *testing.T) {
	t.Setenv("NCSTREAMER_AUTH_ENABLE", "true")
	if _, err := Load(nil); err == nil {
		t.Fatal("expected error when auth enabled without token")
	}
}
