package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOTFORGE_SERVER_JWT_SECRET", testSecret)

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr != DefaultServerAddr {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, DefaultServerAddr)
	}
	if cfg.Bots.MaxPerOwner != DefaultMaxBotsPerOwner {
		t.Errorf("Bots.MaxPerOwner = %d, want %d", cfg.Bots.MaxPerOwner, DefaultMaxBotsPerOwner)
	}
	if len(cfg.Workspace.Channels) != 4 {
		t.Errorf("Workspace.Channels = %v, want the four default channels", cfg.Workspace.Channels)
	}
	if cfg.BotService.Enabled {
		t.Error("BotService.Enabled = true by default")
	}

	bc := cfg.BotsConfig()
	if bc.MaxBotsPerOwner != 10 || bc.Workspace.InviteCodeLength != 8 || bc.Workspace.ServerNameFormat != "%s的主页" {
		t.Errorf("BotsConfig() = %+v", bc)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
server:
  addr: ":9000"
  jwt_secret: "` + testSecret + `"
bots:
  max_per_owner: 3
workspace:
  channels: ["general", "help"]
botservice:
  enabled: true
  url: "http://bots.internal"
  timeout: 30s
`)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOTFORGE_BOTS_MAX_PER_OWNER", "5")
	t.Setenv("BOTFORGE_LOG_LEVEL", "debug")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr != ":9000" {
		t.Errorf("Server.Addr = %q, want file value", cfg.Server.Addr)
	}
	if cfg.Bots.MaxPerOwner != 5 {
		t.Errorf("Bots.MaxPerOwner = %d, want env value 5", cfg.Bots.MaxPerOwner)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if got := cfg.Workspace.Channels; len(got) != 2 || got[0] != "general" {
		t.Errorf("Workspace.Channels = %v", got)
	}
	if !cfg.BotService.Enabled || cfg.BotService.Timeout != 30*time.Second {
		t.Errorf("BotService = %+v", cfg.BotService)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("BOTFORGE_SERVER_JWT_SECRET="+testSecret+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("BOTFORGE_SERVER_JWT_SECRET") })

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.JWTSecret != testSecret {
		t.Errorf("Server.JWTSecret = %q, want value from .env", cfg.Server.JWTSecret)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing secret", env: map[string]string{"BOTFORGE_SERVER_JWT_SECRET": ""}},
		{name: "short secret", env: map[string]string{"BOTFORGE_SERVER_JWT_SECRET": "short"}},
		{name: "bad log level", env: map[string]string{"BOTFORGE_LOG_LEVEL": "loud"}},
		{name: "zero quota", env: map[string]string{"BOTFORGE_BOTS_MAX_PER_OWNER": "0"}},
		{name: "service without url", env: map[string]string{"BOTFORGE_BOTSERVICE_ENABLED": "true"}},
		{name: "name format without verb", env: map[string]string{"BOTFORGE_WORKSPACE_SERVER_NAME_FORMAT": "home"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("BOTFORGE_SERVER_JWT_SECRET", testSecret)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(t.TempDir())
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("Load() error = %v, want ErrConfiguration", err)
			}
		})
	}
}
