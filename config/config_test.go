package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New(), t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.HTTPAddress != "0.0.0.0:3001" {
		t.Errorf("Unexpected default address %q", cfg.Server.HTTPAddress)
	}
	if cfg.Server.Heartbeat != 25*time.Second {
		t.Errorf("Unexpected default heartbeat %s", cfg.Server.Heartbeat)
	}
	if cfg.Room.PairedNotify != PairedAlways {
		t.Errorf("Unexpected paired policy %q", cfg.Room.PairedNotify)
	}
	if cfg.Puzzle.ShakeRequired != 8 || cfg.Puzzle.ShakeMinInterval != 280*time.Millisecond {
		t.Errorf("Unexpected puzzle defaults %+v", cfg.Puzzle)
	}
	if cfg.Database.Driver != "" {
		t.Errorf("Audit store should be disabled by default, got %q", cfg.Database.Driver)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("CROSSKEY_SERVER_HTTP_ADDRESS", "127.0.0.1:9000")
	t.Setenv("CROSSKEY_SERVER_ALLOW_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("CROSSKEY_PUZZLE_SHAKE_REQUIRED", "5")
	t.Setenv("CROSSKEY_SERVER_HEARTBEAT", "10s")
	t.Setenv("CROSSKEY_ROOM_PAIRED_NOTIFY", "Crossing")

	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.HTTPAddress != "127.0.0.1:9000" {
		t.Errorf("Env address not applied: %q", cfg.Server.HTTPAddress)
	}
	if len(cfg.Server.AllowOrigins) != 2 || cfg.Server.AllowOrigins[1] != "https://b.example" {
		t.Errorf("Env origins not applied: %q", cfg.Server.AllowOrigins)
	}
	if cfg.Puzzle.ShakeRequired != 5 || cfg.Server.Heartbeat != 10*time.Second {
		t.Errorf("Env values not applied: %+v %s", cfg.Puzzle, cfg.Server.Heartbeat)
	}
	if cfg.Room.PairedNotify != PairedCrossing {
		t.Errorf("Paired policy should be normalized, got %q", cfg.Room.PairedNotify)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	yaml := `
server:
  http_address: "127.0.0.1:4000"
  prefix: "crosskey/"
puzzle:
  audio_threshold: 0.5
database:
  driver: sqlite
  dsn: "file:audit.db"
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(New(), dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.HTTPAddress != "127.0.0.1:4000" || cfg.Server.Prefix != "/crosskey" {
		t.Errorf("File values not applied: %+v", cfg.Server)
	}
	if cfg.Puzzle.AudioThreshold != 0.5 || cfg.Puzzle.ShakeThreshold != 18 {
		t.Errorf("File should override only what it names: %+v", cfg.Puzzle)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "file:audit.db" {
		t.Errorf("Database section not applied: %+v", cfg.Database)
	}
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("CROSSKEY_SERVER_HTTP_ADDRESS", "127.0.0.1:9000")
	t.Setenv("CROSSKEY_SERVER_PREFIX", "/env")

	v := New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	if err := BindFlags(v, fs); err != nil {
		t.Fatalf("BindFlags failed: %v", err)
	}
	if err := fs.Parse([]string{"--http-address", "127.0.0.1:7000", "-v"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	cfg, err := Load(v, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.HTTPAddress != "127.0.0.1:7000" {
		t.Errorf("Explicit flag should win, got %q", cfg.Server.HTTPAddress)
	}
	if cfg.Server.Prefix != "/env" {
		t.Errorf("Unset flag must not shadow env, got %q", cfg.Server.Prefix)
	}
	if !cfg.Verbose {
		t.Error("-v should enable verbose")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"heartbeat", func(c *Config) { c.Server.Heartbeat = 0 }, "heartbeat"},
		{"paired", func(c *Config) { c.Room.PairedNotify = "never" }, "paired_notify"},
		{"audio", func(c *Config) { c.Puzzle.AudioThreshold = 1.5 }, "audio_threshold"},
		{"shakes", func(c *Config) { c.Puzzle.ShakeRequired = 0 }, "shake_required"},
		{"driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"sqlite", func(c *Config) { c.Database.Driver = "sqlite" }, "dsn"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tc.want)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}
