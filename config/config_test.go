package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/multierr"
)

func TestLoadDefaultsWithoutEnvFile(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("expected defaults, got %v", err)
	}
	if c.Port != 7777 || c.BroadcastEvery != 3 || c.TickRate != 50 {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if c.TickInterval() != 20*time.Millisecond {
		t.Fatalf("expected 20ms tick, got %v", c.TickInterval())
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "SHOOTER_PORT=9100\nBROADCAST_EVERY=5\nPERSONALIZE_SNAPSHOTS=true\nWRITE_TIMEOUT=250ms\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	// godotenv.Load 会写入进程环境，测试结束后清理
	for _, k := range []string{"SHOOTER_PORT", "BROADCAST_EVERY", "PERSONALIZE_SNAPSHOTS", "WRITE_TIMEOUT"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Port != 9100 || c.BroadcastEvery != 5 || !c.PersonalizeSnapshots || c.WriteTimeout != 250*time.Millisecond {
		t.Fatalf("env file not applied: %+v", c)
	}
	if c.ListenAddr() != ":9100" {
		t.Fatalf("unexpected listen address %q", c.ListenAddr())
	}
}

func TestLoadCollectsEveryParseError(t *testing.T) {
	t.Setenv("TICK_RATE", "fast")
	t.Setenv("PLAYER_SPEED", "quick")
	_, err := Load("")
	if err == nil {
		t.Fatalf("expected parse errors")
	}
	if n := len(multierr.Errors(err)); n != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", n, err)
	}
}

func TestValidate(t *testing.T) {
	c := Default()
	c.TickRate = 0
	c.BroadcastEvery = -1
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "TICK_RATE") || !strings.Contains(err.Error(), "BROADCAST_EVERY") {
		t.Fatalf("expected both fields reported, got %v", err)
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestValidateRejectsHugeBroadcastEvery(t *testing.T) {
	c := Default()
	c.BroadcastEvery = math.MaxInt32 + 1
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "BROADCAST_EVERY") {
		t.Fatalf("expected BROADCAST_EVERY to be rejected, got %v", err)
	}
	c.BroadcastEvery = math.MaxInt32
	if err := c.Validate(); err != nil {
		t.Fatalf("expected %d to validate, got %v", math.MaxInt32, err)
	}
}
