package config

import (
	"os"
	"testing"
	"time"
)

func TestDefaultsMatchSpecBounds(t *testing.T) {
	cfg := Default()
	if cfg.StepTimeout != 300*time.Millisecond {
		t.Fatalf("StepTimeout = %v, want 300ms", cfg.StepTimeout)
	}
	if cfg.BreakpointTimeout != 3000*time.Millisecond {
		t.Fatalf("BreakpointTimeout = %v, want 3000ms", cfg.BreakpointTimeout)
	}
	if cfg.DAPListenAddr != "stdio" {
		t.Fatalf("DAPListenAddr = %q, want \"stdio\"", cfg.DAPListenAddr)
	}
}

func TestLoadEnvOverlaysCDPAddress(t *testing.T) {
	os.Setenv("BRIDGE_CDP_ADDRESS", "localhost")
	os.Setenv("BRIDGE_CDP_PORT", "9333")
	defer os.Unsetenv("BRIDGE_CDP_ADDRESS")
	defer os.Unsetenv("BRIDGE_CDP_PORT")

	cfg := LoadEnv(Default())
	if cfg.CDPTargetURL != "ws://localhost:9333" {
		t.Fatalf("got %q", cfg.CDPTargetURL)
	}
}

func TestLoadEnvLeavesDefaultsWhenUnset(t *testing.T) {
	os.Unsetenv("BRIDGE_CDP_ADDRESS")
	os.Unsetenv("BRIDGE_LOG_LEVEL")
	cfg := LoadEnv(Default())
	if cfg.LogLevel != "info" {
		t.Fatalf("got %q, want \"info\"", cfg.LogLevel)
	}
}
