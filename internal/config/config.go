// Package config holds the bridge's runtime configuration: flags from
// cmd/bridged overlaid on environment-variable fallbacks, in the style of
// spencerandtheteagues-apex-build-platform's main.go (os.Getenv chains with
// defaults, godotenv.Load() for local development).
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the bridge's fully-resolved runtime configuration.
type Config struct {
	// DAPListenAddr is the northbound DAP transport: "stdio", or
	// "tcp:<host:port>".
	DAPListenAddr string

	// CDPTargetURL is the websocket debugger URL the bridge dials
	// southbound.
	CDPTargetURL string

	// SmartStep enables spec §4.1's smart-step behavior.
	SmartStep bool

	// StepTimeout bounds the Stopped/step-response ordering rendezvous
	// (spec §4.1, default 300ms).
	StepTimeout time.Duration

	// BreakpointTimeout bounds every setBreakpoints exchange (spec §4.2,
	// default 3000ms).
	BreakpointTimeout time.Duration

	// OverlayDebounce bounds the adapter's internal event-coalescing delay
	// (spec §5, default 200ms).
	OverlayDebounce time.Duration

	// LogLevel is the zap level name ("debug", "info", "warn", "error").
	LogLevel string
}

// Default returns the configuration's zero-value-safe defaults, before any
// flag or environment overlay is applied.
func Default() Config {
	return Config{
		DAPListenAddr:     "stdio",
		StepTimeout:       300 * time.Millisecond,
		BreakpointTimeout: 3000 * time.Millisecond,
		OverlayDebounce:   200 * time.Millisecond,
		LogLevel:          "info",
	}
}

// LoadEnv loads a local .env file if present (ignored if absent — local dev
// convenience only, never required in production) and overlays
// BRIDGE_CDP_ADDRESS, BRIDGE_CDP_PORT, BRIDGE_LOG_LEVEL onto cfg.
func LoadEnv(cfg Config) Config {
	_ = godotenv.Load()

	if addr := os.Getenv("BRIDGE_CDP_ADDRESS"); addr != "" {
		port := os.Getenv("BRIDGE_CDP_PORT")
		if port == "" {
			port = "9222"
		}
		cfg.CDPTargetURL = "ws://" + addr + ":" + port
	}
	if level := os.Getenv("BRIDGE_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if step := os.Getenv("BRIDGE_STEP_TIMEOUT_MS"); step != "" {
		if ms, err := strconv.Atoi(step); err == nil {
			cfg.StepTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	return cfg
}
