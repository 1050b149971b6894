package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variables read by Load and ApplyEnv
const (
	// EnvConfigPath names the profile file when --config is not given
	EnvConfigPath = "EVENTSEQ_CONFIG"
	// EnvStallTimeout overrides monitor.stall_timeout (Go duration)
	EnvStallTimeout = "EVENTSEQ_STALL_TIMEOUT"
	// EnvWindowSize overrides monitor.window_size
	EnvWindowSize = "EVENTSEQ_WINDOW_SIZE"
)

// ApplyEnv overrides monitor settings from the environment.
//
// Environment variables:
//   - EVENTSEQ_STALL_TIMEOUT: stall timeout, e.g. "45s" (0 disables)
//   - EVENTSEQ_WINDOW_SIZE: finished runs kept in memory
//
// Returns an error if any environment variable has an invalid value.
func (p *Profile) ApplyEnv() error {
	if err := parseEnvDuration(EnvStallTimeout, &p.Monitor.StallTimeout); err != nil {
		return err
	}
	if err := parseEnvInt(EnvWindowSize, &p.Monitor.WindowSize); err != nil {
		return err
	}
	if p.Monitor.WindowSize < 0 {
		return fmt.Errorf("invalid value for %s: must be non-negative (got %d)", EnvWindowSize, p.Monitor.WindowSize)
	}
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration checks that an environment variable holds a Go duration
// and stores its canonical form
func parseEnvDuration(key string, dest *string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid value for %s: must be non-negative (got %v)", key, parsed)
	}
	*dest = parsed.String()
	return nil
}
