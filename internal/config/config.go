// Package config loads the sync server's settings: built-in defaults,
// overridden by a flat key/value file, overridden in turn by command-line
// flags.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the server's tunables, named after the original MobWrite
// server's settings so operators migrating a config file don't have to
// relearn the names.
type Config struct {
	LocalPort        int
	ConnectionOrigin string
	RequiredCookie   string
	TimeoutText      time.Duration
	TimeoutView      time.Duration
	MaxViews         int
}

// Default returns the built-in configuration, used when no file or flag
// overrides it.
func Default() Config {
	return Config{
		LocalPort:        3017,
		ConnectionOrigin: "",
		RequiredCookie:   "",
		TimeoutText:      10 * time.Minute,
		TimeoutView:      2 * time.Minute,
		MaxViews:         0,
	}
}

// LoadFile reads a flat `KEY=VALUE` file, one setting per line, `#`-prefixed
// comments and blank lines ignored, and applies it on top of cfg. Unknown
// keys are rejected; this is meant to catch typos in an otherwise
// undocumented file format, not to be forward-compatible with future keys.
func LoadFile(cfg Config, path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return cfg, fmt.Errorf("config: %s:%d: expected KEY=VALUE, got %q", path, lineNo, line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if err := cfg.set(key, value); err != nil {
			return cfg, fmt.Errorf("config: %s:%d: %w", path, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) set(key, value string) error {
	switch key {
	case "LOCAL_PORT":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("LOCAL_PORT: %w", err)
		}
		c.LocalPort = n
	case "CONNECTION_ORIGIN":
		c.ConnectionOrigin = value
	case "REQUIRED_COOKIE":
		c.RequiredCookie = value
	case "TIMEOUT_TEXT":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("TIMEOUT_TEXT: %w", err)
		}
		c.TimeoutText = d
	case "TIMEOUT_VIEW":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("TIMEOUT_VIEW: %w", err)
		}
		c.TimeoutView = d
	case "MAX_VIEWS":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("MAX_VIEWS: %w", err)
		}
		c.MaxViews = n
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}
