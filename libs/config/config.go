package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func String(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func RequiredString(key string) (string, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

func Port(key, fallback string) (string, error) {
	v := String(key, fallback)
	p, err := strconv.Atoi(v)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%s must be a valid TCP port (got %q)", key, v)
	}
	return v, nil
}

// Duration parses a Go duration ("15m", "24h"). Unset returns fallback;
// malformed or negative values return fallback and an error so the caller
// can log it.
func Duration(key string, fallback time.Duration) (time.Duration, error) {
	raw := String(key, "")
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return fallback, fmt.Errorf("%s must be a non-negative duration (got %q)", key, raw)
	}
	return d, nil
}

// Int parses a positive integer with the same fallback rules as Duration.
func Int(key string, fallback int) (int, error) {
	return IntAtLeast(key, fallback, 1)
}

// IntAtLeast parses an integer no smaller than lowest. Unset returns fallback;
// malformed or smaller values return fallback and an error.
func IntAtLeast(key string, fallback, lowest int) (int, error) {
	raw := String(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lowest {
		return fallback, fmt.Errorf("%s must be an integer >= %d (got %q)", key, lowest, raw)
	}
	return n, nil
}

func Bool(key string, fallback bool) bool {
	switch strings.ToLower(String(key, "")) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
