package config

import (
	"fmt"
	"strings"
	"time"
)

// DurationOrDefault parses value as a Go duration, substituting
// defaultValue when value is blank. Negative durations are rejected since
// every configured duration here is a timeout or retention window.
func DurationOrDefault(value string, defaultValue string) (time.Duration, error) {
	candidate := strings.TrimSpace(value)
	if candidate == "" {
		candidate = strings.TrimSpace(defaultValue)
	}
	if candidate == "" {
		return 0, fmt.Errorf("duration value is empty")
	}

	d, err := time.ParseDuration(candidate)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", candidate, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q is negative", candidate)
	}
	return d, nil
}
