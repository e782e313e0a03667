package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

// WriteSnapshot serializes value as indented JSON and writes it atomically.
func WriteSnapshot(path string, value interface{}) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads a JSON snapshot into out. A missing file is not an
// error; the out value is left untouched and ok is false.
func ReadSnapshot(path string, out interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) == 0 {
		return false, nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode snapshot: %w", err)
	}
	return true, nil
}
