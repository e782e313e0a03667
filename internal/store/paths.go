package store

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/kangae/internal/pathutil"
)

// ResolveDataRoot resolves the configured data root path.
// If empty, it falls back to ~/.kangae/data.
func ResolveDataRoot(dataDir string) (string, error) {
	if trimmed := strings.TrimSpace(dataDir); trimmed != "" {
		return pathutil.Expand(trimmed)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".kangae", "data"), nil
}

// CacheDir returns the cache snapshot directory under the data root.
func CacheDir(dataDir string) (string, error) {
	root, err := ResolveDataRoot(dataDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "cache"), nil
}

// MemoryDir returns the memory directory under the data root.
func MemoryDir(dataDir string) (string, error) {
	root, err := ResolveDataRoot(dataDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "memory"), nil
}

// TokenHistoryPath returns the token metrics file path under the data root.
func TokenHistoryPath(dataDir string) (string, error) {
	root, err := ResolveDataRoot(dataDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "token_history", "token_metrics.json"), nil
}

// ThinkingDir returns the engine state snapshot directory under the data root.
func ThinkingDir(dataDir string) (string, error) {
	root, err := ResolveDataRoot(dataDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "thinking"), nil
}

// OptimizationDir returns the optimization record directory under the data root.
func OptimizationDir(dataDir string) (string, error) {
	root, err := ResolveDataRoot(dataDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "optimization"), nil
}

// EnsureLayout creates the full on-disk layout under the data root.
func EnsureLayout(dataDir string) (string, error) {
	root, err := ResolveDataRoot(dataDir)
	if err != nil {
		return "", err
	}

	for _, sub := range []string{"cache", "memory", "token_history", "thinking", "optimization"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return "", err
		}
	}
	return root, nil
}
