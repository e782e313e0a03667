package store

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/harunnryd/kangae/internal/config"

	"github.com/gofrs/flock"
)

// FileLock guards the data root against concurrent process instances.
type FileLock struct {
	fileLock   *flock.Flock
	lockPath   string
	acquiredAt time.Time
	mu         sync.Mutex
	released   bool
}

type FileLockConfig struct {
	LockTimeout time.Duration
	LockRetry   time.Duration
}

func DefaultFileLockConfig() *FileLockConfig {
	lockTimeout, _ := config.DurationOrDefault(config.DefaultStoreLockTimeout, config.DefaultStoreLockTimeout)

	return &FileLockConfig{
		LockTimeout: lockTimeout,
		LockRetry:   100 * time.Millisecond,
	}
}

// AcquireDataLock takes an exclusive lock on the data root.
func AcquireDataLock(dataRoot string, cfg *FileLockConfig) (*FileLock, error) {
	if cfg == nil {
		cfg = DefaultFileLockConfig()
	}

	lockPath := filepath.Join(dataRoot, "data.lock")
	fl := &FileLock{
		fileLock: flock.New(lockPath),
		lockPath: lockPath,
	}

	deadline := time.Now().Add(cfg.LockTimeout)
	for {
		locked, err := fl.fileLock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to attempt data lock: %w", err)
		}
		if locked {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("data root %s is locked by another instance (timeout after %v)", dataRoot, cfg.LockTimeout)
		}
		time.Sleep(cfg.LockRetry)
	}

	fl.acquiredAt = time.Now()
	slog.Info("Data lock acquired", "path", lockPath)
	return fl, nil
}

// Release unlocks the data root. Safe to call more than once.
func (fl *FileLock) Release() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.released {
		return nil
	}
	fl.released = true

	if err := fl.fileLock.Unlock(); err != nil {
		return fmt.Errorf("failed to release data lock: %w", err)
	}

	slog.Info("Data lock released", "path", fl.lockPath, "held", time.Since(fl.acquiredAt).String())
	return nil
}
