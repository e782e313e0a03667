package token

import (
	"sync"
	"time"

	"github.com/harunnryd/kangae/internal/store"
)

// HistoryFile is the persisted token-metrics snapshot layout.
type HistoryFile struct {
	Metrics     map[string]float64 `json:"metrics"`
	ModelUsage  map[string]int64   `json:"modelUsage"`
	LastUpdated time.Time          `json:"lastUpdated"`
}

// History persists learned estimator ratios and cumulative model usage
// under token_history/token_metrics.json. Writes are best-effort snapshots.
type History struct {
	path      string
	estimator *Estimator

	mu    sync.Mutex
	usage map[string]int64
}

func NewHistory(path string, estimator *Estimator) *History {
	return &History{
		path:      path,
		estimator: estimator,
		usage:     make(map[string]int64),
	}
}

// Load restores a prior snapshot if one exists.
func (h *History) Load() error {
	var snapshot HistoryFile
	ok, err := store.ReadSnapshot(h.path, &snapshot)
	if err != nil || !ok {
		return err
	}

	h.estimator.SetRatios(snapshot.Metrics)

	h.mu.Lock()
	defer h.mu.Unlock()
	for model, tokens := range snapshot.ModelUsage {
		h.usage[model] = tokens
	}
	return nil
}

// RecordUsage accumulates observed token usage for a model and feeds the
// estimator's correction ratio.
func (h *History) RecordUsage(model string, estimated, actual int) {
	h.estimator.Observe(model, estimated, actual)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.usage[model] += int64(actual)
}

// Save writes the snapshot atomically.
func (h *History) Save() error {
	h.mu.Lock()
	usage := make(map[string]int64, len(h.usage))
	for k, v := range h.usage {
		usage[k] = v
	}
	h.mu.Unlock()

	return store.WriteSnapshot(h.path, HistoryFile{
		Metrics:     h.estimator.Ratios(),
		ModelUsage:  usage,
		LastUpdated: time.Now().UTC(),
	})
}
