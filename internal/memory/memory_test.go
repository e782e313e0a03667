package memory

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder maps known phrases onto fixed unit vectors so similarity
// ordering is predictable.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := s.vectors[text]; ok {
		return normalize(v), nil
	}
	return normalize([]float32{1, 1, 1}), nil
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func newTestMemory(t *testing.T) (*Memory, *stubEmbedder) {
	t.Helper()
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"caching reduces latency":  {1, 0, 0},
		"latency questions":        {0.9, 0.1, 0},
		"gardening needs patience": {0, 1, 0},
		"compilers fold constants": {0, 0, 1},
	}}
	m, err := New(t.TempDir(), embedder)
	require.NoError(t, err)
	return m, embedder
}

func TestStoreAndRetrieve(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()

	_, err := m.Store(ctx, "semantic", "caching reduces latency", 0.8, nil)
	require.NoError(t, err)
	_, err = m.Store(ctx, "semantic", "gardening needs patience", 0.5, nil)
	require.NoError(t, err)

	results, err := m.Retrieve(ctx, "latency questions", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "caching reduces latency", results[0].Item.Content)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestStore_RejectsEmptyContent(t *testing.T) {
	m, _ := newTestMemory(t)
	_, err := m.Store(context.Background(), "episodic", "   ", 0.5, nil)
	require.Error(t, err)
}

func TestStore_ClampsImportance(t *testing.T) {
	m, _ := newTestMemory(t)
	item, err := m.Store(context.Background(), "episodic", "compilers fold constants", 3.5, []string{"optimization"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, item.Importance)
	assert.Equal(t, []string{"optimization"}, item.Connections)
}

func TestRetrieve_EmptyStore(t *testing.T) {
	m, _ := newTestMemory(t)
	results, err := m.Retrieve(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieve_LimitClampedToCount(t *testing.T) {
	m, _ := newTestMemory(t)
	_, err := m.Store(context.Background(), "semantic", "caching reduces latency", 0.8, nil)
	require.NoError(t, err)

	results, err := m.Retrieve(context.Background(), "latency questions", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestMaintenance_PrunesStaleLowImportanceItems(t *testing.T) {
	m, _ := newTestMemory(t)
	ctx := context.Background()

	past := time.Now().Add(-60 * 24 * time.Hour)
	m.WithClock(func() time.Time { return past })
	_, err := m.Store(ctx, "episodic", "gardening needs patience", 0.1, nil)
	require.NoError(t, err)
	_, err = m.Store(ctx, "semantic", "caching reduces latency", 0.9, nil)
	require.NoError(t, err)

	m.WithClock(time.Now)
	removed, err := m.Maintenance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, m.Count())

	// Idempotent: nothing left to prune.
	removed, err = m.Maintenance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestIndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"caching reduces latency": {1, 0, 0},
	}}

	first, err := New(dir, embedder)
	require.NoError(t, err)
	_, err = first.Store(context.Background(), "semantic", "caching reduces latency", 0.8, nil)
	require.NoError(t, err)

	second, err := New(dir, embedder)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Count())
}
