package memory

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/philippgille/chromem-go"

	"github.com/harunnryd/kangae/internal/errors"
	"github.com/harunnryd/kangae/internal/store"
)

const (
	collectionName = "memories"
	indexFile      = "index.json"

	// Items below this importance are eligible for pruning once stale.
	pruneImportance = 0.3
	pruneAge        = 30 * 24 * time.Hour

	defaultRetrieveLimit = 5
)

// Embedder turns text into a vector. The fallback provider registry
// satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Item is one stored memory.
type Item struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Content     string    `json:"content"`
	Importance  float64   `json:"importance"`
	Connections []string  `json:"connections,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SearchResult pairs an item with its similarity to the query.
type SearchResult struct {
	Item  Item    `json:"item"`
	Score float32 `json:"score"`
}

type index struct {
	Items map[string]Item `json:"items"`
}

// Memory is the adapter over the persistent vector store. Embeddings are
// provided externally; chromem only indexes and searches them.
type Memory struct {
	mu        sync.Mutex
	db        *chromem.DB
	embedder  Embedder
	indexPath string
	items     map[string]Item
	now       func() time.Time
}

// New opens (or creates) the vector store under dir and loads the item
// index kept beside it.
func New(dir string, embedder Embedder) (*Memory, error) {
	db, err := chromem.NewPersistentDB(filepath.Join(dir, "vectors"), false)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	m := &Memory{
		db:        db,
		embedder:  embedder,
		indexPath: filepath.Join(dir, indexFile),
		items:     make(map[string]Item),
		now:       time.Now,
	}

	var idx index
	if ok, err := store.ReadSnapshot(m.indexPath, &idx); err != nil {
		slog.Warn("Memory index unreadable, starting fresh", "path", m.indexPath, "error", err)
	} else if ok && idx.Items != nil {
		m.items = idx.Items
	}
	return m, nil
}

// WithClock overrides the clock, for retention tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

// Store embeds the content and upserts it into the collection. Importance
// is clamped to [0,1].
func (m *Memory) Store(ctx context.Context, itemType, content string, importance float64, connections []string) (*Item, error) {
	if strings.TrimSpace(content) == "" {
		return nil, errors.InvalidRequest("memory content is empty")
	}
	if importance < 0 {
		importance = 0
	}
	if importance > 1 {
		importance = 1
	}

	vector, err := m.embedder.Embed(ctx, content)
	if err != nil {
		return nil, errors.Wrap(err, "embed memory content")
	}

	item := Item{
		ID:          ulid.Make().String(),
		Type:        itemType,
		Content:     content,
		Importance:  importance,
		Connections: connections,
		CreatedAt:   m.now().UTC(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Embeddings are supplied by us, so the collection carries no
	// embedding function.
	col, err := m.db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open memory collection")
	}
	err = col.AddDocuments(ctx, []chromem.Document{{
		ID:        item.ID,
		Metadata:  itemMetadata(item),
		Embedding: vector,
		Content:   content,
	}}, 1)
	if err != nil {
		return nil, errors.Wrap(err, "store memory")
	}

	m.items[item.ID] = item
	m.saveIndexLocked()
	return &item, nil
}

// Retrieve embeds the query and returns the closest items, best first.
func (m *Memory) Retrieve(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = defaultRetrieveLimit
	}

	vector, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "embed memory query")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	col := m.db.GetCollection(collectionName, nil)
	if col == nil {
		return nil, nil
	}
	if count := col.Count(); limit > count {
		limit = count
	}
	if limit == 0 {
		return nil, nil
	}

	docs, err := col.QueryEmbedding(ctx, vector, limit, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "query memories")
	}

	results := make([]SearchResult, 0, len(docs))
	for _, doc := range docs {
		item, ok := m.items[doc.ID]
		if !ok {
			item = itemFromDocument(doc)
		}
		results = append(results, SearchResult{Item: item, Score: doc.Similarity})
	}
	return results, nil
}

// Maintenance prunes stale low-importance items from both the index and
// the collection, returning the number removed.
func (m *Memory) Maintenance(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-pruneAge)
	var stale []string
	for id, item := range m.items {
		if item.Importance < pruneImportance && item.CreatedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	if col := m.db.GetCollection(collectionName, nil); col != nil {
		if err := col.Delete(ctx, nil, nil, stale...); err != nil {
			return 0, errors.Wrap(err, "prune memories")
		}
	}
	for _, id := range stale {
		delete(m.items, id)
	}
	m.saveIndexLocked()

	slog.Info("Memory maintenance complete", "removed", len(stale))
	return len(stale), nil
}

// Count returns the number of indexed items.
func (m *Memory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *Memory) saveIndexLocked() {
	if err := store.WriteSnapshot(m.indexPath, index{Items: m.items}); err != nil {
		slog.Warn("Memory index snapshot failed", "path", m.indexPath, "error", err)
	}
}

func itemMetadata(item Item) map[string]string {
	meta := map[string]string{
		"type":       item.Type,
		"importance": strconv.FormatFloat(item.Importance, 'f', 2, 64),
		"createdAt":  item.CreatedAt.Format(time.RFC3339),
	}
	if len(item.Connections) > 0 {
		meta["connections"] = strings.Join(item.Connections, ",")
	}
	return meta
}

// itemFromDocument rebuilds an item from collection metadata when the
// index has no entry, which happens after an index snapshot was lost.
func itemFromDocument(doc chromem.Result) Item {
	item := Item{
		ID:      doc.ID,
		Content: doc.Content,
		Type:    doc.Metadata["type"],
	}
	if v, err := strconv.ParseFloat(doc.Metadata["importance"], 64); err == nil {
		item.Importance = v
	}
	if t, err := time.Parse(time.RFC3339, doc.Metadata["createdAt"]); err == nil {
		item.CreatedAt = t
	}
	if c := doc.Metadata["connections"]; c != "" {
		item.Connections = strings.Split(c, ",")
	}
	return item
}
