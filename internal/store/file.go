package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/openharvest/outreach-platform/internal/sanitize"
	"github.com/openharvest/outreach-platform/pkg/logging"
)

// FileBackend is the local fallback store: one JSON blob per
// collection under a fixed data directory. All operations are
// synchronous. There is no push mechanism; subscribers learn of
// changes only through this backend's own write calls, never from
// other processes.
type FileBackend struct {
	dir    string
	logger *logging.Logger

	mu          sync.RWMutex
	collections map[string][]Record
	loaded      map[string]bool
	subs        map[string]map[int]SubscriberFunc
	nextSubID   int
}

var _ Backend = (*FileBackend)(nil)

// NewFileBackend creates a file-backed store rooted at dir.
func NewFileBackend(dir string, logger *logging.Logger) (*FileBackend, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}
	return &FileBackend{
		dir:         dir,
		logger:      logger,
		collections: make(map[string][]Record),
		loaded:      make(map[string]bool),
		subs:        make(map[string]map[int]SubscriberFunc),
	}, nil
}

func (b *FileBackend) path(collection string) string {
	return filepath.Join(b.dir, collection+".json")
}

// load reads a collection blob on first touch. A corrupt blob is
// removed and the collection starts empty rather than failing the
// whole feature.
func (b *FileBackend) load(collection string) []Record {
	if b.loaded[collection] {
		return b.collections[collection]
	}
	b.loaded[collection] = true

	data, err := os.ReadFile(b.path(collection))
	if err != nil {
		b.collections[collection] = nil
		return nil
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		b.logger.Warn("discarding corrupt local collection",
			"collection", collection, "error", err)
		_ = os.Remove(b.path(collection))
		b.collections[collection] = nil
		return nil
	}

	sortNewestFirst(records)
	b.collections[collection] = records
	return records
}

// persist writes the whole collection back to disk. This is the only
// operation on the local path that can fail (disk full, permissions).
func (b *FileBackend) persist(collection string) error {
	data := sanitize.Encode(b.collections[collection])
	if err := os.WriteFile(b.path(collection), data, 0o644); err != nil {
		return fmt.Errorf("store: write collection %s: %w", collection, err)
	}
	return nil
}

func (b *FileBackend) Put(ctx context.Context, collection, id string, rec Record) error {
	clean := sanitize.Record(rec)
	clean[FieldID] = id

	b.mu.Lock()
	records := b.load(collection)
	replaced := false
	for i, existing := range records {
		if existing[FieldID] == id {
			records[i] = clean
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, clean)
	}
	sortNewestFirst(records)
	b.collections[collection] = records
	err := b.persist(collection)
	snapshot := b.snapshotLocked(collection)
	b.mu.Unlock()

	if err != nil {
		return err
	}
	b.notify(collection, snapshot)
	return nil
}

func (b *FileBackend) Patch(ctx context.Context, collection, id string, fields Record) error {
	clean := sanitize.Record(fields)

	b.mu.Lock()
	records := b.load(collection)
	var target Record
	for _, existing := range records {
		if existing[FieldID] == id {
			target = existing
			break
		}
	}
	if target == nil {
		// Read-merge-write against an absent record creates it,
		// matching the remote backend's update semantics.
		target = Record{FieldID: id}
		records = append(records, target)
	}
	for k, v := range clean {
		target[k] = v
	}
	target[FieldID] = id
	sortNewestFirst(records)
	b.collections[collection] = records
	err := b.persist(collection)
	snapshot := b.snapshotLocked(collection)
	b.mu.Unlock()

	if err != nil {
		return err
	}
	b.notify(collection, snapshot)
	return nil
}

func (b *FileBackend) Get(ctx context.Context, collection, id string) (Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, rec := range b.load(collection) {
		if rec[FieldID] == id {
			return cloneRecord(rec), nil
		}
	}
	return nil, ErrNotFound
}

func (b *FileBackend) List(ctx context.Context, collection string) ([]Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	records := b.load(collection)
	out := make([]Record, len(records))
	for i, rec := range records {
		out[i] = cloneRecord(rec)
	}
	return out, nil
}

func (b *FileBackend) Subscribe(collection string, fn SubscriberFunc) func() {
	b.mu.Lock()
	if b.subs[collection] == nil {
		b.subs[collection] = make(map[int]SubscriberFunc)
	}
	id := b.nextSubID
	b.nextSubID++
	b.subs[collection][id] = fn
	b.load(collection)
	snapshot := b.snapshotLocked(collection)
	b.mu.Unlock()

	// Initial snapshot is delivered before Subscribe returns.
	fn(snapshot)

	return func() {
		b.mu.Lock()
		delete(b.subs[collection], id)
		b.mu.Unlock()
	}
}

func (b *FileBackend) Close() error { return nil }

// snapshotLocked deep-copies the collection. Records are mutated in
// place by Patch, so handing out the stored maps would let a
// subscriber race a concurrent write.
func (b *FileBackend) snapshotLocked(collection string) Snapshot {
	records := b.collections[collection]
	out := make([]Record, len(records))
	for i, rec := range records {
		out[i] = cloneRecord(rec)
	}
	return Snapshot{Collection: collection, Records: out}
}

// cloneRecord deep-copies a record. Sanitized records contain only
// JSON-shaped values, so maps and slices are the only reference types
// to chase.
func cloneRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneRecord(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

func (b *FileBackend) notify(collection string, snapshot Snapshot) {
	b.mu.RLock()
	fns := make([]SubscriberFunc, 0, len(b.subs[collection]))
	for _, fn := range b.subs[collection] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}
