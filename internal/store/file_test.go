package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openharvest/outreach-platform/pkg/logging"
)

func newFileBackend(t *testing.T) *FileBackend {
	t.Helper()
	b, err := NewFileBackend(t.TempDir(), logging.Default())
	require.NoError(t, err)
	return b
}

func TestFileBackendPutAndGet(t *testing.T) {
	b := newFileBackend(t)
	ctx := context.Background()

	err := b.Put(ctx, CollectionProspects, "p1", Record{
		"name":      "Lucas",
		"status":    "New",
		"createdAt": time.Now().UTC().Format(time.RFC3339Nano),
	})
	require.NoError(t, err)

	rec, err := b.Get(ctx, CollectionProspects, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Lucas", rec["name"])
	assert.Equal(t, "p1", rec[FieldID])

	_, err = b.Get(ctx, CollectionProspects, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileBackendListNewestFirst(t *testing.T) {
	b := newFileBackend(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		err := b.Put(ctx, CollectionProspects, id, Record{
			"createdAt": base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339Nano),
		})
		require.NoError(t, err)
	}

	records, err := b.List(ctx, CollectionProspects)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "c", records[0][FieldID])
	assert.Equal(t, "a", records[2][FieldID])
}

func TestFileBackendPatchLeavesOtherFieldsIntact(t *testing.T) {
	b := newFileBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, CollectionProspects, "p1", Record{
		"name":   "Rosa",
		"phone":  "555-0101",
		"status": "New",
	}))

	require.NoError(t, b.Patch(ctx, CollectionProspects, "p1", Record{"status": "Member"}))

	rec, err := b.Get(ctx, CollectionProspects, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Member", rec["status"])
	assert.Equal(t, "Rosa", rec["name"])
	assert.Equal(t, "555-0101", rec["phone"])
}

func TestFileBackendPutReplacesWholeRecord(t *testing.T) {
	b := newFileBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, CollectionUsers, "u1", Record{"name": "Old", "phone": "1"}))
	require.NoError(t, b.Put(ctx, CollectionUsers, "u1", Record{"name": "New"}))

	rec, err := b.Get(ctx, CollectionUsers, "u1")
	require.NoError(t, err)
	assert.Equal(t, "New", rec["name"])
	assert.NotContains(t, rec, "phone")

	records, err := b.List(ctx, CollectionUsers)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestFileBackendSanitizesOnWrite(t *testing.T) {
	b := newFileBackend(t)
	ctx := context.Background()

	rec := Record{"name": "Ana", "handle": make(chan int)}
	rec["self"] = rec
	require.NoError(t, b.Put(ctx, CollectionProspects, "p1", rec))

	stored, err := b.Get(ctx, CollectionProspects, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", stored["name"])
	assert.NotContains(t, stored, "handle")
	assert.NotContains(t, stored, "self")
}

func TestFileBackendSubscribe(t *testing.T) {
	b := newFileBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, CollectionProspects, "p1", Record{"name": "First"}))

	var snapshots []Snapshot
	cancel := b.Subscribe(CollectionProspects, func(s Snapshot) {
		snapshots = append(snapshots, s)
	})

	// Initial snapshot delivered synchronously.
	require.Len(t, snapshots, 1)
	assert.Len(t, snapshots[0].Records, 1)

	require.NoError(t, b.Put(ctx, CollectionProspects, "p2", Record{"name": "Second"}))
	require.Len(t, snapshots, 2)
	assert.Len(t, snapshots[1].Records, 2)

	cancel()
	require.NoError(t, b.Put(ctx, CollectionProspects, "p3", Record{"name": "Third"}))
	assert.Len(t, snapshots, 2, "no notifications after cancel")
}

func TestFileBackendSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b, err := NewFileBackend(dir, logging.Default())
	require.NoError(t, err)
	require.NoError(t, b.Put(ctx, CollectionUsers, "u1", Record{"name": "Keeper"}))

	reopened, err := NewFileBackend(dir, logging.Default())
	require.NoError(t, err)
	rec, err := reopened.Get(ctx, CollectionUsers, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Keeper", rec["name"])
}

func TestFileBackendCorruptBlobRecovered(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, CollectionUsers+".json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	b, err := NewFileBackend(dir, logging.Default())
	require.NoError(t, err)

	records, err := b.List(context.Background(), CollectionUsers)
	require.NoError(t, err)
	assert.Empty(t, records)

	// The offending blob is removed so the next write starts clean.
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileBackendGetReturnsIndependentCopy(t *testing.T) {
	b := newFileBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, CollectionUsers, "u1", Record{
		"name": "Ana",
		"tags": []any{"visitor"},
		"meta": map[string]any{"team": "north"},
	}))

	rec, err := b.Get(ctx, CollectionUsers, "u1")
	require.NoError(t, err)
	rec["name"] = "mutated"
	rec["tags"].([]any)[0] = "mutated"
	rec["meta"].(map[string]any)["team"] = "mutated"

	reread, err := b.Get(ctx, CollectionUsers, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", reread["name"])
	assert.Equal(t, "visitor", reread["tags"].([]any)[0])
	assert.Equal(t, "north", reread["meta"].(map[string]any)["team"])
}

func TestFileBackendListReturnsIndependentCopies(t *testing.T) {
	b := newFileBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, CollectionUsers, "u1", Record{"name": "Ana"}))

	list, err := b.List(ctx, CollectionUsers)
	require.NoError(t, err)
	require.Len(t, list, 1)
	list[0]["name"] = "mutated"

	reread, err := b.Get(ctx, CollectionUsers, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ana", reread["name"])
}

func TestFileBackendSnapshotsIndependentOfLaterPatches(t *testing.T) {
	b := newFileBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, CollectionUsers, "u1", Record{"name": "Ana"}))

	var first Snapshot
	got := false
	cancel := b.Subscribe(CollectionUsers, func(snap Snapshot) {
		if !got {
			first = snap
			got = true
		}
	})
	defer cancel()
	require.True(t, got)
	require.Len(t, first.Records, 1)

	// A later patch must not reach into a snapshot already handed out.
	require.NoError(t, b.Patch(ctx, CollectionUsers, "u1", Record{"name": "Renamed"}))
	assert.Equal(t, "Ana", first.Records[0]["name"])
}

func TestFileBackendListOrdersSubSecondCreations(t *testing.T) {
	b := newFileBackend(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	// RFC3339Nano trims trailing zeros, so these same-second stamps
	// have different fractional widths.
	require.NoError(t, b.Put(ctx, CollectionProspects, "older", Record{
		"createdAt": base.Add(100 * time.Millisecond).Format(time.RFC3339Nano),
	}))
	require.NoError(t, b.Put(ctx, CollectionProspects, "newer", Record{
		"createdAt": base.Add(150 * time.Millisecond).Format(time.RFC3339Nano),
	}))

	list, err := b.List(ctx, CollectionProspects)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "newer", list[0][FieldID])
	assert.Equal(t, "older", list[1][FieldID])
}
