// Package store provides a uniform persistence gateway over two
// interchangeable backends: a remote document store (DynamoDB) and a
// local file-based fallback. Exactly one backend is active per running
// session, chosen at startup; callers never see which one they hold.
package store

import (
	"context"
	"errors"
	"sort"
	"time"
)

// Collection names used by the application.
const (
	CollectionUsers       = "users"
	CollectionProspects   = "prospects"
	CollectionInvitations = "invitations"
)

// FieldID is the document key field present in every record.
const FieldID = "id"

// fieldCreatedAt orders collection listings, newest first.
const fieldCreatedAt = "createdAt"

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("store: record not found")

// Record is a sanitized document as held by a backend.
type Record = map[string]any

// Snapshot is the full ordered state of a collection, delivered to
// subscribers on initial registration and after every observed change.
// Denied flags an access-control failure from the remote store; the
// application surfaces it as a repairable condition rather than
// crashing.
type Snapshot struct {
	Collection string
	Records    []Record
	Denied     bool
	Err        error
}

// SubscriberFunc receives collection snapshots.
type SubscriberFunc func(Snapshot)

// Backend is the persistence gateway contract shared by the remote and
// local implementations. Writes sanitize their input; reads return
// records ordered by creation time descending.
type Backend interface {
	// Put sanitizes rec and writes it whole, keyed by id, replacing
	// any existing record.
	Put(ctx context.Context, collection, id string, rec Record) error

	// Patch sanitizes fields and merges only those keys into the
	// stored record, leaving all other fields untouched.
	Patch(ctx context.Context, collection, id string, fields Record) error

	// Get returns a single record or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Record, error)

	// List returns all records in the collection, newest first.
	List(ctx context.Context, collection string) ([]Record, error)

	// Subscribe registers fn to receive the current snapshot
	// immediately and again after every change this backend observes.
	// The returned function cancels the subscription.
	Subscribe(collection string, fn SubscriberFunc) (cancel func())

	// Close releases watcher resources.
	Close() error
}

// sortNewestFirst orders records by their createdAt field descending.
// Timestamps are stored as RFC3339 strings with variable-width
// fractional seconds, so they must be parsed before comparing; a
// missing or unparsable timestamp sorts last.
func sortNewestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return createdAt(records[i]).After(createdAt(records[j]))
	})
}

func createdAt(rec Record) time.Time {
	s, _ := rec[fieldCreatedAt].(string)
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
