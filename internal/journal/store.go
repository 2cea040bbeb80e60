// Package journal implements the append-only per-entity event log and
// snapshot store (§4.2) that the entity runtime and account/employee actors
// persist through. It is deliberately agnostic to the shape of the events it
// stores: callers pass an already-serialized payload tagged with the
// aggregate kind, and the store's only job is durable, gap-free, optimistic-
// concurrency-checked ordering per entity.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Record is one persisted fact in an entity's stream. Payload is the
// aggregate's own JSON-encoded event; the store never inspects it.
type Record struct {
	EntityID   string
	Seq        uint64
	Tag        string // aggregate kind, e.g. "account" or "employee"
	Kind       string // event kind within that aggregate, for CurrentEventsByTag filtering/logging
	Payload    []byte
	RecordedAt time.Time
}

// Snapshot is a point-in-time fold of an entity's state as of Seq, used to
// bound replay cost on activation.
type Snapshot struct {
	EntityID string
	Seq      uint64
	Tag      string
	Payload  []byte
	TakenAt  time.Time
}

// ConflictError is returned by AppendEvents when expectedSeq does not match
// the entity's current sequence number — another writer (or a duplicate
// delivery racing a retry) already advanced the stream.
type ConflictError struct {
	EntityID    string
	Expected    uint64
	ActualSeq   uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("journal: sequence conflict for entity %s: expected %d, actual %d", e.EntityID, e.Expected, e.ActualSeq)
}

// ErrNotFound is returned by ReadLatestSnapshot when no snapshot exists yet.
var ErrNotFound = errors.New("journal: not found")

// Store is the durable event/snapshot log the entity runtime consumes.
// Implementations must guarantee: per-entity total order, durable commit
// before AppendEvents returns, optimistic concurrency via expectedSeq, and
// at-least-once delivery semantics to CurrentEventsByTag consumers.
type Store interface {
	// AppendEvents durably commits records, numbering them contiguously from
	// expectedSeq+1, iff the entity's current sequence equals expectedSeq.
	// Returns the new current sequence on success, or *ConflictError if
	// expectedSeq is stale.
	AppendEvents(ctx context.Context, entityID string, expectedSeq uint64, records []Record) (newSeq uint64, err error)

	// ReadEvents streams records for entityID with fromSeq < seq <= toSeq, in
	// order. A toSeq of 0 means "no upper bound".
	ReadEvents(ctx context.Context, entityID string, fromSeq, toSeq uint64) (<-chan Record, <-chan error)

	// WriteSnapshot persists a snapshot at seq, replacing any earlier one.
	WriteSnapshot(ctx context.Context, snap Snapshot) error

	// ReadLatestSnapshot returns the most recent snapshot for entityID, or
	// ErrNotFound if none has been written.
	ReadLatestSnapshot(ctx context.Context, entityID string) (Snapshot, error)

	// DeleteEventsUpTo soft-deletes events with seq <= seq for entityID,
	// per the account closure workflow's DeleteMessages intent (§4.8).
	DeleteEventsUpTo(ctx context.Context, entityID string, seq uint64) error

	// CurrentEventsByTag streams every current (non-deleted) record tagged
	// tag across all entities, in no particular cross-entity order, for
	// read-model rebuild and closure reconciliation.
	CurrentEventsByTag(ctx context.Context, tag string) (<-chan Record, <-chan error)

	// Close releases any resources (connections, files) held by the store.
	Close() error
}
