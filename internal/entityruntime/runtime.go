// Package entityruntime is the sharded entity runtime (§4.3): one
// cooperative goroutine per active aggregate id, FIFO mailbox, recovery from
// snapshot+journal on first message, confirm-after-persist acknowledgement,
// and idle-timeout passivation. It is generic over the aggregate's own
// state/command/event types so both the account and employee actors run on
// top of the same runtime instead of each hand-rolling their own mailbox.
package entityruntime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"coreledger/internal/journal"
	"coreledger/internal/sharding"
)

// DefaultIdleTimeout is how long an entity with an empty mailbox waits
// before the runtime snapshots and passivates it.
const DefaultIdleTimeout = 2 * time.Minute

// DefaultAskTimeout is the default per-ask timeout (§5 "every ask has an
// explicit timeout (default 5s)").
const DefaultAskTimeout = 5 * time.Second

// Handlers bundles the pure domain functions and (de)serializers the
// runtime needs to drive one aggregate type. S/C/E are the aggregate's
// state/command/event types (account.Account/Command/Event, or the
// employee equivalents).
type Handlers[S any, C any, E any] struct {
	// Tag identifies the aggregate kind in the journal (e.g. "account").
	Tag string

	NewEmpty func(entityID uuid.UUID) S
	Decide   func(state S, cmd C) (E, error)
	Apply    func(state S, evt E) S

	EventKind      func(E) string
	EncodeEvent    func(E) ([]byte, error)
	DecodeEvent    func(kind string, payload []byte) (E, error)
	EncodeSnapshot func(S) ([]byte, error)
	DecodeSnapshot func(payload []byte) (S, error)

	// PostPersist is invoked after an event is durably journaled and
	// applied, with the new state and the entity's own in-memory lock
	// already released — side effects (C4's dispatch table) run here.
	// Never invoked during replay.
	PostPersist func(ctx context.Context, entityID uuid.UUID, evt E, state S)

	// OnPersistFailed is invoked when AppendEvents fails; state is left
	// unchanged. Mirrors §4.3's PersistFailed broadcast.
	OnPersistFailed func(ctx context.Context, entityID uuid.UUID, cmd C, err error)
}

// ErrNotOwned is returned by Ask/Query when a sharding.Coordinator is wired
// in and this node does not own entityID — the caller should route the
// command to whichever node does.
var ErrNotOwned = fmt.Errorf("entityruntime: entity not owned by this node")

// ErrAskTimeout is returned when an ask does not complete within its
// deadline; per §5 this is treated as a typed no-response failure distinct
// from a business rejection.
var ErrAskTimeout = fmt.Errorf("entityruntime: ask timed out")

// Runtime owns the sharded mailboxes for one aggregate type.
type Runtime[S any, C any, E any] struct {
	handlers    Handlers[S, C, E]
	store       journal.Store
	coordinator *sharding.Coordinator
	idleTimeout time.Duration
	log         *zap.Logger

	mu       sync.Mutex
	entities map[uuid.UUID]*mailbox[S, C, E]
}

// New constructs a Runtime for one aggregate type. coordinator may be nil
// for single-node deployments, in which case every entity is considered
// locally owned.
func New[S any, C any, E any](store journal.Store, handlers Handlers[S, C, E], coordinator *sharding.Coordinator, log *zap.Logger) *Runtime[S, C, E] {
	return &Runtime[S, C, E]{
		handlers:    handlers,
		store:       store,
		coordinator: coordinator,
		idleTimeout: DefaultIdleTimeout,
		log:         log,
		entities:    make(map[uuid.UUID]*mailbox[S, C, E]),
	}
}

// SetIdleTimeout overrides DefaultIdleTimeout.
func (r *Runtime[S, C, E]) SetIdleTimeout(d time.Duration) { r.idleTimeout = d }

type taskKind int

const (
	taskCommand taskKind = iota
	taskQuery
	taskIdleCheck
)

type task[S any, C any, E any] struct {
	kind            taskKind
	cmd             C
	confirmationID  uuid.UUID
	deliveryAttempt int
	query           func(S)
	resp            chan askResult[E]
	enqueuedAt      time.Time
}

type askResult[E any] struct {
	event E
	err   error
}

type mailbox[S any, C any, E any] struct {
	entityID uuid.UUID
	inbox    chan *task[S, C, E]
	runtime  *Runtime[S, C, E]

	state     S
	seq       uint64
	recovered bool

	closed chan struct{}
}

func (r *Runtime[S, C, E]) owns(entityID uuid.UUID) bool {
	if r.coordinator == nil {
		return true
	}
	return r.coordinator.Owns(entityID.String())
}

// activate returns the mailbox for entityID, spinning up its goroutine if
// this is the first message since the runtime started (or since it was last
// passivated).
func (r *Runtime[S, C, E]) activate(entityID uuid.UUID) *mailbox[S, C, E] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.entities[entityID]; ok {
		return m
	}

	m := &mailbox[S, C, E]{
		entityID: entityID,
		inbox:    make(chan *task[S, C, E], 64),
		runtime:  r,
		closed:   make(chan struct{}),
	}
	r.entities[entityID] = m
	go m.run()
	return m
}

func (r *Runtime[S, C, E]) forget(entityID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entities, entityID)
}

// Ask enqueues cmd for entityID and blocks until the resulting event is
// durably journaled (or the command is rejected, or the ask times out).
// This is the confirmable-envelope contract of §4.3/§9: the caller only
// learns of success once persistence has actually happened.
func (r *Runtime[S, C, E]) Ask(ctx context.Context, entityID uuid.UUID, cmd C) (E, error) {
	var zero E
	if !r.owns(entityID) {
		return zero, ErrNotOwned
	}

	m := r.activate(entityID)
	t := &task[S, C, E]{
		kind:           taskCommand,
		cmd:            cmd,
		confirmationID: uuid.New(),
		resp:           make(chan askResult[E], 1),
		enqueuedAt:     time.Now(),
	}

	select {
	case m.inbox <- t:
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	timeout := DefaultAskTimeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-t.resp:
		return res.event, res.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-timer.C:
		return zero, ErrAskTimeout
	}
}

// Query runs fn against the entity's current in-memory state, serialized
// with respect to command processing on the same mailbox, and returns once
// fn has run. Used for read-only asks like GetAccount.
func (r *Runtime[S, C, E]) Query(ctx context.Context, entityID uuid.UUID, fn func(S)) error {
	if !r.owns(entityID) {
		return ErrNotOwned
	}

	m := r.activate(entityID)
	done := make(chan struct{})
	t := &task[S, C, E]{
		kind: taskQuery,
		query: func(s S) {
			fn(s)
			close(done)
		},
	}

	select {
	case m.inbox <- t:
	case <-ctx.Done():
		return ctx.Err()
	}

	timer := time.NewTimer(DefaultAskTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrAskTimeout
	}
}

// Passivate forces entityID out of memory after a final snapshot, e.g. once
// the account-closure finalizer confirms DeleteMessages succeeded (§4.8).
func (r *Runtime[S, C, E]) Passivate(entityID uuid.UUID) {
	r.mu.Lock()
	m, ok := r.entities[entityID]
	r.mu.Unlock()
	if !ok {
		return
	}
	close(m.closed)
}

func (m *mailbox[S, C, E]) run() {
	ctx := context.Background()
	r := m.runtime

	if err := m.recover(ctx); err != nil {
		if r.log != nil {
			r.log.Error("entity replay failed", zap.String("entity_id", m.entityID.String()), zap.Error(err))
		}
		r.forget(m.entityID)
		return
	}

	idleTimer := time.NewTimer(r.idleTimeout)
	defer idleTimer.Stop()

	for {
		select {
		case t := <-m.inbox:
			idleTimer.Reset(r.idleTimeout)
			m.handle(ctx, t)
		case <-idleTimer.C:
			m.snapshot(ctx)
			r.forget(m.entityID)
			return
		case <-m.closed:
			m.snapshot(ctx)
			r.forget(m.entityID)
			return
		}
	}
}

// recover loads the latest snapshot (if any) and replays the journal from
// there. Only Apply is invoked during replay — no PostPersist side effects
// fire, per §4.3.
func (m *mailbox[S, C, E]) recover(ctx context.Context) error {
	r := m.runtime
	h := r.handlers

	state := h.NewEmpty(m.entityID)
	fromSeq := uint64(0)

	snap, err := r.store.ReadLatestSnapshot(ctx, m.entityID.String())
	if err == nil {
		decoded, derr := h.DecodeSnapshot(snap.Payload)
		if derr != nil {
			return fmt.Errorf("decode snapshot: %w", derr)
		}
		state = decoded
		fromSeq = snap.Seq
	} else if err != journal.ErrNotFound {
		return fmt.Errorf("read snapshot: %w", err)
	}

	out, errc := r.store.ReadEvents(ctx, m.entityID.String(), fromSeq, 0)
	for rec := range out {
		evt, derr := h.DecodeEvent(rec.Kind, rec.Payload)
		if derr != nil {
			return fmt.Errorf("decode event seq %d: %w", rec.Seq, derr)
		}
		state = h.Apply(state, evt)
		fromSeq = rec.Seq
	}
	if err := <-errc; err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	m.state = state
	m.seq = fromSeq
	m.recovered = true
	return nil
}

func (m *mailbox[S, C, E]) handle(ctx context.Context, t *task[S, C, E]) {
	switch t.kind {
	case taskQuery:
		t.query(m.state)
	case taskCommand:
		m.handleCommand(ctx, t)
	}
}

func (m *mailbox[S, C, E]) handleCommand(ctx context.Context, t *task[S, C, E]) {
	r := m.runtime
	h := r.handlers

	evt, err := h.Decide(m.state, t.cmd)
	if err != nil {
		t.resp <- askResult[E]{err: err}
		return
	}

	payload, err := h.EncodeEvent(evt)
	if err != nil {
		t.resp <- askResult[E]{err: fmt.Errorf("encode event: %w", err)}
		return
	}

	newSeq, err := r.store.AppendEvents(ctx, m.entityID.String(), m.seq, []journal.Record{{
		Tag:     h.Tag,
		Kind:    h.EventKind(evt),
		Payload: payload,
	}})
	if err != nil {
		if h.OnPersistFailed != nil {
			h.OnPersistFailed(ctx, m.entityID, t.cmd, err)
		}
		t.resp <- askResult[E]{err: fmt.Errorf("persist failed: %w", err)}
		return
	}

	m.seq = newSeq
	m.state = h.Apply(m.state, evt)
	t.resp <- askResult[E]{event: evt}

	// PostPersist runs off the mailbox's own goroutine: a side effect that
	// issues a command back against this same entity (e.g. the billing
	// handler charging its own maintenance fee) would otherwise deadlock
	// waiting for a response the mailbox can never produce, since the
	// mailbox loop is the thing blocked running PostPersist.
	if h.PostPersist != nil {
		state := m.state
		go h.PostPersist(ctx, m.entityID, evt, state)
	}
}

func (m *mailbox[S, C, E]) snapshot(ctx context.Context) {
	r := m.runtime
	h := r.handlers

	payload, err := h.EncodeSnapshot(m.state)
	if err != nil {
		if r.log != nil {
			r.log.Error("encode snapshot failed", zap.String("entity_id", m.entityID.String()), zap.Error(err))
		}
		return
	}
	if err := r.store.WriteSnapshot(ctx, journal.Snapshot{
		EntityID: m.entityID.String(),
		Seq:      m.seq,
		Tag:      h.Tag,
		Payload:  payload,
	}); err != nil && r.log != nil {
		r.log.Error("write snapshot failed", zap.String("entity_id", m.entityID.String()), zap.Error(err))
	}
}

// RecoverKnownEntities implements "remember-entities" (§4.3): it streams
// every distinct entity id the journal has recorded under this runtime's
// tag and activates each, warming its in-memory state from snapshot+replay
// so a freshly-restarted node doesn't wait for the next inbound message to
// rebuild state for entities it's responsible for.
func (r *Runtime[S, C, E]) RecoverKnownEntities(ctx context.Context) error {
	seen := make(map[uuid.UUID]struct{})
	out, errc := r.store.CurrentEventsByTag(ctx, r.handlers.Tag)
	for rec := range out {
		id, err := uuid.Parse(rec.EntityID)
		if err != nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if r.owns(id) {
			r.activate(id)
		}
	}
	return <-errc
}
