// Package memory is an in-process store.Store. It enforces the same
// constraints as the PostgreSQL schema and is used by tests and by the API
// when STORE_BACKEND=memory.
package memory

import (
	"bytes"
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/entity-history/backend/internal/models"
	"github.com/entity-history/backend/internal/store"
	"github.com/google/uuid"
)

var errReadOnly = errors.New("memory store: write in read-only transaction")

// Seed codes applied by NewSeeded, matching migrations/0002.
var (
	SeedEntityTypes = []string{"PERSON", "INSTITUTION"}
	SeedDetailTypes = []string{"EMAIL", "PHONE", "ADDRESS"}
)

type state struct {
	nextID      int64
	entities    map[uuid.UUID][]models.EntityVersion
	details     map[models.DetailKey][]models.DetailVersion
	entityTypes map[string]models.RefType
	detailTypes map[string]models.RefType
	audit       []models.AuditRecord
}

func newState() *state {
	return &state{
		entities:    make(map[uuid.UUID][]models.EntityVersion),
		details:     make(map[models.DetailKey][]models.DetailVersion),
		entityTypes: make(map[string]models.RefType),
		detailTypes: make(map[string]models.RefType),
	}
}

// clone copies every container; version values are copied by value and
// never mutated through shared pointers.
func (s *state) clone() *state {
	c := &state{
		nextID:      s.nextID,
		entities:    make(map[uuid.UUID][]models.EntityVersion, len(s.entities)),
		details:     make(map[models.DetailKey][]models.DetailVersion, len(s.details)),
		entityTypes: maps.Clone(s.entityTypes),
		detailTypes: maps.Clone(s.detailTypes),
		audit:       slices.Clone(s.audit),
	}
	for k, v := range s.entities {
		c.entities[k] = slices.Clone(v)
	}
	for k, v := range s.details {
		c.details[k] = slices.Clone(v)
	}
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

type Store struct {
	mu    sync.RWMutex
	state *state
	now   func() time.Time
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{state: newState(), now: time.Now}
}

// NewSeeded returns a store holding the default reference types.
func NewSeeded() *Store {
	s := New()
	for _, code := range SeedEntityTypes {
		s.state.entityTypes[code] = models.RefType{Code: code, Name: code, IsActive: true, CreatedAt: s.now()}
	}
	for _, code := range SeedDetailTypes {
		s.state.detailTypes[code] = models.RefType{Code: code, Name: code, IsActive: true, CreatedAt: s.now()}
	}
	return s
}

// WriteTx serialises writers on a store-wide lock and applies fn's changes
// only when it returns nil.
func (s *Store) WriteTx(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&tx{st: work, writable: true, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) ReadTx(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&tx{st: s.state, now: s.now})
}

type tx struct {
	st       *state
	writable bool
	now      func() time.Time
}

func (t *tx) Entities() store.EntityVersions { return entityStore{t} }
func (t *tx) Details() store.DetailVersions  { return detailStore{t} }
func (t *tx) Audit() store.AuditSink         { return auditStore{t} }
func (t *tx) Types() store.ReferenceTypes    { return typeStore{t} }

func (t *tx) checkWritable() error {
	if !t.writable {
		return errReadOnly
	}
	return nil
}

func lessUUID(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

func compareUUID(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}

// validInterval mirrors the CHECK constraints on both version tables.
func validInterval(iv models.Interval) error {
	if iv.ValidTo != nil && !iv.ValidFrom.Before(*iv.ValidTo) {
		return models.InvalidRangef("valid_from %s must precede valid_to %s", iv.ValidFrom.Format(time.RFC3339Nano), iv.ValidTo.Format(time.RFC3339Nano))
	}
	return nil
}

func inBoundary(ts, from, to time.Time) bool {
	return ts.After(from) && !ts.After(to)
}
