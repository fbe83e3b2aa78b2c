package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/entity-history/backend/internal/events"
	"github.com/entity-history/backend/internal/models"
	"github.com/entity-history/backend/internal/store"
	"github.com/entity-history/backend/internal/store/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	t2 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	t3 = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	store      store.Store
	bus        *events.LocalBus
	mu         sync.Mutex
	published  []events.Event
	transition *TransitionService
	asOf       *AsOfService
	diff       *DiffService
	history    *HistoryService
	types      *RefTypeService
	verifier   *VerifierService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, memory.NewSeeded(), 2)
}

func newFixtureWithStore(t *testing.T, st store.Store, pageSize int) *fixture {
	t.Helper()
	log := zap.NewNop()
	f := &fixture{store: st, bus: events.NewLocalBus()}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, f.bus.Subscribe(ctx, events.StreamEntity, func(e events.Event) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.published = append(f.published, e)
	}))
	f.transition = NewTransitionService(st, f.bus, log)
	f.asOf = NewAsOfService(st, pageSize, log)
	f.diff = NewDiffService(st, pageSize, log)
	f.history = NewHistoryService(st, log)
	f.types = NewRefTypeService(st, f.bus, log)
	f.verifier = NewVerifierService(st, log)
	return f
}

func strPtr(s string) *string { return &s }

func write(name string, at time.Time, details ...models.DetailWrite) models.EntityWrite {
	return models.EntityWrite{
		EntityType:  strPtr("PERSON"),
		DisplayName: strPtr(name),
		Details:     details,
		ChangeTS:    at,
		Actor:       models.Actor{ID: "tester", RequestID: "req-1"},
	}
}

func email(v string) models.DetailWrite {
	return models.DetailWrite{DetailType: "EMAIL", DetailValue: v}
}

func phone(v string) models.DetailWrite {
	return models.DetailWrite{DetailType: "PHONE", DetailValue: v}
}

// mustCreate runs Create and expects a new entity.
func (f *fixture) mustCreate(t *testing.T, w models.EntityWrite) models.TransitionResult {
	t.Helper()
	res, err := f.transition.Create(context.Background(), w)
	require.NoError(t, err)
	require.Equal(t, models.OutcomeCreated, res.Outcome)
	return res
}

func (f *fixture) mustUpdate(t *testing.T, w models.EntityWrite) models.TransitionResult {
	t.Helper()
	res, err := f.transition.Update(context.Background(), w)
	require.NoError(t, err)
	return res
}

func (f *fixture) auditCount(t *testing.T, res models.TransitionResult) int {
	t.Helper()
	var n int
	require.NoError(t, f.store.ReadTx(context.Background(), func(tx store.Tx) error {
		recs, err := tx.Audit().ListByEntity(context.Background(), res.EntityUID, 1000, 0)
		n = len(recs)
		return err
	}))
	return n
}

func (f *fixture) events() []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]events.Event(nil), f.published...)
}
