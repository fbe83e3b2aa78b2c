package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/entity-history/backend/internal/events"
	"github.com/entity-history/backend/internal/models"
	"github.com/entity-history/backend/internal/store"
	"github.com/entity-history/backend/internal/store/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOpensCurrentVersion(t *testing.T) {
	f := newFixture(t)
	res := f.mustCreate(t, write("John Doe", t0, email("john@doe.io")))

	assert.Equal(t, models.OutcomeCreated, res.EntityOutcome)
	require.NotNil(t, res.Entity)
	assert.True(t, res.Entity.ValidFrom.Equal(t0))
	assert.Nil(t, res.Entity.ValidTo)
	assert.True(t, res.Entity.IsCurrent)
	require.Len(t, res.Details, 1)
	assert.Equal(t, models.OutcomeCreated, res.Details[0].Outcome)

	snap, err := f.asOf.Current(context.Background(), res.EntityUID)
	require.NoError(t, err)
	assert.Equal(t, "John Doe", snap.Entity.DisplayName)
	assert.True(t, snap.Entity.ValidFrom.Equal(t0))
	assert.Nil(t, snap.Entity.ValidTo)

	assert.Equal(t, 2, f.auditCount(t, res))
	evs := f.events()
	require.Len(t, evs, 1)
	assert.Equal(t, events.EventEntityCreated, evs[0].Type)
}

func TestUpdateClosesAndOpens(t *testing.T) {
	f := newFixture(t)
	created := f.mustCreate(t, write("John Doe", t0))

	w := write("John Smith", t1)
	w.EntityUID = created.EntityUID
	res := f.mustUpdate(t, w)
	assert.Equal(t, models.OutcomeUpdated, res.Outcome)
	assert.Equal(t, models.OutcomeUpdated, res.EntityOutcome)

	h, err := f.history.Assemble(context.Background(), created.EntityUID)
	require.NoError(t, err)
	require.Len(t, h.Versions, 2)
	first, second := h.Versions[0].Version, h.Versions[1].Version
	assert.Equal(t, "John Doe", first.DisplayName)
	require.NotNil(t, first.ValidTo)
	assert.True(t, first.ValidTo.Equal(t1))
	assert.False(t, first.IsCurrent)
	assert.Equal(t, "John Smith", second.DisplayName)
	assert.True(t, second.ValidFrom.Equal(t1))
	assert.True(t, second.IsCurrent)

	recs, err := f.history.AuditTrail(context.Background(), created.EntityUID, 10, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, models.AuditActionUpdate, recs[0].Action)
	assert.Equal(t, "John Doe", recs[0].Before["display_name"])
	assert.Equal(t, "John Smith", recs[0].After["display_name"])
	require.NotNil(t, recs[0].RequestID)
	assert.Equal(t, "req-1", *recs[0].RequestID)
}

func TestReplayIsUnchanged(t *testing.T) {
	f := newFixture(t)
	created := f.mustCreate(t, write("John Doe", t0, email("john@doe.io")))
	w := write("John Smith", t1, email("john@doe.io"))
	w.EntityUID = created.EntityUID
	f.mustUpdate(t, w)
	audits := f.auditCount(t, created)
	published := len(f.events())

	replay := write("john smith ", t2, email("JOHN@doe.io"))
	replay.EntityUID = created.EntityUID
	res := f.mustUpdate(t, replay)
	assert.Equal(t, models.OutcomeUnchanged, res.Outcome)
	assert.False(t, res.Changed())
	assert.Equal(t, models.OutcomeUnchanged, res.Details[0].Outcome)

	h, err := f.history.Assemble(context.Background(), created.EntityUID)
	require.NoError(t, err)
	assert.Len(t, h.Versions, 2)
	assert.Equal(t, audits, f.auditCount(t, created), "unchanged writes are not audited")
	assert.Len(t, f.events(), published, "unchanged writes publish nothing")
}

func TestOutOfOrderWritesRejected(t *testing.T) {
	f := newFixture(t)
	created := f.mustCreate(t, write("John Doe", t1, email("a@x.io")))

	tests := []struct {
		name string
		w    models.EntityWrite
	}{
		{"entity before current", write("Earlier", t0)},
		{"entity at current start", write("Same instant", t1)},
		{"detail at current start", write("John Doe", t1, email("b@x.io"))},
		{"new detail before entity", write("John Doe", t0, phone("+100"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.w.EntityUID = created.EntityUID
			_, err := f.transition.Update(context.Background(), tt.w)
			require.ErrorIs(t, err, models.ErrInvalidRange)
		})
	}

	h, err := f.history.Assemble(context.Background(), created.EntityUID)
	require.NoError(t, err)
	assert.Len(t, h.Versions, 1)
}

func TestDetailOnlyChange(t *testing.T) {
	f := newFixture(t)
	created := f.mustCreate(t, write("Jane", t0, email("jane@x.io")))

	w := models.EntityWrite{
		EntityUID: created.EntityUID,
		Details:   []models.DetailWrite{phone("+1 555"), email("jane@x.io")},
		ChangeTS:  t1,
		Actor:     models.Actor{ID: "tester"},
	}
	res := f.mustUpdate(t, w)
	assert.Equal(t, models.OutcomeUpdated, res.Outcome)
	assert.Equal(t, models.OutcomeUnchanged, res.EntityOutcome)
	require.Len(t, res.Details, 2)
	// sorted by detail type
	assert.Equal(t, "EMAIL", res.Details[0].DetailType)
	assert.Equal(t, models.OutcomeUnchanged, res.Details[0].Outcome)
	assert.Equal(t, "PHONE", res.Details[1].DetailType)
	assert.Equal(t, models.OutcomeCreated, res.Details[1].Outcome)
	assert.Equal(t, "+1 555", res.Details[1].Version.DetailValue)
}

func TestWriteValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	noName := write("x", t0)
	noName.DisplayName = nil
	_, err := f.transition.Create(ctx, noName)
	assert.ErrorIs(t, err, models.ErrValidation)

	noTS := write("x", time.Time{})
	_, err = f.transition.Create(ctx, noTS)
	assert.ErrorIs(t, err, models.ErrValidation)

	noActor := write("x", t0)
	noActor.Actor = models.Actor{}
	_, err = f.transition.Create(ctx, noActor)
	assert.ErrorIs(t, err, models.ErrValidation)

	dup := write("x", t0, email("a@x.io"), email("b@x.io"))
	_, err = f.transition.Create(ctx, dup)
	assert.ErrorIs(t, err, models.ErrValidation)

	missing := write("x", t0)
	missing.EntityUID = uuid.New()
	_, err = f.transition.Update(ctx, missing)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreateWithSuppliedUID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := uuid.New()

	w := write("Fixed", t0)
	w.EntityUID = uid
	res, err := f.transition.Create(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, uid, res.EntityUID)

	again := write("Fixed", t1)
	again.EntityUID = uid
	_, err = f.transition.Create(ctx, again)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestUnknownAndInactiveTypes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	robot := write("R2", t0)
	robot.EntityType = strPtr("robot")
	_, err := f.transition.Create(ctx, robot)
	assert.ErrorIs(t, err, models.ErrUnknownReference)

	_, err = f.types.SetActive(ctx, models.RefKindDetail, "phone", false)
	require.NoError(t, err)
	_, err = f.transition.Create(ctx, write("Ann", t0, phone("+1")))
	assert.ErrorIs(t, err, models.ErrUnknownReference)
}

func TestApplyUpsertsByUID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := uuid.New()

	w := write("Upsert", t0)
	w.EntityUID = uid
	res, err := f.transition.Apply(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCreated, res.Outcome)
	assert.Equal(t, uid, res.EntityUID)

	w.ChangeTS = t1
	w.DisplayName = strPtr("Upserted")
	res, err = f.transition.Apply(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeUpdated, res.Outcome)
}

// failingAudit wraps a store so every audit write fails.
type failingAudit struct {
	store.Store
}

type failingTx struct {
	store.Tx
}

type brokenSink struct {
	store.AuditSink
}

var errAuditDown = errors.New("audit sink down")

func (brokenSink) Record(context.Context, models.AuditRecord) error { return errAuditDown }

func (t failingTx) Audit() store.AuditSink { return brokenSink{t.Tx.Audit()} }

func (s failingAudit) WriteTx(ctx context.Context, fn func(store.Tx) error) error {
	return s.Store.WriteTx(ctx, func(tx store.Tx) error { return fn(failingTx{tx}) })
}

func TestAuditFailureRollsBack(t *testing.T) {
	base := memory.NewSeeded()
	f := newFixtureWithStore(t, failingAudit{base}, 10)

	_, err := f.transition.Create(context.Background(), write("Ghost", t0, email("g@x.io")))
	require.ErrorIs(t, err, errAuditDown)

	list, total, err := f.asOf.ListCurrent(context.Background(), models.EntityFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)
	assert.Empty(t, f.events())
}

func TestConcurrentUpdatesKeepInvariants(t *testing.T) {
	f := newFixture(t)
	created := f.mustCreate(t, write("Base", t0))

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := write(fmt.Sprintf("Name %d", i), t0.Add(time.Duration(i+1)*time.Hour))
			w.EntityUID = created.EntityUID
			_, errs[i] = f.transition.Update(context.Background(), w)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, models.ErrInvalidRange)
	}
	assert.Positive(t, succeeded)

	h, err := f.history.Assemble(context.Background(), created.EntityUID)
	require.NoError(t, err)
	assert.Len(t, h.Versions, succeeded+1)

	report, err := f.verifier.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK(), "violations: %+v", report.Violations)
}
