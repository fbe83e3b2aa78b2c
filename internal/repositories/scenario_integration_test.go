package repositories

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/entity-history/backend/internal/events"
	"github.com/entity-history/backend/internal/models"
	"github.com/entity-history/backend/internal/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Runs the create / update / replay / as-of / diff sequence through the
// services on PostgreSQL, so batch reads with uid filters hit real SQL.
func TestPostgresServiceScenarios(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	log := zap.NewNop()
	bus := events.NewLocalBus()
	transitions := services.NewTransitionService(s, bus, log)
	asOf := services.NewAsOfService(s, 2, log)
	diff := services.NewDiffService(s, 2, log)
	history := services.NewHistoryService(s, log)

	// Distinct instants per run keep reruns against the same database apart.
	t0 := time.Now().UTC().Truncate(time.Microsecond).Add(-time.Hour)
	t1 := t0.Add(10 * time.Minute)
	t2 := t0.Add(20 * time.Minute)

	person := "PERSON"
	write := func(uid uuid.UUID, name string, at time.Time, details ...models.DetailWrite) models.EntityWrite {
		return models.EntityWrite{
			EntityUID: uid, EntityType: &person, DisplayName: &name,
			Details: details, ChangeTS: at, Actor: models.Actor{ID: "integration"},
		}
	}

	// create
	created, err := transitions.Create(ctx, write(uuid.Nil, "John Doe", t0,
		models.DetailWrite{DetailType: "EMAIL", DetailValue: "john@doe.io"}))
	require.NoError(t, err)
	require.Equal(t, models.OutcomeCreated, created.Outcome)
	uid := created.EntityUID

	cur, err := asOf.Current(ctx, uid)
	require.NoError(t, err)
	assert.True(t, cur.Entity.ValidFrom.Equal(t0))
	assert.Nil(t, cur.Entity.ValidTo)

	// update
	updated, err := transitions.Update(ctx, write(uid, "John Smith", t1))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeUpdated, updated.Outcome)

	// identical replay
	replay, err := transitions.Update(ctx, write(uid, "John Smith", t2))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeUnchanged, replay.Outcome)

	hist, err := history.Assemble(ctx, uid)
	require.NoError(t, err)
	require.Len(t, hist.Versions, 2)
	require.NotNil(t, hist.Versions[0].Version.ValidTo)
	assert.True(t, hist.Versions[0].Version.ValidTo.Equal(t1))
	assert.Len(t, hist.Versions[0].Details, 1)

	// as-of, single and filtered batch
	at0, err := asOf.Get(ctx, uid, t0)
	require.NoError(t, err)
	assert.Equal(t, "John Doe", at0.Entity.DisplayName)
	at1, err := asOf.Get(ctx, uid, t1)
	require.NoError(t, err)
	assert.Equal(t, "John Smith", at1.Entity.DisplayName)

	snaps, err := asOf.Resolve(ctx, t0, models.EntityFilter{EntityUIDs: []uuid.UUID{uid}})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "John Doe", snaps[0].Entity.DisplayName)
	require.Len(t, snaps[0].Details, 1)
	assert.Equal(t, "john@doe.io", snaps[0].Details[0].DetailValue)

	// diff
	res, err := diff.DiffEntity(ctx, uid, t0, t1)
	require.NoError(t, err)
	assert.Empty(t, res.Created)
	assert.Empty(t, res.Closed)
	require.Len(t, res.Updated, 1)
	change := res.Updated[0]
	assert.Equal(t, models.StreamEntity, change.Stream)
	assert.Equal(t, "John Doe", change.Before.Fields["display_name"])
	assert.Equal(t, "John Smith", change.After.Fields["display_name"])

	all, err := diff.Diff(ctx, t0, t1)
	require.NoError(t, err)
	i := slices.IndexFunc(all.Updated, func(c models.Change) bool { return c.EntityUID == uid })
	require.GreaterOrEqual(t, i, 0, "entity missing from global diff")
	assert.Equal(t, "John Smith", all.Updated[i].After.Fields["display_name"])
}
