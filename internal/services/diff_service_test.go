package services

import (
	"context"
	"testing"
	"time"

	"github.com/entity-history/backend/internal/models"
	"github.com/entity-history/backend/internal/store"
	"github.com/entity-history/backend/internal/store/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffEntityRename(t *testing.T) {
	f := newFixture(t)
	uid := johnScenario(t, f)

	d, err := f.diff.DiffEntity(context.Background(), uid, t0, t1)
	require.NoError(t, err)
	assert.Empty(t, d.Created)
	assert.Empty(t, d.Closed)
	require.Len(t, d.Updated, 1)
	c := d.Updated[0]
	assert.Equal(t, models.StreamEntity, c.Stream)
	assert.Equal(t, uid, c.EntityUID)
	assert.Equal(t, "John Doe", c.Before.Fields["display_name"])
	assert.Equal(t, "John Smith", c.After.Fields["display_name"])
	require.Len(t, c.Fields, 1)
	assert.Equal(t, "display_name", c.Fields[0].Field)
}

func TestDiffPartitions(t *testing.T) {
	st := memory.NewSeeded()
	f := newFixtureWithStore(t, st, 2)
	ctx := context.Background()

	renamed := johnScenario(t, f)
	untouched := f.mustCreate(t, write("Still", t0)).EntityUID
	born := f.mustCreate(t, write("Newborn", t1.Add(time.Hour), phone("+1"))).EntityUID

	// close a detail stream directly; writes never close without reopening
	require.NoError(t, st.WriteTx(ctx, func(tx store.Tx) error {
		_, err := tx.Details().Close(ctx, models.DetailKey{EntityUID: renamed, DetailType: "EMAIL"}, t2)
		return err
	}))

	d, err := f.diff.Diff(ctx, t0, t3)
	require.NoError(t, err)

	keys := map[string]string{}
	for kind, changes := range map[string][]models.Change{"created": d.Created, "updated": d.Updated, "closed": d.Closed} {
		for _, c := range changes {
			k := c.EntityUID.String() + "/" + c.Stream + "/" + c.DetailType
			_, dup := keys[k]
			require.False(t, dup, "key %s in more than one partition", k)
			keys[k] = kind
		}
	}
	assert.Equal(t, "updated", keys[renamed.String()+"/entity/"])
	assert.Equal(t, "closed", keys[renamed.String()+"/entity_detail/EMAIL"])
	assert.Equal(t, "created", keys[born.String()+"/entity/"])
	assert.Equal(t, "created", keys[born.String()+"/entity_detail/PHONE"])
	for k := range keys {
		assert.NotContains(t, k, untouched.String())
	}
	assert.Equal(t, 4, d.Len())

	for _, c := range d.Created {
		assert.Nil(t, c.Before)
		assert.NotNil(t, c.After)
	}
	for _, c := range d.Closed {
		assert.NotNil(t, c.Before)
		assert.Nil(t, c.After)
	}
}

func TestDiffRanges(t *testing.T) {
	f := newFixture(t)
	johnScenario(t, f)
	ctx := context.Background()

	_, err := f.diff.Diff(ctx, t2, t1)
	assert.ErrorIs(t, err, models.ErrInvalidRange)

	same, err := f.diff.Diff(ctx, t1, t1)
	require.NoError(t, err)
	assert.True(t, same.IsEmpty())

	quiet, err := f.diff.Diff(ctx, t2, t3)
	require.NoError(t, err)
	assert.True(t, quiet.IsEmpty())

	_, err = f.diff.DiffEntity(ctx, uuid.New(), t0, t1)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDiffSortedAcrossBatches(t *testing.T) {
	f := newFixture(t)
	seedMany(t, f, 5)

	d, err := f.diff.Diff(context.Background(), t0.Add(-time.Hour), t1)
	require.NoError(t, err)
	require.Len(t, d.Created, 10)
	for i := 1; i < len(d.Created); i++ {
		assert.LessOrEqual(t, compareChange(d.Created[i-1], d.Created[i]), 0)
	}
}
