package services

import (
	"context"
	"testing"
	"time"

	"github.com/entity-history/backend/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// johnScenario creates John Doe at t0 and renames him at t1.
func johnScenario(t *testing.T, f *fixture) uuid.UUID {
	t.Helper()
	created := f.mustCreate(t, write("John Doe", t0, email("john@doe.io")))
	w := write("John Smith", t1)
	w.EntityUID = created.EntityUID
	f.mustUpdate(t, w)
	return created.EntityUID
}

func TestGetAsOf(t *testing.T) {
	f := newFixture(t)
	uid := johnScenario(t, f)
	ctx := context.Background()

	tests := []struct {
		name    string
		at      time.Time
		want    string
		missing bool
	}{
		{"before creation", t0.Add(-time.Second), "", true},
		{"at creation", t0, "John Doe", false},
		{"just before change", t1.Add(-time.Nanosecond), "John Doe", false},
		{"at change", t1, "John Smith", false},
		{"far future", t3.AddDate(10, 0, 0), "John Smith", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := f.asOf.Get(ctx, uid, tt.at)
			if tt.missing {
				require.ErrorIs(t, err, models.ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, snap.Entity.DisplayName)
			d, ok := snap.Detail("EMAIL")
			require.True(t, ok)
			assert.Equal(t, "john@doe.io", d.DetailValue)
		})
	}
}

func TestAsOfRoundTrip(t *testing.T) {
	f := newFixture(t)
	uid := johnScenario(t, f)
	ctx := context.Background()

	h, err := f.history.Assemble(ctx, uid)
	require.NoError(t, err)
	for i, hv := range h.Versions {
		v := hv.Version
		got, err := f.asOf.Get(ctx, uid, v.ValidFrom)
		require.NoError(t, err)
		assert.Equal(t, v.ID, got.Entity.ID)
		if v.ValidTo == nil {
			continue
		}
		got, err = f.asOf.Get(ctx, uid, v.ValidTo.Add(-time.Nanosecond))
		require.NoError(t, err)
		assert.Equal(t, v.ID, got.Entity.ID)

		got, err = f.asOf.Get(ctx, uid, *v.ValidTo)
		require.NoError(t, err)
		assert.Equal(t, h.Versions[i+1].Version.ID, got.Entity.ID)
	}
}

func seedMany(t *testing.T, f *fixture, n int) []uuid.UUID {
	t.Helper()
	uids := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		res := f.mustCreate(t, write("Person", t0, email("p@x.io")))
		uids = append(uids, res.EntityUID)
	}
	return uids
}

func TestAllPagesAndRestarts(t *testing.T) {
	f := newFixture(t) // page size 2
	seedMany(t, f, 5)
	ctx := context.Background()

	collect := func() []uuid.UUID {
		var out []uuid.UUID
		for snap, err := range f.asOf.All(ctx, t1, models.EntityFilter{}) {
			require.NoError(t, err)
			require.Len(t, snap.Details, 1)
			out = append(out, snap.EntityUID())
		}
		return out
	}
	first := collect()
	require.Len(t, first, 5)
	for i := 1; i < len(first); i++ {
		assert.Less(t, first[i-1].String(), first[i].String())
	}
	assert.Equal(t, first, collect(), "sequence must be restartable")

	n := 0
	for range f.asOf.All(ctx, t1, models.EntityFilter{}) {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)

	var none int
	for range f.asOf.All(ctx, t0.Add(-time.Hour), models.EntityFilter{}) {
		none++
	}
	assert.Zero(t, none)
}

func TestResolveOffsetLimitAndFilter(t *testing.T) {
	f := newFixture(t)
	seedMany(t, f, 4)
	inst := write("Acme Corp", t0)
	inst.EntityType = strPtr("INSTITUTION")
	f.mustCreate(t, inst)
	ctx := context.Background()

	all, err := f.asOf.Resolve(ctx, t1, models.EntityFilter{})
	require.NoError(t, err)
	require.Len(t, all, 5)

	page, err := f.asOf.Resolve(ctx, t1, models.EntityFilter{Offset: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, all[1].EntityUID(), page[0].EntityUID())

	inst2, err := f.asOf.Resolve(ctx, t1, models.EntityFilter{EntityType: "INSTITUTION"})
	require.NoError(t, err)
	require.Len(t, inst2, 1)
	assert.Equal(t, "Acme Corp", inst2[0].Entity.DisplayName)

	byName, err := f.asOf.Resolve(ctx, t1, models.EntityFilter{Query: "acme"})
	require.NoError(t, err)
	assert.Len(t, byName, 1)
}

func TestListCurrent(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, write("zed", t0))
	f.mustCreate(t, write("Amy", t0, email("amy@x.io")))
	ctx := context.Background()

	list, total, err := f.asOf.ListCurrent(ctx, models.EntityFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, list, 2)
	assert.Equal(t, "Amy", list[0].Entity.DisplayName)
	assert.Len(t, list[0].Details, 1)
	assert.Empty(t, list[1].Details)
}
