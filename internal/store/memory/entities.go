package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/entity-history/backend/internal/models"
	"github.com/google/uuid"
)

type entityStore struct{ t *tx }

func (s entityStore) Open(_ context.Context, v *models.EntityVersion) error {
	if err := s.t.checkWritable(); err != nil {
		return err
	}
	if err := validInterval(v.Interval); err != nil {
		return err
	}
	if _, ok := s.t.st.entityTypes[v.EntityType]; !ok {
		return models.UnknownReferencef("entity type %q", v.EntityType)
	}
	versions := s.t.st.entities[v.EntityUID]
	for _, existing := range versions {
		if v.ValidTo == nil && existing.IsCurrent {
			return models.NewConflict("entity_current_uidx", false, nil)
		}
		if existing.Overlaps(v.Interval) {
			return models.NewConflict("entity_no_overlap", false, nil)
		}
	}
	v.ID = s.t.st.id()
	v.IsCurrent = v.ValidTo == nil
	v.CreatedAt = s.t.now().UTC()
	versions = append(versions, *v)
	slices.SortFunc(versions, func(a, b models.EntityVersion) int { return a.ValidFrom.Compare(b.ValidFrom) })
	s.t.st.entities[v.EntityUID] = versions
	return nil
}

func (s entityStore) Close(_ context.Context, uid uuid.UUID, validTo time.Time) (*models.EntityVersion, error) {
	if err := s.t.checkWritable(); err != nil {
		return nil, err
	}
	versions := s.t.st.entities[uid]
	for i := range versions {
		if !versions[i].IsCurrent {
			continue
		}
		iv := models.Interval{ValidFrom: versions[i].ValidFrom, ValidTo: &validTo}
		if err := validInterval(iv); err != nil {
			return nil, err
		}
		versions[i].ValidTo = &validTo
		versions[i].IsCurrent = false
		closed := versions[i]
		return &closed, nil
	}
	return nil, models.NotFoundf("current entity version %s", uid)
}

func (s entityStore) Current(_ context.Context, uid uuid.UUID, _ bool) (*models.EntityVersion, error) {
	for _, v := range s.t.st.entities[uid] {
		if v.IsCurrent {
			return &v, nil
		}
	}
	return nil, models.NotFoundf("current entity version %s", uid)
}

func (s entityStore) AsOf(_ context.Context, uid uuid.UUID, ts time.Time) (*models.EntityVersion, error) {
	for _, v := range s.t.st.entities[uid] {
		if v.Contains(ts) {
			return &v, nil
		}
	}
	return nil, models.NotFoundf("entity %s as of %s", uid, ts.Format(time.RFC3339Nano))
}

func (s entityStore) History(_ context.Context, uid uuid.UUID) ([]models.EntityVersion, error) {
	return slices.Clone(s.t.st.entities[uid]), nil
}

func (s entityStore) sortedUIDs() []uuid.UUID {
	uids := make([]uuid.UUID, 0, len(s.t.st.entities))
	for uid := range s.t.st.entities {
		uids = append(uids, uid)
	}
	slices.SortFunc(uids, compareUUID)
	return uids
}

func (s entityStore) ListAsOf(_ context.Context, ts time.Time, f models.EntityFilter, after uuid.UUID, limit int) ([]models.EntityVersion, error) {
	var out []models.EntityVersion
	for _, uid := range s.sortedUIDs() {
		if after != uuid.Nil && !lessUUID(after, uid) {
			continue
		}
		for _, v := range s.t.st.entities[uid] {
			if v.Contains(ts) && f.Matches(v) {
				out = append(out, v)
				break
			}
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s entityStore) ListCurrent(_ context.Context, f models.EntityFilter) ([]models.EntityVersion, int, error) {
	var matched []models.EntityVersion
	for _, versions := range s.t.st.entities {
		for _, v := range versions {
			if v.IsCurrent && f.Matches(v) {
				matched = append(matched, v)
			}
		}
	}
	slices.SortFunc(matched, func(a, b models.EntityVersion) int {
		if c := strings.Compare(strings.ToLower(a.DisplayName), strings.ToLower(b.DisplayName)); c != 0 {
			return c
		}
		return compareUUID(a.EntityUID, b.EntityUID)
	})
	total := len(matched)
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return []models.EntityVersion{}, total, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

func (s entityStore) ChangedBetween(_ context.Context, from, to time.Time) ([]uuid.UUID, error) {
	changed := make(map[uuid.UUID]struct{})
	touches := func(iv models.Interval) bool {
		return inBoundary(iv.ValidFrom, from, to) || (iv.ValidTo != nil && inBoundary(*iv.ValidTo, from, to))
	}
	for uid, versions := range s.t.st.entities {
		for _, v := range versions {
			if touches(v.Interval) {
				changed[uid] = struct{}{}
				break
			}
		}
	}
	for key, versions := range s.t.st.details {
		for _, v := range versions {
			if touches(v.Interval) {
				changed[key.EntityUID] = struct{}{}
				break
			}
		}
	}
	out := make([]uuid.UUID, 0, len(changed))
	for uid := range changed {
		out = append(out, uid)
	}
	slices.SortFunc(out, compareUUID)
	return out, nil
}

func (s entityStore) All(_ context.Context) ([]models.EntityVersion, error) {
	var out []models.EntityVersion
	for _, uid := range s.sortedUIDs() {
		out = append(out, s.t.st.entities[uid]...)
	}
	return out, nil
}
