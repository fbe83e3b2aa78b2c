package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/entity-history/backend/internal/models"
	"github.com/google/uuid"
)

type detailStore struct{ t *tx }

func compareDetail(a, b models.DetailVersion) int {
	if c := compareUUID(a.EntityUID, b.EntityUID); c != 0 {
		return c
	}
	if c := strings.Compare(a.DetailType, b.DetailType); c != 0 {
		return c
	}
	return a.ValidFrom.Compare(b.ValidFrom)
}

func (s detailStore) Open(_ context.Context, v *models.DetailVersion) error {
	if err := s.t.checkWritable(); err != nil {
		return err
	}
	if err := validInterval(v.Interval); err != nil {
		return err
	}
	if _, ok := s.t.st.detailTypes[v.DetailType]; !ok {
		return models.UnknownReferencef("detail type %q", v.DetailType)
	}
	key := v.Key()
	versions := s.t.st.details[key]
	for _, existing := range versions {
		if v.ValidTo == nil && existing.IsCurrent {
			return models.NewConflict("entity_detail_current_uidx", false, nil)
		}
		if existing.Overlaps(v.Interval) {
			return models.NewConflict("entity_detail_no_overlap", false, nil)
		}
	}
	v.ID = s.t.st.id()
	v.IsCurrent = v.ValidTo == nil
	v.CreatedAt = s.t.now().UTC()
	versions = append(versions, *v)
	slices.SortFunc(versions, compareDetail)
	s.t.st.details[key] = versions
	return nil
}

func (s detailStore) Close(_ context.Context, key models.DetailKey, validTo time.Time) (*models.DetailVersion, error) {
	if err := s.t.checkWritable(); err != nil {
		return nil, err
	}
	versions := s.t.st.details[key]
	for i := range versions {
		if !versions[i].IsCurrent {
			continue
		}
		if err := validInterval(models.Interval{ValidFrom: versions[i].ValidFrom, ValidTo: &validTo}); err != nil {
			return nil, err
		}
		versions[i].ValidTo = &validTo
		versions[i].IsCurrent = false
		closed := versions[i]
		return &closed, nil
	}
	return nil, models.NotFoundf("current detail version %s", key)
}

func (s detailStore) Current(_ context.Context, key models.DetailKey, _ bool) (*models.DetailVersion, error) {
	for _, v := range s.t.st.details[key] {
		if v.IsCurrent {
			return &v, nil
		}
	}
	return nil, models.NotFoundf("current detail version %s", key)
}

func (s detailStore) AsOf(_ context.Context, key models.DetailKey, ts time.Time) (*models.DetailVersion, error) {
	for _, v := range s.t.st.details[key] {
		if v.Contains(ts) {
			return &v, nil
		}
	}
	return nil, models.NotFoundf("detail %s as of %s", key, ts.Format(time.RFC3339Nano))
}

func (s detailStore) History(_ context.Context, key models.DetailKey) ([]models.DetailVersion, error) {
	return slices.Clone(s.t.st.details[key]), nil
}

func (s detailStore) collect(keep func(models.DetailVersion) bool) []models.DetailVersion {
	var out []models.DetailVersion
	for _, versions := range s.t.st.details {
		for _, v := range versions {
			if keep(v) {
				out = append(out, v)
			}
		}
	}
	slices.SortFunc(out, compareDetail)
	return out
}

func (s detailStore) AsOfForEntities(_ context.Context, uids []uuid.UUID, ts time.Time) ([]models.DetailVersion, error) {
	return s.collect(func(v models.DetailVersion) bool {
		return slices.Contains(uids, v.EntityUID) && v.Contains(ts)
	}), nil
}

func (s detailStore) CurrentForEntity(_ context.Context, uid uuid.UUID) ([]models.DetailVersion, error) {
	return s.collect(func(v models.DetailVersion) bool {
		return v.EntityUID == uid && v.IsCurrent
	}), nil
}

func (s detailStore) HistoryForEntity(_ context.Context, uid uuid.UUID) ([]models.DetailVersion, error) {
	return s.collect(func(v models.DetailVersion) bool {
		return v.EntityUID == uid
	}), nil
}

func (s detailStore) All(_ context.Context) ([]models.DetailVersion, error) {
	return s.collect(func(models.DetailVersion) bool { return true }), nil
}
