package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/entity-history/backend/internal/models"
)

type typeStore struct{ t *tx }

func (s typeStore) table(kind string) (map[string]models.RefType, error) {
	switch kind {
	case models.RefKindEntity:
		return s.t.st.entityTypes, nil
	case models.RefKindDetail:
		return s.t.st.detailTypes, nil
	}
	return nil, models.Validationf("unknown reference kind %q", kind)
}

func (s typeStore) List(_ context.Context, kind string) ([]models.RefType, error) {
	tbl, err := s.table(kind)
	if err != nil {
		return nil, err
	}
	out := make([]models.RefType, 0, len(tbl))
	for _, t := range tbl {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b models.RefType) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}

func (s typeStore) Get(_ context.Context, kind, code string) (*models.RefType, error) {
	tbl, err := s.table(kind)
	if err != nil {
		return nil, err
	}
	t, ok := tbl[code]
	if !ok {
		return nil, models.NotFoundf("%s type %q", kind, code)
	}
	return &t, nil
}

func (s typeStore) Create(_ context.Context, kind string, t *models.RefType) error {
	if err := s.t.checkWritable(); err != nil {
		return err
	}
	tbl, err := s.table(kind)
	if err != nil {
		return err
	}
	if _, ok := tbl[t.Code]; ok {
		return models.NewConflict(kind+"_type_pkey", false, nil)
	}
	t.CreatedAt = s.t.now().UTC()
	tbl[t.Code] = *t
	return nil
}

func (s typeStore) SetActive(_ context.Context, kind, code string, active bool) (*models.RefType, error) {
	if err := s.t.checkWritable(); err != nil {
		return nil, err
	}
	tbl, err := s.table(kind)
	if err != nil {
		return nil, err
	}
	t, ok := tbl[code]
	if !ok {
		return nil, models.NotFoundf("%s type %q", kind, code)
	}
	t.IsActive = active
	tbl[code] = t
	return &t, nil
}
