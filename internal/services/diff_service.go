package services

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/entity-history/backend/internal/metrics"
	"github.com/entity-history/backend/internal/models"
	"github.com/entity-history/backend/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DiffService compares the state of all entities at two instants.
type DiffService struct {
	store     store.Store
	batchSize int
	log       *zap.Logger
}

func NewDiffService(st store.Store, batchSize int, log *zap.Logger) *DiffService {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &DiffService{store: st, batchSize: batchSize, log: log}
}

func checkDiffRange(from, to time.Time) error {
	if from.After(to) {
		return models.InvalidRangef("from %s is after to %s", from.Format(time.RFC3339Nano), to.Format(time.RFC3339Nano))
	}
	return nil
}

// Diff reports every entity and detail key whose version at to differs from
// its version at from. Only keys with a version boundary inside (from, to]
// can differ, so only those entities are compared.
func (s *DiffService) Diff(ctx context.Context, from, to time.Time) (models.DiffResult, error) {
	metrics.ReadsTotal.WithLabelValues("diff").Inc()
	from, to = from.UTC(), to.UTC()
	if err := checkDiffRange(from, to); err != nil {
		return models.DiffResult{}, err
	}
	result := models.NewDiffResult(from, to)
	if from.Equal(to) {
		return result, nil
	}

	err := s.store.ReadTx(ctx, func(tx store.Tx) error {
		uids, err := tx.Entities().ChangedBetween(ctx, from, to)
		if err != nil {
			return err
		}
		for batch := range slices.Chunk(uids, s.batchSize) {
			if err := s.compare(ctx, tx, batch, from, to, &result); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.DiffResult{}, err
	}
	sortDiff(&result)
	return result, nil
}

// DiffEntity restricts Diff to one entity.
func (s *DiffService) DiffEntity(ctx context.Context, uid uuid.UUID, from, to time.Time) (models.DiffResult, error) {
	metrics.ReadsTotal.WithLabelValues("diff_entity").Inc()
	from, to = from.UTC(), to.UTC()
	if err := checkDiffRange(from, to); err != nil {
		return models.DiffResult{}, err
	}
	result := models.NewDiffResult(from, to)
	err := s.store.ReadTx(ctx, func(tx store.Tx) error {
		hist, err := tx.Entities().History(ctx, uid)
		if err != nil {
			return err
		}
		if len(hist) == 0 {
			return models.NotFoundf("entity %s", uid)
		}
		if from.Equal(to) {
			return nil
		}
		return s.compare(ctx, tx, []uuid.UUID{uid}, from, to, &result)
	})
	if err != nil {
		return models.DiffResult{}, err
	}
	sortDiff(&result)
	return result, nil
}

type diffKey struct {
	stream     string
	entityUID  uuid.UUID
	detailType string
}

func (s *DiffService) compare(ctx context.Context, tx store.Tx, uids []uuid.UUID, from, to time.Time, result *models.DiffResult) error {
	before, err := s.state(ctx, tx, uids, from)
	if err != nil {
		return err
	}
	after, err := s.state(ctx, tx, uids, to)
	if err != nil {
		return err
	}

	for k, b := range before {
		a, ok := after[k]
		switch {
		case !ok:
			result.Closed = append(result.Closed, newChange(models.ChangeClosed, k, b, nil))
		case a.Hashdiff != b.Hashdiff:
			result.Updated = append(result.Updated, newChange(models.ChangeUpdated, k, b, a))
		}
	}
	for k, a := range after {
		if _, ok := before[k]; !ok {
			result.Created = append(result.Created, newChange(models.ChangeCreated, k, nil, a))
		}
	}
	return nil
}

func (s *DiffService) state(ctx context.Context, tx store.Tx, uids []uuid.UUID, ts time.Time) (map[diffKey]*models.VersionView, error) {
	entities, err := tx.Entities().ListAsOf(ctx, ts, models.EntityFilter{EntityUIDs: uids}, uuid.Nil, 0)
	if err != nil {
		return nil, fmt.Errorf("entities as of %s: %w", ts.Format(time.RFC3339Nano), err)
	}
	details, err := tx.Details().AsOfForEntities(ctx, uids, ts)
	if err != nil {
		return nil, fmt.Errorf("details as of %s: %w", ts.Format(time.RFC3339Nano), err)
	}
	out := make(map[diffKey]*models.VersionView, len(entities)+len(details))
	for _, v := range entities {
		out[diffKey{stream: models.StreamEntity, entityUID: v.EntityUID}] = models.EntityView(v)
	}
	for _, d := range details {
		out[diffKey{stream: models.StreamDetail, entityUID: d.EntityUID, detailType: d.DetailType}] = models.DetailView(d)
	}
	return out, nil
}

func newChange(kind string, k diffKey, before, after *models.VersionView) models.Change {
	return models.Change{
		Kind:       kind,
		Stream:     k.stream,
		EntityUID:  k.entityUID,
		DetailType: k.detailType,
		Before:     before,
		After:      after,
		Fields:     fieldChanges(fieldsOf(before), fieldsOf(after)),
	}
}

func fieldsOf(v *models.VersionView) map[string]any {
	if v == nil {
		return nil
	}
	return v.Fields
}

// fieldChanges lists attributes whose values differ, sorted by name.
func fieldChanges(before, after map[string]any) []models.FieldChange {
	names := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		names[k] = struct{}{}
	}
	for k := range after {
		names[k] = struct{}{}
	}
	var out []models.FieldChange
	for name := range names {
		b, a := before[name], after[name]
		if b == a {
			continue
		}
		out = append(out, models.FieldChange{Field: name, From: b, To: a})
	}
	slices.SortFunc(out, func(x, y models.FieldChange) int { return strings.Compare(x.Field, y.Field) })
	return out
}

func compareChange(a, b models.Change) int {
	if c := strings.Compare(a.EntityUID.String(), b.EntityUID.String()); c != 0 {
		return c
	}
	return cmp.Or(strings.Compare(a.Stream, b.Stream), strings.Compare(a.DetailType, b.DetailType))
}

func sortDiff(r *models.DiffResult) {
	slices.SortFunc(r.Created, compareChange)
	slices.SortFunc(r.Updated, compareChange)
	slices.SortFunc(r.Closed, compareChange)
}
