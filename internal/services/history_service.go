package services

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/entity-history/backend/internal/metrics"
	"github.com/entity-history/backend/internal/models"
	"github.com/entity-history/backend/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type HistoryService struct {
	store store.Store
	log   *zap.Logger
}

func NewHistoryService(st store.Store, log *zap.Logger) *HistoryService {
	return &HistoryService{store: st, log: log}
}

// Assemble returns every entity version of uid paired with the detail
// versions overlapping it, plus a merged timeline of both streams.
func (s *HistoryService) Assemble(ctx context.Context, uid uuid.UUID) (models.History, error) {
	metrics.ReadsTotal.WithLabelValues("history").Inc()
	var (
		entities []models.EntityVersion
		details  []models.DetailVersion
	)
	err := s.store.ReadTx(ctx, func(tx store.Tx) error {
		var err error
		if entities, err = tx.Entities().History(ctx, uid); err != nil {
			return err
		}
		if len(entities) == 0 {
			return models.NotFoundf("entity %s", uid)
		}
		details, err = tx.Details().HistoryForEntity(ctx, uid)
		return err
	})
	if err != nil {
		return models.History{}, err
	}
	return buildHistory(uid, entities, details), nil
}

func buildHistory(uid uuid.UUID, entities []models.EntityVersion, details []models.DetailVersion) models.History {
	h := models.History{
		EntityUID: uid,
		Versions:  make([]models.HistoryVersion, 0, len(entities)),
		Timeline:  make([]models.TimelineEvent, 0, len(entities)+len(details)),
	}
	for _, v := range entities {
		hv := models.HistoryVersion{Version: v, Details: []models.DetailVersion{}}
		for _, d := range details {
			if d.Overlaps(v.Interval) {
				hv.Details = append(hv.Details, d)
			}
		}
		h.Versions = append(h.Versions, hv)
	}

	var prev map[string]any
	for _, v := range entities {
		fields := v.Fields()
		h.Timeline = append(h.Timeline, models.TimelineEvent{
			Stream:    models.StreamEntity,
			Hashdiff:  v.Hashdiff,
			IsCurrent: v.IsCurrent,
			Changes:   changeMap(prev, fields),
			Interval:  v.Interval,
		})
		prev = fields
	}
	// details arrive ordered by detail_type, valid_from
	prevByType := make(map[string]map[string]any)
	for _, d := range details {
		fields := d.Fields()
		h.Timeline = append(h.Timeline, models.TimelineEvent{
			Stream:     models.StreamDetail,
			DetailType: d.DetailType,
			Hashdiff:   d.Hashdiff,
			IsCurrent:  d.IsCurrent,
			Changes:    changeMap(prevByType[d.DetailType], fields),
			Interval:   d.Interval,
		})
		prevByType[d.DetailType] = fields
	}
	slices.SortStableFunc(h.Timeline, func(a, b models.TimelineEvent) int {
		return cmp.Or(
			a.ValidFrom.Compare(b.ValidFrom),
			strings.Compare(a.Stream, b.Stream),
			strings.Compare(a.DetailType, b.DetailType),
		)
	})
	return h
}

func changeMap(before, after map[string]any) map[string]models.FieldChange {
	out := make(map[string]models.FieldChange)
	for _, fc := range fieldChanges(before, after) {
		out[fc.Field] = fc
	}
	return out
}

// AuditTrail lists audit records of an entity, newest first.
func (s *HistoryService) AuditTrail(ctx context.Context, uid uuid.UUID, limit, offset int) ([]models.AuditRecord, error) {
	metrics.ReadsTotal.WithLabelValues("audit").Inc()
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	var records []models.AuditRecord
	err := s.store.ReadTx(ctx, func(tx store.Tx) error {
		hist, err := tx.Entities().History(ctx, uid)
		if err != nil {
			return err
		}
		if len(hist) == 0 {
			return models.NotFoundf("entity %s", uid)
		}
		records, err = tx.Audit().ListByEntity(ctx, uid, limit, offset)
		return err
	})
	return records, err
}
