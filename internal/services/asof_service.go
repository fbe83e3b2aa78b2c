package services

import (
	"context"
	"iter"
	"time"

	"github.com/entity-history/backend/internal/metrics"
	"github.com/entity-history/backend/internal/models"
	"github.com/entity-history/backend/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// AsOfService reconstructs entity state at a point in time.
type AsOfService struct {
	store    store.Store
	pageSize int
	log      *zap.Logger
	now      func() time.Time
}

func NewAsOfService(st store.Store, pageSize int, log *zap.Logger) *AsOfService {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &AsOfService{store: st, pageSize: pageSize, log: log, now: time.Now}
}

// All yields one snapshot per entity valid at ts, ordered by entity_uid.
// Each page is read in its own transaction; the sequence keeps no state
// between calls and can be ranged over again. Filter paging fields are ignored.
func (s *AsOfService) All(ctx context.Context, ts time.Time, f models.EntityFilter) iter.Seq2[models.Snapshot, error] {
	ts = ts.UTC()
	f.Limit, f.Offset = 0, 0
	return func(yield func(models.Snapshot, error) bool) {
		metrics.ReadsTotal.WithLabelValues("as_of_all").Inc()
		after := uuid.Nil
		for {
			page, err := s.page(ctx, ts, f, after)
			if err != nil {
				yield(models.Snapshot{}, err)
				return
			}
			for _, snap := range page {
				if !yield(snap, nil) {
					return
				}
			}
			if len(page) < s.pageSize {
				return
			}
			after = page[len(page)-1].EntityUID()
		}
	}
}

func (s *AsOfService) page(ctx context.Context, ts time.Time, f models.EntityFilter, after uuid.UUID) ([]models.Snapshot, error) {
	var snaps []models.Snapshot
	err := s.store.ReadTx(ctx, func(tx store.Tx) error {
		versions, err := tx.Entities().ListAsOf(ctx, ts, f, after, s.pageSize)
		if err != nil {
			return err
		}
		uids := make([]uuid.UUID, len(versions))
		for i, v := range versions {
			uids[i] = v.EntityUID
		}
		details, err := tx.Details().AsOfForEntities(ctx, uids, ts)
		if err != nil {
			return err
		}
		snaps = assembleSnapshots(ts, versions, details)
		return nil
	})
	return snaps, err
}

func assembleSnapshots(ts time.Time, versions []models.EntityVersion, details []models.DetailVersion) []models.Snapshot {
	byEntity := make(map[uuid.UUID][]models.DetailVersion, len(versions))
	for _, d := range details {
		byEntity[d.EntityUID] = append(byEntity[d.EntityUID], d)
	}
	snaps := make([]models.Snapshot, 0, len(versions))
	for _, v := range versions {
		ds := byEntity[v.EntityUID]
		if ds == nil {
			ds = []models.DetailVersion{}
		}
		snaps = append(snaps, models.Snapshot{AsOf: ts, Entity: v, Details: ds})
	}
	return snaps
}

// Resolve materialises All, honouring the filter's offset and limit.
func (s *AsOfService) Resolve(ctx context.Context, ts time.Time, f models.EntityFilter) ([]models.Snapshot, error) {
	out := []models.Snapshot{}
	skip := f.Offset
	for snap, err := range s.All(ctx, ts, f) {
		if err != nil {
			return nil, err
		}
		if skip > 0 {
			skip--
			continue
		}
		out = append(out, snap)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// Get returns one entity as of ts.
func (s *AsOfService) Get(ctx context.Context, uid uuid.UUID, ts time.Time) (models.Snapshot, error) {
	metrics.ReadsTotal.WithLabelValues("as_of").Inc()
	ts = ts.UTC()
	var snap models.Snapshot
	err := s.store.ReadTx(ctx, func(tx store.Tx) error {
		v, err := tx.Entities().AsOf(ctx, uid, ts)
		if err != nil {
			return err
		}
		details, err := tx.Details().AsOfForEntities(ctx, []uuid.UUID{uid}, ts)
		if err != nil {
			return err
		}
		snap = assembleSnapshots(ts, []models.EntityVersion{*v}, details)[0]
		return nil
	})
	return snap, err
}

// Current returns the current versions of an entity and its details.
func (s *AsOfService) Current(ctx context.Context, uid uuid.UUID) (models.Snapshot, error) {
	metrics.ReadsTotal.WithLabelValues("current").Inc()
	var snap models.Snapshot
	err := s.store.ReadTx(ctx, func(tx store.Tx) error {
		v, err := tx.Entities().Current(ctx, uid, false)
		if err != nil {
			return err
		}
		details, err := tx.Details().CurrentForEntity(ctx, uid)
		if err != nil {
			return err
		}
		snap = models.Snapshot{AsOf: s.now().UTC(), Entity: *v, Details: details}
		return nil
	})
	return snap, err
}

// ListCurrent pages current entities ordered by display name.
func (s *AsOfService) ListCurrent(ctx context.Context, f models.EntityFilter) ([]models.Snapshot, int, error) {
	metrics.ReadsTotal.WithLabelValues("list_current").Inc()
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var (
		snaps []models.Snapshot
		total int
	)
	now := s.now().UTC()
	err := s.store.ReadTx(ctx, func(tx store.Tx) error {
		versions, n, err := tx.Entities().ListCurrent(ctx, f)
		if err != nil {
			return err
		}
		total = n
		snaps = make([]models.Snapshot, 0, len(versions))
		for _, v := range versions {
			details, err := tx.Details().CurrentForEntity(ctx, v.EntityUID)
			if err != nil {
				return err
			}
			snaps = append(snaps, models.Snapshot{AsOf: now, Entity: v, Details: details})
		}
		return nil
	})
	return snaps, total, err
}
