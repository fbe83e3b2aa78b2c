package repositories

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/entity-history/backend/internal/metrics"
	"github.com/entity-history/backend/internal/models"
	"github.com/entity-history/backend/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store runs units of work against PostgreSQL.
type Store struct {
	pool       *pgxpool.Pool
	maxRetries int
	log        *zap.Logger
}

var _ store.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool, maxRetries int, log *zap.Logger) *Store {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Store{pool: pool, maxRetries: maxRetries, log: log}
}

var (
	writeOpts = pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadWrite}
	readOpts  = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
)

// WriteTx runs fn in a SERIALIZABLE transaction, retrying serialization
// failures and deadlocks up to maxRetries times.
func (s *Store) WriteTx(ctx context.Context, fn func(store.Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := s.run(ctx, writeOpts, fn)
		if err == nil {
			return nil
		}
		if !models.IsRetryable(err) || attempt >= s.maxRetries {
			return err
		}
		metrics.TxRetriesTotal.Inc()
		s.log.Warn("retrying write transaction", zap.Int("attempt", attempt+1), zap.Error(err))
		if err := backoff(ctx, attempt); err != nil {
			return err
		}
	}
}

func (s *Store) ReadTx(ctx context.Context, fn func(store.Tx) error) error {
	return s.run(ctx, readOpts, fn)
}

func (s *Store) run(ctx context.Context, opts pgx.TxOptions, fn func(store.Tx) error) error {
	err := pgx.BeginTxFunc(ctx, s.pool, opts, func(tx pgx.Tx) error {
		return fn(newTx(tx))
	})
	return mapError(err)
}

func backoff(ctx context.Context, attempt int) error {
	base := time.Duration(5*(1<<attempt)) * time.Millisecond
	wait := base + time.Duration(rand.Int64N(int64(base)))
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return errors.Join(ctx.Err(), models.NewConflict("serialization_failure", true, nil))
	case <-t.C:
		return nil
	}
}

type pgTx struct {
	entities *EntityVersionRepo
	details  *DetailVersionRepo
	audit    *AuditRepo
	types    *RefTypeRepo
}

func newTx(db DBTX) *pgTx {
	return &pgTx{
		entities: NewEntityVersionRepo(db),
		details:  NewDetailVersionRepo(db),
		audit:    NewAuditRepo(db),
		types:    NewRefTypeRepo(db),
	}
}

func (t *pgTx) Entities() store.EntityVersions { return t.entities }
func (t *pgTx) Details() store.DetailVersions  { return t.details }
func (t *pgTx) Audit() store.AuditSink         { return t.audit }
func (t *pgTx) Types() store.ReferenceTypes    { return t.types }
