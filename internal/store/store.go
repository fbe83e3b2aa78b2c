// Package store declares the persistence contracts for the two versioned
// streams. Implementations live in internal/repositories (PostgreSQL) and
// internal/store/memory.
package store

import (
	"context"
	"time"

	"github.com/entity-history/backend/internal/models"
	"github.com/google/uuid"
)

// EntityVersions is the interval store for the entity stream.
type EntityVersions interface {
	// Open inserts a new current version. It fails with a conflict when the
	// key already has a current version or the interval overlaps history.
	Open(ctx context.Context, v *models.EntityVersion) error
	// Close sets valid_to on the current version and clears is_current.
	Close(ctx context.Context, uid uuid.UUID, validTo time.Time) (*models.EntityVersion, error)
	Current(ctx context.Context, uid uuid.UUID, forUpdate bool) (*models.EntityVersion, error)
	AsOf(ctx context.Context, uid uuid.UUID, ts time.Time) (*models.EntityVersion, error)
	History(ctx context.Context, uid uuid.UUID) ([]models.EntityVersion, error)

	// ListAsOf returns versions valid at ts ordered by entity_uid, starting
	// strictly after the given uid (uuid.Nil for the first page).
	ListAsOf(ctx context.Context, ts time.Time, f models.EntityFilter, after uuid.UUID, limit int) ([]models.EntityVersion, error)
	// ListCurrent returns current versions ordered by display_name and the total match count.
	ListCurrent(ctx context.Context, f models.EntityFilter) ([]models.EntityVersion, int, error)
	// ChangedBetween returns entity uids with any version boundary of either
	// stream inside (from, to].
	ChangedBetween(ctx context.Context, from, to time.Time) ([]uuid.UUID, error)
	// All returns every version of every entity ordered by entity_uid, valid_from.
	All(ctx context.Context) ([]models.EntityVersion, error)
}

// DetailVersions is the interval store for the detail stream.
type DetailVersions interface {
	Open(ctx context.Context, v *models.DetailVersion) error
	Close(ctx context.Context, key models.DetailKey, validTo time.Time) (*models.DetailVersion, error)
	Current(ctx context.Context, key models.DetailKey, forUpdate bool) (*models.DetailVersion, error)
	AsOf(ctx context.Context, key models.DetailKey, ts time.Time) (*models.DetailVersion, error)
	History(ctx context.Context, key models.DetailKey) ([]models.DetailVersion, error)

	AsOfForEntities(ctx context.Context, uids []uuid.UUID, ts time.Time) ([]models.DetailVersion, error)
	CurrentForEntity(ctx context.Context, uid uuid.UUID) ([]models.DetailVersion, error)
	// HistoryForEntity returns all detail versions of an entity ordered by detail_type, valid_from.
	HistoryForEntity(ctx context.Context, uid uuid.UUID) ([]models.DetailVersion, error)
	All(ctx context.Context) ([]models.DetailVersion, error)
}

type AuditSink interface {
	Record(ctx context.Context, rec models.AuditRecord) error
	ListByEntity(ctx context.Context, uid uuid.UUID, limit, offset int) ([]models.AuditRecord, error)
}

type ReferenceTypes interface {
	List(ctx context.Context, kind string) ([]models.RefType, error)
	Get(ctx context.Context, kind, code string) (*models.RefType, error)
	Create(ctx context.Context, kind string, t *models.RefType) error
	SetActive(ctx context.Context, kind, code string, active bool) (*models.RefType, error)
}

// Tx is one unit of work over every store.
type Tx interface {
	Entities() EntityVersions
	Details() DetailVersions
	Audit() AuditSink
	Types() ReferenceTypes
}

type Store interface {
	// WriteTx runs fn in a serializable unit of work. fn may be invoked more
	// than once when the backend retries a serialization failure.
	WriteTx(ctx context.Context, fn func(Tx) error) error
	// ReadTx runs fn against a consistent read-only snapshot.
	ReadTx(ctx context.Context, fn func(Tx) error) error
}
