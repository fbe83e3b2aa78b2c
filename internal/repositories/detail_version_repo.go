package repositories

import (
	"context"
	"time"

	"github.com/entity-history/backend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const detailColumns = "id, entity_uid, detail_type, detail_value, hashdiff, valid_from, valid_to, is_current, created_at"

type DetailVersionRepo struct {
	db DBTX
}

func NewDetailVersionRepo(db DBTX) *DetailVersionRepo {
	return &DetailVersionRepo{db: db}
}

func scanDetail(row pgx.Row) (models.DetailVersion, error) {
	var v models.DetailVersion
	err := row.Scan(&v.ID, &v.EntityUID, &v.DetailType, &v.DetailValue, &v.Hashdiff,
		&v.ValidFrom, &v.ValidTo, &v.IsCurrent, &v.CreatedAt)
	if err != nil {
		return v, err
	}
	normalizeInterval(&v.Interval)
	v.CreatedAt = v.CreatedAt.UTC()
	return v, nil
}

func collectDetails(rows pgx.Rows, err error) ([]models.DetailVersion, error) {
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := []models.DetailVersion{}
	for rows.Next() {
		v, err := scanDetail(rows)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, v)
	}
	return out, mapError(rows.Err())
}

func (r *DetailVersionRepo) Open(ctx context.Context, v *models.DetailVersion) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO entity_detail (entity_uid, detail_type, detail_value, hashdiff, valid_from, valid_to, is_current)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, is_current, created_at
	`, v.EntityUID, v.DetailType, v.DetailValue, v.Hashdiff, v.ValidFrom, v.ValidTo, v.ValidTo == nil,
	).Scan(&v.ID, &v.IsCurrent, &v.CreatedAt)
	return mapError(err)
}

func (r *DetailVersionRepo) Close(ctx context.Context, key models.DetailKey, validTo time.Time) (*models.DetailVersion, error) {
	v, err := scanDetail(r.db.QueryRow(ctx, `
		UPDATE entity_detail SET valid_to = $3, is_current = FALSE
		WHERE entity_uid = $1 AND detail_type = $2 AND is_current
		RETURNING `+detailColumns, key.EntityUID, key.DetailType, validTo))
	if err != nil {
		return nil, notFound(err, "current detail version %s", key)
	}
	return &v, nil
}

func (r *DetailVersionRepo) Current(ctx context.Context, key models.DetailKey, forUpdate bool) (*models.DetailVersion, error) {
	query := `SELECT ` + detailColumns + ` FROM entity_detail WHERE entity_uid = $1 AND detail_type = $2 AND is_current`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	v, err := scanDetail(r.db.QueryRow(ctx, query, key.EntityUID, key.DetailType))
	if err != nil {
		return nil, notFound(err, "current detail version %s", key)
	}
	return &v, nil
}

func (r *DetailVersionRepo) AsOf(ctx context.Context, key models.DetailKey, ts time.Time) (*models.DetailVersion, error) {
	v, err := scanDetail(r.db.QueryRow(ctx, `
		SELECT `+detailColumns+` FROM entity_detail
		WHERE entity_uid = $1 AND detail_type = $2
		  AND valid_from <= $3 AND (valid_to IS NULL OR valid_to > $3)
	`, key.EntityUID, key.DetailType, ts))
	if err != nil {
		return nil, notFound(err, "detail %s as of %s", key, ts.Format(time.RFC3339Nano))
	}
	return &v, nil
}

func (r *DetailVersionRepo) History(ctx context.Context, key models.DetailKey) ([]models.DetailVersion, error) {
	return collectDetails(r.db.Query(ctx, `
		SELECT `+detailColumns+` FROM entity_detail
		WHERE entity_uid = $1 AND detail_type = $2
		ORDER BY valid_from
	`, key.EntityUID, key.DetailType))
}

func (r *DetailVersionRepo) AsOfForEntities(ctx context.Context, uids []uuid.UUID, ts time.Time) ([]models.DetailVersion, error) {
	if len(uids) == 0 {
		return []models.DetailVersion{}, nil
	}
	return collectDetails(r.db.Query(ctx, `
		SELECT `+detailColumns+` FROM entity_detail
		WHERE entity_uid = ANY($1) AND valid_from <= $2 AND (valid_to IS NULL OR valid_to > $2)
		ORDER BY entity_uid, detail_type
	`, uids, ts))
}

func (r *DetailVersionRepo) CurrentForEntity(ctx context.Context, uid uuid.UUID) ([]models.DetailVersion, error) {
	return collectDetails(r.db.Query(ctx, `
		SELECT `+detailColumns+` FROM entity_detail
		WHERE entity_uid = $1 AND is_current
		ORDER BY detail_type
	`, uid))
}

func (r *DetailVersionRepo) HistoryForEntity(ctx context.Context, uid uuid.UUID) ([]models.DetailVersion, error) {
	return collectDetails(r.db.Query(ctx, `
		SELECT `+detailColumns+` FROM entity_detail
		WHERE entity_uid = $1
		ORDER BY detail_type, valid_from
	`, uid))
}

func (r *DetailVersionRepo) All(ctx context.Context) ([]models.DetailVersion, error) {
	return collectDetails(r.db.Query(ctx, `
		SELECT `+detailColumns+` FROM entity_detail ORDER BY entity_uid, detail_type, valid_from
	`))
}
