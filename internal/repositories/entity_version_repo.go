package repositories

import (
	"context"
	"strings"
	"time"

	"github.com/entity-history/backend/internal/models"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5"
)

const entityColumns = "id, entity_uid, entity_type, display_name, hashdiff, valid_from, valid_to, is_current, created_at"

type EntityVersionRepo struct {
	db DBTX
}

func NewEntityVersionRepo(db DBTX) *EntityVersionRepo {
	return &EntityVersionRepo{db: db}
}

func scanEntity(row pgx.Row) (models.EntityVersion, error) {
	var v models.EntityVersion
	err := row.Scan(&v.ID, &v.EntityUID, &v.EntityType, &v.DisplayName, &v.Hashdiff,
		&v.ValidFrom, &v.ValidTo, &v.IsCurrent, &v.CreatedAt)
	if err != nil {
		return v, err
	}
	normalizeInterval(&v.Interval)
	v.CreatedAt = v.CreatedAt.UTC()
	return v, nil
}

func normalizeInterval(iv *models.Interval) {
	iv.ValidFrom = iv.ValidFrom.UTC()
	if iv.ValidTo != nil {
		to := iv.ValidTo.UTC()
		iv.ValidTo = &to
	}
}

func collectEntities(rows pgx.Rows, err error) ([]models.EntityVersion, error) {
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := []models.EntityVersion{}
	for rows.Next() {
		v, err := scanEntity(rows)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, v)
	}
	return out, mapError(rows.Err())
}

func (r *EntityVersionRepo) Open(ctx context.Context, v *models.EntityVersion) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO entity (entity_uid, entity_type, display_name, hashdiff, valid_from, valid_to, is_current)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, is_current, created_at
	`, v.EntityUID, v.EntityType, v.DisplayName, v.Hashdiff, v.ValidFrom, v.ValidTo, v.ValidTo == nil,
	).Scan(&v.ID, &v.IsCurrent, &v.CreatedAt)
	return mapError(err)
}

func (r *EntityVersionRepo) Close(ctx context.Context, uid uuid.UUID, validTo time.Time) (*models.EntityVersion, error) {
	v, err := scanEntity(r.db.QueryRow(ctx, `
		UPDATE entity SET valid_to = $2, is_current = FALSE
		WHERE entity_uid = $1 AND is_current
		RETURNING `+entityColumns, uid, validTo))
	if err != nil {
		return nil, notFound(err, "current entity version %s", uid)
	}
	return &v, nil
}

func (r *EntityVersionRepo) Current(ctx context.Context, uid uuid.UUID, forUpdate bool) (*models.EntityVersion, error) {
	query := `SELECT ` + entityColumns + ` FROM entity WHERE entity_uid = $1 AND is_current`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	v, err := scanEntity(r.db.QueryRow(ctx, query, uid))
	if err != nil {
		return nil, notFound(err, "current entity version %s", uid)
	}
	return &v, nil
}

func (r *EntityVersionRepo) AsOf(ctx context.Context, uid uuid.UUID, ts time.Time) (*models.EntityVersion, error) {
	v, err := scanEntity(r.db.QueryRow(ctx, `
		SELECT `+entityColumns+` FROM entity
		WHERE entity_uid = $1 AND valid_from <= $2 AND (valid_to IS NULL OR valid_to > $2)
	`, uid, ts))
	if err != nil {
		return nil, notFound(err, "entity %s as of %s", uid, ts.Format(time.RFC3339Nano))
	}
	return &v, nil
}

func (r *EntityVersionRepo) History(ctx context.Context, uid uuid.UUID) ([]models.EntityVersion, error) {
	return collectEntities(r.db.Query(ctx, `
		SELECT `+entityColumns+` FROM entity WHERE entity_uid = $1 ORDER BY valid_from
	`, uid))
}

// filterWhere turns an EntityFilter into builder conditions.
func filterWhere(sb *sqlbuilder.SelectBuilder, f models.EntityFilter) []string {
	var where []string
	if f.EntityType != "" {
		where = append(where, sb.Equal("entity_type", f.EntityType))
	}
	if f.Query != "" {
		where = append(where, sb.ILike("display_name", "%"+escapeLike(f.Query)+"%"))
	}
	if len(f.EntityUIDs) > 0 {
		// One array argument; Flatten would expand each uuid's [16]byte.
		where = append(where, "entity_uid = ANY("+sb.Var(f.EntityUIDs)+")")
	}
	return where
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (r *EntityVersionRepo) ListAsOf(ctx context.Context, ts time.Time, f models.EntityFilter, after uuid.UUID, limit int) ([]models.EntityVersion, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(strings.Split(entityColumns, ", ")...)
	sb.From("entity")
	where := append(filterWhere(sb, f),
		sb.LessEqualThan("valid_from", ts),
		sb.Or(sb.IsNull("valid_to"), sb.GreaterThan("valid_to", ts)),
	)
	if after != uuid.Nil {
		where = append(where, sb.GreaterThan("entity_uid", after))
	}
	sb.Where(where...)
	sb.OrderBy("entity_uid")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	return collectEntities(r.db.Query(ctx, query, args...))
}

func (r *EntityVersionRepo) ListCurrent(ctx context.Context, f models.EntityFilter) ([]models.EntityVersion, int, error) {
	baseWhere := func(sb *sqlbuilder.SelectBuilder) []string {
		return append(filterWhere(sb, f), "is_current")
	}

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("entity")
	countSb.Where(baseWhere(countSb)...)
	countQuery, countArgs := countSb.Build()

	var total int
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, mapError(err)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(strings.Split(entityColumns, ", ")...)
	sb.From("entity")
	sb.Where(baseWhere(sb)...)
	sb.OrderBy("lower(display_name)", "entity_uid")
	if f.Limit > 0 {
		sb.Limit(f.Limit)
	}
	if f.Offset > 0 {
		sb.Offset(f.Offset)
	}

	query, args := sb.Build()
	list, err := collectEntities(r.db.Query(ctx, query, args...))
	return list, total, err
}

func (r *EntityVersionRepo) ChangedBetween(ctx context.Context, from, to time.Time) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT entity_uid FROM entity
		WHERE (valid_from > $1 AND valid_from <= $2) OR (valid_to > $1 AND valid_to <= $2)
		UNION
		SELECT entity_uid FROM entity_detail
		WHERE (valid_from > $1 AND valid_from <= $2) OR (valid_to > $1 AND valid_to <= $2)
		ORDER BY entity_uid
	`, from, to)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	uids := []uuid.UUID{}
	for rows.Next() {
		var uid uuid.UUID
		if err := rows.Scan(&uid); err != nil {
			return nil, mapError(err)
		}
		uids = append(uids, uid)
	}
	return uids, mapError(rows.Err())
}

func (r *EntityVersionRepo) All(ctx context.Context) ([]models.EntityVersion, error) {
	return collectEntities(r.db.Query(ctx, `
		SELECT `+entityColumns+` FROM entity ORDER BY entity_uid, valid_from
	`))
}
