package repositories

import (
	"context"

	"github.com/entity-history/backend/internal/models"
)

type RefTypeRepo struct {
	db DBTX
}

func NewRefTypeRepo(db DBTX) *RefTypeRepo {
	return &RefTypeRepo{db: db}
}

// refTable resolves a kind to its table. Only the two fixed names are ever
// interpolated into SQL.
func refTable(kind string) (string, error) {
	switch kind {
	case models.RefKindEntity:
		return "entity_type", nil
	case models.RefKindDetail:
		return "detail_type", nil
	}
	return "", models.Validationf("unknown reference kind %q", kind)
}

func (r *RefTypeRepo) List(ctx context.Context, kind string) ([]models.RefType, error) {
	table, err := refTable(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `SELECT code, name, description, is_active, created_at FROM `+table+` ORDER BY code`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := []models.RefType{}
	for rows.Next() {
		var t models.RefType
		if err := rows.Scan(&t.Code, &t.Name, &t.Description, &t.IsActive, &t.CreatedAt); err != nil {
			return nil, mapError(err)
		}
		out = append(out, t)
	}
	return out, mapError(rows.Err())
}

func (r *RefTypeRepo) Get(ctx context.Context, kind, code string) (*models.RefType, error) {
	table, err := refTable(kind)
	if err != nil {
		return nil, err
	}
	var t models.RefType
	err = r.db.QueryRow(ctx, `SELECT code, name, description, is_active, created_at FROM `+table+` WHERE code = $1`, code).
		Scan(&t.Code, &t.Name, &t.Description, &t.IsActive, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err, "%s type %q", kind, code)
	}
	return &t, nil
}

func (r *RefTypeRepo) Create(ctx context.Context, kind string, t *models.RefType) error {
	table, err := refTable(kind)
	if err != nil {
		return err
	}
	err = r.db.QueryRow(ctx, `
		INSERT INTO `+table+` (code, name, description, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, t.Code, t.Name, t.Description, t.IsActive).Scan(&t.CreatedAt)
	return mapError(err)
}

func (r *RefTypeRepo) SetActive(ctx context.Context, kind, code string, active bool) (*models.RefType, error) {
	table, err := refTable(kind)
	if err != nil {
		return nil, err
	}
	var t models.RefType
	err = r.db.QueryRow(ctx, `
		UPDATE `+table+` SET is_active = $2 WHERE code = $1
		RETURNING code, name, description, is_active, created_at
	`, code, active).Scan(&t.Code, &t.Name, &t.Description, &t.IsActive, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err, "%s type %q", kind, code)
	}
	return &t, nil
}
