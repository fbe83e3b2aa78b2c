package repositories

import (
	"context"

	"github.com/entity-history/backend/internal/models"
	"github.com/google/uuid"
)

type AuditRepo struct {
	db DBTX
}

func NewAuditRepo(db DBTX) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Record(ctx context.Context, rec models.AuditRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO audit_log (actor, action, table_name, entity_uid, detail_code, before, after, change_ts, request_id, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, rec.Actor, rec.Action, rec.TableName, rec.EntityUID, rec.DetailCode, rec.Before, rec.After, rec.ChangeTS,
		rec.RequestID, rec.IPAddress, rec.UserAgent)
	return mapError(err)
}

func (r *AuditRepo) ListByEntity(ctx context.Context, uid uuid.UUID, limit, offset int) ([]models.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT audit_id, actor, action, table_name, entity_uid, detail_code, before, after, change_ts, recorded_at,
		       request_id, ip_address, user_agent
		FROM audit_log WHERE entity_uid = $1
		ORDER BY recorded_at DESC LIMIT $2 OFFSET $3
	`, uid, limit, offset)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	logs := []models.AuditRecord{}
	for rows.Next() {
		var l models.AuditRecord
		if err := rows.Scan(&l.ID, &l.Actor, &l.Action, &l.TableName, &l.EntityUID, &l.DetailCode, &l.Before, &l.After,
			&l.ChangeTS, &l.RecordedAt, &l.RequestID, &l.IPAddress, &l.UserAgent); err != nil {
			return nil, mapError(err)
		}
		l.ChangeTS = l.ChangeTS.UTC()
		l.RecordedAt = l.RecordedAt.UTC()
		logs = append(logs, l)
	}
	return logs, mapError(rows.Err())
}
