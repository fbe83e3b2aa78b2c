package memory

import (
	"context"

	"github.com/entity-history/backend/internal/models"
	"github.com/google/uuid"
)

type auditStore struct{ t *tx }

func (s auditStore) Record(_ context.Context, rec models.AuditRecord) error {
	if err := s.t.checkWritable(); err != nil {
		return err
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.RecordedAt = s.t.now().UTC()
	s.t.st.audit = append(s.t.st.audit, rec)
	return nil
}

// ListByEntity returns the newest records first.
func (s auditStore) ListByEntity(_ context.Context, uid uuid.UUID, limit, offset int) ([]models.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.AuditRecord
	skipped := 0
	for i := len(s.t.st.audit) - 1; i >= 0 && len(out) < limit; i-- {
		rec := s.t.st.audit[i]
		if rec.EntityUID != uid {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
