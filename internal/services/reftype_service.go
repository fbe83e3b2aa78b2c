package services

import (
	"context"
	"strings"

	"github.com/entity-history/backend/internal/events"
	"github.com/entity-history/backend/internal/models"
	"github.com/entity-history/backend/internal/store"
	"go.uber.org/zap"
)

// RefTypeService manages EntityType and DetailType codes.
type RefTypeService struct {
	store     store.Store
	publisher events.Publisher
	log       *zap.Logger
}

func NewRefTypeService(st store.Store, publisher events.Publisher, log *zap.Logger) *RefTypeService {
	return &RefTypeService{store: st, publisher: publisher, log: log}
}

func checkKind(kind string) error {
	if !models.IsValidRefKind(kind) {
		return models.Validationf("kind must be %q or %q", models.RefKindEntity, models.RefKindDetail)
	}
	return nil
}

func (s *RefTypeService) List(ctx context.Context, kind string) ([]models.RefType, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	var out []models.RefType
	err := s.store.ReadTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.Types().List(ctx, kind)
		return err
	})
	return out, err
}

func (s *RefTypeService) Create(ctx context.Context, kind, code, name, description string) (*models.RefType, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	code = models.NormalizeRefCode(code)
	if !models.IsValidRefCode(code) {
		return nil, models.Validationf("code %q must match ^[A-Z][A-Z0-9_]{0,49}$", code)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = code
	}
	t := &models.RefType{Code: code, Name: name, Description: strings.TrimSpace(description), IsActive: true}
	err := s.store.WriteTx(ctx, func(tx store.Tx) error {
		return tx.Types().Create(ctx, kind, t)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("reference type created", zap.String("kind", kind), zap.String("code", code))
	s.notify(ctx, kind, t)
	return t, nil
}

func (s *RefTypeService) SetActive(ctx context.Context, kind, code string, active bool) (*models.RefType, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	code = models.NormalizeRefCode(code)
	var t *models.RefType
	err := s.store.WriteTx(ctx, func(tx store.Tx) error {
		var err error
		t, err = tx.Types().SetActive(ctx, kind, code, active)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("reference type updated", zap.String("kind", kind), zap.String("code", code), zap.Bool("active", active))
	s.notify(ctx, kind, t)
	return t, nil
}

func (s *RefTypeService) notify(ctx context.Context, kind string, t *models.RefType) {
	err := s.publisher.Publish(ctx, events.StreamEntity, events.Event{
		Type:    events.EventTypeChanged,
		Payload: map[string]any{"kind": kind, "code": t.Code, "is_active": t.IsActive},
	})
	if err != nil {
		s.log.Error("failed to publish type event", zap.String("code", t.Code), zap.Error(err))
	}
}
