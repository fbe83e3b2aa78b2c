package services

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/entity-history/backend/internal/events"
	"github.com/entity-history/backend/internal/hashdiff"
	"github.com/entity-history/backend/internal/metrics"
	"github.com/entity-history/backend/internal/models"
	"github.com/entity-history/backend/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TransitionService applies entity writes as SCD2 transitions.
type TransitionService struct {
	store     store.Store
	publisher events.Publisher
	log       *zap.Logger
}

func NewTransitionService(st store.Store, publisher events.Publisher, log *zap.Logger) *TransitionService {
	return &TransitionService{store: st, publisher: publisher, log: log}
}

type writeMode int

const (
	modeUpsert writeMode = iota
	modeCreate
	modeUpdate
)

// Create opens a new entity, generating a uid when none is supplied.
// A supplied uid that already has a current version is a conflict.
func (s *TransitionService) Create(ctx context.Context, w models.EntityWrite) (models.TransitionResult, error) {
	if w.EntityUID == uuid.Nil {
		w.EntityUID = uuid.New()
	}
	return s.apply(ctx, w, modeCreate)
}

// Update transitions an existing entity; unknown uids fail with ErrNotFound.
func (s *TransitionService) Update(ctx context.Context, w models.EntityWrite) (models.TransitionResult, error) {
	if w.EntityUID == uuid.Nil {
		return models.TransitionResult{}, models.Validationf("entity_uid is required")
	}
	return s.apply(ctx, w, modeUpdate)
}

// Apply creates the entity when it has no current version and transitions
// every changed stream otherwise. All streams commit or none do.
func (s *TransitionService) Apply(ctx context.Context, w models.EntityWrite) (models.TransitionResult, error) {
	if w.EntityUID == uuid.Nil {
		w.EntityUID = uuid.New()
	}
	return s.apply(ctx, w, modeUpsert)
}

func (s *TransitionService) apply(ctx context.Context, w models.EntityWrite, mode writeMode) (models.TransitionResult, error) {
	start := time.Now()
	if err := normalizeWrite(&w); err != nil {
		return models.TransitionResult{}, err
	}

	var result models.TransitionResult
	err := s.store.WriteTx(ctx, func(tx store.Tx) error {
		// WriteTx may retry; start every attempt from scratch.
		var err error
		result, err = s.transition(ctx, tx, w, mode)
		return err
	})
	if err != nil {
		var ce *models.ConflictError
		if errors.As(err, &ce) {
			metrics.ConflictsTotal.WithLabelValues(ce.Constraint, strconv.FormatBool(ce.Retryable)).Inc()
		}
		s.log.Warn("entity write rejected",
			zap.String("entity_uid", w.EntityUID.String()),
			zap.String("actor", w.Actor.ID),
			zap.Time("change_ts", w.ChangeTS),
			zap.Error(err),
		)
		return models.TransitionResult{}, err
	}

	s.observe(result, time.Since(start))
	if !result.Changed() {
		s.log.Info("entity write unchanged",
			zap.String("entity_uid", result.EntityUID.String()),
			zap.String("actor", w.Actor.ID),
		)
		return result, nil
	}
	s.publish(ctx, w, result)
	return result, nil
}

func normalizeWrite(w *models.EntityWrite) error {
	if w.ChangeTS.IsZero() {
		return models.Validationf("change_ts is required")
	}
	w.ChangeTS = w.ChangeTS.UTC()
	if strings.TrimSpace(w.Actor.ID) == "" {
		return models.Validationf("actor is required")
	}
	if w.EntityType != nil {
		code := models.NormalizeRefCode(*w.EntityType)
		w.EntityType = &code
	}
	if w.DisplayName != nil {
		name := strings.TrimSpace(*w.DisplayName)
		if name == "" {
			return models.Validationf("display_name must not be empty")
		}
		w.DisplayName = &name
	}

	w.Details = slices.Clone(w.Details)
	seen := make(map[string]bool, len(w.Details))
	for i := range w.Details {
		d := &w.Details[i]
		d.DetailType = models.NormalizeRefCode(d.DetailType)
		d.DetailValue = strings.TrimSpace(d.DetailValue)
		if d.DetailType == "" {
			return models.Validationf("detail_type is required")
		}
		if d.DetailValue == "" {
			return models.Validationf("detail %s: value must not be empty", d.DetailType)
		}
		if seen[d.DetailType] {
			return models.Validationf("detail %s supplied more than once", d.DetailType)
		}
		seen[d.DetailType] = true
	}
	// Lock detail rows in a stable order.
	slices.SortFunc(w.Details, func(a, b models.DetailWrite) int { return strings.Compare(a.DetailType, b.DetailType) })
	return nil
}

func (s *TransitionService) transition(ctx context.Context, tx store.Tx, w models.EntityWrite, mode writeMode) (models.TransitionResult, error) {
	result := models.TransitionResult{EntityUID: w.EntityUID, Details: []models.DetailOutcome{}}

	entity, outcome, err := s.transitionEntity(ctx, tx, w, mode)
	if err != nil {
		return result, err
	}
	result.Entity = entity
	result.EntityOutcome = outcome

	changed := outcome != models.OutcomeUnchanged
	for _, d := range w.Details {
		version, dOutcome, err := s.transitionDetail(ctx, tx, w, d, entity.ValidFrom)
		if err != nil {
			return result, err
		}
		if dOutcome != models.OutcomeUnchanged {
			changed = true
		}
		result.Details = append(result.Details, models.DetailOutcome{DetailType: d.DetailType, Outcome: dOutcome, Version: version})
	}

	switch {
	case outcome == models.OutcomeCreated:
		result.Outcome = models.OutcomeCreated
	case changed:
		result.Outcome = models.OutcomeUpdated
	default:
		result.Outcome = models.OutcomeUnchanged
	}
	return result, nil
}

func (s *TransitionService) transitionEntity(ctx context.Context, tx store.Tx, w models.EntityWrite, mode writeMode) (*models.EntityVersion, string, error) {
	current, err := tx.Entities().Current(ctx, w.EntityUID, true)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, "", err
	}

	if current == nil {
		if mode == modeUpdate {
			return nil, "", models.NotFoundf("entity %s", w.EntityUID)
		}
		if w.EntityType == nil || *w.EntityType == "" || w.DisplayName == nil {
			return nil, "", models.Validationf("entity_type and display_name are required to create an entity")
		}
		if err := requireActiveType(ctx, tx, models.RefKindEntity, *w.EntityType); err != nil {
			return nil, "", err
		}
		next := &models.EntityVersion{
			EntityUID:   w.EntityUID,
			EntityType:  *w.EntityType,
			DisplayName: *w.DisplayName,
			Hashdiff:    hashdiff.Entity(*w.EntityType, *w.DisplayName),
			Interval:    models.Interval{ValidFrom: w.ChangeTS},
		}
		if err := tx.Entities().Open(ctx, next); err != nil {
			return nil, "", err
		}
		if err := tx.Audit().Record(ctx, auditRecord(w, models.AuditActionCreate, models.StreamEntity, nil, nil, entityPayload(*next))); err != nil {
			return nil, "", err
		}
		return next, models.OutcomeCreated, nil
	}

	if mode == modeCreate {
		return nil, "", models.NewConflict("entity_current_uidx", false, nil)
	}

	entityType, displayName := current.EntityType, current.DisplayName
	if w.EntityType != nil && *w.EntityType != "" {
		entityType = *w.EntityType
	}
	if w.DisplayName != nil {
		displayName = *w.DisplayName
	}
	hash := hashdiff.Entity(entityType, displayName)
	if hashdiff.Equal(hash, current.Hashdiff) {
		return current, models.OutcomeUnchanged, nil
	}
	if !w.ChangeTS.After(current.ValidFrom) {
		return nil, "", models.InvalidRangef("change_ts %s is not after current entity version start %s",
			w.ChangeTS.Format(time.RFC3339Nano), current.ValidFrom.Format(time.RFC3339Nano))
	}
	if entityType != current.EntityType {
		if err := requireActiveType(ctx, tx, models.RefKindEntity, entityType); err != nil {
			return nil, "", err
		}
	}

	closed, err := tx.Entities().Close(ctx, w.EntityUID, w.ChangeTS)
	if err != nil {
		return nil, "", err
	}
	next := &models.EntityVersion{
		EntityUID:   w.EntityUID,
		EntityType:  entityType,
		DisplayName: displayName,
		Hashdiff:    hash,
		Interval:    models.Interval{ValidFrom: w.ChangeTS},
	}
	if err := tx.Entities().Open(ctx, next); err != nil {
		return nil, "", err
	}
	before := entityPayload(*closed)
	if err := tx.Audit().Record(ctx, auditRecord(w, models.AuditActionUpdate, models.StreamEntity, nil, before, entityPayload(*next))); err != nil {
		return nil, "", err
	}
	return next, models.OutcomeUpdated, nil
}

func (s *TransitionService) transitionDetail(ctx context.Context, tx store.Tx, w models.EntityWrite, d models.DetailWrite, entityFrom time.Time) (*models.DetailVersion, string, error) {
	key := models.DetailKey{EntityUID: w.EntityUID, DetailType: d.DetailType}
	current, err := tx.Details().Current(ctx, key, true)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, "", err
	}

	hash := hashdiff.Detail(d.DetailType, d.DetailValue)
	next := &models.DetailVersion{
		EntityUID:   w.EntityUID,
		DetailType:  d.DetailType,
		DetailValue: d.DetailValue,
		Hashdiff:    hash,
		Interval:    models.Interval{ValidFrom: w.ChangeTS},
	}
	code := d.DetailType

	if current == nil {
		if w.ChangeTS.Before(entityFrom) {
			return nil, "", models.InvalidRangef("detail %s cannot start at %s before the entity version starting %s",
				d.DetailType, w.ChangeTS.Format(time.RFC3339Nano), entityFrom.Format(time.RFC3339Nano))
		}
		if err := requireActiveType(ctx, tx, models.RefKindDetail, d.DetailType); err != nil {
			return nil, "", err
		}
		if err := tx.Details().Open(ctx, next); err != nil {
			return nil, "", err
		}
		if err := tx.Audit().Record(ctx, auditRecord(w, models.AuditActionCreate, models.StreamDetail, &code, nil, detailPayload(*next))); err != nil {
			return nil, "", err
		}
		return next, models.OutcomeCreated, nil
	}

	if hashdiff.Equal(hash, current.Hashdiff) {
		return current, models.OutcomeUnchanged, nil
	}
	if !w.ChangeTS.After(current.ValidFrom) {
		return nil, "", models.InvalidRangef("change_ts %s is not after current %s version start %s",
			w.ChangeTS.Format(time.RFC3339Nano), d.DetailType, current.ValidFrom.Format(time.RFC3339Nano))
	}

	closed, err := tx.Details().Close(ctx, key, w.ChangeTS)
	if err != nil {
		return nil, "", err
	}
	if err := tx.Details().Open(ctx, next); err != nil {
		return nil, "", err
	}
	if err := tx.Audit().Record(ctx, auditRecord(w, models.AuditActionUpdate, models.StreamDetail, &code, detailPayload(*closed), detailPayload(*next))); err != nil {
		return nil, "", err
	}
	return next, models.OutcomeUpdated, nil
}

// requireActiveType rejects codes that are missing or deactivated.
func requireActiveType(ctx context.Context, tx store.Tx, kind, code string) error {
	t, err := tx.Types().Get(ctx, kind, code)
	if errors.Is(err, models.ErrNotFound) {
		return models.UnknownReferencef("%s type %q does not exist", kind, code)
	}
	if err != nil {
		return err
	}
	if !t.IsActive {
		return models.UnknownReferencef("%s type %q is inactive", kind, code)
	}
	return nil
}

func entityPayload(v models.EntityVersion) map[string]any {
	p := v.Fields()
	p["hashdiff"] = v.Hashdiff
	p["valid_from"] = v.ValidFrom
	if v.ValidTo != nil {
		p["valid_to"] = *v.ValidTo
	}
	return p
}

func detailPayload(v models.DetailVersion) map[string]any {
	p := v.Fields()
	p["hashdiff"] = v.Hashdiff
	p["valid_from"] = v.ValidFrom
	if v.ValidTo != nil {
		p["valid_to"] = *v.ValidTo
	}
	return p
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func auditRecord(w models.EntityWrite, action, table string, detailCode *string, before, after map[string]any) models.AuditRecord {
	return models.AuditRecord{
		Actor:      w.Actor.ID,
		Action:     action,
		TableName:  table,
		EntityUID:  w.EntityUID,
		DetailCode: detailCode,
		Before:     before,
		After:      after,
		ChangeTS:   w.ChangeTS,
		RequestID:  optString(w.Actor.RequestID),
		IPAddress:  optString(w.Actor.IPAddress),
		UserAgent:  optString(w.Actor.UserAgent),
	}
}

func (s *TransitionService) observe(r models.TransitionResult, elapsed time.Duration) {
	metrics.TransitionsTotal.WithLabelValues(models.StreamEntity, r.EntityOutcome).Inc()
	for _, d := range r.Details {
		metrics.TransitionsTotal.WithLabelValues(models.StreamDetail, d.Outcome).Inc()
	}
	metrics.TransitionDuration.WithLabelValues(r.Outcome).Observe(elapsed.Seconds())
}

// publish runs after commit; failures are logged and never undo the write.
func (s *TransitionService) publish(ctx context.Context, w models.EntityWrite, r models.TransitionResult) {
	eventType := events.EventEntityUpdated
	if r.Outcome == models.OutcomeCreated {
		eventType = events.EventEntityCreated
	}
	streams := []map[string]any{{"stream": models.StreamEntity, "outcome": r.EntityOutcome}}
	for _, d := range r.Details {
		streams = append(streams, map[string]any{"stream": models.StreamDetail, "detail_type": d.DetailType, "outcome": d.Outcome})
	}
	err := s.publisher.Publish(ctx, events.StreamEntity, events.Event{
		Type: eventType,
		Payload: map[string]any{
			"entity_uid": r.EntityUID.String(),
			"outcome":    r.Outcome,
			"change_ts":  w.ChangeTS.Format(time.RFC3339Nano),
			"actor":      w.Actor.ID,
			"streams":    streams,
		},
	})
	if err != nil {
		s.log.Error("failed to publish entity event", zap.String("entity_uid", r.EntityUID.String()), zap.Error(err))
	}
}
