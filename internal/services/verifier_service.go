package services

import (
	"context"
	"fmt"
	"time"

	"github.com/entity-history/backend/internal/metrics"
	"github.com/entity-history/backend/internal/models"
	"github.com/entity-history/backend/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Verifier check names
const (
	CheckOverlap      = "overlap"
	CheckGap          = "gap"
	CheckMultiCurrent = "multiple_current"
	CheckCurrentFlag  = "current_flag"
	CheckRange        = "range"
	CheckOrphan       = "orphan_detail"
)

type Violation struct {
	Check      string    `json:"check"`
	Stream     string    `json:"stream"`
	EntityUID  uuid.UUID `json:"entity_uid"`
	DetailType string    `json:"detail_type,omitempty"`
	Message    string    `json:"message"`
}

type VerifyReport struct {
	CheckedAt  time.Time   `json:"checked_at"`
	Entities   int         `json:"entities"`
	Versions   int         `json:"versions"`
	Violations []Violation `json:"violations"`
}

func (r VerifyReport) OK() bool { return len(r.Violations) == 0 }

// VerifierService re-checks the interval invariants over the whole store.
type VerifierService struct {
	store store.Store
	log   *zap.Logger
}

func NewVerifierService(st store.Store, log *zap.Logger) *VerifierService {
	return &VerifierService{store: st, log: log}
}

func (s *VerifierService) Run(ctx context.Context) (VerifyReport, error) {
	var (
		entities []models.EntityVersion
		details  []models.DetailVersion
	)
	err := s.store.ReadTx(ctx, func(tx store.Tx) error {
		var err error
		if entities, err = tx.Entities().All(ctx); err != nil {
			return err
		}
		details, err = tx.Details().All(ctx)
		return err
	})
	if err != nil {
		metrics.VerifierRuns.WithLabelValues("error").Inc()
		return VerifyReport{}, err
	}

	report := Verify(entities, details)
	report.CheckedAt = time.Now().UTC()
	s.record(report)
	return report, nil
}

func (s *VerifierService) record(r VerifyReport) {
	counts := make(map[[2]string]int)
	for _, stream := range []string{models.StreamEntity, models.StreamDetail} {
		for _, check := range []string{CheckOverlap, CheckGap, CheckMultiCurrent, CheckCurrentFlag, CheckRange, CheckOrphan} {
			counts[[2]string{stream, check}] = 0
		}
	}
	for _, v := range r.Violations {
		counts[[2]string{v.Stream, v.Check}]++
		s.log.Error("invariant violation",
			zap.String("check", v.Check),
			zap.String("stream", v.Stream),
			zap.String("entity_uid", v.EntityUID.String()),
			zap.String("detail_type", v.DetailType),
			zap.String("message", v.Message),
		)
	}
	for k, n := range counts {
		metrics.InvariantViolations.WithLabelValues(k[0], k[1]).Set(float64(n))
	}
	result := "ok"
	if !r.OK() {
		result = "violations"
	}
	metrics.VerifierRuns.WithLabelValues(result).Inc()
	s.log.Info("verifier run finished",
		zap.Int("entities", r.Entities),
		zap.Int("versions", r.Versions),
		zap.Int("violations", len(r.Violations)),
	)
}

// Verify checks versions ordered by key then valid_from.
func Verify(entities []models.EntityVersion, details []models.DetailVersion) VerifyReport {
	report := VerifyReport{Violations: []Violation{}, Versions: len(entities) + len(details)}

	firstFrom := make(map[uuid.UUID]time.Time)
	var group []models.Interval
	var currents []bool
	flush := func(stream string, uid uuid.UUID, detailType string) {
		report.Violations = append(report.Violations, checkStream(stream, uid, detailType, group, currents)...)
		group, currents = group[:0], currents[:0]
	}

	for i, v := range entities {
		if i > 0 && entities[i-1].EntityUID != v.EntityUID {
			flush(models.StreamEntity, entities[i-1].EntityUID, "")
		}
		if _, ok := firstFrom[v.EntityUID]; !ok {
			firstFrom[v.EntityUID] = v.ValidFrom
			report.Entities++
		}
		group = append(group, v.Interval)
		currents = append(currents, v.IsCurrent)
	}
	if len(entities) > 0 {
		flush(models.StreamEntity, entities[len(entities)-1].EntityUID, "")
	}

	for i, d := range details {
		if i > 0 && details[i-1].Key() != d.Key() {
			prev := details[i-1]
			flush(models.StreamDetail, prev.EntityUID, prev.DetailType)
		}
		if len(group) == 0 {
			start, ok := firstFrom[d.EntityUID]
			if !ok || d.ValidFrom.Before(start) {
				report.Violations = append(report.Violations, Violation{
					Check: CheckOrphan, Stream: models.StreamDetail, EntityUID: d.EntityUID, DetailType: d.DetailType,
					Message: "detail stream starts before its entity exists",
				})
			}
		}
		group = append(group, d.Interval)
		currents = append(currents, d.IsCurrent)
	}
	if len(details) > 0 {
		last := details[len(details)-1]
		flush(models.StreamDetail, last.EntityUID, last.DetailType)
	}
	return report
}

func checkStream(stream string, uid uuid.UUID, detailType string, ivs []models.Interval, currents []bool) []Violation {
	var out []Violation
	add := func(check, format string, args ...any) {
		out = append(out, Violation{Check: check, Stream: stream, EntityUID: uid, DetailType: detailType, Message: fmt.Sprintf(format, args...)})
	}

	nCurrent := 0
	for i, iv := range ivs {
		if currents[i] {
			nCurrent++
		}
		if currents[i] != iv.IsOpen() {
			add(CheckCurrentFlag, "version starting %s has is_current=%t with valid_to set=%t", iv.ValidFrom.Format(time.RFC3339Nano), currents[i], !iv.IsOpen())
		}
		if iv.ValidTo != nil && !iv.ValidFrom.Before(*iv.ValidTo) {
			add(CheckRange, "version starting %s does not end after it starts", iv.ValidFrom.Format(time.RFC3339Nano))
		}
		if i == 0 {
			continue
		}
		prev := ivs[i-1]
		switch {
		case prev.Overlaps(iv):
			add(CheckOverlap, "versions starting %s and %s overlap", prev.ValidFrom.Format(time.RFC3339Nano), iv.ValidFrom.Format(time.RFC3339Nano))
		case prev.ValidTo != nil && !prev.ValidTo.Equal(iv.ValidFrom):
			add(CheckGap, "gap between %s and %s", prev.ValidTo.Format(time.RFC3339Nano), iv.ValidFrom.Format(time.RFC3339Nano))
		}
	}
	if nCurrent > 1 {
		add(CheckMultiCurrent, "%d current versions", nCurrent)
	}
	return out
}
