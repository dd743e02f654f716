package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/metrics"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/repository"
)

// IntegrityService ingests violation reports and enforces the kick-out
// threshold.
type IntegrityService struct {
	attempts   AttemptStore
	violations ViolationStore
	limiter    *ViolationLimiter
	events     *EventPublisher
	threshold  int
	log        zerolog.Logger
}

// NewIntegrityService creates a new IntegrityService. threshold is the
// violation count at which an attempt is kicked out.
func NewIntegrityService(
	attempts AttemptStore,
	violations ViolationStore,
	limiter *ViolationLimiter,
	events *EventPublisher,
	threshold int,
	log zerolog.Logger,
) *IntegrityService {
	return &IntegrityService{
		attempts:   attempts,
		violations: violations,
		limiter:    limiter,
		events:     events,
		threshold:  threshold,
		log:        log.With().Str("component", "integrity_service").Logger(),
	}
}

// Record appends a violation to an in-progress attempt and reports the new
// count. Reaching the threshold terminates the attempt in the same atomic step.
func (s *IntegrityService) Record(ctx context.Context, attemptID uuid.UUID, studentID int, req *model.RecordViolationRequest) (*model.ViolationOutcome, error) {
	if !req.Type.Valid() {
		return nil, &ValidationError{Fields: map[string]string{"type": "unknown violation type"}}
	}

	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.StudentID != studentID || !attempt.IsActive() {
		return nil, ErrAttemptNotActive
	}

	allowed, err := s.limiter.Allow(ctx, attemptID)
	if err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Violation rate limiter unavailable")
		allowed = true
	}
	if !allowed {
		return nil, ErrRateLimited
	}

	v := &model.Violation{AttemptID: attemptID, Type: req.Type, Details: objectOrEmpty(req.Details)}
	outcome, err := s.violations.Record(ctx, v, studentID, s.threshold)
	if err != nil {
		if errors.Is(err, repository.ErrAttemptNotActive) {
			return nil, ErrAttemptNotActive
		}
		return nil, fmt.Errorf("record violation: %w", err)
	}

	metrics.ViolationsRecorded.WithLabelValues(string(req.Type)).Inc()
	s.events.Publish(ctx, model.MonitorEvent{
		Type:      model.EventViolationRecorded,
		ExamID:    attempt.ExamID,
		AttemptID: attemptID,
		StudentID: studentID,
		Data: map[string]any{
			"type":            req.Type,
			"violation_count": outcome.ViolationCount,
		},
	})

	if outcome.KickedOut {
		metrics.KickOuts.Inc()
		s.events.Publish(ctx, model.MonitorEvent{
			Type:      model.EventKickedOut,
			ExamID:    attempt.ExamID,
			AttemptID: attemptID,
			StudentID: studentID,
		})
		s.log.Warn().
			Str("attempt_id", attemptID.String()).
			Str("exam_id", attempt.ExamID.String()).
			Int("student_id", studentID).
			Int("violation_count", outcome.ViolationCount).
			Msg("Attempt kicked out")
	}
	return outcome, nil
}

// objectOrEmpty keeps details only when they are a JSON object.
func objectOrEmpty(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(trimmed)
}
