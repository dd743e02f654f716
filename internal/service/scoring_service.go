package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/metrics"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/repository"
)

// ScoringService finalizes attempts: voluntary submission by the student, or
// forced submission by the overdue sweep.
type ScoringService struct {
	attempts AttemptStore
	events   *EventPublisher
	log      zerolog.Logger
}

// NewScoringService creates a new ScoringService.
func NewScoringService(attempts AttemptStore, events *EventPublisher, log zerolog.Logger) *ScoringService {
	return &ScoringService{
		attempts: attempts,
		events:   events,
		log:      log.With().Str("component", "scoring_service").Logger(),
	}
}

// Submit scores and closes the student's in-progress attempt.
func (s *ScoringService) Submit(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.SubmissionResult, error) {
	return s.finalize(ctx, attemptID, studentID, false)
}

// ForceSubmit closes an overdue attempt on the student's behalf. An attempt
// that reached a terminal state in the meantime yields ErrAttemptNotActive.
func (s *ScoringService) ForceSubmit(ctx context.Context, attempt *model.Attempt) (*model.SubmissionResult, error) {
	return s.finalize(ctx, attempt.ID, attempt.StudentID, true)
}

func (s *ScoringService) finalize(ctx context.Context, attemptID uuid.UUID, studentID int, auto bool) (*model.SubmissionResult, error) {
	attempt, result, err := s.attempts.Submit(ctx, repository.SubmitParams{
		AttemptID: attemptID,
		StudentID: studentID,
		Auto:      auto,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, repository.ErrAttemptNotActive):
			return nil, ErrAttemptNotActive
		}
		return nil, fmt.Errorf("submit attempt: %w", err)
	}

	mode, evType := "manual", model.EventSubmitted
	if auto {
		mode, evType = "auto", model.EventAutoSubmitted
	}
	metrics.Submissions.WithLabelValues(mode).Inc()
	s.events.Publish(ctx, model.MonitorEvent{
		Type:      evType,
		ExamID:    attempt.ExamID,
		AttemptID: attempt.ID,
		StudentID: studentID,
		Data:      result,
	})

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("exam_id", attempt.ExamID.String()).
		Int("student_id", studentID).
		Int("score", result.Score).
		Float64("percentage", result.Percentage).
		Bool("auto", auto).
		Msg("Attempt submitted")
	return result, nil
}
