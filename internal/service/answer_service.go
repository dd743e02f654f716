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

// AnswerService records answers. Recording is an upsert keyed on
// (attempt, question), so retries after a flaky connection are harmless.
type AnswerService struct {
	exams    ExamSource
	attempts AttemptStore
	answers  AnswerStore
	events   *EventPublisher
	log      zerolog.Logger
}

// NewAnswerService creates a new AnswerService.
func NewAnswerService(exams ExamSource, attempts AttemptStore, answers AnswerStore, events *EventPublisher, log zerolog.Logger) *AnswerService {
	return &AnswerService{
		exams:    exams,
		attempts: attempts,
		answers:  answers,
		events:   events,
		log:      log.With().Str("component", "answer_service").Logger(),
	}
}

// Record stores the student's choice for a question of an in-progress attempt,
// replacing any previous choice for that question.
func (s *AnswerService) Record(ctx context.Context, attemptID uuid.UUID, studentID int, req *model.RecordAnswerRequest) (*model.Answer, error) {
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

	if attempt.QuestionOrder.Index(req.QuestionID) < 0 {
		return nil, ErrInvalidChoice
	}
	exam, err := s.exams.Get(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}
	q := exam.Question(req.QuestionID)
	if q == nil {
		return nil, ErrInvalidChoice
	}
	choice := q.Choice(req.ChoiceID)
	if choice == nil {
		return nil, ErrInvalidChoice
	}

	answer := &model.Answer{
		AttemptID:  attempt.ID,
		QuestionID: q.ID,
		ChoiceID:   choice.ID,
		IsCorrect:  choice.IsCorrect,
	}
	if err := s.answers.Upsert(ctx, answer, studentID); err != nil {
		if errors.Is(err, repository.ErrAttemptNotActive) {
			return nil, ErrAttemptNotActive
		}
		return nil, fmt.Errorf("record answer: %w", err)
	}

	metrics.AnswersRecorded.Inc()
	s.events.Publish(ctx, model.MonitorEvent{
		Type:      model.EventAnswerRecorded,
		ExamID:    attempt.ExamID,
		AttemptID: attempt.ID,
		StudentID: studentID,
		Data:      map[string]uuid.UUID{"question_id": q.ID},
	})
	return answer, nil
}
