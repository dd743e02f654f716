package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/metrics"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/repository"
	"github.com/stemsi/exstem-live/internal/shuffle"
)

// startRetries bounds how often Start re-evaluates after losing an insert race.
const startRetries = 3

// AttemptService creates, resumes and reads attempts.
type AttemptService struct {
	exams    ExamSource
	attempts AttemptStore
	answers  AnswerStore
	events   *EventPublisher
	log      zerolog.Logger
	now      func() time.Time
	newSeed  func() int64
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(exams ExamSource, attempts AttemptStore, answers AnswerStore, events *EventPublisher, log zerolog.Logger) *AttemptService {
	return &AttemptService{
		exams:    exams,
		attempts: attempts,
		answers:  answers,
		events:   events,
		log:      log.With().Str("component", "attempt_service").Logger(),
		now:      time.Now,
		newSeed:  shuffle.NewSeed,
	}
}

// Start opens an attempt for the student, or returns the in-progress one
// unchanged. The partial unique index on in_progress attempts is what keeps a
// student to one live attempt; losing that race turns into a resume.
func (s *AttemptService) Start(ctx context.Context, studentID int, grade string, examID uuid.UUID) (*model.StartAttemptResult, error) {
	exam, err := s.exams.Get(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Grade != grade {
		return nil, ErrNotFound
	}

	now := s.now()
	if now.Before(exam.ScheduledStart) {
		return nil, ErrExamNotStarted
	}
	if now.After(exam.EndsAt) {
		return nil, ErrExamEnded
	}

	for try := 0; try < startRetries; try++ {
		prior, err := s.attempts.ListByExamAndStudent(ctx, examID, studentID)
		if err != nil {
			return nil, fmt.Errorf("list attempts: %w", err)
		}

		for i := range prior {
			if prior[i].IsActive() {
				return s.resume(ctx, exam, &prior[i]), nil
			}
		}

		if len(prior) > 0 {
			if !exam.AllowRetry {
				return nil, ErrRetryNotAllowed
			}
			if exam.MaxAttempts != nil && len(prior) >= *exam.MaxAttempts {
				return nil, ErrMaxAttemptsReached
			}
		}

		if len(exam.Questions) == 0 {
			return nil, ErrNoQuestions
		}

		number := 1
		if len(prior) > 0 {
			number = prior[0].AttemptNumber + 1
		}

		seed := s.newSeed()
		attempt := &model.Attempt{
			ID:            uuid.New(),
			ExamID:        exam.ID,
			StudentID:     studentID,
			AttemptNumber: number,
			QuestionOrder: shuffle.Order(exam, seed),
			ShuffleSeed:   seed,
			TotalPoints:   exam.TotalPoints(),
			StartedAt:     s.now(),
		}

		created, err := s.attempts.CreateActive(ctx, attempt)
		if err != nil {
			return nil, fmt.Errorf("create attempt: %w", err)
		}
		if !created {
			continue
		}

		metrics.AttemptsStarted.WithLabelValues("created").Inc()
		s.events.Publish(ctx, model.MonitorEvent{
			Type:      model.EventAttemptStarted,
			ExamID:    exam.ID,
			AttemptID: attempt.ID,
			StudentID: studentID,
			Data:      map[string]int{"attempt_number": number},
		})
		s.log.Info().
			Str("attempt_id", attempt.ID.String()).
			Str("exam_id", exam.ID.String()).
			Int("student_id", studentID).
			Int("attempt_number", number).
			Msg("Attempt started")

		return &model.StartAttemptResult{
			Attempt:          attempt,
			RemainingSeconds: remainingSeconds(attempt, exam, s.now()),
		}, nil
	}

	return nil, fmt.Errorf("start attempt: lost %d consecutive insert races", startRetries)
}

func (s *AttemptService) resume(ctx context.Context, exam *model.Exam, a *model.Attempt) *model.StartAttemptResult {
	metrics.AttemptsStarted.WithLabelValues("resumed").Inc()
	s.events.Publish(ctx, model.MonitorEvent{
		Type:      model.EventAttemptResumed,
		ExamID:    exam.ID,
		AttemptID: a.ID,
		StudentID: a.StudentID,
	})
	return &model.StartAttemptResult{
		Attempt:          a,
		Resumed:          true,
		RemainingSeconds: remainingSeconds(a, exam, s.now()),
	}
}

// GetQuestions returns the attempt's question paper in its frozen order,
// without correctness flags, with the student's current selections.
func (s *AttemptService) GetQuestions(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.AttemptQuestions, error) {
	attempt, err := s.ownedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if !attempt.IsActive() {
		return nil, ErrAttemptNotActive
	}

	exam, err := s.exams.Get(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}

	answers, err := s.answers.ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	selected := make(map[uuid.UUID]uuid.UUID, len(answers))
	for _, a := range answers {
		selected[a.QuestionID] = a.ChoiceID
	}

	questions := make([]model.StudentQuestion, 0, len(attempt.QuestionOrder))
	for _, qid := range attempt.QuestionOrder {
		q := exam.Question(qid)
		if q == nil {
			s.log.Error().
				Str("attempt_id", attempt.ID.String()).
				Str("question_id", qid.String()).
				Msg("Frozen order references a question missing from the exam")
			continue
		}

		sq := model.StudentQuestion{
			ID:       q.ID,
			Text:     q.Text,
			Points:   q.Points,
			Position: len(questions) + 1,
		}
		for _, cid := range shuffle.OrderChoices(q, exam.ShuffleChoices, attempt.ShuffleSeed) {
			c := q.Choice(cid)
			sq.Choices = append(sq.Choices, model.StudentChoice{ID: c.ID, Text: c.Text})
		}
		if cid, ok := selected[q.ID]; ok {
			sq.SelectedChoiceID = &cid
		}
		questions = append(questions, sq)
	}

	return &model.AttemptQuestions{
		Attempt:          attempt,
		ExamTitle:        exam.Title,
		RemainingSeconds: remainingSeconds(attempt, exam, s.now()),
		Questions:        questions,
	}, nil
}

// State returns the lightweight reload view of an attempt in any status.
func (s *AttemptService) State(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.AttemptState, error) {
	attempt, err := s.ownedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}

	exam, err := s.exams.Get(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}

	answers, err := s.answers.ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	ids := make([]uuid.UUID, len(answers))
	for i, a := range answers {
		ids[i] = a.QuestionID
	}

	return &model.AttemptState{
		Attempt:          attempt,
		RemainingSeconds: remainingSeconds(attempt, exam, s.now()),
		AnsweredCount:    len(ids),
		AnsweredIDs:      ids,
	}, nil
}

// Result returns a terminal attempt's outcome. Correct choices are included
// only when the exam allows it.
func (s *AttemptService) Result(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.AttemptResult, error) {
	attempt, err := s.ownedAttempt(ctx, attemptID, studentID)
	if err != nil {
		return nil, err
	}
	if attempt.IsActive() {
		return nil, ErrAttemptNotActive
	}

	result := &model.AttemptResult{
		Attempt:      attempt,
		Disqualified: attempt.Status == model.AttemptStatusKickedOut,
	}

	exam, err := s.exams.Get(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}
	if exam.ShowCorrectAnswers {
		result.CorrectAnswers = make(map[uuid.UUID][]uuid.UUID, len(attempt.QuestionOrder))
		for _, qid := range attempt.QuestionOrder {
			if q := exam.Question(qid); q != nil {
				result.CorrectAnswers[qid] = q.CorrectChoiceIDs()
			}
		}
	}
	return result, nil
}

// ownedAttempt loads an attempt and hides attempts of other students.
func (s *AttemptService) ownedAttempt(ctx context.Context, attemptID uuid.UUID, studentID int) (*model.Attempt, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.StudentID != studentID {
		return nil, ErrNotFound
	}
	return attempt, nil
}

// remainingSeconds is derived per read; terminal attempts have none left.
func remainingSeconds(a *model.Attempt, exam *model.Exam, now time.Time) int64 {
	if !a.IsActive() {
		return 0
	}
	return int64(a.RemainingTime(exam.Duration(), now).Seconds())
}
