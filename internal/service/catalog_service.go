package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/repository"
)

// CatalogService owns exam definitions: schedule, policy and question set.
type CatalogService struct {
	exams  ExamStore
	cache  *ExamCache
	notify *NotificationQueue
	log    zerolog.Logger
	now    func() time.Time
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(exams ExamStore, cache *ExamCache, notify *NotificationQueue, log zerolog.Logger) *CatalogService {
	return &CatalogService{
		exams:  exams,
		cache:  cache,
		notify: notify,
		log:    log.With().Str("component", "catalog_service").Logger(),
		now:    time.Now,
	}
}

// ListByOwner returns the owner's exams without their questions.
func (s *CatalogService) ListByOwner(ctx context.Context, ownerID int) ([]model.Exam, error) {
	exams, err := s.exams.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, nil
}

// Get returns one of the owner's exams with questions and choices.
// Exams of other owners are reported as not found.
func (s *CatalogService) Get(ctx context.Context, ownerID int, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return exam, nil
}

// Create validates and stores a new exam, then queues the roster
// notification. A failed enqueue is logged and does not fail creation.
func (s *CatalogService) Create(ctx context.Context, ownerID int, req *model.CreateExamRequest) (*model.Exam, error) {
	exam := &model.Exam{
		OwnerID:            ownerID,
		Title:              strings.TrimSpace(req.Title),
		Description:        req.Description,
		Grade:              strings.TrimSpace(req.Grade),
		DurationMinutes:    req.DurationMinutes,
		ScheduledStart:     req.ScheduledStart,
		PassingScore:       req.PassingScore,
		ShuffleQuestions:   req.ShuffleQuestions,
		ShuffleChoices:     req.ShuffleChoices,
		AllowRetry:         req.AllowRetry,
		MaxAttempts:        req.MaxAttempts,
		ShowCorrectAnswers: req.ShowCorrectAnswers,
		Questions:          buildQuestions(req.Questions),
	}
	exam.DeriveEndsAt()

	if err := s.validate(exam, true); err != nil {
		return nil, err
	}

	if err := s.exams.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}

	if err := s.notify.EnqueueExamCreated(ctx, exam.ID); err != nil {
		s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Failed to queue exam notification")
	}

	s.log.Info().
		Str("exam_id", exam.ID.String()).
		Int("owner_id", ownerID).
		Int("questions", len(exam.Questions)).
		Msg("Exam created")
	return exam, nil
}

// Update applies a partial update. Once scheduled_start has passed the whole
// definition is frozen and ErrExamStarted is returned.
func (s *CatalogService) Update(ctx context.Context, ownerID int, id uuid.UUID, req *model.UpdateExamRequest) (*model.Exam, error) {
	exam, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if exam.HasStarted(s.now()) {
		return nil, ErrExamStarted
	}

	rescheduled := false
	if req.Title != nil {
		exam.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		exam.Description = *req.Description
	}
	if req.Grade != nil {
		exam.Grade = strings.TrimSpace(*req.Grade)
	}
	if req.DurationMinutes != nil {
		exam.DurationMinutes = *req.DurationMinutes
	}
	if req.ScheduledStart != nil {
		exam.ScheduledStart = *req.ScheduledStart
		rescheduled = true
	}
	if req.PassingScore != nil {
		exam.PassingScore = *req.PassingScore
	}
	if req.ShuffleQuestions != nil {
		exam.ShuffleQuestions = *req.ShuffleQuestions
	}
	if req.ShuffleChoices != nil {
		exam.ShuffleChoices = *req.ShuffleChoices
	}
	if req.AllowRetry != nil {
		exam.AllowRetry = *req.AllowRetry
	}
	if req.MaxAttempts != nil {
		if *req.MaxAttempts == 0 {
			exam.MaxAttempts = nil
		} else {
			n := *req.MaxAttempts
			exam.MaxAttempts = &n
		}
	}
	if req.ShowCorrectAnswers != nil {
		exam.ShowCorrectAnswers = *req.ShowCorrectAnswers
	}
	replace := req.Questions != nil
	if replace {
		exam.Questions = buildQuestions(*req.Questions)
	}
	exam.DeriveEndsAt()

	if err := s.validate(exam, rescheduled); err != nil {
		return nil, err
	}

	if err := s.exams.Update(ctx, exam, replace); err != nil {
		if errors.Is(err, repository.ErrExamStarted) {
			return nil, ErrExamStarted
		}
		return nil, fmt.Errorf("update exam: %w", err)
	}
	s.cache.Invalidate(ctx, id)

	s.log.Info().Str("exam_id", id.String()).Bool("questions_replaced", replace).Msg("Exam updated")
	return exam, nil
}

// Delete removes the exam and everything hanging off it.
func (s *CatalogService) Delete(ctx context.Context, ownerID int, id uuid.UUID) error {
	if err := s.exams.Delete(ctx, id, ownerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete exam: %w", err)
	}
	s.cache.Invalidate(ctx, id)

	s.log.Info().Str("exam_id", id.String()).Int("owner_id", ownerID).Msg("Exam deleted")
	return nil
}

// validate checks the definition-level rules. checkSchedule additionally
// requires scheduled_start to lie in the future.
func (s *CatalogService) validate(exam *model.Exam, checkSchedule bool) error {
	verr := &ValidationError{}

	if exam.Title == "" {
		verr.add("title", "must not be empty")
	}
	if exam.Grade == "" {
		verr.add("grade", "must not be empty")
	}
	if exam.DurationMinutes < 1 {
		verr.add("duration_minutes", "must be at least 1")
	}
	if exam.PassingScore < 0 || exam.PassingScore > 100 {
		verr.add("passing_score", "must be between 0 and 100")
	}
	if exam.MaxAttempts != nil && *exam.MaxAttempts < 1 {
		verr.add("max_attempts", "must be at least 1")
	}
	if checkSchedule && !exam.ScheduledStart.After(s.now()) {
		verr.add("scheduled_start", "must be in the future")
	}

	if len(exam.Questions) == 0 {
		verr.add("questions", "at least one question is required")
	}
	for i, q := range exam.Questions {
		field := fmt.Sprintf("questions[%d]", i)
		if strings.TrimSpace(q.Text) == "" {
			verr.add(field+".text", "must not be empty")
		}
		if q.Points < 1 {
			verr.add(field+".points", "must be a positive integer")
		}
		if len(q.Choices) == 0 {
			verr.add(field+".choices", "at least one choice is required")
			continue
		}
		if !q.HasCorrectChoice() {
			verr.add(field+".choices", "at least one choice must be correct")
		}
		for j, c := range q.Choices {
			if strings.TrimSpace(c.Text) == "" {
				verr.add(fmt.Sprintf("%s.choices[%d].text", field, j), "must not be empty")
			}
		}
	}

	return verr.orNil()
}

// buildQuestions turns request input into questions whose canonical order is
// their position in the request.
func buildQuestions(inputs []model.QuestionInput) []model.Question {
	questions := make([]model.Question, len(inputs))
	for i, in := range inputs {
		q := model.Question{
			Text:     strings.TrimSpace(in.Text),
			Points:   in.Points,
			OrderNum: i,
			Choices:  make([]model.Choice, len(in.Choices)),
		}
		for j, c := range in.Choices {
			q.Choices[j] = model.Choice{
				Text:      strings.TrimSpace(c.Text),
				IsCorrect: c.IsCorrect,
				OrderNum:  j,
			}
		}
		questions[i] = q
	}
	return questions
}
