package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/repository"
)

// ReportService aggregates attempts for the exam owner. Read-only.
type ReportService struct {
	exams      ExamStore
	attempts   AttemptStore
	answers    AnswerStore
	violations ViolationStore
	students   StudentStore
}

// NewReportService creates a new ReportService.
func NewReportService(exams ExamStore, attempts AttemptStore, answers AnswerStore, violations ViolationStore, students StudentStore) *ReportService {
	return &ReportService{
		exams:      exams,
		attempts:   attempts,
		answers:    answers,
		violations: violations,
		students:   students,
	}
}

// Overview returns stats, every attempt and the students of the exam's grade
// who never started. An exam without attempts yields zeros.
func (s *ReportService) Overview(ctx context.Context, ownerID int, examID uuid.UUID) (*model.ExamOverview, error) {
	exam, err := s.ownedExam(ctx, ownerID, examID)
	if err != nil {
		return nil, err
	}

	// The attempt list and the roster are independent; fetch them together.
	var (
		attempts    []model.AttemptSummary
		roster      []model.Student
		attemptsErr error
		rosterErr   error
		wg          sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		attempts, attemptsErr = s.attempts.ListByExam(ctx, examID)
	}()
	go func() {
		defer wg.Done()
		roster, rosterErr = s.students.ListByGrade(ctx, exam.Grade)
	}()
	wg.Wait()

	if attemptsErr != nil {
		return nil, fmt.Errorf("list attempts: %w", attemptsErr)
	}
	if rosterErr != nil {
		return nil, fmt.Errorf("list students: %w", rosterErr)
	}

	stats, notStarted := summarize(attempts, roster)
	if attempts == nil {
		attempts = []model.AttemptSummary{}
	}

	exam.Questions = nil
	return &model.ExamOverview{
		Exam:       exam,
		Stats:      stats,
		Attempts:   attempts,
		NotStarted: notStarted,
	}, nil
}

// summarize computes the overview stats and the never-started roster.
func summarize(attempts []model.AttemptSummary, roster []model.Student) (model.ExamStats, []model.Student) {
	stats := model.ExamStats{
		StudentsEligible: len(roster),
		AttemptsStarted:  len(attempts),
	}

	started := make(map[int]struct{})
	completed := make(map[int]struct{})
	var pctSum float64
	var submitted int

	for _, a := range attempts {
		started[a.StudentID] = struct{}{}
		stats.TotalViolations += a.ViolationCount
		if a.IsFlagged {
			stats.AttemptsFlagged++
		}

		switch a.Status {
		case model.AttemptStatusInProgress:
			stats.AttemptsInProgress++
		case model.AttemptStatusKickedOut:
			stats.AttemptsKickedOut++
		case model.AttemptStatusSubmitted:
			completed[a.StudentID] = struct{}{}
			submitted++
			if a.Percentage != nil {
				pctSum += *a.Percentage
			}
		}
	}

	stats.StudentsStarted = len(started)
	stats.StudentsCompleted = len(completed)
	if submitted > 0 {
		stats.AvgScore = math.Round(pctSum/float64(submitted)*10) / 10
	}

	notStarted := make([]model.Student, 0, len(roster))
	for _, st := range roster {
		if _, ok := started[st.ID]; !ok {
			notStarted = append(notStarted, st)
		}
	}
	return stats, notStarted
}

// AttemptDetail returns an attempt of one of the owner's exams with its
// answers in frozen order and its violations in time order.
func (s *ReportService) AttemptDetail(ctx context.Context, ownerID int, attemptID uuid.UUID) (*model.AttemptDetail, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	exam, err := s.ownedExam(ctx, ownerID, attempt.ExamID)
	if err != nil {
		return nil, err
	}

	answers, err := s.answers.ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	violations, err := s.violations.ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, fmt.Errorf("list violations: %w", err)
	}
	if violations == nil {
		violations = []model.Violation{}
	}

	detail := &model.AttemptDetail{
		Attempt:    attempt,
		Answers:    buildAnswerDetails(exam, attempt, answers),
		Violations: violations,
	}

	student, err := s.students.GetByID(ctx, attempt.StudentID)
	switch {
	case err == nil:
		detail.Student = student
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("get student: %w", err)
	}
	return detail, nil
}

func buildAnswerDetails(exam *model.Exam, attempt *model.Attempt, answers []model.Answer) []model.AnswerDetail {
	byQuestion := make(map[uuid.UUID]model.Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	details := make([]model.AnswerDetail, 0, len(attempt.QuestionOrder))
	for i, qid := range attempt.QuestionOrder {
		q := exam.Question(qid)
		if q == nil {
			continue
		}
		d := model.AnswerDetail{
			QuestionID:       q.ID,
			QuestionText:     q.Text,
			Points:           q.Points,
			Position:         i + 1,
			CorrectChoiceIDs: q.CorrectChoiceIDs(),
		}
		if a, ok := byQuestion[qid]; ok {
			choice := a.ChoiceID
			answeredAt := a.UpdatedAt
			d.SelectedChoiceID = &choice
			d.IsCorrect = a.IsCorrect
			d.AnsweredAt = &answeredAt
		}
		details = append(details, d)
	}
	return details
}

func (s *ReportService) ownedExam(ctx context.Context, ownerID int, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, examID)
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
