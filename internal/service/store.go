package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-live/internal/model"
	"github.com/stemsi/exstem-live/internal/repository"
)

// The interfaces below are the slices of the repositories each service
// needs. *repository.XRepository values satisfy them.

// ExamStore persists exam definitions.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListByOwner(ctx context.Context, ownerID int) ([]model.Exam, error)
	ListOpenOrUpcoming(ctx context.Context, horizon time.Time) ([]model.Exam, error)
	Create(ctx context.Context, e *model.Exam) error
	Update(ctx context.Context, e *model.Exam, replaceQuestions bool) error
	Delete(ctx context.Context, id uuid.UUID, ownerID int) error
}

// ExamSource reads exam definitions on the student hot path.
type ExamSource interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

// AttemptStore persists attempts and their guarded transitions.
type AttemptStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	ListByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) ([]model.Attempt, error)
	CreateActive(ctx context.Context, a *model.Attempt) (bool, error)
	Submit(ctx context.Context, p repository.SubmitParams) (*model.Attempt, *model.SubmissionResult, error)
	ListOverdue(ctx context.Context, grace time.Duration, limit int) ([]model.Attempt, error)
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.AttemptSummary, error)
}

// AnswerStore persists answers.
type AnswerStore interface {
	Upsert(ctx context.Context, a *model.Answer, studentID int) error
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error)
}

// ViolationStore persists violations and the attempt counter.
type ViolationStore interface {
	Record(ctx context.Context, v *model.Violation, studentID, threshold int) (*model.ViolationOutcome, error)
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Violation, error)
}

// StudentStore reads the roster.
type StudentStore interface {
	GetByID(ctx context.Context, id int) (*model.Student, error)
	ListByGrade(ctx context.Context, grade string) ([]model.Student, error)
}
