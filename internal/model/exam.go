package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam is the exam definition: schedule, policy and question set.
type Exam struct {
	ID                 uuid.UUID  `json:"id"`
	OwnerID            int        `json:"owner_id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Grade              string     `json:"grade"`
	DurationMinutes    int        `json:"duration_minutes"`
	ScheduledStart     time.Time  `json:"scheduled_start"`
	EndsAt             time.Time  `json:"ends_at"`
	PassingScore       float64    `json:"passing_score"`
	ShuffleQuestions   bool       `json:"shuffle_questions"`
	ShuffleChoices     bool       `json:"shuffle_choices"`
	AllowRetry         bool       `json:"allow_retry"`
	MaxAttempts        *int       `json:"max_attempts,omitempty"`
	ShowCorrectAnswers bool       `json:"show_correct_answers"`
	Questions          []Question `json:"questions,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Duration returns the exam duration as a time.Duration.
func (e *Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// DeriveEndsAt recomputes EndsAt from ScheduledStart and the duration.
// EndsAt is never set any other way.
func (e *Exam) DeriveEndsAt() {
	e.EndsAt = e.ScheduledStart.Add(e.Duration())
}

// HasStarted reports whether the exam is frozen against edits at now.
func (e *Exam) HasStarted(now time.Time) bool {
	return !now.Before(e.ScheduledStart)
}

// TotalPoints sums the points of the current question set.
func (e *Exam) TotalPoints() int {
	total := 0
	for _, q := range e.Questions {
		total += q.Points
	}
	return total
}

// Question returns the question with the given id, or nil.
func (e *Exam) Question(id uuid.UUID) *Question {
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			return &e.Questions[i]
		}
	}
	return nil
}

// CreateExamRequest is the payload for creating a new exam with its questions.
type CreateExamRequest struct {
	Title              string          `json:"title" binding:"required,min=1,max=255"`
	Description        string          `json:"description" binding:"omitempty,max=5000"`
	Grade              string          `json:"grade" binding:"required,max=20"`
	DurationMinutes    int             `json:"duration_minutes" binding:"required,min=1,max=480"`
	ScheduledStart     time.Time       `json:"scheduled_start" binding:"required"`
	PassingScore       float64         `json:"passing_score"`
	ShuffleQuestions   bool            `json:"shuffle_questions"`
	ShuffleChoices     bool            `json:"shuffle_choices"`
	AllowRetry         bool            `json:"allow_retry"`
	MaxAttempts        *int            `json:"max_attempts" binding:"omitempty,min=1"`
	ShowCorrectAnswers bool            `json:"show_correct_answers"`
	Questions          []QuestionInput `json:"questions" binding:"dive"`
}

// UpdateExamRequest is a partial update. Nil fields are left unchanged;
// a non-nil Questions slice replaces the whole question set.
type UpdateExamRequest struct {
	Title              *string          `json:"title" binding:"omitempty,max=255"`
	Description        *string          `json:"description" binding:"omitempty,max=5000"`
	Grade              *string          `json:"grade" binding:"omitempty,max=20"`
	DurationMinutes    *int             `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	ScheduledStart     *time.Time       `json:"scheduled_start"`
	PassingScore       *float64         `json:"passing_score"`
	ShuffleQuestions   *bool            `json:"shuffle_questions"`
	ShuffleChoices     *bool            `json:"shuffle_choices"`
	AllowRetry         *bool            `json:"allow_retry"`
	MaxAttempts        *int             `json:"max_attempts" binding:"omitempty,min=0"`
	ShowCorrectAnswers *bool            `json:"show_correct_answers"`
	Questions          *[]QuestionInput `json:"questions"`
}
