package model

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt states. Both non-in_progress states are terminal.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "in_progress"
	AttemptStatusSubmitted  AttemptStatus = "submitted"
	AttemptStatusKickedOut  AttemptStatus = "kicked_out"
)

// IsTerminal reports whether no further transition is possible.
func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptStatusSubmitted || s == AttemptStatusKickedOut
}

// Attempt is one student's run through an exam.
type Attempt struct {
	ID             uuid.UUID     `json:"id"`
	ExamID         uuid.UUID     `json:"exam_id"`
	StudentID      int           `json:"student_id"`
	AttemptNumber  int           `json:"attempt_number"`
	Status         AttemptStatus `json:"status"`
	QuestionOrder  IDOrder       `json:"-"`
	ShuffleSeed    int64         `json:"-"`
	TotalPoints    int           `json:"total_points"`
	Score          *int          `json:"score"`
	Percentage     *float64      `json:"percentage"`
	Passed         *bool         `json:"passed"`
	ViolationCount int           `json:"violation_count"`
	IsFlagged      bool          `json:"is_flagged"`
	AutoSubmitted  bool          `json:"auto_submitted"`
	StartedAt      time.Time     `json:"started_at"`
	SubmittedAt    *time.Time    `json:"submitted_at,omitempty"`
	EndedAt        *time.Time    `json:"ended_at,omitempty"`
}

// IsActive reports whether the attempt accepts answers and violations.
func (a *Attempt) IsActive() bool {
	return a.Status == AttemptStatusInProgress
}

// RemainingTime is started_at + duration - now, clamped at zero.
// It is always derived at read time, never stored.
func (a *Attempt) RemainingTime(duration time.Duration, now time.Time) time.Duration {
	remaining := a.StartedAt.Add(duration).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// StartAttemptResult is returned by the start operation.
type StartAttemptResult struct {
	Attempt          *Attempt `json:"attempt"`
	Resumed          bool     `json:"resumed"`
	RemainingSeconds int64    `json:"remaining_seconds"`
}

// AttemptQuestions is the frozen question paper for an in-progress attempt.
type AttemptQuestions struct {
	Attempt          *Attempt          `json:"attempt"`
	ExamTitle        string            `json:"exam_title"`
	RemainingSeconds int64             `json:"remaining_seconds"`
	Questions        []StudentQuestion `json:"questions"`
}

// AttemptState is the lightweight reload payload for a running attempt.
type AttemptState struct {
	Attempt          *Attempt    `json:"attempt"`
	RemainingSeconds int64       `json:"remaining_seconds"`
	AnsweredCount    int         `json:"answered_count"`
	AnsweredIDs      []uuid.UUID `json:"answered_question_ids"`
}

// SubmissionResult is the outcome of a submission.
type SubmissionResult struct {
	Score       int     `json:"score"`
	TotalPoints int     `json:"total_points"`
	Percentage  float64 `json:"percentage"`
	Passed      bool    `json:"passed"`
}

// NewSubmissionResult applies the scoring formula: percentage is
// score/total*100 (0 when total is 0) and the attempt passes when it reaches
// passingScore. Pass/fail is decided on the exact ratio; only the reported
// Percentage is rounded to one decimal.
func NewSubmissionResult(score, total int, passingScore float64) SubmissionResult {
	var raw float64
	if total > 0 {
		raw = float64(score) * 100 / float64(total)
	}
	return SubmissionResult{
		Score:       score,
		TotalPoints: total,
		Percentage:  math.Round(raw*10) / 10,
		Passed:      raw >= passingScore,
	}
}

// AttemptResult is the terminal result shown to the student.
type AttemptResult struct {
	Attempt        *Attempt                  `json:"attempt"`
	Disqualified   bool                      `json:"disqualified"`
	CorrectAnswers map[uuid.UUID][]uuid.UUID `json:"correct_answers,omitempty"`
}
