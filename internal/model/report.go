package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptSummary is an attempt row joined with the student's name.
type AttemptSummary struct {
	Attempt
	StudentName   string `json:"student_name"`
	AnsweredCount int    `json:"answered_count"`
}

// ExamStats aggregates attempts of one exam.
type ExamStats struct {
	StudentsEligible   int     `json:"students_eligible"`
	StudentsStarted    int     `json:"students_started"`
	StudentsCompleted  int     `json:"students_completed"`
	AttemptsStarted    int     `json:"attempts_started"`
	AttemptsInProgress int     `json:"attempts_in_progress"`
	AttemptsFlagged    int     `json:"attempts_flagged"`
	AttemptsKickedOut  int     `json:"attempts_kicked_out"`
	TotalViolations    int     `json:"total_violations"`
	AvgScore           float64 `json:"avg_score"`
}

// ExamOverview is the owner's dashboard for one exam.
type ExamOverview struct {
	Exam       *Exam            `json:"exam"`
	Stats      ExamStats        `json:"stats"`
	Attempts   []AttemptSummary `json:"attempts"`
	NotStarted []Student        `json:"not_started"`
}

// AnswerDetail shows the selected choice next to the correct ones.
type AnswerDetail struct {
	QuestionID       uuid.UUID   `json:"question_id"`
	QuestionText     string      `json:"question_text"`
	Points           int         `json:"points"`
	Position         int         `json:"position"`
	SelectedChoiceID *uuid.UUID  `json:"selected_choice_id"`
	CorrectChoiceIDs []uuid.UUID `json:"correct_choice_ids"`
	IsCorrect        bool        `json:"is_correct"`
	AnsweredAt       *time.Time  `json:"answered_at,omitempty"`
}

// AttemptDetail is the per-student drill-down.
type AttemptDetail struct {
	Attempt    *Attempt       `json:"attempt"`
	Student    *Student       `json:"student,omitempty"`
	Answers    []AnswerDetail `json:"answers"`
	Violations []Violation    `json:"violations"`
}
