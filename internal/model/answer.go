package model

import (
	"time"

	"github.com/google/uuid"
)

// Answer is a student's selection for one question of one attempt.
// IsCorrect is snapshotted from the choice at write time.
type Answer struct {
	ID         uuid.UUID `json:"id"`
	AttemptID  uuid.UUID `json:"attempt_id"`
	QuestionID uuid.UUID `json:"question_id"`
	ChoiceID   uuid.UUID `json:"choice_id"`
	IsCorrect  bool      `json:"-"`
	AnsweredAt time.Time `json:"answered_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// RecordAnswerRequest is the payload for recording an answer.
type RecordAnswerRequest struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	ChoiceID   uuid.UUID `json:"choice_id" binding:"required"`
}
