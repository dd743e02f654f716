package model

import "github.com/google/uuid"

// Question represents a single multiple-choice exam question.
type Question struct {
	ID       uuid.UUID `json:"id"`
	ExamID   uuid.UUID `json:"exam_id"`
	Text     string    `json:"text"`
	Points   int       `json:"points"`
	OrderNum int       `json:"order_num"`
	Choices  []Choice  `json:"choices"`
}

// Choice is one selectable option of a question.
type Choice struct {
	ID         uuid.UUID `json:"id"`
	QuestionID uuid.UUID `json:"question_id"`
	Text       string    `json:"text"`
	IsCorrect  bool      `json:"is_correct"`
	OrderNum   int       `json:"order_num"`
}

// Choice returns the choice with the given id, or nil.
func (q *Question) Choice(id uuid.UUID) *Choice {
	for i := range q.Choices {
		if q.Choices[i].ID == id {
			return &q.Choices[i]
		}
	}
	return nil
}

// CorrectChoiceIDs returns the ids of all correct choices in canonical order.
func (q *Question) CorrectChoiceIDs() []uuid.UUID {
	var ids []uuid.UUID
	for _, c := range q.Choices {
		if c.IsCorrect {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// HasCorrectChoice reports whether at least one choice is marked correct.
func (q *Question) HasCorrectChoice() bool {
	for _, c := range q.Choices {
		if c.IsCorrect {
			return true
		}
	}
	return false
}

// QuestionInput is a question as submitted by the exam owner.
// Canonical order is the position in the request slice.
type QuestionInput struct {
	Text    string        `json:"text" binding:"required,min=1,max=5000"`
	Points  int           `json:"points" binding:"required,min=1"`
	Choices []ChoiceInput `json:"choices" binding:"required,min=1,dive"`
}

// ChoiceInput is a choice as submitted by the exam owner.
type ChoiceInput struct {
	Text      string `json:"text" binding:"required,min=1,max=2000"`
	IsCorrect bool   `json:"is_correct"`
}

// StudentQuestion is a question as delivered to a student: frozen order,
// no correctness flags.
type StudentQuestion struct {
	ID               uuid.UUID       `json:"id"`
	Text             string          `json:"text"`
	Points           int             `json:"points"`
	Position         int             `json:"position"`
	Choices          []StudentChoice `json:"choices"`
	SelectedChoiceID *uuid.UUID      `json:"selected_choice_id,omitempty"`
}

// StudentChoice is a choice without its correctness flag.
type StudentChoice struct {
	ID   uuid.UUID `json:"id"`
	Text string    `json:"text"`
}
