package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-live/internal/model"
)

// listQuestions loads an exam's questions with their choices, both in
// canonical order.
func listQuestions(ctx context.Context, q queryable, examID uuid.UUID) ([]model.Question, error) {
	rows, err := q.Query(ctx,
		`SELECT id, exam_id, text, points, order_num
		 FROM questions WHERE exam_id = $1
		 ORDER BY order_num, id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		var qu model.Question
		if err := rows.Scan(&qu.ID, &qu.ExamID, &qu.Text, &qu.Points, &qu.OrderNum); err != nil {
			return nil, err
		}
		index[qu.ID] = len(questions)
		questions = append(questions, qu)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return questions, nil
	}

	crows, err := q.Query(ctx,
		`SELECT c.id, c.question_id, c.text, c.is_correct, c.order_num
		 FROM choices c
		 JOIN questions q ON q.id = c.question_id
		 WHERE q.exam_id = $1
		 ORDER BY c.question_id, c.order_num, c.id`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer crows.Close()

	for crows.Next() {
		var c model.Choice
		if err := crows.Scan(&c.ID, &c.QuestionID, &c.Text, &c.IsCorrect, &c.OrderNum); err != nil {
			return nil, err
		}
		if i, ok := index[c.QuestionID]; ok {
			questions[i].Choices = append(questions[i].Choices, c)
		}
	}
	return questions, crows.Err()
}

// insertQuestions writes the question set of an exam, filling in generated
// ids and timestamps on the passed slice.
func insertQuestions(ctx context.Context, q queryable, examID uuid.UUID, questions []model.Question) error {
	for i := range questions {
		qu := &questions[i]
		qu.ExamID = examID
		if err := q.QueryRow(ctx,
			`INSERT INTO questions (exam_id, text, points, order_num)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id`,
			examID, qu.Text, qu.Points, qu.OrderNum,
		).Scan(&qu.ID); err != nil {
			return fmt.Errorf("insert question %d: %w", i, err)
		}

		for j := range qu.Choices {
			c := &qu.Choices[j]
			c.QuestionID = qu.ID
			if err := q.QueryRow(ctx,
				`INSERT INTO choices (question_id, text, is_correct, order_num)
				 VALUES ($1, $2, $3, $4)
				 RETURNING id`,
				qu.ID, c.Text, c.IsCorrect, c.OrderNum,
			).Scan(&c.ID); err != nil {
				return fmt.Errorf("insert choice %d of question %d: %w", j, i, err)
			}
		}
	}
	return nil
}
