package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-live/internal/model"
)

// AnswerRepository handles answer data access.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// Upsert records the student's selection for a question, replacing any
// earlier one for the same (attempt, question). The attempt row is share-locked
// so the write cannot interleave with a kick-out or submission.
func (r *AnswerRepository) Upsert(ctx context.Context, a *model.Answer, studentID int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin answer tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var one int
	err = tx.QueryRow(ctx,
		`SELECT 1 FROM attempts
		 WHERE id = $1 AND student_id = $2 AND status = 'in_progress'
		 FOR SHARE`, a.AttemptID, studentID,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAttemptNotActive
		}
		return fmt.Errorf("lock attempt: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO answers (attempt_id, question_id, choice_id, is_correct)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE
		 SET choice_id = EXCLUDED.choice_id,
		     is_correct = EXCLUDED.is_correct,
		     updated_at = NOW()
		 RETURNING id, answered_at, updated_at`,
		a.AttemptID, a.QuestionID, a.ChoiceID, a.IsCorrect,
	).Scan(&a.ID, &a.AnsweredAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit answer: %w", err)
	}
	return nil
}

// ListByAttempt retrieves all answers recorded for an attempt.
func (r *AnswerRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, attempt_id, question_id, choice_id, is_correct, answered_at, updated_at
		 FROM answers WHERE attempt_id = $1
		 ORDER BY answered_at`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.ID, &a.AttemptID, &a.QuestionID, &a.ChoiceID,
			&a.IsCorrect, &a.AnsweredAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}
