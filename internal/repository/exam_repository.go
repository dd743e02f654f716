package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-live/internal/model"
)

const examColumns = `id, owner_id, title, description, grade, duration_minutes,
	scheduled_start, ends_at, passing_score, shuffle_questions, shuffle_choices,
	allow_retry, max_attempts, show_correct_answers, created_at, updated_at`

// ExamRepository handles exam definition data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

func scanExam(row pgx.Row, e *model.Exam) error {
	return row.Scan(&e.ID, &e.OwnerID, &e.Title, &e.Description, &e.Grade, &e.DurationMinutes,
		&e.ScheduledStart, &e.EndsAt, &e.PassingScore, &e.ShuffleQuestions, &e.ShuffleChoices,
		&e.AllowRetry, &e.MaxAttempts, &e.ShowCorrectAnswers, &e.CreatedAt, &e.UpdatedAt)
}

// GetByID retrieves an exam with its questions and choices.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := scanExam(r.pool.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id), e)
	if err != nil {
		return nil, notFound(err)
	}

	questions, err := listQuestions(ctx, r.pool, id)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	e.Questions = questions
	return e, nil
}

// ListByOwner retrieves the owner's exams, newest schedule first, without questions.
func (r *ExamRepository) ListByOwner(ctx context.Context, ownerID int) ([]model.Exam, error) {
	return r.list(ctx,
		`SELECT `+examColumns+` FROM exams WHERE owner_id = $1
		 ORDER BY scheduled_start DESC`, ownerID)
}

// ListOpenOrUpcoming returns exams whose window has not closed and that start
// before the given horizon. Used for cache prewarming on application startup.
func (r *ExamRepository) ListOpenOrUpcoming(ctx context.Context, horizon time.Time) ([]model.Exam, error) {
	return r.list(ctx,
		`SELECT `+examColumns+` FROM exams
		 WHERE ends_at > NOW() AND scheduled_start <= $1
		 ORDER BY scheduled_start`, horizon)
}

func (r *ExamRepository) list(ctx context.Context, query string, args ...any) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := scanExam(rows, &e); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// Create inserts an exam together with its questions and choices in one
// transaction. Generated ids are written back into e.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create exam tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`INSERT INTO exams (owner_id, title, description, grade, duration_minutes,
		                    scheduled_start, ends_at, passing_score, shuffle_questions,
		                    shuffle_choices, allow_retry, max_attempts, show_correct_answers)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id, created_at, updated_at`,
		e.OwnerID, e.Title, e.Description, e.Grade, e.DurationMinutes,
		e.ScheduledStart, e.EndsAt, e.PassingScore, e.ShuffleQuestions,
		e.ShuffleChoices, e.AllowRetry, e.MaxAttempts, e.ShowCorrectAnswers,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}

	if err := insertQuestions(ctx, tx, e.ID, e.Questions); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create exam: %w", err)
	}
	return nil
}

// Update writes the exam's settings and, when replaceQuestions is set,
// replaces its entire question set. The write only applies while the stored
// scheduled_start is still in the future; otherwise ErrExamStarted.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam, replaceQuestions bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update exam tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx,
		`UPDATE exams
		 SET title = $3, description = $4, grade = $5, duration_minutes = $6,
		     scheduled_start = $7, ends_at = $8, passing_score = $9,
		     shuffle_questions = $10, shuffle_choices = $11, allow_retry = $12,
		     max_attempts = $13, show_correct_answers = $14, updated_at = NOW()
		 WHERE id = $1 AND owner_id = $2 AND scheduled_start > NOW()
		 RETURNING updated_at`,
		e.ID, e.OwnerID, e.Title, e.Description, e.Grade, e.DurationMinutes,
		e.ScheduledStart, e.EndsAt, e.PassingScore, e.ShuffleQuestions,
		e.ShuffleChoices, e.AllowRetry, e.MaxAttempts, e.ShowCorrectAnswers,
	).Scan(&e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrExamStarted
		}
		return fmt.Errorf("update exam: %w", err)
	}

	if replaceQuestions {
		if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE exam_id = $1`, e.ID); err != nil {
			return fmt.Errorf("clear questions: %w", err)
		}
		if err := insertQuestions(ctx, tx, e.ID, e.Questions); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update exam: %w", err)
	}
	return nil
}

// Delete removes an exam owned by ownerID. Questions, choices, attempts,
// answers and violations go with it through ON DELETE CASCADE.
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID, ownerID int) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM exams WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
