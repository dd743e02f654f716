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

const attemptColumns = `a.id, a.exam_id, a.student_id, a.attempt_number, a.status,
	a.question_order, a.shuffle_seed, a.total_points, a.score, a.percentage,
	a.passed, a.violation_count, a.is_flagged, a.auto_submitted, a.started_at,
	a.submitted_at, a.ended_at`

// AttemptRepository handles attempt data access. Every state transition is
// guarded in SQL so the store, not the caller, enforces the lifecycle.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func scanAttempt(row pgx.Row, a *model.Attempt, extra ...any) error {
	var order []byte
	dest := []any{&a.ID, &a.ExamID, &a.StudentID, &a.AttemptNumber, &a.Status,
		&order, &a.ShuffleSeed, &a.TotalPoints, &a.Score, &a.Percentage,
		&a.Passed, &a.ViolationCount, &a.IsFlagged, &a.AutoSubmitted, &a.StartedAt,
		&a.SubmittedAt, &a.EndedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}

	decoded, err := model.DecodeIDOrder(order)
	if err != nil {
		return fmt.Errorf("attempt %s: %w", a.ID, err)
	}
	a.QuestionOrder = decoded
	return nil
}

// GetByID retrieves an attempt by its id.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return getAttempt(ctx, r.pool, id)
}

func getAttempt(ctx context.Context, q queryable, id uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := scanAttempt(q.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts a WHERE a.id = $1`, id), a)
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// ListByExamAndStudent returns a student's attempts at an exam, latest first.
func (r *AttemptRepository) ListByExamAndStudent(ctx context.Context, examID uuid.UUID, studentID int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts a
		 WHERE a.exam_id = $1 AND a.student_id = $2
		 ORDER BY a.attempt_number DESC`, examID, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := scanAttempt(rows, &a); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// CreateActive inserts a new in_progress attempt. It reports false without
// error when a concurrent start already holds the in-progress slot or the
// attempt number; the caller re-reads and resumes the winner.
func (r *AttemptRepository) CreateActive(ctx context.Context, a *model.Attempt) (bool, error) {
	order, err := a.QuestionOrder.Encode()
	if err != nil {
		return false, err
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO attempts (id, exam_id, student_id, attempt_number, status,
		                       question_order, shuffle_seed, total_points, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT DO NOTHING
		 RETURNING started_at`,
		a.ID, a.ExamID, a.StudentID, a.AttemptNumber, model.AttemptStatusInProgress,
		order, a.ShuffleSeed, a.TotalPoints, a.StartedAt,
	).Scan(&a.StartedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	a.Status = model.AttemptStatusInProgress
	return true, nil
}

// SubmitParams identifies the attempt to finalize.
type SubmitParams struct {
	AttemptID uuid.UUID
	StudentID int
	Auto      bool
}

// Submit scores and finalizes an in_progress attempt under a row lock.
// It returns ErrNotFound for an unknown id and ErrAttemptNotActive when the
// attempt is not owned by the student or has already reached a terminal state.
func (r *AttemptRepository) Submit(ctx context.Context, p SubmitParams) (*model.Attempt, *model.SubmissionResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin submit tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		studentID    int
		status       model.AttemptStatus
		totalPoints  int
		passingScore float64
	)
	err = tx.QueryRow(ctx,
		`SELECT a.student_id, a.status, a.total_points, e.passing_score
		 FROM attempts a
		 JOIN exams e ON e.id = a.exam_id
		 WHERE a.id = $1
		 FOR UPDATE OF a`, p.AttemptID,
	).Scan(&studentID, &status, &totalPoints, &passingScore)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("lock attempt: %w", err)
	}
	if studentID != p.StudentID || status != model.AttemptStatusInProgress {
		return nil, nil, ErrAttemptNotActive
	}

	score, err := sumCorrectPoints(ctx, tx, p.AttemptID)
	if err != nil {
		return nil, nil, err
	}
	result := model.NewSubmissionResult(score, totalPoints, passingScore)

	a := &model.Attempt{}
	err = scanAttempt(tx.QueryRow(ctx,
		`UPDATE attempts a
		 SET status = $2, score = $3, percentage = $4, passed = $5,
		     auto_submitted = $6, submitted_at = NOW(), ended_at = NOW()
		 WHERE a.id = $1
		 RETURNING `+attemptColumns,
		p.AttemptID, model.AttemptStatusSubmitted, result.Score, result.Percentage,
		result.Passed, p.Auto), a)
	if err != nil {
		return nil, nil, fmt.Errorf("finalize attempt: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit submit: %w", err)
	}
	return a, &result, nil
}

// sumCorrectPoints adds up question points over the attempt's answers whose
// correctness snapshot is true.
func sumCorrectPoints(ctx context.Context, q queryable, attemptID uuid.UUID) (int, error) {
	var score int
	err := q.QueryRow(ctx,
		`SELECT COALESCE(SUM(q.points), 0)::int
		 FROM answers an
		 JOIN questions q ON q.id = an.question_id
		 WHERE an.attempt_id = $1 AND an.is_correct`, attemptID,
	).Scan(&score)
	if err != nil {
		return 0, fmt.Errorf("sum correct points: %w", err)
	}
	return score, nil
}

// ListOverdue returns in_progress attempts whose duration plus grace has
// elapsed, oldest first.
func (r *AttemptRepository) ListOverdue(ctx context.Context, grace time.Duration, limit int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts a
		 JOIN exams e ON e.id = a.exam_id
		 WHERE a.status = 'in_progress'
		   AND a.started_at + make_interval(mins => e.duration_minutes)
		       + make_interval(secs => $1) <= NOW()
		 ORDER BY a.started_at
		 LIMIT $2`, grace.Seconds(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := scanAttempt(rows, &a); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ListByExam returns every attempt of an exam with the student's name and
// the number of answered questions.
func (r *AttemptRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.AttemptSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`,
		        COALESCE(s.name, ''),
		        (SELECT COUNT(*) FROM answers an WHERE an.attempt_id = a.id)::int
		 FROM attempts a
		 LEFT JOIN students s ON s.id = a.student_id
		 WHERE a.exam_id = $1
		 ORDER BY a.started_at, a.attempt_number`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []model.AttemptSummary
	for rows.Next() {
		var s model.AttemptSummary
		if err := scanAttempt(rows, &s.Attempt, &s.StudentName, &s.AnsweredCount); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
