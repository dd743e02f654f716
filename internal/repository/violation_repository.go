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

// ViolationRepository handles violation data access and the violation counter
// on attempts.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// Record appends a violation and bumps the attempt's counter in one
// transaction. The increment, threshold check and kick-out happen in a single
// UPDATE, so concurrent reports are linearized by the row lock and exactly one
// of them crosses the threshold. A kicked-out attempt is scored from the
// answers present at that moment and never passes.
func (r *ViolationRepository) Record(ctx context.Context, v *model.Violation, studentID, threshold int) (*model.ViolationOutcome, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin violation tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		count       int
		status      model.AttemptStatus
		totalPoints int
	)
	err = tx.QueryRow(ctx,
		`UPDATE attempts
		 SET violation_count = violation_count + 1,
		     status = CASE WHEN violation_count + 1 >= $3 THEN 'kicked_out' ELSE status END,
		     is_flagged = is_flagged OR violation_count + 1 >= $3,
		     ended_at = CASE WHEN violation_count + 1 >= $3 THEN NOW() ELSE ended_at END
		 WHERE id = $1 AND student_id = $2 AND status = 'in_progress'
		 RETURNING violation_count, status, total_points`,
		v.AttemptID, studentID, threshold,
	).Scan(&count, &status, &totalPoints)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotActive
		}
		return nil, fmt.Errorf("increment violation count: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO violations (attempt_id, type, details)
		 VALUES ($1, $2, COALESCE($3::jsonb, '{}'::jsonb))
		 RETURNING id, recorded_at`,
		v.AttemptID, v.Type, []byte(v.Details),
	).Scan(&v.ID, &v.RecordedAt)
	if err != nil {
		return nil, fmt.Errorf("insert violation: %w", err)
	}

	kicked := status == model.AttemptStatusKickedOut
	if kicked {
		score, err := sumCorrectPoints(ctx, tx, v.AttemptID)
		if err != nil {
			return nil, err
		}
		result := model.NewSubmissionResult(score, totalPoints, 0)
		if _, err := tx.Exec(ctx,
			`UPDATE attempts SET score = $2, percentage = $3, passed = FALSE WHERE id = $1`,
			v.AttemptID, result.Score, result.Percentage); err != nil {
			return nil, fmt.Errorf("score kicked-out attempt: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit violation: %w", err)
	}
	return &model.ViolationOutcome{ViolationCount: count, KickedOut: kicked}, nil
}

// ListByAttempt returns an attempt's violations in the order they were recorded.
func (r *ViolationRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Violation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, attempt_id, type, details, recorded_at
		 FROM violations WHERE attempt_id = $1
		 ORDER BY recorded_at, id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var violations []model.Violation
	for rows.Next() {
		var v model.Violation
		var details []byte
		if err := rows.Scan(&v.ID, &v.AttemptID, &v.Type, &details, &v.RecordedAt); err != nil {
			return nil, err
		}
		v.Details = details
		violations = append(violations, v)
	}
	return violations, rows.Err()
}
