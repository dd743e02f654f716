package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrAttemptNotActive is returned when a guarded attempt write finds no
	// in_progress attempt owned by the caller.
	ErrAttemptNotActive = errors.New("attempt is not in progress")
	// ErrExamStarted is returned when an exam edit races past scheduled_start.
	ErrExamStarted = errors.New("exam has already started")
)

// queryable is satisfied by *pgxpool.Pool and pgx.Tx.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
