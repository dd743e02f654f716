package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-live/internal/model"
)

// StudentRepository handles roster data access.
type StudentRepository struct {
	pool *pgxpool.Pool
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(pool *pgxpool.Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

// GetByID retrieves a student by ID.
func (r *StudentRepository) GetByID(ctx context.Context, id int) (*model.Student, error) {
	s := &model.Student{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, grade, created_at FROM students WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name, &s.Grade, &s.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// ListByGrade returns every student in a grade, ordered by name.
func (r *StudentRepository) ListByGrade(ctx context.Context, grade string) ([]model.Student, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, grade, created_at FROM students
		 WHERE grade = $1
		 ORDER BY name, id`, grade)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []model.Student
	for rows.Next() {
		var s model.Student
		if err := rows.Scan(&s.ID, &s.Name, &s.Grade, &s.CreatedAt); err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

// Create inserts a roster entry.
func (r *StudentRepository) Create(ctx context.Context, s *model.Student) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO students (name, grade) VALUES ($1, $2)
		 RETURNING id, created_at`,
		s.Name, s.Grade,
	).Scan(&s.ID, &s.CreatedAt)
}
