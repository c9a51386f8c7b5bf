package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/quiz-integrity/internal/model"
)

// StudentRepository is the read-only student directory.
type StudentRepository struct {
	pool *pgxpool.Pool
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(pool *pgxpool.Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

// GetByID retrieves a student by ID.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*model.Student, error) {
	s := &model.Student{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, first_name, last_name, COALESCE(class_id, '') FROM students WHERE id = $1`, id,
	).Scan(&s.ID, &s.FirstName, &s.LastName, &s.ClassID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

// GetByIDs retrieves several students at once. Unknown ids are omitted.
func (r *StudentRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*model.Student, error) {
	out := make(map[string]*model.Student, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, first_name, last_name, COALESCE(class_id, '') FROM students WHERE id = ANY($1)`, ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		s := &model.Student{}
		if err := rows.Scan(&s.ID, &s.FirstName, &s.LastName, &s.ClassID); err != nil {
			return nil, err
		}
		out[s.ID] = s
	}
	return out, rows.Err()
}

// Upsert writes a directory record. Used by quizctl to seed fixtures.
func (r *StudentRepository) Upsert(ctx context.Context, s *model.Student) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO students (id, first_name, last_name, class_id)
		 VALUES ($1, $2, $3, NULLIF($4, ''))
		 ON CONFLICT (id) DO UPDATE
		 SET first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name, class_id = EXCLUDED.class_id`,
		s.ID, s.FirstName, s.LastName, s.ClassID,
	)
	return err
}
