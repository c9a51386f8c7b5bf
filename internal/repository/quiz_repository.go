package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/quiz-integrity/internal/model"
)

// QuizRepository stores quiz documents as JSONB. Attempts live in their
// own append-only table and are never written into the document.
type QuizRepository struct {
	pool *pgxpool.Pool
}

// NewQuizRepository creates a new QuizRepository.
func NewQuizRepository(pool *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{pool: pool}
}

// GetByID retrieves a quiz document by id.
func (r *QuizRepository) GetByID(ctx context.Context, quizID string) (*model.Quiz, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id = $1`, quizID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	quiz := &model.Quiz{}
	if err := json.Unmarshal(raw, quiz); err != nil {
		return nil, fmt.Errorf("decode quiz %s: %w", quizID, err)
	}
	quiz.ID = quizID
	quiz.CheatingAttempts = nil
	return quiz, nil
}

// Upsert inserts or replaces a quiz document.
func (r *QuizRepository) Upsert(ctx context.Context, quiz *model.Quiz) error {
	doc := *quiz
	doc.CheatingAttempts = nil

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode quiz: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO quizzes (id, teacher_id, data)
		 VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT (id) DO UPDATE
		 SET teacher_id = EXCLUDED.teacher_id, data = EXCLUDED.data, updated_at = NOW()`,
		quiz.ID, quiz.TeacherID, string(data),
	)
	return err
}

// TeacherID returns the owner of a quiz without decoding the document.
func (r *QuizRepository) TeacherID(ctx context.Context, quizID string) (string, error) {
	var teacherID string
	err := r.pool.QueryRow(ctx, `SELECT teacher_id FROM quizzes WHERE id = $1`, quizID).Scan(&teacherID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return teacherID, nil
}
