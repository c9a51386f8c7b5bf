package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/quiz-integrity/internal/model"
)

// CheatAttemptRepository is the append-only integrity log. It exposes no
// update or delete.
type CheatAttemptRepository struct {
	pool *pgxpool.Pool
}

// NewCheatAttemptRepository creates a new CheatAttemptRepository.
func NewCheatAttemptRepository(pool *pgxpool.Pool) *CheatAttemptRepository {
	return &CheatAttemptRepository{pool: pool}
}

var attemptColumns = []string{"quiz_id", "student_id", "type", "description", "occurred_at"}

// ListByQuiz returns every attempt of a quiz in insertion order.
func (r *CheatAttemptRepository) ListByQuiz(ctx context.Context, quizID string) ([]model.StudentAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT quiz_id, student_id, type, description, occurred_at
		 FROM cheating_attempts
		 WHERE quiz_id = $1
		 ORDER BY id`,
		quizID,
	)
	if err != nil {
		return nil, err
	}
	return scanAttempts(rows)
}

// ListByStudent returns one student's attempts of a quiz in insertion order.
func (r *CheatAttemptRepository) ListByStudent(ctx context.Context, quizID, studentID string) ([]model.StudentAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT quiz_id, student_id, type, description, occurred_at
		 FROM cheating_attempts
		 WHERE quiz_id = $1 AND student_id = $2
		 ORDER BY id`,
		quizID, studentID,
	)
	if err != nil {
		return nil, err
	}
	return scanAttempts(rows)
}

// Insert appends a single attempt.
func (r *CheatAttemptRepository) Insert(ctx context.Context, a model.StudentAttempt) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO cheating_attempts (quiz_id, student_id, type, description, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		a.QuizID, a.StudentID, string(a.Type), a.Description, a.Timestamp,
	)
	return err
}

// CopyAttempts appends a batch with COPY, preserving batch order in ids.
func (r *CheatAttemptRepository) CopyAttempts(ctx context.Context, batch []model.StudentAttempt) (int64, error) {
	rows := make([][]interface{}, 0, len(batch))
	for _, a := range batch {
		rows = append(rows, []interface{}{a.QuizID, a.StudentID, string(a.Type), a.Description, a.Timestamp})
	}
	return r.pool.CopyFrom(ctx, pgx.Identifier{"cheating_attempts"}, attemptColumns, pgx.CopyFromRows(rows))
}

func scanAttempts(rows pgx.Rows) ([]model.StudentAttempt, error) {
	defer rows.Close()

	var out []model.StudentAttempt
	for rows.Next() {
		var (
			a       model.StudentAttempt
			cheatTy string
		)
		if err := rows.Scan(&a.QuizID, &a.StudentID, &cheatTy, &a.Description, &a.Timestamp); err != nil {
			return nil, err
		}
		a.Type = model.CheatType(cheatTy)
		out = append(out, a)
	}
	return out, rows.Err()
}
