package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/quiz-integrity/internal/model"
)

// ResultRepository handles insert-only quiz result storage. There is no
// update path: a newer record supersedes an older one.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

var resultColumns = []string{"id", "quiz_id", "user_id", "answers", "score", "total_points", "completed", "submitted_at", "total_time_spent"}

const selectResults = `SELECT id, quiz_id, user_id, answers, score, total_points, completed, submitted_at, total_time_spent
	FROM quiz_results`

// ListByQuiz returns every result of a quiz in insertion order.
func (r *ResultRepository) ListByQuiz(ctx context.Context, quizID string) ([]model.QuizResult, error) {
	rows, err := r.pool.Query(ctx, selectResults+` WHERE quiz_id = $1 ORDER BY seq`, quizID)
	if err != nil {
		return nil, err
	}
	return scanResults(rows)
}

// ListByQuizAndUser returns one student's results of a quiz in insertion order.
func (r *ResultRepository) ListByQuizAndUser(ctx context.Context, quizID, userID string) ([]model.QuizResult, error) {
	rows, err := r.pool.Query(ctx, selectResults+` WHERE quiz_id = $1 AND user_id = $2 ORDER BY seq`, quizID, userID)
	if err != nil {
		return nil, err
	}
	return scanResults(rows)
}

// Insert stores a single result.
func (r *ResultRepository) Insert(ctx context.Context, res *model.QuizResult) error {
	answers, err := json.Marshal(res.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO quiz_results (id, quiz_id, user_id, answers, score, total_points, completed, submitted_at, total_time_spent)
		 VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		res.ID, res.QuizID, res.UserID, string(answers), res.Score, res.TotalPoints, res.Completed, res.Timestamp, res.TotalTimeSpent,
	)
	return err
}

// CopyResults bulk inserts a batch with COPY. A duplicate id fails the
// whole batch; callers fall back to Insert.
func (r *ResultRepository) CopyResults(ctx context.Context, batch []*model.QuizResult) (int64, error) {
	rows := make([][]interface{}, 0, len(batch))
	for _, res := range batch {
		answers, err := json.Marshal(res.Answers)
		if err != nil {
			return 0, fmt.Errorf("encode answers for %s: %w", res.ID, err)
		}
		rows = append(rows, []interface{}{
			res.ID, res.QuizID, res.UserID, answers, res.Score, res.TotalPoints, res.Completed, res.Timestamp, res.TotalTimeSpent,
		})
	}

	return r.pool.CopyFrom(ctx, pgx.Identifier{"quiz_results"}, resultColumns, pgx.CopyFromRows(rows))
}

func scanResults(rows pgx.Rows) ([]model.QuizResult, error) {
	defer rows.Close()

	var out []model.QuizResult
	for rows.Next() {
		var (
			res     model.QuizResult
			answers []byte
		)
		if err := rows.Scan(&res.ID, &res.QuizID, &res.UserID, &answers, &res.Score, &res.TotalPoints,
			&res.Completed, &res.Timestamp, &res.TotalTimeSpent); err != nil {
			return nil, err
		}
		if len(answers) > 0 {
			if err := json.Unmarshal(answers, &res.Answers); err != nil {
				return nil, fmt.Errorf("decode answers for %s: %w", res.ID, err)
			}
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
