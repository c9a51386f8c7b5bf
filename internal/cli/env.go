package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stemsi/quiz-integrity/internal/config"
	"github.com/stemsi/quiz-integrity/internal/database"
	"github.com/stemsi/quiz-integrity/internal/model"
	"github.com/stemsi/quiz-integrity/internal/repository"
	"github.com/stemsi/quiz-integrity/internal/service"
	"gopkg.in/yaml.v3"
)

// env holds the database-backed services a command needs.
type env struct {
	pool     *pgxpool.Pool
	quizzes  *service.QuizService
	results  *repository.ResultRepository
	students *repository.StudentRepository
	log      zerolog.Logger
}

func openEnv(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*env, error) {
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	quizRepo := repository.NewQuizRepository(pool)
	attemptRepo := repository.NewCheatAttemptRepository(pool)
	return &env{
		pool:     pool,
		quizzes:  service.NewQuizService(quizRepo, attemptRepo, log),
		results:  repository.NewResultRepository(pool),
		students: repository.NewStudentRepository(pool),
		log:      log,
	}, nil
}

func (e *env) Close() {
	e.pool.Close()
}

// decodeFile reads a YAML or JSON document into dst, picking the decoder
// from the file extension.
func decodeFile(path string, dst interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return decode(f, filepath.Ext(path), dst)
}

func decode(r io.Reader, ext string, dst interface{}) error {
	switch strings.ToLower(ext) {
	case ".json":
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil {
			return fmt.Errorf("decode json: %w", err)
		}
	default:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(dst); err != nil {
			return fmt.Errorf("decode yaml: %w", err)
		}
	}
	return nil
}

func loadQuiz(path string) (*model.Quiz, error) {
	var quiz model.Quiz
	if err := decodeFile(path, &quiz); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return &quiz, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
