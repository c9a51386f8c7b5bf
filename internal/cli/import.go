package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/stemsi/quiz-integrity/internal/service"
)

// NewImportCmd stores quiz documents after normalizing and validating them.
func NewImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <quiz.yaml>...",
		Short: "Import quiz documents into the database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), cmd.OutOrStdout(), args)
		},
	}
}

func runImport(ctx context.Context, out io.Writer, files []string) error {
	cfg, log := setup()
	e, err := openEnv(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer e.Close()

	for _, file := range files {
		quiz, err := loadQuiz(file)
		if err != nil {
			return err
		}
		if err := e.quizzes.Import(ctx, quiz); err != nil {
			var invalid *service.InvalidQuizError
			if errors.As(err, &invalid) {
				for _, issue := range invalid.Issues {
					fmt.Fprintf(out, "%s: %s\n", file, issue)
				}
			}
			return fmt.Errorf("import %s: %w", file, err)
		}
		fmt.Fprintf(out, "imported %s (%d questions, %d points)\n", quiz.ID, len(quiz.Questions), quiz.Points)
	}
	return nil
}
