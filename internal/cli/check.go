package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/stemsi/quiz-integrity/internal/service"
)

// NewCheckCmd validates quiz documents without touching the database.
func NewCheckCmd() *cobra.Command {
	var normalize bool
	cmd := &cobra.Command{
		Use:   "check <quiz.yaml>...",
		Short: "Validate quiz documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.OutOrStdout(), args, normalize)
		},
	}
	cmd.Flags().BoolVar(&normalize, "normalize", false, "recompute points and defaults before validating")
	return cmd
}

type checkReport struct {
	File   string              `json:"file"`
	QuizID string              `json:"quiz_id,omitempty"`
	Points int                 `json:"points"`
	Issues []service.QuizIssue `json:"issues"`
}

func runCheck(out io.Writer, files []string, normalize bool) error {
	reports := make([]checkReport, 0, len(files))
	failed := 0
	for _, file := range files {
		quiz, err := loadQuiz(file)
		if err != nil {
			return err
		}
		if normalize {
			service.NormalizeQuiz(quiz)
		}
		r := checkReport{File: file, QuizID: quiz.ID, Points: quiz.SumPoints(), Issues: service.ValidateQuiz(quiz)}
		if len(r.Issues) > 0 {
			failed++
		}
		reports = append(reports, r)
	}

	if asJSON {
		if err := printJSON(out, reports); err != nil {
			return err
		}
	} else {
		for _, r := range reports {
			if len(r.Issues) == 0 {
				fmt.Fprintf(out, "ok    %s (%s, %d points)\n", r.File, r.QuizID, r.Points)
				continue
			}
			fmt.Fprintf(out, "FAIL  %s (%s)\n", r.File, r.QuizID)
			for _, issue := range r.Issues {
				fmt.Fprintf(out, "      %s: %s\n", issue.Field, issue.Message)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed validation", failed, len(files))
	}
	return nil
}
