package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/stemsi/quiz-integrity/internal/model"
	"github.com/stemsi/quiz-integrity/internal/service"
)

// NewReviewCmd prints the teacher review of a quiz or of one student.
func NewReviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review <quiz-id> [user-id]",
		Short: "Print quiz results and integrity flags",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := ""
			if len(args) == 2 {
				userID = args[1]
			}
			return runReview(cmd.Context(), cmd.OutOrStdout(), args[0], userID)
		},
	}
}

func runReview(ctx context.Context, out io.Writer, quizID, userID string) error {
	cfg, log := setup()
	e, err := openEnv(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer e.Close()

	reviews := service.NewReviewService(e.quizzes, e.results, e.students, log)

	if userID != "" {
		detail, err := reviews.StudentResult(ctx, quizID, userID)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(out, detail)
		}
		return writeDetail(out, detail)
	}

	rows, err := reviews.QuizResults(ctx, quizID)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(out, rows)
	}
	return writeRows(out, rows)
}

func writeRows(out io.Writer, rows []model.ResultRow) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tNAME\tSCORE\tPERCENT\tSTATUS\tATTEMPTS\tSEVERITY")
	for _, r := range rows {
		status := "flagged"
		if r.Completed {
			status = "submitted"
		}
		severity := string(r.WorstSeverity)
		if severity == "" {
			severity = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\t%s\t%d\t%s\n",
			r.UserID, r.StudentName, r.Score, r.TotalPoints, r.Percentage, status, r.AttemptCount, severity)
	}
	return tw.Flush()
}

func writeDetail(out io.Writer, d *model.ResultDetail) error {
	fmt.Fprintf(out, "%s: %s\n", d.QuizID, d.QuizTitle)
	fmt.Fprintf(out, "%s (%s)\n", d.Result.StudentName, d.Result.UserID)
	if !d.HasResult {
		fmt.Fprintln(out, "no submission")
	} else {
		fmt.Fprintf(out, "score %d/%d (%s)\n", d.Result.Score, d.Result.TotalPoints, d.Result.Percentage)
	}

	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "QUESTION\tTYPE\tANSWER\tCORRECT\tPOINTS")
	for _, q := range d.Questions {
		verdict := "ungraded"
		if q.IsCorrect != nil {
			verdict = "no"
			if *q.IsCorrect {
				verdict = "yes"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\n", q.QuestionID, q.Type, q.Answer, verdict, q.Awarded, q.Points)
	}
	for _, u := range d.Unmatched {
		fmt.Fprintf(tw, "%s\t?\t%s\t-\t-\n", u.QuestionID, u.Answer)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(d.Attempts) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTYPE\tSEVERITY\tDESCRIPTION")
	for _, a := range d.Attempts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Timestamp.Format("15:04:05"), a.Label, a.Severity, a.Description)
	}
	return tw.Flush()
}
