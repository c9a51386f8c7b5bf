package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/stemsi/quiz-integrity/internal/service"
)

// NewRescoreCmd regrades stored results against the current quiz document
// and reports the ones whose score would change. Nothing is written.
func NewRescoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rescore <quiz-id>",
		Short: "Report results whose score differs from a regrade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRescore(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
}

func runRescore(ctx context.Context, out io.Writer, quizID string) error {
	cfg, log := setup()
	e, err := openEnv(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer e.Close()

	// Rescore never queues or publishes.
	grading := service.NewGradingService(e.quizzes, e.results, nil, nil, log)
	diffs, err := grading.Rescore(ctx, quizID)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(out, diffs)
	}
	if len(diffs) == 0 {
		fmt.Fprintln(out, "all stored scores match")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RESULT\tUSER\tSTORED\tREGRADED")
	for _, d := range diffs {
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%d/%d\n", d.ResultID, d.UserID, d.StoredScore, d.StoredTotal, d.Score, d.TotalPoints)
	}
	return tw.Flush()
}
