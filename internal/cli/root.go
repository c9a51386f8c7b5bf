package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stemsi/quiz-integrity/internal/config"
	"github.com/stemsi/quiz-integrity/internal/logger"
)

var (
	asJSON  bool
	verbose bool
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "quizctl",
		Short:         "Operator tooling for the quiz integrity service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print machine-readable JSON")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewImportCmd())
	cmd.AddCommand(NewStudentsCmd())
	cmd.AddCommand(NewReviewCmd())
	cmd.AddCommand(NewRescoreCmd())
	cmd.AddCommand(NewTokenCmd())
	return cmd
}

// setup loads configuration and a stderr logger so stdout stays parseable.
func setup() (*config.Config, zerolog.Logger) {
	cfg := config.Load()
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	log := logger.New(os.Stderr, level, "pretty").With().Str("component", "quizctl").Logger()
	return cfg, log
}
