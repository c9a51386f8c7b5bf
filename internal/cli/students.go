package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/stemsi/quiz-integrity/internal/model"
	"github.com/stemsi/quiz-integrity/internal/validator"
)

// NewStudentsCmd seeds the student directory used for display names.
func NewStudentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "students",
		Short: "Manage the student directory",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <students.yaml>",
		Short: "Upsert student records from a YAML or JSON list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStudentsImport(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	})
	return cmd
}

func loadStudents(path string) ([]model.Student, error) {
	var students []model.Student
	if err := decodeFile(path, &students); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	for i := range students {
		if errs := validator.Struct(&students[i]); len(errs) > 0 {
			return nil, fmt.Errorf("student %d: %v", i, errs)
		}
	}
	return students, nil
}

func runStudentsImport(ctx context.Context, out io.Writer, path string) error {
	students, err := loadStudents(path)
	if err != nil {
		return err
	}

	cfg, log := setup()
	e, err := openEnv(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer e.Close()

	for i := range students {
		if err := e.students.Upsert(ctx, &students[i]); err != nil {
			return fmt.Errorf("upsert student %s: %w", students[i].ID, err)
		}
	}
	fmt.Fprintf(out, "upserted %d students\n", len(students))
	return nil
}
