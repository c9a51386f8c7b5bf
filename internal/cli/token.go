package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/stemsi/quiz-integrity/internal/service"
)

// NewTokenCmd signs a development token with the configured secret.
func NewTokenCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:       "token <student|teacher|admin> <user-id>",
		Short:     "Sign a JWT for local testing",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(service.TokenTypeStudent), string(service.TokenTypeTeacher), string(service.TokenTypeAdmin)},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(cmd.OutOrStdout(), args[0], args[1], name)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name claim")
	return cmd
}

func parseTokenType(raw string) (service.TokenType, error) {
	switch t := service.TokenType(strings.ToLower(raw)); t {
	case service.TokenTypeStudent, service.TokenTypeTeacher, service.TokenTypeAdmin:
		return t, nil
	}
	return "", fmt.Errorf("unknown token type %q", raw)
}

func runToken(out io.Writer, rawType, userID, name string) error {
	tokenType, err := parseTokenType(rawType)
	if err != nil {
		return err
	}
	cfg, _ := setup()
	token, err := service.NewAuthService(cfg).GenerateToken(tokenType, userID, name)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}
