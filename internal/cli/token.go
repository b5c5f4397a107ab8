package cli

import (
	"errors"
	"fmt"
	"time"

	"food-quiz-service/internal/auth"
	"food-quiz-service/internal/config"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewTokenCmd mints a bearer token for local testing.
func NewTokenCmd(configPath *string) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a bearer token for a user (development only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwtSecret (or JWT_SECRET) must be set")
			}
			if _, err := uuid.Parse(args[0]); err != nil {
				return fmt.Errorf("user id must be a UUID: %w", err)
			}
			token, err := auth.NewVerifier(cfg.Auth.JWTSecret, ttl).Issue(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
