package cli

import (
	"errors"
	"time"

	"food-quiz-service/internal/config"
	"food-quiz-service/internal/fixtures"
	"food-quiz-service/internal/platform/logger"
	"github.com/spf13/cobra"
)

// NewSeedCmd loads YAML fixtures into the configured store.
func NewSeedCmd(configPath *string) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load questions, quizzes and users from a YAML fixture file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Log.Mode)
			if err != nil {
				return err
			}
			defer log.Sync()

			if path == "" {
				path = cfg.Seed.Path
			}
			if path == "" {
				return errors.New("no fixture path: pass --file or set seed.path")
			}
			if cfg.Store.Driver == "memory" {
				return errors.New("seeding the in-memory store has no lasting effect; configure postgres or mongo")
			}

			be, err := openStore(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer be.close()

			f, err := fixtures.LoadAndApply(cmd.Context(), be.store, path, time.Now())
			if err != nil {
				return err
			}
			log.Info("Fixtures applied",
				"path", path, "questions", len(f.Questions), "quizzes", len(f.Quizzes), "users", len(f.Users))
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "fixture file (defaults to seed.path)")
	return cmd
}
