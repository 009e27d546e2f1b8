package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/conorfennell/openingdrill/internal/config"
	"github.com/conorfennell/openingdrill/internal/logging"
	"github.com/conorfennell/openingdrill/internal/storage"
)

// RootCmd returns the openingdrill command tree.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "openingdrill",
		Short: "Spaced-repetition drills for chess opening lines",
		Long: `openingdrill serves a drill API that schedules chess opening lines for
review, and keeps its decks in sync with YAML deck files from local
directories or git repositories.`,
		SilenceUsage: true,
	}
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(ServeCmd())
	cmd.AddCommand(SyncCmd())
	cmd.AddCommand(SourceCmd())
	cmd.AddCommand(StatusCmd())
	return cmd
}

// app is what every command needs after flags are parsed.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	db     *storage.DB
}

func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(config.OptionsFromFlags(cmd.Flags()))
	if err != nil {
		return nil, err
	}
	logger := logging.New(cmd.ErrOrStderr(), cfg.Log)
	slog.SetDefault(logger)

	db, err := storage.Open(cfg.Database.Driver, cfg.Database.DataSource())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Debug("Database opened", "driver", cfg.Database.Driver)
	return &app{cfg: cfg, logger: logger, db: db}, nil
}
