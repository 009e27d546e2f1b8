package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conorfennell/openingdrill/internal/gitsource"
	"github.com/conorfennell/openingdrill/internal/sync"
)

// SyncCmd returns the sync command.
func SyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch every deck source once and update decks and lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.db.Close()

			report, err := sync.Syncer{
				DB:       a.db,
				ReposDir: a.cfg.Sync.ReposDir,
				Git:      gitsource.Syncer{Progress: cmd.ErrOrStderr(), Logger: a.logger},
				Logger:   a.logger,
			}.Run(cmd.Context())

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Synced %d source(s): %d line(s), %d deactivated\n", report.Sources, report.Lines, report.Deactivated)
			if report.FileErrors > 0 {
				fmt.Fprintf(out, "%s %d deck file(s) could not be parsed; missing lines were kept\n",
					color.New(color.FgYellow).Sprint("warning:"), report.FileErrors)
			}
			return err
		},
	}
}
