package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conorfennell/openingdrill/internal/gitsource"
	"github.com/conorfennell/openingdrill/internal/storage"
)

// SourceCmd returns the source command group.
func SourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage deck sources",
	}
	cmd.AddCommand(sourceAddCmd(), sourceListCmd(), sourceRemoveCmd())
	return cmd
}

func sourceAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <path/or/url.git>",
		Short: "Add a local directory or git repository of deck files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.db.Close()

			path, typ := args[0], storage.SourceGit
			if !gitsource.IsGitURL(path) {
				typ = storage.SourceLocal
				if path, err = filepath.Abs(path); err != nil {
					return err
				}
				info, err := os.Stat(path)
				if err != nil {
					return fmt.Errorf("cannot add source: %w", err)
				}
				if !info.IsDir() {
					return fmt.Errorf("cannot add source: %s is not a directory", path)
				}
			}

			id, err := a.db.InsertSource(cmd.Context(), path, typ)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s source %d: %s\n", typ, id, path)
			return nil
		},
	}
}

func sourceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List deck sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.db.Close()

			sources, err := a.db.GetAllSources(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(sources) == 0 {
				fmt.Fprintln(out, "No sources configured.")
				return nil
			}
			for _, src := range sources {
				scanned := color.New(color.FgYellow).Sprint("never synced")
				if src.LastScanned.Valid {
					scanned = "synced " + src.LastScanned.Time.Local().Format("2006-01-02 15:04")
				}
				fmt.Fprintf(out, "%3d  %-5s  %s  (%s)\n", src.ID, src.Type, src.Path, scanned)
			}
			return nil
		},
	}
}

func sourceRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a deck source; its lines are deactivated, reviews are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid source ID %q", args[0])
			}
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.db.Close()

			if err := a.db.DeleteSource(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed source %d\n", id)
			return nil
		},
	}
}
