package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/conorfennell/openingdrill/internal/daybound"
	"github.com/conorfennell/openingdrill/internal/domain"
	"github.com/conorfennell/openingdrill/internal/storage"
)

// deckStatus is what a learner has left to do today in one deck.
type deckStatus struct {
	Deck domain.Deck
	Due  int
	New  int
}

// StatusCmd returns the status command.
func StatusCmd() *cobra.Command {
	var user string
	var deckID int64

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show today's due and new lines for a learner",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(user)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.db.Close()

			clock, err := a.cfg.Drill.Clock()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			now := time.Now()

			settings, err := a.db.GetSettings(ctx, id.String())
			if err != nil {
				return err
			}
			newCap := a.cfg.Drill.DailyNewCap
			if settings.DailyNewCap != nil {
				newCap = *settings.DailyNewCap
			}

			var decks []domain.Deck
			if deckID != 0 {
				d, err := a.db.FindDeck(ctx, deckID)
				if err != nil {
					return err
				}
				decks = append(decks, *d)
			} else if decks, err = a.db.ListDecks(ctx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			today := clock.Day(now, 0)
			fmt.Fprintf(out, "Drill day %s\n\n", today)
			if len(decks) == 0 {
				fmt.Fprintln(out, "No decks yet. Add a source and run sync.")
				return nil
			}
			for _, d := range decks {
				st, err := statusFor(ctx, a.db, clock, id.String(), d, newCap, now)
				if err != nil {
					return err
				}
				marker := ""
				if settings.CurrentDeckID != nil && *settings.CurrentDeckID == d.ID {
					marker = color.New(color.FgHiMagenta).Sprint(" [current]")
				}
				fmt.Fprintf(out, "%3d  %s%s\n", d.ID, d.Name, marker)
				fmt.Fprintf(out, "     due: %s  new: %s\n", count(st.Due, color.FgRed), count(st.New, color.FgBlue))
			}

			spent, err := a.db.TimeSpent(ctx, id.String(), today)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nTime drilled today: %s\n", (time.Duration(spent) * time.Second).String())
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "learner id (uuid)")
	cmd.Flags().Int64Var(&deckID, "deck", 0, "only this deck")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func count(n int, attr color.Attribute) string {
	if n == 0 {
		return color.New(color.FgGreen).Sprint("0")
	}
	return color.New(attr).Sprint(n)
}

// statusFor counts due reviews and the new lines still allowed today.
func statusFor(ctx context.Context, db *storage.DB, clock daybound.Clock, user string, deck domain.Deck, newCap int, now time.Time) (deckStatus, error) {
	today := clock.Day(now, 0)
	st := deckStatus{Deck: deck}

	due, err := db.DueReviews(ctx, user, deck.ID, today)
	if err != nil {
		return st, err
	}
	st.Due = len(due)

	lines, err := db.DeckLines(ctx, user, deck.ID)
	if err != nil {
		return st, err
	}
	shown, err := db.DayMarks(ctx, user, deck.ID, today, domain.MarkNewShown)
	if err != nil {
		return st, err
	}
	for _, l := range lines {
		if !l.HasReview {
			st.New++
		}
	}
	st.New = min(st.New, max(0, newCap-len(shown)))
	return st, nil
}
