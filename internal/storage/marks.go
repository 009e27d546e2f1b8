package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/conorfennell/openingdrill/internal/domain"
)

// DayMarks returns the lines marked with kind on a day, in the order they were added.
func (db *DB) DayMarks(ctx context.Context, userID string, deckID int64, day string, kind domain.DayMarkKind) ([]string, error) {
	var ids []string
	err := db.conn.SelectContext(ctx, &ids, db.q(`
		SELECT line_id FROM day_marks
		WHERE user_id = ? AND deck_id = ? AND day = ? AND kind = ?
		ORDER BY position
	`), userID, deckID, day, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to get %s marks for %s: %w", kind, day, err)
	}
	return ids, nil
}

// AddDayMark appends a line to a day's list. Adding a line twice is a no-op.
func (db *DB) AddDayMark(ctx context.Context, userID string, deckID int64, day string, kind domain.DayMarkKind, lineID string) error {
	_, err := db.conn.ExecContext(ctx, db.q(`
		INSERT INTO day_marks (user_id, deck_id, day, kind, line_id, position)
		VALUES (?, ?, ?, ?, ?, (
			SELECT COUNT(*) FROM day_marks
			WHERE user_id = ? AND deck_id = ? AND day = ? AND kind = ?
		))
		ON CONFLICT DO NOTHING
	`), userID, deckID, day, string(kind), lineID, userID, deckID, day, string(kind))
	if err != nil {
		return fmt.Errorf("failed to add %s mark for line %s: %w", kind, lineID, err)
	}
	return nil
}

// ReplaceDayMarks sets a day's list to exactly lineIDs, in order.
func (db *DB) ReplaceDayMarks(ctx context.Context, userID string, deckID int64, day string, kind domain.DayMarkKind, lineIDs []string) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, db.q(`
			DELETE FROM day_marks WHERE user_id = ? AND deck_id = ? AND day = ? AND kind = ?
		`), userID, deckID, day, string(kind))
		if err != nil {
			return fmt.Errorf("failed to clear %s marks for %s: %w", kind, day, err)
		}
		for i, id := range lineIDs {
			_, err := tx.ExecContext(ctx, db.q(`
				INSERT INTO day_marks (user_id, deck_id, day, kind, line_id, position)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT DO NOTHING
			`), userID, deckID, day, string(kind), id, i)
			if err != nil {
				return fmt.Errorf("failed to add %s mark for line %s: %w", kind, id, err)
			}
		}
		return nil
	})
}

// AddTimeSpent adds seconds to the user's total for a day.
func (db *DB) AddTimeSpent(ctx context.Context, userID, day string, seconds int) error {
	if seconds <= 0 {
		return nil
	}
	_, err := db.conn.ExecContext(ctx, db.q(`
		INSERT INTO time_spent (user_id, day, seconds) VALUES (?, ?, ?)
		ON CONFLICT(user_id, day) DO UPDATE SET seconds = time_spent.seconds + excluded.seconds
	`), userID, day, seconds)
	if err != nil {
		return fmt.Errorf("failed to add time spent for %s: %w", day, err)
	}
	return nil
}

// TimeSpent returns the seconds recorded for a user on a day.
func (db *DB) TimeSpent(ctx context.Context, userID, day string) (int, error) {
	var seconds int
	err := db.conn.GetContext(ctx, &seconds, db.q(`
		SELECT seconds FROM time_spent WHERE user_id = ? AND day = ?
	`), userID, day)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get time spent for %s: %w", day, err)
	}
	return seconds, nil
}

type settingsRow struct {
	UserID        string        `db:"user_id"`
	CurrentDeckID sql.NullInt64 `db:"current_deck_id"`
	DailyNewCap   sql.NullInt64 `db:"daily_new_cap"`
}

// GetSettings returns the user's settings. A user without a row gets empty settings.
func (db *DB) GetSettings(ctx context.Context, userID string) (domain.Settings, error) {
	var row settingsRow
	err := db.conn.GetContext(ctx, &row, db.q(`
		SELECT user_id, current_deck_id, daily_new_cap FROM user_settings WHERE user_id = ?
	`), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Settings{UserID: userID}, nil
		}
		return domain.Settings{}, fmt.Errorf("failed to get settings for user %s: %w", userID, err)
	}

	s := domain.Settings{UserID: row.UserID}
	if row.CurrentDeckID.Valid {
		id := row.CurrentDeckID.Int64
		s.CurrentDeckID = &id
	}
	if row.DailyNewCap.Valid {
		n := int(row.DailyNewCap.Int64)
		s.DailyNewCap = &n
	}
	return s, nil
}

// SaveSettings inserts or replaces the user's settings.
func (db *DB) SaveSettings(ctx context.Context, s domain.Settings) error {
	_, err := db.conn.ExecContext(ctx, db.q(`
		INSERT INTO user_settings (user_id, current_deck_id, daily_new_cap) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			current_deck_id = excluded.current_deck_id,
			daily_new_cap = excluded.daily_new_cap
	`), s.UserID, nullInt64(s.CurrentDeckID), nullInt(s.DailyNewCap))
	if err != nil {
		return fmt.Errorf("failed to save settings for user %s: %w", s.UserID, err)
	}
	return nil
}
