package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/conorfennell/openingdrill/internal/domain"
)

type reviewRow struct {
	UserID       string         `db:"user_id"`
	LineID       string         `db:"line_id"`
	Status       string         `db:"status"`
	DueOn        sql.NullString `db:"due_on"`
	IntervalDays sql.NullInt64  `db:"interval_days"`
	LastResult   sql.NullString `db:"last_result"`
	LastSeenAt   sql.NullTime   `db:"last_seen_at"`
}

func (r reviewRow) review() domain.Review {
	rv := domain.Review{
		UserID: r.UserID,
		LineID: r.LineID,
		Status: domain.Status(r.Status),
		DueOn:  r.DueOn.String,
	}
	if r.IntervalDays.Valid {
		v := int(r.IntervalDays.Int64)
		rv.IntervalDays = &v
	}
	if r.LastResult.Valid {
		res := domain.Result(r.LastResult.String)
		rv.LastResult = &res
	}
	if r.LastSeenAt.Valid {
		t := r.LastSeenAt.Time
		rv.LastSeenAt = &t
	}
	return rv
}

// FindReview retrieves the review row of a line for a user.
func (db *DB) FindReview(ctx context.Context, userID, lineID string) (*domain.Review, error) {
	var row reviewRow
	err := db.conn.GetContext(ctx, &row, db.q(`
		SELECT user_id, line_id, status, due_on, interval_days, last_result, last_seen_at
		FROM reviews WHERE user_id = ? AND line_id = ?
	`), userID, lineID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find review of line %s: %w", lineID, err)
	}
	rv := row.review()
	return &rv, nil
}

// UpsertReview inserts or replaces the review row for (user, line).
func (db *DB) UpsertReview(ctx context.Context, r domain.Review) error {
	return db.upsertReview(ctx, db.conn, r)
}

// InsertReviewEvent appends an attempt outcome. An empty ID is filled with a new UUID.
func (db *DB) InsertReviewEvent(ctx context.Context, e domain.ReviewEvent) error {
	return db.insertReviewEvent(ctx, db.conn, e)
}

// RecordAttempt writes the review row and its event in one transaction.
func (db *DB) RecordAttempt(ctx context.Context, r domain.Review, e domain.ReviewEvent) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := db.upsertReview(ctx, tx, r); err != nil {
			return err
		}
		return db.insertReviewEvent(ctx, tx, e)
	})
}

func (db *DB) upsertReview(ctx context.Context, ex sqlx.ExecerContext, r domain.Review) error {
	var lastResult sql.NullString
	if r.LastResult != nil {
		lastResult = nullString(string(*r.LastResult))
	}
	var lastSeen sql.NullTime
	if r.LastSeenAt != nil {
		lastSeen = sql.NullTime{Time: r.LastSeenAt.UTC(), Valid: true}
	}

	_, err := ex.ExecContext(ctx, db.q(`
		INSERT INTO reviews (user_id, line_id, status, due_on, interval_days, last_result, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, line_id) DO UPDATE SET
			status = excluded.status,
			due_on = excluded.due_on,
			interval_days = excluded.interval_days,
			last_result = excluded.last_result,
			last_seen_at = excluded.last_seen_at
	`),
		r.UserID,
		r.LineID,
		string(r.Status),
		nullString(r.DueOn),
		nullInt(r.IntervalDays),
		lastResult,
		lastSeen,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert review of line %s: %w", r.LineID, err)
	}
	return nil
}

func (db *DB) insertReviewEvent(ctx context.Context, ex sqlx.ExecerContext, e domain.ReviewEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := ex.ExecContext(ctx, db.q(`
		INSERT INTO review_events (id, user_id, line_id, result, seen_at)
		VALUES (?, ?, ?, ?, ?)
	`), e.ID, e.UserID, e.LineID, string(e.Result), e.SeenAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert review event for line %s: %w", e.LineID, err)
	}
	return nil
}

// CountFailsSince counts fail events of a line for a user at or after since.
func (db *DB) CountFailsSince(ctx context.Context, userID, lineID string, since time.Time) (int, error) {
	var n int
	err := db.conn.GetContext(ctx, &n, db.q(`
		SELECT COUNT(*) FROM review_events
		WHERE user_id = ? AND line_id = ? AND result = ? AND seen_at >= ?
	`), userID, lineID, string(domain.Fail), since.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to count fails of line %s: %w", lineID, err)
	}
	return n, nil
}

type eventRow struct {
	ID     string    `db:"id"`
	UserID string    `db:"user_id"`
	LineID string    `db:"line_id"`
	Result string    `db:"result"`
	SeenAt time.Time `db:"seen_at"`
}

// ReviewEvents returns the events of a line for a user, oldest first.
func (db *DB) ReviewEvents(ctx context.Context, userID, lineID string) ([]domain.ReviewEvent, error) {
	var rows []eventRow
	err := db.conn.SelectContext(ctx, &rows, db.q(`
		SELECT id, user_id, line_id, result, seen_at
		FROM review_events WHERE user_id = ? AND line_id = ?
		ORDER BY seen_at
	`), userID, lineID)
	if err != nil {
		return nil, fmt.Errorf("failed to get review events of line %s: %w", lineID, err)
	}

	events := make([]domain.ReviewEvent, 0, len(rows))
	for _, r := range rows {
		events = append(events, domain.ReviewEvent{
			ID:     r.ID,
			UserID: r.UserID,
			LineID: r.LineID,
			Result: domain.Result(r.Result),
			SeenAt: r.SeenAt,
		})
	}
	return events, nil
}
