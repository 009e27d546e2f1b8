package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/conorfennell/openingdrill/internal/domain"
)

// lineRow is a line joined with its opening.
type lineRow struct {
	ID           string        `db:"id"`
	OpeningID    int64         `db:"opening_id"`
	Name         string        `db:"name"`
	Moves        string        `db:"moves"`
	Active       bool          `db:"active"`
	CreatedAt    time.Time     `db:"created_at"`
	DeckID       int64         `db:"deck_id"`
	OpeningName  string        `db:"opening_name"`
	Side         string        `db:"side"`
	IntervalDays sql.NullInt64 `db:"interval_days"`
	HasReview    bool          `db:"has_review"`
}

func (r lineRow) line() domain.Line {
	return domain.Line{
		ID:        r.ID,
		OpeningID: r.OpeningID,
		Name:      r.Name,
		Moves:     splitMoves(r.Moves),
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
		Opening: domain.Opening{
			ID:     r.OpeningID,
			DeckID: r.DeckID,
			Name:   r.OpeningName,
			Side:   domain.Side(r.Side),
		},
	}
}

const lineColumns = `l.id, l.opening_id, l.name, l.moves, l.active, l.created_at,
	o.deck_id, o.name AS opening_name, o.side`

// ListDecks returns all decks ordered by name.
func (db *DB) ListDecks(ctx context.Context) ([]domain.Deck, error) {
	var decks []domain.Deck
	err := db.conn.SelectContext(ctx, &decks, `SELECT id, name FROM decks ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}
	return decks, nil
}

// FindDeck retrieves a deck by its ID.
func (db *DB) FindDeck(ctx context.Context, id int64) (*domain.Deck, error) {
	var d domain.Deck
	err := db.conn.GetContext(ctx, &d, db.q(`SELECT id, name FROM decks WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find deck %d: %w", id, err)
	}
	return &d, nil
}

// UpsertDeck inserts a deck by name if it does not exist and returns its ID.
func (db *DB) UpsertDeck(ctx context.Context, name string) (int64, error) {
	var id int64
	err := db.conn.QueryRowxContext(ctx, db.q(`
		INSERT INTO decks (name) VALUES (?)
		ON CONFLICT(name) DO UPDATE SET name = excluded.name
		RETURNING id
	`), name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert deck %s: %w", name, err)
	}
	return id, nil
}

// UpsertOpening inserts or updates an opening of a deck and returns its ID.
func (db *DB) UpsertOpening(ctx context.Context, deckID int64, name string, side domain.Side) (int64, error) {
	var id int64
	err := db.conn.QueryRowxContext(ctx, db.q(`
		INSERT INTO openings (deck_id, name, side) VALUES (?, ?, ?)
		ON CONFLICT(deck_id, name) DO UPDATE SET side = excluded.side
		RETURNING id
	`), deckID, name, string(side)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert opening %s: %w", name, err)
	}
	return id, nil
}

// UpsertLine inserts a line, or reactivates it and refreshes its name and source.
// The creation time of an existing line is kept.
func (db *DB) UpsertLine(ctx context.Context, line domain.Line, sourceID *int64) error {
	createdAt := line.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := db.conn.ExecContext(ctx, db.q(`
		INSERT INTO lines (id, opening_id, name, moves, active, source_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			active = excluded.active,
			source_id = excluded.source_id
	`),
		line.ID,
		line.OpeningID,
		line.Name,
		joinMoves(line.Moves),
		true,
		nullInt64(sourceID),
		createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert line %s: %w", line.ID, err)
	}
	return nil
}

// FindLine retrieves a line with its opening.
func (db *DB) FindLine(ctx context.Context, id string) (*domain.Line, error) {
	var row lineRow
	err := db.conn.GetContext(ctx, &row, db.q(`
		SELECT `+lineColumns+`
		FROM lines l JOIN openings o ON o.id = l.opening_id
		WHERE l.id = ?
	`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find line %s: %w", id, err)
	}
	line := row.line()
	return &line, nil
}

// DeactivateMissingLines marks the active lines of a source that are not in keep
// as inactive and returns how many were changed.
func (db *DB) DeactivateMissingLines(ctx context.Context, sourceID int64, keep []string) (int64, error) {
	query := `UPDATE lines SET active = ? WHERE source_id = ? AND active = ?`
	args := []interface{}{false, sourceID, true}
	if len(keep) > 0 {
		var err error
		query, args, err = sqlx.In(query+` AND id NOT IN (?)`, false, sourceID, true, keep)
		if err != nil {
			return 0, fmt.Errorf("failed to build deactivate query: %w", err)
		}
	}

	res, err := db.conn.ExecContext(ctx, db.q(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate lines for source ID %d: %w", sourceID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deactivated lines for source ID %d: %w", sourceID, err)
	}
	return n, nil
}

// DueReviews returns the active lines of a deck whose review is due on or before
// today, excluding removed lines.
func (db *DB) DueReviews(ctx context.Context, userID string, deckID int64, today string) ([]domain.DueLine, error) {
	var rows []lineRow
	err := db.conn.SelectContext(ctx, &rows, db.q(`
		SELECT `+lineColumns+`, r.interval_days
		FROM reviews r
		JOIN lines l ON l.id = r.line_id
		JOIN openings o ON o.id = l.opening_id
		WHERE r.user_id = ?
			AND o.deck_id = ?
			AND r.status IN ('learning', 'review')
			AND r.due_on IS NOT NULL
			AND r.due_on <= ?
			AND l.active = ?
		ORDER BY r.due_on, l.created_at, l.id
	`), userID, deckID, today, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get due reviews for user %s: %w", userID, err)
	}

	due := make([]domain.DueLine, 0, len(rows))
	for _, r := range rows {
		d := domain.DueLine{Line: r.line()}
		if r.IntervalDays.Valid {
			v := int(r.IntervalDays.Int64)
			d.IntervalDays = &v
		}
		due = append(due, d)
	}
	return due, nil
}

// DeckLines returns the active lines of a deck in creation order, each flagged
// with whether the user already has a review row for it.
func (db *DB) DeckLines(ctx context.Context, userID string, deckID int64) ([]domain.DeckLine, error) {
	var rows []lineRow
	err := db.conn.SelectContext(ctx, &rows, db.q(`
		SELECT `+lineColumns+`, r.line_id IS NOT NULL AS has_review
		FROM lines l
		JOIN openings o ON o.id = l.opening_id
		LEFT JOIN reviews r ON r.line_id = l.id AND r.user_id = ?
		WHERE o.deck_id = ? AND l.active = ?
		ORDER BY l.created_at, l.id
	`), userID, deckID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get lines of deck %d: %w", deckID, err)
	}

	lines := make([]domain.DeckLine, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, domain.DeckLine{Line: r.line(), HasReview: r.HasReview})
	}
	return lines, nil
}
