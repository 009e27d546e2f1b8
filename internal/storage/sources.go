package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// SourceType says how a source is fetched.
type SourceType string

const (
	SourceLocal SourceType = "local"
	SourceGit   SourceType = "git"
)

// Source represents a deck source, either a local path or a Git URL.
type Source struct {
	ID          int64        `db:"id"`
	Path        string       `db:"path"`
	Type        SourceType   `db:"type"`
	LastScanned sql.NullTime `db:"last_scanned"`
}

// InsertSource inserts a new source path into the database and returns its ID.
// Inserting an existing path updates its type and returns the existing ID.
func (db *DB) InsertSource(ctx context.Context, path string, typ SourceType) (int64, error) {
	var id int64
	err := db.conn.QueryRowxContext(ctx, db.q(`
		INSERT INTO sources (path, type) VALUES (?, ?)
		ON CONFLICT(path) DO UPDATE SET type = excluded.type
		RETURNING id
	`), path, string(typ)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	return id, nil
}

// FindSourceByPath retrieves a source from the database by its path.
func (db *DB) FindSourceByPath(ctx context.Context, path string) (*Source, error) {
	var s Source
	err := db.conn.GetContext(ctx, &s, db.q(`
		SELECT id, path, type, last_scanned
		FROM sources WHERE path = ?
	`), path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return &s, nil
}

// GetAllSources retrieves all stored sources from the database.
func (db *DB) GetAllSources(ctx context.Context) ([]Source, error) {
	var sources []Source
	err := db.conn.SelectContext(ctx, &sources, `
		SELECT id, path, type, last_scanned
		FROM sources ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	return sources, nil
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (db *DB) UpdateSourceLastScanned(ctx context.Context, sourceID int64, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, db.q(`
		UPDATE sources
		SET last_scanned = ?
		WHERE id = ?
	`), at.UTC(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}

// DeleteSource removes a source and deactivates the lines it provided.
// Reviews of those lines are kept.
func (db *DB) DeleteSource(ctx context.Context, sourceID int64) error {
	return db.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, db.q(`
			UPDATE lines SET active = ? WHERE source_id = ?
		`), false, sourceID)
		if err != nil {
			return fmt.Errorf("failed to deactivate lines for source ID %d: %w", sourceID, err)
		}

		res, err := tx.ExecContext(ctx, db.q(`DELETE FROM sources WHERE id = ?`), sourceID)
		if err != nil {
			return fmt.Errorf("failed to delete source ID %d: %w", sourceID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to delete source ID %d: %w", sourceID, err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}
