package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/conorfennell/openingdrill/internal/deckfile"
	"github.com/conorfennell/openingdrill/internal/domain"
	"github.com/conorfennell/openingdrill/internal/gitsource"
	"github.com/conorfennell/openingdrill/internal/lineid"
	"github.com/conorfennell/openingdrill/internal/storage"
)

// Report summarizes one sync run.
type Report struct {
	Sources     int   `json:"sources"`
	Lines       int   `json:"lines"`
	Deactivated int64 `json:"deactivated"`
	FileErrors  int   `json:"file_errors"`
}

// Syncer reconciles deck sources with the database.
type Syncer struct {
	DB       *storage.DB
	ReposDir string
	Git      gitsource.Syncer
	Logger   *slog.Logger
	Now      func() time.Time
}

// Run syncs every source with a default Syncer.
func Run(ctx context.Context, db *storage.DB, reposDir string, logger *slog.Logger) (Report, error) {
	return Syncer{DB: db, ReposDir: reposDir, Logger: logger, Git: gitsource.Syncer{Logger: logger}}.Run(ctx)
}

// Run iterates over all sources and reconciles them. A failing source does not
// stop the others; all source failures are returned together.
func (s Syncer) Run(ctx context.Context) (Report, error) {
	logger := s.logger()
	var report Report

	logger.Info("Starting sync process for all sources...")
	sources, err := s.DB.GetAllSources(ctx)
	if err != nil {
		return report, err
	}
	if len(sources) == 0 {
		logger.Info("No sources configured. Add one with: source add <path/or/url.git>")
		return report, nil
	}

	var errs []error
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		logger.Info("Syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

		dir := source.Path
		if source.Type == storage.SourceGit {
			localRepoPath, err := gitsource.LocalPath(s.ReposDir, source.Path)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if err := os.MkdirAll(filepath.Dir(localRepoPath), os.ModePerm); err != nil {
				errs = append(errs, fmt.Errorf("failed to create repos directory: %w", err))
				continue
			}
			if err := s.Git.Sync(ctx, source.Path, localRepoPath); err != nil {
				errs = append(errs, err)
				continue
			}
			dir = localRepoPath
		}

		r, err := s.reconcile(ctx, source, dir)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to reconcile source %s: %w", source.Path, err))
			continue
		}
		report.Sources++
		report.Lines += r.Lines
		report.Deactivated += r.Deactivated
		report.FileErrors += r.FileErrors
	}

	logger.Info("Sync process complete.", "sources", report.Sources, "lines", report.Lines,
		"deactivated", report.Deactivated, "file_errors", report.FileErrors, "failed_sources", len(errs))
	return report, errors.Join(errs...)
}

// reconcile upserts every line found under dir and deactivates the source's
// lines that are gone. Deactivation is skipped when any deck file failed to
// parse, so a broken file does not retire its lines.
func (s Syncer) reconcile(ctx context.Context, source storage.Source, dir string) (Report, error) {
	logger := s.logger()
	var report Report
	found := make(map[string]bool)
	var fileErrs []error
	created := newCreationClock(s.now())

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !deckfile.IsDeckFile(d.Name()) {
			return nil
		}

		f, parseErr := deckfile.ParseFile(path)
		if parseErr != nil {
			logger.Warn("Skipping deck file", "path", path, "error", parseErr)
			fileErrs = append(fileErrs, fmt.Errorf("parsing %s: %w", path, parseErr))
			return nil
		}
		ids, err := s.store(ctx, source.ID, f, created)
		if err != nil {
			return err
		}
		for _, id := range ids {
			found[id] = true
		}
		return nil
	})
	if walkErr != nil {
		return report, walkErr
	}

	report.Lines = len(found)
	report.FileErrors = len(fileErrs)

	if len(fileErrs) == 0 {
		keep := make([]string, 0, len(found))
		for id := range found {
			keep = append(keep, id)
		}
		n, err := s.DB.DeactivateMissingLines(ctx, source.ID, keep)
		if err != nil {
			return report, err
		}
		report.Deactivated = n
	} else {
		logger.Warn("Not deactivating missing lines because some deck files failed to parse", "source_id", source.ID)
	}

	if err := s.DB.UpdateSourceLastScanned(ctx, source.ID, s.now()); err != nil {
		logger.Warn("Failed to update last scanned for source", "source_id", source.ID, "error", err)
	}

	logger.Info("reconciliation complete",
		"path", dir,
		"lines", report.Lines,
		"deactivated", report.Deactivated,
		"errors", report.FileErrors,
	)
	return report, nil
}

// creationClock hands out increasing creation times so that lines sort in
// the order they appear in the deck files.
type creationClock struct {
	base time.Time
	seq  int
}

func newCreationClock(base time.Time) *creationClock {
	return &creationClock{base: base}
}

func (c *creationClock) next() time.Time {
	t := c.base.Add(time.Duration(c.seq) * time.Millisecond)
	c.seq++
	return t
}

// store writes one deck file and returns the ids of its lines.
func (s Syncer) store(ctx context.Context, sourceID int64, f *deckfile.File, created *creationClock) ([]string, error) {
	deckID, err := s.DB.UpsertDeck(ctx, f.Deck)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, o := range f.Openings {
		openingID, err := s.DB.UpsertOpening(ctx, deckID, o.Name, o.Side)
		if err != nil {
			return nil, err
		}
		for _, l := range o.Lines {
			line := domain.Line{
				ID:        lineid.Hash(f.Deck, o.Name, o.Side, l.Moves),
				OpeningID: openingID,
				Name:      l.Name,
				Moves:     l.Moves,
				CreatedAt: created.next(),
			}
			if err := s.DB.UpsertLine(ctx, line, &sourceID); err != nil {
				return nil, err
			}
			ids = append(ids, line.ID)
		}
	}
	return ids, nil
}

func (s Syncer) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s Syncer) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
