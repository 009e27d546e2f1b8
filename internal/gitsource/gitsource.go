package gitsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// Syncer clones and pulls deck repositories.
type Syncer struct {
	// Progress receives git's progress output. Nil discards it.
	Progress io.Writer
	Logger   *slog.Logger
}

// Sync clones a git repository if it doesn't exist at the given path,
// or pulls the latest changes if it does.
func (s Syncer) Sync(ctx context.Context, url, localPath string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	_, err := os.Stat(localPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Info("Cloning repository", "url", url, "path", localPath)
		_, err := git.PlainCloneContext(ctx, localPath, false, &git.CloneOptions{
			URL:      url,
			Progress: s.Progress,
		})
		if err != nil {
			return fmt.Errorf("failed to clone repo %s: %w", url, err)
		}
		logger.Info("Clone successful", "path", localPath)

	case err == nil:
		logger.Info("Pulling latest changes", "path", localPath)
		repo, err := git.PlainOpen(localPath)
		if err != nil {
			return fmt.Errorf("failed to open existing repo at %s: %w", localPath, err)
		}

		worktree, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("failed to get worktree for repo at %s: %w", localPath, err)
		}

		err = worktree.PullContext(ctx, &git.PullOptions{
			RemoteName: "origin",
			Progress:   s.Progress,
		})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return fmt.Errorf("failed to pull changes for repo at %s: %w", localPath, err)
		}
		logger.Info("Pull successful (or already up-to-date)", "path", localPath)

	default:
		return fmt.Errorf("error checking path %s: %w", localPath, err)
	}

	return nil
}

// Sync clones or pulls with a default Syncer.
func Sync(ctx context.Context, url, localPath string) error {
	return Syncer{}.Sync(ctx, url, localPath)
}

// LocalPath maps a repository URL to a checkout directory under baseDir.
// https, file, scp-like (git@host:owner/repo.git) URLs and absolute paths to
// repositories are accepted.
func LocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err == nil {
		switch parsedURL.Scheme {
		case "https", "http", "ssh":
			return clean(baseDir, parsedURL.Host, strings.TrimSuffix(parsedURL.Path, ".git"))
		case "file":
			return clean(baseDir, "local", strings.TrimSuffix(parsedURL.Path, ".git"))
		case "":
			if filepath.IsAbs(repoURL) && strings.HasSuffix(repoURL, ".git") {
				return clean(baseDir, "local", strings.TrimSuffix(repoURL, ".git"))
			}
		}
	}

	if strings.Contains(repoURL, "@") {
		parts := strings.Split(repoURL, ":")
		if len(parts) == 2 {
			hostAndUser := strings.Split(parts[0], "@")
			if len(hostAndUser) == 2 {
				host := hostAndUser[1]
				repoPath := strings.TrimSuffix(parts[1], ".git")
				return clean(baseDir, host, repoPath)
			}
		}
	}
	return "", fmt.Errorf("could not parse git URL: %s", repoURL)
}

// clean joins the parts and refuses paths that escape baseDir.
func clean(baseDir, host, repoPath string) (string, error) {
	p := filepath.Join(baseDir, host, repoPath)
	rel, err := filepath.Rel(baseDir, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("git URL maps outside the repos directory: %s", repoPath)
	}
	return p, nil
}

// IsGitURL reports whether a source path names a remote repository rather than a local directory.
func IsGitURL(path string) bool {
	if strings.HasSuffix(path, ".git") {
		return true
	}
	for _, prefix := range []string{"https://", "http://", "git@", "ssh://", "file://"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
