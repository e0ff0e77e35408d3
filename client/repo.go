package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ocuroot/gittools"
)

var (
	ErrRootNotFound = errors.New("root not found")
)

// FindRepoRoot returns the closest directory at or above path that contains
// a git checkout.
func FindRepoRoot(path string) (string, error) {
	return findRoot(path, ".git")
}

func findRoot(path string, markerFile string) (string, error) {
	dir, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	for {
		repoPath := filepath.Join(dir, markerFile)
		if _, err := os.Stat(repoPath); err == nil {
			return dir, nil
		}

		// Stop if we've reached the root directory
		parentDir := filepath.Dir(dir)
		if parentDir == dir {
			return "", ErrRootNotFound
		}
		dir = parentDir
	}
}

// DetectRepoURL returns the origin remote of the checkout containing wd.
func DetectRepoURL(wd string) (string, error) {
	if repoURL := os.Getenv("GITDROP_REPO_URL_OVERRIDE"); repoURL != "" {
		return repoURL, nil
	}

	root, err := FindRepoRoot(wd)
	if err != nil {
		return "", fmt.Errorf("no git checkout found at %s: %w", wd, err)
	}

	repo, err := gittools.Open(root)
	if err != nil {
		return "", fmt.Errorf("failed to open repo: %w", err)
	}
	repoURL, err := repo.RemoteURL("origin", false)
	if err != nil {
		return "", fmt.Errorf("failed to get repo URL: %w", err)
	}
	return strings.TrimRight(repoURL, "\n"), nil
}
