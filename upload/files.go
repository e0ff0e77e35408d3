package upload

import (
	"fmt"
	"path"
	"strings"
)

// FileEntry is one file to commit. Content is held in memory for the whole
// upload.
type FileEntry struct {
	Path    string
	Content []byte
}

// NormalizePath converts p to a repository relative path with forward
// slashes and no leading or trailing slash. Paths that escape the
// repository root or write into .git are rejected.
func NormalizePath(p string) (string, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	for _, segment := range strings.Split(cleaned, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w %q: parent directory references are not allowed", ErrInvalidPath, p)
		}
	}

	cleaned = strings.Trim(path.Clean("/"+cleaned), "/")
	if cleaned == "" {
		return "", fmt.Errorf("%w %q: empty path", ErrInvalidPath, p)
	}
	for _, segment := range strings.Split(cleaned, "/") {
		if strings.EqualFold(segment, ".git") {
			return "", fmt.Errorf("%w %q: .git is reserved", ErrInvalidPath, p)
		}
	}
	return cleaned, nil
}

// PrefixPaths normalizes every path and places it under prefix. An empty
// prefix leaves paths at the repository root.
func PrefixPaths(prefix string, files []FileEntry) ([]FileEntry, error) {
	var dir string
	if strings.Trim(strings.TrimSpace(prefix), "/\\") != "" {
		var err error
		dir, err = NormalizePath(prefix)
		if err != nil {
			return nil, fmt.Errorf("destination path: %w", err)
		}
	}

	out := make([]FileEntry, 0, len(files))
	for _, f := range files {
		p, err := NormalizePath(f.Path)
		if err != nil {
			return nil, err
		}
		if dir != "" {
			p = dir + "/" + p
		}
		out = append(out, FileEntry{Path: p, Content: f.Content})
	}
	return out, nil
}
