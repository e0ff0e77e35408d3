package history

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

func NewFsBackend(root string) Backend {
	return &fsBackend{
		root: root,
	}
}

var _ Backend = (*fsBackend)(nil)

type fsBackend struct {
	root string
}

// Get implements Backend.
func (f *fsBackend) Get(ctx context.Context, path string) ([]byte, error) {
	content, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(path)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read: %w", err)
	}
	return content, nil
}

// Set implements Backend.
func (f *fsBackend) Set(ctx context.Context, path string, content []byte) error {
	filePath := filepath.Join(f.root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("mkdir %v: %w", filePath, err)
	}
	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return fmt.Errorf("write %v: %w", filePath, err)
	}
	return nil
}

// Delete implements Backend.
func (f *fsBackend) Delete(ctx context.Context, path string) error {
	filePath := filepath.Join(f.root, filepath.FromSlash(path))
	if err := os.Remove(filePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %v: %w", filePath, err)
	}
	return nil
}

// Match implements Backend.
func (f *fsBackend) Match(ctx context.Context, req MatchRequest) ([]string, error) {
	compiled, err := req.compile()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(f.root); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var matching []string
	err = filepath.WalkDir(f.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}
		candidate := filepath.ToSlash(relPath)
		if compiled.matches(candidate) {
			matching = append(matching, candidate)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(matching)
	return matching, nil
}
