package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrNotFound     = errors.New("upload not found")
	ErrInvalidEntry = errors.New("invalid history entry")
)

const uploadsPrefix = "uploads/"

// Entry describes one upload attempt, successful or not.
type Entry struct {
	// ID is the upload id. IDs sort by creation time.
	ID         string    `json:"id"`
	Repository string    `json:"repository"`
	Branch     string    `json:"branch,omitempty"`
	Message    string    `json:"message"`
	Source     string    `json:"source,omitempty"`
	Files      int       `json:"files"`
	Commits    []string  `json:"commits,omitempty"`
	CommitURL  string    `json:"commit_url,omitempty"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (e Entry) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

type Store struct {
	backend Backend
}

func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

func entryPath(repository, id string) string {
	return uploadsPrefix + repository + "/" + id + ".json"
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, "/*?[]{}\\")
}

func validRepository(repository string) bool {
	owner, name, ok := strings.Cut(repository, "/")
	return ok && validSegment(owner) && validSegment(name)
}

func validate(repository, id string) error {
	if !validSegment(id) {
		return fmt.Errorf("%w: bad id %q", ErrInvalidEntry, id)
	}
	if !validRepository(repository) {
		return fmt.Errorf("%w: bad repository %q", ErrInvalidEntry, repository)
	}
	return nil
}

// Record stores e, replacing any entry with the same id.
func (s *Store) Record(ctx context.Context, e Entry) error {
	ctx, span := tracer.Start(ctx, "history.Record")
	defer span.End()

	if err := validate(e.Repository, e.ID); err != nil {
		return err
	}
	span.SetAttributes(
		attribute.String("gitdrop.upload_id", e.ID),
		attribute.String("gitdrop.repository", e.Repository),
	)

	content, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := s.backend.Set(ctx, entryPath(e.Repository, e.ID), content); err != nil {
		return fmt.Errorf("failed to record upload %s: %w", e.ID, err)
	}
	logger.DebugContext(ctx, "recorded upload", "id", e.ID, "repository", e.Repository)
	return nil
}

func (s *Store) Get(ctx context.Context, repository, id string) (*Entry, error) {
	if err := validate(repository, id); err != nil {
		return nil, err
	}
	content, err := s.backend.Get(ctx, entryPath(repository, id))
	if err != nil {
		return nil, err
	}
	if content == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var e Entry
	if err := json.Unmarshal(content, &e); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", id, err)
	}
	return &e, nil
}

// List returns entries newest first. An empty repository lists every
// repository, and a limit below one lists everything.
func (s *Store) List(ctx context.Context, repository string, limit int) ([]Entry, error) {
	ctx, span := tracer.Start(ctx, "history.List")
	defer span.End()

	paths, err := s.match(ctx, repository)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}

	entries := make([]Entry, 0, len(paths))
	for _, p := range paths {
		content, err := s.backend.Get(ctx, p)
		if err != nil {
			return nil, err
		}
		if content == nil {
			// Removed since the listing
			continue
		}
		var e Entry
		if err := json.Unmarshal(content, &e); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", p, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Prune deletes all but the newest keep entries of repository.
func (s *Store) Prune(ctx context.Context, repository string, keep int) (int, error) {
	if !validRepository(repository) {
		return 0, fmt.Errorf("%w: bad repository %q", ErrInvalidEntry, repository)
	}
	paths, err := s.match(ctx, repository)
	if err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}
	if len(paths) <= keep {
		return 0, nil
	}

	var removed int
	for _, p := range paths[keep:] {
		if err := s.backend.Delete(ctx, p); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// match returns entry paths newest first.
func (s *Store) match(ctx context.Context, repository string) ([]string, error) {
	req := MatchRequest{Prefix: uploadsPrefix, Glob: "*/*/*.json"}
	if repository != "" {
		if !validRepository(repository) {
			return nil, fmt.Errorf("%w: bad repository %q", ErrInvalidEntry, repository)
		}
		req = MatchRequest{Prefix: uploadsPrefix + repository + "/", Glob: "*.json"}
	}

	paths, err := s.backend.Match(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	slices.SortFunc(paths, func(a, b string) int {
		return strings.Compare(path.Base(b), path.Base(a))
	})
	return paths, nil
}
