// Package history keeps a journal of uploads. Each upload is stored as a
// JSON document in a Backend, which may be a local directory, memory or an
// S3 bucket.
package history

import (
	"context"
	"strings"

	libglob "github.com/gobwas/glob"
)

// MatchRequest selects document paths. Prefix is stripped before Glob is
// applied and may be used by a backend to narrow its listing.
type MatchRequest struct {
	Prefix string
	Glob   string
}

func (m MatchRequest) compile() (compiledMatchReq, error) {
	g, err := libglob.Compile(m.Glob, '/')
	if err != nil {
		return compiledMatchReq{}, err
	}
	return compiledMatchReq{prefix: m.Prefix, compiledGlob: g}, nil
}

type compiledMatchReq struct {
	prefix       string
	compiledGlob libglob.Glob
}

func (c compiledMatchReq) matches(path string) bool {
	if !strings.HasPrefix(path, c.prefix) {
		return false
	}
	return c.compiledGlob.Match(strings.TrimPrefix(path, c.prefix))
}

// Backend stores documents as bytes against slash separated paths.
type Backend interface {
	// Get returns nil content without an error for a missing path.
	Get(ctx context.Context, path string) ([]byte, error)
	Set(ctx context.Context, path string, content []byte) error
	// Delete of a missing path is not an error.
	Delete(ctx context.Context, path string) error
	// Match returns every stored path matching req, sorted.
	Match(ctx context.Context, req MatchRequest) ([]string, error)
}
