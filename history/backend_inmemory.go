package history

import (
	"context"
	"sort"
	"sync"
)

var _ Backend = (*inMemoryBackend)(nil)

type inMemoryBackend struct {
	mu      sync.Mutex
	storage map[string][]byte
}

func NewInMemoryBackend() Backend {
	return &inMemoryBackend{
		storage: make(map[string][]byte),
	}
}

// Get implements Backend.
func (i *inMemoryBackend) Get(ctx context.Context, path string) ([]byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	content, ok := i.storage[path]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), content...), nil
}

// Set implements Backend.
func (i *inMemoryBackend) Set(ctx context.Context, path string, content []byte) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.storage[path] = append([]byte(nil), content...)
	return nil
}

// Delete implements Backend.
func (i *inMemoryBackend) Delete(ctx context.Context, path string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.storage, path)
	return nil
}

// Match implements Backend.
func (i *inMemoryBackend) Match(ctx context.Context, req MatchRequest) ([]string, error) {
	compiled, err := req.compile()
	if err != nil {
		return nil, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	var out []string
	for p := range i.storage {
		if compiled.matches(p) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}
