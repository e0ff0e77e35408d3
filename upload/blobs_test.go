package upload

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ocuroot/gitdrop/fakehub"
	"github.com/ocuroot/gitdrop/git"
	"github.com/ocuroot/gitdrop/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBlobsCountsOnlyRealFailures(t *testing.T) {
	hub, baseURL := setupHub(t)
	hub.BlobDelay = 500 * time.Millisecond
	repo := hub.CreateRepo("acme", "demo", "main")
	_, err := repo.Seed("main", "initial", map[string]string{"README.md": "hello"})
	require.NoError(t, err)

	hub.InjectFailure(fakehub.Failure{
		Method:       http.MethodPost,
		PathContains: "/git/blobs",
		Times:        1,
		Status:       http.StatusInternalServerError,
		Message:      "Server Error",
	})

	tr, err := transport.New(testToken, transport.WithBaseURL(baseURL))
	require.NoError(t, err)
	remote := git.NewRemote(tr, "acme", "demo")

	var (
		mu   sync.Mutex
		last Progress
	)
	tracker := NewTracker("upload-1", 10, func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		last = p
	})

	_, err = CreateBlobs(context.Background(), remote, makeFiles(10), 10, tracker)
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, transport.StatusCode(err))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, last.Failed)
	assert.Zero(t, last.Completed)
}
