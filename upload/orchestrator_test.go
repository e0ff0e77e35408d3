package upload

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/ocuroot/gitdrop/fakehub"
	"github.com/ocuroot/gitdrop/git"
	"github.com/ocuroot/gitdrop/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token"

func setupHub(t *testing.T) (*fakehub.Server, string) {
	t.Helper()

	hub := fakehub.New()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return hub, srv.URL
}

func makeFiles(n int) []FileEntry {
	files := make([]FileEntry, 0, n)
	for i := range n {
		files = append(files, FileEntry{
			Path:    fmt.Sprintf("files/%04d.txt", i),
			Content: []byte(fmt.Sprintf("file %d %s", i, uuid.NewString())),
		})
	}
	return files
}

func contents(files []FileEntry) map[string]string {
	out := make(map[string]string, len(files))
	for _, f := range files {
		out[f.Path] = string(f.Content)
	}
	return out
}

func TestCommitSingle(t *testing.T) {
	hub, baseURL := setupHub(t)
	repo := hub.CreateRepo("acme", "demo", "main")
	tip, err := repo.Seed("main", "initial", map[string]string{
		"README.md":    "hello",
		"docs/old.txt": "old",
	})
	require.NoError(t, err)

	files := []FileEntry{
		{Path: "a.txt", Content: []byte("a")},
		{Path: "docs/old.txt", Content: []byte("updated")},
		{Path: "nested/deep/c.bin", Content: []byte{0x00, 0x01, 0xfe}},
	}

	result, err := New(WithBaseURL(baseURL)).Commit(context.Background(), Params{
		RepoURL: baseURL + "/acme/demo",
		Token:   testToken,
		Message: "Add three files",
		Files:   files,
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "main", result.Branch)
	assert.NotEmpty(t, result.UploadID)
	require.Len(t, result.Commits, 1)
	assert.Equal(t, string(result.CommitSHA), repo.Tip("main"))
	assert.Contains(t, result.CommitURL, "/acme/demo/commit/"+string(result.CommitSHA))

	commit, err := repo.Commit(string(result.CommitSHA))
	require.NoError(t, err)
	assert.Equal(t, []string{tip}, commit.Parents)
	assert.Equal(t, "Add three files", commit.Message)

	got, err := repo.Files(string(result.CommitSHA))
	require.NoError(t, err)
	want := map[string]string{
		"README.md":         "hello",
		"a.txt":             "a",
		"docs/old.txt":      "updated",
		"nested/deep/c.bin": string([]byte{0x00, 0x01, 0xfe}),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestCommitChunked(t *testing.T) {
	hub, baseURL := setupHub(t)
	repo := hub.CreateRepo("acme", "demo", "main")
	tip, err := repo.Seed("main", "initial", map[string]string{"README.md": "hello"})
	require.NoError(t, err)

	files := makeFiles(501)
	result, err := New(WithBaseURL(baseURL)).Commit(context.Background(), Params{
		RepoURL: "acme/demo",
		Token:   testToken,
		Message: "Bulk import",
		Files:   files,
	})
	require.NoError(t, err)
	require.Len(t, result.Commits, 6)
	assert.Equal(t, string(result.Commits[5].SHA), repo.Tip("main"))
	assert.Equal(t, result.Commits[5].SHA, result.CommitSHA)

	history, err := repo.History("main")
	require.NoError(t, err)
	require.Len(t, history, 7)
	assert.Equal(t, tip, history[6].SHA)
	for i := range 6 {
		// history is newest first
		commit := history[5-i]
		assert.Equal(t, fmt.Sprintf("Bulk import (batch %d/6)", i+1), commit.Message)
		require.Len(t, commit.Parents, 1)
		assert.Equal(t, history[6-i].SHA, commit.Parents[0])
	}

	got, err := repo.Files(repo.Tip("main"))
	require.NoError(t, err)
	want := contents(files)
	want["README.md"] = "hello"
	assert.Equal(t, want, got)

	// The first batch holds exactly the first hundred files.
	first, err := repo.Files(string(result.Commits[0].SHA))
	require.NoError(t, err)
	assert.Len(t, first, 101)
}

func TestCommitAtSingleCommitLimit(t *testing.T) {
	hub, baseURL := setupHub(t)
	repo := hub.CreateRepo("acme", "demo", "main")
	_, err := repo.Seed("main", "initial", map[string]string{"README.md": "hello"})
	require.NoError(t, err)

	result, err := New(WithBaseURL(baseURL), WithSingleCommitLimit(4), WithBatchSize(3)).Commit(context.Background(), Params{
		RepoURL: "acme/demo",
		Token:   testToken,
		Message: "exactly at the limit",
		Files:   makeFiles(4),
	})
	require.NoError(t, err)
	assert.Len(t, result.Commits, 1)
	assert.Equal(t, "exactly at the limit", result.Commits[0].Message)
}

func TestCommitEmptyRepository(t *testing.T) {
	hub, baseURL := setupHub(t)
	repo := hub.CreateRepo("acme", "fresh", "main")

	files := []FileEntry{
		{Path: "index.html", Content: []byte("<html></html>")},
		{Path: "css/site.css", Content: []byte("body {}")},
	}
	result, err := New(WithBaseURL(baseURL)).Commit(context.Background(), Params{
		RepoURL: baseURL + "/acme/fresh.git",
		Token:   testToken,
		Message: "First upload",
		Files:   files,
	})
	require.NoError(t, err)
	require.Len(t, result.Commits, 1)
	assert.Equal(t, "main", result.Branch)

	assert.Equal(t, string(result.CommitSHA), repo.Tip("main"))
	commit, err := repo.Commit(string(result.CommitSHA))
	require.NoError(t, err)
	assert.Empty(t, commit.Parents)
	assert.Equal(t, "First upload", commit.Message)

	got, err := repo.Files(string(result.CommitSHA))
	require.NoError(t, err)
	assert.Equal(t, contents(files), got)
	assert.NotContains(t, got, placeholderPath)

	history, err := repo.History("main")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCommitEmptyRepositoryLargeUpload(t *testing.T) {
	hub, baseURL := setupHub(t)
	repo := hub.CreateRepo("acme", "fresh", "main")

	files := makeFiles(7)
	result, err := New(WithBaseURL(baseURL), WithSingleCommitLimit(3), WithBatchSize(2)).Commit(context.Background(), Params{
		RepoURL: "acme/fresh",
		Token:   testToken,
		Message: "Import",
		Files:   files,
	})
	require.NoError(t, err)

	// Bootstrapping always produces a single root commit.
	require.Len(t, result.Commits, 1)
	got, err := repo.Files(repo.Tip("main"))
	require.NoError(t, err)
	assert.Equal(t, contents(files), got)
}

func TestCommitDestinationPath(t *testing.T) {
	hub, baseURL := setupHub(t)
	repo := hub.CreateRepo("acme", "demo", "main")
	_, err := repo.Seed("main", "initial", map[string]string{"README.md": "hello"})
	require.NoError(t, err)

	result, err := New(WithBaseURL(baseURL)).Commit(context.Background(), Params{
		RepoURL:         "acme/demo",
		Token:           testToken,
		Message:         "Add under sub/dir",
		Files:           []FileEntry{{Path: "a.txt", Content: []byte("a")}},
		DestinationPath: "/sub/dir/",
	})
	require.NoError(t, err)

	got, err := repo.Files(string(result.CommitSHA))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"README.md":     "hello",
		"sub/dir/a.txt": "a",
	}, got)
}

func TestCommitFailureMidChunk(t *testing.T) {
	hub, baseURL := setupHub(t)
	repo := hub.CreateRepo("acme", "demo", "main")
	_, err := repo.Seed("main", "initial", map[string]string{"README.md": "hello"})
	require.NoError(t, err)

	// Second batch commit fails.
	hub.InjectFailure(fakehub.Failure{
		Method:       http.MethodPost,
		PathContains: "/git/commits",
		Skip:         1,
		Times:        1,
		Status:       http.StatusInternalServerError,
		Message:      "commit storage unavailable",
	})

	_, err = New(WithBaseURL(baseURL), WithSingleCommitLimit(5), WithBatchSize(2)).Commit(context.Background(), Params{
		RepoURL: "acme/demo",
		Token:   testToken,
		Message: "Bulk",
		Files:   makeFiles(6),
	})
	require.Error(t, err)

	var pe *PhaseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, PhaseCommit, pe.Phase)
	assert.Equal(t, 2, pe.Batch)
	assert.Equal(t, 3, pe.Batches)
	assert.Contains(t, err.Error(), "commit storage unavailable")
	assert.Equal(t, http.StatusInternalServerError, transport.StatusCode(err))

	history, err := repo.History("main")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Bulk (batch 1/3)", history[0].Message)

	assert.Equal(t, 4, hub.CountRequests(http.MethodPost, "/git/blobs"))
	assert.Equal(t, 2, hub.CountRequests(http.MethodPost, "/git/commits"))
	assert.Equal(t, 1, hub.CountRequests(http.MethodPatch, "/git/refs"))
}

func TestCommitBlobFailureAbortsBeforeTree(t *testing.T) {
	hub, baseURL := setupHub(t)
	repo := hub.CreateRepo("acme", "demo", "main")
	tip, err := repo.Seed("main", "initial", map[string]string{"README.md": "hello"})
	require.NoError(t, err)

	hub.InjectFailure(fakehub.Failure{
		Method:       http.MethodPost,
		PathContains: "/git/blobs",
		Skip:         2,
		Status:       http.StatusForbidden,
		Message:      "You have exceeded a secondary rate limit",
	})

	_, err = New(WithBaseURL(baseURL)).Commit(context.Background(), Params{
		RepoURL: "acme/demo",
		Token:   testToken,
		Message: "Add",
		Files:   makeFiles(5),
	})
	require.Error(t, err)

	var pe *PhaseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, PhaseBlobs, pe.Phase)
	assert.Zero(t, pe.Batches)
	assert.Equal(t, 0, hub.CountRequests(http.MethodPost, "/git/trees"))
	assert.Equal(t, tip, repo.Tip("main"))
}

func TestCommitConcurrencyBound(t *testing.T) {
	hub, baseURL := setupHub(t)
	hub.BlobDelay = 20 * time.Millisecond
	repo := hub.CreateRepo("acme", "demo", "main")
	_, err := repo.Seed("main", "initial", map[string]string{"README.md": "hello"})
	require.NoError(t, err)

	_, err = New(WithBaseURL(baseURL), WithConcurrency(10)).Commit(context.Background(), Params{
		RepoURL: "acme/demo",
		Token:   testToken,
		Message: "Add",
		Files:   makeFiles(25),
	})
	require.NoError(t, err)

	assert.Equal(t, 25, hub.CountRequests(http.MethodPost, "/git/blobs"))
	assert.LessOrEqual(t, hub.MaxConcurrentBlobs(), 10)
	assert.Greater(t, hub.MaxConcurrentBlobs(), 1)
}

func TestCommitBlobIdempotence(t *testing.T) {
	hub, baseURL := setupHub(t)
	repo := hub.CreateRepo("acme", "demo", "main")
	_, err := repo.Seed("main", "initial", map[string]string{"README.md": "hello"})
	require.NoError(t, err)

	tr, err := transport.New(testToken, transport.WithBaseURL(baseURL))
	require.NoError(t, err)
	remote := git.NewRemote(tr, "acme", "demo")

	files := []FileEntry{
		{Path: "one.txt", Content: []byte("same")},
		{Path: "two.txt", Content: []byte("same")},
	}
	first, err := CreateBlobs(context.Background(), remote, files, 2, nil)
	require.NoError(t, err)
	second, err := CreateBlobs(context.Background(), remote, files[:1], 2, nil)
	require.NoError(t, err)

	refs := first.Refs()
	require.Len(t, refs, 2)
	assert.Equal(t, "one.txt", refs[0].Path)
	assert.Equal(t, "two.txt", refs[1].Path)
	assert.Equal(t, refs[0].SHA, refs[1].SHA)
	assert.Equal(t, refs[0].SHA, second.Refs()[0].SHA)
	assert.Equal(t, git.ModeRegular, refs[0].Mode)
	assert.Equal(t, git.TypeBlob, refs[0].Type)
}

func TestCommitValidation(t *testing.T) {
	valid := Params{
		RepoURL: "acme/demo",
		Token:   testToken,
		Message: "msg",
		Files:   []FileEntry{{Path: "a.txt", Content: []byte("a")}},
	}

	tests := []struct {
		name   string
		modify func(p *Params)
		want   error
	}{
		{
			name:   "missing repository",
			modify: func(p *Params) { p.RepoURL = "" },
			want:   ErrMissingRepository,
		},
		{
			name:   "malformed repository",
			modify: func(p *Params) { p.RepoURL = "https://github.com/justowner" },
			want:   ErrInvalidRepoURL,
		},
		{
			name:   "repository on another host",
			modify: func(p *Params) { p.RepoURL = "https://gitlab.example.com/acme/demo" },
			want:   ErrHostMismatch,
		},
		{
			name:   "ssh remote on another host",
			modify: func(p *Params) { p.RepoURL = "git@ghe.corp:acme/demo.git" },
			want:   ErrHostMismatch,
		},
		{
			name:   "missing credential",
			modify: func(p *Params) { p.Token = " " },
			want:   ErrMissingCredential,
		},
		{
			name:   "missing message",
			modify: func(p *Params) { p.Message = "\n" },
			want:   ErrMissingMessage,
		},
		{
			name:   "no files",
			modify: func(p *Params) { p.Files = nil },
			want:   ErrNoFiles,
		},
		{
			name:   "escaping path",
			modify: func(p *Params) { p.Files = []FileEntry{{Path: "../etc/passwd"}} },
			want:   ErrInvalidPath,
		},
		{
			name:   "escaping destination",
			modify: func(p *Params) { p.DestinationPath = "a/../../b" },
			want:   ErrInvalidPath,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			hub, baseURL := setupHub(t)
			hub.CreateRepo("acme", "demo", "main")

			p := valid
			test.modify(&p)
			_, err := New(WithBaseURL(baseURL)).Commit(context.Background(), p)
			require.Error(t, err)
			assert.ErrorIs(t, err, test.want)

			var pe *PhaseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, PhaseValidate, pe.Phase)
			assert.Empty(t, hub.Requests())
		})
	}
}

func TestCommitMissingRepository(t *testing.T) {
	_, baseURL := setupHub(t)

	_, err := New(WithBaseURL(baseURL)).Commit(context.Background(), Params{
		RepoURL: "acme/nope",
		Token:   testToken,
		Message: "msg",
		Files:   makeFiles(1),
	})
	require.Error(t, err)

	var pe *PhaseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, PhaseProbe, pe.Phase)
	assert.True(t, transport.IsNotFound(err))
}

func TestCommitRejectsConcurrentBranchMove(t *testing.T) {
	hub, baseURL := setupHub(t)
	repo := hub.CreateRepo("acme", "demo", "main")
	_, err := repo.Seed("main", "initial", map[string]string{"README.md": "hello"})
	require.NoError(t, err)

	var racer string
	_, err = New(WithBaseURL(baseURL)).Commit(context.Background(), Params{
		RepoURL: "acme/demo",
		Token:   testToken,
		Message: "mine",
		Files:   makeFiles(2),
		OnProgress: func(p Progress) {
			if p.Phase == PhaseTree && racer == "" {
				sha, seedErr := repo.Seed("main", "theirs", map[string]string{"theirs.txt": "x"})
				require.NoError(t, seedErr)
				racer = sha
			}
		},
	})
	require.Error(t, err)

	var pe *PhaseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, PhaseRef, pe.Phase)
	assert.True(t, transport.IsNotFastForward(err))
	assert.Equal(t, racer, repo.Tip("main"))
}

func TestCommitCreatesBranch(t *testing.T) {
	hub, baseURL := setupHub(t)
	repo := hub.CreateRepo("acme", "demo", "main")
	tip, err := repo.Seed("main", "initial", map[string]string{"README.md": "hello"})
	require.NoError(t, err)

	result, err := New(WithBaseURL(baseURL), WithSingleCommitLimit(2), WithBatchSize(2)).Commit(context.Background(), Params{
		RepoURL: "acme/demo",
		Token:   testToken,
		Message: "Feature",
		Files:   makeFiles(3),
		Branch:  "feature/upload",
	})
	require.NoError(t, err)
	require.Len(t, result.Commits, 2)
	assert.Equal(t, "feature/upload", result.Branch)

	assert.Equal(t, tip, repo.Tip("main"))
	assert.Equal(t, string(result.CommitSHA), repo.Tip("feature/upload"))
	assert.Equal(t, []git.CommitSHA{git.CommitSHA(tip)}, result.Commits[0].Parents)
	assert.Equal(t, 1, hub.CountRequests(http.MethodPost, "/git/refs"))
	assert.Equal(t, 1, hub.CountRequests(http.MethodPatch, "/git/refs"))
}

func TestCommitExistingBranch(t *testing.T) {
	hub, baseURL := setupHub(t)
	repo := hub.CreateRepo("acme", "demo", "main")
	_, err := repo.Seed("main", "initial", map[string]string{"README.md": "hello"})
	require.NoError(t, err)
	devTip, err := repo.Seed("dev", "dev work", map[string]string{"dev.txt": "dev"})
	require.NoError(t, err)

	result, err := New(WithBaseURL(baseURL)).Commit(context.Background(), Params{
		RepoURL: "acme/demo",
		Token:   testToken,
		Message: "On dev",
		Files:   []FileEntry{{Path: "x.txt", Content: []byte("x")}},
		Branch:  "refs/heads/dev",
	})
	require.NoError(t, err)
	assert.Equal(t, "dev", result.Branch)
	assert.Equal(t, []git.CommitSHA{git.CommitSHA(devTip)}, result.Commits[0].Parents)

	got, err := repo.Files(repo.Tip("dev"))
	require.NoError(t, err)
	assert.Equal(t, "dev", got["dev.txt"])
	assert.Equal(t, "x", got["x.txt"])
}

func TestCommitProgress(t *testing.T) {
	hub, baseURL := setupHub(t)
	repo := hub.CreateRepo("acme", "demo", "main")
	_, err := repo.Seed("main", "initial", map[string]string{"README.md": "hello"})
	require.NoError(t, err)

	var updates []Progress
	result, err := New(WithBaseURL(baseURL), WithSingleCommitLimit(3), WithBatchSize(2)).Commit(context.Background(), Params{
		RepoURL: "acme/demo",
		Token:   testToken,
		Message: "Progress",
		Files:   makeFiles(4),
		OnProgress: func(p Progress) {
			updates = append(updates, p)
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, updates)

	last := updates[len(updates)-1]
	assert.Equal(t, PhaseDone, last.Phase)
	assert.Equal(t, 4, last.Total)
	assert.Equal(t, 4, last.Completed)
	assert.Zero(t, last.Failed)
	assert.InDelta(t, 100, last.Percentage, 0.001)
	assert.Equal(t, 2, last.TotalBatches)
	assert.Equal(t, result.UploadID, last.UploadID)

	sawSecondBatch := false
	for _, u := range updates {
		assert.GreaterOrEqual(t, u.Percentage, 0.0)
		assert.LessOrEqual(t, u.Percentage, 100.0)
		if u.CurrentBatch == 2 {
			sawSecondBatch = true
		}
	}
	assert.True(t, sawSecondBatch)
}

func TestCommitHonorsCancellation(t *testing.T) {
	hub, baseURL := setupHub(t)
	hub.BlobDelay = time.Second
	repo := hub.CreateRepo("acme", "demo", "main")
	tip, err := repo.Seed("main", "initial", map[string]string{"README.md": "hello"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = New(WithBaseURL(baseURL)).Commit(ctx, Params{
		RepoURL: "acme/demo",
		Token:   testToken,
		Message: "slow",
		Files:   makeFiles(3),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, tip, repo.Tip("main"))
}
