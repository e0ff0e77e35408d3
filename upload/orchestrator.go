package upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/ocuroot/gitdrop/git"
	"github.com/ocuroot/gitdrop/transport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultSingleCommitLimit is the largest file count committed as one
	// commit. Larger uploads are split into batches.
	DefaultSingleCommitLimit = 500
	// DefaultBatchSize is the file count of each batch commit.
	DefaultBatchSize = 100
)

type Option func(*Committer)

func WithBaseURL(baseURL string) Option {
	return func(c *Committer) {
		c.baseURL = baseURL
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Committer) {
		c.httpClient = client
	}
}

// WithConcurrency bounds the number of blob uploads in flight.
func WithConcurrency(n int) Option {
	return func(c *Committer) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func WithSingleCommitLimit(n int) Option {
	return func(c *Committer) {
		if n > 0 {
			c.singleCommitLimit = n
		}
	}
}

func WithBatchSize(n int) Option {
	return func(c *Committer) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// Committer turns a set of files into commits on a hosted repository.
type Committer struct {
	baseURL           string
	httpClient        *http.Client
	concurrency       int
	singleCommitLimit int
	batchSize         int
}

func New(opts ...Option) *Committer {
	c := &Committer{
		baseURL:           transport.DefaultBaseURL,
		concurrency:       DefaultConcurrency,
		singleCommitLimit: DefaultSingleCommitLimit,
		batchSize:         DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Params struct {
	// RepoURL is parsed with ParseRepoURL.
	RepoURL string
	Token   string
	Message string
	Files   []FileEntry
	// DestinationPath is prefixed onto every file path.
	DestinationPath string
	// Branch defaults to the repository's default branch.
	Branch string

	OnProgress func(Progress)
}

type Result struct {
	Success   bool          `json:"success"`
	CommitURL string        `json:"commit_url"`
	CommitSHA git.CommitSHA `json:"commit_sha"`
	// Commits lists every commit made, oldest first.
	Commits  []git.CommitRef `json:"commits"`
	Branch   string          `json:"branch"`
	UploadID string          `json:"upload_id"`
}

type state int

const (
	stateStart state = iota
	stateProbe
	stateEmpty
	stateInitialized
	stateNotEmpty
	stateSingleCommit
	stateChunked
	stateDone
)

func (s state) String() string {
	switch s {
	case stateStart:
		return "START"
	case stateProbe:
		return "PROBE"
	case stateEmpty:
		return "EMPTY"
	case stateInitialized:
		return "INITIALIZED"
	case stateNotEmpty:
		return "NOT_EMPTY"
	case stateSingleCommit:
		return "SINGLE_COMMIT"
	case stateChunked:
		return "CHUNKED"
	case stateDone:
		return "DONE"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// run holds the state of one Commit call.
type run struct {
	c       *Committer
	params  Params
	repo    Repo
	remote  git.RemoteGit
	files   []FileEntry
	tracker *Tracker

	probe  *ProbeResult
	branch string
	// parent is the commit the next batch builds on.
	parent *git.CommitRef
	// createBranch is set while the target branch does not exist yet.
	createBranch bool

	commits []git.CommitRef
}

// Commit uploads p.Files and commits them to the target branch. Uploads of
// up to the single commit limit produce one commit. Larger uploads produce
// one commit per batch, chained in order, with "(batch i/N)" appended to
// the message. Failures are returned as *PhaseError, and batches committed
// before a failure remain on the branch.
func (c *Committer) Commit(ctx context.Context, p Params) (*Result, error) {
	r := &run{c: c, params: p}

	uploadID := NewUploadID()
	ctx, span := tracer.Start(ctx, "upload.Commit")
	defer span.End()
	span.SetAttributes(
		attribute.String(AttributeUploadID, uploadID),
		attribute.Int(AttributeFileCount, len(p.Files)),
	)

	if err := r.validate(); err != nil {
		span.SetAttributes(attribute.String(AttributeErrorType, "validation"))
		return nil, err
	}
	r.tracker = NewTracker(uploadID, len(r.files), p.OnProgress)
	span.SetAttributes(attribute.String(AttributeRepository, r.repo.String()))

	st := stateStart
	for st != stateDone {
		next, err := r.step(ctx, st)
		if err != nil {
			span.SetAttributes(attribute.String(AttributeErrorType, "fail"))
			log.Error("Upload failed", "repo", r.repo.String(), "state", st, "error", err)
			return nil, err
		}
		log.Debug("Upload state", "from", st, "to", next)
		st = next
	}
	r.tracker.SetPhase(PhaseDone)

	last := r.commits[len(r.commits)-1]
	result := &Result{
		Success:   true,
		CommitURL: last.HTMLURL,
		CommitSHA: last.SHA,
		Commits:   r.commits,
		Branch:    r.branch,
		UploadID:  uploadID,
	}
	if result.CommitURL == "" && r.probe.Repository.HTMLURL != "" {
		result.CommitURL = strings.TrimSuffix(r.probe.Repository.HTMLURL, "/") + "/commit/" + string(last.SHA)
	}

	span.SetAttributes(
		attribute.String(AttributeBranch, r.branch),
		attribute.String(AttributeCommitSHA, string(last.SHA)),
	)
	logger.InfoContext(ctx, "upload complete", "repo", r.repo.String(), "branch", r.branch, "commits", len(r.commits), "sha", last.SHA)
	return result, nil
}

// validate rejects bad input before any network call.
func (r *run) validate() error {
	p := r.params

	repo, err := ParseRepoURL(p.RepoURL)
	if err != nil {
		return &PhaseError{Phase: PhaseValidate, Err: err}
	}
	r.repo = repo
	if err := repo.CheckAPIHost(r.c.baseURL); err != nil {
		return &PhaseError{Phase: PhaseValidate, Err: err}
	}

	if strings.TrimSpace(p.Token) == "" {
		return &PhaseError{Phase: PhaseValidate, Err: ErrMissingCredential}
	}
	if strings.TrimSpace(p.Message) == "" {
		return &PhaseError{Phase: PhaseValidate, Err: ErrMissingMessage}
	}
	if len(p.Files) == 0 {
		return &PhaseError{Phase: PhaseValidate, Err: ErrNoFiles}
	}
	if p.Branch != "" {
		if err := git.ValidateBranchName(p.Branch); err != nil {
			return &PhaseError{Phase: PhaseValidate, Err: err}
		}
	}

	files, err := PrefixPaths(p.DestinationPath, p.Files)
	if err != nil {
		return &PhaseError{Phase: PhaseValidate, Err: err}
	}
	r.files = files

	opts := []transport.Option{transport.WithBaseURL(r.c.baseURL)}
	if r.c.httpClient != nil {
		opts = append(opts, transport.WithHTTPClient(r.c.httpClient))
	}
	tr, err := transport.New(p.Token, opts...)
	if err != nil {
		return &PhaseError{Phase: PhaseValidate, Err: err}
	}
	r.remote = git.NewRemote(tr, repo.Owner, repo.Name)
	return nil
}

func (r *run) step(ctx context.Context, st state) (state, error) {
	switch st {
	case stateStart:
		return stateProbe, nil
	case stateProbe:
		return r.doProbe(ctx)
	case stateEmpty:
		return r.doInitialize(ctx)
	case stateInitialized:
		return stateDone, nil
	case stateNotEmpty:
		return r.doResolveBranch(ctx)
	case stateSingleCommit:
		trace.SpanFromContext(ctx).SetAttributes(attribute.String(AttributeStrategy, "single"))
		r.tracker.SetBatch(0, 0)
		if err := r.commitBatch(ctx, r.files, r.params.Message); err != nil {
			return st, phaseError(PhaseCommit, err)
		}
		return stateDone, nil
	case stateChunked:
		return r.doChunked(ctx)
	}
	return st, fmt.Errorf("unexpected upload state %v", st)
}

func (r *run) doProbe(ctx context.Context) (state, error) {
	r.tracker.SetPhase(PhaseProbe)
	probe, err := Probe(ctx, r.remote)
	if err != nil {
		return stateProbe, &PhaseError{Phase: PhaseProbe, Err: err}
	}
	r.probe = probe

	r.branch = git.ShortBranchName(r.params.Branch)
	if r.branch == "" {
		r.branch = probe.Repository.DefaultBranch
	}

	if probe.Empty {
		return stateEmpty, nil
	}
	return stateNotEmpty, nil
}

// doInitialize commits every file as a single root commit, whatever the
// file count.
func (r *run) doInitialize(ctx context.Context) (state, error) {
	r.tracker.SetPhase(PhaseInitialize)
	root, err := Initialize(ctx, r.remote, InitParams{
		Branch:      r.branch,
		Message:     r.params.Message,
		Files:       r.files,
		Concurrency: r.c.concurrency,
		Tracker:     r.tracker,
	})
	if err != nil {
		return stateEmpty, &PhaseError{Phase: PhaseInitialize, Err: err}
	}
	r.commits = append(r.commits, *root)
	return stateInitialized, nil
}

// doResolveBranch finds the commit the upload builds on. A target branch
// that does not exist yet starts from the default branch and is created by
// the first commit.
func (r *run) doResolveBranch(ctx context.Context) (state, error) {
	r.tracker.SetPhase(PhaseResolve)

	tip := r.probe.DefaultTip
	if r.branch != r.probe.Repository.DefaultBranch {
		ref, err := r.remote.GetRef(ctx, r.branch)
		switch {
		case err == nil:
			tip = ref.Hash
		case git.IsMissingRef(err):
			log.Info("Branch does not exist, creating it from the default branch", "branch", r.branch, "base", r.probe.Repository.DefaultBranch)
			r.createBranch = true
		default:
			return stateNotEmpty, &PhaseError{Phase: PhaseResolve, Err: fmt.Errorf("failed to resolve branch %s: %w", r.branch, err)}
		}
	}

	parent, err := r.remote.GetCommit(ctx, tip)
	if err != nil {
		return stateNotEmpty, &PhaseError{Phase: PhaseResolve, Err: fmt.Errorf("failed to read commit %s: %w", tip, err)}
	}
	if parent.SHA == "" {
		parent.SHA = tip
	}
	r.parent = parent

	if len(r.files) <= r.c.singleCommitLimit {
		return stateSingleCommit, nil
	}
	return stateChunked, nil
}

func (r *run) doChunked(ctx context.Context) (state, error) {
	batches := partition(r.files, r.c.batchSize)
	log.Info("Splitting upload into batches", "files", len(r.files), "batches", len(batches), "size", r.c.batchSize)
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String(AttributeStrategy, "chunked"),
		attribute.Int(AttributeBatches, len(batches)),
	)

	for i, batch := range batches {
		trace.SpanFromContext(ctx).AddEvent("batch", trace.WithAttributes(attribute.Int(AttributeBatch, i+1)))
		r.tracker.SetBatch(i+1, len(batches))
		message := fmt.Sprintf("%s (batch %d/%d)", r.params.Message, i+1, len(batches))
		if err := r.commitBatch(ctx, batch, message); err != nil {
			var pe *PhaseError
			if !errors.As(err, &pe) {
				pe = &PhaseError{Phase: PhaseCommit, Err: err}
			}
			pe.Batch = i + 1
			pe.Batches = len(batches)
			return stateChunked, pe
		}
	}
	return stateDone, nil
}

// commitBatch runs blobs, tree, commit and ref update for one batch on top
// of r.parent, then makes the new commit the parent of the next batch.
func (r *run) commitBatch(ctx context.Context, files []FileEntry, message string) error {
	r.tracker.SetPhase(PhaseBlobs)
	blobs, err := CreateBlobs(ctx, r.remote, files, r.c.concurrency, r.tracker)
	if err != nil {
		return &PhaseError{Phase: PhaseBlobs, Err: err}
	}

	r.tracker.SetPhase(PhaseTree)
	tree, err := BuildTree(ctx, r.remote, r.parent.TreeSHA, blobs)
	if err != nil {
		return &PhaseError{Phase: PhaseTree, Err: err}
	}

	r.tracker.SetPhase(PhaseCommit)
	commit, err := CreateCommit(ctx, r.remote, message, tree, r.parent)
	if err != nil {
		return &PhaseError{Phase: PhaseCommit, Err: err}
	}

	r.tracker.SetPhase(PhaseRef)
	if err := AdvanceRef(ctx, r.remote, r.branch, commit, r.createBranch); err != nil {
		return &PhaseError{Phase: PhaseRef, Err: err}
	}

	r.createBranch = false
	r.parent = commit
	r.commits = append(r.commits, *commit)
	return nil
}
