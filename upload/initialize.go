package upload

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/ocuroot/gitdrop/git"
	"github.com/ocuroot/gitdrop/transport"
	"go.opentelemetry.io/otel/attribute"
)

const (
	placeholderPath    = ".gitdrop-init"
	placeholderContent = "Initializing repository\n"
)

type InitParams struct {
	Branch      string
	Message     string
	Files       []FileEntry
	Concurrency int
	Tracker     *Tracker
}

// Initialize gives a repository without commits its first commit. The
// git data endpoints refuse to work on an empty repository, so a
// placeholder file is written and deleted through the contents endpoint
// first. The real content is then committed as a root commit built on the
// empty tree, and the branch is pointed at it. The placeholder commits are
// left unreferenced.
func Initialize(ctx context.Context, remote git.RemoteGit, p InitParams) (*git.CommitRef, error) {
	ctx, span := tracer.Start(ctx, "upload.Initialize")
	defer span.End()
	span.SetAttributes(
		attribute.String(AttributeBranch, p.Branch),
		attribute.Int(AttributeFileCount, len(p.Files)),
	)

	if p.Branch == "" {
		return nil, errors.New("a branch is required")
	}
	if len(p.Files) == 0 {
		return nil, ErrNoFiles
	}

	log.Info("Initializing empty repository", "repo", remote.Owner()+"/"+remote.Name(), "branch", p.Branch)

	placeholder, err := remote.PutFile(ctx, git.FileWrite{
		Path:    placeholderPath,
		Message: "Initialize repository",
		Content: []byte(placeholderContent),
		Branch:  p.Branch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create placeholder file: %w", err)
	}

	cleared, err := remote.DeleteFile(ctx, git.FileDelete{
		Path:    placeholderPath,
		Message: "Remove placeholder",
		Branch:  p.Branch,
		SHA:     placeholder.ContentSHA,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete placeholder file: %w", err)
	}

	p.Tracker.SetPhase(PhaseBlobs)
	blobs, err := CreateBlobs(ctx, remote, p.Files, p.Concurrency, p.Tracker)
	if err != nil {
		return nil, err
	}

	p.Tracker.SetPhase(PhaseTree)
	tree, err := BuildTree(ctx, remote, git.EmptyTreeSHA, blobs)
	if err != nil {
		return nil, err
	}

	p.Tracker.SetPhase(PhaseCommit)
	root, err := CreateCommit(ctx, remote, p.Message, tree, nil)
	if err != nil {
		return nil, err
	}

	p.Tracker.SetPhase(PhaseRef)
	if err := pointBootstrapBranch(ctx, remote, p.Branch, root, cleared.SHA); err != nil {
		return nil, err
	}
	return root, nil
}

// pointBootstrapBranch creates branch at root. The placeholder writes
// normally leave the branch behind, in which case it is moved to root as
// long as nothing but the placeholder commits are on it.
func pointBootstrapBranch(ctx context.Context, remote git.RemoteGit, branch string, root *git.CommitRef, placeholderTip git.CommitSHA) error {
	err := AdvanceRef(ctx, remote, branch, root, true)
	if err == nil || !transport.IsAlreadyExists(err) {
		return err
	}

	ref, err := remote.GetRef(ctx, branch)
	if err != nil {
		return fmt.Errorf("failed to read branch %s: %w", branch, err)
	}
	if ref.Hash != placeholderTip {
		return fmt.Errorf("branch %s moved to %s while the repository was being initialized", branch, ref.Hash)
	}

	if _, err := remote.UpdateRef(ctx, branch, root.SHA, true); err != nil {
		return fmt.Errorf("failed to reset branch %s: %w", branch, err)
	}
	log.Info("Reset bootstrap branch", "branch", branch, "sha", root.SHA)
	return nil
}
