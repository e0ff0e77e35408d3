package upload

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/ocuroot/gitdrop/git"
	"go.opentelemetry.io/otel/attribute"
)

// BuildTree layers blobs on top of base. Entries of base that blobs do not
// mention are kept, so the result is an incremental change. Use
// git.EmptyTreeSHA as base to build a tree from scratch.
func BuildTree(ctx context.Context, remote git.RemoteGit, base git.TreeSHA, blobs *BlobSet) (*git.TreeRef, error) {
	ctx, span := tracer.Start(ctx, "upload.BuildTree")
	defer span.End()

	if base == "" {
		return nil, errors.New("a base tree is required")
	}
	if blobs.Len() == 0 {
		return nil, ErrNoFiles
	}

	tree, err := remote.CreateTree(ctx, base, blobs.Refs())
	if err != nil {
		return nil, fmt.Errorf("failed to create tree on %s: %w", base, err)
	}
	log.Debug("Created tree", "sha", tree.SHA, "base", base, "entries", len(tree.Entries))
	return tree, nil
}

// CreateCommit records tree as a commit on top of parent. A nil parent
// creates a root commit.
func CreateCommit(ctx context.Context, remote git.RemoteGit, message string, tree *git.TreeRef, parent *git.CommitRef) (*git.CommitRef, error) {
	ctx, span := tracer.Start(ctx, "upload.CreateCommit")
	defer span.End()

	if tree == nil || tree.SHA == "" {
		return nil, errors.New("a tree is required")
	}

	var parents []git.CommitSHA
	if parent != nil {
		parents = []git.CommitSHA{parent.SHA}
	}

	commit, err := remote.CreateCommit(ctx, message, tree.SHA, parents)
	if err != nil {
		return nil, fmt.Errorf("failed to create commit: %w", err)
	}
	commitsCreated.Add(ctx, 1)
	span.SetAttributes(attribute.String(AttributeCommitSHA, string(commit.SHA)))
	log.Info("Created commit", "sha", commit.SHA, "tree", tree.SHA, "parents", parents)
	return commit, nil
}

// AdvanceRef points branch at commit. With create set the branch must not
// exist yet, otherwise the update must be a fast-forward.
func AdvanceRef(ctx context.Context, remote git.RemoteGit, branch string, commit *git.CommitRef, create bool) error {
	ctx, span := tracer.Start(ctx, "upload.AdvanceRef")
	defer span.End()
	span.SetAttributes(
		attribute.String(AttributeBranch, branch),
		attribute.Bool(AttributeCreateBranch, create),
	)

	if commit == nil || commit.SHA == "" {
		return errors.New("a commit is required")
	}

	if create {
		if _, err := remote.CreateRef(ctx, branch, commit.SHA); err != nil {
			return fmt.Errorf("failed to create branch %s: %w", branch, err)
		}
		return nil
	}

	if _, err := remote.UpdateRef(ctx, branch, commit.SHA, false); err != nil {
		return fmt.Errorf("failed to update branch %s: %w", branch, err)
	}
	return nil
}
