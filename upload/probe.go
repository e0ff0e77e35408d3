package upload

import (
	"context"
	"fmt"

	"github.com/ocuroot/gitdrop/git"
	"go.opentelemetry.io/otel/attribute"
)

type ProbeResult struct {
	Repository git.Repository
	// Empty is set when the repository exists but has no commits.
	Empty bool
	// DefaultTip is the head of the default branch, unset when Empty.
	DefaultTip git.CommitSHA
}

// Probe reads the repository metadata and resolves its default branch. A
// missing or inaccessible repository is an error. A default branch that
// cannot be resolved because it, or any commit, does not exist yet marks
// the repository as empty.
func Probe(ctx context.Context, remote git.RemoteGit) (*ProbeResult, error) {
	ctx, span := tracer.Start(ctx, "upload.Probe")
	defer span.End()

	repo, err := remote.Repository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read repository %s/%s: %w", remote.Owner(), remote.Name(), err)
	}
	if repo.DefaultBranch == "" {
		return nil, fmt.Errorf("repository %s/%s has no default branch", remote.Owner(), remote.Name())
	}

	out := &ProbeResult{Repository: *repo}
	ref, err := remote.GetRef(ctx, repo.DefaultBranch)
	switch {
	case err == nil:
		out.DefaultTip = ref.Hash
	case git.IsMissingRef(err):
		out.Empty = true
	default:
		return nil, fmt.Errorf("failed to resolve default branch %s: %w", repo.DefaultBranch, err)
	}

	span.SetAttributes(
		attribute.String(AttributeRepository, repo.FullName),
		attribute.Bool(AttributeEmptyRepo, out.Empty),
	)
	return out, nil
}

func IsEmpty(ctx context.Context, remote git.RemoteGit) (bool, error) {
	result, err := Probe(ctx, remote)
	if err != nil {
		return false, err
	}
	return result.Empty, nil
}
