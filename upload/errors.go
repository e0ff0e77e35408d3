package upload

import (
	"errors"
	"fmt"

	"github.com/ocuroot/gitdrop/transport"
)

var (
	ErrMissingRepository = errors.New("a repository is required")
	ErrInvalidRepoURL    = errors.New("invalid repository URL")
	ErrHostMismatch      = errors.New("repository is not served by the configured API")
	ErrMissingCredential = transport.ErrMissingCredential
	ErrMissingMessage    = errors.New("a commit message is required")
	ErrNoFiles           = errors.New("no files to commit")
	ErrInvalidPath       = errors.New("invalid file path")
)

// Phase names a step of an upload. It is reported in Progress and in
// PhaseError.
type Phase string

const (
	PhaseValidate   Phase = "validate"
	PhaseProbe      Phase = "probe"
	PhaseResolve    Phase = "resolve branch"
	PhaseInitialize Phase = "initialize"
	PhaseBlobs      Phase = "create blobs"
	PhaseTree       Phase = "create tree"
	PhaseCommit     Phase = "create commit"
	PhaseRef        Phase = "update ref"
	PhaseDone       Phase = "done"
)

// PhaseError is the single failure returned by an upload. Commits made by
// earlier batches of a chunked upload stay on the branch.
type PhaseError struct {
	Phase Phase
	// Batch and Batches are 1-based and only set for chunked uploads.
	Batch   int
	Batches int
	Err     error
}

func (e *PhaseError) Error() string {
	if e.Batches > 0 {
		return fmt.Sprintf("%s failed (batch %d/%d): %v", e.Phase, e.Batch, e.Batches, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

func phaseError(phase Phase, err error) error {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return err
	}
	return &PhaseError{Phase: phase, Err: err}
}
