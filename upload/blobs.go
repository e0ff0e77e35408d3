package upload

import (
	"context"
	"errors"
	"fmt"

	"github.com/ocuroot/gitdrop/git"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 10

// BlobSet is a complete set of uploaded blobs in input order. It can only be
// obtained from CreateBlobs, so a tree is never built from a partial upload.
type BlobSet struct {
	refs []git.BlobRef
}

func (b *BlobSet) Len() int {
	if b == nil {
		return 0
	}
	return len(b.refs)
}

func (b *BlobSet) Refs() []git.BlobRef {
	if b == nil {
		return nil
	}
	return append([]git.BlobRef(nil), b.refs...)
}

// CreateBlobs uploads the content of every file. Files are sent in waves of
// concurrency requests and each wave completes before the next one starts.
// Any failure aborts the whole call.
func CreateBlobs(ctx context.Context, remote git.RemoteGit, files []FileEntry, concurrency int, tracker *Tracker) (*BlobSet, error) {
	ctx, span := tracer.Start(ctx, "upload.CreateBlobs")
	defer span.End()

	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	span.SetAttributes(
		attribute.Int(AttributeFileCount, len(files)),
		attribute.Int(AttributeConcurrency, concurrency),
	)

	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	refs := make([]git.BlobRef, len(files))
	for wave, chunk := range partition(files, concurrency) {
		offset := wave * concurrency

		g, gctx := errgroup.WithContext(ctx)
		for i, file := range chunk {
			g.Go(func() error {
				sha, err := remote.CreateBlob(gctx, file.Content)
				if err != nil {
					// Siblings cancelled by the first failure are not failures
					if gctx.Err() == nil || !errors.Is(err, context.Canceled) {
						tracker.BlobFailed()
					}
					return fmt.Errorf("failed to create blob for %s: %w", file.Path, err)
				}
				refs[offset+i] = git.NewBlobRef(file.Path, sha)
				tracker.BlobCreated()
				blobsCreated.Add(ctx, 1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			span.SetAttributes(attribute.String(AttributeErrorType, "fail"))
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	for _, ref := range refs {
		if ref.SHA == "" {
			return nil, errors.New("blob upload finished with missing shas")
		}
	}
	return &BlobSet{refs: refs}, nil
}
