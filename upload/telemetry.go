package upload

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const name = "github.com/ocuroot/gitdrop/upload"

var (
	tracer = otel.Tracer(name)
	meter  = otel.Meter(name)
	logger = otelslog.NewLogger(name)
)

const (
	AttributeRepository   = "gitdrop.repository"
	AttributeBranch       = "gitdrop.branch"
	AttributeUploadID     = "gitdrop.upload.id"
	AttributeFileCount    = "gitdrop.upload.files"
	AttributeBatch        = "gitdrop.upload.batch"
	AttributeBatches      = "gitdrop.upload.batches"
	AttributeStrategy     = "gitdrop.upload.strategy"
	AttributeCommitSHA    = "gitdrop.commit.sha"
	AttributeErrorType    = "error.type"
	AttributeEmptyRepo    = "gitdrop.repository.empty"
	AttributeConcurrency  = "gitdrop.upload.concurrency"
	AttributeCreateBranch = "gitdrop.branch.create"
)

var (
	blobsCreated, _   = meter.Int64Counter("gitdrop.blobs.created", metric.WithDescription("Blobs created on the remote"))
	commitsCreated, _ = meter.Int64Counter("gitdrop.commits.created", metric.WithDescription("Commits created on the remote"))
)
