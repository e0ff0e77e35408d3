package upload

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestCommitChunkedSpanRecordsBatches(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	hub, baseURL := setupHub(t)
	repo := hub.CreateRepo("acme", "demo", "main")
	_, err := repo.Seed("main", "initial", map[string]string{"README.md": "hello"})
	require.NoError(t, err)

	_, err = New(WithBaseURL(baseURL), WithSingleCommitLimit(2), WithBatchSize(2)).Commit(context.Background(), Params{
		RepoURL: "acme/demo",
		Token:   testToken,
		Message: "Add",
		Files:   makeFiles(5),
	})
	require.NoError(t, err)

	var commitSpan sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		if s.Name() == "upload.Commit" {
			commitSpan = s
		}
	}
	require.NotNil(t, commitSpan)

	attrs := attribute.NewSet(commitSpan.Attributes()...)
	strategy, _ := attrs.Value(AttributeStrategy)
	assert.Equal(t, "chunked", strategy.AsString())
	batches, _ := attrs.Value(AttributeBatches)
	assert.Equal(t, int64(3), batches.AsInt64())

	var seen []int64
	for _, event := range commitSpan.Events() {
		if event.Name != "batch" {
			continue
		}
		for _, kv := range event.Attributes {
			if string(kv.Key) == AttributeBatch {
				seen = append(seen, kv.Value.AsInt64())
			}
		}
	}
	assert.Equal(t, []int64{1, 2, 3}, seen)
}
