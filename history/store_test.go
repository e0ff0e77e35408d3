package history

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(repository string, at time.Time) Entry {
	return Entry{
		ID:         ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String(),
		Repository: repository,
		Branch:     "main",
		Message:    "Publish",
		Files:      3,
		Commits:    []string{"95d09f2b10159347eece71399a7e2e907ea3df4f"},
		Success:    true,
		StartedAt:  at.UTC(),
		FinishedAt: at.Add(2 * time.Second).UTC(),
	}
}

func TestStoreRecordGet(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewInMemoryBackend())

	e := testEntry("acme/site", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, store.Record(ctx, e))

	got, err := store.Get(ctx, "acme/site", e.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(e, *got); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2*time.Second, got.Duration())

	_, err = store.Get(ctx, "acme/site", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreRecordValidation(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewInMemoryBackend())

	e := testEntry("acme/site", time.Now())
	e.ID = ""
	assert.ErrorIs(t, store.Record(ctx, e), ErrInvalidEntry)

	e = testEntry("site", time.Now())
	assert.ErrorIs(t, store.Record(ctx, e), ErrInvalidEntry)

	e = testEntry("acme/si*te", time.Now())
	assert.ErrorIs(t, store.Record(ctx, e), ErrInvalidEntry)

	for _, repository := range []string{"../site", "acme/..", "./site", "acme/."} {
		e = testEntry(repository, time.Now())
		assert.ErrorIs(t, store.Record(ctx, e), ErrInvalidEntry, repository)
	}

	e = testEntry("acme/site", time.Now())
	e.ID = ".."
	assert.ErrorIs(t, store.Record(ctx, e), ErrInvalidEntry)
}

func TestStoreGetValidation(t *testing.T) {
	ctx := context.Background()
	backend := NewInMemoryBackend()
	require.NoError(t, backend.Set(ctx, "outside.json", []byte(`{"id":"x"}`)))
	store := NewStore(backend)

	_, err := store.Get(ctx, "../..", "outside")
	assert.ErrorIs(t, err, ErrInvalidEntry)

	_, err = store.Get(ctx, "acme/site", "../../../outside")
	assert.ErrorIs(t, err, ErrInvalidEntry)

	_, err = store.Get(ctx, "acme/site", "")
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestStoreListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewFsBackend(t.TempDir()))

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	first := testEntry("acme/site", base)
	second := testEntry("acme/site", base.Add(time.Minute))
	other := testEntry("acme/docs", base.Add(2*time.Minute))
	for _, e := range []Entry{second, other, first} {
		require.NoError(t, store.Record(ctx, e))
	}

	entries, err := store.List(ctx, "acme/site", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, second.ID, entries[0].ID)
	assert.Equal(t, first.ID, entries[1].ID)

	entries, err = store.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, other.ID, entries[0].ID)

	entries, err = store.List(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, other.ID, entries[0].ID)

	_, err = store.List(ctx, "bad", 0)
	assert.ErrorIs(t, err, ErrInvalidEntry)
}

func TestStorePrune(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewInMemoryBackend())

	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := range 5 {
		e := testEntry("acme/site", base.Add(time.Duration(i)*time.Minute))
		ids = append(ids, e.ID)
		require.NoError(t, store.Record(ctx, e))
	}
	require.NoError(t, store.Record(ctx, testEntry("acme/docs", base)))

	removed, err := store.Prune(ctx, "acme/site", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	entries, err := store.List(ctx, "acme/site", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ids[4], entries[0].ID)
	assert.Equal(t, ids[3], entries[1].ID)

	docs, err := store.List(ctx, "acme/docs", 0)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	removed, err = store.Prune(ctx, "acme/site", 10)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
