package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestPartition(t *testing.T) {
	assert.Nil(t, partition([]int{}, 3))
	assert.Equal(t, [][]int{{1, 2, 3}}, partition([]int{1, 2, 3}, 0))
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, partition([]int{1, 2, 3, 4, 5}, 2))
}

func TestPartitionProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		items := rapid.SliceOf(rapid.Int()).Draw(t, "items")
		size := rapid.IntRange(1, 20).Draw(t, "size")

		chunks := partition(items, size)

		wantChunks := (len(items) + size - 1) / size
		if len(chunks) != wantChunks {
			t.Fatalf("got %d chunks, want %d", len(chunks), wantChunks)
		}

		var joined []int
		for i, chunk := range chunks {
			if len(chunk) == 0 || len(chunk) > size {
				t.Fatalf("chunk %d has %d items", i, len(chunk))
			}
			if i < len(chunks)-1 && len(chunk) != size {
				t.Fatalf("chunk %d is short: %d", i, len(chunk))
			}
			joined = append(joined, chunk...)
		}
		assert.Equal(t, len(items), len(joined))
		for i := range items {
			if items[i] != joined[i] {
				t.Fatalf("order changed at %d", i)
			}
		}
	})
}

func TestPartitionChunksDoNotAlias(t *testing.T) {
	items := []int{1, 2, 3, 4}
	chunks := partition(items, 2)
	chunks[0] = append(chunks[0], 99)
	assert.Equal(t, []int{1, 2, 3, 4}, items)
}
