package upload

// partition splits items into consecutive chunks of at most size items.
// A size below one yields a single chunk.
func partition[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size < 1 || size >= len(items) {
		return [][]T{items}
	}

	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end:end])
	}
	return out
}
