package replication

import "slices"

// Chunk делит items на последовательные части длиной size (последняя может быть короче).
// Части разделяют память с items, но их capacity обрезана, поэтому append в часть
// не затронет соседей. Паникует при size < 1, как и slices.Chunk.
func Chunk[T any](items []T, size int) [][]T {
	if size < 1 {
		panic("replication: chunk size must be at least 1")
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for c := range slices.Chunk(items, size) {
		chunks = append(chunks, c)
	}
	return chunks
}
