package replication

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunk(t *testing.T) {
	seq := func(n int) []int {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}

	tests := []struct {
		name    string
		items   []int
		size    int
		lengths []int
	}{
		{name: "empty", items: nil, size: 3, lengths: []int{}},
		{name: "smaller than size", items: seq(2), size: 5, lengths: []int{2}},
		{name: "exact multiple", items: seq(6), size: 3, lengths: []int{3, 3}},
		{name: "remainder", items: seq(250), size: 100, lengths: []int{100, 100, 50}},
		{name: "size one", items: seq(3), size: 1, lengths: []int{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Chunk(tt.items, tt.size)

			lengths := make([]int, len(chunks))
			var flat []int
			for i, c := range chunks {
				lengths[i] = len(c)
				assert.LessOrEqual(t, len(c), tt.size)
				assert.NotEmpty(t, c)
				flat = append(flat, c...)
			}

			assert.Equal(t, tt.lengths, lengths)
			assert.True(t, slices.Equal(tt.items, flat), "concatenation must equal input")
		})
	}
}

func TestChunk_AppendDoesNotLeak(t *testing.T) {
	items := []int{1, 2, 3, 4}
	chunks := Chunk(items, 2)

	_ = append(chunks[0], 99)

	assert.Equal(t, []int{1, 2, 3, 4}, items)
}

func TestChunk_PanicsOnInvalidSize(t *testing.T) {
	assert.Panics(t, func() { Chunk([]int{1}, 0) })
	assert.Panics(t, func() { Chunk([]int{1}, -1) })
}
