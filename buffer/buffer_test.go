package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferFIFOOrdering(t *testing.T) {
	b := New()
	require.True(t, b.Empty())

	b.PushChunk([]byte("one"))
	b.PushChunk([]byte("two"))
	b.PushChunk([]byte("three"))

	require.False(t, b.Empty())
	assert.Equal(t, 3, b.NumChunks())

	assert.Equal(t, []byte("one"), b.Chunk())
	b.PopChunk()
	assert.Equal(t, []byte("two"), b.Chunk())
	b.PopChunk()
	assert.Equal(t, []byte("three"), b.Chunk())
	b.PopChunk()

	assert.True(t, b.Empty())
}

func TestBufferBytesConcatenates(t *testing.T) {
	b := New()
	b.PushChunk([]byte("ab"))
	b.PushChunk([]byte("cd"))
	b.PushChunk([]byte("ef"))

	assert.Equal(t, []byte("abcdef"), b.Bytes())
	// Bytes() copies without popping — the chunk queue is unaffected.
	assert.Equal(t, 3, b.NumChunks())
}

func TestBufferChunkSize(t *testing.T) {
	b := New()
	b.PushChunk([]byte("hello"))
	assert.Equal(t, 5, b.ChunkSize())
}
