// Package buffer implements the chunked FIFO byte container that sits at
// the boundary between raw socket reads/writes and the Serializer contract.
//
// A Buffer never copies or compacts the bytes it is given: chunks are
// pushed at the tail and consumed from the head, so a partially-written
// chunk can record how many of its bytes have already reached the socket
// and resume from that offset on the next write-readiness event.
package buffer

import "github.com/eapache/queue"

// chunk is an immutable-once-pushed byte slice.
type chunk struct {
	data []byte
}

// Buffer is an ordered sequence of byte chunks with FIFO consumption
// semantics. It is not safe for concurrent use; callers serialize access
// (the owning Connection's write mutex, or single-threaded read
// processing on a worker).
type Buffer struct {
	chunks *queue.Queue
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{chunks: queue.New()}
}

// PushChunk appends a chunk of bytes at the tail. The slice is retained,
// not copied; callers must not mutate it afterward.
func (b *Buffer) PushChunk(data []byte) {
	if len(data) == 0 {
		return
	}
	b.chunks.Add(&chunk{data: data})
}

// Chunk returns the head chunk without removing it, or nil if the Buffer
// is empty.
func (b *Buffer) Chunk() []byte {
	if b.chunks.Length() == 0 {
		return nil
	}
	return b.chunks.Peek().(*chunk).data
}

// ChunkSize returns the length of the head chunk, or 0 if empty.
func (b *Buffer) ChunkSize() int {
	return len(b.Chunk())
}

// PopChunk discards the head chunk.
func (b *Buffer) PopChunk() {
	if b.chunks.Length() == 0 {
		return
	}
	b.chunks.Remove()
}

// Empty reports whether the Buffer holds no chunks.
func (b *Buffer) Empty() bool {
	return b.chunks.Length() == 0
}

// NumChunks returns the number of chunks currently queued.
func (b *Buffer) NumChunks() int {
	return b.chunks.Length()
}

// Bytes concatenates every chunk into a single owned slice. Intended for
// small buffers (e.g. handing a fully-read frame to a Serializer); it
// copies, unlike the chunk-preserving push/pop path.
func (b *Buffer) Bytes() []byte {
	total := 0
	for i := 0; i < b.chunks.Length(); i++ {
		total += len(b.chunks.Get(i).(*chunk).data)
	}
	out := make([]byte, 0, total)
	for i := 0; i < b.chunks.Length(); i++ {
		out = append(out, b.chunks.Get(i).(*chunk).data...)
	}
	return out
}
