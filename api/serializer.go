package api

import "github.com/reachingisaskill/TCPServer/buffer"

// Serializer is the user-supplied codec boundary between raw byte streams
// and typed Payloads. Implementations are exclusively owned by a single
// Connection and are never shared.
//
// Serialize must not panic on a codec error: it pushes a descriptive
// string onto the error queue instead and produces no buffers.
//
// Deserialize consumes every byte handed to it in one call and is
// responsible for buffering partial frames across calls — it is a
// streaming state machine, not a one-shot parser.
type Serializer interface {
	// Serialize turns a Payload into zero or more wire buffers, queued
	// for GetBuffer to drain.
	Serialize(p Payload)

	// Deserialize consumes a freshly-read chunk of bytes and queues zero
	// or more Payloads and/or error strings.
	Deserialize(data []byte)

	// GetPayload drains one payload from the inbound queue. Ownership of
	// the returned Payload transfers to the caller.
	GetPayload() (Payload, bool)

	// PayloadEmpty reports whether the inbound payload queue is empty.
	PayloadEmpty() bool

	// GetBuffer drains one wire buffer from the outbound queue. Ownership
	// transfers to the write path, which discards it once drained.
	GetBuffer() (*buffer.Buffer, bool)

	// BufferEmpty reports whether the outbound buffer queue is empty.
	BufferEmpty() bool

	// GetError drains one error string. Borrow-for-one-call: the string
	// is not retained by the Serializer after this returns.
	GetError() (string, bool)

	// ErrorEmpty reports whether the error queue is empty.
	ErrorEmpty() bool
}

// SerializerFactory builds a fresh Serializer for a newly-created
// Connection. The core itself does not use this type: it obtains one
// Serializer per Connection from EventHandler.BuildSerializer.
type SerializerFactory func() Serializer
