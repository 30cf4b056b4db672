package tcpserver

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"

	"github.com/reachingisaskill/TCPServer/api"
	"github.com/reachingisaskill/TCPServer/buffer"
	"github.com/reachingisaskill/TCPServer/internal/reactor"
)

// Connection is the per-socket state for one open TCP session: I/O event
// registration, the outbound write queue, the handle liveness barrier,
// and the close flag. It is owned exclusively by the Manager's
// ConnectionMap; a WorkerLoop only holds event registrations pointing at
// it, never ownership.
type Connection struct {
	id       uint64
	uniqueID int64
	peerAddr string

	manager *Manager
	worker  *reactor.WorkerLoop
	fd      int

	serializer api.Serializer

	mu          sync.Mutex // guards outbound and writeArmed; writeOffset is only touched by doWrite
	outbound    *queue.Queue
	writeArmed  bool
	writeOffset int

	closing   atomic.Bool
	teardown  atomic.Bool // set by the first close() call
	destroyed atomic.Bool

	created time.Time

	lastAccessMu sync.Mutex
	lastAccess   time.Time

	handleCount atomic.Int64
}

func newConnection(m *Manager, fd int, peerAddr string, uniqueID int64, worker *reactor.WorkerLoop) *Connection {
	now := time.Now()
	return &Connection{
		id:         m.nextConnectionID(),
		uniqueID:   uniqueID,
		peerAddr:   peerAddr,
		manager:    m,
		worker:     worker,
		fd:         fd,
		serializer: m.callbacks.BuildSerializer(),
		outbound:   queue.New(),
		created:    now,
		lastAccess: now,
	}
}

// RequestHandle fabricates a new Handle over this Connection.
func (c *Connection) RequestHandle() Handle {
	return requestHandle(c)
}

// GetConnectionID returns the Connection's process-unique identifier.
func (c *Connection) GetConnectionID() uint64 { return c.id }

// GetCreationTime returns when the Connection was constructed.
func (c *Connection) GetCreationTime() time.Time { return c.created }

// GetAccess returns the last time a read/write callback touched this
// Connection.
func (c *Connection) GetAccess() time.Time { return c.getAccess() }

// GetNumberHandles returns the current (best-effort) count of live
// Handles referencing this Connection.
func (c *Connection) GetNumberHandles() int64 { return c.handleCount.Load() }

// IsOpen reports whether close() has not yet been called on this
// Connection.
func (c *Connection) IsOpen() bool { return !c.closing.Load() }

func (c *Connection) touchAccess() {
	c.lastAccessMu.Lock()
	c.lastAccess = time.Now()
	c.lastAccessMu.Unlock()
}

func (c *Connection) getAccess() time.Time {
	c.lastAccessMu.Lock()
	defer c.lastAccessMu.Unlock()
	return c.lastAccess
}

// checkTimeout implements the per-connection side of §5's "cancellation
// and timeouts": if this Connection has gone idle longer than the
// configured ReadTimeout/WriteTimeout, deliver Timeout without closing.
// Runs on the owning worker goroutine (via WorkerLoop.Post from
// Manager.timeoutLoop), so it never races doRead/doWrite for this fd.
func (c *Connection) checkTimeout() {
	if c.closing.Load() {
		return
	}

	limit := effectiveTimeout(c.manager.cfg.ReadTimeout, c.manager.cfg.WriteTimeout)
	if limit <= 0 {
		return
	}

	if time.Since(c.getAccess()) < limit {
		return
	}

	// Reset the clock so a still-idle connection doesn't fire Timeout on
	// every subsequent sweep.
	c.touchAccess()

	handle := requestHandle(c)
	c.manager.safeInvoke(func() {
		c.manager.callbacks.OnConnectionEvent(handle, api.Timeout, "")
	})
}

// effectiveTimeout picks the shorter of two configured timeouts, treating
// zero ("disabled") as absent rather than as the minimum.
func effectiveTimeout(read, write time.Duration) time.Duration {
	switch {
	case read <= 0:
		return write
	case write <= 0:
		return read
	case read < write:
		return read
	default:
		return write
	}
}

// write serializes p and arms write-readiness for this Connection. It is
// the write event's callback, not write itself, that drains bytes to the
// socket — the suspension/queueing boundary that gives backpressure.
// A no-op once close() has been called.
func (c *Connection) write(p api.Payload) {
	if c.closing.Load() {
		return
	}
	c.mu.Lock()
	c.serializer.Serialize(p)
	c.drainOutgoingBuffers()
	c.mu.Unlock()
	c.armWrite()
}

// close is idempotent: the first caller wins and schedules teardown on
// the owning worker; subsequent calls are no-ops. Any terminal
// ConnectionEvent (Disconnect/DisconnectError) has already been delivered
// by the caller before this runs — close only tears down resources.
func (c *Connection) close() {
	c.closing.Store(true)
	if !c.teardown.CompareAndSwap(false, true) {
		return
	}
	if !c.worker.Post(func() { c.manager.destroyConnection(c) }) {
		// Worker's task queue is saturated; fall back to a direct call.
		// Safe because the caller either already is the owning worker
		// goroutine (read/write path) or the worker has stopped
		// accepting new work during shutdown.
		c.manager.destroyConnection(c)
	}
}

func (c *Connection) armWrite() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeArmed || c.destroyed.Load() {
		return
	}
	c.writeArmed = true
	_ = c.worker.SetEvents(uintptr(c.fd), reactor.EventRead|reactor.EventWrite)
}

func (c *Connection) disarmWrite() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.writeArmed || c.destroyed.Load() {
		return
	}
	c.writeArmed = false
	_ = c.worker.SetEvents(uintptr(c.fd), reactor.EventRead)
}

// onEvent is the Reactor callback registered for this Connection's fd. It
// runs serially with every other event on this Connection because a
// single WorkerLoop's Poll dispatches events one at a time.
func (c *Connection) onEvent(_ uintptr, events reactor.FDEventType) {
	if events&reactor.EventError != 0 {
		c.doError()
		return
	}
	if events&reactor.EventRead != 0 {
		c.doRead()
	}
	if events&reactor.EventWrite != 0 {
		c.doWrite()
	}
}

func (c *Connection) doError() {
	handle := requestHandle(c)
	c.closing.Store(true)
	c.manager.safeInvoke(func() {
		c.manager.callbacks.OnConnectionEvent(handle, api.DisconnectError, "socket error")
	})
	c.close()
}

// doRead implements the read algorithm of spec §4.3: drain the socket
// until would-block/EOF/error, deserialize whatever was accumulated, and
// deliver payloads and serializer errors to the user. The terminal
// Disconnect/DisconnectError, if any, is held until after that delivery
// so it stays the last event for this Handle even when the peer's final
// payload and its FIN arrive in the same readiness notification.
func (c *Connection) doRead() {
	handle := requestHandle(c)
	bufSize := c.manager.cfg.BufferSize
	local := buffer.New()

	var terminalEvent api.ConnectionEvent
	var terminalText string
	terminal := false

readLoop:
	for {
		chunk := make([]byte, bufSize)
		n, err := unix.Read(c.fd, chunk)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			c.closing.Store(true)
			terminalEvent, terminalText, terminal = api.DisconnectError, err.Error(), true
			break readLoop
		}
		if n == 0 {
			c.closing.Store(true)
			terminalEvent, terminalText, terminal = api.Disconnect, "", true
			break readLoop
		}
		local.PushChunk(chunk[:n])
	}

	if !local.Empty() {
		data := local.Bytes()
		c.mu.Lock()
		c.serializer.Deserialize(data)
		c.mu.Unlock()

		for {
			p, ok := c.serializer.GetPayload()
			if !ok {
				break
			}
			payload := p
			c.manager.safeInvoke(func() {
				c.manager.callbacks.OnRead(handle, payload)
			})
		}
		for {
			s, ok := c.serializer.GetError()
			if !ok {
				break
			}
			errText := s
			c.manager.safeInvoke(func() {
				c.manager.callbacks.OnConnectionEvent(handle, api.SerializationError, errText)
			})
		}
	}

	if terminal {
		c.manager.safeInvoke(func() {
			c.manager.callbacks.OnConnectionEvent(handle, terminalEvent, terminalText)
		})
	}

	c.touchAccess()

	if c.closing.Load() {
		c.close()
	}
}

// doWrite implements the write algorithm of spec §4.3.
func (c *Connection) doWrite() {
	handle := requestHandle(c)

	c.mu.Lock()
	for {
		s, ok := c.serializer.GetError()
		if !ok {
			break
		}
		errText := s
		c.mu.Unlock()
		c.manager.safeInvoke(func() {
			c.manager.callbacks.OnConnectionEvent(handle, api.SerializationError, errText)
		})
		c.mu.Lock()
	}
	c.mu.Unlock()

	good := true

writeLoop:
	for good && c.IsOpen() {
		c.mu.Lock()
		if c.outbound.Length() == 0 {
			c.mu.Unlock()
			break
		}
		head := c.outbound.Peek().(*buffer.Buffer)
		c.mu.Unlock()

		for !head.Empty() {
			chunkBytes := head.Chunk()
			remaining := chunkBytes[c.writeOffset:]
			if len(remaining) == 0 {
				head.PopChunk()
				c.writeOffset = 0
				continue
			}

			n, err := unix.Write(c.fd, remaining)
			if err != nil {
				if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
					break writeLoop
				}
				c.closing.Store(true)
				good = false
				errText := err.Error()
				c.manager.safeInvoke(func() {
					c.manager.callbacks.OnConnectionEvent(handle, api.DisconnectError, errText)
				})
				break writeLoop
			}
			if n == 0 {
				c.closing.Store(true)
				good = false
				c.manager.safeInvoke(func() {
					c.manager.callbacks.OnConnectionEvent(handle, api.DisconnectError, "write returned 0 bytes")
				})
				break writeLoop
			}
			if n == len(remaining) {
				head.PopChunk()
				c.writeOffset = 0
			} else {
				c.writeOffset += n
			}
		}

		if head.Empty() {
			c.mu.Lock()
			c.outbound.Remove()
			c.mu.Unlock()
		}
	}

	c.mu.Lock()
	outboundEmpty := c.outbound.Length() == 0
	c.mu.Unlock()
	if outboundEmpty {
		c.disarmWrite()
	}

	if good {
		c.manager.safeInvoke(func() {
			c.manager.callbacks.OnWrite(handle)
		})
	}
	c.touchAccess()

	if c.closing.Load() {
		c.close()
	}
}

// drainOutgoingBuffers moves every buffer the Serializer produced during
// the preceding Serialize call into this Connection's own outbound queue.
// Callers must already hold c.mu.
func (c *Connection) drainOutgoingBuffers() {
	for {
		b, ok := c.serializer.GetBuffer()
		if !ok {
			return
		}
		c.outbound.Add(b)
	}
}
