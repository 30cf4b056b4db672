package tcpserver

import (
	"runtime"
	"time"
)

// Handle is a shared, thread-safe, non-owning reference to a Connection.
// User callbacks receive Handles, never raw Connection references: a
// program may retain a Handle indefinitely, the underlying Connection may
// be closed and removed from the Manager's ConnectionMap in the
// meantime, and every Handle method must detect that safely rather than
// touch freed socket state.
//
// Go's garbage collector already rules out use-after-free/double-free at
// the memory level — the Connection struct stays reachable for as long as
// any Handle points at it, closed or not. What Handle adds on top is the
// *expiry* contract: once a Connection is destroyed, every Handle method
// becomes a no-op returning a sentinel value instead of touching a closed
// socket or a torn-down Serializer.
type Handle struct {
	cell *handleCell
}

// handleCell is the single allocation a Handle's finalizer attaches to,
// so that requesting the same Connection twice produces two independently
// accounted handles even though both point at one Connection.
type handleCell struct {
	conn *Connection
}

// requestHandle fabricates a new Handle over conn, incrementing its
// handle count. The count decrements when the returned Handle's backing
// cell is garbage collected — a best-effort liveness signal, not an exact
// real-time one; GetNumberHandles is intended for diagnostics, not for
// gating correctness (correctness comes entirely from the destroyed flag
// each method checks below).
func requestHandle(conn *Connection) Handle {
	conn.handleCount.Add(1)
	cell := &handleCell{conn: conn}
	runtime.SetFinalizer(cell, func(c *handleCell) {
		c.conn.handleCount.Add(-1)
	})
	return Handle{cell: cell}
}

// Valid reports whether the underlying Connection is still live. Expired
// Handles are safe to call methods on; they simply return sentinels.
func (h Handle) Valid() bool {
	return h.cell != nil && !h.cell.conn.destroyed.Load()
}

// Write forwards to Connection.write. A no-op on an expired Handle.
func (h Handle) Write(p any) {
	if !h.Valid() {
		return
	}
	h.cell.conn.write(p)
}

// Close forwards to Connection.close. A no-op on an expired Handle.
func (h Handle) Close() {
	if !h.Valid() {
		return
	}
	h.cell.conn.close()
}

// ConnectionID returns the Connection's identifier, or 0 if expired.
func (h Handle) ConnectionID() uint64 {
	if !h.Valid() {
		return 0
	}
	return h.cell.conn.id
}

// UniqueID returns the caller-supplied identifier used to reconcile
// outbound connect requests, or 0 if absent or the Handle has expired.
func (h Handle) UniqueID() int64 {
	if !h.Valid() {
		return 0
	}
	return h.cell.conn.uniqueID
}

// IPAddress returns the peer address, or "" if expired.
func (h Handle) IPAddress() string {
	if !h.Valid() {
		return ""
	}
	return h.cell.conn.peerAddr
}

// CreationTime returns the Connection's creation timestamp, or the zero
// time if expired.
func (h Handle) CreationTime() time.Time {
	if !h.Valid() {
		return time.Time{}
	}
	return h.cell.conn.created
}

// Access returns the last time this Connection saw a successful
// read/write callback, or the zero time if expired.
func (h Handle) Access() time.Time {
	if !h.Valid() {
		return time.Time{}
	}
	return h.cell.conn.getAccess()
}
