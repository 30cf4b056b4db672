// Package reactor implements the readiness-based event demultiplexer that
// backs each WorkerLoop: one instance per worker goroutine, hosting the
// read/write/error readiness registrations for whatever connections the
// Manager has assigned to that worker.
package reactor

// FDEventType is a bitmask of readiness conditions a Reactor can report.
type FDEventType uint8

const (
	EventRead FDEventType = 1 << iota
	EventWrite
	EventError
)

// FDCallback is invoked from within Poll when a registered descriptor
// becomes ready. It must not block: it runs on the reactor's own
// goroutine, serially with every other callback dispatched by that
// Reactor.
type FDCallback func(fd uintptr, events FDEventType)

// Reactor multiplexes readiness across registered file descriptors
// regardless of the underlying OS mechanism (epoll, kqueue, IOCP, ...).
type Reactor interface {
	// Register starts watching fd for the given event types, invoking cb
	// on readiness. events may be updated later via SetEvents.
	Register(fd uintptr, events FDEventType, cb FDCallback) error

	// SetEvents changes the watched event types for an already
	// registered fd. Used to arm/disarm write-readiness without
	// re-registering.
	SetEvents(fd uintptr, events FDEventType) error

	// Unregister stops watching fd. Safe to call more than once.
	Unregister(fd uintptr) error

	// Poll blocks up to timeoutMs milliseconds waiting for readiness,
	// dispatching callbacks for whatever becomes ready before returning.
	// A negative timeout blocks indefinitely; Poll always returns once
	// per call, even if nothing became ready, once the timeout elapses.
	Poll(timeoutMs int) error

	// Close releases the underlying OS resources. No further calls are
	// valid afterward.
	Close() error
}
