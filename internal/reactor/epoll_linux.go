//go:build linux

package reactor

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// epollReactor implements Reactor using Linux epoll, following the
// non-blocking-socket-plus-unix-syscall conventions this codebase family
// uses elsewhere for platform I/O (internal/transport/transport_linux.go
// in the teacher repo).
type epollReactor struct {
	epfd int

	mu        sync.RWMutex
	callbacks map[uintptr]FDCallback
	events    map[uintptr]FDEventType
}

// New creates a Reactor backed by a fresh epoll instance.
func New() (Reactor, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &epollReactor{
		epfd:      epfd,
		callbacks: make(map[uintptr]FDCallback),
		events:    make(map[uintptr]FDEventType),
	}, nil
}

func toEpollEvents(events FDEventType) uint32 {
	var e uint32
	if events&EventRead != 0 {
		e |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func (r *epollReactor) Register(fd uintptr, events FDEventType, cb FDCallback) error {
	ev := &unix.EpollEvent{Events: toEpollEvents(events), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, int(fd), ev); err != nil {
		return fmt.Errorf("epoll_ctl add: %w", err)
	}
	r.mu.Lock()
	r.callbacks[fd] = cb
	r.events[fd] = events
	r.mu.Unlock()
	return nil
}

func (r *epollReactor) SetEvents(fd uintptr, events FDEventType) error {
	ev := &unix.EpollEvent{Events: toEpollEvents(events), Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, int(fd), ev); err != nil {
		return fmt.Errorf("epoll_ctl mod: %w", err)
	}
	r.mu.Lock()
	r.events[fd] = events
	r.mu.Unlock()
	return nil
}

func (r *epollReactor) Unregister(fd uintptr) error {
	_ = unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
	r.mu.Lock()
	delete(r.callbacks, fd)
	delete(r.events, fd)
	r.mu.Unlock()
	return nil
}

func (r *epollReactor) Poll(timeoutMs int) error {
	const maxEvents = 256
	var raw [maxEvents]unix.EpollEvent

	n, err := unix.EpollWait(r.epfd, raw[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return fmt.Errorf("epoll_wait: %w", err)
	}

	for i := 0; i < n; i++ {
		fd := uintptr(raw[i].Fd)

		r.mu.RLock()
		cb, ok := r.callbacks[fd]
		r.mu.RUnlock()
		if !ok {
			continue
		}

		var got FDEventType
		if raw[i].Events&unix.EPOLLIN != 0 {
			got |= EventRead
		}
		if raw[i].Events&unix.EPOLLOUT != 0 {
			got |= EventWrite
		}
		if raw[i].Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			got |= EventError
		}

		dispatch(cb, fd, got)
	}

	return nil
}

// dispatch isolates a panicking callback from the reactor's own loop, the
// same recover-and-continue discipline used across this codebase's other
// dispatch points (worker pool task execution, event loop handler fan-out).
func dispatch(cb FDCallback, fd uintptr, events FDEventType) {
	defer func() { _ = recover() }()
	cb(fd, events)
}

func (r *epollReactor) Close() error {
	return unix.Close(r.epfd)
}
