package reactor

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// WorkerLoop is one worker's event demultiplexer plus the tick cadence
// that forces Poll to return periodically so Stop can be observed. It
// owns event registrations for whatever connections the Manager has
// assigned to it; it never owns the connections themselves.
type WorkerLoop struct {
	id       int
	reactor  Reactor
	tick     time.Duration
	stopping atomic.Bool
	done     chan struct{}
	logger   *zap.Logger
	tasks    chan func()
}

// NewWorkerLoop creates a WorkerLoop with its own Reactor instance. tick bounds how
// long a single Poll call may block, and therefore how promptly Stop is
// noticed.
func NewWorkerLoop(id int, tick time.Duration, logger *zap.Logger) (*WorkerLoop, error) {
	r, err := New()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerLoop{
		id:      id,
		reactor: r,
		tick:    tick,
		done:    make(chan struct{}),
		logger:  logger,
		tasks:   make(chan func(), 256),
	}, nil
}

// Post enqueues fn to run on this worker's own goroutine, between Poll
// calls. Used to marshal connection teardown onto the goroutine that owns
// the fd's event registration, regardless of which goroutine initiated the
// close. Returns false without running fn if the queue is full or Stop has
// already been called; Connection.close then falls back to a direct
// invocation.
func (w *WorkerLoop) Post(fn func()) bool {
	if w.stopping.Load() {
		return false
	}
	select {
	case w.tasks <- fn:
		return true
	default:
		return false
	}
}

func (w *WorkerLoop) drainTasks() {
	for {
		select {
		case fn := <-w.tasks:
			fn()
		default:
			return
		}
	}
}

// ID returns this worker's index, assigned by the Manager at construction.
func (w *WorkerLoop) ID() int { return w.id }

// Register arms readiness watching for fd on this worker's reactor.
// Safe to call from any goroutine: epoll_ctl (and the mutex-guarded
// bookkeeping map behind it) is thread-safe independent of which
// goroutine is currently blocked in Poll.
func (w *WorkerLoop) Register(fd uintptr, events FDEventType, cb FDCallback) error {
	return w.reactor.Register(fd, events, cb)
}

// SetEvents rearms fd's watched event set, used to arm/disarm
// write-readiness as the outbound queue fills and drains.
func (w *WorkerLoop) SetEvents(fd uintptr, events FDEventType) error {
	return w.reactor.SetEvents(fd, events)
}

// Unregister stops watching fd.
func (w *WorkerLoop) Unregister(fd uintptr) error {
	return w.reactor.Unregister(fd)
}

// Run blocks, polling for readiness until Stop is called. Intended to be
// run on its own goroutine.
func (w *WorkerLoop) Run() {
	defer close(w.done)
	tickMs := int(w.tick / time.Millisecond)
	if tickMs <= 0 {
		tickMs = 1
	}
	for !w.stopping.Load() {
		if err := w.reactor.Poll(tickMs); err != nil {
			w.logger.Warn("worker poll error", zap.Int("worker", w.id), zap.Error(err))
		}
		w.drainTasks()
	}
	w.drainTasks()
}

// Stop signals Run to exit and blocks until it has, then releases the
// reactor's OS resources.
func (w *WorkerLoop) Stop() {
	w.stopping.Store(true)
	<-w.done
	if err := w.reactor.Close(); err != nil {
		w.logger.Warn("worker close error", zap.Int("worker", w.id), zap.Error(err))
	}
}
