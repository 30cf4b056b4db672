package tcpserver

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/reachingisaskill/TCPServer/api"
	"github.com/reachingisaskill/TCPServer/internal/control"
	"github.com/reachingisaskill/TCPServer/internal/reactor"
)

// managerState models the state machine of §4.6: Constructed → Starting
// (inside Run) → Running → ShuttingDown → Stopped.
type managerState int32

const (
	stateConstructed managerState = iota
	stateStarting
	stateRunning
	stateShuttingDown
	stateStopped
)

// Manager is the single process-wide orchestrator: it owns the listener,
// the outbound-connect request queue, the tick and user timers, the
// worker pool, and the ConnectionMap. Applications construct exactly one
// Manager per embedded core instance.
type Manager struct {
	cfg       *api.Config
	callbacks EventHandler
	logger    *zap.Logger
	control   *control.ConfigStore

	// tickParamsMu guards the live-tunable tick cadence inputs, seeded
	// from cfg and updated by reloadTickParams whenever control.Set
	// touches "minTickTime" or "tickTimeModifier".
	tickParamsMu sync.RWMutex
	tickParams   tickParams

	connections *connectionMap
	nextID      atomic.Uint64

	workers    []*reactor.WorkerLoop
	nextWorker atomic.Uint64
	// loop hosts connection I/O when cfg.NumThreads == 0, the degenerate
	// single-loop mode retained for tests per spec §4.5.
	loop *reactor.WorkerLoop

	listenFD  int
	listening atomic.Bool
	boundPort atomic.Int32

	connectRequests chan ConnectionRequest

	timers *timerRegistry

	stateVal atomic.Int32
	wg       sync.WaitGroup

	stopCh    chan struct{}
	stoppedCh chan struct{}

	shutdownOnce sync.Once
	finalizeOnce sync.Once
	deathTimer   *time.Timer

	sigStop chan struct{}

	startTime time.Time
}

// NewManager validates cfg and constructs a Manager. Run must be called
// to actually start accepting connections and dispatching events.
func NewManager(cfg *api.Config, callbacks EventHandler) (*Manager, error) {
	if cfg == nil {
		return nil, api.ErrInvalidConfig
	}
	if callbacks == nil {
		return nil, api.NewError(api.ErrCodeConfig, "callbacks must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:       cfg,
		callbacks: callbacks,
		logger:    cfg.LoggerOrNop(),
		control:   control.NewConfigStore(),
		tickParams: tickParams{
			minTickTime:      cfg.MinTickTime,
			tickTimeModifier: cfg.TickTimeModifier,
		},
		connections:     newConnectionMap(),
		timers:          newTimerRegistry(),
		connectRequests: make(chan ConnectionRequest, 256),
		stopCh:          make(chan struct{}),
		stoppedCh:       make(chan struct{}),
	}
	m.control.OnReload(m.reloadTickParams)
	return m, nil
}

// ConfigStore exposes the dynamic configuration layer for live tuning
// values, independent of the static Config validated at construction.
// The Manager subscribes its own OnReload listener (reloadTickParams, in
// timer.go) so pushing "minTickTime"/"tickTimeModifier" through here
// takes effect on the very next tick.
func (m *Manager) ConfigStore() *control.ConfigStore { return m.control }

// Run starts every subsystem and blocks until Shutdown or Abort has fully
// torn the Manager down. It returns nil on normal termination, or a
// structured *api.Error if a subsystem failed to start.
func (m *Manager) Run() error {
	if !m.stateVal.CompareAndSwap(int32(stateConstructed), int32(stateStarting)) {
		return api.ErrAlreadyRunning
	}
	m.startTime = time.Now()

	for i := 0; i < m.cfg.NumThreads; i++ {
		w, err := reactor.NewWorkerLoop(i, m.cfg.WorkerTickTime, m.logger)
		if err != nil {
			return api.NewError(api.ErrCodeConfig, "failed to create worker loop").
				WithContext("worker", i).WithContext("err", err.Error())
		}
		m.workers = append(m.workers, w)
	}
	if m.cfg.NumThreads == 0 {
		loop, err := reactor.NewWorkerLoop(-1, m.cfg.WorkerTickTime, m.logger)
		if err != nil {
			return api.NewError(api.ErrCodeConfig, "failed to create manager loop").WithContext("err", err.Error())
		}
		m.loop = loop
	}

	for _, w := range m.workers {
		m.wg.Add(1)
		go func(w *reactor.WorkerLoop) {
			defer m.wg.Done()
			w.Run()
		}(w)
	}
	if m.loop != nil {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.loop.Run()
		}()
	}

	if m.cfg.RequestListener {
		if err := m.setupListener(); err != nil {
			return err
		}
		m.wg.Add(1)
		go m.acceptLoop()
	}

	m.wg.Add(1)
	go m.drainConnectRequests()

	m.wg.Add(1)
	go m.tickLoop()

	m.wg.Add(1)
	go m.timeoutLoop()

	if m.cfg.RequestSignalHandler {
		m.installSignalHandler()
	}

	m.setState(stateRunning)
	m.safeInvoke(m.callbacks.OnStart)

	<-m.stoppedCh
	return nil
}

func (m *Manager) state() managerState    { return managerState(m.stateVal.Load()) }
func (m *Manager) setState(s managerState) { m.stateVal.Store(int32(s)) }

// safeInvoke wraps a single user-callback dispatch so a panicking
// EventHandler implementation cannot crash the goroutine calling it,
// whether that is a worker's Poll loop, the accept loop, or the tick
// goroutine.
func (m *Manager) safeInvoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("event handler callback panicked", zap.Any("panic", r))
		}
	}()
	fn()
}

func (m *Manager) nextConnectionID() uint64 { return m.nextID.Add(1) }

// pickWorker implements strict round-robin assignment across the worker
// pool, or returns the manager's own loop in the numThreads==0 degenerate
// mode.
func (m *Manager) pickWorker() *reactor.WorkerLoop {
	if len(m.workers) == 0 {
		return m.loop
	}
	idx := m.nextWorker.Add(1) % uint64(len(m.workers))
	return m.workers[idx]
}

// destroyConnection is the sole deleter: cancel events, close the fd,
// remove the map entry, mark the Connection destroyed so every
// outstanding Handle observes it as expired from here on. Called only
// from the owning worker's goroutine via WorkerLoop.Post (or directly
// during teardown once no worker goroutines remain).
func (m *Manager) destroyConnection(c *Connection) {
	err := multierr.Append(c.worker.Unregister(uintptr(c.fd)), unix.Close(c.fd))
	if err != nil {
		m.logger.Warn("error tearing down connection", zap.Uint64("connection", c.id), zap.Error(err))
	}
	m.connections.remove(c.id)
	c.destroyed.Store(true)
}

// GetNumberConnections returns the current size of the ConnectionMap.
func (m *Manager) GetNumberConnections() int { return m.connections.count() }

// GetIPAddress returns the address the listener is bound to. The core
// always binds INADDR_ANY; this reports it literally rather than probing
// interfaces, matching the spec's accessor without inventing behavior it
// doesn't describe.
func (m *Manager) GetIPAddress() string {
	if !m.listening.Load() {
		return ""
	}
	return "0.0.0.0"
}

// GetPortNumber returns the listener's bound port, or 0 if no listener is
// configured or running.
func (m *Manager) GetPortNumber() int { return int(m.boundPort.Load()) }

// GetUpTime returns the duration since Run began Starting.
func (m *Manager) GetUpTime() time.Duration {
	if m.startTime.IsZero() {
		return 0
	}
	return time.Since(m.startTime)
}

// GetStartTime returns when Run began Starting, or the zero time if Run
// has not yet been called.
func (m *Manager) GetStartTime() time.Time { return m.startTime }
