package tcpserver

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/reachingisaskill/TCPServer/api"
)

// Shutdown begins graceful termination: it arms a death timer that
// escalates to Abort if teardown doesn't finish within cfg.DeathTime,
// disables the listener and the signal handler (a second interrupt after
// this point gets Go's default handling and terminates the process),
// optionally forces
// every open Connection closed, and emits onEvent(Shutdown). Run returns
// once every Connection has drained and every worker has joined. A no-op
// if the Manager is not Running.
func (m *Manager) Shutdown() {
	m.shutdownOnce.Do(func() {
		if !m.stateVal.CompareAndSwap(int32(stateRunning), int32(stateShuttingDown)) {
			return
		}
		m.safeInvoke(func() {
			m.callbacks.OnEvent(api.Shutdown, "")
		})
		m.disableListener()
		m.removeSignalHandler()
		if m.cfg.ConnectionCloseOnShutdown {
			m.connections.closeAll()
		}
		if m.cfg.DeathTime > 0 {
			m.deathTimer = time.AfterFunc(m.cfg.DeathTime, m.Abort)
		}
		go m.waitForDrain()
	})
}

// Abort is a superset of Shutdown: it forces every open Connection
// closed, tears down every worker and the manager loop unconditionally,
// and returns Run without waiting for a graceful drain. Called
// automatically by the death timer, or directly after an unrecoverable
// error.
func (m *Manager) Abort() {
	if m.state() == stateStopped {
		return
	}
	m.setState(stateShuttingDown)
	m.disableListener()
	m.removeSignalHandler()
	m.connections.closeAll()
	m.finalize()
}

// waitForDrain polls the ConnectionMap until it is empty, then finalizes.
// If Abort fires first (death timer or a direct call), finalize's
// sync.Once makes this a no-op and stoppedCh being closed ends the wait.
func (m *Manager) waitForDrain() {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if m.connections.count() == 0 {
				m.finalize()
				return
			}
		case <-m.stoppedCh:
			return
		}
	}
}

// finalize stops every background goroutine, joins every worker, and
// transitions to Stopped. Safe to call from both the graceful drain path
// and Abort; only the first caller does anything.
func (m *Manager) finalize() {
	m.finalizeOnce.Do(func() {
		if m.deathTimer != nil {
			m.deathTimer.Stop()
		}
		m.timers.stopAll()
		close(m.stopCh)

		for _, w := range m.workers {
			w.Stop()
		}
		if m.loop != nil {
			m.loop.Stop()
		}
		m.wg.Wait()

		m.setState(stateStopped)
		m.safeInvoke(m.callbacks.OnStop)
		close(m.stoppedCh)
	})
}

// disableListener stops the accept loop by shutting down the listening
// socket, which unblocks the pending Accept4 with an error the loop treats
// as its exit signal, and then closing it.
func (m *Manager) disableListener() {
	if !m.listening.CompareAndSwap(true, false) {
		return
	}
	_ = unix.Shutdown(m.listenFD, unix.SHUT_RDWR)
	_ = unix.Close(m.listenFD)
}

func (m *Manager) installSignalHandler() {
	m.sigStop = make(chan struct{})
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	go func() {
		select {
		case <-ch:
			m.Shutdown()
		case <-m.sigStop:
		}
		signal.Stop(ch)
	}()
}

func (m *Manager) removeSignalHandler() {
	if m.sigStop != nil {
		select {
		case <-m.sigStop:
		default:
			close(m.sigStop)
		}
	}
}
