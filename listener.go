package tcpserver

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/reachingisaskill/TCPServer/api"
	"github.com/reachingisaskill/TCPServer/internal/reactor"
)

// setupListener creates, binds and starts listening on the configured
// port. The listening socket itself is never registered on a reactor: the
// accept loop uses a plain blocking Accept4 on its own goroutine, woken
// out of a permanently-blocked accept by shutting down and closing the fd
// from Shutdown/Abort, which is simpler than arming readiness for a socket that only
// ever produces one kind of event.
func (m *Manager) setupListener() error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return api.NewError(api.ErrCodeListener, "socket() failed").WithContext("err", err.Error())
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return api.NewError(api.ErrCodeListener, "setsockopt(SO_REUSEADDR) failed").WithContext("err", err.Error())
	}
	addr := &unix.SockaddrInet4{Port: m.cfg.PortNumber}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return api.NewError(api.ErrCodeListener, "bind() failed").WithContext("port", m.cfg.PortNumber).WithContext("err", err.Error())
	}
	if err := unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return api.NewError(api.ErrCodeListener, "listen() failed").WithContext("err", err.Error())
	}
	sa, err := unix.Getsockname(fd)
	if err == nil {
		if in4, ok := sa.(*unix.SockaddrInet4); ok {
			m.boundPort.Store(int32(in4.Port))
		}
	}
	m.listenFD = fd
	m.listening.Store(true)
	return nil
}

// acceptLoop runs on its own goroutine for the Manager's lifetime while a
// listener is configured. It exits once the listening fd has been shut
// down and closed by Shutdown/Abort, at which point Accept4 fails with
// EINVAL/EBADF.
func (m *Manager) acceptLoop() {
	defer m.wg.Done()
	for {
		nfd, sa, err := unix.Accept4(m.listenFD, unix.SOCK_NONBLOCK)
		if err != nil {
			if !m.listening.Load() {
				return
			}
			m.safeInvoke(func() {
				m.callbacks.OnEvent(api.ListenerError, err.Error())
			})
			continue
		}
		m.acceptConnection(nfd, sa)
	}
}

// acceptConnection delivers Connect before arming read-readiness: once
// worker.Register runs, the worker's own Poll goroutine may invoke
// conn.onEvent concurrently, so any OnRead must never precede Connect for
// the same Handle (spec §8).
func (m *Manager) acceptConnection(fd int, sa unix.Sockaddr) {
	peer := formatSockaddr(sa)
	worker := m.pickWorker()
	conn := newConnection(m, fd, peer, 0, worker)
	m.connections.add(conn)

	handle := conn.RequestHandle()
	m.safeInvoke(func() {
		m.callbacks.OnConnectionEvent(handle, api.Connect, "")
	})

	if err := worker.Register(uintptr(fd), reactor.EventRead, conn.onEvent); err != nil {
		m.connections.remove(conn.id)
		unix.Close(fd)
		m.safeInvoke(func() {
			m.callbacks.OnEvent(api.ListenerError, "register failed: "+err.Error())
		})
		return
	}
}

// formatSockaddr renders a unix.Sockaddr as "host:port" for the peer
// address stored on a Connection.
func formatSockaddr(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%d.%d.%d.%d:%d", a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3], a.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("[%x]:%d", a.Addr, a.Port)
	default:
		return "unknown"
	}
}
