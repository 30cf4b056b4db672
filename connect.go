package tcpserver

import (
	"context"
	"net"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/reachingisaskill/TCPServer/api"
	"github.com/reachingisaskill/TCPServer/internal/reactor"
)

// ConnectionRequest is a pending outbound connect, enqueued from any
// goroutine and drained on the Manager's connect-request goroutine.
type ConnectionRequest struct {
	Host     string
	Port     string
	UniqueID int64
}

// ConnectTo enqueues an outbound connection request and returns
// immediately. Per the resolved reading of the source's ambiguous
// same-thread/async split (see DESIGN.md), the returned Handle is always
// expired: resolution, dialing and Connection construction happen later
// on the Manager's own goroutine, and success is observed as a Connect
// event, failure as onEvent(RequestConnectFail, reason).
func (m *Manager) ConnectTo(host, port string, id ...int64) Handle {
	var uid int64
	if len(id) > 0 {
		uid = id[0]
	}
	req := ConnectionRequest{Host: host, Port: port, UniqueID: uid}
	select {
	case m.connectRequests <- req:
	default:
		m.safeInvoke(func() {
			m.callbacks.OnEvent(api.RequestConnectFail, "connect request queue full: "+host+":"+port)
		})
	}
	return Handle{}
}

// drainConnectRequests is the Manager's connect-request goroutine: one
// per Manager, running for its whole lifetime. Each request is resolved
// and dialed on its own short-lived goroutine so a slow DNS lookup for one
// request cannot delay another.
func (m *Manager) drainConnectRequests() {
	defer m.wg.Done()
	for {
		select {
		case req := <-m.connectRequests:
			go m.handleConnectRequest(req)
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) handleConnectRequest(req ConnectionRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, req.Host)
	if err != nil || len(ips) == 0 {
		m.safeInvoke(func() {
			m.callbacks.OnEvent(api.RequestConnectFail, "resolve failed for "+req.Host)
		})
		return
	}
	port, err := strconv.Atoi(req.Port)
	if err != nil || port <= 0 || port > 65535 {
		m.safeInvoke(func() {
			m.callbacks.OnEvent(api.RequestConnectFail, "invalid port "+req.Port)
		})
		return
	}

	fd, peer, err := dialNonBlocking(ips[0].IP, port, m.connectTimeout())
	if err != nil {
		m.safeInvoke(func() {
			m.callbacks.OnEvent(api.RequestConnectFail, err.Error())
		})
		return
	}

	if m.state() >= stateShuttingDown {
		unix.Close(fd)
		return
	}

	m.acceptOutboundConnection(fd, peer, req.UniqueID)
}

// acceptOutboundConnection mirrors acceptConnection for a socket this
// process dialed rather than accepted, including delivering Connect
// before worker.Register arms read-readiness (spec §8 ordering).
func (m *Manager) acceptOutboundConnection(fd int, peer string, uniqueID int64) {
	worker := m.pickWorker()
	conn := newConnection(m, fd, peer, uniqueID, worker)
	m.connections.add(conn)

	handle := conn.RequestHandle()
	m.safeInvoke(func() {
		m.callbacks.OnConnectionEvent(handle, api.Connect, "")
	})

	if err := worker.Register(uintptr(fd), reactor.EventRead, conn.onEvent); err != nil {
		m.connections.remove(conn.id)
		unix.Close(fd)
		m.safeInvoke(func() {
			m.callbacks.OnEvent(api.RequestConnectFail, "register failed: "+err.Error())
		})
		return
	}
}

func (m *Manager) connectTimeout() time.Duration {
	if m.cfg.WriteTimeout > 0 {
		return m.cfg.WriteTimeout
	}
	return 5 * time.Second
}

// dialNonBlocking creates a non-blocking socket, issues connect(2), and
// waits up to timeout for it to complete via poll(2), checking SO_ERROR
// on writability the way a level-triggered reactor would.
func dialNonBlocking(ip net.IP, port int, timeout time.Duration) (fd int, peer string, err error) {
	domain := unix.AF_INET
	v4 := ip.To4()
	if v4 == nil {
		domain = unix.AF_INET6
	}

	fd, err = unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, "", err
	}

	var sa unix.Sockaddr
	if v4 != nil {
		a := &unix.SockaddrInet4{Port: port}
		copy(a.Addr[:], v4)
		sa = a
	} else {
		a := &unix.SockaddrInet6{Port: port}
		copy(a.Addr[:], ip.To16())
		sa = a
	}

	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return -1, "", err
	}
	if err == unix.EINPROGRESS {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
		n, perr := unix.Poll(fds, int(timeout/time.Millisecond))
		if perr != nil || n == 0 {
			unix.Close(fd)
			return -1, "", api.ErrConnectFailed
		}
		if serr, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR); gerr != nil || serr != 0 {
			unix.Close(fd)
			return -1, "", api.ErrConnectFailed
		}
	}

	return fd, net.JoinHostPort(ip.String(), strconv.Itoa(port)), nil
}
