package tcpserver

import (
	"sync"
	"testing"
	"time"

	"github.com/eapache/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachingisaskill/TCPServer/api"
	"github.com/reachingisaskill/TCPServer/buffer"
	"github.com/reachingisaskill/TCPServer/internal/reactor"
)

// identitySerializer is the simplest possible Serializer: every Payload
// is a []byte, and Deserialize hands back exactly the bytes it was given,
// with no framing. Sufficient for the single-write echo scenario, not a
// multi-message protocol.
type identitySerializer struct {
	payloads *queue.Queue
	buffers  *queue.Queue
}

func newIdentitySerializer() api.Serializer {
	return &identitySerializer{payloads: queue.New(), buffers: queue.New()}
}

func (s *identitySerializer) Serialize(p api.Payload) {
	b := buffer.New()
	b.PushChunk(p.([]byte))
	s.buffers.Add(b)
}

func (s *identitySerializer) Deserialize(data []byte) {
	cp := append([]byte(nil), data...)
	s.payloads.Add(cp)
}

func (s *identitySerializer) GetPayload() (api.Payload, bool) {
	if s.payloads.Length() == 0 {
		return nil, false
	}
	return s.payloads.Remove(), true
}

func (s *identitySerializer) PayloadEmpty() bool { return s.payloads.Length() == 0 }

func (s *identitySerializer) GetBuffer() (*buffer.Buffer, bool) {
	if s.buffers.Length() == 0 {
		return nil, false
	}
	return s.buffers.Remove().(*buffer.Buffer), true
}

func (s *identitySerializer) BufferEmpty() bool         { return s.buffers.Length() == 0 }
func (s *identitySerializer) GetError() (string, bool) { return "", false }
func (s *identitySerializer) ErrorEmpty() bool          { return true }

// recordingHandler is a minimal EventHandler that funnels reads, connect
// events and server events onto channels a test can select on.
type recordingHandler struct {
	NoopEventHandler

	mu    sync.Mutex
	reads [][]byte

	readCh    chan []byte
	connectCh chan Handle
	eventCh   chan api.ServerEvent
	timeoutCh chan Handle
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		readCh:    make(chan []byte, 8),
		connectCh: make(chan Handle, 8),
		eventCh:   make(chan api.ServerEvent, 8),
		timeoutCh: make(chan Handle, 8),
	}
}

func (h *recordingHandler) OnRead(handle Handle, payload api.Payload) {
	b := payload.([]byte)
	h.mu.Lock()
	h.reads = append(h.reads, b)
	h.mu.Unlock()
	select {
	case h.readCh <- b:
	default:
	}
}

func (h *recordingHandler) OnConnectionEvent(handle Handle, event api.ConnectionEvent, text string) {
	switch event {
	case api.Connect:
		select {
		case h.connectCh <- handle:
		default:
		}
	case api.Timeout:
		select {
		case h.timeoutCh <- handle:
		default:
		}
	}
}

func (h *recordingHandler) OnEvent(event api.ServerEvent, text string) {
	select {
	case h.eventCh <- event:
	default:
	}
}

func (h *recordingHandler) BuildSerializer() api.Serializer { return newIdentitySerializer() }

// echoBackHandler wraps recordingHandler and writes every payload it
// receives straight back to its sender, for the server side of the echo
// scenario.
type echoBackHandler struct {
	*recordingHandler
}

func (h *echoBackHandler) OnRead(handle Handle, payload api.Payload) {
	h.recordingHandler.OnRead(handle, payload)
	handle.Write(payload)
}

// TestEchoSingleClient exercises scenario 1 from spec §8: a client writes
// "Hello" and its next OnRead receives "Hello" back.
func TestEchoSingleClient(t *testing.T) {
	serverCfg := api.DefaultConfig(17007)
	serverCfg.RequestListener = true
	serverCfg.NumThreads = 1
	serverCfg.RequestSignalHandler = false
	server, err := NewManager(serverCfg, &echoBackHandler{recordingHandler: newRecordingHandler()})
	require.NoError(t, err)
	go server.Run()
	defer server.Abort()
	time.Sleep(50 * time.Millisecond) // let the listener bind

	clientCfg := api.DefaultConfig(0)
	clientCfg.NumThreads = 1
	clientCfg.RequestSignalHandler = false
	clientHandler := newRecordingHandler()
	client, err := NewManager(clientCfg, clientHandler)
	require.NoError(t, err)
	go client.Run()
	defer client.Abort()

	client.ConnectTo("127.0.0.1", "17007")

	var handle Handle
	select {
	case handle = <-clientHandler.connectCh:
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
	}

	handle.Write([]byte("Hello"))

	select {
	case got := <-clientHandler.readCh:
		assert.Equal(t, []byte("Hello"), got)
	case <-time.After(2 * time.Second):
		t.Fatal("never received echo")
	}
}

// TestConnectFailureEmitsRequestConnectFail exercises scenario 4: an
// unresolvable host produces onEvent(RequestConnectFail) and no Connect.
func TestConnectFailureEmitsRequestConnectFail(t *testing.T) {
	h := newRecordingHandler()
	cfg := api.DefaultConfig(0)
	cfg.RequestSignalHandler = false
	m, err := NewManager(cfg, h)
	require.NoError(t, err)
	go m.Run()
	defer m.Abort()

	m.ConnectTo("no.such.invalid.host.example.invalid", "1")

	select {
	case event := <-h.eventCh:
		assert.Equal(t, api.RequestConnectFail, event)
	case <-time.After(3 * time.Second):
		t.Fatal("expected RequestConnectFail")
	}

	select {
	case <-h.connectCh:
		t.Fatal("unexpected Connect event on a failed connect")
	default:
	}
}

// TestGracefulShutdownReturnsFromRun exercises scenario 2 with zero
// connections: Shutdown makes Run return without the death timer firing.
func TestGracefulShutdownReturnsFromRun(t *testing.T) {
	cfg := api.DefaultConfig(0)
	cfg.RequestSignalHandler = false
	m, err := NewManager(cfg, newRecordingHandler())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_ = m.Run()
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	m.Shutdown()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
}

// TestConnectionIDsAreUnique exercises the ID-uniqueness property from
// spec §8 without needing a running Manager.
func TestConnectionIDsAreUnique(t *testing.T) {
	m := &Manager{}
	seen := make(map[uint64]bool, 1000)
	for i := 0; i < 1000; i++ {
		id := m.nextConnectionID()
		assert.False(t, seen[id])
		seen[id] = true
	}
}

// TestConnectionTimeoutFiresWithoutClosing exercises spec §5/§7: an idle
// connection whose ReadTimeout/WriteTimeout elapses receives Timeout, and
// remains open (the server's ConnectionMap still holds it).
func TestConnectionTimeoutFiresWithoutClosing(t *testing.T) {
	serverCfg := api.DefaultConfig(17008)
	serverCfg.RequestListener = true
	serverCfg.NumThreads = 1
	serverCfg.RequestSignalHandler = false
	serverCfg.ReadTimeout = 60 * time.Millisecond
	serverCfg.WriteTimeout = 60 * time.Millisecond
	serverHandler := newRecordingHandler()
	server, err := NewManager(serverCfg, &echoBackHandler{recordingHandler: serverHandler})
	require.NoError(t, err)
	go server.Run()
	defer server.Abort()
	time.Sleep(50 * time.Millisecond)

	clientCfg := api.DefaultConfig(0)
	clientCfg.NumThreads = 1
	clientCfg.RequestSignalHandler = false
	clientHandler := newRecordingHandler()
	client, err := NewManager(clientCfg, clientHandler)
	require.NoError(t, err)
	go client.Run()
	defer client.Abort()

	client.ConnectTo("127.0.0.1", "17008")
	select {
	case <-clientHandler.connectCh:
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
	}

	select {
	case <-serverHandler.timeoutCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server side never observed a Timeout event")
	}

	assert.Equal(t, 1, server.GetNumberConnections(), "Timeout must not close the connection")
}

// TestReloadTickParamsAppliesLiveConfig exercises the Manager's own
// OnReload subscription: pushing minTickTime/tickTimeModifier through
// ConfigStore().Set changes what tickInterval computes next.
func TestReloadTickParamsAppliesLiveConfig(t *testing.T) {
	cfg := api.DefaultConfig(0)
	cfg.MinTickTime = time.Second
	cfg.TickTimeModifier = 1.0
	m, err := NewManager(cfg, newRecordingHandler())
	require.NoError(t, err)

	before := m.tickInterval()
	assert.Equal(t, time.Second, before)

	m.ConfigStore().Set(map[string]any{
		"minTickTime":      2 * time.Second,
		"tickTimeModifier": 0.0,
	})

	after := m.tickInterval()
	assert.Equal(t, 2*time.Second, after)
}

// TestRoundRobinFairness exercises the round-robin fairness property from
// spec §8: with N workers and K connections, assignment counts differ by
// at most 1.
func TestRoundRobinFairness(t *testing.T) {
	m := &Manager{}
	const numWorkers = 4
	for i := 0; i < numWorkers; i++ {
		w, err := reactor.NewWorkerLoop(i, time.Second, nil)
		require.NoError(t, err)
		go w.Run()
		defer w.Stop()
		m.workers = append(m.workers, w)
	}

	counts := make(map[int]int)
	const total = 100
	for i := 0; i < total; i++ {
		w := m.pickWorker()
		counts[w.ID()]++
	}

	max, min := 0, total
	for _, c := range counts {
		if c > max {
			max = c
		}
		if c < min {
			min = c
		}
	}
	assert.LessOrEqual(t, max-min, 1)
}
