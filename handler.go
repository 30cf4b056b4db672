package tcpserver

import "github.com/reachingisaskill/TCPServer/api"

// EventHandler is the application-supplied callback set a Manager
// dispatches every lifecycle notification through. Every method call is
// wrapped in a recover so a panicking implementation cannot take down a
// worker's event loop; see Manager.safeInvoke.
type EventHandler interface {
	// OnStart fires once, from Run, after the workers, the listener (if
	// any) and the tick loop have been started.
	OnStart()

	// OnStop fires once, after every worker has joined and the
	// ConnectionMap is empty, immediately before Run returns.
	OnStop()

	// OnRead delivers one payload deserialized from handle's Connection.
	// Ownership of payload transfers to this call.
	OnRead(handle Handle, payload api.Payload)

	// OnWrite fires after each write-readiness pass that ends without an
	// I/O error, whether or not the outbound queue was fully drained.
	OnWrite(handle Handle)

	// OnConnectionEvent delivers a per-Connection lifecycle transition.
	// text is empty except for DisconnectError and SerializationError.
	OnConnectionEvent(handle Handle, event api.ConnectionEvent, text string)

	// OnEvent delivers a process-wide notification not tied to any one
	// Connection.
	OnEvent(event api.ServerEvent, text string)

	// OnTick fires on the Manager's tick cadence; elapsedMs is the time
	// since the previous tick fired.
	OnTick(elapsedMs int64)

	// OnTimer fires when a timer registered via Manager.AddTimer expires.
	OnTimer(id int64)

	// BuildSerializer is called exactly once per new Connection, on the
	// goroutine that accepted or dialed it.
	BuildSerializer() api.Serializer
}

// NoopEventHandler implements every EventHandler method as a no-op. Embed
// it to implement only the callbacks a particular application cares about.
type NoopEventHandler struct{}

func (NoopEventHandler) OnStart() {}
func (NoopEventHandler) OnStop()  {}
func (NoopEventHandler) OnRead(Handle, api.Payload)                            {}
func (NoopEventHandler) OnWrite(Handle)                                        {}
func (NoopEventHandler) OnConnectionEvent(Handle, api.ConnectionEvent, string) {}
func (NoopEventHandler) OnEvent(api.ServerEvent, string)                       {}
func (NoopEventHandler) OnTick(int64)                                          {}
func (NoopEventHandler) OnTimer(int64)                                         {}
