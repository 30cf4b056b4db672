package tcpserver

import (
	"strconv"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// connID wraps a ConnectionID so it can key a Stringer-based concurrent
// map, following the same wrapper-around-an-integer-key shape sketched in
// the connection manager this repo family carries.
type connID uint64

func (c connID) String() string { return strconv.FormatUint(uint64(c), 10) }

// connectionMap is the Manager's sole record of live Connections. Only
// Manager goroutines mutate it; WorkerLoops hold event registrations
// pointing into Connections, never a reference to the map itself.
type connectionMap struct {
	m cmap.ConcurrentMap[connID, *Connection]
}

func newConnectionMap() *connectionMap {
	return &connectionMap{m: cmap.NewStringer[connID, *Connection]()}
}

func (cm *connectionMap) add(c *Connection) {
	cm.m.Set(connID(c.id), c)
}

func (cm *connectionMap) remove(id uint64) {
	cm.m.Remove(connID(id))
}

func (cm *connectionMap) get(id uint64) (*Connection, bool) {
	return cm.m.Get(connID(id))
}

func (cm *connectionMap) count() int {
	return cm.m.Count()
}

// closeAll requests every live Connection close, used by Shutdown when
// ConnectionCloseOnShutdown is set and by Abort unconditionally.
func (cm *connectionMap) closeAll() {
	for _, c := range cm.m.Items() {
		c.close()
	}
}

// forEach visits a snapshot of every live Connection, used by the
// Manager's timeoutLoop to check idle deadlines without holding the map
// locked for the duration of each check.
func (cm *connectionMap) forEach(fn func(*Connection)) {
	for _, c := range cm.m.Items() {
		fn(c)
	}
}
