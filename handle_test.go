package tcpserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHandleValidityAndExpiry(t *testing.T) {
	c := &Connection{id: 5, uniqueID: 9, peerAddr: "1.2.3.4:80"}
	h := requestHandle(c)

	assert.True(t, h.Valid())
	assert.EqualValues(t, 5, h.ConnectionID())
	assert.EqualValues(t, 9, h.UniqueID())
	assert.Equal(t, "1.2.3.4:80", h.IPAddress())

	c.destroyed.Store(true)

	assert.False(t, h.Valid())
	assert.EqualValues(t, 0, h.ConnectionID())
	assert.EqualValues(t, 0, h.UniqueID())
	assert.Equal(t, "", h.IPAddress())
	assert.Equal(t, time.Time{}, h.CreationTime())
	assert.Equal(t, time.Time{}, h.Access())

	// No-ops, must not panic on an expired Handle.
	h.Write("anything")
	h.Close()
}

func TestZeroValueHandleIsExpired(t *testing.T) {
	var h Handle
	assert.False(t, h.Valid())
	assert.EqualValues(t, 0, h.ConnectionID())
}

func TestRequestHandleTracksLiveCount(t *testing.T) {
	c := &Connection{id: 1}
	assert.EqualValues(t, 0, c.GetNumberHandles())

	_ = requestHandle(c)
	assert.EqualValues(t, 1, c.GetNumberHandles())

	_ = requestHandle(c)
	assert.EqualValues(t, 2, c.GetNumberHandles())
}
