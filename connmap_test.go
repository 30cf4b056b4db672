package tcpserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionMapAddGetRemove(t *testing.T) {
	cm := newConnectionMap()
	assert.Equal(t, 0, cm.count())

	c := &Connection{id: 42}
	cm.add(c)
	assert.Equal(t, 1, cm.count())

	got, ok := cm.get(42)
	require.True(t, ok)
	assert.Same(t, c, got)

	_, ok = cm.get(7)
	assert.False(t, ok)

	cm.remove(42)
	assert.Equal(t, 0, cm.count())
	_, ok = cm.get(42)
	assert.False(t, ok)
}

func TestConnIDStringer(t *testing.T) {
	assert.Equal(t, "123", connID(123).String())
}
