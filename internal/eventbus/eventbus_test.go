package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mutation struct {
	Version uint64
}

func TestBusPublishSubscribe(t *testing.T) {
	bus := New[mutation]()
	a := bus.Subscribe()
	b := bus.Subscribe()
	bus.Publish(mutation{Version: 1})

	assert.Equal(t, uint64(1), (<-a).Version)
	assert.Equal(t, uint64(1), (<-b).Version)
	bus.Unsubscribe(a)
	_, ok := <-a
	assert.False(t, ok, "unsubscribed channel should be closed")
}

func TestBusDropsOnFullBuffer(t *testing.T) {
	bus := NewWithBuffer[mutation](1)
	ch := bus.Subscribe()
	bus.Publish(mutation{Version: 1})
	bus.Publish(mutation{Version: 2})

	require.Len(t, ch, 1)
	assert.Equal(t, uint64(1), (<-ch).Version)
	assert.Equal(t, uint64(1), bus.Dropped())
}

func TestBusClose(t *testing.T) {
	bus := New[mutation]()
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	bus.Close()
	bus.Close()
	_, ok := <-ch1
	assert.False(t, ok)
	_, ok = <-ch2
	assert.False(t, ok)

	late := bus.Subscribe()
	_, ok = <-late
	assert.False(t, ok, "subscribe after close returns a closed channel")
	assert.NotPanics(t, func() { bus.Publish(mutation{}) })
}

func TestBusUnsubscribeAfterClose(t *testing.T) {
	bus := New[mutation]()
	ch := bus.Subscribe()
	bus.Close()
	assert.NotPanics(t, func() { bus.Unsubscribe(ch) })
}
