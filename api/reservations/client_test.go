package reservations

import (
	"context"
	"net"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/groundsched/core/schedule"
)

func clientFor(t *testing.T, url, token string) *Client {
	t.Helper()
	c, err := NewClient(strings.TrimPrefix(url, "http://"), token)
	require.NoError(t, err)
	return c
}

func TestClientAppendAndRemove(t *testing.T) {
	srv, store := newServer(t, schedule.NewMemoryPersistence(), nil, "tok")
	c := clientFor(t, srv.URL, "tok")
	ctx := context.Background()

	reqs, err := schedule.DecodeRequests(strings.NewReader(twoPasses), "json")
	require.NoError(t, err)
	m, err := c.Append(ctx, reqs)
	require.NoError(t, err)
	assert.True(t, m.Persisted)
	assert.Equal(t, []string{"low", "high"}, m.Added)
	assert.Len(t, store.Origin(), 2)

	m, err = c.Remove(ctx, "low", "high")
	require.NoError(t, err)
	assert.Equal(t, schedule.OpRemove, m.Operation)
	assert.ElementsMatch(t, []string{"low", "high"}, m.Removed)
	assert.Equal(t, uint64(2), m.Version, "both ids leave in one mutation")
	assert.Empty(t, store.Origin())
}

func TestClientMapsErrors(t *testing.T) {
	srv, _ := newServer(t, schedule.NewMemoryPersistence(), nil, "tok")
	ctx := context.Background()

	_, err := clientFor(t, srv.URL, "tok").Remove(ctx, "ghost")
	assert.ErrorIs(t, err, schedule.ErrNotFound)

	_, err = clientFor(t, srv.URL, "tok").Append(ctx, []schedule.Request{{ID: "x"}})
	assert.ErrorIs(t, err, schedule.ErrValidation)

	_, err = clientFor(t, srv.URL, "wrong").Remove(ctx, "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.False(t, Unreachable(err))
}

func TestClientUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c, err := NewClient(addr, "")
	require.NoError(t, err)
	_, err = c.Remove(context.Background(), "a")
	require.Error(t, err)
	assert.True(t, Unreachable(err))
}

func TestNewClientLocalHost(t *testing.T) {
	c, err := NewClient(":8080", "")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8080", c.base)

	c, err = NewClient("0.0.0.0:9000", "")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000", c.base)

	_, err = NewClient("nowhere", "")
	assert.Error(t, err)
}
