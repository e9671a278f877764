package broker

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/beacon/pkg/registry"
	"github.com/cuemby/beacon/pkg/types"
)

func TestNewWiresComponentsConsistently(t *testing.T) {
	reg := registry.New(1, map[types.BrokerID]types.PeerAddress{1: "self", 2: "peer:5001"})
	b := New(reg, "127.0.0.1:0")

	assert.NotNil(t, b.Election)
	assert.NotNil(t, b.Gossip)
	assert.NotNil(t, b.Store)
	assert.NotNil(t, b.Webhooks)
	assert.NotNil(t, b.API)
	assert.Equal(t, types.BrokerID(1), b.Registry.SelfID())
}

func TestRunShutsDownOnContextCancel(t *testing.T) {
	reg := registry.New(1, map[types.BrokerID]types.PeerAddress{1: "self"})
	b := New(reg, "127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestRunReturnsWhenListenFails(t *testing.T) {
	// Occupy a port so the broker's bind fails immediately.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	reg := registry.New(1, map[types.BrokerID]types.PeerAddress{1: "self"})
	b := New(reg, l.Addr().String())

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run must return the bind error instead of hanging on its background loops")
	}
}

func TestCollectGaugesDoesNotPanicOnEmptyStore(t *testing.T) {
	reg := registry.New(1, nil)
	b := New(reg, "127.0.0.1:0")
	require.NotPanics(t, b.collectGauges)
}
