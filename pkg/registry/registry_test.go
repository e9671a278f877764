package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/beacon/pkg/types"
)

func TestNewExcludesSelfFromPeers(t *testing.T) {
	r := New(2, map[types.BrokerID]types.PeerAddress{
		1: "broker:5001",
		2: "broker2:5001",
		3: "broker3:5001",
	})

	assert.Equal(t, types.BrokerID(2), r.SelfID())
	peers := r.Peers()
	assert.Len(t, peers, 2)
	assert.NotContains(t, peers, types.BrokerID(2))
}

func TestHigherPeers(t *testing.T) {
	r := New(2, map[types.BrokerID]types.PeerAddress{
		1: "broker:5001",
		2: "broker2:5001",
		3: "broker3:5001",
	})

	higher := r.HigherPeers()
	require.Len(t, higher, 1)
	assert.Contains(t, higher, types.BrokerID(3))
}

func TestAddressOf(t *testing.T) {
	r := New(1, map[types.BrokerID]types.PeerAddress{1: "a", 2: "b:5001"})

	addr, ok := r.AddressOf(2)
	require.True(t, ok)
	assert.Equal(t, types.PeerAddress("b:5001"), addr)

	_, ok = r.AddressOf(1)
	assert.False(t, ok, "self is excluded from lookups")

	_, ok = r.AddressOf(9)
	assert.False(t, ok)
}

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("BROKER_ID", "")
	t.Setenv("BEACON_PEERS", "")

	r, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, types.BrokerID(1), r.SelfID())
	assert.Equal(t, []types.BrokerID{2, 3}, r.IDs())
}

func TestFromEnvBrokerID(t *testing.T) {
	t.Setenv("BROKER_ID", "3")
	t.Setenv("BEACON_PEERS", "")

	r, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, types.BrokerID(3), r.SelfID())
	assert.Equal(t, []types.BrokerID{1, 2}, r.IDs())
}

func TestFromEnvRejectsBadBrokerID(t *testing.T) {
	t.Setenv("BROKER_ID", "zero")

	_, err := FromEnv()
	assert.Error(t, err)
}

func TestFromEnvPeerOverride(t *testing.T) {
	t.Setenv("BROKER_ID", "1")
	t.Setenv("BEACON_PEERS", "1=localhost:6001, 2=localhost:6002 ,3=localhost:6003")

	r, err := FromEnv()
	require.NoError(t, err)

	addr, ok := r.AddressOf(2)
	require.True(t, ok)
	assert.Equal(t, types.PeerAddress("localhost:6002"), addr)
	assert.Equal(t, []types.BrokerID{2, 3}, r.IDs())
}

func TestFromEnvRejectsMalformedPeerEntry(t *testing.T) {
	t.Setenv("BEACON_PEERS", "1:localhost:6001")

	_, err := FromEnv()
	assert.Error(t, err)
}
