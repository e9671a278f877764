// Package registry holds the static broker peer table: who this
// process is, and the addresses of its peers. It is populated once at
// startup and is read by every other component.
package registry

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/cuemby/beacon/pkg/types"
)

// defaultPeers mirrors the compiled-in three-broker Compose topology
// from the original deployment: {1: broker:5001, 2: broker2:5001,
// 3: broker3:5001}.
var defaultPeers = map[types.BrokerID]types.PeerAddress{
	1: "broker:5001",
	2: "broker2:5001",
	3: "broker3:5001",
}

// Registry is the immutable (after startup) peer table for one broker
// process.
type Registry struct {
	self  types.BrokerID
	peers map[types.BrokerID]types.PeerAddress
}

// New builds a Registry for selfID from a full id->address table
// (including self, which is filtered out of Peers()).
func New(selfID types.BrokerID, all map[types.BrokerID]types.PeerAddress) *Registry {
	peers := make(map[types.BrokerID]types.PeerAddress, len(all))
	for id, addr := range all {
		if id == selfID {
			continue
		}
		peers[id] = addr
	}
	return &Registry{self: selfID, peers: peers}
}

// FromEnv builds a Registry from BROKER_ID (default 1) and, if set, a
// BEACON_PEERS override of the form "id=host:port,id=host:port,...".
// With BEACON_PEERS unset this reproduces the compiled-in table exactly.
func FromEnv() (*Registry, error) {
	selfID := types.BrokerID(1)
	if raw := os.Getenv("BROKER_ID"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid BROKER_ID %q: %w", raw, err)
		}
		selfID = types.BrokerID(n)
	}

	all := defaultPeers
	if raw := os.Getenv("BEACON_PEERS"); raw != "" {
		parsed, err := parsePeers(raw)
		if err != nil {
			return nil, err
		}
		all = parsed
	}

	// Self is added to the table if it's not one of the entries; New
	// filters it out again, so Peers() and AddressOf() never include it.
	if _, ok := all[selfID]; !ok {
		all = cloneWithSelf(all, selfID)
	}

	return New(selfID, all), nil
}

func cloneWithSelf(all map[types.BrokerID]types.PeerAddress, self types.BrokerID) map[types.BrokerID]types.PeerAddress {
	out := make(map[types.BrokerID]types.PeerAddress, len(all)+1)
	for k, v := range all {
		out[k] = v
	}
	out[self] = "localhost:5001"
	return out
}

func parsePeers(raw string) (map[types.BrokerID]types.PeerAddress, error) {
	out := make(map[types.BrokerID]types.PeerAddress)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid BEACON_PEERS entry %q, want id=host:port", entry)
		}
		id, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid broker id in %q: %w", entry, err)
		}
		out[types.BrokerID(id)] = types.PeerAddress(strings.TrimSpace(parts[1]))
	}
	return out, nil
}

// SelfID returns this broker's id.
func (r *Registry) SelfID() types.BrokerID { return r.self }

// Peers returns a copy of the peer table, excluding self.
func (r *Registry) Peers() map[types.BrokerID]types.PeerAddress {
	out := make(map[types.BrokerID]types.PeerAddress, len(r.peers))
	for k, v := range r.peers {
		out[k] = v
	}
	return out
}

// AddressOf looks up a peer's address. The bool is false if id is
// unknown (including self, which is intentionally excluded).
func (r *Registry) AddressOf(id types.BrokerID) (types.PeerAddress, bool) {
	addr, ok := r.peers[id]
	return addr, ok
}

// HigherPeers returns the subset of peers with an id greater than
// self's — the set a Bully election challenges. The result is a map and
// carries no order.
func (r *Registry) HigherPeers() map[types.BrokerID]types.PeerAddress {
	out := make(map[types.BrokerID]types.PeerAddress)
	for id, addr := range r.peers {
		if id > r.self {
			out[id] = addr
		}
	}
	return out
}

// IDs returns every known peer id (excluding self) in ascending order.
// Useful for deterministic logging and test fixtures.
func (r *Registry) IDs() []types.BrokerID {
	ids := make([]types.BrokerID, 0, len(r.peers))
	for id := range r.peers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
