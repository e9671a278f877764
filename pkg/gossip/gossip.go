package gossip

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cuemby/beacon/pkg/log"
	"github.com/cuemby/beacon/pkg/metrics"
	"github.com/cuemby/beacon/pkg/registry"
	"github.com/cuemby/beacon/pkg/topicstore"
	"github.com/cuemby/beacon/pkg/transport"
	"github.com/cuemby/beacon/pkg/types"
)

const (
	gossipInterval    = 10 * time.Second
	gossipPeerTimeout = 3 * time.Second
	suspectThreshold  = 5
)

// payload is the wire shape POSTed to /gossip.
type payload struct {
	SSESubscribers map[string][]string `json:"sse_subscribers"`
	Unsubscribed   map[string][]string `json:"unsubscribed"`
}

// Gossip runs the periodic bi-directional subscriber-state exchange.
type Gossip struct {
	reg   *registry.Registry
	store *topicstore.Store

	httpClient *http.Client

	mu       sync.Mutex
	failures map[types.BrokerID]int
}

// New builds a Gossip instance over store, using reg for peer addresses.
func New(reg *registry.Registry, store *topicstore.Store) *Gossip {
	return &Gossip{
		reg:        reg,
		store:      store,
		httpClient: transport.NewClient(gossipPeerTimeout),
		failures:   make(map[types.BrokerID]int),
	}
}

// Loop runs one gossip round every 10s until ctx is cancelled.
func (g *Gossip) Loop(ctx context.Context) {
	ticker := time.NewTicker(gossipInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.round(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// round builds the outbound payload, POSTs it to every known peer in
// parallel, and clears sseUnsubscribed once every peer has been
// attempted (success or failure), so a round that fails against a peer
// never blocks the unsubscribe set from being retired locally.
func (g *Gossip) round(ctx context.Context) {
	logger := log.WithComponent("gossip")
	peers := g.reg.Peers()
	if len(peers) == 0 {
		return
	}

	body := g.buildPayload()
	encoded, err := json.Marshal(body)
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode gossip payload")
		return
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for id, addr := range peers {
		id, addr := id, addr
		eg.Go(func() error {
			g.sendTo(egCtx, id, addr, encoded)
			return nil
		})
	}
	_ = eg.Wait()

	for topic := range body.Unsubscribed {
		g.store.ClearUnsubscribed(topic)
	}
	metrics.GossipRoundsTotal.Inc()
}

func (g *Gossip) buildPayload() payload {
	subs := make(map[string][]string)
	unsubs := make(map[string][]string)

	for _, topic := range g.store.Topics() {
		subscribed, unsubscribed := g.store.GossipSnapshot(topic)
		if len(subscribed) > 0 {
			subs[topic] = subscribed
		}
		if len(unsubscribed) > 0 {
			unsubs[topic] = unsubscribed
		}
	}

	return payload{SSESubscribers: subs, Unsubscribed: unsubs}
}

func (g *Gossip) sendTo(ctx context.Context, id types.BrokerID, addr types.PeerAddress, body []byte) {
	logger := log.WithComponent("gossip")

	reqCtx, cancel := context.WithTimeout(ctx, gossipPeerTimeout)
	defer cancel()

	url := fmt.Sprintf("http://%s/gossip", addr)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		g.recordFailure(id)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		logger.Warn().Err(err).Int("peer_id", int(id)).Msg("gossip round failed")
		metrics.GossipPeerFailures.WithLabelValues(fmt.Sprintf("%d", id)).Inc()
		g.recordFailure(id)
		return
	}
	defer resp.Body.Close()

	g.mu.Lock()
	delete(g.failures, id)
	g.mu.Unlock()
}

func (g *Gossip) recordFailure(id types.BrokerID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[id]++
}

// Suspect reports whether id has failed gossip delivery for
// suspectThreshold consecutive rounds. This is advisory only: id stays
// in the static peer table and is still gossiped and announced to as
// normal. pkg/election uses it to leave a suspect peer out of its
// challenge targets unless every higher peer is suspect.
func (g *Gossip) Suspect(id types.BrokerID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures[id] >= suspectThreshold
}

// Receive applies an inbound gossip payload to store: union-merge
// subscribers, then union-merge unsubscribes, so an address present in
// both lists ends up unsubscribed (unsubscribe wins, last write per
// address per round).
func Receive(store *topicstore.Store, body []byte) error {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return err
	}

	for topic, addrs := range p.SSESubscribers {
		store.MergeGossip(topic, addrs, nil)
	}
	for topic, addrs := range p.Unsubscribed {
		store.MergeGossip(topic, nil, addrs)
	}
	return nil
}
