// Package broker composes the peer registry, election, gossip, topic
// store, and HTTP surface into one running process, and owns the
// background loops (gossip round, leader health monitor, delayed
// startup election, periodic gauge collection).
package broker

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/beacon/pkg/api"
	"github.com/cuemby/beacon/pkg/election"
	"github.com/cuemby/beacon/pkg/gossip"
	"github.com/cuemby/beacon/pkg/log"
	"github.com/cuemby/beacon/pkg/metrics"
	"github.com/cuemby/beacon/pkg/registry"
	"github.com/cuemby/beacon/pkg/topicstore"
	"github.com/cuemby/beacon/pkg/webhook"
)

// gaugeCollectionInterval governs how often per-topic subscriber/stream
// gauges are recomputed from the topic store, independent of the
// push-on-mutation updates pkg/topicstore already performs, so that a
// gossip-merged subscriber shows up in /metrics even without a local
// mutation event.
const gaugeCollectionInterval = 15 * time.Second

// Broker is one running beacon process.
type Broker struct {
	Registry *registry.Registry
	Election *election.Election
	Gossip   *gossip.Gossip
	Store    *topicstore.Store
	Webhooks *webhook.Registry
	API      *api.Server

	addr string
}

// New builds a Broker bound to the given listen address, wiring every
// component over a shared registry and topic store.
func New(reg *registry.Registry, addr string) *Broker {
	store := topicstore.New()
	webhooks := webhook.New()

	b := &Broker{
		Registry: reg,
		Store:    store,
		Webhooks: webhooks,
		addr:     addr,
	}

	b.Gossip = gossip.New(reg, store)
	b.Election = election.New(reg, nil, b.Gossip)
	b.API = api.New(reg, b.Election, store, webhooks)

	return b
}

// Run starts every background loop and the HTTP server, blocking until
// ctx is cancelled, at which point everything shuts down and Run
// returns.
func (b *Broker) Run(ctx context.Context) error {
	logger := log.WithBrokerID("broker", int(b.Registry.SelfID()))
	logger.Info().Str("addr", b.addr).Msg("starting broker")

	// The background loops gate on this derived context so that a server
	// startup failure (bind error, port in use) unwinds them too, instead
	// of leaving Run stuck waiting on loops only the caller's ctx could
	// have stopped.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Gossip.Loop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Election.HealthMonitorLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Election.RunStartupElection(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.collectGaugesLoop(ctx)
	}()

	err := b.API.ListenAndServe(ctx, b.addr)
	cancel()
	wg.Wait()

	logger.Info().Msg("broker stopped")
	return err
}

func (b *Broker) collectGaugesLoop(ctx context.Context) {
	ticker := time.NewTicker(gaugeCollectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.collectGauges()
		case <-ctx.Done():
			return
		}
	}
}

func (b *Broker) collectGauges() {
	for _, topic := range b.Store.Topics() {
		metrics.TopicSubscribers.WithLabelValues(topic).Set(float64(len(b.Store.Subscribers(topic))))
		metrics.TopicStreamQueues.WithLabelValues(topic).Set(float64(len(b.Store.StreamQueues(topic))))
		metrics.TopicLogSize.WithLabelValues(topic).Set(float64(len(b.Store.SnapshotLog(topic))))
	}
}
