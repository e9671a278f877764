// Package topicstore owns the per-topic state the broker needs to
// accept and replay messages: the high/low priority queues awaiting
// fan-out, the bounded inspection log, attached stream queues, and the
// gossiped subscriber membership sets. Every operation is safe for
// concurrent use; critical sections do no I/O.
package topicstore

import (
	"sync"

	"github.com/cuemby/beacon/pkg/metrics"
	"github.com/cuemby/beacon/pkg/types"
)

// LogCap is the maximum number of messages retained per topic for
// /logs/<topic> inspection.
const LogCap = 1000

// StreamQueue is anything a fan-out engine can push a serialized
// message onto. pkg/fanout supplies the concrete implementation; this
// package only needs the narrow interface to avoid an import cycle.
type StreamQueue interface {
	Push(payload string)
}

type topicState struct {
	mu sync.Mutex

	pendingHigh []types.Message
	pendingLow  []types.Message
	log         []types.Message

	streamQueues map[StreamQueue]struct{}

	sseSubscribers  map[string]struct{}
	sseUnsubscribed map[string]struct{}
}

func newTopicState() *topicState {
	return &topicState{
		streamQueues:    make(map[StreamQueue]struct{}),
		sseSubscribers:  make(map[string]struct{}),
		sseUnsubscribed: make(map[string]struct{}),
	}
}

// Store holds one topicState per topic, created on first reference.
type Store struct {
	mu     sync.Mutex
	topics map[string]*topicState
}

// New returns an empty Store.
func New() *Store {
	return &Store{topics: make(map[string]*topicState)}
}

func (s *Store) topic(name string) *topicState {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.topics[name]
	if !ok {
		t = newTopicState()
		s.topics[name] = t
	}
	return t
}

// Enqueue appends msg to the priority queue for topic and to its log,
// evicting the oldest log entry once the log exceeds LogCap (FIFO
// eviction, bounding the log at LogCap entries).
func (s *Store) Enqueue(topic string, msg types.Message, priority types.Priority) {
	t := s.topic(topic)

	t.mu.Lock()
	if priority == types.PriorityHigh {
		t.pendingHigh = append(t.pendingHigh, msg)
	} else {
		t.pendingLow = append(t.pendingLow, msg)
	}
	t.log = append(t.log, msg)
	if len(t.log) > LogCap {
		t.log = t.log[len(t.log)-LogCap:]
	}
	logLen := len(t.log)
	t.mu.Unlock()

	metrics.MessagesPublished.WithLabelValues(topic, string(priority)).Inc()
	metrics.TopicLogSize.WithLabelValues(topic).Set(float64(logLen))
}

// Drain atomically returns every pending message for topic, high
// priority first, and empties both queues. Messages accepted in the
// same Enqueue burst preserve their high-before-low ordering; across
// separate publish calls, acceptance order is preserved because a
// publish drains synchronously before returning.
func (s *Store) Drain(topic string) []types.Message {
	t := s.topic(topic)

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.pendingHigh) == 0 && len(t.pendingLow) == 0 {
		return nil
	}

	out := make([]types.Message, 0, len(t.pendingHigh)+len(t.pendingLow))
	out = append(out, t.pendingHigh...)
	out = append(out, t.pendingLow...)
	t.pendingHigh = nil
	t.pendingLow = nil
	return out
}

// AttachStream registers q as a fan-out destination for topic.
func (s *Store) AttachStream(topic string, q StreamQueue) {
	t := s.topic(topic)
	t.mu.Lock()
	t.streamQueues[q] = struct{}{}
	count := len(t.streamQueues)
	t.mu.Unlock()
	metrics.TopicStreamQueues.WithLabelValues(topic).Set(float64(count))
}

// DetachStream removes q; called when its owning connection ends.
func (s *Store) DetachStream(topic string, q StreamQueue) {
	t := s.topic(topic)
	t.mu.Lock()
	delete(t.streamQueues, q)
	count := len(t.streamQueues)
	t.mu.Unlock()
	metrics.TopicStreamQueues.WithLabelValues(topic).Set(float64(count))
}

// StreamQueues returns a snapshot of the queues currently attached to
// topic, for the fan-out engine to push onto outside any lock.
func (s *Store) StreamQueues(topic string) []StreamQueue {
	t := s.topic(topic)
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]StreamQueue, 0, len(t.streamQueues))
	for q := range t.streamQueues {
		out = append(out, q)
	}
	return out
}

// AddSubscriber records addr as believed-attached to topic, discarding
// it from the unsubscribed set. The two sets stay disjoint.
func (s *Store) AddSubscriber(topic, addr string) {
	t := s.topic(topic)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sseSubscribers[addr] = struct{}{}
	delete(t.sseUnsubscribed, addr)
}

// RemoveSubscriber moves addr from subscribed to unsubscribed.
func (s *Store) RemoveSubscriber(topic, addr string) {
	t := s.topic(topic)
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sseSubscribers, addr)
	t.sseUnsubscribed[addr] = struct{}{}
}

// SnapshotLog returns a copy of topic's bounded log.
func (s *Store) SnapshotLog(topic string) []types.Message {
	t := s.topic(topic)
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.Message, len(t.log))
	copy(out, t.log)
	return out
}

// GossipSnapshot returns, for topic, the addresses to advertise as
// subscribed (local subscribers minus local unsubscribed) and the
// addresses to advertise as unsubscribed, for inclusion in an outbound
// gossip payload.
func (s *Store) GossipSnapshot(topic string) (subscribed, unsubscribed []string) {
	t := s.topic(topic)
	t.mu.Lock()
	defer t.mu.Unlock()

	for addr := range t.sseSubscribers {
		if _, gone := t.sseUnsubscribed[addr]; !gone {
			subscribed = append(subscribed, addr)
		}
	}
	for addr := range t.sseUnsubscribed {
		unsubscribed = append(unsubscribed, addr)
	}
	return subscribed, unsubscribed
}

// MergeGossip applies an inbound gossip update for topic: subscribed
// addresses are added to sseSubscribers and discarded from
// sseUnsubscribed, then unsubscribed addresses are added to
// sseUnsubscribed and discarded from sseSubscribers — subscribers
// applied first, unsubscribes second, so an address present in both
// lists ends up unsubscribed.
func (s *Store) MergeGossip(topic string, subscribed, unsubscribed []string) {
	t := s.topic(topic)
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, addr := range subscribed {
		t.sseSubscribers[addr] = struct{}{}
		delete(t.sseUnsubscribed, addr)
	}
	for _, addr := range unsubscribed {
		t.sseUnsubscribed[addr] = struct{}{}
		delete(t.sseSubscribers, addr)
	}
}

// ClearUnsubscribed empties topic's sseUnsubscribed set. Called once a
// gossip round has been attempted against every peer, since those
// addresses have now been propagated and no longer need advertising.
func (s *Store) ClearUnsubscribed(topic string) {
	t := s.topic(topic)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sseUnsubscribed = make(map[string]struct{})
}

// Subscribers returns a snapshot of topic's believed-attached address
// set (local observations union gossiped state).
func (s *Store) Subscribers(topic string) []string {
	t := s.topic(topic)
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.sseSubscribers))
	for addr := range t.sseSubscribers {
		out = append(out, addr)
	}
	return out
}

// Unsubscribed returns a snapshot of topic's recently-detached set.
func (s *Store) Unsubscribed(topic string) []string {
	t := s.topic(topic)
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.sseUnsubscribed))
	for addr := range t.sseUnsubscribed {
		out = append(out, addr)
	}
	return out
}

// Topics returns every topic name the store has seen, for metrics
// collection and diagnostics.
func (s *Store) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.topics))
	for name := range s.topics {
		out = append(out, name)
	}
	return out
}
