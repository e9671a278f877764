// Package fanout implements the per-stream delivery mailboxes that
// carry published messages from the topic store's drain step out to
// each connected push-stream client: a publish is the one producer, a
// stream handler is the one consumer of its own mailbox. A stream's
// mailbox must never drop a message under backpressure — a slow SSE
// client still owes its subscriber every message in order — so each
// mailbox is backed by an unbounded channel rather than a fixed-size
// buffer.
package fanout

import (
	infinity "github.com/Code-Hex/go-infinity-channel"

	"github.com/cuemby/beacon/pkg/log"
	"github.com/cuemby/beacon/pkg/topicstore"
)

// Queue is a single connection's unbounded delivery mailbox. The
// publish path is the only producer; the owning stream handler is the
// only consumer.
type Queue struct {
	ch *infinity.Channel[string]
}

// NewQueue creates an empty, unbounded mailbox.
func NewQueue() *Queue {
	return &Queue{ch: infinity.NewChannel[string]()}
}

// Push enqueues a serialized payload. Never blocks: the only failure
// mode is pushing onto a queue whose handler has already closed it.
// The stream handler detaches its queue from pkg/topicstore before
// closing it, but a publish that took its snapshot of the queues
// earlier can still push afterwards; that push is dropped.
func (q *Queue) Push(payload string) {
	defer func() {
		// A push racing a Close (stream handler exiting concurrently
		// with an in-flight publish) closes the channel out from
		// under us; treat it as the handler no longer wanting this
		// message rather than crashing the publisher.
		if r := recover(); r != nil {
			logger := log.WithComponent("fanout")
			logger.Warn().Msg("push onto a closed stream queue, dropping")
		}
	}()
	q.ch.In() <- payload
}

// Recv blocks until a payload is available or the queue is closed, in
// which case ok is false.
func (q *Queue) Recv() (payload string, ok bool) {
	payload, ok = <-q.ch.Out()
	return payload, ok
}

// Out exposes the consumer side of the mailbox so the stream handler
// can select on it alongside its connection context, instead of
// blocking in Recv past a silent client disconnect.
func (q *Queue) Out() <-chan string {
	return q.ch.Out()
}

// Close stops the mailbox. Called once by the owning stream handler
// when its connection ends.
func (q *Queue) Close() {
	q.ch.Close()
}

// Fanout pushes each of msgs onto every queue in queues. A push panic
// from one queue (see Queue.Push) is recovered and logged without
// affecting delivery to the others, so one stuck or closing consumer
// never blocks delivery to the rest.
func Fanout(queues []topicstore.StreamQueue, msgs []string) {
	for _, q := range queues {
		for _, msg := range msgs {
			q.Push(msg)
		}
	}
}
