// Package webhook stores (topic, url) webhook subscriptions and, after
// each drain, posts the drained messages to every registered URL for
// that topic with bounded concurrency so a topic with many webhooks
// cannot open unbounded outbound connections.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cuemby/beacon/pkg/log"
	"github.com/cuemby/beacon/pkg/metrics"
	"github.com/cuemby/beacon/pkg/transport"
	"github.com/cuemby/beacon/pkg/types"
)

const (
	deliveryTimeout    = 3 * time.Second
	maxConcurrentPosts = 8
)

// Registry stores webhook subscriptions per topic.
type Registry struct {
	mu   sync.Mutex
	subs map[string][]string // topic -> urls, insertion order, no dupes
}

// New returns an empty webhook Registry.
func New() *Registry {
	return &Registry{subs: make(map[string][]string)}
}

// Subscribe appends url to topic's webhook list if it isn't already
// present. Returns true if it was newly added.
func (r *Registry) Subscribe(topic, url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.subs[topic] {
		if existing == url {
			return false
		}
	}
	r.subs[topic] = append(r.subs[topic], url)
	return true
}

// Unsubscribe removes url from topic's webhook list. Returns true if
// it was present.
func (r *Registry) Unsubscribe(topic, url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	urls := r.subs[topic]
	for i, existing := range urls {
		if existing == url {
			r.subs[topic] = append(urls[:i], urls[i+1:]...)
			return true
		}
	}
	return false
}

// URLs returns a snapshot of topic's registered webhook URLs.
func (r *Registry) URLs(topic string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.subs[topic]))
	copy(out, r.subs[topic])
	return out
}

// Deliver posts each of msgs to every URL registered for topic, with
// up to maxConcurrentPosts in flight. Failures are logged and recorded
// as metrics; they never propagate to the caller, matching the
// best-effort delivery contract the rest of the fan-out path uses.
func (r *Registry) Deliver(ctx context.Context, topic string, msgs []types.Message) {
	urls := r.URLs(topic)
	if len(urls) == 0 || len(msgs) == 0 {
		return
	}

	logger := log.WithComponent("webhook")
	client := transport.NewClient(deliveryTimeout)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrentPosts)

	for _, url := range urls {
		for _, msg := range msgs {
			url, msg := url, msg
			eg.Go(func() error {
				if err := post(egCtx, client, url, msg); err != nil {
					logger.Warn().Err(err).Str("url", url).Str("topic", topic).Msg("webhook delivery failed")
					metrics.WebhookDeliveryFailures.WithLabelValues(topic).Inc()
				}
				return nil
			})
		}
	}
	_ = eg.Wait()
}

func post(ctx context.Context, client *http.Client, url string, msg types.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}
