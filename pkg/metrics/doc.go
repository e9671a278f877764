/*
Package metrics defines and registers beacon's Prometheus metrics.

The metrics package declares every counter, gauge, and histogram the
broker exports, registers them once at init, and provides the /metrics
scrape handler plus a small Timer helper for recording durations.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                           │
	│  ┌────────────────────────────────────────────┐          │
	│  │         Metric Definitions                  │          │
	│  │                                             │          │
	│  │  Leadership:                                │          │
	│  │    beacon_current_leader{broker_id}         │          │
	│  │    beacon_elections_started_total           │          │
	│  │    beacon_elections_won_total               │          │
	│  │    beacon_leader_health_check_failures_total│          │
	│  │                                             │          │
	│  │  Gossip:                                    │          │
	│  │    beacon_gossip_rounds_total               │          │
	│  │    beacon_gossip_peer_failures_total{peer}  │          │
	│  │                                             │          │
	│  │  Message path:                              │          │
	│  │    beacon_messages_published_total          │          │
	│  │      {topic, priority}                      │          │
	│  │    beacon_messages_forwarded_total          │          │
	│  │    beacon_webhook_delivery_failures_total   │          │
	│  │      {topic}                                │          │
	│  │                                             │          │
	│  │  Topic state:                               │          │
	│  │    beacon_topic_log_size{topic}             │          │
	│  │    beacon_topic_stream_queues{topic}        │          │
	│  │    beacon_topic_subscribers{topic}          │          │
	│  │                                             │          │
	│  │  Durations:                                 │          │
	│  │    beacon_publish_duration_seconds          │          │
	│  │    beacon_api_request_duration_seconds      │          │
	│  │      {route}                                │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Registration (init)                │          │
	│  │  prometheus.MustRegister(...) once          │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Exposure                           │          │
	│  │  GET /metrics via promhttp.Handler(),       │          │
	│  │  mounted by pkg/api                         │          │
	│  └────────────────────────────────────────────┘          │
	└───────────────────────────────────────────────────────────┘

# Update Sources

  - pkg/election increments election counters and rewrites the
    current-leader gauge on every leadership change.
  - pkg/gossip counts rounds and per-peer delivery failures.
  - pkg/topicstore updates the log-size gauge on each enqueue and the
    stream-queue gauge on each attach/detach; subscriber changes update
    no gauge there. pkg/broker recomputes all three per-topic gauges,
    subscribers included, on a 15s tick so gossip-merged state shows up
    without a local mutation event.
  - pkg/api times every route with the Timer helper.

# Usage

Recording a duration:

	timer := metrics.NewTimer()
	// ... do the work ...
	timer.ObserveDuration(metrics.PublishDuration)
	timer.ObserveDurationVec(metrics.APIRequestDuration, "publish")

Serving the scrape endpoint:

	mux.Handle("/metrics", metrics.Handler())

# See Also

  - pkg/api for the /metrics mount point
  - pkg/broker for the periodic gauge collection loop
*/
package metrics
