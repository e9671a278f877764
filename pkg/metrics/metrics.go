package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CurrentLeader holds a single series, set to 1, labelled with the
	// broker id currently believed to be leader; the vector is reset on
	// every leadership change, so no series remains for other ids.
	// Labelled by broker_id so the full cluster view can be
	// reconstructed by scraping every peer.
	CurrentLeader = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "beacon_current_leader",
			Help: "Set to 1 for the broker_id this broker considers the current leader",
		},
		[]string{"broker_id"},
	)

	ElectionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_elections_started_total",
			Help: "Total number of Bully elections started by this broker",
		},
	)

	ElectionsWon = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_elections_won_total",
			Help: "Total number of elections this broker declared itself leader for",
		},
	)

	HealthCheckFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_leader_health_check_failures_total",
			Help: "Total number of failed /ping probes against the believed leader",
		},
	)

	GossipRoundsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_gossip_rounds_total",
			Help: "Total number of outbound gossip rounds completed",
		},
	)

	GossipPeerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_gossip_peer_failures_total",
			Help: "Total number of failed gossip POSTs by peer",
		},
		[]string{"peer"},
	)

	MessagesPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_messages_published_total",
			Help: "Total number of messages accepted on this broker by topic and priority",
		},
		[]string{"topic", "priority"},
	)

	MessagesForwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "beacon_messages_forwarded_total",
			Help: "Total number of /publish requests forwarded to the leader",
		},
	)

	WebhookDeliveryFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_webhook_delivery_failures_total",
			Help: "Total number of failed webhook deliveries by topic",
		},
		[]string{"topic"},
	)

	TopicLogSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "beacon_topic_log_size",
			Help: "Current number of entries retained in a topic's bounded log",
		},
		[]string{"topic"},
	)

	TopicStreamQueues = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "beacon_topic_stream_queues",
			Help: "Current number of attached stream queues by topic",
		},
		[]string{"topic"},
	)

	TopicSubscribers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "beacon_topic_subscribers",
			Help: "Current number of believed-attached SSE subscriber addresses by topic",
		},
		[]string{"topic"},
	)

	PublishDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "beacon_publish_duration_seconds",
			Help:    "Time to enqueue, drain, and fan out a single /publish call",
			Buckets: prometheus.DefBuckets,
		},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "beacon_api_request_duration_seconds",
			Help:    "HTTP handler duration by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(
		CurrentLeader,
		ElectionsStarted,
		ElectionsWon,
		HealthCheckFailures,
		GossipRoundsTotal,
		GossipPeerFailures,
		MessagesPublished,
		MessagesForwarded,
		WebhookDeliveryFailures,
		TopicLogSize,
		TopicStreamQueues,
		TopicSubscribers,
		PublishDuration,
		APIRequestDuration,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a small helper for timing an operation and recording it to
// a histogram when done.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labelled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
