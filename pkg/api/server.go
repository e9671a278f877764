package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/beacon/pkg/election"
	"github.com/cuemby/beacon/pkg/fanout"
	"github.com/cuemby/beacon/pkg/gossip"
	"github.com/cuemby/beacon/pkg/log"
	"github.com/cuemby/beacon/pkg/metrics"
	"github.com/cuemby/beacon/pkg/registry"
	"github.com/cuemby/beacon/pkg/topicstore"
	"github.com/cuemby/beacon/pkg/transport"
	"github.com/cuemby/beacon/pkg/types"
	"github.com/cuemby/beacon/pkg/webhook"
)

const forwardTimeout = 2 * time.Second

// Server wires the broker's core components into one HTTP route table.
type Server struct {
	reg      *registry.Registry
	election *election.Election
	store    *topicstore.Store
	webhooks *webhook.Registry

	httpClient *http.Client
	logger     zerolog.Logger
	mux        *http.ServeMux
}

// New builds a Server. election and store must be non-nil; webhooks may
// be nil, in which case /subscribe with mode "webhook" is rejected.
func New(reg *registry.Registry, e *election.Election, store *topicstore.Store, webhooks *webhook.Registry) *Server {
	s := &Server{
		reg:        reg,
		election:   e,
		store:      store,
		webhooks:   webhooks,
		httpClient: transport.NewClient(forwardTimeout),
		logger:     log.WithComponent("api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/publish", s.withTimer("publish", s.handlePublish))
	mux.HandleFunc("/subscribe", s.withTimer("subscribe", s.handleSubscribe))
	mux.HandleFunc("/unsubscribe", s.withTimer("unsubscribe", s.handleUnsubscribe))
	mux.HandleFunc("/stream/", s.handleStream)
	mux.HandleFunc("/gossip", s.withTimer("gossip", s.handleGossip))
	mux.HandleFunc("/election", s.withTimer("election", s.handleElection))
	mux.HandleFunc("/leader", s.withTimer("leader", s.handleLeader))
	mux.HandleFunc("/get_leader", s.withTimer("get_leader", s.handleGetLeader))
	mux.HandleFunc("/start_election", s.withTimer("start_election", s.handleStartElection))
	mux.HandleFunc("/ping", s.withTimer("ping", s.handlePing))
	mux.HandleFunc("/health", s.withTimer("health", s.handleHealth))
	mux.HandleFunc("/ready", s.withTimer("ready", s.handleReady))
	mux.HandleFunc("/logs/", s.handleLogs)
	mux.Handle("/metrics", metrics.Handler())
	s.mux = mux

	return s
}

// Handler returns the composed mux for embedding in an *http.Server.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) withTimer(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		h(w, r)
		timer.ObserveDurationVec(metrics.APIRequestDuration, route)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handlePublish forwards to the leader if self isn't it, otherwise
// accepts locally (enqueue, log, drain, fan out).
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	leader := s.election.CurrentLeader()
	if leader != nil && !s.election.IsSelfLeader() {
		s.forwardPublish(w, r.Context(), *leader, body)
		return
	}

	var msg types.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid message body")
		return
	}
	if msg.Topic == "" {
		writeError(w, http.StatusBadRequest, "missing topic")
		return
	}

	timer := metrics.NewTimer()
	priority := types.ParsePriority(msg.Priority)
	s.store.Enqueue(msg.Topic, msg, priority)

	drained := s.store.Drain(msg.Topic)
	s.fanOut(msg.Topic, drained)
	timer.ObserveDuration(metrics.PublishDuration)

	w.WriteHeader(http.StatusOK)
}

// forwardPublish relays the raw request body to leaderID's /publish and
// re-serializes its response (status code + JSON body only) rather than
// piping the response verbatim, so hop-by-hop headers from the leader
// are never leaked to this broker's caller.
func (s *Server) forwardPublish(w http.ResponseWriter, ctx context.Context, leaderID types.BrokerID, body []byte) {
	addr, ok := s.reg.AddressOf(leaderID)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("unknown leader address for broker %d", leaderID))
		return
	}

	metrics.MessagesForwarded.Inc()
	reqCtx, cancel := context.WithTimeout(ctx, forwardTimeout)
	defer cancel()

	url := fmt.Sprintf("http://%s/publish", addr)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build forward request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Warn().Err(err).Int("leader_id", int(leaderID)).Msg("publish forward failed")
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("forward to leader failed: %v", err))
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read leader response")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(respBody)
}

func (s *Server) fanOut(topic string, msgs []types.Message) {
	if len(msgs) == 0 {
		return
	}

	payloads := make([]string, 0, len(msgs))
	for _, m := range msgs {
		encoded, err := json.Marshal(m)
		if err != nil {
			continue
		}
		payloads = append(payloads, string(encoded))
	}

	fanout.Fanout(s.store.StreamQueues(topic), payloads)

	// Webhook delivery runs detached from the request: it is best-effort
	// like stream fan-out, and a slow webhook endpoint must not hold the
	// publisher's response open. The pool inside Deliver bounds its own
	// concurrency and each POST carries its own timeout.
	if s.webhooks != nil {
		go s.webhooks.Deliver(context.Background(), topic, msgs)
	}
}

type subscribeRequest struct {
	Topic string `json:"topic"`
	Mode  string `json:"mode"`
	URL   string `json:"url"`
}

// handleSubscribe records a subscription intent: mode "sse" records the
// caller's remote address; mode "webhook" (or a missing mode with a
// url) records a webhook URL.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Topic == "" {
		writeError(w, http.StatusBadRequest, "missing topic")
		return
	}

	switch req.Mode {
	case "sse":
		s.store.AddSubscriber(req.Topic, remoteAddr(r))
		writeJSON(w, http.StatusOK, map[string]string{"status": "subscribed"})
		return
	case "", "webhook":
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported mode %q", req.Mode))
		return
	}

	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "missing url for webhook subscription")
		return
	}
	if s.webhooks == nil {
		writeError(w, http.StatusBadRequest, "webhook subscriptions are not supported")
		return
	}
	s.webhooks.Subscribe(req.Topic, req.URL)
	writeJSON(w, http.StatusOK, map[string]string{"status": "subscribed"})
}

// handleUnsubscribe is the idempotent inverse of handleSubscribe: an
// unknown address or url still returns 200.
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Topic == "" {
		writeError(w, http.StatusBadRequest, "missing topic")
		return
	}

	if req.Mode == "sse" {
		s.store.RemoveSubscriber(req.Topic, remoteAddr(r))
		writeJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
		return
	}

	removed := false
	if s.webhooks != nil {
		removed = s.webhooks.Unsubscribe(req.Topic, req.URL)
	}
	if !removed {
		writeJSON(w, http.StatusOK, map[string]string{"status": "not subscribed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}

func remoteAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// handleStream opens a push-stream for /stream/<topic>: an unbounded
// fanout.Queue is attached to the topic and every payload pushed onto
// it is written as an SSE "data:" frame until the client disconnects.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	topic := strings.TrimPrefix(r.URL.Path, "/stream/")
	if topic == "" {
		writeError(w, http.StatusBadRequest, "missing topic")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	connID := uuid.NewString()
	addr := remoteAddr(r)
	logger := s.logger.With().Str("conn_id", connID).Str("topic", topic).Str("addr", addr).Logger()
	logger.Debug().Msg("stream attached")

	q := fanout.NewQueue()
	s.store.AttachStream(topic, q)
	s.store.AddSubscriber(topic, addr)
	defer func() {
		s.store.DetachStream(topic, q)
		s.store.RemoveSubscriber(topic, addr)
		q.Close()
		logger.Debug().Msg("stream detached")
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-q.Out():
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleGossip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if err := gossip.Receive(s.store, body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid gossip payload")
		return
	}
	writeJSON(w, http.StatusOK, "OK")
}

func (s *Server) handleElection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req struct {
		BrokerID int `json:"broker_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp := s.election.OnElectionMessage(types.BrokerID(req.BrokerID))
	writeJSON(w, http.StatusOK, map[string]string{"response": resp})
}

func (s *Server) handleLeader(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req struct {
		LeaderID int `json:"leader_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.election.OnLeaderAnnouncement(types.BrokerID(req.LeaderID))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetLeader(w http.ResponseWriter, r *http.Request) {
	leader := s.election.CurrentLeader()
	if leader == nil {
		writeJSON(w, http.StatusOK, map[string]any{"leader_id": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leader_id": int(*leader)})
}

func (s *Server) handleStartElection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	go s.election.StartElection()
	writeJSON(w, http.StatusOK, map[string]string{"status": "election started"})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports 200 iff a leader (self or other) is currently
// known, and 503 otherwise.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.election.CurrentLeader() == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "message": "no leader elected"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	topic := strings.TrimPrefix(r.URL.Path, "/logs/")
	if topic == "" {
		writeError(w, http.StatusBadRequest, "missing topic")
		return
	}
	logs := s.store.SnapshotLog(topic)
	writeJSON(w, http.StatusOK, map[string]any{"topic": topic, "logs": logs})
}

// ListenAndServe starts the HTTP server on addr and blocks until ctx is
// cancelled, at which point it shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 0, // SSE streams are long-lived
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
