package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/beacon/pkg/election"
	"github.com/cuemby/beacon/pkg/registry"
	"github.com/cuemby/beacon/pkg/topicstore"
	"github.com/cuemby/beacon/pkg/types"
	"github.com/cuemby/beacon/pkg/webhook"
)

func newTestServer(selfID types.BrokerID, peers map[types.BrokerID]types.PeerAddress) (*Server, *election.Election, *topicstore.Store) {
	reg := registry.New(selfID, peers)
	e := election.New(reg, nil, nil)
	store := topicstore.New()
	return New(reg, e, store, webhook.New()), e, store
}

func TestPublishAcceptsLocallyWhenSelfIsLeader(t *testing.T) {
	s, e, store := newTestServer(1, map[types.BrokerID]types.PeerAddress{1: "self"})
	e.OnLeaderAnnouncement(1)

	q := &recordingQueue{}
	store.AttachStream("weather", q)

	body := []byte(`{"topic":"weather","data":"sunny"}`)
	req := httptest.NewRequest(http.MethodPost, "/publish", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, q.pushed, 1)

	var got, want map[string]any
	require.NoError(t, json.Unmarshal([]byte(q.pushed[0]), &got))
	require.NoError(t, json.Unmarshal(body, &want))
	assert.Equal(t, want, got, "stream payload must match the published message verbatim, with no server-added fields")
}

func TestStreamReceivesPublishedMessage(t *testing.T) {
	s, e, store := newTestServer(1, map[types.BrokerID]types.PeerAddress{1: "self"})
	e.OnLeaderAnnouncement(1)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stream/traffic")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The stream attaches asynchronously; publish only once its queue is
	// registered so the message can't race past an empty queue set.
	deadline := time.Now().Add(2 * time.Second)
	for len(store.StreamQueues("traffic")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream queue never attached")
		}
		time.Sleep(10 * time.Millisecond)
	}

	body := []byte(`{"topic":"traffic","data":{"congestion":"high"},"priority":"high"}`)
	pub, err := http.Post(srv.URL+"/publish", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	pub.Body.Close()
	require.Equal(t, http.StatusOK, pub.StatusCode)

	scanner := bufio.NewScanner(resp.Body)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			event = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	require.NotEmpty(t, event, "stream produced no data frame")

	var got, want map[string]any
	require.NoError(t, json.Unmarshal([]byte(event), &got))
	require.NoError(t, json.Unmarshal(body, &want))
	assert.Equal(t, want, got)
}

func TestPublishForwardsToLeader(t *testing.T) {
	var gotBody []byte
	leader := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = readAll(r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer leader.Close()

	s, e, _ := newTestServer(1, map[types.BrokerID]types.PeerAddress{
		1: "self",
		2: types.PeerAddress(stripScheme(leader.URL)),
	})
	e.OnLeaderAnnouncement(2)

	body := []byte(`{"topic":"weather","data":"sunny"}`)
	req := httptest.NewRequest(http.MethodPost, "/publish", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(gotBody), "weather")
}

func TestPublishRejectsMissingTopic(t *testing.T) {
	s, e, _ := newTestServer(1, map[types.BrokerID]types.PeerAddress{1: "self"})
	e.OnLeaderAnnouncement(1)

	req := httptest.NewRequest(http.MethodPost, "/publish", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscribeSSERecordsRemoteAddr(t *testing.T) {
	s, _, store := newTestServer(1, nil)

	req := httptest.NewRequest(http.MethodPost, "/subscribe", bytes.NewReader([]byte(`{"topic":"weather","mode":"sse"}`)))
	req.RemoteAddr = "10.0.0.5:5555"
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, store.Subscribers("weather"), "10.0.0.5")
}

func TestSubscribeWebhookRequiresURL(t *testing.T) {
	s, _, _ := newTestServer(1, nil)

	req := httptest.NewRequest(http.MethodPost, "/subscribe", bytes.NewReader([]byte(`{"topic":"weather","mode":"webhook"}`)))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscribeRejectsUnsupportedMode(t *testing.T) {
	s, _, _ := newTestServer(1, nil)

	req := httptest.NewRequest(http.MethodPost, "/subscribe", bytes.NewReader([]byte(`{"topic":"weather","mode":"carrier-pigeon"}`)))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	s, _, _ := newTestServer(1, nil)

	req := httptest.NewRequest(http.MethodPost, "/unsubscribe", bytes.NewReader([]byte(`{"topic":"weather","mode":"webhook","url":"http://nope"}`)))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "not subscribed", resp["status"])
}

func TestGetLeaderReturnsNullWhenUnknown(t *testing.T) {
	s, _, _ := newTestServer(1, nil)

	req := httptest.NewRequest(http.MethodGet, "/get_leader", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Nil(t, resp["leader_id"])
}

func TestElectionRespondsOKOnlyWhenOutranking(t *testing.T) {
	s, _, _ := newTestServer(3, nil)

	req := httptest.NewRequest(http.MethodPost, "/election", bytes.NewReader([]byte(`{"broker_id":1}`)))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "OK", resp["response"])

	req = httptest.NewRequest(http.MethodPost, "/election", bytes.NewReader([]byte(`{"broker_id":5}`)))
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "NO", resp["response"])
}

func TestLeaderAnnouncementUpdatesCurrentLeader(t *testing.T) {
	s, e, _ := newTestServer(1, nil)

	req := httptest.NewRequest(http.MethodPost, "/leader", bytes.NewReader([]byte(`{"leader_id":9}`)))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, e.CurrentLeader())
	assert.Equal(t, types.BrokerID(9), *e.CurrentLeader())
}

func TestReadyReflectsLeaderState(t *testing.T) {
	s, e, _ := newTestServer(1, nil)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	e.OnLeaderAnnouncement(1)
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthAndPingReturnOK(t *testing.T) {
	s, _, _ := newTestServer(1, nil)

	for _, path := range []string{"/health", "/ping"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestLogsReturnsTopicSnapshot(t *testing.T) {
	s, e, store := newTestServer(1, map[types.BrokerID]types.PeerAddress{1: "self"})
	e.OnLeaderAnnouncement(1)
	store.Enqueue("weather", types.Message{Topic: "weather", Data: "sunny"}, types.PriorityLow)

	req := httptest.NewRequest(http.MethodGet, "/logs/weather", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Topic string           `json:"topic"`
		Logs  []map[string]any `json:"logs"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "weather", resp.Topic)
	require.Len(t, resp.Logs, 1)
}

type recordingQueue struct{ pushed []string }

func (q *recordingQueue) Push(payload string) { q.pushed = append(q.pushed, payload) }

func readAll(r *http.Request) ([]byte, error) {
	buf := new(bytes.Buffer)
	_, err := buf.ReadFrom(r.Body)
	return buf.Bytes(), err
}

func stripScheme(url string) string {
	url = strings.TrimPrefix(url, "http://")
	return strings.TrimPrefix(url, "https://")
}
