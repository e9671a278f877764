package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/beacon/pkg/types"
)

func TestSubscribeIsIdempotent(t *testing.T) {
	r := New()
	assert.True(t, r.Subscribe("weather", "http://a"))
	assert.False(t, r.Subscribe("weather", "http://a"))
	assert.Equal(t, []string{"http://a"}, r.URLs("weather"))
}

func TestUnsubscribeRemovesURL(t *testing.T) {
	r := New()
	r.Subscribe("weather", "http://a")
	assert.True(t, r.Unsubscribe("weather", "http://a"))
	assert.Empty(t, r.URLs("weather"))
	assert.False(t, r.Unsubscribe("weather", "http://a"))
}

func TestDeliverPostsToEveryRegisteredURL(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		var msg map[string]any
		_ = json.NewDecoder(r.Body).Decode(&msg)
		assert.Equal(t, "weather", msg["topic"])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New()
	r.Subscribe("weather", srv.URL)

	msg := types.Message{Topic: "weather", Data: "sunny"}
	r.Deliver(context.Background(), "weather", []types.Message{msg})

	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
}

func TestDeliverIgnoresFailuresForOtherURLs(t *testing.T) {
	var count int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&count, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New()
	r.Subscribe("weather", "http://127.0.0.1:1") // unroutable
	r.Subscribe("weather", srv.URL)

	r.Deliver(context.Background(), "weather", []types.Message{{Topic: "weather"}})

	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
}

func TestDeliverNoopWithoutSubscribers(t *testing.T) {
	r := New()
	// Should return immediately without panicking on a nil client use.
	r.Deliver(context.Background(), "missing", []types.Message{{Topic: "missing"}})
}
