// Package probe implements a small HTTP liveness checker shared by the
// leadership module's health monitor and the CLI's cluster-status
// command — one Checker interface, two call sites.
package probe

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/beacon/pkg/transport"
)

// Result is the outcome of a single check.
type Result struct {
	Healthy  bool
	Message  string
	Duration time.Duration
}

// Checker performs a liveness probe against a peer.
type Checker interface {
	Check(ctx context.Context) Result
}

// HTTPChecker GETs a URL and considers the peer healthy iff the
// response status falls in [ExpectedStatusMin, ExpectedStatusMax].
type HTTPChecker struct {
	URL string

	// ExpectedStatusMin and ExpectedStatusMax bound the status codes
	// counted as healthy, inclusive.
	ExpectedStatusMin int
	ExpectedStatusMax int

	Client *http.Client
}

// NewHTTPChecker builds a checker accepting any 2xx or 3xx status.
func NewHTTPChecker(url string, timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{
		URL:               url,
		ExpectedStatusMin: 200,
		ExpectedStatusMax: 399,
		Client:            transport.NewClient(timeout),
	}
}

func (h *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return Result{Healthy: false, Message: fmt.Sprintf("build request: %v", err), Duration: time.Since(start)}
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return Result{Healthy: false, Message: fmt.Sprintf("request failed: %v", err), Duration: time.Since(start)}
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode >= h.ExpectedStatusMin && resp.StatusCode <= h.ExpectedStatusMax
	msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
	return Result{Healthy: healthy, Message: msg, Duration: time.Since(start)}
}
