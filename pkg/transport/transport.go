// Package transport provides the one shared HTTP client constructor
// used for every peer-to-peer RPC (election challenges, leader
// announcements, gossip rounds, publish forwarding, webhook delivery,
// and the CLI's cluster-status probes), so timeout policy lives in one
// place instead of being re-declared at each call site.
package transport

import (
	"net/http"
	"time"
)

// NewClient returns an *http.Client with no connection reuse surprises
// beyond the stdlib defaults and the given per-request timeout.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
