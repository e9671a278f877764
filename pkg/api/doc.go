/*
Package api implements beacon's HTTP surface: the message path, the
peer-to-peer control endpoints, and the operator endpoints.

The api package wires the broker's core components into one
net/http.ServeMux behind a single *http.Server. Everything is JSON over
HTTP/1.1; the only non-JSON responses are the text/event-stream push
streams.

# Architecture

	┌───────────────────── HTTP SURFACE ───────────────────────┐
	│                                                           │
	│  ┌────────────────────────────────────────────┐          │
	│  │              Message Path                   │          │
	│  │                                             │          │
	│  │  POST /publish                              │          │
	│  │    non-leader → forward to leader (2s),     │          │
	│  │      re-serialized response, no hop-by-hop  │          │
	│  │      headers passed through                 │          │
	│  │    leader → enqueue, log, drain, fan out    │          │
	│  │      to stream queues + webhooks            │          │
	│  │                                             │          │
	│  │  GET /stream/<topic>                        │          │
	│  │    attach unbounded queue, register         │          │
	│  │    subscriber, emit "data: <json>\n\n"      │          │
	│  │    frames until disconnect                  │          │
	│  │                                             │          │
	│  │  GET /logs/<topic>                          │          │
	│  │    {"topic": ..., "logs": [...]} ≤ 1000     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Subscription Surface              │          │
	│  │                                             │          │
	│  │  POST /subscribe    mode "sse" | "webhook"  │          │
	│  │  POST /unsubscribe  idempotent inverse      │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Peer Control Plane                 │          │
	│  │                                             │          │
	│  │  POST /election       Bully challenge       │          │
	│  │  POST /leader         announcement          │          │
	│  │  GET  /get_leader     {"leader_id": n|null} │          │
	│  │  POST /start_election operator hook         │          │
	│  │  POST /gossip         soft-state merge      │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Operator Endpoints                  │          │
	│  │                                             │          │
	│  │  GET /ping     liveness (peer probes)       │          │
	│  │  GET /health   200 OK                       │          │
	│  │  GET /ready    200 iff a leader is known    │          │
	│  │  GET /metrics  Prometheus scrape            │          │
	│  └────────────────────────────────────────────┘          │
	└───────────────────────────────────────────────────────────┘

# Request Flow

Publish on a non-leader:
 1. Read the raw body.
 2. currentLeader set and not self → POST the body unchanged to the
    leader's /publish with a 2s timeout.
 3. Relay the leader's status code and JSON body; hop-by-hop headers
    from the leader are dropped, only Content-Type is set.
 4. Forward failure → 500 with the underlying error string.

Publish on the leader (or with no leader known — best-effort local
acceptance):
 1. Decode, reject a missing topic with 400.
 2. Enqueue into the topic's priority queue and bounded log.
 3. Drain the topic (high before low) and push each serialized message
    onto every attached stream queue.
 4. Hand the drained messages to the webhook registry, detached from
    the request so slow endpoints never hold the response open.
 5. Return 200 with an empty body.

Stream handler per connection:
 1. Attach a fresh unbounded queue, record the remote address as
    subscribed, tag log lines with a per-connection id.
 2. Select on the connection context and the queue; write each payload
    as an SSE data frame and flush.
 3. On disconnect or write error: detach the queue, move the address
    to the unsubscribed set, close the queue.

# Usage

	srv := api.New(reg, electionInstance, store, webhooks)
	err := srv.ListenAndServe(ctx, ":5001")

Routes can also be exercised directly in tests via the composed mux:

	api.New(...).Handler().ServeHTTP(recorder, request)

# Error Handling

  - Input validation failures (missing topic, missing webhook url,
    unsupported mode) → 400 {"error": "..."}.
  - Forwarding failures → 500 with the error string.
  - Peer RPC failures inside election/gossip never surface here; only
    request-handler errors reach HTTP clients.

# See Also

  - pkg/topicstore for queue/log/membership state behind the handlers
  - pkg/fanout for the per-stream delivery queues
  - pkg/election and pkg/gossip for the control-plane endpoints' logic
  - pkg/webhook for webhook delivery after drain
*/
package api
