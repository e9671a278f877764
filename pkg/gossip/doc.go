/*
Package gossip converges subscriber soft state across beacon's broker peers.

The gossip package periodically exchanges each broker's view of which
subscriber addresses are attached to which topics, so that whichever
peer is promoted to leader already knows who is listening. There is no
consensus here: losing a round is tolerable, membership is advisory,
and the authoritative delivery path is always the leader's live stream
queues.

# Architecture

Each broker runs one gossip loop against the static peer table:

	┌───────────────────── GOSSIP MODULE ──────────────────────┐
	│                                                           │
	│  ┌────────────────────────────────────────────┐          │
	│  │             Gossip Round (10s)              │          │
	│  │                                             │          │
	│  │  snapshot topic store under its lock        │          │
	│  │       ↓                                     │          │
	│  │  build payload:                             │          │
	│  │    sse_subscribers: subscribed \ unsubs     │          │
	│  │    unsubscribed:    non-empty sets only     │          │
	│  │       ↓                                     │          │
	│  │  POST /gossip to every peer in parallel     │          │
	│  │  (errgroup, 3s per peer)                    │          │
	│  │       ↓                                     │          │
	│  │  clear local unsubscribed sets              │          │
	│  │  (every peer attempted, success or not)     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Receive (/gossip)                │          │
	│  │                                             │          │
	│  │  apply sse_subscribers first:               │          │
	│  │    add to subscribers, drop from unsubs     │          │
	│  │  then apply unsubscribed:                   │          │
	│  │    add to unsubs, drop from subscribers     │          │
	│  │  (unsubscribe wins per address per round)   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Failure Tracking                  │          │
	│  │                                             │          │
	│  │  consecutive delivery failures per peer;    │          │
	│  │  5 misses → Suspect(id) == true             │          │
	│  │  any success resets the counter             │          │
	│  └────────────────────────────────────────────┘          │
	└───────────────────────────────────────────────────────────┘

# Wire Format

The payload POSTed to /gossip every round:

	{
	  "sse_subscribers": { "traffic": ["10.0.0.5", "10.0.0.9"] },
	  "unsubscribed":    { "traffic": ["10.0.0.7"] }
	}

Addresses advertised as subscribed are the local subscriber set minus
the local unsubscribed set; unsubscribed entries are included only for
topics where the set is non-empty.

# Convergence Model

  - Union-merge in both directions; subscribers applied before
    unsubscribes so an address present in both ends up unsubscribed.
  - No vector clocks: a late-arriving subscribe can resurrect a
    just-unsubscribed address. The next local disconnect re-enters it
    into the unsubscribed set, and delivery never consults the gossiped
    sets anyway.
  - The sender clears its unsubscribed sets once a round has been
    attempted against every peer; a peer that missed the round simply
    keeps its stale entry until a later round corrects it.

# Usage

	g := gossip.New(reg, store)
	go g.Loop(ctx)

	// peer-facing receive side, wired by pkg/api:
	err := gossip.Receive(store, requestBody)

	// advisory liveness signal, consumed by pkg/election:
	down := g.Suspect(peerID)

# Limitations

  - Eventually consistent only; no ordering or causality guarantees.
  - A partitioned peer's subscriber view drifts until the partition
    heals; nothing reconciles beyond the periodic rounds.
  - Suspect() never removes a peer from the static table — membership
    is fixed at startup.

# See Also

  - pkg/topicstore for the sets this package snapshots and merges
  - pkg/election for the Suspect() consumer
  - pkg/api for the /gossip endpoint
*/
package gossip
