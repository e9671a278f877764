/*
Package election implements Bully-style leader election for beacon's broker cluster.

The election package decides which of the statically configured peers is
allowed to accept writes into the topic logs. It challenges every
higher-id peer, self-announces when none answer, adopts announcements
from stronger peers, and runs the background health monitor that
re-triggers an election when the believed leader stops answering /ping.

# Architecture

Beacon's leadership module is a small mutex-guarded state machine plus
two background tasks:

	┌──────────────────── LEADERSHIP MODULE ───────────────────┐
	│                                                           │
	│  ┌────────────────────────────────────────────┐          │
	│  │              Election State                 │          │
	│  │  - currentLeader (nil until first result)   │          │
	│  │  - electionOngoing flag (idempotent guard)  │          │
	│  │  - announceSeq (fresh-announcement marker)  │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Election Round                   │          │
	│  │                                             │          │
	│  │  StartElection()                            │          │
	│  │       ↓                                     │          │
	│  │  challenge higher peers (parallel, 2s each) │          │
	│  │       ↓                                     │          │
	│  │  join responses (3s cap)                    │          │
	│  │       ↓                                     │          │
	│  │  any OK? ──no──→ announceSelf()             │          │
	│  │       │yes                                  │          │
	│  │  wait for announcement (5s, poll 500ms)     │          │
	│  │       ↓                                     │          │
	│  │  adopt it, or announceSelf() on timeout     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Background Tasks                  │          │
	│  │                                             │          │
	│  │  HealthMonitorLoop: every 5s GET            │          │
	│  │    http://<leader>/ping (2s timeout);       │          │
	│  │    any failure → StartElection()            │          │
	│  │                                             │          │
	│  │  RunStartupElection: 5s grace period        │          │
	│  │    after process start, then first          │          │
	│  │    election (staggers cold starts)          │          │
	│  └────────────────────────────────────────────┘          │
	└───────────────────────────────────────────────────────────┘

# Core Components

Election:
  - One instance per broker process
  - Holds currentLeader behind a mutex, exposed via CurrentLeader()
  - Challenge/announce RPCs always issued outside the lock
  - Invokes a LeaderUpdateFunc callback on every leadership change

Responder (OnElectionMessage):
  - Answers "OK" iff this broker's id outranks the challenger's
  - Never starts its own election in response to a challenge; a losing
    challenger either sees an announcement or notices leader loss on
    its own next health check

Announcement handler (OnLeaderAnnouncement):
  - Unconditionally adopts the announced id, last write wins
  - No version numbers or terms
  - Bumps announceSeq so an in-flight election round can tell a fresh
    announcement apart from a stale currentLeader left over from before
    the round started

SuspectChecker:
  - Optional narrow interface satisfied by *gossip.Gossip
  - A peer that has missed several consecutive gossip rounds is skipped
    when picking challenge targets, so a round doesn't wait out a dead
    peer's RPC timeout
  - Advisory only: if every higher peer is suspect they are all
    challenged anyway

# Election Flow

 1. StartElection() returns immediately if a round is already running.
 2. Higher-id peers are challenged in parallel with POST /election
    {"broker_id": <self>}, 2s per request, joined after at most 3s.
 3. A peer answers {"response": "OK"} iff it outranks the sender.
 4. No OK received: this broker announces itself with POST /leader
    {"leader_id": <self>} to every peer, sets currentLeader, fires the
    update callback.
 5. At least one OK: wait up to 5s, polling every 500ms, for a fresh
    announcement to arrive; adopt whatever it names. If nothing
    arrives (the stronger peer answered OK and then died), fall back
    to self-announcement.

# Usage

Wiring an election into a broker process:

	reg, _ := registry.FromEnv()
	e := election.New(reg, func(leader types.BrokerID) {
		// react to leadership changes
	}, gossipInstance)

	go e.HealthMonitorLoop(ctx)
	go e.RunStartupElection(ctx)

Serving the peer-facing endpoints (see pkg/api for the HTTP glue):

	resp := e.OnElectionMessage(senderID) // "OK" or "NO"
	e.OnLeaderAnnouncement(leaderID)
	leader := e.CurrentLeader()           // nil until first result

# Failure Handling

  - A challenge that errors or times out counts as "no OK" from that
    peer; the protocol treats an unreachable peer and a weaker peer
    identically.
  - Announcement delivery failures are logged and ignored; a peer that
    missed the announcement discovers the leader via its own health
    monitor and the next election.
  - All recoverable errors are absorbed here and logged; nothing
    propagates to HTTP clients.

# Limitations

  - No terms or epochs: two peers that self-announce concurrently are
    resolved by whichever announcement lands last at each peer, and the
    health monitors converge the survivors afterwards.
  - The responder never counter-elects, a deliberate simplification of
    textbook Bully; see DESIGN.md for the rationale.

# See Also

  - pkg/gossip for the suspect signal fed into candidate selection
  - pkg/probe for the /ping checker the health monitor uses
  - pkg/api for the /election, /leader, /get_leader endpoints
*/
package election
