package election

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/beacon/pkg/log"
	"github.com/cuemby/beacon/pkg/metrics"
	"github.com/cuemby/beacon/pkg/probe"
	"github.com/cuemby/beacon/pkg/registry"
	"github.com/cuemby/beacon/pkg/transport"
	"github.com/cuemby/beacon/pkg/types"
)

const (
	electionRequestTimeout = 2 * time.Second
	electionJoinTimeout    = 3 * time.Second
	announceTimeout        = 2 * time.Second
	announceWaitTimeout    = 5 * time.Second
	announceWaitPoll       = 500 * time.Millisecond
	healthCheckInterval    = 5 * time.Second
	healthCheckTimeout     = 2 * time.Second
	startupGracePeriod     = 5 * time.Second
)

// LeaderUpdateFunc is invoked whenever currentLeader changes, whether
// by local self-announcement or by an incoming /leader request.
type LeaderUpdateFunc func(leader types.BrokerID)

// SuspectChecker reports whether a peer has missed enough consecutive
// gossip rounds to be considered probably down. *gossip.Gossip
// satisfies this; it is declared here, narrowly, so pkg/election never
// has to import pkg/gossip.
type SuspectChecker interface {
	Suspect(id types.BrokerID) bool
}

// Election runs the Bully protocol for one broker process.
type Election struct {
	reg      *registry.Registry
	logger   zerolog.Logger
	onLead   LeaderUpdateFunc
	suspects SuspectChecker

	httpClient *http.Client

	// Overridable in tests so the announcement wait doesn't run out the
	// real multi-second protocol windows.
	announceWait time.Duration
	announcePoll time.Duration

	mu              sync.Mutex
	currentLeader   *types.BrokerID
	electionOngoing bool
	announceSeq     uint64
}

// New builds an Election for reg's self id. onLead and suspects may
// both be nil; with no SuspectChecker every higher peer is challenged
// unconditionally.
func New(reg *registry.Registry, onLead LeaderUpdateFunc, suspects SuspectChecker) *Election {
	if onLead == nil {
		onLead = func(types.BrokerID) {}
	}
	return &Election{
		reg:          reg,
		logger:       log.WithComponent("election"),
		onLead:       onLead,
		suspects:     suspects,
		httpClient:   transport.NewClient(electionJoinTimeout),
		announceWait: announceWaitTimeout,
		announcePoll: announceWaitPoll,
	}
}

// CurrentLeader returns the believed leader, or nil if none is known.
func (e *Election) CurrentLeader() *types.BrokerID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentLeader
}

// IsSelfLeader reports whether this broker currently believes it is
// the leader.
func (e *Election) IsSelfLeader() bool {
	l := e.CurrentLeader()
	return l != nil && *l == e.reg.SelfID()
}

// candidatePeers returns the higher-ranked peers to challenge this
// round. A peer flagged suspect by the SuspectChecker is skipped as a
// minor optimization to avoid waiting out its RPC timeout when it has
// already missed several consecutive gossip rounds; it stays in the
// registry and is challenged again on the next election once it's no
// longer suspect, or immediately if no non-suspect higher peer exists.
func (e *Election) candidatePeers() map[types.BrokerID]types.PeerAddress {
	higher := e.reg.HigherPeers()
	if e.suspects == nil || len(higher) == 0 {
		return higher
	}

	candidates := make(map[types.BrokerID]types.PeerAddress, len(higher))
	for id, addr := range higher {
		if !e.suspects.Suspect(id) {
			candidates[id] = addr
		}
	}
	if len(candidates) == 0 {
		return higher
	}
	return candidates
}

// StartElection runs the Bully protocol from this broker. Idempotent:
// a second call while an election is already running returns
// immediately (step 1 of the protocol).
func (e *Election) StartElection() {
	e.mu.Lock()
	if e.electionOngoing {
		e.mu.Unlock()
		e.logger.Debug().Msg("election already in progress, ignoring")
		return
	}
	e.electionOngoing = true
	// Announcements arriving any time after this point count as fresh;
	// a stale currentLeader left over from before the election does not.
	seqBefore := e.announceSeq
	e.mu.Unlock()

	metrics.ElectionsStarted.Inc()
	self := e.reg.SelfID()
	higher := e.candidatePeers()
	e.logger.Info().Int("higher_peer_count", len(higher)).Msg("starting election")

	if len(higher) == 0 {
		e.announceSelf()
		return
	}

	type outcome struct {
		ok bool
	}
	results := make(chan outcome, len(higher))

	var wg sync.WaitGroup
	for id, addr := range higher {
		wg.Add(1)
		go func(peerID types.BrokerID, peerAddr types.PeerAddress) {
			defer wg.Done()
			ok := e.challenge(peerID, peerAddr, self)
			results <- outcome{ok: ok}
		}(id, addr)
	}

	joinDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(joinDone)
	}()

	select {
	case <-joinDone:
	case <-time.After(electionJoinTimeout):
		e.logger.Warn().Msg("timed out waiting for all election responses")
	}

	anyOK := false
loop:
	for {
		select {
		case res := <-results:
			if res.ok {
				anyOK = true
			}
		default:
			break loop
		}
	}

	if !anyOK {
		e.announceSelf()
		return
	}

	e.logger.Info().Msg("higher peer alive, waiting for leader announcement")

	deadline := time.Now().Add(e.announceWait)
	for time.Now().Before(deadline) {
		e.mu.Lock()
		announced := e.announceSeq != seqBefore
		leader := e.currentLeader
		if announced {
			e.electionOngoing = false
		}
		e.mu.Unlock()
		if announced && leader != nil {
			e.logger.Info().Int("leader_id", int(*leader)).Msg("adopted announced leader")
			return
		}
		time.Sleep(e.announcePoll)
	}

	e.logger.Warn().Msg("no announcement arrived, announcing self")
	e.announceSelf()
}

// challenge POSTs /election to one higher peer and reports whether it
// answered OK (i.e. considers itself stronger).
func (e *Election) challenge(peerID types.BrokerID, addr types.PeerAddress, selfID types.BrokerID) bool {
	ctx, cancel := context.WithTimeout(context.Background(), electionRequestTimeout)
	defer cancel()

	body, _ := json.Marshal(map[string]int{"broker_id": int(selfID)})
	url := fmt.Sprintf("http://%s/election", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.logger.Warn().Err(err).Int("peer_id", int(peerID)).Msg("election challenge failed")
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var decoded struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return false
	}
	return decoded.Response == "OK"
}

// announceSelf declares this broker the leader, tells every known peer,
// and invokes the update callback.
func (e *Election) announceSelf() {
	self := e.reg.SelfID()

	e.mu.Lock()
	e.currentLeader = &self
	e.electionOngoing = false
	e.mu.Unlock()

	metrics.ElectionsWon.Inc()
	metrics.CurrentLeader.Reset()
	metrics.CurrentLeader.WithLabelValues(fmt.Sprintf("%d", self)).Set(1)
	e.logger.Info().Int("broker_id", int(self)).Msg("announcing self as leader")

	for id, addr := range e.reg.Peers() {
		e.sendAnnouncement(id, addr, self)
	}

	e.onLead(self)
}

func (e *Election) sendAnnouncement(peerID types.BrokerID, addr types.PeerAddress, leader types.BrokerID) {
	ctx, cancel := context.WithTimeout(context.Background(), announceTimeout)
	defer cancel()

	body, _ := json.Marshal(map[string]int{"leader_id": int(leader)})
	url := fmt.Sprintf("http://%s/leader", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.logger.Warn().Err(err).Int("peer_id", int(peerID)).Msg("leader announcement failed")
		return
	}
	resp.Body.Close()
}

// OnElectionMessage answers a Bully challenge from senderID: OK iff
// this broker outranks the sender. It does not itself start an
// election in response — a peer that loses a challenge waits to either
// see an announcement or notice the leader is unreachable on its own
// next health check, rather than immediately re-challenging.
func (e *Election) OnElectionMessage(senderID types.BrokerID) string {
	if e.reg.SelfID() > senderID {
		return "OK"
	}
	return "NO"
}

// OnLeaderAnnouncement unconditionally adopts leaderID — last write
// wins, no version number.
func (e *Election) OnLeaderAnnouncement(leaderID types.BrokerID) {
	e.mu.Lock()
	e.currentLeader = &leaderID
	e.electionOngoing = false
	e.announceSeq++
	e.mu.Unlock()

	metrics.CurrentLeader.Reset()
	metrics.CurrentLeader.WithLabelValues(fmt.Sprintf("%d", leaderID)).Set(1)
	e.logger.Info().Int("leader_id", int(leaderID)).Msg("leader updated")
	e.onLead(leaderID)
}

// HealthMonitorLoop polls the believed leader's /ping every 5s and
// triggers a new election on any failure. Runs until ctx is cancelled.
func (e *Election) HealthMonitorLoop(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.checkLeaderHealth()
		case <-ctx.Done():
			return
		}
	}
}

func (e *Election) checkLeaderHealth() {
	leader := e.CurrentLeader()
	if leader == nil || *leader == e.reg.SelfID() {
		return
	}

	addr, ok := e.reg.AddressOf(*leader)
	if !ok {
		return
	}

	checker := probe.NewHTTPChecker(fmt.Sprintf("http://%s/ping", addr), healthCheckTimeout)
	// Any non-2xx from the leader counts as a failed probe.
	checker.ExpectedStatusMax = 299
	result := checker.Check(context.Background())
	if result.Healthy {
		return
	}

	metrics.HealthCheckFailures.Inc()
	e.logger.Warn().Int("leader_id", int(*leader)).Str("reason", result.Message).Msg("leader unreachable, starting election")
	e.StartElection()
}

// RunStartupElection waits the fixed startup grace period and then
// starts the first election, staggering elections across cold starts.
func (e *Election) RunStartupElection(ctx context.Context) {
	select {
	case <-time.After(startupGracePeriod):
		e.StartElection()
	case <-ctx.Done():
	}
}
