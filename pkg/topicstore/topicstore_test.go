package topicstore

import (
	"fmt"
	"testing"

	"github.com/cuemby/beacon/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrainOrdersHighBeforeLow(t *testing.T) {
	s := New()
	s.Enqueue("traffic", types.Message{Topic: "traffic", Data: "low1"}, types.PriorityLow)
	s.Enqueue("traffic", types.Message{Topic: "traffic", Data: "high1"}, types.PriorityHigh)

	out := s.Drain("traffic")
	require.Len(t, out, 2)
	assert.Equal(t, "high1", out[0].Data)
	assert.Equal(t, "low1", out[1].Data)
}

func TestDrainEmptiesQueues(t *testing.T) {
	s := New()
	s.Enqueue("t", types.Message{Topic: "t"}, types.PriorityLow)
	require.Len(t, s.Drain("t"), 1)
	assert.Empty(t, s.Drain("t"))
}

func TestLogBoundedAt1000(t *testing.T) {
	s := New()
	for i := 0; i < 1050; i++ {
		s.Enqueue("y", types.Message{Topic: "y", Data: fmt.Sprintf("m%d", i)}, types.PriorityLow)
		s.Drain("y")
	}

	log := s.SnapshotLog("y")
	require.Len(t, log, LogCap)
	assert.Equal(t, "m50", log[0].Data)
	assert.Equal(t, "m1049", log[len(log)-1].Data)
}

func TestSubscriberUnsubscribedMutualExclusion(t *testing.T) {
	s := New()
	s.AddSubscriber("z", "1.2.3.4")
	assert.Contains(t, s.Subscribers("z"), "1.2.3.4")
	assert.NotContains(t, s.Unsubscribed("z"), "1.2.3.4")

	s.RemoveSubscriber("z", "1.2.3.4")
	assert.NotContains(t, s.Subscribers("z"), "1.2.3.4")
	assert.Contains(t, s.Unsubscribed("z"), "1.2.3.4")
}

func TestGossipSnapshotExcludesUnsubscribed(t *testing.T) {
	s := New()
	s.AddSubscriber("z", "a")
	s.AddSubscriber("z", "b")
	s.RemoveSubscriber("z", "b")

	subs, unsubs := s.GossipSnapshot("z")
	assert.Equal(t, []string{"a"}, subs)
	assert.Equal(t, []string{"b"}, unsubs)
}

func TestMergeGossipUnsubscribeWinsOverSubscribe(t *testing.T) {
	s := New()
	s.MergeGossip("z", []string{"a"}, []string{"a"})

	assert.NotContains(t, s.Subscribers("z"), "a")
	assert.Contains(t, s.Unsubscribed("z"), "a")
}

func TestClearUnsubscribed(t *testing.T) {
	s := New()
	s.AddSubscriber("z", "a")
	s.RemoveSubscriber("z", "a")
	require.NotEmpty(t, s.Unsubscribed("z"))

	s.ClearUnsubscribed("z")
	assert.Empty(t, s.Unsubscribed("z"))
}

type fakeQueue struct{ pushed []string }

func (f *fakeQueue) Push(payload string) { f.pushed = append(f.pushed, payload) }

func TestAttachDetachStream(t *testing.T) {
	s := New()
	q := &fakeQueue{}

	s.AttachStream("t", q)
	assert.Len(t, s.StreamQueues("t"), 1)

	s.DetachStream("t", q)
	assert.Empty(t, s.StreamQueues("t"))
}
