package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

// recordingSink captures appended events and can be told to fail.
type recordingSink struct {
	mu     sync.Mutex
	events []sdk.Event
	fail   error
}

func (s *recordingSink) Append(_ context.Context, event *sdk.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.events = append(s.events, *event)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestStream_SequenceIsMonotonic(t *testing.T) {
	s := NewStream("run-1")
	ctx := context.Background()

	first, err := s.Append(ctx, sdk.EventRunStarted, "", nil)
	require.NoError(t, err)
	second, err := s.Append(ctx, sdk.EventNodeStarted, "n1", nil)
	require.NoError(t, err)
	third, err := s.Append(ctx, sdk.EventNodeSucceeded, "n1", map[string]interface{}{"out": 1})
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, int64(2), second.Seq)
	assert.Equal(t, int64(3), third.Seq)
	assert.Equal(t, int64(3), s.Seq())
	assert.Equal(t, "run-1", third.ExecutionID)
	assert.NotEqual(t, first.EventID, second.EventID)
}

func TestStream_SinkFailureFailsAppend(t *testing.T) {
	sink := &recordingSink{}
	s := NewStream("run-1", sink)
	ctx := context.Background()

	_, err := s.Append(ctx, sdk.EventRunStarted, "", nil)
	require.NoError(t, err)

	sink.fail = errors.New("disk full")
	_, err = s.Append(ctx, sdk.EventNodeStarted, "n1", nil)
	require.Error(t, err)

	// The failed append does not consume a sequence number.
	sink.fail = nil
	event, err := s.Append(ctx, sdk.EventNodeStarted, "n1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), event.Seq)
	assert.Len(t, s.Events(), 2)
}

func TestStream_SubscribeReplaysThenDeliversLive(t *testing.T) {
	s := NewStream("run-1")
	ctx := context.Background()

	_, err := s.Append(ctx, sdk.EventRunStarted, "", nil)
	require.NoError(t, err)
	_, err = s.Append(ctx, sdk.EventNodeStarted, "n1", nil)
	require.NoError(t, err)

	ch, cancel := s.Subscribe(1)
	defer cancel()

	replayed := <-ch
	assert.Equal(t, int64(2), replayed.Seq, "events at or below fromSeq are skipped")

	_, err = s.Append(ctx, sdk.EventNodeSucceeded, "n1", nil)
	require.NoError(t, err)

	select {
	case live := <-ch:
		assert.Equal(t, int64(3), live.Seq)
	case <-time.After(time.Second):
		t.Fatal("live event not delivered")
	}
}

func TestStream_TerminalEventClosesSubscriptions(t *testing.T) {
	s := NewStream("run-1")
	ctx := context.Background()

	ch, cancel := s.Subscribe(0)
	defer cancel()

	_, err := s.Append(ctx, sdk.EventRunCompleted, "", nil)
	require.NoError(t, err)

	event, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, sdk.EventRunCompleted, event.Kind)

	_, ok = <-ch
	assert.False(t, ok, "channel closes after the terminal event")

	_, err = s.Append(ctx, sdk.EventNodeStarted, "late", nil)
	require.Error(t, err, "appends after a terminal event are rejected")
}

func TestStream_SubscribeAfterTerminalReplaysAndCloses(t *testing.T) {
	s := NewStream("run-1")
	ctx := context.Background()

	_, err := s.Append(ctx, sdk.EventRunStarted, "", nil)
	require.NoError(t, err)
	_, err = s.Append(ctx, sdk.EventRunFailed, "", map[string]interface{}{"error": "x"})
	require.NoError(t, err)

	ch, cancel := s.Subscribe(0)
	defer cancel()

	var seqs []int64
	for event := range ch {
		seqs = append(seqs, event.Seq)
	}
	assert.Equal(t, []int64{1, 2}, seqs)
}

func TestStream_FanOutToAllSinks(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	s := NewStream("run-1", a, b)

	_, err := s.Append(context.Background(), sdk.EventRunStarted, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
}

func TestStoreSink_DelegatesToStore(t *testing.T) {
	sink := &recordingSink{}
	store := NewStoreSink(storeFunc(func(ctx context.Context, event *sdk.Event) error {
		return sink.Append(ctx, event)
	}))
	err := store.Append(context.Background(), &sdk.Event{ExecutionID: "run-1", Seq: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, sink.count())
}

type storeFunc func(ctx context.Context, event *sdk.Event) error

func (f storeFunc) AppendEvent(ctx context.Context, event *sdk.Event) error { return f(ctx, event) }

// fakePublisher records stream and pubsub writes for the redis sink.
type fakePublisher struct {
	streams  map[string][]map[string]interface{}
	messages map[string][]string
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		streams:  make(map[string][]map[string]interface{}),
		messages: make(map[string][]string),
	}
}

func (p *fakePublisher) AddToStream(_ context.Context, stream string, values map[string]interface{}) (string, error) {
	p.streams[stream] = append(p.streams[stream], values)
	return "1-0", nil
}

func (p *fakePublisher) PublishEvent(_ context.Context, channel string, message string) error {
	p.messages[channel] = append(p.messages[channel], message)
	return nil
}

func TestRedisSink_StreamAndChannelNaming(t *testing.T) {
	pub := newFakePublisher()
	sink := NewRedisSink(pub)

	event := &sdk.Event{ExecutionID: "run-9", Seq: 4, Kind: sdk.EventNodeSucceeded, NodeID: "n1"}
	require.NoError(t, sink.Append(context.Background(), event))

	entries := pub.streams["run:run-9:events"]
	require.Len(t, entries, 1)
	assert.Equal(t, int64(4), entries[0]["seq"])
	assert.Equal(t, "node.succeeded", entries[0]["kind"])
	assert.Len(t, pub.messages["run:run-9"], 1)
}

func TestStream_SeqNotReusedAfterPartialSinkWrite(t *testing.T) {
	durable := &recordingSink{}
	flaky := &recordingSink{}
	s := NewStream("run-1", durable, flaky)
	ctx := context.Background()

	_, err := s.Append(ctx, sdk.EventRunStarted, "", nil)
	require.NoError(t, err)

	// The first sink durably writes seq 2 before the second sink rejects
	// the event. That sequence number is burned: reusing it would leave
	// the durable sink's log with two events sharing a seq.
	flaky.fail = errors.New("connection reset")
	_, err = s.Append(ctx, sdk.EventNodeStarted, "n1", nil)
	require.Error(t, err)

	flaky.fail = nil
	event, err := s.Append(ctx, sdk.EventNodeStarted, "n1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), event.Seq)

	durable.mu.Lock()
	seen := make(map[int64]int)
	var seqs []int64
	for _, e := range durable.events {
		seen[e.Seq]++
		seqs = append(seqs, e.Seq)
	}
	durable.mu.Unlock()
	assert.Equal(t, []int64{1, 2, 3}, seqs)
	for seq, n := range seen {
		assert.Equal(t, 1, n, "seq %d written more than once", seq)
	}
}
