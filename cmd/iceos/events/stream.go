// Package events implements the per-run append-only event stream: a
// monotonic sequence per run, durable sinks that must ack before the
// scheduler observes completion, and live subscriptions for streaming.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

// Sink persists events. Append must not return until the write is durable
// for that sink; a sink error fails the append.
type Sink interface {
	Append(ctx context.Context, event *sdk.Event) error
}

// Stream is one run's ordered event log. Appends are serialized; events
// carry strictly increasing sequence numbers.
type Stream struct {
	runID string
	sinks []Sink

	mu     sync.Mutex
	seq    int64
	buffer []sdk.Event
	subs   map[int]chan sdk.Event
	nextID int
	closed bool
}

// NewStream creates a stream for a run, fanning out to the given sinks.
func NewStream(runID string, sinks ...Sink) *Stream {
	return &Stream{
		runID: runID,
		sinks: sinks,
		subs:  make(map[int]chan sdk.Event),
	}
}

// Append assigns the next sequence number, writes through every sink, and
// then notifies subscribers. The append fails if any sink rejects it, so a
// completed node is never observable without its events.
func (s *Stream) Append(ctx context.Context, kind sdk.EventType, nodeID string, payload map[string]interface{}) (*sdk.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("event stream for run %s is closed", s.runID)
	}

	s.seq++
	event := sdk.Event{
		EventID:     uuid.New(),
		ExecutionID: s.runID,
		Seq:         s.seq,
		Timestamp:   time.Now().UTC(),
		Kind:        kind,
		NodeID:      nodeID,
		Payload:     payload,
	}

	for i, sink := range s.sinks {
		if err := sink.Append(ctx, &event); err != nil {
			// A sequence number is only reusable while no sink has durably
			// written it. Once any sink accepted the event the number is
			// burned; handing it out again would let a store replay carry
			// two distinct events with the same seq.
			if i == 0 {
				s.seq--
			}
			return nil, fmt.Errorf("event sink append failed: %w", err)
		}
	}

	s.buffer = append(s.buffer, event)
	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
			// Slow subscriber; it will catch up from the buffer on resubscribe.
		}
	}
	if kind.Terminal() {
		s.closeLocked()
	}
	return &event, nil
}

// Subscribe returns a channel replaying buffered events with seq > fromSeq
// and then delivering live events. Cancel releases the subscription.
func (s *Stream) Subscribe(fromSeq int64) (<-chan sdk.Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	replay := make([]sdk.Event, 0)
	for _, e := range s.buffer {
		if e.Seq > fromSeq {
			replay = append(replay, e)
		}
	}

	ch := make(chan sdk.Event, len(replay)+64)
	for _, e := range replay {
		ch <- e
	}
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if live, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(live)
		}
	}
	return ch, cancel
}

// Events returns a copy of all buffered events.
func (s *Stream) Events() []sdk.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sdk.Event, len(s.buffer))
	copy(out, s.buffer)
	return out
}

// Seq returns the last assigned sequence number.
func (s *Stream) Seq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// closeLocked closes all live subscriptions. Callers hold the mutex.
func (s *Stream) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
