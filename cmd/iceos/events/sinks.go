package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

// ExecutionEventStore is the slice of the execution store the store sink
// consumes.
type ExecutionEventStore interface {
	AppendEvent(ctx context.Context, event *sdk.Event) error
}

// StoreSink writes events through the execution store.
type StoreSink struct {
	store ExecutionEventStore
}

// NewStoreSink creates a sink backed by the execution store.
func NewStoreSink(store ExecutionEventStore) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Append(ctx context.Context, event *sdk.Event) error {
	if err := s.store.AppendEvent(ctx, event); err != nil {
		return fmt.Errorf("store append: %w", err)
	}
	return nil
}

// StreamPublisher is the slice of the redis wrapper the redis sink
// consumes: an XADD plus a pubsub notification for live subscribers.
type StreamPublisher interface {
	AddToStream(ctx context.Context, stream string, values map[string]interface{}) (string, error)
	PublishEvent(ctx context.Context, channel string, message string) error
}

// RedisSink appends each event to a per-run Redis stream and publishes it
// on a per-run channel for external fan-out processes.
type RedisSink struct {
	publisher StreamPublisher
}

// NewRedisSink creates a Redis-backed sink.
func NewRedisSink(publisher StreamPublisher) *RedisSink {
	return &RedisSink{publisher: publisher}
}

func (s *RedisSink) Append(ctx context.Context, event *sdk.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	stream := "run:" + event.ExecutionID + ":events"
	if _, err := s.publisher.AddToStream(ctx, stream, map[string]interface{}{
		"seq":  event.Seq,
		"kind": string(event.Kind),
		"data": string(payload),
	}); err != nil {
		return err
	}
	return s.publisher.PublishEvent(ctx, "run:"+event.ExecutionID, string(payload))
}

// StdoutSink emits events as JSON lines, one per event. Enabled by the
// EVENT_JSON_STDOUT knob for local debugging and log shipping.
type StdoutSink struct {
	mu sync.Mutex
}

// NewStdoutSink creates a stdout JSON sink.
func NewStdoutSink() *StdoutSink {
	return &StdoutSink{}
}

func (s *StdoutSink) Append(_ context.Context, event *sdk.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = fmt.Fprintln(os.Stdout, string(data))
	return err
}
