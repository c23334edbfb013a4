package events

import "context"

// Sink is the telemetry capability handed to components at construction.
// Publisher is the production implementation; tests use recording fakes.
type Sink interface {
	Emit(ctx context.Context, eventType EventType, conversationID string, data interface{}) error
}

// NopSink discards every event.
type NopSink struct{}

// Emit implements Sink.
func (NopSink) Emit(context.Context, EventType, string, interface{}) error { return nil }
