package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Sink receives a fanned-out event. Implementations must not block for long;
// the gateway does not enforce a timeout itself but callers are expected to
// bound their own network calls (see SlackSink).
type Sink func(ctx context.Context, ev Event)

// Gateway dispatches events to registered sinks. A nil *Gateway is valid and
// every method on it is a no-op, the same nil-receiver contract as the
// teacher's pkg/slack.Service.
type Gateway struct {
	mu     sync.RWMutex
	sinks  map[Kind][]Sink
	logger *slog.Logger
}

// New creates an empty Gateway.
func New() *Gateway {
	return &Gateway{
		sinks:  make(map[Kind][]Sink),
		logger: slog.Default().With("component", "notify-gateway"),
	}
}

// Register adds a sink for the given event kind. Safe to call before or
// after Emit starts being invoked from other goroutines.
func (g *Gateway) Register(kind Kind, sink Sink) {
	if g == nil || sink == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sinks[kind] = append(g.sinks[kind], sink)
}

// Emit fans an event out to every sink registered for its kind. Fire and
// forget: sinks run synchronously but a panic or slow sink never reaches the
// caller as an error. Emit must only be called after the originating
// transaction has committed (spec.md §5).
func (g *Gateway) Emit(ctx context.Context, ev Event) {
	if g == nil {
		return
	}
	g.mu.RLock()
	sinks := append([]Sink(nil), g.sinks[ev.Kind]...)
	g.mu.RUnlock()

	for _, sink := range sinks {
		g.dispatch(ctx, sink, ev)
	}
}

func (g *Gateway) dispatch(ctx context.Context, sink Sink, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("notification sink panicked", "kind", ev.Kind, "agent_id", ev.AgentID, "panic", r)
		}
	}()
	sink(ctx, ev)
}
