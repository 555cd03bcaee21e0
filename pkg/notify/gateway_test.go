package notify

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGatewayEmitFansOutToRegisteredSinks(t *testing.T) {
	gw := New()

	var mu sync.Mutex
	var received []Event

	gw.Register(Deployed, func(ctx context.Context, ev Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, ev)
	})
	gw.Register(Deployed, func(ctx context.Context, ev Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, ev)
	})
	gw.Register(RegressionDetected, func(ctx context.Context, ev Event) {
		t.Fatal("sink for a different kind must not be invoked")
	})

	gw.Emit(context.Background(), Event{Kind: Deployed, AgentID: "agent-1"})

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, received, 2)
	assert.Equal(t, "agent-1", received[0].AgentID)
}

func TestGatewayEmitWithNoSinksIsNoop(t *testing.T) {
	gw := New()
	assert.NotPanics(t, func() {
		gw.Emit(context.Background(), Event{Kind: ApprovalNeeded})
	})
}

func TestGatewayRecoversFromPanickingSink(t *testing.T) {
	gw := New()
	called := false

	gw.Register(Rollback, func(ctx context.Context, ev Event) {
		panic("boom")
	})
	gw.Register(Rollback, func(ctx context.Context, ev Event) {
		called = true
	})

	assert.NotPanics(t, func() {
		gw.Emit(context.Background(), Event{Kind: Rollback})
	})
	assert.True(t, called, "a panicking sink must not prevent later sinks from running")
}

func TestNilGatewayIsSafe(t *testing.T) {
	var gw *Gateway
	assert.NotPanics(t, func() {
		gw.Register(Deployed, func(ctx context.Context, ev Event) {})
		gw.Emit(context.Background(), Event{Kind: Deployed})
	})
}
