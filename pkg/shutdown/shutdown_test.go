package shutdown

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestController_ShutdownStopsUnits(t *testing.T) {
	c := New(context.Background())

	var stopped atomic.Int32
	for range 3 {
		c.Go("worker", func(ctx context.Context) {
			<-ctx.Done()
			stopped.Add(1)
		})
	}
	c.Go("poller", func(ctx context.Context) {
		<-ctx.Done()
		stopped.Add(1)
	})

	if c.Context().Err() != nil {
		t.Fatal("context cancelled before Shutdown")
	}

	c.Shutdown("test")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("Wait() unexpected error: %v", err)
	}

	if got := stopped.Load(); got != 4 {
		t.Errorf("Expected 4 units stopped, got %d", got)
	}

	if len(c.Running()) != 0 {
		t.Errorf("Expected no running units, got %v", c.Running())
	}
}

func TestController_ReasonKeepsFirst(t *testing.T) {
	c := New(context.Background())

	c.Shutdown("interrupt")
	c.Shutdown("terminated")

	if c.Reason() != "interrupt" {
		t.Errorf("Expected reason 'interrupt', got %q", c.Reason())
	}

	if c.Context().Err() == nil {
		t.Error("Expected context to be cancelled after Shutdown")
	}
}

func TestController_WaitTimeoutNamesStragglers(t *testing.T) {
	c := New(context.Background())

	release := make(chan struct{})
	c.Go("stuck-submit", func(_ context.Context) {
		<-release
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Wait(ctx)
	if err == nil {
		t.Fatal("Expected Wait() to time out")
	}

	running := c.Running()
	if len(running) != 1 || running[0] != "stuck-submit" {
		t.Errorf("Expected [stuck-submit] still running, got %v", running)
	}

	close(release)
	if err := c.Wait(context.Background()); err != nil {
		t.Errorf("Wait() after release unexpected error: %v", err)
	}
}

func TestController_ParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	c := New(parent)

	cancel()

	select {
	case <-c.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("Expected controller context to follow parent cancellation")
	}
}
