// Package shutdown propagates a termination request to every concurrent unit of the
// process and waits for all of them to return before exit.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Controller owns the shared cancellation signal and the set of running units.
type Controller struct {
	ctx    context.Context
	cancel context.CancelFunc

	wg      sync.WaitGroup
	mu      sync.Mutex
	running map[string]int
	reason  string
}

// New creates a controller whose context is derived from parent
func New(parent context.Context) *Controller {
	ctx, cancel := context.WithCancel(parent)
	return &Controller{
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[string]int),
	}
}

// Context returns the cancellation signal observed by every unit
func (c *Controller) Context() context.Context {
	return c.ctx
}

// Go starts fn as a named unit. fn must return once the context is done.
func (c *Controller) Go(name string, fn func(ctx context.Context)) {
	c.mu.Lock()
	c.running[name]++
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer func() {
			c.mu.Lock()
			if c.running[name]--; c.running[name] <= 0 {
				delete(c.running, name)
			}
			c.mu.Unlock()
			c.wg.Done()
		}()
		fn(c.ctx)
	}()
}

// Shutdown sets the cancellation signal. Only the first reason is kept.
func (c *Controller) Shutdown(reason string) {
	c.mu.Lock()
	if c.reason == "" {
		c.reason = reason
	}
	c.mu.Unlock()
	c.cancel()
}

// Reason returns the reason passed to the first Shutdown call
func (c *Controller) Reason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// Wait blocks until every unit started with Go has returned, or until ctx expires.
// On expiry the error names the units still running.
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("units still running after %w: %v", ctx.Err(), c.Running())
	}
}

// Running returns the names of units that have not yet returned
func (c *Controller) Running() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.running))
	for name := range c.running {
		names = append(names, name)
	}
	return names
}

// ListenForSignals calls Shutdown on SIGINT or SIGTERM. The returned function stops listening.
func (c *Controller) ListenForSignals() func() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	stop := make(chan struct{})
	go func() {
		select {
		case sig := <-sigChan:
			c.Shutdown(sig.String())
		case <-stop:
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(stop)
	}
}
