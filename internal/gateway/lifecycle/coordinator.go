package lifecycle

import (
	"context"
	"fmt"
	"sync"
)

// Coordinator guarantees a single active version at a time.
type Coordinator struct {
	mu     sync.Mutex
	active *Manager
}

// NewCoordinator returns a Coordinator with no active version.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Promote installs and activates next, then retires the previously
// active manager. A failed install or activation leaves the current
// version serving.
func (c *Coordinator) Promote(ctx context.Context, next *Manager) error {
	if c == nil {
		return fmt.Errorf("coordinator is not configured")
	}
	if next == nil {
		return fmt.Errorf("manager is required")
	}

	if err := next.Install(ctx); err != nil {
		return fmt.Errorf("install %s: %w", next.Versions().Version, err)
	}
	if err := next.Activate(ctx); err != nil {
		return fmt.Errorf("activate %s: %w", next.Versions().Version, err)
	}

	c.mu.Lock()
	prev := c.active
	c.active = next
	c.mu.Unlock()

	if prev != nil {
		prev.terminate()
	}
	return nil
}

// Active returns the currently active manager, if any.
func (c *Coordinator) Active() *Manager {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}
