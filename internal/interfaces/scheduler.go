package interfaces

import "context"

// CycleHandler is the work performed when a scheduler cycle's lock is
// acquired. Implementations must be cancellation-aware: on ctx
// cancellation they should abort in-flight work and return promptly.
type CycleHandler func(ctx context.Context) error

// Scheduler drives the three independent interval cycles and the
// cross-replica cooperative lock protocol (C1).
type Scheduler interface {
	// RegisterCycle wires a named cycle to its handler and cron
	// expression (or fixed interval, for the vetting/publish ticks).
	RegisterCycle(name string, handler CycleHandler) error

	// Start activates all registered tickers. Idempotent.
	Start() error

	// Stop halts new ticks and waits up to grace for in-flight handlers.
	Stop(ctx context.Context) error

	// TriggerNow runs a cycle immediately, outside its regular tick,
	// still subject to the lock protocol (used by the digest cron
	// ingress and manual CLI triggers).
	TriggerNow(ctx context.Context, name string) error

	// IsRunning reports whether Start has been called and Stop has not.
	IsRunning() bool
}
