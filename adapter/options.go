package adapter

import (
	"time"

	"github.com/steploop/steploop/iface"
)

// Options configures an Adapter. The zero value is usable: platform
// reactor, wall clock, no hooks, no metrics.
type Options struct {
	// Reactor supplies the underlying reactor. When nil a platform
	// poller is constructed and owned by the adapter.
	Reactor iface.IReactor

	// Clock is the time source used for absolute-instant scheduling and
	// Now. Defaults to time.Now.
	Clock func() time.Time

	// AdjustTimeout may shrink the wait requested from RunOneStep, e.g.
	// to respect host-level deadlines the adapter does not know about.
	AdjustTimeout func(maxWait time.Duration) time.Duration

	// RunQueues is the host's queue-maintenance hook, invoked exactly
	// once per step after any fired callback. Must not block
	// indefinitely.
	RunQueues func()

	// TaskPoolSize > 0 runs tasks posted to an owned reactor on a
	// goroutine pool of that size instead of the loop goroutine.
	TaskPoolSize int

	// EnableMetrics registers prometheus collectors on an adapter-owned
	// registry, reachable through Metrics.
	EnableMetrics bool
}
