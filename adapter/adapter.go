/*
Package adapter bridges two event-loop contracts: a host that drives its
loop one bounded step at a time, and an underlying reactor whose native
model is "run until something tells it to stop". Every callback handed to
the reactor is wrapped in a trampoline that performs the host's work and
then stops the current blocking run, so one Start of the reactor becomes
exactly one schedulable unit of work for the host.
*/
package adapter

import (
	"math"
	"time"

	"github.com/eapache/queue"
	"github.com/panjf2000/ants/v2"

	"github.com/steploop/steploop/iface"
	"github.com/steploop/steploop/poll"
)

// Forever makes RunOneStep wait with no deadline: the step ends only when
// a registered interest fires or another goroutine posts work.
const Forever = time.Duration(math.MaxInt64)

// Adapter owns the readiness table and the timer registry, and holds the
// reference to the underlying reactor for its whole lifetime. All methods
// must be called from the host's single control flow, or from inside a
// callback fired during a step.
type Adapter struct {
	reactor     iface.IReactor
	ownsReactor bool
	opts        Options
	watches     map[int]*watchEntry
	timers      map[iface.TimerID]*timerEntry
	lastTimerID uint64
	pending     *queue.Queue
	pool        *ants.Pool
	metrics     *MetricsHelper
}

// New builds the adapter, constructing the platform reactor when the
// options supply none. Reactor construction failure aborts construction
// entirely; there is no degraded mode.
func New(opts *Options) (*Adapter, error) {
	that := &Adapter{
		watches: make(map[int]*watchEntry),
		timers:  make(map[iface.TimerID]*timerEntry),
		pending: queue.New(),
	}
	if opts != nil {
		that.opts = *opts
	}
	if that.opts.Clock == nil {
		that.opts.Clock = time.Now
	}
	if that.opts.EnableMetrics {
		that.metrics = NewMetricsHelper()
	}
	that.reactor = that.opts.Reactor
	if that.reactor == nil {
		p, err := poll.New()
		if err != nil {
			return nil, err
		}
		if that.opts.TaskPoolSize > 0 {
			pool, perr := ants.NewPool(that.opts.TaskPoolSize)
			if perr != nil {
				p.Close()
				return nil, perr
			}
			that.pool = pool
			p.Pool = pool
		}
		that.reactor = p
		that.ownsReactor = true
	}
	return that, nil
}

// Now returns the adapter's current time, from the configured clock.
func (that *Adapter) Now() time.Time {
	return that.opts.Clock()
}

// Metrics returns the metrics helper, nil unless EnableMetrics was set.
func (that *Adapter) Metrics() *MetricsHelper {
	return that.metrics
}

// CallSoon queues cb to run at the start of the next step, before the
// reactor blocks. A callback queued from inside another pending callback
// runs one step later, not in the same drain.
func (that *Adapter) CallSoon(cb iface.Callback) {
	if cb == nil {
		return
	}
	that.pending.Add(cb)
}

func (that *Adapter) drainPending() {
	for n := that.pending.Length(); n > 0; n-- {
		that.pending.Remove().(iface.Callback)()
	}
}

// RunOneStep blocks for at most maxWait while the underlying reactor runs,
// returning once any armed interest has fired or the deadline elapsed,
// whichever comes first. The queue-maintenance hook runs exactly once
// before returning, whatever happened during the step. A zero or negative
// maxWait means "fire immediately"; pass Forever for an unbounded wait.
func (that *Adapter) RunOneStep(maxWait time.Duration) error {
	if that.opts.AdjustTimeout != nil {
		maxWait = that.opts.AdjustTimeout(maxWait)
	}
	if that.opts.RunQueues != nil {
		defer that.opts.RunQueues()
	}
	if that.metrics != nil {
		began := time.Now()
		defer func() {
			that.metrics.StepCounter.Inc()
			that.metrics.StepDuration.Observe(time.Since(began).Seconds())
		}()
	}
	that.drainPending()
	if maxWait != Forever {
		if maxWait < 0 {
			maxWait = 0
		}
		token, err := that.reactor.AddTimer(maxWait, that.reactor.Stop)
		if err != nil {
			return err
		}
		defer that.reactor.RemoveTimer(token)
	}
	return that.reactor.Start()
}

// Close releases the owned reactor and task pool, if any. A reactor
// supplied through Options stays with its owner.
func (that *Adapter) Close() error {
	if that.pool != nil {
		that.pool.Release()
	}
	if that.ownsReactor {
		return that.reactor.Close()
	}
	return nil
}
