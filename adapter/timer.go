package adapter

import (
	"time"

	"github.com/pkg/errors"

	"github.com/steploop/steploop/iface"
	"github.com/steploop/steploop/utils/errs"
)

// Timing names when a timer fires: exactly one of an absolute instant or
// a relative delay.
type Timing struct {
	At    *time.Time
	After *time.Duration
}

// timerEntry keeps the callback beside the reactor token so a timer can
// be rescheduled with its original callback, and so a stale reactor
// dispatch after cancellation finds nothing to invoke.
type timerEntry struct {
	token   uint64
	cb      iface.Callback
	firesAt time.Time
}

// Schedule arms a one-shot timer. Fails with ErrInvalidArgument when the
// timing supplies neither or both of At and After, or when cb is nil.
func (that *Adapter) Schedule(tm Timing, cb iface.Callback) (iface.TimerID, error) {
	if cb == nil {
		return 0, errors.Wrap(errs.ErrInvalidArgument, "nil callback")
	}
	if (tm.At == nil) == (tm.After == nil) {
		return 0, errors.Wrap(errs.ErrInvalidArgument, "exactly one of At and After must be set")
	}
	var delay time.Duration
	var firesAt time.Time
	now := that.Now()
	if tm.At != nil {
		firesAt = *tm.At
		delay = firesAt.Sub(now)
	} else {
		delay = *tm.After
		firesAt = now.Add(delay)
	}
	if delay < 0 {
		delay = 0
	}
	that.lastTimerID++
	id := iface.TimerID(that.lastTimerID)
	token, err := that.reactor.AddTimer(delay, func() { that.fireTimer(id) })
	if err != nil {
		return 0, err
	}
	that.timers[id] = &timerEntry{token: token, cb: cb, firesAt: firesAt}
	return id, nil
}

func (that *Adapter) ScheduleAfter(d time.Duration, cb iface.Callback) (iface.TimerID, error) {
	return that.Schedule(Timing{After: &d}, cb)
}

func (that *Adapter) ScheduleAt(t time.Time, cb iface.Callback) (iface.TimerID, error) {
	return that.Schedule(Timing{At: &t}, cb)
}

// fireTimer is the timer trampoline: drop the entry first (one-shot),
// invoke the stored callback, end the step. The entry may already be gone
// when the id was cancelled after the reactor collected its due batch; a
// stale dispatch then does nothing and must not end the step.
func (that *Adapter) fireTimer(id iface.TimerID) {
	entry, found := that.timers[id]
	if !found {
		return
	}
	delete(that.timers, id)
	entry.cb()
	if that.metrics != nil {
		that.metrics.TimerFiredCounter.Inc()
	}
	that.reactor.Stop()
}

// CancelTimer removes a pending timer; its callback will never be
// invoked. Fails with ErrNotFound for an id that is not live: callers
// track which ids remain, and strictness here surfaces their bookkeeping
// bugs.
func (that *Adapter) CancelTimer(id iface.TimerID) error {
	entry, found := that.timers[id]
	if !found {
		return errors.Wrapf(errs.ErrNotFound, "timer %d", id)
	}
	delete(that.timers, id)
	that.reactor.RemoveTimer(entry.token)
	return nil
}

// RescheduleTimer cancels id and arms a fresh timer with the original
// callback and the new timing, returning the new id. Fails with
// ErrNotFound for an id that is not live.
func (that *Adapter) RescheduleTimer(id iface.TimerID, tm Timing) (iface.TimerID, error) {
	entry, found := that.timers[id]
	if !found {
		return 0, errors.Wrapf(errs.ErrNotFound, "timer %d", id)
	}
	delete(that.timers, id)
	that.reactor.RemoveTimer(entry.token)
	return that.Schedule(tm, entry.cb)
}
