package adapter

import (
	"os"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/steploop/steploop/iface"
)

type fakeIO struct {
	events uint32
	cb     iface.IOCallback
}

type fakeTimer struct {
	delay time.Duration
	cb    iface.Callback
	seq   uint64
}

type fakeEvent struct {
	fd     int
	events uint32
}

// fakeReactor is a deterministic run-until-stopped reactor for adapter
// tests: Start first delivers queued readiness events in order, then
// fires armed timers earliest-delay first, advancing a virtual clock,
// until a callback stops it or nothing is left to fire.
type fakeReactor struct {
	ios      map[int]*fakeIO
	timers   map[uint64]*fakeTimer
	ready    []fakeEvent
	now      time.Time
	lastTok  uint64
	stopped  bool
	closed   bool
	starts   int
	startErr error
}

func newFakeReactor() *fakeReactor {
	return &fakeReactor{
		ios:    make(map[int]*fakeIO),
		timers: make(map[uint64]*fakeTimer),
		now:    time.Unix(1000, 0),
	}
}

func (that *fakeReactor) AddFd(fd int, events uint32, cb iface.IOCallback) error {
	if _, found := that.ios[fd]; found {
		return errors.Errorf("fd %d already watched", fd)
	}
	that.ios[fd] = &fakeIO{events: events, cb: cb}
	return nil
}

func (that *fakeReactor) ModFd(fd int, events uint32) error {
	io, found := that.ios[fd]
	if !found {
		return errors.Errorf("fd %d not watched", fd)
	}
	io.events = events
	return nil
}

func (that *fakeReactor) RemoveFd(fd int) error {
	if _, found := that.ios[fd]; !found {
		return errors.Errorf("fd %d not watched", fd)
	}
	delete(that.ios, fd)
	return nil
}

func (that *fakeReactor) AddTimer(delay time.Duration, cb iface.Callback) (uint64, error) {
	that.lastTok++
	that.timers[that.lastTok] = &fakeTimer{delay: delay, cb: cb, seq: that.lastTok}
	return that.lastTok, nil
}

func (that *fakeReactor) RemoveTimer(token uint64) bool {
	if _, found := that.timers[token]; !found {
		return false
	}
	delete(that.timers, token)
	return true
}

func (that *fakeReactor) Start() error {
	that.starts++
	if that.startErr != nil {
		return that.startErr
	}
	that.stopped = false
	for !that.stopped {
		if len(that.ready) > 0 {
			ev := that.ready[0]
			that.ready = that.ready[1:]
			if io, found := that.ios[ev.fd]; found && io.events&ev.events != 0 {
				io.cb(ev.fd, ev.events)
			}
			continue
		}
		var earliest *fakeTimer
		for _, t := range that.timers {
			if earliest == nil || t.delay < earliest.delay ||
				(t.delay == earliest.delay && t.seq < earliest.seq) {
				earliest = t
			}
		}
		if earliest == nil {
			return nil
		}
		delete(that.timers, earliest.seq)
		that.now = that.now.Add(earliest.delay)
		earliest.cb()
	}
	return nil
}

func (that *fakeReactor) Stop() {
	that.stopped = true
}

func (that *fakeReactor) Close() error {
	that.closed = true
	return nil
}

func newTestLoop(t *testing.T, opts *Options) (*Adapter, *fakeReactor) {
	t.Helper()
	fr := newFakeReactor()
	if opts == nil {
		opts = &Options{}
	}
	opts.Reactor = fr
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return fr.now }
	}
	loop, err := New(opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return loop, fr
}

// testPipe returns two real descriptors so ValidateFd passes.
func testPipe(t *testing.T) (rfd, wfd int) {
	t.Helper()
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe failed: %v", err)
	}
	t.Cleanup(func() {
		pr.Close()
		pw.Close()
	})
	return int(pr.Fd()), int(pw.Fd())
}
