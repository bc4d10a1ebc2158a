//go:build darwin

package sys

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/steploop/steploop/utils"
)

// CreatePoll makes a kqueue with a user event (ident 0) standing in for
// the linux eventfd; pollEvFd is therefore always 0 on darwin.
func CreatePoll() (pollFd, pollEvFd int, err error) {
	pollFd, err = unix.Kqueue()
	if err != nil {
		err = utils.SysError("kqueue", err)
		return
	}
	_, err = unix.Kevent(pollFd, []unix.Kevent_t{{
		Ident:  0,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}}, nil, nil)
	if err != nil {
		CloseFd(pollFd)
		err = utils.SysError("kevent_add_user", err)
	}
	return
}

// Trigger wakes up a wait blocked on pollFd.
func Trigger(pollFd, pollEvFd int) error {
	_, err := unix.Kevent(pollFd, []unix.Kevent_t{{
		Ident:  uint64(pollEvFd),
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}}, nil, nil)
	return utils.SysError("kevent_trigger", err)
}

func kchange(pollFd, fd int, filter int16, add bool) error {
	flags := uint16(unix.EV_DELETE)
	if add {
		flags = unix.EV_ADD
	}
	_, err := unix.Kevent(pollFd, []unix.Kevent_t{{
		Ident:  uint64(fd),
		Filter: filter,
		Flags:  flags,
	}}, nil, nil)
	if !add && err == unix.ENOENT {
		err = nil
	}
	return utils.SysError("kevent", err)
}

func AddFd(pollFd, fd int, events uint32) error {
	if events&EventRead != 0 {
		if err := kchange(pollFd, fd, unix.EVFILT_READ, true); err != nil {
			return err
		}
	}
	if events&EventWrite != 0 {
		return kchange(pollFd, fd, unix.EVFILT_WRITE, true)
	}
	return nil
}

// ModFd reconciles both filters since kqueue has no combined mask update.
func ModFd(pollFd, fd int, events uint32) error {
	if err := kchange(pollFd, fd, unix.EVFILT_READ, events&EventRead != 0); err != nil {
		return err
	}
	return kchange(pollFd, fd, unix.EVFILT_WRITE, events&EventWrite != 0)
}

func DelFd(pollFd, fd int) error {
	if err := kchange(pollFd, fd, unix.EVFILT_READ, false); err != nil {
		return err
	}
	return kchange(pollFd, fd, unix.EVFILT_WRITE, false)
}

// EventBuffer holds the raw kernel event list between waits so WaitOnce
// does not allocate per call.
type EventBuffer struct {
	raw []unix.Kevent_t
}

func NewEventBuffer(size int) *EventBuffer {
	return &EventBuffer{raw: make([]unix.Kevent_t, size)}
}

func (that *EventBuffer) Resize(size int) {
	that.raw = make([]unix.Kevent_t, size)
}

// WaitOnce performs a single bounded wait. The user event is consumed
// here and reported as triggered instead of being copied into evs. An
// EINTR wait reports zero events and no error.
func WaitOnce(pollFd, pollEvFd int, timeout time.Duration, buf *EventBuffer, evs []PollEvent) (n int, triggered bool, err error) {
	var tsp *unix.Timespec
	if timeout >= 0 {
		ts := unix.NsecToTimespec(int64(timeout))
		tsp = &ts
	}
	num, err := unix.Kevent(pollFd, nil, buf.raw, tsp)
	if err == unix.EINTR {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, utils.SysError("kevent_wait", err)
	}
	for i := 0; i < num; i++ {
		ev := &buf.raw[i]
		if ev.Filter == unix.EVFILT_USER {
			triggered = true
			continue
		}
		if n == len(evs) {
			break
		}
		var events uint32
		switch ev.Filter {
		case unix.EVFILT_READ:
			events = EventRead
		case unix.EVFILT_WRITE:
			events = EventWrite
		}
		if ev.Flags&(unix.EV_EOF|unix.EV_ERROR) != 0 {
			events |= EventClosed
		}
		evs[n] = PollEvent{Fd: int(ev.Ident), Events: events}
		n++
	}
	return
}
