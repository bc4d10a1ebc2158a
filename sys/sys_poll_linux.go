//go:build linux

package sys

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/steploop/steploop/utils"
)

var wakeBytes = []byte{0, 0, 0, 0, 0, 0, 0, 1}

// CreatePoll makes an epoll instance plus an eventfd whose only purpose is
// to interrupt a blocked wait. The eventfd is already watched for reads.
func CreatePoll() (pollFd, pollEvFd int, err error) {
	pollFd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		err = utils.SysError("epoll_create1", err)
		return
	}
	pollEvFd, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		CloseFd(pollFd)
		err = utils.SysError("eventfd", err)
		return
	}
	if err = AddFd(pollFd, pollEvFd, EventRead); err != nil {
		CloseFd(pollFd)
		CloseFd(pollEvFd)
		return
	}
	return
}

// Trigger wakes up a wait blocked on pollFd.
func Trigger(pollFd, pollEvFd int) (err error) {
	if _, err = unix.Write(pollEvFd, wakeBytes); err == unix.EAGAIN {
		err = nil
	}
	return utils.SysError("eventfd_write", err)
}

func toEpollEvents(events uint32) (evs uint32) {
	if events&EventRead != 0 {
		evs |= unix.EPOLLIN | unix.EPOLLPRI
	}
	if events&EventWrite != 0 {
		evs |= unix.EPOLLOUT
	}
	return
}

func fromEpollEvents(evs uint32) (events uint32) {
	if evs&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
		events |= EventRead
	}
	if evs&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if evs&(unix.EPOLLHUP|unix.EPOLLERR|unix.EPOLLRDHUP) != 0 {
		events |= EventClosed
	}
	return
}

func ctlFd(pollFd, fd, action int, events uint32, name string) error {
	var ev *unix.EpollEvent
	if action != unix.EPOLL_CTL_DEL {
		ev = &unix.EpollEvent{Fd: int32(fd), Events: toEpollEvents(events)}
	}
	return utils.SysError(name, unix.EpollCtl(pollFd, action, fd, ev))
}

func AddFd(pollFd, fd int, events uint32) error {
	return ctlFd(pollFd, fd, unix.EPOLL_CTL_ADD, events, "epoll_ctl_add")
}

func ModFd(pollFd, fd int, events uint32) error {
	return ctlFd(pollFd, fd, unix.EPOLL_CTL_MOD, events, "epoll_ctl_mod")
}

func DelFd(pollFd, fd int) error {
	return ctlFd(pollFd, fd, unix.EPOLL_CTL_DEL, 0, "epoll_ctl_del")
}

// EventBuffer holds the raw kernel event list between waits so WaitOnce
// does not allocate per call.
type EventBuffer struct {
	raw []unix.EpollEvent
}

func NewEventBuffer(size int) *EventBuffer {
	return &EventBuffer{raw: make([]unix.EpollEvent, size)}
}

func (that *EventBuffer) Resize(size int) {
	that.raw = make([]unix.EpollEvent, size)
}

// WaitOnce performs a single bounded wait. Readiness of pollEvFd is
// consumed here and reported as triggered instead of being copied into
// evs. An EINTR wait reports zero events and no error.
func WaitOnce(pollFd, pollEvFd int, timeout time.Duration, buf *EventBuffer, evs []PollEvent) (n int, triggered bool, err error) {
	num, err := unix.EpollWait(pollFd, buf.raw, toMsec(timeout))
	if err == unix.EINTR {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, utils.SysError("epoll_wait", err)
	}
	var drain [8]byte
	for i := 0; i < num; i++ {
		ev := &buf.raw[i]
		if fd := int(ev.Fd); fd == pollEvFd {
			triggered = true
			unix.Read(pollEvFd, drain[:])
			continue
		}
		if n == len(evs) {
			break
		}
		evs[n] = PollEvent{Fd: int(ev.Fd), Events: fromEpollEvents(ev.Events)}
		n++
	}
	return
}
