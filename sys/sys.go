/*
Package sys generalizes the platform polling syscalls (epoll on linux,
kqueue on darwin) behind a single set of helpers consumed by the poll
package.
*/
package sys

import (
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/steploop/steploop/utils"
)

// Normalized readiness bits reported through PollEvent and requested when
// registering a descriptor.
const (
	EventRead   uint32 = 0x1
	EventWrite  uint32 = 0x2
	EventClosed uint32 = 0x4
)

const (
	MaxPollSize  = 1024
	MinPollSize  = 32
	InitPollSize = 128
)

// PollEvent is one readiness report from a single wait.
type PollEvent struct {
	Fd     int
	Events uint32
}

func CloseFd(fd int) error {
	return syscall.Close(fd)
}

// ValidateFd reports whether fd refers to an open file description.
func ValidateFd(fd int) error {
	if fd < 0 {
		return utils.SysError("fcntl", syscall.EBADF)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
		return utils.SysError("fcntl", err)
	}
	return nil
}

// toMsec rounds d up to whole milliseconds so a sub-millisecond deadline
// does not turn into a busy spin. Negative means wait forever.
func toMsec(d time.Duration) int {
	if d < 0 {
		return -1
	}
	msec := int(d / time.Millisecond)
	if d%time.Millisecond != 0 {
		msec++
	}
	return msec
}
