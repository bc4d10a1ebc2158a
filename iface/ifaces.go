package iface

import "time"

// Callback is a host-supplied unit of work, invoked by the loop with no
// arguments. Callbacks run on the loop's control flow and must not block.
type Callback func()

// IOCallback receives readiness reports from a reactor. The events mask is
// built from the sys.Event* constants.
type IOCallback func(fd int, events uint32)

// TimerID identifies a live timer issued by the stepping adapter. Ids are
// never reused within one adapter.
type TimerID uint64

type Direction int

const (
	Read Direction = iota
	Write
)

// IReactor is the surface the stepping adapter consumes from an underlying
// reactor. Start blocks the calling goroutine until Stop is invoked by one
// of the registered callbacks (or from another goroutine).
type IReactor interface {
	AddFd(fd int, events uint32, cb IOCallback) error
	ModFd(fd int, events uint32) error
	RemoveFd(fd int) error
	AddTimer(delay time.Duration, cb Callback) (uint64, error)
	RemoveTimer(token uint64) bool
	Start() error
	Stop()
	Close() error
}

type IFd interface {
	GetFd() int
}
