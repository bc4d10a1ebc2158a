package adapter

import (
	"github.com/moqsien/processes/logger"
	"github.com/pkg/errors"

	"github.com/steploop/steploop/iface"
	"github.com/steploop/steploop/sys"
	"github.com/steploop/steploop/utils/errs"
)

// watchEntry holds the per-direction callback slots for one descriptor.
// An entry exists iff at least one slot is set, and the reactor carries
// exactly one watch per descriptor whose mask always equals the slot
// occupancy at the end of every adapter call.
type watchEntry struct {
	readCb  iface.Callback
	writeCb iface.Callback
}

func (that *watchEntry) mask() (events uint32) {
	if that.readCb != nil {
		events |= sys.EventRead
	}
	if that.writeCb != nil {
		events |= sys.EventWrite
	}
	return
}

func (that *watchEntry) set(dir iface.Direction, cb iface.Callback) {
	if dir == iface.Write {
		that.writeCb = cb
	} else {
		that.readCb = cb
	}
}

// RegisterIOInterest stores cb in the named direction slot for fd,
// installing the demultiplexing trampoline with the reactor on the first
// interest for that descriptor. Registering over an occupied slot
// replaces its callback. Fails with ErrInvalidArgument when fd is not an
// open descriptor.
func (that *Adapter) RegisterIOInterest(fd int, dir iface.Direction, cb iface.Callback) error {
	if cb == nil {
		return errors.Wrap(errs.ErrInvalidArgument, "nil callback")
	}
	if dir != iface.Read && dir != iface.Write {
		return errors.Wrapf(errs.ErrInvalidArgument, "unknown direction %d", dir)
	}
	if err := sys.ValidateFd(fd); err != nil {
		return errors.Wrapf(errs.ErrInvalidArgument, "descriptor %d: %v", fd, err)
	}
	entry, found := that.watches[fd]
	if !found {
		entry = &watchEntry{}
		entry.set(dir, cb)
		if err := that.reactor.AddFd(fd, entry.mask(), that.dispatch); err != nil {
			return err
		}
		that.watches[fd] = entry
		return nil
	}
	before := entry.mask()
	entry.set(dir, cb)
	if after := entry.mask(); after != before {
		return that.reactor.ModFd(fd, after)
	}
	return nil
}

// DeregisterIOInterest clears the named slot. The entry and its reactor
// watch are dropped the instant both slots are empty. Clearing an absent
// slot or an unknown descriptor is a no-op.
func (that *Adapter) DeregisterIOInterest(fd int, dir iface.Direction) {
	entry, found := that.watches[fd]
	if !found {
		return
	}
	entry.set(dir, nil)
	if events := entry.mask(); events != 0 {
		if err := that.reactor.ModFd(fd, events); err != nil {
			logger.Warningf("watch update for fd %d failed: %v", fd, err)
		}
		return
	}
	delete(that.watches, fd)
	if err := that.reactor.RemoveFd(fd); err != nil {
		logger.Warningf("watch removal for fd %d failed: %v", fd, err)
	}
}

// dispatch is the demultiplexing trampoline installed with the reactor:
// it routes the reported readiness to the stored slots, write side first,
// and ends the current step once any host callback ran. The entry is
// looked up again between the two dispatches because the write callback
// may clear the read slot, or drop the descriptor entirely.
func (that *Adapter) dispatch(fd int, events uint32) {
	fired := false
	if events&(sys.EventWrite|sys.EventClosed) != 0 {
		if entry, found := that.watches[fd]; found && entry.writeCb != nil {
			entry.writeCb()
			fired = true
		}
	}
	if events&(sys.EventRead|sys.EventClosed) != 0 {
		if entry, found := that.watches[fd]; found && entry.readCb != nil {
			entry.readCb()
			fired = true
		}
	}
	if fired {
		if that.metrics != nil {
			that.metrics.IODispatchCounter.Inc()
		}
		that.reactor.Stop()
	}
}
