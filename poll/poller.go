/*
Poller is a run-until-stopped reactor over the platform poller from package
sys: it blocks in a wait loop dispatching fd readiness, due timers and
posted tasks until one of the callbacks (or another goroutine) calls Stop.
*/
package poll

import (
	"sync/atomic"
	"time"

	"github.com/moqsien/processes/logger"
	"github.com/panjf2000/ants/v2"

	"github.com/steploop/steploop/iface"
	"github.com/steploop/steploop/sys"
	"github.com/steploop/steploop/utils"
)

type Poller struct {
	pollFd     int                      // poll file descriptor
	pollEvFd   int                      // wakeup file descriptor
	callbacks  map[int]iface.IOCallback // fd -> readiness callback
	timers     *timerHeap               // pending one-shot timers
	priorTasks *taskQueue               // tasks with priority
	tasks      *taskQueue               // tasks
	toTrigger  int32                    // atomic number to trigger tasks
	stopped    int32                    // set by Stop to end Start
	Pool       *ants.Pool               // optional goroutine pool for running tasks
	buf        *sys.EventBuffer
	evList     []sys.PollEvent
	size       int
}

func New() (p *Poller, err error) {
	p = new(Poller)
	if p.pollFd, p.pollEvFd, err = sys.CreatePoll(); err != nil {
		p = nil
		return
	}
	p.callbacks = make(map[int]iface.IOCallback)
	p.timers = newTimerHeap()
	p.priorTasks = newTaskQueue()
	p.tasks = newTaskQueue()
	p.size = sys.InitPollSize
	p.buf = sys.NewEventBuffer(p.size)
	p.evList = make([]sys.PollEvent, p.size)
	return
}

func (that *Poller) GetFd() int {
	return that.pollFd
}

// AddFd watches fd for the given event mask. One registration per fd; the
// callback receives every readiness report until RemoveFd.
func (that *Poller) AddFd(fd int, events uint32, cb iface.IOCallback) (err error) {
	if err = sys.AddFd(that.pollFd, fd, events); err != nil {
		return
	}
	that.callbacks[fd] = cb
	return
}

func (that *Poller) ModFd(fd int, events uint32) error {
	return sys.ModFd(that.pollFd, fd, events)
}

func (that *Poller) RemoveFd(fd int) error {
	delete(that.callbacks, fd)
	return sys.DelFd(that.pollFd, fd)
}

// AddTimer arms a one-shot timer. The returned token is only valid until
// the timer fires or is removed.
func (that *Poller) AddTimer(delay time.Duration, cb iface.Callback) (uint64, error) {
	return that.timers.add(time.Now(), delay, cb), nil
}

func (that *Poller) RemoveTimer(token uint64) bool {
	return that.timers.remove(token)
}

// AddTask posts f to run on the loop goroutine after the current wait,
// waking the loop if it is blocked. Safe from any goroutine.
func (that *Poller) AddTask(f TaskFunc, arg TaskArg) (err error) {
	t := getTask()
	t.Go, t.Arg = f, arg
	that.tasks.enqueue(t)
	if atomic.CompareAndSwapInt32(&that.toTrigger, 0, 1) {
		err = sys.Trigger(that.pollFd, that.pollEvFd)
	}
	return
}

func (that *Poller) AddPriorTask(f TaskFunc, arg TaskArg) (err error) {
	t := getTask()
	t.Go, t.Arg = f, arg
	that.priorTasks.enqueue(t)
	if atomic.CompareAndSwapInt32(&that.toTrigger, 0, 1) {
		err = sys.Trigger(that.pollFd, that.pollEvFd)
	}
	return
}

// Start blocks running the wait loop until Stop is called. Each pass
// performs one bounded wait, dispatches readiness callbacks, fires the due
// timer batch, then drains posted tasks.
func (that *Poller) Start() error {
	atomic.StoreInt32(&that.stopped, 0)
	for {
		n, triggered, err := sys.WaitOnce(that.pollFd, that.pollEvFd, that.timers.nextDelay(time.Now()), that.buf, that.evList)
		if err != nil {
			logger.Errorf("error occurs in poll wait: %v", err)
			return err
		}
		for i := 0; i < n; i++ {
			ev := that.evList[i]
			// looked up per event: a callback may remove any fd,
			// including its own.
			if cb, found := that.callbacks[ev.Fd]; found {
				cb(ev.Fd, ev.Events)
			}
		}
		for _, item := range that.timers.popDue(time.Now()) {
			item.cb()
		}
		if triggered {
			that.runTasks()
		}
		if atomic.LoadInt32(&that.stopped) != 0 {
			return nil
		}
		that.resizeEventList(n)
	}
}

// Stop ends the current (or next) Start call. Safe from any goroutine.
func (that *Poller) Stop() {
	if atomic.CompareAndSwapInt32(&that.stopped, 0, 1) {
		if err := sys.Trigger(that.pollFd, that.pollEvFd); err != nil {
			logger.Warningf("wakeup trigger failed: %v", err)
		}
	}
}

func (that *Poller) runTask(t *task) {
	if that.Pool == nil {
		if err := t.Go(t.Arg); err != nil {
			logger.Warningf("error occurs in posted task: %v", err)
		}
		putTask(t)
		return
	}
	that.Pool.Submit(func() {
		if err := t.Go(t.Arg); err != nil {
			logger.Warningf("error occurs in posted task: %v", err)
		}
		putTask(t)
	})
}

func (that *Poller) runTasks() {
	for t := that.priorTasks.dequeue(); t != nil; t = that.priorTasks.dequeue() {
		that.runTask(t)
	}
	for i := 0; i < iface.MaxTasks; i++ {
		t := that.tasks.dequeue()
		if t == nil {
			break
		}
		that.runTask(t)
	}
	atomic.StoreInt32(&that.toTrigger, 0)
	if (!that.tasks.isEmpty() || !that.priorTasks.isEmpty()) && atomic.CompareAndSwapInt32(&that.toTrigger, 0, 1) {
		if err := sys.Trigger(that.pollFd, that.pollEvFd); err != nil {
			logger.Warningf("task re-trigger failed: %v", err)
		}
	}
}

func (that *Poller) resizeEventList(n int) {
	if n == that.size && that.size<<1 <= sys.MaxPollSize {
		that.size <<= 1
	} else if n < that.size>>1 && that.size>>1 >= sys.MinPollSize {
		that.size >>= 1
	} else {
		return
	}
	that.buf.Resize(that.size)
	that.evList = make([]sys.PollEvent, that.size)
}

func (that *Poller) Close() error {
	if err := utils.SysError("pollfd_close", sys.CloseFd(that.pollFd)); err != nil {
		return err
	}
	if that.pollEvFd != that.pollFd && that.pollEvFd > 0 {
		return utils.SysError("pollevfd_close", sys.CloseFd(that.pollEvFd))
	}
	return nil
}
