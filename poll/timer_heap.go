package poll

import (
	"container/heap"
	"time"

	"github.com/steploop/steploop/iface"
)

type timerItem struct {
	token   uint64
	firesAt time.Time
	cb      iface.Callback
	index   int
}

// timerHeap orders pending one-shot timers by fire time and keeps a token
// index so removal needs no scan.
type timerHeap struct {
	items     []*timerItem
	byToken   map[uint64]*timerItem
	nextToken uint64
}

func newTimerHeap() *timerHeap {
	return &timerHeap{byToken: make(map[uint64]*timerItem)}
}

func (that *timerHeap) Len() int { return len(that.items) }

func (that *timerHeap) Less(i, j int) bool {
	if that.items[i].firesAt.Equal(that.items[j].firesAt) {
		return that.items[i].token < that.items[j].token
	}
	return that.items[i].firesAt.Before(that.items[j].firesAt)
}

func (that *timerHeap) Swap(i, j int) {
	that.items[i], that.items[j] = that.items[j], that.items[i]
	that.items[i].index = i
	that.items[j].index = j
}

func (that *timerHeap) Push(x interface{}) {
	item := x.(*timerItem)
	item.index = len(that.items)
	that.items = append(that.items, item)
}

func (that *timerHeap) Pop() interface{} {
	old := that.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	that.items = old[:n-1]
	return item
}

func (that *timerHeap) add(now time.Time, delay time.Duration, cb iface.Callback) uint64 {
	if delay < 0 {
		delay = 0
	}
	that.nextToken++
	item := &timerItem{token: that.nextToken, firesAt: now.Add(delay), cb: cb}
	heap.Push(that, item)
	that.byToken[item.token] = item
	return item.token
}

func (that *timerHeap) remove(token uint64) bool {
	item, found := that.byToken[token]
	if !found {
		return false
	}
	delete(that.byToken, token)
	heap.Remove(that, item.index)
	return true
}

// nextDelay returns the wait before the earliest timer is due, or -1 when
// no timer is pending.
func (that *timerHeap) nextDelay(now time.Time) time.Duration {
	if len(that.items) == 0 {
		return -1
	}
	d := that.items[0].firesAt.Sub(now)
	if d < 0 {
		d = 0
	}
	return d
}

// popDue removes and returns every timer due at now. The due set is
// snapshotted before any callback runs, so a callback arming a new timer
// cannot extend the batch it is part of.
func (that *timerHeap) popDue(now time.Time) (due []*timerItem) {
	for len(that.items) > 0 && !that.items[0].firesAt.After(now) {
		item := heap.Pop(that).(*timerItem)
		delete(that.byToken, item.token)
		due = append(due, item)
	}
	return
}
