package poll

import (
	"testing"
	"time"
)

func TestTimerHeapOrdering(t *testing.T) {
	h := newTimerHeap()
	now := time.Unix(1000, 0)

	var order []int
	h.add(now, 300*time.Millisecond, func() { order = append(order, 3) })
	h.add(now, 100*time.Millisecond, func() { order = append(order, 1) })
	h.add(now, 200*time.Millisecond, func() { order = append(order, 2) })

	if got := h.nextDelay(now); got != 100*time.Millisecond {
		t.Errorf("nextDelay = %v, want 100ms", got)
	}
	for _, item := range h.popDue(now.Add(time.Second)) {
		item.cb()
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("fire order = %v, want [1 2 3]", order)
	}
	if got := h.nextDelay(now); got != -1 {
		t.Errorf("nextDelay on empty heap = %v, want -1", got)
	}
}

func TestTimerHeapRemove(t *testing.T) {
	h := newTimerHeap()
	now := time.Unix(1000, 0)

	var fired bool
	tok := h.add(now, 50*time.Millisecond, func() { fired = true })
	keep := h.add(now, 80*time.Millisecond, func() {})

	if !h.remove(tok) {
		t.Fatal("remove of a live token failed")
	}
	if h.remove(tok) {
		t.Error("second remove of the same token succeeded")
	}
	if got := h.nextDelay(now); got != 80*time.Millisecond {
		t.Errorf("nextDelay after removal = %v, want 80ms", got)
	}
	for _, item := range h.popDue(now.Add(time.Second)) {
		item.cb()
	}
	if fired {
		t.Error("removed timer still fired")
	}
	_ = keep
}

func TestTimerHeapNegativeDelayClamped(t *testing.T) {
	h := newTimerHeap()
	now := time.Unix(1000, 0)

	h.add(now, -time.Second, func() {})
	if got := h.nextDelay(now); got != 0 {
		t.Errorf("nextDelay for an overdue timer = %v, want 0", got)
	}
	if due := h.popDue(now); len(due) != 1 {
		t.Errorf("popDue returned %d items, want 1", len(due))
	}
}

func TestPopDueIsSnapshot(t *testing.T) {
	h := newTimerHeap()
	now := time.Unix(1000, 0)

	var late bool
	h.add(now, 10*time.Millisecond, func() {
		// arming a new overdue timer mid-batch must not extend the batch
		h.add(now, -time.Millisecond, func() { late = true })
	})

	for _, item := range h.popDue(now.Add(time.Second)) {
		item.cb()
	}
	if late {
		t.Error("timer armed during the batch fired in the same batch")
	}
	if got := h.nextDelay(now); got != 0 {
		t.Errorf("late timer lost: nextDelay = %v, want 0", got)
	}
}
