package poll

import (
	"sync/atomic"
	"unsafe"
)

// taskQueue is a lock-free multi-producer queue so AddTask stays safe from
// any goroutine while the loop goroutine drains.
type taskQueue struct {
	head   unsafe.Pointer
	tail   unsafe.Pointer
	length int32
}

type taskNode struct {
	value *task
	next  unsafe.Pointer
}

func newTaskQueue() *taskQueue {
	n := unsafe.Pointer(&taskNode{})
	return &taskQueue{head: n, tail: n}
}

func (that *taskQueue) enqueue(t *task) {
	n := &taskNode{value: t}
	for {
		tail := loadNode(&that.tail)
		next := loadNode(&tail.next)
		if tail == loadNode(&that.tail) {
			if next == nil {
				if casNode(&tail.next, next, n) {
					casNode(&that.tail, tail, n)
					atomic.AddInt32(&that.length, 1)
					return
				}
			} else {
				casNode(&that.tail, tail, next)
			}
		}
	}
}

func (that *taskQueue) dequeue() *task {
	for {
		head := loadNode(&that.head)
		tail := loadNode(&that.tail)
		next := loadNode(&head.next)
		if head == loadNode(&that.head) {
			if head == tail {
				if next == nil {
					return nil
				}
				casNode(&that.tail, tail, next)
			} else {
				t := next.value // the first node is blank.
				if casNode(&that.head, head, next) {
					atomic.AddInt32(&that.length, -1)
					return t
				}
			}
		}
	}
}

func (that *taskQueue) isEmpty() bool {
	return atomic.LoadInt32(&that.length) == 0
}

func loadNode(p *unsafe.Pointer) *taskNode {
	return (*taskNode)(atomic.LoadPointer(p))
}

func casNode(p *unsafe.Pointer, old, new *taskNode) bool {
	return atomic.CompareAndSwapPointer(p, unsafe.Pointer(old), unsafe.Pointer(new))
}
