// SPDX-License-Identifier: MIT
/*
Package rtq provides the two task queues that bridge the control thread
and the render thread. They are deliberately distinct: the lock-free
queue feeds tasks into the render loop without blocking or locking on
the enqueue side, while the mutex queue carries bookkeeping the other
way and is allowed to allocate and block briefly.
*/
package rtq

import "sync/atomic"

// Task is a unit of deferred work.
type Task func()

type taskNode struct {
	task Task
	next *taskNode
}

// LockFreeQueue delivers control-thread tasks to the render thread. The
// hot path is a singly linked list with the head published atomically:
// enqueue never blocks, and drain takes the whole list in one exchange.
//
// Ordering guarantee: tasks drained within one call run in enqueue
// order; tasks enqueued during a drain are deferred to the next drain,
// never executed recursively within the same one.
type LockFreeQueue struct {
	head     atomic.Pointer[taskNode]
	draining atomic.Bool
	wake     func()
}

// NewLockFree returns a queue whose wake callback, if non-nil, fires
// when a task lands on a previously empty queue. The callback runs on
// the enqueuing goroutine and must not block.
func NewLockFree(wake func()) *LockFreeQueue {
	return &LockFreeQueue{wake: wake}
}

// Enqueue publishes a task. It allocates one list node but takes no
// locks and never blocks.
func (q *LockFreeQueue) Enqueue(task Task) {
	n := &taskNode{task: task}
	for {
		old := q.head.Load()
		n.next = old
		if q.head.CompareAndSwap(old, n) {
			if old == nil && q.wake != nil {
				q.wake()
			}
			return
		}
	}
}

// Drain exchanges the whole pending list for nil and runs the tasks in
// enqueue order, returning how many ran. A drain entered recursively
// (from inside a task) is a no-op; the nested tasks wait for the next
// drain.
func (q *LockFreeQueue) Drain() int {
	if !q.draining.CompareAndSwap(false, true) {
		return 0
	}
	defer q.draining.Store(false)

	head := q.head.Swap(nil)
	if head == nil {
		return 0
	}

	// The list is LIFO; reverse it to recover enqueue order.
	var ordered *taskNode
	for head != nil {
		next := head.next
		head.next = ordered
		ordered = head
		head = next
	}

	count := 0
	for n := ordered; n != nil; n = n.next {
		n.task()
		count++
	}
	return count
}

// Empty reports whether no tasks are pending.
func (q *LockFreeQueue) Empty() bool {
	return q.head.Load() == nil
}
