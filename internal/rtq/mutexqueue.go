// SPDX-License-Identifier: MIT
package rtq

import "sync"

// MutexQueue is the control-thread counterpart of LockFreeQueue. It is
// used off the render path where blocking briefly on a mutex is fine,
// for example to run retired-update reclamation and tap flushing on the
// control goroutine.
type MutexQueue struct {
	mu       sync.Mutex
	tasks    []Task
	draining bool
}

// Enqueue appends a task. Safe from any goroutine, including from
// inside a task running under Drain; such tasks are picked up by the
// next Drain call.
func (q *MutexQueue) Enqueue(task Task) {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
}

// Drain swaps the pending slice out under the lock and runs the tasks
// without holding it, so tasks may enqueue freely. Re-entrant calls
// return immediately.
func (q *MutexQueue) Drain() int {
	q.mu.Lock()
	if q.draining || len(q.tasks) == 0 {
		q.mu.Unlock()
		return 0
	}
	q.draining = true
	batch := q.tasks
	q.tasks = nil
	q.mu.Unlock()

	for _, task := range batch {
		task()
	}

	q.mu.Lock()
	q.draining = false
	q.mu.Unlock()
	return len(batch)
}

// Len reports the number of pending tasks.
func (q *MutexQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
