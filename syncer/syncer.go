// Package syncer runs the fire-and-forget remote work (sheet appends,
// deletes, prefetch rewarms) on a background queue. Local state is the
// baseline guarantee: a failed task is logged, never retried into the
// synchronous path and never rolls anything back.
package syncer

import (
	"context"
	"log"
	"sync"
	"time"
)

type task struct {
	name string
	fn   func(ctx context.Context) error
}

type Queue struct {
	tasks   chan task
	timeout time.Duration
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New starts the worker. timeout bounds each task's context.
func New(buffer int, timeout time.Duration) *Queue {
	if buffer <= 0 {
		buffer = 64
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	q := &Queue{
		tasks:   make(chan task, buffer),
		timeout: timeout,
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// Enqueue schedules a background task. When the queue is full or closed
// the task is dropped with a log line rather than blocking a save.
func (q *Queue) Enqueue(name string, fn func(ctx context.Context) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		log.Printf("WARN: [Sync] queue closed, dropping task '%s'", name)
		return
	}
	select {
	case q.tasks <- task{name: name, fn: fn}:
	default:
		log.Printf("WARN: [Sync] queue full, dropping task '%s'", name)
	}
}

// Close stops intake and waits for queued tasks to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) run() {
	defer q.wg.Done()
	for t := range q.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		err := t.fn(ctx)
		cancel()
		if err != nil {
			log.Printf("ERROR: [Sync] task '%s' failed: %v", t.name, err)
			continue
		}
		log.Printf("INFO: [Sync] task '%s' done", t.name)
	}
}
