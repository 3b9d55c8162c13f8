// Package queue is the bounded per-service command FIFO that sits between the
// router and a service task.
package queue

import (
	"context"
	"time"

	"dualcore-go/errcode"
	"dualcore-go/ipc"
)

const (
	DefaultCapacity       = 8
	DefaultEnqueueTimeout = 100 * time.Millisecond
	DefaultDequeueTimeout = 1000 * time.Millisecond
)

// Queue holds full envelopes by value.
type Queue struct {
	name string
	ch   chan ipc.Message
}

// New creates a queue; capacity <= 0 selects DefaultCapacity.
func New(name string, capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{name: name, ch: make(chan ipc.Message, capacity)}
}

func (q *Queue) Name() string { return q.name }
func (q *Queue) Len() int     { return len(q.ch) }
func (q *Queue) Cap() int     { return cap(q.ch) }

// Enqueue tries once without blocking, then waits up to timeout for space.
// On overflow the message is not queued and GaveUp is returned.
func (q *Queue) Enqueue(m ipc.Message, timeout time.Duration) error {
	select {
	case q.ch <- m:
		return nil
	default:
	}
	if timeout <= 0 {
		return &errcode.E{C: errcode.GaveUp, Op: q.name + ".enqueue", Msg: "queue full"}
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case q.ch <- m:
		return nil
	case <-t.C:
		return &errcode.E{C: errcode.GaveUp, Op: q.name + ".enqueue", Err: errcode.QueueFull}
	}
}

// Dequeue waits up to timeout for the next message. ok is false on timeout
// or when ctx ends, which callers use as their housekeeping tick.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (m ipc.Message, ok bool) {
	select {
	case m = <-q.ch:
		return m, true
	default:
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case m = <-q.ch:
		return m, true
	case <-t.C:
		return m, false
	case <-ctx.Done():
		return m, false
	}
}
