// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrQueueFull is returned by SendFromISR when no slot is free.
	ErrQueueFull = errors.New("command queue full")
	// ErrQueueClosed is returned once the queue has been closed.
	ErrQueueClosed = errors.New("command queue closed")
	// ErrInvalidDepth is returned when creating a queue without capacity.
	ErrInvalidDepth = errors.New("invalid command queue depth")
)

// Queue is a bounded FIFO of Commands with a single reader and any number of
// writers. The capacity is fixed at creation.
type Queue struct {
	items     chan Command
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue creates a queue holding up to depth commands.
func NewQueue(depth int) (*Queue, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, depth)
	}
	return &Queue{
		items: make(chan Command, depth),
		done:  make(chan struct{}),
	}, nil
}

// Cap returns the fixed queue capacity
func (q *Queue) Cap() int {
	return cap(q.items)
}

// Len returns the number of queued commands
func (q *Queue) Len() int {
	return len(q.items)
}

// Close marks the queue permanently closed. Queued commands are still
// delivered to the reader; further sends fail.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

func (q *Queue) closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// Send enqueues cmd, blocking while the queue is full until space frees up or
// ctx ends. Callers choose a bounded wait with a deadline on ctx.
func (q *Queue) Send(ctx context.Context, cmd Command) error {
	if q.closed() {
		return ErrQueueClosed
	}
	select {
	case q.items <- cmd:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendTimeout enqueues cmd, waiting at most timeout for space.
func (q *Queue) SendTimeout(cmd Command, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return q.Send(ctx, cmd)
}

// SendFromISR enqueues cmd without blocking or allocating. A full queue is
// reported with ErrQueueFull so the caller can take local corrective action.
func (q *Queue) SendFromISR(cmd Command) error {
	if q.closed() {
		return ErrQueueClosed
	}
	select {
	case q.items <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// ReceiveWait blocks until a command is available or ctx ends.
func (q *Queue) ReceiveWait(ctx context.Context) (Command, error) {
	select {
	case cmd := <-q.items:
		return cmd, nil
	case <-ctx.Done():
		return Command{}, ctx.Err()
	}
}

// Receive waits up to timeout for a command. ok is false when the timeout
// elapsed with the queue empty.
func (q *Queue) Receive(timeout time.Duration) (cmd Command, ok bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case cmd = <-q.items:
		return cmd, true
	case <-timer.C:
		return Command{}, false
	}
}

// TryReceive polls the queue without blocking.
func (q *Queue) TryReceive() (cmd Command, ok bool) {
	select {
	case cmd = <-q.items:
		return cmd, true
	default:
		return Command{}, false
	}
}
