// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package task

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/soar-avionics/sob/pkg/command"
)

// Task is the inbound surface every subsystem exposes.
type Task interface {
	Name() string
	InitTask(s *Scheduler)
	SendCommand(ctx context.Context, cmd command.Command) error
}

// Handler handles one command taken off a task queue.
type Handler interface {
	HandleCommand(ctx context.Context, cmd *command.Command)
}

// HandlerFunc is the func form of Handler.
type HandlerFunc func(ctx context.Context, cmd *command.Command)

// HandleCommand implements Handler.
func (f HandlerFunc) HandleCommand(ctx context.Context, cmd *command.Command) {
	f(ctx, cmd)
}

// Dispatch hands cmd to h and releases its payload afterwards, whichever path
// the handler took.
func Dispatch(ctx context.Context, h Handler, cmd command.Command) {
	defer cmd.Reset()
	h.HandleCommand(ctx, &cmd)
}

// Base carries the state shared by every task: its spec, its queue and the
// one-shot registration flag. Concrete tasks embed *Base.
type Base struct {
	spec        Spec
	queue       *command.Queue
	initialized atomic.Bool
}

// NewBase creates the task base and its command queue.
func NewBase(spec Spec) (*Base, error) {
	q, err := command.NewQueue(spec.QueueDepth)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", spec.Name, err)
	}
	return &Base{spec: spec, queue: q}, nil
}

// Name returns the task name
func (b *Base) Name() string {
	return b.spec.Name
}

// Spec returns the scheduling spec
func (b *Base) Spec() Spec {
	return b.spec
}

// Queue returns the task's command queue
func (b *Base) Queue() *command.Queue {
	return b.queue
}

// Initialized reports whether Init has registered the task
func (b *Base) Initialized() bool {
	return b.initialized.Load()
}

// Init registers run with the scheduler. A second call, or the scheduler
// refusing the task, halts the system.
func (b *Base) Init(s *Scheduler, run Entry) {
	if !b.initialized.CompareAndSwap(false, true) {
		s.Halt(fmt.Errorf("%w: %s", ErrAlreadyInitialized, b.spec.Name))
		return
	}
	if err := s.Create(b.spec, run); err != nil {
		s.Halt(err)
	}
}

// SendCommand enqueues cmd from task context, blocking while the queue is full.
func (b *Base) SendCommand(ctx context.Context, cmd command.Command) error {
	return b.queue.Send(ctx, cmd)
}

// SendCommandFromISR enqueues cmd without blocking.
func (b *Base) SendCommandFromISR(cmd command.Command) error {
	return b.queue.SendFromISR(cmd)
}
