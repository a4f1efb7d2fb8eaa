// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package task provides the base every board subsystem builds on: a command
// queue, one-shot registration with the Scheduler, and a Run loop that lives
// for the whole program.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Priority bounds. Goroutines are not prioritised by the Go runtime; the value
// is carried for start-up ordering and diagnostics only.
const (
	MinPriority = 0
	MaxPriority = 15
)

// DefaultMaxTasks is the number of tasks a Scheduler accepts by default.
const DefaultMaxTasks = 16

var (
	// ErrSchedulerRejected is returned when the scheduler refuses a task.
	ErrSchedulerRejected = errors.New("scheduler rejected task")
	// ErrAlreadyInitialized is the contract violation raised by a second Init.
	ErrAlreadyInitialized = errors.New("task initialized twice")
	// ErrTaskExited is raised when a Run loop returns while the system is up.
	ErrTaskExited = errors.New("task run loop exited")
)

// Spec describes a task to the scheduler.
type Spec struct {
	Name            string
	StackDepthWords uint16
	Priority        int
	QueueDepth      int
}

// Entry is a task run loop. It must only return once ctx is done.
type Entry func(ctx context.Context)

type registration struct {
	spec  Spec
	entry Entry
}

// Scheduler owns task registration and start-up. Failures it reports are
// fatal: they go through Halt rather than back to the caller's caller.
type Scheduler struct {
	log      *zap.Logger
	halt     func(error)
	maxTasks int

	mu      sync.Mutex
	started bool
	tasks   []registration
	names   map[string]struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithHalt replaces the halt function invoked on fatal contract violations.
func WithHalt(halt func(error)) Option {
	return func(s *Scheduler) { s.halt = halt }
}

// WithMaxTasks limits how many tasks can be created.
func WithMaxTasks(n int) Option {
	return func(s *Scheduler) { s.maxTasks = n }
}

// NewScheduler creates a scheduler. Without WithHalt, a fatal error logs and
// exits the process.
func NewScheduler(log *zap.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{
		log:      log,
		maxTasks: DefaultMaxTasks,
		names:    make(map[string]struct{}),
	}
	s.halt = func(err error) {
		s.log.Fatal("system halted", zap.Error(err))
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers entry to be started by Run.
func (s *Scheduler) Create(spec Spec, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.started:
		return fmt.Errorf("%w: %s: scheduler already running", ErrSchedulerRejected, spec.Name)
	case entry == nil:
		return fmt.Errorf("%w: %s: nil entry point", ErrSchedulerRejected, spec.Name)
	case spec.Name == "":
		return fmt.Errorf("%w: empty task name", ErrSchedulerRejected)
	case len(s.tasks) >= s.maxTasks:
		return fmt.Errorf("%w: %s: task limit %d reached", ErrSchedulerRejected, spec.Name, s.maxTasks)
	case spec.StackDepthWords == 0:
		return fmt.Errorf("%w: %s: zero stack budget", ErrSchedulerRejected, spec.Name)
	case spec.Priority < MinPriority || spec.Priority > MaxPriority:
		return fmt.Errorf("%w: %s: priority %d out of range", ErrSchedulerRejected, spec.Name, spec.Priority)
	}
	if _, dup := s.names[spec.Name]; dup {
		return fmt.Errorf("%w: %s: duplicate task name", ErrSchedulerRejected, spec.Name)
	}

	s.names[spec.Name] = struct{}{}
	s.tasks = append(s.tasks, registration{spec: spec, entry: entry})
	s.log.Debug("task created",
		zap.String("task", spec.Name),
		zap.Int("priority", spec.Priority),
		zap.Uint16("stack_words", spec.StackDepthWords))
	return nil
}

// Tasks returns the registered task specs in creation order.
func (s *Scheduler) Tasks() []Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	specs := make([]Spec, len(s.tasks))
	for i, t := range s.tasks {
		specs[i] = t.spec
	}
	return specs
}

// Halt stops the system on a fatal contract violation.
func (s *Scheduler) Halt(err error) {
	s.log.Error("fatal contract violation", zap.Error(err))
	s.halt(err)
}

// Run starts every registered task, highest priority first, and blocks until
// ctx is done and all run loops have returned. A run loop that returns early
// halts the system.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("%w: scheduler already running", ErrSchedulerRejected)
	}
	s.started = true
	tasks := make([]registration, len(s.tasks))
	copy(tasks, s.tasks)
	s.mu.Unlock()

	sortByPriority(tasks)

	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		go func(t registration) {
			defer wg.Done()
			s.log.Debug("task started", zap.String("task", t.spec.Name))
			t.entry(ctx)
			if ctx.Err() == nil {
				s.Halt(fmt.Errorf("%w: %s", ErrTaskExited, t.spec.Name))
				return
			}
			s.log.Debug("task stopped", zap.String("task", t.spec.Name))
		}(t)
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func sortByPriority(tasks []registration) {
	// insertion sort keeps creation order among equal priorities
	for i := 1; i < len(tasks); i++ {
		for j := i; j > 0 && tasks[j].spec.Priority > tasks[j-1].spec.Priority; j-- {
			tasks[j], tasks[j-1] = tasks[j-1], tasks[j]
		}
	}
}
