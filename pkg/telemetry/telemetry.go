// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telemetry implements the periodic logging task that asks each
// sensor task to sample and transmit.
package telemetry

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/soar-avionics/sob/pkg/command"
	"github.com/soar-avionics/sob/pkg/sensors"
	"github.com/soar-avionics/sob/pkg/task"
)

// DefaultPeriod is the logging period used when none is configured
const DefaultPeriod = 500 * time.Millisecond

// CommandSender is a task that accepts commands
type CommandSender interface {
	SendCommand(ctx context.Context, cmd command.Command) error
}

// Config configures the telemetry task
type Config struct {
	Task      task.Spec
	Period    time.Duration
	IncludeIR bool
}

// Telemetry runs the log sequence once per period. A TASK_SPECIFIC command
// whose sub-code is a period in milliseconds changes the period.
type Telemetry struct {
	*task.Base

	loadCell     CommandSender
	thermocouple CommandSender
	ir           CommandSender
	includeIR    bool
	periodMs     atomic.Int64
	log          *zap.Logger
}

// New creates the telemetry task. Any sender may be nil to skip that sensor.
func New(cfg Config, loadCell, thermocouple, ir CommandSender, log *zap.Logger) (*Telemetry, error) {
	base, err := task.NewBase(cfg.Task)
	if err != nil {
		return nil, err
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if log == nil {
		log = zap.NewNop()
	}
	t := &Telemetry{
		Base:         base,
		loadCell:     loadCell,
		thermocouple: thermocouple,
		ir:           ir,
		includeIR:    cfg.IncludeIR,
		log:          log,
	}
	t.periodMs.Store(cfg.Period.Milliseconds())
	return t, nil
}

// InitTask registers the task with the scheduler
func (t *Telemetry) InitTask(s *task.Scheduler) {
	t.Init(s, t.Run)
}

// Period returns the current logging period
func (t *Telemetry) Period() time.Duration {
	return time.Duration(t.periodMs.Load()) * time.Millisecond
}

// Run is the telemetry task loop
func (t *Telemetry) Run(ctx context.Context) {
	timer := time.NewTimer(t.Period())
	defer timer.Stop()

	for {
		// process everything queued this cycle
		for {
			cmd, ok := t.Queue().TryReceive()
			if !ok {
				break
			}
			task.Dispatch(ctx, t, cmd)
		}

		timer.Reset(t.Period())
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		t.RunLogSequence(ctx)
	}
}

// HandleCommand handles one command from the telemetry queue
func (t *Telemetry) HandleCommand(ctx context.Context, cmd *command.Command) {
	if cmd.Class != command.ClassTaskSpecific {
		t.log.Warn("unsupported command", zap.Stringer("command", cmd))
		return
	}
	if cmd.SubCode == 0 {
		t.log.Warn("rejected zero telemetry period")
		return
	}
	t.periodMs.Store(int64(cmd.SubCode))
	t.log.Info("telemetry period changed", zap.Duration("period", t.Period()))
}

// RunLogSequence requests a sample and a transmit from each sensor task
func (t *Telemetry) RunLogSequence(ctx context.Context) {
	t.request(ctx, "loadcell", t.loadCell, sensors.LoadCellNewSample, sensors.LoadCellTransmit)
	t.request(ctx, "thermocouple", t.thermocouple, sensors.RequestNewSample, sensors.RequestTransmit)
	if t.includeIR {
		t.request(ctx, "ir", t.ir, sensors.RequestNewSample, sensors.RequestTransmit)
	}
}

func (t *Telemetry) request(ctx context.Context, name string, dst CommandSender, subCodes ...uint16) {
	if dst == nil {
		return
	}
	// Never wait longer than one period on a backed-up sensor queue.
	ctx, cancel := context.WithTimeout(ctx, t.Period())
	defer cancel()
	for _, sub := range subCodes {
		if err := dst.SendCommand(ctx, command.New(command.ClassRequest, sub)); err != nil {
			t.log.Warn("sensor request not queued", zap.String("task", name), zap.Uint16("sub_code", sub), zap.Error(err))
			return
		}
	}
}
