// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package board assembles the sensor board: the scheduler, the protocol
// router and every sensor task, each built exactly once.
package board

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/soar-avionics/sob/pkg/config"
	"github.com/soar-avionics/sob/pkg/router"
	"github.com/soar-avionics/sob/pkg/sensors"
	"github.com/soar-avionics/sob/pkg/sobproto"
	"github.com/soar-avionics/sob/pkg/task"
	"github.com/soar-avionics/sob/pkg/telemetry"
)

// Drivers are the hardware collaborators
type Drivers struct {
	LoadCell     sensors.LoadCellADC
	Thermocouple sensors.ThermocoupleReader
	IR           sensors.IRReader
}

// Forwarder receives telemetry addressed to this board
type Forwarder interface {
	Forward(env sobproto.Envelope, msg sobproto.TelemetryMessage) error
}

type options struct {
	halt       func(error)
	forwarder  Forwarder
	routerOpts []router.Option
	now        func() time.Time
}

// Option configures Build
type Option func(*options)

// WithHalt replaces the fatal halt policy
func WithHalt(fn func(error)) Option {
	return func(o *options) { o.halt = fn }
}

// WithForwarder hands received telemetry to f instead of logging it
func WithForwarder(f Forwarder) Option {
	return func(o *options) { o.forwarder = f }
}

// WithRouterOptions passes options through to the router
func WithRouterOptions(opts ...router.Option) Option {
	return func(o *options) { o.routerOpts = append(o.routerOpts, opts...) }
}

// Board owns the tasks
type Board struct {
	Scheduler    *task.Scheduler
	Router       *router.Router
	LoadCell     *sensors.LoadCell
	Thermocouple *sensors.Thermocouple
	IR           *sensors.IR
	Telemetry    *telemetry.Telemetry

	forwarder Forwarder
	log       *zap.Logger
	now       func() time.Time
	started   time.Time
}

func spec(name string, tc config.TaskConfig) task.Spec {
	return task.Spec{
		Name:            name,
		StackDepthWords: uint16(tc.StackWords),
		Priority:        tc.Priority,
		QueueDepth:      tc.QueueDepth,
	}
}

// Build creates and registers every task. tx carries outgoing frames and may
// be nil for receive-only use.
func Build(cfg *config.Config, tx io.Writer, drv Drivers, log *zap.Logger, opts ...Option) (*Board, error) {
	if log == nil {
		log = zap.NewNop()
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	self, err := cfg.NodeID()
	if err != nil {
		return nil, fmt.Errorf("node: %w", err)
	}
	target, err := cfg.TelemetryTarget()
	if err != nil {
		return nil, fmt.Errorf("telemetry target: %w", err)
	}

	var schedOpts []task.Option
	if o.halt != nil {
		schedOpts = append(schedOpts, task.WithHalt(o.halt))
	}

	b := &Board{
		Scheduler: task.NewScheduler(log.Named("scheduler"), schedOpts...),
		forwarder: o.forwarder,
		log:       log.Named("sob"),
		now:       o.now,
		started:   o.now(),
	}

	// The router is created first so the sensor tasks can transmit through
	// it; its handler is attached once they exist.
	b.Router, err = router.New(router.Config{
		Self:          self,
		Task:          spec("protocol", cfg.Tasks.Protocol),
		RxBufferBytes: cfg.Link.RxBufferBytes,
		TxBufferBytes: cfg.Link.TxBufferBytes,
		InterByteGap:  time.Duration(cfg.Link.InterByteGapMs) * time.Millisecond,
	}, tx, nil, log.Named("router"), o.routerOpts...)
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}

	b.LoadCell, err = sensors.NewLoadCell(sensors.LoadCellConfig{
		Task:            spec("loadcell", cfg.Tasks.LoadCell),
		TareSamples:     cfg.LoadCell.TareSamples,
		SampleAverage:   cfg.LoadCell.SampleAverage,
		PollInterval:    time.Duration(cfg.LoadCell.PollIntervalMs) * time.Millisecond,
		TelemetryTarget: target,
	}, drv.LoadCell, b.Router, log.Named("loadcell"))
	if err != nil {
		return nil, fmt.Errorf("load cell: %w", err)
	}

	b.Thermocouple, err = sensors.NewThermocouple(sensors.ReactiveConfig{
		Task:            spec("thermocouple", cfg.Tasks.Thermocouple),
		TelemetryTarget: target,
	}, drv.Thermocouple, b.Router, log.Named("thermocouple"))
	if err != nil {
		return nil, fmt.Errorf("thermocouple: %w", err)
	}

	b.IR, err = sensors.NewIR(sensors.ReactiveConfig{
		Task:            spec("ir", cfg.Tasks.IR),
		TelemetryTarget: target,
	}, drv.IR, b.Router, log.Named("ir"))
	if err != nil {
		return nil, fmt.Errorf("ir: %w", err)
	}

	b.Telemetry, err = telemetry.New(telemetry.Config{
		Task:      spec("telemetry", cfg.Tasks.Telemetry),
		Period:    time.Duration(cfg.Telemetry.PeriodMs) * time.Millisecond,
		IncludeIR: cfg.Telemetry.IncludeIR,
	}, b.LoadCell, b.Thermocouple, b.IR, log.Named("telemetry"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	b.Router.SetHandler(b)

	b.Router.InitTask(b.Scheduler)
	b.LoadCell.InitTask(b.Scheduler)
	b.Thermocouple.InitTask(b.Scheduler)
	b.IR.InitTask(b.Scheduler)
	b.Telemetry.InitTask(b.Scheduler)

	return b, nil
}

// Run starts the scheduler and blocks until ctx is done
func (b *Board) Run(ctx context.Context) error {
	b.log.Info("board starting",
		zap.Stringer("node", b.Router.Self()),
		zap.Int("tasks", len(b.Scheduler.Tasks())))
	return b.Scheduler.Run(ctx)
}

// Uptime returns the time since Build
func (b *Board) Uptime() time.Duration {
	return b.now().Sub(b.started)
}
