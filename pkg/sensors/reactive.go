// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sensors

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/soar-avionics/sob/pkg/command"
	"github.com/soar-avionics/sob/pkg/sobproto"
	"github.com/soar-avionics/sob/pkg/task"
)

// ReactiveConfig configures a purely reactive sensor task
type ReactiveConfig struct {
	Task            task.Spec
	TelemetryTarget sobproto.Node
}

// reactive is a sensor task that blocks on its queue and only samples or
// transmits when told to. The last good sample survives driver faults.
type reactive[T any] struct {
	*task.Base

	cfg    ReactiveConfig
	read   func() (T, error)
	encode func(T) ([]byte, error)
	tx     Transmitter
	log    *zap.Logger

	mu      sync.Mutex
	last    T
	sampled bool
}

func newReactive[T any](cfg ReactiveConfig, read func() (T, error), encode func(T) ([]byte, error), tx Transmitter, log *zap.Logger) (*reactive[T], error) {
	base, err := task.NewBase(cfg.Task)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &reactive[T]{Base: base, cfg: cfg, read: read, encode: encode, tx: tx, log: log}, nil
}

// InitTask registers the task with the scheduler
func (r *reactive[T]) InitTask(s *task.Scheduler) {
	r.Init(s, r.Run)
}

// Last returns the most recent good sample and whether one exists
func (r *reactive[T]) Last() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.sampled
}

// Run is the task loop
func (r *reactive[T]) Run(ctx context.Context) {
	for {
		cmd, err := r.Queue().ReceiveWait(ctx)
		if err != nil {
			return
		}
		task.Dispatch(ctx, r, cmd)
	}
}

// HandleCommand handles one command from the queue
func (r *reactive[T]) HandleCommand(ctx context.Context, cmd *command.Command) {
	if cmd.Class != command.ClassRequest {
		r.log.Warn("unsupported command", zap.Stringer("command", cmd))
		return
	}

	switch cmd.SubCode {
	case RequestNewSample:
		v, err := r.read()
		if err != nil {
			r.log.Warn("sensor read failed", zap.Error(err))
			return
		}
		r.mu.Lock()
		r.last, r.sampled = v, true
		r.mu.Unlock()
	case RequestTransmit:
		r.transmit()
	case RequestDebug:
		v, ok := r.Last()
		r.log.Info("last sample", zap.Bool("valid", ok), zap.Any("sample", v))
	default:
		r.log.Warn("unsupported request", zap.Uint16("sub_code", cmd.SubCode))
	}
}

func (r *reactive[T]) transmit() {
	v, ok := r.Last()
	if !ok || r.tx == nil {
		return
	}
	body, err := r.encode(v)
	if err != nil {
		r.log.Error("encode telemetry", zap.Error(err))
		return
	}
	if err := r.tx.SendMessage(sobproto.KindTelemetry, r.cfg.TelemetryTarget, body); err != nil {
		r.log.Warn("transmit telemetry", zap.Error(err))
	}
}

// Thermocouple samples both thermocouple channels
type Thermocouple struct {
	*reactive[sobproto.TemperatureData]
}

// NewThermocouple creates the thermocouple task
func NewThermocouple(cfg ReactiveConfig, rd ThermocoupleReader, tx Transmitter, log *zap.Logger) (*Thermocouple, error) {
	r, err := newReactive(cfg, rd.ReadTemperatures, sobproto.NewTemperatureTelemetryBody, tx, log)
	if err != nil {
		return nil, err
	}
	return &Thermocouple{r}, nil
}

// IR samples the infrared temperature sensor
type IR struct {
	*reactive[sobproto.IRData]
}

// NewIR creates the IR task
func NewIR(cfg ReactiveConfig, rd IRReader, tx Transmitter, log *zap.Logger) (*IR, error) {
	r, err := newReactive(cfg, rd.ReadIR, sobproto.NewIRTelemetryBody, tx, log)
	if err != nil {
		return nil, err
	}
	return &IR{r}, nil
}
