// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sensors

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/soar-avionics/sob/pkg/command"
	"github.com/soar-avionics/sob/pkg/sobproto"
	"github.com/soar-avionics/sob/pkg/task"
)

// LoadCellConfig configures the load cell task
type LoadCellConfig struct {
	Task            task.Spec
	TareSamples     int           // conversions averaged for tare and calibration
	SampleAverage   int           // conversions averaged per sample
	PollInterval    time.Duration // queue wait per loop iteration
	TelemetryTarget sobproto.Node
}

// LoadCellState is a snapshot of the load cell calibration and last sample
type LoadCellState struct {
	Offset      int32
	Coef        float64 // raw counts per gram
	Calibrated  bool
	Raw         int32
	WeightGrams float64
	Dumping     bool
}

// WeightCentigrams returns the last weight as fixed-point centigrams
func (s LoadCellState) WeightCentigrams() int32 {
	return int32(math.Round(s.WeightGrams * 100))
}

// LoadCell samples the load cell. It drains its queue with a short timed
// wait so the dump mode can emit samples between commands.
type LoadCell struct {
	*task.Base

	cfg LoadCellConfig
	adc LoadCellADC
	tx  Transmitter
	log *zap.Logger

	mu    sync.Mutex
	state LoadCellState
}

// NewLoadCell creates the load cell task
func NewLoadCell(cfg LoadCellConfig, adc LoadCellADC, tx Transmitter, log *zap.Logger) (*LoadCell, error) {
	base, err := task.NewBase(cfg.Task)
	if err != nil {
		return nil, err
	}
	if cfg.TareSamples <= 0 {
		cfg.TareSamples = 10
	}
	if cfg.SampleAverage <= 0 {
		cfg.SampleAverage = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 25 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &LoadCell{Base: base, cfg: cfg, adc: adc, tx: tx, log: log}, nil
}

// InitTask registers the task with the scheduler
func (l *LoadCell) InitTask(s *task.Scheduler) {
	l.Init(s, l.Run)
}

// State returns a snapshot of the calibration and last sample
func (l *LoadCell) State() LoadCellState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Run is the load cell task loop
func (l *LoadCell) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if cmd, ok := l.Queue().Receive(l.cfg.PollInterval); ok {
			task.Dispatch(ctx, l, cmd)
		}
		if l.State().Dumping {
			l.dumpSample()
		}
	}
}

// HandleCommand handles one command from the load cell queue
func (l *LoadCell) HandleCommand(ctx context.Context, cmd *command.Command) {
	if cmd.Class != command.ClassRequest {
		l.log.Warn("unsupported command", zap.Stringer("command", cmd))
		return
	}

	switch cmd.SubCode {
	case LoadCellTare:
		if err := l.Tare(); err != nil {
			l.log.Warn("tare failed", zap.Error(err))
		}
	case LoadCellCalibrate:
		mass, ok := cmd.Int32()
		if !ok {
			l.log.Warn("calibrate without mass payload")
			return
		}
		if err := l.Calibrate(mass); err != nil {
			l.log.Warn("calibration rejected", zap.Int32("mass_cg", mass), zap.Error(err))
		}
	case LoadCellNewSample:
		if err := l.Sample(); err != nil {
			l.log.Warn("sample failed", zap.Error(err))
		}
	case LoadCellTransmit:
		l.transmit()
	case LoadCellDumpData:
		l.mu.Lock()
		l.state.Dumping = true
		s := l.state
		l.mu.Unlock()
		l.log.Info("load cell dump started", zap.Int32("offset", s.Offset), zap.Float64("coef", s.Coef))
	case LoadCellDumpDataStop:
		l.mu.Lock()
		l.state.Dumping = false
		l.mu.Unlock()
	case LoadCellDebug:
		s := l.State()
		l.log.Info("load cell",
			zap.Float64("weight_g", s.WeightGrams),
			zap.Int32("raw", s.Raw),
			zap.Int32("offset", s.Offset),
			zap.Float64("coef", s.Coef),
			zap.Bool("calibrated", s.Calibrated))
	default:
		l.log.Warn("unsupported request", zap.Uint16("sub_code", cmd.SubCode))
	}
}

// Tare records the unloaded reading as the zero offset
func (l *LoadCell) Tare() error {
	raw, err := l.adc.ReadAverage(l.cfg.TareSamples)
	if err != nil {
		return fmt.Errorf("tare: %w", err)
	}
	l.mu.Lock()
	l.state.Offset = raw
	l.mu.Unlock()
	l.log.Info("load cell tared", zap.Int32("offset", raw))
	return nil
}

// Calibrate derives the scale coefficient from a reading under a known mass
// given in centigrams. Zero and negative masses are rejected.
func (l *LoadCell) Calibrate(massCentigrams int32) error {
	if massCentigrams <= 0 {
		return fmt.Errorf("%w: %d cg", ErrInvalidMass, massCentigrams)
	}
	raw, err := l.adc.ReadAverage(l.cfg.TareSamples)
	if err != nil {
		return fmt.Errorf("calibrate: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if raw == l.state.Offset {
		return fmt.Errorf("%w: raw %d", ErrZeroSpan, raw)
	}
	massGrams := float64(massCentigrams) / 100
	l.state.Coef = float64(raw-l.state.Offset) / massGrams
	l.state.Calibrated = true
	l.log.Info("load cell calibrated",
		zap.Int32("raw", raw),
		zap.Int32("offset", l.state.Offset),
		zap.Float64("mass_g", massGrams),
		zap.Float64("coef", l.state.Coef))
	return nil
}

// Sample takes a new reading and converts it to grams. Weight stays zero
// until the cell is calibrated.
func (l *LoadCell) Sample() error {
	raw, err := l.adc.ReadAverage(l.cfg.SampleAverage)
	if err != nil {
		return fmt.Errorf("sample: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state.Raw = raw
	l.state.WeightGrams = 0
	if l.state.Calibrated {
		l.state.WeightGrams = float64(raw-l.state.Offset) / l.state.Coef
	}
	return nil
}

func (l *LoadCell) transmit() {
	if l.tx == nil {
		return
	}
	s := l.State()
	body, err := sobproto.NewLoadCellTelemetryBody(sobproto.LoadCellData{
		Raw:              s.Raw,
		WeightCentigrams: s.WeightCentigrams(),
		Calibrated:       s.Calibrated,
	})
	if err != nil {
		l.log.Error("encode load cell telemetry", zap.Error(err))
		return
	}
	if err := l.tx.SendMessage(sobproto.KindTelemetry, l.cfg.TelemetryTarget, body); err != nil {
		l.log.Warn("transmit load cell telemetry", zap.Error(err))
	}
}

func (l *LoadCell) dumpSample() {
	if err := l.Sample(); err != nil {
		l.log.Warn("dump sample failed", zap.Error(err))
		return
	}
	s := l.State()
	l.log.Info("load cell dump",
		zap.Int32("raw", s.Raw),
		zap.Int32("shifted", s.Raw^0x800000),
		zap.Float64("weight_g", s.WeightGrams))
}
