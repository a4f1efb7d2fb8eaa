// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package board

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/soar-avionics/sob/pkg/command"
	"github.com/soar-avionics/sob/pkg/sensors"
	"github.com/soar-avionics/sob/pkg/sobproto"
)

// ErrSysReset is the halt reason for a remote SYS_RESET
var ErrSysReset = errors.New("system reset requested")

// longest the router task waits on a full sensor queue
const commandTimeout = 100 * time.Millisecond

type commandSender interface {
	Name() string
	SendCommand(ctx context.Context, cmd command.Command) error
}

func (b *Board) send(ctx context.Context, dst commandSender, cmds ...command.Command) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	for i := range cmds {
		if err := dst.SendCommand(ctx, cmds[i]); err != nil {
			b.log.Warn("command not queued",
				zap.String("task", dst.Name()),
				zap.Stringer("command", cmds[i]),
				zap.Error(err))
			// the receiver never took ownership
			cmds[i].Reset()
		}
	}
}

// HandleCommandMessage maps SOB commands onto sensor task commands
func (b *Board) HandleCommandMessage(ctx context.Context, env sobproto.Envelope) {
	msg, err := sobproto.DecodeCommand(env.Body)
	if err != nil {
		b.log.Debug("bad command body", zap.Stringer("source", env.Source), zap.Error(err))
		return
	}
	if msg.SOB == nil {
		return
	}

	c := msg.SOB
	b.log.Debug("command received",
		zap.Stringer("source", env.Source),
		zap.Stringer("command", c.Command),
		zap.Int32("param", c.Param))

	switch c.Command {
	case sobproto.SOBTareLoadCell:
		b.send(ctx, b.LoadCell, command.New(command.ClassRequest, sensors.LoadCellTare))
	case sobproto.SOBCalibrateLoadCell:
		b.send(ctx, b.LoadCell, command.NewWithInt32(command.ClassRequest, sensors.LoadCellCalibrate, c.Param))
	case sobproto.SOBSampleLoadCell:
		b.send(ctx, b.LoadCell,
			command.New(command.ClassRequest, sensors.LoadCellNewSample),
			command.New(command.ClassRequest, sensors.LoadCellTransmit))
	case sobproto.SOBSampleThermocouple:
		b.send(ctx, b.Thermocouple,
			command.New(command.ClassRequest, sensors.RequestNewSample),
			command.New(command.ClassRequest, sensors.RequestTransmit))
	case sobproto.SOBSampleIR:
		b.send(ctx, b.IR,
			command.New(command.ClassRequest, sensors.RequestNewSample),
			command.New(command.ClassRequest, sensors.RequestTransmit))
	case sobproto.SOBSetTelemetryPeriod:
		if c.Param <= 0 || c.Param > 0xFFFF {
			b.log.Warn("telemetry period out of range", zap.Int32("period_ms", c.Param))
			return
		}
		b.send(ctx, b.Telemetry, command.New(command.ClassTaskSpecific, uint16(c.Param)))
	default:
		b.log.Warn("unknown command", zap.Stringer("command", c.Command))
	}
}

// HandleControlMessage answers pings and executes resets
func (b *Board) HandleControlMessage(_ context.Context, env sobproto.Envelope) {
	msg, err := sobproto.DecodeControl(env.Body)
	if err != nil {
		b.log.Debug("bad control body", zap.Stringer("source", env.Source), zap.Error(err))
		return
	}

	switch msg.Code {
	case sobproto.ControlPing:
		body, err := sobproto.NewPongBody(uint64(b.Uptime().Milliseconds()))
		if err != nil {
			b.log.Error("encode pong", zap.Error(err))
			return
		}
		err = b.Router.SendEnvelope(sobproto.Envelope{
			Source:   b.Router.Self(),
			Target:   env.Source,
			Kind:     sobproto.KindControl,
			Sequence: env.Sequence,
			Body:     body,
		})
		if err != nil {
			b.log.Warn("pong not sent", zap.Error(err))
		}
	case sobproto.ControlPong:
		b.log.Debug("pong", zap.Stringer("source", env.Source), zap.Uint64("uptime_ms", msg.UptimeMs))
	case sobproto.ControlSysReset:
		b.log.Warn("reset requested", zap.Stringer("source", env.Source))
		b.Scheduler.Halt(ErrSysReset)
	default:
		b.log.Warn("unknown control code", zap.Stringer("code", msg.Code))
	}
}

// HandleTelemetryMessage forwards or logs telemetry sent to this board
func (b *Board) HandleTelemetryMessage(_ context.Context, env sobproto.Envelope) {
	msg, err := sobproto.DecodeTelemetry(env.Body)
	if err != nil {
		b.log.Debug("bad telemetry body", zap.Stringer("source", env.Source), zap.Error(err))
		return
	}
	if b.forwarder == nil {
		b.log.Info("telemetry",
			zap.Stringer("source", env.Source),
			zap.String("data", sobproto.FormatTelemetry(msg)))
		return
	}
	if err := b.forwarder.Forward(env, msg); err != nil {
		b.log.Warn("telemetry not forwarded", zap.Error(err))
	}
}
