// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package router implements the protocol task that bridges the serial frame
// codec to addressed envelopes.
//
// Bytes arrive through InterruptRxByte, which only feeds the decoder and
// posts a frame-ready event. Decoding, address filtering and dispatch happen
// in the Run loop.
package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/soar-avionics/sob/pkg/command"
	"github.com/soar-avionics/sob/pkg/frame"
	"github.com/soar-avionics/sob/pkg/sobproto"
	"github.com/soar-avionics/sob/pkg/task"
)

// Router command sub-codes
const (
	EventFrameReady uint16 = 1 // ClassData: a valid frame is pending in the decoder
	RequestDebug    uint16 = 1 // ClassRequest: log statistics
)

// ErrNoTransport is returned when sending without a transmit side
var ErrNoTransport = errors.New("router has no transport")

// Handler receives envelopes addressed to this board, one method per kind
type Handler interface {
	HandleCommandMessage(ctx context.Context, env sobproto.Envelope)
	HandleControlMessage(ctx context.Context, env sobproto.Envelope)
	HandleTelemetryMessage(ctx context.Context, env sobproto.Envelope)
}

// Config configures a Router
type Config struct {
	Self          sobproto.Node
	Task          task.Spec
	RxBufferBytes int           // largest accepted body; 0 means frame.MaxBodySize
	TxBufferBytes int           // transmit frame buffer; 0 means frame.MaxSize
	InterByteGap  time.Duration // Listen abandons a partial frame after this much silence; 0 disables
}

// Option configures optional Router behavior
type Option func(*Router)

// WithTap registers fn to observe every decoded envelope before the address
// filter. It runs on the Router task.
func WithTap(fn func(sobproto.Envelope)) Option {
	return func(r *Router) { r.tap = fn }
}

// Router is the protocol task
type Router struct {
	*task.Base

	self    sobproto.Node
	log     *zap.Logger
	decoder *frame.Decoder
	handler Handler
	tap     func(sobproto.Envelope)
	gap     time.Duration

	txMu  sync.Mutex
	tx    io.Writer
	txBuf []byte
	seq   atomic.Uint32

	foreign       atomic.Uint64
	unknownKind   atomic.Uint64
	malformed     atomic.Uint64
	isrEnqueueErr atomic.Uint64
	txFrames      atomic.Uint64
	txErrors      atomic.Uint64
}

// New creates a Router. tx may be nil for receive-only use; handler may be
// set later with SetHandler, before the scheduler starts.
func New(cfg Config, tx io.Writer, handler Handler, log *zap.Logger, opts ...Option) (*Router, error) {
	base, err := task.NewBase(cfg.Task)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	txSize := cfg.TxBufferBytes
	if txSize <= 0 {
		txSize = frame.MaxSize
	}

	r := &Router{
		Base:    base,
		self:    cfg.Self,
		log:     log,
		decoder: frame.NewDecoder(cfg.RxBufferBytes),
		handler: handler,
		gap:     cfg.InterByteGap,
		tx:      tx,
		txBuf:   make([]byte, txSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Self returns the node this router answers for
func (r *Router) Self() sobproto.Node {
	return r.self
}

// SetHandler sets the category handler
func (r *Router) SetHandler(h Handler) {
	r.handler = h
}

// InitTask registers the router with the scheduler
func (r *Router) InitTask(s *task.Scheduler) {
	r.Init(s, r.Run)
}

// InterruptRxByte feeds one received byte to the decoder. It is safe to call
// from interrupt context: it never blocks, logs or allocates. When a valid
// frame completes and the frame-ready event cannot be queued, the frame is
// abandoned so reception continues.
func (r *Router) InterruptRxByte(b byte) frame.Result {
	res := r.decoder.Feed(b)
	if res == frame.ResultValid {
		if err := r.SendCommandFromISR(command.New(command.ClassData, EventFrameReady)); err != nil {
			r.isrEnqueueErr.Add(1)
			r.decoder.Release()
		}
	}
	return res
}

// Run is the router task loop
func (r *Router) Run(ctx context.Context) {
	for {
		cmd, err := r.Queue().ReceiveWait(ctx)
		if err != nil {
			return
		}
		task.Dispatch(ctx, r, cmd)
	}
}

// HandleCommand handles one command from the router queue
func (r *Router) HandleCommand(ctx context.Context, cmd *command.Command) {
	switch {
	case cmd.Class == command.ClassData && cmd.SubCode == EventFrameReady:
		r.processFrame(ctx)
	case cmd.Class == command.ClassRequest && cmd.SubCode == RequestDebug:
		s := r.Stats()
		r.log.Info("router statistics",
			zap.Uint64("valid", s.Frame.Valid),
			zap.Uint64("invalid", s.Frame.Invalid),
			zap.Uint64("overflow", s.Frame.Overflow),
			zap.Uint64("dropped_bytes", s.Frame.Dropped),
			zap.Uint64("foreign", s.Foreign),
			zap.Uint64("unknown_kind", s.UnknownKind),
			zap.Uint64("malformed", s.Malformed),
			zap.Uint64("isr_enqueue_failures", s.ISREnqueueFailures),
			zap.Uint64("tx_frames", s.TxFrames),
			zap.Uint64("tx_errors", s.TxErrors))
	default:
		r.log.Warn("unsupported command", zap.Stringer("command", cmd))
	}
}

func (r *Router) processFrame(ctx context.Context) {
	body := r.decoder.Frame()
	if body == nil {
		return
	}
	env, err := sobproto.UnmarshalEnvelope(body)
	if err != nil {
		r.decoder.Release()
		r.malformed.Add(1)
		r.log.Debug("malformed envelope", zap.Error(err))
		return
	}
	// Body aliases the decoder buffer; copy before re-arming.
	env.Body = append([]byte(nil), env.Body...)
	r.decoder.Release()

	r.Route(ctx, env)
}

// Route delivers a decoded envelope. Envelopes for other nodes are dropped
// silently; unknown kinds are ignored.
func (r *Router) Route(ctx context.Context, env sobproto.Envelope) {
	if r.tap != nil {
		r.tap(env)
	}
	if env.Target != r.self {
		r.foreign.Add(1)
		return
	}
	if r.handler == nil {
		return
	}

	switch env.Kind {
	case sobproto.KindCommand:
		r.handler.HandleCommandMessage(ctx, env)
	case sobproto.KindControl:
		r.handler.HandleControlMessage(ctx, env)
	case sobproto.KindTelemetry:
		r.handler.HandleTelemetryMessage(ctx, env)
	default:
		r.unknownKind.Add(1)
		r.log.Debug("ignoring unknown message kind",
			zap.Stringer("kind", env.Kind),
			zap.Stringer("source", env.Source))
	}
}

// SendMessage frames body under a new envelope from this node and transmits
// it. If the frame does not fit the transmit buffer nothing is sent.
func (r *Router) SendMessage(kind sobproto.MessageKind, target sobproto.Node, body []byte) error {
	return r.SendEnvelope(sobproto.Envelope{
		Source:   r.self,
		Target:   target,
		Kind:     kind,
		Sequence: r.seq.Add(1),
		Body:     body,
	})
}

// SendEnvelope frames and transmits env as given
func (r *Router) SendEnvelope(env sobproto.Envelope) error {
	payload := env.Marshal()

	r.txMu.Lock()
	defer r.txMu.Unlock()

	if r.tx == nil {
		r.txErrors.Add(1)
		return ErrNoTransport
	}
	n, err := frame.Encode(r.txBuf, payload)
	if err != nil {
		r.txErrors.Add(1)
		return fmt.Errorf("send %s to %s: %w", env.Kind, env.Target, err)
	}
	if _, err := r.tx.Write(r.txBuf[:n]); err != nil {
		r.txErrors.Add(1)
		return fmt.Errorf("send %s to %s: %w", env.Kind, env.Target, err)
	}
	r.txFrames.Add(1)
	return nil
}

// Stats is a snapshot of router counters
type Stats struct {
	Frame              frame.Snapshot
	Foreign            uint64
	UnknownKind        uint64
	Malformed          uint64
	ISREnqueueFailures uint64
	TxFrames           uint64
	TxErrors           uint64
}

// Stats returns the current router counters
func (r *Router) Stats() Stats {
	return Stats{
		Frame:              r.decoder.Stats().Snapshot(),
		Foreign:            r.foreign.Load(),
		UnknownKind:        r.unknownKind.Load(),
		Malformed:          r.malformed.Load(),
		ISREnqueueFailures: r.isrEnqueueErr.Load(),
		TxFrames:           r.txFrames.Load(),
		TxErrors:           r.txErrors.Load(),
	}
}
