// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soar-avionics/sob/pkg/config"
	"github.com/soar-avionics/sob/pkg/router"
	"github.com/soar-avionics/sob/pkg/sobproto"
	"github.com/soar-avionics/sob/pkg/task"
)

// envelopeHandler routes every addressed kind to one function
type envelopeHandler func(ctx context.Context, env sobproto.Envelope)

func (f envelopeHandler) HandleCommandMessage(ctx context.Context, env sobproto.Envelope) {
	f(ctx, env)
}

func (f envelopeHandler) HandleControlMessage(ctx context.Context, env sobproto.Envelope) {
	f(ctx, env)
}

func (f envelopeHandler) HandleTelemetryMessage(ctx context.Context, env sobproto.Envelope) {
	f(ctx, env)
}

// groundLink is a router speaking for a ground node over an open connection
type groundLink struct {
	*router.Router
	conn Connection
	info string
}

// openGroundLink opens the configured connection and binds a router for self
// to it. handler may be nil when only the tap or the send path is needed.
func openGroundLink(ctx context.Context, c *config.Config, self sobproto.Node, handler router.Handler, opts ...router.Option) (*groundLink, error) {
	conn, info, err := OpenConnection(ctx, c.Link)
	if err != nil {
		return nil, err
	}

	r, err := router.New(router.Config{
		Self: self,
		Task: task.Spec{
			Name:            "link",
			StackDepthWords: uint16(c.Tasks.Protocol.StackWords),
			Priority:        c.Tasks.Protocol.Priority,
			QueueDepth:      c.Tasks.Protocol.QueueDepth,
		},
		RxBufferBytes: c.Link.RxBufferBytes,
		TxBufferBytes: c.Link.TxBufferBytes,
		InterByteGap:  time.Duration(c.Link.InterByteGapMs) * time.Millisecond,
	}, conn, handler, logger.Named("link"), opts...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &groundLink{Router: r, conn: conn, info: info}, nil
}

// serve runs the router loop and the line listener until ctx ends or the
// link fails
func (g *groundLink) serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		g.Run(ctx)
		close(done)
	}()

	err := g.Listen(ctx, g.conn)
	cancel()
	<-done
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if errors.Is(err, ErrConnectionClosed) {
		logger.Info("connection closed")
		return nil
	}
	if err != nil {
		return fmt.Errorf("link: %w", err)
	}
	return nil
}

func (g *groundLink) Close() error {
	return g.conn.Close()
}

func parseNodeFlag(name, value string) (sobproto.Node, error) {
	n, err := sobproto.ParseNode(value)
	if err != nil {
		return sobproto.NodeUnknown, fmt.Errorf("--%s: %w", name, err)
	}
	return n, nil
}
