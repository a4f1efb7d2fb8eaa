// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package router

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"
)

type rxChunk struct {
	data []byte
	err  error
}

// Listen reads the link and feeds every byte through InterruptRxByte, acting
// as the receive interrupt on a host. It returns nil at EOF, ctx.Err() when
// ctx ends, or the read error. The caller closes rd to unblock a pending Read
// after ctx is canceled.
func (r *Router) Listen(ctx context.Context, rd io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks := make(chan rxChunk, 4)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := rd.Read(buf)
			c := rxChunk{data: append([]byte(nil), buf[:n]...), err: err}
			select {
			case chunks <- c:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()
	var gapC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case c := <-chunks:
			for _, b := range c.data {
				r.InterruptRxByte(b)
			}
			if c.err != nil {
				if errors.Is(c.err, io.EOF) {
					return nil
				}
				return c.err
			}
			if len(c.data) > 0 && r.gap > 0 {
				timer.Reset(r.gap)
				gapC = timer.C
			}

		case <-gapC:
			gapC = nil
			if r.decoder.Expire() {
				r.log.Debug("abandoned partial frame after inter-byte gap", zap.Duration("gap", r.gap))
			}
		}
	}
}
