// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import (
	"sync/atomic"
)

// Result is the outcome of feeding one byte to the Decoder
type Result uint8

const (
	// ResultAccumulating means the byte was taken and the frame is incomplete.
	ResultAccumulating Result = iota
	// ResultValid means a frame completed with a good checksum and is pending.
	ResultValid
	// ResultInvalid means a frame completed with a bad checksum and was discarded.
	ResultInvalid
	// ResultOverflow means the declared length exceeds capacity; the frame was discarded.
	ResultOverflow
	// ResultDropped means a completed frame is still pending and the byte was ignored.
	ResultDropped
)

func (r Result) String() string {
	switch r {
	case ResultAccumulating:
		return "ACCUMULATING"
	case ResultValid:
		return "COMPLETE_VALID"
	case ResultInvalid:
		return "COMPLETE_INVALID"
	case ResultOverflow:
		return "OVERFLOW"
	case ResultDropped:
		return "DROPPED"
	default:
		return "UNKNOWN"
	}
}

// Decoder reassembles frames from a byte stream fed one byte at a time.
//
// Feed and Expire belong to the receiving side (an interrupt handler or a
// single reader goroutine). Frame and Release belong to the consumer, which
// may only call them after Feed returned ResultValid. The pending flag is the
// only state both sides touch: the buffer is written strictly before it is
// set and read strictly before it is cleared.
type Decoder struct {
	buf      []byte
	n        int // bytes accumulated in the current cycle
	want     int // full frame size once the length byte arrived
	frameLen int // body length of the pending frame
	pending  atomic.Bool
	stats    *Statistics
}

// NewDecoder creates a decoder accepting bodies of up to capacity bytes.
// Capacity is clamped to MaxBodySize.
func NewDecoder(capacity int) *Decoder {
	if capacity <= 0 || capacity > MaxBodySize {
		capacity = MaxBodySize
	}
	return &Decoder{
		buf:   make([]byte, Size(capacity)),
		stats: NewStatistics(),
	}
}

// Capacity returns the largest body the decoder accepts
func (d *Decoder) Capacity() int {
	return len(d.buf) - Overhead
}

// Stats returns the decoder's statistics
func (d *Decoder) Stats() *Statistics {
	return d.stats
}

// Pending reports whether a valid frame is waiting to be consumed
func (d *Decoder) Pending() bool {
	return d.pending.Load()
}

// Feed processes one received byte. It never blocks and never allocates.
func (d *Decoder) Feed(b byte) Result {
	d.stats.bytes.Add(1)

	if d.pending.Load() {
		d.stats.dropped.Add(1)
		return ResultDropped
	}

	if d.n == 0 {
		want := Size(int(b))
		if want > len(d.buf) {
			d.stats.overflow.Add(1)
			return ResultOverflow
		}
		d.want = want
	}

	d.buf[d.n] = b
	d.n++
	if d.n < d.want {
		return ResultAccumulating
	}

	// frame complete
	bodyEnd := d.want - TrailerSize
	got := uint16(d.buf[bodyEnd])<<8 | uint16(d.buf[bodyEnd+1])
	d.n = 0
	if CalculateCRC(d.buf[:bodyEnd]) != got {
		d.stats.invalid.Add(1)
		return ResultInvalid
	}

	d.frameLen = bodyEnd - HeaderSize
	d.stats.valid.Add(1)
	d.pending.Store(true)
	return ResultValid
}

// Frame returns the body of the pending frame, or nil when none is pending.
// The slice aliases the decoder buffer and is only valid until Release.
func (d *Decoder) Frame() []byte {
	if !d.pending.Load() {
		return nil
	}
	return d.buf[HeaderSize : HeaderSize+d.frameLen]
}

// Release hands the buffer back to the receiving side.
func (d *Decoder) Release() {
	d.pending.Store(false)
}

// Expire abandons a partially received frame, for use when the line has gone
// quiet mid-frame. It reports whether any bytes were discarded.
func (d *Decoder) Expire() bool {
	if d.n == 0 {
		return false
	}
	d.n = 0
	d.stats.expired.Add(1)
	return true
}
