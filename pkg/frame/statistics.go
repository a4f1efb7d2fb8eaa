// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Statistics tracks decoder outcomes. Counters are updated from the receiving
// side and may be read from anywhere.
type Statistics struct {
	startTime time.Time

	bytes    atomic.Uint64
	valid    atomic.Uint64
	invalid  atomic.Uint64
	overflow atomic.Uint64
	dropped  atomic.Uint64
	expired  atomic.Uint64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

// Snapshot is a point-in-time copy of Statistics
type Snapshot struct {
	Elapsed  time.Duration
	Bytes    uint64
	Valid    uint64
	Invalid  uint64
	Overflow uint64
	Dropped  uint64
	Expired  uint64
}

// Snapshot copies the current counters
func (s *Statistics) Snapshot() Snapshot {
	return Snapshot{
		Elapsed:  time.Since(s.startTime),
		Bytes:    s.bytes.Load(),
		Valid:    s.valid.Load(),
		Invalid:  s.invalid.Load(),
		Overflow: s.overflow.Load(),
		Dropped:  s.dropped.Load(),
		Expired:  s.expired.Load(),
	}
}

// Frames returns the number of frames that reached a terminal state
func (s Snapshot) Frames() uint64 {
	return s.Valid + s.Invalid + s.Overflow
}

// FrameRate returns completed frames per second
func (s Snapshot) FrameRate() float64 {
	if secs := s.Elapsed.Seconds(); secs > 0 {
		return float64(s.Frames()) / secs
	}
	return 0
}

// ErrorRate returns rejected frames per second
func (s Snapshot) ErrorRate() float64 {
	if secs := s.Elapsed.Seconds(); secs > 0 {
		return float64(s.Invalid+s.Overflow+s.Expired) / secs
	}
	return 0
}

// String returns a formatted statistics summary
func (s Snapshot) String() string {
	var validPercent, invalidPercent, overflowPercent float64
	if total := s.Frames(); total > 0 {
		validPercent = float64(s.Valid) * 100.0 / float64(total)
		invalidPercent = float64(s.Invalid) * 100.0 / float64(total)
		overflowPercent = float64(s.Overflow) * 100.0 / float64(total)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "=== Statistics (%.0f seconds) ===\n", s.Elapsed.Seconds())
	fmt.Fprintf(&b, "Bytes Received:  %8d\n", s.Bytes)
	fmt.Fprintf(&b, "Total Frames:    %8d\n", s.Frames())
	fmt.Fprintf(&b, "Valid Frames:    %8d (%.1f%%)\n", s.Valid, validPercent)
	if s.Invalid > 0 {
		fmt.Fprintf(&b, "CRC Errors:      %8d (%.1f%%)\n", s.Invalid, invalidPercent)
	}
	if s.Overflow > 0 {
		fmt.Fprintf(&b, "Overflows:       %8d (%.1f%%)\n", s.Overflow, overflowPercent)
	}
	if s.Dropped > 0 {
		fmt.Fprintf(&b, "Dropped (busy):  %8d bytes\n", s.Dropped)
	}
	if s.Expired > 0 {
		fmt.Fprintf(&b, "Expired:         %8d\n", s.Expired)
	}
	fmt.Fprintf(&b, "\nFrame Rate:      %.1f frames/sec\n", s.FrameRate())
	fmt.Fprintf(&b, "Error Rate:      %.2f errors/sec\n", s.ErrorRate())
	return b.String()
}
