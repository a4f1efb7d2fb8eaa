// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package frame implements the serial framing used on the SOB bus.
//
// Wire layout:
//
//	[length u8][body ... length bytes][crc hi][crc lo]
//
// The CRC-16-CCITT covers the length byte and the body.
package frame

import (
	"errors"
	"fmt"
)

// Frame size limits
const (
	HeaderSize  = 1
	TrailerSize = 2
	Overhead    = HeaderSize + TrailerSize
	MaxBodySize = 255
	MaxSize     = MaxBodySize + Overhead
)

// ErrFrameTooLarge is returned when a body does not fit a frame or the
// destination buffer.
var ErrFrameTooLarge = errors.New("frame too large")

// Size returns the wire size of a frame carrying bodyLen bytes
func Size(bodyLen int) int {
	return bodyLen + Overhead
}

// Encode writes the frame for body into dst and returns the number of bytes
// written. Nothing is written when the frame does not fit.
func Encode(dst, body []byte) (int, error) {
	if len(body) > MaxBodySize {
		return 0, fmt.Errorf("%w: body %d bytes (max %d)", ErrFrameTooLarge, len(body), MaxBodySize)
	}
	n := Size(len(body))
	if n > len(dst) {
		return 0, fmt.Errorf("%w: need %d bytes, buffer holds %d", ErrFrameTooLarge, n, len(dst))
	}

	dst[0] = byte(len(body))
	copy(dst[HeaderSize:], body)
	crc := CalculateCRC(dst[:HeaderSize+len(body)])
	dst[n-2] = byte(crc >> 8)
	dst[n-1] = byte(crc & 0xFF)
	return n, nil
}

// AppendFrame appends the frame for body to dst.
func AppendFrame(dst, body []byte) ([]byte, error) {
	if len(body) > MaxBodySize {
		return dst, fmt.Errorf("%w: body %d bytes (max %d)", ErrFrameTooLarge, len(body), MaxBodySize)
	}
	start := len(dst)
	dst = append(dst, byte(len(body)))
	dst = append(dst, body...)
	crc := CalculateCRC(dst[start:])
	return append(dst, byte(crc>>8), byte(crc&0xFF)), nil
}
