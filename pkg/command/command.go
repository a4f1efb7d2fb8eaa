// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package command provides the typed messages tasks exchange and the bounded
// queue each task drains.
//
// A Command is a small value: a coarse Class, a task-owned SubCode and an
// optional Payload. Payload buffers are owned by exactly one Command at a time
// and are returned to a shared pool by Reset.
package command

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
)

// Class is the coarse command class.
type Class uint8

// Command classes
const (
	ClassNone Class = iota
	ClassRequest
	ClassData
	ClassTaskSpecific
	ClassGlobal
)

// String returns the class name
func (c Class) String() string {
	switch c {
	case ClassNone:
		return "NONE"
	case ClassRequest:
		return "REQUEST"
	case ClassData:
		return "DATA"
	case ClassTaskSpecific:
		return "TASK_SPECIFIC"
	case ClassGlobal:
		return "GLOBAL"
	}
	return fmt.Sprintf("CLASS(%d)", uint8(c))
}

// MaxPayloadSize bounds a single command payload.
const MaxPayloadSize = 256

var (
	payloadPool = sync.Pool{
		New: func() interface{} {
			b := make([]byte, 0, MaxPayloadSize)
			return &b
		},
	}
	livePayloads atomic.Int64
)

// LivePayloads returns the number of payload buffers currently owned by
// commands that have not been Reset.
func LivePayloads() int64 {
	return livePayloads.Load()
}

// Payload is a pooled byte buffer owned by one Command.
type Payload struct {
	buf      *[]byte
	released atomic.Bool
}

// Bytes returns the payload contents. The slice is only valid until the
// owning command is Reset.
func (p *Payload) Bytes() []byte {
	if p == nil || p.released.Load() {
		return nil
	}
	return *p.buf
}

// Len returns the payload size in bytes
func (p *Payload) Len() int {
	return len(p.Bytes())
}

// release returns the buffer to the pool. Only the first call has an effect.
func (p *Payload) release() bool {
	if p == nil || !p.released.CompareAndSwap(false, true) {
		return false
	}
	b := (*p.buf)[:0]
	*p.buf = b
	payloadPool.Put(p.buf)
	p.buf = nil
	livePayloads.Add(-1)
	return true
}

// Command is a message passed between tasks.
type Command struct {
	Class   Class
	SubCode uint16
	payload *Payload
}

// New creates a command without payload.
func New(class Class, subCode uint16) Command {
	return Command{Class: class, SubCode: subCode}
}

// NewWithPayload creates a command that owns a copy of data.
func NewWithPayload(class Class, subCode uint16, data []byte) (Command, error) {
	if len(data) > MaxPayloadSize {
		return Command{}, fmt.Errorf("command payload too large: %d bytes (max %d)", len(data), MaxPayloadSize)
	}
	buf := payloadPool.Get().(*[]byte)
	*buf = append((*buf)[:0], data...)
	livePayloads.Add(1)
	return Command{Class: class, SubCode: subCode, payload: &Payload{buf: buf}}, nil
}

// NewWithInt32 creates a command carrying a little-endian int32 parameter.
func NewWithInt32(class Class, subCode uint16, v int32) Command {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	cmd, _ := NewWithPayload(class, subCode, b[:])
	return cmd
}

// Payload returns the command payload, nil when there is none.
func (c *Command) Payload() *Payload {
	return c.payload
}

// HasPayload reports whether the command carries a payload
func (c *Command) HasPayload() bool {
	return c.payload != nil && !c.payload.released.Load()
}

// Int32 decodes a little-endian int32 parameter from the payload.
func (c *Command) Int32() (int32, bool) {
	b := c.payload.Bytes()
	if len(b) != 4 {
		return 0, false
	}
	return int32(binary.LittleEndian.Uint32(b)), true
}

// Reset releases the payload. It is safe to call on every path; the buffer is
// returned to the pool exactly once no matter how many copies of the command
// call Reset.
func (c *Command) Reset() bool {
	p := c.payload
	c.payload = nil
	return p.release()
}

// String formats the command for logs
func (c Command) String() string {
	if c.HasPayload() {
		return fmt.Sprintf("%s/%d (%d bytes)", c.Class, c.SubCode, c.payload.Len())
	}
	return fmt.Sprintf("%s/%d", c.Class, c.SubCode)
}
