// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sobproto

import (
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// Envelope field numbers
const (
	fieldSource   protowire.Number = 1
	fieldTarget   protowire.Number = 2
	fieldKind     protowire.Number = 3
	fieldSequence protowire.Number = 4
	fieldBody     protowire.Number = 5
)

var (
	// ErrTruncated is returned when an envelope ends mid-field.
	ErrTruncated = errors.New("envelope truncated")
	// ErrMalformed is returned when a known field has the wrong wire type or
	// an out-of-range value.
	ErrMalformed = errors.New("envelope malformed")
)

// Envelope is the addressed header of every bus message. Body holds the
// kind-specific CBOR payload.
type Envelope struct {
	Source   Node
	Target   Node
	Kind     MessageKind
	Sequence uint32
	Body     []byte
}

// AppendEnvelope appends the wire encoding of e to b. Zero-valued fields are
// omitted.
func AppendEnvelope(b []byte, e Envelope) []byte {
	if e.Source != NodeUnknown {
		b = protowire.AppendTag(b, fieldSource, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.Source))
	}
	if e.Target != NodeUnknown {
		b = protowire.AppendTag(b, fieldTarget, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.Target))
	}
	if e.Kind != KindUnknown {
		b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.Kind))
	}
	if e.Sequence != 0 {
		b = protowire.AppendTag(b, fieldSequence, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.Sequence))
	}
	if len(e.Body) > 0 {
		b = protowire.AppendTag(b, fieldBody, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Body)
	}
	return b
}

// Marshal returns the wire encoding of e
func (e Envelope) Marshal() []byte {
	return AppendEnvelope(nil, e)
}

// UnmarshalEnvelope decodes an envelope. Unknown fields are skipped. The
// returned Body aliases data.
func UnmarshalEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Envelope{}, wireError(protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldSource, fieldTarget, fieldKind, fieldSequence:
			if typ != protowire.VarintType {
				return Envelope{}, fmt.Errorf("%w: field %d has wire type %d", ErrMalformed, num, typ)
			}
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Envelope{}, wireError(protowire.ParseError(n))
			}
			data = data[n:]
			if err := e.setVarint(num, v); err != nil {
				return Envelope{}, err
			}

		case fieldBody:
			if typ != protowire.BytesType {
				return Envelope{}, fmt.Errorf("%w: field %d has wire type %d", ErrMalformed, num, typ)
			}
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Envelope{}, wireError(protowire.ParseError(n))
			}
			data = data[n:]
			e.Body = v

		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Envelope{}, wireError(protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return e, nil
}

func (e *Envelope) setVarint(num protowire.Number, v uint64) error {
	switch num {
	case fieldSequence:
		if v > 0xFFFFFFFF {
			return fmt.Errorf("%w: sequence %d overflows uint32", ErrMalformed, v)
		}
		e.Sequence = uint32(v)
		return nil
	}
	if v > 0xFF {
		return fmt.Errorf("%w: field %d value %d out of range", ErrMalformed, num, v)
	}
	switch num {
	case fieldSource:
		e.Source = Node(v)
	case fieldTarget:
		e.Target = Node(v)
	case fieldKind:
		e.Kind = MessageKind(v)
	}
	return nil
}

func wireError(err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}
