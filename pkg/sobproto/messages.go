// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sobproto

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrEmptyBody is returned when decoding a body with no bytes
var ErrEmptyBody = errors.New("empty message body")

// SOBCommand is a command for the sensor board
type SOBCommand struct {
	Command SOBCommandCode `cbor:"1,keyasint"`
	Param   int32          `cbor:"2,keyasint,omitempty"`
}

// CommandMessage is the body of a KindCommand envelope. Each board reads
// only its own member; commands for other boards decode as unknown keys.
type CommandMessage struct {
	SOB *SOBCommand `cbor:"1,keyasint,omitempty"`
}

// ControlMessage is the body of a KindControl envelope
type ControlMessage struct {
	Code     ControlCode `cbor:"1,keyasint"`
	UptimeMs uint64      `cbor:"2,keyasint,omitempty"`
}

// LoadCellData is a load cell reading. Weight is in centigrams.
type LoadCellData struct {
	Raw              int32 `cbor:"1,keyasint"`
	WeightCentigrams int32 `cbor:"2,keyasint"`
	Calibrated       bool  `cbor:"3,keyasint,omitempty"`
}

// TemperatureData carries both thermocouple channels in centi-degrees C
type TemperatureData struct {
	TC1CentiC int32 `cbor:"1,keyasint"`
	TC2CentiC int32 `cbor:"2,keyasint"`
}

// IRData is an infrared temperature reading in centi-degrees C
type IRData struct {
	AmbientCentiC int32 `cbor:"1,keyasint"`
	ObjectCentiC  int32 `cbor:"2,keyasint"`
}

// TelemetryMessage is the body of a KindTelemetry envelope. One or more
// members are set.
type TelemetryMessage struct {
	LoadCell    *LoadCellData    `cbor:"1,keyasint,omitempty"`
	Temperature *TemperatureData `cbor:"2,keyasint,omitempty"`
	IR          *IRData          `cbor:"3,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("sobproto: cbor enc mode: %v", err))
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("sobproto: cbor dec mode: %v", err))
	}
}

// MarshalBody encodes a message body as canonical CBOR
func MarshalBody(v any) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR body: %w", err)
	}
	return data, nil
}

// UnmarshalBody decodes a CBOR body into v. Unknown keys are ignored.
func UnmarshalBody(data []byte, v any) error {
	if len(data) == 0 {
		return ErrEmptyBody
	}
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode CBOR body: %w", err)
	}
	return nil
}

// DecodeCommand decodes a KindCommand body
func DecodeCommand(body []byte) (CommandMessage, error) {
	var m CommandMessage
	err := UnmarshalBody(body, &m)
	return m, err
}

// DecodeControl decodes a KindControl body
func DecodeControl(body []byte) (ControlMessage, error) {
	var m ControlMessage
	err := UnmarshalBody(body, &m)
	return m, err
}

// DecodeTelemetry decodes a KindTelemetry body
func DecodeTelemetry(body []byte) (TelemetryMessage, error) {
	var m TelemetryMessage
	err := UnmarshalBody(body, &m)
	return m, err
}
