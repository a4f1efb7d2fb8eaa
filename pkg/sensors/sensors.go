// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sensors contains the sensor board's sampling tasks. Each task owns
// one driver and is driven only through commands on its queue.
package sensors

import (
	"errors"

	"github.com/soar-avionics/sob/pkg/sobproto"
)

// Load cell request sub-codes (command.ClassRequest)
const (
	LoadCellTare         uint16 = 1
	LoadCellCalibrate    uint16 = 2 // payload: int32 known mass in centigrams
	LoadCellNewSample    uint16 = 3
	LoadCellTransmit     uint16 = 4
	LoadCellDumpData     uint16 = 5
	LoadCellDumpDataStop uint16 = 6
	LoadCellDebug        uint16 = 7
)

// Thermocouple and IR request sub-codes (command.ClassRequest)
const (
	RequestNewSample uint16 = 1
	RequestTransmit  uint16 = 2
	RequestDebug     uint16 = 3
)

var (
	// ErrInvalidMass is returned when calibrating with a zero or negative mass.
	ErrInvalidMass = errors.New("calibration mass must be positive")
	// ErrZeroSpan is returned when the loaded reading equals the tare offset.
	ErrZeroSpan = errors.New("calibration reading equals tare offset")
)

// LoadCellADC is the load cell amplifier (HX711)
type LoadCellADC interface {
	// ReadAverage returns the mean of samples raw conversions.
	ReadAverage(samples int) (int32, error)
}

// ThermocoupleReader reads both thermocouple channels
type ThermocoupleReader interface {
	ReadTemperatures() (sobproto.TemperatureData, error)
}

// IRReader reads the infrared temperature sensor
type IRReader interface {
	ReadIR() (sobproto.IRData, error)
}

// Transmitter sends a message body over the bus
type Transmitter interface {
	SendMessage(kind sobproto.MessageKind, target sobproto.Node, body []byte) error
}
