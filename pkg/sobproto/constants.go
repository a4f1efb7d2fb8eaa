// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package sobproto defines the addressed messages carried inside SOB bus
// frames: the Envelope header and the CBOR bodies for each message kind.
package sobproto

import (
	"fmt"
	"strings"
)

// Node identifies a board on the shared serial bus
type Node uint8

// Bus nodes
const (
	NodeUnknown Node = 0
	NodeRCU     Node = 1 // remote control unit (ground)
	NodeDMB     Node = 2 // data management board
	NodePBB     Node = 3 // power breakout board
	NodeSOB     Node = 4 // sensor board
)

var nodeNames = map[Node]string{
	NodeRCU: "rcu",
	NodeDMB: "dmb",
	NodePBB: "pbb",
	NodeSOB: "sob",
}

func (n Node) String() string {
	if name, ok := nodeNames[n]; ok {
		return name
	}
	return fmt.Sprintf("node(%d)", uint8(n))
}

// ParseNode parses a node name such as "sob" or "RCU"
func ParseNode(s string) (Node, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for n, name := range nodeNames {
		if name == want {
			return n, nil
		}
	}
	return NodeUnknown, fmt.Errorf("unknown node %q", s)
}

// MessageKind selects which category handler receives an envelope
type MessageKind uint8

// Message kinds
const (
	KindUnknown   MessageKind = 0
	KindControl   MessageKind = 1
	KindCommand   MessageKind = 2
	KindTelemetry MessageKind = 3
)

func (k MessageKind) String() string {
	switch k {
	case KindControl:
		return "CONTROL"
	case KindCommand:
		return "COMMAND"
	case KindTelemetry:
		return "TELEMETRY"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
	}
}

// SOBCommandCode is a command addressed to the sensor board
type SOBCommandCode uint8

// SOB commands
const (
	SOBCommandNone        SOBCommandCode = 0
	SOBTareLoadCell       SOBCommandCode = 1
	SOBCalibrateLoadCell  SOBCommandCode = 2 // Param: known mass in centigrams
	SOBSampleLoadCell     SOBCommandCode = 3
	SOBSampleIR           SOBCommandCode = 4
	SOBSampleThermocouple SOBCommandCode = 5
	SOBSetTelemetryPeriod SOBCommandCode = 6 // Param: period in milliseconds
)

func (c SOBCommandCode) String() string {
	switch c {
	case SOBTareLoadCell:
		return "TARE_LOAD_CELL"
	case SOBCalibrateLoadCell:
		return "CALIBRATE_LOAD_CELL"
	case SOBSampleLoadCell:
		return "SAMPLE_LOAD_CELL"
	case SOBSampleIR:
		return "SAMPLE_IR"
	case SOBSampleThermocouple:
		return "SAMPLE_THERMOCOUPLE"
	case SOBSetTelemetryPeriod:
		return "SET_TELEMETRY_PERIOD"
	default:
		return fmt.Sprintf("SOB_COMMAND(%d)", uint8(c))
	}
}

// ControlCode is a control message operation
type ControlCode uint8

// Control operations
const (
	ControlNone     ControlCode = 0
	ControlPing     ControlCode = 1
	ControlPong     ControlCode = 2
	ControlSysReset ControlCode = 3
)

func (c ControlCode) String() string {
	switch c {
	case ControlPing:
		return "PING"
	case ControlPong:
		return "PONG"
	case ControlSysReset:
		return "SYS_RESET"
	default:
		return fmt.Sprintf("CONTROL(%d)", uint8(c))
	}
}
