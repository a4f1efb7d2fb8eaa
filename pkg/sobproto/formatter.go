// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sobproto

import (
	"fmt"
	"strings"
)

// FormatEnvelope formats an envelope and its decoded body into a
// human-readable string
func FormatEnvelope(e Envelope) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s -> %s seq=%d len=%d\n", e.Kind, e.Source, e.Target, e.Sequence, len(e.Body))
	b.WriteString(FormatBody(e.Kind, e.Body))
	return b.String()
}

// FormatBody decodes and formats a body for the given kind
func FormatBody(kind MessageKind, body []byte) string {
	switch kind {
	case KindCommand:
		m, err := DecodeCommand(body)
		if err != nil {
			return formatDecodeError(err)
		}
		if m.SOB == nil {
			return "  (no SOB command)\n"
		}
		return formatSOBCommand(*m.SOB)

	case KindControl:
		m, err := DecodeControl(body)
		if err != nil {
			return formatDecodeError(err)
		}
		if m.Code == ControlPong {
			return fmt.Sprintf("  %s uptime=%s\n", m.Code, formatUptime(m.UptimeMs))
		}
		return fmt.Sprintf("  %s\n", m.Code)

	case KindTelemetry:
		m, err := DecodeTelemetry(body)
		if err != nil {
			return formatDecodeError(err)
		}
		return FormatTelemetry(m)

	default:
		return fmt.Sprintf("  raw=%X\n", body)
	}
}

// FormatTelemetry formats every reading present in a telemetry message
func FormatTelemetry(m TelemetryMessage) string {
	var b strings.Builder
	if lc := m.LoadCell; lc != nil {
		fmt.Fprintf(&b, "  Load Cell: %s raw=%d", FormatCentis(lc.WeightCentigrams, "g"), lc.Raw)
		if !lc.Calibrated {
			b.WriteString(" (uncalibrated)")
		}
		b.WriteString("\n")
	}
	if t := m.Temperature; t != nil {
		fmt.Fprintf(&b, "  Thermocouples: TC1=%s TC2=%s\n",
			FormatCentis(t.TC1CentiC, "°C"), FormatCentis(t.TC2CentiC, "°C"))
	}
	if ir := m.IR; ir != nil {
		fmt.Fprintf(&b, "  IR: ambient=%s object=%s\n",
			FormatCentis(ir.AmbientCentiC, "°C"), FormatCentis(ir.ObjectCentiC, "°C"))
	}
	if b.Len() == 0 {
		return "  (empty telemetry)\n"
	}
	return b.String()
}

// FormatCentis renders a fixed-point value with two decimals, e.g. 50000 -> "500.00 g"
func FormatCentis(v int32, unit string) string {
	sign := ""
	u := int64(v)
	if u < 0 {
		sign = "-"
		u = -u
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, u/100, u%100, unit)
}

func formatSOBCommand(c SOBCommand) string {
	switch c.Command {
	case SOBCalibrateLoadCell:
		return fmt.Sprintf("  SOB %s mass=%s\n", c.Command, FormatCentis(c.Param, "g"))
	case SOBSetTelemetryPeriod:
		return fmt.Sprintf("  SOB %s period=%dms\n", c.Command, c.Param)
	default:
		return fmt.Sprintf("  SOB %s\n", c.Command)
	}
}

func formatUptime(ms uint64) string {
	secs := ms / 1000
	hours := secs / 3600
	mins := (secs % 3600) / 60
	return fmt.Sprintf("%dh%02dm%02ds", hours, mins, secs%60)
}

func formatDecodeError(err error) string {
	return fmt.Sprintf("  decode error: %v\n", err)
}
