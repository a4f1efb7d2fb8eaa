// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sobproto

// Body builders return the encoded body for a message kind. The router adds
// the envelope header when sending.

// NewSOBCommandBody builds a KindCommand body for the sensor board.
// Param is command-specific:
//   - CALIBRATE_LOAD_CELL: known mass in centigrams (50000 = 500.00 g)
//   - SET_TELEMETRY_PERIOD: period in milliseconds
//   - others: ignored (pass 0)
func NewSOBCommandBody(code SOBCommandCode, param int32) ([]byte, error) {
	return MarshalBody(CommandMessage{SOB: &SOBCommand{Command: code, Param: param}})
}

// NewPingBody builds a PING control body
func NewPingBody() ([]byte, error) {
	return MarshalBody(ControlMessage{Code: ControlPing})
}

// NewPongBody builds a PONG control body carrying the responder's uptime
func NewPongBody(uptimeMs uint64) ([]byte, error) {
	return MarshalBody(ControlMessage{Code: ControlPong, UptimeMs: uptimeMs})
}

// NewSysResetBody builds a SYS_RESET control body
func NewSysResetBody() ([]byte, error) {
	return MarshalBody(ControlMessage{Code: ControlSysReset})
}

// NewLoadCellTelemetryBody builds a telemetry body with a load cell reading
func NewLoadCellTelemetryBody(d LoadCellData) ([]byte, error) {
	return MarshalBody(TelemetryMessage{LoadCell: &d})
}

// NewTemperatureTelemetryBody builds a telemetry body with thermocouple readings
func NewTemperatureTelemetryBody(d TemperatureData) ([]byte, error) {
	return MarshalBody(TelemetryMessage{Temperature: &d})
}

// NewIRTelemetryBody builds a telemetry body with an IR reading
func NewIRTelemetryBody(d IRData) ([]byte, error) {
	return MarshalBody(TelemetryMessage{IR: &d})
}
