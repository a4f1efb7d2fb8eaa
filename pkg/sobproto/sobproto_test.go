// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sobproto

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestEnvelope_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
	}{
		{"command", Envelope{Source: NodeRCU, Target: NodeSOB, Kind: KindCommand, Sequence: 7, Body: []byte{0xA1, 0x01, 0xA1, 0x01, 0x01}}},
		{"control no body", Envelope{Source: NodeSOB, Target: NodeRCU, Kind: KindControl, Sequence: 1}},
		{"max sequence", Envelope{Source: NodeDMB, Target: NodeSOB, Kind: KindTelemetry, Sequence: 0xFFFFFFFF, Body: []byte{1}}},
		{"unknown kind", Envelope{Source: NodeRCU, Target: NodeSOB, Kind: MessageKind(42)}},
		{"zero", Envelope{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnmarshalEnvelope(tt.env.Marshal())
			if err != nil {
				t.Fatalf("UnmarshalEnvelope failed: %v", err)
			}
			if got.Source != tt.env.Source || got.Target != tt.env.Target ||
				got.Kind != tt.env.Kind || got.Sequence != tt.env.Sequence {
				t.Errorf("header = %+v, want %+v", got, tt.env)
			}
			if !bytes.Equal(got.Body, tt.env.Body) {
				t.Errorf("body = %X, want %X", got.Body, tt.env.Body)
			}
		})
	}
}

func TestEnvelope_UnknownFieldsIgnored(t *testing.T) {
	env := Envelope{Source: NodeRCU, Target: NodeSOB, Kind: KindCommand, Sequence: 3, Body: []byte{0xA0}}
	data := env.Marshal()

	// Fields a newer sender might add.
	data = protowire.AppendTag(data, 9, protowire.VarintType)
	data = protowire.AppendVarint(data, 123456)
	data = protowire.AppendTag(data, 10, protowire.BytesType)
	data = protowire.AppendBytes(data, []byte("extension"))
	data = protowire.AppendTag(data, 11, protowire.Fixed32Type)
	data = protowire.AppendFixed32(data, 0xDEADBEEF)

	got, err := UnmarshalEnvelope(data)
	if err != nil {
		t.Fatalf("UnmarshalEnvelope failed: %v", err)
	}
	if got.Target != NodeSOB || got.Kind != KindCommand || got.Sequence != 3 {
		t.Errorf("got %+v", got)
	}
}

func TestEnvelope_Truncated(t *testing.T) {
	data := Envelope{Source: NodeRCU, Target: NodeSOB, Kind: KindCommand, Body: []byte("payload")}.Marshal()
	_, err := UnmarshalEnvelope(data[:len(data)-3])
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("error = %v, want ErrTruncated", err)
	}
}

func TestEnvelope_Malformed(t *testing.T) {
	t.Run("wrong wire type", func(t *testing.T) {
		data := protowire.AppendTag(nil, fieldTarget, protowire.BytesType)
		data = protowire.AppendBytes(data, []byte{4})
		if _, err := UnmarshalEnvelope(data); !errors.Is(err, ErrMalformed) {
			t.Fatalf("error = %v, want ErrMalformed", err)
		}
	})

	t.Run("node out of range", func(t *testing.T) {
		data := protowire.AppendTag(nil, fieldSource, protowire.VarintType)
		data = protowire.AppendVarint(data, 300)
		if _, err := UnmarshalEnvelope(data); !errors.Is(err, ErrMalformed) {
			t.Fatalf("error = %v, want ErrMalformed", err)
		}
	})
}

func TestCommandBody(t *testing.T) {
	body, err := NewSOBCommandBody(SOBCalibrateLoadCell, 50000)
	if err != nil {
		t.Fatalf("NewSOBCommandBody failed: %v", err)
	}
	m, err := DecodeCommand(body)
	if err != nil {
		t.Fatalf("DecodeCommand failed: %v", err)
	}
	if m.SOB == nil || m.SOB.Command != SOBCalibrateLoadCell || m.SOB.Param != 50000 {
		t.Errorf("decoded %+v", m.SOB)
	}
}

func TestCommandBody_OtherBoard(t *testing.T) {
	// A command for another board uses a key the SOB does not know.
	body, err := cbor.Marshal(map[int]any{5: map[int]any{1: 2}})
	if err != nil {
		t.Fatal(err)
	}
	m, err := DecodeCommand(body)
	if err != nil {
		t.Fatalf("DecodeCommand failed: %v", err)
	}
	if m.SOB != nil {
		t.Errorf("expected no SOB command, got %+v", m.SOB)
	}
}

func TestBody_UnknownKeysIgnored(t *testing.T) {
	body, err := cbor.Marshal(map[int]any{1: uint64(ControlPong), 2: uint64(90000), 7: "future"})
	if err != nil {
		t.Fatal(err)
	}
	m, err := DecodeControl(body)
	if err != nil {
		t.Fatalf("DecodeControl failed: %v", err)
	}
	if m.Code != ControlPong || m.UptimeMs != 90000 {
		t.Errorf("decoded %+v", m)
	}
}

func TestBody_Errors(t *testing.T) {
	if _, err := DecodeTelemetry(nil); !errors.Is(err, ErrEmptyBody) {
		t.Errorf("empty body error = %v, want ErrEmptyBody", err)
	}
	if _, err := DecodeTelemetry([]byte{0xFF, 0x00}); err == nil {
		t.Error("expected error for invalid CBOR")
	}
}

func TestTelemetryBodies(t *testing.T) {
	lc, err := NewLoadCellTelemetryBody(LoadCellData{Raw: 81234, WeightCentigrams: 50000, Calibrated: true})
	if err != nil {
		t.Fatal(err)
	}
	m, err := DecodeTelemetry(lc)
	if err != nil {
		t.Fatal(err)
	}
	if m.LoadCell == nil || m.LoadCell.WeightCentigrams != 50000 || m.Temperature != nil || m.IR != nil {
		t.Errorf("decoded %+v", m)
	}

	temp, err := NewTemperatureTelemetryBody(TemperatureData{TC1CentiC: 2150, TC2CentiC: -475})
	if err != nil {
		t.Fatal(err)
	}
	m, err = DecodeTelemetry(temp)
	if err != nil {
		t.Fatal(err)
	}
	if m.Temperature == nil || m.Temperature.TC2CentiC != -475 {
		t.Errorf("decoded %+v", m.Temperature)
	}
}

func TestParseNode(t *testing.T) {
	for _, name := range []string{"sob", "SOB", " rcu ", "dmb", "pbb"} {
		n, err := ParseNode(name)
		if err != nil {
			t.Errorf("ParseNode(%q) failed: %v", name, err)
			continue
		}
		if !strings.EqualFold(n.String(), strings.TrimSpace(name)) {
			t.Errorf("ParseNode(%q) = %v", name, n)
		}
	}
	if _, err := ParseNode("gse"); err == nil {
		t.Error("ParseNode(gse) should fail")
	}
}

func TestFormatEnvelope(t *testing.T) {
	body, _ := NewSOBCommandBody(SOBCalibrateLoadCell, 50000)
	out := FormatEnvelope(Envelope{Source: NodeRCU, Target: NodeSOB, Kind: KindCommand, Sequence: 2, Body: body})
	for _, want := range []string{"COMMAND rcu -> sob", "CALIBRATE_LOAD_CELL", "500.00 g"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	pong, _ := NewPongBody(3723000)
	out = FormatBody(KindControl, pong)
	if !strings.Contains(out, "PONG uptime=1h02m03s") {
		t.Errorf("pong output: %s", out)
	}

	out = FormatBody(MessageKind(9), []byte{0xAB})
	if !strings.Contains(out, "raw=AB") {
		t.Errorf("unknown kind output: %s", out)
	}
}

func TestFormatCentis(t *testing.T) {
	tests := []struct {
		v    int32
		want string
	}{
		{50000, "500.00 g"},
		{5, "0.05 g"},
		{-475, "-4.75 g"},
		{0, "0.00 g"},
	}
	for _, tt := range tests {
		if got := FormatCentis(tt.v, "g"); got != tt.want {
			t.Errorf("FormatCentis(%d) = %q, want %q", tt.v, got, tt.want)
		}
	}
}
