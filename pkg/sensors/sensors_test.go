// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sensors

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/soar-avionics/sob/pkg/command"
	"github.com/soar-avionics/sob/pkg/sobproto"
	"github.com/soar-avionics/sob/pkg/task"
)

var errSensor = errors.New("sensor not responding")

type fakeADC struct {
	mu    sync.Mutex
	value int32
	err   error
	calls []int
}

func (a *fakeADC) set(v int32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.value = v
}

func (a *fakeADC) ReadAverage(samples int) (int32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, samples)
	return a.value, a.err
}

type sentMessage struct {
	kind   sobproto.MessageKind
	target sobproto.Node
	body   []byte
}

type fakeTx struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeTx) SendMessage(kind sobproto.MessageKind, target sobproto.Node, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{kind, target, append([]byte(nil), body...)})
	return nil
}

func (f *fakeTx) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func spec(name string) task.Spec {
	return task.Spec{Name: name, StackDepthWords: 1024, Priority: 2, QueueDepth: 8}
}

func newLoadCell(t *testing.T, adc *fakeADC, tx Transmitter) *LoadCell {
	t.Helper()
	lc, err := NewLoadCell(LoadCellConfig{
		Task:            spec("loadcell"),
		PollInterval:    5 * time.Millisecond,
		TelemetryTarget: sobproto.NodeRCU,
	}, adc, tx, zaptest.NewLogger(t))
	require.NoError(t, err)
	return lc
}

func request(sub uint16) command.Command {
	return command.New(command.ClassRequest, sub)
}

func TestLoadCell_TareThenCalibrate(t *testing.T) {
	adc := &fakeADC{value: 8000}
	lc := newLoadCell(t, adc, nil)
	ctx := context.Background()

	task.Dispatch(ctx, lc, request(LoadCellTare))
	require.Equal(t, int32(8000), lc.State().Offset)
	require.False(t, lc.State().Calibrated)

	// 500.00 g on the cell reads 50000 counts above the offset.
	adc.set(58000)
	task.Dispatch(ctx, lc, command.NewWithInt32(command.ClassRequest, LoadCellCalibrate, 50000))

	s := lc.State()
	require.True(t, s.Calibrated)
	require.InDelta(t, 100.0, s.Coef, 1e-9)

	adc.set(33000)
	task.Dispatch(ctx, lc, request(LoadCellNewSample))
	s = lc.State()
	require.InDelta(t, 250.0, s.WeightGrams, 1e-9)
	require.Equal(t, int32(25000), s.WeightCentigrams())
	require.Equal(t, []int{10, 10, 10}, adc.calls)
}

func TestLoadCell_CalibrateRejectsNonPositiveMass(t *testing.T) {
	adc := &fakeADC{value: 1200}
	lc := newLoadCell(t, adc, nil)
	require.NoError(t, lc.Tare())
	adc.set(9000)

	for _, mass := range []int32{0, -50000} {
		require.ErrorIs(t, lc.Calibrate(mass), ErrInvalidMass)

		base := command.LivePayloads()
		task.Dispatch(context.Background(), lc, command.NewWithInt32(command.ClassRequest, LoadCellCalibrate, mass))
		require.Equal(t, base, command.LivePayloads())
	}

	s := lc.State()
	require.False(t, s.Calibrated)
	require.Zero(t, s.Coef)
}

func TestLoadCell_CalibrateRejectsZeroSpan(t *testing.T) {
	adc := &fakeADC{value: 4242}
	lc := newLoadCell(t, adc, nil)
	require.NoError(t, lc.Tare())
	require.ErrorIs(t, lc.Calibrate(50000), ErrZeroSpan)
	require.False(t, lc.State().Calibrated)
}

func TestLoadCell_CalibrateWithoutPayload(t *testing.T) {
	lc := newLoadCell(t, &fakeADC{value: 10}, nil)
	task.Dispatch(context.Background(), lc, request(LoadCellCalibrate))
	require.False(t, lc.State().Calibrated)
}

func TestLoadCell_UncalibratedSampleIsZero(t *testing.T) {
	lc := newLoadCell(t, &fakeADC{value: 777}, nil)
	require.NoError(t, lc.Sample())
	s := lc.State()
	require.Equal(t, int32(777), s.Raw)
	require.Zero(t, s.WeightGrams)
}

func TestLoadCell_DriverErrorKeepsState(t *testing.T) {
	adc := &fakeADC{value: 500}
	lc := newLoadCell(t, adc, nil)
	require.NoError(t, lc.Tare())

	adc.mu.Lock()
	adc.err = errSensor
	adc.mu.Unlock()

	require.ErrorIs(t, lc.Tare(), errSensor)
	require.ErrorIs(t, lc.Calibrate(100), errSensor)
	require.ErrorIs(t, lc.Sample(), errSensor)
	require.Equal(t, int32(500), lc.State().Offset)
}

func TestLoadCell_Transmit(t *testing.T) {
	adc := &fakeADC{value: 0}
	tx := &fakeTx{}
	lc := newLoadCell(t, adc, tx)
	require.NoError(t, lc.Tare())
	adc.set(20000)
	require.NoError(t, lc.Calibrate(10000))
	require.NoError(t, lc.Sample())

	task.Dispatch(context.Background(), lc, request(LoadCellTransmit))

	msgs := tx.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, sobproto.KindTelemetry, msgs[0].kind)
	require.Equal(t, sobproto.NodeRCU, msgs[0].target)

	m, err := sobproto.DecodeTelemetry(msgs[0].body)
	require.NoError(t, err)
	require.NotNil(t, m.LoadCell)
	require.Equal(t, int32(20000), m.LoadCell.Raw)
	require.Equal(t, int32(10000), m.LoadCell.WeightCentigrams)
	require.True(t, m.LoadCell.Calibrated)
}

func TestLoadCell_UnknownCommandsResetOnce(t *testing.T) {
	lc := newLoadCell(t, &fakeADC{}, nil)
	base := command.LivePayloads()

	for _, cmd := range []command.Command{
		mustPayload(t, command.ClassRequest, 99),
		mustPayload(t, command.ClassGlobal, LoadCellTare),
		mustPayload(t, command.ClassData, 1),
	} {
		task.Dispatch(context.Background(), lc, cmd)
	}
	require.Equal(t, base, command.LivePayloads())
	require.Zero(t, lc.State().Offset, "non-request classes must not tare")
}

func mustPayload(t *testing.T, class command.Class, sub uint16) command.Command {
	t.Helper()
	cmd, err := command.NewWithPayload(class, sub, []byte{0xDE, 0xAD})
	require.NoError(t, err)
	return cmd
}

func TestLoadCell_RunLoopAndDumpMode(t *testing.T) {
	adc := &fakeADC{value: 100}
	lc := newLoadCell(t, adc, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		lc.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	require.NoError(t, lc.SendCommand(ctx, request(LoadCellTare)))
	require.Eventually(t, func() bool { return lc.State().Offset == 100 }, time.Second, time.Millisecond)

	require.NoError(t, lc.SendCommand(ctx, request(LoadCellDumpData)))
	adc.set(4321)
	require.Eventually(t, func() bool { return lc.State().Raw == 4321 }, time.Second, time.Millisecond,
		"dump mode samples without explicit requests")

	require.NoError(t, lc.SendCommand(ctx, request(LoadCellDumpDataStop)))
	require.Eventually(t, func() bool { return !lc.State().Dumping }, time.Second, time.Millisecond)
}

type fakeThermo struct {
	mu   sync.Mutex
	data sobproto.TemperatureData
	err  error
}

func (f *fakeThermo) ReadTemperatures() (sobproto.TemperatureData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data, f.err
}

func TestThermocouple_SampleAndTransmit(t *testing.T) {
	rd := &fakeThermo{data: sobproto.TemperatureData{TC1CentiC: 2150, TC2CentiC: 2310}}
	tx := &fakeTx{}
	tc, err := NewThermocouple(ReactiveConfig{Task: spec("thermocouple"), TelemetryTarget: sobproto.NodeRCU}, rd, tx, zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()

	// Nothing to transmit before the first sample.
	task.Dispatch(ctx, tc, request(RequestTransmit))
	require.Empty(t, tx.messages())

	task.Dispatch(ctx, tc, request(RequestNewSample))
	last, ok := tc.Last()
	require.True(t, ok)
	require.Equal(t, int32(2150), last.TC1CentiC)

	// A failed read keeps the previous sample.
	rd.mu.Lock()
	rd.err = errSensor
	rd.mu.Unlock()
	task.Dispatch(ctx, tc, request(RequestNewSample))
	last, _ = tc.Last()
	require.Equal(t, int32(2310), last.TC2CentiC)

	task.Dispatch(ctx, tc, request(RequestTransmit))
	task.Dispatch(ctx, tc, request(RequestDebug))
	msgs := tx.messages()
	require.Len(t, msgs, 1)
	m, err := sobproto.DecodeTelemetry(msgs[0].body)
	require.NoError(t, err)
	require.Equal(t, &sobproto.TemperatureData{TC1CentiC: 2150, TC2CentiC: 2310}, m.Temperature)
}

type fakeIR struct{ data sobproto.IRData }

func (f *fakeIR) ReadIR() (sobproto.IRData, error) { return f.data, nil }

func TestIR_RunLoop(t *testing.T) {
	tx := &fakeTx{}
	ir, err := NewIR(ReactiveConfig{Task: spec("ir"), TelemetryTarget: sobproto.NodeDMB},
		&fakeIR{data: sobproto.IRData{AmbientCentiC: 2000, ObjectCentiC: 4500}}, tx, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ir.Run(ctx)
		close(done)
	}()

	require.NoError(t, ir.SendCommand(ctx, request(RequestNewSample)))
	require.NoError(t, ir.SendCommand(ctx, request(RequestTransmit)))
	require.NoError(t, ir.SendCommand(ctx, request(42)))
	require.Eventually(t, func() bool { return len(tx.messages()) == 1 }, time.Second, time.Millisecond)
	require.Equal(t, sobproto.NodeDMB, tx.messages()[0].target)

	cancel()
	<-done
}

func TestTasksSatisfyTaskInterface(t *testing.T) {
	var _ task.Task = (*LoadCell)(nil)
	var _ task.Task = (*Thermocouple)(nil)
	var _ task.Task = (*IR)(nil)
}
