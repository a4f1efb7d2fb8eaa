// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/soar-avionics/sob/pkg/command"
	"github.com/soar-avionics/sob/pkg/sensors"
	"github.com/soar-avionics/sob/pkg/task"
)

type recorder struct {
	mu   sync.Mutex
	subs []uint16
}

func (r *recorder) SendCommand(ctx context.Context, cmd command.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, cmd.SubCode)
	cmd.Reset()
	return nil
}

func (r *recorder) got() []uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint16(nil), r.subs...)
}

func testSpec() task.Spec {
	return task.Spec{Name: "telemetry", StackDepthWords: 512, Priority: 1, QueueDepth: 4}
}

func TestTelemetry_LogSequence(t *testing.T) {
	lc, tc, ir := &recorder{}, &recorder{}, &recorder{}

	tel, err := New(Config{Task: testSpec(), Period: time.Second}, lc, tc, ir, zaptest.NewLogger(t))
	require.NoError(t, err)
	tel.RunLogSequence(context.Background())

	require.Equal(t, []uint16{sensors.LoadCellNewSample, sensors.LoadCellTransmit}, lc.got())
	require.Equal(t, []uint16{sensors.RequestNewSample, sensors.RequestTransmit}, tc.got())
	require.Empty(t, ir.got(), "IR is skipped unless enabled")

	tel, err = New(Config{Task: testSpec(), Period: time.Second, IncludeIR: true}, nil, nil, ir, zaptest.NewLogger(t))
	require.NoError(t, err)
	tel.RunLogSequence(context.Background())
	require.Equal(t, []uint16{sensors.RequestNewSample, sensors.RequestTransmit}, ir.got())
}

func TestTelemetry_ChangePeriod(t *testing.T) {
	tel, err := New(Config{Task: testSpec()}, nil, nil, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Equal(t, DefaultPeriod, tel.Period())

	ctx := context.Background()
	task.Dispatch(ctx, tel, command.New(command.ClassTaskSpecific, 250))
	require.Equal(t, 250*time.Millisecond, tel.Period())

	task.Dispatch(ctx, tel, command.New(command.ClassTaskSpecific, 0))
	require.Equal(t, 250*time.Millisecond, tel.Period(), "zero period is rejected")

	task.Dispatch(ctx, tel, command.New(command.ClassRequest, 100))
	require.Equal(t, 250*time.Millisecond, tel.Period())
}

func TestTelemetry_RunIsPeriodic(t *testing.T) {
	lc := &recorder{}
	tel, err := New(Config{Task: testSpec(), Period: 5 * time.Millisecond}, lc, nil, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tel.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(lc.got()) >= 6 }, time.Second, time.Millisecond)

	// The period change is picked up at the start of the next cycle.
	require.NoError(t, tel.SendCommand(ctx, command.New(command.ClassTaskSpecific, 10)))
	require.Eventually(t, func() bool { return tel.Period() == 10*time.Millisecond }, time.Second, time.Millisecond)

	cancel()
	<-done
}
