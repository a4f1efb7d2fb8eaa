// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soar-avionics/sob/pkg/board"
	"github.com/soar-avionics/sob/pkg/mqttsink"
	"github.com/soar-avionics/sob/pkg/sim"
)

var (
	simOffset     int32
	simCounts     float64
	simNoise      int32
	simMassGrams  float64
	simTempCentiC int32
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sensor board on a link with simulated sensors",
	Long: `Start every board task (protocol, load cell, thermocouple, IR, telemetry)
against the configured link. Sensor drivers are simulated: the load cell
reports a fixed offset plus a linear response to --sim-mass.

Telemetry addressed to this node is forwarded to MQTT when mqtt.enabled is
set in the configuration, otherwise it is logged.

A remote SYS_RESET stops the process with a non-zero exit status.`,
	RunE: runBoard,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Int32Var(&simOffset, "sim-offset", 8000, "Simulated load cell zero offset (raw counts)")
	runCmd.Flags().Float64Var(&simCounts, "sim-counts-per-gram", 100, "Simulated load cell sensitivity")
	runCmd.Flags().Int32Var(&simNoise, "sim-noise", 20, "Simulated load cell noise amplitude (raw counts)")
	runCmd.Flags().Float64Var(&simMassGrams, "sim-mass", 0, "Mass on the simulated load cell in grams")
	runCmd.Flags().Int32Var(&simTempCentiC, "sim-temp", 2500, "Simulated thermocouple base temperature (centi-degrees C)")
}

func runBoard(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	conn, info, err := OpenConnection(ctx, cfg.Link)
	if err != nil {
		return err
	}
	defer conn.Close()

	var (
		haltMu  sync.Mutex
		haltErr error
	)
	opts := []board.Option{
		board.WithHalt(func(err error) {
			haltMu.Lock()
			if haltErr == nil {
				haltErr = err
			}
			haltMu.Unlock()
			cancel()
		}),
	}

	if cfg.MQTT.Enabled {
		sink, err := mqttsink.Connect(cfg.MQTT, logger)
		if err != nil {
			return err
		}
		defer sink.Close()
		opts = append(opts, board.WithForwarder(sink))
	}

	hx := sim.NewHX711(simOffset, simCounts, simNoise, 1)
	hx.SetMass(simMassGrams)
	drv := board.Drivers{
		LoadCell:     hx,
		Thermocouple: sim.NewThermocouples(simTempCentiC),
		IR:           sim.NewIR(2100, simTempCentiC+1500),
	}

	b, err := board.Build(cfg, conn, drv, logger, opts...)
	if err != nil {
		return err
	}
	logger.Info("link open", zap.String("connection", info))

	runErr := make(chan error, 1)
	go func() { runErr <- b.Run(ctx) }()

	listenErr := b.Router.Listen(ctx, conn)
	cancel()
	<-runErr

	haltMu.Lock()
	defer haltMu.Unlock()
	switch {
	case haltErr != nil:
		return fmt.Errorf("board halted: %w", haltErr)
	case listenErr != nil && !errors.Is(listenErr, context.Canceled):
		return fmt.Errorf("link: %w", listenErr)
	}
	logger.Info("board stopped", zap.Duration("uptime", b.Uptime()))
	return nil
}
