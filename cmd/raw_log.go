// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/soar-avionics/sob/pkg/router"
	"github.com/soar-avionics/sob/pkg/sobproto"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display every envelope on the bus in human-readable format",
	Long: `Continuously decode and display bus envelopes as they arrive.

Every valid frame is shown regardless of its target node, with timestamp,
addressing, sequence number and decoded body. Frames failing the checksum are
counted and summarized on exit.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func printEnvelope(env sobproto.Envelope) {
	fmt.Printf("[%s] %s", time.Now().Format("15:04:05.000"), sobproto.FormatEnvelope(env))
}

func runRawLog(cmd *cobra.Command, args []string) error {
	// The link never matches a target, so nothing reaches a handler and
	// every envelope is seen once through the tap.
	link, err := openGroundLink(cmd.Context(), cfg, sobproto.NodeUnknown, nil, router.WithTap(printEnvelope))
	if err != nil {
		return err
	}
	defer link.Close()

	fmt.Printf("SOB - Raw Envelope Log\n")
	fmt.Printf("Connection: %s\n", link.info)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	err = link.serve(cmd.Context())
	fmt.Printf("\n%s\n", link.Stats().Frame)
	return err
}
