// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/soar-avionics/sob/pkg/router"
	"github.com/soar-avionics/sob/pkg/sobproto"
)

var waitFrameTimeout int

var waitFrameCmd = &cobra.Command{
	Use:   "wait_frame",
	Short: "Test a link by waiting for one valid envelope",
	Long: `Wait for any valid envelope on the link until timeout.

Bytes that do not form a frame with a good checksum are skipped. The first
complete envelope, whatever its target, ends the wait.

Exit codes:
  0 - Envelope received before timeout
  1 - Timeout reached without receiving a valid envelope
  2 - Connection error

Useful for checking wiring and baud rate before starting the board.`,
	RunE: runWaitFrame,
}

func init() {
	rootCmd.AddCommand(waitFrameCmd)
	waitFrameCmd.Flags().IntVar(&waitFrameTimeout, "timeout", 10, "Timeout in seconds to wait for an envelope")
}

func runWaitFrame(cmd *cobra.Command, args []string) error {
	got := make(chan sobproto.Envelope, 1)
	tap := func(env sobproto.Envelope) {
		select {
		case got <- env:
		default:
		}
	}

	link, err := openGroundLink(cmd.Context(), cfg, sobproto.NodeUnknown, nil, router.WithTap(tap))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer link.Close()

	fmt.Printf("SOB - Link Test\n")
	fmt.Printf("Connection: %s\n", link.info)
	fmt.Printf("Timeout: %d seconds\n", waitFrameTimeout)
	fmt.Printf("Waiting for a valid envelope...\n\n")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	serveErr := make(chan error, 1)
	go func() { serveErr <- link.serve(ctx) }()

	select {
	case env := <-got:
		fmt.Printf("SUCCESS: Received valid envelope\n")
		fmt.Print(sobproto.FormatEnvelope(env))
		if f := link.Stats().Frame; f.Invalid+f.Dropped > 0 {
			fmt.Printf("  (%d checksum failures, %d dropped bytes before it)\n", f.Invalid, f.Dropped)
		}
		return nil

	case err := <-serveErr:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(waitFrameTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid envelope received within %d seconds\n", waitFrameTimeout)
		os.Exit(1)
	}
	return nil
}
