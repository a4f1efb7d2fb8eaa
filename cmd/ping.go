// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soar-avionics/sob/pkg/sobproto"
)

var (
	pingTimeout int
	pingCount   int
	pingSource  string
	pingTarget  string
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure round trip time to a board with control pings",
	Long: `Send CONTROL PING envelopes to a board and wait for the matching PONG.

The reply carries the sequence number of the ping and the board's uptime.
Useful for verifying:
  - the link is up in both directions
  - the board is running its protocol task
  - the board answers for the expected node

Exit codes:
  0 - All pings answered
  1 - One or more pings failed or timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().StringVar(&pingSource, "source", "rcu", "Source node")
	pingCmd.Flags().StringVar(&pingTarget, "target", "sob", "Target node")
}

type pong struct {
	seq      uint32
	uptimeMs uint64
}

// pongCollector returns a handler that passes pongs from target to out
func pongCollector(target sobproto.Node, out chan<- pong) envelopeHandler {
	return func(_ context.Context, env sobproto.Envelope) {
		if env.Kind != sobproto.KindControl || env.Source != target {
			return
		}
		msg, err := sobproto.DecodeControl(env.Body)
		if err != nil || msg.Code != sobproto.ControlPong {
			return
		}
		select {
		case out <- pong{seq: env.Sequence, uptimeMs: msg.UptimeMs}:
		default:
		}
	}
}

func runPing(cmd *cobra.Command, args []string) error {
	source, err := parseNodeFlag("source", pingSource)
	if err != nil {
		return err
	}
	target, err := parseNodeFlag("target", pingTarget)
	if err != nil {
		return err
	}

	pongs := make(chan pong, 8)
	link, err := openGroundLink(cmd.Context(), cfg, source, pongCollector(target, pongs))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer link.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	serveErr := make(chan error, 1)
	go func() { serveErr <- link.serve(ctx) }()

	fmt.Printf("Ping %s from %s\n", target, source)
	fmt.Printf("Connection: %s\n", link.info)
	fmt.Printf("Timeout: %d seconds per ping\n\n", pingTimeout)

	body, err := sobproto.NewPingBody()
	if err != nil {
		return err
	}

	successCount, failCount := 0, 0
pings:
	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		seq := uint32(i)
		startTime := time.Now()
		err := link.SendEnvelope(sobproto.Envelope{
			Source:   source,
			Target:   target,
			Kind:     sobproto.KindControl,
			Sequence: seq,
			Body:     body,
		})
		if err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			failCount++
			continue
		}

		deadline := time.After(time.Duration(pingTimeout) * time.Second)
	wait:
		for {
			select {
			case p := <-pongs:
				if p.seq != seq {
					logger.Debug("stale pong", zap.Uint32("seq", p.seq), zap.Uint32("want", seq))
					continue
				}
				rtt := time.Since(startTime)
				fmt.Printf("PONG from %s, uptime=%s, rtt=%v\n",
					target, time.Duration(p.uptimeMs)*time.Millisecond, rtt.Round(time.Millisecond))
				successCount++
				break wait

			case err := <-serveErr:
				if err == nil {
					err = ErrConnectionClosed
				}
				fmt.Printf("READ FAILED: %v\n", err)
				failCount += pingCount - i + 1
				break pings

			case <-deadline:
				fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeout)
				failCount++
				break wait
			}
		}

		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% packet loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
