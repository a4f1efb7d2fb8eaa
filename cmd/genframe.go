// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soar-avionics/sob/pkg/frame"
	"github.com/soar-avionics/sob/pkg/sobproto"
)

var genFrameSeq uint32

var genFrameCmd = &cobra.Command{
	Use:   "genframe <request> [arg]",
	Short: "Print the wire bytes for a command",
	Long: `Encode a request exactly as send would and print the framed bytes as hex,
for injecting with a bench UART tool. No connection is opened.

Requests are the same as for send.

Example:
  sob genframe calibrate 500 --seq 7`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runGenFrame,
}

func init() {
	rootCmd.AddCommand(genFrameCmd)
	genFrameCmd.Flags().StringVar(&sendSource, "source", "rcu", "Source node")
	genFrameCmd.Flags().StringVar(&sendTarget, "target", "sob", "Target node")
	genFrameCmd.Flags().Uint32Var(&genFrameSeq, "seq", 1, "Envelope sequence number")
}

// encodeRequest frames req under an envelope
func encodeRequest(req request, source, target sobproto.Node, seq uint32) (sobproto.Envelope, []byte, error) {
	env := sobproto.Envelope{
		Source:   source,
		Target:   target,
		Kind:     req.kind,
		Sequence: seq,
		Body:     req.body,
	}
	wire, err := frame.AppendFrame(nil, env.Marshal())
	if err != nil {
		return env, nil, err
	}
	return env, wire, nil
}

func hexBytes(b []byte) string {
	var s strings.Builder
	for i, c := range b {
		if i > 0 {
			s.WriteByte(' ')
		}
		fmt.Fprintf(&s, "%02X", c)
	}
	return s.String()
}

func runGenFrame(cmd *cobra.Command, args []string) error {
	req, err := parseRequest(args)
	if err != nil {
		return err
	}
	source, err := parseNodeFlag("source", sendSource)
	if err != nil {
		return err
	}
	target, err := parseNodeFlag("target", sendTarget)
	if err != nil {
		return err
	}

	env, wire, err := encodeRequest(req, source, target, genFrameSeq)
	if err != nil {
		return err
	}

	fmt.Print(sobproto.FormatEnvelope(env))
	fmt.Printf("  Frame: %d bytes, CRC 0x%04X\n", len(wire), frame.CalculateCRC(wire[:len(wire)-frame.TrailerSize]))
	fmt.Println(hexBytes(wire))
	return nil
}
