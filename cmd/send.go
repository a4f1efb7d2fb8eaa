// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soar-avionics/sob/pkg/sobproto"
)

var (
	sendSource string
	sendTarget string
)

var sendCmd = &cobra.Command{
	Use:   "send <request> [arg]",
	Short: "Send a command to a board",
	Long: `Build a command envelope and transmit it on the link.

Requests:
  tare                 zero the load cell
  calibrate <grams>    calibrate the load cell against a known mass
  sample-lc            sample and transmit the load cell
  sample-tc            sample and transmit the thermocouples
  sample-ir            sample and transmit the IR sensor
  period <ms>          set the telemetry logging period
  reset                request a system reset

Examples:
  sob send tare --port /dev/ttyUSB0
  sob send calibrate 500 --port /dev/ttyUSB0
  sob send period 250 --url ws://bridge.local/bus --target sob`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVar(&sendSource, "source", "rcu", "Source node")
	sendCmd.Flags().StringVar(&sendTarget, "target", "sob", "Target node")
}

// request is a message ready to be enveloped
type request struct {
	name string
	kind sobproto.MessageKind
	body []byte
}

// parseRequest turns CLI words into a message body
func parseRequest(args []string) (request, error) {
	if len(args) == 0 {
		return request{}, fmt.Errorf("missing request")
	}
	name := strings.ToLower(args[0])
	rest := args[1:]

	needArg := func() (string, error) {
		if len(rest) != 1 {
			return "", fmt.Errorf("%s takes exactly one argument", name)
		}
		return rest[0], nil
	}
	noArg := func() error {
		if len(rest) != 0 {
			return fmt.Errorf("%s takes no argument", name)
		}
		return nil
	}

	var (
		code  sobproto.SOBCommandCode
		param int32
	)
	switch name {
	case "tare":
		code = sobproto.SOBTareLoadCell
	case "calibrate", "cal":
		arg, err := needArg()
		if err != nil {
			return request{}, err
		}
		param, err = parseGrams(arg)
		if err != nil {
			return request{}, err
		}
		code = sobproto.SOBCalibrateLoadCell
	case "sample-lc":
		code = sobproto.SOBSampleLoadCell
	case "sample-tc":
		code = sobproto.SOBSampleThermocouple
	case "sample-ir":
		code = sobproto.SOBSampleIR
	case "period":
		arg, err := needArg()
		if err != nil {
			return request{}, err
		}
		ms, err := strconv.ParseUint(arg, 10, 16)
		if err != nil || ms == 0 {
			return request{}, fmt.Errorf("invalid period %q: want 1-65535 ms", arg)
		}
		code, param = sobproto.SOBSetTelemetryPeriod, int32(ms)
	case "reset":
		if err := noArg(); err != nil {
			return request{}, err
		}
		body, err := sobproto.NewSysResetBody()
		if err != nil {
			return request{}, err
		}
		return request{name: sobproto.ControlSysReset.String(), kind: sobproto.KindControl, body: body}, nil
	default:
		return request{}, fmt.Errorf("unknown request %q", args[0])
	}

	if code != sobproto.SOBCalibrateLoadCell && code != sobproto.SOBSetTelemetryPeriod {
		if err := noArg(); err != nil {
			return request{}, err
		}
	}
	body, err := sobproto.NewSOBCommandBody(code, param)
	if err != nil {
		return request{}, err
	}
	return request{name: code.String(), kind: sobproto.KindCommand, body: body}, nil
}

// parseGrams converts a positive mass in grams to centigrams
func parseGrams(s string) (int32, error) {
	g, err := strconv.ParseFloat(s, 64)
	if err != nil || g <= 0 || math.IsInf(g, 0) || g*100 > math.MaxInt32 {
		return 0, fmt.Errorf("invalid mass %q: want positive grams", s)
	}
	return int32(math.Round(g * 100)), nil
}

func runSend(cmd *cobra.Command, args []string) error {
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

	link, err := openGroundLink(cmd.Context(), cfg, source, nil)
	if err != nil {
		return err
	}
	defer link.Close()

	if err := link.SendMessage(req.kind, target, req.body); err != nil {
		return err
	}
	fmt.Printf("Sent %s %s -> %s on %s\n", req.name, source, target, link.info)
	return nil
}
