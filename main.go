// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// sob - sensor board runtime and serial bus tools
//
// Runs the sensor board tasks against a serial or WebSocket link and provides
// ground tools for commanding the board and decoding bus traffic.

package main

import (
	"os"

	"github.com/soar-avionics/sob/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
