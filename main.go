// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Solenoid - pinball coil and switch controller host
//
// Drives coils, tracks switches and programs hardware rules on a JR pinball
// controller over USB serial or a WebSocket bridge.

package main

import (
	"os"

	"github.com/Thermoquad/solenoid/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
