// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Moteprobe - Serial Mote Bridge
//
// Bridges motes attached to serial devices to network clients, one client
// per device, with credit-based flow control toward the mote.

package main

import (
	"os"

	"github.com/Thermoquad/moteprobe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
