// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/moteprobe/pkg/bridge"
	"github.com/spf13/cobra"
)

var (
	basePort   int
	listenHost string
)

var probeCmd = &cobra.Command{
	Use:   "probe [DEVICE...]",
	Short: "Bridge every attached mote, one socket port per device",
	Long: `Discover serial devices and start one bridge per device.

Devices are sorted by name and assigned consecutive socket ports starting at
--base-port: the first device listens on 8080, the second on 8081 and so on.
Devices may also be named explicitly, in which case discovery is skipped.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&basePort, "base-port", 8080, "Socket port of the first device")
	probeCmd.Flags().StringVar(&listenHost, "host", "", "Host to listen on (default all interfaces)")
	probeCmd.Flags().BoolVar(&useTUI, "tui", false, "Use terminal UI")
	probeCmd.Flags().IntVar(&statsInterval, "stats-interval", 0, "Print statistics every N seconds (0 = off, text mode only)")
}

func runProbe(cmd *cobra.Command, args []string) error {
	devices := args
	if len(devices) == 0 {
		found, err := bridge.AvailablePorts()
		if err != nil {
			return fmt.Errorf("failed to list serial ports: %w", err)
		}
		devices = bridge.DeviceNames(found)
	}
	if len(devices) == 0 {
		return fmt.Errorf("no serial devices found")
	}

	targets, err := probeTargets(devices, listenHost, basePort)
	if err != nil {
		return err
	}
	return runBridges(cmd, targets)
}

// probeTargets assigns consecutive ports to devices
func probeTargets(devices []string, host string, base int) ([]target, error) {
	if base <= 0 || base+len(devices)-1 > 65535 {
		return nil, fmt.Errorf("invalid port range %d-%d", base, base+len(devices)-1)
	}

	targets := make([]target, 0, len(devices))
	for i, device := range devices {
		targets = append(targets, target{
			device: device,
			listen: fmt.Sprintf("%s:%d", host, base+i),
		})
	}
	return targets, nil
}
