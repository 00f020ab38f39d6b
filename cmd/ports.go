// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/moteprobe/pkg/bridge"
	"github.com/spf13/cobra"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial devices motes may be attached to",
	RunE:  runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	devices, err := bridge.AvailablePorts()
	if err != nil {
		return fmt.Errorf("failed to list serial ports: %w", err)
	}
	if len(devices) == 0 {
		fmt.Println("No serial devices found")
		return nil
	}

	for i, d := range devices {
		fmt.Print(formatDevice(i, d))
	}
	return nil
}

func formatDevice(index int, d bridge.DeviceInfo) string {
	if !d.IsUSB {
		return fmt.Sprintf("%2d  %s\n", index, d.Name)
	}
	line := fmt.Sprintf("%2d  %s  [%s:%s]", index, d.Name, d.VID, d.PID)
	if d.Product != "" {
		line += " " + d.Product
	}
	if d.SerialNumber != "" {
		line += " (S/N " + d.SerialNumber + ")"
	}
	return line + "\n"
}
