// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	"github.com/Thermoquad/moteprobe/pkg/bridge"
	"github.com/Thermoquad/moteprobe/pkg/moteframe"
	"github.com/spf13/cobra"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display frames from a mote in human-readable format",
	Long: `Continuously decode and display frames as the mote sends them.

Each frame is shown with timestamp, frame type and payload. Credit requests
show the advertised capacity and whether it would flush pending output.
Nothing is written to the device, so credit is never consumed.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	if portName == "" {
		return fmt.Errorf("--port must be specified")
	}

	opts, err := bridge.PortOptions{BaudRate: baudRate}.Normalize()
	if err != nil {
		return err
	}
	port, err := bridge.OpenSerial(portName, opts)
	if err != nil {
		return err
	}
	defer port.Close()

	ctx := cmd.Context()
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer stop()

	fmt.Printf("Moteprobe - Raw Frame Log\n")
	fmt.Printf("Serial: %s @ %s\n", portName, opts)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := moteframe.NewDecoder()
	decoder.SetMaxFrameSize(maxFrameSize)
	buf := make([]byte, 128)

	for {
		n, err := port.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}

		decoder.Decode(buf[:n], func(frame *moteframe.Frame, err error) {
			if err != nil {
				fmt.Printf("[ERROR] %v\n", err)
				return
			}
			fmt.Print(moteframe.FormatFrame(frame))
		})
	}
}
