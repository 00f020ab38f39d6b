// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/moteprobe/pkg/bridge"
	"github.com/Thermoquad/moteprobe/pkg/moteframe"
	"github.com/spf13/cobra"
)

var (
	frameTestTimeout int
	frameTestCredit  bool
)

var frameTestCmd = &cobra.Command{
	Use:   "frame_test",
	Short: "Test a device by waiting for a valid mote frame",
	Long: `Wait for a complete mote frame on a serial device until timeout.

Bytes outside ^^^ ... $$$ markers are ignored. With --credit, only a credit
request advertising capacity 200 counts, confirming the mote would accept
output from a bridge.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a frame
  2 - Connection error`,
	RunE: runFrameTest,
}

func init() {
	rootCmd.AddCommand(frameTestCmd)
	frameTestCmd.Flags().IntVar(&frameTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
	frameTestCmd.Flags().BoolVar(&frameTestCredit, "credit", false, "Wait for a credit grant instead of any frame")
}

func runFrameTest(cmd *cobra.Command, args []string) error {
	if portName == "" {
		return fmt.Errorf("--port must be specified")
	}

	port, err := bridge.OpenSerial(portName, bridge.PortOptions{BaudRate: baudRate})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer port.Close()

	fmt.Printf("Moteprobe - Frame Test\n")
	fmt.Printf("Serial: %s @ %d baud\n", portName, baudRate)
	fmt.Printf("Timeout: %d seconds\n", frameTestTimeout)
	if frameTestCredit {
		fmt.Printf("Waiting for credit grant...\n\n")
	} else {
		fmt.Printf("Waiting for valid frame...\n\n")
	}

	frameChan := make(chan *moteframe.Frame, 1)
	errChan := make(chan error, 1)

	go func() {
		frame, err := waitForFrame(port, frameTestCredit)
		if err != nil {
			errChan <- err
			return
		}
		frameChan <- frame
	}()

	select {
	case frame := <-frameChan:
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Print(moteframe.FormatFrame(frame))
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(frameTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", frameTestTimeout)
		os.Exit(1)

	case <-cmd.Context().Done():
		return nil
	}

	return nil
}

// waitForFrame reads until a frame arrives, or a credit grant when creditOnly is set
func waitForFrame(r interface{ Read([]byte) (int, error) }, creditOnly bool) (*moteframe.Frame, error) {
	decoder := moteframe.NewDecoder()
	decoder.SetMaxFrameSize(maxFrameSize)
	buf := make([]byte, 128)

	for {
		n, err := r.Read(buf)
		if err != nil {
			return nil, err
		}
		for _, b := range buf[:n] {
			frame, decodeErr := decoder.DecodeByte(b)
			if decodeErr != nil || frame == nil {
				continue
			}
			if creditOnly && !frame.GrantsCredit() {
				continue
			}
			return frame, nil
		}
	}
}
