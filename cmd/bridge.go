// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Thermoquad/moteprobe/pkg/bridge"
	"github.com/Thermoquad/moteprobe/pkg/moteframe"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	listenAddr    string
	useTUI        bool
	statsInterval int
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Bridge one serial device to a network socket",
	Long: `Bridge a single mote to one network client.

Frames from the mote are forwarded to the client verbatim. Credit requests
(R frames) are consumed by the bridge: a request advertising capacity 200
flushes everything the client has sent since the last flush.

Examples:
  moteprobe bridge --port /dev/ttyUSB0 --listen :8080
  moteprobe bridge -p /dev/ttyACM0 --listen 127.0.0.1:9000 --transport ws --tui`,
	RunE: runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
	bridgeCmd.Flags().StringVarP(&listenAddr, "listen", "l", ":8080", "Address to accept the client on")
	bridgeCmd.Flags().BoolVar(&useTUI, "tui", false, "Use terminal UI")
	bridgeCmd.Flags().IntVar(&statsInterval, "stats-interval", 0, "Print statistics every N seconds (0 = off, text mode only)")
}

func runBridge(cmd *cobra.Command, args []string) error {
	if portName == "" {
		return fmt.Errorf("--port must be specified")
	}
	return runBridges(cmd, []target{{device: portName, listen: listenAddr}})
}

// target pairs a device with the address its bridge listens on
type target struct {
	device string
	listen string
}

// runBridges runs one bridge per target until the command context is done,
// in the terminal UI or in text mode.
func runBridges(cmd *cobra.Command, targets []target) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	tui := useTUI && stdoutIsTerminal()

	var prog *programRef
	if tui {
		prog = &programRef{}
		logger.SetOutput(io.Discard)
		logger.AddHook(&tuiLogHook{prog: prog})
	}

	cfg, err := newConfig(logger)
	if err != nil {
		return err
	}
	if tui {
		cfg.OnFrame = append(cfg.OnFrame, prog.sendFrame)
	} else if logger.IsLevelEnabled(logrus.DebugLevel) {
		cfg.OnFrame = append(cfg.OnFrame, logFrame(logger))
	}

	bridges := make([]*bridge.Bridge, 0, len(targets))
	for _, t := range targets {
		b, err := bridge.New(t.device, t.listen, cfg)
		if err != nil {
			return fmt.Errorf("bridge %s: %w", t.device, err)
		}
		bridges = append(bridges, b)
	}

	if tui {
		return runTUI(cmd.Context(), bridges, prog)
	}
	return runTextMode(cmd.Context(), bridges, cfg)
}

// runTextMode logs to stderr and optionally prints statistics on an interval
func runTextMode(ctx context.Context, bridges []*bridge.Bridge, cfg bridge.Config) error {
	fmt.Printf("Moteprobe - Serial Mote Bridge\n")
	for _, b := range bridges {
		fmt.Printf("Serial: %s @ %s -> %s (%s)\n", b.Device(), cfg.Port, b.Listen(), cfg.Transport)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runAll(ctx, bridges) })

	if statsInterval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(time.Duration(statsInterval) * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					for _, b := range bridges {
						fmt.Printf("\n[%s -> %s]\n", b.Device(), b.Listen())
						fmt.Print(b.Stats().String())
					}
				}
			}
		})
	}

	return g.Wait()
}

// runAll runs every bridge until ctx is done or one of them fails
func runAll(ctx context.Context, bridges []*bridge.Bridge) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, b := range bridges {
		b := b
		g.Go(func() error {
			if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("bridge %s: %w", b.Device(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// logFrame returns an OnFrame callback logging every device frame at debug level
func logFrame(logger *logrus.Logger) func(bridge.FrameEvent) error {
	return func(ev bridge.FrameEvent) error {
		entry := logger.WithFields(logrus.Fields{
			"device": ev.Device,
			"type":   moteframe.FormatFrameType(ev.Type),
			"len":    ev.Length,
		})
		if ev.Credit {
			entry = entry.WithFields(logrus.Fields{
				"capacity": ev.Capacity,
				"flush":    ev.Flush,
			})
		}
		entry.Debug("frame received")
		return nil
	}
}
