// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/moteprobe/pkg/bridge"
	"github.com/Thermoquad/moteprobe/pkg/moteframe"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// Logging flags
	logLevel string
	logJSON  bool

	// Bridge tuning flags
	reopenDelay   time.Duration
	watermark     int
	bufferLimit   int
	maxFrameSize  int
	transport     string
	webSocketPath string
)

var rootCmd = &cobra.Command{
	Use:   "moteprobe",
	Short: "Serial mote to network socket bridge",
	Long: `Moteprobe - bridges motes on serial devices to network clients.

Frames the mote sends between ^^^ and $$$ markers are forwarded verbatim to the
connected client. Bytes from the client are wrapped as D <len> <payload> and
held until the mote grants credit with an R frame advertising capacity 200.

Each bridge serves one client at a time over raw TCP or WebSocket
(--transport ws). Serial devices are reopened automatically after errors.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", moteframe.DefaultBaudRate, "Baud rate")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Log as JSON")

	rootCmd.PersistentFlags().DurationVar(&reopenDelay, "reopen-delay", time.Second, "Delay before reopening a failed serial device")
	rootCmd.PersistentFlags().IntVar(&watermark, "watermark", moteframe.DefaultWatermark, "Buffered output size that triggers an overflow warning")
	rootCmd.PersistentFlags().IntVar(&bufferLimit, "buffer-limit", 0, "Bound the output buffer and apply backpressure to the client (0 = unbounded)")
	rootCmd.PersistentFlags().IntVar(&maxFrameSize, "max-frame", 0, "Discard incoming frames larger than this (0 = unbounded)")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", bridge.TransportTCP, "Client transport (tcp or ws)")
	rootCmd.PersistentFlags().StringVar(&webSocketPath, "ws-path", "/", "HTTP path accepting WebSocket upgrades (ws transport)")
}

// newLogger builds the logger selected by the logging flags
func newLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)
	if logJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// newConfig maps the persistent flags onto a bridge configuration
func newConfig(logger *logrus.Logger) (bridge.Config, error) {
	cfg := bridge.DefaultConfig()
	cfg.Port.BaudRate = baudRate
	cfg.ReopenDelay = reopenDelay
	cfg.Watermark = watermark
	cfg.BufferLimit = bufferLimit
	cfg.MaxFrameSize = maxFrameSize
	cfg.Transport = transport
	cfg.WebSocketPath = webSocketPath
	cfg.Logger = logger
	return cfg.Normalize()
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
