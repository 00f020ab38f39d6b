// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"
	"io"
	"time"

	"github.com/Thermoquad/moteprobe/pkg/moteframe"
	"github.com/sirupsen/logrus"
)

// Socket transports
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "ws"
)

// Config holds the tunables shared by the links of a bridge.
type Config struct {
	Port PortOptions

	// ReopenDelay is the pause before reopening the device after an error.
	ReopenDelay time.Duration
	// Watermark is the buffered size above which Send logs an overflow warning.
	Watermark int
	// BufferLimit bounds the output buffer; Send then blocks until credit
	// frees room. Zero keeps the unbounded warn-only behavior.
	BufferLimit int
	// MaxFrameSize bounds incoming frame bodies. Zero means unbounded.
	MaxFrameSize int

	Transport     string
	WebSocketPath string
	// WriteTimeout bounds a single write to the socket client.
	WriteTimeout time.Duration

	// OnFrame callbacks receive every decoded device frame through a
	// bounded queue of FrameQueueSize entries.
	OnFrame        []func(FrameEvent) error
	FrameQueueSize int

	Opener Opener
	Logger *logrus.Logger
}

// DefaultConfig returns the configuration matching the mote protocol defaults.
func DefaultConfig() Config {
	return Config{
		Port:           PortOptions{BaudRate: moteframe.DefaultBaudRate},
		ReopenDelay:    time.Second,
		Watermark:      moteframe.DefaultWatermark,
		Transport:      TransportTCP,
		WebSocketPath:  "/",
		WriteTimeout:   5 * time.Second,
		FrameQueueSize: 64,
	}
}

// Normalize validates the configuration and fills unset values with defaults.
func (c Config) Normalize() (Config, error) {
	def := DefaultConfig()
	cfg := c

	port, err := cfg.Port.Normalize()
	if err != nil {
		return cfg, err
	}
	cfg.Port = port

	if cfg.ReopenDelay <= 0 {
		cfg.ReopenDelay = def.ReopenDelay
	}
	if cfg.Watermark <= 0 {
		cfg.Watermark = def.Watermark
	}
	if cfg.BufferLimit < 0 {
		return cfg, fmt.Errorf("invalid buffer limit %d", cfg.BufferLimit)
	}
	if cfg.BufferLimit > 0 && cfg.BufferLimit < moteframe.WrappedSize(make([]byte, moteframe.MaxPayloadSize)) {
		return cfg, fmt.Errorf("buffer limit %d cannot hold a full %d byte message", cfg.BufferLimit, moteframe.MaxPayloadSize)
	}
	if cfg.MaxFrameSize < 0 {
		return cfg, fmt.Errorf("invalid max frame size %d", cfg.MaxFrameSize)
	}

	switch cfg.Transport {
	case "":
		cfg.Transport = def.Transport
	case TransportTCP, TransportWebSocket:
	default:
		return cfg, fmt.Errorf("unsupported transport %q: expected %s or %s", cfg.Transport, TransportTCP, TransportWebSocket)
	}
	if cfg.WebSocketPath == "" {
		cfg.WebSocketPath = def.WebSocketPath
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.FrameQueueSize <= 0 {
		cfg.FrameQueueSize = def.FrameQueueSize
	}

	if cfg.Opener == nil {
		cfg.Opener = OpenSerial
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return cfg, nil
}

// NewDiscardLogger returns a logger that drops everything, for tests and TUI mode.
func NewDiscardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
