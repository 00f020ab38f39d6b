// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge connects a mote on a serial device to a single network
// client. Frames from the mote are forwarded to the client verbatim; bytes
// from the client are wrapped and written to the mote when it grants credit.
package bridge

import (
	"context"
	"net"

	"github.com/Thermoquad/moteprobe/pkg/engine"
	"github.com/Thermoquad/moteprobe/pkg/moteframe"
	"golang.org/x/sync/errgroup"
)

// Bridge pairs a SerialLink with a SocketLink.
type Bridge struct {
	Serial *SerialLink
	Socket *SocketLink

	device string
	listen string
	stats  *Statistics
	frames *engine.Engine[*moteframe.Frame, FrameEvent]
}

// New builds a bridge between device and a listener on listenAddr.
func New(device, listenAddr string, cfg Config) (*Bridge, error) {
	cfg, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}

	stats := NewStatistics()
	b := &Bridge{
		Serial: NewSerialLink(device, cfg, stats),
		Socket: NewSocketLink(listenAddr, cfg, stats),
		device: device,
		listen: listenAddr,
		stats:  stats,
	}

	b.Serial.SetSink(b.Socket)
	b.Socket.SetSink(b.Serial)

	if len(cfg.OnFrame) > 0 {
		callbacks := make([]engine.Callback[FrameEvent], 0, len(cfg.OnFrame))
		for _, fn := range cfg.OnFrame {
			callbacks = append(callbacks, fn)
		}
		b.frames = engine.New[*moteframe.Frame, FrameEvent](frameParser(device), cfg.FrameQueueSize, callbacks...)
		b.Serial.SetFrameTap(func(f *moteframe.Frame) {
			if err := b.frames.IndicateData(f); err != nil {
				stats.TapDrops.Add(1)
			}
		})
	}

	return b, nil
}

// Run binds the listener and runs both links until ctx is done or the
// listener fails.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.Socket.Listen(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Serial.Run(ctx) })
	g.Go(func() error { return b.Socket.Run(ctx) })
	if b.frames != nil {
		g.Go(func() error { return b.frames.Run(ctx) })
	}
	return g.Wait()
}

// Device returns the serial device name
func (b *Bridge) Device() string {
	return b.device
}

// Listen returns the configured listen address
func (b *Bridge) Listen() string {
	return b.listen
}

// Addr returns the bound address once Run has started, or nil
func (b *Bridge) Addr() net.Addr {
	return b.Socket.Addr()
}

// Stats returns a snapshot of the bridge counters
func (b *Bridge) Stats() Snapshot {
	s := b.stats.Snapshot()
	s.Buffered = b.Serial.Buffered()
	s.Connected = b.Socket.Connected()
	return s
}

// FrameStats returns the frame tap engine counters, or false when no
// OnFrame callbacks are configured.
func (b *Bridge) FrameStats() (engine.Stats, bool) {
	if b.frames == nil {
		return engine.Stats{}, false
	}
	return b.frames.Stats(), true
}
