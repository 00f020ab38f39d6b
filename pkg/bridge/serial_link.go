// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Thermoquad/moteprobe/pkg/moteframe"
	"github.com/sirupsen/logrus"
)

// Sender accepts bytes forwarded from the other side of the bridge.
type Sender interface {
	Send(ctx context.Context, p []byte) error
}

const serialReadSize = 128

// SerialLink owns the device: it decodes frames from the serial stream,
// forwards status frames to its sink and flushes buffered output when the
// mote grants credit.
type SerialLink struct {
	device  string
	cfg     Config
	decoder *moteframe.Decoder
	out     *moteframe.OutputBuffer
	stats   *Statistics
	log     *logrus.Entry

	// set before Run
	sink Sender
	tap  func(*moteframe.Frame)
}

// NewSerialLink creates a link for the named device. cfg must be normalized.
func NewSerialLink(device string, cfg Config, stats *Statistics) *SerialLink {
	if stats == nil {
		stats = NewStatistics()
	}
	d := moteframe.NewDecoder()
	d.SetMaxFrameSize(cfg.MaxFrameSize)
	return &SerialLink{
		device:  device,
		cfg:     cfg,
		decoder: d,
		out:     moteframe.NewOutputBuffer(cfg.BufferLimit),
		stats:   stats,
		log:     cfg.Logger.WithField("device", device),
	}
}

// SetSink sets where status frames are forwarded. Call before Run.
func (s *SerialLink) SetSink(sink Sender) {
	s.sink = sink
}

// SetFrameTap registers a function that observes every decoded frame. Call before Run.
func (s *SerialLink) SetFrameTap(tap func(*moteframe.Frame)) {
	s.tap = tap
}

// Device returns the device name
func (s *SerialLink) Device() string {
	return s.device
}

// Buffered returns the number of bytes waiting for credit
func (s *SerialLink) Buffered() int {
	return s.out.Len()
}

// Send wraps payload and queues it for the device. Output is only written
// when the mote grants credit. In unbounded mode the call never blocks; a
// warning is logged once the buffer passes the watermark. In bounded mode it
// blocks until a flush makes room or ctx is done.
func (s *SerialLink) Send(ctx context.Context, payload []byte) error {
	var size int
	var err error
	if s.out.Limit() > 0 {
		size, err = s.out.AppendWait(ctx, payload)
	} else {
		size, err = s.out.Append(payload)
	}
	if err != nil {
		return err
	}

	if size > s.cfg.Watermark {
		s.stats.OverflowWarnings.Add(1)
		s.log.WithField("buffered", size).Warn("serial output overflowing")
	}
	return nil
}

// Run opens the device and serves it until ctx is done. Device errors are
// logged and the device is reopened after ReopenDelay, indefinitely.
func (s *SerialLink) Run(ctx context.Context) error {
	s.log.WithField("mode", s.cfg.Port.String()).Info("serial link starting")
	for {
		port, err := s.cfg.Opener(s.device, s.cfg.Port)
		if err != nil {
			s.stats.DeviceErrors.Add(1)
			s.log.WithError(err).Warn("open failed")
		} else {
			s.stats.DeviceOpens.Add(1)
			s.log.Debug("device opened")
			err = s.serve(ctx, port)
			port.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.stats.DeviceErrors.Add(1)
			s.log.WithError(err).Error("device error, reopening")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.ReopenDelay):
		}
	}
}

// serve runs the read loop on an open port until a read or flush fails.
func (s *SerialLink) serve(ctx context.Context, port Port) error {
	// Reads cannot be interrupted, so closing the port is what unblocks them.
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer stop()

	s.decoder.Reset()
	buf := make([]byte, serialReadSize)
	for {
		n, err := port.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			// go.bug.st/serial returns 0, nil on a read timeout
			continue
		}
		for _, b := range buf[:n] {
			if err := s.handleByte(ctx, port, b); err != nil {
				return err
			}
		}
	}
}

func (s *SerialLink) handleByte(ctx context.Context, w io.Writer, b byte) error {
	frame, err := s.decoder.DecodeByte(b)
	if err != nil {
		s.stats.MalformedFrames.Add(1)
		s.log.WithError(err).Debug("frame discarded")
		return nil
	}
	if frame == nil {
		return nil
	}
	return s.dispatch(ctx, w, frame)
}

// dispatch consumes credit requests and forwards every other frame to the sink.
func (s *SerialLink) dispatch(ctx context.Context, w io.Writer, frame *moteframe.Frame) error {
	if s.log.Logger.IsLevelEnabled(logrus.TraceLevel) {
		s.log.Trace(moteframe.FormatFrame(frame))
	}
	if s.tap != nil {
		s.tap(frame)
	}

	if frame.IsCreditRequest() {
		capacity, ok := frame.Capacity()
		if !ok {
			s.stats.MalformedFrames.Add(1)
			s.log.Debug("credit request without capacity byte")
			return nil
		}
		s.stats.CreditRequests.Add(1)
		if capacity != moteframe.CreditThreshold {
			return nil
		}
		s.stats.CreditGrants.Add(1)
		return s.flush(w)
	}

	s.stats.FramesForwarded.Add(1)
	if s.sink == nil {
		return nil
	}
	if err := s.sink.Send(ctx, frame.Bytes()); err != nil && !errors.Is(err, context.Canceled) {
		s.log.WithError(err).Warn("forward to socket failed")
	}
	return nil
}

func (s *SerialLink) flush(w io.Writer) error {
	n, err := s.out.Flush(w)
	if n > 0 {
		s.stats.Flushes.Add(1)
		s.stats.BytesFlushed.Add(uint64(n))
		s.log.WithField("bytes", n).Debug("flushed output")
	}
	if err != nil {
		return fmt.Errorf("flush to %s: %w", s.device, err)
	}
	return nil
}
