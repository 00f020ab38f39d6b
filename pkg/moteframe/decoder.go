// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package moteframe

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyFrame is returned when a trailer run closes a frame with no body.
	ErrEmptyFrame = errors.New("moteframe: empty frame")
	// ErrFrameTooLarge is returned when a frame exceeds the configured maximum size.
	ErrFrameTooLarge = errors.New("moteframe: frame too large")
)

// Decoder implements the frame recovery state machine
type Decoder struct {
	state        int
	run          int // consecutive marker bytes seen in the current state
	buffer       []byte
	maxFrameSize int
}

// NewDecoder creates a new decoder waiting for a header run
func NewDecoder() *Decoder {
	return &Decoder{
		state:  StateWaitHeader,
		buffer: make([]byte, 0, 64),
	}
}

// SetMaxFrameSize bounds the frame body length. Zero leaves the accumulation
// buffer unbounded, so a stream that never closes a frame grows it forever.
func (d *Decoder) SetMaxFrameSize(n int) {
	if n < 0 {
		n = 0
	}
	d.maxFrameSize = n
}

// Reset returns the decoder to the header-wait state
func (d *Decoder) Reset() {
	d.state = StateWaitHeader
	d.run = 0
	d.buffer = d.buffer[:0]
}

// State returns the current state
func (d *Decoder) State() int {
	return d.state
}

// Buffered returns the number of bytes accumulated for the frame in progress
func (d *Decoder) Buffered() int {
	return len(d.buffer)
}

// DecodeByte processes a single byte through the state machine.
// Returns a completed frame, or nil if the frame is incomplete.
// Returns an error for frames that must be discarded.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	switch d.state {
	case StateWaitHeader:
		if b == HeaderByte {
			d.run++
		} else {
			d.run = 0
		}
		if d.run == MarkerRun {
			d.state = StateReceivingCommand
			d.buffer = d.buffer[:0]
			d.run = 0
		}
		return nil, nil

	case StateReceivingCommand:
		d.buffer = append(d.buffer, b)
		if b == TrailerByte {
			d.run++
		} else {
			d.run = 0
		}

		if d.run == MarkerRun {
			body := d.buffer[:len(d.buffer)-MarkerRun]
			d.state = StateWaitHeader
			d.run = 0
			if len(body) == 0 {
				d.buffer = d.buffer[:0]
				return nil, ErrEmptyFrame
			}
			data := make([]byte, len(body))
			copy(data, body)
			d.buffer = d.buffer[:0]
			return NewFrame(data), nil
		}

		// The trailer run itself may push past the bound, so only the body counts.
		if d.maxFrameSize > 0 && len(d.buffer)-d.run > d.maxFrameSize {
			size := len(d.buffer)
			d.Reset()
			return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, size, d.maxFrameSize)
		}
		return nil, nil

	default:
		state := d.state
		d.Reset()
		return nil, fmt.Errorf("moteframe: invalid state: %d", state)
	}
}

// Decode feeds a chunk through DecodeByte, calling fn for every completed
// frame or decode error.
func (d *Decoder) Decode(p []byte, fn func(*Frame, error)) {
	for _, b := range p {
		frame, err := d.DecodeByte(b)
		if frame != nil || err != nil {
			fn(frame, err)
		}
	}
}

// StateName returns a human-readable name for a decoder state
func StateName(state int) string {
	switch state {
	case StateWaitHeader:
		return "WAIT_HEADER"
	case StateReceivingCommand:
		return "RECEIVING_COMMAND"
	default:
		return "UNKNOWN"
	}
}
