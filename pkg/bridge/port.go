// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"
	"io"
	"strings"

	"github.com/Thermoquad/moteprobe/pkg/moteframe"
	"go.bug.st/serial"
)

// Port is the subset of a serial port the bridge needs.
type Port interface {
	io.Reader
	io.Writer
	io.Closer
}

// Opener opens the named device. Tests replace it to avoid real hardware.
type Opener func(name string, opts PortOptions) (Port, error)

// PortOptions describes the serial line parameters.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

// parities maps accepted parity spellings to the single letter used in "8N1"
var parities = map[string]string{
	"": "N", "N": "N", "NONE": "N",
	"E": "E", "EVEN": "E",
	"O": "O", "ODD": "O",
}

var serialParity = map[string]serial.Parity{
	"N": serial.NoParity,
	"E": serial.EvenParity,
	"O": serial.OddParity,
}

// Normalize fills unset fields with the mote line defaults (115200 8N1) and
// rejects settings go.bug.st/serial cannot open.
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o
	if opts.BaudRate <= 0 {
		opts.BaudRate = moteframe.DefaultBaudRate
	}
	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.StopBits == 0 {
		opts.StopBits = 1
	}

	switch {
	case opts.DataBits < 5 || opts.DataBits > 8:
		return opts, fmt.Errorf("data bits %d out of range 5-8", opts.DataBits)
	case opts.StopBits > 2 || opts.StopBits < 1:
		return opts, fmt.Errorf("stop bits %d not 1 or 2", opts.StopBits)
	}

	parity, ok := parities[strings.ToUpper(strings.TrimSpace(opts.Parity))]
	if !ok {
		return opts, fmt.Errorf("parity %q not one of none, even, odd", opts.Parity)
	}
	opts.Parity = parity
	return opts, nil
}

// SerialMode converts the options into a go.bug.st/serial mode.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: opts.DataBits,
		Parity:   serialParity[opts.Parity],
		StopBits: serial.OneStopBit,
	}
	if opts.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	return mode, nil
}

// String formats the options as e.g. "115200 8N1"
func (o PortOptions) String() string {
	opts, err := o.Normalize()
	if err != nil {
		return fmt.Sprintf("invalid (%v)", err)
	}
	return fmt.Sprintf("%d %d%s%d", opts.BaudRate, opts.DataBits, opts.Parity, opts.StopBits)
}

// OpenSerial opens a real serial device.
func OpenSerial(name string, opts PortOptions) (Port, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	return port, nil
}
