// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package moteframe implements the serial framing used between a mote and its probe.
//
// Frames sent by the mote are delimited by a run of three header markers and a run of
// three trailer markers. Data sent to the mote is wrapped as a tag byte, a length byte
// and the payload, buffered, and written in one block when the mote grants credit.
package moteframe

// Framing markers
const (
	HeaderByte  = '^'
	TrailerByte = '$'
	MarkerRun   = 3
)

// Frame tags
const (
	DataTag   = 'D' // probe -> mote, wrapped payload
	CreditTag = 'R' // mote -> probe, receive-buffer credit request
)

// Credit and buffer limits
const (
	CreditThreshold  = 200 // capacity value that authorizes a flush
	MaxPayloadSize   = 255 // length must fit in one byte
	DefaultWatermark = 200 // buffered bytes before an overflow warning
	DefaultBaudRate  = 115200
)

// Decoder states
const (
	StateWaitHeader = iota
	StateReceivingCommand
)
