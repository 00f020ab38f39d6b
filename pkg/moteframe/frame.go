// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package moteframe

import "time"

// Frame is a frame body recovered by the Decoder, with the trailer run stripped.
type Frame struct {
	data      []byte
	timestamp time.Time
}

// NewFrame creates a frame from a body. The slice is not copied.
func NewFrame(data []byte) *Frame {
	return &Frame{data: data, timestamp: time.Now()}
}

// Type returns the frame tag, or 0 for an empty frame
func (f *Frame) Type() byte {
	if len(f.data) == 0 {
		return 0
	}
	return f.data[0]
}

// Payload returns the bytes following the tag
func (f *Frame) Payload() []byte {
	if len(f.data) == 0 {
		return nil
	}
	return f.data[1:]
}

// Bytes returns the whole frame body including the tag
func (f *Frame) Bytes() []byte {
	return f.data
}

// Len returns the body length
func (f *Frame) Len() int {
	return len(f.data)
}

// Timestamp returns the decode time
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// IsCreditRequest reports whether the frame carries the credit tag
func (f *Frame) IsCreditRequest() bool {
	return f.Type() == CreditTag
}

// Capacity returns the free receive-buffer space advertised by a credit request.
// ok is false when the frame is too short to carry it.
func (f *Frame) Capacity() (capacity uint8, ok bool) {
	if len(f.data) < 2 {
		return 0, false
	}
	return f.data[1], true
}

// GrantsCredit reports whether the frame authorizes flushing pending output.
func (f *Frame) GrantsCredit() bool {
	capacity, ok := f.Capacity()
	return f.IsCreditRequest() && ok && capacity == CreditThreshold
}
