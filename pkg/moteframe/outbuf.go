// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package moteframe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrBufferFull is returned by a bounded OutputBuffer when a message does not fit.
var ErrBufferFull = errors.New("moteframe: output buffer full")

// OutputBuffer holds wrapped messages waiting for the mote to grant credit.
// All mutation happens under one lock, so a flush never observes a partial append.
type OutputBuffer struct {
	mu      sync.Mutex
	buf     []byte
	limit   int
	drained chan struct{} // closed and replaced on every flush
}

// NewOutputBuffer creates an output buffer. A limit of zero leaves it unbounded.
func NewOutputBuffer(limit int) *OutputBuffer {
	if limit < 0 {
		limit = 0
	}
	return &OutputBuffer{
		limit:   limit,
		drained: make(chan struct{}),
	}
}

// Limit returns the configured bound, zero when unbounded
func (b *OutputBuffer) Limit() int {
	return b.limit
}

// Append wraps the payload and appends it. It returns the buffered size
// after the append so callers can compare it against a watermark.
func (b *OutputBuffer) Append(payload []byte) (int, error) {
	if len(payload) > MaxPayloadSize {
		return 0, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.fits(payload) {
		return len(b.buf), ErrBufferFull
	}
	b.buf = AppendWrapped(b.buf, payload)
	return len(b.buf), nil
}

// AppendWait behaves like Append, but on a bounded buffer it blocks until a
// flush makes room or ctx is done.
func (b *OutputBuffer) AppendWait(ctx context.Context, payload []byte) (int, error) {
	if len(payload) > MaxPayloadSize {
		return 0, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}
	if b.limit > 0 && WrappedSize(payload) > b.limit {
		return 0, fmt.Errorf("%w: message of %d bytes exceeds limit %d", ErrBufferFull, WrappedSize(payload), b.limit)
	}

	for {
		b.mu.Lock()
		if b.fits(payload) {
			b.buf = AppendWrapped(b.buf, payload)
			size := len(b.buf)
			b.mu.Unlock()
			return size, nil
		}
		drained := b.drained
		b.mu.Unlock()

		select {
		case <-drained:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (b *OutputBuffer) fits(payload []byte) bool {
	return b.limit == 0 || len(b.buf)+WrappedSize(payload) <= b.limit
}

// Flush writes the whole buffer to w in a single Write and clears it.
// Flushing an empty buffer does not touch w. The buffer is cleared even when
// the write fails: delivery is not retried.
func (b *OutputBuffer) Flush(w io.Writer) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.buf) == 0 {
		return 0, nil
	}

	size := len(b.buf)
	n, err := w.Write(b.buf)
	b.buf = b.buf[:0]
	close(b.drained)
	b.drained = make(chan struct{})
	if err == nil && n < size {
		err = io.ErrShortWrite
	}
	return n, err
}

// Len returns the number of buffered bytes
func (b *OutputBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Bytes returns a copy of the buffered bytes
func (b *OutputBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}
