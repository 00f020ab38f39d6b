// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Statistics tracks bridge traffic. Counters are updated from both link goroutines.
type Statistics struct {
	start time.Time

	FramesForwarded  atomic.Uint64
	CreditRequests   atomic.Uint64
	CreditGrants     atomic.Uint64
	Flushes          atomic.Uint64
	BytesFlushed     atomic.Uint64
	MalformedFrames  atomic.Uint64
	OverflowWarnings atomic.Uint64
	DeviceOpens      atomic.Uint64
	DeviceErrors     atomic.Uint64
	ClientConnects   atomic.Uint64
	BytesFromClient  atomic.Uint64
	BytesToClient    atomic.Uint64
	DroppedToClient  atomic.Uint64
	TapDrops         atomic.Uint64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{start: time.Now()}
}

// Snapshot is a point-in-time copy of Statistics
type Snapshot struct {
	Elapsed time.Duration

	FramesForwarded  uint64
	CreditRequests   uint64
	CreditGrants     uint64
	Flushes          uint64
	BytesFlushed     uint64
	MalformedFrames  uint64
	OverflowWarnings uint64
	DeviceOpens      uint64
	DeviceErrors     uint64
	ClientConnects   uint64
	BytesFromClient  uint64
	BytesToClient    uint64
	DroppedToClient  uint64
	TapDrops         uint64

	Buffered  int
	Connected bool
}

// Snapshot copies the current counters
func (s *Statistics) Snapshot() Snapshot {
	return Snapshot{
		Elapsed:          time.Since(s.start),
		FramesForwarded:  s.FramesForwarded.Load(),
		CreditRequests:   s.CreditRequests.Load(),
		CreditGrants:     s.CreditGrants.Load(),
		Flushes:          s.Flushes.Load(),
		BytesFlushed:     s.BytesFlushed.Load(),
		MalformedFrames:  s.MalformedFrames.Load(),
		OverflowWarnings: s.OverflowWarnings.Load(),
		DeviceOpens:      s.DeviceOpens.Load(),
		DeviceErrors:     s.DeviceErrors.Load(),
		ClientConnects:   s.ClientConnects.Load(),
		BytesFromClient:  s.BytesFromClient.Load(),
		BytesToClient:    s.BytesToClient.Load(),
		DroppedToClient:  s.DroppedToClient.Load(),
		TapDrops:         s.TapDrops.Load(),
	}
}

// FrameRate returns forwarded frames per second
func (s Snapshot) FrameRate() float64 {
	if secs := s.Elapsed.Seconds(); secs > 0 {
		return float64(s.FramesForwarded) / secs
	}
	return 0
}

// String returns a formatted statistics summary
func (s Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Statistics (%.0f seconds) ===\n", s.Elapsed.Seconds())
	fmt.Fprintf(&b, "Frames Forwarded: %8d (%.1f frames/sec)\n", s.FramesForwarded, s.FrameRate())
	fmt.Fprintf(&b, "Credit Requests:  %8d (%d granted)\n", s.CreditRequests, s.CreditGrants)
	fmt.Fprintf(&b, "Flushes:          %8d (%d bytes)\n", s.Flushes, s.BytesFlushed)
	fmt.Fprintf(&b, "Client Bytes:     %8d in, %d out\n", s.BytesFromClient, s.BytesToClient)
	fmt.Fprintf(&b, "Client Connects:  %8d\n", s.ClientConnects)
	fmt.Fprintf(&b, "Device Opens:     %8d\n", s.DeviceOpens)

	if s.MalformedFrames > 0 {
		fmt.Fprintf(&b, "Malformed Frames: %8d\n", s.MalformedFrames)
	}
	if s.DeviceErrors > 0 {
		fmt.Fprintf(&b, "Device Errors:    %8d\n", s.DeviceErrors)
	}
	if s.OverflowWarnings > 0 {
		fmt.Fprintf(&b, "Overflow Warns:   %8d\n", s.OverflowWarnings)
	}
	if s.DroppedToClient > 0 {
		fmt.Fprintf(&b, "Dropped (no client): %5d\n", s.DroppedToClient)
	}
	if s.TapDrops > 0 {
		fmt.Fprintf(&b, "Tap Drops:        %8d\n", s.TapDrops)
	}
	b.WriteString("================================\n")
	return b.String()
}
