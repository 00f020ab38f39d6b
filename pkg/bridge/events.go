// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"time"

	"github.com/Thermoquad/moteprobe/pkg/engine"
	"github.com/Thermoquad/moteprobe/pkg/moteframe"
)

// FrameEvent describes a frame decoded from the device.
type FrameEvent struct {
	Device    string
	Timestamp time.Time
	Type      byte
	Length    int
	Credit    bool // credit request
	Capacity  uint8
	Flush     bool // capacity authorized a flush
	Data      []byte
}

// frameParser builds FrameEvents for the frame tap engine.
func frameParser(device string) engine.ParserFunc[*moteframe.Frame, FrameEvent] {
	return func(f *moteframe.Frame) (FrameEvent, error) {
		if f.Len() == 0 {
			return FrameEvent{}, moteframe.ErrEmptyFrame
		}
		ev := FrameEvent{
			Device:    device,
			Timestamp: f.Timestamp(),
			Type:      f.Type(),
			Length:    f.Len(),
			Credit:    f.IsCreditRequest(),
			Flush:     f.GrantsCredit(),
			Data:      f.Bytes(),
		}
		ev.Capacity, _ = f.Capacity()
		return ev, nil
	}
}
