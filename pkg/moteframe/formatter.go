// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package moteframe

import (
	"fmt"
	"strings"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := f.Timestamp().Format("15:04:05.000")
	tag := f.Type()

	result := fmt.Sprintf("[%s] %s (%s) len=%d\n", timestamp, FormatFrameType(tag), formatTag(tag), f.Len())

	if f.IsCreditRequest() {
		if capacity, ok := f.Capacity(); ok {
			grant := "no"
			if capacity == CreditThreshold {
				grant = "yes"
			}
			return result + fmt.Sprintf("  Capacity: %d, Flush: %s\n", capacity, grant)
		}
		return result + "  (missing capacity byte)\n"
	}

	if len(f.Payload()) > 0 {
		result += "  Payload: " + HexDump(f.Payload(), "           ")
	}
	return result
}

// FormatFrameType returns the human-readable name for a frame tag
func FormatFrameType(tag byte) string {
	switch {
	case tag == CreditTag:
		return "CREDIT_REQUEST"
	case tag == DataTag:
		return "DATA"
	case tag >= 0x20 && tag < 0x7F:
		return "STATUS"
	default:
		return "UNKNOWN"
	}
}

func formatTag(tag byte) string {
	if tag >= 0x20 && tag < 0x7F {
		return fmt.Sprintf("'%c'", tag)
	}
	return fmt.Sprintf("0x%02X", tag)
}

// HexDump renders data 16 bytes per row, prefixing continuation rows with indent.
func HexDump(data []byte, indent string) string {
	var s strings.Builder
	for i, b := range data {
		if i > 0 && i%16 == 0 {
			s.WriteString("\n")
			s.WriteString(indent)
		}
		fmt.Fprintf(&s, "%02X ", b)
	}
	s.WriteString("\n")
	return s.String()
}
