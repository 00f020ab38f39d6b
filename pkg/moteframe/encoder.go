// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package moteframe

import (
	"errors"
	"fmt"
)

var (
	// ErrPayloadTooLarge is returned when a payload length does not fit in the length byte.
	ErrPayloadTooLarge = errors.New("moteframe: payload too large")
	// ErrShortMessage is returned when a wrapped message is truncated.
	ErrShortMessage = errors.New("moteframe: short message")
	// ErrBadTag is returned when a wrapped message does not start with DataTag.
	ErrBadTag = errors.New("moteframe: unexpected tag")
)

// WrappedSize returns the number of bytes a payload occupies once wrapped
func WrappedSize(payload []byte) int {
	return 2 + len(payload)
}

// Wrap encodes a payload for transmission to the mote: tag, length, payload.
func Wrap(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}
	return AppendWrapped(make([]byte, 0, WrappedSize(payload)), payload), nil
}

// AppendWrapped appends the wrapped payload to dst.
// The caller must ensure the payload fits in the length byte.
func AppendWrapped(dst, payload []byte) []byte {
	dst = append(dst, DataTag, byte(len(payload)))
	return append(dst, payload...)
}

// Unwrap decodes the first wrapped message in data and returns its payload
// and the remaining bytes.
func Unwrap(data []byte) (payload, rest []byte, err error) {
	if len(data) < 2 {
		return nil, data, fmt.Errorf("%w: %d bytes", ErrShortMessage, len(data))
	}
	if data[0] != DataTag {
		return nil, data, fmt.Errorf("%w: 0x%02X", ErrBadTag, data[0])
	}
	n := int(data[1])
	if len(data) < 2+n {
		return nil, data, fmt.Errorf("%w: need %d bytes, have %d", ErrShortMessage, n, len(data)-2)
	}
	return data[2 : 2+n], data[2+n:], nil
}

// UnwrapAll splits a concatenation of wrapped messages into their payloads.
func UnwrapAll(data []byte) ([][]byte, error) {
	var payloads [][]byte
	for len(data) > 0 {
		payload, rest, err := Unwrap(data)
		if err != nil {
			return payloads, err
		}
		payloads = append(payloads, payload)
		data = rest
	}
	return payloads, nil
}
