// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package framing

import (
	"encoding/binary"
	"fmt"
)

// Decoder reassembles frames from arbitrarily split input. Feed it bytes
// as they arrive and call Next until it reports no complete frame.
type Decoder struct {
	buffer []byte
	offset int
	err    error
}

// Feed appends data to the decoder's buffer. The decoder copies data.
func (d *Decoder) Feed(data []byte) {
	if d.offset > 0 && d.offset >= len(d.buffer)/2 {
		remaining := copy(d.buffer, d.buffer[d.offset:])
		d.buffer = d.buffer[:remaining]
		d.offset = 0
	}
	d.buffer = append(d.buffer, data...)
}

// Buffered returns the number of bytes held but not yet returned as
// frames.
func (d *Decoder) Buffered() int {
	return len(d.buffer) - d.offset
}

// Ready reports whether Next would return a frame or an error without
// more input.
func (d *Decoder) Ready() bool {
	if d.err != nil {
		return true
	}
	available := d.buffer[d.offset:]
	if len(available) < HeaderLength {
		return false
	}
	length := binary.BigEndian.Uint32(available[1:HeaderLength])
	return length > MaxPayloadLength || len(available) >= HeaderLength+int(length)
}

// Next returns the next complete frame. ok is false when more input is
// needed. An oversized header is a permanent error: the stream cannot
// be resynchronized, and every later call returns the same error.
func (d *Decoder) Next() (frame Frame, ok bool, err error) {
	if d.err != nil {
		return Frame{}, false, d.err
	}
	available := d.buffer[d.offset:]
	if len(available) < HeaderLength {
		return Frame{}, false, nil
	}
	length := binary.BigEndian.Uint32(available[1:HeaderLength])
	if length > MaxPayloadLength {
		d.err = fmt.Errorf("%w: header announces %d bytes", ErrPayloadTooLarge, length)
		return Frame{}, false, d.err
	}
	total := HeaderLength + int(length)
	if len(available) < total {
		return Frame{}, false, nil
	}
	frame = Frame{Type: available[0], Payload: make([]byte, length)}
	copy(frame.Payload, available[HeaderLength:total])
	d.offset += total
	if d.offset == len(d.buffer) {
		d.buffer = d.buffer[:0]
		d.offset = 0
	}
	return frame, true, nil
}
