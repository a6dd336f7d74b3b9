// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package framing delimits messages on a byte stream.
//
// Both transports use the same frame format: a 5-byte header (1 byte
// message type, 4 byte big-endian payload length) followed by the
// payload. What the type byte means and how the payload is encoded is
// up to the protocol on top (package link, package segment).
//
// Two ways to move frames are provided:
//
//   - [WriteFrame] and [ReadFrame] for blocking io.Writer/io.Reader use,
//     as the server-role pump does from its reader goroutines.
//   - [Conn], a non-blocking file descriptor pair with an incremental
//     [Decoder] on the read side and a bounded outbox on the write
//     side. Each ReadOnce/WriteOnce call performs at most one system
//     call, which is what the client-role pump needs to stay
//     non-blocking inside a caller's event loop.
package framing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderLength is the fixed size of a frame header.
const HeaderLength = 5

// MaxPayloadLength bounds a single frame. A full 4K RGBA frame is about
// 33 MB uncompressed; 64 MB leaves room for that with margin.
const MaxPayloadLength = 64 * 1024 * 1024

// ErrPayloadTooLarge is returned when a header announces, or a caller
// asks to send, more than MaxPayloadLength bytes.
var ErrPayloadTooLarge = errors.New("framing: payload exceeds maximum length")

// Frame is one delimited message.
type Frame struct {
	Type    byte
	Payload []byte
}

// AppendFrame appends the encoding of a frame to buffer.
func AppendFrame(buffer []byte, frameType byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLength {
		return buffer, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	var header [HeaderLength]byte
	header[0] = frameType
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	buffer = append(buffer, header[:]...)
	return append(buffer, payload...), nil
}

// WriteFrame writes one frame to w with a single Write call, so a
// writer shared with nothing else never interleaves a header with
// another frame's payload.
func WriteFrame(w io.Writer, frameType byte, payload []byte) error {
	buffer, err := AppendFrame(make([]byte, 0, HeaderLength+len(payload)), frameType, payload)
	if err != nil {
		return err
	}
	if _, err := w.Write(buffer); err != nil {
		return fmt.Errorf("framing: write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one frame from r. A clean end of stream before any
// header byte returns io.EOF unwrapped; a stream that ends inside a
// frame returns io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [HeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("framing: read header: %w", err)
	}
	length := binary.BigEndian.Uint32(header[1:])
	if length > MaxPayloadLength {
		return Frame{}, fmt.Errorf("%w: header announces %d bytes", ErrPayloadTooLarge, length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, fmt.Errorf("framing: read payload: %w", err)
	}
	return Frame{Type: header[0], Payload: payload}, nil
}
