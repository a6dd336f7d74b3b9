// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package framing

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

const (
	// ReadChunk is the most a single ReadOnce call reads.
	ReadChunk = 64 * 1024

	// WriteChunk is the most a single WriteOnce call writes.
	WriteChunk = 256 * 1024

	// DefaultOutboxLimit is the queued byte count above which
	// Conn.Congested reports true.
	DefaultOutboxLimit = 8 * 1024 * 1024
)

// ErrClosed is returned by operations on a closed Conn.
var ErrClosed = errors.New("framing: connection closed")

// Conn is a non-blocking framed connection over a pair of file
// descriptors. The descriptors may be equal (a socket) or distinct (two
// pipes). Conn is not safe for concurrent use; it belongs to the single
// goroutine that steps it.
type Conn struct {
	readFD  int
	writeFD int
	owned   bool
	closed  bool

	decoder Decoder
	scratch []byte

	outbox      []byte
	outboxLimit int

	// queued and written count outbox bytes over the connection's
	// lifetime.
	queued  uint64
	written uint64

	readEOF bool
}

// NewConn wraps readFD and writeFD, switching both to non-blocking
// mode. If owned is true, Close closes the descriptors.
func NewConn(readFD, writeFD int, owned bool) (*Conn, error) {
	if err := unix.SetNonblock(readFD, true); err != nil {
		return nil, fmt.Errorf("framing: set fd %d non-blocking: %w", readFD, err)
	}
	if writeFD != readFD {
		if err := unix.SetNonblock(writeFD, true); err != nil {
			return nil, fmt.Errorf("framing: set fd %d non-blocking: %w", writeFD, err)
		}
	}
	return &Conn{
		readFD:      readFD,
		writeFD:     writeFD,
		owned:       owned,
		scratch:     make([]byte, ReadChunk),
		outboxLimit: DefaultOutboxLimit,
	}, nil
}

// ReadFD returns the descriptor to poll for input.
func (c *Conn) ReadFD() int { return c.readFD }

// WriteFD returns the descriptor to poll for output.
func (c *Conn) WriteFD() int { return c.writeFD }

// SetOutboxLimit changes the threshold used by Congested.
func (c *Conn) SetOutboxLimit(limit int) { c.outboxLimit = limit }

// ReadOnce performs at most one read system call and feeds the result
// to the decoder. It returns the number of bytes read; zero with a nil
// error means the descriptor had nothing to read. End of stream is
// io.EOF.
func (c *Conn) ReadOnce() (int, error) {
	if c.closed {
		return 0, ErrClosed
	}
	if c.readEOF {
		return 0, io.EOF
	}
	n, err := unix.Read(c.readFD, c.scratch)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, fmt.Errorf("framing: read fd %d: %w", c.readFD, err)
	}
	if n == 0 {
		c.readEOF = true
		return 0, io.EOF
	}
	c.decoder.Feed(c.scratch[:n])
	return n, nil
}

// Next returns the next decoded frame, if one is complete.
func (c *Conn) Next() (Frame, bool, error) {
	return c.decoder.Next()
}

// Decoded reports whether a complete frame is buffered.
func (c *Conn) Decoded() bool {
	return c.decoder.Ready()
}

// EOF reports whether the read side reached end of stream.
func (c *Conn) EOF() bool {
	return c.readEOF
}

// Queue appends a frame to the outbox. Nothing is written until
// WriteOnce.
func (c *Conn) Queue(frameType byte, payload []byte) error {
	if c.closed {
		return ErrClosed
	}
	outbox, err := AppendFrame(c.outbox, frameType, payload)
	if err != nil {
		return err
	}
	c.queued += uint64(len(outbox) - len(c.outbox))
	c.outbox = outbox
	return nil
}

// Pending returns the number of queued bytes not yet written.
func (c *Conn) Pending() int {
	return len(c.outbox)
}

// Queued returns the total number of bytes ever queued. A frame has
// left the outbox once Written reaches the Queued value read right
// after queueing it.
func (c *Conn) Queued() uint64 {
	return c.queued
}

// Written returns the total number of bytes written.
func (c *Conn) Written() uint64 {
	return c.written
}

// Congested reports whether the outbox holds more than the limit. The
// owner should stop producing into it until WriteOnce drains it.
func (c *Conn) Congested() bool {
	return len(c.outbox) > c.outboxLimit
}

// WriteOnce performs at most one write system call of at most
// WriteChunk bytes from the outbox. Zero with a nil error means the
// descriptor would block or nothing was queued.
func (c *Conn) WriteOnce() (int, error) {
	if c.closed {
		return 0, ErrClosed
	}
	if len(c.outbox) == 0 {
		return 0, nil
	}
	chunk := c.outbox
	if len(chunk) > WriteChunk {
		chunk = chunk[:WriteChunk]
	}
	n, err := unix.Write(c.writeFD, chunk)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, fmt.Errorf("framing: write fd %d: %w", c.writeFD, err)
	}
	c.outbox = c.outbox[n:]
	c.written += uint64(n)
	if len(c.outbox) == 0 {
		c.outbox = nil
	}
	return n, nil
}

// Close releases the descriptors if the Conn owns them. Queued output
// is discarded.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.outbox = nil
	if !c.owned {
		return nil
	}
	err := unix.Close(c.readFD)
	if c.writeFD != c.readFD {
		if writeErr := unix.Close(c.writeFD); err == nil {
			err = writeErr
		}
	}
	return err
}
