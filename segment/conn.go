// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package segment

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/shmlink/lib/framing"
	"github.com/bureau-foundation/shmlink/lib/schema"
)

// ErrAlreadyActivated is returned when a second activation is sent on
// a Conn.
var ErrAlreadyActivated = errors.New("segment: session already activated")

// Conn is a non-blocking local session over a unix socket descriptor.
// It starts inert: kind unknown and not activated. The first
// activation message sent through it fixes the kind. Conn is not safe
// for concurrent use.
type Conn struct {
	*framing.Conn

	kind      schema.SegmentKind
	activated bool
}

// DialNonblock connects to connection point name in directory and
// returns an inert Conn that owns the socket. The name is validated
// before any descriptor is created.
func DialNonblock(directory, name string) (*Conn, error) {
	path, err := Path(directory, name)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("segment: creating socket: %w", err)
	}
	// Connect blocks only as long as the kernel takes to queue the
	// connection on a local socket.
	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("segment: connecting to %s: %w", path, err)
	}
	conn, err := NewConn(fd, true)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return conn, nil
}

// NewConn wraps an already connected socket descriptor. If owned is
// true, Close closes it.
func NewConn(fd int, owned bool) (*Conn, error) {
	conn, err := framing.NewConn(fd, fd, owned)
	if err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}
	return &Conn{Conn: conn}, nil
}

// Kind returns the segment kind, SegmentUnknown until activated.
func (c *Conn) Kind() schema.SegmentKind { return c.kind }

// Activated reports whether an activation has been sent.
func (c *Conn) Activated() bool { return c.activated }

// Inert reports whether the Conn is still in its preallocated state.
func (c *Conn) Inert() bool {
	return !c.activated && c.kind == schema.SegmentUnknown
}

// FD returns the socket descriptor to poll.
func (c *Conn) FD() int { return c.ReadFD() }

// Send queues m. Sending an activation records its kind; a second
// activation fails with ErrAlreadyActivated and queues nothing.
func (c *Conn) Send(m Message) error {
	if m.Kind == KindActivate {
		if c.activated {
			return ErrAlreadyActivated
		}
	}
	frameType, payload, err := Encode(m)
	if err != nil {
		return err
	}
	if err := c.Conn.Queue(frameType, payload); err != nil {
		return fmt.Errorf("segment: queueing %s: %w", m.Kind, err)
	}
	if m.Kind == KindActivate {
		c.activated = true
		c.kind = m.Activate.Kind
	}
	return nil
}

// Receive returns the next fully buffered message, or ok false when
// more input is needed.
func (c *Conn) Receive() (m Message, ok bool, err error) {
	frame, ok, err := c.Conn.Next()
	if err != nil || !ok {
		return Message{}, ok, err
	}
	m, err = Decode(frame)
	if err != nil {
		return Message{}, true, err
	}
	return m, true, nil
}
