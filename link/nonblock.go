// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package link

import (
	"fmt"

	"github.com/bureau-foundation/shmlink/lib/framing"
)

// Nonblock is a link over non-blocking descriptors. Nothing blocks:
// ReadOnce and WriteOnce each perform at most one system call, Send
// only queues. Nonblock is not safe for concurrent use.
type Nonblock struct {
	*framing.Conn
}

// NewNonblock wraps the link descriptors. readFD and writeFD may be
// equal. The caller keeps ownership of the descriptors unless owned is
// true.
func NewNonblock(readFD, writeFD int, owned bool) (*Nonblock, error) {
	conn, err := framing.NewConn(readFD, writeFD, owned)
	if err != nil {
		return nil, fmt.Errorf("link: %w", err)
	}
	return &Nonblock{Conn: conn}, nil
}

// Send queues m for transmission.
func (n *Nonblock) Send(m Message) error {
	frameType, payload, err := Encode(m)
	if err != nil {
		return err
	}
	if err := n.Conn.Queue(frameType, payload); err != nil {
		return fmt.Errorf("link: queueing %s: %w", m.Kind, err)
	}
	return nil
}

// Receive returns the next fully buffered message, or ok false when
// more input is needed. Errors satisfying IsMessageError leave the
// connection usable.
func (n *Nonblock) Receive() (m Message, ok bool, err error) {
	frame, ok, err := n.Conn.Next()
	if err != nil || !ok {
		return Message{}, ok, err
	}
	m, err = Decode(frame)
	if err != nil {
		return Message{}, true, err
	}
	return m, true, nil
}
