// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package segment

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/bureau-foundation/shmlink/lib/framing"
)

// Listener accepts local sessions on a connection point.
type Listener struct {
	listener net.Listener
	path     string
}

// Listen creates connection point name in directory. Any stale socket
// file at the path is removed first. Close removes the socket file.
func Listen(directory, name string) (*Listener, error) {
	path, err := Path(directory, name)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("segment: removing stale socket %s: %w", path, err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("segment: listening on %s: %w", path, err)
	}
	return &Listener{listener: listener, path: path}, nil
}

// Path returns the socket path.
func (l *Listener) Path() string { return l.path }

// Accept waits for the next session. Cancelling ctx closes the
// listener.
func (l *Listener) Accept(ctx context.Context) (*Session, error) {
	stop := context.AfterFunc(ctx, func() { l.listener.Close() })
	defer stop()
	conn, err := l.listener.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("segment: accept on %s: %w", l.path, err)
	}
	return NewSession(conn), nil
}

// Close stops listening and removes the socket file.
func (l *Listener) Close() error {
	err := l.listener.Close()
	if removeErr := os.Remove(l.path); removeErr != nil && !os.IsNotExist(removeErr) && err == nil {
		err = removeErr
	}
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Session is a blocking local session. Receive must be called from one
// goroutine at a time; Send is safe for concurrent use.
type Session struct {
	conn   net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex
}

// NewSession wraps an established connection.
func NewSession(conn net.Conn) *Session {
	return &Session{conn: conn, reader: bufio.NewReaderSize(conn, framing.ReadChunk)}
}

// Dial connects to connection point name in directory.
func Dial(ctx context.Context, directory, name string) (*Session, error) {
	path, err := Path(directory, name)
	if err != nil {
		return nil, err
	}
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("segment: connecting to %s: %w", path, err)
	}
	return NewSession(conn), nil
}

// Receive reads the next message. It returns io.EOF when the peer
// closed between messages. Errors satisfying IsMessageError leave the
// session usable.
func (s *Session) Receive() (Message, error) {
	frame, err := framing.ReadFrame(s.reader)
	if err != nil {
		if err == io.EOF {
			return Message{}, io.EOF
		}
		return Message{}, fmt.Errorf("segment: reading frame: %w", err)
	}
	return Decode(frame)
}

// Send writes one message.
func (s *Session) Send(m Message) error {
	frameType, payload, err := Encode(m)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := framing.WriteFrame(s.conn, frameType, payload); err != nil {
		return fmt.Errorf("segment: sending %s: %w", m.Kind, err)
	}
	return nil
}

// Close closes the session.
func (s *Session) Close() error {
	return s.conn.Close()
}
