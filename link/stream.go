// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package link

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/bureau-foundation/shmlink/lib/framing"
)

// Stream is a blocking link over a reader and a writer. The two may be
// the same object (a socket) or distinct (a pipe pair). Receive must be
// called from one goroutine at a time; Send is safe for concurrent use.
type Stream struct {
	reader *bufio.Reader

	writeMu sync.Mutex
	writer  io.Writer

	closers   []io.Closer
	closeOnce sync.Once
	closeErr  error
}

// NewStream returns a Stream reading from r and writing to w. Close
// closes whichever of r and w implement io.Closer, once each.
func NewStream(r io.Reader, w io.Writer) *Stream {
	s := &Stream{
		reader: bufio.NewReaderSize(r, framing.ReadChunk),
		writer: w,
	}
	if c, ok := r.(io.Closer); ok {
		s.closers = append(s.closers, c)
	}
	if c, ok := w.(io.Closer); ok && !sameCloser(r, w) {
		s.closers = append(s.closers, c)
	}
	return s
}

func sameCloser(r io.Reader, w io.Writer) (same bool) {
	defer func() {
		// Uncomparable dynamic types cannot be the same object here.
		if recover() != nil {
			same = false
		}
	}()
	return any(r) == any(w)
}

// Receive reads the next message. It returns io.EOF when the peer
// closed cleanly between messages. Errors satisfying IsMessageError
// leave the stream usable.
func (s *Stream) Receive() (Message, error) {
	frame, err := framing.ReadFrame(s.reader)
	if err != nil {
		if err == io.EOF {
			return Message{}, io.EOF
		}
		return Message{}, fmt.Errorf("link: reading frame: %w", err)
	}
	return Decode(frame)
}

// Send writes one message.
func (s *Stream) Send(m Message) error {
	frameType, payload, err := Encode(m)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := framing.WriteFrame(s.writer, frameType, payload); err != nil {
		return fmt.Errorf("link: sending %s: %w", m.Kind, err)
	}
	return nil
}

// Close closes the underlying reader and writer.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		for _, c := range s.closers {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
