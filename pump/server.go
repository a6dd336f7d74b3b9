// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pump

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/shmlink/lib/netutil"
	"github.com/bureau-foundation/shmlink/link"
	"github.com/bureau-foundation/shmlink/segment"
)

// LocalSession is the blocking local side driven by a Server.
// *segment.Session implements it.
type LocalSession interface {
	Receive() (segment.Message, error)
	Send(segment.Message) error
	Close() error
}

// Link is the blocking remote side driven by a Server. *link.Stream
// implements it.
type Link interface {
	Receive() (link.Message, error)
	Send(link.Message) error
	Close() error
}

// cancelGrace is how long Run lets the loop send its terminate after
// cancellation before closing the handles under it.
const cancelGrace = 250 * time.Millisecond

// readBacklog is how many decoded messages a reader goroutine may hold
// before it stops reading its handle.
const readBacklog = 64

type received[T any] struct {
	message T
	err     error
}

// Server pumps one accepted local session and one link until either
// ends. Create it with NewServer and call Run once.
type Server struct {
	session LocalSession
	link    Link
	logger  *slog.Logger
	relay   *relay
}

// NewServer returns a Server for session and remote. The Server owns
// both handles from here on and closes them when Run returns.
func NewServer(session LocalSession, remote Link, options Options) *Server {
	logger := options.logger().With("role", "server")
	return &Server{
		session: session,
		link:    remote,
		logger:  logger,
		relay:   newRelay(options, logger, remote, session),
	}
}

// Stats returns the pump counters. Only valid after Run returned.
func (s *Server) Stats() Stats {
	return s.relay.stats
}

// Run relays until the local session or the link ends, an exit event
// arrives from the link without a redirect, ctx is cancelled, or an
// I/O error occurs. Normal endings return nil. Closing either handle
// from outside is a normal ending. Cancellation closes both handles
// after a short grace period, which also ends a Send blocked on a peer
// that stopped reading.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("pump started")

	if err := s.relay.announce(); err != nil {
		s.session.Close()
		s.link.Close()
		return err
	}

	finished := make(chan struct{})
	stopClosing := context.AfterFunc(ctx, func() {
		select {
		case <-finished:
		case <-time.After(cancelGrace):
			s.logger.Debug("closing handles after cancellation")
			s.session.Close()
			s.link.Close()
		}
	})
	defer stopClosing()

	readCtx, stopReaders := context.WithCancel(ctx)
	defer stopReaders()
	group, groupCtx := errgroup.WithContext(readCtx)
	localMessages := make(chan received[segment.Message], readBacklog)
	linkMessages := make(chan received[link.Message], readBacklog)
	group.Go(func() error {
		readLoop(groupCtx, s.session.Receive, segment.IsMessageError, localMessages)
		return nil
	})
	group.Go(func() error {
		readLoop(groupCtx, s.link.Receive, link.IsMessageError, linkMessages)
		return nil
	})

	err := s.loop(ctx, localMessages, linkMessages)
	close(finished)
	if err != nil && ctx.Err() != nil {
		s.logger.Info("pump cancelled", "error", err)
		err = nil
	}

	// Closing the handles unblocks readers stuck in Receive;
	// cancelling unblocks readers stuck on a full channel.
	stopReaders()
	s.session.Close()
	s.link.Close()
	group.Wait()

	if err != nil {
		s.logger.Error("pump failed", "error", err, "stats", s.relay.stats)
		return err
	}
	s.logger.Info("pump finished", "stats", s.relay.stats)
	return nil
}

func (s *Server) loop(ctx context.Context, localMessages <-chan received[segment.Message], linkMessages <-chan received[link.Message]) error {
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("pump cancelled")
			s.relay.terminateLink("cancelled")
			return nil

		case in := <-localMessages:
			if in.err != nil {
				if segment.IsMessageError(in.err) {
					s.relay.malformed("local", in.err)
					continue
				}
				if netutil.IsExpectedCloseError(in.err) {
					s.logger.Info("local session ended")
					s.relay.terminateLink("local session ended")
					return nil
				}
				return fmt.Errorf("pump: reading local session: %w", in.err)
			}
			done, err := s.relay.fromLocal(in.message)
			if err != nil || done {
				return err
			}

		case in := <-linkMessages:
			if in.err != nil {
				if link.IsMessageError(in.err) {
					s.relay.malformed("link", in.err)
					continue
				}
				if netutil.IsExpectedCloseError(in.err) {
					s.logger.Info("link ended")
					s.relay.terminateLocal("link ended")
					return nil
				}
				return fmt.Errorf("pump: reading link: %w", in.err)
			}
			done, err := s.relay.fromLink(in.message)
			if err != nil || done {
				return err
			}
		}
	}
}

// readLoop turns blocking Receive calls into channel sends. It stops
// after the first error that is not confined to one message, after
// forwarding it.
func readLoop[T any](ctx context.Context, receive func() (T, error), isMessageError func(error) bool, out chan<- received[T]) {
	for {
		message, err := receive()
		select {
		case out <- received[T]{message: message, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil && !isMessageError(err) {
			return
		}
	}
}
