// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package pump

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"
)

// idlePollInterval bounds how long Loop sleeps in poll, so that
// cancellation is noticed without a wakeup descriptor.
const idlePollInterval = 100 * time.Millisecond

// Loop is an event loop for client-role pumps. It steps clients that
// have work and sleeps in poll on the descriptors of the rest. Loop is
// one way to drive clients; any reactor that calls Step works.
type Loop struct {
	// Logger receives per-client endings. Nil uses slog.Default().
	Logger *slog.Logger

	// Incoming, when set, delivers clients to add while Run is
	// running. Run keeps going while Incoming is open, even with no
	// clients. New clients are picked up within one idle poll interval.
	Incoming <-chan *Client

	// Ended, when set, is called from Run after a client is removed,
	// with the error that ended it (nil for a normal close or
	// cancellation). Callers release resources the client does not
	// own, such as its link descriptors, here.
	Ended func(client *Client, err error)

	clients []*Client
	ready   []bool
}

// Add registers a client. It is stepped on the next iteration. Add
// must not be called concurrently with Run; use Incoming instead.
func (l *Loop) Add(client *Client) {
	l.clients = append(l.clients, client)
	l.ready = append(l.ready, true)
}

// Len returns the number of clients still running.
func (l *Loop) Len() int { return len(l.clients) }

// Run drives the clients until all have ended (and Incoming, if set, is
// closed) or ctx is cancelled.
// Clients still running at cancellation are closed. Setup failures and
// transport failures end only the client concerned; Run returns them
// joined once every client has ended.
func (l *Loop) Run(ctx context.Context) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var failures []error
	incoming := l.Incoming

	for len(l.clients) > 0 || incoming != nil {
		if ctx.Err() != nil {
			for _, client := range l.clients {
				client.Close()
				l.ended(client, nil)
			}
			l.clients, l.ready = nil, nil
			return errors.Join(failures...)
		}

		incoming = l.accept(incoming)
		if len(l.clients) == 0 {
			if incoming == nil {
				break
			}
			select {
			case client, ok := <-incoming:
				if !ok {
					incoming = nil
					continue
				}
				l.Add(client)
			case <-ctx.Done():
				continue
			}
		}

		busy := false
		for index := 0; index < len(l.clients); {
			client := l.clients[index]
			if !l.ready[index] {
				index++
				continue
			}
			readiness, err := client.Step()
			if err != nil {
				if errors.Is(err, ErrClosed) {
					err = nil
				} else {
					logger.Warn("pump ended with error", "error", err, "code", Code(readiness, err))
					failures = append(failures, err)
				}
				l.remove(index)
				l.ended(client, err)
				continue
			}
			runnable := client.Runnable()
			if readiness != 0 && !runnable {
				logger.Debug("pump waiting", "readiness", readiness, "clients", l.Len())
			}
			l.ready[index] = runnable
			busy = busy || runnable
			index++
		}

		if err := l.wait(busy); err != nil {
			return errors.Join(append(failures, err)...)
		}
	}
	return errors.Join(failures...)
}

// wait polls the idle clients' descriptors and marks the ones with
// activity ready. When some client is busy it only samples.
func (l *Loop) wait(busy bool) error {
	var fds []unix.PollFd
	var owners []int
	for index, client := range l.clients {
		if l.ready[index] {
			continue
		}
		for _, fd := range client.PollFDs() {
			fds = append(fds, fd)
			owners = append(owners, index)
		}
	}
	if len(fds) == 0 {
		return nil
	}
	timeout := int(idlePollInterval / time.Millisecond)
	if busy {
		timeout = 0
	}
	if _, err := unix.Poll(fds, timeout); err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		return fmt.Errorf("pump: poll: %w", err)
	}
	for position, fd := range fds {
		if fd.Revents != 0 {
			l.ready[owners[position]] = true
		}
	}
	return nil
}

// accept adds every client waiting on incoming without blocking. It
// returns nil once incoming is closed.
func (l *Loop) accept(incoming <-chan *Client) <-chan *Client {
	for incoming != nil {
		select {
		case client, ok := <-incoming:
			if !ok {
				return nil
			}
			l.Add(client)
		default:
			return incoming
		}
	}
	return nil
}

func (l *Loop) ended(client *Client, err error) {
	if l.Ended != nil {
		l.Ended(client, err)
	}
}

func (l *Loop) remove(index int) {
	l.clients = append(l.clients[:index], l.clients[index+1:]...)
	l.ready = append(l.ready[:index], l.ready[index+1:]...)
}
