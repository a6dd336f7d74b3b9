// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package pump

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/shmlink/lib/framing"
	"github.com/bureau-foundation/shmlink/link"
	"github.com/bureau-foundation/shmlink/segment"
)

// Readiness is the bitmask returned by Client.Step. The bits describe
// pending state; they do not all mean another Step would make progress.
// A caller steps again right away while Client.Runnable reports true,
// and otherwise waits on Client.PollFDs.
type Readiness uint8

const (
	// LocalReady means the local session had more input than one
	// step reads.
	LocalReady Readiness = 1 << iota

	// WritePending means output is queued for the link.
	WritePending

	// DataPending means data from the link has not yet been
	// delivered locally: either more link input than one step reads,
	// or output queued for the local session.
	DataPending
)

var (
	// ErrInvalidConnectionPoint is a setup error: the connection
	// point name is malformed. Nothing was opened.
	ErrInvalidConnectionPoint = errors.New("pump: invalid connection point")

	// ErrPreallocActive is a setup error: the preallocated session
	// was already identified or activated.
	ErrPreallocActive = fmt.Errorf("%w: preallocated session is not inert", ErrInvalidConnectionPoint)

	// ErrLocalConnectFailed is a setup error: the local session could
	// not be established.
	ErrLocalConnectFailed = errors.New("pump: local connect failed")

	// ErrInvalidLink is a setup error: the link descriptors are
	// unusable.
	ErrInvalidLink = errors.New("pump: invalid link descriptors")

	// ErrClosed is returned by Step once the session has ended
	// normally. It is not a setup error.
	ErrClosed = errors.New("pump: session closed")
)

// IsSetupError reports whether err means the client never started, as
// opposed to a session that started and later ended or failed.
func IsSetupError(err error) bool {
	return errors.Is(err, ErrInvalidConnectionPoint) ||
		errors.Is(err, ErrLocalConnectFailed) ||
		errors.Is(err, ErrInvalidLink)
}

// Code folds a Step result into one integer: the readiness bitmask on
// success, a negative errno otherwise.
func Code(readiness Readiness, err error) int {
	switch {
	case err == nil:
		return int(readiness)
	case errors.Is(err, ErrInvalidConnectionPoint):
		return -int(unix.EINVAL)
	case errors.Is(err, ErrLocalConnectFailed):
		return -int(unix.ENOENT)
	case errors.Is(err, ErrInvalidLink):
		return -int(unix.EBADF)
	case errors.Is(err, ErrClosed):
		return -int(unix.EPIPE)
	default:
		return -int(unix.EIO)
	}
}

// ClientConfig describes a client-role pump.
type ClientConfig struct {
	// LinkIn and LinkOut are the link descriptors; they may be equal.
	// They remain owned by the caller.
	LinkIn  int
	LinkOut int

	// Directory and ConnectionPoint locate the local session to
	// connect to. Ignored when Prealloc is set.
	Directory       string
	ConnectionPoint string

	// Prealloc is an inert local session to populate instead of
	// connecting. The pump takes ownership of it.
	Prealloc *segment.Conn

	Options Options
}

// Client is a non-blocking pump. All methods must be called from one
// goroutine.
type Client struct {
	config ClientConfig
	logger *slog.Logger

	local  *segment.Conn
	remote *link.Nonblock
	relay  *relay

	established bool
	closed      bool
	failed      error

	localFull  bool
	remoteFull bool
}

// NewClient returns a Client. Nothing is opened until the first Step.
func NewClient(config ClientConfig) *Client {
	return &Client{
		config: config,
		logger: config.Options.logger().With("role", "client"),
	}
}

// Stats returns the pump counters.
func (c *Client) Stats() Stats {
	if c.relay == nil {
		return Stats{}
	}
	return c.relay.stats
}

// Established reports whether setup completed.
func (c *Client) Established() bool { return c.established }

// setup validates the configuration and opens the local session. The
// connection point name is checked before any descriptor is created.
func (c *Client) setup() error {
	var local *segment.Conn
	if c.config.Prealloc != nil {
		if !c.config.Prealloc.Inert() {
			return fmt.Errorf("%w (kind %s, activated %v)", ErrPreallocActive,
				c.config.Prealloc.Kind(), c.config.Prealloc.Activated())
		}
		local = c.config.Prealloc
	} else if err := segment.ValidateName(c.config.ConnectionPoint); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConnectionPoint, err)
	}

	remote, err := link.NewNonblock(c.config.LinkIn, c.config.LinkOut, false)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}

	if local == nil {
		local, err = segment.DialNonblock(c.config.Directory, c.config.ConnectionPoint)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrLocalConnectFailed, err)
		}
	}

	c.local = local
	c.remote = remote
	c.relay = newRelay(c.config.Options, c.logger, remote, local)
	c.relay.backlog = remote.Pending
	c.relay.outbox = local
	if limit := c.config.Options.LocalOutboxLimit; limit > 0 {
		local.SetOutboxLimit(limit)
	}
	c.established = true
	c.logger.Info("pump established", "connection_point", c.config.ConnectionPoint,
		"preallocated", c.config.Prealloc != nil)
	return c.relay.announce()
}

// Step performs one round of readiness-directed work without blocking.
// Setup happens on the first call; setup failures satisfy IsSetupError.
// After the session ends every call returns ErrClosed, or the
// transport error that ended it.
func (c *Client) Step() (Readiness, error) {
	if c.closed {
		if c.failed != nil {
			return 0, c.failed
		}
		return 0, ErrClosed
	}
	if !c.established {
		if err := c.setup(); err != nil {
			c.logger.Error("pump setup failed", "error", err)
			c.finish(err)
			return 0, err
		}
	}

	readable := c.poll()

	c.localFull, c.remoteFull = false, false
	if readable.local {
		n, err := c.local.ReadOnce()
		if err != nil && err != io.EOF {
			return c.fail(fmt.Errorf("pump: reading local session: %w", err))
		}
		c.localFull = n == framing.ReadChunk
	}
	// A congested local outbox stops link reads. Acknowledgements wait
	// for the outbox too, so the remote controller sees the stall.
	if readable.remote && !c.local.Congested() {
		n, err := c.remote.ReadOnce()
		if err != nil && err != io.EOF {
			return c.fail(fmt.Errorf("pump: reading link: %w", err))
		}
		c.remoteFull = n == framing.ReadChunk
	}

	done, err := c.process()
	if err != nil {
		return c.fail(err)
	}

	if _, err := c.local.WriteOnce(); err != nil {
		return c.fail(fmt.Errorf("pump: writing local session: %w", err))
	}
	if err := c.relay.releaseAcks(); err != nil {
		return c.fail(err)
	}
	if _, err := c.remote.WriteOnce(); err != nil {
		return c.fail(fmt.Errorf("pump: writing link: %w", err))
	}

	if done {
		c.drain()
		c.logger.Info("pump finished", "stats", c.relay.stats)
		c.finish(nil)
		return 0, ErrClosed
	}
	return c.readiness(), nil
}

type readableSet struct {
	local  bool
	remote bool
}

// poll checks both read descriptors with a zero timeout. Hangups and
// errors count as readable so the following read observes them.
func (c *Client) poll() readableSet {
	fds := []unix.PollFd{
		{Fd: int32(c.local.FD()), Events: unix.POLLIN},
		{Fd: int32(c.remote.ReadFD()), Events: unix.POLLIN},
	}
	if _, err := unix.Poll(fds, 0); err != nil {
		// EINTR: nothing observed this step.
		return readableSet{}
	}
	const ready = unix.POLLIN | unix.POLLHUP | unix.POLLERR
	return readableSet{
		local:  fds[0].Revents&ready != 0,
		remote: fds[1].Revents&ready != 0,
	}
}

// process handles every complete message buffered on either side. The
// amount is bounded by what one read delivered. Link messages stay
// buffered while the local outbox is congested.
func (c *Client) process() (done bool, err error) {
	for !c.local.Congested() {
		m, ok, err := c.remote.Receive()
		if err != nil {
			if !link.IsMessageError(err) {
				return false, fmt.Errorf("pump: decoding link: %w", err)
			}
			c.relay.malformed("link", err)
			continue
		}
		if !ok {
			break
		}
		if done, err := c.relay.fromLink(m); err != nil || done {
			return done, err
		}
	}
	for {
		m, ok, err := c.local.Receive()
		if err != nil {
			if !segment.IsMessageError(err) {
				return false, fmt.Errorf("pump: decoding local session: %w", err)
			}
			c.relay.malformed("local", err)
			continue
		}
		if !ok {
			break
		}
		if done, err := c.relay.fromLocal(m); err != nil || done {
			return done, err
		}
	}
	if c.remote.EOF() && !c.remote.Decoded() {
		c.logger.Info("link ended")
		c.relay.terminateLocal("link ended")
		return true, nil
	}
	if c.local.EOF() {
		c.logger.Info("local session ended")
		c.relay.terminateLink("local session ended")
		return true, nil
	}
	return false, nil
}

// drain writes whatever the descriptors accept right now so final
// messages (an exit, a close) are not lost. It stops at the first write
// that makes no progress.
func (c *Client) drain() {
	for c.local.Pending() > 0 {
		if n, err := c.local.WriteOnce(); err != nil || n == 0 {
			break
		}
	}
	if err := c.relay.releaseAcks(); err != nil {
		c.logger.Debug("final acknowledgements not sent", "error", err)
	}
	for c.remote.Pending() > 0 {
		if n, err := c.remote.WriteOnce(); err != nil || n == 0 {
			break
		}
	}
}

// Runnable reports whether the next Step can make progress without
// waiting on a descriptor: local input was cut short by the read chunk,
// or link input is available and the local outbox has room for it.
func (c *Client) Runnable() bool {
	if !c.established || c.closed {
		return !c.closed
	}
	if c.localFull {
		return true
	}
	if c.local.Congested() {
		return false
	}
	return c.remoteFull || c.remote.Decoded()
}

func (c *Client) readiness() Readiness {
	var r Readiness
	if c.localFull {
		r |= LocalReady
	}
	if c.remote.Pending() > 0 {
		r |= WritePending
	}
	if c.remoteFull || c.local.Pending() > 0 {
		r |= DataPending
	}
	return r
}

func (c *Client) fail(err error) (Readiness, error) {
	c.logger.Error("pump failed", "error", err, "stats", c.relay.stats)
	c.finish(err)
	return 0, err
}

func (c *Client) finish(err error) {
	c.closed = true
	c.failed = err
	if c.local != nil {
		c.local.Close()
	} else if c.config.Prealloc != nil {
		c.config.Prealloc.Close()
	}
	if c.remote != nil {
		c.remote.Close()
	}
}

// Close ends the client. The link descriptors stay open; they belong
// to the caller.
func (c *Client) Close() error {
	if !c.closed {
		c.finish(nil)
	}
	return nil
}

// PollFDs returns the descriptors and events a caller's event loop
// should wait on before the next Step. The link is not polled for input
// while the local outbox is congested.
func (c *Client) PollFDs() []unix.PollFd {
	if !c.established || c.closed {
		return nil
	}
	localEvents := int16(unix.POLLIN)
	if c.local.Pending() > 0 {
		localEvents |= unix.POLLOUT
	}
	fds := []unix.PollFd{{Fd: int32(c.local.FD()), Events: localEvents}}
	var remoteIn int16
	if !c.local.Congested() {
		remoteIn = unix.POLLIN
	}
	if c.remote.ReadFD() == c.remote.WriteFD() {
		events := remoteIn
		if c.remote.Pending() > 0 {
			events |= unix.POLLOUT
		}
		if events == 0 {
			return fds
		}
		return append(fds, unix.PollFd{Fd: int32(c.remote.ReadFD()), Events: events})
	}
	if remoteIn != 0 {
		fds = append(fds, unix.PollFd{Fd: int32(c.remote.ReadFD()), Events: remoteIn})
	}
	if c.remote.Pending() > 0 {
		fds = append(fds, unix.PollFd{Fd: int32(c.remote.WriteFD()), Events: unix.POLLOUT})
	}
	return fds
}
