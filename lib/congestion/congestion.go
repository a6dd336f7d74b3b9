// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package congestion decides, per outbound video stream, whether a frame
// may be sent on the remote link.
//
// The signal is frame distance: how far the newest submitted frame is
// ahead of the newest acknowledged one. Below the soft threshold every
// frame is admitted. Between the soft and hard thresholds only
// dirty-region updates are admitted and full-frame refreshes wait. At
// or above the hard threshold nothing is admitted; a rejected frame is
// dropped and the next admitted frame supersedes it.
//
// This is advisory backpressure. It trades visual staleness for a link
// that never accumulates an unbounded backlog of frames the remote side
// has not consumed.
//
// A [Controller] belongs to one pump and is not safe for concurrent
// use.
package congestion

import "github.com/bureau-foundation/shmlink/lib/schema"

// Verdict is the result of Admit.
type Verdict uint8

const (
	// AdmitFull admits any frame.
	AdmitFull Verdict = iota

	// AdmitPartialOnly admits dirty-region frames and defers full
	// frames.
	AdmitPartialOnly

	// Reject admits nothing.
	Reject
)

// String returns the verdict name.
func (v Verdict) String() string {
	switch v {
	case AdmitFull:
		return "admit_full"
	case AdmitPartialOnly:
		return "admit_partial_only"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// Allows reports whether a frame may be sent under verdict v.
func (v Verdict) Allows(frame *schema.Frame) bool {
	switch v {
	case AdmitFull:
		return true
	case AdmitPartialOnly:
		return !frame.Full
	default:
		return false
	}
}

// Thresholds are the maximum tolerated frame distances. A distance at
// or above SoftBlock restricts the stream to partial updates; at or
// above Block the stream is blocked. Zero disables the corresponding
// tier, so the stricter policy applies from the first frame.
// SoftBlock <= Block is expected but not required: whichever threshold
// is crossed first governs.
type Thresholds struct {
	SoftBlock uint64
	Block     uint64
}

type streamState struct {
	lastAcked     uint64
	lastSubmitted uint64
}

// Controller tracks congestion state for every stream a pump sends.
type Controller struct {
	thresholds Thresholds

	// slots maps a stream id to its index in states. States live in a
	// flat slice; streams are few and never removed during a session.
	slots  map[uint32]int
	states []streamState
}

// New returns a Controller with the given thresholds. Thresholds are
// fixed for the controller's lifetime.
func New(thresholds Thresholds) *Controller {
	return &Controller{
		thresholds: thresholds,
		slots:      make(map[uint32]int),
	}
}

// Thresholds returns the configured thresholds.
func (c *Controller) Thresholds() Thresholds {
	return c.thresholds
}

func (c *Controller) state(stream uint32) *streamState {
	slot, ok := c.slots[stream]
	if !ok {
		slot = len(c.states)
		c.states = append(c.states, streamState{})
		c.slots[stream] = slot
	}
	return &c.states[slot]
}

// Submit records that frame seq of stream was accepted for
// transmission.
func (c *Controller) Submit(stream uint32, seq uint64) {
	c.state(stream).lastSubmitted = seq
}

// Ack records an acknowledgement. Acknowledgements never move the
// acknowledged position backwards.
func (c *Controller) Ack(stream uint32, seq uint64) {
	state := c.state(stream)
	if seq > state.lastAcked {
		state.lastAcked = seq
	}
}

// Distance returns lastSubmitted - lastAcked for stream, or zero if
// acknowledgements are ahead.
func (c *Controller) Distance(stream uint32) uint64 {
	state := c.state(stream)
	return distance(state.lastSubmitted, state.lastAcked)
}

// Admit classifies frame against the stream's current state. The
// frame's own sequence number counts as submitted, so the verdict is
// the same whether the caller calls Submit before or after Admit.
func (c *Controller) Admit(frame *schema.Frame) Verdict {
	state := c.state(frame.Stream)
	submitted := max(state.lastSubmitted, frame.Seq)
	return c.classify(distance(submitted, state.lastAcked))
}

// Current returns the verdict for the stream's current state without
// a candidate frame.
func (c *Controller) Current(stream uint32) Verdict {
	return c.classify(c.Distance(stream))
}

func (c *Controller) classify(d uint64) Verdict {
	if d < c.thresholds.SoftBlock && d < c.thresholds.Block {
		return AdmitFull
	}
	if d < c.thresholds.Block {
		return AdmitPartialOnly
	}
	return Reject
}

func distance(submitted, acked uint64) uint64 {
	if acked >= submitted {
		return 0
	}
	return submitted - acked
}
