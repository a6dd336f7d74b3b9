// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pump

import "github.com/bureau-foundation/shmlink/lib/schema"

// heldFrames is the per-stream state for frames that congestion kept
// off the link. At most one full frame per stream is held. A stream is
// stale when dirty regions were dropped and no held frame covers them.
type heldFrames struct {
	held  map[uint32]*schema.Frame
	stale map[uint32]bool
}

func newHeldFrames() *heldFrames {
	return &heldFrames{
		held:  make(map[uint32]*schema.Frame),
		stale: make(map[uint32]bool),
	}
}

// hold keeps a private copy of a full frame, replacing any older one.
// A held full frame repaints everything, so the stream is no longer
// stale.
func (h *heldFrames) hold(frame *schema.Frame) {
	copied := *frame
	copied.Data = append([]byte(nil), frame.Data...)
	h.held[frame.Stream] = &copied
	delete(h.stale, frame.Stream)
}

// patch applies a dirty-region frame to the held full frame of its
// stream. It reports false when no held frame exists, the surface size
// changed, or either buffer does not match its geometry; in those cases
// the held frame is discarded.
func (h *heldFrames) patch(frame *schema.Frame) bool {
	target := h.held[frame.Stream]
	if target == nil {
		return false
	}
	if target.Width != frame.Width || target.Height != frame.Height || !fits(target, frame) {
		delete(h.held, frame.Stream)
		return false
	}
	rowBytes := int(frame.Region.Width) * schema.BytesPerPixel
	stride := int(target.Width) * schema.BytesPerPixel
	for row := 0; row < int(frame.Region.Height); row++ {
		destination := (int(frame.Region.Y)+row)*stride + int(frame.Region.X)*schema.BytesPerPixel
		source := row * rowBytes
		copy(target.Data[destination:destination+rowBytes], frame.Data[source:source+rowBytes])
	}
	return true
}

// fits reports whether region frame lies inside target and both data
// buffers hold exactly the bytes their geometry names.
func fits(target, frame *schema.Frame) bool {
	region := frame.Region
	if uint64(region.X)+uint64(region.Width) > uint64(target.Width) ||
		uint64(region.Y)+uint64(region.Height) > uint64(target.Height) {
		return false
	}
	return uint64(len(target.Data)) == target.ExpectedSize() &&
		uint64(len(frame.Data)) == frame.ExpectedSize()
}

func (h *heldFrames) take(stream uint32) *schema.Frame {
	frame := h.held[stream]
	delete(h.held, stream)
	return frame
}

func (h *heldFrames) peek(stream uint32) *schema.Frame {
	return h.held[stream]
}

func (h *heldFrames) markStale(stream uint32) { h.stale[stream] = true }

func (h *heldFrames) isStale(stream uint32) bool { return h.stale[stream] }

func (h *heldFrames) clearStale(stream uint32) { delete(h.stale, stream) }
