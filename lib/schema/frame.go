// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"math"
)

// Region is a dirty rectangle in frame coordinates.
type Region struct {
	X      uint32 `cbor:"x"`
	Y      uint32 `cbor:"y"`
	Width  uint32 `cbor:"w"`
	Height uint32 `cbor:"h"`
}

// Empty reports whether the region covers no pixels.
func (r Region) Empty() bool {
	return r.Width == 0 || r.Height == 0
}

// String formats the region as WxH+X+Y.
func (r Region) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Width, r.Height, r.X, r.Y)
}

// Frame is one video buffer update for a stream.
//
// A full frame (Full set) replaces the whole surface and Data holds
// Width*Height*4 bytes of RGBA. A partial frame carries only the pixels
// inside Region, row-major, Region.Width*Region.Height*4 bytes. The
// congestion controller treats the two differently: under soft
// blocking only partial frames are forwarded.
type Frame struct {
	// Stream identifies the video stream (segment) the frame belongs
	// to. Congestion state is tracked per stream.
	Stream uint32 `cbor:"s"`

	// Seq is the frame's sequence number within the stream. Frames
	// read from the local session carry the producer's counter; the
	// pump renumbers frames it transmits on the link so that
	// acknowledgements refer to link sequence numbers only.
	Seq uint64 `cbor:"q"`

	Full   bool   `cbor:"f,omitempty"`
	Region Region `cbor:"r"`
	Width  uint32 `cbor:"w"`
	Height uint32 `cbor:"h"`
	Data   []byte `cbor:"d,omitempty"`
}

// BytesPerPixel is the fixed pixel size of frame buffers.
const BytesPerPixel = 4

// MaxFrameBytes bounds the pixel buffer of a full surface. It matches
// the largest message payload either transport accepts.
const MaxFrameBytes = 64 << 20

// ExpectedSize returns the number of bytes Data should hold given the
// frame geometry. Sizes beyond the uint64 range saturate at
// math.MaxUint64.
func (f *Frame) ExpectedSize() uint64 {
	width, height := f.Region.Width, f.Region.Height
	if f.Full {
		width, height = f.Width, f.Height
	}
	pixels := uint64(width) * uint64(height)
	if pixels > math.MaxUint64/BytesPerPixel {
		return math.MaxUint64
	}
	return pixels * BytesPerPixel
}

// Validate checks that the frame geometry is self-consistent and that
// the surface fits in MaxFrameBytes.
func (f *Frame) Validate() error {
	if f.Width == 0 || f.Height == 0 {
		return fmt.Errorf("frame stream %d seq %d: zero surface size %dx%d", f.Stream, f.Seq, f.Width, f.Height)
	}
	if uint64(f.Width)*uint64(f.Height) > MaxFrameBytes/BytesPerPixel {
		return fmt.Errorf("frame stream %d seq %d: surface %dx%d exceeds %d bytes",
			f.Stream, f.Seq, f.Width, f.Height, MaxFrameBytes)
	}
	if !f.Full {
		if f.Region.Empty() {
			return fmt.Errorf("frame stream %d seq %d: partial frame with empty region", f.Stream, f.Seq)
		}
		if uint64(f.Region.X)+uint64(f.Region.Width) > uint64(f.Width) ||
			uint64(f.Region.Y)+uint64(f.Region.Height) > uint64(f.Height) {
			return fmt.Errorf("frame stream %d seq %d: region %s outside surface %dx%d",
				f.Stream, f.Seq, f.Region, f.Width, f.Height)
		}
	}
	if uint64(len(f.Data)) != f.ExpectedSize() {
		return fmt.Errorf("frame stream %d seq %d: %d data bytes, want %d",
			f.Stream, f.Seq, len(f.Data), f.ExpectedSize())
	}
	return nil
}

// Audio is a buffer of interleaved signed 16-bit PCM samples. Audio is
// forwarded in order without congestion control.
type Audio struct {
	Stream     uint32 `cbor:"s"`
	SampleRate uint32 `cbor:"r"`
	Channels   uint8  `cbor:"c"`
	Samples    []byte `cbor:"d,omitempty"`
}

// ResourceKind classifies a cacheable blob.
type ResourceKind uint8

const (
	ResourceFont ResourceKind = iota + 1
	ResourceIcon
	ResourceBlob
)

// String returns the resource kind name.
func (k ResourceKind) String() string {
	switch k {
	case ResourceFont:
		return "font"
	case ResourceIcon:
		return "icon"
	case ResourceBlob:
		return "blob"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Resource is a content-addressable blob such as font data. Across the
// link it may be sent as a checksum reference instead of in full.
type Resource struct {
	Kind ResourceKind `cbor:"k"`
	Name string       `cbor:"n,omitempty"`
	Data []byte       `cbor:"d,omitempty"`
}

// SegmentKind is the role a local segment plays (application window,
// popup, cursor, ...). A session created for a remote link starts as
// SegmentUnknown and takes the kind announced by the link's first
// activation message.
type SegmentKind uint8

const (
	SegmentUnknown SegmentKind = iota
	SegmentApplication
	SegmentPopup
	SegmentCursor
	SegmentTitlebar
	SegmentMedia
)

// String returns the segment kind name.
func (k SegmentKind) String() string {
	switch k {
	case SegmentUnknown:
		return "unknown"
	case SegmentApplication:
		return "application"
	case SegmentPopup:
		return "popup"
	case SegmentCursor:
		return "cursor"
	case SegmentTitlebar:
		return "titlebar"
	case SegmentMedia:
		return "media"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Activation announces the identity of a segment: what kind it is and
// how the far side titles it.
type Activation struct {
	Kind  SegmentKind `cbor:"k"`
	Title string      `cbor:"t,omitempty"`
}
