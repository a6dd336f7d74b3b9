// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pump

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/bureau-foundation/shmlink/lib/bcache"
	"github.com/bureau-foundation/shmlink/lib/compress"
	"github.com/bureau-foundation/shmlink/lib/congestion"
	"github.com/bureau-foundation/shmlink/lib/schema"
)

// LinkState is what the video evaluation callback knows about the link
// when a frame is about to be sent.
type LinkState struct {
	// Distance is the stream's frame distance: submitted minus
	// acknowledged.
	Distance uint64

	// Verdict is the congestion verdict for the frame.
	Verdict congestion.Verdict

	// Thresholds are the pump's congestion thresholds.
	Thresholds congestion.Thresholds

	// Backlog is the number of bytes queued for the link and not yet
	// written. Always zero for the server role, whose writes block.
	Backlog int
}

// VideoParams are the encoding parameters for one frame.
type VideoParams struct {
	Compression compress.Tag
}

// EvalVideoFunc chooses encoding parameters for a frame. It must not
// retain frame.
type EvalVideoFunc func(state LinkState, stream uint32, frame *schema.Frame) VideoParams

// DefaultEvalVideo compresses with LZ4 while the link keeps up and
// switches to zstd once the stream is soft-blocked, trading CPU for
// bandwidth when bandwidth is what is short.
func DefaultEvalVideo(state LinkState, _ uint32, _ *schema.Frame) VideoParams {
	if state.Verdict == congestion.AdmitFull {
		return VideoParams{Compression: compress.LZ4}
	}
	return VideoParams{Compression: compress.Zstd}
}

// Options configure a pump. They are fixed for the pump's lifetime.
type Options struct {
	// EvalVideo picks per-frame encoding. Nil uses DefaultEvalVideo.
	EvalVideo EvalVideoFunc

	// SoftBlock and Block are the congestion thresholds; see
	// congestion.Thresholds.
	SoftBlock uint64
	Block     uint64

	// RedirectExit, when set, turns an exit event from the link into
	// a redirect device hint naming this connection point.
	RedirectExit string

	// DeviceHintCP, when set, is announced to the local session as
	// its fallback connection point before anything else.
	DeviceHintCP string

	// LocalOutboxLimit bounds the client's local outbox in bytes
	// before link reads stop. Zero uses framing.DefaultOutboxLimit.
	LocalOutboxLimit int

	// Cache enables checksum references for cacheable resources. The
	// pump does not close it.
	Cache *bcache.Cache

	// Logger receives lifecycle and protocol warnings. Nil uses
	// slog.Default().
	Logger *slog.Logger

	// ID labels the pump in logs. Empty generates a random one.
	ID string
}

func (o Options) logger() *slog.Logger {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := o.ID
	if id == "" {
		id = uuid.NewString()
	}
	return logger.With("pump_id", id)
}

func (o Options) evalVideo() EvalVideoFunc {
	if o.EvalVideo == nil {
		return DefaultEvalVideo
	}
	return o.EvalVideo
}

// Stats counts what a pump did. Congestion drops show up here and
// nowhere else.
type Stats struct {
	FramesSent     uint64
	FramesDeferred uint64
	FramesDropped  uint64
	FramesReceived uint64
	AcksReceived   uint64
	RefreshesSent  uint64

	EventsIn  uint64
	EventsOut uint64
	AudioIn   uint64
	AudioOut  uint64

	CacheHits     uint64
	CacheMisses   uint64
	BlobsSent     uint64
	BlobsReceived uint64

	// Malformed counts messages discarded because they did not parse
	// or failed verification.
	Malformed uint64
}

// LogValue lets a Stats be logged as a group.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("frames_sent", s.FramesSent),
		slog.Uint64("frames_deferred", s.FramesDeferred),
		slog.Uint64("frames_dropped", s.FramesDropped),
		slog.Uint64("frames_received", s.FramesReceived),
		slog.Uint64("acks_received", s.AcksReceived),
		slog.Uint64("refreshes_sent", s.RefreshesSent),
		slog.Uint64("events_in", s.EventsIn),
		slog.Uint64("events_out", s.EventsOut),
		slog.Uint64("audio_in", s.AudioIn),
		slog.Uint64("audio_out", s.AudioOut),
		slog.Uint64("cache_hits", s.CacheHits),
		slog.Uint64("cache_misses", s.CacheMisses),
		slog.Uint64("blobs_sent", s.BlobsSent),
		slog.Uint64("blobs_received", s.BlobsReceived),
		slog.Uint64("malformed", s.Malformed),
	)
}
