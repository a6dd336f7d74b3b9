// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pump

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/shmlink/lib/bcache"
	"github.com/bureau-foundation/shmlink/lib/checksum"
	"github.com/bureau-foundation/shmlink/lib/congestion"
	"github.com/bureau-foundation/shmlink/lib/schema"
	"github.com/bureau-foundation/shmlink/lib/translate"
	"github.com/bureau-foundation/shmlink/link"
	"github.com/bureau-foundation/shmlink/segment"
)

// linkSender and localSender are the write halves a relay drives. The
// server role writes through blocking handles, the client role queues
// into non-blocking ones.
type linkSender interface {
	Send(link.Message) error
}

type localSender interface {
	Send(segment.Message) error
}

// outboxProgress is implemented by local sessions that queue output.
// Acknowledgements for link frames are then held until the frame's
// bytes have left the outbox, so a stalled local reader shows up as
// distance at the remote controller.
type outboxProgress interface {
	Queued() uint64
	Written() uint64
}

// unackedFrame is a link frame delivered into the local outbox whose
// acknowledgement waits for the outbox to pass offset.
type unackedFrame struct {
	stream uint32
	seq    uint64
	offset uint64
}

// relay is the state shared by both pump roles: congestion control,
// event translation, held frames and the cache bridge. It is owned by
// exactly one goroutine.
type relay struct {
	logger     *slog.Logger
	evalVideo  EvalVideoFunc
	controller *congestion.Controller
	translator translate.Translator
	cache      *bcache.Cache

	link  linkSender
	local localSender

	// backlog reports bytes queued for the link, for LinkState.
	backlog func() int

	// outbox, when set, delays acknowledgements; see outboxProgress.
	outbox  outboxProgress
	unacked []unackedFrame

	// sequences holds the last link sequence number assigned per
	// stream. Only transmitted frames consume a number.
	sequences map[uint32]uint64
	held      *heldFrames
	pending   *pendingResources

	stats Stats
}

func newRelay(options Options, logger *slog.Logger, linkSide linkSender, localSide localSender) *relay {
	return &relay{
		logger:    logger,
		evalVideo: options.evalVideo(),
		controller: congestion.New(congestion.Thresholds{
			SoftBlock: options.SoftBlock,
			Block:     options.Block,
		}),
		translator: translate.Translator{
			RedirectExit: options.RedirectExit,
			DeviceHintCP: options.DeviceHintCP,
		},
		cache:     options.Cache,
		link:      linkSide,
		local:     localSide,
		backlog:   func() int { return 0 },
		sequences: make(map[uint32]uint64),
		held:      newHeldFrames(),
		pending:   newPendingResources(),
	}
}

// announce sends the fallback device hint, if configured, to the local
// session. It must precede everything else the session receives.
func (r *relay) announce() error {
	hint, ok := r.translator.Announce()
	if !ok {
		return nil
	}
	r.logger.Debug("announcing fallback connection point", "target", hint.Target)
	return r.sendLocal(segment.NewEvent(hint))
}

func (r *relay) sendLocal(m segment.Message) error {
	if err := r.local.Send(m); err != nil {
		return fmt.Errorf("pump: delivering %s to local session: %w", m.Kind, err)
	}
	return nil
}

func (r *relay) sendLink(m link.Message) error {
	if err := r.link.Send(m); err != nil {
		return fmt.Errorf("pump: sending %s on link: %w", m.Kind, err)
	}
	return nil
}

// fromLocal handles one message from the local session. done reports
// that the session ended.
func (r *relay) fromLocal(m segment.Message) (done bool, err error) {
	switch m.Kind {
	case segment.KindFrame:
		return false, r.localFrame(m.Frame)
	case segment.KindAudio:
		r.stats.AudioOut++
		return false, r.sendLink(link.NewAudio(*m.Audio))
	case segment.KindEvent:
		r.stats.EventsOut++
		return false, r.sendLink(link.NewEvent(r.translator.Outbound(*m.Event)))
	case segment.KindResource:
		return false, r.localResource(*m.Resource)
	case segment.KindActivate:
		return false, r.sendLink(link.NewActivate(*m.Activate))
	case segment.KindClose:
		r.logger.Info("local session closed", "reason", m.Close.Reason)
		r.terminateLink("local session closed")
		return true, nil
	default:
		return false, nil
	}
}

// fromLink handles one message from the link. done reports that the
// pump must stop.
func (r *relay) fromLink(m link.Message) (done bool, err error) {
	switch m.Kind {
	case link.KindFrame:
		return false, r.linkFrame(m.Frame)
	case link.KindAck:
		r.stats.AcksReceived++
		r.controller.Ack(m.Ack.Stream, m.Ack.Seq)
		return false, r.flush(m.Ack.Stream)
	case link.KindEvent:
		return r.linkEvent(*m.Event)
	case link.KindAudio:
		r.stats.AudioIn++
		return false, r.sendLocal(segment.NewAudio(*m.Audio))
	case link.KindCacheRef:
		return false, r.cacheRef(m.CacheRef)
	case link.KindCacheRequest:
		return false, r.cacheRequest(m.CacheRequest)
	case link.KindCacheBlob:
		return false, r.cacheBlob(m.CacheBlob)
	case link.KindActivate:
		return false, r.linkActivate(*m.Activate)
	case link.KindTerminate:
		r.logger.Info("link terminated by peer", "reason", m.Terminate.Reason)
		r.terminateLocal("link terminated")
		return true, nil
	default:
		return false, nil
	}
}

// malformed records a message that was discarded.
func (r *relay) malformed(source string, err error) {
	r.stats.Malformed++
	r.logger.Warn("discarding malformed message", "source", source, "error", err)
}

// terminateLink and terminateLocal tell the other side that this pump
// is going away. Failures are expected when the handle already died.
func (r *relay) terminateLink(reason string) {
	if err := r.link.Send(link.NewTerminate(reason)); err != nil {
		r.logger.Debug("terminate not delivered to link", "error", err)
	}
}

func (r *relay) terminateLocal(reason string) {
	if err := r.local.Send(segment.NewClose(reason)); err != nil {
		r.logger.Debug("close not delivered to local session", "error", err)
	}
}

func (r *relay) localFrame(frame *schema.Frame) error {
	if err := frame.Validate(); err != nil {
		r.malformed("local", err)
		return nil
	}

	candidate := *frame
	candidate.Seq = r.sequences[frame.Stream] + 1
	verdict := r.controller.Admit(&candidate)

	if verdict.Allows(&candidate) {
		if frame.Full {
			// A newer full frame supersedes whatever was held.
			r.held.take(frame.Stream)
		} else {
			r.held.patch(frame)
		}
		return r.transmit(&candidate, verdict)
	}

	if frame.Full {
		r.stats.FramesDeferred++
		r.held.hold(frame)
		r.logger.Debug("holding full frame", "stream", frame.Stream, "verdict", verdict,
			"distance", r.controller.Distance(frame.Stream))
		return nil
	}

	r.stats.FramesDropped++
	if !r.held.patch(frame) {
		r.held.markStale(frame.Stream)
	}
	return nil
}

// transmit encodes and sends frame under the link sequence number it
// already carries, and records the submission.
func (r *relay) transmit(frame *schema.Frame, verdict congestion.Verdict) error {
	state := LinkState{
		Distance:   r.controller.Distance(frame.Stream),
		Verdict:    verdict,
		Thresholds: r.controller.Thresholds(),
		Backlog:    r.backlog(),
	}
	params := r.evalVideo(state, frame.Stream, frame)
	video, err := link.EncodeFrame(frame, frame.Seq, params.Compression)
	if err != nil {
		return fmt.Errorf("pump: %w", err)
	}
	if err := r.sendLink(link.NewFrame(video)); err != nil {
		return err
	}
	r.sequences[frame.Stream] = frame.Seq
	r.controller.Submit(frame.Stream, frame.Seq)
	r.stats.FramesSent++
	return nil
}

// flush runs after an acknowledgement for stream: a held full frame is
// sent once admissible, and a stale stream with nothing held asks the
// local producer for a full frame once the link is fully open again.
func (r *relay) flush(stream uint32) error {
	if held := r.held.peek(stream); held != nil {
		candidate := *held
		candidate.Seq = r.sequences[stream] + 1
		verdict := r.controller.Admit(&candidate)
		if !verdict.Allows(&candidate) {
			return nil
		}
		r.held.take(stream)
		r.logger.Debug("sending held full frame", "stream", stream, "seq", candidate.Seq)
		return r.transmit(&candidate, verdict)
	}
	if r.held.isStale(stream) && r.controller.Current(stream) == congestion.AdmitFull {
		r.held.clearStale(stream)
		r.stats.RefreshesSent++
		r.logger.Debug("requesting full frame after drops", "stream", stream)
		return r.sendLocal(segment.NewEvent(schema.NewRefresh(stream)))
	}
	return nil
}

func (r *relay) linkFrame(video *link.VideoFrame) error {
	frame, err := video.Frame()
	if err != nil {
		r.malformed("link", err)
		return nil
	}
	r.stats.FramesReceived++
	if err := r.sendLocal(segment.NewFrame(frame)); err != nil {
		return err
	}
	if r.outbox == nil {
		return r.sendLink(link.NewAck(frame.Stream, frame.Seq))
	}
	r.unacked = append(r.unacked, unackedFrame{stream: frame.Stream, seq: frame.Seq, offset: r.outbox.Queued()})
	return r.releaseAcks()
}

// releaseAcks acknowledges the link frames whose bytes have been
// written to the local session.
func (r *relay) releaseAcks() error {
	if r.outbox == nil {
		return nil
	}
	written := r.outbox.Written()
	released := 0
	for _, frame := range r.unacked {
		if frame.offset > written {
			break
		}
		if err := r.sendLink(link.NewAck(frame.stream, frame.seq)); err != nil {
			return err
		}
		released++
	}
	r.unacked = r.unacked[released:]
	if len(r.unacked) == 0 {
		r.unacked = nil
	}
	return nil
}

func (r *relay) linkEvent(event schema.Event) (bool, error) {
	if !event.Kind.Known() {
		r.malformed("link", fmt.Errorf("unknown event kind %d", event.Kind))
		return false, nil
	}
	r.stats.EventsIn++
	translated, disposition := r.translator.Inbound(event)
	if translated.Kind != event.Kind {
		r.logger.Info("redirecting exit", "target", translated.Target)
	}
	if err := r.sendLocal(segment.NewEvent(translated)); err != nil {
		return false, err
	}
	if disposition == translate.DeliverAndTerminate {
		r.logger.Info("exit from link, ending session")
		return true, nil
	}
	return false, nil
}

func (r *relay) linkActivate(activation schema.Activation) error {
	err := r.local.Send(segment.NewActivate(activation))
	if errors.Is(err, segment.ErrAlreadyActivated) {
		r.logger.Debug("ignoring repeated activation", "kind", activation.Kind)
		return nil
	}
	if err != nil {
		return fmt.Errorf("pump: activating local session: %w", err)
	}
	r.logger.Info("local session activated", "kind", activation.Kind, "title", activation.Title)
	return nil
}

// localResource sends a resource from the local session. With a cache
// only the checksum crosses the link until the peer asks for the blob.
func (r *relay) localResource(resource schema.Resource) error {
	if r.cache == nil {
		blob, _ := link.NewCacheBlob(resource)
		r.stats.BlobsSent++
		return r.sendLink(link.NewCacheBlobMessage(blob))
	}
	sum := checksum.Sum(resource.Data)
	r.pending.add(sum, resource)
	return r.sendLink(link.NewCacheRef(link.CacheRef{
		Checksum: sum.String(),
		Kind:     resource.Kind,
		Name:     resource.Name,
		Size:     uint32(len(resource.Data)),
	}))
}

func (r *relay) cacheRef(ref *link.CacheRef) error {
	sum, err := ref.Sum()
	if err != nil {
		r.malformed("link", err)
		return nil
	}
	if r.cache != nil {
		data, err := r.cache.Lookup(sum)
		if err == nil {
			r.stats.CacheHits++
			return r.sendLocal(segment.NewResource(schema.Resource{Kind: ref.Kind, Name: ref.Name, Data: data}))
		}
		if !errors.Is(err, bcache.ErrNotFound) {
			r.logger.Warn("cache lookup failed, requesting blob", "checksum", sum, "error", err)
		}
	}
	r.stats.CacheMisses++
	return r.sendLink(link.NewCacheRequest(sum))
}

func (r *relay) cacheRequest(request *link.CacheRequest) error {
	sum, err := request.Sum()
	if err != nil {
		r.malformed("link", err)
		return nil
	}
	resource, ok := r.pending.get(sum)
	if !ok && r.cache != nil {
		if data, err := r.cache.Lookup(sum); err == nil {
			resource, ok = schema.Resource{Kind: schema.ResourceBlob, Data: data}, true
		}
	}
	if !ok {
		r.logger.Warn("peer requested unknown resource", "checksum", sum)
		return nil
	}
	blob, _ := link.NewCacheBlob(resource)
	r.stats.BlobsSent++
	return r.sendLink(link.NewCacheBlobMessage(blob))
}

func (r *relay) cacheBlob(blob *link.CacheBlob) error {
	sum, err := blob.Verify()
	if err != nil {
		r.malformed("link", err)
		return nil
	}
	r.stats.BlobsReceived++
	if r.cache != nil {
		if err := r.cache.Store(sum, blob.Data); err != nil {
			r.logger.Warn("storing blob in cache", "checksum", sum, "error", err)
		}
	}
	return r.sendLocal(segment.NewResource(blob.Resource()))
}
