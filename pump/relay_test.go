// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pump

import (
	"fmt"
	"testing"

	"github.com/bureau-foundation/shmlink/lib/checksum"
	"github.com/bureau-foundation/shmlink/lib/compress"
	"github.com/bureau-foundation/shmlink/lib/congestion"
	"github.com/bureau-foundation/shmlink/lib/schema"
	"github.com/bureau-foundation/shmlink/link"
	"github.com/bureau-foundation/shmlink/segment"
)

func TestPendingResourcesEvictOldest(t *testing.T) {
	t.Parallel()

	pending := newPendingResources()
	var sums []checksum.Checksum
	for index := range pendingLimit + 3 {
		data := []byte(fmt.Sprintf("resource %d", index))
		sum := checksum.Sum(data)
		sums = append(sums, sum)
		pending.add(sum, schema.Resource{Kind: schema.ResourceBlob, Data: data})
	}
	if pending.len() != pendingLimit {
		t.Fatalf("len = %d, want %d", pending.len(), pendingLimit)
	}
	for index, sum := range sums {
		_, ok := pending.get(sum)
		if want := index >= 3; ok != want {
			t.Errorf("resource %d present = %v, want %v", index, ok, want)
		}
	}

	// Re-adding an existing entry does not evict anything.
	pending.add(sums[len(sums)-1], schema.Resource{})
	if _, ok := pending.get(sums[3]); !ok {
		t.Error("re-adding evicted an entry")
	}
}

func TestHeldFramesPatch(t *testing.T) {
	t.Parallel()

	held := newHeldFrames()
	if held.patch(ptr(partialFrame(1, 0, 0, 1, 1, 9))) {
		t.Fatal("patch succeeded with nothing held")
	}

	original := fullFrame(1, 0x01)
	held.hold(&original)
	if !held.patch(ptr(partialFrame(1, 6, 2, 2, 3, 0xEE))) {
		t.Fatal("patch failed")
	}
	if original.Data[0] != 0x01 || pixel(original, 6, 2) != 0x01 {
		t.Error("hold did not copy the frame; the producer's buffer was modified")
	}

	frame := *held.peek(1)
	for _, point := range [][2]int{{6, 2}, {7, 2}, {6, 4}, {7, 4}} {
		if got := pixel(frame, point[0], point[1]); got != 0xEE {
			t.Errorf("pixel%v = %#x, want patched", point, got)
		}
	}
	for _, point := range [][2]int{{5, 2}, {6, 1}, {6, 5}, {0, 0}} {
		if got := pixel(frame, point[0], point[1]); got != 0x01 {
			t.Errorf("pixel%v = %#x, want original", point, got)
		}
	}

	resized := partialFrame(1, 0, 0, 1, 1, 0)
	resized.Width = surface * 2
	if held.patch(&resized) || held.peek(1) != nil {
		t.Error("patch with a different surface size kept the held frame")
	}
}

func TestHeldFramesStale(t *testing.T) {
	t.Parallel()

	held := newHeldFrames()
	held.markStale(2)
	if !held.isStale(2) || held.isStale(3) {
		t.Fatal("stale tracking is not per stream")
	}
	held.hold(ptr(fullFrame(2, 0)))
	if held.isStale(2) {
		t.Error("holding a full frame left the stream stale")
	}
	if held.take(2) == nil || held.take(2) != nil {
		t.Error("take did not remove the held frame")
	}
}

func TestDefaultEvalVideo(t *testing.T) {
	t.Parallel()

	if got := DefaultEvalVideo(LinkState{Verdict: congestion.AdmitFull}, 0, nil); got.Compression != compress.LZ4 {
		t.Errorf("unblocked compression = %s, want lz4", got.Compression)
	}
	if got := DefaultEvalVideo(LinkState{Verdict: congestion.AdmitPartialOnly}, 0, nil); got.Compression != compress.Zstd {
		t.Errorf("soft-blocked compression = %s, want zstd", got.Compression)
	}
}

func TestHeldFramesPatchRejectsMismatchedBuffers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target schema.Frame
		region schema.Frame
	}{
		{
			name:   "held frame without data",
			target: schema.Frame{Stream: 1, Full: true, Width: surface, Height: surface},
			region: partialFrame(1, 0, 0, 1, 1, 0xAA),
		},
		{
			name:   "region data short",
			target: fullFrame(1, 0),
			region: func() schema.Frame {
				frame := partialFrame(1, 0, 0, 2, 2, 0xAA)
				frame.Data = frame.Data[:4]
				return frame
			}(),
		},
		{
			name:   "region outside surface",
			target: fullFrame(1, 0),
			region: partialFrame(1, surface-1, 0, 2, 1, 0xAA),
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			held := newHeldFrames()
			held.held[1] = &test.target
			if held.patch(&test.region) {
				t.Fatal("patch succeeded")
			}
			if held.peek(1) != nil {
				t.Error("held frame kept after a failed patch")
			}
		})
	}
}

// recorder captures what a relay sends on each side.
type recorder struct {
	link  []link.Message
	local []segment.Message
}

type linkRecorder struct{ *recorder }

func (r linkRecorder) Send(m link.Message) error {
	r.link = append(r.link, m)
	return nil
}

type localRecorder struct{ *recorder }

func (r localRecorder) Send(m segment.Message) error {
	r.local = append(r.local, m)
	return nil
}

func newTestRelay(options Options) (*relay, *recorder) {
	sent := &recorder{}
	return newRelay(options, quietLogger(), linkRecorder{sent}, localRecorder{sent}), sent
}

func TestRelayOversizeLocalFrame(t *testing.T) {
	t.Parallel()
	r, sent := newTestRelay(Options{SoftBlock: 0, Block: 100})

	huge := schema.Frame{Stream: 1, Full: true, Width: 1 << 31, Height: 1 << 31}
	if done, err := r.fromLocal(segment.NewFrame(huge)); err != nil || done {
		t.Fatalf("fromLocal(huge) = %v, %v", done, err)
	}
	region := schema.Frame{
		Stream: 1, Width: 1 << 31, Height: 1 << 31,
		Region: schema.Region{Width: 1, Height: 1},
		Data:   make([]byte, schema.BytesPerPixel),
	}
	if done, err := r.fromLocal(segment.NewFrame(region)); err != nil || done {
		t.Fatalf("fromLocal(region) = %v, %v", done, err)
	}

	if r.stats.Malformed != 2 {
		t.Errorf("Malformed = %d, want both frames rejected", r.stats.Malformed)
	}
	if r.held.peek(1) != nil || r.stats.FramesDeferred != 0 {
		t.Error("an oversize frame was held")
	}
	if len(sent.link) != 0 {
		t.Errorf("sent %d link messages", len(sent.link))
	}
}

// fakeOutbox stands in for a local session's byte counters.
type fakeOutbox struct {
	queued, written uint64
}

func (o *fakeOutbox) Queued() uint64  { return o.queued }
func (o *fakeOutbox) Written() uint64 { return o.written }

func TestRelayAcksAfterLocalDelivery(t *testing.T) {
	t.Parallel()
	r, sent := newTestRelay(Options{})
	outbox := &fakeOutbox{}
	r.outbox = outbox

	deliver := func(seq uint64) {
		t.Helper()
		frame := fullFrame(4, byte(seq))
		video, err := link.EncodeFrame(&frame, seq, compress.None)
		if err != nil {
			t.Fatalf("EncodeFrame: %v", err)
		}
		outbox.queued += 1000
		if _, err := r.fromLink(link.NewFrame(video)); err != nil {
			t.Fatalf("fromLink: %v", err)
		}
	}
	acked := func() []uint64 {
		var seqs []uint64
		for _, m := range sent.link {
			if m.Kind == link.KindAck {
				seqs = append(seqs, m.Ack.Seq)
			}
		}
		return seqs
	}

	deliver(1)
	deliver(2)
	deliver(3)
	if len(sent.local) != 3 {
		t.Fatalf("delivered %d frames locally, want 3", len(sent.local))
	}
	if got := acked(); len(got) != 0 {
		t.Fatalf("acked %v with nothing written", got)
	}

	outbox.written = 1999
	if err := r.releaseAcks(); err != nil {
		t.Fatal(err)
	}
	if got := acked(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("acked %v, want [1]", got)
	}

	outbox.written = 3000
	if err := r.releaseAcks(); err != nil {
		t.Fatal(err)
	}
	if got := acked(); len(got) != 3 || got[2] != 3 {
		t.Fatalf("acked %v, want [1 2 3]", got)
	}
	if len(r.unacked) != 0 {
		t.Errorf("%d acknowledgements still waiting", len(r.unacked))
	}
}

func TestRelayAcksImmediatelyWithoutOutbox(t *testing.T) {
	t.Parallel()
	r, sent := newTestRelay(Options{})
	frame := fullFrame(2, 0)
	video, err := link.EncodeFrame(&frame, 9, compress.None)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	if _, err := r.fromLink(link.NewFrame(video)); err != nil {
		t.Fatalf("fromLink: %v", err)
	}
	if len(sent.link) != 1 || sent.link[0].Kind != link.KindAck || sent.link[0].Ack.Seq != 9 {
		t.Fatalf("link messages = %+v, want ack 9", sent.link)
	}
}

func ptr[T any](value T) *T { return &value }
