// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package link

import (
	"bytes"
	"errors"
	"testing"

	"github.com/bureau-foundation/shmlink/lib/checksum"
	"github.com/bureau-foundation/shmlink/lib/compress"
	"github.com/bureau-foundation/shmlink/lib/framing"
	"github.com/bureau-foundation/shmlink/lib/schema"
)

func roundTrip(t *testing.T, m Message) Message {
	t.Helper()
	frameType, payload, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode(%s): %v", m.Kind, err)
	}
	decoded, err := Decode(framing.Frame{Type: frameType, Payload: payload})
	if err != nil {
		t.Fatalf("Decode(%s): %v", m.Kind, err)
	}
	if decoded.Kind != m.Kind {
		t.Fatalf("kind = %s, want %s", decoded.Kind, m.Kind)
	}
	return decoded
}

func fullFrame(stream uint32, width, height uint32, fill byte) *schema.Frame {
	return &schema.Frame{
		Stream: stream,
		Full:   true,
		Width:  width,
		Height: height,
		Data:   bytes.Repeat([]byte{fill}, int(width*height*schema.BytesPerPixel)),
	}
}

func TestFrameCompressionRoundTrip(t *testing.T) {
	t.Parallel()

	for _, tag := range []compress.Tag{compress.None, compress.LZ4, compress.Zstd} {
		t.Run(tag.String(), func(t *testing.T) {
			t.Parallel()
			frame := fullFrame(3, 64, 32, 0x7f)
			video, err := EncodeFrame(frame, 12, tag)
			if err != nil {
				t.Fatalf("EncodeFrame: %v", err)
			}
			if video.Seq != 12 {
				t.Errorf("Seq = %d, want the link sequence 12", video.Seq)
			}
			if tag != compress.None && len(video.Payload) >= len(frame.Data) {
				t.Errorf("uniform frame did not compress with %s: %d bytes", tag, len(video.Payload))
			}

			decoded := roundTrip(t, NewFrame(video))
			got, err := decoded.Frame.Frame()
			if err != nil {
				t.Fatalf("Frame: %v", err)
			}
			if !bytes.Equal(got.Data, frame.Data) || got.Width != 64 || got.Height != 32 || !got.Full {
				t.Errorf("decoded frame differs: %dx%d full=%v %d bytes", got.Width, got.Height, got.Full, len(got.Data))
			}
		})
	}
}

func TestFrameGeometryMismatchIsMalformed(t *testing.T) {
	t.Parallel()

	frame := fullFrame(1, 8, 8, 1)
	video, err := EncodeFrame(frame, 1, compress.None)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	video.Width = 9
	if _, err := video.Frame(); !errors.Is(err, ErrMalformed) {
		t.Errorf("Frame with wrong geometry: err = %v, want ErrMalformed", err)
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := Decode(framing.Frame{Type: 0xEE, Payload: []byte{0xa0}})
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err = %v, want ErrUnknownKind", err)
	}
	if !IsMessageError(err) {
		t.Error("IsMessageError(unknown kind) = false")
	}
	if _, _, err := Encode(Message{Kind: 0xEE}); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Encode unknown kind: err = %v", err)
	}
}

func TestDecodeMalformedBody(t *testing.T) {
	t.Parallel()

	// A CBOR text string where an Ack map is expected.
	_, err := Decode(framing.Frame{Type: byte(KindAck), Payload: []byte{0x63, 'a', 'b', 'c'}})
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestCacheBlobVerify(t *testing.T) {
	t.Parallel()

	resource := schema.Resource{Kind: schema.ResourceFont, Name: "mono.ttf", Data: []byte("glyphs")}
	blob, sum := NewCacheBlob(resource)

	decoded := roundTrip(t, NewCacheBlobMessage(blob))
	verified, err := decoded.CacheBlob.Verify()
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verified != sum {
		t.Errorf("verified checksum = %s, want %s", verified, sum)
	}
	if got := decoded.CacheBlob.Resource(); got.Name != "mono.ttf" || got.Kind != schema.ResourceFont {
		t.Errorf("Resource = %+v", got)
	}

	decoded.CacheBlob.Data = []byte("tampered")
	if _, err := decoded.CacheBlob.Verify(); !errors.Is(err, ErrMalformed) {
		t.Errorf("Verify tampered blob: err = %v, want ErrMalformed", err)
	}

	decoded.CacheBlob.Checksum = "not a checksum"
	if _, err := decoded.CacheBlob.Verify(); !errors.Is(err, checksum.ErrMalformed) {
		t.Errorf("Verify bad checksum text: err = %v, want checksum.ErrMalformed", err)
	}
}

func TestControlMessages(t *testing.T) {
	t.Parallel()

	sum := checksum.Sum([]byte("icon"))

	ack := roundTrip(t, NewAck(4, 99)).Ack
	if ack.Stream != 4 || ack.Seq != 99 {
		t.Errorf("Ack = %+v", ack)
	}

	request := roundTrip(t, NewCacheRequest(sum)).CacheRequest
	if got, err := request.Sum(); err != nil || got != sum {
		t.Errorf("CacheRequest.Sum = %s, %v", got, err)
	}

	ref := roundTrip(t, NewCacheRef(CacheRef{Checksum: sum.String(), Kind: schema.ResourceIcon, Size: 4})).CacheRef
	if got, err := ref.Sum(); err != nil || got != sum || ref.Kind != schema.ResourceIcon {
		t.Errorf("CacheRef = %+v (sum %s, %v)", ref, got, err)
	}

	event := roundTrip(t, NewEvent(schema.NewDeviceHint("/run/display/a", schema.HintRedirect))).Event
	if event.Kind != schema.EventDeviceHint || event.Target != "/run/display/a" || event.Hint != schema.HintRedirect {
		t.Errorf("Event = %+v", event)
	}

	activation := roundTrip(t, NewActivate(schema.Activation{Kind: schema.SegmentPopup, Title: "menu"})).Activate
	if activation.Kind != schema.SegmentPopup || activation.Title != "menu" {
		t.Errorf("Activate = %+v", activation)
	}

	if terminate := roundTrip(t, NewTerminate("bye")).Terminate; terminate.Reason != "bye" {
		t.Errorf("Terminate = %+v", terminate)
	}
}
