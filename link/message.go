// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package link

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/shmlink/lib/checksum"
	"github.com/bureau-foundation/shmlink/lib/codec"
	"github.com/bureau-foundation/shmlink/lib/compress"
	"github.com/bureau-foundation/shmlink/lib/framing"
	"github.com/bureau-foundation/shmlink/lib/schema"
)

// Kind is the frame type byte of a link message.
type Kind byte

const (
	// KindFrame carries a video frame. Body: VideoFrame.
	KindFrame Kind = 0x01

	// KindAck acknowledges a video frame. Body: Ack.
	KindAck Kind = 0x02

	// KindEvent carries a control event. Body: schema.Event.
	KindEvent Kind = 0x03

	// KindAudio carries PCM audio. Body: schema.Audio.
	KindAudio Kind = 0x04

	// KindCacheRef references a cacheable resource by checksum.
	// Body: CacheRef.
	KindCacheRef Kind = 0x05

	// KindCacheRequest asks the peer for the blob behind a CacheRef.
	// Body: CacheRequest.
	KindCacheRequest Kind = 0x06

	// KindCacheBlob carries a cacheable resource in full.
	// Body: CacheBlob.
	KindCacheBlob Kind = 0x07

	// KindActivate announces the identity of the segment the link
	// feeds. Body: schema.Activation.
	KindActivate Kind = 0x08

	// KindTerminate ends the link. Body: Terminate.
	KindTerminate Kind = 0x09
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindFrame:
		return "frame"
	case KindAck:
		return "ack"
	case KindEvent:
		return "event"
	case KindAudio:
		return "audio"
	case KindCacheRef:
		return "cache_ref"
	case KindCacheRequest:
		return "cache_request"
	case KindCacheBlob:
		return "cache_blob"
	case KindActivate:
		return "activate"
	case KindTerminate:
		return "terminate"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(k))
	}
}

var (
	// ErrUnknownKind is wrapped by Decode for a frame type outside the
	// protocol. The frame boundary is intact, so the link remains
	// usable; only the message is discarded.
	ErrUnknownKind = errors.New("link: unknown message kind")

	// ErrMalformed is wrapped by Decode when a body does not parse or
	// is inconsistent. As with ErrUnknownKind, only the message is
	// lost.
	ErrMalformed = errors.New("link: malformed message")
)

// VideoFrame is a frame as transmitted: geometry plus a possibly
// compressed payload.
type VideoFrame struct {
	Stream      uint32        `cbor:"s"`
	Seq         uint64        `cbor:"q"`
	Full        bool          `cbor:"f,omitempty"`
	Region      schema.Region `cbor:"r"`
	Width       uint32        `cbor:"w"`
	Height      uint32        `cbor:"h"`
	Compression compress.Tag  `cbor:"c"`
	RawSize     uint32        `cbor:"z"`
	Payload     []byte        `cbor:"d,omitempty"`
}

// EncodeFrame builds the transmitted form of frame under link sequence
// number seq, compressing with the requested tag. The tag actually used
// is recorded in the result.
func EncodeFrame(frame *schema.Frame, seq uint64, requested compress.Tag) (VideoFrame, error) {
	payload, used, err := compress.Encode(frame.Data, requested)
	if err != nil {
		return VideoFrame{}, fmt.Errorf("link: compressing frame stream %d: %w", frame.Stream, err)
	}
	return VideoFrame{
		Stream:      frame.Stream,
		Seq:         seq,
		Full:        frame.Full,
		Region:      frame.Region,
		Width:       frame.Width,
		Height:      frame.Height,
		Compression: used,
		RawSize:     uint32(len(frame.Data)),
		Payload:     payload,
	}, nil
}

// Frame decompresses the payload and returns the frame.
func (v *VideoFrame) Frame() (schema.Frame, error) {
	if v.RawSize > framing.MaxPayloadLength {
		return schema.Frame{}, fmt.Errorf("%w: frame raw size %d", ErrMalformed, v.RawSize)
	}
	data, err := compress.Decode(v.Payload, v.Compression, int(v.RawSize))
	if err != nil {
		return schema.Frame{}, fmt.Errorf("%w: frame stream %d seq %d: %v", ErrMalformed, v.Stream, v.Seq, err)
	}
	frame := schema.Frame{
		Stream: v.Stream,
		Seq:    v.Seq,
		Full:   v.Full,
		Region: v.Region,
		Width:  v.Width,
		Height: v.Height,
		Data:   data,
	}
	if err := frame.Validate(); err != nil {
		return schema.Frame{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return frame, nil
}

// Ack acknowledges that the peer consumed frame Seq of Stream.
type Ack struct {
	Stream uint32 `cbor:"s"`
	Seq    uint64 `cbor:"q"`
}

// CacheRef names a resource the sender can supply. Checksum is the
// printable encoding.
type CacheRef struct {
	Checksum string              `cbor:"c"`
	Kind     schema.ResourceKind `cbor:"k"`
	Name     string              `cbor:"n,omitempty"`
	Size     uint32              `cbor:"z"`
}

// Sum parses the checksum.
func (r *CacheRef) Sum() (checksum.Checksum, error) {
	return checksum.Decode(r.Checksum, checksum.MaxEncodedLength)
}

// CacheRequest asks for the blob behind a CacheRef.
type CacheRequest struct {
	Checksum string `cbor:"c"`
}

// Sum parses the checksum.
func (r *CacheRequest) Sum() (checksum.Checksum, error) {
	return checksum.Decode(r.Checksum, checksum.MaxEncodedLength)
}

// CacheBlob carries a resource in full.
type CacheBlob struct {
	Checksum string              `cbor:"c"`
	Kind     schema.ResourceKind `cbor:"k"`
	Name     string              `cbor:"n,omitempty"`
	Data     []byte              `cbor:"d,omitempty"`
}

// Sum parses the checksum.
func (b *CacheBlob) Sum() (checksum.Checksum, error) {
	return checksum.Decode(b.Checksum, checksum.MaxEncodedLength)
}

// Verify checks that Data hashes to Checksum.
func (b *CacheBlob) Verify() (checksum.Checksum, error) {
	sum, err := b.Sum()
	if err != nil {
		return checksum.Checksum{}, err
	}
	if actual := checksum.Sum(b.Data); actual != sum {
		return checksum.Checksum{}, fmt.Errorf("%w: blob %s hashes to %s", ErrMalformed, sum, actual)
	}
	return sum, nil
}

// Resource converts the blob to the local representation.
func (b *CacheBlob) Resource() schema.Resource {
	return schema.Resource{Kind: b.Kind, Name: b.Name, Data: b.Data}
}

// NewCacheBlob builds a blob message body for resource, naming it by
// its checksum.
func NewCacheBlob(resource schema.Resource) (CacheBlob, checksum.Checksum) {
	sum := checksum.Sum(resource.Data)
	return CacheBlob{
		Checksum: sum.String(),
		Kind:     resource.Kind,
		Name:     resource.Name,
		Data:     resource.Data,
	}, sum
}

// Terminate ends the link.
type Terminate struct {
	Reason string `cbor:"r,omitempty"`
}

// Message is one link message. Kind selects the populated field.
type Message struct {
	Kind Kind

	Frame        *VideoFrame
	Ack          *Ack
	Event        *schema.Event
	Audio        *schema.Audio
	CacheRef     *CacheRef
	CacheRequest *CacheRequest
	CacheBlob    *CacheBlob
	Activate     *schema.Activation
	Terminate    *Terminate
}

// Constructors for each kind.

func NewFrame(frame VideoFrame) Message { return Message{Kind: KindFrame, Frame: &frame} }

func NewAck(stream uint32, seq uint64) Message {
	return Message{Kind: KindAck, Ack: &Ack{Stream: stream, Seq: seq}}
}

func NewEvent(event schema.Event) Message { return Message{Kind: KindEvent, Event: &event} }

func NewAudio(audio schema.Audio) Message { return Message{Kind: KindAudio, Audio: &audio} }

func NewCacheRef(ref CacheRef) Message { return Message{Kind: KindCacheRef, CacheRef: &ref} }

func NewCacheRequest(sum checksum.Checksum) Message {
	return Message{Kind: KindCacheRequest, CacheRequest: &CacheRequest{Checksum: sum.String()}}
}

func NewCacheBlobMessage(blob CacheBlob) Message {
	return Message{Kind: KindCacheBlob, CacheBlob: &blob}
}

func NewActivate(activation schema.Activation) Message {
	return Message{Kind: KindActivate, Activate: &activation}
}

func NewTerminate(reason string) Message {
	return Message{Kind: KindTerminate, Terminate: &Terminate{Reason: reason}}
}

// body returns the populated body for the message's kind.
func (m *Message) body() (any, error) {
	var body any
	switch m.Kind {
	case KindFrame:
		body = m.Frame
	case KindAck:
		body = m.Ack
	case KindEvent:
		body = m.Event
	case KindAudio:
		body = m.Audio
	case KindCacheRef:
		body = m.CacheRef
	case KindCacheRequest:
		body = m.CacheRequest
	case KindCacheBlob:
		body = m.CacheBlob
	case KindActivate:
		body = m.Activate
	case KindTerminate:
		body = m.Terminate
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, m.Kind)
	}
	return body, nil
}

// Encode returns the frame type and payload for m.
func Encode(m Message) (byte, []byte, error) {
	body, err := m.body()
	if err != nil {
		return 0, nil, err
	}
	payload, err := codec.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("link: encoding %s: %w", m.Kind, err)
	}
	return byte(m.Kind), payload, nil
}

// Decode parses a frame into a message. Errors wrap ErrUnknownKind or
// ErrMalformed.
func Decode(frame framing.Frame) (Message, error) {
	m := Message{Kind: Kind(frame.Type)}
	var target any
	switch m.Kind {
	case KindFrame:
		m.Frame = new(VideoFrame)
		target = m.Frame
	case KindAck:
		m.Ack = new(Ack)
		target = m.Ack
	case KindEvent:
		m.Event = new(schema.Event)
		target = m.Event
	case KindAudio:
		m.Audio = new(schema.Audio)
		target = m.Audio
	case KindCacheRef:
		m.CacheRef = new(CacheRef)
		target = m.CacheRef
	case KindCacheRequest:
		m.CacheRequest = new(CacheRequest)
		target = m.CacheRequest
	case KindCacheBlob:
		m.CacheBlob = new(CacheBlob)
		target = m.CacheBlob
	case KindActivate:
		m.Activate = new(schema.Activation)
		target = m.Activate
	case KindTerminate:
		m.Terminate = new(Terminate)
		target = m.Terminate
	default:
		return Message{}, fmt.Errorf("%w: %s", ErrUnknownKind, m.Kind)
	}
	if err := codec.Unmarshal(frame.Payload, target); err != nil {
		return Message{}, fmt.Errorf("%w: %s body: %v", ErrMalformed, m.Kind, err)
	}
	return m, nil
}

// IsMessageError reports whether err affects a single message only
// (unknown kind or malformed body), as opposed to the link itself.
func IsMessageError(err error) bool {
	return errors.Is(err, ErrUnknownKind) || errors.Is(err, ErrMalformed)
}
