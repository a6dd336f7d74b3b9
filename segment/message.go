// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package segment

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/shmlink/lib/codec"
	"github.com/bureau-foundation/shmlink/lib/framing"
	"github.com/bureau-foundation/shmlink/lib/schema"
)

// Kind is the frame type byte of a segment message.
type Kind byte

const (
	KindFrame    Kind = 0x01
	KindAudio    Kind = 0x02
	KindEvent    Kind = 0x03
	KindResource Kind = 0x04
	KindActivate Kind = 0x05
	KindClose    Kind = 0x06
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindFrame:
		return "frame"
	case KindAudio:
		return "audio"
	case KindEvent:
		return "event"
	case KindResource:
		return "resource"
	case KindActivate:
		return "activate"
	case KindClose:
		return "close"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(k))
	}
}

var (
	// ErrUnknownKind is wrapped by Decode for an unrecognized frame
	// type. The session stays usable.
	ErrUnknownKind = errors.New("segment: unknown message kind")

	// ErrMalformed is wrapped by Decode for a body that does not
	// parse. The session stays usable.
	ErrMalformed = errors.New("segment: malformed message")
)

// Close is the body of a close message.
type Close struct {
	Reason string `cbor:"r,omitempty"`
}

// Message is one segment message. Kind selects the populated field.
type Message struct {
	Kind Kind

	Frame    *schema.Frame
	Audio    *schema.Audio
	Event    *schema.Event
	Resource *schema.Resource
	Activate *schema.Activation
	Close    *Close
}

func NewFrame(frame schema.Frame) Message { return Message{Kind: KindFrame, Frame: &frame} }

func NewAudio(audio schema.Audio) Message { return Message{Kind: KindAudio, Audio: &audio} }

func NewEvent(event schema.Event) Message { return Message{Kind: KindEvent, Event: &event} }

func NewResource(resource schema.Resource) Message {
	return Message{Kind: KindResource, Resource: &resource}
}

func NewActivate(activation schema.Activation) Message {
	return Message{Kind: KindActivate, Activate: &activation}
}

func NewClose(reason string) Message {
	return Message{Kind: KindClose, Close: &Close{Reason: reason}}
}

// Encode returns the frame type and payload for m.
func Encode(m Message) (byte, []byte, error) {
	var body any
	switch m.Kind {
	case KindFrame:
		body = m.Frame
	case KindAudio:
		body = m.Audio
	case KindEvent:
		body = m.Event
	case KindResource:
		body = m.Resource
	case KindActivate:
		body = m.Activate
	case KindClose:
		body = m.Close
	default:
		return 0, nil, fmt.Errorf("%w: %s", ErrUnknownKind, m.Kind)
	}
	payload, err := codec.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("segment: encoding %s: %w", m.Kind, err)
	}
	return byte(m.Kind), payload, nil
}

// Decode parses a frame into a message.
func Decode(frame framing.Frame) (Message, error) {
	m := Message{Kind: Kind(frame.Type)}
	var target any
	switch m.Kind {
	case KindFrame:
		m.Frame = new(schema.Frame)
		target = m.Frame
	case KindAudio:
		m.Audio = new(schema.Audio)
		target = m.Audio
	case KindEvent:
		m.Event = new(schema.Event)
		target = m.Event
	case KindResource:
		m.Resource = new(schema.Resource)
		target = m.Resource
	case KindActivate:
		m.Activate = new(schema.Activation)
		target = m.Activate
	case KindClose:
		m.Close = new(Close)
		target = m.Close
	default:
		return Message{}, fmt.Errorf("%w: %s", ErrUnknownKind, m.Kind)
	}
	if err := codec.Unmarshal(frame.Payload, target); err != nil {
		return Message{}, fmt.Errorf("%w: %s body: %v", ErrMalformed, m.Kind, err)
	}
	return m, nil
}

// IsMessageError reports whether err affects one message only.
func IsMessageError(err error) bool {
	return errors.Is(err, ErrUnknownKind) || errors.Is(err, ErrMalformed)
}
