// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "fmt"

// EventKind is the closed set of control event classes.
type EventKind uint8

const (
	// EventInput carries an input sample (key, pointer, touch). Data
	// is opaque to the proxy.
	EventInput EventKind = iota + 1

	// EventExit is the termination class: the sender wants the
	// receiving segment closed.
	EventExit

	// EventDeviceHint is the device-hint class. Target names a local
	// connection point the receiver should use, either immediately
	// (HintRedirect) or when its current server goes away
	// (HintFallback).
	EventDeviceHint

	// EventDisplayHint carries preferred surface dimensions and
	// density. Data is opaque to the proxy.
	EventDisplayHint

	// EventRefresh asks the producer of a stream to submit a full
	// frame. The pump emits it after congestion caused a dirty region
	// to be dropped.
	EventRefresh

	// EventKeepalive is a no-op used by callers to prove liveness.
	EventKeepalive

	// EventMessage carries an application-defined text message in
	// Ident.
	EventMessage
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventInput:
		return "input"
	case EventExit:
		return "exit"
	case EventDeviceHint:
		return "device_hint"
	case EventDisplayHint:
		return "display_hint"
	case EventRefresh:
		return "refresh"
	case EventKeepalive:
		return "keepalive"
	case EventMessage:
		return "message"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Known reports whether k is one of the defined kinds.
func (k EventKind) Known() bool {
	return k >= EventInput && k <= EventMessage
}

// HintMode qualifies an EventDeviceHint.
type HintMode uint8

const (
	// HintRedirect tells the receiver to move to Target now.
	HintRedirect HintMode = iota + 1

	// HintFallback tells the receiver to use Target if its current
	// connection point goes away.
	HintFallback
)

// String returns the hint mode name.
func (m HintMode) String() string {
	switch m {
	case HintRedirect:
		return "redirect"
	case HintFallback:
		return "fallback"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// Event is a control event. Only the fields relevant to Kind are set.
type Event struct {
	Kind EventKind `cbor:"k"`

	// Stream scopes the event to a video stream where that matters
	// (EventRefresh, EventDisplayHint). Zero otherwise.
	Stream uint32 `cbor:"s,omitempty"`

	// Target is the connection point of an EventDeviceHint.
	Target string `cbor:"t,omitempty"`

	// Hint qualifies an EventDeviceHint.
	Hint HintMode `cbor:"m,omitempty"`

	// Ident is a short identifier or text (EventMessage, EventInput
	// device label).
	Ident string `cbor:"i,omitempty"`

	// Data is kind-specific opaque payload.
	Data []byte `cbor:"d,omitempty"`
}

// IsTermination reports whether the event belongs to the termination
// class.
func (e Event) IsTermination() bool {
	return e.Kind == EventExit
}

// String returns a compact description for logs.
func (e Event) String() string {
	switch e.Kind {
	case EventDeviceHint:
		return fmt.Sprintf("%s(%s %s)", e.Kind, e.Hint, e.Target)
	case EventRefresh, EventDisplayHint:
		return fmt.Sprintf("%s(stream %d)", e.Kind, e.Stream)
	default:
		return e.Kind.String()
	}
}

// NewDeviceHint builds a device-hint event.
func NewDeviceHint(target string, mode HintMode) Event {
	return Event{Kind: EventDeviceHint, Target: target, Hint: mode}
}

// NewRefresh builds a request for a full frame on stream.
func NewRefresh(stream uint32) Event {
	return Event{Kind: EventRefresh, Stream: stream}
}
