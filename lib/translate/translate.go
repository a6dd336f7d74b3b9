// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package translate rewrites the few control events whose meaning
// changes when they cross the proxy.
//
// Two rules exist. An exit event arriving from the remote side would
// close the local window; when a redirect connection point is
// configured it becomes a device hint telling the local client to move
// to that connection point instead. And a newly established local
// session can be told, before anything else reaches it, which
// connection point to fall back to if its current server disappears.
//
// Every other event passes through unmodified and in order.
package translate

import "github.com/bureau-foundation/shmlink/lib/schema"

// Disposition tells the pump what to do after delivering a translated
// inbound event.
type Disposition uint8

const (
	// Deliver means deliver the event and keep running.
	Deliver Disposition = iota

	// DeliverAndTerminate means deliver the event, then end the
	// session: the remote side asked for the local segment to close
	// and nothing redirected it.
	DeliverAndTerminate
)

// Translator holds the redirect configuration of one pump. The zero
// value passes everything through.
type Translator struct {
	// RedirectExit is the connection point inbound exit events are
	// redirected to. Empty disables the rewrite.
	RedirectExit string

	// DeviceHintCP is announced to newly established local sessions
	// as their fallback connection point. Empty disables the
	// announcement.
	DeviceHintCP string
}

// Inbound translates an event travelling from the remote link to the
// local session.
func (t Translator) Inbound(event schema.Event) (schema.Event, Disposition) {
	if !event.IsTermination() {
		return event, Deliver
	}
	if t.RedirectExit == "" {
		return event, DeliverAndTerminate
	}
	return schema.NewDeviceHint(t.RedirectExit, schema.HintRedirect), Deliver
}

// Outbound translates an event travelling from the local session to the
// remote link. No outbound rewrite exists; events keep their order and
// content.
func (t Translator) Outbound(event schema.Event) schema.Event {
	return event
}

// Announce returns the device hint to send to a newly established local
// session, and false if none is configured.
func (t Translator) Announce() (schema.Event, bool) {
	if t.DeviceHintCP == "" {
		return schema.Event{}, false
	}
	return schema.NewDeviceHint(t.DeviceHintCP, schema.HintFallback), true
}
