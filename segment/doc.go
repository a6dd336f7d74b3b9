// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package segment is the local side of the proxy: the shared-memory
// display session a producer or consumer attaches to, reached through a
// named connection point.
//
// A connection point is a unix socket <directory>/<name>. Names are
// validated by [ValidateName] before anything touches the filesystem,
// so a malformed name never consumes a descriptor.
//
// Messages use the same [framing] header as the remote link with CBOR
// bodies. The kinds are local: a frame, audio, a control event, a
// cacheable resource, an activation that fixes the segment's role, and
// a close.
//
// [Listener] and [Session] are blocking and suit a goroutine per
// reader. [Conn] is non-blocking for callers that run their own poll
// loop; a freshly dialed Conn is inert (kind unknown, not activated)
// until the first activation is sent through it.
package segment
