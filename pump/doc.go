// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pump moves frames, audio, control events and cacheable
// resources between one local display session and one remote link,
// in both directions.
//
// Two roles share a single relay core:
//
//   - [Server] owns an already accepted local session and a link and
//     runs to completion in [Server.Run]. Two goroutines perform the
//     blocking reads; one loop owns every piece of state and is the
//     only writer to either handle.
//   - [Client] connects to (or adopts a preallocated) local session at
//     a named connection point and never blocks: each [Client.Step]
//     polls with a zero timeout, performs at most one read and one
//     write per direction, and reports a [Readiness] bitmask so an
//     external event loop can multiplex many clients. [Loop] is such an
//     event loop.
//
// Outbound video goes through a [congestion.Controller]: full frames
// wait while the link is soft-blocked and everything is dropped while
// it is blocked. At most one full frame per stream is held back; it is
// kept current by applying later dirty regions to it and is sent once
// an acknowledgement makes room. A stream that lost dirty regions with
// nothing held back is repaired by asking the local producer for a
// full frame once the link recovers.
//
// Cacheable resources cross the link as checksum references when a
// [bcache.Cache] is configured. The receiving side serves a reference
// from its cache or asks for the blob, verifies the blob's checksum
// and stores it. Without a cache, resources are always sent in full.
package pump
