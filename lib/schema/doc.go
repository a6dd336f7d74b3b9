// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the values that cross the proxy in either
// direction: video [Frame] updates, [Audio] buffers, control [Event]s
// and cacheable [Resource] blobs.
//
// Both transports carry these types. The local segment protocol
// (package segment) and the remote link protocol (package link) each
// wrap them in their own message envelope, but the bodies are the same
// CBOR-encoded structs, so the pump moves them across without
// re-shaping anything except where translation is the point (exit
// events, device hints).
//
// Values are treated as immutable once built. A Frame handed to the
// pump is never modified; a superseded frame is dropped, not edited.
//
// This package depends on no other shmlink packages.
package schema
