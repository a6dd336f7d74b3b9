// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration shared by both
// sides of the proxy.
//
// Every message body that crosses either transport (the local segment
// socket and the remote link) is a CBOR item wrapped in a
// [github.com/bureau-foundation/shmlink/lib/framing] frame. Using one
// encoder configuration everywhere means a frame relayed verbatim from
// one side encodes byte-for-byte the same as one built locally, which
// keeps the pump tests deterministic.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Message types use `cbor` struct tags with short keys. Pixel and PCM
// payloads dominate frame sizes, so key names are kept to one or two
// characters on the hot types.
package codec
