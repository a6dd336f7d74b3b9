// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package checksum names cacheable resources.
//
// A resource (an embedded font, an icon atlas) is identified on the wire
// and on disk by a 32-byte BLAKE3 digest of its content. The printable
// form of a digest is base64 over the URL-safe alphabet with padding,
// which is also a valid file name, so the cache bridge can use it
// directly as the entry name.
//
// The API surface:
//
//   - [Sum] -- BLAKE3-256 of a byte slice
//   - [Encode] -- printable form of arbitrary bytes; total, output length
//     depends only on input length
//   - [Decode] -- strict parse of a printable string back into a
//     [Checksum]; anything that is not exactly 32 bytes of valid
//     alphabet is [ErrMalformed]
//
// This package has no dependencies on other shmlink packages.
package checksum
