// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bcache is the cache bridge: a directory of resource blobs
// named by checksum.
//
// When the remote side references a cacheable resource (typically font
// data) by checksum, the pump asks the [Cache] first and only requests
// the blob over the link on a miss. Entries are written once and never
// modified; eviction belongs to whoever owns the directory.
//
// Each entry is one file named [checksum.Encode] of the digest. The
// content is a five-byte header (compression tag, big-endian raw
// length) followed by the possibly-compressed blob.
//
// Several pumps, in one process or many, may share a directory. [Cache.Store]
// creates entries by writing a private temporary file and hard-linking
// it into place, which either creates the entry atomically or finds an
// existing one. Storing identical content twice is a successful no-op;
// storing different content under an existing name returns
// [ErrConflict] and leaves the existing entry untouched. No lock is
// shared between writers.
package bcache
