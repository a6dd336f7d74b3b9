// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for shmlink packages.
//
// [SocketDir] creates a short temporary directory for connection
// points. Unix domain socket paths are limited to 108 bytes
// (sun_path), and t.TempDir() paths under a build system's sandbox
// often exceed that.
//
// [Socketpair] returns a connected pair of stream socket descriptors
// closed at test end, used to stand in for a remote link or a local
// segment without a listener. [OpenFDCount] counts this process's open
// descriptors so tests can assert that a failed setup consumed none.
//
// [RequireReceive] encapsulates the timeout safety valve pattern
// (select with time.After fallback) so that individual tests do not
// need direct time.After calls.
//
// [UniqueID] generates monotonically increasing identifiers, used for
// connection point names that must not collide between parallel tests.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no shmlink-internal dependencies.
package testutil
