// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil classifies errors that occur during normal connection
// teardown.
//
// A pump reading from a link or a local session sees the peer's close
// as one of several errors depending on the transport and on which
// side closed first. [IsExpectedCloseError] folds them into a single
// answer so callers end quietly instead of reporting a failure.
package netutil
