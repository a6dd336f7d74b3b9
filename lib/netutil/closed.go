// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// IsExpectedCloseError reports whether err is a normal connection termination:
// EOF, a closed connection or pipe, broken pipe, or connection reset. These
// errors occur when one side of a link disconnects and the other side's
// in-flight read or write fails as a result.
//
// Peers that full-close (closing the entire connection rather than half-close
// via CloseWrite) produce ECONNRESET and EPIPE instead of EOF on the surviving
// side. A truncated frame (io.ErrUnexpectedEOF) is not expected.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
