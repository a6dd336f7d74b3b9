// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package link

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/shmlink/lib/netutil"
)

// Detached is a link connection exposed as a file descriptor, for
// callers that drive the link with their own poll loop.
type Detached struct {
	// File is the descriptor to read and write link frames on.
	File *os.File

	done chan error
}

// Detach converts conn to a file descriptor. Connections backed by a
// socket are duplicated directly. Others (QUIC streams) are relayed
// through a socket pair by two goroutines until either side closes.
// After Detach the caller owns the Detached and must not use conn.
func Detach(conn io.ReadWriteCloser) (*Detached, error) {
	if filer, ok := conn.(interface{ File() (*os.File, error) }); ok {
		file, err := filer.File()
		conn.Close()
		if err != nil {
			return nil, fmt.Errorf("link: duplicating connection descriptor: %w", err)
		}
		return &Detached{File: file}, nil
	}

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("link: creating relay socket pair: %w", err)
	}
	local := os.NewFile(uintptr(fds[0]), "link-relay")
	relayEnd := os.NewFile(uintptr(fds[1]), "link-relay-peer")

	detached := &Detached{File: local, done: make(chan error, 1)}
	go func() {
		var group errgroup.Group
		group.Go(func() error {
			_, err := io.Copy(relayEnd, conn)
			// Signal EOF to the local side without tearing down the
			// reverse direction.
			unix.Shutdown(int(fds[1]), unix.SHUT_WR)
			return err
		})
		group.Go(func() error {
			_, err := io.Copy(conn, relayEnd)
			conn.Close()
			return err
		})
		err := group.Wait()
		relayEnd.Close()
		if netutil.IsExpectedCloseError(err) {
			err = nil
		}
		detached.done <- err
	}()
	return detached, nil
}

// Close closes the descriptor and, for relayed connections, waits for
// the relay to finish. A relay that ended on anything other than a
// normal close reports its error here.
func (d *Detached) Close() error {
	err := d.File.Close()
	if d.done != nil {
		if relayErr := <-d.done; relayErr != nil && err == nil {
			err = fmt.Errorf("link: relay: %w", relayErr)
		}
	}
	return err
}
