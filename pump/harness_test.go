// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pump

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bureau-foundation/shmlink/lib/schema"
	"github.com/bureau-foundation/shmlink/lib/testutil"
)

const receiveTimeout = 5 * time.Second

// surface is the size of every test frame.
const surface = 8

// quietLogger discards pump logs.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fullFrame(stream uint32, fill byte) schema.Frame {
	return schema.Frame{
		Stream: stream,
		Full:   true,
		Width:  surface,
		Height: surface,
		Data:   bytes.Repeat([]byte{fill}, surface*surface*schema.BytesPerPixel),
	}
}

func partialFrame(stream uint32, x, y, width, height uint32, fill byte) schema.Frame {
	return schema.Frame{
		Stream: stream,
		Region: schema.Region{X: x, Y: y, Width: width, Height: height},
		Width:  surface,
		Height: surface,
		Data:   bytes.Repeat([]byte{fill}, int(width*height)*schema.BytesPerPixel),
	}
}

// pixel returns the first byte of pixel (x, y) of a full frame.
func pixel(frame schema.Frame, x, y int) byte {
	return frame.Data[(y*int(frame.Width)+x)*schema.BytesPerPixel]
}

// collect runs receive in a goroutine and forwards messages until the
// first error.
func collect[T any](receive func() (T, error)) <-chan T {
	out := make(chan T, 256)
	go func() {
		defer close(out)
		for {
			message, err := receive()
			if err != nil {
				return
			}
			out <- message
		}
	}()
	return out
}

// requireQuiet fails if ch delivers anything within a short window.
func requireQuiet[T any](t *testing.T, ch <-chan T, what string) {
	t.Helper()
	select {
	case message, ok := <-ch:
		if ok {
			t.Fatalf("unexpected %s: %+v", what, message)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func receive[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	return testutil.RequireReceive(t, ch, receiveTimeout, "waiting for %s", what)
}
