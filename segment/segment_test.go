// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package segment

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/shmlink/lib/schema"
	"github.com/bureau-foundation/shmlink/lib/testutil"
)

func TestValidateName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		valid bool
	}{
		{"display-0", true},
		{"a", true},
		{"Session_2.main", true},
		{strings.Repeat("x", MaxNameLength), true},
		{strings.Repeat("x", MaxNameLength+1), false},
		{"", false},
		{"-leading", false},
		{".hidden", false},
		{"../escape", false},
		{"a/b", false},
		{"space name", false},
		{"nul\x00", false},
	}
	for _, test := range tests {
		err := ValidateName(test.name)
		if test.valid && err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", test.name, err)
		}
		if !test.valid && !errors.Is(err, ErrInvalidName) {
			t.Errorf("ValidateName(%q) = %v, want ErrInvalidName", test.name, err)
		}
	}
}

func listenTest(t *testing.T) (*Listener, string, string) {
	t.Helper()
	directory := testutil.SocketDir(t)
	name := testutil.UniqueID("display")
	listener, err := Listen(directory, name)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })
	return listener, directory, name
}

func acceptAsync(t *testing.T, listener *Listener) <-chan *Session {
	t.Helper()
	accepted := make(chan *Session, 1)
	go func() {
		session, err := listener.Accept(context.Background())
		if err != nil {
			t.Errorf("Accept: %v", err)
			close(accepted)
			return
		}
		accepted <- session
	}()
	return accepted
}

func TestSessionExchange(t *testing.T) {
	t.Parallel()
	listener, directory, name := listenTest(t)
	accepted := acceptAsync(t, listener)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Dial(ctx, directory, name)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()
	server := testutil.RequireReceive(t, accepted, 5*time.Second)
	if server == nil {
		t.Fatal("accept failed")
	}
	defer server.Close()

	frame := schema.Frame{
		Stream: 1, Seq: 1, Full: true, Width: 2, Height: 1,
		Data: []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}
	if err := client.Send(NewFrame(frame)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	m, err := server.Receive()
	if err != nil || m.Kind != KindFrame || m.Frame.Validate() != nil {
		t.Fatalf("Receive = %+v, %v", m, err)
	}

	if err := server.Send(NewEvent(schema.NewRefresh(1))); err != nil {
		t.Fatalf("Send: %v", err)
	}
	m, err = client.Receive()
	if err != nil || m.Kind != KindEvent || m.Event.Kind != schema.EventRefresh || m.Event.Stream != 1 {
		t.Fatalf("Receive = %+v, %v", m, err)
	}

	client.Close()
	if _, err := server.Receive(); err != io.EOF {
		t.Errorf("Receive after peer close: err = %v, want io.EOF", err)
	}
}

func TestListenReplacesStaleSocket(t *testing.T) {
	t.Parallel()
	directory := testutil.SocketDir(t)
	name := testutil.UniqueID("display")
	path := filepath.Join(directory, name)
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	listener, err := Listen(directory, name)
	if err != nil {
		t.Fatalf("Listen over stale file: %v", err)
	}
	if listener.Path() != path {
		t.Errorf("Path = %q, want %q", listener.Path(), path)
	}
	if err := listener.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("socket file still present after Close: %v", err)
	}
}

func TestAcceptCancel(t *testing.T) {
	t.Parallel()
	listener, _, _ := listenTest(t)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := listener.Accept(ctx)
		errs <- err
	}()
	cancel()
	if err := testutil.RequireReceive(t, errs, 5*time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("Accept: err = %v, want context.Canceled", err)
	}
}

func TestDialNonblockActivation(t *testing.T) {
	t.Parallel()
	listener, directory, name := listenTest(t)
	accepted := acceptAsync(t, listener)

	conn, err := DialNonblock(directory, name)
	if err != nil {
		t.Fatalf("DialNonblock: %v", err)
	}
	defer conn.Close()
	server := testutil.RequireReceive(t, accepted, 5*time.Second)
	if server == nil {
		t.Fatal("accept failed")
	}
	defer server.Close()

	if !conn.Inert() || conn.Kind() != schema.SegmentUnknown {
		t.Fatalf("fresh conn not inert: kind %s activated %v", conn.Kind(), conn.Activated())
	}
	if err := conn.Send(NewActivate(schema.Activation{Kind: schema.SegmentMedia, Title: "remote"})); err != nil {
		t.Fatalf("Send activate: %v", err)
	}
	if conn.Inert() || conn.Kind() != schema.SegmentMedia {
		t.Errorf("after activation: kind %s inert %v", conn.Kind(), conn.Inert())
	}
	if err := conn.Send(NewActivate(schema.Activation{Kind: schema.SegmentPopup})); !errors.Is(err, ErrAlreadyActivated) {
		t.Errorf("second activation: err = %v, want ErrAlreadyActivated", err)
	}

	for conn.Pending() > 0 {
		if _, err := conn.WriteOnce(); err != nil {
			t.Fatalf("WriteOnce: %v", err)
		}
	}
	m, err := server.Receive()
	if err != nil || m.Kind != KindActivate || m.Activate.Kind != schema.SegmentMedia {
		t.Fatalf("server Receive = %+v, %v", m, err)
	}

	if err := server.Send(NewClose("done")); err != nil {
		t.Fatalf("server Send: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := conn.ReadOnce(); err != nil {
			t.Fatalf("ReadOnce: %v", err)
		}
		m, ok, err := conn.Receive()
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		if ok {
			if m.Kind != KindClose || m.Close.Reason != "done" {
				t.Errorf("Receive = %+v", m)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for close message")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestDialNonblockMissingConnectionPoint(t *testing.T) {
	directory := testutil.SocketDir(t)
	before := testutil.OpenFDCount(t)
	if _, err := DialNonblock(directory, "absent"); err == nil {
		t.Fatal("DialNonblock to a missing connection point succeeded")
	}
	if after := testutil.OpenFDCount(t); after != before {
		t.Errorf("open descriptors %d -> %d after failed dial", before, after)
	}
}

func TestDialNonblockInvalidNameTouchesNothing(t *testing.T) {
	directory := testutil.SocketDir(t)
	before := testutil.OpenFDCount(t)
	if _, err := DialNonblock(directory, "../etc/passwd"); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("err = %v, want ErrInvalidName", err)
	}
	if after := testutil.OpenFDCount(t); after != before {
		t.Errorf("open descriptors %d -> %d after rejected name", before, after)
	}
}
