// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestTagString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		tag  Tag
		want string
	}{
		{None, "none"},
		{LZ4, "lz4"},
		{Zstd, "zstd"},
		{Tag(42), "unknown(42)"},
	}
	for _, test := range tests {
		if got := test.tag.String(); got != test.want {
			t.Errorf("Tag(%d).String() = %q, want %q", test.tag, got, test.want)
		}
	}
}

func TestParseTag(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"none", "lz4", "zstd"} {
		tag, err := ParseTag(name)
		if err != nil {
			t.Fatalf("ParseTag(%q): %v", name, err)
		}
		if tag.String() != name {
			t.Errorf("ParseTag(%q).String() = %q", name, tag.String())
		}
	}
	if _, err := ParseTag("gzip"); err == nil {
		t.Error("ParseTag(\"gzip\") should fail")
	}
}

// pixelRows builds a compressible buffer resembling a mostly flat
// framebuffer with a few changing columns.
func pixelRows(width, height int) []byte {
	buffer := make([]byte, width*height*4)
	for row := 0; row < height; row++ {
		for column := 0; column < width; column++ {
			offset := (row*width + column) * 4
			buffer[offset] = byte(column % 7)
			buffer[offset+1] = 0x20
			buffer[offset+2] = 0x40
			buffer[offset+3] = 0xff
		}
	}
	return buffer
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()
	data := pixelRows(64, 32)
	for _, tag := range []Tag{None, LZ4, Zstd} {
		t.Run(tag.String(), func(t *testing.T) {
			t.Parallel()
			encoded, used, err := Encode(data, tag)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if used != tag {
				t.Fatalf("Encode used %s, want %s", used, tag)
			}
			if tag != None && len(encoded) >= len(data) {
				t.Errorf("%s did not shrink compressible input: %d >= %d", tag, len(encoded), len(data))
			}
			decoded, err := Decode(encoded, used, len(data))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !bytes.Equal(decoded, data) {
				t.Error("round trip mismatch")
			}
		})
	}
}

func TestEncodeFallsBackOnIncompressible(t *testing.T) {
	t.Parallel()
	random := make([]byte, 4096)
	if _, err := rand.Read(random); err != nil {
		t.Fatal(err)
	}
	for _, tag := range []Tag{LZ4, Zstd} {
		encoded, used, err := Encode(random, tag)
		if err != nil {
			t.Fatalf("Encode(%s): %v", tag, err)
		}
		if used != None {
			t.Errorf("Encode(%s) on random data used %s, want none", tag, used)
		}
		if !bytes.Equal(encoded, random) {
			t.Errorf("Encode(%s) fallback altered data", tag)
		}
	}
}

func TestDecodeSizeMismatch(t *testing.T) {
	t.Parallel()
	data := pixelRows(16, 16)
	for _, tag := range []Tag{None, LZ4, Zstd} {
		encoded, used, err := Encode(data, tag)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if _, err := Decode(encoded, used, len(data)+1); err == nil {
			t.Errorf("Decode(%s) with wrong size should fail", used)
		}
	}
}

func TestDecodeGarbage(t *testing.T) {
	t.Parallel()
	garbage := []byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}
	for _, tag := range []Tag{LZ4, Zstd} {
		if _, err := Decode(garbage, tag, 1024); err == nil {
			t.Errorf("Decode(%s) of garbage should fail", tag)
		}
	}
	if _, err := Decode(garbage, Tag(9), 6); err == nil {
		t.Error("Decode with unknown tag should fail")
	}
}

func TestEncodeUnknownTag(t *testing.T) {
	t.Parallel()
	if _, _, err := Encode([]byte("x"), Tag(7)); err == nil {
		t.Error("Encode with unknown tag should fail")
	}
}
