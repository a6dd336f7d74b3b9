// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package checksum

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
)

func TestDecodeEncodeRoundTrip(t *testing.T) {
	t.Parallel()
	random := rand.New(rand.NewPCG(1, 2))
	for range 200 {
		var original [Size]byte
		for index := range original {
			original[index] = byte(random.UintN(256))
		}
		encoded := Encode(original[:])
		decoded, err := Decode(encoded, MaxEncodedLength)
		if err != nil {
			t.Fatalf("Decode(%q): %v", encoded, err)
		}
		if !bytes.Equal(decoded[:], original[:]) {
			t.Fatalf("round trip mismatch: got %x, want %x", decoded, original)
		}
	}
}

func TestEncodeLengthDependsOnlyOnInputLength(t *testing.T) {
	t.Parallel()
	for length := 0; length < 100; length++ {
		zeros := Encode(make([]byte, length))
		ones := Encode(bytes.Repeat([]byte{0xff}, length))
		if len(zeros) != len(ones) || len(zeros) != EncodedLength(length) {
			t.Fatalf("length %d: encodings %d and %d, EncodedLength %d",
				length, len(zeros), len(ones), EncodedLength(length))
		}
	}
}

func TestEncodeIsFileNameSafe(t *testing.T) {
	t.Parallel()
	encoded := Encode(bytes.Repeat([]byte{0xff, 0xfe, 0xfd}, 20))
	if strings.ContainsAny(encoded, "/+") {
		t.Errorf("encoding %q contains path-unsafe characters", encoded)
	}
}

func TestDecodeRejectsNonAlphabet(t *testing.T) {
	t.Parallel()
	valid := Sum([]byte("font")).String()
	for _, bad := range []byte{'/', '+', ' ', '\n', 0, '.', '*', 0x80, 0xff} {
		for _, position := range []int{0, len(valid) / 2, len(valid) - 1} {
			mutated := []byte(valid)
			mutated[position] = bad
			result, err := Decode(string(mutated), MaxEncodedLength)
			if !errors.Is(err, ErrMalformed) {
				t.Fatalf("Decode with %q at %d: got %v, want ErrMalformed", bad, position, err)
			}
			if !result.IsZero() {
				t.Fatalf("Decode returned partial result %x", result)
			}
		}
	}
}

func TestDecodeRejections(t *testing.T) {
	t.Parallel()
	valid := Sum([]byte("glyph cache")).String()
	tests := []struct {
		name      string
		input     string
		maxLength int
	}{
		{name: "empty", input: "", maxLength: MaxEncodedLength},
		{name: "too short", input: Encode(make([]byte, 31)), maxLength: MaxEncodedLength},
		{name: "too long for limit", input: valid, maxLength: MaxEncodedLength - 1},
		{name: "33 bytes", input: Encode(make([]byte, 33)), maxLength: 100},
		{name: "bad padding", input: valid[:len(valid)-1] + "A", maxLength: MaxEncodedLength},
		{name: "padding in middle", input: "=" + valid[1:], maxLength: MaxEncodedLength},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Decode(test.input, test.maxLength); !errors.Is(err, ErrMalformed) {
				t.Errorf("Decode(%q, %d): got %v, want ErrMalformed", test.input, test.maxLength, err)
			}
		})
	}
}

func TestSumIsStable(t *testing.T) {
	t.Parallel()
	first := Sum([]byte("DejaVuSans.ttf"))
	second := Sum([]byte("DejaVuSans.ttf"))
	if first != second {
		t.Fatal("Sum is not deterministic")
	}
	if first == Sum([]byte("DejaVuSans.ttg")) {
		t.Fatal("distinct inputs produced the same checksum")
	}
	if first.IsZero() {
		t.Fatal("checksum of non-empty input is zero")
	}
}
