// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package checksum

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
)

// Size is the length of a decoded checksum in bytes.
const Size = 32

// MaxEncodedLength is the length of Encode applied to a Size-byte input.
// Callers that read checksums from untrusted input pass it as the
// maxLength argument of Decode.
const MaxEncodedLength = (Size + 2) / 3 * 4

// ErrMalformed is returned by Decode for any input that is not the
// printable encoding of exactly Size bytes.
var ErrMalformed = errors.New("malformed checksum")

// Checksum is a BLAKE3-256 content digest.
type Checksum [Size]byte

// encoding is the printable alphabet. The URL-safe variant is used so
// that encoded checksums never contain '/' and can name files.
var encoding = base64.URLEncoding

// Sum returns the BLAKE3-256 digest of data.
func Sum(data []byte) Checksum {
	return Checksum(blake3.Sum256(data))
}

// String returns the printable encoding of the checksum.
func (c Checksum) String() string {
	return Encode(c[:])
}

// IsZero reports whether c is the all-zero checksum.
func (c Checksum) IsZero() bool {
	return c == Checksum{}
}

// Encode returns the printable form of data. The result has length
// 4*ceil(len(data)/3).
func Encode(data []byte) string {
	return encoding.EncodeToString(data)
}

// EncodedLength returns the length Encode produces for n input bytes.
func EncodedLength(n int) int {
	return encoding.EncodedLen(n)
}

// Decode parses a printable checksum. It fails with ErrMalformed if s is
// longer than maxLength, contains a character outside the alphabet, is
// not valid base64, or does not decode to exactly Size bytes. On failure
// the zero Checksum is returned.
func Decode(s string, maxLength int) (Checksum, error) {
	if len(s) > maxLength {
		return Checksum{}, fmt.Errorf("%w: length %d exceeds limit %d", ErrMalformed, len(s), maxLength)
	}
	for index := 0; index < len(s); index++ {
		if !inAlphabet(s[index]) {
			return Checksum{}, fmt.Errorf("%w: invalid character %q at offset %d", ErrMalformed, s[index], index)
		}
	}
	if len(s) != MaxEncodedLength {
		return Checksum{}, fmt.Errorf("%w: encoded length %d, want %d", ErrMalformed, len(s), MaxEncodedLength)
	}

	var decoded [MaxEncodedLength]byte
	length, err := encoding.Decode(decoded[:], []byte(s))
	if err != nil {
		return Checksum{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if length != Size {
		return Checksum{}, fmt.Errorf("%w: decoded %d bytes, want %d", ErrMalformed, length, Size)
	}

	var result Checksum
	copy(result[:], decoded[:Size])
	return result, nil
}

func inAlphabet(character byte) bool {
	switch {
	case character >= 'A' && character <= 'Z':
		return true
	case character >= 'a' && character <= 'z':
		return true
	case character >= '0' && character <= '9':
		return true
	case character == '-', character == '_', character == '=':
		return true
	}
	return false
}
