// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package compress implements the block compression used for video
// frame payloads on the remote link and for cache bridge entries on
// disk.
//
// The codec-evaluation callback picks a [Tag] per frame. [Encode] never
// fails on incompressible input: it falls back to [None] and reports
// the tag actually used, so the receiver always learns the real
// encoding from the frame header rather than from the request.
package compress

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Tag identifies a compression algorithm. Tags travel in link frame
// headers and cache entry headers; the values are protocol constants.
type Tag uint8

const (
	// None is uncompressed data.
	None Tag = 0

	// LZ4 is LZ4 block compression. Cheap to encode, used for
	// dirty-region updates where latency matters more than ratio.
	LZ4 Tag = 1

	// Zstd is zstd at the default level. Better ratio for full-frame
	// refreshes and for cached resources, which are written once and
	// read many times.
	Zstd Tag = 2
)

// String returns the human-readable name of a tag.
func (tag Tag) String() string {
	switch tag {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// ParseTag parses a tag from its String form.
func ParseTag(name string) (Tag, error) {
	switch name {
	case "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	default:
		return 0, fmt.Errorf("unknown compression tag: %q", name)
	}
}

// errIncompressible is returned internally when compression would not
// shrink the input. Encode translates it into a None result.
var errIncompressible = errors.New("data is incompressible")

// Encode compresses data with the requested algorithm. If the
// algorithm cannot shrink the data, data is returned unchanged with
// tag None. The returned tag is the one the receiver must pass to
// Decode.
func Encode(data []byte, requested Tag) ([]byte, Tag, error) {
	var (
		compressed []byte
		err        error
	)
	switch requested {
	case None:
		return data, None, nil
	case LZ4:
		compressed, err = compressLZ4(data)
	case Zstd:
		compressed, err = compressZstd(data)
	default:
		return nil, 0, fmt.Errorf("unsupported compression tag: %d", requested)
	}
	if errors.Is(err, errIncompressible) {
		return data, None, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return compressed, requested, nil
}

// Decode reverses Encode. rawSize must equal the original length; a
// mismatch is an error, so a truncated or forged payload is never
// returned as valid.
func Decode(compressed []byte, tag Tag, rawSize int) ([]byte, error) {
	if rawSize < 0 {
		return nil, fmt.Errorf("negative raw size %d", rawSize)
	}
	switch tag {
	case None:
		if len(compressed) != rawSize {
			return nil, fmt.Errorf("uncompressed payload: size %d does not match expected %d",
				len(compressed), rawSize)
		}
		return compressed, nil
	case LZ4:
		return decompressLZ4(compressed, rawSize)
	case Zstd:
		return decompressZstd(compressed, rawSize)
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, rawSize int) ([]byte, error) {
	destination := make([]byte, rawSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != rawSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, rawSize)
	}
	return destination, nil
}

// zstd.Encoder and zstd.Decoder are safe for concurrent use through
// EncodeAll/DecodeAll, so one of each serves every pump.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("compress: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("compress: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, rawSize int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, rawSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != rawSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), rawSize)
	}
	return result, nil
}
