// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bcache

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/bureau-foundation/shmlink/lib/checksum"
	"github.com/bureau-foundation/shmlink/lib/compress"
)

var (
	// ErrNotFound is returned by Lookup when no entry exists.
	ErrNotFound = errors.New("bcache: entry not found")

	// ErrConflict is returned by Store when an entry exists under the
	// checksum with different content.
	ErrConflict = errors.New("bcache: checksum already stored with different content")

	// ErrCorrupt is returned by Lookup when an entry exists but cannot
	// be decoded.
	ErrCorrupt = errors.New("bcache: corrupt entry")
)

// MaxBlobSize bounds the raw size of a cached blob. A header claiming
// more than this is treated as corrupt rather than allocated.
const MaxBlobSize = 64 * 1024 * 1024

const (
	entryHeaderLength = 5
	tempPrefix        = ".tmp-"
)

// Cache is a checksum-addressed blob store rooted at a directory
// handle. A Cache is safe for concurrent use.
type Cache struct {
	root  *os.Root
	owned bool
}

// Open opens path as the cache directory. The directory must exist;
// the cache never creates or removes it.
func Open(path string) (*Cache, error) {
	root, err := os.OpenRoot(path)
	if err != nil {
		return nil, fmt.Errorf("bcache: opening %s: %w", path, err)
	}
	return &Cache{root: root, owned: true}, nil
}

// New wraps a directory handle opened by the caller. Close does not
// close a handle passed to New.
func New(root *os.Root) *Cache {
	return &Cache{root: root}
}

// Name returns the directory name the cache was opened with.
func (c *Cache) Name() string {
	return c.root.Name()
}

// Close releases the directory handle if the cache opened it.
func (c *Cache) Close() error {
	if c.owned {
		return c.root.Close()
	}
	return nil
}

// Lookup returns the blob stored under sum. It touches only the local
// directory.
func (c *Cache) Lookup(sum checksum.Checksum) ([]byte, error) {
	name := sum.String()
	data, err := c.root.ReadFile(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("bcache: reading %s: %w", name, err)
	}
	blob, err := decodeEntry(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
	}
	return blob, nil
}

// Contains reports whether an entry exists under sum without reading
// it.
func (c *Cache) Contains(sum checksum.Checksum) bool {
	_, err := c.root.Stat(sum.String())
	return err == nil
}

// Store records blob under sum. The caller is responsible for sum
// being the checksum of blob.
func (c *Cache) Store(sum checksum.Checksum, blob []byte) error {
	if len(blob) > MaxBlobSize {
		return fmt.Errorf("bcache: blob of %d bytes exceeds limit %d", len(blob), MaxBlobSize)
	}
	name := sum.String()

	// Fast path: the entry is already present.
	switch existing, err := c.Lookup(sum); {
	case err == nil:
		return compareExisting(name, existing, blob)
	case errors.Is(err, ErrCorrupt):
		// A torn or foreign file is not an entry; replace it.
		if removeErr := c.root.Remove(name); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
			return fmt.Errorf("bcache: removing corrupt entry %s: %w", name, removeErr)
		}
	case !errors.Is(err, ErrNotFound):
		return err
	}

	entry, err := encodeEntry(blob)
	if err != nil {
		return fmt.Errorf("bcache: encoding %s: %w", name, err)
	}

	tempName, err := c.writeTemp(entry)
	if err != nil {
		return fmt.Errorf("bcache: staging %s: %w", name, err)
	}
	defer c.root.Remove(tempName)

	if err := c.root.Link(tempName, name); err != nil {
		if !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("bcache: linking %s: %w", name, err)
		}
		// Another writer won the race. Its content decides.
		existing, lookupErr := c.Lookup(sum)
		if lookupErr != nil {
			return lookupErr
		}
		return compareExisting(name, existing, blob)
	}
	return nil
}

func compareExisting(name string, existing, blob []byte) error {
	if bytes.Equal(existing, blob) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrConflict, name)
}

// writeTemp writes entry to a uniquely named file in the cache
// directory and returns its name.
func (c *Cache) writeTemp(entry []byte) (string, error) {
	var suffix [8]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return "", err
	}
	tempName := tempPrefix + hex.EncodeToString(suffix[:])

	file, err := c.root.OpenFile(tempName, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := file.Write(entry); err != nil {
		file.Close()
		c.root.Remove(tempName)
		return "", err
	}
	if err := file.Close(); err != nil {
		c.root.Remove(tempName)
		return "", err
	}
	return tempName, nil
}

func encodeEntry(blob []byte) ([]byte, error) {
	payload, tag, err := compress.Encode(blob, compress.Zstd)
	if err != nil {
		return nil, err
	}
	entry := make([]byte, entryHeaderLength+len(payload))
	entry[0] = byte(tag)
	binary.BigEndian.PutUint32(entry[1:entryHeaderLength], uint32(len(blob)))
	copy(entry[entryHeaderLength:], payload)
	return entry, nil
}

func decodeEntry(entry []byte) ([]byte, error) {
	if len(entry) < entryHeaderLength {
		return nil, fmt.Errorf("entry is %d bytes, shorter than header", len(entry))
	}
	tag := compress.Tag(entry[0])
	rawSize := binary.BigEndian.Uint32(entry[1:entryHeaderLength])
	if rawSize > MaxBlobSize {
		return nil, fmt.Errorf("raw size %d exceeds limit %d", rawSize, MaxBlobSize)
	}
	return compress.Decode(entry[entryHeaderLength:], tag, int(rawSize))
}
