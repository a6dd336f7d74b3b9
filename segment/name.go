// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package segment

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
)

// MaxNameLength is the longest accepted connection point name.
const MaxNameLength = 63

// ErrInvalidName is wrapped by ValidateName.
var ErrInvalidName = errors.New("segment: invalid connection point name")

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,62}$`)

// ValidateName checks a connection point name: 1 to 63 characters of
// letters, digits, '_', '.' and '-', not starting with a separator.
// The name is a single path element, so it cannot escape the
// connection point directory.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Path returns the socket path of connection point name in directory.
func Path(directory, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(directory, name), nil
}
