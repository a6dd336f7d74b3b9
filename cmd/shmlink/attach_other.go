// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !darwin && !linux

package main

import (
	"context"
	"errors"
)

func attach(context.Context, []string) error {
	return errors.New("attach requires a unix platform")
}
