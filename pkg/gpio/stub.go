// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !linux

package gpio

import "errors"

// RealReader is not available on non-Linux platforms.
type RealReader struct{}

// NewRealReader returns an error on non-Linux platforms.
func NewRealReader(chip string, offsets []int, activeLow bool) (*RealReader, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

func (r *RealReader) Read() ([]bool, error) {
	return nil, errors.New("gpio: not supported")
}

func (r *RealReader) Close() error {
	return nil
}
