// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package gpio reads switches wired straight to the host, such as coin door or
// service buttons. The real implementation uses the Linux GPIO character device.
package gpio

// Reader reads a fixed set of input lines.
type Reader interface {
	// Read returns the logical state of every line, in the order they were requested.
	// true means the switch is active.
	Read() ([]bool, error)

	// Close releases GPIO resources.
	Close() error
}
