// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads lines from a gpiochip.
type RealReader struct {
	chip   *gpiocdev.Chip
	lines  *gpiocdev.Lines
	values []int
}

// NewRealReader requests offsets on chip as pulled-up inputs. With activeLow a
// grounded line reads as active, which suits switches wired to ground.
func NewRealReader(chip string, offsets []int, activeLow bool) (*RealReader, error) {
	if len(offsets) == 0 {
		return nil, errors.New("gpio: no lines requested")
	}
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chip, err)
	}

	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithConsumer("solenoid"),
	}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	lines, err := c.RequestLines(offsets, opts...)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("request lines %v: %w", offsets, err)
	}

	return &RealReader{
		chip:   c,
		lines:  lines,
		values: make([]int, len(offsets)),
	}, nil
}

// Read returns the logical state of every requested line.
func (r *RealReader) Read() ([]bool, error) {
	if err := r.lines.Values(r.values); err != nil {
		return nil, fmt.Errorf("read lines: %w", err)
	}
	out := make([]bool, len(r.values))
	for i, v := range r.values {
		out[i] = v == 1
	}
	return out, nil
}

// Close releases the lines and the chip.
func (r *RealReader) Close() error {
	var errs []error
	if r.lines != nil {
		if err := r.lines.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close lines: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	return errors.Join(errs...)
}
