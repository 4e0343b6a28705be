// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gpio

import "errors"

// FakeReader returns scripted samples. Each Read consumes the next sample; once
// exhausted the last sample repeats.
type FakeReader struct {
	Samples [][]bool

	// ReadError, if set, is returned by Read.
	ReadError error

	// Closed tracks if Close was called.
	Closed bool

	index int
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples ...[]bool) *FakeReader {
	return &FakeReader{Samples: samples}
}

func (f *FakeReader) Read() ([]bool, error) {
	if f.ReadError != nil {
		return nil, f.ReadError
	}
	if len(f.Samples) == 0 {
		return nil, errors.New("no samples configured")
	}
	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return append([]bool(nil), sample...), nil
}

func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds to the first sample.
func (f *FakeReader) Reset() {
	f.index = 0
	f.Closed = false
}
