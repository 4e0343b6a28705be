// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import "bytes"

// FakeLink is a Link test double. Bytes fed with Feed are returned by Poll; bytes
// written are kept in Written.
type FakeLink struct {
	// Written holds every byte written, in order.
	Written bytes.Buffer

	// Writes counts Write calls.
	Writes int

	// WriteError, if set, is returned by Write.
	WriteError error

	// PollError, if set, is returned by the next Poll.
	PollError error

	// PollCalls counts Poll calls.
	PollCalls int

	// Chunk limits how many bytes a single Poll returns (0 = all).
	Chunk int

	// Closed tracks if Close was called.
	Closed bool

	// CloseError, if set, is returned by Close.
	CloseError error

	inbound []byte
}

// NewFakeLink creates an empty FakeLink.
func NewFakeLink() *FakeLink {
	return &FakeLink{}
}

// Feed queues bytes to be returned by Poll.
func (f *FakeLink) Feed(b ...byte) {
	f.inbound = append(f.inbound, b...)
}

func (f *FakeLink) Write(p []byte) (int, error) {
	if f.WriteError != nil {
		return 0, f.WriteError
	}
	f.Writes++
	return f.Written.Write(p)
}

func (f *FakeLink) Poll() ([]byte, error) {
	f.PollCalls++
	if f.PollError != nil {
		err := f.PollError
		f.PollError = nil
		return nil, err
	}
	n := len(f.inbound)
	if f.Chunk > 0 && n > f.Chunk {
		n = f.Chunk
	}
	out := append([]byte(nil), f.inbound[:n]...)
	f.inbound = f.inbound[n:]
	return out, nil
}

func (f *FakeLink) Close() error {
	f.Closed = true
	return f.CloseError
}

// FakeDialer hands out Links in order. When Links is exhausted it returns Err, or
// ErrNoDevice when Err is nil.
type FakeDialer struct {
	Links []*FakeLink
	Err   error
	Dials int
}

// NewFakeDialer creates a dialer that returns the given links in order.
func NewFakeDialer(links ...*FakeLink) *FakeDialer {
	return &FakeDialer{Links: links}
}

func (d *FakeDialer) Dial() (Link, string, error) {
	d.Dials++
	if len(d.Links) == 0 {
		if d.Err != nil {
			return nil, "", d.Err
		}
		return nil, "", ErrNoDevice
	}
	link := d.Links[0]
	d.Links = d.Links[1:]
	return link, "fake", nil
}
