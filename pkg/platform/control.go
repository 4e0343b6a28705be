// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package platform

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/solenoid/pkg/jrproto"
	"github.com/Thermoquad/solenoid/pkg/transport"
)

// ErrBulkQueryUnsupported is returned by controllers that cannot report all switch
// states at once.
var ErrBulkQueryUnsupported = errors.New("platform: bulk switch query not supported")

// DriverControl is the set of driver commands a controller family accepts.
type DriverControl interface {
	Enable(channel int) error
	Disable(channel int) error
	Pulse(channel int) error
	// ProgramRule binds a switch to every driver in mask. A zero mask unbinds it.
	ProgramRule(switchID int, mask uint32) error
}

// InboundFrame is one switch frame read from the controller.
type InboundFrame struct {
	Raw    []byte
	Switch int
	Active bool
	Valid  bool
}

// SwitchQuery is how the tracker learns about switch changes.
type SwitchQuery interface {
	// ReadEvents returns every complete frame that is already waiting, in arrival
	// order. It never blocks.
	ReadEvents() ([]InboundFrame, error)
	// BulkQuery returns the current state of every switch the controller knows.
	BulkQuery() (map[int]bool, error)
}

// Controller is a connected controller family.
type Controller interface {
	DriverControl
	SwitchQuery
	Connect() bool
	Connected() bool
	Close() error
}

// JRController speaks jrproto over a Transport.
type JRController struct {
	t *transport.Transport
}

// NewJRController wraps t.
func NewJRController(t *transport.Transport) *JRController {
	return &JRController{t: t}
}

func (c *JRController) Enable(channel int) error {
	return c.send(jrproto.EncodeEnable(channel))
}

func (c *JRController) Disable(channel int) error {
	return c.send(jrproto.EncodeDisable(channel))
}

func (c *JRController) Pulse(channel int) error {
	return c.send(jrproto.EncodePulse(channel))
}

func (c *JRController) ProgramRule(switchID int, mask uint32) error {
	return c.send(jrproto.EncodeProgramRule(switchID, mask))
}

func (c *JRController) send(frame []byte, err error) error {
	if err != nil {
		return err
	}
	return c.t.Write(frame)
}

// ReadEvents drains two-byte frames while at least one whole frame is buffered.
func (c *JRController) ReadEvents() ([]InboundFrame, error) {
	var frames []InboundFrame
	for c.t.BytesAvailable() >= jrproto.EventSize {
		raw, err := c.t.Read(jrproto.EventSize)
		if err != nil {
			return frames, fmt.Errorf("read switch frame: %w", err)
		}
		ev, ok := jrproto.DecodeSwitchEvent(raw)
		frames = append(frames, InboundFrame{
			Raw:    raw,
			Switch: int(ev.Switch),
			Active: ev.Active,
			Valid:  ok,
		})
	}
	return frames, nil
}

// BulkQuery is not part of the JR protocol.
func (c *JRController) BulkQuery() (map[int]bool, error) {
	return nil, ErrBulkQueryUnsupported
}

func (c *JRController) Connect() bool   { return c.t.Connect() }
func (c *JRController) Connected() bool { return c.t.Connected() }
func (c *JRController) Close() error    { return c.t.Close() }
