// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package jrproto implements the byte protocol spoken by the JR pinball controller.
//
// Outbound commands are fixed 6-byte frames: a tag byte, a signed single-byte id and a
// 32-bit big-endian bitmask. Inbound switch events are 2-byte frames: a tag byte and an
// unsigned switch id. All functions in this package are pure.
package jrproto

import "errors"

// Outbound command tags
const (
	TagProgramRule byte = 'I'
	TagEnable      byte = 'A'
	TagDisable     byte = 'E'
	TagPulse       byte = 'P'
)

// Inbound switch event tags
const (
	TagSwitchPressed  byte = 'P'
	TagSwitchReleased byte = 'R'
)

// Frame sizes
const (
	CommandSize = 6
	EventSize   = 2
)

// Operand limits
const (
	MaxChannel     = 31  // highest bit of the 32-bit driver mask
	MaxSwitchID    = 127 // switch ids are sent as int8
	MaxEventSwitch = 255 // switch ids are received as uint8
)

var (
	ErrChannelRange = errors.New("jrproto: channel out of range")
	ErrSwitchRange  = errors.New("jrproto: switch id out of range")
	ErrFrameLength  = errors.New("jrproto: bad frame length")
	ErrUnknownTag   = errors.New("jrproto: unknown command tag")
)

// Kind identifies an outbound command.
type Kind byte

const (
	KindEnable      Kind = Kind(TagEnable)
	KindDisable     Kind = Kind(TagDisable)
	KindPulse       Kind = Kind(TagPulse)
	KindProgramRule Kind = Kind(TagProgramRule)
)

func (k Kind) String() string {
	switch k {
	case KindEnable:
		return "ENABLE"
	case KindDisable:
		return "DISABLE"
	case KindPulse:
		return "PULSE"
	case KindProgramRule:
		return "PROGRAM_RULE"
	}
	return "UNKNOWN"
}

// Command is a decoded outbound frame.
type Command struct {
	Kind Kind
	ID   int8
	Mask uint32
}

// SwitchEvent is a decoded inbound frame.
type SwitchEvent struct {
	Switch uint8
	Active bool
}
