// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jrproto

import (
	"encoding/binary"
	"fmt"
)

// DecodeSwitchEvent decodes one inbound frame. It reports false for any frame that is
// not exactly EventSize bytes or whose tag is not a switch tag.
func DecodeSwitchEvent(frame []byte) (SwitchEvent, bool) {
	if len(frame) != EventSize {
		return SwitchEvent{}, false
	}
	switch frame[0] {
	case TagSwitchPressed:
		return SwitchEvent{Switch: frame[1], Active: true}, true
	case TagSwitchReleased:
		return SwitchEvent{Switch: frame[1], Active: false}, true
	}
	return SwitchEvent{}, false
}

// DecodeCommand parses an outbound frame.
func DecodeCommand(frame []byte) (Command, error) {
	if len(frame) != CommandSize {
		return Command{}, fmt.Errorf("%w: %d (want %d)", ErrFrameLength, len(frame), CommandSize)
	}
	kind := Kind(frame[0])
	switch kind {
	case KindEnable, KindDisable, KindPulse, KindProgramRule:
	default:
		return Command{}, fmt.Errorf("%w: 0x%02X", ErrUnknownTag, frame[0])
	}
	return Command{
		Kind: kind,
		ID:   int8(frame[1]),
		Mask: binary.BigEndian.Uint32(frame[2:]),
	}, nil
}

// SplitCommands splits a byte stream of back-to-back outbound frames.
// Trailing bytes that do not form a whole frame are returned as rest.
func SplitCommands(stream []byte) (cmds []Command, rest []byte, err error) {
	for len(stream) >= CommandSize {
		cmd, err := DecodeCommand(stream[:CommandSize])
		if err != nil {
			return cmds, stream, err
		}
		cmds = append(cmds, cmd)
		stream = stream[CommandSize:]
	}
	return cmds, stream, nil
}
