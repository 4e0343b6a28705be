// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jrproto

import (
	"encoding/binary"
	"fmt"
)

// ChannelMask returns the driver bitmask with one bit set per channel.
func ChannelMask(channels ...int) (uint32, error) {
	var mask uint32
	for _, ch := range channels {
		if ch < 0 || ch > MaxChannel {
			return 0, fmt.Errorf("%w: %d", ErrChannelRange, ch)
		}
		mask |= 1 << uint(ch)
	}
	return mask, nil
}

// EncodeEnable builds the frame that holds a driver on.
func EncodeEnable(channel int) ([]byte, error) {
	return encodeChannel(TagEnable, channel)
}

// EncodeDisable builds the frame that turns a driver off.
func EncodeDisable(channel int) ([]byte, error) {
	return encodeChannel(TagDisable, channel)
}

// EncodePulse builds the frame that pulses a driver. The pulse length is whatever the
// controller firmware has configured for the channel; it is not carried on the wire.
func EncodePulse(channel int) ([]byte, error) {
	return encodeChannel(TagPulse, channel)
}

// EncodeProgramRule builds the frame that binds a switch to the drivers in mask.
// A zero mask unbinds the switch.
func EncodeProgramRule(switchID int, mask uint32) ([]byte, error) {
	if switchID < 0 || switchID > MaxSwitchID {
		return nil, fmt.Errorf("%w: %d", ErrSwitchRange, switchID)
	}
	return encodeFrame(TagProgramRule, int8(switchID), mask), nil
}

// MustEncode panics on error. Intended for constant operands in tests and tools.
func MustEncode(frame []byte, err error) []byte {
	if err != nil {
		panic(fmt.Sprintf("jrproto: encode error: %v", err))
	}
	return frame
}

// EncodeSwitchEvent builds an inbound event frame, as the controller would send it.
func EncodeSwitchEvent(switchID uint8, active bool) []byte {
	tag := TagSwitchReleased
	if active {
		tag = TagSwitchPressed
	}
	return []byte{tag, switchID}
}

func encodeChannel(tag byte, channel int) ([]byte, error) {
	mask, err := ChannelMask(channel)
	if err != nil {
		return nil, err
	}
	return encodeFrame(tag, int8(channel), mask), nil
}

func encodeFrame(tag byte, id int8, mask uint32) []byte {
	frame := make([]byte, CommandSize)
	frame[0] = tag
	frame[1] = byte(id)
	binary.BigEndian.PutUint32(frame[2:], mask)
	return frame
}
