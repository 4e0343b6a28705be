// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jrproto

import (
	"fmt"
	"math/bits"
	"strings"
	"time"
)

// FormatEvent formats a switch event into a human-readable line.
func FormatEvent(ts time.Time, ev SwitchEvent) string {
	state := "RELEASED"
	if ev.Active {
		state = "PRESSED"
	}
	return fmt.Sprintf("[%s] SWITCH %3d %s\n", ts.Format("15:04:05.000"), ev.Switch, state)
}

// FormatGarbage formats a frame that did not decode.
func FormatGarbage(ts time.Time, frame []byte) string {
	return fmt.Sprintf("[%s] GARBAGE % X\n", ts.Format("15:04:05.000"), frame)
}

// FormatCommand formats an outbound command into a human-readable line.
func FormatCommand(cmd Command) string {
	switch cmd.Kind {
	case KindProgramRule:
		if cmd.Mask == 0 {
			return fmt.Sprintf("%s switch=%d drivers=none", cmd.Kind, cmd.ID)
		}
		return fmt.Sprintf("%s switch=%d drivers=%s (0x%08X)", cmd.Kind, cmd.ID, FormatMask(cmd.Mask), cmd.Mask)
	default:
		return fmt.Sprintf("%s channel=%d mask=0x%08X", cmd.Kind, cmd.ID, cmd.Mask)
	}
}

// FormatMask lists the channels set in mask, e.g. "[0 3 5]".
func FormatMask(mask uint32) string {
	parts := make([]string, 0, bits.OnesCount32(mask))
	for ch := 0; ch <= MaxChannel; ch++ {
		if mask&(1<<uint(ch)) != 0 {
			parts = append(parts, fmt.Sprintf("%d", ch))
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}
