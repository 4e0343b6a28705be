// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package jrproto

import (
	"fmt"
	"time"
)

// Statistics tracks inbound frame counts and rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	TotalFrames   uint64
	Pressed       uint64
	Released      uint64
	GarbageFrames uint64

	// Rates (calculated)
	FrameRate   float64 // frames/sec
	GarbageRate float64 // garbage frames/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update counts one inbound frame. ok is the result of DecodeSwitchEvent.
func (s *Statistics) Update(ev SwitchEvent, ok bool) {
	s.TotalFrames++
	switch {
	case !ok:
		s.GarbageFrames++
	case ev.Active:
		s.Pressed++
	default:
		s.Released++
	}
	s.LastUpdateTime = time.Now()
}

// CalculateRates calculates frame and garbage rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.GarbageRate = float64(s.GarbageFrames) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var garbagePercent float64
	if s.TotalFrames > 0 {
		garbagePercent = float64(s.GarbageFrames) * 100.0 / float64(s.TotalFrames)
	}

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", time.Since(s.StartTime).Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Pressed:         %8d\n", s.Pressed)
	result += fmt.Sprintf("Released:        %8d\n", s.Released)
	if s.GarbageFrames > 0 {
		result += fmt.Sprintf("Garbage:         %8d (%.1f%%)\n", s.GarbageFrames, garbagePercent)
	}
	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += "================================\n"
	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
