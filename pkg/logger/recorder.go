// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logger

import (
	"fmt"
	"sync"
)

// Entry is one recorded log line.
type Entry struct {
	Level   Level
	Message string
}

// Recorder is a Logger test double that keeps every line in memory.
type Recorder struct {
	mu      sync.Mutex
	Entries []Entry
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) add(level Level, format string, v ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Entries = append(r.Entries, Entry{Level: level, Message: fmt.Sprintf(format, v...)})
}

func (r *Recorder) Debugf(format string, v ...interface{}) { r.add(DebugLevel, format, v...) }
func (r *Recorder) Infof(format string, v ...interface{})  { r.add(InfoLevel, format, v...) }
func (r *Recorder) Warnf(format string, v ...interface{})  { r.add(WarnLevel, format, v...) }
func (r *Recorder) Errorf(format string, v ...interface{}) { r.add(ErrorLevel, format, v...) }

// Count returns how many entries were recorded at exactly level.
func (r *Recorder) Count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.Entries {
		if e.Level == level {
			n++
		}
	}
	return n
}

// Reset forgets all entries.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Entries = nil
}
