// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logger provides the leveled, colored logger used across solenoid.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Level is a log severity.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	OffLevel
)

// Logger is the logging surface consumed by the platform and transport packages.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

var (
	debugPrintf = color.New(color.FgCyan).SprintfFunc()
	infoPrintf  = color.New(color.FgGreen).SprintfFunc()
	warnPrintf  = color.New(color.FgYellow).SprintfFunc()
	errorPrintf = color.New(color.FgRed).SprintfFunc()
)

// StdLogger writes leveled lines to an io.Writer.
type StdLogger struct {
	mu     sync.Mutex
	logger *log.Logger
	level  Level
	prefix string
}

// New creates a logger writing to w. Colors are disabled unless w is a terminal.
func New(w io.Writer, level Level) *StdLogger {
	if f, ok := w.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		color.NoColor = true
	}
	return &StdLogger{
		logger: log.New(w, "", log.LstdFlags|log.Lmicroseconds),
		level:  level,
	}
}

// Named returns a logger sharing the output and level, prefixing every line with name.
func (l *StdLogger) Named(name string) *StdLogger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &StdLogger{logger: l.logger, level: l.level, prefix: name + ": "}
}

// SetLevel changes the minimum level that is written.
func (l *StdLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *StdLogger) write(level Level, paint func(string, ...interface{}) string, tag, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level > level {
		return
	}
	l.logger.Print(paint("[%s] %s%s", tag, l.prefix, fmt.Sprintf(format, v...)))
}

func (l *StdLogger) Debugf(format string, v ...interface{}) {
	l.write(DebugLevel, debugPrintf, "DEBUG", format, v...)
}

func (l *StdLogger) Infof(format string, v ...interface{}) {
	l.write(InfoLevel, infoPrintf, "INFO", format, v...)
}

func (l *StdLogger) Warnf(format string, v ...interface{}) {
	l.write(WarnLevel, warnPrintf, "WARN", format, v...)
}

func (l *StdLogger) Errorf(format string, v ...interface{}) {
	l.write(ErrorLevel, errorPrintf, "ERROR", format, v...)
}

// ParseLevel maps a flag value ("debug", "info", "warn", "error", "off") to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "off", "none":
		return OffLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// Discard drops everything.
var Discard Logger = discard{}

type discard struct{}

func (discard) Debugf(string, ...interface{}) {}
func (discard) Infof(string, ...interface{})  {}
func (discard) Warnf(string, ...interface{})  {}
func (discard) Errorf(string, ...interface{}) {}
