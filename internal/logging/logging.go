/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package logging is the levelled logger shared by the bitmap and shm packages.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"
)

// Logger writes coloured, levelled lines prefixed with the caller location.
type Logger struct {
	name      string
	out       io.Writer
	callDepth int
}

var (
	// Internal is used for mapping and lifecycle events.
	Internal = &Logger{"", os.Stderr, 3}

	level atomic.Int32

	magenta = string([]byte{27, 91, 57, 53, 109}) // Trace
	green   = string([]byte{27, 91, 57, 50, 109}) // Debug
	blue    = string([]byte{27, 91, 57, 52, 109}) // Info
	yellow  = string([]byte{27, 91, 57, 51, 109}) // Warn
	red     = string([]byte{27, 91, 57, 49, 109}) // Error
	reset   = string([]byte{27, 91, 48, 109})

	colors = []string{
		magenta,
		green,
		blue,
		yellow,
		red,
	}

	levelName = []string{
		"Trace",
		"Debug",
		"Info",
		"Warn",
		"Error",
	}
)

const (
	LevelTrace = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelNoPrint
)

func init() {
	level.Store(LevelWarn)
	if v := os.Getenv("BITMAP_LOG_LEVEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			if n >= LevelTrace && n <= LevelNoPrint {
				level.Store(int32(n))
			}
		}
	}
}

// SetLogLevel changes the level of every logger. The default level is Warn;
// the process env `BITMAP_LOG_LEVEL` also sets it at startup.
func SetLogLevel(l int) {
	if l >= LevelTrace && l <= LevelNoPrint {
		level.Store(int32(l))
	}
}

// Level returns the current log level.
func Level() int {
	return int(level.Load())
}

// New returns a logger tagged with name. A nil out writes to stderr.
func New(name string, out io.Writer) *Logger {
	if out == nil {
		out = os.Stderr
	}
	return &Logger{
		name:      name,
		out:       out,
		callDepth: 3,
	}
}

func (l *Logger) enabled(lv int) bool {
	return int(level.Load()) <= lv
}

func (l *Logger) Errorf(format string, a ...interface{}) {
	if !l.enabled(LevelError) {
		return
	}
	if _, err := fmt.Fprintf(l.out, l.prefix(LevelError)+format+reset+"\n", a...); err != nil {
		fmt.Fprintf(os.Stderr, "logger errorf failed: %v\n", err)
	}
}

func (l *Logger) Warnf(format string, a ...interface{}) {
	if !l.enabled(LevelWarn) {
		return
	}
	if _, err := fmt.Fprintf(l.out, l.prefix(LevelWarn)+format+reset+"\n", a...); err != nil {
		fmt.Fprintf(os.Stderr, "logger warnf failed: %v\n", err)
	}
}

func (l *Logger) Infof(format string, a ...interface{}) {
	if !l.enabled(LevelInfo) {
		return
	}
	if _, err := fmt.Fprintf(l.out, l.prefix(LevelInfo)+format+reset+"\n", a...); err != nil {
		fmt.Fprintf(os.Stderr, "logger infof failed: %v\n", err)
	}
}

func (l *Logger) Debugf(format string, a ...interface{}) {
	if !l.enabled(LevelDebug) {
		return
	}
	if _, err := fmt.Fprintf(l.out, l.prefix(LevelDebug)+format+reset+"\n", a...); err != nil {
		fmt.Fprintf(os.Stderr, "logger debugf failed: %v\n", err)
	}
}

func (l *Logger) Tracef(format string, a ...interface{}) {
	if !l.enabled(LevelTrace) {
		return
	}
	if _, err := fmt.Fprintf(l.out, l.prefix(LevelTrace)+format+reset+"\n", a...); err != nil {
		fmt.Fprintf(os.Stderr, "logger tracef failed: %v\n", err)
	}
}

func (l *Logger) prefix(lv int) string {
	var buffer [64]byte
	buf := bytes.NewBuffer(buffer[:0])
	_, _ = buf.WriteString(colors[lv])
	_, _ = buf.WriteString(levelName[lv])
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(time.Now().Format("2006-01-02 15:04:05.999999"))
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(l.location())
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(l.name)
	_ = buf.WriteByte(' ')
	return buf.String()
}

func (l *Logger) location() string {
	_, file, line, ok := runtime.Caller(l.callDepth)
	if !ok {
		file = "???"
		line = 0
	}
	file = filepath.Base(file)
	return file + ":" + strconv.Itoa(line)
}
