// Copyright 2015 The Govisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pilot

import (
	"errors"
	"log"
	"strings"
	"sync"
)

// errLoggerAlreadyAdded is returned by MultiLogger.AddLogger when the same
// *log.Logger pointer is registered twice.
var errLoggerAlreadyAdded = errors.New("logger already added")

// MultiLogger fans a single io.Writer out to any number of *log.Logger
// destinations. The supervisor writes every child's stdout/stderr and
// its own lifecycle events through one MultiLogger; scheduler.go layers
// a per-child *log.Logger with a "[name] " prefix on top of it without
// disturbing the fan-out targets' own prefix and flags.
type MultiLogger struct {
	self    *log.Logger
	targets []*log.Logger
	mu      sync.Mutex
}

// Write splits b into lines and delivers each to every registered
// target. It satisfies io.Writer so a *log.Logger can be built directly
// on top of a MultiLogger.
func (l *MultiLogger) Write(b []byte) (int, error) {
	lines := strings.Split(strings.Trim(string(b), "\n"), "\n")
	l.mu.Lock()
	for _, line := range lines {
		for _, target := range l.targets {
			target.Println(line)
		}
	}
	l.mu.Unlock()
	return len(b), nil
}

// AddLogger registers a fan-out target. Adding the same *log.Logger
// twice is rejected with errLoggerAlreadyAdded rather than silently
// ignored, matching the explicit duplicate-registration errors the
// Plugin Registry raises for the same reason: a caller relying on a
// second AddLogger to have taken effect deserves to know it didn't.
func (l *MultiLogger) AddLogger(logger *log.Logger) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, x := range l.targets {
		if x == logger {
			return errLoggerAlreadyAdded
		}
	}
	l.targets = append(l.targets, logger)
	return nil
}

// RemoveLogger detaches a previously added target. Removing a logger
// that was never added is a no-op.
func (l *MultiLogger) RemoveLogger(logger *log.Logger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, x := range l.targets {
		if x == logger {
			l.targets = append(l.targets[:i], l.targets[i+1:]...)
			return
		}
	}
}

// TargetCount reports how many fan-out targets are currently attached,
// mainly so callers and tests can assert on registration/removal
// without reaching into the type's internals.
func (l *MultiLogger) TargetCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.targets)
}

// Logger returns a *log.Logger that writes through this MultiLogger
// with no prefix or flags of its own, suitable for the supervisor's own
// lifecycle messages.
func (l *MultiLogger) Logger() *log.Logger {
	return l.self
}

func NewMultiLogger() *MultiLogger {
	m := &MultiLogger{}
	m.self = log.New(m, "", 0)
	return m
}
