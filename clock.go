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

import "time"

// Clock is the injectable time source used throughout the supervisor so
// that readiness deadlines, graceful-stop deadlines, and the monitor
// tick can be driven deterministically under test. Every deadline is
// computed once, as clock.Now().Add(budget), and compared against
// clock.Now() on each iteration -- never by re-adding the budget -- so
// that scheduler jitter cannot make a timeout drift.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	Sleep(d time.Duration)
}

// systemClock is the production Clock, backed directly by the time
// package.
type systemClock struct{}

func (systemClock) Now() time.Time                  { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (systemClock) Sleep(d time.Duration)            { time.Sleep(d) }

// NewSystemClock returns the real, wall-clock Clock implementation.
func NewSystemClock() Clock { return systemClock{} }
