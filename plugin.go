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

// HookKind names a lifecycle transition a hook can be attached to.
type HookKind string

const (
	PreStart   HookKind = "pre_start"
	PostStart  HookKind = "post_start"
	OnShutdown HookKind = "on_shutdown"
	OnRestart  HookKind = "on_restart"
)

// ChildView is the read-mostly view of a ChildHandle handed to plugin
// code. It must not be retained past the call that received it -- the
// Façade may reuse or recycle the underlying handle once the call
// returns.
type ChildView interface {
	Name() string
	Pid() int
	State() LifecycleState
	Spec() *ProcessSpec
	LastStats() ProcessStats
	RestartCount() int

	// RunID identifies the current OS process instance backing this
	// handle, freshly generated on every Spawn and every restart. Two
	// log lines or metric samples sharing a RunID came from the same
	// underlying process; a change in RunID across samples for the
	// same Name means a restart happened in between. Empty before the
	// first Spawn.
	RunID() string
}

// HookFunc is a lifecycle callable. A PRE_START hook returning an error
// aborts that child's start; every other kind logs the error and lets
// supervision continue.
type HookFunc func(view ChildView) error

// Strategy implements a readiness probe. Probe is invoked repeatedly by
// the Prober, at most once per poll interval, until it returns true,
// returns an error, or the caller's deadline expires.
type Strategy interface {
	// ValidateParams checks that ready_params carries the keys this
	// strategy requires, without performing any I/O.
	ValidateParams(params map[string]interface{}) error

	// Probe performs a single, non-blocking-ish readiness check. A
	// transient failure (connection refused, file absent, pipe empty)
	// must be reported as (false, nil), never as an error -- errors
	// are reserved for conditions the strategy cannot recover from by
	// polling again.
	Probe(view ChildView, params map[string]interface{}, os OS) (bool, error)
}

// StatsHandlerFunc consumes one monitor tick's worth of snapshots. A
// panic from a handler is recovered, logged and swallowed; a broken
// observer must never bring down supervision.
type StatsHandlerFunc func([]ProcessStats)

// Plugin is the capability surface a registrable extension exposes.
// A single plugin may populate any subset of the three maps; a given
// name may be reused across Hooks/Strategies/StatsHandlers, but two
// different plugins may not both claim the same name for the same
// capability kind.
type Plugin interface {
	Name() string
	Hooks() map[string]map[HookKind][]HookFunc
	Strategies() map[string]Strategy
	StatsHandlers() map[string]StatsHandlerFunc
}

// defaultPollInterval is the default interval the Prober sleeps between
// readiness checks.
const defaultPollInterval = 100 * time.Millisecond

// defaultTickInterval is the default Monitor Loop tick period.
const defaultTickInterval = 100 * time.Millisecond
