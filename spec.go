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
	"fmt"
	"sort"
	"time"
)

// ShutdownStrategy describes what the supervisor does when a child
// exits on its own.
type ShutdownStrategy string

const (
	Restart           ShutdownStrategy = "restart"
	DoNotRestart      ShutdownStrategy = "do_not_restart"
	ShutdownEverything ShutdownStrategy = "shutdown_everything"
)

// LifecycleState is the state of a single ChildHandle.
type LifecycleState string

const (
	Pending             LifecycleState = "PENDING"
	Starting            LifecycleState = "STARTING"
	Ready               LifecycleState = "READY"
	RunningState        LifecycleState = "RUNNING"
	Stopping            LifecycleState = "STOPPING"
	Exited              LifecycleState = "EXITED"
	TerminatedByPolicy  LifecycleState = "TERMINATED_BY_POLICY"
)

// ProcessSpec is one immutable manifest entry, describing a single
// managed child program.
type ProcessSpec struct {
	Name        string            `json:"name" yaml:"name"`
	Path        string            `json:"path" yaml:"path"`
	Args        []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	WorkingDir  string            `json:"working_dir,omitempty" yaml:"working_dir,omitempty"`
	TimeoutSec  float64           `json:"timeout" yaml:"timeout"`
	ShutdownStrategy ShutdownStrategy `json:"shutdown_strategy,omitempty" yaml:"shutdown_strategy,omitempty"`

	ReadyStrategy   string                 `json:"ready_strategy,omitempty" yaml:"ready_strategy,omitempty"`
	ReadyTimeoutSec float64                `json:"ready_timeout_sec,omitempty" yaml:"ready_timeout_sec,omitempty"`
	ReadyParams     map[string]interface{} `json:"ready_params,omitempty" yaml:"ready_params,omitempty"`

	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`

	Hooks         []string `json:"hooks,omitempty" yaml:"hooks,omitempty"`
	StatsHandlers []string `json:"stats_handlers,omitempty" yaml:"stats_handlers,omitempty"`
}

// Timeout returns the graceful-stop budget as a time.Duration.
func (s *ProcessSpec) Timeout() time.Duration {
	return time.Duration(s.TimeoutSec * float64(time.Second))
}

// ReadyTimeout returns the readiness budget as a time.Duration.
func (s *ProcessSpec) ReadyTimeout() time.Duration {
	return time.Duration(s.ReadyTimeoutSec * float64(time.Second))
}

func (s *ProcessSpec) applyDefaults() {
	if s.ShutdownStrategy == "" {
		s.ShutdownStrategy = Restart
	}
}

// ProcessStats is a timestamped resource-usage snapshot for a single
// child, produced once per monitor tick.
type ProcessStats struct {
	Name        string    `json:"name"`
	Pid         int       `json:"pid"`
	RunID       string    `json:"run_id"`
	Timestamp   time.Time `json:"timestamp"`
	MemoryMB    float64   `json:"memory_mb"`
	CPUPercent  float64   `json:"cpu_percent"`
	NumThreads  int32     `json:"num_threads"`
	NumChildren int       `json:"num_children"`
}

// batch is a set of specs that share a topological rank and may be
// started concurrently.
type batch []*ProcessSpec

// ProcessManifest is the ordered set of ProcessSpecs plus the derived
// start order computed by the scheduler.
type ProcessManifest struct {
	Processes []*ProcessSpec

	byName  map[string]*ProcessSpec
	batches []batch
}

// NewManifest builds a ProcessManifest from an ordered slice of specs,
// applying field defaults but performing no validation; call Validate
// (or let Supervisor.Start do it) before starting anything.
func NewManifest(specs []*ProcessSpec) *ProcessManifest {
	m := &ProcessManifest{Processes: specs}
	for _, s := range specs {
		s.applyDefaults()
	}
	return m
}

// Lookup returns the spec with the given name, if present.
func (m *ProcessManifest) Lookup(name string) (*ProcessSpec, bool) {
	s, ok := m.byName[name]
	return s, ok
}

// Batches returns the precomputed start order: successive slices of
// specs whose dependencies are all satisfied by an earlier batch.
// Validate must have succeeded before this is meaningful.
func (m *ProcessManifest) Batches() [][]*ProcessSpec {
	out := make([][]*ProcessSpec, len(m.batches))
	for i, b := range m.batches {
		out[i] = append([]*ProcessSpec(nil), b...)
	}
	return out
}

// Validate checks every invariant from the data model (unique names,
// known dependencies, no cycle, resolvable strategies/hooks/handlers,
// well-formed ready_params, non-negative timeouts) and, on success,
// computes the start-order batches via Kahn's algorithm. No process is
// spawned as a side effect of validation, and validation performs no
// I/O of its own.
func (m *ProcessManifest) Validate(reg *Registry) error {
	m.byName = make(map[string]*ProcessSpec, len(m.Processes))
	for _, s := range m.Processes {
		if s.Name == "" {
			return newManifestError(SchemaViolation, "", "process name must not be empty")
		}
		if _, dup := m.byName[s.Name]; dup {
			return newManifestError(DuplicateName, s.Name, "duplicate process name")
		}
		m.byName[s.Name] = s
	}

	for _, s := range m.Processes {
		if s.TimeoutSec < 0 {
			return newManifestError(SchemaViolation, s.Name, "timeout must be >= 0")
		}
		for _, d := range s.Dependencies {
			if _, ok := m.byName[d]; !ok {
				return newManifestError(UnknownDependency, s.Name, fmt.Sprintf("unknown dependency %q", d))
			}
		}
		switch s.ShutdownStrategy {
		case "", Restart, DoNotRestart, ShutdownEverything:
		default:
			return newManifestError(SchemaViolation, s.Name, fmt.Sprintf("unknown shutdown_strategy %q", s.ShutdownStrategy))
		}
		if s.ReadyStrategy != "" {
			if s.ReadyTimeoutSec <= 0 {
				return newManifestError(SchemaViolation, s.Name, "ready_timeout_sec must be > 0 when ready_strategy is set")
			}
			probe, err := reg.resolveStrategy(s.ReadyStrategy)
			if err != nil {
				return newManifestError(UnknownCapability, s.Name, fmt.Sprintf("unknown ready_strategy %q", s.ReadyStrategy))
			}
			if err := probe.ValidateParams(s.ReadyParams); err != nil {
				return newManifestError(MissingReadyParam, s.Name, err.Error())
			}
		}
		for _, h := range s.Hooks {
			if !reg.hasHookGroup(h) {
				return newManifestError(UnknownCapability, s.Name, fmt.Sprintf("unknown hook group %q", h))
			}
		}
		for _, h := range s.StatsHandlers {
			if _, err := reg.resolveStats(h); err != nil {
				return newManifestError(UnknownCapability, s.Name, fmt.Sprintf("unknown stats handler %q", h))
			}
		}
	}

	batches, err := topoBatches(m.Processes)
	if err != nil {
		return err
	}
	m.batches = batches
	return nil
}

// topoBatches computes Kahn's-algorithm start batches, breaking ties by
// original declaration order within a batch.
func topoBatches(specs []*ProcessSpec) ([]batch, error) {
	order := make(map[string]int, len(specs))
	for i, s := range specs {
		order[s.Name] = i
	}

	indegree := make(map[string]int, len(specs))
	dependents := make(map[string][]string, len(specs))
	for _, s := range specs {
		indegree[s.Name] = len(s.Dependencies)
		for _, d := range s.Dependencies {
			dependents[d] = append(dependents[d], s.Name)
		}
	}

	var batches []batch
	remaining := len(specs)
	byName := make(map[string]*ProcessSpec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}

	for remaining > 0 {
		var ready []string
		for name, deg := range indegree {
			if deg == 0 {
				ready = append(ready, name)
			}
		}
		if len(ready) == 0 {
			return nil, newManifestError(CycleDetected, "", "dependency graph contains a cycle")
		}
		sort.Slice(ready, func(i, j int) bool { return order[ready[i]] < order[ready[j]] })

		b := make(batch, 0, len(ready))
		for _, name := range ready {
			b = append(b, byName[name])
			delete(indegree, name)
			remaining--
		}
		for _, s := range b {
			for _, dep := range dependents[s.Name] {
				indegree[dep]--
			}
		}
		batches = append(batches, b)
	}
	return batches, nil
}
