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
	"io"
	"log"
)

// Scheduler drives the ordered startup of a ProcessManifest: it spawns
// each batch's children concurrently, runs their pre_start/post_start
// hooks, and waits out their readiness probes before letting the next
// batch begin.
type Scheduler struct {
	reg       *Registry
	prober    *Prober
	os        OS
	clock     Clock
	collector StatsCollector
	sink      *MultiLogger
}

// NewScheduler builds a Scheduler. sink receives every child's
// stdout/stderr, one *log.Logger per child layered on top with a
// "[name] " prefix.
func NewScheduler(reg *Registry, prober *Prober, osImpl OS, clock Clock, collector StatsCollector, sink *MultiLogger) *Scheduler {
	return &Scheduler{reg: reg, prober: prober, os: osImpl, clock: clock, collector: collector, sink: sink}
}

// prefixWriter adapts a *log.Logger to io.Writer so it can be used as a
// ChildHandle's output sink while still prefixing every write.
type prefixWriter struct {
	logger *log.Logger
}

func (w prefixWriter) Write(p []byte) (int, error) {
	w.logger.Print(string(p))
	return len(p), nil
}

func (s *Scheduler) childLogger(name string) io.Writer {
	return prefixWriter{logger: log.New(s.sink, "["+name+"] ", log.LstdFlags)}
}

// Start spawns every process in manifest's batches in dependency
// order. Within a batch, children start concurrently; the scheduler
// only moves on to the next batch once every child in the current one
// has reached RUNNING. If any child fails to start -- a pre_start hook
// errors, the spawn itself fails, or its readiness probe times out or
// errors -- every child started so far (this batch included) is
// stopped in reverse start order, and a *StartupFailure naming the
// first failure is returned.
func (s *Scheduler) Start(m *ProcessManifest, env []string) (map[string]*ChildHandle, error) {
	handles := make(map[string]*ChildHandle, len(m.Processes))
	var startedOrder []*ChildHandle

	for _, b := range m.Batches() {
		type outcome struct {
			spec *ProcessSpec
			h    *ChildHandle
			err  error
		}
		results := make(chan outcome, len(b))
		for _, spec := range b {
			spec := spec
			h := NewChildHandle(spec, s.os, s.clock, s.collector, s.childLogger(spec.Name))
			go func() {
				err := s.startOne(spec, h, env)
				results <- outcome{spec: spec, h: h, err: err}
			}()
		}

		var failure *StartupFailure
		for range b {
			r := <-results
			handles[r.spec.Name] = r.h
			startedOrder = append(startedOrder, r.h)
			if r.err != nil && failure == nil {
				failure = &StartupFailure{Process: r.spec.Name, Reason: r.err}
			}
		}
		if failure != nil {
			s.rollback(startedOrder)
			return nil, failure
		}
	}
	return handles, nil
}

// maybeMkPipe creates the readiness pipe ahead of PRE_START when spec
// uses the pipe strategy; the file/tcp strategies need no such setup.
func maybeMkPipe(osImpl OS, spec *ProcessSpec) error {
	if spec.ReadyStrategy != "pipe" {
		return nil
	}
	path, ok := readyParamString(spec.ReadyParams, "path")
	if !ok {
		return nil
	}
	return osImpl.MkPipe(path)
}

// maybeRemovePipe unlinks spec's readiness pipe, if any, once its
// child has exited. Errors are non-fatal -- a leftover pipe file does
// not affect correctness, only tidiness.
func maybeRemovePipe(osImpl OS, spec *ProcessSpec) error {
	if spec.ReadyStrategy != "pipe" {
		return nil
	}
	path, ok := readyParamString(spec.ReadyParams, "path")
	if !ok {
		return nil
	}
	return osImpl.RemovePipe(path)
}

func (s *Scheduler) startOne(spec *ProcessSpec, h *ChildHandle, env []string) error {
	if err := maybeMkPipe(s.os, spec); err != nil {
		return fmt.Errorf("creating readiness pipe: %w", err)
	}

	for _, group := range spec.Hooks {
		hooks, err := s.reg.resolveHooks(group, PreStart)
		if err != nil {
			return err
		}
		for _, hook := range hooks {
			if err := hook(h); err != nil {
				return &PluginError{Kind: PluginPreStart, Plugin: group, Err: err}
			}
		}
	}

	if err := h.Spawn(env); err != nil {
		return err
	}
	s.sink.Write([]byte(fmt.Sprintf("[%s] spawned pid %d run_id %s", spec.Name, h.Pid(), h.RunID())))

	for _, group := range spec.Hooks {
		hooks, err := s.reg.resolveHooks(group, PostStart)
		if err != nil {
			return err
		}
		for _, hook := range hooks {
			if err := hook(h); err != nil {
				s.sink.Write([]byte(fmt.Sprintf("[%s] post_start hook in group %q failed: %v", spec.Name, group, err)))
			}
		}
	}

	if spec.ReadyStrategy == "" {
		h.setState(RunningState)
		return nil
	}

	deadline := s.clock.Now().Add(spec.ReadyTimeout())
	result, err := s.prober.Wait(spec, h, deadline)
	if err != nil {
		return fmt.Errorf("readiness probe %q: %w", spec.ReadyStrategy, err)
	}
	switch result {
	case ProbeReady:
		h.setState(RunningState)
		return nil
	default:
		return fmt.Errorf("did not become ready within %s", spec.ReadyTimeout())
	}
}

// Restart fires ON_RESTART hooks, respawns spec's OS process onto the
// same handle, and waits out its readiness probe again. Unlike Start,
// it never runs PRE_START/POST_START -- those belong to the initial
// launch only.
func (s *Scheduler) Restart(spec *ProcessSpec, h *ChildHandle, env []string) error {
	for _, group := range spec.Hooks {
		hooks, err := s.reg.resolveHooks(group, OnRestart)
		if err != nil {
			continue
		}
		for _, hook := range hooks {
			if err := hook(h); err != nil {
				s.sink.Write([]byte(fmt.Sprintf("[%s] on_restart hook in group %q failed: %v", spec.Name, group, err)))
			}
		}
	}

	if err := maybeMkPipe(s.os, spec); err != nil {
		return fmt.Errorf("creating readiness pipe: %w", err)
	}
	if err := h.Spawn(env); err != nil {
		return err
	}
	s.sink.Write([]byte(fmt.Sprintf("[%s] respawned pid %d run_id %s", spec.Name, h.Pid(), h.RunID())))

	if spec.ReadyStrategy == "" {
		h.setState(RunningState)
		return nil
	}

	deadline := s.clock.Now().Add(spec.ReadyTimeout())
	result, err := s.prober.Wait(spec, h, deadline)
	if err != nil {
		return fmt.Errorf("readiness probe %q: %w", spec.ReadyStrategy, err)
	}
	if result != ProbeReady {
		return fmt.Errorf("did not become ready within %s", spec.ReadyTimeout())
	}
	h.setState(RunningState)
	return nil
}

// rollback stops every started child in reverse start order, on a
// best-effort basis; a stop failure for one child does not prevent the
// others from being asked to stop. Each child's ON_SHUTDOWN hooks fire
// exactly as they would during an ordinary fleet teardown, so a plugin
// that releases a resource on shutdown (deregistering from a load
// balancer, say) still runs even though startup never completed.
func (s *Scheduler) rollback(started []*ChildHandle) {
	for i := len(started) - 1; i >= 0; i-- {
		h := started[i]
		if _, err := h.RequestStop(h.Spec().Timeout()); err != nil {
			s.sink.Write([]byte(fmt.Sprintf("[%s] error during rollback stop: %v", h.Name(), err)))
		}
		fireHooks(s.reg, s.sink, h, OnShutdown)
		h.setState(Exited)
		maybeRemovePipe(s.os, h.Spec())
	}
}
