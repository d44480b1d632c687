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
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Options configures a Supervisor. The zero value is production
// defaults; tests override Clock, OS, and StatsCollector with fakes.
type Options struct {
	// TickInterval is the Monitor Loop's polling period. Zero selects
	// the default of 100ms.
	TickInterval time.Duration
	// PollInterval is the Readiness Prober's polling period. Zero
	// selects the default of 100ms.
	PollInterval time.Duration
	Clock        Clock
	OS           OS
	StatsCollector StatsCollector
	// LogOutputs receives every child's stdout/stderr plus the
	// supervisor's own lifecycle log lines. Defaults to os.Stderr if
	// left empty.
	LogOutputs []*log.Logger
}

// Supervisor is the public façade: it owns a validated manifest, the
// plugin registry, and, once started, the active ChildHandle set via
// its Monitor. It is safe for concurrent use by multiple goroutines.
type Supervisor struct {
	manifest *ProcessManifest
	reg      *Registry
	clock    Clock
	os       OS
	sched    *Scheduler
	sink     *MultiLogger
	tick     time.Duration

	mu        sync.Mutex
	started   bool
	monitor   *Monitor
	topoOrder []string

	stopOnce sync.Once
	stopErr  error
	runDone  chan struct{}
	runErr   error

	sigCh   chan os.Signal
	sigDone chan struct{}
}

// New builds a Supervisor ready to accept plugin registrations. It
// does not validate manifest: Start (or Validate) does that, against
// the built-in strategies plus whatever plugins were registered by
// then. It performs no I/O and spawns nothing.
func New(manifest *ProcessManifest, opts Options) (*Supervisor, error) {
	clock := opts.Clock
	if clock == nil {
		clock = NewSystemClock()
	}
	osImpl := opts.OS
	if osImpl == nil {
		osImpl = NewRealOS()
	}
	collector := opts.StatsCollector
	if collector == nil {
		collector = NewStatsCollector()
	}

	reg := NewRegistry()

	sink := NewMultiLogger()
	if len(opts.LogOutputs) == 0 {
		_ = sink.AddLogger(log.New(os.Stderr, "", log.LstdFlags))
	} else {
		for _, l := range opts.LogOutputs {
			// A caller passing the same *log.Logger twice in
			// LogOutputs is harmless; the second add is simply
			// dropped rather than duplicating every line.
			_ = sink.AddLogger(l)
		}
	}

	tick := opts.TickInterval
	if tick <= 0 {
		tick = defaultTickInterval
	}

	sv := &Supervisor{
		manifest: manifest,
		reg:      reg,
		clock:    clock,
		os:       osImpl,
		sink:     sink,
		tick:     tick,
	}
	sv.sched = NewScheduler(reg, NewProber(reg, osImpl, clock, opts.PollInterval), osImpl, clock, collector, sink)
	return sv, nil
}

// Validate runs manifest validation against the registry as it stands
// right now; Start calls this itself, but callers may want to surface
// a ManifestError before registering plugins or touching signals.
func (sv *Supervisor) Validate() error {
	return sv.manifest.Validate(sv.reg)
}

// RegisterPlugins pulls each plugin's declared hooks, strategies, and
// stats handlers into the registry. Legal only before Start.
func (sv *Supervisor) RegisterPlugins(plugins ...Plugin) error {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	if sv.started {
		return ErrAlreadyStarted
	}
	for _, p := range plugins {
		if err := sv.reg.Register(p); err != nil {
			return err
		}
	}
	return nil
}

// Log returns the supervisor's fan-out logger, so a caller can attach
// its own destination (a file, a ring buffer for a status page) before
// or after Start.
func (sv *Supervisor) Log() *MultiLogger {
	return sv.sink
}

// Start validates the manifest, spawns every process in dependency
// order, and, on success, launches the Monitor Loop in the
// background before returning. It blocks until every process has
// reached READY/RUNNING or a StartupFailure has been fully torn down.
// Calling Start twice returns ErrAlreadyStarted.
func (sv *Supervisor) Start() error {
	sv.mu.Lock()
	if sv.started {
		sv.mu.Unlock()
		return ErrAlreadyStarted
	}
	sv.mu.Unlock()

	if err := sv.manifest.Validate(sv.reg); err != nil {
		return err
	}

	env := os.Environ()
	handles, err := sv.sched.Start(sv.manifest, env)
	if err != nil {
		return err
	}

	var topoOrder []string
	for _, b := range sv.manifest.Batches() {
		for _, spec := range b {
			topoOrder = append(topoOrder, spec.Name)
		}
	}

	monitor := NewMonitor(sv.sched, sv.reg, sv.os, sv.clock, sv.sink, sv.tick, handles, topoOrder, env)

	sv.mu.Lock()
	sv.started = true
	sv.monitor = monitor
	sv.topoOrder = topoOrder
	sv.runDone = make(chan struct{})
	sv.mu.Unlock()

	go func() {
		err := monitor.Run()
		sv.mu.Lock()
		sv.runErr = err
		sv.mu.Unlock()
		close(sv.runDone)
	}()

	sv.installSignalHandler()
	return nil
}

// Stop initiates fleet teardown and blocks until every child has
// exited or been force-killed. It is idempotent: a second call, or a
// call before Start, returns immediately with the result of the first.
func (sv *Supervisor) Stop() error {
	sv.mu.Lock()
	monitor := sv.monitor
	runDone := sv.runDone
	sv.mu.Unlock()
	if monitor == nil {
		return nil
	}

	sv.stopOnce.Do(func() {
		monitor.RequestStop()
		sv.stopSignalHandler()
		if runDone != nil {
			<-runDone
		}
		sv.mu.Lock()
		sv.stopErr = sv.runErr
		sv.mu.Unlock()
	})

	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.stopErr
}

// Wait blocks until the Monitor Loop has torn the fleet down, however
// that came about -- an operator Stop, a shutdown_everything child, or
// an internal error -- without itself requesting a stop. Use this from
// a long-running process-pilot binary that relies on signal handling
// to trigger Stop.
func (sv *Supervisor) Wait() error {
	sv.mu.Lock()
	runDone := sv.runDone
	sv.mu.Unlock()
	if runDone == nil {
		return nil
	}
	<-runDone
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.runErr
}

// RestartProcesses validates that every name is known and currently
// RUNNING, then restarts each in turn: STOPPING -> ON_RESTART hooks ->
// spawn -> readiness. A concurrent Stop preempts any restart still in
// flight. Fails with UnknownProcess, before any side effects, if any
// name is invalid.
func (sv *Supervisor) RestartProcesses(names []string) error {
	sv.mu.Lock()
	monitor := sv.monitor
	sv.mu.Unlock()
	if monitor == nil {
		return ErrNotStarted
	}
	return monitor.RequestRestart(names)
}

// Snapshot returns a read-mostly view of every currently active
// child, suitable for a status page or API. Callers must not retain
// the slice past the call that obtained it, for the same reason
// plugin hooks must not: the underlying ChildHandle may be recycled
// once the Monitor reaps it.
func (sv *Supervisor) Snapshot() []ChildView {
	sv.mu.Lock()
	monitor := sv.monitor
	sv.mu.Unlock()
	if monitor == nil {
		return nil
	}
	handles := monitor.snapshot()
	views := make([]ChildView, 0, len(handles))
	for _, h := range handles {
		views = append(views, h)
	}
	return views
}

// installSignalHandler arranges for the first SIGINT/SIGTERM to
// trigger Stop exactly once; a second SIGINT after that forces
// immediate termination of any straggling children.
func (sv *Supervisor) installSignalHandler() {
	sv.mu.Lock()
	sv.sigCh = make(chan os.Signal, 2)
	sv.sigDone = make(chan struct{})
	sigCh := sv.sigCh
	done := sv.sigDone
	sv.mu.Unlock()

	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-done:
			return
		}

		go sv.Stop()

		select {
		case sig := <-sigCh:
			if sig == syscall.SIGINT {
				sv.forceKillStragglers()
			}
		case <-done:
		}
	}()
}

func (sv *Supervisor) stopSignalHandler() {
	sv.mu.Lock()
	sigCh, done := sv.sigCh, sv.sigDone
	sv.mu.Unlock()
	if sigCh == nil {
		return
	}
	signal.Stop(sigCh)
	select {
	case <-done:
	default:
		close(done)
	}
}

// forceKillStragglers is the second-SIGINT escalation: any child the
// Monitor hasn't yet reaped is sent SIGKILL directly.
func (sv *Supervisor) forceKillStragglers() {
	sv.mu.Lock()
	monitor := sv.monitor
	sv.mu.Unlock()
	if monitor == nil {
		return
	}
	for _, h := range monitor.snapshot() {
		h.mu.Lock()
		proc := h.proc
		h.mu.Unlock()
		if proc != nil {
			proc.Kill()
		}
	}
}
