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
	"io"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// ChildHandle is the runtime counterpart of a ProcessSpec: a single
// spawned (or not-yet-spawned, or no-longer-running) OS process, its
// current lifecycle state, and its most recently collected stats. The
// Supervisor Façade is the exclusive owner and mutator of a
// ChildHandle; plugins only ever see it through the read-mostly
// ChildView interface.
type ChildHandle struct {
	spec      *ProcessSpec
	os        OS
	clock     Clock
	logger    io.Writer
	collector StatsCollector
	sampler   StatSampler

	mu           sync.Mutex
	proc         Proc
	runID        uuid.UUID
	startedAt    time.Time
	state        LifecycleState
	exitCode     int
	stats        ProcessStats
	restartCount int
}

// NewChildHandle builds a ChildHandle for spec, PENDING until Spawn is
// called.
func NewChildHandle(spec *ProcessSpec, osImpl OS, clock Clock, collector StatsCollector, logger io.Writer) *ChildHandle {
	return &ChildHandle{
		spec:      spec,
		os:        osImpl,
		clock:     clock,
		collector: collector,
		logger:    logger,
		state:     Pending,
	}
}

func (c *ChildHandle) Name() string       { return c.spec.Name }
func (c *ChildHandle) Spec() *ProcessSpec { return c.spec }

func (c *ChildHandle) Pid() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proc == nil {
		return 0
	}
	return c.proc.Pid()
}

func (c *ChildHandle) State() LifecycleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *ChildHandle) setState(s LifecycleState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// ExitCode returns the most recent exit code, valid once State() is
// EXITED or TERMINATED_BY_POLICY.
func (c *ChildHandle) ExitCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitCode
}

func (c *ChildHandle) LastStats() ProcessStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *ChildHandle) RestartCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restartCount
}

// RunID identifies the OS process instance currently backing this
// handle, for correlating log lines and stats samples across restarts.
// It changes on every Spawn, including a restart's respawn. Empty
// before the first Spawn.
func (c *ChildHandle) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runID == uuid.Nil {
		return ""
	}
	return c.runID.String()
}

func (c *ChildHandle) StartedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt
}

func (c *ChildHandle) bumpRestartCount() {
	c.mu.Lock()
	c.restartCount++
	c.mu.Unlock()
}

// mergeEnv merges spec env over the supervisor's inherited
// environment, with spec entries winning on key collision.
func mergeEnv(inherited []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return inherited
	}
	merged := make([]string, 0, len(inherited)+len(overrides))
	for _, kv := range inherited {
		key := kv
		for i, r := range kv {
			if r == '=' {
				key = kv[:i]
				break
			}
		}
		if _, overridden := overrides[key]; overridden {
			continue
		}
		merged = append(merged, kv)
	}
	for k, v := range overrides {
		merged = append(merged, k+"="+v)
	}
	return merged
}

// Spawn forks/execs the spec's command with the merged environment,
// transitioning PENDING -> STARTING. It does not wait for readiness;
// that is the Prober's job.
func (c *ChildHandle) Spawn(inheritedEnv []string) error {
	env := mergeEnv(inheritedEnv, c.spec.Env)
	proc, err := c.os.Spawn(c.spec, env, c.logger)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.proc = proc
	c.runID = uuid.New()
	c.startedAt = c.clock.Now()
	c.state = Starting
	c.exitCode = 0
	c.mu.Unlock()

	c.sampler = c.collector.NewSampler(c.spec.Name, proc.Pid())
	return nil
}

// PollAlive is a non-blocking liveness check. If the process has
// exited since the last poll, it records the exit code and reports
// false; it does not itself change the lifecycle state, which is left
// to the Monitor Loop, which decides how to react.
func (c *ChildHandle) PollAlive() (alive bool, exitCode int) {
	c.mu.Lock()
	proc := c.proc
	c.mu.Unlock()
	if proc == nil {
		return false, 0
	}
	exited, code := proc.Poll()
	if exited {
		c.mu.Lock()
		c.exitCode = code
		c.mu.Unlock()
		return false, code
	}
	return true, 0
}

// CollectStats samples current resource usage for the child. It
// returns the zero value without error if the child has never been
// spawned.
func (c *ChildHandle) CollectStats() (ProcessStats, error) {
	c.mu.Lock()
	sampler := c.sampler
	pid := 0
	if c.proc != nil {
		pid = c.proc.Pid()
	}
	runID := c.runID
	c.mu.Unlock()
	if sampler == nil {
		return ProcessStats{}, nil
	}
	stats, err := sampler.Sample()
	if err != nil {
		return ProcessStats{}, err
	}
	stats.Pid = pid
	if runID != uuid.Nil {
		stats.RunID = runID.String()
	}
	stats.Timestamp = c.clock.Now()

	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()
	return stats, nil
}

func minDuration(a, b time.Duration) time.Duration {
	if b < a {
		return b
	}
	return a
}

// RequestStop sends SIGTERM and escalates to SIGKILL if the child is
// still alive after gracefulTimeout, blocking until it has exited.
// Calling it on a child that was never spawned, or already exited, is
// a no-op.
func (c *ChildHandle) RequestStop(gracefulTimeout time.Duration) (timedOut bool, err error) {
	c.mu.Lock()
	proc := c.proc
	c.mu.Unlock()
	if proc == nil {
		return false, nil
	}
	if exited, _ := proc.Poll(); exited {
		return false, nil
	}

	c.setState(Stopping)
	if sigErr := proc.Signal(syscall.SIGTERM); sigErr != nil && sigErr != os.ErrProcessDone {
		err = sigErr
	}

	if gracefulTimeout >= 0 {
		deadline := c.clock.Now().Add(gracefulTimeout)
		for {
			if exited, _ := proc.Poll(); exited {
				break
			}
			if !c.clock.Now().Before(deadline) {
				break
			}
			c.clock.Sleep(minDuration(defaultPollInterval, deadline.Sub(c.clock.Now())))
		}
		if exited, _ := proc.Poll(); !exited {
			proc.Kill()
			timedOut = true
		}
	}

	code := proc.Wait()
	c.mu.Lock()
	c.exitCode = code
	c.mu.Unlock()
	if timedOut && err == nil {
		err = &StopTimeout{Process: c.spec.Name, Timeout: gracefulTimeout.Seconds()}
	}
	return timedOut, err
}

// Wait blocks until the child exits or deadline passes, returning the
// exit code in the former case.
func (c *ChildHandle) Wait(deadline time.Time) (exited bool, code int) {
	c.mu.Lock()
	proc := c.proc
	c.mu.Unlock()
	if proc == nil {
		return true, 0
	}
	for {
		if e, ec := proc.Poll(); e {
			return true, ec
		}
		if !c.clock.Now().Before(deadline) {
			return false, 0
		}
		c.clock.Sleep(minDuration(defaultPollInterval, deadline.Sub(c.clock.Now())))
	}
}
