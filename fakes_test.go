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
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// fakeClock gives tests full control over elapsed time. Sleep advances
// the clock instantly; After hands the caller a channel that a test
// fires explicitly via fireTick, so a Monitor's tick loop advances only
// when the test says so.
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	reqs chan chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1000, 0), reqs: make(chan chan time.Time, 64)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.reqs <- ch
	return ch
}

// fireTick releases the oldest pending After call, advancing the clock
// by one nanosecond so successive ticks are distinguishable.
func (c *fakeClock) fireTick() {
	ch := <-c.reqs
	c.mu.Lock()
	c.now = c.now.Add(time.Nanosecond)
	now := c.now
	c.mu.Unlock()
	ch <- now
}

// fakeProc is a controllable stand-in for a running OS process.
type fakeProc struct {
	pid int

	mu      sync.Mutex
	exited  bool
	code    int
	killed  bool
	signals []os.Signal
	done    chan struct{}
}

func newFakeProc(pid int) *fakeProc {
	return &fakeProc{pid: pid, done: make(chan struct{})}
}

func (p *fakeProc) Pid() int { return p.pid }

func (p *fakeProc) Signal(sig os.Signal) error {
	p.mu.Lock()
	p.signals = append(p.signals, sig)
	p.mu.Unlock()
	return nil
}

func (p *fakeProc) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.exit(-1)
	return nil
}

func (p *fakeProc) Poll() (bool, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited, p.code
}

func (p *fakeProc) Wait() int {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code
}

// exit marks the process as having exited with code, exactly once.
func (p *fakeProc) exit(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return
	}
	p.exited = true
	p.code = code
	close(p.done)
}

func (p *fakeProc) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

func (p *fakeProc) sentSIGTERM() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.signals) > 0
}

// fakeOS is a scriptable OS. Spawn, StatFile and MkPipe default to
// success; DialTCP and ReadPipeToken default to "not ready", so a test
// using the tcp or pipe strategy sets dialOK or readPipeFunc. Tests
// override individual fields to exercise failure paths.
type fakeOS struct {
	mu sync.Mutex

	nextPid int
	procs   map[string]*fakeProc

	spawnErr     error
	dialErr      error
	dialOK       bool
	statOK       bool
	statErr      error
	pipes        map[string]bool
	mkPipeErr    error
	readPipeFunc func(path string) (bool, error)
}

func newFakeOS() *fakeOS {
	return &fakeOS{
		nextPid: 100,
		procs:   map[string]*fakeProc{},
		statOK:  true,
		pipes:   map[string]bool{},
	}
}

func (o *fakeOS) Spawn(spec *ProcessSpec, env []string, logger io.Writer) (Proc, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.spawnErr != nil {
		return nil, o.spawnErr
	}
	o.nextPid++
	p := newFakeProc(o.nextPid)
	o.procs[spec.Name] = p
	return p, nil
}

func (o *fakeOS) procFor(name string) *fakeProc {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.procs[name]
}

func (o *fakeOS) DialTCP(network, addr string, timeout time.Duration) (net.Conn, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.dialOK {
		return fakeConn{}, nil
	}
	if o.dialErr != nil {
		return nil, o.dialErr
	}
	return nil, errors.New("connection refused")
}

// fakeConn is a no-op net.Conn, enough to let tcpStrategy.Probe close it.
type fakeConn struct{ net.Conn }

func (fakeConn) Close() error { return nil }

func (o *fakeOS) StatFile(path string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.statOK, o.statErr
}

func (o *fakeOS) MkPipe(path string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.mkPipeErr != nil {
		return o.mkPipeErr
	}
	o.pipes[path] = true
	return nil
}

func (o *fakeOS) RemovePipe(path string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.pipes, path)
	return nil
}

func (o *fakeOS) ReadPipeToken(path string) (bool, error) {
	o.mu.Lock()
	fn := o.readPipeFunc
	o.mu.Unlock()
	if fn != nil {
		return fn(path)
	}
	return false, nil
}

func (o *fakeOS) hasPipe(path string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pipes[path]
}

// fakeStatsCollector hands out samplers that report a fixed, mutable
// snapshot per process name.
type fakeStatsCollector struct {
	mu      sync.Mutex
	samples map[string]ProcessStats
	err     error
}

func newFakeStatsCollector() *fakeStatsCollector {
	return &fakeStatsCollector{samples: map[string]ProcessStats{}}
}

func (c *fakeStatsCollector) NewSampler(name string, pid int) StatSampler {
	return &fakeSampler{collector: c, name: name, pid: pid}
}

func (c *fakeStatsCollector) set(name string, s ProcessStats) {
	c.mu.Lock()
	c.samples[name] = s
	c.mu.Unlock()
}

type fakeSampler struct {
	collector *fakeStatsCollector
	name      string
	pid       int
}

func (s *fakeSampler) Sample() (ProcessStats, error) {
	s.collector.mu.Lock()
	defer s.collector.mu.Unlock()
	if s.collector.err != nil {
		return ProcessStats{}, s.collector.err
	}
	stats := s.collector.samples[s.name]
	stats.Name = s.name
	return stats, nil
}

// noopLogger discards everything written to it.
type noopLogger struct{}

func (noopLogger) Write(b []byte) (int, error) { return len(b), nil }

func newTestSink() *MultiLogger {
	return NewMultiLogger()
}
