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
	"strings"
	"time"
)

func tokenMatches(b []byte) bool {
	return strings.TrimRight(string(b), " \t\r\n") == "ready"
}

// readyParamString extracts a required string parameter.
func readyParamString(params map[string]interface{}, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// readyParamInt extracts a required integer-valued parameter. JSON and
// YAML decoders hand these back as float64/int depending on source, so
// both are accepted.
func readyParamInt(params map[string]interface{}, key string) (int, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// tcpStrategy is the built-in "tcp" readiness strategy: ready iff a TCP
// connect to host:port succeeds.
type tcpStrategy struct{}

func (tcpStrategy) ValidateParams(params map[string]interface{}) error {
	port, ok := readyParamInt(params, "port")
	if !ok {
		return fmt.Errorf("tcp strategy requires integer ready_params.port")
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("tcp strategy port %d out of range 1-65535", port)
	}
	return nil
}

func (tcpStrategy) Probe(view ChildView, params map[string]interface{}, osImpl OS) (bool, error) {
	port, _ := readyParamInt(params, "port")
	host, ok := readyParamString(params, "host")
	if !ok || host == "" {
		host = "127.0.0.1"
	}
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := osImpl.DialTCP("tcp", addr, defaultPollInterval)
	if err != nil {
		// Any connect failure is transient -- the dependency hasn't
		// opened its listener yet.
		return false, nil
	}
	conn.Close()
	return true, nil
}

// fileStrategy is the built-in "file" readiness strategy: ready iff
// ready_params.path exists as a regular file.
type fileStrategy struct{}

func (fileStrategy) ValidateParams(params map[string]interface{}) error {
	path, ok := readyParamString(params, "path")
	if !ok || path == "" {
		return fmt.Errorf("file strategy requires ready_params.path")
	}
	return nil
}

func (fileStrategy) Probe(view ChildView, params map[string]interface{}, osImpl OS) (bool, error) {
	path, _ := readyParamString(params, "path")
	ok, err := osImpl.StatFile(path)
	if err != nil {
		// Not-found and permission errors are both transient.
		return false, nil
	}
	return ok, nil
}

// pipeStrategy is the built-in "pipe" readiness strategy: ready iff a
// non-blocking read of the named pipe yields the literal token "ready"
// (trailing whitespace ignored, case sensitive).
type pipeStrategy struct{}

func (pipeStrategy) ValidateParams(params map[string]interface{}) error {
	path, ok := readyParamString(params, "path")
	if !ok || path == "" {
		return fmt.Errorf("pipe strategy requires ready_params.path")
	}
	return nil
}

func (pipeStrategy) Probe(view ChildView, params map[string]interface{}, osImpl OS) (bool, error) {
	path, _ := readyParamString(params, "path")
	ready, err := osImpl.ReadPipeToken(path)
	if err != nil {
		// An empty read or would-block is already folded into
		// ReadPipeToken returning (false, nil); here we only see
		// errors the strategy cannot recover from by polling again.
		return false, err
	}
	return ready, nil
}

// Prober blocks until a spec's declared readiness strategy succeeds or
// its deadline elapses. It re-checks the deadline before every sleep,
// so a slow probe call cannot overrun the timeout by more than one
// poll interval plus the probe's own blocking cost.
type Prober struct {
	reg          *Registry
	os           OS
	clock        Clock
	pollInterval time.Duration
}

// NewProber builds a Prober with the given poll interval (0 selects the
// default of 100ms).
func NewProber(reg *Registry, osImpl OS, clock Clock, pollInterval time.Duration) *Prober {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Prober{reg: reg, os: osImpl, clock: clock, pollInterval: pollInterval}
}

// ProbeResult is the outcome of a readiness wait.
type ProbeResult int

const (
	ProbeReady ProbeResult = iota
	ProbeTimeout
	ProbeError
)

// Wait blocks until spec's ready strategy reports ready, the deadline
// passes, or the strategy itself errors out. A spec with no
// ready_strategy is immediately ready.
func (p *Prober) Wait(spec *ProcessSpec, view ChildView, deadline time.Time) (ProbeResult, error) {
	if spec.ReadyStrategy == "" {
		return ProbeReady, nil
	}
	strategy, err := p.reg.resolveStrategy(spec.ReadyStrategy)
	if err != nil {
		return ProbeError, err
	}

	for {
		ready, err := strategy.Probe(view, spec.ReadyParams, p.os)
		if err != nil {
			return ProbeError, err
		}
		if ready {
			return ProbeReady, nil
		}
		if !p.clock.Now().Before(deadline) {
			return ProbeTimeout, nil
		}
		remaining := deadline.Sub(p.clock.Now())
		sleep := p.pollInterval
		if remaining < sleep {
			sleep = remaining
		}
		if sleep <= 0 {
			return ProbeTimeout, nil
		}
		p.clock.Sleep(sleep)
	}
}
