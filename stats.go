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
	"github.com/shirou/gopsutil/v3/process"
)

// StatSampler produces successive ProcessStats snapshots for one
// running child. CPU percent is measured over the interval since the
// previous call to Sample for the same sampler; the first call always
// reports 0.0, since there is no prior sample to measure against.
type StatSampler interface {
	Sample() (ProcessStats, error)
}

// StatsCollector builds a StatSampler bound to one child's PID. It is
// the seam tests substitute a fake against, so that resource-usage
// assertions don't depend on what the real OS reports for a stub
// process.
type StatsCollector interface {
	NewSampler(name string, pid int) StatSampler
}

type gopsutilCollector struct{}

// NewStatsCollector returns the production StatsCollector, backed by
// gopsutil's process package.
func NewStatsCollector() StatsCollector { return gopsutilCollector{} }

func (gopsutilCollector) NewSampler(name string, pid int) StatSampler {
	return &gopsutilSampler{name: name, pid: pid}
}

type gopsutilSampler struct {
	name string
	pid  int
	proc *process.Process
}

func (s *gopsutilSampler) Sample() (ProcessStats, error) {
	if s.proc == nil {
		p, err := process.NewProcess(int32(s.pid))
		if err != nil {
			return ProcessStats{}, err
		}
		s.proc = p
	}

	stats := ProcessStats{Name: s.name, Pid: s.pid}

	if mem, err := s.proc.MemoryInfo(); err == nil && mem != nil {
		stats.MemoryMB = float64(mem.RSS) / (1024 * 1024)
	}
	// Percent(0) measures CPU usage since the sampler's previous call
	// against this same *process.Process; with no prior call it
	// reports 0, matching the "first sample is 0.0" contract.
	if pct, err := s.proc.Percent(0); err == nil {
		stats.CPUPercent = pct
	}
	if threads, err := s.proc.NumThreads(); err == nil {
		stats.NumThreads = threads
	}
	if children, err := s.proc.Children(); err == nil {
		stats.NumChildren = len(children)
	}
	return stats, nil
}
