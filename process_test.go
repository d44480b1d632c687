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
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestChildHandleLifecycle(t *testing.T) {
	Convey("Given a pending ChildHandle backed by a fake OS", t, func() {
		s := spec("worker")
		osImpl := newFakeOS()
		clock := newFakeClock()
		collector := newFakeStatsCollector()
		h := NewChildHandle(s, osImpl, clock, collector, noopLogger{})

		So(h.State(), ShouldEqual, Pending)
		So(h.Pid(), ShouldEqual, 0)

		Convey("Spawn transitions to STARTING, assigns a pid, and stamps a fresh RunID", func() {
			So(h.RunID(), ShouldEqual, "")
			So(h.Spawn(nil), ShouldBeNil)
			So(h.State(), ShouldEqual, Starting)
			So(h.Pid(), ShouldBeGreaterThan, 0)
			So(h.RunID(), ShouldNotEqual, "")
		})

		Convey("Each Spawn stamps a different RunID", func() {
			So(h.Spawn(nil), ShouldBeNil)
			first := h.RunID()
			So(h.Spawn(nil), ShouldBeNil)
			So(h.RunID(), ShouldNotEqual, first)
		})

		Convey("PollAlive reports alive until the process exits", func() {
			So(h.Spawn(nil), ShouldBeNil)
			alive, _ := h.PollAlive()
			So(alive, ShouldBeTrue)

			proc := osImpl.procFor("worker")
			proc.exit(0)

			alive, code := h.PollAlive()
			So(alive, ShouldBeFalse)
			So(code, ShouldEqual, 0)
			So(h.ExitCode(), ShouldEqual, 0)
		})

		Convey("CollectStats samples through the injected collector", func() {
			So(h.Spawn(nil), ShouldBeNil)
			collector.set("worker", ProcessStats{MemoryMB: 42})
			stats, err := h.CollectStats()
			So(err, ShouldBeNil)
			So(stats.MemoryMB, ShouldEqual, 42)
			So(stats.RunID, ShouldEqual, h.RunID())
			So(h.LastStats().MemoryMB, ShouldEqual, 42)
		})

		Convey("RequestStop sends SIGTERM and waits for exit", func() {
			So(h.Spawn(nil), ShouldBeNil)
			proc := osImpl.procFor("worker")

			done := make(chan struct{})
			go func() {
				h.RequestStop(time.Second)
				close(done)
			}()
			// give RequestStop a chance to send SIGTERM, then let the
			// process exit. The fake clock's Sleep advances instantly,
			// so RequestStop may already have escalated to SIGKILL;
			// either way it returns only once the process has exited.
			time.Sleep(time.Millisecond)
			So(proc.sentSIGTERM(), ShouldBeTrue)
			proc.exit(0)
			<-done
			So(h.State(), ShouldEqual, Stopping)
		})

		Convey("RequestStop escalates to SIGKILL once the graceful timeout elapses", func() {
			So(h.Spawn(nil), ShouldBeNil)
			proc := osImpl.procFor("worker")
			// proc never exits on its own, so the fake clock's own
			// advancement inside RequestStop's poll loop is what
			// drives it past the deadline.
			timedOut, err := h.RequestStop(2 * time.Millisecond)
			So(timedOut, ShouldBeTrue)
			So(err, ShouldNotBeNil)
			So(proc.wasKilled(), ShouldBeTrue)
		})

		Convey("RequestStop on a never-spawned handle is a no-op", func() {
			timedOut, err := h.RequestStop(time.Second)
			So(timedOut, ShouldBeFalse)
			So(err, ShouldBeNil)
		})

		Convey("bumpRestartCount increments RestartCount", func() {
			So(h.RestartCount(), ShouldEqual, 0)
			h.bumpRestartCount()
			So(h.RestartCount(), ShouldEqual, 1)
		})
	})
}

func TestMergeEnv(t *testing.T) {
	Convey("Spec-level env entries override inherited ones by key", t, func() {
		inherited := []string{"PATH=/usr/bin", "HOME=/root"}
		merged := mergeEnv(inherited, map[string]string{"HOME": "/srv", "EXTRA": "1"})
		So(merged, ShouldContain, "PATH=/usr/bin")
		So(merged, ShouldContain, "HOME=/srv")
		So(merged, ShouldContain, "EXTRA=1")
		So(merged, ShouldNotContain, "HOME=/root")
	})

	Convey("No overrides returns the inherited slice unchanged", t, func() {
		inherited := []string{"PATH=/usr/bin"}
		So(mergeEnv(inherited, nil), ShouldResemble, inherited)
	})
}
