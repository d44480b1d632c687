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

	. "github.com/smartystreets/goconvey/convey"
)

func spec(name string, deps ...string) *ProcessSpec {
	return &ProcessSpec{Name: name, Path: "/bin/true", TimeoutSec: 1, Dependencies: deps}
}

func TestManifestValidate(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		reg := NewRegistry()

		Convey("A single process with no dependencies validates", func() {
			m := NewManifest([]*ProcessSpec{spec("a")})
			So(m.Validate(reg), ShouldBeNil)
			So(m.Batches(), ShouldHaveLength, 1)
		})

		Convey("A dependency chain batches in topological order", func() {
			m := NewManifest([]*ProcessSpec{spec("c", "b"), spec("b", "a"), spec("a")})
			So(m.Validate(reg), ShouldBeNil)
			batches := m.Batches()
			So(batches, ShouldHaveLength, 3)
			So(batches[0][0].Name, ShouldEqual, "a")
			So(batches[1][0].Name, ShouldEqual, "b")
			So(batches[2][0].Name, ShouldEqual, "c")
		})

		Convey("Independent processes share a batch", func() {
			m := NewManifest([]*ProcessSpec{spec("a"), spec("b"), spec("c", "a", "b")})
			So(m.Validate(reg), ShouldBeNil)
			batches := m.Batches()
			So(batches, ShouldHaveLength, 2)
			So(batches[0], ShouldHaveLength, 2)
			So(batches[1], ShouldHaveLength, 1)
		})

		Convey("A duplicate name is rejected", func() {
			m := NewManifest([]*ProcessSpec{spec("a"), spec("a")})
			err := m.Validate(reg)
			So(err, ShouldNotBeNil)
			var me *ManifestError
			So(err, ShouldHaveSameTypeAs, me)
			So(err.(*ManifestError).Kind, ShouldEqual, DuplicateName)
		})

		Convey("An unknown dependency is rejected", func() {
			m := NewManifest([]*ProcessSpec{spec("a", "ghost")})
			err := m.Validate(reg)
			So(err.(*ManifestError).Kind, ShouldEqual, UnknownDependency)
		})

		Convey("A cycle is rejected", func() {
			m := NewManifest([]*ProcessSpec{spec("a", "b"), spec("b", "a")})
			err := m.Validate(reg)
			So(err.(*ManifestError).Kind, ShouldEqual, CycleDetected)
		})

		Convey("An unknown ready_strategy is rejected", func() {
			s := spec("a")
			s.ReadyStrategy = "telepathy"
			s.ReadyTimeoutSec = 1
			m := NewManifest([]*ProcessSpec{s})
			err := m.Validate(reg)
			So(err.(*ManifestError).Kind, ShouldEqual, UnknownCapability)
		})

		Convey("A ready_strategy missing its required param is rejected", func() {
			s := spec("a")
			s.ReadyStrategy = "tcp"
			s.ReadyTimeoutSec = 1
			m := NewManifest([]*ProcessSpec{s})
			err := m.Validate(reg)
			So(err.(*ManifestError).Kind, ShouldEqual, MissingReadyParam)
		})

		Convey("A ready_strategy with no ready_timeout_sec is rejected", func() {
			s := spec("a")
			s.ReadyStrategy = "file"
			s.ReadyParams = map[string]interface{}{"path": "/tmp/x"}
			m := NewManifest([]*ProcessSpec{s})
			err := m.Validate(reg)
			So(err.(*ManifestError).Kind, ShouldEqual, SchemaViolation)
		})

		Convey("An unknown hook group is rejected", func() {
			s := spec("a")
			s.Hooks = []string{"nope"}
			m := NewManifest([]*ProcessSpec{s})
			err := m.Validate(reg)
			So(err.(*ManifestError).Kind, ShouldEqual, UnknownCapability)
		})

		Convey("shutdown_strategy defaults to restart", func() {
			s := spec("a")
			m := NewManifest([]*ProcessSpec{s})
			So(m.Validate(reg), ShouldBeNil)
			So(s.ShutdownStrategy, ShouldEqual, Restart)
		})
	})
}
