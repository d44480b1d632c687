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
	"bytes"
	"log"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMultiLogger(t *testing.T) {
	Convey("Given a fresh MultiLogger", t, func() {
		m := NewMultiLogger()
		So(m.TargetCount(), ShouldEqual, 0)

		var buf bytes.Buffer
		target := log.New(&buf, "", 0)

		Convey("AddLogger registers a fan-out target that receives every line", func() {
			So(m.AddLogger(target), ShouldBeNil)
			So(m.TargetCount(), ShouldEqual, 1)

			m.Logger().Print("hello")
			So(buf.String(), ShouldEqual, "hello\n")
		})

		Convey("Adding the same logger twice is rejected", func() {
			So(m.AddLogger(target), ShouldBeNil)
			So(m.AddLogger(target), ShouldEqual, errLoggerAlreadyAdded)
			So(m.TargetCount(), ShouldEqual, 1)
		})

		Convey("RemoveLogger detaches a target", func() {
			So(m.AddLogger(target), ShouldBeNil)
			m.RemoveLogger(target)
			So(m.TargetCount(), ShouldEqual, 0)

			m.Logger().Print("nothing should arrive")
			So(buf.String(), ShouldEqual, "")
		})

		Convey("RemoveLogger on an unregistered target is a no-op", func() {
			m.RemoveLogger(target)
			So(m.TargetCount(), ShouldEqual, 0)
		})
	})
}
