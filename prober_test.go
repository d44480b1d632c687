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

func TestProberWait(t *testing.T) {
	Convey("Given a registry and a fake OS", t, func() {
		reg := NewRegistry()
		osImpl := newFakeOS()
		clock := newFakeClock()
		prober := NewProber(reg, osImpl, clock, time.Millisecond)

		Convey("A file strategy that is already ready returns immediately", func() {
			osImpl.statOK = true
			s := spec("a")
			s.ReadyStrategy = "file"
			s.ReadyParams = map[string]interface{}{"path": "/tmp/x"}
			result, err := prober.Wait(s, nil, clock.Now().Add(time.Second))
			So(err, ShouldBeNil)
			So(result, ShouldEqual, ProbeReady)
		})

		Convey("A file strategy that never appears times out", func() {
			osImpl.statOK = false
			s := spec("a")
			s.ReadyStrategy = "file"
			s.ReadyParams = map[string]interface{}{"path": "/tmp/x"}
			result, err := prober.Wait(s, nil, clock.Now().Add(5*time.Millisecond))
			So(err, ShouldBeNil)
			So(result, ShouldEqual, ProbeTimeout)
		})

		Convey("A pipe strategy becomes ready once the token is read", func() {
			attempts := 0
			osImpl.readPipeFunc = func(path string) (bool, error) {
				attempts++
				return attempts >= 3, nil
			}
			s := spec("a")
			s.ReadyStrategy = "pipe"
			s.ReadyParams = map[string]interface{}{"path": "/tmp/p"}
			result, err := prober.Wait(s, nil, clock.Now().Add(time.Second))
			So(err, ShouldBeNil)
			So(result, ShouldEqual, ProbeReady)
			So(attempts, ShouldBeGreaterThanOrEqualTo, 3)
		})

		Convey("A spec with no ready_strategy is immediately ready", func() {
			s := spec("a")
			result, err := prober.Wait(s, nil, clock.Now())
			So(err, ShouldBeNil)
			So(result, ShouldEqual, ProbeReady)
		})

		Convey("An unknown strategy name errors out", func() {
			s := spec("a")
			s.ReadyStrategy = "telepathy"
			_, err := prober.Wait(s, nil, clock.Now().Add(time.Second))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestTCPStrategyValidateParams(t *testing.T) {
	Convey("tcp strategy requires an in-range port", t, func() {
		var s tcpStrategy
		So(s.ValidateParams(map[string]interface{}{"port": 8080}), ShouldBeNil)
		So(s.ValidateParams(map[string]interface{}{"port": float64(8080)}), ShouldBeNil)
		So(s.ValidateParams(map[string]interface{}{}), ShouldNotBeNil)
		So(s.ValidateParams(map[string]interface{}{"port": 0}), ShouldNotBeNil)
	})
}
