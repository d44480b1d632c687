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

// Package pilot is a process supervisor.  Given a manifest describing a
// set of child programs, their dependencies, and how each one signals
// that it is ready, it launches the fleet in dependency order, monitors
// liveness and resource usage, and tears everything down again on an
// operator signal or a policy-driven failure.
//
// It is not a replacement for your system's init system.  It is a tool
// for managing a related group of processes -- for example, the
// components of a single application deployment -- as a unit.
package pilot
