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

//go:build windows

package pilot

import (
	"os"
	"syscall"
)

const createNewProcessGroup = 0x00000200

// mkfifo stands in for a POSIX FIFO on platforms with no such concept.
// ready_params.path is created as an empty regular file; the child is
// expected to write the readiness token to it and the prober treats a
// non-empty read the same way it treats a FIFO read.
func mkfifo(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	return f.Close()
}

func sysProcAttrDetached() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: createNewProcessGroup}
}

// readPipeOnce reads whatever is currently in the drop-box file. Unlike
// a real FIFO this never blocks, so "not ready" and "no data yet" are
// indistinguishable from a plain empty read.
func readPipeOnce(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) || os.IsPermission(err) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}
