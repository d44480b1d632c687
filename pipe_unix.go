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

//go:build !windows

package pilot

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// mkfifo creates the POSIX FIFO backing the pipe readiness strategy.
// A pre-existing FIFO (left over from a prior crash) is tolerated.
func mkfifo(path string) error {
	err := unix.Mkfifo(path, 0o600)
	if err != nil && err == unix.EEXIST {
		return nil
	}
	return err
}

// sysProcAttrDetached puts the child in its own session so that a
// SIGINT delivered to the supervisor's foreground process group does
// not also reach it; the supervisor signals children explicitly.
func sysProcAttrDetached() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

// readPipeOnce performs one non-blocking read of the named FIFO. A
// would-block condition (no writer yet, or no data pending) is
// reported as a transient, error-free empty read; the prober treats
// that identically to "not ready yet".
func readPipeOnce(path string) ([]byte, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		if err == unix.ENXIO {
			// No writer has opened the pipe yet.
			return nil, nil
		}
		return nil, err
	}
	defer unix.Close(fd)

	buf := make([]byte, 256)
	n, err := unix.Read(fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, nil
		}
		return nil, err
	}
	return buf[:n], nil
}
