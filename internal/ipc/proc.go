// Copyright 2020 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package ipc

import (
	"os"
	"os/exec"

	cerror "github.com/pingcap/eval-jobs/pkg/errors"
)

// Proc is a worker subprocess owned by exactly one collector at a time,
// reachable over a Channel built on its stdin/stdout pipes. Go cannot
// cheaply fork with shared address space the way the original's
// fork()-based worker wrapper does, so a Proc instead re-execs this same
// binary in a hidden worker mode (see cmd/eval-jobs's "__worker"
// subcommand) — one process per worker, just started differently.
type Proc struct {
	cmd     *exec.Cmd
	Channel *Channel
	stderr  *os.File
}

// Spawn starts a fresh worker subprocess with args (the worker's own CLI:
// expression source, flags affecting record shape, and so on) passed
// after the hidden "__worker" subcommand name. The worker's stderr is
// inherited so its own log lines interleave with the supervisor's.
func Spawn(args []string) (*Proc, error) {
	cmd := exec.Command(os.Args[0], append([]string{"__worker"}, args...)...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, cerror.WrapError(cerror.ErrWorkerSpawnFailed, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, cerror.WrapError(cerror.ErrWorkerSpawnFailed, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, cerror.WrapError(cerror.ErrWorkerSpawnFailed, err)
	}

	return &Proc{
		cmd:     cmd,
		Channel: NewChannel(stdout, stdin),
	}, nil
}

// Pid returns the worker's process ID.
func (p *Proc) Pid() int {
	return p.cmd.Process.Pid
}

// Kill sends SIGKILL to the worker. It satisfies the supervisor's
// WorkerHandle interface; the collector itself never calls it.
func (p *Proc) Kill() error {
	return p.cmd.Process.Kill()
}

// Wait blocks until the worker exits and releases its resources,
// returning the same error exec.Cmd.Wait would (an *exec.ExitError for a
// non-zero exit).
func (p *Proc) Wait() error {
	return p.cmd.Wait()
}
