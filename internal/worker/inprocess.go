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

package worker

import (
	"context"
	"io"

	"github.com/pingcap/eval-jobs/internal/config"
	"github.com/pingcap/eval-jobs/internal/evalapi"
	"github.com/pingcap/eval-jobs/internal/ipc"
)

// InProcessHandle is the worker handle returned by SpawnInProcess: a
// goroutine standing in for a subprocess.
type InProcessHandle struct {
	done   chan error
	cancel context.CancelFunc
}

// Wait blocks until the in-process worker's Run method returns.
func (h *InProcessHandle) Wait() error {
	return <-h.done
}

// Kill cancels the context passed to the worker's evaluator Load call.
// Unlike a real subprocess, this cannot forcibly unblock a worker already
// mid-request; tests that need that close the pipe instead.
func (h *InProcessHandle) Kill() error {
	h.cancel()
	return nil
}

// SpawnInProcess runs a Worker against eval/cfg on a goroutine connected to
// the returned Channel through an in-memory pipe instead of a subprocess
// pipe pair. This lets internal/supervisor's tests exercise the exact wire
// protocol and worker loop deterministically and in-process; no test in
// this module spawns a real worker subprocess.
func SpawnInProcess(ctx context.Context, eval evalapi.Evaluator, store evalapi.Store, cfg *config.Config) (*ipc.Channel, *InProcessHandle) {
	ctx, cancel := context.WithCancel(ctx)

	toWorkerRead, toWorkerWrite := io.Pipe()
	fromWorkerRead, fromWorkerWrite := io.Pipe()

	collectorSide := ipc.NewChannel(fromWorkerRead, toWorkerWrite)
	workerSide := ipc.NewChannel(toWorkerRead, fromWorkerWrite)

	h := &InProcessHandle{done: make(chan error, 1), cancel: cancel}
	go func() {
		w := &Worker{Eval: eval, Store: store, Cfg: cfg, Ch: workerSide}
		h.done <- w.Run(ctx)
	}()
	return collectorSide, h
}
