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

package supervisor

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"syscall"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/pingcap/eval-jobs/internal/attrpath"
	"github.com/pingcap/eval-jobs/internal/ipc"
	"github.com/pingcap/eval-jobs/internal/job"
	cerror "github.com/pingcap/eval-jobs/pkg/errors"
	"github.com/pingcap/eval-jobs/pkg/util"
)

// WorkerHandle abstracts the lifetime of a spawned worker, whether it's a
// real subprocess (*internal/ipc.Proc) or the in-process goroutine
// internal/worker.SpawnInProcess hands back to tests.
type WorkerHandle interface {
	Wait() error
	Kill() error
}

// Spawner starts a fresh worker connection. Collector calls it once at
// startup and again every time a worker asks to restart; a worker that dies
// unexpectedly poisons the run instead of being respawned.
type Spawner func() (*ipc.Channel, WorkerHandle, error)

// Collector owns one worker subprocess over its lifetime, repeatedly
// acquiring a path from state, forwarding it to the worker as a "do"
// command, and routing the reply back into state — spec §4.2's main loop.
type Collector struct {
	ID      int
	Spawn   Spawner
	State   *sharedState
	Emitter *job.Emitter
}

// run drains state until it reports termination (done or poisoned) or this
// collector's own worker fails unrecoverably, in which case it poisons
// state itself so sibling collectors notice and unwind too.
func (c *Collector) run(ctx context.Context) error {
	var ch *ipc.Channel
	var handle WorkerHandle

	respawn := func() error {
		newCh, newHandle, err := c.Spawn()
		if err != nil {
			return cerror.WrapError(cerror.ErrWorkerSpawnFailed, err)
		}
		ch, handle = newCh, newHandle
		return nil
	}

	for {
		if ch == nil {
			if err := respawn(); err != nil {
				c.State.poison(err)
				return err
			}
		}

		line, err := ch.ReadLine()
		if err == io.EOF {
			err := cerror.ErrWorkerDiedUnexpectedly.GenWithStackByArgs(c.ID, describeExit(handle.Wait()))
			c.State.poison(err)
			return err
		}
		if err != nil {
			c.State.poison(err)
			return err
		}

		switch line {
		case ipc.MsgRestart:
			// The worker wrote "restart" and is about to exit on its own
			// after crossing its memory cap; reap it and spawn a fresh one
			// on the next loop iteration.
			if werr := handle.Wait(); werr != nil {
				log.Warn("worker exited with error after self-requested restart",
					zap.Stringer("role", util.RoleCollector),
					zap.Int("worker", c.ID), zap.Error(werr))
			}
			ch, handle = nil, nil
			continue
		case ipc.MsgNext:
			// fall through to dispatch below
		default:
			err := cerror.ErrUnexpectedReply.GenWithStackByArgs(line)
			c.State.poison(err)
			return err
		}

		if err := c.dispatch(ctx, ch, handle); err != nil {
			if err == errExitSent {
				return nil
			}
			cause := cerror.Cause(err)
			if cause == context.Canceled || cause == context.DeadlineExceeded {
				return nil
			}
			c.State.poison(err)
			return err
		}
	}
}

// dispatch acquires a path, forwards it to the worker, and routes the
// reply. It returns errExitSent once state reports no more work, having
// already told the worker to exit.
func (c *Collector) dispatch(ctx context.Context, ch *ipc.Channel, handle WorkerHandle) error {
	path, ok, err := c.State.acquire(ctx)
	if err != nil {
		return err
	}
	if !ok {
		ch.WriteLine(ipc.CmdExit) //nolint:errcheck
		if werr := handle.Wait(); werr != nil {
			log.Warn("worker exited with error after exit command",
				zap.Stringer("role", util.RoleCollector),
				zap.Int("worker", c.ID), zap.Error(werr))
		}
		return errExitSent
	}

	pathJSON, err := job.Marshal(path)
	if err != nil {
		c.State.release(path)
		return cerror.WrapError(cerror.ErrMalformedMessage, err)
	}

	if err := ch.WriteLine(ipc.CmdDoPrefix + string(pathJSON)); err != nil {
		c.State.release(path)
		return cerror.ErrWorkerCrashed.GenWithStackByArgs(c.ID, err.Error())
	}

	replyLine, err := ch.ReadLine()
	if err == io.EOF {
		c.State.release(path)
		return cerror.ErrWorkerDiedUnexpectedly.GenWithStackByArgs(c.ID, describeExit(handle.Wait()))
	}
	if err != nil {
		c.State.release(path)
		return err
	}

	return c.handleReply(path, replyLine)
}

// errExitSent is a sentinel dispatch returns to tell run the worker was
// sent "exit" because the traversal is over; it is never surfaced to a
// caller of Collector.
var errExitSent = errors.New("exit sent")

// handleReply classifies a worker's reply as either a set of children to
// enqueue or a finalized derivation record to store, per spec §4.3.
func (c *Collector) handleReply(path attrpath.Path, line string) error {
	var probe struct {
		Attrs *[]string `json:"attrs"`
	}
	if err := job.Unmarshal([]byte(line), &probe); err != nil {
		c.State.release(path)
		return cerror.WrapError(cerror.ErrMalformedMessage, err)
	}

	if probe.Attrs != nil {
		var children job.Children
		if err := job.Unmarshal([]byte(line), &children); err != nil {
			c.State.release(path)
			return cerror.WrapError(cerror.ErrMalformedMessage, err)
		}
		childPaths := make([]attrpath.Path, len(children.Attrs))
		for i, name := range children.Attrs {
			childPaths[i] = path.Child(name)
		}
		c.State.push(childPaths...)
		c.State.release(path)
		return nil
	}

	var drv job.Drv
	if err := job.Unmarshal([]byte(line), &drv); err != nil {
		c.State.release(path)
		return cerror.WrapError(cerror.ErrMalformedMessage, err)
	}
	c.State.storeJob(path, &drv)

	// A drv carrying namedConstituents is an aggregate job: its record is
	// incomplete until the aggregate pass rewrites it, so it must not be
	// printed here.
	if len(drv.NamedConstituents) == 0 {
		return c.Emitter.Emit(&drv)
	}
	return nil
}

// describeExit renders a worker's exit status for an error message,
// classifying it the way the original nix-eval-jobs worker wrapper does:
// exit status 1 and a fatal-signal crash both read as "possible infinite
// recursion" (the embedded evaluator's usual way of dying on a runaway
// expression), SIGKILL reads as "memory limit reached" (this code never
// kills a worker itself, so a SIGKILL comes from outside, such as the
// kernel's OOM killer), and anything else just names the signal.
func describeExit(err error) string {
	if err == nil {
		return "exited 0"
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return err.Error()
	}
	ws, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return "exited " + exitErr.String()
	}
	switch {
	case ws.Exited() && ws.ExitStatus() == 1:
		return "possible infinite recursion"
	case ws.Signaled():
		switch ws.Signal() {
		case syscall.SIGKILL:
			return "memory limit reached"
		case syscall.SIGSEGV, syscall.SIGBUS:
			return "possible infinite recursion"
		default:
			return ws.Signal().String()
		}
	default:
		return "exited " + exitErr.String()
	}
}
