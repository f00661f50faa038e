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
	"io"

	"github.com/pingcap/log"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pingcap/eval-jobs/internal/attrpath"
	"github.com/pingcap/eval-jobs/internal/config"
	"github.com/pingcap/eval-jobs/internal/evalapi"
	"github.com/pingcap/eval-jobs/internal/ipc"
	"github.com/pingcap/eval-jobs/internal/job"
	"github.com/pingcap/eval-jobs/pkg/util"
)

// Supervisor owns a traversal end to end: fan out Cfg.Workers collectors
// against the shared work queue rooted at the empty attribute path, join
// them, and (if Cfg.Constituents is set) run the aggregate pass over
// whatever jobs they collected.
type Supervisor struct {
	Cfg   *config.Config
	Store evalapi.Store
	Out   io.Writer

	// NewSpawner builds the Spawner each collector uses to start its own
	// worker. Production wiring returns a RealSpawner closure; tests pass
	// one built from internal/worker.SpawnInProcess.
	NewSpawner func(workerID int) Spawner
}

// Run drives the traversal to completion, returning the first error any
// collector or the aggregate pass raised. A nil error means every
// reachable derivation was visited and (when requested) every aggregate
// was resolved and emitted.
func (s *Supervisor) Run(ctx context.Context) error {
	emitter := job.NewEmitter(s.Out)
	state := newSharedState(attrpath.Path{})

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < s.Cfg.Workers; i++ {
		id := i
		c := &Collector{
			ID:      id,
			Spawn:   s.NewSpawner(id),
			State:   state,
			Emitter: emitter,
		}
		g.Go(func() error {
			return c.run(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if err := state.err(); err != nil {
		return err
	}

	if !s.Cfg.Constituents {
		return nil
	}

	jobs := state.snapshotJobs()
	agg := &aggregator{
		cfg:     s.Cfg,
		store:   s.Store,
		emitter: emitter,
	}
	if err := agg.run(ctx, jobs); err != nil {
		return err
	}

	log.Info("traversal complete",
		zap.Stringer("role", util.RoleSupervisor),
		zap.Int("jobs", len(jobs)), zap.Int("workers", s.Cfg.Workers))
	return nil
}

// RealSpawner builds a Spawner that forks a genuine worker subprocess
// (internal/ipc.Spawn, re-execing this same binary in its hidden "__worker"
// mode) carrying args — typically a single JSON-encoded Config blob the
// "__worker" subcommand decodes back out.
func RealSpawner(args []string) Spawner {
	return func() (*ipc.Channel, WorkerHandle, error) {
		p, err := ipc.Spawn(args)
		if err != nil {
			return nil, nil, err
		}
		return p.Channel, p, nil
	}
}
