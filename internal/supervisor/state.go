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

// Package supervisor owns the shared work queue, the pool of collector
// goroutines that drain it against worker subprocesses, and the
// post-traversal aggregate pass.
package supervisor

import (
	"container/list"
	"context"
	"sync"

	"github.com/pingcap/eval-jobs/internal/attrpath"
	"github.com/pingcap/eval-jobs/internal/job"
	"github.com/pingcap/eval-jobs/pkg/syncutil"
)

// sharedState is spec §4.1's mutex-protected todo/active/jobs/exc
// structure. A single syncutil.Cond attached to mu signals waiters when
// todo gains work or when a termination predicate becomes true.
type sharedState struct {
	mu   sync.Mutex
	cond *syncutil.Cond

	todo     *list.List      // queue of attrpath.Path, FIFO
	enqueued map[string]bool // every path ever pushed, keyed by dotted form
	active   map[string]bool // paths currently dispatched to a worker

	jobs map[string]*job.Drv // dotted path -> finalized record

	exc error // poisons the run once set
}

func newSharedState(root attrpath.Path) *sharedState {
	s := &sharedState{
		todo:     list.New(),
		enqueued: map[string]bool{},
		active:   map[string]bool{},
		jobs:     map[string]*job.Drv{},
	}
	s.cond = syncutil.NewCond(&s.mu)
	s.todo.PushBack(root)
	s.enqueued[root.String()] = true
	return s
}

// done reports whether todo and active are both empty. Callers must hold
// mu.
func (s *sharedState) done() bool {
	return s.todo.Len() == 0 && len(s.active) == 0
}

// poisoned reports whether a fatal error has been recorded. Callers must
// hold mu.
func (s *sharedState) poisoned() bool {
	return s.exc != nil
}

// acquire blocks until either a path is available to dispatch or a
// termination predicate holds. It returns ok=false when the collector
// should send "exit" and return.
func (s *sharedState) acquire(ctx context.Context) (path attrpath.Path, ok bool, err error) {
	s.mu.Lock()
	for {
		if s.poisoned() || s.done() {
			s.mu.Unlock()
			return nil, false, nil
		}
		if s.todo.Len() > 0 {
			front := s.todo.Remove(s.todo.Front()).(attrpath.Path)
			s.active[front.String()] = true
			s.mu.Unlock()
			return front, true, nil
		}
		// WaitWithContext does not re-acquire the lock when ctx is
		// canceled, so on that path we must not unlock again.
		if werr := s.cond.WaitWithContext(ctx); werr != nil {
			return nil, false, werr
		}
	}
}

// push adds children to todo that have never been enqueued before (spec
// §3's "each path is enqueued at most once over the life of a run").
func (s *sharedState) push(children ...attrpath.Path) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range children {
		key := c.String()
		if s.enqueued[key] {
			continue
		}
		s.enqueued[key] = true
		s.todo.PushBack(c)
	}
	s.cond.Broadcast()
}

// storeJob records drv's finalized record and releases path from active.
func (s *sharedState) storeJob(path attrpath.Path, drv *job.Drv) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := path.String()
	s.jobs[key] = drv
	delete(s.active, key)
	s.cond.Broadcast()
}

// release removes path from active without recording a job, used when a
// path resolved to children rather than a leaf.
func (s *sharedState) release(path attrpath.Path) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, path.String())
	s.cond.Broadcast()
}

// poison records err as the first fatal failure of the run and wakes every
// waiting collector so they can notice and exit. Only the first poisoning
// error is kept.
func (s *sharedState) poison(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exc == nil {
		s.exc = err
	}
	s.cond.Broadcast()
}

// err returns the poisoning error, if any.
func (s *sharedState) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exc
}

// snapshotJobs returns a copy of the jobs map for the aggregate pass,
// which runs only after every collector has joined.
func (s *sharedState) snapshotJobs() map[string]*job.Drv {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*job.Drv, len(s.jobs))
	for k, v := range s.jobs {
		out[k] = v
	}
	return out
}
