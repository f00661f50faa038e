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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pingcap/eval-jobs/internal/attrpath"
	"github.com/pingcap/eval-jobs/internal/job"
)

func TestAcquireReturnsSeedRootThenBlocksUntilDone(t *testing.T) {
	s := newSharedState(attrpath.Path{})

	path, ok, err := s.acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, path)

	done := make(chan struct{})
	go func() {
		_, ok, err := s.acquire(context.Background())
		require.NoError(t, err)
		require.False(t, ok)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("acquire returned before the in-flight root was released")
	case <-time.After(20 * time.Millisecond):
	}

	s.release(path)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquire did not wake up after release")
	}
}

func TestPushDedupesAgainstEverEnqueued(t *testing.T) {
	s := newSharedState(attrpath.Path{})
	root, _, _ := s.acquire(context.Background())

	child := root.Child("a")
	s.push(child, child)
	s.storeJob(root, &job.Drv{Attr: "<root>"})

	got, ok, err := s.acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, child, got)

	s.push(child) // already enqueued once before, must not be re-added
	s.release(got)

	_, ok, err = s.acquire(context.Background())
	require.NoError(t, err)
	require.False(t, ok, "child was pushed twice but must only be dispatched once")
}

func TestAcquireUnblocksOnContextCancel(t *testing.T) {
	s := newSharedState(attrpath.Path{})
	_, _, _ = s.acquire(context.Background()) // drain the seeded root, leaving active non-empty

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, _, err := s.acquire(ctx)
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("acquire did not observe context cancellation")
	}
}

func TestPoisonStopsFurtherAcquires(t *testing.T) {
	s := newSharedState(attrpath.Path{})
	root, _, _ := s.acquire(context.Background())
	s.push(root.Child("x"))

	s.poison(errors.New("boom"))
	require.Error(t, s.err())

	_, ok, err := s.acquire(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}
