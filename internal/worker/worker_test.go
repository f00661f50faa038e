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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pingcap/eval-jobs/internal/attrpath"
	"github.com/pingcap/eval-jobs/internal/config"
	"github.com/pingcap/eval-jobs/internal/evalapi"
	"github.com/pingcap/eval-jobs/internal/evalapi/fake"
	"github.com/pingcap/eval-jobs/internal/job"
)

func mustPathJSON(t *testing.T, p attrpath.Path) string {
	data, err := job.Marshal(p)
	require.NoError(t, err)
	return string(data)
}

func mustLoad(t *testing.T, eval evalapi.Evaluator, cfg *config.Config) evalapi.Value {
	v, err := eval.Load(context.Background(), cfg)
	require.NoError(t, err)
	return v
}

func TestHandleDoReturnsDerivationRecord(t *testing.T) {
	root := &fake.Node{
		Children: map[string]*fake.Node{
			"a": {Derivation: &fake.FakeDrv{Name: "a", DrvPath: "/store/a.drv", Outputs: map[string]string{"out": "/store/a-out"}}},
		},
	}
	eval := &fake.Evaluator{Root: root}
	cfg := &config.Config{}
	w := &Worker{Eval: eval, Cfg: cfg}

	reply := w.handleDo(context.Background(), mustLoad(t, eval, cfg), mustPathJSON(t, attrpath.Path{"a"}))
	drv, ok := reply.(*job.Drv)
	require.True(t, ok)
	require.Equal(t, "a", drv.Attr)
	require.Equal(t, "/store/a.drv", drv.DrvPath)
}

func TestHandleDoAlwaysRecursesAtRoot(t *testing.T) {
	root := &fake.Node{Children: map[string]*fake.Node{"x": {Derivation: &fake.FakeDrv{Name: "x"}}}}
	eval := &fake.Evaluator{Root: root}
	cfg := &config.Config{}
	w := &Worker{Eval: eval, Cfg: cfg}

	reply := w.handleDo(context.Background(), mustLoad(t, eval, cfg), mustPathJSON(t, attrpath.Path{}))
	children, ok := reply.(*job.Children)
	require.True(t, ok)
	// path == root, so it must recurse regardless of RecurseForDerivations.
	require.Equal(t, []string{"x"}, children.Attrs)
}

func TestHandleDoFiltersANSIEscapes(t *testing.T) {
	root := &fake.Node{EvalError: errors.New("red\x1b[31mtext\x1b[0mplain")}
	eval := &fake.Evaluator{Root: root}
	cfg := &config.Config{}
	w := &Worker{Eval: eval, Cfg: cfg}

	reply := w.handleDo(context.Background(), mustLoad(t, eval, cfg), mustPathJSON(t, attrpath.Path{"missing"}))
	drv, ok := reply.(*job.Drv)
	require.True(t, ok)
	require.Equal(t, "redtextplain", drv.Error)
}

func TestHandleDoTrimsTraceByDefault(t *testing.T) {
	root := &fake.Node{EvalError: errors.New("first line\nsecond line")}
	eval := &fake.Evaluator{Root: root}
	cfg := &config.Config{}
	w := &Worker{Eval: eval, Cfg: cfg}

	reply := w.handleDo(context.Background(), mustLoad(t, eval, cfg), mustPathJSON(t, attrpath.Path{"missing"}))
	drv, ok := reply.(*job.Drv)
	require.True(t, ok)
	require.Equal(t, "first line", drv.Error)
}

func TestHandleDoKeepsFullTraceWithShowTrace(t *testing.T) {
	root := &fake.Node{EvalError: errors.New("first line\nsecond line")}
	eval := &fake.Evaluator{Root: root}
	cfg := &config.Config{ShowTrace: true}
	w := &Worker{Eval: eval, Cfg: cfg}

	reply := w.handleDo(context.Background(), mustLoad(t, eval, cfg), mustPathJSON(t, attrpath.Path{"missing"}))
	drv, ok := reply.(*job.Drv)
	require.True(t, ok)
	require.Equal(t, "first line\nsecond line", drv.Error)
}

func TestHandleDoRegistersGCRootOnce(t *testing.T) {
	dir := t.TempDir()
	root := &fake.Node{
		Children: map[string]*fake.Node{
			"a": {Derivation: &fake.FakeDrv{Name: "a", DrvPath: "/store/a.drv", Outputs: map[string]string{"out": "/store/a-out"}}},
		},
	}
	eval := &fake.Evaluator{Root: root}
	store := fake.NewStore()
	cfg := &config.Config{GCRootsDir: dir}
	w := &Worker{Eval: eval, Store: store, Cfg: cfg}
	rootValue := mustLoad(t, eval, cfg)

	w.handleDo(context.Background(), rootValue, mustPathJSON(t, attrpath.Path{"a"}))
	require.Equal(t, "/store/a.drv", store.Roots[filepath.Join(dir, "a")])

	// Drop the store's bookkeeping but leave the root file on disk: the
	// idempotency check keys off the filesystem, so a second call must not
	// call AddPermRoot again.
	delete(store.Roots, filepath.Join(dir, "a"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), nil, 0o600))

	w.handleDo(context.Background(), rootValue, mustPathJSON(t, attrpath.Path{"a"}))
	require.Empty(t, store.Roots[filepath.Join(dir, "a")])
}

func TestHandleDoResolvesCacheStatus(t *testing.T) {
	root := &fake.Node{
		Children: map[string]*fake.Node{
			"a": {Derivation: &fake.FakeDrv{Name: "a", DrvPath: "/store/a.drv", Outputs: map[string]string{"out": "/store/a-out"}}},
		},
	}
	eval := &fake.Evaluator{Root: root}
	store := fake.NewStore()
	cfg := &config.Config{CheckCacheStatus: true}
	w := &Worker{Eval: eval, Store: store, Cfg: cfg}

	reply := w.handleDo(context.Background(), mustLoad(t, eval, cfg), mustPathJSON(t, attrpath.Path{"a"}))
	drv, ok := reply.(*job.Drv)
	require.True(t, ok)
	require.NotNil(t, drv.IsCached)
	require.True(t, *drv.IsCached)
	require.Equal(t, job.CacheStatusLocal, drv.CacheStatus)
}
