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
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pingcap/eval-jobs/internal/config"
	"github.com/pingcap/eval-jobs/internal/evalapi/fake"
	"github.com/pingcap/eval-jobs/internal/job"
)

func TestResolveConstituentsExactMatch(t *testing.T) {
	jobs := map[string]*job.Drv{
		"a":   {Attr: "a", DrvPath: "/store/a.drv"},
		"b":   {Attr: "b", DrvPath: "/store/b.drv"},
		"all": {Attr: "all", DrvPath: "/store/all.drv", NamedConstituents: []string{"a", "b"}},
	}
	res := resolveConstituents("all", jobs["all"], jobs)
	require.NoError(t, res.err)
	require.Equal(t, []string{"a", "b"}, res.names)
}

func TestResolveConstituentsMissingIsAnError(t *testing.T) {
	jobs := map[string]*job.Drv{
		"all": {Attr: "all", DrvPath: "/store/all.drv", NamedConstituents: []string{"nope"}},
	}
	res := resolveConstituents("all", jobs["all"], jobs)
	require.Error(t, res.err)
}

func TestResolveConstituentsNotADerivationIsAnError(t *testing.T) {
	jobs := map[string]*job.Drv{
		"a":   {Attr: "a"}, // no DrvPath: this was an attrset, not a derivation
		"all": {Attr: "all", DrvPath: "/store/all.drv", NamedConstituents: []string{"a"}},
	}
	res := resolveConstituents("all", jobs["all"], jobs)
	require.Error(t, res.err)
}

func TestResolveConstituentsGlobExpandsAndSorts(t *testing.T) {
	jobs := map[string]*job.Drv{
		"tests.a": {Attr: "tests.a", DrvPath: "/store/a.drv"},
		"tests.b": {Attr: "tests.b", DrvPath: "/store/b.drv"},
		"other":   {Attr: "other", DrvPath: "/store/other.drv"},
		"all":     {Attr: "all", DrvPath: "/store/all.drv", NamedConstituents: []string{"tests.*"}, GlobConstituents: true},
	}
	res := resolveConstituents("all", jobs["all"], jobs)
	require.NoError(t, res.err)
	require.Equal(t, []string{"tests.a", "tests.b"}, res.names)
}

func TestResolveConstituentsGlobNoHitIsAnError(t *testing.T) {
	jobs := map[string]*job.Drv{
		"all": {Attr: "all", DrvPath: "/store/all.drv", NamedConstituents: []string{"nothing.*"}, GlobConstituents: true},
	}
	res := resolveConstituents("all", jobs["all"], jobs)
	require.Error(t, res.err)
}

func TestResolveConstituentsFailedPeerIsAnError(t *testing.T) {
	jobs := map[string]*job.Drv{
		"a":   {Attr: "a", DrvPath: "/store/a.drv", Error: "evaluation failed at a: boom"},
		"all": {Attr: "all", DrvPath: "/store/all.drv", NamedConstituents: []string{"a"}},
	}
	res := resolveConstituents("all", jobs["all"], jobs)
	require.Error(t, res.err)
	require.Contains(t, res.err.Error(), "boom")
}

func TestResolveConstituentsAccumulatesEveryBrokenReference(t *testing.T) {
	jobs := map[string]*job.Drv{
		"broken": {Attr: "broken", DrvPath: "/store/broken.drv", Error: "boom"},
		"all":    {Attr: "all", DrvPath: "/store/all.drv", NamedConstituents: []string{"missing-one", "broken", "missing-two"}},
	}
	res := resolveConstituents("all", jobs["all"], jobs)
	require.Error(t, res.err)
	lines := strings.Split(res.err.Error(), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, res.err.Error(), "missing-one")
	require.Contains(t, res.err.Error(), "missing-two")
	require.Contains(t, res.err.Error(), "boom")
}

func TestTopoSortAggregatesOrdersDependenciesFirst(t *testing.T) {
	aggregates := map[string]*job.Drv{
		"inner": {Attr: "inner", NamedConstituents: []string{"leaf"}},
		"outer": {Attr: "outer", NamedConstituents: []string{"inner"}},
	}
	resolved := map[string]resolution{
		"inner": {names: []string{"leaf"}},
		"outer": {names: []string{"inner"}},
	}
	order, err := topoSortAggregates(aggregates, resolved)
	require.NoError(t, err)
	require.Equal(t, []string{"inner", "outer"}, order)
}

func TestTopoSortAggregatesDetectsCycle(t *testing.T) {
	aggregates := map[string]*job.Drv{
		"a": {Attr: "a", NamedConstituents: []string{"b"}},
		"b": {Attr: "b", NamedConstituents: []string{"a"}},
	}
	resolved := map[string]resolution{
		"a": {names: []string{"b"}},
		"b": {names: []string{"a"}},
	}
	_, err := topoSortAggregates(aggregates, resolved)
	require.Error(t, err)
}

func TestTopoSortAggregatesLeavesCycleMembersOutOfOrder(t *testing.T) {
	aggregates := map[string]*job.Drv{
		"x":    {Attr: "x", NamedConstituents: []string{"y"}},
		"y":    {Attr: "y", NamedConstituents: []string{"x"}},
		"solo": {Attr: "solo", NamedConstituents: []string{"leaf"}},
	}
	resolved := map[string]resolution{
		"x":    {names: []string{"y"}},
		"y":    {names: []string{"x"}},
		"solo": {names: []string{"leaf"}},
	}
	order, err := topoSortAggregates(aggregates, resolved)
	require.Error(t, err)
	require.NotContains(t, order, "x")
	require.NotContains(t, order, "y")
}

func TestAggregatorRunCycleIsNotFatalAndSkipsRewrite(t *testing.T) {
	jobs := map[string]*job.Drv{
		"x": {Attr: "x", DrvPath: "/store/x.drv", Outputs: map[string]string{"out": "/store/x-out"}, NamedConstituents: []string{"y"}},
		"y": {Attr: "y", DrvPath: "/store/y.drv", Outputs: map[string]string{"out": "/store/y-out"}, NamedConstituents: []string{"x"}},
	}

	var out bytes.Buffer
	store := fake.NewStore()
	agg := &aggregator{
		cfg:     &config.Config{GCRootsDir: "/gcroots"},
		store:   store,
		emitter: job.NewEmitter(&out),
	}

	err := agg.run(context.Background(), jobs)
	require.NoError(t, err)

	require.NotEmpty(t, jobs["x"].Error)
	require.NotEmpty(t, jobs["y"].Error)
	require.Contains(t, jobs["x"].Error, "cycle")
	require.Contains(t, jobs["y"].Error, "cycle")
	require.Equal(t, "/store/x.drv", jobs["x"].DrvPath)
	require.Equal(t, "/store/y.drv", jobs["y"].DrvPath)
	require.Empty(t, store.Derivations)

	text := out.String()
	require.Contains(t, text, `"attr":"x"`)
	require.Contains(t, text, `"attr":"y"`)
}

func TestAggregatorRunCycleMarksUnrelatedAggregateTooAsRemaining(t *testing.T) {
	jobs := map[string]*job.Drv{
		"x":   {Attr: "x", DrvPath: "/store/x.drv", Outputs: map[string]string{"out": "/store/x-out"}, NamedConstituents: []string{"y"}},
		"y":   {Attr: "y", DrvPath: "/store/y.drv", Outputs: map[string]string{"out": "/store/y-out"}, NamedConstituents: []string{"x"}},
		"zzz": {Attr: "zzz", DrvPath: "/store/zzz.drv", Outputs: map[string]string{"out": "/store/zzz-out"}, NamedConstituents: []string{"x"}},
	}

	var out bytes.Buffer
	agg := &aggregator{
		cfg:     &config.Config{},
		store:   fake.NewStore(),
		emitter: job.NewEmitter(&out),
	}

	require.NoError(t, agg.run(context.Background(), jobs))
	require.NotEmpty(t, jobs["zzz"].Error)
	require.Equal(t, "/store/zzz.drv", jobs["zzz"].DrvPath)
}
