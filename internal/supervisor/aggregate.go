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
	"path"
	"sort"
	"strings"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/pingcap/eval-jobs/internal/config"
	"github.com/pingcap/eval-jobs/internal/evalapi"
	"github.com/pingcap/eval-jobs/internal/job"
	cerror "github.com/pingcap/eval-jobs/pkg/errors"
	"github.com/pingcap/eval-jobs/pkg/util"
)

// aggregator runs spec §4.4's pass once every collector has joined: resolve
// each aggregate job's namedConstituents into concrete peer jobs, order
// aggregates so a nested aggregate is rewritten before anything that
// references it, then rewrite and re-emit each one with a fresh
// content-addressed derivation path.
type aggregator struct {
	cfg     *config.Config
	store   evalapi.Store
	emitter *job.Emitter
}

// resolution is what resolving one aggregate's namedConstituents produced:
// either a concrete list of peer job names (in constituent-list order, with
// glob matches expanded and sorted) or a reason it couldn't be resolved.
type resolution struct {
	names []string
	err   error
}

func (a *aggregator) run(ctx context.Context, jobs map[string]*job.Drv) error {
	aggregates := map[string]*job.Drv{}
	for name, drv := range jobs {
		if len(drv.NamedConstituents) > 0 {
			aggregates[name] = drv
		}
	}
	if len(aggregates) == 0 {
		return nil
	}

	resolved := map[string]resolution{}
	for name, drv := range aggregates {
		resolved[name] = resolveConstituents(name, drv, jobs)
	}

	order, cycleErr := topoSortAggregates(aggregates, resolved)

	ordered := make(map[string]bool, len(order))
	for _, name := range order {
		ordered[name] = true
	}

	for _, name := range order {
		drv := aggregates[name]
		res := resolved[name]
		if res.err != nil {
			drv.Error = res.err.Error()
			drv.NamedConstituents = nil
			drv.GlobConstituents = false
			if err := a.emitter.Emit(drv); err != nil {
				return err
			}
			continue
		}

		if err := a.rewrite(ctx, drv, res.names, jobs); err != nil {
			return err
		}
		if err := a.emitter.Emit(drv); err != nil {
			return err
		}
		// Later aggregates in topo order that reference name see the
		// rewritten record, since jobs[name] is the same pointer as drv.
	}

	// A cycle leaves the remaining aggregates - the two offenders plus
	// anything not yet reached - impossible to order. Spec §4.4's final
	// paragraph: write the cycle error into every one of them, emit, and
	// skip rewriting, rather than aborting the whole pass.
	if cycleErr != nil {
		var remaining []string
		for name := range aggregates {
			if !ordered[name] {
				remaining = append(remaining, name)
			}
		}
		sort.Strings(remaining)
		for _, name := range remaining {
			drv := aggregates[name]
			drv.Error = cycleErr.Error()
			drv.NamedConstituents = nil
			drv.GlobConstituents = false
			if err := a.emitter.Emit(drv); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveConstituents matches drv's namedConstituents against jobs,
// expanding glob patterns when drv.GlobConstituents is set. Names keep the
// order of the constituent list, with each glob's matches sorted, so the
// result is deterministic.
// Every broken reference is collected rather than stopping at the first, so
// the final error names each one.
func resolveConstituents(name string, drv *job.Drv, jobs map[string]*job.Drv) resolution {
	var names []string
	var broken []string
	seen := map[string]bool{}
	for _, ref := range drv.NamedConstituents {
		if peer, ok := jobs[ref]; ok {
			switch {
			case peer.Error != "":
				broken = append(broken, cerror.ErrConstituentFailed.GenWithStackByArgs(ref, name, peer.Error).Error())
			case peer.DrvPath == "":
				broken = append(broken, cerror.ErrConstituentNotDerived.GenWithStackByArgs(ref, name).Error())
			default:
				if !seen[ref] {
					seen[ref] = true
					names = append(names, ref)
				}
			}
			continue
		}

		if !drv.GlobConstituents {
			broken = append(broken, cerror.ErrConstituentNotFound.GenWithStackByArgs(ref, name).Error())
			continue
		}

		var matched []string
		for candidate, peer := range jobs {
			if candidate == name || peer.DrvPath == "" || peer.Error != "" {
				continue
			}
			ok, merr := path.Match(ref, candidate)
			if merr != nil || !ok {
				continue
			}
			matched = append(matched, candidate)
		}
		if len(matched) == 0 {
			broken = append(broken, cerror.ErrConstituentGlobNoHit.GenWithStackByArgs(ref, name).Error())
			continue
		}
		sort.Strings(matched)
		for _, m := range matched {
			if !seen[m] {
				seen[m] = true
				names = append(names, m)
			}
		}
	}
	if len(broken) > 0 {
		return resolution{err: errors.New(strings.Join(broken, "\n"))}
	}
	return resolution{names: names}
}

// topoSortAggregates orders aggregate names so that any aggregate X
// referenced by aggregate Y's resolved constituents appears before Y,
// detecting cycles with a standard three-color DFS. On a cycle, it returns
// the names it managed to fully order before hitting it, plus a non-nil
// error naming the cycle; names absent from the returned order (the cycle's
// own members and anything not yet visited) are the aggregate pass's
// "remaining unresolved aggregates".
func topoSortAggregates(aggregates map[string]*job.Drv, resolved map[string]resolution) ([]string, error) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(aggregates))
	var order []string

	names := make([]string, 0, len(aggregates))
	for name := range aggregates {
		names = append(names, name)
	}
	sort.Strings(names)

	var visit func(name string, stack []string) error
	visit = func(name string, stack []string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return cerror.ErrConstituentCycle.GenWithStackByArgs(strings.Join(append(stack, name), " -> "))
		}
		color[name] = gray
		if res := resolved[name]; res.err == nil {
			for _, dep := range res.names {
				if _, isAggregate := aggregates[dep]; !isAggregate {
					continue
				}
				if err := visit(dep, append(stack, name)); err != nil {
					return err
				}
			}
		}
		color[name] = black
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name, nil); err != nil {
			return order, err
		}
	}
	return order, nil
}

// rewrite merges the resolved constituents' derivations into drv's input
// set, asks the store to compute a fresh content-addressed path for the
// result, and registers a GC root for it — spec §4.4's "rewrite the
// aggregate derivation" step.
func (a *aggregator) rewrite(ctx context.Context, drv *job.Drv, constituentNames []string, jobs map[string]*job.Drv) error {
	existing, err := a.store.ReadDerivation(ctx, drv.DrvPath)
	if err != nil {
		return cerror.WrapError(cerror.ErrStorePathCompute, err)
	}

	inputDrvs := map[string][]string{}
	for k, v := range existing.InputDrvs {
		inputDrvs[k] = v
	}
	storePaths := make([]string, 0, len(constituentNames))
	for _, cname := range constituentNames {
		peer := jobs[cname]
		outputNames := make([]string, 0, len(peer.Outputs))
		for out, storePath := range peer.Outputs {
			outputNames = append(outputNames, out)
			storePaths = append(storePaths, storePath)
		}
		sort.Strings(outputNames)
		inputDrvs[peer.DrvPath] = outputNames
	}
	sort.Strings(storePaths)

	newPath, err := a.store.WriteDerivation(ctx, &evalapi.Derivation{
		Outputs:   existing.Outputs,
		InputDrvs: inputDrvs,
	})
	if err != nil {
		return cerror.WrapError(cerror.ErrStorePathCompute, err)
	}

	drv.DrvPath = newPath
	drv.InputDrvs = inputDrvs
	drv.Constituents = storePaths
	drv.NamedConstituents = nil
	drv.GlobConstituents = false

	if a.cfg.GCRootsDir != "" {
		rootPath := path.Join(a.cfg.GCRootsDir, gcRootName(drv))
		if err := a.store.AddPermRoot(ctx, newPath, rootPath); err != nil {
			log.Warn("failed to register GC root for aggregate",
				zap.Stringer("role", util.RoleSupervisor),
				zap.String("attr", drv.Attr), zap.Error(err))
			return cerror.WrapError(cerror.ErrGCRootRegisterFailed, err, rootPath)
		}
	}
	return nil
}

// gcRootName derives a filesystem-safe root file name from a record's
// dotted attribute path.
func gcRootName(drv *job.Drv) string {
	return strings.ReplaceAll(drv.Attr, "/", "_")
}
