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

// Package worker implements the request loop a worker subprocess runs:
// load the expression once, then answer "do <path>" requests until told
// to exit or until its own memory usage crosses the configured cap.
package worker

import (
	"context"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"syscall"

	"github.com/pingcap/log"
	"go.uber.org/zap"

	"github.com/pingcap/eval-jobs/internal/attrpath"
	"github.com/pingcap/eval-jobs/internal/config"
	"github.com/pingcap/eval-jobs/internal/evalapi"
	"github.com/pingcap/eval-jobs/internal/ipc"
	"github.com/pingcap/eval-jobs/internal/job"
	cerror "github.com/pingcap/eval-jobs/pkg/errors"
	"github.com/pingcap/eval-jobs/pkg/util"
)

// Worker drives one evalapi.Evaluator against requests read from ch,
// inside a single-threaded subprocess owned by exactly one collector.
// Store is nil whenever neither --check-cache-status nor --gc-roots-dir
// is set, since nothing a worker does otherwise needs it.
type Worker struct {
	Eval  evalapi.Evaluator
	Store evalapi.Store
	Cfg   *config.Config
	Ch    *ipc.Channel
}

// Run loads the traversal root once, then serves requests until ch closes,
// "exit" is received, or this process's RSS crosses Cfg.MaxMemorySizeMiB —
// in which case Run writes "restart" and returns nil so the collector can
// spawn a replacement (spec §4.3's memory cap).
func (w *Worker) Run(ctx context.Context) error {
	root, err := w.Eval.Load(ctx, w.Cfg)
	if err != nil {
		return cerror.WrapError(cerror.ErrEvalFailed, err, "<root>", w.renderError(err))
	}

	for {
		if ok, err := w.Ch.TryWriteLine(ipc.MsgNext); !ok {
			return err
		}

		line, err := w.Ch.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return cerror.WrapError(cerror.ErrMalformedMessage, err)
		}

		switch {
		case line == ipc.CmdExit:
			return nil
		case strings.HasPrefix(line, ipc.CmdDoPrefix):
			reply := w.handleDo(ctx, root, strings.TrimPrefix(line, ipc.CmdDoPrefix))
			data, merr := job.Marshal(reply)
			if merr != nil {
				return cerror.WrapError(cerror.ErrMalformedMessage, merr)
			}
			if ok, werr := w.Ch.TryWriteLine(string(data)); !ok {
				return werr
			}
		default:
			return cerror.ErrInvalidCommand.GenWithStackByArgs(line)
		}

		exceeded, rss, err := w.memoryExceeded()
		if err != nil {
			log.Warn("failed to read resident set size",
				zap.Stringer("role", util.RoleWorker), zap.Error(err))
		} else if exceeded {
			log.Info("worker exceeded memory cap, restarting",
				zap.Stringer("role", util.RoleWorker),
				zap.Uint64("rssMiB", rss), zap.Uint64("capMiB", w.Cfg.MaxMemorySizeMiB))
			w.Ch.TryWriteLine(ipc.MsgRestart) //nolint:errcheck
			return nil
		}
	}
}

// handleDo decodes a JSON attrpath.Path, resolves it against root, and
// classifies the result per spec §4.3. It never returns an error itself:
// evaluation failures are rendered into the reply's error field so the
// worker can keep serving subsequent requests.
func (w *Worker) handleDo(ctx context.Context, root evalapi.Value, pathJSON string) any {
	var path attrpath.Path
	if err := job.Unmarshal([]byte(pathJSON), &path); err != nil {
		return &job.Drv{Error: "malformed attribute path: " + err.Error()}
	}

	attr := path.String()

	value := root
	for _, name := range path {
		child, err := value.Child(name)
		if err != nil {
			return &job.Drv{
				Attr:     attr,
				AttrPath: path,
				Error:    w.renderError(err),
			}
		}
		value = child
	}

	switch value.Kind() {
	case evalapi.KindDerivation:
		drv, err := value.Derivation(w.derivationOptions())
		if err != nil {
			return &job.Drv{Attr: attr, AttrPath: path, Error: w.renderError(err)}
		}
		drv.Attr = attr
		drv.AttrPath = path

		if w.Cfg.CheckCacheStatus && w.Store != nil {
			if err := w.resolveOutputs(ctx, drv); err != nil {
				log.Warn("failed to query cache status",
					zap.Stringer("role", util.RoleWorker), zap.String("attr", attr), zap.Error(err))
			}
		}
		if w.Cfg.GCRootsDir != "" && w.Store != nil && drv.DrvPath != "" {
			if err := w.registerGCRoot(ctx, drv); err != nil {
				log.Warn("failed to register GC root",
					zap.Stringer("role", util.RoleWorker), zap.String("attr", attr), zap.Error(err))
			}
		}
		return drv
	case evalapi.KindAttrSet:
		if !w.shouldRecurse(value, len(path) == 0) {
			return &job.Children{Attr: attr, AttrPath: path, Attrs: []string{}}
		}
		attrs, err := value.Attrs()
		if err != nil {
			return &job.Drv{Attr: attr, AttrPath: path, Error: w.renderError(err)}
		}
		sort.Strings(attrs)
		return &job.Children{Attr: attr, AttrPath: path, Attrs: attrs}
	default:
		return &job.Children{Attr: attr, AttrPath: path, Attrs: []string{}}
	}
}

// resolveOutputs populates a derivation's cache-status fields from the
// store, retrying once against just its declared outputs (without
// requiring InputDrvs resolution) when the first query fails — a
// content-addressed derivation's static output paths aren't always known
// until it's been instantiated, so a failure here isn't necessarily fatal.
func (w *Worker) resolveOutputs(ctx context.Context, drv *job.Drv) error {
	outputs := make([]string, 0, len(drv.Outputs))
	for _, p := range drv.Outputs {
		outputs = append(outputs, p)
	}
	sort.Strings(outputs)

	info, err := w.Store.QueryMissing(ctx, outputs, drv.InputDrvs)
	if err != nil {
		info, err = w.Store.QueryMissing(ctx, outputs, nil)
		if err != nil {
			return err
		}
	}

	isCached := len(info.WillBuild) == 0
	drv.IsCached = util.AddressOf(isCached)
	drv.NeededBuilds = info.WillBuild
	drv.NeededSubstitutes = info.WillSubstitute
	drv.UnknownPaths = info.Unknown

	switch {
	case w.Store.IsLocal() && isCached:
		drv.CacheStatus = job.CacheStatusLocal
	case isCached:
		drv.CacheStatus = job.CacheStatusCached
	default:
		drv.CacheStatus = job.CacheStatusNotBuilt
	}
	return nil
}

// registerGCRoot adds a permanent GC root for drv under Cfg.GCRootsDir,
// skipping the store call entirely when the root already exists: a root
// left over from a previous run pointing at the same path is harmless,
// and re-registering it every time would just be wasted store I/O.
func (w *Worker) registerGCRoot(ctx context.Context, drv *job.Drv) error {
	rootPath := path.Join(w.Cfg.GCRootsDir, gcRootName(drv.Attr))
	if _, err := os.Stat(rootPath); err == nil {
		return nil
	}
	return w.Store.AddPermRoot(ctx, drv.DrvPath, rootPath)
}

func gcRootName(attr string) string {
	return strings.ReplaceAll(attr, "/", "_")
}

// shouldRecurse implements spec §4.3's three-way recursion gate: forced by
// flag, the root path, or the attrset's own recurseForDerivations marker.
func (w *Worker) shouldRecurse(value evalapi.Value, isRoot bool) bool {
	if w.Cfg.ForceRecurse || isRoot {
		return true
	}
	recurse, present, err := value.RecurseForDerivations()
	if err != nil || !present {
		return false
	}
	return recurse
}

func (w *Worker) derivationOptions() evalapi.DerivationOptions {
	return evalapi.DerivationOptions{
		ShowInputDrvs:    w.Cfg.ShowInputDrvs,
		Meta:             w.Cfg.Meta,
		CheckCacheStatus: w.Cfg.CheckCacheStatus,
		Constituents:     w.Cfg.Constituents,
		Apply:            w.Cfg.Apply,
		NoInstantiate:    w.Cfg.NoInstantiate,
		GCRootsDir:       w.Cfg.GCRootsDir,
		ShowTrace:        w.Cfg.ShowTrace,
	}
}

// memoryExceeded reads this process's own peak resident set size via
// getrusage(RUSAGE_SELF, ...), matching the original's self-monitoring
// exactly: it must run in the worker's own address space after every
// reply, which is the one thing a library like gopsutil would only add
// overhead to by looking itself up by PID.
func (w *Worker) memoryExceeded() (exceeded bool, rssMiB uint64, err error) {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		return false, 0, err
	}
	// Maxrss is in kilobytes on Linux.
	rssMiB = uint64(ru.Maxrss) / 1024
	return rssMiB > w.Cfg.MaxMemorySizeMiB, rssMiB, nil
}

// renderError filters an evaluator error's ANSI escapes and, unless
// --show-trace is set, trims it down to its first line — an evaluator's
// full error text can include a multi-line expression trace, which is
// only useful for debugging the expression itself.
func (w *Worker) renderError(err error) string {
	text := job.FilterANSIEscapes(err.Error())
	if w.Cfg.ShowTrace {
		return text
	}
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}
