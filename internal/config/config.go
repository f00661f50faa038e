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

// Package config holds the validated, resolved configuration the
// supervisor runs with, assembled from CLI flags by pkg/cmd/server.
package config

import (
	cerror "github.com/pingcap/eval-jobs/pkg/errors"
)

const (
	// DefaultWorkers is the number of collector goroutines (and worker
	// subprocesses) started when --workers is not given.
	DefaultWorkers = 1
	// DefaultMaxMemorySizeMiB is the per-worker RSS cap, in mebibytes, a
	// worker self-enforces before restarting itself.
	DefaultMaxMemorySizeMiB = 4096
)

// RootSource selects how the traversal root expression is built: a flake
// reference, an inline expression string, or a file path. The form is
// chosen when the config is built from flags; Config.Validate only checks
// that Arg or Expr is non-empty and does not check that a single form is set.
type RootSource struct {
	// Arg is the single positional argument: a flake reference, a file
	// path, or (with Expr) ignored.
	Arg string
	// Flake is true when Arg should be parsed as a flake reference,
	// optionally followed by a `#fragment`.
	Flake bool
	// Expr is the inline expression text when set via --expr/-E; Arg is
	// then unused for expression text (only used for flake/file forms).
	Expr string
}

// Config is the fully validated configuration the supervisor runs a
// traversal with.
type Config struct {
	// Workers is the number of collector goroutines / worker subprocesses.
	Workers int
	// MaxMemorySizeMiB is the per-worker RSS cap in mebibytes.
	MaxMemorySizeMiB uint64
	// GCRootsDir is the directory GC roots for discovered derivations are
	// registered into. Validate requires it only when Constituents is set;
	// otherwise an empty value means no GC roots are registered.
	GCRootsDir string

	Source RootSource

	Impure                bool
	ForceRecurse          bool
	Meta                  bool
	CheckCacheStatus      bool
	ShowInputDrvs         bool
	ShowTrace             bool
	Constituents          bool
	Apply                 string
	Select                string
	NoInstantiate         bool
	ReferenceLockFilePath string
	OverrideInputs        map[string]string
}

// Validate checks flag combinations the spec calls out as usage errors
// (§6: missing expression, incompatible flags, non-positive --workers) and
// returns them wrapped with pkg/errors.ClassUsage so callers can refuse to
// start before any worker is spawned.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return cerror.ErrInvalidWorkerCount.GenWithStackByArgs(c.Workers)
	}
	if c.MaxMemorySizeMiB == 0 {
		return cerror.ErrInvalidMemorySize.GenWithStackByArgs(c.MaxMemorySizeMiB)
	}
	if c.Source.Arg == "" && c.Source.Expr == "" {
		return cerror.ErrNoExpression.GenWithStackByArgs()
	}
	if c.NoInstantiate && c.CheckCacheStatus {
		return cerror.ErrIncompatibleFlags.GenWithStackByArgs("--no-instantiate cannot be combined with --check-cache-status")
	}
	if c.Constituents && c.GCRootsDir == "" {
		return cerror.ErrGCRootsDirRequired.GenWithStackByArgs()
	}
	return nil
}
