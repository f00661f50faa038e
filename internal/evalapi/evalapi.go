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

// Package evalapi defines the seam between this module and the two
// collaborators spec.md treats as out of scope: the configuration-language
// evaluator and the content-addressed artifact store. Nothing in this
// package talks to a real evaluator or store; production wiring supplies
// an implementation, and internal/evalapi/fake supplies one for tests.
package evalapi

import (
	"context"

	"github.com/pingcap/eval-jobs/internal/config"
	"github.com/pingcap/eval-jobs/internal/job"
)

// ValueKind classifies what a Value resolves to.
type ValueKind int

const (
	KindOther ValueKind = iota
	KindAttrSet
	KindDerivation
)

// DerivationOptions carries the subset of Config a worker needs to decide
// which optional fields to populate on a derivation record.
type DerivationOptions struct {
	ShowInputDrvs    bool
	Meta             bool
	CheckCacheStatus bool
	Constituents     bool
	Apply            string
	NoInstantiate    bool
	GCRootsDir       string
	// ShowTrace asks the evaluator to include its full expression trace in
	// any error it returns, rather than just the top-level message.
	ShowTrace bool
}

// Evaluator loads the traversal root from one of the three forms spec
// §4.3.1 describes: an inline expression, a file, or a locked flake
// reference.
type Evaluator interface {
	// Load constructs the traversal root and, if cfg.Select is set,
	// applies it before returning — matching original_source's
	// apply-select-before-any-walk ordering (SPEC_FULL.md §5.1).
	Load(ctx context.Context, cfg *config.Config) (Value, error)
}

// Value is a node of the evaluated tree at some attribute path.
type Value interface {
	Kind() ValueKind

	// Attrs lists immediate child keys in lexicographic order. Valid when
	// Kind() == KindAttrSet.
	Attrs() ([]string, error)

	// RecurseForDerivations reports the attrset's recurseForDerivations
	// flag, and whether the attribute was present at all. Valid when
	// Kind() == KindAttrSet.
	RecurseForDerivations() (value bool, present bool, err error)

	// Child resolves one attribute-path component, forcing evaluation as
	// needed.
	Child(name string) (Value, error)

	// Derivation materializes spec §4.5's record fields. Valid when
	// Kind() == KindDerivation.
	Derivation(opts DerivationOptions) (*job.Drv, error)
}

// MissingInfo is the result of Store.QueryMissing, used to populate
// cacheStatus/neededBuilds/neededSubstitutes on a derivation record.
type MissingInfo struct {
	WillBuild      []string
	WillSubstitute []string
	Unknown        []string
}

// Derivation is the on-disk representation the aggregate pass reads back
// and rewrites when resolving namedConstituents into concrete edges.
type Derivation struct {
	Outputs map[string]string
	// InputDrvs maps an input derivation's store path to the set of
	// output names of that derivation this derivation depends on.
	InputDrvs map[string][]string
}

// Store is the subset of artifact-store operations the supervisor and
// worker consume; spec.md §1 explicitly puts the store's implementation
// out of scope.
type Store interface {
	QueryMissing(ctx context.Context, outputs []string, inputDrvs map[string][]string) (MissingInfo, error)
	AddPermRoot(ctx context.Context, storePath, rootPath string) error
	IsLocal() bool
	ReadDerivation(ctx context.Context, drvPath string) (*Derivation, error)
	// WriteDerivation computes a fresh content-addressed path for drv
	// under its "out" output and writes it back, returning the new path.
	WriteDerivation(ctx context.Context, drv *Derivation) (path string, err error)
}
