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

// Package fake implements internal/evalapi against an in-memory tree of Go
// values, letting internal/worker and internal/supervisor tests drive full
// traversals without a real evaluator or store.
package fake

import (
	"context"
	"fmt"
	"path"
	"sort"

	"github.com/pingcap/eval-jobs/internal/config"
	"github.com/pingcap/eval-jobs/internal/evalapi"
	"github.com/pingcap/eval-jobs/internal/job"
)

// Node is one node of a fake evaluated tree: either an attribute set
// (Children non-nil) or a derivation (Derivation non-nil). Exactly one
// should be set, matching evalapi.ValueKind's three-way split (a nil
// Children and nil Derivation is KindOther — an opaque leaf).
type Node struct {
	Children              map[string]*Node
	RecurseForDerivations *bool

	Derivation *FakeDrv

	// EvalError, if set, is returned from Child/Attrs/Derivation instead
	// of descending further, simulating an evaluator error at this node.
	EvalError error
}

// FakeDrv is the fixture form of a derivation, translated into a
// *job.Drv by Node.Derivation.
type FakeDrv struct {
	Name              string
	System            string
	DrvPath           string
	Outputs           map[string]string
	NamedConstituents []string
	GlobConstituents  bool
	IsAggregate       bool
}

// Evaluator implements evalapi.Evaluator over a fixed Root tree, ignoring
// flake/expr/file distinctions entirely — tests construct whatever Root
// tree they need directly.
type Evaluator struct {
	Root *Node
}

func (e *Evaluator) Load(_ context.Context, cfg *config.Config) (evalapi.Value, error) {
	return &value{node: e.Root}, nil
}

type value struct {
	node *Node
}

func (v *value) Kind() evalapi.ValueKind {
	switch {
	case v.node.Derivation != nil:
		return evalapi.KindDerivation
	case v.node.Children != nil:
		return evalapi.KindAttrSet
	default:
		return evalapi.KindOther
	}
}

func (v *value) Attrs() ([]string, error) {
	if v.node.EvalError != nil {
		return nil, v.node.EvalError
	}
	names := make([]string, 0, len(v.node.Children))
	for name := range v.node.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (v *value) RecurseForDerivations() (bool, bool, error) {
	if v.node.EvalError != nil {
		return false, false, v.node.EvalError
	}
	if v.node.RecurseForDerivations == nil {
		return false, false, nil
	}
	return *v.node.RecurseForDerivations, true, nil
}

func (v *value) Child(name string) (evalapi.Value, error) {
	if v.node.EvalError != nil {
		return nil, v.node.EvalError
	}
	child, ok := v.node.Children[name]
	if !ok {
		return nil, fmt.Errorf("attribute %q not found", name)
	}
	return &value{node: child}, nil
}

func (v *value) Derivation(opts evalapi.DerivationOptions) (*job.Drv, error) {
	if v.node.EvalError != nil {
		return nil, v.node.EvalError
	}
	d := v.node.Derivation
	drv := &job.Drv{
		Name:    d.Name,
		System:  d.System,
		DrvPath: d.DrvPath,
		Outputs: d.Outputs,
	}
	if opts.Constituents && d.IsAggregate {
		drv.NamedConstituents = d.NamedConstituents
		drv.GlobConstituents = d.GlobConstituents
	}
	return drv, nil
}

// Store implements evalapi.Store over an in-memory map of derivation
// paths, letting aggregate-pass tests rewrite and re-read derivations
// without touching a real content-addressed store.
type Store struct {
	Local       bool
	Derivations map[string]*evalapi.Derivation
	Roots       map[string]string

	nextCAID int
}

func NewStore() *Store {
	return &Store{
		Local:       true,
		Derivations: map[string]*evalapi.Derivation{},
		Roots:       map[string]string{},
	}
}

func (s *Store) QueryMissing(_ context.Context, outputs []string, inputDrvs map[string][]string) (evalapi.MissingInfo, error) {
	return evalapi.MissingInfo{}, nil
}

func (s *Store) AddPermRoot(_ context.Context, storePath, rootPath string) error {
	s.Roots[rootPath] = storePath
	return nil
}

func (s *Store) IsLocal() bool { return s.Local }

func (s *Store) ReadDerivation(_ context.Context, drvPath string) (*evalapi.Derivation, error) {
	d, ok := s.Derivations[drvPath]
	if !ok {
		return nil, fmt.Errorf("no such derivation: %s", drvPath)
	}
	return d, nil
}

func (s *Store) WriteDerivation(_ context.Context, drv *evalapi.Derivation) (string, error) {
	s.nextCAID++
	newPath := path.Join("/store", fmt.Sprintf("ca%d-aggregate.drv", s.nextCAID))
	s.Derivations[newPath] = drv
	return newPath, nil
}
