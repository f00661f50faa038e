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

package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Workers:          DefaultWorkers,
		MaxMemorySizeMiB: DefaultMaxMemorySizeMiB,
		Source:           RootSource{Arg: ".", Flake: true},
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsZeroWorkers(t *testing.T) {
	c := validConfig()
	c.Workers = 0
	require.Error(t, c.Validate())
}

func TestValidateRejectsZeroMemorySize(t *testing.T) {
	c := validConfig()
	c.MaxMemorySizeMiB = 0
	require.Error(t, c.Validate())
}

func TestValidateRejectsMissingExpression(t *testing.T) {
	c := validConfig()
	c.Source = RootSource{}
	require.Error(t, c.Validate())
}

func TestValidateAcceptsExprWithoutPositionalArg(t *testing.T) {
	c := validConfig()
	c.Source = RootSource{Expr: "{ a = 1; }"}
	require.NoError(t, c.Validate())
}

func TestValidateRejectsNoInstantiateWithCheckCacheStatus(t *testing.T) {
	c := validConfig()
	c.NoInstantiate = true
	c.CheckCacheStatus = true
	require.Error(t, c.Validate())
}

func TestValidateRejectsConstituentsWithoutGCRootsDir(t *testing.T) {
	c := validConfig()
	c.Constituents = true
	require.Error(t, c.Validate())
}

func TestValidateAcceptsConstituentsWithGCRootsDir(t *testing.T) {
	c := validConfig()
	c.Constituents = true
	c.GCRootsDir = "/gcroots"
	require.NoError(t, c.Validate())
}
