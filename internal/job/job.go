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

// Package job defines the JSON record schema emitted on standard output
// and exchanged between a collector and its worker over the IPC pipe.
package job

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// wireJSON matches the teacher's pooled-writer convention of disabling
// HTML escaping (store paths and Nix expressions routinely contain
// characters like '<' that would otherwise be mangled) and not sorting map
// keys, so map-valued fields such as outputs are written in Go's map
// iteration order, which can differ between runs.
var wireJSON = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            false,
	ValidateJsonRawMessage: true,
}.Froze()

// CacheStatus classifies a derivation's buildability against the store,
// populated when --check-cache-status is set.
type CacheStatus string

const (
	CacheStatusLocal    CacheStatus = "local"
	CacheStatusCached   CacheStatus = "cached"
	CacheStatusNotBuilt CacheStatus = "notBuilt"
)

// Drv is a derivation record, the terminal reply a worker sends for a leaf
// of the traversal. Pointer fields are nil when the spec marks them
// optional so they're omitted from the emitted JSON rather than rendered
// as null or zero values.
type Drv struct {
	Attr     string   `json:"attr"`
	AttrPath []string `json:"attrPath"`

	Name    string            `json:"name"`
	System  string            `json:"system"`
	DrvPath string            `json:"drvPath"`
	Outputs map[string]string `json:"outputs"`

	InputDrvs map[string][]string `json:"inputDrvs,omitempty"`
	Meta      map[string]any      `json:"meta,omitempty"`

	CacheStatus            CacheStatus `json:"cacheStatus,omitempty"`
	IsCached               *bool       `json:"isCached,omitempty"`
	NeededBuilds           []string    `json:"neededBuilds,omitempty"`
	NeededSubstitutes      []string    `json:"neededSubstitutes,omitempty"`
	UnknownPaths           []string    `json:"unknownPaths,omitempty"`
	RequiredSystemFeatures []string    `json:"requiredSystemFeatures,omitempty"`

	Constituents      []string `json:"constituents,omitempty"`
	NamedConstituents []string `json:"namedConstituents,omitempty"`
	GlobConstituents  bool     `json:"globConstituents,omitempty"`

	ExtraValue any `json:"extraValue,omitempty"`

	Error string `json:"error,omitempty"`
}

// Children is the reply a worker sends when a path resolves to an
// attribute set rather than a leaf; it is never written to standard
// output, only consumed by the collector to extend the work queue.
type Children struct {
	Attr     string   `json:"attr"`
	AttrPath []string `json:"attrPath"`
	Attrs    []string `json:"attrs"`
}

// ErrorReply is an error surfaced by the worker outside of the normal
// Drv.Error field — e.g. a malformed request it could not even attribute
// to a path.
type ErrorReply struct {
	Error string `json:"error"`
}

// Marshal renders v (a *Drv, *Children, or any JSON-able value) using the
// wire configuration shared by stdout emission and the IPC protocol.
func Marshal(v any) ([]byte, error) {
	return wireJSON.Marshal(v)
}

// FilterANSIEscapes strips terminal color/style escape sequences from an
// evaluator error message before it's embedded in a JSON string field, so
// redirecting the NDJSON stream to a file never carries control characters.
func FilterANSIEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inEscape := false
	for _, r := range s {
		if inEscape {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
			continue
		}
		if r == 0x1b {
			inEscape = true
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Unmarshal decodes data using the same wire configuration as Marshal.
func Unmarshal(data []byte, v any) error {
	return wireJSON.Unmarshal(data, v)
}
