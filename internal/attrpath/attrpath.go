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

// Package attrpath represents the chain of attribute-set keys leading from
// the traversal root to a value, in both wire forms used by the protocol:
// a JSON array of strings (used in "do <path>" requests and in decoded
// replies) and a dotted string (used in the "attr" record field).
package attrpath

import "strings"

// Path is an ordered list of attribute-set keys. An empty Path denotes the
// traversal root.
type Path []string

// Child returns a new Path with name appended. Path values are never
// mutated in place so a Path can be safely shared between the todo queue
// and in-flight worker requests.
func (p Path) Child(name string) Path {
	child := make(Path, len(p)+1)
	copy(child, p)
	child[len(p)] = name
	return child
}

// String joins the path components with ".", quoting any component that
// itself contains a literal "." so the result stays unambiguous. This
// mirrors attrPathJoin in the original worker implementation exactly,
// since the rendered string is part of the emitted record and must match.
func (p Path) String() string {
	if len(p) == 0 {
		return ""
	}
	parts := make([]string, len(p))
	for i, s := range p {
		if strings.Contains(s, ".") {
			s = "\"" + s + "\""
		}
		parts[i] = s
	}
	return strings.Join(parts, ".")
}

// Clone returns a copy of p, safe to retain independently of the receiver.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// Equal reports whether p and other name the same sequence of attributes.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}
