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

package attrpath

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringRoot(t *testing.T) {
	require.Equal(t, "", Path{}.String())
	require.Equal(t, "", Path(nil).String())
}

func TestStringJoin(t *testing.T) {
	require.Equal(t, "a.b.c", Path{"a", "b", "c"}.String())
}

func TestStringQuotesDottedComponent(t *testing.T) {
	require.Equal(t, `a."b.c".d`, Path{"a", "b.c", "d"}.String())
}

func TestChildDoesNotMutateParent(t *testing.T) {
	root := Path{"a"}
	child := root.Child("b")
	require.Equal(t, Path{"a"}, root)
	require.Equal(t, Path{"a", "b"}, child)

	sibling := root.Child("c")
	require.Equal(t, Path{"a", "c"}, sibling)
	require.Equal(t, Path{"a", "b"}, child)
}

func TestEqual(t *testing.T) {
	require.True(t, Path{"a", "b"}.Equal(Path{"a", "b"}))
	require.False(t, Path{"a", "b"}.Equal(Path{"a"}))
	require.False(t, Path{"a", "b"}.Equal(Path{"a", "c"}))
}
