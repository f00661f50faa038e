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

package job

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterANSIEscapesStripsColorCodes(t *testing.T) {
	require.Equal(t, "redtextplain", FilterANSIEscapes("red\x1b[31mtext\x1b[0mplain"))
}

func TestFilterANSIEscapesLeavesPlainTextAlone(t *testing.T) {
	require.Equal(t, "no escapes here", FilterANSIEscapes("no escapes here"))
}

func TestEmitterOmitsOptionalFields(t *testing.T) {
	var buf bytes.Buffer
	e := NewEmitter(&buf)
	require.NoError(t, e.Emit(&Drv{Attr: "a", DrvPath: "/store/a.drv", Outputs: map[string]string{"out": "/store/a-out"}}))

	out := buf.String()
	require.Contains(t, out, `"attr":"a"`)
	require.NotContains(t, out, "cacheStatus")
	require.NotContains(t, out, "namedConstituents")
}
