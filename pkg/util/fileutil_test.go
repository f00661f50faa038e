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

package util

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsDirWritable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, IsDirWritable(dir))

	require.NoError(t, os.Chmod(dir, 0o400))
	defer os.Chmod(dir, 0o700) //nolint:errcheck
	me, err := user.Current()
	require.NoError(t, err)
	if me.Uid == "0" || runtime.GOOS == "windows" {
		t.Skip("test case is running as a superuser or in windows")
	}
	require.ErrorContains(t, IsDirWritable(dir), "permission denied")
}

func TestIsDirAndWritable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.test")

	require.ErrorContains(t, IsDirAndWritable(path), "no such file or directory")

	require.NoError(t, os.WriteFile(path, nil, 0o600))
	require.ErrorContains(t, IsDirAndWritable(path), "is not a directory")

	require.NoError(t, IsDirAndWritable(dir))
}

func TestGetDiskAvailableSpace(t *testing.T) {
	dir := t.TempDir()
	space, err := GetDiskAvailableSpace(dir)
	require.NoError(t, err)
	require.GreaterOrEqual(t, space, int32(0))

	_, err = GetDiskAvailableSpace(filepath.Join(dir, "does-not-exist"))
	require.ErrorContains(t, err, "no such file or directory")
}
