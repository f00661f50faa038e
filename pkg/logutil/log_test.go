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

package logutil

import (
	"bytes"
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitLoggerAndSetLogLevel(t *testing.T) {
	f := filepath.Join(t.TempDir(), "test")
	cfg := &Config{
		Level: "warning",
		File:  f,
	}
	cfg.Adjust()
	require.NoError(t, InitLogger(cfg))
	require.Equal(t, zapcore.WarnLevel, log.GetLevel())

	require.NoError(t, SetLogLevel("info"))
	require.Equal(t, zapcore.InfoLevel, log.GetLevel())

	require.NoError(t, SetLogLevel("info"))
	require.Equal(t, zapcore.InfoLevel, log.GetLevel())

	require.Error(t, SetLogLevel("badlevel"))
}

func TestZapErrorFilter(t *testing.T) {
	err := errors.New("test error")
	testCases := []struct {
		err      error
		filters  []error
		expected zap.Field
	}{
		{nil, []error{}, zap.Error(nil)},
		{err, []error{}, zap.Error(err)},
		{err, []error{context.Canceled}, zap.Error(err)},
		{err, []error{err}, zap.Error(nil)},
		{context.Canceled, []error{context.Canceled}, zap.Error(nil)},
		{errors.Annotate(context.Canceled, "annotate error"), []error{context.Canceled}, zap.Error(nil)},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.expected, ZapErrorFilter(tc.err, tc.filters...))
	}
}

func getLinesCount(t *testing.T, logFile string) int {
	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	return bytes.Count(content, []byte{'\n'})
}

func getRandomStr(n int) string {
	letters := []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
	r := make([]rune, n)
	for i := range r {
		r[i] = letters[rand.Intn(len(letters))]
	}
	return string(r)
}

func TestLogSampleAndDrop(t *testing.T) {
	f := filepath.Join(t.TempDir(), "test")
	cfg := &Config{
		Level:              "info",
		File:               f,
		SamplingInitial:    10,
		SamplingThereafter: 10,
	}
	require.NoError(t, InitLogger(cfg))

	for i := 0; i < 100; i++ {
		log.Info("test eval-jobs log info", zap.Int("index", i))
	}
	require.Equal(t, 19, getLinesCount(t, f))

	require.NoError(t, os.Truncate(f, 0))
	for i := 0; i < 100; i++ {
		log.Debug("test eval-jobs log debug", zap.Int("index", i))
	}
	require.Equal(t, 0, getLinesCount(t, f))

	require.NoError(t, os.Truncate(f, 0))
	for i := 0; i < 100; i++ {
		log.Warn(getRandomStr(5), zap.Int("index", i))
	}
	require.Equal(t, 100, getLinesCount(t, f))
}
