// Copyright 2021 PingCAP, Inc.
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

// Package context holds the single root context.Context created by a cobra
// command's Run function, so that code running under that command (which
// cobra does not thread a context through) can still pick it up.
package context

import "context"

var defaultContext = context.Background()

// SetDefaultContext sets the context returned by GetDefaultContext.
func SetDefaultContext(ctx context.Context) {
	defaultContext = ctx
}

// GetDefaultContext returns the context set by SetDefaultContext, or
// context.Background() if it was never called.
func GetDefaultContext() context.Context {
	return defaultContext
}
