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

package errors

import (
	"github.com/pingcap/errors"
)

// Error classes
var (
	reg = errors.NewRegistry("EVALJOBS")

	// ClassUsage covers CLI flag parsing and configuration validation errors.
	ClassUsage = reg.RegisterErrorClass(1, "usage")
	// ClassEval covers errors surfaced by the evaluator while loading or
	// forcing an expression.
	ClassEval = reg.RegisterErrorClass(2, "eval")
	// ClassWorker covers worker subprocess lifecycle errors: spawn, crash,
	// restart, and unexpected exit.
	ClassWorker = reg.RegisterErrorClass(3, "worker")
	// ClassProtocol covers malformed or unexpected IPC traffic between a
	// collector and its worker.
	ClassProtocol = reg.RegisterErrorClass(4, "protocol")
	// ClassAggregate covers the post-traversal constituent resolution pass.
	ClassAggregate = reg.RegisterErrorClass(5, "aggregate")
	// ClassStore covers the content-addressed store and GC-root collaborators.
	ClassStore = reg.RegisterErrorClass(6, "store")
	// ClassUtil is the basic utility error class (filesystem, memory checks).
	ClassUtil = reg.RegisterErrorClass(7, "util")
	// ClassInternal is for invariant violations that should never happen.
	ClassInternal = reg.RegisterErrorClass(8, "internal")
)

// WrapError wraps err with the given defined error, attaching a stack trace.
// It returns nil if err is nil, matching the defined-error conventions used
// throughout this module.
func WrapError(rfcError *errors.Error, err error, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if len(args) == 0 {
		return rfcError.Wrap(err).GenWithStackByArgs()
	}
	return rfcError.Wrap(err).GenWithStackByArgs(args...)
}

// Trace re-exports github.com/pingcap/errors.Trace so callers only need to
// import this package.
func Trace(err error) error {
	return errors.Trace(err)
}

// Annotate re-exports github.com/pingcap/errors.Annotate.
func Annotate(err error, message string) error {
	return errors.Annotate(err, message)
}

// Cause re-exports github.com/pingcap/errors.Cause.
func Cause(err error) error {
	return errors.Cause(err)
}

// Errorf re-exports github.com/pingcap/errors.Errorf.
func Errorf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}

// New re-exports github.com/pingcap/errors.New.
func New(message string) error {
	return errors.New(message)
}
