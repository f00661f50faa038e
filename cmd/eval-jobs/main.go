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

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pingcap/eval-jobs/internal/evalapi"
	"github.com/pingcap/eval-jobs/internal/ipc"
	"github.com/pingcap/eval-jobs/internal/worker"
	"github.com/pingcap/eval-jobs/pkg/cmd/server"
	cerror "github.com/pingcap/eval-jobs/pkg/errors"
)

// workerSubcommand is the hidden mode internal/ipc.Proc re-execs this same
// binary into: one worker subprocess per collector, talking the line
// protocol over its own stdin/stdout rather than cobra flags. It is
// intercepted before cobra ever sees argv, since "__worker"'s own argument
// (a JSON Config blob) is not meant to be parsed as CLI flags.
const workerSubcommand = "__worker"

func main() {
	if len(os.Args) > 1 && os.Args[1] == workerSubcommand {
		os.Exit(runWorker(os.Args[2:]))
	}

	if err := server.NewCmdServer().Execute(); err != nil {
		os.Exit(1)
	}
}

func runWorker(args []string) int {
	cfg, err := worker.DecodeArgs(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	eval, err := productionEvaluator()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	// Store stays nil: without a production evaluator to reach this code
	// at all, there is nothing real for --check-cache-status or
	// --gc-roots-dir to call into either.
	w := &worker.Worker{
		Eval: eval,
		Cfg:  cfg,
		Ch:   ipc.NewChannel(os.Stdin, os.Stdout),
	}
	if err := w.Run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// productionEvaluator is where a real binding to the Nix evaluator would be
// constructed. That binding is one of SPEC_FULL.md §4's out-of-scope
// collaborators — this module implements the worker pool, IPC protocol,
// and aggregate pass around it, not the evaluator itself — so this build
// has none to offer, and fails clearly rather than silently faking one.
func productionEvaluator() (evalapi.Evaluator, error) {
	return nil, cerror.ErrEvalFailed.GenWithStackByArgs("<root>",
		"no production Nix evaluator is wired into this build; see DESIGN.md")
}
