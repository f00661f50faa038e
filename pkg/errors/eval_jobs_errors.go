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

// errors
var (
	// usage errors: surfaced before any worker is spawned, during flag
	// parsing and configuration validation.
	ErrNoExpression       = ClassUsage.DefineError().TextualCode("ErrNoExpression").MessageTemplate("no expression given, supply a flake ref, --expr, or a file argument").Build()
	ErrIncompatibleFlags  = ClassUsage.DefineError().TextualCode("ErrIncompatibleFlags").MessageTemplate("incompatible flags: %s").Build()
	ErrInvalidWorkerCount = ClassUsage.DefineError().TextualCode("ErrInvalidWorkerCount").MessageTemplate("--workers must be positive, got %d").Build()
	ErrInvalidMemorySize  = ClassUsage.DefineError().TextualCode("ErrInvalidMemorySize").MessageTemplate("--max-memory-size must be positive, got %d").Build()
	ErrGCRootsDirRequired = ClassUsage.DefineError().TextualCode("ErrGCRootsDirRequired").MessageTemplate("--gc-roots-dir is required to register derivation GC roots").Build()

	// eval errors: surfaced by the evaluator while loading the top-level
	// expression or forcing an attribute.
	ErrEvalFailed          = ClassEval.DefineError().TextualCode("ErrEvalFailed").MessageTemplate("evaluation failed at %s: %s").Build()
	ErrFlakeLoadFailed     = ClassEval.DefineError().TextualCode("ErrFlakeLoadFailed").MessageTemplate("failed to load flake %s: %s").Build()
	ErrAttrPathNotFound    = ClassEval.DefineError().TextualCode("ErrAttrPathNotFound").MessageTemplate("attribute path not found: %s").Build()
	ErrNotADerivation      = ClassEval.DefineError().TextualCode("ErrNotADerivation").MessageTemplate("attribute at %s is not a derivation").Build()
	ErrRecursionNotEnabled = ClassEval.DefineError().TextualCode("ErrRecursionNotEnabled").MessageTemplate("attribute set at %s does not set recurseForDerivations").Build()

	// worker errors: surfaced by a collector when its worker subprocess
	// misbehaves or cannot be started.
	ErrWorkerSpawnFailed      = ClassWorker.DefineError().TextualCode("ErrWorkerSpawnFailed").MessageTemplate("failed to spawn worker: %s").Build()
	ErrWorkerCrashed          = ClassWorker.DefineError().TextualCode("ErrWorkerCrashed").MessageTemplate("worker %d exited unexpectedly: %s").Build()
	ErrWorkerDiedUnexpectedly = ClassWorker.DefineError().TextualCode("ErrWorkerDiedUnexpectedly").MessageTemplate("worker %d closed its pipe without replying: %s").Build()
	ErrWorkerRestartFailed    = ClassWorker.DefineError().TextualCode("ErrWorkerRestartFailed").MessageTemplate("failed to restart worker %d: %s").Build()

	// protocol errors: surfaced while speaking the line-oriented IPC
	// protocol to a worker.
	ErrUnexpectedReply  = ClassProtocol.DefineError().TextualCode("ErrUnexpectedReply").MessageTemplate("unexpected reply from worker: %q").Build()
	ErrInvalidCommand   = ClassProtocol.DefineError().TextualCode("ErrInvalidCommand").MessageTemplate("invalid command line: %q").Build()
	ErrMalformedMessage = ClassProtocol.DefineError().TextualCode("ErrMalformedMessage").MessageTemplate("malformed IPC message: %s").Build()

	// aggregate errors: surfaced while resolving namedConstituents into
	// concrete derivation dependency edges.
	ErrConstituentCycle      = ClassAggregate.DefineError().TextualCode("ErrConstituentCycle").MessageTemplate("cycle detected in constituents: %s").Build()
	ErrConstituentNotFound   = ClassAggregate.DefineError().TextualCode("ErrConstituentNotFound").MessageTemplate("constituent %q referenced by %q was never evaluated").Build()
	ErrConstituentGlobNoHit  = ClassAggregate.DefineError().TextualCode("ErrConstituentGlobNoHit").MessageTemplate("constituent glob %q referenced by %q matched no jobs").Build()
	ErrConstituentNotDerived = ClassAggregate.DefineError().TextualCode("ErrConstituentNotDerived").MessageTemplate("constituent %q referenced by %q is not a derivation").Build()
	ErrConstituentFailed     = ClassAggregate.DefineError().TextualCode("ErrConstituentFailed").MessageTemplate("constituent %q referenced by %q carries an evaluation error: %s").Build()

	// store errors: surfaced by the content-addressed store and GC-root
	// collaborators.
	ErrGCRootRegisterFailed = ClassStore.DefineError().TextualCode("ErrGCRootRegisterFailed").MessageTemplate("failed to register GC root %s: %s").Build()
	ErrStorePathCompute     = ClassStore.DefineError().TextualCode("ErrStorePathCompute").MessageTemplate("failed to compute store path: %s").Build()

	// util errors.
	ErrCheckDirWritable      = ClassUtil.DefineError().TextualCode("ErrCheckDirWritable").MessageTemplate("check dir writable failed: %s").Build()
	ErrGetDiskAvailableSpace = ClassUtil.DefineError().TextualCode("ErrGetDiskAvailableSpace").MessageTemplate("get disk available space failed: %s").Build()

	// internal errors: these indicate a bug in this program rather than
	// bad input or an environment problem.
	ErrUnreachable = ClassInternal.DefineError().TextualCode("ErrUnreachable").MessageTemplate("unreachable: %s").Build()
)
