// Copyright 2023 PingCAP, Inc.
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
	"math"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/pingcap/log"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/pingcap/eval-jobs/pkg/errors"
)

const memoryMax uint64 = math.MaxUint64

// GetMemoryLimit returns the memory limit visible to this process, based on
// its cgroup if one is set. If the cgroup is absent or its memory.max is set
// to "max", it falls back to the host's total physical memory.
func GetMemoryLimit() (uint64, error) {
	totalMemory, err := memlimit.FromCgroup()
	if err != nil || totalMemory == memoryMax {
		log.Info("no cgroup memory limit", zap.Error(err))
		stat, merr := mem.VirtualMemory()
		if merr != nil {
			return 0, errors.Trace(merr)
		}
		totalMemory = stat.Total
	}
	return totalMemory, nil
}

// WarnIfWorkerBudgetExceedsHost logs a warning if workers*maxMemorySizeMiB
// would, in the worst case where every worker sits at its cap simultaneously,
// exceed the memory visible to this process. It never blocks or fails a run:
// the per-worker cap is still enforced independently by each worker, this is
// only a preflight hint for misconfigured --workers/--max-memory-size pairs.
func WarnIfWorkerBudgetExceedsHost(workers int, maxMemorySizeMiB uint64) {
	limit, err := GetMemoryLimit()
	if err != nil {
		log.Warn("could not determine host memory limit for preflight check", zap.Error(err))
		return
	}
	reserved := uint64(workers) * maxMemorySizeMiB * 1024 * 1024
	if reserved > limit {
		log.Warn("configured worker pool may overcommit host memory",
			zap.Int("workers", workers),
			zap.Uint64("maxMemorySizeMiB", maxMemorySizeMiB),
			zap.Uint64("reservedBytes", reserved),
			zap.Uint64("hostLimitBytes", limit),
		)
	}
}
