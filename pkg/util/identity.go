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

// Role identifies which part of the process tree a log line or error came
// from: the main process, a collector goroutine, or a worker subprocess.
type Role int

const (
	RoleSupervisor Role = iota
	RoleCollector
	RoleWorker
	RoleUnknown
)

func (r Role) String() string {
	switch r {
	case RoleSupervisor:
		return "supervisor"
	case RoleCollector:
		return "collector"
	case RoleWorker:
		return "worker"
	case RoleUnknown:
		return "unknown"
	}
	return "unknown"
}
