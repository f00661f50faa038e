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

package worker

import (
	"encoding/json"

	"github.com/pingcap/eval-jobs/internal/config"
	cerror "github.com/pingcap/eval-jobs/pkg/errors"
)

// EncodeArgs renders cfg as the single argument a "__worker" subprocess is
// started with. A worker's whole configuration is just cfg, so rather than
// re-deriving a flag set for it, the parent passes the same Config along
// as one JSON blob — avoiding a second, easily-divergent copy of every CLI
// flag's semantics in the worker's own argument parsing.
func EncodeArgs(cfg *config.Config) []string {
	data, err := json.Marshal(cfg)
	if err != nil {
		// cfg is built entirely from internal/config.Config, which holds
		// nothing but strings/bools/numbers/maps — marshaling it can only
		// fail on a bug in this program, not on its input.
		panic(cerror.WrapError(cerror.ErrUnreachable, err, "encode worker config"))
	}
	return []string{string(data)}
}

// DecodeArgs parses a worker's args (as produced by EncodeArgs) back into a
// Config. args must hold exactly the JSON blob EncodeArgs wrote.
func DecodeArgs(args []string) (*config.Config, error) {
	if len(args) != 1 {
		return nil, cerror.ErrInvalidCommand.GenWithStackByArgs(args)
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(args[0]), &cfg); err != nil {
		return nil, cerror.WrapError(cerror.ErrMalformedMessage, err)
	}
	return &cfg, nil
}
