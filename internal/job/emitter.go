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
	"io"
	"sync"

	"github.com/pingcap/eval-jobs/pkg/util"
)

// Emitter writes one JSON record per line to an underlying writer, with
// every write serialized so concurrent collectors never interleave two
// lines (spec §3's "Emission to standard output is serialized").
type Emitter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewEmitter wraps out (typically os.Stdout) for concurrent use.
func NewEmitter(out io.Writer) *Emitter {
	return &Emitter{out: out}
}

// Emit writes drv as a single JSON line. It builds the document field by
// field with the pooled streaming writer rather than marshaling the whole
// struct, so zero-value optional fields are genuinely absent rather than
// rendered as "" or null.
func (e *Emitter) Emit(drv *Drv) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	w := util.BorrowJSONWriter(e.out)
	w.WriteObject(func() {
		w.WriteStringField("attr", drv.Attr)
		w.WriteAnyField("attrPath", drv.AttrPath)

		if drv.Error != "" {
			w.WriteStringField("error", drv.Error)
		}
		if drv.Name != "" {
			w.WriteStringField("name", drv.Name)
		}
		if drv.System != "" {
			w.WriteStringField("system", drv.System)
		}
		if drv.DrvPath != "" {
			w.WriteStringField("drvPath", drv.DrvPath)
		}
		if drv.Outputs != nil {
			w.WriteAnyField("outputs", drv.Outputs)
		}
		if len(drv.InputDrvs) > 0 {
			w.WriteAnyField("inputDrvs", drv.InputDrvs)
		}
		if len(drv.Meta) > 0 {
			w.WriteAnyField("meta", drv.Meta)
		}
		if drv.CacheStatus != "" {
			w.WriteStringField("cacheStatus", string(drv.CacheStatus))
		}
		if drv.IsCached != nil {
			w.WriteBoolField("isCached", *drv.IsCached)
		}
		if len(drv.NeededBuilds) > 0 {
			w.WriteAnyField("neededBuilds", drv.NeededBuilds)
		}
		if len(drv.NeededSubstitutes) > 0 {
			w.WriteAnyField("neededSubstitutes", drv.NeededSubstitutes)
		}
		if len(drv.UnknownPaths) > 0 {
			w.WriteAnyField("unknownPaths", drv.UnknownPaths)
		}
		if len(drv.RequiredSystemFeatures) > 0 {
			w.WriteAnyField("requiredSystemFeatures", drv.RequiredSystemFeatures)
		}
		if len(drv.Constituents) > 0 {
			w.WriteAnyField("constituents", drv.Constituents)
		}
		if len(drv.NamedConstituents) > 0 {
			w.WriteAnyField("namedConstituents", drv.NamedConstituents)
		}
		if drv.GlobConstituents {
			w.WriteBoolField("globConstituents", drv.GlobConstituents)
		}
		if drv.ExtraValue != nil {
			w.WriteAnyField("extraValue", drv.ExtraValue)
		}
	})
	util.ReturnJSONWriter(w)

	_, err := e.out.Write([]byte("\n"))
	return err
}
