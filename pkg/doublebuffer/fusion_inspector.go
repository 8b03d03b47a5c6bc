// Copyright the loopfuse contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0
package doublebuffer

import "github.com/kerngen/loopfuse/pkg/domain"

// FusionInspector validates annotated tensors and populates an Info
// (spec.md §2's DoubleBufferFusionInspector).
type FusionInspector struct {
	info *Info
}

// NewFusionInspector constructs an inspector that populates info.
func NewFusionInspector(info *Info) *FusionInspector {
	return &FusionInspector{info: info}
}

// Inspect walks every (circular-)buffered tensor in fusion, selecting
// and validating its double-buffer axis and recording its per-stage
// allocation size.
func (fi *FusionInspector) Inspect(fusion *domain.Fusion) error {
	for _, tv := range fusion.TensorViews() {
		if !tv.IsDoubleBuffered() && !tv.IsCircularBuffered() {
			continue
		}

		axis, pos, err := getDoubleBufferAxis(tv)
		if err != nil {
			return err
		}

		if err := fi.info.SetDoubleBufferAxis(tv, axis); err != nil {
			return err
		}

		fi.info.SetOriginalAllocSize(tv, allocSize(tv, pos))
	}

	return nil
}
