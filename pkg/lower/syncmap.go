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
package lower

import "github.com/kerngen/loopfuse/pkg/domain"

// SyncMap answers "does writing to this tensor need a thread-block
// barrier before it is safe to read back" (spec.md §9's `needsRawSync`).
// The real WAR/RAW sync analysis is an external collaborator (spec.md
// §4.6's "War/Raw" note); this map captures only the one fact the
// double-buffer pass itself needs: any load whose *output* lives in
// Shared memory creates a RAW hazard between the writing thread and
// every other thread in the block that will read it, so a barrier is
// required after the write completes and before Main is entered.
type SyncMap struct {
	raw map[*domain.TensorView]bool
}

// NewSyncMap derives the RAW-sync set from fusion's Shared-memory
// tensors.
func NewSyncMap(fusion *domain.Fusion) *SyncMap {
	raw := make(map[*domain.TensorView]bool)

	for _, tv := range fusion.TensorViews() {
		if tv.Memory == domain.Shared && tv.Definition() != nil {
			raw[tv] = true
		}
	}

	return &SyncMap{raw: raw}
}

// NeedsRawSync reports whether tv's writer must be followed by a
// BlockSync before any reader may proceed.
func (s *SyncMap) NeedsRawSync(tv *domain.TensorView) bool {
	if s == nil {
		return false
	}

	return s.raw[tv]
}
