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

import (
	"fmt"

	"github.com/kerngen/loopfuse/pkg/domain"
	"github.com/kerngen/loopfuse/pkg/idgraph"
)

// ComputeAtMap wraps an idgraph.IterDomainGraphs as the concrete-loop-id
// and index-variable authority spec.md §9 names as part of
// GpuLower::current()'s surface. "Concrete" here means: the LOOP-mode
// group's representative member, since loop realization (one physical
// `for` per LOOP-mode equivalence class) is exactly what LOOP mode
// merges over.
type ComputeAtMap struct {
	graphs  *idgraph.IterDomainGraphs
	indices map[*domain.IterDomain]*domain.Value
}

// NewComputeAtMap wraps a built IterDomainGraphs.
func NewComputeAtMap(graphs *idgraph.IterDomainGraphs) *ComputeAtMap {
	return &ComputeAtMap{
		graphs:  graphs,
		indices: make(map[*domain.IterDomain]*domain.Value),
	}
}

// GetConcreteMappedID returns the LOOP-mode group's representative
// member for id — the single IterDomain every LOOP-congruent axis
// shares a physical loop and index variable with.
func (m *ComputeAtMap) GetConcreteMappedID(id *domain.IterDomain) *domain.IterDomain {
	group := m.graphs.IdGraph(idgraph.Loop).DisjointIdSet(id)
	return group.Item()
}

// AreMapped reports whether a and b share a LOOP-mode group, i.e.
// whether they are realized by the same physical loop.
func (m *ComputeAtMap) AreMapped(a, b *domain.IterDomain) bool {
	return m.graphs.IdGraph(idgraph.Loop).AreMapped(a, b)
}

// GetIndexVariable returns the (lazily synthesized, memoized per
// concrete LOOP-mode group) index-variable symbol for id's loop. Every
// LOOP-congruent axis resolves to the same variable, since they share
// one physical loop.
func (m *ComputeAtMap) GetIndexVariable(id *domain.IterDomain) *domain.Value {
	concrete := m.GetConcreteMappedID(id)

	if v, ok := m.indices[concrete]; ok {
		return v
	}

	v := domain.NewSymbol(fmt.Sprintf("i_%s", concrete))
	m.indices[concrete] = v

	return v
}
