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

// Package idgraph implements the iteration-domain equivalence graph: a
// single equivalence relation over IterDomains plus the derived
// definition/use edges between equivalence classes (IdGraph), and the
// per-mapping-mode collection of such graphs (IterDomainGraphs).
package idgraph

import (
	"fmt"

	"github.com/kerngen/loopfuse/pkg/disjointset"
	"github.com/kerngen/loopfuse/pkg/domain"
	"github.com/samber/lo"
)

// IdGroup is a reference handle to an equivalence class of IterDomains.
// Two handles compare equal (via Equal) iff they currently denote the same
// group; handles obtained before a later mapIds remain valid, resolving
// through the live union-find forest rather than a stale snapshot.
type IdGroup = disjointset.Set[*domain.IterDomain]

// ExprGroup is a reference handle to an equivalence class of Expressions.
type ExprGroup = disjointset.Set[domain.Expression]

// IdGroups is a deduplicated, order-preserving list of IdGroup handles.
type IdGroups []IdGroup

// ExprGroups is a deduplicated, order-preserving list of ExprGroup handles.
type ExprGroups []ExprGroup

// Contains reports whether g is present in gs.
func (gs IdGroups) Contains(g IdGroup) bool {
	return lo.ContainsBy(gs, func(o IdGroup) bool { return o.Equal(g) })
}

// Contains reports whether g is present in gs.
func (gs ExprGroups) Contains(g ExprGroup) bool {
	return lo.ContainsBy(gs, func(o ExprGroup) bool { return o.Equal(g) })
}

// String renders the group list for debug output.
func (gs IdGroups) String() string {
	return fmt.Sprintf("%v", []IdGroup(gs))
}

// String renders the group list for debug output.
func (gs ExprGroups) String() string {
	return fmt.Sprintf("%v", []ExprGroup(gs))
}
