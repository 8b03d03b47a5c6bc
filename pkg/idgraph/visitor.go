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
package idgraph

// IdGraphVisitor receives IdGroups and ExprGroups in the order a traversal
// discovers them. IdGraphStmtSort is the concrete visitor provided here,
// giving a stable, deterministic ordering of a graph sub-region; no
// other package of this module drives a traversal with it.
type IdGraphVisitor interface {
	VisitId(IdGroup)
	VisitExpr(ExprGroup)
}

// TraverseBetween runs a forward BFS from `from`, pruning at `to` like
// GetExprsBetween, and reports every IdGroup and ExprGroup it discovers
// to visitor in discovery order. Unlike GetExprsBetween, a `to` group the
// walk reaches is itself reported (but not expanded), and an ExprGroup
// used by several visited IdGroups is reported once per encounter.
func (g *IdGraph) TraverseBetween(from, to IdGroups, visitor IdGraphVisitor) {
	visitedIds := make(map[IdGroup]bool)

	stop := make(map[IdGroup]bool)
	for _, t := range to {
		stop[t] = true
	}

	queue := append(IdGroups{}, from...)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if visitedIds[id] {
			continue
		}

		visitedIds[id] = true
		visitor.VisitId(id)

		if stop[id] {
			continue
		}

		for _, eg := range g.UniqueUses(id) {
			visitor.VisitExpr(eg)

			for _, next := range g.OutputGroups(eg) {
				if !visitedIds[next] {
					queue = append(queue, next)
				}
			}
		}
	}
}

// IdGraphStmtSort is a concrete IdGraphVisitor that accumulates every
// IdGroup and ExprGroup it sees, in forward-topological (discovery)
// order, deduplicated.
type IdGraphStmtSort struct {
	Ids   IdGroups
	Exprs ExprGroups
}

// NewIdGraphStmtSort constructs an empty accumulator.
func NewIdGraphStmtSort() *IdGraphStmtSort {
	return &IdGraphStmtSort{}
}

// VisitId implements IdGraphVisitor.
func (s *IdGraphStmtSort) VisitId(g IdGroup) {
	if !s.Ids.Contains(g) {
		s.Ids = append(s.Ids, g)
	}
}

// VisitExpr implements IdGraphVisitor.
func (s *IdGraphStmtSort) VisitExpr(e ExprGroup) {
	if !s.Exprs.Contains(e) {
		s.Exprs = append(s.Exprs, e)
	}
}
