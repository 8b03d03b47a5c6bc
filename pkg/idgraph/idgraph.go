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

import (
	"fmt"
	"strings"

	"github.com/kerngen/loopfuse/pkg/disjointset"
	"github.com/kerngen/loopfuse/pkg/domain"
	"github.com/samber/lo"
)

// idPair is a pending MapIds union awaiting processing in the fixed-point
// worklist.
type idPair struct{ a, b *domain.IterDomain }

// IdGraph is a single equivalence relation over IterDomains plus the
// derived definition/use edges between equivalence classes. It is the
// per-mode building block IterDomainGraphs assembles four of (one per
// MappingMode).
type IdGraph struct {
	ids   *disjointset.DisjointSets[*domain.IterDomain, *domain.IterDomain]
	exprs *disjointset.DisjointSets[domain.Expression, domain.Expression]

	// idDefinitions/idUses hold the raw per-IterDomain edges recorded at
	// initializeId time, keyed by the IterDomain itself (never rewritten).
	idDefinitions map[*domain.IterDomain][]domain.Expression
	idUses        map[*domain.IterDomain][]domain.Expression

	// groupDefinitions/groupUses hold, per *current* IdGroup handle, the
	// representative raw expressions contributing to unique_definitions_/
	// unique_uses_. mapIds actively migrates these from a losing group's
	// handle to the winner's on every merge (spec.md §4.2 step 3), so a
	// lookup by the group's live FindSet result is always complete.
	groupDefinitions map[IdGroup][]domain.Expression
	groupUses        map[IdGroup][]domain.Expression
}

// NewIdGraph constructs an empty IdGraph.
func NewIdGraph() *IdGraph {
	return &IdGraph{
		ids:              disjointset.New(func(id *domain.IterDomain) *domain.IterDomain { return id }),
		exprs:            disjointset.New(func(e domain.Expression) domain.Expression { return e }),
		idDefinitions:    make(map[*domain.IterDomain][]domain.Expression),
		idUses:           make(map[*domain.IterDomain][]domain.Expression),
		groupDefinitions: make(map[IdGroup][]domain.Expression),
		groupUses:        make(map[IdGroup][]domain.Expression),
	}
}

// InitializeId creates a singleton IdGroup containing id, records its
// definitions/uses, and seeds singleton ExprGroups for each.
func (g *IdGraph) InitializeId(id *domain.IterDomain, definitions, uses []domain.Expression) {
	g.idDefinitions[id] = definitions
	g.idUses[id] = uses

	for _, e := range definitions {
		g.exprs.FindSet(e)
	}

	for _, e := range uses {
		g.exprs.FindSet(e)
	}

	group := g.ids.FindSet(id)
	g.groupDefinitions[group] = append(g.groupDefinitions[group], definitions...)
	g.groupUses[group] = append(g.groupUses[group], uses...)
}

// DisjointIdSet returns id's current IdGroup, creating a singleton if id
// has not been seen (mirrors the C++ disjointIdSet convenience accessor).
func (g *IdGraph) DisjointIdSet(id *domain.IterDomain) IdGroup {
	return g.ids.FindSet(id)
}

// DisjointExprSet returns e's current ExprGroup.
func (g *IdGraph) DisjointExprSet(e domain.Expression) ExprGroup {
	return g.exprs.FindSet(e)
}

// AreMapped reports whether a and b are currently in the same IdGroup.
func (g *IdGraph) AreMapped(a, b *domain.IterDomain) bool {
	return g.ids.StrictAreMapped(a, b)
}

// UniqueDefinitions returns the deduplicated ExprGroups defining the given
// IdGroup. If no raw definitions were recorded directly against this
// group's handle (can happen for a freshly-merged group whose constituent
// IterDomains were initialized independently), it falls back to
// accumulating over every IterDomain ever merged into the group.
func (g *IdGraph) UniqueDefinitions(group IdGroup) ExprGroups {
	return g.uniqueExprGroups(group, g.groupDefinitions, g.idDefinitions, g.ids)
}

// UniqueUses returns the deduplicated ExprGroups using the given IdGroup.
func (g *IdGraph) UniqueUses(group IdGroup) ExprGroups {
	return g.uniqueExprGroups(group, g.groupUses, g.idUses, g.ids)
}

func (g *IdGraph) uniqueExprGroups(
	group IdGroup,
	byGroup map[IdGroup][]domain.Expression,
	byID map[*domain.IterDomain][]domain.Expression,
	ids *disjointset.DisjointSets[*domain.IterDomain, *domain.IterDomain],
) ExprGroups {
	raw, ok := byGroup[group]
	if !ok {
		for _, member := range ids.MembersOf(representativeMember(group, ids)) {
			raw = append(raw, byID[member]...)
		}
	}

	seen := make(map[ExprGroup]bool)
	result := make(ExprGroups, 0, len(raw))

	for _, e := range raw {
		eg := g.exprs.FindSet(e)
		if seen[eg] {
			continue
		}

		seen[eg] = true
		result = append(result, eg)
	}

	return result
}

// representativeMember is a helper for the fallback path in
// uniqueExprGroups: it has no single IterDomain to hand, since it only has
// the group handle, so it relies on DisjointSetMap to recover one member.
// This path is rare: groupDefinitions/groupUses are kept live by mapIds's
// active migration, so lookups normally hit directly.
func representativeMember(group IdGroup, ids *disjointset.DisjointSets[*domain.IterDomain, *domain.IterDomain]) *domain.IterDomain {
	members := ids.DisjointSetMap()[group]
	if len(members) == 0 {
		return nil
	}

	return members[0]
}

// MapIds unions a and b's IdGroups, then propagates the congruence closure
// transitively: any pair of (now-aligned) definitions or uses that also
// structurally match is itself unioned, cascading until a fixed point.
func (g *IdGraph) MapIds(a, b *domain.IterDomain) {
	if g.ids.StrictAreMapped(a, b) {
		return
	}

	queue := []idPair{{a, b}}

	for len(queue) > 0 {
		pair := queue[0]
		queue = queue[1:]

		winner, loser, merged := g.ids.MapEntries(pair.a, pair.b)
		if !merged {
			continue
		}

		g.groupDefinitions[winner] = append(g.groupDefinitions[winner], g.groupDefinitions[loser]...)
		delete(g.groupDefinitions, loser)

		g.groupUses[winner] = append(g.groupUses[winner], g.groupUses[loser]...)
		delete(g.groupUses, loser)

		defs := g.UniqueDefinitions(winner)
		uses := g.UniqueUses(winner)

		for i := range defs {
			for j := i + 1; j < len(defs); j++ {
				if g.ExprsMap(defs[i].Item(), defs[j].Item(), false) {
					g.mapThroughExpr(defs[i].Item(), defs[j].Item(), false, &queue)
				}
			}
		}

		for i := range uses {
			for j := i + 1; j < len(uses); j++ {
				if g.ExprsMap(uses[i].Item(), uses[j].Item(), true) {
					g.mapThroughExpr(uses[i].Item(), uses[j].Item(), true, &queue)
				}
			}
		}
	}
}

// ExprsMap reports whether first and second are congruent: same structural
// kind, matching aligned input (forward) or output (!forward) positions,
// agreeing kind-specific attributes, and — for Merge — pairwise-equal
// input extents.
func (g *IdGraph) ExprsMap(first, second domain.Expression, forward bool) bool {
	if first.Kind() != second.Kind() {
		return false
	}

	matched := func(xs, ys []*domain.IterDomain) bool {
		if len(xs) != len(ys) {
			return false
		}

		for i := range xs {
			if !g.ids.StrictAreMapped(xs[i], ys[i]) {
				return false
			}
		}

		return true
	}

	if forward {
		if !matched(first.Inputs(), second.Inputs()) {
			return false
		}
	} else {
		if !matched(first.Outputs(), second.Outputs()) {
			return false
		}
	}

	switch a := first.(type) {
	case *domain.Split:
		b := second.(*domain.Split)
		return a.Factor.Equal(b.Factor) && a.InnerSplit == b.InnerSplit
	case *domain.Merge:
		b := second.(*domain.Merge)
		return a.Outer.Extent.Equal(b.Outer.Extent) && a.Inner.Extent.Equal(b.Inner.Extent)
	case *domain.Swizzle:
		b := second.(*domain.Swizzle)
		return a.Type == b.Type
	default:
		panic(fmt.Sprintf("idgraph: unrecognised expression kind in ExprsMap: %T", first))
	}
}

// mapThroughExpr unions the corresponding outputs (forward) or inputs
// (!forward) of e1 and e2 position-wise, then records e1/e2 as congruent
// in disjoint_exprs_. Any newly-aligned IterDomain pair is queued so
// MapIds's fixed-point loop keeps propagating.
func (g *IdGraph) mapThroughExpr(e1, e2 domain.Expression, forward bool, queue *[]idPair) {
	g.mapExprs(e1, e2)

	var xs, ys []*domain.IterDomain
	if forward {
		xs, ys = e1.Outputs(), e2.Outputs()
	} else {
		xs, ys = e1.Inputs(), e2.Inputs()
	}

	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}

	for i := 0; i < n; i++ {
		if !g.ids.StrictAreMapped(xs[i], ys[i]) {
			*queue = append(*queue, idPair{xs[i], ys[i]})
		}
	}
}

// mapExprs unions e1 and e2 in disjoint_exprs_. Because this IdGraph
// resolves unique_definitions_/unique_uses_ membership by freshly calling
// exprs.FindSet on each stored raw expression (rather than by storing
// ExprGroup handles that could go stale), no further side-table rewrite is
// needed here: the next UniqueDefinitions/UniqueUses call already observes
// e1 and e2 as one group.
func (g *IdGraph) mapExprs(e1, e2 domain.Expression) {
	g.exprs.MapEntries(e1, e2)
}

// OutputGroups returns the IdGroups of exprGroup's (any representative
// expression's) outputs.
func (g *IdGraph) OutputGroups(exprGroup ExprGroup) IdGroups {
	return g.ToIdGroups(exprGroup.Item().Outputs())
}

// InputGroups returns the IdGroups of exprGroup's (any representative
// expression's) inputs.
func (g *IdGraph) InputGroups(exprGroup ExprGroup) IdGroups {
	return g.ToIdGroups(exprGroup.Item().Inputs())
}

// ToIdGroups converts a plain slice of IterDomains into their (order
// preserved, deduplicated) IdGroup handles.
func (g *IdGraph) ToIdGroups(ids []*domain.IterDomain) IdGroups {
	result := make(IdGroups, 0, len(ids))

	for _, id := range ids {
		grp := g.ids.FindSet(id)
		if !result.Contains(grp) {
			result = append(result, grp)
		}
	}

	return result
}

// ToExprGroups converts a plain slice of Expressions into their (order
// preserved, deduplicated) ExprGroup handles.
func (g *IdGraph) ToExprGroups(exprs []domain.Expression) ExprGroups {
	result := make(ExprGroups, 0, len(exprs))

	for _, e := range exprs {
		grp := g.exprs.FindSet(e)
		if !result.Contains(grp) {
			result = append(result, grp)
		}
	}

	return result
}

// AllDefinitionsOf walks backwards from ids, collecting every ExprGroup
// reachable through definition edges.
func (g *IdGraph) AllDefinitionsOf(ids IdGroups) ExprGroups {
	return g.bfsExprs(ids, g.UniqueDefinitions, g.InputGroups)
}

// AllUsesOf walks forwards from ids, collecting every ExprGroup reachable
// through use edges.
func (g *IdGraph) AllUsesOf(ids IdGroups) ExprGroups {
	return g.bfsExprs(ids, g.UniqueUses, g.OutputGroups)
}

func (g *IdGraph) bfsExprs(start IdGroups, edgesOf func(IdGroup) ExprGroups, neighborsOf func(ExprGroup) IdGroups) ExprGroups {
	var result ExprGroups

	visitedIds := make(map[IdGroup]bool)
	visitedExprs := make(map[ExprGroup]bool)

	queue := append(IdGroups{}, start...)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if visitedIds[id] {
			continue
		}

		visitedIds[id] = true

		for _, eg := range edgesOf(id) {
			if visitedExprs[eg] {
				continue
			}

			visitedExprs[eg] = true
			result = append(result, eg)

			for _, next := range neighborsOf(eg) {
				if !visitedIds[next] {
					queue = append(queue, next)
				}
			}
		}
	}

	return result
}

// GetExprsBetween performs a forward BFS from `from`, pruning exploration
// at `to`, and returns the ExprGroups on the frontier in the order
// discovered (a valid topological order for a DAG traversal).
func (g *IdGraph) GetExprsBetween(from, to IdGroups) ExprGroups {
	var result ExprGroups

	visitedIds := make(map[IdGroup]bool)
	visitedExprs := make(map[ExprGroup]bool)

	stop := make(map[IdGroup]bool)
	for _, t := range to {
		stop[t] = true
	}

	queue := append(IdGroups{}, from...)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if visitedIds[id] || stop[id] {
			continue
		}

		visitedIds[id] = true

		for _, eg := range g.UniqueUses(id) {
			if visitedExprs[eg] {
				continue
			}

			visitedExprs[eg] = true
			result = append(result, eg)

			for _, next := range g.OutputGroups(eg) {
				if !visitedIds[next] {
					queue = append(queue, next)
				}
			}
		}
	}

	return result
}

// BuildMapBetween returns, for each f in from, every t in to whose IdGroup
// equals f's, preserving the order `to` was supplied in.
func (g *IdGraph) BuildMapBetween(from, to []*domain.IterDomain) map[*domain.IterDomain][]*domain.IterDomain {
	result := make(map[*domain.IterDomain][]*domain.IterDomain, len(from))

	for _, f := range from {
		var matches []*domain.IterDomain

		for _, t := range to {
			if g.ids.StrictAreMapped(f, t) {
				matches = append(matches, t)
			}
		}

		result[f] = matches
	}

	return result
}

// MapThroughLoopSwizzles unions every swizzle expression's input IdGroups
// with its corresponding output IdGroups: loop swizzles are identity for
// indexing purposes.
func (g *IdGraph) MapThroughLoopSwizzles(exprs []domain.Expression) {
	for _, e := range exprs {
		sw, ok := e.(*domain.Swizzle)
		if !ok {
			continue
		}

		g.MapIds(sw.InX, sw.OutX)
		g.MapIds(sw.InY, sw.OutY)
	}
}

// IsTrivialExpr returns the identity-mapped IterDomain pairs for a
// trivial expression: Split-by-1 (the input equals whichever of
// outer/inner is not the size-1 side), Merge-with-1 (the non-1 input
// equals the output), and identity Swizzles. A non-trivial expression
// yields no pairs.
func IsTrivialExpr(e domain.Expression) [][2]*domain.IterDomain {
	switch v := e.(type) {
	case *domain.Split:
		if v.Factor.IsOne() {
			if v.InnerSplit {
				return [][2]*domain.IterDomain{{v.Input, v.Outer}}
			}

			return [][2]*domain.IterDomain{{v.Input, v.Inner}}
		}
	case *domain.Merge:
		if v.Outer.Extent.IsOne() {
			return [][2]*domain.IterDomain{{v.Inner, v.Output}}
		}

		if v.Inner.Extent.IsOne() {
			return [][2]*domain.IterDomain{{v.Outer, v.Output}}
		}
	case *domain.Swizzle:
		if v.IsIdentity() {
			return [][2]*domain.IterDomain{{v.InX, v.OutX}, {v.InY, v.OutY}}
		}
	}

	return nil
}

// String renders every live IdGroup and its members, for debug output and
// the `graph` CLI command.
func (g *IdGraph) String() string {
	var b strings.Builder

	groups := g.ids.DisjointSetMap()

	fmt.Fprintf(&b, "IdGraph(%d groups)\n", len(groups))

	for _, members := range groups {
		names := lo.Map(members, func(id *domain.IterDomain, _ int) string { return id.String() })
		fmt.Fprintf(&b, "  %v\n", names)
	}

	return b.String()
}

// DebugString is an alias for String kept for parity with the C++
// toString()/toInlineString() pairing; this module has no separate inline
// rendering.
func (g *IdGraph) DebugString() string {
	return g.String()
}
