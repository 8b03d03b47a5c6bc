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
package idgraph_test

import (
	"testing"

	"github.com/kerngen/loopfuse/pkg/domain"
	"github.com/kerngen/loopfuse/pkg/idgraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func axis(name string, extent int64) *domain.IterDomain {
	return domain.NewIterDomain(name, domain.NewConst(extent))
}

func TestInitializeIdSingleton(t *testing.T) {
	g := idgraph.NewIdGraph()

	a := axis("a", 8)
	g.InitializeId(a, nil, nil)

	assert.True(t, g.AreMapped(a, a))
	assert.Empty(t, g.UniqueDefinitions(g.DisjointIdSet(a)))
}

func TestMapIdsUnions(t *testing.T) {
	g := idgraph.NewIdGraph()

	a, b := axis("a", 8), axis("b", 8)
	g.InitializeId(a, nil, nil)
	g.InitializeId(b, nil, nil)

	assert.False(t, g.AreMapped(a, b))

	g.MapIds(a, b)

	assert.True(t, g.AreMapped(a, b))
}

// TestMapIdsCongruenceClosure covers spec.md §4.2's mapIds propagation
// step: merging two inputs of congruent Split expressions cascades to
// merge the outputs too.
func TestMapIdsCongruenceClosure(t *testing.T) {
	g := idgraph.NewIdGraph()

	in1, outer1, inner1 := axis("in1", 8), axis("outer1", 4), axis("inner1", 2)
	in2, outer2, inner2 := axis("in2", 8), axis("outer2", 4), axis("inner2", 2)

	factor := domain.NewConst(2)

	s1 := &domain.Split{Input: in1, Outer: outer1, Inner: inner1, Factor: factor}
	s2 := &domain.Split{Input: in2, Outer: outer2, Inner: inner2, Factor: factor}

	g.InitializeId(in1, nil, []domain.Expression{s1})
	g.InitializeId(outer1, []domain.Expression{s1}, nil)
	g.InitializeId(inner1, []domain.Expression{s1}, nil)

	g.InitializeId(in2, nil, []domain.Expression{s2})
	g.InitializeId(outer2, []domain.Expression{s2}, nil)
	g.InitializeId(inner2, []domain.Expression{s2}, nil)

	assert.False(t, g.ExprsMap(s1, s2, false), "outputs not yet aligned, so backward congruence should not yet hold")

	g.MapIds(in1, in2)

	assert.True(t, g.AreMapped(outer1, outer2), "aligning Split inputs must cascade to aligning outputs")
	assert.True(t, g.AreMapped(inner1, inner2))
}

func TestExprsMapRejectsDifferentFactor(t *testing.T) {
	g := idgraph.NewIdGraph()

	in1, outer1, inner1 := axis("in1", 8), axis("outer1", 4), axis("inner1", 2)
	in2, outer2, inner2 := axis("in2", 8), axis("outer2", 2), axis("inner2", 4)

	s1 := &domain.Split{Input: in1, Outer: outer1, Inner: inner1, Factor: domain.NewConst(2)}
	s2 := &domain.Split{Input: in2, Outer: outer2, Inner: inner2, Factor: domain.NewConst(4)}

	g.InitializeId(in1, nil, []domain.Expression{s1})
	g.InitializeId(in2, nil, []domain.Expression{s2})

	g.MapIds(in1, in2)

	assert.False(t, g.ExprsMap(s1, s2, true), "differing split factors must not congruence-match")
}

func TestIsTrivialExprSplitByOne(t *testing.T) {
	in, outer, inner := axis("in", 4), axis("outer", 4), axis("inner", 1)
	s := &domain.Split{Input: in, Outer: outer, Inner: inner, Factor: domain.NewConst(1), InnerSplit: true}

	pairs := idgraph.IsTrivialExpr(s)
	require.Len(t, pairs, 1)
	assert.Same(t, in, pairs[0][0])
	assert.Same(t, outer, pairs[0][1])
}

func TestIsTrivialExprMergeWithOne(t *testing.T) {
	outer, inner, out := axis("outer", 1), axis("inner", 4), axis("out", 4)
	m := &domain.Merge{Outer: outer, Inner: inner, Output: out}

	pairs := idgraph.IsTrivialExpr(m)
	require.Len(t, pairs, 1)
	assert.Same(t, inner, pairs[0][0])
	assert.Same(t, out, pairs[0][1])
}

func TestBuildMapBetweenPreservesToOrder(t *testing.T) {
	g := idgraph.NewIdGraph()

	a := axis("a", 8)
	t1, t2, t3 := axis("t1", 8), axis("t2", 8), axis("t3", 8)

	for _, id := range []*domain.IterDomain{a, t1, t2, t3} {
		g.InitializeId(id, nil, nil)
	}

	g.MapIds(a, t2)
	g.MapIds(a, t3)

	result := g.BuildMapBetween([]*domain.IterDomain{a}, []*domain.IterDomain{t1, t2, t3})

	require.Equal(t, []*domain.IterDomain{t2, t3}, result[a], "matches must preserve the order `to` was supplied in")
}

func TestMapThroughLoopSwizzlesIsIdentity(t *testing.T) {
	g := idgraph.NewIdGraph()

	inX, inY, outX, outY := axis("inX", 8), axis("inY", 8), axis("outX", 8), axis("outY", 8)
	sw := &domain.Swizzle{Type: "XOR", InX: inX, InY: inY, OutX: outX, OutY: outY}

	for _, id := range []*domain.IterDomain{inX, inY, outX, outY} {
		g.InitializeId(id, nil, nil)
	}

	g.MapThroughLoopSwizzles([]domain.Expression{sw})

	assert.True(t, g.AreMapped(inX, outX))
	assert.True(t, g.AreMapped(inY, outY))
}

func buildSimpleFusion() *domain.Fusion {
	f := domain.NewFusion()

	in := axis("in", 8)
	out := axis("out", 8)

	tv0 := f.AddTensorView(&domain.TensorView{Name: "tv0", Axes: []*domain.IterDomain{in}, Memory: domain.Global})
	tv1 := f.AddTensorView(&domain.TensorView{Name: "tv1", Axes: []*domain.IterDomain{out}, Memory: domain.Shared, ComputeAt: 1})

	tv1.Def = &domain.LoadStoreOp{Op: domain.SetOp, In: tv0, Out: tv1}

	return f
}

// TestModeRefinement covers spec.md §8's "Mode refinement" property:
// EXACT(a)==EXACT(b) implies ALMOST_EXACT(a)==ALMOST_EXACT(b) implies
// PERMISSIVE(a)==PERMISSIVE(b), for every pair of axes in a built fusion.
func TestModeRefinement(t *testing.T) {
	f := buildSimpleFusion()

	graphs, err := idgraph.Build(f, nil)
	require.NoError(t, err)

	axes := []*domain.IterDomain{f.TensorViews()[0].Axis(0), f.TensorViews()[1].Axis(0)}

	for i := range axes {
		for j := range axes {
			exact := graphs.IdGraph(idgraph.Exact).AreMapped(axes[i], axes[j])
			almost := graphs.IdGraph(idgraph.AlmostExact).AreMapped(axes[i], axes[j])
			permissive := graphs.IdGraph(idgraph.Permissive).AreMapped(axes[i], axes[j])

			if exact {
				assert.True(t, almost, "EXACT equivalence must refine into ALMOST_EXACT")
			}

			if almost {
				assert.True(t, permissive, "ALMOST_EXACT equivalence must refine into PERMISSIVE")
			}
		}
	}
}

// TestSelfMappingDetected builds a fusion where a single root axis feeds
// two structurally-identical Split expressions whose outputs both land on
// the same TensorView: EXACT-mode congruence closure then equates those
// two distinct axes of that tensor, which is exactly the "self-mapping"
// condition spec.md §3/§8 scenario 6 describes.
func TestSelfMappingDetected(t *testing.T) {
	f := domain.NewFusion()

	root := axis("root", 8)
	outerA, innerA := axis("outerA", 4), axis("innerA", 2)
	outerB, innerB := axis("outerB", 4), axis("innerB", 2)

	factor := domain.NewConst(2)
	s1 := &domain.Split{Input: root, Outer: outerA, Inner: innerA, Factor: factor}
	s2 := &domain.Split{Input: root, Outer: outerB, Inner: innerB, Factor: factor}

	f.AddExpr(s1)
	f.AddExpr(s2)
	f.AddTensorView(&domain.TensorView{Name: "tv", Axes: []*domain.IterDomain{outerA, outerB}})

	graphs, err := idgraph.Build(f, nil)
	assert.Nil(t, graphs)
	require.Error(t, err)

	cfg := idgraph.NewBuildConfig().WithAllowSelfMapping(true)
	g2, err2 := idgraph.Build(f, cfg)
	require.NoError(t, err2)

	hasSelf, of := g2.SelfMappingInfo()
	assert.True(t, hasSelf)
	assert.Equal(t, "tv", of)
}
