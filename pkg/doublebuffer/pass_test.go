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
package doublebuffer_test

import (
	"testing"

	"github.com/kerngen/loopfuse/pkg/doublebuffer"
	"github.com/kerngen/loopfuse/pkg/domain"
	"github.com/kerngen/loopfuse/pkg/ferr"
	"github.com/kerngen/loopfuse/pkg/kir"
	"github.com/kerngen/loopfuse/pkg/lower"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipelineFixture is a minimal one-axis fusion: tv0 (Global, input) copied
// into tv1 (toMem) by opKind, with tv1 annotated (circular-)buffered, and
// a single ForLoop over tv1's axis whose body is one LoadStoreOp.
type pipelineFixture struct {
	ctx  *lower.Context
	loop *kir.ForLoop
	tv0  *domain.TensorView
	tv1  *domain.TensorView
}

func buildPipelineFixture(t *testing.T, toMem domain.MemoryType, opKind domain.LoadStoreOpType, extent int64, depth uint) *pipelineFixture {
	t.Helper()

	fusion := domain.NewFusion()

	axis0 := domain.NewIterDomain("i0", domain.NewConst(extent))
	in0 := domain.NewIterDomain("r0", domain.NewConst(extent))

	tv0 := fusion.AddTensorView(&domain.TensorView{
		Name:   "tv0",
		Axes:   []*domain.IterDomain{in0},
		Memory: domain.Global,
	})
	tv1 := fusion.AddTensorView(&domain.TensorView{
		Name:      "tv1",
		Axes:      []*domain.IterDomain{axis0},
		Memory:    toMem,
		ComputeAt: 1,
	})

	if depth == 2 {
		tv1.DoubleBuffered = true
	} else {
		tv1.CircularBuffered = true
		tv1.CircularDepth = depth
	}

	def := &domain.LoadStoreOp{Op: opKind, In: tv0, Out: tv1}
	tv1.Def = def
	tv0.UsedBy = append(tv0.UsedBy, def)
	tv0.SetComputePosition(tv1, 0)

	ctx, err := lower.NewContext(fusion, nil)
	require.NoError(t, err)

	loop := &kir.ForLoop{
		Index: axis0,
		Start: domain.NewConst(0),
		Stop:  domain.NewConst(extent),
		Body:  []kir.Node{&kir.LoadStoreOp{Tensor: def}},
	}

	return &pipelineFixture{ctx: ctx, loop: loop, tv0: tv0, tv1: tv1}
}

func constOf(t *testing.T, v *domain.Value) int64 {
	t.Helper()

	c, ok := v.AsConst()
	require.True(t, ok, "expected %s to be a compile-time constant", v)

	return c
}

// Scenario 1 (spec.md §8.1): simple double buffer, d=2, Global->Shared,
// no cp.async. Expect a Prolog/Main/Epilog split plus a RAW BlockSync,
// with no cp.async bookkeeping at all.
func TestSimpleDoubleBufferGlobalToShared(t *testing.T) {
	fx := buildPipelineFixture(t, domain.Shared, domain.SetOp, 8, 2)

	rewritten, info, err := doublebuffer.Run(fx.ctx, []kir.Node{fx.loop})
	require.NoError(t, err)

	require.Len(t, rewritten, 4)

	prolog, ok := rewritten[0].(*kir.ForLoop)
	require.True(t, ok, "expected a Prolog ForLoop first, got %T", rewritten[0])
	assert.Equal(t, int64(0), constOf(t, prolog.Start))
	assert.Equal(t, int64(1), constOf(t, prolog.Stop))

	_, ok = rewritten[1].(*kir.BlockSync)
	assert.True(t, ok, "expected a BlockSync after the prolog (RAW hazard on a shared-memory write), got %T", rewritten[1])

	main, ok := rewritten[2].(*kir.ForLoop)
	require.True(t, ok, "expected the Main ForLoop third, got %T", rewritten[2])
	assert.Equal(t, int64(0), constOf(t, main.Start))
	assert.Equal(t, int64(7), constOf(t, main.Stop))

	epilog, ok := rewritten[3].(*kir.ForLoop)
	require.True(t, ok, "expected an Epilog ForLoop last, got %T", rewritten[3])
	assert.Equal(t, int64(7), constOf(t, epilog.Start))
	assert.Equal(t, int64(8), constOf(t, epilog.Stop))
	assert.Empty(t, epilog.Body, "epilog must not re-issue the load")

	depth, ok := info.StageDepth(fx.loop.Index)
	require.True(t, ok)
	assert.EqualValues(t, 2, depth)

	assert.Empty(t, kir.FindAll([]kir.Node{prolog, main, epilog}, func(n kir.Node) bool {
		_, isCommit := n.(*kir.CpAsyncCommit)
		_, isWait := n.(*kir.CpAsyncWait)
		return isCommit || isWait
	}), "no cp.async op was used, so no commit/wait bookkeeping should appear")
}

// Scenario 2 (spec.md §8.2): circular buffer, d=4, Global->Shared via
// cp.async, no predicate peeling. Expect the prolog to carry a trailing
// commit, a steady-state wait before Main, a RAW BlockSync, and a
// matching commit/wait pair re-inserted inside Main.
func TestCircularBufferCpAsync(t *testing.T) {
	fx := buildPipelineFixture(t, domain.Shared, domain.CpAsyncOp, 16, 4)

	rewritten, info, err := doublebuffer.Run(fx.ctx, []kir.Node{fx.loop})
	require.NoError(t, err)

	require.Len(t, rewritten, 5)

	prolog := rewritten[0].(*kir.ForLoop)
	assert.Equal(t, int64(0), constOf(t, prolog.Start))
	assert.Equal(t, int64(3), constOf(t, prolog.Stop))
	require.Len(t, prolog.Body, 2)
	_, ok := prolog.Body[len(prolog.Body)-1].(*kir.CpAsyncCommit)
	assert.True(t, ok, "prolog must end with a cp.async commit")

	wait, ok := rewritten[1].(*kir.CpAsyncWait)
	require.True(t, ok, "expected a steady-state cp.async wait before Main, got %T", rewritten[1])
	assert.Equal(t, 2, wait.KeepStages, "d=4 steady state keeps d-2 batches outstanding")

	_, ok = rewritten[2].(*kir.BlockSync)
	assert.True(t, ok, "expected a RAW BlockSync before Main")

	main := rewritten[3].(*kir.ForLoop)
	assert.Equal(t, int64(0), constOf(t, main.Start))
	assert.Equal(t, int64(15), constOf(t, main.Stop))

	commitIdx, waitIdx := -1, -1
	for i, n := range main.Body {
		switch n.(type) {
		case *kir.CpAsyncCommit:
			commitIdx = i
		case *kir.CpAsyncWait:
			waitIdx = i
		}
	}
	require.NotEqual(t, -1, commitIdx, "main body must re-commit the next prefetch")
	require.NotEqual(t, -1, waitIdx, "main body must re-wait for the steady-state depth")
	assert.Less(t, commitIdx, waitIdx, "commit must precede its wait")

	epilog := rewritten[4].(*kir.ForLoop)
	assert.Equal(t, int64(13), constOf(t, epilog.Start))
	assert.Equal(t, int64(16), constOf(t, epilog.Stop))

	depth, ok := info.StageDepth(fx.loop.Index)
	require.True(t, ok)
	assert.EqualValues(t, 4, depth)

	// Prolog is d-1 regardless of extent; Main and Epilog deliberately
	// overlap in the circular case (Main runs 0..extent-1, Epilog covers
	// the trailing d-1 iterations again to drain outstanding cp.async
	// batches), so there is no tiling invariant to assert here.
	assert.Equal(t, int64(3), constOf(t, prolog.Stop)-constOf(t, prolog.Start))
}

// Scenario 3 (spec.md §8.3): Global->Local needs no epilog and no RAW
// sync (a register destination has no cross-thread visibility hazard).
func TestGlobalToLocalNoEpilogNoSync(t *testing.T) {
	fx := buildPipelineFixture(t, domain.Local, domain.SetOp, 6, 2)

	rewritten, _, err := doublebuffer.Run(fx.ctx, []kir.Node{fx.loop})
	require.NoError(t, err)

	require.Len(t, rewritten, 2, "no BlockSync, no epilog: just Prolog and Main")

	prolog := rewritten[0].(*kir.ForLoop)
	assert.Equal(t, int64(0), constOf(t, prolog.Start))
	assert.Equal(t, int64(1), constOf(t, prolog.Stop))

	main := rewritten[1].(*kir.ForLoop)
	assert.Equal(t, int64(0), constOf(t, main.Start))
	assert.Equal(t, int64(6), constOf(t, main.Stop), "no epilog required, so Main keeps the full extent")
}

// Scenario 4 (spec.md §8.4): two tensors whose double-buffer axis
// resolves to the same LOOP-concrete axis but declare conflicting stage
// depths must raise StageDepthConflict.
func TestStageDepthConflict(t *testing.T) {
	fusion := domain.NewFusion()

	shared := domain.NewIterDomain("i0", domain.NewConst(8))

	in0 := domain.NewIterDomain("r0", domain.NewConst(8))
	in1 := domain.NewIterDomain("r1", domain.NewConst(8))

	producer0 := fusion.AddTensorView(&domain.TensorView{Name: "p0", Axes: []*domain.IterDomain{in0}, Memory: domain.Global})
	producer1 := fusion.AddTensorView(&domain.TensorView{Name: "p1", Axes: []*domain.IterDomain{in1}, Memory: domain.Global})

	tv1 := fusion.AddTensorView(&domain.TensorView{
		Name: "tv1", Axes: []*domain.IterDomain{shared}, Memory: domain.Shared, ComputeAt: 1,
		DoubleBuffered: true,
	})
	tv2 := fusion.AddTensorView(&domain.TensorView{
		Name: "tv2", Axes: []*domain.IterDomain{shared}, Memory: domain.Local, ComputeAt: 1,
		CircularBuffered: true, CircularDepth: 3,
	})

	def1 := &domain.LoadStoreOp{Op: domain.SetOp, In: producer0, Out: tv1}
	tv1.Def = def1
	producer0.SetComputePosition(tv1, 0)

	def2 := &domain.LoadStoreOp{Op: domain.SetOp, In: producer1, Out: tv2}
	tv2.Def = def2
	producer1.SetComputePosition(tv2, 0)

	ctx, err := lower.NewContext(fusion, nil)
	require.NoError(t, err)

	_, err = doublebuffer.Build(fusion, ctx)
	require.Error(t, err)

	var verr *ferr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, doublebuffer.StageDepthConflict, verr.Kind)
}

// Scenario 5 (spec.md §8.5): a tensor whose only candidate axis is
// Unroll-parallelized has no valid double-buffer axis.
func TestAxisNotFoundUnderUnroll(t *testing.T) {
	fusion := domain.NewFusion()

	axis0 := &domain.IterDomain{Name: "i0", Parallel: domain.Unroll, Extent: domain.NewConst(4)}
	in0 := domain.NewIterDomain("r0", domain.NewConst(4))

	producer := fusion.AddTensorView(&domain.TensorView{Name: "p0", Axes: []*domain.IterDomain{in0}, Memory: domain.Global})
	tv1 := fusion.AddTensorView(&domain.TensorView{
		Name: "tv1", Axes: []*domain.IterDomain{axis0}, Memory: domain.Shared, ComputeAt: 1,
		DoubleBuffered: true,
	})

	def := &domain.LoadStoreOp{Op: domain.SetOp, In: producer, Out: tv1}
	tv1.Def = def
	producer.SetComputePosition(tv1, 0)

	ctx, err := lower.NewContext(fusion, nil)
	require.NoError(t, err)

	_, err = doublebuffer.Build(fusion, ctx)
	require.Error(t, err)

	var verr *ferr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, doublebuffer.AxisNotFound, verr.Kind)
}

// Scenario 6 (spec.md §8.6): self-mapping must be caught before the
// double-buffer pass ever runs, since pkg/lower.NewContext builds the
// compute-at map via idgraph.Build.
func TestSelfMappingDetectedEndToEnd(t *testing.T) {
	fusion := domain.NewFusion()

	// Splitting the same root axis twice with the same factor and using
	// both splits' outer half on one tensor is the classic self-mapping
	// bug: the two splits are EXACT-congruent, so their outputs get
	// unioned together, and o1/o2 end up mapped despite being tv0's own
	// two distinct axes.
	r := domain.NewIterDomain("r", domain.NewConst(8))
	o1 := domain.NewIterDomain("o1", domain.NewConst(4))
	i1 := domain.NewIterDomain("i1", domain.NewConst(2))
	o2 := domain.NewIterDomain("o2", domain.NewConst(4))
	i2 := domain.NewIterDomain("i2", domain.NewConst(2))

	fusion.AddExpr(&domain.Split{Input: r, Outer: o1, Inner: i1, Factor: domain.NewConst(2)})
	fusion.AddExpr(&domain.Split{Input: r, Outer: o2, Inner: i2, Factor: domain.NewConst(2)})

	fusion.AddTensorView(&domain.TensorView{Name: "tv0", Axes: []*domain.IterDomain{o1, o2}, Memory: domain.Global})

	_, err := lower.NewContext(fusion, nil)
	require.Error(t, err)

	var verr *ferr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, doublebuffer.SelfMapping, verr.Kind)
}

// Property: doublebuffer.Build is a pure function of the fusion and
// Context — invoking it twice over the same inputs must assign the same
// axis, depth, and allocation size both times.
func TestFusionInspectionIsDeterministic(t *testing.T) {
	fx := buildPipelineFixture(t, domain.Shared, domain.SetOp, 8, 2)

	info1, err := doublebuffer.Build(fx.ctx.Fusion(), fx.ctx)
	require.NoError(t, err)

	info2, err := doublebuffer.Build(fx.ctx.Fusion(), fx.ctx)
	require.NoError(t, err)

	axis1, ok1 := info1.DoubleBufferAxis(fx.tv1)
	axis2, ok2 := info2.DoubleBufferAxis(fx.tv1)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Same(t, axis1, axis2)

	depth1, _ := info1.StageDepth(axis1)
	depth2, _ := info2.StageDepth(axis2)
	assert.Equal(t, depth1, depth2)

	size1, _ := info1.OriginalAllocSize(fx.tv1)
	size2, _ := info2.OriginalAllocSize(fx.tv1)
	assert.True(t, size1.Equal(size2), "allocation size must match across runs: %s vs %s", size1, size2)
}
