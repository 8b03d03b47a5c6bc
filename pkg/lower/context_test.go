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
package lower_test

import (
	"testing"

	"github.com/kerngen/loopfuse/pkg/domain"
	"github.com/kerngen/loopfuse/pkg/lower"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildFusion() (*domain.Fusion, *domain.IterDomain, *domain.IterDomain) {
	f := domain.NewFusion()

	in := domain.NewIterDomain("in", domain.NewConst(8))
	out := domain.NewIterDomain("out", domain.NewConst(8))

	tv0 := f.AddTensorView(&domain.TensorView{Name: "tv0", Axes: []*domain.IterDomain{in}, Memory: domain.Global})
	tv1 := f.AddTensorView(&domain.TensorView{Name: "tv1", Axes: []*domain.IterDomain{out}, Memory: domain.Shared, ComputeAt: 1})

	tv1.Def = &domain.LoadStoreOp{Op: domain.SetOp, In: tv0, Out: tv1}

	return f, in, out
}

func TestNewContextWrapsGraphs(t *testing.T) {
	f, in, out := buildFusion()

	ctx, err := lower.NewContext(f, nil)
	require.NoError(t, err)

	assert.True(t, ctx.ComputeAtMap().AreMapped(in, out))

	concrete := ctx.ComputeAtMap().GetConcreteMappedID(in)
	assert.True(t, concrete == in || concrete == out, "concrete representative must be a member of the mapped group")
	assert.Same(t, concrete, ctx.ComputeAtMap().GetConcreteMappedID(out), "mapped axes resolve to the same concrete id")
}

func TestGetIndexVariableStableAcrossMappedAxes(t *testing.T) {
	f, in, out := buildFusion()

	ctx, err := lower.NewContext(f, nil)
	require.NoError(t, err)

	v1 := ctx.ComputeAtMap().GetIndexVariable(in)
	v2 := ctx.ComputeAtMap().GetIndexVariable(out)

	assert.Same(t, v1, v2, "LOOP-mapped axes must resolve to the same index variable")
}

func TestSyncMapFlagsSharedWrites(t *testing.T) {
	f, _, out := buildFusion()

	sm := lower.NewSyncMap(f)
	tv1 := f.TensorViews()[1]

	assert.True(t, sm.NeedsRawSync(tv1))
	assert.Same(t, out, tv1.Axis(0))
}

func TestPredicatePeelingInfoDefaultsFalse(t *testing.T) {
	p := lower.NewPredicatePeelingInfo()

	axis := domain.NewIterDomain("a", domain.NewConst(4))
	assert.False(t, p.ShouldPeelLoop(axis))

	p.MarkPeeled(axis)
	assert.True(t, p.ShouldPeelLoop(axis))
}

func TestWithContextRestoresPrevious(t *testing.T) {
	f, _, _ := buildFusion()
	ctx, err := lower.NewContext(f, nil)
	require.NoError(t, err)

	assert.Nil(t, lower.Current())

	lower.WithContext(ctx, func() {
		assert.Same(t, ctx, lower.Current())
	})

	assert.Nil(t, lower.Current())
}
