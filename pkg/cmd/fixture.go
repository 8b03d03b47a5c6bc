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
package cmd

import (
	"github.com/kerngen/loopfuse/pkg/domain"
	"github.com/kerngen/loopfuse/pkg/kir"
)

// fixtureFusion builds the same single-axis Global-to-Shared
// cp.async-pipelined copy the test suite's pipeline fixture exercises:
// tv0 (Global, input) copied into tv1 (Shared, circular-buffered depth 4)
// by a LoadStoreOp, with tv1's single axis as the loop index. The CLI has
// no source-program frontend (that lives outside this module's scope per
// spec.md's Non-goals), so graph and lower both operate on this fixture
// until a real frontend is wired in.
func fixtureFusion(extent int64, depth uint) (*domain.Fusion, *domain.TensorView, *domain.TensorView) {
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
		Memory:    domain.Shared,
		ComputeAt: 1,
	})

	if depth <= 2 {
		tv1.DoubleBuffered = true
	} else {
		tv1.CircularBuffered = true
		tv1.CircularDepth = depth
	}

	def := &domain.LoadStoreOp{Op: domain.CpAsyncOp, In: tv0, Out: tv1}
	tv1.Def = def
	tv0.UsedBy = append(tv0.UsedBy, def)
	tv0.SetComputePosition(tv1, 0)

	return fusion, tv0, tv1
}

// fixtureLoop builds the ForLoop over tv1's axis, wrapping one
// LoadStoreOp.
func fixtureLoop(tv1 *domain.TensorView, extent int64) *kir.ForLoop {
	return &kir.ForLoop{
		Index: tv1.Axis(0),
		Start: domain.NewConst(0),
		Stop:  domain.NewConst(extent),
		Body:  []kir.Node{&kir.LoadStoreOp{Tensor: tv1.Def}},
	}
}
