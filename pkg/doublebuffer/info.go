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

import (
	"github.com/kerngen/loopfuse/pkg/domain"
	"github.com/kerngen/loopfuse/pkg/lower"
)

// Info is the per-tensor and per-loop-axis metadata registry spec.md §3
// names DoubleBufferInfo: which axis is the double-buffer axis, stage
// depth, allocation size, read-switch index.
type Info struct {
	ctx *lower.Context

	axisByTv                map[*domain.TensorView]*domain.IterDomain
	stageDepthByConcreteLoop map[*domain.IterDomain]uint
	concreteLoopIDs          map[*domain.IterDomain]bool
	allocSizeByTv            map[*domain.TensorView]*domain.Value
	readSwitchIndexByTv      map[*domain.TensorView]*domain.Value
}

// NewInfo constructs an empty Info bound to ctx.
func NewInfo(ctx *lower.Context) *Info {
	return &Info{
		ctx:                      ctx,
		axisByTv:                 make(map[*domain.TensorView]*domain.IterDomain),
		stageDepthByConcreteLoop: make(map[*domain.IterDomain]uint),
		concreteLoopIDs:          make(map[*domain.IterDomain]bool),
		allocSizeByTv:            make(map[*domain.TensorView]*domain.Value),
		readSwitchIndexByTv:      make(map[*domain.TensorView]*domain.Value),
	}
}

// SetDoubleBufferAxis records tv's chosen double-buffer axis and derives
// its stage depth (2 for a plain double-buffered tensor, else tv's
// declared circular-buffer depth). Two tensors whose axis resolves to
// the same LOOP-concrete representative but declare different depths is
// a StageDepthConflict.
func (info *Info) SetDoubleBufferAxis(tv *domain.TensorView, axis *domain.IterDomain) error {
	depth := uint(2)
	if tv.IsCircularBuffered() {
		depth = tv.CircularBufferDepth()
	}

	concrete := info.ctx.ComputeAtMap().GetConcreteMappedID(axis)

	if existing, ok := info.stageDepthByConcreteLoop[concrete]; ok && existing != depth {
		return newError(StageDepthConflict, tv.String(),
			"axis %s already has stage depth %d, %s declares %d", concrete, existing, tv, depth)
	}

	info.axisByTv[tv] = axis
	info.stageDepthByConcreteLoop[concrete] = depth
	info.concreteLoopIDs[concrete] = true

	return nil
}

// DoubleBufferAxis returns tv's recorded double-buffer axis.
func (info *Info) DoubleBufferAxis(tv *domain.TensorView) (*domain.IterDomain, bool) {
	axis, ok := info.axisByTv[tv]
	return axis, ok
}

// StageDepth returns the recorded stage depth for a LOOP-concrete axis
// (the axis need not itself be the concrete representative; it is
// resolved through the compute-at map).
func (info *Info) StageDepth(axis *domain.IterDomain) (uint, bool) {
	concrete := info.ctx.ComputeAtMap().GetConcreteMappedID(axis)
	depth, ok := info.stageDepthByConcreteLoop[concrete]

	return depth, ok
}

// IsDoubleBufferedLoop reports whether axis's LOOP-concrete
// representative is one that some annotated tensor maps into.
func (info *Info) IsDoubleBufferedLoop(axis *domain.IterDomain) bool {
	concrete := info.ctx.ComputeAtMap().GetConcreteMappedID(axis)
	return info.concreteLoopIDs[concrete]
}

// Tensors returns every tensor with a recorded double-buffer axis, in no
// particular order.
func (info *Info) Tensors() []*domain.TensorView {
	tvs := make([]*domain.TensorView, 0, len(info.axisByTv))
	for tv := range info.axisByTv {
		tvs = append(tvs, tv)
	}

	return tvs
}

// ConcreteLoopID resolves tv's recorded double-buffer axis to its
// LOOP-concrete representative.
func (info *Info) ConcreteLoopID(tv *domain.TensorView) (*domain.IterDomain, bool) {
	axis, ok := info.axisByTv[tv]
	if !ok {
		return nil, false
	}

	return info.ctx.ComputeAtMap().GetConcreteMappedID(axis), true
}

// SetOriginalAllocSize records the per-stage allocation size for tv, as
// an element count (see allocSize).
func (info *Info) SetOriginalAllocSize(tv *domain.TensorView, size *domain.Value) {
	info.allocSizeByTv[tv] = size
}

// OriginalAllocSize returns the per-stage allocation size for tv, as an
// element count.
func (info *Info) OriginalAllocSize(tv *domain.TensorView) (*domain.Value, bool) {
	v, ok := info.allocSizeByTv[tv]
	return v, ok
}

// SetReadSwitchIndex records the read-switch scalar variable allocated
// for tv.
func (info *Info) SetReadSwitchIndex(tv *domain.TensorView, v *domain.Value) {
	info.readSwitchIndexByTv[tv] = v
}

// ReadSwitchIndex returns the read-switch scalar variable for tv, when
// one has been allocated.
func (info *Info) ReadSwitchIndex(tv *domain.TensorView) (*domain.Value, bool) {
	v, ok := info.readSwitchIndexByTv[tv]
	return v, ok
}

// allocSize computes the per-stage allocation size for tv as the
// product of the extents of every axis strictly inside (to the right
// of) its double-buffer axis — the double-buffer axis itself selects
// the stage, so it is excluded from the per-stage footprint. The result
// counts elements; no element width is applied, so it is not a byte
// count.
func allocSize(tv *domain.TensorView, axisPos int) *domain.Value {
	axes := tv.Domain()[axisPos+1:]
	if len(axes) == 0 {
		return domain.NewConst(1)
	}

	size := axes[0].Extent
	for _, a := range axes[1:] {
		size = domain.NewProduct(size, a.Extent)
	}

	return size
}

// Build runs the FusionInspector over fusion and returns the populated
// Info (spec.md §4.8's DoubleBufferInfo.Build).
func Build(fusion *domain.Fusion, ctx *lower.Context) (*Info, error) {
	info := NewInfo(ctx)

	if err := NewFusionInspector(info).Inspect(fusion); err != nil {
		return nil, err
	}

	return info, nil
}
