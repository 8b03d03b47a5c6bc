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
package domain

// TensorView is a tensor in the fusion: an ordered axis list plus
// compute-at metadata and memory placement, exactly the attributes
// spec.md §6 lists as consumed.
type TensorView struct {
	Name string
	// Axes is this tensor's ordered, current (leaf) domain.
	Axes []*IterDomain
	// ComputeAt is the position up to which this tensor is computed
	// inside its consumer's loop nest.
	ComputeAt uint
	// Memory is where this tensor's values live.
	Memory MemoryType
	// DoubleBuffered marks a plain two-stage double-buffer candidate.
	DoubleBuffered bool
	// CircularBuffered marks a depth-d>=2 circular-buffer candidate.
	CircularBuffered bool
	// CircularDepth is the declared depth when CircularBuffered is set.
	CircularDepth uint
	// ComputeWith marks a tensor using the (unsupported-here)
	// compute-with resolution feature.
	ComputeWith bool
	// LiftReadAddress requests materializing a uniform read-switch
	// register rather than inline double-buffer index arithmetic.
	LiftReadAddress bool
	// Def is the expression defining this tensor, or nil for a fusion
	// input.
	Def *LoadStoreOp
	// UsedBy lists the ops that consume this tensor, needed to check the
	// "every use is LdMatrix" precondition for read-switch indices.
	UsedBy []*LoadStoreOp

	fusion *Fusion

	// computePosition records, per consumer, this tensor's compute
	// position with respect to that consumer.
	computePosition map[*TensorView]uint
}

// Domain returns this tensor's ordered axis list.
func (tv *TensorView) Domain() []*IterDomain {
	return tv.Axes
}

// Axis returns the axis at the given position.
func (tv *TensorView) Axis(i int) *IterDomain {
	return tv.Axes[i]
}

// ComputeAtPosition returns this tensor's compute-at position.
func (tv *TensorView) ComputeAtPosition() uint {
	return tv.ComputeAt
}

// ComputePosition returns this tensor's compute position with respect to
// the given consumer, or 0 if unset.
func (tv *TensorView) ComputePosition(consumer *TensorView) uint {
	if tv.computePosition == nil {
		return 0
	}

	return tv.computePosition[consumer]
}

// SetComputePosition records this tensor's compute position with respect
// to a consumer.
func (tv *TensorView) SetComputePosition(consumer *TensorView, pos uint) {
	if tv.computePosition == nil {
		tv.computePosition = make(map[*TensorView]uint)
	}

	tv.computePosition[consumer] = pos
}

// MemoryType returns where this tensor's values are materialized.
func (tv *TensorView) MemoryType() MemoryType {
	return tv.Memory
}

// IsDoubleBuffered reports whether this tensor was annotated
// double-buffered.
func (tv *TensorView) IsDoubleBuffered() bool {
	return tv.DoubleBuffered
}

// IsCircularBuffered reports whether this tensor was annotated
// circular-buffered.
func (tv *TensorView) IsCircularBuffered() bool {
	return tv.CircularBuffered
}

// CircularBufferDepth returns the declared circular-buffer stage depth.
func (tv *TensorView) CircularBufferDepth() uint {
	return tv.CircularDepth
}

// HasComputeWith reports whether this tensor uses compute-with
// resolution, which double buffering does not support.
func (tv *TensorView) HasComputeWith() bool {
	return tv.ComputeWith
}

// ShouldLiftReadAddress reports whether a uniform read-switch register
// should be materialized for this tensor's reads.
func (tv *TensorView) ShouldLiftReadAddress() bool {
	return tv.LiftReadAddress
}

// Definition returns the expression that produces this tensor, or nil for
// a fusion input.
func (tv *TensorView) Definition() *LoadStoreOp {
	return tv.Def
}

// Fusion returns the fusion this tensor belongs to.
func (tv *TensorView) Fusion() *Fusion {
	return tv.fusion
}

// String renders the tensor for error messages.
func (tv *TensorView) String() string {
	return tv.Name
}
