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

import "github.com/kerngen/loopfuse/pkg/domain"

// getDoubleBufferAxisPosition implements spec.md §4.4's axis-selection
// rule.
func getDoubleBufferAxisPosition(tv *domain.TensorView) (int, error) {
	if tv.ComputeAtPosition() == 0 {
		return 0, newError(InvalidAnnotation, tv.String(), "tensor has no compute-at position")
	}

	axes := tv.Domain()

	firstUnroll := len(axes)
	for i, a := range axes {
		if a.ParallelType() == domain.Unroll {
			firstUnroll = i
			break
		}
	}

	p := int(tv.ComputeAtPosition())
	if firstUnroll < p {
		p = firstUnroll
	}

	if p <= 0 {
		return 0, newError(AxisNotFound, tv.String(), "no candidate position left of compute-at/unroll boundary")
	}

	for i := p - 1; i >= 0; i-- {
		a := axes[i]
		if !a.ParallelType().IsThread() && !a.IsBroadcast() {
			return i, nil
		}
	}

	return 0, newError(AxisNotFound, tv.String(), "valid double buffer axis not found")
}

// validateDoubleBufferedTensor implements spec.md §4.4's tensor
// validation rule, given the already-selected axis position.
func validateDoubleBufferedTensor(tv *domain.TensorView, axisPos int) error {
	def := tv.Definition()
	if def == nil || def.In == nil {
		return newError(InvalidAnnotation, tv.String(), "double-buffered tensor must be defined by a LoadStoreOp with a TensorView input")
	}

	if tv.HasComputeWith() {
		return newError(InvalidAnnotation, tv.String(), "double-buffered tensor must not use compute-with")
	}

	producer := def.In

	if int(producer.ComputePosition(tv)) > axisPos {
		return newError(InvalidAnnotation, tv.String(), "producer %s computes later than the chosen double buffer axis", producer)
	}

	if !validMemoryDirection(producer.MemoryType(), tv.MemoryType()) {
		return newError(InvalidAnnotation, tv.String(), "unsupported memory direction %s -> %s", producer.MemoryType(), tv.MemoryType())
	}

	return nil
}

// validMemoryDirection implements the Global->Shared, Global->Local,
// ?->Local allow-list.
func validMemoryDirection(from, to domain.MemoryType) bool {
	if to == domain.Local {
		return true
	}

	return from == domain.Global && to == domain.Shared
}

// getDoubleBufferAxis resolves and validates tv's double-buffer axis,
// returning it together with its position.
func getDoubleBufferAxis(tv *domain.TensorView) (*domain.IterDomain, int, error) {
	pos, err := getDoubleBufferAxisPosition(tv)
	if err != nil {
		return nil, 0, err
	}

	if err := validateDoubleBufferedTensor(tv, pos); err != nil {
		return nil, 0, err
	}

	return tv.Axis(pos), pos, nil
}
