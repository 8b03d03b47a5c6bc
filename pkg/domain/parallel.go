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

// Package domain defines the minimal tensor/loop IR surface this module
// consumes: IterDomain, Expression, TensorView, Value and Fusion. The real
// node definitions live upstream of this pass; this package models exactly
// the attributes the double-buffer pass and the IdGraph consult.
package domain

// ParallelType classifies how an IterDomain's loop axis is realized on the
// GPU.
type ParallelType uint8

const (
	// Serial is a plain sequential loop axis.
	Serial ParallelType = iota
	// Unroll fully unrolls the axis at compile time.
	Unroll
	// TIDx binds the axis to threadIdx.x.
	TIDx
	// TIDy binds the axis to threadIdx.y.
	TIDy
	// TIDz binds the axis to threadIdx.z.
	TIDz
	// BIDx binds the axis to blockIdx.x.
	BIDx
	// BIDy binds the axis to blockIdx.y.
	BIDy
	// BIDz binds the axis to blockIdx.z.
	BIDz
	// Vectorize issues the axis as a single vectorized memory operation.
	Vectorize
)

// String renders the parallel type the way it appears in kernel source.
func (p ParallelType) String() string {
	switch p {
	case Serial:
		return "Serial"
	case Unroll:
		return "Unroll"
	case TIDx:
		return "threadIdx.x"
	case TIDy:
		return "threadIdx.y"
	case TIDz:
		return "threadIdx.z"
	case BIDx:
		return "blockIdx.x"
	case BIDy:
		return "blockIdx.y"
	case BIDz:
		return "blockIdx.z"
	case Vectorize:
		return "Vectorize"
	default:
		return "Unknown"
	}
}

// IsThread holds for any axis bound to a threadIdx or blockIdx dimension.
func (p ParallelType) IsThread() bool {
	switch p {
	case TIDx, TIDy, TIDz, BIDx, BIDy, BIDz:
		return true
	default:
		return false
	}
}

// MemoryType classifies where a TensorView's values are materialized.
type MemoryType uint8

const (
	// Global is off-chip gmem.
	Global MemoryType = iota
	// Shared is on-chip smem shared across a thread block.
	Shared
	// Local is per-thread register/local storage.
	Local
)

// String renders the memory type's usual kernel-source spelling.
func (m MemoryType) String() string {
	switch m {
	case Global:
		return "Global"
	case Shared:
		return "Shared"
	case Local:
		return "Local"
	default:
		return "Unknown"
	}
}
