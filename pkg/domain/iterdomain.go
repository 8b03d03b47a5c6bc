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

import "fmt"

// IterDomain denotes one loop axis of one tensor. Instances are unique by
// pointer identity: two axes are "the same" iff they are the same *IterDomain,
// equivalence across distinct IterDomains is exactly what pkg/idgraph
// computes.
type IterDomain struct {
	// Name is used only for debug output (e.g. "i0", "threadIdx.x{i2}").
	Name string
	// Parallel is the parallelization strategy of this axis.
	Parallel ParallelType
	// Broadcast axes carry a logical extent of 1 that resolves against a
	// concrete axis elsewhere; they may never map to a non-broadcast axis
	// in EXACT or ALMOST_EXACT mode.
	Broadcast bool
	// Extent is this axis's (possibly symbolic) trip count.
	Extent *Value
	// RFactor marks a reduction-factored axis; terminal for covered-set
	// computation purposes.
	RFactor bool
}

// NewIterDomain constructs a serial, non-broadcast axis with the given
// extent.
func NewIterDomain(name string, extent *Value) *IterDomain {
	return &IterDomain{Name: name, Extent: extent}
}

// IsBroadcast reports whether this axis is a broadcast dimension.
func (id *IterDomain) IsBroadcast() bool {
	return id != nil && id.Broadcast
}

// IsRFactor reports whether this axis is an rfactor axis.
func (id *IterDomain) IsRFactor() bool {
	return id != nil && id.RFactor
}

// ParallelType returns this axis's parallelization strategy.
func (id *IterDomain) ParallelType() ParallelType {
	return id.Parallel
}

// String renders the axis for error messages and logs.
func (id *IterDomain) String() string {
	if id == nil {
		return "<nil IterDomain>"
	}

	if id.Parallel == Serial {
		return fmt.Sprintf("id{%s}", id.Name)
	}

	return fmt.Sprintf("%s{%s}", id.Parallel, id.Name)
}
