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
package lower

import "github.com/kerngen/loopfuse/pkg/domain"

// PredicatePeelingInfo answers spec.md §9's `shouldPeelLoop`. Predicate
// peeling itself (removing bounds predicates from Main by handling
// boundary iterations in dedicated prologue/epilogue loops, spec.md
// §4.6 glossary) is a separate optimisation this module does not
// implement; this type only carries the yes/no fact the double-buffer
// pass reads from it, set by whatever pass runs before double-buffering
// in the real pipeline. Peeling is keyed by the exact axis pointer passed
// to MarkPeeled; ShouldPeelLoop does not resolve its argument through the
// LOOP-mode map. The double-buffer pass queries it with each loop's Index.
type PredicatePeelingInfo struct {
	peeled map[*domain.IterDomain]bool
}

// NewPredicatePeelingInfo constructs an info with nothing marked peeled.
// Callers that need peeling active (e.g. a test exercising the
// CircularInitProlog/gmem-increment-hoist paths) use MarkPeeled.
func NewPredicatePeelingInfo() *PredicatePeelingInfo {
	return &PredicatePeelingInfo{peeled: make(map[*domain.IterDomain]bool)}
}

// MarkPeeled records that axis's loop is subject to predicate peeling.
func (p *PredicatePeelingInfo) MarkPeeled(axis *domain.IterDomain) {
	p.peeled[axis] = true
}

// ShouldPeelLoop reports whether axis's loop is subject to predicate
// peeling.
func (p *PredicatePeelingInfo) ShouldPeelLoop(axis *domain.IterDomain) bool {
	if p == nil {
		return false
	}

	return p.peeled[axis]
}
