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
package idgraph

import (
	"fmt"
	"strings"

	"github.com/kerngen/loopfuse/pkg/domain"
	"github.com/kerngen/loopfuse/pkg/ferr"
	log "github.com/sirupsen/logrus"
)

// BuildConfig tunes IterDomainGraphs construction, mirroring go-corset's
// builder-style config structs (pkg/cmd/util/schema_stacker.go).
type BuildConfig struct {
	allowSelfMapping bool
}

// NewBuildConfig returns the default configuration (self-mapping is a
// fatal error).
func NewBuildConfig() *BuildConfig {
	return &BuildConfig{}
}

// WithAllowSelfMapping permits two axes of the same TensorView to end up
// in one group under some mode, which is otherwise treated as a compiler
// bug (§3 "self_mapping_info").
func (c *BuildConfig) WithAllowSelfMapping(allow bool) *BuildConfig {
	c.allowSelfMapping = allow
	return c
}

// IterDomainGraphs holds one IdGraph per MappingMode, built in refinement
// order (EXACT ⊆ ALMOST_EXACT ⊆ PERMISSIVE ⊆ LOOP), plus the self-mapping
// flag, computed from the EXACT graph once every mode is built.
type IterDomainGraphs struct {
	cfg *BuildConfig

	graphs [numMappingModes]*IdGraph

	idDefinitions map[*domain.IterDomain][]domain.Expression
	idUses        map[*domain.IterDomain][]domain.Expression

	selfMapping   bool
	selfMappingOf string
}

// Build constructs the full mode hierarchy for fusion, following the
// order spec.md §4.3 prescribes: buildIterDomainDefinitionsAndUses,
// initializeIdGraph per mode, buildExactMap, buildAlmostExactMap,
// buildPermissiveMap, buildLoopPromotionMap, buildIndexMap, then
// validateAndPropagatePType and (unless disabled) assertNoSelfMapping.
func Build(fusion *domain.Fusion, cfg *BuildConfig) (*IterDomainGraphs, error) {
	if cfg == nil {
		cfg = NewBuildConfig()
	}

	g := &IterDomainGraphs{cfg: cfg}

	allIDs, defs, uses := buildIterDomainDefinitionsAndUses(fusion)
	g.idDefinitions = defs
	g.idUses = uses

	for m := MappingMode(0); int(m) < numMappingModes; m++ {
		g.graphs[m] = g.initializeIdGraph(allIDs, defs, uses)
	}

	log.Debug("idgraph: building EXACT map")
	buildExactMap(g.graphs[Exact], fusion.Exprs())

	log.Debug("idgraph: building ALMOST_EXACT map")
	seedFromGraph(g.graphs[AlmostExact], g.graphs[Exact])
	buildAlmostExactMap(g.graphs[AlmostExact], fusion.Exprs())

	log.Debug("idgraph: building PERMISSIVE map")
	seedFromGraph(g.graphs[Permissive], g.graphs[AlmostExact])
	buildPermissiveMap(g.graphs[Permissive], fusion.Exprs())

	log.Debug("idgraph: building LOOP map")
	seedFromGraph(g.graphs[Loop], g.graphs[Permissive])
	buildLoopPromotionMap(g.graphs[Loop], fusion)

	g.buildIndexMap(fusion)

	if err := g.validateAndPropagatePType(); err != nil {
		return nil, err
	}

	g.selfMapping, g.selfMappingOf = g.hasSelfMapping(fusion)
	if g.selfMapping && !cfg.allowSelfMapping {
		return nil, ferr.New(ferr.SelfMapping, g.selfMappingOf,
			"two axes of the same tensor are mapped together")
	}

	return g, nil
}

// buildIterDomainDefinitionsAndUses scans every expression in the fusion
// once, recording per-IterDomain definition/use edges, and returns the
// deduplicated set of every IterDomain reachable from a TensorView's axis
// list.
func buildIterDomainDefinitionsAndUses(
	fusion *domain.Fusion,
) (ids []*domain.IterDomain, defs, uses map[*domain.IterDomain][]domain.Expression) {
	defs = make(map[*domain.IterDomain][]domain.Expression)
	uses = make(map[*domain.IterDomain][]domain.Expression)

	seen := make(map[*domain.IterDomain]bool)

	add := func(id *domain.IterDomain) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, tv := range fusion.TensorViews() {
		for _, id := range tv.Domain() {
			add(id)
		}
	}

	for _, e := range fusion.Exprs() {
		for _, out := range e.Outputs() {
			add(out)
			defs[out] = append(defs[out], e)
		}

		for _, in := range e.Inputs() {
			add(in)
			uses[in] = append(uses[in], e)
		}
	}

	return ids, defs, uses
}

// initializeIdGraph creates a fresh IdGraph with every IterDomain seeded
// as a singleton group carrying its definitions/uses.
func (g *IterDomainGraphs) initializeIdGraph(
	ids []*domain.IterDomain,
	defs, uses map[*domain.IterDomain][]domain.Expression,
) *IdGraph {
	graph := NewIdGraph()
	for _, id := range ids {
		graph.InitializeId(id, defs[id], uses[id])
	}

	return graph
}

// seedFromGraph unions, in dst, every pair of IterDomains that are already
// in one group in src — the "start from the previous (coarser) mode"
// step each build*Map function performs before applying its own
// additional rule.
func seedFromGraph(dst, src *IdGraph) {
	for _, members := range src.ids.DisjointSetMap() {
		if len(members) < 2 {
			continue
		}

		anchor := members[0]
		for _, m := range members[1:] {
			dst.MapIds(anchor, m)
		}
	}
}

// propagateCongruence runs exprsMap/mapThroughExpr's fixed-point closure
// over every pair of expressions of matching kind, seeding additional
// equivalences it discovers via graph.MapIds (whose own internal
// worklist keeps propagating). allowBroadcastMismatch controls whether a
// broadcast IterDomain may be merged with a non-broadcast one — false for
// EXACT/ALMOST_EXACT ("never map a broadcast IterDomain to a
// non-broadcast one"), true for PERMISSIVE (broadcast resolution).
func propagateCongruence(graph *IdGraph, exprs []domain.Expression, allowBroadcastMismatch bool) {
	changed := true
	for changed {
		changed = false

		for i := range exprs {
			for j := i + 1; j < len(exprs); j++ {
				e1, e2 := exprs[i], exprs[j]
				if e1.Kind() != e2.Kind() {
					continue
				}

				if graph.ExprsMap(e1, e2, true) && mergeOutputsIfAllowed(graph, e1, e2, allowBroadcastMismatch) {
					changed = true
				}

				if graph.ExprsMap(e1, e2, false) && mergeInputsIfAllowed(graph, e1, e2, allowBroadcastMismatch) {
					changed = true
				}
			}
		}
	}
}

func mergeOutputsIfAllowed(graph *IdGraph, e1, e2 domain.Expression, allowBroadcastMismatch bool) bool {
	return mergePositional(graph, e1.Outputs(), e2.Outputs(), allowBroadcastMismatch)
}

func mergeInputsIfAllowed(graph *IdGraph, e1, e2 domain.Expression, allowBroadcastMismatch bool) bool {
	return mergePositional(graph, e1.Inputs(), e2.Inputs(), allowBroadcastMismatch)
}

func mergePositional(graph *IdGraph, xs, ys []*domain.IterDomain, allowBroadcastMismatch bool) bool {
	changed := false

	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}

	for i := 0; i < n; i++ {
		if graph.AreMapped(xs[i], ys[i]) {
			continue
		}

		if !allowBroadcastMismatch && xs[i].IsBroadcast() != ys[i].IsBroadcast() {
			continue
		}

		graph.MapIds(xs[i], ys[i])

		changed = true
	}

	return changed
}

// seedTrivialExprs unions the identity-mapped pairs isTrivialExpr
// recognises (Split-by-1, Merge-with-1, identity Swizzle).
func seedTrivialExprs(graph *IdGraph, exprs []domain.Expression) {
	for _, e := range exprs {
		for _, pair := range IsTrivialExpr(e) {
			graph.MapIds(pair[0], pair[1])
		}
	}
}

func buildExactMap(graph *IdGraph, exprs []domain.Expression) {
	propagateCongruence(graph, exprs, false)
}

func buildAlmostExactMap(graph *IdGraph, exprs []domain.Expression) {
	seedTrivialExprs(graph, exprs)
	propagateCongruence(graph, exprs, false)
}

func buildPermissiveMap(graph *IdGraph, exprs []domain.Expression) {
	propagateCongruence(graph, exprs, true)
}

// buildLoopPromotionMap applies LOOP's own rule on top of the
// equivalences seeded from PERMISSIVE, all of which are kept: for every
// LoadStoreOp definition, it unions producer axis i with consumer axis i
// for every i strictly less than the consumer's compute-at position.
func buildLoopPromotionMap(graph *IdGraph, fusion *domain.Fusion) {
	for _, tv := range fusion.TensorViews() {
		def := tv.Definition()
		if def == nil || def.In == nil {
			continue
		}

		producer := def.In
		consumer := tv

		limit := int(consumer.ComputeAtPosition())

		n := len(producer.Domain())
		if len(consumer.Domain()) < n {
			n = len(consumer.Domain())
		}

		if limit < n {
			n = limit
		}

		for i := 0; i < n; i++ {
			graph.MapIds(producer.Domain()[i], consumer.Domain()[i])
		}
	}
}

// buildIndexMap is a placeholder for the index-variable-assignment pass
// the real compiler runs after LOOP construction; this module's
// pkg/lower.Context synthesizes index variables lazily instead (§6), so
// there is nothing further to precompute here.
func (g *IterDomainGraphs) buildIndexMap(_ *domain.Fusion) {}

// validateAndPropagatePType checks, for every LOOP group, that its
// members carry at most one distinct non-Serial parallel type, then
// assigns that type to every member of the group (setting
// IterDomain.Parallel).
func (g *IterDomainGraphs) validateAndPropagatePType() error {
	for grp, members := range g.graphs[Loop].ids.DisjointSetMap() {
		seen := map[domain.ParallelType]bool{}

		for _, m := range members {
			if m.ParallelType() != domain.Serial {
				seen[m.ParallelType()] = true
			}
		}

		if len(seen) > 1 {
			return ferr.New(ferr.ParallelTypeConflict, grp.Item().String(),
				"LOOP group contains %d distinct non-serial parallel types", len(seen))
		}

		for pt := range seen {
			for _, m := range members {
				m.Parallel = pt
			}
		}
	}

	return nil
}

// hasSelfMapping reports whether any TensorView has two distinct axes
// mapped together in EXACT mode (the mode the rest of the compiler relies
// on to disambiguate a tensor's own axes).
func (g *IterDomainGraphs) hasSelfMapping(fusion *domain.Fusion) (bool, string) {
	exact := g.graphs[Exact]

	for _, tv := range fusion.TensorViews() {
		axes := tv.Domain()
		for i := 0; i < len(axes); i++ {
			for j := i + 1; j < len(axes); j++ {
				if axes[i] != axes[j] && exact.AreMapped(axes[i], axes[j]) {
					return true, tv.String()
				}
			}
		}
	}

	return false, ""
}

// IdGraph returns the IdGraph for the given mode.
func (g *IterDomainGraphs) IdGraph(mode MappingMode) *IdGraph {
	return g.graphs[mode]
}

// SelfMappingInfo reports whether self-mapping was detected, and if so,
// the TensorView it was found on.
func (g *IterDomainGraphs) SelfMappingInfo() (bool, string) {
	return g.selfMapping, g.selfMappingOf
}

// AddReplayAs initializes the caller-supplied newInputs and newOutputs
// into every mode's IdGraph and maps each new output to expr's output at
// the same position: in EXACT and ALMOST_EXACT only when both agree on
// being a broadcast, in PERMISSIVE and LOOP unconditionally. It does not
// construct a new expression: the new IterDomains are initialized with
// no definitions or uses, and newInputs are not mapped to expr's inputs.
func (g *IterDomainGraphs) AddReplayAs(newInputs []*domain.IterDomain, expr domain.Expression, newOutputs []*domain.IterDomain) {
	for m := MappingMode(0); int(m) < numMappingModes; m++ {
		graph := g.graphs[m]

		for _, id := range newOutputs {
			graph.InitializeId(id, nil, nil)
		}

		for _, id := range newInputs {
			graph.InitializeId(id, nil, nil)
		}

		n := len(newOutputs)
		if len(expr.Outputs()) < n {
			n = len(expr.Outputs())
		}

		allowBroadcast := m == Permissive || m == Loop

		for i := 0; i < n; i++ {
			if allowBroadcast || newOutputs[i].IsBroadcast() == expr.Outputs()[i].IsBroadcast() {
				graph.MapIds(newOutputs[i], expr.Outputs()[i])
			}
		}
	}
}

// UpdateComputeWith merges, in LOOP mode, consumer's axis i with
// resolvedAxes[i] (the concrete axes a post-scheduling compute-with
// resolution decided it should share with) for every position i both
// lists have, starting from axis 0; consumer's compute-at position is
// not consulted.
func (g *IterDomainGraphs) UpdateComputeWith(consumer *domain.TensorView, resolvedAxes []*domain.IterDomain) {
	loop := g.graphs[Loop]

	axes := consumer.Domain()

	n := len(resolvedAxes)
	if len(axes) < n {
		n = len(axes)
	}

	for i := 0; i < n; i++ {
		loop.MapIds(axes[i], resolvedAxes[i])
	}
}

// String renders every mode's graph, for debug output and the `graph` CLI
// command.
func (g *IterDomainGraphs) String() string {
	var b strings.Builder

	for m := MappingMode(0); int(m) < numMappingModes; m++ {
		fmt.Fprintf(&b, "-- %s --\n%s", m, g.graphs[m].String())
	}

	return b.String()
}

// DebugString is an alias for String.
func (g *IterDomainGraphs) DebugString() string {
	return g.String()
}
