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

// Package lower models the GpuLower::current() context spec.md §5/§6/§9
// name as an external collaborator: the compute-at map, the sync map,
// and predicate-peeling info a fusion's lowering pipeline builds once
// and the double-buffer pass consumes read-only.
package lower

import (
	"sync"

	"github.com/kerngen/loopfuse/pkg/domain"
	"github.com/kerngen/loopfuse/pkg/idgraph"
)

// Context bundles the three query surfaces the double-buffer pass needs
// from the wider lowering pipeline. It is built once per fusion and
// passed explicitly to every entry point (idgraph.Build already ran by
// the time a Context exists; doublebuffer.Run takes one as an argument).
type Context struct {
	fusion    *domain.Fusion
	graphs    *idgraph.IterDomainGraphs
	computeAt *ComputeAtMap
	sync      *SyncMap
	peeling   *PredicatePeelingInfo
	cfg       *LoweringConfig
}

// NewContext builds a Context for fusion: runs idgraph.Build and wraps
// the result as the compute-at map, derives the sync map, and starts
// with an empty (nothing-peeled) PredicatePeelingInfo — callers that
// need peeling active call Context.PredicatePeelingInfo().MarkPeeled
// before running the double-buffer pass.
func NewContext(fusion *domain.Fusion, cfg *LoweringConfig) (*Context, error) {
	if cfg == nil {
		cfg = NewLoweringConfig()
	}

	idCfg := idgraph.NewBuildConfig().WithAllowSelfMapping(cfg.AllowSelfMapping())

	graphs, err := idgraph.Build(fusion, idCfg)
	if err != nil {
		return nil, err
	}

	return &Context{
		fusion:    fusion,
		graphs:    graphs,
		computeAt: NewComputeAtMap(graphs),
		sync:      NewSyncMap(fusion),
		peeling:   NewPredicatePeelingInfo(),
		cfg:       cfg,
	}, nil
}

// Fusion returns the fusion this Context was built for.
func (c *Context) Fusion() *domain.Fusion { return c.fusion }

// Graphs returns the underlying IterDomainGraphs, for callers that need
// direct EXACT/PERMISSIVE/LOOP queries beyond what ComputeAtMap exposes.
func (c *Context) Graphs() *idgraph.IterDomainGraphs { return c.graphs }

// ComputeAtMap returns the compute-at map.
func (c *Context) ComputeAtMap() *ComputeAtMap { return c.computeAt }

// SyncMap returns the sync map.
func (c *Context) SyncMap() *SyncMap { return c.sync }

// PredicatePeelingInfo returns the predicate-peeling info.
func (c *Context) PredicatePeelingInfo() *PredicatePeelingInfo { return c.peeling }

// Config returns the LoweringConfig this Context was built with.
func (c *Context) Config() *LoweringConfig { return c.cfg }

var (
	currentMu sync.RWMutex
	current   *Context
)

// Current returns the ambient Context set by the most recent
// WithContext call, or nil if none is set. This global is a convenience
// for callers (CLI commands, quick scripts) that don't want to thread a
// Context through explicitly; per spec.md §9 Design Notes, the core
// pass (doublebuffer.Run) always takes its Context as an explicit
// argument and never reads this global.
func Current() *Context {
	currentMu.RLock()
	defer currentMu.RUnlock()

	return current
}

// WithContext sets the ambient Context returned by Current for the
// duration of fn, restoring the previous value (including nil) on
// return — even if fn panics.
func WithContext(ctx *Context, fn func()) {
	currentMu.Lock()
	prev := current
	current = ctx
	currentMu.Unlock()

	defer func() {
		currentMu.Lock()
		current = prev
		currentMu.Unlock()
	}()

	fn()
}
