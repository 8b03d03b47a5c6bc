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
	"github.com/kerngen/loopfuse/pkg/kir"
	"github.com/kerngen/loopfuse/pkg/lower"
)

// LoopCloner produces a specialized clone of a double-buffered loop body
// for one of the four stages (spec.md §4.5's DoubleBufferLoopCloner).
type LoopCloner struct {
	info *Info
	ctx  *lower.Context
}

// NewLoopCloner constructs a cloner bound to info and ctx.
func NewLoopCloner(info *Info, ctx *lower.Context) *LoopCloner {
	return &LoopCloner{info: info, ctx: ctx}
}

// RequiresEpilog reports whether any of loads' outputs is Shared memory
// — shared-memory writes require trailing iterations to drain without
// overrunning the predicate guard (spec.md §4.5).
func RequiresEpilog(loads []*kir.LoadStoreOp) bool {
	for _, l := range loads {
		if l.Tensor.Out.MemoryType() == domain.Shared {
			return true
		}
	}

	return false
}

// Clone produces loop's specialized clone for stage.
func (c *LoopCloner) Clone(loop *kir.ForLoop, loads []*kir.LoadStoreOp, stage LoopStage, epilogRequired bool) (*kir.ForLoop, error) {
	depth, ok := c.info.StageDepth(loop.Index)
	if !ok {
		depth = 2
	}

	dMinus1 := domain.NewConst(int64(depth) - 1)

	var start, stop *domain.Value

	switch stage {
	case Prolog:
		start, stop = domain.NewConst(0), dMinus1
	case Main:
		start = loop.Start
		if epilogRequired {
			stop = domain.NewDiff(loop.Stop, domain.NewConst(1))
		} else {
			stop = loop.Stop
		}
	case Epilog:
		start, stop = domain.NewDiff(loop.Stop, dMinus1), loop.Stop
	case CircularInitProlog:
		start, stop = dMinus1, domain.NewConst(int64(depth))
	}

	fc := c.newFilterContext(loop, loads)

	body := filterBody(loop.Body, stage, fc)

	if stage == Main {
		body = c.appendReadSwitchUpdates(body, loads)
		body = hoistGmemIncrements(body, c.ctx.PredicatePeelingInfo().ShouldPeelLoop(loop.Index))
	}

	return &kir.ForLoop{Index: loop.Index, Start: start, Stop: stop, Body: body}, nil
}

type filterContext struct {
	isLoad         map[*kir.LoadStoreOp]bool
	bufferedOutput map[*domain.TensorView]bool
	peeled         bool
	loopConcrete   *domain.IterDomain
	info           *Info
	computeAt      *lower.ComputeAtMap
}

func (c *LoopCloner) newFilterContext(loop *kir.ForLoop, loads []*kir.LoadStoreOp) *filterContext {
	isLoad := make(map[*kir.LoadStoreOp]bool, len(loads))
	bufferedOutput := make(map[*domain.TensorView]bool, len(loads))

	for _, l := range loads {
		isLoad[l] = true
		bufferedOutput[l.Tensor.Out] = true
	}

	return &filterContext{
		isLoad:         isLoad,
		bufferedOutput: bufferedOutput,
		peeled:         c.ctx.PredicatePeelingInfo().ShouldPeelLoop(loop.Index),
		loopConcrete:   c.ctx.ComputeAtMap().GetConcreteMappedID(loop.Index),
		info:           c.info,
		computeAt:      c.ctx.ComputeAtMap(),
	}
}

// filterBody walks body recursively applying the per-stage keep/drop/
// convert rule to every leaf; ForLoop and IfThenElse containers are
// preserved with their own bodies filtered the same way (spec.md §4.5's
// "possibly wrapped in a single-expression inner For" note for
// GMEM_INCREMENT implies the filter applies inside nested structure,
// not just at the top level).
func filterBody(body []kir.Node, stage LoopStage, fc *filterContext) []kir.Node {
	out := make([]kir.Node, 0, len(body))

	for _, n := range body {
		switch v := n.(type) {
		case *kir.ForLoop:
			cp := *v
			cp.Body = filterBody(v.Body, stage, fc)
			out = append(out, &cp)
		case *kir.IfThenElse:
			cp := *v
			cp.Then = filterBody(v.Then, stage, fc)
			cp.Else = filterBody(v.Else, stage, fc)
			out = append(out, &cp)
		default:
			if kept := filterLeaf(n, stage, fc); kept != nil {
				out = append(out, kept)
			}
		}
	}

	return out
}

// filterLeaf applies the stage rule to one non-container node, returning
// nil to drop it.
func filterLeaf(n kir.Node, stage LoopStage, fc *filterContext) kir.Node {
	switch stage {
	case Prolog:
		return filterProlog(n, fc)
	case Main:
		return filterMain(n, fc)
	case Epilog:
		return filterEpilog(n, fc)
	case CircularInitProlog:
		return filterCircularInitProlog(n, fc)
	default:
		return n
	}
}

func filterProlog(n kir.Node, fc *filterContext) kir.Node {
	switch v := n.(type) {
	case *kir.LoadStoreOp:
		if !fc.isLoad[v] {
			return nil
		}

		if v.InlinePredicate {
			cp := *v
			return &cp
		}

		return v
	case *kir.AddressCompute:
		if v.Kind_ == kir.DoubleBufferUpdate && fc.bufferedOutput[v.DataTv] {
			return v
		}

		if v.Kind_ == kir.GmemIncrement {
			return v
		}

		return nil
	default:
		return nil
	}
}

func filterMain(n kir.Node, fc *filterContext) kir.Node {
	if v, ok := n.(*kir.LoadStoreOp); ok && v.Tensor.IsScalar && fc.bufferedOutput[v.Tensor.Out] {
		if fc.peeled && skipInitUnderPeeling(v, fc) {
			return nil
		}
	}

	return n
}

// skipInitUnderPeeling implements spec.md §4.5's Main-stage skip rule
// for cp.async scalar-fill inits under predicate peeling.
func skipInitUnderPeeling(v *kir.LoadStoreOp, fc *filterContext) bool {
	if v.Tensor.Op != domain.CpAsyncOp {
		return false
	}

	tv := v.Tensor.Out

	axis, ok := fc.info.DoubleBufferAxis(tv)
	if !ok {
		return false
	}

	if fc.computeAt.GetConcreteMappedID(axis) != fc.loopConcrete {
		return false
	}

	return everyInnerAxisParallelOrConst(tv, axis)
}

func everyInnerAxisParallelOrConst(tv *domain.TensorView, axis *domain.IterDomain) bool {
	axes := tv.Domain()
	pos := -1

	for i, a := range axes {
		if a == axis {
			pos = i
			break
		}
	}

	for _, a := range axes[pos+1:] {
		if a.ParallelType() == domain.Serial {
			if _, isConst := a.Extent.AsConst(); !isConst {
				return false
			}
		}
	}

	return true
}

func filterEpilog(n kir.Node, fc *filterContext) kir.Node {
	if v, ok := n.(*kir.LoadStoreOp); ok && fc.isLoad[v] {
		return nil
	}

	return n
}

func filterCircularInitProlog(n kir.Node, fc *filterContext) kir.Node {
	switch v := n.(type) {
	case *kir.LoadStoreOp:
		if v.Tensor.IsScalar && fc.bufferedOutput[v.Tensor.Out] {
			return v
		}

		return nil
	case *kir.AddressCompute:
		if v.Kind_ == kir.GmemIncrement {
			cp := *v
			cp.Decrement = true

			return &cp
		}

		return nil
	default:
		return nil
	}
}

// appendReadSwitchUpdates implements the Main-only read-switch insertion
// rule: for each buffered load whose TV has a registered read-switch
// index, append a DOUBLE_BUFFER_UPDATE AddressCompute at the end of the
// body.
func (c *LoopCloner) appendReadSwitchUpdates(body []kir.Node, loads []*kir.LoadStoreOp) []kir.Node {
	for _, l := range loads {
		tv := l.Tensor.Out

		if _, ok := c.info.ReadSwitchIndex(tv); !ok {
			continue
		}

		size, _ := c.info.OriginalAllocSize(tv)

		var depth uint
		if axis, ok := c.info.DoubleBufferAxis(tv); ok {
			depth, _ = c.info.StageDepth(axis)
		}

		byteSize := int64(0)
		if size != nil {
			if v, ok := size.AsConst(); ok {
				byteSize = v
			}
		}

		body = append(body, &kir.AddressCompute{
			Kind_:           kir.DoubleBufferUpdate,
			DataTv:          tv,
			SwitchSizeBytes: byteSize,
			StageDepth:      depth,
		})
	}

	return body
}

// hoistGmemIncrements implements the Main-only gmem-increment-hoisting
// rule: under predicate peeling, reorder the body so every GMEM_INCREMENT
// (optionally wrapped in a single-expression inner ForLoop) comes first.
func hoistGmemIncrements(body []kir.Node, peeled bool) []kir.Node {
	if !peeled {
		return body
	}

	var increments, rest []kir.Node

	for _, n := range body {
		if isGmemIncrement(n) {
			increments = append(increments, n)
		} else {
			rest = append(rest, n)
		}
	}

	if len(increments) == 0 {
		return body
	}

	out := make([]kir.Node, 0, len(body))
	out = append(out, increments...)
	out = append(out, rest...)

	return out
}

// isGmemIncrement recognises a GMEM_INCREMENT, possibly wrapped in a
// single-expression inner ForLoop.
func isGmemIncrement(n kir.Node) bool {
	switch v := n.(type) {
	case *kir.AddressCompute:
		return v.Kind_ == kir.GmemIncrement
	case *kir.ForLoop:
		return len(v.Body) == 1 && isGmemIncrement(v.Body[0])
	default:
		return false
	}
}
