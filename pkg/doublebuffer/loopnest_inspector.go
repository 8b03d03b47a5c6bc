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

import "github.com/kerngen/loopfuse/pkg/kir"

// InsertionInfo is the ordered worklist DoubleBufferLoopNestInspector
// builds: one entry per double-buffered loop found, inner loops before
// outer ones (spec.md §4.6: "in inner-to-outer order").
type InsertionInfo struct {
	loops []*kir.ForLoop
	loads map[*kir.ForLoop][]*kir.LoadStoreOp
}

// NewInsertionInfo constructs an empty InsertionInfo.
func NewInsertionInfo() *InsertionInfo {
	return &InsertionInfo{loads: make(map[*kir.ForLoop][]*kir.LoadStoreOp)}
}

// Add registers loop with its buffered loads, preserving discovery
// order.
func (ii *InsertionInfo) Add(loop *kir.ForLoop, loads []*kir.LoadStoreOp) {
	if _, seen := ii.loads[loop]; !seen {
		ii.loops = append(ii.loops, loop)
	}

	ii.loads[loop] = loads
}

// Empty reports whether every loop has been processed and removed.
func (ii *InsertionInfo) Empty() bool {
	return len(ii.loops) == 0
}

// Pop removes and returns the next loop (inner-to-outer order) and its
// loads.
func (ii *InsertionInfo) Pop() (*kir.ForLoop, []*kir.LoadStoreOp) {
	loop := ii.loops[0]
	ii.loops = ii.loops[1:]

	loads := ii.loads[loop]
	delete(ii.loads, loop)

	return loop, loads
}

// validateDoubleBufferLoop implements the UnsupportedLoopShape check: the
// loop must start at the compile-time constant 0 and its axis must not
// be vectorised (step is implicitly 1 in this module's loop IR, so no
// separate step check is needed).
func validateDoubleBufferLoop(loop *kir.ForLoop) error {
	start, ok := loop.Start.AsConst()
	if !ok || start != 0 {
		return newError(UnsupportedLoopShape, loop.String(), "double buffered loop must start at 0")
	}

	if loop.Index.ParallelType().String() == "Vectorize" {
		return newError(UnsupportedLoopShape, loop.String(), "double buffered loop must not be vectorised")
	}

	return nil
}

// collectDirectLoads returns every LoadStoreOp directly in body (or in
// an IfThenElse nested in body), not descending into further ForLoop
// nesting — those belong to a different double-buffer loop.
func collectDirectLoads(body []kir.Node) []*kir.LoadStoreOp {
	var loads []*kir.LoadStoreOp

	for _, n := range body {
		switch v := n.(type) {
		case *kir.LoadStoreOp:
			loads = append(loads, v)
		case *kir.IfThenElse:
			loads = append(loads, collectDirectLoads(v.Then)...)
			loads = append(loads, collectDirectLoads(v.Else)...)
		}
	}

	return loads
}

// LoopNestInspector walks a lowered loop nest and groups load
// expressions by their enclosing double-buffer loop (spec.md §2's
// DoubleBufferLoopNestInspector).
type LoopNestInspector struct {
	info *Info
}

// NewLoopNestInspector constructs an inspector bound to info.
func NewLoopNestInspector(info *Info) *LoopNestInspector {
	return &LoopNestInspector{info: info}
}

// Build walks exprs and returns the InsertionInfo worklist, or the
// first structured error encountered (an unsupported loop shape, or a
// buffered tensor with no enclosing loop mapping to its axis).
func (insp *LoopNestInspector) Build(exprs []kir.Node) (*InsertionInfo, error) {
	ii := NewInsertionInfo()
	found := make(map[*kir.ForLoop]bool)

	var walk func([]kir.Node) error
	walk = func(nodes []kir.Node) error {
		for _, n := range nodes {
			switch v := n.(type) {
			case *kir.ForLoop:
				if err := walk(v.Body); err != nil {
					return err
				}

				if !insp.info.IsDoubleBufferedLoop(v.Index) {
					continue
				}

				if err := validateDoubleBufferLoop(v); err != nil {
					return err
				}

				found[v] = true

				if loads := insp.loadsForLoop(v); len(loads) > 0 {
					ii.Add(v, loads)
				}
			case *kir.IfThenElse:
				if err := walk(v.Then); err != nil {
					return err
				}

				if err := walk(v.Else); err != nil {
					return err
				}
			}
		}

		return nil
	}

	if err := walk(exprs); err != nil {
		return nil, err
	}

	if err := insp.checkEveryTensorHasLoop(found); err != nil {
		return nil, err
	}

	return ii, nil
}

// loadsForLoop returns loop's direct loads whose output tensor's
// recorded double-buffer axis concretely maps to loop's own axis.
func (insp *LoopNestInspector) loadsForLoop(loop *kir.ForLoop) []*kir.LoadStoreOp {
	var matched []*kir.LoadStoreOp

	for _, l := range collectDirectLoads(loop.Body) {
		tv := l.Tensor.Out

		concrete, ok := insp.info.ConcreteLoopID(tv)
		if !ok {
			continue
		}

		if concrete == insp.info.ctx.ComputeAtMap().GetConcreteMappedID(loop.Index) {
			matched = append(matched, l)
		}
	}

	return matched
}

func (insp *LoopNestInspector) checkEveryTensorHasLoop(found map[*kir.ForLoop]bool) error {
	concreteSeen := map[any]bool{}

	for loop := range found {
		concreteSeen[insp.info.ctx.ComputeAtMap().GetConcreteMappedID(loop.Index)] = true
	}

	for _, tv := range insp.info.Tensors() {
		concrete, ok := insp.info.ConcreteLoopID(tv)
		if !ok || concreteSeen[concrete] {
			continue
		}

		return newError(MissingDoubleBufferLoop, tv.String(), "no enclosing loop maps to %s's double buffer axis", tv)
	}

	return nil
}
