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
	"fmt"

	"github.com/kerngen/loopfuse/pkg/domain"
	"github.com/kerngen/loopfuse/pkg/kir"
	"github.com/kerngen/loopfuse/pkg/lower"
)

// Inserter orchestrates cloning, synchronization insertion, and loop
// replacement (spec.md §4.6's DoubleBufferInserter).
type Inserter struct {
	info   *Info
	ctx    *lower.Context
	cloner *LoopCloner
}

// NewInserter constructs an inserter bound to info and ctx.
func NewInserter(info *Info, ctx *lower.Context) *Inserter {
	return &Inserter{info: info, ctx: ctx, cloner: NewLoopCloner(info, ctx)}
}

// Run builds the insertion table and processes it one loop at a time
// until empty, returning the rewritten expression list.
func (ins *Inserter) Run(exprs []kir.Node) ([]kir.Node, error) {
	ii, err := NewLoopNestInspector(ins.info).Build(exprs)
	if err != nil {
		return nil, err
	}

	rewritten := exprs

	for !ii.Empty() {
		loop, loads := ii.Pop()

		rewritten, err = ins.insert(rewritten, loop, loads)
		if err != nil {
			return nil, err
		}
	}

	return rewritten, nil
}

func (ins *Inserter) insert(exprs []kir.Node, loop *kir.ForLoop, loads []*kir.LoadStoreOp) ([]kir.Node, error) {
	var before []kir.Node

	before = append(before, ins.allocateReadSwitches(loads)...)

	epilogRequired := RequiresEpilog(loads)

	prolog, err := ins.cloner.Clone(loop, loads, Prolog, epilogRequired)
	if err != nil {
		return nil, err
	}

	peeled := ins.ctx.PredicatePeelingInfo().ShouldPeelLoop(loop.Index)

	anyCpAsync := anyCpAsyncLoad(loads)

	var waitStages int

	if anyCpAsync {
		prolog.Body = append(prolog.Body, &kir.CpAsyncCommit{})

		depth, _ := ins.info.StageDepth(loop.Index)
		waitStages = int(depth) - 2
	}

	before = append(before, prolog)

	if epilogRequired && peeled {
		circ, err := ins.cloner.Clone(loop, loads, CircularInitProlog, epilogRequired)
		if err != nil {
			return nil, err
		}

		before = append(before, circ)
	}

	if anyCpAsync {
		before = append(before, &kir.CpAsyncWait{KeepStages: waitStages})
	}

	if anyLoadNeedsRawSync(loads, ins.ctx.SyncMap()) {
		before = append(before, &kir.BlockSync{})
	}

	main, err := ins.cloner.Clone(loop, loads, Main, epilogRequired)
	if err != nil {
		return nil, err
	}

	if anyCpAsync {
		insertMainCommitWait(main, loads, waitStages)
	}

	var after []kir.Node

	if epilogRequired {
		epilog, err := ins.cloner.Clone(loop, loads, Epilog, epilogRequired)
		if err != nil {
			return nil, err
		}

		after = append(after, epilog)
	}

	return replaceLoop(exprs, loop, before, main, after), nil
}

// allocateReadSwitches implements step 1: for every shared-memory,
// double-/circular-buffered load output with ShouldLiftReadAddress and
// all-LdMatrix uses, allocate a fresh 32-bit Local scalar and register
// it with Info.
func (ins *Inserter) allocateReadSwitches(loads []*kir.LoadStoreOp) []kir.Node {
	var allocs []kir.Node

	for _, l := range loads {
		tv := l.Tensor.Out

		if tv.MemoryType() != domain.Shared {
			continue
		}

		if !tv.IsDoubleBuffered() && !tv.IsCircularBuffered() {
			continue
		}

		if !tv.ShouldLiftReadAddress() || !allUsesLdMatrix(tv) {
			continue
		}

		name := fmt.Sprintf("switch_%s", tv.Name)
		ins.info.SetReadSwitchIndex(tv, domain.NewSymbol(name))

		allocs = append(allocs, &kir.Allocate{Name: name, Memory: domain.Local, Size: domain.NewConst(4)})
	}

	return allocs
}

func allUsesLdMatrix(tv *domain.TensorView) bool {
	if len(tv.UsedBy) == 0 {
		return false
	}

	for _, use := range tv.UsedBy {
		if use.Op != domain.LdMatrixOp {
			return false
		}
	}

	return true
}

func anyCpAsyncLoad(loads []*kir.LoadStoreOp) bool {
	for _, l := range loads {
		if l.Tensor.Op == domain.CpAsyncOp {
			return true
		}
	}

	return false
}

func anyLoadNeedsRawSync(loads []*kir.LoadStoreOp, sm *lower.SyncMap) bool {
	for _, l := range loads {
		if sm.NeedsRawSync(l.Tensor.Out) {
			return true
		}
	}

	return false
}

// insertMainCommitWait implements step 7: find the last Main-body
// expression that (transitively) contains a buffered load; insert
// CpAsyncCommit immediately after it; then find the first BlockSync
// after that commit and place CpAsyncWait immediately before it, or at
// end-of-body if none exists.
func insertMainCommitWait(main *kir.ForLoop, loads []*kir.LoadStoreOp, waitStages int) {
	isLoad := make(map[*kir.LoadStoreOp]bool, len(loads))
	for _, l := range loads {
		isLoad[l] = true
	}

	lastLoadIdx := -1

	for i, n := range main.Body {
		if containsLoad(n, isLoad) {
			lastLoadIdx = i
		}
	}

	wait := &kir.CpAsyncWait{KeepStages: waitStages}

	if lastLoadIdx == -1 {
		main.Body = append(main.Body, &kir.CpAsyncCommit{}, wait)
		return
	}

	commitIdx := lastLoadIdx + 1

	withCommit := make([]kir.Node, 0, len(main.Body)+1)
	withCommit = append(withCommit, main.Body[:commitIdx]...)
	withCommit = append(withCommit, &kir.CpAsyncCommit{})
	withCommit = append(withCommit, main.Body[commitIdx:]...)

	syncIdx := -1

	for i := commitIdx + 1; i < len(withCommit); i++ {
		if _, ok := withCommit[i].(*kir.BlockSync); ok {
			syncIdx = i
			break
		}
	}

	if syncIdx == -1 {
		main.Body = append(withCommit, wait)
		return
	}

	final := make([]kir.Node, 0, len(withCommit)+1)
	final = append(final, withCommit[:syncIdx]...)
	final = append(final, wait)
	final = append(final, withCommit[syncIdx:]...)
	main.Body = final
}

// containsLoad reports whether n is, or transitively contains, one of
// the nodes in isLoad.
func containsLoad(n kir.Node, isLoad map[*kir.LoadStoreOp]bool) bool {
	switch v := n.(type) {
	case *kir.LoadStoreOp:
		return isLoad[v]
	case *kir.ForLoop:
		for _, c := range v.Body {
			if containsLoad(c, isLoad) {
				return true
			}
		}
	case *kir.IfThenElse:
		for _, c := range v.Then {
			if containsLoad(c, isLoad) {
				return true
			}
		}

		for _, c := range v.Else {
			if containsLoad(c, isLoad) {
				return true
			}
		}
	}

	return false
}

// replaceLoop returns a copy of exprs with target replaced by
// before...,main,after... — searching recursively through nested
// ForLoop/IfThenElse structure.
func replaceLoop(exprs []kir.Node, target *kir.ForLoop, before []kir.Node, main *kir.ForLoop, after []kir.Node) []kir.Node {
	out := make([]kir.Node, 0, len(exprs)+len(before)+len(after))

	for _, n := range exprs {
		if n == target {
			out = append(out, before...)
			out = append(out, main)
			out = append(out, after...)

			continue
		}

		switch v := n.(type) {
		case *kir.ForLoop:
			cp := *v
			cp.Body = replaceLoop(v.Body, target, before, main, after)
			out = append(out, &cp)
		case *kir.IfThenElse:
			cp := *v
			cp.Then = replaceLoop(v.Then, target, before, main, after)
			cp.Else = replaceLoop(v.Else, target, before, main, after)
			out = append(out, &cp)
		default:
			out = append(out, n)
		}
	}

	return out
}
