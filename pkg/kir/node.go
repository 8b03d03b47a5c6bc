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

// Package kir defines the lowered kernel IR this module's double-buffer
// pass walks and rewrites: a tagged-variant node type (ForLoop,
// IfThenElse, UnaryOp, LoadStoreOp, AddressCompute, CpAsyncCommit,
// CpAsyncWait, BlockSync, Allocate) plus a pre-order match / post-order
// rewrite traversal pair (§9 Design Notes: "avoid runtime-type-switch
// inheritance" — a closed tagged variant with an explicit type switch at
// the one traversal site is the Go shape of that advice, as opposed to a
// class hierarchy with virtual accept() methods).
package kir

import (
	"fmt"
	"strings"

	"github.com/kerngen/loopfuse/pkg/domain"
)

// NodeKind tags a Node's concrete shape.
type NodeKind uint8

const (
	// KindForLoop is a counted loop over a range.
	KindForLoop NodeKind = iota
	// KindIfThenElse is a predicated two-way branch.
	KindIfThenElse
	// KindUnaryOp is an opaque leaf computation (scalar arithmetic,
	// predicate evaluation) this pass does not need to interpret.
	KindUnaryOp
	// KindLoadStoreOp is a lowered tensor copy: Set, cp.async, or
	// LdMatrix.
	KindLoadStoreOp
	// KindAddressCompute is a DOUBLE_BUFFER_UPDATE or GMEM_INCREMENT
	// pointer-arithmetic op.
	KindAddressCompute
	// KindCpAsyncCommit groups outstanding cp.async copies into a batch.
	KindCpAsyncCommit
	// KindCpAsyncWait waits until at most N batches remain outstanding.
	KindCpAsyncWait
	// KindBlockSync is a `__syncthreads()`-style barrier.
	KindBlockSync
	// KindAllocate reserves storage for a buffer or scalar.
	KindAllocate
)

// String renders the kind's name.
func (k NodeKind) String() string {
	switch k {
	case KindForLoop:
		return "ForLoop"
	case KindIfThenElse:
		return "IfThenElse"
	case KindUnaryOp:
		return "UnaryOp"
	case KindLoadStoreOp:
		return "LoadStoreOp"
	case KindAddressCompute:
		return "AddressCompute"
	case KindCpAsyncCommit:
		return "CpAsyncCommit"
	case KindCpAsyncWait:
		return "CpAsyncWait"
	case KindBlockSync:
		return "BlockSync"
	case KindAllocate:
		return "Allocate"
	default:
		return "Unknown"
	}
}

// Node is one statement in the lowered kernel expression list.
type Node interface {
	Kind() NodeKind
	String() string
}

// ForLoop is a counted loop over [Start, Stop) by Step==1, bound to Index
// (the concrete LOOP-mode IterDomain this loop realizes).
type ForLoop struct {
	Index *domain.IterDomain
	Start *domain.Value
	Stop  *domain.Value
	Body  []Node
}

// Kind implements Node.
func (l *ForLoop) Kind() NodeKind { return KindForLoop }

// String implements Node.
func (l *ForLoop) String() string {
	return fmt.Sprintf("for(%s = %s; %s < %s) { %d stmts }", l.Index, l.Start, l.Index, l.Stop, len(l.Body))
}

// Extent returns Stop - Start as a constant, when both endpoints are
// compile-time constants; ok is false otherwise (a symbolic bound, e.g.
// a runtime tensor dimension, has no fixed extent to report here).
func (l *ForLoop) Extent() (extent int64, ok bool) {
	start, startOK := l.Start.AsConst()
	stop, stopOK := l.Stop.AsConst()

	if !startOK || !stopOK {
		return 0, false
	}

	return stop - start, true
}

// IfThenElse is a predicated two-way branch. Predicate is an opaque
// condition string (predicate-expression evaluation is out of scope,
// §1 Non-goals).
type IfThenElse struct {
	Predicate string
	Then      []Node
	Else      []Node
}

// Kind implements Node.
func (i *IfThenElse) Kind() NodeKind { return KindIfThenElse }

// String implements Node.
func (i *IfThenElse) String() string {
	return fmt.Sprintf("if (%s) { %d stmts } else { %d stmts }", i.Predicate, len(i.Then), len(i.Else))
}

// UnaryOp is an opaque leaf computation this pass only needs to carry
// through unmodified (scalar arithmetic, index computation).
type UnaryOp struct {
	Op  string
	Out string
	In  string
}

// Kind implements Node.
func (u *UnaryOp) Kind() NodeKind { return KindUnaryOp }

// String implements Node.
func (u *UnaryOp) String() string {
	return fmt.Sprintf("%s = %s(%s)", u.Out, u.Op, u.In)
}

// LoadStoreOp is the lowered form of a domain.LoadStoreOp: a concrete
// tensor-copy statement the double-buffer pass recognises and clones
// per-stage.
type LoadStoreOp struct {
	Tensor          *domain.LoadStoreOp
	InlinePredicate bool
}

// Kind implements Node.
func (l *LoadStoreOp) Kind() NodeKind { return KindLoadStoreOp }

// String implements Node.
func (l *LoadStoreOp) String() string {
	return l.Tensor.String()
}

// AddressComputeKind distinguishes the two pointer-arithmetic ops the
// double-buffer pass inserts or rewrites.
type AddressComputeKind uint8

const (
	// DoubleBufferUpdate rotates a read-switch register to the next
	// stage offset.
	DoubleBufferUpdate AddressComputeKind = iota
	// GmemIncrement advances a global-memory source pointer by one
	// stage's worth of bytes.
	GmemIncrement
)

// String renders the address-compute kind.
func (k AddressComputeKind) String() string {
	if k == GmemIncrement {
		return "GMEM_INCREMENT"
	}

	return "DOUBLE_BUFFER_UPDATE"
}

// AddressCompute is a pointer/index-arithmetic statement. DataTv
// identifies the tensor this computation serves; SwitchSizeBytes and
// StageDepth parameterise a DoubleBufferUpdate; Decrement flips a
// GmemIncrement into a pointer decrement (used by CircularInitProlog).
type AddressCompute struct {
	Kind_           AddressComputeKind
	DataTv          *domain.TensorView
	SwitchSizeBytes int64
	StageDepth      uint
	Decrement       bool
}

// Kind implements Node.
func (a *AddressCompute) Kind() NodeKind { return KindAddressCompute }

// String implements Node.
func (a *AddressCompute) String() string {
	sign := "+"
	if a.Decrement {
		sign = "-"
	}

	return fmt.Sprintf("%s(%s) %s=", a.Kind_, a.DataTv, sign)
}

// CpAsyncCommit groups every outstanding cp.async copy issued so far into
// one batch.
type CpAsyncCommit struct{}

// Kind implements Node.
func (c *CpAsyncCommit) Kind() NodeKind { return KindCpAsyncCommit }

// String implements Node.
func (c *CpAsyncCommit) String() string { return "cp.async.commit_group" }

// CpAsyncWait blocks until at most N cp.async batches remain outstanding.
type CpAsyncWait struct {
	KeepStages int
}

// Kind implements Node.
func (c *CpAsyncWait) Kind() NodeKind { return KindCpAsyncWait }

// String implements Node.
func (c *CpAsyncWait) String() string {
	return fmt.Sprintf("cp.async.wait_group %d", c.KeepStages)
}

// BlockSync is a thread-block-wide barrier. WarHazard marks a sync
// inserted specifically to resolve a write-after-read hazard (as opposed
// to the double-buffer pass's own raw-hazard syncs).
type BlockSync struct {
	WarHazard bool
}

// Kind implements Node.
func (b *BlockSync) Kind() NodeKind { return KindBlockSync }

// String implements Node.
func (b *BlockSync) String() string {
	if b.WarHazard {
		return "__syncthreads() /* war */"
	}

	return "__syncthreads()"
}

// Allocate reserves storage for a buffer (e.g. a read-switch scalar).
type Allocate struct {
	Name   string
	Memory domain.MemoryType
	Size   *domain.Value
}

// Kind implements Node.
func (a *Allocate) Kind() NodeKind { return KindAllocate }

// String implements Node.
func (a *Allocate) String() string {
	return fmt.Sprintf("%s %s[%s]", a.Memory, a.Name, a.Size)
}

// Render joins a statement list's String() forms, one per line, indented
// one level — used by debug output and the `lower` CLI command.
func Render(nodes []Node) string {
	var b strings.Builder

	for _, n := range nodes {
		fmt.Fprintf(&b, "  %s\n", n.String())

		switch v := n.(type) {
		case *ForLoop:
			b.WriteString(indent(Render(v.Body)))
		case *IfThenElse:
			b.WriteString(indent(Render(v.Then)))
			b.WriteString(indent(Render(v.Else)))
		}
	}

	return b.String()
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = "  " + l
		}
	}

	if s == "" {
		return ""
	}

	return strings.Join(lines, "\n") + "\n"
}
