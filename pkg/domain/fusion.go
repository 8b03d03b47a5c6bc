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

// Fusion is the graph of tensor views and axis-transform expressions this
// pass is handed. It plays the role of nvfuser's Fusion*: a bag of
// TensorViews connected by LoadStoreOp definitions, whose per-tensor
// domains are in turn connected by Split/Merge/Swizzle axis expressions.
type Fusion struct {
	tvs   []*TensorView
	exprs []Expression
}

// NewFusion constructs an empty fusion.
func NewFusion() *Fusion {
	return &Fusion{}
}

// AddTensorView registers a tensor view with this fusion and returns it.
func (f *Fusion) AddTensorView(tv *TensorView) *TensorView {
	tv.fusion = f
	f.tvs = append(f.tvs, tv)

	return tv
}

// AddExpr registers an axis-transform expression (Split, Merge, or
// Swizzle) with this fusion.
func (f *Fusion) AddExpr(e Expression) {
	f.exprs = append(f.exprs, e)
}

// TensorViews returns every tensor view registered with this fusion, in
// registration order.
func (f *Fusion) TensorViews() []*TensorView {
	return f.tvs
}

// Exprs returns every axis-transform expression registered with this
// fusion.
func (f *Fusion) Exprs() []Expression {
	return f.exprs
}

// Walk visits every tensor view in registration order. Real schedulers
// visit tensors in a dependency-respecting topological order; this
// module does not own scheduling (§1 Non-goals), so registration order —
// which callers are expected to supply already sorted — stands in for it.
func (f *Fusion) Walk(visit func(*TensorView)) {
	for _, tv := range f.tvs {
		visit(tv)
	}
}
