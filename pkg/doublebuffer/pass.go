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
	"github.com/kerngen/loopfuse/pkg/kir"
	"github.com/kerngen/loopfuse/pkg/lower"
)

// Run is the single top-level entry point for the double-buffer pass
// (spec.md §4.9, the Go analogue of DoublebufferPass::run): build Info
// from fusion, run the loop-nest inspector, then the inserter, returning
// the rewritten expression list or the first structured error
// encountered.
func Run(ctx *lower.Context, exprs []kir.Node) ([]kir.Node, *Info, error) {
	info, err := Build(ctx.Fusion(), ctx)
	if err != nil {
		return nil, nil, err
	}

	rewritten, err := NewInserter(info, ctx).Run(exprs)
	if err != nil {
		return nil, nil, err
	}

	return rewritten, info, nil
}
