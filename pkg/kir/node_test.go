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
package kir_test

import (
	"testing"

	"github.com/kerngen/loopfuse/pkg/domain"
	"github.com/kerngen/loopfuse/pkg/kir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildLoop() *kir.ForLoop {
	idx := domain.NewIterDomain("i", domain.NewConst(4))

	return &kir.ForLoop{
		Index: idx,
		Start: domain.NewConst(0),
		Stop:  domain.NewConst(4),
		Body: []kir.Node{
			&kir.CpAsyncCommit{},
			&kir.BlockSync{},
		},
	}
}

func TestForLoopExtent(t *testing.T) {
	l := buildLoop()

	extent, ok := l.Extent()
	require.True(t, ok)
	assert.Equal(t, int64(4), extent)
}

func TestForLoopExtentSymbolic(t *testing.T) {
	l := &kir.ForLoop{
		Index: domain.NewIterDomain("i", domain.NewSymbol("N")),
		Start: domain.NewConst(0),
		Stop:  domain.NewSymbol("N"),
	}

	_, ok := l.Extent()
	assert.False(t, ok, "a symbolic bound has no fixed extent")
}

func TestMatchFindsNestedNodes(t *testing.T) {
	l := buildLoop()

	syncs := kir.FindAll([]kir.Node{l}, func(n kir.Node) bool {
		_, ok := n.(*kir.BlockSync)
		return ok
	})

	require.Len(t, syncs, 1)
}

func TestRewriteReplacesNestedNode(t *testing.T) {
	l := buildLoop()

	out := kir.Rewrite([]kir.Node{l}, func(n kir.Node) kir.Node {
		if _, ok := n.(*kir.CpAsyncCommit); ok {
			return &kir.CpAsyncWait{KeepStages: 1}
		}

		return n
	})

	require.Len(t, out, 1)

	rewritten, ok := out[0].(*kir.ForLoop)
	require.True(t, ok)
	require.Len(t, rewritten.Body, 2)

	wait, ok := rewritten.Body[0].(*kir.CpAsyncWait)
	require.True(t, ok)
	assert.Equal(t, 1, wait.KeepStages)

	// The original loop's body must be untouched (Rewrite copies).
	_, stillCommit := l.Body[0].(*kir.CpAsyncCommit)
	assert.True(t, stillCommit)
}

func TestRewriteCanDropNodes(t *testing.T) {
	l := buildLoop()

	out := kir.Rewrite([]kir.Node{l}, func(n kir.Node) kir.Node {
		if _, ok := n.(*kir.CpAsyncCommit); ok {
			return nil
		}

		return n
	})

	rewritten := out[0].(*kir.ForLoop)
	require.Len(t, rewritten.Body, 1)

	_, ok := rewritten.Body[0].(*kir.BlockSync)
	assert.True(t, ok)
}

func TestInsertBeforeAndAfter(t *testing.T) {
	sync := &kir.BlockSync{}
	nodes := []kir.Node{&kir.CpAsyncCommit{}, sync}

	isSync := func(n kir.Node) bool {
		_, ok := n.(*kir.BlockSync)
		return ok
	}

	before := kir.InsertBefore(nodes, isSync, &kir.CpAsyncWait{KeepStages: 0})
	require.Len(t, before, 3)
	_, ok := before[1].(*kir.CpAsyncWait)
	assert.True(t, ok)

	after := kir.InsertAfter(nodes, isSync, &kir.CpAsyncWait{KeepStages: 0})
	require.Len(t, after, 3)
	_, ok = after[2].(*kir.CpAsyncWait)
	assert.True(t, ok)
}
