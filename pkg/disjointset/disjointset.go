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

// Package disjointset implements a generic union-find keyed by pointer
// identity, with path compression and union by rank, returning stable
// group handles that remain valid across further unions.
package disjointset

// node is one entry in the union-find forest.
type node[T any] struct {
	item   T
	parent *node[T]
	rank   uint
}

// Set is a stable handle identifying one equivalence class. It remains
// valid as a group identifier across further Union calls: once two items
// are unioned, the surviving Set for either of their prior groups
// continues to resolve (via findRoot) to the same representative.
type Set[T any] struct {
	root *node[T]
}

// Equal reports whether two group handles currently denote the same
// group. This is the "stable group handle" identity check: both handles
// are re-resolved through the live forest, so the answer stays correct
// for handles obtained before later merges combined their groups.
func (s Set[T]) Equal(other Set[T]) bool {
	return findRoot(s.root) == findRoot(other.root)
}

// Item returns one representative member of this group — the item held
// by the group's current root node, which changes when a later union
// attaches this group under another root. Any group member works equally well as a
// representative (exprsMap-style congruence checks on expressions are
// defined in terms of "pick any representative").
func (s Set[T]) Item() T {
	return findRoot(s.root).item
}

// DisjointSets is a union-find over items of type T, keyed by pointer
// identity via a caller-supplied key function. Group handles (Set[T])
// remain valid across further unions: they identify the group, not a
// snapshot of its membership.
type DisjointSets[K comparable, T any] struct {
	key   func(T) K
	nodes map[K]*node[T]
	// members indexes, per current root, every item ever merged into that
	// group — needed for DisjointSetMap iteration.
	members map[*node[T]][]T
}

// New constructs an empty DisjointSets using key to derive a comparable
// identity for each item of type T (e.g. a pointer itself, or an arena
// index).
func New[K comparable, T any](key func(T) K) *DisjointSets[K, T] {
	return &DisjointSets[K, T]{
		key:     key,
		nodes:   make(map[K]*node[T]),
		members: make(map[*node[T]][]T),
	}
}

// insert ensures an item has a singleton node, returning it.
func (d *DisjointSets[K, T]) insert(item T) *node[T] {
	k := d.key(item)
	if n, ok := d.nodes[k]; ok {
		return n
	}

	n := &node[T]{item: item}
	d.nodes[k] = n
	d.members[n] = []T{item}

	return n
}

// findRoot walks parent pointers to the representative node, compressing
// the path traversed so future lookups are near-constant time.
func findRoot[T any](n *node[T]) *node[T] {
	root := n
	for root.parent != nil {
		root = root.parent
	}

	for n.parent != nil {
		next := n.parent
		n.parent = root
		n = next
	}

	return root
}

// FindSet returns the stable group handle for item, inserting a singleton
// group for it if this is the first time it has been seen.
func (d *DisjointSets[K, T]) FindSet(item T) Set[T] {
	return Set[T]{root: findRoot(d.insert(item))}
}

// MapEntries unions the groups containing a and b. If they were already in
// the same group, merged is false and winner/loser are both the zero Set.
// Otherwise merged is true and winner/loser are the handles of the
// surviving and absorbed groups *as they were immediately before this
// call* — callers (IdGraph) use these to migrate any side-table entries
// keyed by the loser's prior handle into the winner's, per spec's "merge
// definitions/uses of the two old groups into the new representative".
func (d *DisjointSets[K, T]) MapEntries(a, b T) (winner, loser Set[T], merged bool) {
	ra := findRoot(d.insert(a))
	rb := findRoot(d.insert(b))

	if ra == rb {
		return Set[T]{}, Set[T]{}, false
	}

	winnerNode, loserNode := ra, rb
	// Union by rank: attach the shorter tree under the taller one's root to
	// keep amortized find() near constant time.
	if winnerNode.rank < loserNode.rank {
		winnerNode, loserNode = loserNode, winnerNode
	}

	oldWinner := Set[T]{root: winnerNode}
	oldLoser := Set[T]{root: loserNode}

	loserNode.parent = winnerNode

	if winnerNode.rank == loserNode.rank {
		winnerNode.rank++
	}

	d.members[winnerNode] = append(d.members[winnerNode], d.members[loserNode]...)
	delete(d.members, loserNode)

	return oldWinner, oldLoser, true
}

// StrictAreMapped reports whether a and b are currently in the same group,
// re-resolving through the live forest like Set.Equal. Unlike FindSet it
// never inserts: an item that was never seen is reported as unmapped.
func (d *DisjointSets[K, T]) StrictAreMapped(a, b T) bool {
	na, aOK := d.nodes[d.key(a)]
	nb, bOK := d.nodes[d.key(b)]

	if !aOK || !bOK {
		return false
	}

	return findRoot(na) == findRoot(nb)
}

// DisjointSetMap returns, for every live group, its representative handle
// and the full set of items merged into it over the lifetime of this
// DisjointSets. Monotonicity (§8 "Monotonic mapping") guarantees this map
// only ever coarsens: the number of entries is non-increasing as further
// unions occur.
func (d *DisjointSets[K, T]) DisjointSetMap() map[Set[T]][]T {
	result := make(map[Set[T]][]T)

	for n := range d.members {
		root := findRoot(n)
		if root != n {
			// n's members were already folded into root by MapEntries;
			// avoid double-counting by skipping non-root accumulators.
			continue
		}

		result[Set[T]{root: root}] = d.members[root]
	}

	return result
}

// MembersOf returns every item merged, over the lifetime of this
// DisjointSets, into item's current group. Used by callers that need the
// "accumulate over every member" fallback when a per-group side-table
// lookup misses.
func (d *DisjointSets[K, T]) MembersOf(item T) []T {
	n, ok := d.nodes[d.key(item)]
	if !ok {
		return nil
	}

	return d.members[findRoot(n)]
}

// Count returns the number of distinct groups currently live.
func (d *DisjointSets[K, T]) Count() int {
	roots := make(map[*node[T]]struct{})

	for _, n := range d.nodes {
		roots[findRoot(n)] = struct{}{}
	}

	return len(roots)
}
