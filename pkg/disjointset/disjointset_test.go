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
package disjointset_test

import (
	"testing"

	"github.com/kerngen/loopfuse/pkg/disjointset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identity(s string) string { return s }

func TestFindSetSingleton(t *testing.T) {
	d := disjointset.New(identity)

	a := d.FindSet("a")
	b := d.FindSet("a")

	assert.True(t, a.Equal(b))
	assert.Equal(t, 1, d.Count())
}

func TestMapEntriesUnionsGroups(t *testing.T) {
	d := disjointset.New(identity)

	assert.False(t, d.StrictAreMapped("a", "b"))

	_, _, merged := d.MapEntries("a", "b")
	require.True(t, merged)

	assert.True(t, d.StrictAreMapped("a", "b"))
	assert.Equal(t, 1, d.Count())
}

func TestMapEntriesIdempotent(t *testing.T) {
	d := disjointset.New(identity)

	d.MapEntries("a", "b")

	_, _, merged := d.MapEntries("a", "b")
	assert.False(t, merged, "mapping two already-equivalent items reports merged=false")
	assert.Equal(t, 1, d.Count())
}

// TestMonotonicMapping covers spec.md §8's "Monotonic mapping" property:
// for any sequence of MapEntries calls, group count is non-increasing,
// and once two items are mapped they stay mapped through all further
// operations.
func TestMonotonicMapping(t *testing.T) {
	d := disjointset.New(identity)

	items := []string{"a", "b", "c", "d", "e"}
	for _, it := range items {
		d.FindSet(it)
	}

	prevCount := d.Count()
	require.Equal(t, len(items), prevCount)

	pairs := [][2]string{{"a", "b"}, {"c", "d"}, {"b", "c"}, {"d", "e"}}

	mappedPairs := make([][2]string, 0, len(pairs))

	for _, p := range pairs {
		d.MapEntries(p[0], p[1])

		count := d.Count()
		assert.LessOrEqual(t, count, prevCount, "group count must never increase")
		prevCount = count

		mappedPairs = append(mappedPairs, p)

		for _, mp := range mappedPairs {
			assert.True(t, d.StrictAreMapped(mp[0], mp[1]), "previously mapped pair must remain mapped")
		}
	}

	// After the above, every item is transitively in one group.
	assert.Equal(t, 1, d.Count())
}

func TestStableGroupHandleAcrossLaterUnion(t *testing.T) {
	d := disjointset.New(identity)

	handleBeforeUnion := d.FindSet("a")

	d.MapEntries("a", "b")
	d.MapEntries("b", "c")

	handleAfterUnions := d.FindSet("a")

	assert.True(t, handleBeforeUnion.Equal(handleAfterUnions), "a handle obtained before further unions must still resolve correctly")
	assert.True(t, handleBeforeUnion.Equal(d.FindSet("c")))
}

func TestDisjointSetMapAccumulatesMembers(t *testing.T) {
	d := disjointset.New(identity)

	d.MapEntries("a", "b")
	d.MapEntries("b", "c")
	d.FindSet("d")

	groups := d.DisjointSetMap()
	require.Len(t, groups, 2)

	var sawTriple, sawSingle bool

	for _, members := range groups {
		switch len(members) {
		case 3:
			sawTriple = true
			assert.ElementsMatch(t, []string{"a", "b", "c"}, members)
		case 1:
			sawSingle = true
			assert.Equal(t, []string{"d"}, members)
		}
	}

	assert.True(t, sawTriple)
	assert.True(t, sawSingle)
}

func TestMembersOf(t *testing.T) {
	d := disjointset.New(identity)

	d.MapEntries("a", "b")

	assert.ElementsMatch(t, []string{"a", "b"}, d.MembersOf("a"))
	assert.ElementsMatch(t, []string{"a", "b"}, d.MembersOf("b"))
	assert.Nil(t, d.MembersOf("never-seen"))
}
