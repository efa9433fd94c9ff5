package idset

import (
	"encoding/json"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeInsert(t *testing.T) {
	tests := []struct {
		name string
		base Set
		ids  []int64
		want Set
	}{
		{name: "into empty", base: nil, ids: []int64{3, 1, 2}, want: Set{1, 2, 3}},
		{name: "interleaved", base: Set{2, 4, 6}, ids: []int64{5, 1, 7}, want: Set{1, 2, 4, 5, 6, 7}},
		{name: "dedupes input", base: Set{1}, ids: []int64{2, 2, 1}, want: Set{1, 2}},
		{name: "append past tail", base: Set{1, 2}, ids: []int64{9}, want: Set{1, 2, 9}},
		{name: "prepend", base: Set{5, 6}, ids: []int64{1}, want: Set{1, 5, 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeInsert(tt.base, tt.ids)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestMergeInsert_NoopReturnsSameValue(t *testing.T) {
	base := Of(1, 2, 3)
	require.True(t, Same(base, MergeInsert(base, []int64{2, 3})))
	require.True(t, Same(base, MergeInsert(base, nil)))
}

func TestMergeInsert_DoesNotAliasInput(t *testing.T) {
	base := make(Set, 2, 10)
	base[0], base[1] = 1, 2

	a := MergeInsert(base, []int64{3})
	b := MergeInsert(base, []int64{4})
	require.Equal(t, Set{1, 2, 3}, a)
	require.Equal(t, Set{1, 2, 4}, b)
	require.Equal(t, Set{1, 2}, base)
}

func TestRemove(t *testing.T) {
	base := Of(1, 2, 3, 4)
	require.Equal(t, Set{1, 3}, Remove(base, []int64{2, 4, 99}))
	require.True(t, Same(base, Remove(base, []int64{99})))
	require.Equal(t, Set{1, 2, 3, 4}, base)
}

func TestReplace_EmptyIsPresent(t *testing.T) {
	s := Replace(nil)
	require.NotNil(t, s)
	require.Equal(t, 0, s.Len())
}

func TestRange(t *testing.T) {
	s := Of(10, 20, 30, 40)
	require.Equal(t, []int64{20, 30}, s.Range(15, 30))
	require.Equal(t, []int64{10, 20, 30, 40}, s.Range(0, 100))
	require.Empty(t, s.Range(41, 50))
	require.Nil(t, s.Range(5, 1))

	first, ok := s.First()
	require.True(t, ok)
	require.Equal(t, int64(10), first)
	last, ok := s.Last()
	require.True(t, ok)
	require.Equal(t, int64(40), last)
}

func TestJSON_RestoresInvariant(t *testing.T) {
	var s Set
	require.NoError(t, json.Unmarshal([]byte(`[5,1,5,3]`), &s))
	require.Equal(t, Set{1, 3, 5}, s)

	out, err := json.Marshal(Set(nil))
	require.NoError(t, err)
	require.JSONEq(t, `[]`, string(out))
}

func TestRandomizedOperationsStaySorted(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var s Set
	for round := 0; round < 500; round++ {
		ids := make([]int64, rng.Intn(5))
		for i := range ids {
			ids[i] = int64(rng.Intn(200))
		}
		if rng.Intn(3) == 0 {
			s = Remove(s, ids)
		} else {
			s = MergeInsert(s, ids)
		}
		for i := 1; i < len(s); i++ {
			if s[i] <= s[i-1] {
				t.Fatalf("round %d: not strictly ascending: %v", round, s)
			}
		}
		require.True(t, slices.IsSorted(s))
	}
}
