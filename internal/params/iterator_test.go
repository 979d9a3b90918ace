package params

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextIterator_SplitsAndTrims(t *testing.T) {
	it := NewTextIterator([]string{"alice,1\r\n", "bob,2\n", "carol"}, "name,age", ",", false)

	require.Equal(t, 3, it.Len())
	assert.Equal(t, []string{"name", "age"}, it.Keys())

	v, ok := it.At("age", 0)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok = it.At("age", 2)
	assert.False(t, ok, "short row has no age column")

	_, ok = it.At("name", 3)
	assert.False(t, ok, "row past the end")

	_, ok = it.At("missing", 0)
	assert.False(t, ok)
}

func TestIterator_PerUserCursors(t *testing.T) {
	it := NewTextIterator([]string{"a", "b", "c"}, "v", ",", false)

	_, ok := it.Get("v", 1)
	assert.False(t, ok, "no row before the first Next")

	it.Next(1)
	it.Next(1)
	it.Next(2)

	v, _ := it.Get("v", 1)
	assert.Equal(t, "b", v)
	v, _ = it.Get("v", 2)
	assert.Equal(t, "a", v)
}

func TestIterator_Wraps(t *testing.T) {
	it := NewListIterator([][]string{{"x"}, {"y"}}, "v", false)

	var got []string
	for i := 0; i < 5; i++ {
		it.Next(1)
		v, _ := it.Get("v", 1)
		got = append(got, v)
	}
	assert.Equal(t, []string{"x", "y", "x", "y", "x"}, got)
}

func TestIterator_SharedAdvancesOneCounter(t *testing.T) {
	lines := make([]string, 100)
	for i := range lines {
		lines[i] = "row"
	}
	it := NewTextIterator(lines, "v", ",", true)

	const users = 8
	var wg sync.WaitGroup
	for vu := 1; vu <= users; vu++ {
		wg.Add(1)
		go func(vu int) {
			defer wg.Done()
			it.Next(vu)
		}(vu)
	}
	wg.Wait()

	// Cursor starts at -1, so N calls leave it at N-1 for every user.
	for vu := 1; vu <= users; vu++ {
		assert.Equal(t, users-1, it.Cursor(vu))
	}
}

func TestIterator_EmptyData(t *testing.T) {
	it := NewTextIterator(nil, "v", ",", true)
	it.Next(1)
	assert.Equal(t, -1, it.Cursor(1))
	_, ok := it.Get("v", 1)
	assert.False(t, ok)
}
