package util_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flownode/pkg/util"
)

func TestPathTreeInsertGet(t *testing.T) {
	tree := util.NewPathTree[int]()
	tree.Insert([]string{"p1", "n1"}, 1)
	tree.Insert([]string{"p1", "n2"}, 2)
	tree.Insert([]string{"p1", "n1"}, 3)

	v, ok := tree.Get([]string{"p1", "n1"})
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	_, ok = tree.Get([]string{"p1"})
	assert.False(t, ok)
	_, ok = tree.Get([]string{"p2", "n1"})
	assert.False(t, ok)
}

func TestPathTreeRemove(t *testing.T) {
	tree := util.NewPathTree[int]()
	tree.Insert([]string{"p1", "n1"}, 1)
	tree.Insert([]string{"p1", "n2"}, 2)

	tree.Remove([]string{"p1", "n1"})
	tree.Remove([]string{"p9"})

	_, ok := tree.Get([]string{"p1", "n1"})
	assert.False(t, ok)
	assert.ElementsMatch(t, []int{2}, tree.Values())
}

func TestPathTreeDetachWith(t *testing.T) {
	tree := util.NewPathTree[int]()
	tree.Insert([]string{"p1", "n1"}, 1)
	tree.Insert([]string{"p1", "n2", "b"}, 2)
	tree.Insert([]string{"p2", "n3"}, 3)

	var got []int
	tree.DetachWith([]string{"p1"}, func(v int) {
		got = append(got, v)
	})
	assert.ElementsMatch(t, []int{1, 2}, got)
	assert.ElementsMatch(t, []int{3}, tree.Values())

	got = nil
	tree.DetachWith([]string{"missing", "x"}, func(v int) {
		got = append(got, v)
	})
	assert.Empty(t, got)

	tree.DetachWith(nil, func(v int) {
		got = append(got, v)
	})
	assert.Equal(t, []int{3}, got)
	assert.Empty(t, tree.Values())
}
