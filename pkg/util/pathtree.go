package util

type (
	// PathTree stores values under hierarchical string paths so that whole
	// subtrees can be removed by prefix
	PathTree[T any] struct {
		root *pathNode[T]
	}

	pathNode[T any] struct {
		children map[string]*pathNode[T]
		value    T
		set      bool
	}
)

// NewPathTree creates an empty path tree
func NewPathTree[T any]() *PathTree[T] {
	return &PathTree[T]{root: newPathNode[T]()}
}

func newPathNode[T any]() *pathNode[T] {
	return &pathNode[T]{children: map[string]*pathNode[T]{}}
}

// Insert stores v at the exact path, replacing any previous value
func (t *PathTree[T]) Insert(path []string, v T) {
	cur := t.root
	for _, seg := range path {
		next, ok := cur.children[seg]
		if !ok {
			next = newPathNode[T]()
			cur.children[seg] = next
		}
		cur = next
	}
	cur.value = v
	cur.set = true
}

// Get returns the value stored at the exact path
func (t *PathTree[T]) Get(path []string) (T, bool) {
	var zero T
	n := t.find(path)
	if n == nil || !n.set {
		return zero, false
	}
	return n.value, true
}

// Remove clears the value at the exact path, pruning empty branches
func (t *PathTree[T]) Remove(path []string) {
	t.root.prune(path)
}

// DetachWith removes the subtree under prefix, calling fn for every value it
// held
func (t *PathTree[T]) DetachWith(prefix []string, fn func(T)) {
	var n *pathNode[T]
	if len(prefix) == 0 {
		n = t.root
		t.root = newPathNode[T]()
	} else {
		parent := t.find(prefix[:len(prefix)-1])
		if parent == nil {
			return
		}
		last := prefix[len(prefix)-1]
		n = parent.children[last]
		delete(parent.children, last)
	}
	if n != nil {
		n.each(fn)
	}
}

// Values returns every value stored in the tree
func (t *PathTree[T]) Values() []T {
	var res []T
	t.root.each(func(v T) {
		res = append(res, v)
	})
	return res
}

func (t *PathTree[T]) find(path []string) *pathNode[T] {
	cur := t.root
	for _, seg := range path {
		next, ok := cur.children[seg]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

func (n *pathNode[T]) prune(path []string) bool {
	if len(path) == 0 {
		var zero T
		n.value = zero
		n.set = false
		return len(n.children) == 0
	}
	child, ok := n.children[path[0]]
	if !ok {
		return false
	}
	if child.prune(path[1:]) {
		delete(n.children, path[0])
	}
	return !n.set && len(n.children) == 0
}

func (n *pathNode[T]) each(fn func(T)) {
	if n.set {
		fn(n.value)
	}
	for _, c := range n.children {
		c.each(fn)
	}
}
