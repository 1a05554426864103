package util

// Set is a generic set of comparable values
type Set[T comparable] map[T]struct{}

// SetOf creates a set holding the given elements
func SetOf[T comparable](elems ...T) Set[T] {
	res := make(Set[T], len(elems))
	for _, e := range elems {
		res[e] = struct{}{}
	}
	return res
}

// Add inserts an element
func (s Set[T]) Add(elem T) {
	s[elem] = struct{}{}
}

// Remove deletes an element
func (s Set[T]) Remove(elem T) {
	delete(s, elem)
}

// Contains reports whether the element is present
func (s Set[T]) Contains(elem T) bool {
	_, ok := s[elem]
	return ok
}

// Len returns the number of elements
func (s Set[T]) Len() int {
	return len(s)
}

// IsEmpty reports whether the set has no elements
func (s Set[T]) IsEmpty() bool {
	return len(s) == 0
}
