// Package rankindex tracks the set of insertion indices currently held by a
// relaxed queue and answers "how many present indices are smaller than x" in
// O(log n).
//
// The index is a Fenwick (binary indexed) tree over the insertion-index domain
// [0, capacity) backed by a presence bitset. Capacity doubles on demand, so
// callers only need to pass a size hint.
package rankindex

import (
	"errors"
	"fmt"
	"math/bits"
)

var (
	// ErrAlreadyPresent is returned when inserting an index that is already in the set.
	ErrAlreadyPresent = errors.New("rankindex: index already present")
	// ErrNotPresent is returned when removing an index that is not in the set.
	ErrNotPresent = errors.New("rankindex: index not present")
)

const minCapacity = 64

// Index is an order-statistics set of uint64 insertion indices.
// It is not safe for concurrent use; each simulation run owns its own Index.
type Index struct {
	tree    []int32 // 1-based Fenwick tree, len(tree) == capacity+1
	present []uint64
	size    int
}

// New creates an Index sized for roughly hint indices.
func New(hint int) *Index {
	capacity := minCapacity
	for capacity < hint {
		capacity <<= 1
	}
	return &Index{
		tree:    make([]int32, capacity+1),
		present: make([]uint64, capacity/64),
	}
}

// Len returns the number of present indices.
func (x *Index) Len() int {
	return x.size
}

// Cap returns the current size of the index domain.
func (x *Index) Cap() int {
	return len(x.tree) - 1
}

// Contains reports whether idx is present.
func (x *Index) Contains(idx uint64) bool {
	if idx >= uint64(x.Cap()) {
		return false
	}
	return x.present[idx/64]&(1<<(idx%64)) != 0
}

// Insert marks idx as present.
func (x *Index) Insert(idx uint64) error {
	if idx >= uint64(x.Cap()) {
		x.grow(idx)
	}
	if x.Contains(idx) {
		return fmt.Errorf("%w: %d", ErrAlreadyPresent, idx)
	}
	x.present[idx/64] |= 1 << (idx % 64)
	x.add(int(idx)+1, 1)
	x.size++
	return nil
}

// Remove marks idx as absent.
func (x *Index) Remove(idx uint64) error {
	if !x.Contains(idx) {
		return fmt.Errorf("%w: %d", ErrNotPresent, idx)
	}
	x.present[idx/64] &^= 1 << (idx % 64)
	x.add(int(idx)+1, -1)
	x.size--
	return nil
}

// CountLess returns the number of present indices strictly less than idx.
func (x *Index) CountLess(idx uint64) int {
	if idx > uint64(x.Cap()) {
		idx = uint64(x.Cap())
	}
	var sum int32
	for i := int(idx); i > 0; i -= i & -i {
		sum += x.tree[i]
	}
	return int(sum)
}

func (x *Index) add(i int, delta int32) {
	for ; i < len(x.tree); i += i & -i {
		x.tree[i] += delta
	}
}

// grow doubles the domain until idx fits and rebuilds the tree from the
// presence bitset in linear time.
func (x *Index) grow(idx uint64) {
	capacity := x.Cap()
	for uint64(capacity) <= idx {
		capacity <<= 1
	}

	present := make([]uint64, capacity/64)
	copy(present, x.present)

	tree := make([]int32, capacity+1)
	for w, word := range present {
		for word != 0 {
			b := bits.TrailingZeros64(word)
			tree[w*64+b+1] = 1
			word &= word - 1
		}
	}
	for i := 1; i <= capacity; i++ {
		if j := i + (i & -i); j <= capacity {
			tree[j] += tree[i]
		}
	}

	x.tree = tree
	x.present = present
}
