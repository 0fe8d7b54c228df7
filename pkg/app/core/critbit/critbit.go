// Package critbit implements an ordered map from uint64 keys to values as a
// crit-bit (PATRICIA) trie. Nodes live in two index-addressed arenas, so a
// leaf index handed out by Insert or Find stays valid until that leaf is removed.
package critbit

import (
	"errors"
	"math"
	"math/bits"
)

var (
	ErrKeyExists    = errors.New("critbit: key already exists")
	ErrEmptyTree    = errors.New("critbit: tree is empty")
	ErrInvalidIndex = errors.New("critbit: invalid leaf index")
)

// ref addresses a node in one of the two arenas.
// 0 is the nil reference, internal node i is i+1, leaf i is MaxUint64-i.
type ref uint64

const (
	nilRef    ref = 0
	partition ref = 1 << 63
)

func internalRef(i int) ref { return ref(i + 1) }
func leafRef(i int) ref     { return ref(math.MaxUint64) - ref(i) }

func (r ref) isLeaf() bool  { return r >= partition }
func (r ref) internal() int { return int(r) - 1 }
func (r ref) leaf() int     { return int(ref(math.MaxUint64) - r) }

type internalNode struct {
	mask   uint64 // single bit: the highest bit on which the two subtrees differ
	left   ref
	right  ref
	parent ref
}

func (n *internalNode) child(key uint64) ref {
	if key&n.mask != 0 {
		return n.right
	}
	return n.left
}

type leafNode[V any] struct {
	key    uint64
	value  V
	parent ref
	live   bool
}

// Tree is not safe for concurrent use.
type Tree[V any] struct {
	root          ref
	internals     []internalNode
	leaves        []leafNode[V]
	freeInternals []int
	freeLeaves    []int
	size          int
}

func New[V any]() *Tree[V] {
	return &Tree[V]{}
}

// Len returns the number of leaves.
func (t *Tree[V]) Len() int { return t.size }

func (t *Tree[V]) IsEmpty() bool { return t.size == 0 }

// Insert adds key with value and returns the leaf index.
func (t *Tree[V]) Insert(key uint64, value V) (int, error) {
	if t.root == nilRef {
		li := t.allocLeaf(key, value, nilRef)
		t.root = leafRef(li)
		t.size++
		return li, nil
	}

	closest := t.leaves[t.closestLeaf(key)].key
	if closest == key {
		return 0, ErrKeyExists
	}
	mask := uint64(1) << (bits.Len64(key^closest) - 1)

	// Walk down while the node splits on a higher bit than the new one.
	parent := nilRef
	cur := t.root
	for !cur.isLeaf() {
		n := &t.internals[cur.internal()]
		if n.mask < mask {
			break
		}
		parent = cur
		cur = n.child(key)
	}

	li := t.allocLeaf(key, value, nilRef)
	ni := t.allocInternal()
	node := internalRef(ni)

	in := internalNode{mask: mask, parent: parent}
	if key&mask != 0 {
		in.left, in.right = cur, leafRef(li)
	} else {
		in.left, in.right = leafRef(li), cur
	}
	t.internals[ni] = in
	t.leaves[li].parent = node
	t.setParent(cur, node)
	if parent == nilRef {
		t.root = node
	} else {
		t.replaceChild(parent, cur, node)
	}
	t.size++
	return li, nil
}

// Find returns the leaf index holding key.
func (t *Tree[V]) Find(key uint64) (int, bool) {
	if t.root == nilRef {
		return 0, false
	}
	li := t.closestLeaf(key)
	if t.leaves[li].key != key {
		return 0, false
	}
	return li, true
}

// Borrow returns the value stored at leaf index idx.
func (t *Tree[V]) Borrow(idx int) (V, bool) {
	if !t.valid(idx) {
		var zero V
		return zero, false
	}
	return t.leaves[idx].value, true
}

// BorrowMut returns a pointer to the value at leaf index idx, or nil.
// The pointer is invalidated by the next Insert.
func (t *Tree[V]) BorrowMut(idx int) *V {
	if !t.valid(idx) {
		return nil
	}
	return &t.leaves[idx].value
}

// Key returns the key stored at leaf index idx.
func (t *Tree[V]) Key(idx int) (uint64, bool) {
	if !t.valid(idx) {
		return 0, false
	}
	return t.leaves[idx].key, true
}

// MinLeaf returns the smallest key and its leaf index.
func (t *Tree[V]) MinLeaf() (uint64, int, error) {
	if t.root == nilRef {
		return 0, 0, ErrEmptyTree
	}
	li := t.leftmost(t.root)
	return t.leaves[li].key, li, nil
}

// MaxLeaf returns the largest key and its leaf index.
func (t *Tree[V]) MaxLeaf() (uint64, int, error) {
	if t.root == nilRef {
		return 0, 0, ErrEmptyTree
	}
	li := t.rightmost(t.root)
	return t.leaves[li].key, li, nil
}

// NextLeaf returns the smallest key greater than key. key must be present.
func (t *Tree[V]) NextLeaf(key uint64) (uint64, int, bool) {
	idx, ok := t.Find(key)
	if !ok {
		return 0, 0, false
	}
	next, ok := t.successor(idx)
	if !ok {
		return 0, 0, false
	}
	return t.leaves[next].key, next, true
}

// PreviousLeaf returns the largest key smaller than key. key must be present.
func (t *Tree[V]) PreviousLeaf(key uint64) (uint64, int, bool) {
	idx, ok := t.Find(key)
	if !ok {
		return 0, 0, false
	}
	prev, ok := t.predecessor(idx)
	if !ok {
		return 0, 0, false
	}
	return t.leaves[prev].key, prev, true
}

// Ascend calls fn for every leaf in increasing key order until fn returns false.
func (t *Tree[V]) Ascend(fn func(key uint64, idx int) bool) {
	if t.root == nilRef {
		return
	}
	for li, ok := t.leftmost(t.root), true; ok; li, ok = t.successor(li) {
		if !fn(t.leaves[li].key, li) {
			return
		}
	}
}

// Descend calls fn for every leaf in decreasing key order until fn returns false.
func (t *Tree[V]) Descend(fn func(key uint64, idx int) bool) {
	if t.root == nilRef {
		return
	}
	for li, ok := t.rightmost(t.root), true; ok; li, ok = t.predecessor(li) {
		if !fn(t.leaves[li].key, li) {
			return
		}
	}
}

// RemoveLeafByIndex deletes the leaf at idx and returns its value.
func (t *Tree[V]) RemoveLeafByIndex(idx int) (V, error) {
	if !t.valid(idx) {
		var zero V
		return zero, ErrInvalidIndex
	}
	l := t.leaves[idx]
	p := l.parent
	if p == nilRef {
		t.root = nilRef
	} else {
		pn := t.internals[p.internal()]
		sibling := pn.left
		if sibling == leafRef(idx) {
			sibling = pn.right
		}
		t.setParent(sibling, pn.parent)
		if pn.parent == nilRef {
			t.root = sibling
		} else {
			t.replaceChild(pn.parent, p, sibling)
		}
		t.freeInternal(p.internal())
	}
	t.freeLeaf(idx)
	t.size--
	return l.value, nil
}

func (t *Tree[V]) valid(idx int) bool {
	return idx >= 0 && idx < len(t.leaves) && t.leaves[idx].live
}

func (t *Tree[V]) closestLeaf(key uint64) int {
	cur := t.root
	for !cur.isLeaf() {
		cur = t.internals[cur.internal()].child(key)
	}
	return cur.leaf()
}

func (t *Tree[V]) leftmost(r ref) int {
	for !r.isLeaf() {
		r = t.internals[r.internal()].left
	}
	return r.leaf()
}

func (t *Tree[V]) rightmost(r ref) int {
	for !r.isLeaf() {
		r = t.internals[r.internal()].right
	}
	return r.leaf()
}

func (t *Tree[V]) successor(idx int) (int, bool) {
	cur := leafRef(idx)
	p := t.leaves[idx].parent
	for p != nilRef {
		n := &t.internals[p.internal()]
		if n.left == cur {
			return t.leftmost(n.right), true
		}
		cur, p = p, n.parent
	}
	return 0, false
}

func (t *Tree[V]) predecessor(idx int) (int, bool) {
	cur := leafRef(idx)
	p := t.leaves[idx].parent
	for p != nilRef {
		n := &t.internals[p.internal()]
		if n.right == cur {
			return t.rightmost(n.left), true
		}
		cur, p = p, n.parent
	}
	return 0, false
}

func (t *Tree[V]) setParent(r, parent ref) {
	if r.isLeaf() {
		t.leaves[r.leaf()].parent = parent
	} else {
		t.internals[r.internal()].parent = parent
	}
}

func (t *Tree[V]) replaceChild(parent, old, repl ref) {
	n := &t.internals[parent.internal()]
	if n.left == old {
		n.left = repl
	} else {
		n.right = repl
	}
}

func (t *Tree[V]) allocLeaf(key uint64, value V, parent ref) int {
	l := leafNode[V]{key: key, value: value, parent: parent, live: true}
	if n := len(t.freeLeaves); n > 0 {
		idx := t.freeLeaves[n-1]
		t.freeLeaves = t.freeLeaves[:n-1]
		t.leaves[idx] = l
		return idx
	}
	t.leaves = append(t.leaves, l)
	return len(t.leaves) - 1
}

func (t *Tree[V]) freeLeaf(idx int) {
	t.leaves[idx] = leafNode[V]{}
	t.freeLeaves = append(t.freeLeaves, idx)
}

func (t *Tree[V]) allocInternal() int {
	if n := len(t.freeInternals); n > 0 {
		idx := t.freeInternals[n-1]
		t.freeInternals = t.freeInternals[:n-1]
		return idx
	}
	t.internals = append(t.internals, internalNode{})
	return len(t.internals) - 1
}

func (t *Tree[V]) freeInternal(idx int) {
	t.internals[idx] = internalNode{}
	t.freeInternals = append(t.freeInternals, idx)
}
