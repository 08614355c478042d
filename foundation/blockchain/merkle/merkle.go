// Copyright 2017 Cameron Bergoon
// https://github.com/cbergoon/merkletree
// Licensed under the MIT License, see LICENCE file for details.
// This code has been reworked into a level based tree using generics.

// Package merkle provides an implementation of a merkle tree for computing
// the transaction root of a block.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"hash"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrNotFound is returned when a value is not part of the tree.
var ErrNotFound = errors.New("unable to find data in tree")

// Hashable represents the behavior concrete data must exhibit to be used in
// the merkle tree.
type Hashable[T any] interface {
	Hash() ([]byte, error)
	Equals(other T) bool
}

// =============================================================================

// Tree represents a merkle tree that uses data of some type T that exhibits the
// behavior defined by the Hashable constraint. Levels[0] holds the leaf hashes
// and the last level holds the root.
type Tree[T Hashable[T]] struct {
	Levels       [][][]byte
	MerkleRoot   []byte
	values       []T
	hashStrategy func() hash.Hash
}

// WithHashStrategy is used to change the default hash strategy of using sha256
// when constructing a new tree.
func WithHashStrategy[T Hashable[T]](hashStrategy func() hash.Hash) func(t *Tree[T]) {
	return func(t *Tree[T]) {
		t.hashStrategy = hashStrategy
	}
}

// NewTree constructs a new merkle tree from the specified values. A tree of
// a single value has a root equal to the hash of that value paired with
// itself.
func NewTree[T Hashable[T]](values []T, options ...func(t *Tree[T])) (*Tree[T], error) {
	if len(values) == 0 {
		return nil, errors.New("cannot construct tree with no content")
	}

	t := Tree[T]{
		values:       values,
		hashStrategy: sha256.New,
	}

	for _, option := range options {
		option(&t)
	}

	leafs := make([][]byte, len(values))
	for i, value := range values {
		h, err := value.Hash()
		if err != nil {
			return nil, err
		}
		leafs[i] = h
	}

	t.Levels = append(t.Levels, leafs)
	for level := leafs; ; {
		next, err := t.combine(level)
		if err != nil {
			return nil, err
		}
		t.Levels = append(t.Levels, next)

		if len(next) == 1 {
			break
		}
		level = next
	}

	t.MerkleRoot = t.Levels[len(t.Levels)-1][0]

	return &t, nil
}

// RootHex converts the merkle root byte hash to a hex encoded string.
func (t *Tree[T]) RootHex() string {
	return hexutil.Encode(t.MerkleRoot)
}

// Values returns the values the tree was constructed with.
func (t *Tree[T]) Values() []T {
	return append([]T(nil), t.values...)
}

// Proof returns the sibling hashes needed to recompute the root from the
// hash of the specified value and, for each sibling, whether it is
// concatenated on the left (0) or the right (1).
func (t *Tree[T]) Proof(data T) ([][]byte, []int64, error) {
	idx := t.indexOf(data)
	if idx == -1 {
		return nil, nil, ErrNotFound
	}

	var proof [][]byte
	var order []int64

	for _, level := range t.Levels[:len(t.Levels)-1] {
		sibling := idx ^ 1
		if sibling >= len(level) {
			sibling = idx
		}

		proof = append(proof, level[sibling])
		if idx%2 == 0 {
			order = append(order, 1)
		} else {
			order = append(order, 0)
		}

		idx /= 2
	}

	return proof, order, nil
}

// VerifyData recomputes the root from the value and its proof and checks it
// matches the root of the tree.
func (t *Tree[T]) VerifyData(data T) error {
	proof, order, err := t.Proof(data)
	if err != nil {
		return err
	}

	current, err := data.Hash()
	if err != nil {
		return err
	}

	for i, sibling := range proof {
		var pair []byte
		switch order[i] {
		case 0:
			pair = append(append(pair, sibling...), current...)
		default:
			pair = append(append(pair, current...), sibling...)
		}

		h := t.hashStrategy()
		if _, err := h.Write(pair); err != nil {
			return err
		}
		current = h.Sum(nil)
	}

	if !bytes.Equal(current, t.MerkleRoot) {
		return errors.New("merkle root is not equivalent to the merkle root calculated on the critical path")
	}

	return nil
}

// MarshalText implements the TextMarshaler interface and produces a panic
// if anyone tries to marshal the Merkle tree. Use the Values function to
// return a slice that can be marshaled.
func (t *Tree[T]) MarshalText() (text []byte, err error) {
	panic("do not marshal the merkle tree, use Values")
}

// =============================================================================

// combine hashes each pair of nodes in the level to produce the level above.
// An odd node at the end of a level is paired with itself.
func (t *Tree[T]) combine(level [][]byte) ([][]byte, error) {
	next := make([][]byte, 0, (len(level)+1)/2)

	for i := 0; i < len(level); i += 2 {
		left, right := level[i], level[i]
		if i+1 < len(level) {
			right = level[i+1]
		}

		h := t.hashStrategy()
		if _, err := h.Write(append(append([]byte{}, left...), right...)); err != nil {
			return nil, err
		}
		next = append(next, h.Sum(nil))
	}

	return next, nil
}

// indexOf returns the leaf position of the value or -1.
func (t *Tree[T]) indexOf(data T) int {
	for i, v := range t.values {
		if v.Equals(data) {
			return i
		}
	}

	return -1
}
