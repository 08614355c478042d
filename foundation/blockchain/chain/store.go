package chain

import (
	"math/big"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
)

// Status describes where a stored block sits relative to the canonical
// chain.
type Status int

// Set of block statuses.
const (
	StatusSideBranch Status = iota // Valid but never part of the canonical chain.
	StatusCanonical                // Part of the canonical chain.
	StatusOrphaned                 // Was canonical, abandoned by a reorg.
)

// String implements the fmt.Stringer interface.
func (s Status) String() string {
	switch s {
	case StatusCanonical:
		return "canonical"
	case StatusOrphaned:
		return "orphaned"
	default:
		return "side"
	}
}

// MarshalText implements the encoding.TextMarshaler interface.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// node is an entry in the content addressed block store. Every node points
// to its parent so branches share their common history.
type node struct {
	block  database.Block
	hash   string
	parent *node
	work   *big.Int // Cumulative work from genesis through this block.
	status Status
}

func newNode(block database.Block, parent *node) *node {
	work := block.Work()
	if parent != nil {
		work.Add(work, parent.work)
	}

	return &node{
		block:  block,
		hash:   block.Hash(),
		parent: parent,
		work:   work,
		status: StatusSideBranch,
	}
}

func (n *node) number() uint64 {
	return n.block.Header.Number
}

// ancestor walks back from n to the node at the specified number.
func (n *node) ancestor(number uint64) (*node, bool) {
	for cur := n; cur != nil; cur = cur.parent {
		switch {
		case cur.number() == number:
			return cur, true
		case cur.number() < number:
			return nil, false
		}
	}

	return nil, false
}

// ancestorHeaders adapts ancestor for the difficulty controller.
func (n *node) ancestorHeaders(number uint64) (database.BlockHeader, bool) {
	an, ok := n.ancestor(number)
	if !ok {
		return database.BlockHeader{}, false
	}

	return an.block.Header, true
}

// descendsFrom reports whether n is a or is built on top of a.
func (n *node) descendsFrom(a *node) bool {
	for cur := n; cur != nil; cur = cur.parent {
		if cur == a {
			return true
		}
	}

	return false
}

// commonAncestor returns the last node shared by the branches ending at a
// and b. It returns nil when they share none, which can only happen when the
// store is corrupted since every branch roots at genesis.
func commonAncestor(a *node, b *node) *node {
	for a != nil && b != nil && a != b {
		switch {
		case a.number() > b.number():
			a = a.parent
		case b.number() > a.number():
			b = b.parent
		default:
			a, b = a.parent, b.parent
		}
	}

	if a == nil || b == nil {
		return nil
	}

	return a
}

// pathFrom returns the nodes after ancestor up to and including end in
// ascending order. It returns false when end does not descend from ancestor.
func pathFrom(ancestor *node, end *node) ([]*node, bool) {
	var path []*node
	for cur := end; cur != ancestor; cur = cur.parent {
		if cur == nil {
			return nil, false
		}
		path = append(path, cur)
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	return path, true
}
