package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateBlock indicates the block id is already present in the tree.
	ErrDuplicateBlock = errors.New("block already in tree")

	// ErrUnknownParent indicates the parent of a block is not in the tree.
	ErrUnknownParent = errors.New("parent not in tree")

	// ErrDepthMismatch indicates a block's depth is not its parent's depth + 1.
	ErrDepthMismatch = errors.New("depth does not follow parent")

	// ErrWrongNamespace indicates a block id from another chain kind.
	ErrWrongNamespace = errors.New("block id from another namespace")

	// ErrUnknownBlock indicates a lookup of an id the tree does not hold.
	ErrUnknownBlock = errors.New("block not in tree")

	// ErrNoCommonAncestor indicates two blocks live in disjoint trees of the forest.
	ErrNoCommonAncestor = errors.New("no common ancestor")
)

const noNode = -1

// treeNode is an arena slot. parent and children are arena indices.
type treeNode[B Block] struct {
	block    B
	parent   int
	children []int
}

// BlockTree is a parent-linked forest of blocks from a single namespace, as
// seen by one peer. Nodes are kept in an arena and addressed by index; blocks
// are never removed.
type BlockTree[B Block] struct {
	kind  ChainKind
	nodes []treeNode[B]
	index map[BlockID]int
}

// NewBlockTree creates an empty tree for the given namespace.
func NewBlockTree[B Block](kind ChainKind) *BlockTree[B] {
	return &BlockTree[B]{
		kind:  kind,
		index: make(map[BlockID]int),
	}
}

// Kind returns the namespace of the tree.
func (t *BlockTree[B]) Kind() ChainKind {
	return t.kind
}

// Len returns the number of blocks in the tree.
func (t *BlockTree[B]) Len() int {
	return len(t.nodes)
}

// Has reports whether the tree holds the given id.
func (t *BlockTree[B]) Has(id BlockID) bool {
	_, ok := t.index[id]
	return ok
}

// Get returns the block with the given id.
func (t *BlockTree[B]) Get(id BlockID) (B, bool) {
	i, ok := t.index[id]
	if !ok {
		var zero B
		return zero, false
	}
	return t.nodes[i].block, true
}

// Insert links a block under its parent. Genesis blocks become new roots.
// The block is rejected if its id is already known, its parent is unknown,
// or its depth does not equal the parent's depth + 1.
func (t *BlockTree[B]) Insert(b B) error {
	h := b.header()
	if h.ID.Kind != t.kind {
		return fmt.Errorf("%w: %s in %s tree", ErrWrongNamespace, h.ID, t.kind)
	}
	if _, ok := t.index[h.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateBlock, h.ID)
	}

	parent := noNode
	if h.HasParent {
		p, ok := t.index[h.Parent]
		if !ok {
			return fmt.Errorf("%w: %s (parent %s)", ErrUnknownParent, h.ID, h.Parent)
		}
		if want := t.nodes[p].block.header().Depth + 1; h.Depth != want {
			return fmt.Errorf("%w: %s has depth %d, want %d", ErrDepthMismatch, h.ID, h.Depth, want)
		}
		parent = p
	} else if h.Depth != 0 {
		return fmt.Errorf("%w: genesis %s has depth %d", ErrDepthMismatch, h.ID, h.Depth)
	}

	i := len(t.nodes)
	t.nodes = append(t.nodes, treeNode[B]{block: b, parent: parent})
	t.index[h.ID] = i
	if parent != noNode {
		t.nodes[parent].children = append(t.nodes[parent].children, i)
	}
	return nil
}

// Each calls fn for every block in insertion order.
func (t *BlockTree[B]) Each(fn func(B)) {
	for i := range t.nodes {
		fn(t.nodes[i].block)
	}
}

// Parent returns the parent block of id, if both are known.
func (t *BlockTree[B]) Parent(id BlockID) (B, bool) {
	var zero B
	i, ok := t.index[id]
	if !ok || t.nodes[i].parent == noNode {
		return zero, false
	}
	return t.nodes[t.nodes[i].parent].block, true
}

// Children returns the direct children of id in insertion order.
func (t *BlockTree[B]) Children(id BlockID) []B {
	i, ok := t.index[id]
	if !ok {
		return nil
	}
	out := make([]B, len(t.nodes[i].children))
	for k, c := range t.nodes[i].children {
		out[k] = t.nodes[c].block
	}
	return out
}

// Walk visits id and then each of its ancestors up to the root, stopping early
// when fn returns false.
func (t *BlockTree[B]) Walk(id BlockID, fn func(B) bool) error {
	i, ok := t.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBlock, id)
	}
	for ; i != noNode; i = t.nodes[i].parent {
		if !fn(t.nodes[i].block) {
			return nil
		}
	}
	return nil
}

// Reachable reports whether ancestor lies on the parent chain of id
// (a block is reachable from itself).
func (t *BlockTree[B]) Reachable(ancestor, id BlockID) bool {
	found := false
	_ = t.Walk(id, func(b B) bool {
		found = b.header().ID == ancestor
		return !found
	})
	return found
}

// Joint returns the lowest common ancestor of two blocks.
func (t *BlockTree[B]) Joint(a, b BlockID) (BlockID, error) {
	ai, ok := t.index[a]
	if !ok {
		return BlockID{}, fmt.Errorf("%w: %s", ErrUnknownBlock, a)
	}
	bi, ok := t.index[b]
	if !ok {
		return BlockID{}, fmt.Errorf("%w: %s", ErrUnknownBlock, b)
	}
	j, _, err := t.joint(ai, bi)
	if err != nil {
		return BlockID{}, err
	}
	return t.nodes[j].block.header().ID, nil
}

// joint walks both ancestor chains one step at a time until a node visited on
// one side shows up on the other side. It returns the joint and the path from
// newHead up to, but excluding, the joint.
func (t *BlockTree[B]) joint(oldHead, newHead int) (int, []int, error) {
	visitedOld := make(map[int]struct{})
	newPos := make(map[int]int)
	var newPath []int

	o, n := oldHead, newHead
	for o != noNode || n != noNode {
		if n != noNode {
			if _, ok := visitedOld[n]; ok {
				return n, newPath, nil
			}
			newPos[n] = len(newPath)
			newPath = append(newPath, n)
			n = t.nodes[n].parent
		}
		if o != noNode {
			if p, ok := newPos[o]; ok {
				return o, newPath[:p], nil
			}
			visitedOld[o] = struct{}{}
			o = t.nodes[o].parent
		}
	}
	return noNode, nil, ErrNoCommonAncestor
}

// Reorg summarizes a branch switch.
type Reorg struct {
	From     BlockID
	To       BlockID
	Joint    BlockID
	Detached int
	Attached int
}

// Switch moves a head from oldHead to newHead. onDetach is called for every
// block from oldHead up to the joint (exclusive), head first; onAttach is then
// called for every block from just below the joint down to newHead. Blocks on
// the common prefix are not touched. Either hook may be nil.
func (t *BlockTree[B]) Switch(oldHead, newHead BlockID, onDetach, onAttach func(B)) (Reorg, error) {
	oi, ok := t.index[oldHead]
	if !ok {
		return Reorg{}, fmt.Errorf("%w: old head %s", ErrUnknownBlock, oldHead)
	}
	ni, ok := t.index[newHead]
	if !ok {
		return Reorg{}, fmt.Errorf("%w: new head %s", ErrUnknownBlock, newHead)
	}

	j, newPath, err := t.joint(oi, ni)
	if err != nil {
		return Reorg{}, fmt.Errorf("switch %s -> %s: %w", oldHead, newHead, err)
	}

	r := Reorg{From: oldHead, To: newHead, Joint: t.nodes[j].block.header().ID}
	for i := oi; i != j; i = t.nodes[i].parent {
		if onDetach != nil {
			onDetach(t.nodes[i].block)
		}
		r.Detached++
	}
	for k := len(newPath) - 1; k >= 0; k-- {
		if onAttach != nil {
			onAttach(t.nodes[newPath[k]].block)
		}
		r.Attached++
	}
	return r, nil
}
