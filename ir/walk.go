package ir

import (
	"slices"

	"github.com/cockroachdb/errors"
)

// WalkOrder selects when the callback of Walk sees an operation relative to
// the operations nested in its regions.
type WalkOrder int

const (
	// PreOrder visits an operation before its nested operations.
	PreOrder WalkOrder = iota
	// PostOrder visits an operation after its nested operations.
	PostOrder
)

// SkipRegions may be returned by a PreOrder walk callback to skip the
// regions of the current operation. A PostOrder callback has already seen
// those regions, so there it only means "keep going". It is never returned
// by Walk.
var SkipRegions = errors.New("skip regions")

// Walk calls fn for root and every operation nested in it. Traversal stops
// at the first error returned by fn, which Walk returns.
func (c *Context) Walk(root Op, order WalkOrder, fn func(op Op) error) error {
	return c.walkOp(root, order, fn)
}

// WalkBlock calls fn for every operation in b and the operations nested in
// them.
func (c *Context) WalkBlock(b Block, order WalkOrder, fn func(op Op) error) error {
	ops, err := c.OpsIn(b)
	if err != nil {
		return err
	}
	for _, op := range ops {
		if err := c.Walk(op, order, fn); err != nil {
			return err
		}
	}
	return nil
}

func (c *Context) walkOp(op Op, order WalkOrder, fn func(op Op) error) error {
	od, err := c.opData(op)
	if err != nil {
		return err
	}
	if order == PreOrder {
		if err := fn(op); err != nil {
			if errors.Is(err, SkipRegions) {
				return nil
			}
			return err
		}
	}
	for _, r := range od.regions {
		blocks, err := c.BlocksIn(r)
		if err != nil {
			return err
		}
		for _, b := range blocks {
			ops, err := c.OpsIn(b)
			if err != nil {
				return err
			}
			for _, child := range ops {
				if err := c.walkOp(child, order, fn); err != nil {
					return err
				}
			}
		}
	}
	if order == PostOrder {
		if err := fn(op); err != nil && !errors.Is(err, SkipRegions) {
			return err
		}
	}
	return nil
}

// Successors returns the control-flow successors of b: the block operands
// of its operations, without duplicates, in first-seen order. The edge set
// is derived on every call and never stored.
func (c *Context) Successors(b Block) ([]Block, error) {
	ops, err := c.OpsIn(b)
	if err != nil {
		return nil, err
	}
	var out []Block
	for _, op := range ops {
		od, _ := c.opData(op)
		for _, s := range od.successors {
			if !s.IsNil() && !slices.Contains(out, s) {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

// Predecessors returns the blocks holding an operation that names b as a
// successor, without duplicates. Detached branch operations are skipped.
func (c *Context) Predecessors(b Block) ([]Block, error) {
	bd, err := c.blockData(b)
	if err != nil {
		return nil, err
	}
	var out []Block
	for _, u := range bd.preds {
		od, err := c.opData(u.User)
		if err != nil || od.parent.IsNil() {
			continue
		}
		if !slices.Contains(out, od.parent) {
			out = append(out, od.parent)
		}
	}
	return out, nil
}

// TopLevel returns every live operation that is not inside a block, in
// allocation order. These are the roots of the ownership forest, including
// operations that were created or detached but not yet inserted.
func (c *Context) TopLevel() []Op {
	var out []Op
	for h, od := range c.ops.All() {
		if od.parent.IsNil() {
			out = append(out, Op(h))
		}
	}
	return out
}

// ParentOp returns the operation whose region holds op.
func (c *Context) ParentOp(op Op) (Op, bool) {
	od, err := c.opData(op)
	if err != nil || od.parent.IsNil() {
		return Op{}, false
	}
	return c.BlockParentOp(od.parent)
}

// BlockParentOp returns the operation whose region holds b.
func (c *Context) BlockParentOp(b Block) (Op, bool) {
	bd, err := c.blockData(b)
	if err != nil || bd.parent.IsNil() {
		return Op{}, false
	}
	rd, err := c.regionData(bd.parent)
	if err != nil {
		return Op{}, false
	}
	return rd.parent, true
}

// IsAncestor reports whether ancestor encloses op. An operation is not its
// own ancestor.
func (c *Context) IsAncestor(ancestor, op Op) bool {
	for {
		parent, ok := c.ParentOp(op)
		if !ok {
			return false
		}
		if parent == ancestor {
			return true
		}
		op = parent
	}
}
