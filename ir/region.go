package ir

import (
	"github.com/deepnoodle-ai/irkit/errz"
)

// RegionData is the stored form of a region: an ordered list of blocks
// owned by exactly one operation.
type RegionData struct {
	self      Region
	parent    Op
	index     int
	first     Block
	last      Block
	numBlocks int
}

// Handle returns the handle of the region.
func (d *RegionData) Handle() Region { return d.self }

// Parent returns the operation owning the region.
func (d *RegionData) Parent() Op { return d.parent }

// Index returns the position of the region in its parent's region list.
func (d *RegionData) Index() int { return d.index }

// First returns the entry block of the region.
func (d *RegionData) First() Block { return d.first }

// Last returns the last block of the region.
func (d *RegionData) Last() Block { return d.last }

// Len returns the number of blocks in the region.
func (d *RegionData) Len() int { return d.numBlocks }

// Empty reports whether the region holds no blocks.
func (d *RegionData) Empty() bool { return d.numBlocks == 0 }

// BlocksIn returns the blocks of r in order.
func (c *Context) BlocksIn(r Region) ([]Block, error) {
	data, err := c.regionData(r)
	if err != nil {
		return nil, err
	}
	out := make([]Block, 0, data.numBlocks)
	for b := data.first; !b.IsNil(); {
		out = append(out, b)
		bd, err := c.blockData(b)
		if err != nil {
			return nil, err
		}
		b = bd.next
	}
	return out, nil
}

// EntryBlock returns the first block of r.
func (c *Context) EntryBlock(r Region) (Block, bool) {
	data, err := c.regionData(r)
	if err != nil || data.first.IsNil() {
		return Block{}, false
	}
	return data.first, true
}

func (c *Context) linkBlock(rd *RegionData, bd *BlockData, after Block) {
	var next Block
	if after.IsNil() {
		next = rd.first
		rd.first = bd.self
	} else {
		pd, _ := c.blockData(after)
		next = pd.next
		pd.next = bd.self
	}
	if next.IsNil() {
		rd.last = bd.self
	} else {
		nd, _ := c.blockData(next)
		nd.prev = bd.self
	}
	bd.prev = after
	bd.next = next
	bd.parent = rd.self
	rd.numBlocks++
}

func (c *Context) unlinkBlock(bd *BlockData) {
	rd, err := c.regionData(bd.parent)
	if err != nil {
		return
	}
	if bd.prev.IsNil() {
		rd.first = bd.next
	} else if pd, err := c.blockData(bd.prev); err == nil {
		pd.next = bd.next
	}
	if bd.next.IsNil() {
		rd.last = bd.prev
	} else if nd, err := c.blockData(bd.next); err == nil {
		nd.prev = bd.prev
	}
	bd.prev = Block{}
	bd.next = Block{}
	bd.parent = Region{}
	rd.numBlocks--
}

// blockEncloses reports whether r lies inside b through the ownership tree.
func (c *Context) blockEncloses(b Block, r Region) bool {
	for !r.IsNil() {
		rd, err := c.regionData(r)
		if err != nil {
			return false
		}
		od, err := c.opData(rd.parent)
		if err != nil || od.parent.IsNil() {
			return false
		}
		if od.parent == b {
			return true
		}
		bd, err := c.blockData(od.parent)
		if err != nil {
			return false
		}
		r = bd.parent
	}
	return false
}

func (c *Context) prepareBlockInsert(b Block, r Region) (*BlockData, *RegionData, error) {
	if err := c.mutating(); err != nil {
		return nil, nil, err
	}
	bd, err := c.blockData(b)
	if err != nil {
		return nil, nil, err
	}
	rd, err := c.regionData(r)
	if err != nil {
		return nil, nil, err
	}
	if !bd.parent.IsNil() {
		return nil, nil, errz.New(errz.ErrKindInvalidArgument, b.String(), "block is already in %s", bd.parent)
	}
	if c.blockEncloses(b, r) {
		return nil, nil, errz.New(errz.ErrKindInvalidArgument, b.String(), "block encloses %s", r)
	}
	return bd, rd, nil
}

// AppendBlock links detached block b at the end of r.
func (c *Context) AppendBlock(r Region, b Block) error {
	bd, rd, err := c.prepareBlockInsert(b, r)
	if err != nil {
		return err
	}
	c.linkBlock(rd, bd, rd.last)
	return nil
}

// PrependBlock links detached block b at the front of r, making it the
// entry block.
func (c *Context) PrependBlock(r Region, b Block) error {
	bd, rd, err := c.prepareBlockInsert(b, r)
	if err != nil {
		return err
	}
	c.linkBlock(rd, bd, Block{})
	return nil
}

// InsertBlockAfter links detached block b immediately after anchor.
func (c *Context) InsertBlockAfter(anchor, b Block) error {
	ad, err := c.blockData(anchor)
	if err != nil {
		return err
	}
	if ad.parent.IsNil() {
		return errz.New(errz.ErrKindInvalidArgument, anchor.String(), "anchor is detached")
	}
	bd, rd, err := c.prepareBlockInsert(b, ad.parent)
	if err != nil {
		return err
	}
	c.linkBlock(rd, bd, anchor)
	return nil
}

// InsertBlockBefore links detached block b immediately before anchor.
func (c *Context) InsertBlockBefore(anchor, b Block) error {
	ad, err := c.blockData(anchor)
	if err != nil {
		return err
	}
	if ad.parent.IsNil() {
		return errz.New(errz.ErrKindInvalidArgument, anchor.String(), "anchor is detached")
	}
	bd, rd, err := c.prepareBlockInsert(b, ad.parent)
	if err != nil {
		return err
	}
	c.linkBlock(rd, bd, ad.prev)
	return nil
}

// DetachBlock unlinks b from its region. The block stays alive with its
// operations, arguments and predecessor links.
func (c *Context) DetachBlock(b Block) error {
	if err := c.mutating(); err != nil {
		return err
	}
	bd, err := c.blockData(b)
	if err != nil {
		return err
	}
	if bd.parent.IsNil() {
		return nil
	}
	c.unlinkBlock(bd)
	return nil
}

// MoveBlock detaches b and appends it to r.
func (c *Context) MoveBlock(b Block, r Region) error {
	if c.blockEncloses(b, r) {
		return errz.New(errz.ErrKindInvalidArgument, b.String(), "block encloses %s", r)
	}
	if err := c.regions.Check(r.h()); err != nil {
		return err
	}
	if err := c.DetachBlock(b); err != nil {
		return err
	}
	return c.AppendBlock(r, b)
}
