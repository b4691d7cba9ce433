package ir

import (
	"github.com/deepnoodle-ai/irkit/errz"
)

// subtree is the set of entities owned, directly or transitively, by an
// erase root. Slices are in post-order: children before their owner.
type subtree struct {
	ops      []Op
	blocks   []Block
	regions  []Region
	opSet    map[Op]struct{}
	blockSet map[Block]struct{}
}

func newSubtree() *subtree {
	return &subtree{opSet: map[Op]struct{}{}, blockSet: map[Block]struct{}{}}
}

func (s *subtree) hasOp(op Op) bool {
	_, ok := s.opSet[op]
	return ok
}

func (s *subtree) hasBlock(b Block) bool {
	_, ok := s.blockSet[b]
	return ok
}

func (c *Context) collectOp(s *subtree, op Op) error {
	od, err := c.opData(op)
	if err != nil {
		return err
	}
	for _, r := range od.regions {
		rd, err := c.regionData(r)
		if err != nil {
			return err
		}
		for b := rd.first; !b.IsNil(); {
			if err := c.collectBlock(s, b); err != nil {
				return err
			}
			bd, _ := c.blockData(b)
			b = bd.next
		}
		s.regions = append(s.regions, r)
	}
	s.ops = append(s.ops, op)
	s.opSet[op] = struct{}{}
	return nil
}

func (c *Context) collectBlock(s *subtree, b Block) error {
	bd, err := c.blockData(b)
	if err != nil {
		return err
	}
	for op := bd.first; !op.IsNil(); {
		if err := c.collectOp(s, op); err != nil {
			return err
		}
		od, _ := c.opData(op)
		op = od.next
	}
	s.blocks = append(s.blocks, b)
	s.blockSet[b] = struct{}{}
	return nil
}

// externalUses calls fn for every use of a value defined in s by an
// operation outside s, and for every successor slot outside s naming a
// block in s. fn receives the use and whether it is a successor slot.
func (c *Context) externalUses(s *subtree, fn func(u Use, successor bool)) {
	for _, op := range s.ops {
		od, _ := c.opData(op)
		for _, def := range od.results {
			for _, u := range def.uses {
				if !s.hasOp(u.User) {
					fn(u, false)
				}
			}
		}
	}
	for _, b := range s.blocks {
		bd, _ := c.blockData(b)
		for _, def := range bd.args {
			for _, u := range def.uses {
				if !s.hasOp(u.User) {
					fn(u, false)
				}
			}
		}
		for _, u := range bd.preds {
			if !s.hasOp(u.User) {
				fn(u, true)
			}
		}
	}
}

func (c *Context) checkNoExternalUses(s *subtree, entity string) error {
	var values, branches int
	c.externalUses(s, func(_ Use, successor bool) {
		if successor {
			branches++
		} else {
			values++
		}
	})
	switch {
	case values > 0:
		return errz.New(errz.ErrKindDanglingUse, entity, "%d live uses remain", values)
	case branches > 0:
		return errz.New(errz.ErrKindDanglingUse, entity, "block is the target of %d branches", branches)
	}
	return nil
}

// release deregisters every operand and successor use made by s and frees
// its entities. The caller has already unlinked the root.
func (c *Context) release(s *subtree) {
	for _, op := range s.ops {
		od, _ := c.opData(op)
		for i, v := range od.operands {
			if v.IsNil() {
				continue
			}
			if owner, ok := v.DefiningOp(); ok && s.hasOp(owner) {
				continue
			}
			if owner, ok := v.OwnerBlock(); ok && s.hasBlock(owner) {
				continue
			}
			c.removeUse(v, Use{User: op, Index: i})
		}
		for i, b := range od.successors {
			if b.IsNil() || s.hasBlock(b) {
				continue
			}
			c.removePred(b, Use{User: op, Index: i})
		}
	}
	for _, op := range s.ops {
		_ = c.ops.Erase(op.h())
		c.listener.OperationErased(op)
	}
	for _, b := range s.blocks {
		_ = c.blocks.Erase(b.h())
		c.listener.BlockErased(b)
	}
	for _, r := range s.regions {
		_ = c.regions.Erase(r.h())
	}
}

// EraseOperation erases op together with every region, block and operation
// it owns. It fails with errz.ErrDanglingUse if a value defined inside the
// subtree is still read from outside it, or if a block inside the subtree
// is still the target of an outside branch. Nothing changes on failure.
func (c *Context) EraseOperation(op Op) error {
	if err := c.mutating(); err != nil {
		return err
	}
	od, err := c.opData(op)
	if err != nil {
		return err
	}
	name := c.describe(op)
	s := newSubtree()
	if err := c.collectOp(s, op); err != nil {
		return err
	}
	if err := c.checkNoExternalUses(s, name); err != nil {
		return err
	}
	if !od.parent.IsNil() {
		c.unlinkOp(od)
	}
	c.release(s)
	c.log.Debug().
		Str("op", name).
		Int("ops", len(s.ops)).
		Int("blocks", len(s.blocks)).
		Int("regions", len(s.regions)).
		Msg("erased operation")
	return nil
}

// EraseBlock erases b and everything it owns, unlinking it from its region.
// The same use rules as EraseOperation apply.
func (c *Context) EraseBlock(b Block) error {
	if err := c.mutating(); err != nil {
		return err
	}
	bd, err := c.blockData(b)
	if err != nil {
		return err
	}
	s := newSubtree()
	if err := c.collectBlock(s, b); err != nil {
		return err
	}
	if err := c.checkNoExternalUses(s, b.String()); err != nil {
		return err
	}
	if !bd.parent.IsNil() {
		c.unlinkBlock(bd)
	}
	c.release(s)
	c.log.Debug().
		Str("block", b.String()).
		Int("ops", len(s.ops)).
		Int("blocks", len(s.blocks)).
		Msg("erased block")
	return nil
}

// UnsafeForceErase erases op even if values it defines are still in use.
// Every outside operand slot reading such a value is set to the zero Value
// and every outside successor slot naming an erased block is set to the
// zero Block. The graph is then malformed until the caller repairs those
// slots; the verifier reports them as null operands or successors.
// It returns the number of severed slots.
func (c *Context) UnsafeForceErase(op Op) (int, error) {
	if err := c.mutating(); err != nil {
		return 0, err
	}
	od, err := c.opData(op)
	if err != nil {
		return 0, err
	}
	name := c.describe(op)
	s := newSubtree()
	if err := c.collectOp(s, op); err != nil {
		return 0, err
	}
	type severed struct {
		use       Use
		successor bool
	}
	var cut []severed
	c.externalUses(s, func(u Use, successor bool) {
		cut = append(cut, severed{use: u, successor: successor})
	})
	for _, sv := range cut {
		user, err := c.opData(sv.use.User)
		if err != nil {
			continue
		}
		if sv.successor {
			user.successors[sv.use.Index] = Block{}
			continue
		}
		old := user.operands[sv.use.Index]
		user.operands[sv.use.Index] = Value{}
		c.listener.OperandChanged(sv.use.User, sv.use.Index, old, Value{})
	}
	if !od.parent.IsNil() {
		c.unlinkOp(od)
	}
	c.release(s)
	c.log.Warn().
		Str("op", name).
		Int("severed", len(cut)).
		Int("ops", len(s.ops)).
		Msg("force erased operation")
	return len(cut), nil
}

// ReplaceOperation rewrites every use of the results of op to read the
// corresponding value of values and then erases op. The number of values
// must match the number of results.
func (c *Context) ReplaceOperation(op Op, values []Value) error {
	if err := c.mutating(); err != nil {
		return err
	}
	od, err := c.opData(op)
	if err != nil {
		return err
	}
	if len(values) != len(od.results) {
		return errz.New(errz.ErrKindArityOrTypeMismatch, c.describe(op),
			"expected %d replacement values, got %d", len(od.results), len(values))
	}
	s := newSubtree()
	if err := c.collectOp(s, op); err != nil {
		return err
	}
	for i, v := range values {
		if err := c.CheckValue(v); err != nil {
			return err
		}
		if owner, ok := v.DefiningOp(); ok && s.hasOp(owner) {
			return errz.New(errz.ErrKindInvalidArgument, c.describe(op),
				"replacement value %d is defined inside the operation", i)
		}
		if owner, ok := v.OwnerBlock(); ok && s.hasBlock(owner) {
			return errz.New(errz.ErrKindInvalidArgument, c.describe(op),
				"replacement value %d is defined inside the operation", i)
		}
	}
	var blocking int
	c.externalUses(s, func(u Use, successor bool) {
		if successor {
			blocking++
			return
		}
		user, _ := c.opData(u.User)
		if v := user.operands[u.Index]; v.op != op {
			blocking++
		}
	})
	if blocking > 0 {
		return errz.New(errz.ErrKindDanglingUse, c.describe(op),
			"%d uses of nested values or blocks remain", blocking)
	}
	for i, v := range values {
		for _, u := range od.results[i].uses {
			user, err := c.opData(u.User)
			if err != nil {
				return err
			}
			if err := c.checkOperand(user.def, u.Index, v); err != nil {
				return err
			}
		}
	}
	for i, v := range values {
		if err := c.ReplaceAllUses(od.Result(i), v); err != nil {
			return err
		}
	}
	return c.EraseOperation(op)
}
