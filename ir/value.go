package ir

import (
	"slices"

	"github.com/deepnoodle-ai/irkit/errz"
)

// valueDef is the definition record of a value: its type and the operand
// slots currently reading it.
type valueDef struct {
	typ  Type
	uses []Use
	id   uint32
}

// valueDef resolves v to its definition record. The pointer is only valid
// until the defining entity's result or argument list changes.
func (c *Context) valueDef(v Value) (*valueDef, error) {
	switch {
	case v.IsResult():
		data, err := c.opData(v.op)
		if err != nil {
			return nil, err
		}
		if int(v.index) >= len(data.results) {
			return nil, errz.New(errz.ErrKindStaleHandle, v.String(), "result index out of range")
		}
		return &data.results[v.index], nil
	case v.IsBlockArgument():
		data, err := c.blockData(v.block)
		if err != nil {
			return nil, err
		}
		if int(v.index) >= len(data.args) {
			return nil, errz.New(errz.ErrKindStaleHandle, v.String(), "argument index out of range")
		}
		if data.args[v.index].id != v.argID {
			return nil, errz.New(errz.ErrKindStaleHandle, v.String(), "argument was erased or renumbered")
		}
		return &data.args[v.index], nil
	default:
		return nil, errz.New(errz.ErrKindStaleHandle, "value", "nil value")
	}
}

// CheckValue returns an error if v does not resolve in c.
func (c *Context) CheckValue(v Value) error {
	_, err := c.valueDef(v)
	return err
}

// ValueType returns the type of v.
func (c *Context) ValueType(v Value) (Type, error) {
	def, err := c.valueDef(v)
	if err != nil {
		return Type{}, err
	}
	return def.typ, nil
}

// SetValueType changes the type of v in place. Users are not re-checked;
// run the verifier afterwards if their constraints may be affected.
func (c *Context) SetValueType(v Value, t Type) error {
	if err := c.mutating(); err != nil {
		return err
	}
	def, err := c.valueDef(v)
	if err != nil {
		return err
	}
	if err := c.checkType(t); err != nil {
		return err
	}
	def.typ = t
	return nil
}

// Uses returns a copy of the uses of v.
func (c *Context) Uses(v Value) ([]Use, error) {
	def, err := c.valueDef(v)
	if err != nil {
		return nil, err
	}
	return slices.Clone(def.uses), nil
}

// NumUses returns the number of uses of v, or zero if v does not resolve.
func (c *Context) NumUses(v Value) int {
	def, err := c.valueDef(v)
	if err != nil {
		return 0
	}
	return len(def.uses)
}

// HasUses reports whether anything reads v.
func (c *Context) HasUses(v Value) bool {
	return c.NumUses(v) > 0
}

// ParentBlockOf returns the block in which v is defined: the owning block
// of an argument, or the parent block of the defining operation.
func (c *Context) ParentBlockOf(v Value) (Block, bool) {
	if b, ok := v.OwnerBlock(); ok {
		return b, c.blocks.Contains(b.h())
	}
	data, err := c.opData(v.op)
	if err != nil || data.parent.IsNil() {
		return Block{}, false
	}
	return data.parent, true
}

func (c *Context) addUse(v Value, u Use) {
	def, err := c.valueDef(v)
	if err != nil {
		return
	}
	def.uses = append(def.uses, u)
}

func (c *Context) removeUse(v Value, u Use) {
	def, err := c.valueDef(v)
	if err != nil {
		return
	}
	if i := slices.Index(def.uses, u); i >= 0 {
		def.uses = slices.Delete(def.uses, i, i+1)
	}
}

func (c *Context) addPred(b Block, u Use) {
	data, err := c.blockData(b)
	if err != nil {
		return
	}
	data.preds = append(data.preds, u)
}

func (c *Context) removePred(b Block, u Use) {
	data, err := c.blockData(b)
	if err != nil {
		return
	}
	if i := slices.Index(data.preds, u); i >= 0 {
		data.preds = slices.Delete(data.preds, i, i+1)
	}
}

// ReplaceAllUses rewrites every use of old to read new. Each operand slot is
// moved from one use list to the other in a single step, so no use is ever
// registered on neither value. After the call old has no uses.
func (c *Context) ReplaceAllUses(old, new Value) error {
	return c.ReplaceUsesIf(old, new, func(Use) bool { return true })
}

// ReplaceAllUsesExcept is like ReplaceAllUses but leaves the uses by except
// untouched.
func (c *Context) ReplaceAllUsesExcept(old, new Value, except Op) error {
	return c.ReplaceUsesIf(old, new, func(u Use) bool { return u.User != except })
}

// ReplaceUsesIf rewrites the uses of old accepted by pred to read new. Each
// moved slot must accept new under its user's operand constraint; if any
// slot rejects it nothing is rewritten.
func (c *Context) ReplaceUsesIf(old, new Value, pred func(Use) bool) error {
	if err := c.mutating(); err != nil {
		return err
	}
	if pred == nil {
		return errz.New(errz.ErrKindInvalidArgument, old.String(), "nil use predicate")
	}
	oldDef, err := c.valueDef(old)
	if err != nil {
		return err
	}
	if _, err := c.valueDef(new); err != nil {
		return err
	}
	if old == new {
		return nil
	}
	var moved, kept []Use
	for _, u := range oldDef.uses {
		if !pred(u) {
			kept = append(kept, u)
			continue
		}
		data, err := c.opData(u.User)
		if err != nil {
			return errz.Wrap(err, errz.ErrKindStaleHandle, old.String(), "use list references a dead user")
		}
		if u.Index >= len(data.operands) || data.operands[u.Index] != old {
			return errz.New(errz.ErrKindStaleHandle, old.String(), "use %s does not read the value", u)
		}
		if err := c.checkOperand(data.def, u.Index, new); err != nil {
			return err
		}
		moved = append(moved, u)
	}
	// Every check has passed; from here on the rewrite cannot fail.
	for _, u := range moved {
		data, _ := c.opData(u.User)
		data.operands[u.Index] = new
	}
	oldDef.uses = kept
	newDef, _ := c.valueDef(new)
	newDef.uses = append(newDef.uses, moved...)
	for _, u := range moved {
		c.listener.OperandChanged(u.User, u.Index, old, new)
	}
	return nil
}
