package ir

import (
	"slices"

	"github.com/deepnoodle-ai/irkit/arena"
	"github.com/deepnoodle-ai/irkit/errz"
)

// BlockData is the stored form of a block: an ordered list of operations and
// an ordered list of arguments.
type BlockData struct {
	self   Block
	label  string
	args   []valueDef
	first  Op
	last   Op
	numOps int
	parent Region
	prev   Block
	next   Block
	preds  []Use
	attrs  attrDict
	argIDs uint32
}

// Handle returns the handle of the block.
func (d *BlockData) Handle() Block { return d.self }

// Label returns the optional block label.
func (d *BlockData) Label() string { return d.label }

// NumArguments returns the number of block arguments.
func (d *BlockData) NumArguments() int { return len(d.args) }

// Argument returns argument i as a Value.
func (d *BlockData) Argument(i int) Value {
	return d.argValue(i)
}

// Arguments returns every argument as a Value.
func (d *BlockData) Arguments() []Value {
	out := make([]Value, len(d.args))
	for i := range d.args {
		out[i] = d.argValue(i)
	}
	return out
}

func (d *BlockData) argValue(i int) Value {
	return Value{block: d.self, index: uint32(i), argID: d.args[i].id}
}

func (d *BlockData) newArg(t Type) valueDef {
	d.argIDs++
	return valueDef{typ: t, id: d.argIDs}
}

// ArgumentType returns the type of argument i.
func (d *BlockData) ArgumentType(i int) Type { return d.args[i].typ }

// First returns the first operation of the block.
func (d *BlockData) First() Op { return d.first }

// Last returns the last operation of the block.
func (d *BlockData) Last() Op { return d.last }

// Len returns the number of operations in the block.
func (d *BlockData) Len() int { return d.numOps }

// Empty reports whether the block holds no operations.
func (d *BlockData) Empty() bool { return d.numOps == 0 }

// Parent returns the region holding the block, or a nil handle when the
// block is detached.
func (d *BlockData) Parent() Region { return d.parent }

// Next returns the following block in the parent region.
func (d *BlockData) Next() Block { return d.next }

// Prev returns the preceding block in the parent region.
func (d *BlockData) Prev() Block { return d.prev }

// PredecessorUses returns a copy of the successor slots that name this block.
func (d *BlockData) PredecessorUses() []Use { return slices.Clone(d.preds) }

// Attrs returns a copy of the block attribute dictionary.
func (d *BlockData) Attrs() []NamedAttr { return d.attrs.clone() }

// Attr returns the block attribute stored under name.
func (d *BlockData) Attr(name Ident) (Attr, bool) { return d.attrs.get(name) }

// CreateBlock creates a detached block with one argument per type.
func (c *Context) CreateBlock(label string, argTypes ...Type) (Block, error) {
	if err := c.mutating(); err != nil {
		return Block{}, err
	}
	for _, t := range argTypes {
		if err := c.checkType(t); err != nil {
			return Block{}, err
		}
	}
	b := Block(c.blocks.AllocFunc(func(h arena.Handle[BlockData]) BlockData {
		d := BlockData{self: Block(h), label: label, args: make([]valueDef, len(argTypes))}
		for i, t := range argTypes {
			d.args[i] = d.newArg(t)
		}
		return d
	}))
	c.listener.BlockCreated(b)
	return b, nil
}

// SetBlockLabel changes the label of b.
func (c *Context) SetBlockLabel(b Block, label string) error {
	if err := c.mutating(); err != nil {
		return err
	}
	data, err := c.blockData(b)
	if err != nil {
		return err
	}
	data.label = label
	return nil
}

// SetBlockAttr stores value under name in the attribute dictionary of b.
func (c *Context) SetBlockAttr(b Block, name string, value Attr) error {
	if err := c.mutating(); err != nil {
		return err
	}
	data, err := c.blockData(b)
	if err != nil {
		return err
	}
	if err := c.checkAttr(value); err != nil {
		return err
	}
	id, err := c.Ident(name)
	if err != nil {
		return err
	}
	data.attrs.set(id, value)
	return nil
}

// GetBlockAttr returns the block attribute stored under name.
func (c *Context) GetBlockAttr(b Block, name string) (Attr, bool) {
	data, err := c.blockData(b)
	if err != nil {
		return Attr{}, false
	}
	id, ok := c.LookupIdent(name)
	if !ok {
		return Attr{}, false
	}
	return data.attrs.get(id)
}

// AddBlockArgument appends an argument of type t to b.
func (c *Context) AddBlockArgument(b Block, t Type) (Value, error) {
	if err := c.mutating(); err != nil {
		return Value{}, err
	}
	data, err := c.blockData(b)
	if err != nil {
		return Value{}, err
	}
	if err := c.checkType(t); err != nil {
		return Value{}, err
	}
	data.args = append(data.args, data.newArg(t))
	return data.argValue(len(data.args) - 1), nil
}

// EraseBlockArgument removes argument index of b, which must have no uses.
// Later arguments shift down by one and the operand slots reading them are
// rewritten to the renumbered values. Values obtained for the erased or the
// shifted arguments before the call are stale afterwards.
func (c *Context) EraseBlockArgument(b Block, index int) error {
	if err := c.mutating(); err != nil {
		return err
	}
	data, err := c.blockData(b)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(data.args) {
		return errz.New(errz.ErrKindInvalidArgument, b.String(),
			"argument index %d out of range [0, %d)", index, len(data.args))
	}
	if n := len(data.args[index].uses); n > 0 {
		return errz.New(errz.ErrKindDanglingUse, b.String(), "argument %d has %d uses", index, n)
	}
	for j := index + 1; j < len(data.args); j++ {
		renumbered := Value{block: b, index: uint32(j - 1), argID: data.args[j].id}
		for _, u := range data.args[j].uses {
			if user, err := c.opData(u.User); err == nil {
				user.operands[u.Index] = renumbered
			}
		}
	}
	data.args = slices.Delete(data.args, index, index+1)
	return nil
}

// OpsIn returns the operations of b in order.
func (c *Context) OpsIn(b Block) ([]Op, error) {
	data, err := c.blockData(b)
	if err != nil {
		return nil, err
	}
	out := make([]Op, 0, data.numOps)
	for op := data.first; !op.IsNil(); {
		out = append(out, op)
		od, err := c.opData(op)
		if err != nil {
			return nil, err
		}
		op = od.next
	}
	return out, nil
}

// Terminator returns the last operation of b if its kind is a terminator.
func (c *Context) Terminator(b Block) (Op, bool) {
	data, err := c.blockData(b)
	if err != nil || data.last.IsNil() {
		return Op{}, false
	}
	last, err := c.opData(data.last)
	if err != nil || !last.Traits().Has(Terminator) {
		return Op{}, false
	}
	return data.last, true
}

// linkOp splices od into bd after the operation after, or at the front when
// after is nil.
func (c *Context) linkOp(bd *BlockData, od *OperationData, after Op) {
	var next Op
	if after.IsNil() {
		next = bd.first
		bd.first = od.self
	} else {
		pd, _ := c.opData(after)
		next = pd.next
		pd.next = od.self
	}
	if next.IsNil() {
		bd.last = od.self
	} else {
		nd, _ := c.opData(next)
		nd.prev = od.self
	}
	od.prev = after
	od.next = next
	od.parent = bd.self
	bd.numOps++
}

func (c *Context) unlinkOp(od *OperationData) {
	bd, err := c.blockData(od.parent)
	if err != nil {
		return
	}
	if od.prev.IsNil() {
		bd.first = od.next
	} else if pd, err := c.opData(od.prev); err == nil {
		pd.next = od.next
	}
	if od.next.IsNil() {
		bd.last = od.prev
	} else if nd, err := c.opData(od.next); err == nil {
		nd.prev = od.prev
	}
	od.prev = Op{}
	od.next = Op{}
	od.parent = Block{}
	bd.numOps--
}

// opEncloses reports whether op is an ancestor of b through the
// ownership tree. Linking op into b would then create an ownership cycle.
func (c *Context) opEncloses(op Op, b Block) bool {
	for !b.IsNil() {
		bd, err := c.blockData(b)
		if err != nil || bd.parent.IsNil() {
			return false
		}
		rd, err := c.regionData(bd.parent)
		if err != nil {
			return false
		}
		if rd.parent == op {
			return true
		}
		od, err := c.opData(rd.parent)
		if err != nil {
			return false
		}
		b = od.parent
	}
	return false
}

// prepareInsert validates that detached op may be linked into b.
func (c *Context) prepareInsert(op Op, b Block) (*OperationData, *BlockData, error) {
	if err := c.mutating(); err != nil {
		return nil, nil, err
	}
	od, err := c.opData(op)
	if err != nil {
		return nil, nil, err
	}
	bd, err := c.blockData(b)
	if err != nil {
		return nil, nil, err
	}
	if !od.parent.IsNil() {
		return nil, nil, errz.New(errz.ErrKindInvalidArgument, c.describe(op),
			"operation is already in %s", od.parent)
	}
	if c.opEncloses(op, b) {
		return nil, nil, errz.New(errz.ErrKindInvalidArgument, c.describe(op),
			"operation encloses %s", b)
	}
	return od, bd, nil
}

// AppendOperation links detached op at the end of b.
func (c *Context) AppendOperation(b Block, op Op) error {
	od, bd, err := c.prepareInsert(op, b)
	if err != nil {
		return err
	}
	c.linkOp(bd, od, bd.last)
	c.listener.OperationInserted(op, b)
	return nil
}

// PrependOperation links detached op at the front of b.
func (c *Context) PrependOperation(b Block, op Op) error {
	od, bd, err := c.prepareInsert(op, b)
	if err != nil {
		return err
	}
	c.linkOp(bd, od, Op{})
	c.listener.OperationInserted(op, b)
	return nil
}

// InsertOperation links detached op into b so that it ends up at position
// pos, which must lie in [0, len].
func (c *Context) InsertOperation(b Block, pos int, op Op) error {
	od, bd, err := c.prepareInsert(op, b)
	if err != nil {
		return err
	}
	if pos < 0 || pos > bd.numOps {
		return errz.New(errz.ErrKindInvalidArgument, b.String(),
			"position %d out of range [0, %d]", pos, bd.numOps)
	}
	var after Op
	for cur, i := bd.first, 0; i < pos; i++ {
		after = cur
		cd, _ := c.opData(cur)
		cur = cd.next
	}
	c.linkOp(bd, od, after)
	c.listener.OperationInserted(op, b)
	return nil
}

// InsertOperationBefore links detached op immediately before anchor.
func (c *Context) InsertOperationBefore(anchor, op Op) error {
	ad, err := c.opData(anchor)
	if err != nil {
		return err
	}
	if ad.parent.IsNil() {
		return errz.New(errz.ErrKindInvalidArgument, c.describe(anchor), "anchor is detached")
	}
	od, bd, err := c.prepareInsert(op, ad.parent)
	if err != nil {
		return err
	}
	c.linkOp(bd, od, ad.prev)
	c.listener.OperationInserted(op, bd.self)
	return nil
}

// InsertOperationAfter links detached op immediately after anchor.
func (c *Context) InsertOperationAfter(anchor, op Op) error {
	ad, err := c.opData(anchor)
	if err != nil {
		return err
	}
	if ad.parent.IsNil() {
		return errz.New(errz.ErrKindInvalidArgument, c.describe(anchor), "anchor is detached")
	}
	od, bd, err := c.prepareInsert(op, ad.parent)
	if err != nil {
		return err
	}
	c.linkOp(bd, od, anchor)
	c.listener.OperationInserted(op, bd.self)
	return nil
}

// DetachOperation unlinks op from its block. The operation stays alive with
// all of its uses and can be inserted elsewhere.
func (c *Context) DetachOperation(op Op) error {
	if err := c.mutating(); err != nil {
		return err
	}
	od, err := c.opData(op)
	if err != nil {
		return err
	}
	if od.parent.IsNil() {
		return nil
	}
	parent := od.parent
	c.unlinkOp(od)
	c.listener.OperationDetached(op, parent)
	return nil
}

// MoveOperationBefore detaches op and links it immediately before anchor.
func (c *Context) MoveOperationBefore(op, anchor Op) error {
	if op == anchor {
		return errz.New(errz.ErrKindInvalidArgument, c.describe(op), "cannot move an operation before itself")
	}
	ad, err := c.opData(anchor)
	if err != nil {
		return err
	}
	if ad.parent.IsNil() {
		return errz.New(errz.ErrKindInvalidArgument, c.describe(anchor), "anchor is detached")
	}
	if c.opEncloses(op, ad.parent) {
		return errz.New(errz.ErrKindInvalidArgument, c.describe(op), "operation encloses %s", ad.parent)
	}
	if err := c.DetachOperation(op); err != nil {
		return err
	}
	return c.InsertOperationBefore(anchor, op)
}
