package ir

import (
	"slices"

	"github.com/deepnoodle-ai/irkit/arena"
	"github.com/deepnoodle-ai/irkit/errz"
)

// OperationData is the stored form of an operation. It is obtained from
// Context.Operation and exposes read-only accessors.
type OperationData struct {
	self       Op
	def        OpDefinition
	operands   []Value
	successors []Block
	results    []valueDef
	regions    []Region
	attrs      attrDict
	parent     Block
	prev       Op
	next       Op
}

// Handle returns the handle of the operation.
func (d *OperationData) Handle() Op { return d.self }

// Definition returns the capability object of the operation kind.
func (d *OperationData) Definition() OpDefinition { return d.def }

// Name returns the qualified operation name.
func (d *OperationData) Name() string { return d.def.Name() }

// Traits returns the traits declared by the operation kind.
func (d *OperationData) Traits() Trait { return d.def.Signature().Traits }

// NumOperands returns the number of operand slots.
func (d *OperationData) NumOperands() int { return len(d.operands) }

// Operand returns the value in operand slot i.
func (d *OperationData) Operand(i int) Value { return d.operands[i] }

// Operands returns a copy of the operand values.
func (d *OperationData) Operands() []Value { return slices.Clone(d.operands) }

// NumResults returns the number of results.
func (d *OperationData) NumResults() int { return len(d.results) }

// Result returns result i as a Value.
func (d *OperationData) Result(i int) Value {
	_ = d.results[i]
	return Value{op: d.self, index: uint32(i)}
}

// Results returns every result as a Value.
func (d *OperationData) Results() []Value {
	out := make([]Value, len(d.results))
	for i := range d.results {
		out[i] = Value{op: d.self, index: uint32(i)}
	}
	return out
}

// ResultType returns the type of result i.
func (d *OperationData) ResultType(i int) Type { return d.results[i].typ }

// NumRegions returns the number of owned regions.
func (d *OperationData) NumRegions() int { return len(d.regions) }

// Region returns owned region i.
func (d *OperationData) Region(i int) Region { return d.regions[i] }

// Regions returns a copy of the owned regions.
func (d *OperationData) Regions() []Region { return slices.Clone(d.regions) }

// NumSuccessors returns the number of block operands.
func (d *OperationData) NumSuccessors() int { return len(d.successors) }

// Successor returns block operand i.
func (d *OperationData) Successor(i int) Block { return d.successors[i] }

// Successors returns a copy of the block operands.
func (d *OperationData) Successors() []Block { return slices.Clone(d.successors) }

// Attrs returns a copy of the attribute dictionary.
func (d *OperationData) Attrs() []NamedAttr { return d.attrs.clone() }

// Attr returns the attribute stored under name.
func (d *OperationData) Attr(name Ident) (Attr, bool) { return d.attrs.get(name) }

// Parent returns the block holding the operation, or a nil handle when the
// operation is detached.
func (d *OperationData) Parent() Block { return d.parent }

// Next returns the following operation in the parent block.
func (d *OperationData) Next() Op { return d.next }

// Prev returns the preceding operation in the parent block.
func (d *OperationData) Prev() Op { return d.prev }

// OperationState collects everything needed to create an operation.
type OperationState struct {
	Definition  OpDefinition
	Operands    []Value
	ResultTypes []Type
	Successors  []Block
	Regions     int
	Attrs       []NamedAttr
}

// CreateOperation creates a detached operation of kind def with the given
// operands, one result per result type and numRegions empty regions.
func (c *Context) CreateOperation(def OpDefinition, operands []Value, resultTypes []Type, numRegions int) (Op, error) {
	return c.Create(OperationState{
		Definition:  def,
		Operands:    operands,
		ResultTypes: resultTypes,
		Regions:     numRegions,
	})
}

func checkCount(name, what string, declared, got int) error {
	if declared == Variadic || declared == got {
		return nil
	}
	return errz.New(errz.ErrKindArityOrTypeMismatch, name, "expected %d %s, got %d", declared, what, got)
}

// Create creates a detached operation from state. Every operand use and
// successor link is registered before Create returns. Nothing is allocated
// if any check fails.
func (c *Context) Create(state OperationState) (Op, error) {
	if err := c.mutating(); err != nil {
		return Op{}, err
	}
	def := state.Definition
	if err := c.checkDefinition(def); err != nil {
		return Op{}, err
	}
	name := def.Name()
	sig := def.Signature()
	if state.Regions < 0 {
		return Op{}, errz.New(errz.ErrKindInvalidArgument, name, "negative region count")
	}
	if err := checkCount(name, "operands", sig.Operands, len(state.Operands)); err != nil {
		return Op{}, err
	}
	if err := checkCount(name, "results", sig.Results, len(state.ResultTypes)); err != nil {
		return Op{}, err
	}
	if err := checkCount(name, "regions", sig.Regions, state.Regions); err != nil {
		return Op{}, err
	}
	if err := checkCount(name, "successors", sig.Successors, len(state.Successors)); err != nil {
		return Op{}, err
	}
	for i, v := range state.Operands {
		if err := c.checkOperand(def, i, v); err != nil {
			return Op{}, err
		}
	}
	for _, t := range state.ResultTypes {
		if err := c.checkType(t); err != nil {
			return Op{}, err
		}
	}
	if rc, ok := def.(ResultConstraint); ok {
		if err := rc.CheckResults(c, slices.Clone(state.ResultTypes)); err != nil {
			return Op{}, errz.Wrap(err, errz.ErrKindArityOrTypeMismatch, name, "result types rejected")
		}
	}
	for _, b := range state.Successors {
		if err := c.blocks.Check(b.h()); err != nil {
			return Op{}, err
		}
	}
	for _, na := range state.Attrs {
		if err := c.idents.arena.Check(na.Name.h()); err != nil {
			return Op{}, err
		}
		if err := c.checkAttr(na.Value); err != nil {
			return Op{}, err
		}
	}

	var attrs attrDict
	for _, na := range state.Attrs {
		attrs.set(na.Name, na.Value)
	}
	results := make([]valueDef, len(state.ResultTypes))
	for i, t := range state.ResultTypes {
		results[i].typ = t
	}
	op := Op(c.ops.AllocFunc(func(h arena.Handle[OperationData]) OperationData {
		return OperationData{
			self:       Op(h),
			def:        def,
			operands:   slices.Clone(state.Operands),
			successors: slices.Clone(state.Successors),
			results:    results,
			attrs:      attrs,
		}
	}))
	data, _ := c.opData(op)
	data.regions = make([]Region, state.Regions)
	for i := range data.regions {
		index := i
		data.regions[i] = Region(c.regions.AllocFunc(func(h arena.Handle[RegionData]) RegionData {
			return RegionData{self: Region(h), parent: op, index: index}
		}))
	}
	for i, v := range data.operands {
		c.addUse(v, Use{User: op, Index: i})
	}
	for i, b := range data.successors {
		c.addPred(b, Use{User: op, Index: i})
	}
	c.listener.OperationCreated(op)
	return op, nil
}

// checkOperand validates v as operand i of an operation of kind def.
func (c *Context) checkOperand(def OpDefinition, i int, v Value) error {
	if v.IsNil() {
		return errz.New(errz.ErrKindInvalidArgument, def.Name(), "operand %d is nil", i)
	}
	t, err := c.ValueType(v)
	if err != nil {
		return err
	}
	if oc, ok := def.(OperandConstraint); ok {
		if err := oc.CheckOperand(c, i, t); err != nil {
			return errz.Wrap(err, errz.ErrKindArityOrTypeMismatch, def.Name(),
				"operand %d of type %s rejected", i, c.RenderType(t))
		}
	}
	return nil
}

// SetOperand replaces operand index of op with v, moving the use from the
// old value to v.
func (c *Context) SetOperand(op Op, index int, v Value) error {
	if err := c.mutating(); err != nil {
		return err
	}
	data, err := c.opData(op)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(data.operands) {
		return errz.New(errz.ErrKindInvalidArgument, c.describe(op),
			"operand index %d out of range [0, %d)", index, len(data.operands))
	}
	if err := c.checkOperand(data.def, index, v); err != nil {
		return err
	}
	old := data.operands[index]
	if old == v {
		return nil
	}
	use := Use{User: op, Index: index}
	if !old.IsNil() {
		c.removeUse(old, use)
	}
	data.operands[index] = v
	c.addUse(v, use)
	c.listener.OperandChanged(op, index, old, v)
	return nil
}

// SetOperands replaces the whole operand list of op. The count must match
// the kind's signature unless it is variadic.
func (c *Context) SetOperands(op Op, values []Value) error {
	if err := c.mutating(); err != nil {
		return err
	}
	data, err := c.opData(op)
	if err != nil {
		return err
	}
	if err := checkCount(data.Name(), "operands", data.def.Signature().Operands, len(values)); err != nil {
		return err
	}
	for i, v := range values {
		if err := c.checkOperand(data.def, i, v); err != nil {
			return err
		}
	}
	old := data.operands
	for i, v := range old {
		if !v.IsNil() {
			c.removeUse(v, Use{User: op, Index: i})
		}
	}
	data.operands = slices.Clone(values)
	for i, v := range data.operands {
		c.addUse(v, Use{User: op, Index: i})
	}
	for i := 0; i < max(len(old), len(values)); i++ {
		var before, after Value
		if i < len(old) {
			before = old[i]
		}
		if i < len(values) {
			after = values[i]
		}
		if before != after {
			c.listener.OperandChanged(op, i, before, after)
		}
	}
	return nil
}

// SetSuccessor replaces block operand index of op with b.
func (c *Context) SetSuccessor(op Op, index int, b Block) error {
	if err := c.mutating(); err != nil {
		return err
	}
	data, err := c.opData(op)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(data.successors) {
		return errz.New(errz.ErrKindInvalidArgument, c.describe(op),
			"successor index %d out of range [0, %d)", index, len(data.successors))
	}
	if err := c.blocks.Check(b.h()); err != nil {
		return err
	}
	old := data.successors[index]
	if old == b {
		return nil
	}
	use := Use{User: op, Index: index}
	if !old.IsNil() {
		c.removePred(old, use)
	}
	data.successors[index] = b
	c.addPred(b, use)
	return nil
}

// SetAttr stores value under name in the attribute dictionary of op.
func (c *Context) SetAttr(op Op, name string, value Attr) error {
	if err := c.mutating(); err != nil {
		return err
	}
	data, err := c.opData(op)
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

// RemoveAttr deletes name from the attribute dictionary of op and reports
// whether it was present.
func (c *Context) RemoveAttr(op Op, name string) (bool, error) {
	if err := c.mutating(); err != nil {
		return false, err
	}
	data, err := c.opData(op)
	if err != nil {
		return false, err
	}
	id, ok := c.LookupIdent(name)
	if !ok {
		return false, nil
	}
	return data.attrs.remove(id), nil
}

// GetAttr returns the attribute stored under name on op.
func (c *Context) GetAttr(op Op, name string) (Attr, bool) {
	data, err := c.opData(op)
	if err != nil {
		return Attr{}, false
	}
	id, ok := c.LookupIdent(name)
	if !ok {
		return Attr{}, false
	}
	return data.attrs.get(id)
}
