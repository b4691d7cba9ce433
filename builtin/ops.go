package builtin

import (
	"github.com/cockroachdb/errors"
	"github.com/deepnoodle-ai/irkit/ir"
)

// Attribute names used by the builtin operations.
const (
	SymName      = "sym_name"
	FunctionAttr = "function_type"
	Visibility   = "sym_visibility"
)

// ModuleOp is the top-level container. Its single region holds one block
// of symbol-defining operations and needs no terminator.
type ModuleOp struct{}

func (*ModuleOp) Name() string { return "builtin.module" }

func (*ModuleOp) Signature() ir.Signature {
	return ir.Signature{
		Regions: 1,
		Traits:  ir.NoTerminator | ir.SingleBlock | ir.IsolatedFromAbove,
	}
}

func (*ModuleOp) VerifyAttr(c *ir.Context, _ ir.Op, name string, value ir.Attr) error {
	if name == SymName {
		if _, ok := ir.AttrAs[StringAttr](c, value); !ok {
			return errors.Newf("%s must be a string", SymName)
		}
	}
	return nil
}

func (*ModuleOp) Verify(c *ir.Context, op ir.Op) error {
	body, err := Body(c, op)
	if err != nil {
		return err
	}
	ops, err := c.OpsIn(body)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, child := range ops {
		a, ok := c.GetAttr(child, SymName)
		if !ok {
			continue
		}
		s, _ := ir.AttrAs[StringAttr](c, a)
		if seen[s.Value] {
			return errors.Newf("symbol %q defined twice", s.Value)
		}
		seen[s.Value] = true
	}
	return nil
}

// FuncOp is a function. Its region holds the body; an empty region
// declares an external function.
type FuncOp struct{}

func (*FuncOp) Name() string { return "builtin.func" }

func (*FuncOp) Signature() ir.Signature {
	return ir.Signature{
		Regions: 1,
		Traits:  ir.IsolatedFromAbove | ir.EmptyRegions,
	}
}

func (*FuncOp) VerifyAttr(c *ir.Context, _ ir.Op, name string, value ir.Attr) error {
	switch name {
	case SymName, Visibility:
		if _, ok := ir.AttrAs[StringAttr](c, value); !ok {
			return errors.Newf("%s must be a string", name)
		}
	case FunctionAttr:
		ta, ok := ir.AttrAs[TypeAttr](c, value)
		if !ok {
			return errors.Newf("%s must be a type", FunctionAttr)
		}
		if _, ok := ir.TypeAs[FunctionType](c, ta.Value); !ok {
			return errors.Newf("%s must be a function type, got %s", FunctionAttr, c.RenderType(ta.Value))
		}
	}
	return nil
}

func (*FuncOp) Verify(c *ir.Context, op ir.Op) error {
	if _, ok := c.GetAttr(op, SymName); !ok {
		return errors.Newf("missing %s", SymName)
	}
	fn, err := FuncType(c, op)
	if err != nil {
		return err
	}
	data, err := c.Operation(op)
	if err != nil {
		return err
	}
	entry, ok := c.EntryBlock(data.Region(0))
	if !ok {
		return nil
	}
	bd, err := c.Block(entry)
	if err != nil {
		return err
	}
	if bd.NumArguments() != len(fn.Inputs) {
		return errors.Newf("entry block has %d arguments, function type has %d inputs",
			bd.NumArguments(), len(fn.Inputs))
	}
	for i, in := range fn.Inputs {
		if bd.ArgumentType(i) != in {
			return errors.Newf("entry argument %d has type %s, expected %s",
				i, c.RenderType(bd.ArgumentType(i)), c.RenderType(in))
		}
	}
	return nil
}

// ReturnOp ends a function body, passing the function results.
type ReturnOp struct{}

func (*ReturnOp) Name() string { return "builtin.return" }

func (*ReturnOp) Signature() ir.Signature {
	return ir.Signature{Operands: ir.Variadic, Traits: ir.Terminator}
}

func (*ReturnOp) Verify(c *ir.Context, op ir.Op) error {
	parent, ok := c.ParentOp(op)
	if !ok {
		return errors.New("return outside a function")
	}
	pd, err := c.Operation(parent)
	if err != nil {
		return err
	}
	if pd.Definition() != Func {
		return errors.Newf("return inside %s, expected %s", pd.Name(), Func.Name())
	}
	fn, err := FuncType(c, parent)
	if err != nil {
		return err
	}
	data, err := c.Operation(op)
	if err != nil {
		return err
	}
	if data.NumOperands() != len(fn.Results) {
		return errors.Newf("returns %d values, function has %d results", data.NumOperands(), len(fn.Results))
	}
	for i, want := range fn.Results {
		got, err := c.ValueType(data.Operand(i))
		if err != nil {
			return err
		}
		if got != want {
			return errors.Newf("result %d has type %s, expected %s", i, c.RenderType(got), c.RenderType(want))
		}
	}
	return nil
}

// Definitions of the builtin operations.
var (
	Module = &ModuleOp{}
	Func   = &FuncOp{}
	Return = &ReturnOp{}
)

// Dialect returns the builtin dialect.
func Dialect() ir.Dialect {
	return ir.Dialect{
		Name: "builtin",
		Ops:  []ir.OpDefinition{Module, Func, Return},
	}
}

// Register registers the builtin dialect with c.
func Register(c *ir.Context) error {
	return c.RegisterDialect(Dialect())
}

// NewModule creates a detached module with an empty body block.
func NewModule(c *ir.Context, name string) (ir.Op, error) {
	state := ir.OperationState{Definition: Module, Regions: 1}
	if name != "" {
		if err := withAttr(c, &state, SymName, func() (ir.Attr, error) { return String(c, name) }); err != nil {
			return ir.Op{}, err
		}
	}
	op, err := c.Create(state)
	if err != nil {
		return ir.Op{}, err
	}
	if err := attachEntry(c, op, ""); err != nil {
		return ir.Op{}, err
	}
	return op, nil
}

// NewFunc creates a detached function of type fnType. Unless external is
// set, the body gets an entry block whose arguments match the inputs.
func NewFunc(c *ir.Context, name string, fnType ir.Type, external bool) (ir.Op, error) {
	fn, ok := ir.TypeAs[FunctionType](c, fnType)
	if !ok {
		return ir.Op{}, errors.Newf("%s is not a function type", c.RenderType(fnType))
	}
	state := ir.OperationState{Definition: Func, Regions: 1}
	if err := withAttr(c, &state, SymName, func() (ir.Attr, error) { return String(c, name) }); err != nil {
		return ir.Op{}, err
	}
	if err := withAttr(c, &state, FunctionAttr, func() (ir.Attr, error) { return TypeOf(c, fnType) }); err != nil {
		return ir.Op{}, err
	}
	op, err := c.Create(state)
	if err != nil {
		return ir.Op{}, err
	}
	if external {
		return op, nil
	}
	if err := attachEntry(c, op, "entry", fn.Inputs...); err != nil {
		return ir.Op{}, err
	}
	return op, nil
}

// attachEntry gives the first region of the detached op a block. On failure
// the op and the block are erased again.
func attachEntry(c *ir.Context, op ir.Op, label string, argTypes ...ir.Type) error {
	data, err := c.Operation(op)
	if err != nil {
		return err
	}
	b, err := c.CreateBlock(label, argTypes...)
	if err == nil {
		if err = c.AppendBlock(data.Region(0), b); err != nil {
			err = errors.CombineErrors(err, c.EraseBlock(b))
		}
	}
	if err != nil {
		return errors.CombineErrors(err, c.EraseOperation(op))
	}
	return nil
}

// NewReturn creates a detached return of values.
func NewReturn(c *ir.Context, values ...ir.Value) (ir.Op, error) {
	return c.CreateOperation(Return, values, nil, 0)
}

func withAttr(c *ir.Context, state *ir.OperationState, name string, build func() (ir.Attr, error)) error {
	id, err := c.Ident(name)
	if err != nil {
		return err
	}
	a, err := build()
	if err != nil {
		return err
	}
	state.Attrs = append(state.Attrs, ir.NamedAttr{Name: id, Value: a})
	return nil
}

// Body returns the single block of a module.
func Body(c *ir.Context, module ir.Op) (ir.Block, error) {
	data, err := c.Operation(module)
	if err != nil {
		return ir.Block{}, err
	}
	if data.Definition() != Module {
		return ir.Block{}, errors.Newf("%s is not a module", data.Name())
	}
	b, ok := c.EntryBlock(data.Region(0))
	if !ok {
		return ir.Block{}, errors.New("module has no body block")
	}
	return b, nil
}

// FuncType returns the function type of a function.
func FuncType(c *ir.Context, fn ir.Op) (FunctionType, error) {
	a, ok := c.GetAttr(fn, FunctionAttr)
	if !ok {
		return FunctionType{}, errors.Newf("missing %s", FunctionAttr)
	}
	ta, ok := ir.AttrAs[TypeAttr](c, a)
	if !ok {
		return FunctionType{}, errors.Newf("%s must be a type", FunctionAttr)
	}
	ft, ok := ir.TypeAs[FunctionType](c, ta.Value)
	if !ok {
		return FunctionType{}, errors.Newf("%s must be a function type", FunctionAttr)
	}
	return ft, nil
}

// Lookup returns the operation of module whose sym_name is name.
func Lookup(c *ir.Context, module ir.Op, name string) (ir.Op, bool) {
	body, err := Body(c, module)
	if err != nil {
		return ir.Op{}, false
	}
	ops, err := c.OpsIn(body)
	if err != nil {
		return ir.Op{}, false
	}
	for _, op := range ops {
		a, ok := c.GetAttr(op, SymName)
		if !ok {
			continue
		}
		if s, ok := ir.AttrAs[StringAttr](c, a); ok && s.Value == name {
			return op, true
		}
	}
	return ir.Op{}, false
}
