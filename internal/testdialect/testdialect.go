// Package testdialect is a small dialect used by the tests of the IR
// packages. It has a generic operation, constants, branches, a return, a
// region-holding operation and a typed fixed-arity addition.
package testdialect

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/deepnoodle-ai/irkit/ir"
)

// IntType is the integer type of the test dialect.
type IntType struct {
	Width int
}

func (t IntType) Kind() string { return "test.int" }

func (t IntType) Hash(h *ir.Hasher) {
	h.WriteInt(int64(t.Width))
}

func (t IntType) Equal(other ir.TypeStorage) bool {
	o, ok := other.(IntType)
	return ok && o == t
}

func (t IntType) Render(*ir.Context) string {
	return fmt.Sprintf("i%d", t.Width)
}

func (t IntType) Verify(*ir.Context) error {
	if t.Width <= 0 {
		return errors.Newf("width must be positive, got %d", t.Width)
	}
	return nil
}

// IntAttr is an integer constant of a given type.
type IntAttr struct {
	Value int64
	Typ   ir.Type
}

func (a IntAttr) Kind() string { return "test.int_attr" }

func (a IntAttr) Hash(h *ir.Hasher) {
	h.WriteInt(a.Value)
	h.WriteType(a.Typ)
}

func (a IntAttr) Equal(other ir.AttrStorage) bool {
	o, ok := other.(IntAttr)
	return ok && o == a
}

func (a IntAttr) Render(c *ir.Context) string {
	return fmt.Sprintf("%d : %s", a.Value, c.RenderType(a.Typ))
}

func (a IntAttr) Verify(c *ir.Context) error {
	if _, ok := ir.TypeAs[IntType](c, a.Typ); !ok {
		return errors.Newf("integer attribute needs an integer type, got %s", c.RenderType(a.Typ))
	}
	return nil
}

func (a IntAttr) Type() (ir.Type, bool) { return a.Typ, true }

var (
	// Op accepts any shape.
	Op = &ir.OpSpec{
		OpName: "test.op",
		Sig: ir.Signature{
			Operands:   ir.Variadic,
			Results:    ir.Variadic,
			Regions:    ir.Variadic,
			Successors: ir.Variadic,
		},
	}

	// Const produces one value and requires a "value" attribute.
	Const = &ir.OpSpec{
		OpName: "test.const",
		Sig:    ir.Signature{Operands: 0, Results: 1},
		VerifyFunc: func(c *ir.Context, op ir.Op) error {
			if _, ok := c.GetAttr(op, "value"); !ok {
				return errors.New("missing value attribute")
			}
			return nil
		},
	}

	// Br jumps to its single successor.
	Br = &ir.OpSpec{
		OpName: "test.br",
		Sig:    ir.Signature{Operands: ir.Variadic, Successors: 1, Traits: ir.Terminator},
	}

	// CondBr jumps to one of two successors.
	CondBr = &ir.OpSpec{
		OpName: "test.cond_br",
		Sig:    ir.Signature{Operands: 1, Successors: 2, Traits: ir.Terminator},
	}

	// Ret ends a block without successors.
	Ret = &ir.OpSpec{
		OpName: "test.ret",
		Sig:    ir.Signature{Operands: ir.Variadic, Traits: ir.Terminator},
	}

	// RegionOp owns one region whose blocks need terminators.
	RegionOp = &ir.OpSpec{
		OpName: "test.region",
		Sig:    ir.Signature{Results: ir.Variadic, Regions: 1},
	}

	// Graph owns one single-block region that needs no terminator and may
	// not capture values from outside.
	Graph = &ir.OpSpec{
		OpName: "test.graph",
		Sig: ir.Signature{
			Regions: 1,
			Traits:  ir.NoTerminator | ir.SingleBlock | ir.IsolatedFromAbove | ir.EmptyRegions,
		},
	}

	// Add is the typed fixed-arity addition.
	Add = &AddOp{}
)

// AddOp adds two integers of the same type.
type AddOp struct{}

func (*AddOp) Name() string { return "test.add" }

func (*AddOp) Signature() ir.Signature {
	return ir.Signature{Operands: 2, Results: 1}
}

func (*AddOp) CheckOperand(c *ir.Context, index int, t ir.Type) error {
	if _, ok := ir.TypeAs[IntType](c, t); !ok {
		return errors.Newf("operand %d must be an integer, got %s", index, c.RenderType(t))
	}
	return nil
}

func (*AddOp) CheckResults(c *ir.Context, types []ir.Type) error {
	if _, ok := ir.TypeAs[IntType](c, types[0]); !ok {
		return errors.Newf("result must be an integer, got %s", c.RenderType(types[0]))
	}
	return nil
}

func (*AddOp) Verify(c *ir.Context, op ir.Op) error {
	data, err := c.Operation(op)
	if err != nil {
		return err
	}
	lhs, _ := c.ValueType(data.Operand(0))
	rhs, _ := c.ValueType(data.Operand(1))
	if lhs != rhs || lhs != data.ResultType(0) {
		return errors.Newf("operand and result types differ: %s, %s -> %s",
			c.RenderType(lhs), c.RenderType(rhs), c.RenderType(data.ResultType(0)))
	}
	return nil
}

// Dialect returns the test dialect.
func Dialect() ir.Dialect {
	return ir.Dialect{
		Name: "test",
		Ops:  []ir.OpDefinition{Op, Const, Br, CondBr, Ret, RegionOp, Graph, Add},
	}
}

// Register registers the test dialect with c.
func Register(c *ir.Context) error {
	return c.RegisterDialect(Dialect())
}

// Int interns an integer type of the given width.
func Int(c *ir.Context, width int) ir.Type {
	t, err := c.InternType(IntType{Width: width})
	if err != nil {
		panic(err)
	}
	return t
}

// Constant creates a detached test.const producing value of type t.
func Constant(c *ir.Context, value int64, t ir.Type) (ir.Op, error) {
	a, err := c.InternAttr(IntAttr{Value: value, Typ: t})
	if err != nil {
		return ir.Op{}, err
	}
	id, err := c.Ident("value")
	if err != nil {
		return ir.Op{}, err
	}
	return c.Create(ir.OperationState{
		Definition:  Const,
		ResultTypes: []ir.Type{t},
		Attrs:       []ir.NamedAttr{{Name: id, Value: a}},
	})
}
