// Package builtin is the dialect shipped with the IR core. It provides the
// common scalar and function types, the common attribute kinds, and the
// module, function and return operations that frame a program.
//
// Every kind is implemented through the same capability contracts any
// external dialect uses; the core has no knowledge of them.
package builtin

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/deepnoodle-ai/irkit/ir"
)

// Signedness of an IntegerType.
type Signedness int

const (
	Signless Signedness = iota
	Signed
	Unsigned
)

// IntegerType is a fixed-width integer.
type IntegerType struct {
	Width      int
	Signedness Signedness
}

func (t IntegerType) Kind() string { return "builtin.integer" }

func (t IntegerType) Hash(h *ir.Hasher) {
	h.WriteInt(int64(t.Width))
	h.WriteInt(int64(t.Signedness))
}

func (t IntegerType) Equal(other ir.TypeStorage) bool {
	o, ok := other.(IntegerType)
	return ok && o == t
}

func (t IntegerType) Render(*ir.Context) string {
	switch t.Signedness {
	case Signed:
		return fmt.Sprintf("si%d", t.Width)
	case Unsigned:
		return fmt.Sprintf("ui%d", t.Width)
	default:
		return fmt.Sprintf("i%d", t.Width)
	}
}

func (t IntegerType) Verify(*ir.Context) error {
	if t.Width <= 0 || t.Width > 1<<16 {
		return errors.Newf("integer width %d out of range", t.Width)
	}
	if t.Signedness < Signless || t.Signedness > Unsigned {
		return errors.Newf("unknown signedness %d", t.Signedness)
	}
	return nil
}

// IndexType is the target-sized integer used for sizes and offsets.
type IndexType struct{}

func (IndexType) Kind() string { return "builtin.index" }

func (IndexType) Hash(*ir.Hasher) {}

func (IndexType) Equal(other ir.TypeStorage) bool {
	_, ok := other.(IndexType)
	return ok
}

func (IndexType) Render(*ir.Context) string { return "index" }

func (IndexType) Verify(*ir.Context) error { return nil }

// FloatType is an IEEE floating point type.
type FloatType struct {
	Width int
}

func (t FloatType) Kind() string { return "builtin.float" }

func (t FloatType) Hash(h *ir.Hasher) {
	h.WriteInt(int64(t.Width))
}

func (t FloatType) Equal(other ir.TypeStorage) bool {
	o, ok := other.(FloatType)
	return ok && o == t
}

func (t FloatType) Render(*ir.Context) string {
	return fmt.Sprintf("f%d", t.Width)
}

func (t FloatType) Verify(*ir.Context) error {
	switch t.Width {
	case 16, 32, 64, 128:
		return nil
	}
	return errors.Newf("unsupported float width %d", t.Width)
}

// NoneType is the unit type.
type NoneType struct{}

func (NoneType) Kind() string { return "builtin.none" }

func (NoneType) Hash(*ir.Hasher) {}

func (NoneType) Equal(other ir.TypeStorage) bool {
	_, ok := other.(NoneType)
	return ok
}

func (NoneType) Render(*ir.Context) string { return "none" }

func (NoneType) Verify(*ir.Context) error { return nil }

// FunctionType maps input types to result types.
type FunctionType struct {
	Inputs  []ir.Type
	Results []ir.Type
}

func (t FunctionType) Kind() string { return "builtin.function" }

func (t FunctionType) Hash(h *ir.Hasher) {
	h.WriteInt(int64(len(t.Inputs)))
	for _, in := range t.Inputs {
		h.WriteType(in)
	}
	h.WriteInt(int64(len(t.Results)))
	for _, out := range t.Results {
		h.WriteType(out)
	}
}

func (t FunctionType) Equal(other ir.TypeStorage) bool {
	o, ok := other.(FunctionType)
	return ok && slices.Equal(o.Inputs, t.Inputs) && slices.Equal(o.Results, t.Results)
}

func (t FunctionType) Render(c *ir.Context) string {
	return "(" + renderTypes(c, t.Inputs) + ") -> (" + renderTypes(c, t.Results) + ")"
}

func (t FunctionType) Verify(c *ir.Context) error {
	for _, in := range slices.Concat(t.Inputs, t.Results) {
		if _, err := c.TypeStorageOf(in); err != nil {
			return err
		}
	}
	return nil
}

func renderTypes(c *ir.Context, types []ir.Type) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = c.RenderType(t)
	}
	return strings.Join(parts, ", ")
}

func intern(c *ir.Context, s ir.TypeStorage) (ir.Type, error) {
	return c.InternType(s)
}

// Integer interns a signless integer type of the given width.
func Integer(c *ir.Context, width int) (ir.Type, error) {
	return intern(c, IntegerType{Width: width})
}

// I1 interns the boolean type.
func I1(c *ir.Context) (ir.Type, error) { return Integer(c, 1) }

// I32 interns the 32-bit signless integer type.
func I32(c *ir.Context) (ir.Type, error) { return Integer(c, 32) }

// I64 interns the 64-bit signless integer type.
func I64(c *ir.Context) (ir.Type, error) { return Integer(c, 64) }

// Index interns the index type.
func Index(c *ir.Context) (ir.Type, error) { return intern(c, IndexType{}) }

// Float interns a float type of the given width.
func Float(c *ir.Context, width int) (ir.Type, error) {
	return intern(c, FloatType{Width: width})
}

// None interns the none type.
func None(c *ir.Context) (ir.Type, error) { return intern(c, NoneType{}) }

// Function interns a function type.
func Function(c *ir.Context, inputs, results []ir.Type) (ir.Type, error) {
	return intern(c, FunctionType{Inputs: slices.Clone(inputs), Results: slices.Clone(results)})
}
