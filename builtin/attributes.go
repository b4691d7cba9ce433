package builtin

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/deepnoodle-ai/irkit/ir"
)

// IntegerAttr is an integer constant of an integer or index type.
type IntegerAttr struct {
	Value int64
	Typ   ir.Type
}

func (a IntegerAttr) Kind() string { return "builtin.integer" }

func (a IntegerAttr) Hash(h *ir.Hasher) {
	h.WriteInt(a.Value)
	h.WriteType(a.Typ)
}

func (a IntegerAttr) Equal(other ir.AttrStorage) bool {
	o, ok := other.(IntegerAttr)
	return ok && o == a
}

func (a IntegerAttr) Render(c *ir.Context) string {
	return fmt.Sprintf("%d : %s", a.Value, c.RenderType(a.Typ))
}

func (a IntegerAttr) Verify(c *ir.Context) error {
	if _, ok := ir.TypeAs[IndexType](c, a.Typ); ok {
		return nil
	}
	it, ok := ir.TypeAs[IntegerType](c, a.Typ)
	if !ok {
		return errors.Newf("integer attribute of non-integer type %s", c.RenderType(a.Typ))
	}
	if it.Width < 64 {
		lo, hi := int64(-1)<<(it.Width-1), int64(1)<<it.Width-1
		if it.Signedness == Unsigned {
			lo = 0
		}
		if it.Signedness == Signed {
			hi = int64(1)<<(it.Width-1) - 1
		}
		if a.Value < lo || a.Value > hi {
			return errors.Newf("value %d does not fit in %s", a.Value, it.Render(c))
		}
	}
	return nil
}

func (a IntegerAttr) Type() (ir.Type, bool) { return a.Typ, true }

// FloatAttr is a floating point constant.
type FloatAttr struct {
	Value float64
	Typ   ir.Type
}

func (a FloatAttr) Kind() string { return "builtin.float" }

func (a FloatAttr) Hash(h *ir.Hasher) {
	h.WriteFloat(a.Value)
	h.WriteType(a.Typ)
}

// Equal compares bit patterns, so NaN constants unique and -0 differs
// from +0.
func (a FloatAttr) Equal(other ir.AttrStorage) bool {
	o, ok := other.(FloatAttr)
	return ok && o.Typ == a.Typ && sameBits(o.Value, a.Value)
}

func (a FloatAttr) Render(c *ir.Context) string {
	return strconv.FormatFloat(a.Value, 'g', -1, 64) + " : " + c.RenderType(a.Typ)
}

func (a FloatAttr) Verify(c *ir.Context) error {
	if _, ok := ir.TypeAs[FloatType](c, a.Typ); !ok {
		return errors.Newf("float attribute of non-float type %s", c.RenderType(a.Typ))
	}
	return nil
}

func (a FloatAttr) Type() (ir.Type, bool) { return a.Typ, true }

// StringAttr is a string constant.
type StringAttr struct {
	Value string
}

func (a StringAttr) Kind() string { return "builtin.string" }

func (a StringAttr) Hash(h *ir.Hasher) { h.WriteString(a.Value) }

func (a StringAttr) Equal(other ir.AttrStorage) bool {
	o, ok := other.(StringAttr)
	return ok && o == a
}

func (a StringAttr) Render(*ir.Context) string { return strconv.Quote(a.Value) }

func (a StringAttr) Verify(*ir.Context) error { return nil }

func (a StringAttr) Type() (ir.Type, bool) { return ir.Type{}, false }

// BoolAttr is a boolean constant.
type BoolAttr struct {
	Value bool
}

func (a BoolAttr) Kind() string { return "builtin.bool" }

func (a BoolAttr) Hash(h *ir.Hasher) { h.WriteBool(a.Value) }

func (a BoolAttr) Equal(other ir.AttrStorage) bool {
	o, ok := other.(BoolAttr)
	return ok && o == a
}

func (a BoolAttr) Render(*ir.Context) string { return strconv.FormatBool(a.Value) }

func (a BoolAttr) Verify(*ir.Context) error { return nil }

func (a BoolAttr) Type() (ir.Type, bool) { return ir.Type{}, false }

// TypeAttr wraps a type so it can be stored in an attribute dictionary.
type TypeAttr struct {
	Value ir.Type
}

func (a TypeAttr) Kind() string { return "builtin.type" }

func (a TypeAttr) Hash(h *ir.Hasher) { h.WriteType(a.Value) }

func (a TypeAttr) Equal(other ir.AttrStorage) bool {
	o, ok := other.(TypeAttr)
	return ok && o == a
}

func (a TypeAttr) Render(c *ir.Context) string { return c.RenderType(a.Value) }

func (a TypeAttr) Verify(c *ir.Context) error {
	_, err := c.TypeStorageOf(a.Value)
	return err
}

func (a TypeAttr) Type() (ir.Type, bool) { return ir.Type{}, false }

// ArrayAttr is an ordered list of attributes.
type ArrayAttr struct {
	Elems []ir.Attr
}

func (a ArrayAttr) Kind() string { return "builtin.array" }

func (a ArrayAttr) Hash(h *ir.Hasher) {
	h.WriteInt(int64(len(a.Elems)))
	for _, e := range a.Elems {
		h.WriteAttr(e)
	}
}

func (a ArrayAttr) Equal(other ir.AttrStorage) bool {
	o, ok := other.(ArrayAttr)
	return ok && slices.Equal(o.Elems, a.Elems)
}

func (a ArrayAttr) Render(c *ir.Context) string {
	parts := make([]string, len(a.Elems))
	for i, e := range a.Elems {
		parts[i] = c.RenderAttr(e)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (a ArrayAttr) Verify(c *ir.Context) error {
	for i, e := range a.Elems {
		if _, err := c.AttrStorageOf(e); err != nil {
			return errors.Wrapf(err, "element %d", i)
		}
	}
	return nil
}

func (a ArrayAttr) Type() (ir.Type, bool) { return ir.Type{}, false }

// UnitAttr carries no value; its presence is the information.
type UnitAttr struct{}

func (UnitAttr) Kind() string { return "builtin.unit" }

func (UnitAttr) Hash(*ir.Hasher) {}

func (UnitAttr) Equal(other ir.AttrStorage) bool {
	_, ok := other.(UnitAttr)
	return ok
}

func (UnitAttr) Render(*ir.Context) string { return "unit" }

func (UnitAttr) Verify(*ir.Context) error { return nil }

func (UnitAttr) Type() (ir.Type, bool) { return ir.Type{}, false }

func sameBits(a, b float64) bool {
	return math.Float64bits(a) == math.Float64bits(b)
}

// IntAttr interns an integer constant.
func IntAttr(c *ir.Context, value int64, t ir.Type) (ir.Attr, error) {
	return c.InternAttr(IntegerAttr{Value: value, Typ: t})
}

// FloatConst interns a float constant.
func FloatConst(c *ir.Context, value float64, t ir.Type) (ir.Attr, error) {
	return c.InternAttr(FloatAttr{Value: value, Typ: t})
}

// String interns a string constant.
func String(c *ir.Context, value string) (ir.Attr, error) {
	return c.InternAttr(StringAttr{Value: value})
}

// Bool interns a boolean constant.
func Bool(c *ir.Context, value bool) (ir.Attr, error) {
	return c.InternAttr(BoolAttr{Value: value})
}

// TypeOf interns a type attribute.
func TypeOf(c *ir.Context, t ir.Type) (ir.Attr, error) {
	return c.InternAttr(TypeAttr{Value: t})
}

// Array interns an array attribute.
func Array(c *ir.Context, elems ...ir.Attr) (ir.Attr, error) {
	return c.InternAttr(ArrayAttr{Elems: slices.Clone(elems)})
}

// Unit interns the unit attribute.
func Unit(c *ir.Context) (ir.Attr, error) {
	return c.InternAttr(UnitAttr{})
}
