package ir

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/deepnoodle-ai/irkit/errz"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

type pairType struct{ a, b int }

func (p pairType) Kind() string   { return "t.pair" }
func (p pairType) Hash(h *Hasher) { h.WriteInt(int64(p.a)); h.WriteInt(int64(p.b)) }

func (p pairType) Verify(*Context) error {
	if p.a < 0 {
		return errors.New("negative")
	}
	return nil
}
func (p pairType) Render(*Context) string { return fmt.Sprintf("pair<%d, %d>", p.a, p.b) }

func (p pairType) Equal(other TypeStorage) bool {
	o, ok := other.(pairType)
	return ok && o == p
}

// tagType has the same fields as pairType under another kind.
type tagType struct{ a, b int }

func (t tagType) Kind() string           { return "t.tag" }
func (t tagType) Hash(h *Hasher)         { h.WriteInt(int64(t.a)); h.WriteInt(int64(t.b)) }
func (t tagType) Verify(*Context) error  { return nil }
func (t tagType) Render(*Context) string { return "tag" }

func (t tagType) Equal(other TypeStorage) bool {
	o, ok := other.(tagType)
	return ok && o == t
}

// mutableType breaks the immutability contract: its hashed state lives
// behind a pointer the test can change after interning.
type mutableType struct{ v *int }

func (m mutableType) Kind() string           { return "t.mutable" }
func (m mutableType) Hash(h *Hasher)         { h.WriteInt(int64(*m.v)) }
func (m mutableType) Verify(*Context) error  { return nil }
func (m mutableType) Render(*Context) string { return fmt.Sprint(*m.v) }

func (m mutableType) Equal(other TypeStorage) bool {
	o, ok := other.(mutableType)
	return ok && *o.v == *m.v
}

// lenientType breaks the symmetry of equality: a lenient value equals any
// lenientType with the same v, a strict one only its exact twin.
type lenientType struct {
	v       int
	lenient bool
}

func (l lenientType) Kind() string           { return "t.lenient" }
func (l lenientType) Hash(h *Hasher)         { h.WriteInt(int64(l.v)) }
func (l lenientType) Verify(*Context) error  { return nil }
func (l lenientType) Render(*Context) string { return "lenient" }

func (l lenientType) Equal(other TypeStorage) bool {
	o, ok := other.(lenientType)
	if !ok || o.v != l.v {
		return false
	}
	return l.lenient || o == l
}

type nameAttr struct{ s string }

func (n nameAttr) Kind() string           { return "t.name" }
func (n nameAttr) Hash(h *Hasher)         { h.WriteString(n.s) }
func (n nameAttr) Verify(*Context) error  { return nil }
func (n nameAttr) Render(*Context) string { return n.s }
func (n nameAttr) Type() (Type, bool)     { return Type{}, false }

func (n nameAttr) Equal(o AttrStorage) bool {
	other, ok := o.(nameAttr)
	return ok && other == n
}

func newTestContext(t *testing.T) *Context {
	t.Helper()
	c, err := New()
	require.NoError(t, err)
	return c
}

func TestInternTypeUniquing(t *testing.T) {
	c := newTestContext(t)
	a, err := c.InternType(pairType{1, 2})
	require.NoError(t, err)
	b, err := c.InternType(pairType{1, 2})
	require.NoError(t, err)
	require.Equal(t, a, b)

	other, err := c.InternType(pairType{2, 1})
	require.NoError(t, err)
	require.NotEqual(t, a, other)

	// Same hash inputs under another kind never alias.
	tag, err := c.InternType(tagType{1, 2})
	require.NoError(t, err)
	require.NotEqual(t, a, tag)
	require.Equal(t, "t.tag", c.TypeKind(tag))

	require.Len(t, c.Types(), 3)
	require.Equal(t, "pair<1, 2>", c.RenderType(a))
	p, ok := TypeAs[pairType](c, a)
	require.True(t, ok)
	require.Equal(t, pairType{1, 2}, p)
	_, ok = TypeAs[tagType](c, a)
	require.False(t, ok)
	require.NoError(t, c.CheckInterners())
}

func TestInternTypeRejectsInvalid(t *testing.T) {
	c := newTestContext(t)
	_, err := c.InternType(pairType{-1, 0})
	require.True(t, errors.Is(err, errz.ErrVerification), "got %v", err)
	_, err = c.InternType(nil)
	require.True(t, errors.Is(err, errz.ErrInvalidArgument))
	require.Empty(t, c.Types())
}

func TestLookupType(t *testing.T) {
	c := newTestContext(t)
	_, ok := c.LookupType(pairType{3, 4})
	require.False(t, ok)
	require.Empty(t, c.Types())

	want, err := c.InternType(pairType{3, 4})
	require.NoError(t, err)
	got, ok := c.LookupType(pairType{3, 4})
	require.True(t, ok)
	require.Equal(t, want, got)
}

func TestInternAttr(t *testing.T) {
	c := newTestContext(t)
	a, err := c.InternAttr(nameAttr{"x"})
	require.NoError(t, err)
	b, err := c.InternAttr(nameAttr{"x"})
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Equal(t, "x", c.RenderAttr(a))
	require.Equal(t, "t.name", c.AttrKind(a))
	n, ok := AttrAs[nameAttr](c, a)
	require.True(t, ok)
	require.Equal(t, "x", n.s)
	_, ok = c.AttrType(a)
	require.False(t, ok)
}

func TestInternerUniquingProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("equal storages share a handle", prop.ForAll(
		func(a, b int) bool {
			c, err := New()
			if err != nil {
				return false
			}
			first, err := c.InternType(pairType{a, b})
			if err != nil {
				return false
			}
			second, err := c.InternType(pairType{a, b})
			return err == nil && first == second && len(c.Types()) == 1
		},
		gen.IntRange(0, 1000),
		gen.IntRange(-1000, 1000),
	))

	properties.Property("handles are equal iff storages are equal", prop.ForAll(
		func(xs []int) bool {
			c, err := New()
			if err != nil {
				return false
			}
			handles := map[int]Type{}
			for _, x := range xs {
				h, err := c.InternType(pairType{x % 7, x % 3})
				if err != nil {
					return false
				}
				handles[x] = h
			}
			for x, hx := range handles {
				for y, hy := range handles {
					same := pairType{x % 7, x % 3} == pairType{y % 7, y % 3}
					if same != (hx == hy) {
						return false
					}
				}
			}
			return c.CheckInterners() == nil
		},
		gen.SliceOf(gen.IntRange(0, 100)),
	))

	properties.TestingRun(t)
}

func TestInternerDetectsMutatedStorage(t *testing.T) {
	c := newTestContext(t)
	v := 1
	_, err := c.InternType(mutableType{&v})
	require.NoError(t, err)
	require.NoError(t, c.CheckInterners())

	v = 2
	err = c.CheckInterners()
	require.True(t, errors.Is(err, errz.ErrInternerCorruption), "got %v", err)

	// The index still answers lookups; only the check sees the damage.
	w := 3
	_, err = c.InternType(mutableType{&w})
	require.NoError(t, err)
	require.True(t, errors.Is(c.CheckInterners(), errz.ErrInternerCorruption))
}

func TestInternerDetectsAsymmetricEquality(t *testing.T) {
	c := newTestContext(t)
	_, err := c.InternType(lenientType{v: 5, lenient: true})
	require.NoError(t, err)
	_, err = c.InternType(lenientType{v: 5, lenient: false})
	require.True(t, errors.Is(err, errz.ErrInternerCorruption), "got %v", err)

	kind, ok := errz.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errz.ErrKindInternerCorruption, kind)
}
