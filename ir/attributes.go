package ir

import (
	"slices"

	"github.com/deepnoodle-ai/irkit/errz"
)

// AttrStorage is the capability contract every attribute kind implements.
// A storage value is immutable once interned.
type AttrStorage interface {
	// Kind is the qualified kind name, such as "builtin.integer".
	Kind() string

	// Hash feeds every field that participates in Equal into h.
	Hash(h *Hasher)

	// Equal reports structural equality with another storage of any kind.
	Equal(other AttrStorage) bool

	// Render returns a human-readable form of the attribute.
	Render(c *Context) string

	// Verify checks the parameters of the attribute before it is interned.
	Verify(c *Context) error

	// Type returns the type carried by the attribute, if it has one.
	Type() (Type, bool)
}

// AttrVerifier is implemented by attribute kinds that restrict where they
// may be attached. It is called by the verifier for every attribute on an
// operation.
type AttrVerifier interface {
	VerifyOn(c *Context, op Op, name string) error
}

// NamedAttr is an entry of an attribute dictionary.
type NamedAttr struct {
	Name  Ident
	Value Attr
}

func newAttrInterner(owner uint32) *interner[AttrStorage] {
	return newInterner[AttrStorage]("attr", owner,
		func(s AttrStorage) string { return s.Kind() },
		func(s AttrStorage, h *Hasher) { s.Hash(h) },
		func(a, b AttrStorage) bool { return a.Equal(b) },
	)
}

// InternAttr verifies s and returns its canonical handle. Structurally equal
// storages always yield the same handle.
func (c *Context) InternAttr(s AttrStorage) (Attr, error) {
	if s == nil {
		return Attr{}, errz.New(errz.ErrKindInvalidArgument, "attr", "nil attribute storage")
	}
	if err := c.mutating(); err != nil {
		return Attr{}, err
	}
	if t, ok := s.Type(); ok {
		if err := c.checkType(t); err != nil {
			return Attr{}, err
		}
	}
	if err := s.Verify(c); err != nil {
		return Attr{}, errz.Wrap(err, errz.ErrKindVerification, s.Kind(), "invalid attribute parameters")
	}
	h, err := c.attrs.intern(s)
	if err != nil {
		return Attr{}, err
	}
	return Attr(h), nil
}

// LookupAttr returns the handle of an already interned attribute
// structurally equal to s, without interning it.
func (c *Context) LookupAttr(s AttrStorage) (Attr, bool) {
	if s == nil {
		return Attr{}, false
	}
	h, ok := c.attrs.lookup(s)
	return Attr(h), ok
}

// AttrStorageOf returns the storage behind a.
func (c *Context) AttrStorageOf(a Attr) (AttrStorage, error) {
	return c.attrs.get(a.h())
}

// AttrKind returns the kind name of a, or "" for an invalid handle.
func (c *Context) AttrKind(a Attr) string {
	s, err := c.AttrStorageOf(a)
	if err != nil {
		return ""
	}
	return s.Kind()
}

// AttrType returns the type carried by a, if any.
func (c *Context) AttrType(a Attr) (Type, bool) {
	s, err := c.AttrStorageOf(a)
	if err != nil {
		return Type{}, false
	}
	return s.Type()
}

// RenderAttr returns the human-readable form of a.
func (c *Context) RenderAttr(a Attr) string {
	s, err := c.AttrStorageOf(a)
	if err != nil {
		return "<invalid attr>"
	}
	return s.Render(c)
}

// Attrs returns every interned attribute in allocation order.
func (c *Context) Attrs() []Attr {
	handles := c.attrs.all()
	out := make([]Attr, len(handles))
	for i, h := range handles {
		out[i] = Attr(h)
	}
	return out
}

func (c *Context) checkAttr(a Attr) error {
	return c.attrs.arena.Check(a.h())
}

// AttrAs returns the storage behind a if it has the concrete type T.
func AttrAs[T AttrStorage](c *Context, a Attr) (T, bool) {
	var zero T
	s, err := c.AttrStorageOf(a)
	if err != nil {
		return zero, false
	}
	v, ok := s.(T)
	return v, ok
}

// attrDict is an ordered attribute dictionary keyed by identifier.
type attrDict []NamedAttr

func (d attrDict) get(name Ident) (Attr, bool) {
	for _, na := range d {
		if na.Name == name {
			return na.Value, true
		}
	}
	return Attr{}, false
}

func (d *attrDict) set(name Ident, value Attr) {
	for i, na := range *d {
		if na.Name == name {
			(*d)[i].Value = value
			return
		}
	}
	*d = append(*d, NamedAttr{Name: name, Value: value})
}

func (d *attrDict) remove(name Ident) bool {
	for i, na := range *d {
		if na.Name == name {
			*d = slices.Delete(*d, i, i+1)
			return true
		}
	}
	return false
}

func (d attrDict) clone() []NamedAttr {
	return slices.Clone([]NamedAttr(d))
}
