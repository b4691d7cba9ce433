package ir

import (
	"github.com/deepnoodle-ai/irkit/errz"
)

// TypeStorage is the capability contract every type kind implements. A
// storage value is immutable once interned.
type TypeStorage interface {
	// Kind is the qualified kind name, such as "builtin.integer".
	Kind() string

	// Hash feeds every field that participates in Equal into h.
	Hash(h *Hasher)

	// Equal reports structural equality with another storage of any kind.
	Equal(other TypeStorage) bool

	// Render returns a human-readable form of the type.
	Render(c *Context) string

	// Verify checks the parameters of the type before it is interned.
	Verify(c *Context) error
}

func newTypeInterner(owner uint32) *interner[TypeStorage] {
	return newInterner[TypeStorage]("type", owner,
		func(s TypeStorage) string { return s.Kind() },
		func(s TypeStorage, h *Hasher) { s.Hash(h) },
		func(a, b TypeStorage) bool { return a.Equal(b) },
	)
}

// InternType verifies s and returns its canonical handle. Structurally equal
// storages always yield the same handle.
func (c *Context) InternType(s TypeStorage) (Type, error) {
	if s == nil {
		return Type{}, errz.New(errz.ErrKindInvalidArgument, "type", "nil type storage")
	}
	if err := c.mutating(); err != nil {
		return Type{}, err
	}
	if err := s.Verify(c); err != nil {
		return Type{}, errz.Wrap(err, errz.ErrKindVerification, s.Kind(), "invalid type parameters")
	}
	h, err := c.types.intern(s)
	if err != nil {
		return Type{}, err
	}
	return Type(h), nil
}

// LookupType returns the handle of an already interned type structurally
// equal to s, without interning it.
func (c *Context) LookupType(s TypeStorage) (Type, bool) {
	if s == nil {
		return Type{}, false
	}
	h, ok := c.types.lookup(s)
	return Type(h), ok
}

// TypeStorageOf returns the storage behind t.
func (c *Context) TypeStorageOf(t Type) (TypeStorage, error) {
	return c.types.get(t.h())
}

// TypeKind returns the kind name of t, or "" for an invalid handle.
func (c *Context) TypeKind(t Type) string {
	s, err := c.TypeStorageOf(t)
	if err != nil {
		return ""
	}
	return s.Kind()
}

// RenderType returns the human-readable form of t.
func (c *Context) RenderType(t Type) string {
	s, err := c.TypeStorageOf(t)
	if err != nil {
		return "<invalid type>"
	}
	return s.Render(c)
}

// Types returns every interned type in allocation order.
func (c *Context) Types() []Type {
	handles := c.types.all()
	out := make([]Type, len(handles))
	for i, h := range handles {
		out[i] = Type(h)
	}
	return out
}

func (c *Context) checkType(t Type) error {
	return c.types.arena.Check(t.h())
}

// TypeAs returns the storage behind t if it has the concrete type T.
func TypeAs[T TypeStorage](c *Context, t Type) (T, bool) {
	var zero T
	s, err := c.TypeStorageOf(t)
	if err != nil {
		return zero, false
	}
	v, ok := s.(T)
	return v, ok
}
