package ir

import (
	"github.com/deepnoodle-ai/irkit/arena"
	"github.com/deepnoodle-ai/irkit/errz"
)

type identTable struct {
	arena  *arena.Arena[string]
	byName map[string]Ident
}

func newIdentTable(owner uint32) *identTable {
	return &identTable{
		arena:  arena.New[string]("ident", owner),
		byName: map[string]Ident{},
	}
}

// Ident interns name and returns its identifier handle.
func (c *Context) Ident(name string) (Ident, error) {
	if name == "" {
		return Ident{}, errz.New(errz.ErrKindInvalidArgument, "ident", "empty identifier")
	}
	if id, ok := c.idents.byName[name]; ok {
		return id, nil
	}
	if err := c.mutating(); err != nil {
		return Ident{}, err
	}
	id := Ident(c.idents.arena.Alloc(name))
	c.idents.byName[name] = id
	return id, nil
}

// LookupIdent returns the identifier for name if it was interned before.
func (c *Context) LookupIdent(name string) (Ident, bool) {
	id, ok := c.idents.byName[name]
	return id, ok
}

// IdentString returns the text of an identifier.
func (c *Context) IdentString(id Ident) (string, error) {
	s, err := c.idents.arena.Get(id.h())
	if err != nil {
		return "", err
	}
	return *s, nil
}

func (c *Context) identName(id Ident) string {
	s, err := c.IdentString(id)
	if err != nil {
		return "<invalid ident>"
	}
	return s
}
