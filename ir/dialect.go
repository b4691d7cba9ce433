package ir

import (
	"fmt"
	"sort"
	"strings"

	"github.com/deepnoodle-ai/irkit/errz"
)

// Variadic marks a Signature count that is not fixed.
const Variadic = -1

// Trait is a set of structural properties of an operation kind.
type Trait uint32

const (
	// Terminator marks operations that must end a block.
	Terminator Trait = 1 << iota
	// NoTerminator exempts the blocks of the operation's regions from the
	// terminator requirement.
	NoTerminator
	// EmptyRegions permits the operation's regions to hold no blocks.
	EmptyRegions
	// SingleBlock restricts each region of the operation to at most one block.
	SingleBlock
	// IsolatedFromAbove forbids operations nested in the regions from using
	// values defined outside of it.
	IsolatedFromAbove
)

var traitNames = []struct {
	trait Trait
	name  string
}{
	{Terminator, "terminator"},
	{NoTerminator, "no_terminator"},
	{EmptyRegions, "empty_regions"},
	{SingleBlock, "single_block"},
	{IsolatedFromAbove, "isolated_from_above"},
}

// Has returns true if every trait in x is set.
func (t Trait) Has(x Trait) bool {
	return t&x == x
}

func (t Trait) String() string {
	var names []string
	for _, tn := range traitNames {
		if t.Has(tn.trait) {
			names = append(names, tn.name)
		}
	}
	return strings.Join(names, "|")
}

// Signature declares the shape of an operation kind. A count of Variadic
// accepts any number.
type Signature struct {
	Operands   int
	Results    int
	Regions    int
	Successors int
	Traits     Trait
}

// OpDefinition is the capability contract of an operation kind.
// Definitions are compared by identity, so implementations must be
// comparable; pointer receivers are the norm.
type OpDefinition interface {
	// Name is the qualified operation name, "dialect.op".
	Name() string

	// Signature declares the operation's arity and traits.
	Signature() Signature

	// Verify checks kind-specific invariants of op. It is only called by
	// the verifier, after the structural checks passed.
	Verify(c *Context, op Op) error
}

// OperandConstraint is implemented by operation kinds that restrict operand
// types. It is consulted on creation and on every operand update.
type OperandConstraint interface {
	CheckOperand(c *Context, index int, t Type) error
}

// ResultConstraint is implemented by operation kinds that restrict result
// types. It is consulted on creation.
type ResultConstraint interface {
	CheckResults(c *Context, types []Type) error
}

// AttrConstraint is implemented by operation kinds that restrict their
// attribute dictionary. It is called by the verifier for every attribute.
type AttrConstraint interface {
	VerifyAttr(c *Context, op Op, name string, value Attr) error
}

// OpSpec is a table-driven OpDefinition for kinds that need no custom
// type.
type OpSpec struct {
	OpName     string
	Sig        Signature
	VerifyFunc func(c *Context, op Op) error
}

func (s *OpSpec) Name() string {
	return s.OpName
}

func (s *OpSpec) Signature() Signature {
	return s.Sig
}

func (s *OpSpec) Verify(c *Context, op Op) error {
	if s.VerifyFunc == nil {
		return nil
	}
	return s.VerifyFunc(c, op)
}

// Dialect groups the operation kinds of one namespace. Type and attribute
// kinds need no registration: their storages carry their own capabilities.
type Dialect struct {
	Name string
	Ops  []OpDefinition
}

// RegisterDialect registers every operation kind of d. Operation names must
// be prefixed with the dialect name. Registering the same dialect twice is
// a no-op when the definitions are identical.
func (c *Context) RegisterDialect(d Dialect) error {
	if err := c.mutating(); err != nil {
		return err
	}
	if d.Name == "" || strings.Contains(d.Name, ".") {
		return errz.New(errz.ErrKindInvalidArgument, "dialect", "invalid dialect name %q", d.Name)
	}
	prefix := d.Name + "."
	seen := map[string]bool{}
	for _, def := range d.Ops {
		if def == nil {
			return errz.New(errz.ErrKindInvalidArgument, d.Name, "nil operation definition")
		}
		name := def.Name()
		if !strings.HasPrefix(name, prefix) || len(name) == len(prefix) {
			return errz.New(errz.ErrKindInvalidArgument, d.Name,
				"operation %q is not in the dialect namespace", name)
		}
		if seen[name] {
			return errz.New(errz.ErrKindInvalidArgument, d.Name, "operation %q defined twice", name)
		}
		seen[name] = true
		if existing, ok := c.defs[name]; ok && existing != def {
			return errz.New(errz.ErrKindInvalidArgument, d.Name, "operation %q already registered", name)
		}
		if err := checkSignature(def.Signature()); err != nil {
			return errz.Wrap(err, errz.ErrKindInvalidArgument, name, "invalid signature")
		}
	}
	for _, def := range d.Ops {
		c.defs[def.Name()] = def
	}
	c.dialects[d.Name] = true
	c.log.Debug().Str("dialect", d.Name).Int("ops", len(d.Ops)).Msg("registered dialect")
	return nil
}

func checkSignature(sig Signature) error {
	for _, n := range []int{sig.Operands, sig.Results, sig.Regions, sig.Successors} {
		if n < Variadic {
			return fmt.Errorf("count %d is neither fixed nor variadic", n)
		}
	}
	return nil
}

// LookupOp returns the registered definition for a qualified operation name.
func (c *Context) LookupOp(name string) (OpDefinition, bool) {
	def, ok := c.defs[name]
	return def, ok
}

// IsDialectRegistered returns true if a dialect of that name was registered.
func (c *Context) IsDialectRegistered(name string) bool {
	return c.dialects[name]
}

// Dialects returns the sorted names of the registered dialects.
func (c *Context) Dialects() []string {
	names := make([]string, 0, len(c.dialects))
	for name := range c.dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Context) checkDefinition(def OpDefinition) error {
	if def == nil {
		return errz.New(errz.ErrKindInvalidArgument, "operation", "nil operation definition")
	}
	registered, ok := c.defs[def.Name()]
	if !ok {
		return errz.New(errz.ErrKindInvalidArgument, def.Name(), "operation is not registered")
	}
	if registered != def {
		return errz.New(errz.ErrKindInvalidArgument, def.Name(),
			"definition differs from the registered one")
	}
	return nil
}
