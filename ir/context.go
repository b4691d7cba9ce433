// Package ir implements the IR substrate: a Context owning generation-checked
// arenas of operations, regions and blocks, interners for types, attributes
// and identifiers, and the def-use bookkeeping that ties the graph together.
//
// All cross references are handles. Ownership (operation -> region -> block
// -> operation) is a strict tree; control flow between blocks is expressed
// through successor operands, which are ordinary use-tracked slots and never
// an ownership edge.
//
// A Context is a single-writer structure. Mutations assume exclusive access
// and read-only traversals may run concurrently with each other. Callers make
// this explicit with Exclusive and Shared:
//
//	err := c.Exclusive(func(c *ir.Context) error {
//		op, err := c.CreateOperation(def, operands, resultTypes, 0)
//		if err != nil {
//			return err
//		}
//		return c.AppendOperation(block, op)
//	})
package ir

import (
	"sync"
	"sync/atomic"

	"github.com/deepnoodle-ai/irkit/arena"
	"github.com/deepnoodle-ai/irkit/errz"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
)

var lastSerial atomic.Uint32

// Context owns every entity of one compilation session.
type Context struct {
	id     uuid.UUID
	serial uint32

	ops     *arena.Arena[OperationData]
	regions *arena.Arena[RegionData]
	blocks  *arena.Arena[BlockData]
	types   *interner[TypeStorage]
	attrs   *interner[AttrStorage]
	idents  *identTable

	defs     map[string]OpDefinition
	dialects map[string]bool

	log      zerolog.Logger
	listener Listener
	config   Config

	mu *sync.RWMutex
	// scoped is set only on the view handed to an Exclusive callback.
	scoped bool
}

// Stats counts the live entities of a Context.
type Stats struct {
	Operations int
	Regions    int
	Blocks     int
	Types      int
	Attrs      int
	Idents     int
}

// New creates an empty Context.
func New(opts ...Option) (*Context, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.config.validate(); err != nil {
		return nil, err
	}
	level, _ := o.config.level()
	id, err := uuid.NewV4()
	if err != nil {
		return nil, errz.Wrap(err, errz.ErrKindInvalidArgument, "context", "generating context id")
	}
	serial := lastSerial.Add(1)
	c := &Context{
		id:       id,
		serial:   serial,
		ops:      arena.New[OperationData]("op", serial),
		regions:  arena.New[RegionData]("region", serial),
		blocks:   arena.New[BlockData]("block", serial),
		types:    newTypeInterner(serial),
		attrs:    newAttrInterner(serial),
		idents:   newIdentTable(serial),
		defs:     map[string]OpDefinition{},
		dialects: map[string]bool{},
		listener: o.listener,
		config:   o.config,
		mu:       &sync.RWMutex{},
	}
	c.log = o.logger.Level(level).With().Str("ctx", id.String()).Logger()
	return c, nil
}

// ID returns the unique identifier of the Context.
func (c *Context) ID() uuid.UUID {
	return c.id
}

// Serial returns the owner tag stamped into every handle the Context issues.
func (c *Context) Serial() uint32 {
	return c.serial
}

// Config returns the configuration of the Context.
func (c *Context) Config() Config {
	return c.config
}

// Logger returns the Context logger.
func (c *Context) Logger() zerolog.Logger {
	return c.log
}

// Stats returns the number of live entities per arena.
func (c *Context) Stats() Stats {
	return Stats{
		Operations: c.ops.Len(),
		Regions:    c.regions.Len(),
		Blocks:     c.blocks.Len(),
		Types:      c.types.arena.Len(),
		Attrs:      c.attrs.arena.Len(),
		Idents:     c.idents.arena.Len(),
	}
}

// Exclusive runs fn with exclusive access to the Context. fn receives a
// scoped view of the Context that shares all of its state; with
// RequireExclusive set, only that view may mutate, and only until fn
// returns. Mutations made from fn are never observed by a concurrent Shared
// scope. The lock is released when fn returns or panics.
func (c *Context) Exclusive(fn func(c *Context) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	view := *c
	view.scoped = true
	defer func() { view.scoped = false }()
	return fn(&view)
}

// Shared runs fn with shared access to the Context. Any number of Shared
// scopes may run concurrently; fn must not mutate the Context.
func (c *Context) Shared(fn func(c *Context) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fn(c)
}

// mutating is called at the top of every mutation.
func (c *Context) mutating() error {
	if c.config.RequireExclusive && !c.scoped {
		return errz.New(errz.ErrKindLockDiscipline, "context", "mutation outside an exclusive scope")
	}
	return nil
}

// CheckInterners re-derives the type and attribute indexes and reports the
// first inconsistency as errz.ErrInternerCorruption.
func (c *Context) CheckInterners() error {
	if err := c.types.check(); err != nil {
		return err
	}
	return c.attrs.check()
}

func (c *Context) opData(op Op) (*OperationData, error) {
	return c.ops.Get(op.h())
}

func (c *Context) blockData(b Block) (*BlockData, error) {
	return c.blocks.Get(b.h())
}

func (c *Context) regionData(r Region) (*RegionData, error) {
	return c.regions.Get(r.h())
}

// Operation resolves op. The returned data is read-only for callers;
// mutations go through Context methods so def-use links stay consistent.
func (c *Context) Operation(op Op) (*OperationData, error) {
	return c.opData(op)
}

// Block resolves b.
func (c *Context) Block(b Block) (*BlockData, error) {
	return c.blockData(b)
}

// Region resolves r.
func (c *Context) Region(r Region) (*RegionData, error) {
	return c.regionData(r)
}

// IsLive reports whether op still resolves.
func (c *Context) IsLive(op Op) bool {
	return c.ops.Contains(op.h())
}

// IsBlockLive reports whether b still resolves.
func (c *Context) IsBlockLive(b Block) bool {
	return c.blocks.Contains(b.h())
}

// describe names an operation for error messages.
func (c *Context) describe(op Op) string {
	data, err := c.opData(op)
	if err != nil {
		return op.String()
	}
	return data.Name() + " " + op.String()
}
