package ir

import (
	"fmt"

	"github.com/deepnoodle-ai/irkit/arena"
)

// Op is a handle to an operation.
type Op arena.Handle[OperationData]

// Block is a handle to a block.
type Block arena.Handle[BlockData]

// Region is a handle to a region.
type Region arena.Handle[RegionData]

// Type is a handle to an interned type. Two types are equal if and only if
// their handles are equal.
type Type arena.Handle[interned[TypeStorage]]

// Attr is a handle to an interned attribute. Two attributes are equal if and
// only if their handles are equal.
type Attr arena.Handle[interned[AttrStorage]]

// Ident is a handle to an interned identifier.
type Ident arena.Handle[string]

func (o Op) h() arena.Handle[OperationData] { return arena.Handle[OperationData](o) }
func (b Block) h() arena.Handle[BlockData] { return arena.Handle[BlockData](b) }
func (r Region) h() arena.Handle[RegionData] { return arena.Handle[RegionData](r) }
func (t Type) h() arena.Handle[interned[TypeStorage]] { return arena.Handle[interned[TypeStorage]](t) }
func (a Attr) h() arena.Handle[interned[AttrStorage]] { return arena.Handle[interned[AttrStorage]](a) }
func (i Ident) h() arena.Handle[string] { return arena.Handle[string](i) }

// IsNil returns true for the zero handle.
func (o Op) IsNil() bool { return o.h().IsNil() }

// IsNil returns true for the zero handle.
func (b Block) IsNil() bool { return b.h().IsNil() }

// IsNil returns true for the zero handle.
func (r Region) IsNil() bool { return r.h().IsNil() }

// IsNil returns true for the zero handle.
func (t Type) IsNil() bool { return t.h().IsNil() }

// IsNil returns true for the zero handle.
func (a Attr) IsNil() bool { return a.h().IsNil() }

// IsNil returns true for the zero handle.
func (i Ident) IsNil() bool { return i.h().IsNil() }

// Owner returns the serial of the Context that issued the handle.
func (o Op) Owner() uint32 { return o.h().Owner() }

// Owner returns the serial of the Context that issued the handle.
func (b Block) Owner() uint32 { return b.h().Owner() }

// Owner returns the serial of the Context that issued the handle.
func (r Region) Owner() uint32 { return r.h().Owner() }

// Owner returns the serial of the Context that issued the handle.
func (t Type) Owner() uint32 { return t.h().Owner() }

// Owner returns the serial of the Context that issued the handle.
func (a Attr) Owner() uint32 { return a.h().Owner() }

func (o Op) String() string { return "op#" + o.h().String() }
func (b Block) String() string { return "block#" + b.h().String() }
func (r Region) String() string { return "region#" + r.h().String() }
func (t Type) String() string { return "type#" + t.h().String() }
func (a Attr) String() string { return "attr#" + a.h().String() }

// Value is either the result of an operation or an argument of a block.
// Values are never constructed directly; they are obtained from the
// operation or block that defines them.
type Value struct {
	op    Op
	block Block
	index uint32
	// argID identifies a block argument independently of its position.
	argID uint32
}

// IsNil returns true for the zero Value. An operand slot severed by
// UnsafeForceErase holds the zero Value.
func (v Value) IsNil() bool {
	return v.op.IsNil() && v.block.IsNil()
}

// IsResult returns true if the value is an operation result.
func (v Value) IsResult() bool {
	return !v.op.IsNil()
}

// IsBlockArgument returns true if the value is a block argument.
func (v Value) IsBlockArgument() bool {
	return !v.block.IsNil()
}

// DefiningOp returns the operation producing the value, if it is a result.
func (v Value) DefiningOp() (Op, bool) {
	return v.op, !v.op.IsNil()
}

// OwnerBlock returns the block defining the value, if it is an argument.
func (v Value) OwnerBlock() (Block, bool) {
	return v.block, !v.block.IsNil()
}

// DefIndex is the result index or the argument index of the value.
func (v Value) DefIndex() int {
	return int(v.index)
}

// Owner returns the serial of the Context that issued the value.
func (v Value) Owner() uint32 {
	if v.IsResult() {
		return v.op.Owner()
	}
	return v.block.Owner()
}

func (v Value) String() string {
	switch {
	case v.IsResult():
		return fmt.Sprintf("%s#result%d", v.op, v.index)
	case v.IsBlockArgument():
		return fmt.Sprintf("%s#arg%d", v.block, v.index)
	default:
		return "value<nil>"
	}
}

// Use records that operand Index of operation User reads a value. For block
// predecessor bookkeeping, Index is the successor slot instead.
type Use struct {
	User  Op
	Index int
}

func (u Use) String() string {
	return fmt.Sprintf("%s[%d]", u.User, u.Index)
}
