package ir

// Listener observes graph mutations. Implementations can be used for
// change tracking, rewrite drivers that maintain worklists, or tracing,
// without modifying the core.
//
// Implementations can embed NoOpListener to provide default no-op
// implementations for methods they don't need. Listener methods must not
// mutate the Context.
type Listener interface {
	// OperationCreated is called after an operation and its results and
	// regions are allocated and its operand uses are registered.
	OperationCreated(op Op)

	// OperationInserted is called after op is linked into block.
	OperationInserted(op Op, block Block)

	// OperationDetached is called after op is unlinked from block.
	OperationDetached(op Op, block Block)

	// OperationErased is called for every erased operation, innermost
	// first. The handle is already stale when the call is made.
	OperationErased(op Op)

	// OperandChanged is called after operand index of op changed from old
	// to new. Either value may be nil.
	OperandChanged(op Op, index int, old, new Value)

	// BlockCreated is called after a block is allocated.
	BlockCreated(block Block)

	// BlockErased is called for every erased block. The handle is already
	// stale when the call is made.
	BlockErased(block Block)
}

// NoOpListener implements Listener with no-op methods.
type NoOpListener struct{}

func (NoOpListener) OperationCreated(Op) {}
func (NoOpListener) OperationInserted(Op, Block) {}
func (NoOpListener) OperationDetached(Op, Block) {}
func (NoOpListener) OperationErased(Op) {}
func (NoOpListener) OperandChanged(Op, int, Value, Value) {}
func (NoOpListener) BlockCreated(Block) {}
func (NoOpListener) BlockErased(Block) {}
