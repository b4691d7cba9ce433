package ir_test

import (
	"testing"

	"github.com/deepnoodle-ai/irkit/internal/testdialect"
	"github.com/deepnoodle-ai/irkit/ir"
	"github.com/stretchr/testify/require"
)

func newContext(t *testing.T, opts ...ir.Option) *ir.Context {
	t.Helper()
	c, err := ir.New(opts...)
	require.NoError(t, err)
	require.NoError(t, testdialect.Register(c))
	return c
}

func constant(t *testing.T, c *ir.Context, v int64) (ir.Op, ir.Value) {
	t.Helper()
	op, err := testdialect.Constant(c, v, testdialect.Int(c, 32))
	require.NoError(t, err)
	data, err := c.Operation(op)
	require.NoError(t, err)
	return op, data.Result(0)
}

func newBlock(t *testing.T, c *ir.Context, label string, args ...ir.Type) ir.Block {
	t.Helper()
	b, err := c.CreateBlock(label, args...)
	require.NoError(t, err)
	return b
}

func appendOps(t *testing.T, c *ir.Context, b ir.Block, ops ...ir.Op) {
	t.Helper()
	for _, op := range ops {
		require.NoError(t, c.AppendOperation(b, op))
	}
}

func opsIn(t *testing.T, c *ir.Context, b ir.Block) []ir.Op {
	t.Helper()
	ops, err := c.OpsIn(b)
	require.NoError(t, err)
	return ops
}

func result(t *testing.T, c *ir.Context, op ir.Op, i int) ir.Value {
	t.Helper()
	data, err := c.Operation(op)
	require.NoError(t, err)
	return data.Result(i)
}

func operand(t *testing.T, c *ir.Context, op ir.Op, i int) ir.Value {
	t.Helper()
	data, err := c.Operation(op)
	require.NoError(t, err)
	return data.Operand(i)
}

// regionOp creates a detached test.region whose region holds one block per
// label and returns the operation and the blocks.
func regionOp(t *testing.T, c *ir.Context, labels ...string) (ir.Op, []ir.Block) {
	t.Helper()
	op, err := c.CreateOperation(testdialect.RegionOp, nil, nil, 1)
	require.NoError(t, err)
	data, err := c.Operation(op)
	require.NoError(t, err)
	var blocks []ir.Block
	for _, label := range labels {
		b := newBlock(t, c, label)
		require.NoError(t, c.AppendBlock(data.Region(0), b))
		blocks = append(blocks, b)
	}
	return op, blocks
}

// requireUseDefSymmetry checks, for every live operation reachable from the
// top level, that operand slots and use lists agree in both directions.
func requireUseDefSymmetry(t *testing.T, c *ir.Context) {
	t.Helper()
	checkValue := func(v ir.Value) {
		uses, err := c.Uses(v)
		require.NoError(t, err)
		for _, u := range uses {
			require.Equal(t, v, operand(t, c, u.User, u.Index), "use %s of %s", u, v)
		}
	}
	for _, root := range c.TopLevel() {
		err := c.Walk(root, ir.PreOrder, func(op ir.Op) error {
			data, err := c.Operation(op)
			require.NoError(t, err)
			for i, v := range data.Operands() {
				if v.IsNil() {
					continue
				}
				uses, err := c.Uses(v)
				require.NoError(t, err)
				require.Contains(t, uses, ir.Use{User: op, Index: i})
			}
			for _, r := range data.Results() {
				checkValue(r)
			}
			for _, region := range data.Regions() {
				blocks, err := c.BlocksIn(region)
				require.NoError(t, err)
				for _, b := range blocks {
					bd, err := c.Block(b)
					require.NoError(t, err)
					for _, a := range bd.Arguments() {
						checkValue(a)
					}
				}
			}
			return nil
		})
		require.NoError(t, err)
	}
}
