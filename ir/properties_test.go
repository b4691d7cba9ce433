package ir_test

import (
	"slices"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/deepnoodle-ai/irkit/errz"
	"github.com/deepnoodle-ai/irkit/internal/testdialect"
	"github.com/deepnoodle-ai/irkit/ir"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// graphMachine mutates one block at random and checks after every step
// that the def-use graph and the block order match a shadow model.
type graphMachine struct {
	c      *ir.Context
	body   ir.Block
	order  []ir.Op
	values []ir.Value
	users  []ir.Op
	erased []ir.Op
}

func newGraphMachine(t *rapid.T) *graphMachine {
	c, err := ir.New()
	require.NoError(t, err)
	require.NoError(t, testdialect.Register(c))
	op, err := c.CreateOperation(testdialect.RegionOp, nil, nil, 1)
	require.NoError(t, err)
	data, err := c.Operation(op)
	require.NoError(t, err)
	body, err := c.CreateBlock("body")
	require.NoError(t, err)
	require.NoError(t, c.AppendBlock(data.Region(0), body))
	return &graphMachine{c: c, body: body, order: []ir.Op{}}
}

func (m *graphMachine) pickValue(t *rapid.T, label string) ir.Value {
	return m.values[rapid.IntRange(0, len(m.values)-1).Draw(t, label)]
}

func (m *graphMachine) constant(t *rapid.T) {
	op, err := testdialect.Constant(m.c, rapid.Int64().Draw(t, "value"), testdialect.Int(m.c, 32))
	require.NoError(t, err)
	pos := rapid.IntRange(0, len(m.order)).Draw(t, "pos")
	require.NoError(t, m.c.InsertOperation(m.body, pos, op))
	m.order = slices.Insert(m.order, pos, op)
	data, err := m.c.Operation(op)
	require.NoError(t, err)
	m.values = append(m.values, data.Result(0))
}

func (m *graphMachine) user(t *rapid.T) {
	if len(m.values) == 0 {
		t.Skip("no values")
	}
	n := rapid.IntRange(1, 3).Draw(t, "operands")
	operands := make([]ir.Value, n)
	for i := range operands {
		operands[i] = m.pickValue(t, "operand")
	}
	op, err := m.c.CreateOperation(testdialect.Op, operands, nil, 0)
	require.NoError(t, err)
	require.NoError(t, m.c.AppendOperation(m.body, op))
	m.order = append(m.order, op)
	m.users = append(m.users, op)
}

func (m *graphMachine) setOperand(t *rapid.T) {
	if len(m.users) == 0 {
		t.Skip("no users")
	}
	op := m.users[rapid.IntRange(0, len(m.users)-1).Draw(t, "user")]
	data, err := m.c.Operation(op)
	require.NoError(t, err)
	i := rapid.IntRange(0, data.NumOperands()-1).Draw(t, "index")
	v := m.pickValue(t, "value")
	require.NoError(t, m.c.SetOperand(op, i, v))
	require.Equal(t, v, data.Operand(i))
}

func (m *graphMachine) replace(t *rapid.T) {
	if len(m.values) == 0 {
		t.Skip("no values")
	}
	old, new := m.pickValue(t, "old"), m.pickValue(t, "new")
	require.NoError(t, m.c.ReplaceAllUses(old, new))
	if old != new {
		require.False(t, m.c.HasUses(old))
	}
}

func (m *graphMachine) erase(t *rapid.T) {
	if len(m.order) == 0 {
		t.Skip("empty block")
	}
	op := m.order[rapid.IntRange(0, len(m.order)-1).Draw(t, "victim")]
	data, err := m.c.Operation(op)
	require.NoError(t, err)
	live := false
	for _, r := range data.Results() {
		live = live || m.c.HasUses(r)
	}
	err = m.c.EraseOperation(op)
	if live {
		require.True(t, errors.Is(err, errz.ErrDanglingUse), "got %v", err)
		return
	}
	require.NoError(t, err)
	m.order = slices.DeleteFunc(m.order, func(o ir.Op) bool { return o == op })
	m.users = slices.DeleteFunc(m.users, func(o ir.Op) bool { return o == op })
	m.values = slices.DeleteFunc(m.values, func(v ir.Value) bool {
		def, ok := v.DefiningOp()
		return ok && def == op
	})
	m.erased = append(m.erased, op)
}

func (m *graphMachine) check(t *rapid.T) {
	ops, err := m.c.OpsIn(m.body)
	require.NoError(t, err)
	require.Equal(t, m.order, ops)

	for _, op := range m.order {
		data, err := m.c.Operation(op)
		require.NoError(t, err)
		for i, v := range data.Operands() {
			uses, err := m.c.Uses(v)
			require.NoError(t, err)
			require.Contains(t, uses, ir.Use{User: op, Index: i})
		}
	}
	for _, v := range m.values {
		uses, err := m.c.Uses(v)
		require.NoError(t, err)
		for _, u := range uses {
			data, err := m.c.Operation(u.User)
			require.NoError(t, err)
			require.Equal(t, v, data.Operand(u.Index))
		}
	}
	for _, op := range m.erased {
		_, err := m.c.Operation(op)
		require.True(t, errors.Is(err, errz.ErrStaleHandle), "got %v", err)
		require.False(t, m.c.IsLive(op))
	}
}

func TestGraphMutationsKeepUseDefSymmetry(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := newGraphMachine(t)
		t.Repeat(map[string]func(*rapid.T){
			"constant":   m.constant,
			"user":       m.user,
			"setOperand": m.setOperand,
			"replace":    m.replace,
			"erase":      m.erase,
			"":           m.check,
		})
	})
}

func TestDetachReinsertPreservesUses(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		c, err := ir.New()
		require.NoError(t, err)
		require.NoError(t, testdialect.Register(c))
		src, err := c.CreateBlock("src")
		require.NoError(t, err)
		dst, err := c.CreateBlock("dst")
		require.NoError(t, err)

		def, err := testdialect.Constant(c, 7, testdialect.Int(c, 32))
		require.NoError(t, err)
		require.NoError(t, c.AppendOperation(src, def))
		data, err := c.Operation(def)
		require.NoError(t, err)
		v := data.Result(0)

		n := rapid.IntRange(1, 8).Draw(t, "users")
		var users []ir.Op
		for range n {
			op, err := c.CreateOperation(testdialect.Op, []ir.Value{v}, nil, 0)
			require.NoError(t, err)
			require.NoError(t, c.AppendOperation(src, op))
			users = append(users, op)
		}
		moved := users[rapid.IntRange(0, n-1).Draw(t, "moved")]
		require.NoError(t, c.DetachOperation(moved))
		require.NoError(t, c.AppendOperation(dst, moved))

		require.Equal(t, n, c.NumUses(v))
		ops, err := c.OpsIn(dst)
		require.NoError(t, err)
		require.Equal(t, []ir.Op{moved}, ops)
		md, err := c.Operation(moved)
		require.NoError(t, err)
		require.Equal(t, dst, md.Parent())
	})
}
