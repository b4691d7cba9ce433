package dump

import (
	"bytes"
	"strings"
	"testing"

	"github.com/deepnoodle-ai/irkit/internal/testdialect"
	"github.com/deepnoodle-ai/irkit/ir"
	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

type fixture struct {
	c     *ir.Context
	root  ir.Op
	entry ir.Block
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	c, err := ir.New()
	require.NoError(t, err)
	require.NoError(t, testdialect.Register(c))
	root, err := c.CreateOperation(testdialect.RegionOp, nil, nil, 1)
	require.NoError(t, err)
	data, err := c.Operation(root)
	require.NoError(t, err)
	entry, err := c.CreateBlock("entry")
	require.NoError(t, err)
	require.NoError(t, c.AppendBlock(data.Region(0), entry))
	return fixture{c: c, root: root, entry: entry}
}

func (f fixture) constant(t *testing.T, b ir.Block, v int64) ir.Value {
	t.Helper()
	op, err := testdialect.Constant(f.c, v, testdialect.Int(f.c, 32))
	require.NoError(t, err)
	require.NoError(t, f.c.AppendOperation(b, op))
	data, err := f.c.Operation(op)
	require.NoError(t, err)
	return data.Result(0)
}

func (f fixture) append(t *testing.T, b ir.Block, state ir.OperationState) ir.Op {
	t.Helper()
	op, err := f.c.Create(state)
	require.NoError(t, err)
	require.NoError(t, f.c.AppendOperation(b, op))
	return op
}

func TestPrint(t *testing.T) {
	f := newFixture(t)
	v := f.constant(t, f.entry, 1)
	f.append(t, f.entry, ir.OperationState{Definition: testdialect.Op, Operands: []ir.Value{v}})
	f.append(t, f.entry, ir.OperationState{Definition: testdialect.Ret})

	want := strings.Join([]string{
		"test.region() : () -> () {",
		"  ^entry:",
		"    %0 = test.const() {value = 1 : i32} : () -> (i32)",
		"    test.op(%0) : (i32) -> ()",
		"    test.ret() : () -> ()",
		"}",
		"",
	}, "\n")
	require.Equal(t, want, Sprint(f.c, f.root))
}

func TestPrintControlFlow(t *testing.T) {
	f := newFixture(t)
	data, err := f.c.Operation(f.root)
	require.NoError(t, err)
	i32 := testdialect.Int(f.c, 32)
	loop, err := f.c.CreateBlock("loop", i32)
	require.NoError(t, err)
	exit, err := f.c.CreateBlock("")
	require.NoError(t, err)
	require.NoError(t, f.c.AppendBlock(data.Region(0), loop))
	require.NoError(t, f.c.AppendBlock(data.Region(0), exit))

	cond := f.constant(t, f.entry, 0)
	f.append(t, f.entry, ir.OperationState{
		Definition: testdialect.CondBr,
		Operands:   []ir.Value{cond},
		Successors: []ir.Block{loop, exit},
	})
	ld, err := f.c.Block(loop)
	require.NoError(t, err)
	f.append(t, loop, ir.OperationState{
		Definition: testdialect.Br,
		Operands:   []ir.Value{ld.Argument(0)},
		Successors: []ir.Block{loop},
	})
	f.append(t, exit, ir.OperationState{Definition: testdialect.Ret, Operands: []ir.Value{cond}})

	want := strings.Join([]string{
		"test.region() : () -> () {",
		"  ^entry:",
		"    %0 = test.const() {value = 0 : i32} : () -> (i32)",
		"    test.cond_br(%0) [^loop, ^bb2] : (i32) -> ()",
		"  ^loop(%1: i32):",
		"    test.br(%1) [^loop] : (i32) -> ()",
		"  ^bb2:",
		"    test.ret(%0) : (i32) -> ()",
		"}",
		"",
	}, "\n")
	require.Equal(t, want, Sprint(f.c, f.root))
}

func TestPrintNestedRegions(t *testing.T) {
	f := newFixture(t)
	inner, err := f.c.CreateOperation(testdialect.RegionOp, nil, []ir.Type{testdialect.Int(f.c, 8)}, 1)
	require.NoError(t, err)
	require.NoError(t, f.c.AppendOperation(f.entry, inner))
	data, err := f.c.Operation(inner)
	require.NoError(t, err)
	body, err := f.c.CreateBlock("body")
	require.NoError(t, err)
	require.NoError(t, f.c.AppendBlock(data.Region(0), body))
	f.append(t, body, ir.OperationState{Definition: testdialect.Ret})
	f.append(t, f.entry, ir.OperationState{Definition: testdialect.Ret, Operands: []ir.Value{data.Result(0)}})

	want := strings.Join([]string{
		"test.region() : () -> () {",
		"  ^entry:",
		"    %0 = test.region() : () -> (i8) {",
		"      ^body:",
		"        test.ret() : () -> ()",
		"    }",
		"    test.ret(%0) : (i8) -> ()",
		"}",
		"",
	}, "\n")
	require.Equal(t, want, Sprint(f.c, f.root))
}

func TestPrintBrokenGraph(t *testing.T) {
	f := newFixture(t)
	v := f.constant(t, f.entry, 1)
	f.append(t, f.entry, ir.OperationState{Definition: testdialect.Op, Operands: []ir.Value{v}})
	def, _ := v.DefiningOp()
	_, err := f.c.UnsafeForceErase(def)
	require.NoError(t, err)
	require.Contains(t, Sprint(f.c, f.root), "test.op(<null>) : (?) -> ()")

	require.NoError(t, f.c.EraseOperation(f.root))
	require.Contains(t, Sprint(f.c, f.root), "stale handle")
}

func TestPrintContext(t *testing.T) {
	f := newFixture(t)
	f.append(t, f.entry, ir.OperationState{Definition: testdialect.Ret})
	other, err := f.c.CreateOperation(testdialect.Op, nil, nil, 0)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, PrintContext(f.c, &buf))
	out := buf.String()
	require.Contains(t, out, "test.region() : () -> () {")
	require.True(t, strings.HasSuffix(out, "test.op() : () -> ()\n"), out)
	require.NotEqual(t, ir.Op{}, other)
}

func TestUseTable(t *testing.T) {
	f := newFixture(t)
	v := f.constant(t, f.entry, 1)
	f.append(t, f.entry, ir.OperationState{Definition: testdialect.Op, Operands: []ir.Value{v, v}})
	f.append(t, f.entry, ir.OperationState{Definition: testdialect.Ret, Operands: []ir.Value{v}})

	var buf bytes.Buffer
	require.NoError(t, UseTable(f.c, &buf, f.root))
	out := buf.String()
	require.Contains(t, out, "VALUE")
	require.Contains(t, out, "DEFINED BY")
	var row string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "%0") {
			row = line
		}
	}
	require.NotEmpty(t, row, out)
	require.Contains(t, row, "i32")
	require.Contains(t, row, "test.const#0")
	require.Contains(t, row, "test.op[0], test.op[1], test.ret[0]")
}
