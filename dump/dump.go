// Package dump renders IR graphs for debugging. The output is meant for
// people reading logs and test failures; it is not a parseable format.
package dump

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/deepnoodle-ai/irkit/ir"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

var (
	opColor    = color.New(color.FgCyan, color.Bold).SprintFunc()
	valueColor = color.New(color.FgYellow).SprintFunc()
	typeColor  = color.New(color.FgGreen).SprintFunc()
	blockColor = color.New(color.FgMagenta).SprintFunc()
	errColor   = color.New(color.FgRed).SprintFunc()
)

type printer struct {
	c      *ir.Context
	w      io.Writer
	values map[ir.Value]int
	blocks map[ir.Block]string
	depth  int
	err    error
}

func newPrinter(c *ir.Context, w io.Writer) *printer {
	return &printer{
		c:      c,
		w:      w,
		values: map[ir.Value]int{},
		blocks: map[ir.Block]string{},
	}
}

func (p *printer) line(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, "%s%s\n", strings.Repeat("  ", p.depth), fmt.Sprintf(format, args...))
}

func (p *printer) value(v ir.Value) string {
	if v.IsNil() {
		return errColor("<null>")
	}
	n, ok := p.values[v]
	if !ok {
		n = len(p.values)
		p.values[v] = n
	}
	return valueColor(fmt.Sprintf("%%%d", n))
}

func (p *printer) block(b ir.Block) string {
	if b.IsNil() {
		return errColor("^<null>")
	}
	name, ok := p.blocks[b]
	if !ok {
		name = fmt.Sprintf("bb%d", len(p.blocks))
		if bd, err := p.c.Block(b); err == nil && bd.Label() != "" {
			name = bd.Label()
		}
		p.blocks[b] = name
	}
	return blockColor("^" + name)
}

func (p *printer) typ(t ir.Type) string {
	return typeColor(p.c.RenderType(t))
}

func (p *printer) attrs(attrs []ir.NamedAttr) string {
	if len(attrs) == 0 {
		return ""
	}
	parts := make([]string, len(attrs))
	for i, na := range attrs {
		name, err := p.c.IdentString(na.Name)
		if err != nil {
			name = "<invalid ident>"
		}
		parts[i] = name + " = " + p.c.RenderAttr(na.Value)
	}
	return " {" + strings.Join(parts, ", ") + "}"
}

func (p *printer) op(op ir.Op) {
	data, err := p.c.Operation(op)
	if err != nil {
		p.line("%s", errColor(fmt.Sprintf("<%s: %v>", op, err)))
		return
	}
	var sb strings.Builder
	if data.NumResults() > 0 {
		names := make([]string, data.NumResults())
		for i, r := range data.Results() {
			names[i] = p.value(r)
		}
		sb.WriteString(strings.Join(names, ", "))
		sb.WriteString(" = ")
	}
	sb.WriteString(opColor(data.Name()))
	operands := make([]string, data.NumOperands())
	operandTypes := make([]string, data.NumOperands())
	for i, v := range data.Operands() {
		operands[i] = p.value(v)
		if t, err := p.c.ValueType(v); err == nil {
			operandTypes[i] = p.typ(t)
		} else {
			operandTypes[i] = errColor("?")
		}
	}
	sb.WriteString("(" + strings.Join(operands, ", ") + ")")
	if data.NumSuccessors() > 0 {
		succs := make([]string, data.NumSuccessors())
		for i, s := range data.Successors() {
			succs[i] = p.block(s)
		}
		sb.WriteString(" [" + strings.Join(succs, ", ") + "]")
	}
	sb.WriteString(p.attrs(data.Attrs()))
	resultTypes := make([]string, data.NumResults())
	for i := range resultTypes {
		resultTypes[i] = p.typ(data.ResultType(i))
	}
	sb.WriteString(" : (" + strings.Join(operandTypes, ", ") + ") -> (" + strings.Join(resultTypes, ", ") + ")")
	if data.NumRegions() == 0 {
		p.line("%s", sb.String())
		return
	}
	sb.WriteString(" {")
	p.line("%s", sb.String())
	for i, r := range data.Regions() {
		if i > 0 {
			p.line("}, {")
		}
		p.region(r)
	}
	p.line("}")
}

func (p *printer) region(r ir.Region) {
	blocks, err := p.c.BlocksIn(r)
	if err != nil {
		p.line("%s", errColor(fmt.Sprintf("<%s: %v>", r, err)))
		return
	}
	p.depth++
	for _, b := range blocks {
		p.blockBody(b)
	}
	p.depth--
}

func (p *printer) blockBody(b ir.Block) {
	bd, err := p.c.Block(b)
	if err != nil {
		p.line("%s", errColor(fmt.Sprintf("<%s: %v>", b, err)))
		return
	}
	header := p.block(b)
	if bd.NumArguments() > 0 {
		args := make([]string, bd.NumArguments())
		for i, a := range bd.Arguments() {
			args[i] = p.value(a) + ": " + p.typ(bd.ArgumentType(i))
		}
		header += "(" + strings.Join(args, ", ") + ")"
	}
	p.line("%s:%s", header, p.attrs(bd.Attrs()))
	ops, err := p.c.OpsIn(b)
	if err != nil {
		p.line("%s", errColor(fmt.Sprintf("<%s: %v>", b, err)))
		return
	}
	p.depth++
	for _, op := range ops {
		p.op(op)
	}
	p.depth--
}

// Print writes the tree rooted at op to w.
func Print(c *ir.Context, w io.Writer, op ir.Op) error {
	p := newPrinter(c, w)
	p.op(op)
	return p.err
}

// PrintContext writes every top-level operation of c to w.
func PrintContext(c *ir.Context, w io.Writer) error {
	p := newPrinter(c, w)
	for _, op := range c.TopLevel() {
		p.op(op)
	}
	return p.err
}

// Sprint returns the rendering of the tree rooted at op.
func Sprint(c *ir.Context, op ir.Op) string {
	var buf bytes.Buffer
	_ = Print(c, &buf, op)
	return buf.String()
}

// UseTable writes one row per value defined in the tree rooted at op, in
// definition order: its name, its type, its definition and its users.
func UseTable(c *ir.Context, w io.Writer, op ir.Op) error {
	p := newPrinter(c, io.Discard)
	var rows [][]string
	row := func(v ir.Value, def string) {
		t, _ := c.ValueType(v)
		uses, _ := c.Uses(v)
		users := make([]string, len(uses))
		for i, u := range uses {
			name := u.User.String()
			if ud, err := c.Operation(u.User); err == nil {
				name = ud.Name()
			}
			users[i] = fmt.Sprintf("%s[%d]", name, u.Index)
		}
		rows = append(rows, []string{p.value(v), p.typ(t), def, strings.Join(users, ", ")})
	}
	var visit func(op ir.Op) error
	visit = func(op ir.Op) error {
		data, err := c.Operation(op)
		if err != nil {
			return err
		}
		for i, r := range data.Results() {
			row(r, fmt.Sprintf("%s#%d", data.Name(), i))
		}
		for _, region := range data.Regions() {
			blocks, err := c.BlocksIn(region)
			if err != nil {
				return err
			}
			for _, b := range blocks {
				bd, err := c.Block(b)
				if err != nil {
					return err
				}
				for i, a := range bd.Arguments() {
					row(a, fmt.Sprintf("%s#%d", p.block(b), i))
				}
				ops, err := c.OpsIn(b)
				if err != nil {
					return err
				}
				for _, child := range ops {
					if err := visit(child); err != nil {
						return err
					}
				}
			}
		}
		return nil
	}
	if err := visit(op); err != nil {
		return err
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Value", "Type", "Defined by", "Uses"})
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk(rows)
	table.Render()
	return nil
}
