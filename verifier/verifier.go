// Package verifier checks the structural invariants of an IR graph.
//
// Verification is explicit: nothing in the ir package runs it implicitly.
// Verify returns the first violation and VerifyAll returns every violation
// as a *multierror.Error. Every violation is an *errz.Error of kind
// errz.ErrKindVerification naming the offending entity.
//
// The verifier only reads the graph. Callers that share a Context between
// goroutines run it inside Context.Shared.
package verifier

import (
	"sync"

	"github.com/deepnoodle-ai/irkit/errz"
	"github.com/deepnoodle-ai/irkit/ir"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// Verify checks the operation tree rooted at root and returns the first
// violation, or nil if the tree is well formed.
func Verify(c *ir.Context, root ir.Op, opts ...Option) error {
	v := newVerifier(c, opts, 1)
	errs := v.run([]ir.Op{root})
	if len(errs) == 0 {
		return nil
	}
	return errs[0]
}

// VerifyAll checks the operation tree rooted at root and returns every
// violation, up to the configured maximum.
func VerifyAll(c *ir.Context, root ir.Op, opts ...Option) error {
	v := newVerifier(c, opts, 0)
	return combine(v.run([]ir.Op{root}))
}

// VerifyContext checks the interners of c and every top-level operation,
// returning the first violation.
func VerifyContext(c *ir.Context, opts ...Option) error {
	if err := c.CheckInterners(); err != nil {
		return err
	}
	v := newVerifier(c, opts, 1)
	errs := v.run(c.TopLevel())
	if len(errs) == 0 {
		return nil
	}
	return errs[0]
}

// VerifyContextAll is VerifyContext in full-list mode.
func VerifyContextAll(c *ir.Context, opts ...Option) error {
	var errs []error
	if err := c.CheckInterners(); err != nil {
		errs = append(errs, err)
	}
	v := newVerifier(c, opts, 0)
	return combine(append(errs, v.run(c.TopLevel())...))
}

func combine(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	var result *multierror.Error
	for _, err := range errs {
		result = multierror.Append(result, err)
	}
	return result
}

type verifier struct {
	c     *ir.Context
	cfg   config
	limit int

	mu        sync.Mutex
	positions map[ir.Block]map[ir.Op]int
}

// report collects the violations found by one goroutine, in traversal order.
// It stops accepting violations once it holds limit of them. Each concurrent
// subtree has its own report, so a fast later sibling never cuts short an
// earlier one and the merged prefix matches a sequential run.
type report struct {
	errs    []error
	stopped bool
}

func newVerifier(c *ir.Context, opts []Option, limit int) *verifier {
	cfg := newConfig(c, opts)
	if limit == 0 {
		limit = cfg.maxErrors
	}
	return &verifier{
		c:         c,
		cfg:       cfg,
		limit:     limit,
		positions: map[ir.Block]map[ir.Op]int{},
	}
}

func (v *verifier) run(roots []ir.Op) []error {
	log := v.c.Logger()
	log.Debug().Int("roots", len(roots)).Int("parallelism", v.cfg.parallelism).Msg("verification started")
	var r report
	v.verifyOps(roots, &r, true)
	errs := r.errs
	if v.limit > 0 && len(errs) > v.limit {
		errs = errs[:v.limit]
	}
	log.Debug().Int("violations", len(errs)).Msg("verification finished")
	return errs
}

func (v *verifier) add(r *report, err error) {
	if r.stopped {
		return
	}
	r.errs = append(r.errs, err)
	v.checkLimit(r)
}

func (v *verifier) checkLimit(r *report) {
	if v.limit > 0 && len(r.errs) >= v.limit {
		r.stopped = true
	}
}

func violation(entity, format string, args ...any) error {
	return errz.New(errz.ErrKindVerification, entity, format, args...)
}

// verifyOps verifies sibling operations. With fanout set and more than one
// operation, the subtrees are verified concurrently and their reports are
// merged in sibling order.
func (v *verifier) verifyOps(ops []ir.Op, r *report, fanout bool) {
	if fanout && v.cfg.parallelism > 1 && len(ops) > 1 {
		reports := make([]report, len(ops))
		var g errgroup.Group
		g.SetLimit(v.cfg.parallelism)
		for i, op := range ops {
			g.Go(func() error {
				v.verifyOp(op, &reports[i], false)
				return nil
			})
		}
		_ = g.Wait()
		for i := range reports {
			r.errs = append(r.errs, reports[i].errs...)
		}
		v.checkLimit(r)
		return
	}
	for _, op := range ops {
		if r.stopped {
			return
		}
		v.verifyOp(op, r, fanout)
	}
}

func (v *verifier) verifyOp(op ir.Op, r *report, fanout bool) {
	if r.stopped {
		return
	}
	data, err := v.c.Operation(op)
	if err != nil {
		v.add(r, errz.Wrap(err, errz.ErrKindVerification, op.String(), "operation does not resolve"))
		return
	}
	name := data.Name() + " " + op.String()
	before := len(r.errs)
	sig := data.Definition().Signature()
	v.checkCount(r, name, "operands", sig.Operands, data.NumOperands())
	v.checkCount(r, name, "results", sig.Results, data.NumResults())
	v.checkCount(r, name, "regions", sig.Regions, data.NumRegions())
	v.checkCount(r, name, "successors", sig.Successors, data.NumSuccessors())
	v.checkOperands(r, op, data, name)
	for _, res := range data.Results() {
		v.checkUses(r, res, name)
	}
	v.checkSuccessors(r, op, data, name)
	v.checkAttrs(r, op, data, name)
	v.checkRegions(r, op, data, name, fanout)
	if len(r.errs) == before && !r.stopped {
		if err := data.Definition().Verify(v.c, op); err != nil {
			v.add(r, errz.Wrap(err, errz.ErrKindVerification, name, "operation verifier failed"))
		}
	}
}

func (v *verifier) checkCount(r *report, name, what string, declared, got int) {
	if declared != ir.Variadic && declared != got {
		v.add(r, violation(name, "expected %d %s, got %d", declared, what, got))
	}
}

func countUse(uses []ir.Use, u ir.Use) int {
	n := 0
	for _, x := range uses {
		if x == u {
			n++
		}
	}
	return n
}

func (v *verifier) checkOperands(r *report, op ir.Op, data *ir.OperationData, name string) {
	oc, constrained := data.Definition().(ir.OperandConstraint)
	for i, val := range data.Operands() {
		if val.IsNil() {
			v.add(r, violation(name, "operand %d is null", i))
			continue
		}
		t, err := v.c.ValueType(val)
		if err != nil {
			v.add(r, errz.Wrap(err, errz.ErrKindVerification, name, "operand %d does not resolve", i))
			continue
		}
		uses, _ := v.c.Uses(val)
		if n := countUse(uses, ir.Use{User: op, Index: i}); n != 1 {
			v.add(r, violation(name, "operand %d is registered %d times in the uses of %s", i, n, val))
		}
		if constrained {
			if err := oc.CheckOperand(v.c, i, t); err != nil {
				v.add(r, errz.Wrap(err, errz.ErrKindVerification, name,
					"operand %d of type %s rejected", i, v.c.RenderType(t)))
			}
		}
		v.checkVisible(r, op, val, i, name)
	}
}

// checkUses verifies that every use recorded on val is an operand slot that
// reads val.
func (v *verifier) checkUses(r *report, val ir.Value, entity string) {
	uses, err := v.c.Uses(val)
	if err != nil {
		v.add(r, errz.Wrap(err, errz.ErrKindVerification, entity, "%s does not resolve", val))
		return
	}
	for _, u := range uses {
		user, err := v.c.Operation(u.User)
		if err != nil {
			v.add(r, errz.Wrap(err, errz.ErrKindVerification, entity,
				"use %s of %s references a dead operation", u, val))
			continue
		}
		if u.Index < 0 || u.Index >= user.NumOperands() || user.Operand(u.Index) != val {
			v.add(r, violation(entity, "use %s of %s does not read the value", u, val))
		}
	}
}

func (v *verifier) checkSuccessors(r *report, op ir.Op, data *ir.OperationData, name string) {
	var region ir.Region
	if parent := data.Parent(); !parent.IsNil() {
		if pd, err := v.c.Block(parent); err == nil {
			region = pd.Parent()
		}
	}
	for i, s := range data.Successors() {
		if s.IsNil() {
			v.add(r, violation(name, "successor %d is null", i))
			continue
		}
		sd, err := v.c.Block(s)
		if err != nil {
			v.add(r, errz.Wrap(err, errz.ErrKindVerification, name, "successor %d does not resolve", i))
			continue
		}
		if n := countUse(sd.PredecessorUses(), ir.Use{User: op, Index: i}); n != 1 {
			v.add(r, violation(name, "successor %d is registered %d times as a predecessor of %s", i, n, s))
		}
		if !region.IsNil() && sd.Parent() != region {
			v.add(r, violation(name, "successor %d (%s) is not in the region of the branch", i, s))
		}
	}
}

func (v *verifier) checkAttrs(r *report, op ir.Op, data *ir.OperationData, name string) {
	ac, constrained := data.Definition().(ir.AttrConstraint)
	for _, na := range data.Attrs() {
		key, err := v.c.IdentString(na.Name)
		if err != nil {
			v.add(r, errz.Wrap(err, errz.ErrKindVerification, name, "attribute name does not resolve"))
			continue
		}
		s, err := v.c.AttrStorageOf(na.Value)
		if err != nil {
			v.add(r, errz.Wrap(err, errz.ErrKindVerification, name, "attribute %q does not resolve", key))
			continue
		}
		if av, ok := s.(ir.AttrVerifier); ok {
			if err := av.VerifyOn(v.c, op, key); err != nil {
				v.add(r, errz.Wrap(err, errz.ErrKindVerification, name, "attribute %q rejected", key))
			}
		}
		if constrained {
			if err := ac.VerifyAttr(v.c, op, key, na.Value); err != nil {
				v.add(r, errz.Wrap(err, errz.ErrKindVerification, name, "attribute %q rejected", key))
			}
		}
	}
}

func (v *verifier) checkRegions(r *report, op ir.Op, data *ir.OperationData, name string, fanout bool) {
	traits := data.Traits()
	for i, region := range data.Regions() {
		rd, err := v.c.Region(region)
		if err != nil {
			v.add(r, errz.Wrap(err, errz.ErrKindVerification, name, "region %d does not resolve", i))
			continue
		}
		if rd.Parent() != op || rd.Index() != i {
			v.add(r, violation(name, "region %d has a broken parent link", i))
		}
		blocks, err := v.c.BlocksIn(region)
		if err != nil {
			v.add(r, errz.Wrap(err, errz.ErrKindVerification, name, "region %d holds a dead block", i))
			continue
		}
		if len(blocks) == 0 && !traits.Has(ir.EmptyRegions) {
			v.add(r, violation(name, "region %d is empty", i))
		}
		if len(blocks) > 1 && traits.Has(ir.SingleBlock) {
			v.add(r, violation(name, "region %d has %d blocks, expected at most one", i, len(blocks)))
		}
		prev := ir.Block{}
		for _, b := range blocks {
			v.verifyBlock(r, b, region, prev, traits, fanout)
			prev = b
		}
	}
}

func (v *verifier) verifyBlock(r *report, b ir.Block, region ir.Region, prev ir.Block, traits ir.Trait, fanout bool) {
	if r.stopped {
		return
	}
	bd, err := v.c.Block(b)
	if err != nil {
		v.add(r, errz.Wrap(err, errz.ErrKindVerification, b.String(), "block does not resolve"))
		return
	}
	entity := b.String()
	if label := bd.Label(); label != "" {
		entity = "^" + label + " " + entity
	}
	if bd.Parent() != region || bd.Prev() != prev {
		v.add(r, violation(entity, "block has broken region links"))
	}
	for _, arg := range bd.Arguments() {
		v.checkUses(r, arg, entity)
	}
	for _, u := range bd.PredecessorUses() {
		user, err := v.c.Operation(u.User)
		if err != nil {
			v.add(r, errz.Wrap(err, errz.ErrKindVerification, entity,
				"predecessor use %s references a dead operation", u))
			continue
		}
		if u.Index < 0 || u.Index >= user.NumSuccessors() || user.Successor(u.Index) != b {
			v.add(r, violation(entity, "predecessor use %s does not name the block", u))
		}
	}
	ops, err := v.c.OpsIn(b)
	if err != nil {
		v.add(r, errz.Wrap(err, errz.ErrKindVerification, entity, "block holds a dead operation"))
		return
	}
	var before ir.Op
	for i, op := range ops {
		od, _ := v.c.Operation(op)
		if od.Parent() != b || od.Prev() != before {
			v.add(r, violation(entity, "operation %s has broken block links", op))
		}
		if od.Traits().Has(ir.Terminator) && i != len(ops)-1 {
			v.add(r, violation(entity, "terminator %s %s is not the last operation", od.Name(), op))
		}
		before = op
	}
	if !traits.Has(ir.NoTerminator) {
		if len(ops) == 0 {
			v.add(r, violation(entity, "missing terminator in empty block"))
		} else if last, _ := v.c.Operation(ops[len(ops)-1]); !last.Traits().Has(ir.Terminator) {
			v.add(r, violation(entity, "missing terminator: block ends with %s", last.Name()))
		}
	}
	v.verifyOps(ops, r, fanout)
}

// checkVisible reports operand i of op if its definition is not visible at
// the use: it must be a block argument of an enclosing block, a result of
// an earlier operation in an enclosing block, or defined in another block
// of an enclosing region, without crossing an IsolatedFromAbove operation.
func (v *verifier) checkVisible(r *report, op ir.Op, val ir.Value, i int, name string) {
	defBlock, ok := v.c.ParentBlockOf(val)
	if !ok {
		v.add(r, violation(name, "operand %d (%s) is defined outside any block", i, val))
		return
	}
	var defRegion ir.Region
	if dd, err := v.c.Block(defBlock); err == nil {
		defRegion = dd.Parent()
	}
	cur := op
	for {
		cd, err := v.c.Operation(cur)
		if err != nil || cd.Parent().IsNil() {
			v.add(r, violation(name, "operand %d (%s) is not visible from its use", i, val))
			return
		}
		b := cd.Parent()
		if b == defBlock {
			if val.IsBlockArgument() {
				return
			}
			defOp, _ := val.DefiningOp()
			if !v.precedes(b, defOp, cur) {
				v.add(r, violation(name, "operand %d (%s) is used before its definition", i, val))
			}
			return
		}
		bd, _ := v.c.Block(b)
		if !defRegion.IsNil() && bd.Parent() == defRegion {
			return
		}
		parent, ok := v.c.BlockParentOp(b)
		if !ok {
			v.add(r, violation(name, "operand %d (%s) is not visible from its use", i, val))
			return
		}
		if pd, err := v.c.Operation(parent); err == nil && pd.Traits().Has(ir.IsolatedFromAbove) {
			v.add(r, violation(name, "operand %d (%s) crosses the isolated boundary of %s %s",
				i, val, pd.Name(), parent))
			return
		}
		cur = parent
	}
}

// precedes reports whether a comes strictly before b in block.
func (v *verifier) precedes(block ir.Block, a, b ir.Op) bool {
	v.mu.Lock()
	pos, ok := v.positions[block]
	if !ok {
		pos = map[ir.Op]int{}
		ops, _ := v.c.OpsIn(block)
		for i, op := range ops {
			pos[op] = i
		}
		v.positions[block] = pos
	}
	v.mu.Unlock()
	pa, okA := pos[a]
	pb, okB := pos[b]
	return okA && okB && pa < pb
}
