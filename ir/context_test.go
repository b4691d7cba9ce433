package ir_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/deepnoodle-ai/irkit/errz"
	"github.com/deepnoodle-ai/irkit/internal/testdialect"
	"github.com/deepnoodle-ai/irkit/ir"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestNewContextIdentity(t *testing.T) {
	c1, err := ir.New()
	require.NoError(t, err)
	c2, err := ir.New()
	require.NoError(t, err)
	require.NotEqual(t, c1.ID(), c2.ID())
	require.NotEqual(t, c1.Serial(), c2.Serial())
	require.Equal(t, ir.Stats{}, c1.Stats())
	require.Equal(t, ir.DefaultConfig(), c1.Config())
}

func TestRegisterDialect(t *testing.T) {
	c, err := ir.New()
	require.NoError(t, err)
	require.False(t, c.IsDialectRegistered("test"))
	require.NoError(t, testdialect.Register(c))
	require.True(t, c.IsDialectRegistered("test"))
	require.Equal(t, []string{"test"}, c.Dialects())

	def, ok := c.LookupOp("test.add")
	require.True(t, ok)
	require.Equal(t, ir.OpDefinition(testdialect.Add), def)

	// Registering the same definitions again is allowed.
	require.NoError(t, testdialect.Register(c))

	tests := []struct {
		name    string
		dialect ir.Dialect
	}{
		{"empty name", ir.Dialect{Name: ""}},
		{"dotted name", ir.Dialect{Name: "a.b"}},
		{"wrong prefix", ir.Dialect{Name: "x", Ops: []ir.OpDefinition{&ir.OpSpec{OpName: "y.op"}}}},
		{"bare prefix", ir.Dialect{Name: "x", Ops: []ir.OpDefinition{&ir.OpSpec{OpName: "x."}}}},
		{"nil op", ir.Dialect{Name: "x", Ops: []ir.OpDefinition{nil}}},
		{"duplicate op", ir.Dialect{Name: "x", Ops: []ir.OpDefinition{
			&ir.OpSpec{OpName: "x.op"}, &ir.OpSpec{OpName: "x.op"},
		}}},
		{"conflicting op", ir.Dialect{Name: "test", Ops: []ir.OpDefinition{&ir.OpSpec{OpName: "test.op"}}}},
		{"bad signature", ir.Dialect{Name: "x", Ops: []ir.OpDefinition{
			&ir.OpSpec{OpName: "x.op", Sig: ir.Signature{Operands: -2}},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.RegisterDialect(tt.dialect)
			require.True(t, errors.Is(err, errz.ErrInvalidArgument), "got %v", err)
		})
	}
	require.False(t, c.IsDialectRegistered("x"))
	_, ok = c.LookupOp("x.op")
	require.False(t, ok)
}

func TestIdentifiers(t *testing.T) {
	c, err := ir.New()
	require.NoError(t, err)
	a, err := c.Ident("value")
	require.NoError(t, err)
	b, err := c.Ident("value")
	require.NoError(t, err)
	require.Equal(t, a, b)
	s, err := c.IdentString(a)
	require.NoError(t, err)
	require.Equal(t, "value", s)
	_, ok := c.LookupIdent("other")
	require.False(t, ok)
	_, err = c.Ident("")
	require.True(t, errors.Is(err, errz.ErrInvalidArgument))
}

func TestExclusiveDiscipline(t *testing.T) {
	c, err := ir.New(ir.WithExclusiveDiscipline())
	require.NoError(t, err)
	require.True(t, c.Config().RequireExclusive)

	err = testdialect.Register(c)
	require.True(t, errors.Is(err, errz.ErrLockDiscipline))
	_, err = c.CreateBlock("")
	require.True(t, errors.Is(err, errz.ErrLockDiscipline))

	var b ir.Block
	err = c.Exclusive(func(c *ir.Context) error {
		if err := testdialect.Register(c); err != nil {
			return err
		}
		var err error
		b, err = c.CreateBlock("entry")
		if err != nil {
			return err
		}
		op, err := c.CreateOperation(testdialect.Ret, nil, nil, 0)
		if err != nil {
			return err
		}
		return c.AppendOperation(b, op)
	})
	require.NoError(t, err)

	// Mutation inside a shared scope is rejected; reads succeed.
	err = c.Shared(func(c *ir.Context) error {
		ops, err := c.OpsIn(b)
		if err != nil {
			return err
		}
		require.Len(t, ops, 1)
		return c.EraseOperation(ops[0])
	})
	require.True(t, errors.Is(err, errz.ErrLockDiscipline))

	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			return c.Shared(func(c *ir.Context) error {
				if _, ok := c.Terminator(b); !ok {
					return errors.New("missing terminator")
				}
				return nil
			})
		})
	}
	require.NoError(t, g.Wait())
}

func TestExclusiveReleasesOnError(t *testing.T) {
	c, err := ir.New(ir.WithExclusiveDiscipline())
	require.NoError(t, err)
	boom := errors.New("boom")
	require.ErrorIs(t, c.Exclusive(func(*ir.Context) error { return boom }), boom)
	// The lock was released: a second exclusive scope can run.
	require.NoError(t, c.Exclusive(func(c *ir.Context) error {
		_, err := c.CreateBlock("")
		return err
	}))
	require.Panics(t, func() {
		_ = c.Exclusive(func(*ir.Context) error { panic("kaboom") })
	})
	require.NoError(t, c.Shared(func(*ir.Context) error { return nil }))
	_, err = c.CreateBlock("")
	require.True(t, errors.Is(err, errz.ErrLockDiscipline))
}

func TestExclusiveScopeIsNotShared(t *testing.T) {
	c, err := ir.New(ir.WithExclusiveDiscipline())
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	var leaked *ir.Context
	var g errgroup.Group
	g.Go(func() error {
		return c.Exclusive(func(scoped *ir.Context) error {
			leaked = scoped
			close(entered)
			<-release
			_, err := scoped.CreateBlock("inside")
			return err
		})
	})

	<-entered
	// Another goroutine holds the scope; the plain Context still may not
	// mutate.
	_, err = c.CreateBlock("outside")
	require.True(t, errors.Is(err, errz.ErrLockDiscipline), "got %v", err)
	close(release)
	require.NoError(t, g.Wait())
	require.Equal(t, 1, c.Stats().Blocks)

	// A view kept past its scope loses the right to mutate.
	_, err = leaked.CreateBlock("late")
	require.True(t, errors.Is(err, errz.ErrLockDiscipline), "got %v", err)
	require.Equal(t, c.ID(), leaked.ID())
}

func TestConfigFromYAML(t *testing.T) {
	cfg, err := ir.ParseConfig([]byte(`
require_exclusive: true
max_verify_errors: 10
verify_parallelism: 4
log_level: debug
`))
	require.NoError(t, err)
	require.Equal(t, ir.Config{
		RequireExclusive:  true,
		MaxVerifyErrors:   10,
		VerifyParallelism: 4,
		LogLevel:          "debug",
	}, cfg)

	cfg, err = ir.LoadConfig(strings.NewReader("max_verify_errors: 3\n"))
	require.NoError(t, err)
	require.Equal(t, 3, cfg.MaxVerifyErrors)
	require.Equal(t, 1, cfg.VerifyParallelism)
	require.Equal(t, "info", cfg.LogLevel)

	_, err = ir.ParseConfig([]byte("log_level: loud\n"))
	require.Error(t, err)
	_, err = ir.ParseConfig([]byte("max_verify_errors: -1\n"))
	require.Error(t, err)
	_, err = ir.ParseConfig([]byte("max_verify_errors: [\n"))
	require.Error(t, err)

	_, err = ir.New(ir.WithConfig(ir.Config{LogLevel: "loud"}))
	require.Error(t, err)
}

func TestLoggerCarriesContextID(t *testing.T) {
	var buf bytes.Buffer
	cfg := ir.DefaultConfig()
	cfg.LogLevel = "debug"
	c, err := ir.New(ir.WithLogger(zerolog.New(&buf)), ir.WithConfig(cfg))
	require.NoError(t, err)
	require.NoError(t, testdialect.Register(c))

	out := buf.String()
	require.Contains(t, out, `"ctx":"`+c.ID().String()+`"`)
	require.Contains(t, out, `"dialect":"test"`)
	require.Contains(t, out, "registered dialect")

	buf.Reset()
	quiet, err := ir.New(ir.WithLogger(zerolog.New(&buf)))
	require.NoError(t, err)
	require.NoError(t, testdialect.Register(quiet))
	require.Empty(t, buf.String())
}

type recordingListener struct {
	ir.NoOpListener
	events []string
}

func (l *recordingListener) OperationCreated(ir.Op)            { l.events = append(l.events, "created") }
func (l *recordingListener) OperationInserted(ir.Op, ir.Block) { l.events = append(l.events, "inserted") }
func (l *recordingListener) OperationDetached(ir.Op, ir.Block) { l.events = append(l.events, "detached") }
func (l *recordingListener) OperationErased(ir.Op)             { l.events = append(l.events, "erased") }
func (l *recordingListener) BlockCreated(ir.Block)             { l.events = append(l.events, "block") }

func (l *recordingListener) OperandChanged(ir.Op, int, ir.Value, ir.Value) {
	l.events = append(l.events, "operand")
}

func TestListener(t *testing.T) {
	l := &recordingListener{}
	c := newContext(t, ir.WithListener(l))
	b := newBlock(t, c, "")
	_, a := constant(t, c, 1)
	_, v := constant(t, c, 2)
	op, err := c.CreateOperation(testdialect.Op, []ir.Value{a}, nil, 0)
	require.NoError(t, err)
	require.NoError(t, c.AppendOperation(b, op))
	require.NoError(t, c.SetOperand(op, 0, v))
	require.NoError(t, c.DetachOperation(op))
	require.NoError(t, c.EraseOperation(op))

	require.Equal(t, []string{
		"block", "created", "created", "created", "inserted", "operand", "detached", "erased",
	}, l.events)
}
