package vm

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runelang/rune/compiler"
	"github.com/runelang/rune/diagnostics"
	"github.com/runelang/rune/hash"
	"github.com/runelang/rune/opcodes"
	"github.com/runelang/rune/registry"
	"github.com/runelang/rune/values"
)

var span = diagnostics.Span{Start: 0, End: 1}

func loc() diagnostics.Location {
	return diagnostics.Location{SourceID: 0, Span: span}
}

type fnDecl struct {
	item     *hash.Item
	args     int
	call     values.CallKind
	assemble func(t *testing.T, a *compiler.Assembly, b *compiler.UnitBuilder)
}

func buildUnit(t *testing.T, fns ...fnDecl) *compiler.Unit {
	t.Helper()
	b := compiler.NewUnitBuilder(compiler.DefaultOptions())
	for _, fn := range fns {
		a := compiler.NewAssembly(loc())
		fn.assemble(t, a, b)
		require.NoError(t, b.NewFunction(loc(), fn.item, fn.args, a, fn.call, nil))
	}
	unit, err := b.Build()
	require.NoError(t, err)
	return unit
}

func emptyRuntime() *registry.RuntimeContext {
	return registry.NewContext().Runtime()
}

func push(a *compiler.Assembly, imm opcodes.Immediate) {
	a.Push(opcodes.Instruction{Opcode: opcodes.OP_PUSH, Imm: imm}, span)
}

func op(a *compiler.Assembly, opcode opcodes.Opcode) {
	a.Push(opcodes.Instruction{Opcode: opcode}, span)
}

func asInt(t *testing.T, v values.Value) int64 {
	t.Helper()
	i, ok := v.AsInteger()
	require.True(t, ok, "expected integer, got %s", v.TypeInfo())
	return i
}

// S1: fn main() { 1 + 2 } returns Integer(3).
func TestArithmeticReturn(t *testing.T) {
	unit := buildUnit(t, fnDecl{
		item: hash.NewItem("main"),
		assemble: func(t *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
			push(a, opcodes.IntegerImmediate(1))
			push(a, opcodes.IntegerImmediate(2))
			op(a, opcodes.OP_ADD)
			op(a, opcodes.OP_RETURN)
		},
	})

	v := New(emptyRuntime(), unit)
	out, err := v.Call([]string{"main"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), asInt(t, out))

	// Invariant: clean termination leaves one value and no frames.
	assert.Equal(t, 1, v.Stack().Len())
}

func TestArithmeticKinds(t *testing.T) {
	tests := []struct {
		name string
		emit func(a *compiler.Assembly)
		want values.Value
	}{
		{"sub", func(a *compiler.Assembly) {
			push(a, opcodes.IntegerImmediate(10))
			push(a, opcodes.IntegerImmediate(4))
			op(a, opcodes.OP_SUB)
		}, values.NewInteger(6)},
		{"float mul", func(a *compiler.Assembly) {
			push(a, opcodes.FloatImmediate(2.5))
			push(a, opcodes.FloatImmediate(4))
			op(a, opcodes.OP_MUL)
		}, values.NewFloat(10)},
		{"mod", func(a *compiler.Assembly) {
			push(a, opcodes.IntegerImmediate(7))
			push(a, opcodes.IntegerImmediate(4))
			op(a, opcodes.OP_MOD)
		}, values.NewInteger(3)},
		{"shl", func(a *compiler.Assembly) {
			push(a, opcodes.IntegerImmediate(1))
			push(a, opcodes.IntegerImmediate(4))
			op(a, opcodes.OP_SHL)
		}, values.NewInteger(16)},
		{"bit xor", func(a *compiler.Assembly) {
			push(a, opcodes.IntegerImmediate(6))
			push(a, opcodes.IntegerImmediate(3))
			op(a, opcodes.OP_BIT_XOR)
		}, values.NewInteger(5)},
		{"neg", func(a *compiler.Assembly) {
			push(a, opcodes.IntegerImmediate(9))
			op(a, opcodes.OP_NEG)
		}, values.NewInteger(-9)},
		{"lt", func(a *compiler.Assembly) {
			push(a, opcodes.IntegerImmediate(1))
			push(a, opcodes.IntegerImmediate(2))
			op(a, opcodes.OP_LT)
		}, values.NewBool(true)},
		{"and", func(a *compiler.Assembly) {
			push(a, opcodes.BoolImmediate(true))
			push(a, opcodes.BoolImmediate(false))
			op(a, opcodes.OP_AND)
		}, values.NewBool(false)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit := buildUnit(t, fnDecl{
				item: hash.NewItem("main"),
				assemble: func(_ *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
					tt.emit(a)
					op(a, opcodes.OP_RETURN)
				},
			})
			out, err := New(emptyRuntime(), unit).Call(hash.TypeOf("main"))
			require.NoError(t, err)
			eq, err := values.Eq(out, tt.want)
			require.NoError(t, err)
			assert.True(t, eq, "got %s", out.Debug())
		})
	}
}

func TestDivideByZero(t *testing.T) {
	unit := buildUnit(t, fnDecl{
		item: hash.NewItem("main"),
		assemble: func(_ *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
			push(a, opcodes.IntegerImmediate(1))
			push(a, opcodes.IntegerImmediate(0))
			op(a, opcodes.OP_DIV)
			op(a, opcodes.OP_RETURN)
		},
	})
	_, err := New(emptyRuntime(), unit).Call(hash.TypeOf("main"))
	var vmErr *Error
	require.ErrorAs(t, err, &vmErr)
	assert.Equal(t, ErrDivideByZero, vmErr.Kind)
	assert.Equal(t, 2, vmErr.IP, "error carries the faulting ip")
}

func TestIntegerOverflow(t *testing.T) {
	unit := buildUnit(t, fnDecl{
		item: hash.NewItem("main"),
		assemble: func(_ *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
			push(a, opcodes.IntegerImmediate(1<<62))
			push(a, opcodes.IntegerImmediate(1<<62))
			op(a, opcodes.OP_ADD)
			op(a, opcodes.OP_RETURN)
		},
	})
	_, err := New(emptyRuntime(), unit).Call(hash.TypeOf("main"))
	var vmErr *Error
	require.ErrorAs(t, err, &vmErr)
	assert.Equal(t, ErrOverflow, vmErr.Kind)
}

func TestStringConcat(t *testing.T) {
	unit := buildUnit(t, fnDecl{
		item: hash.NewItem("main"),
		assemble: func(t *testing.T, a *compiler.Assembly, b *compiler.UnitBuilder) {
			s1, err := b.InternString("foo")
			require.NoError(t, err)
			s2, err := b.InternString("bar")
			require.NoError(t, err)
			push(a, opcodes.StaticStringImmediate(s1))
			push(a, opcodes.StaticStringImmediate(s2))
			op(a, opcodes.OP_ADD)
			op(a, opcodes.OP_RETURN)
		},
	})
	out, err := New(emptyRuntime(), unit).Call(hash.TypeOf("main"))
	require.NoError(t, err)
	s, release, err := out.BorrowString("test")
	require.NoError(t, err)
	defer release()
	assert.Equal(t, "foobar", *s)
}

func TestCompoundAssign(t *testing.T) {
	// fn f(x) { x += 5; x }
	unit := buildUnit(t, fnDecl{
		item: hash.NewItem("f"),
		args: 1,
		assemble: func(_ *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
			push(a, opcodes.IntegerImmediate(5))
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_ADD_ASSIGN, A: 0}, span)
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_COPY, A: 0}, span)
			op(a, opcodes.OP_RETURN)
		},
	})
	out, err := New(emptyRuntime(), unit).Call(hash.TypeOf("f"), values.NewInteger(37))
	require.NoError(t, err)
	assert.Equal(t, int64(42), asInt(t, out))
}

func TestJumpLoop(t *testing.T) {
	// fn f() { let n = 0; while n < 5 { n += 1 }; n }
	unit := buildUnit(t, fnDecl{
		item: hash.NewItem("f"),
		assemble: func(t *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
			head := a.NewLabel("head")
			exit := a.NewLabel("exit")
			push(a, opcodes.IntegerImmediate(0)) // slot 0 = n
			require.NoError(t, a.BindLabel(head))
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_COPY, A: 0}, span)
			push(a, opcodes.IntegerImmediate(5))
			op(a, opcodes.OP_LT)
			a.JumpIfNot(exit, span)
			push(a, opcodes.IntegerImmediate(1))
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_ADD_ASSIGN, A: 0}, span)
			a.Jump(head, span)
			require.NoError(t, a.BindLabel(exit))
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_COPY, A: 0}, span)
			op(a, opcodes.OP_RETURN)
		},
	})
	out, err := New(emptyRuntime(), unit).Call(hash.TypeOf("f"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), asInt(t, out))
}

func TestAggregatesAndIndexing(t *testing.T) {
	// fn f() { let v = [10, 20]; v[1] = v[1] + 2; v[1] }
	unit := buildUnit(t, fnDecl{
		item: hash.NewItem("f"),
		assemble: func(_ *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
			push(a, opcodes.IntegerImmediate(10))
			push(a, opcodes.IntegerImmediate(20))
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_VEC, B: 2}, span) // slot 0
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_COPY, A: 0}, span)
			push(a, opcodes.IntegerImmediate(1))
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_COPY, A: 0}, span)
			push(a, opcodes.IntegerImmediate(1))
			op(a, opcodes.OP_INDEX_GET)
			push(a, opcodes.IntegerImmediate(2))
			op(a, opcodes.OP_ADD)
			op(a, opcodes.OP_INDEX_SET)
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_COPY, A: 0}, span)
			push(a, opcodes.IntegerImmediate(1))
			op(a, opcodes.OP_INDEX_GET)
			op(a, opcodes.OP_RETURN)
		},
	})
	out, err := New(emptyRuntime(), unit).Call(hash.TypeOf("f"))
	require.NoError(t, err)
	assert.Equal(t, int64(22), asInt(t, out))
}

func TestObjectFields(t *testing.T) {
	// fn f() { let o = #{a: 1, b: 2}; o.b = 5; o.a + o.b }
	unit := buildUnit(t, fnDecl{
		item: hash.NewItem("f"),
		assemble: func(t *testing.T, a *compiler.Assembly, b *compiler.UnitBuilder) {
			keys, err := b.InternObjectKeys([]string{"a", "b"})
			require.NoError(t, err)
			aSlot, err := b.InternString("a")
			require.NoError(t, err)
			bSlot, err := b.InternString("b")
			require.NoError(t, err)

			push(a, opcodes.IntegerImmediate(1))
			push(a, opcodes.IntegerImmediate(2))
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_OBJECT, A: keys}, span) // slot 0
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_COPY, A: 0}, span)
			push(a, opcodes.IntegerImmediate(5))
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_FIELD_SET, A: bSlot}, span)
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_OBJECT_INDEX_GET_AT, A: 0, B: aSlot}, span)
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_OBJECT_INDEX_GET_AT, A: 0, B: bSlot}, span)
			op(a, opcodes.OP_ADD)
			op(a, opcodes.OP_RETURN)
		},
	})
	out, err := New(emptyRuntime(), unit).Call(hash.TypeOf("f"))
	require.NoError(t, err)
	assert.Equal(t, int64(6), asInt(t, out))
}

func TestNestedCallFramesAndTrace(t *testing.T) {
	// fn inner() { panic } ; fn outer() { inner() } — the error trace
	// records the frame that was live.
	unit := buildUnit(t,
		fnDecl{
			item: hash.NewItem("inner"),
			assemble: func(_ *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
				a.Push(opcodes.Instruction{Opcode: opcodes.OP_PANIC, A: int(opcodes.PanicUnmatchedPattern)}, span)
			},
		},
		fnDecl{
			item: hash.NewItem("outer"),
			assemble: func(_ *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
				a.Push(opcodes.Instruction{Opcode: opcodes.OP_CALL, Hash: hash.TypeOf("inner"), B: 0}, span)
				op(a, opcodes.OP_RETURN)
			},
		},
	)
	_, err := New(emptyRuntime(), unit).Call(hash.TypeOf("outer"))
	var vmErr *Error
	require.ErrorAs(t, err, &vmErr)
	assert.Equal(t, ErrPanic, vmErr.Kind)
	assert.Equal(t, "unmatched pattern", vmErr.Message)
	require.Len(t, vmErr.Trace, 1, "one live frame must be recorded")

	var buf bytes.Buffer
	sources := diagnostics.NewSources()
	sources.Insert("test.rn", "fn inner() {}\n")
	require.NoError(t, vmErr.Emit(&buf, sources))
	assert.Contains(t, buf.String(), "panic")
	assert.Contains(t, buf.String(), "test.rn")
}

func TestCallFunctionArity(t *testing.T) {
	unit := buildUnit(t, fnDecl{
		item: hash.NewItem("f"),
		args: 2,
		assemble: func(_ *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_COPY, A: 0}, span)
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_COPY, A: 1}, span)
			op(a, opcodes.OP_ADD)
			op(a, opcodes.OP_RETURN)
		},
	})
	v := New(emptyRuntime(), unit)

	out, err := v.Call(hash.TypeOf("f"), values.NewInteger(2), values.NewInteger(3))
	require.NoError(t, err)
	assert.Equal(t, int64(5), asInt(t, out))

	_, err = v.Call(hash.TypeOf("f"), values.NewInteger(2))
	var vmErr *Error
	require.ErrorAs(t, err, &vmErr)
	assert.Equal(t, ErrBadArgumentCount, vmErr.Kind)
}

func TestMissingFunction(t *testing.T) {
	unit := buildUnit(t, fnDecl{
		item: hash.NewItem("main"),
		assemble: func(_ *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_CALL, Hash: hash.TypeOf("ghost"), B: 0}, span)
			op(a, opcodes.OP_RETURN)
		},
	})
	_, err := New(emptyRuntime(), unit).Call(hash.TypeOf("main"))
	var vmErr *Error
	require.ErrorAs(t, err, &vmErr)
	assert.Equal(t, ErrMissingFunction, vmErr.Kind)
	assert.Equal(t, hash.TypeOf("ghost"), vmErr.Hash)
}

// S6: a live exclusive borrow on a shared value makes another VM's
// read fail with an access error instead of blocking or corrupting.
func TestBorrowConflictAcrossVms(t *testing.T) {
	unit := buildUnit(t, fnDecl{
		item: hash.NewItem("idx"),
		args: 1,
		assemble: func(_ *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_COPY, A: 0}, span)
			push(a, opcodes.IntegerImmediate(0))
			op(a, opcodes.OP_INDEX_GET)
			op(a, opcodes.OP_RETURN)
		},
	})

	sharedVec := values.NewVec([]values.Value{values.NewInteger(1)})

	// Script A holds a long-lived exclusive borrow.
	_, release, err := sharedVec.BorrowVecMut("iterate")
	require.NoError(t, err)
	defer release()

	_, err = New(emptyRuntime(), unit).Call(hash.TypeOf("idx"), sharedVec)
	var vmErr *Error
	require.ErrorAs(t, err, &vmErr)
	assert.Equal(t, ErrAccess, vmErr.Kind)
}

func TestTracerLogsInstructions(t *testing.T) {
	unit := buildUnit(t, fnDecl{
		item: hash.NewItem("main"),
		assemble: func(_ *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
			push(a, opcodes.IntegerImmediate(1))
			op(a, opcodes.OP_RETURN)
		},
	})

	var buf bytes.Buffer
	tracer := logrus.New()
	tracer.SetOutput(&buf)
	tracer.SetLevel(logrus.DebugLevel)

	v := NewWithOptions(emptyRuntime(), unit, Options{Tracer: tracer})
	_, err := v.Call(hash.TypeOf("main"))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "op=push")
	assert.Contains(t, buf.String(), "op=return")
}
