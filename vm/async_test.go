package vm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runelang/rune/compiler"
	"github.com/runelang/rune/hash"
	"github.com/runelang/rune/opcodes"
	"github.com/runelang/rune/registry"
	"github.com/runelang/rune/values"
)

// S4: async fn main() { fut().await + 1 } with a host future resolving
// to 42.
func TestAwaitHostFuture(t *testing.T) {
	m := registry.NewModule("test")
	require.NoError(t, m.AsyncFunction("fut", 0, func([]values.Value) (values.Value, error) {
		return values.NewInteger(42), nil
	}))
	ctx := registry.NewContext()
	require.NoError(t, ctx.Install(m))

	unit := buildUnit(t, fnDecl{
		item: hash.NewItem("main"),
		call: values.CallAsync,
		assemble: func(_ *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_CALL, Hash: hash.Type(hash.CrateItem("test", "fut")), B: 0}, span)
			op(a, opcodes.OP_AWAIT)
			push(a, opcodes.IntegerImmediate(1))
			op(a, opcodes.OP_ADD)
			op(a, opcodes.OP_RETURN)
		},
	})

	// Calling an async function produces the wrapper, not the result.
	out, err := New(ctx.Runtime(), unit).Call(hash.TypeOf("main"))
	require.NoError(t, err)
	require.Equal(t, values.KindFuture, out.Kind())

	fut, err := out.TakeFuture("test")
	require.NoError(t, err)
	result, err := fut.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(43), asInt(t, result))
}

func TestAwaitVmFuture(t *testing.T) {
	// An async unit function awaited by another async unit function.
	unit := buildUnit(t,
		fnDecl{
			item: hash.NewItem("forty_two"),
			call: values.CallAsync,
			assemble: func(_ *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
				push(a, opcodes.IntegerImmediate(42))
				op(a, opcodes.OP_RETURN)
			},
		},
		fnDecl{
			item: hash.NewItem("main"),
			call: values.CallAsync,
			assemble: func(_ *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
				a.Push(opcodes.Instruction{Opcode: opcodes.OP_CALL, Hash: hash.TypeOf("forty_two"), B: 0}, span)
				op(a, opcodes.OP_AWAIT)
				push(a, opcodes.IntegerImmediate(1))
				op(a, opcodes.OP_ADD)
				op(a, opcodes.OP_RETURN)
			},
		},
	)

	out, err := New(emptyRuntime(), unit).Call(hash.TypeOf("main"))
	require.NoError(t, err)
	fut, err := out.TakeFuture("test")
	require.NoError(t, err)
	result, err := fut.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(43), asInt(t, result))
}

func generatorUnit(t *testing.T) *compiler.Unit {
	t.Helper()
	// fn g() { yield 1; yield 2; }
	return buildUnit(t, fnDecl{
		item: hash.NewItem("g"),
		call: values.CallGenerator,
		assemble: func(_ *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
			push(a, opcodes.IntegerImmediate(1))
			op(a, opcodes.OP_YIELD)
			op(a, opcodes.OP_DROP)
			push(a, opcodes.IntegerImmediate(2))
			op(a, opcodes.OP_YIELD)
			op(a, opcodes.OP_DROP)
			op(a, opcodes.OP_RETURN_UNIT)
		},
	})
}

// S5: driving the generator produces Yielded(1), Yielded(2),
// Complete(Unit) in order.
func TestGeneratorDrive(t *testing.T) {
	unit := generatorUnit(t)
	v := New(emptyRuntime(), unit)

	wrapper, err := v.Call(hash.TypeOf("g"))
	require.NoError(t, err)
	require.Equal(t, values.KindGenerator, wrapper.Kind())

	ctx := context.Background()
	expectState := func(completed bool, want values.Value) {
		t.Helper()
		state, err := v.Resume(ctx, wrapper, values.Unit())
		require.NoError(t, err)
		st, release, err := state.BorrowGeneratorState("test")
		require.NoError(t, err)
		defer release()
		assert.Equal(t, completed, st.Completed)
		eq, err := values.Eq(st.Value, want)
		require.NoError(t, err)
		assert.True(t, eq, "got %s", st.Value.Debug())
	}

	expectState(false, values.NewInteger(1))
	expectState(false, values.NewInteger(2))
	expectState(true, values.Unit())

	// Resuming past completion is an error.
	_, err = v.Resume(ctx, wrapper, values.Unit())
	assert.Error(t, err)
}

func TestGeneratorReceivesSentValues(t *testing.T) {
	// fn g() { let got = yield 1; yield got + 1; }
	unit := buildUnit(t, fnDecl{
		item: hash.NewItem("g"),
		call: values.CallGenerator,
		assemble: func(_ *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
			push(a, opcodes.IntegerImmediate(1))
			op(a, opcodes.OP_YIELD) // suspends; sent value lands on resume
			push(a, opcodes.IntegerImmediate(1))
			op(a, opcodes.OP_ADD)
			op(a, opcodes.OP_YIELD)
			op(a, opcodes.OP_DROP)
			op(a, opcodes.OP_RETURN_UNIT)
		},
	})
	v := New(emptyRuntime(), unit)
	wrapper, err := v.Call(hash.TypeOf("g"))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = v.Resume(ctx, wrapper, values.Unit())
	require.NoError(t, err)

	state, err := v.Resume(ctx, wrapper, values.NewInteger(9))
	require.NoError(t, err)
	st, release, err := state.BorrowGeneratorState("test")
	require.NoError(t, err)
	defer release()
	assert.False(t, st.Completed)
	assert.Equal(t, int64(10), asInt(t, st.Value))
}

func TestIterNextOverGenerator(t *testing.T) {
	// fn sum() { let acc = 0; for x in g() { acc += x }; acc }
	unit := buildUnit(t,
		fnDecl{
			item: hash.NewItem("g"),
			call: values.CallGenerator,
			assemble: func(_ *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
				push(a, opcodes.IntegerImmediate(1))
				op(a, opcodes.OP_YIELD)
				op(a, opcodes.OP_DROP)
				push(a, opcodes.IntegerImmediate(2))
				op(a, opcodes.OP_YIELD)
				op(a, opcodes.OP_DROP)
				op(a, opcodes.OP_RETURN_UNIT)
			},
		},
		fnDecl{
			item: hash.NewItem("sum"),
			assemble: func(t *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
				head := a.NewLabel("head")
				done := a.NewLabel("done")
				a.Push(opcodes.Instruction{Opcode: opcodes.OP_CALL, Hash: hash.TypeOf("g"), B: 0}, span) // slot 0
				push(a, opcodes.IntegerImmediate(0))                                                     // slot 1 = acc
				require.NoError(t, a.BindLabel(head))
				a.IterNext(0, done, span)
				a.Push(opcodes.Instruction{Opcode: opcodes.OP_ADD_ASSIGN, A: 1}, span)
				a.Jump(head, span)
				require.NoError(t, a.BindLabel(done))
				a.Push(opcodes.Instruction{Opcode: opcodes.OP_COPY, A: 1}, span)
				op(a, opcodes.OP_RETURN)
			},
		},
	)

	out, err := New(emptyRuntime(), unit).Call(hash.TypeOf("sum"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), asInt(t, out))
}

func TestStreamDrive(t *testing.T) {
	// async fn s() { yield fut().await; yield 2; }
	m := registry.NewModule("test")
	require.NoError(t, m.AsyncFunction("fut", 0, func([]values.Value) (values.Value, error) {
		return values.NewInteger(1), nil
	}))
	ctx := registry.NewContext()
	require.NoError(t, ctx.Install(m))

	unit := buildUnit(t, fnDecl{
		item: hash.NewItem("s"),
		call: values.CallStream,
		assemble: func(_ *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_CALL, Hash: hash.Type(hash.CrateItem("test", "fut")), B: 0}, span)
			op(a, opcodes.OP_AWAIT)
			op(a, opcodes.OP_YIELD)
			op(a, opcodes.OP_DROP)
			push(a, opcodes.IntegerImmediate(2))
			op(a, opcodes.OP_YIELD)
			op(a, opcodes.OP_DROP)
			op(a, opcodes.OP_RETURN_UNIT)
		},
	})

	v := New(ctx.Runtime(), unit)
	wrapper, err := v.Call(hash.TypeOf("s"))
	require.NoError(t, err)
	require.Equal(t, values.KindStream, wrapper.Kind())

	bg := context.Background()
	state, err := v.Resume(bg, wrapper, values.Unit())
	require.NoError(t, err)
	st, release, err := state.BorrowGeneratorState("test")
	require.NoError(t, err)
	assert.Equal(t, int64(1), asInt(t, st.Value))
	release()

	state, err = v.Resume(bg, wrapper, values.Unit())
	require.NoError(t, err)
	st, release, err = state.BorrowGeneratorState("test")
	require.NoError(t, err)
	assert.Equal(t, int64(2), asInt(t, st.Value))
	release()
}

func TestYieldOutsideGeneratorIsError(t *testing.T) {
	unit := buildUnit(t, fnDecl{
		item: hash.NewItem("main"),
		assemble: func(_ *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
			push(a, opcodes.IntegerImmediate(1))
			op(a, opcodes.OP_YIELD)
			op(a, opcodes.OP_RETURN)
		},
	})
	_, err := New(emptyRuntime(), unit).Call(hash.TypeOf("main"))
	var vmErr *Error
	require.ErrorAs(t, err, &vmErr)
	assert.Equal(t, ErrBadInstruction, vmErr.Kind)
}

func TestSelectRacesFutures(t *testing.T) {
	m := registry.NewModule("test")
	require.NoError(t, m.AsyncFunction("slow", 0, func([]values.Value) (values.Value, error) {
		time.Sleep(time.Second)
		return values.NewInteger(1), nil
	}))
	require.NoError(t, m.AsyncFunction("fast", 0, func([]values.Value) (values.Value, error) {
		return values.NewInteger(7), nil
	}))
	ctx := registry.NewContext()
	require.NoError(t, ctx.Install(m))

	// select { slow() => panic, fast() => value }
	unit := buildUnit(t, fnDecl{
		item: hash.NewItem("main"),
		assemble: func(t *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
			fastWin := a.NewLabel("fast_win")
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_CALL, Hash: hash.Type(hash.CrateItem("test", "slow")), B: 0}, span)
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_CALL, Hash: hash.Type(hash.CrateItem("test", "fast")), B: 0}, span)
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_SELECT, B: 2}, span)
			a.JumpIfBranch(1, fastWin, span)
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_PANIC, A: int(opcodes.PanicNotImplemented)}, span)
			require.NoError(t, a.BindLabel(fastWin))
			op(a, opcodes.OP_RETURN)
		},
	})

	out, err := New(ctx.Runtime(), unit).Call(hash.TypeOf("main"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), asInt(t, out), "exactly one winner, and it must be the fast branch")
}

func TestAwaitConsumedFutureIsTaken(t *testing.T) {
	fut := values.NewFutureValue(values.NewFuture(func(context.Context) (values.Value, error) {
		return values.NewInteger(1), nil
	}))

	unit := buildUnit(t, fnDecl{
		item: hash.NewItem("f"),
		args: 1,
		assemble: func(_ *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_COPY, A: 0}, span)
			op(a, opcodes.OP_AWAIT)
			op(a, opcodes.OP_RETURN)
		},
	})
	v := New(emptyRuntime(), unit)

	out, err := v.Call(hash.TypeOf("f"), fut)
	require.NoError(t, err)
	assert.Equal(t, int64(1), asInt(t, out))

	// The future was moved out of its cell by the first await.
	_, err = v.Call(hash.TypeOf("f"), fut)
	var vmErr *Error
	require.ErrorAs(t, err, &vmErr)
	assert.Equal(t, ErrAccess, vmErr.Kind)
}

func TestAsyncCallWrapsCompletion(t *testing.T) {
	unit := buildUnit(t, fnDecl{
		item: hash.NewItem("main"),
		assemble: func(_ *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
			push(a, opcodes.IntegerImmediate(5))
			op(a, opcodes.OP_RETURN)
		},
	})
	v := New(emptyRuntime(), unit)
	fut := v.AsyncCall(hash.TypeOf("main"))
	out, err := fut.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), asInt(t, out))
}
