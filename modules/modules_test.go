package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runelang/rune/compiler"
	"github.com/runelang/rune/diagnostics"
	"github.com/runelang/rune/hash"
	"github.com/runelang/rune/opcodes"
	"github.com/runelang/rune/values"
	"github.com/runelang/rune/vm"
)

var span = diagnostics.Span{Start: 0, End: 1}

func loc() diagnostics.Location {
	return diagnostics.Location{SourceID: 0, Span: span}
}

func defaultVm(t *testing.T, assemble func(t *testing.T, a *compiler.Assembly, b *compiler.UnitBuilder)) *vm.Vm {
	t.Helper()
	ctx, err := DefaultContext(false)
	require.NoError(t, err)

	b := compiler.NewUnitBuilder(compiler.DefaultOptions())
	a := compiler.NewAssembly(loc())
	assemble(t, a, b)
	require.NoError(t, b.NewFunction(loc(), hash.NewItem("main"), 0, a, values.CallImmediate, nil))

	d := diagnostics.NewDiagnostics()
	require.Empty(t, b.Link(ctx, d), "default context must satisfy the unit's calls")

	unit, err := b.Build()
	require.NoError(t, err)
	return vm.New(ctx.Runtime(), unit)
}

func callMain(t *testing.T, assemble func(t *testing.T, a *compiler.Assembly, b *compiler.UnitBuilder)) values.Value {
	t.Helper()
	out, err := defaultVm(t, assemble).Call(hash.TypeOf("main"))
	require.NoError(t, err)
	return out
}

func TestDefaultContextInstalls(t *testing.T) {
	ctx, err := DefaultContext(true)
	require.NoError(t, err)

	// Internal enum constructors are resolvable by hash.
	_, ok := ctx.LookupFunction(values.OptionSomeHash)
	assert.True(t, ok)
	_, ok = ctx.LookupFunction(values.ResultErrHash)
	assert.True(t, ok)

	// A second default context cannot be merged into the first: the
	// internal enums are installable exactly once per context.
	mods, err := DefaultModules(true)
	require.NoError(t, err)
	var failed bool
	for _, m := range mods {
		if err := ctx.Install(m); err != nil {
			failed = true
			break
		}
	}
	assert.True(t, failed)
}

// typeof-style queries fold to the INTO_TYPE_NAME constant installed
// for the value's type hash.
func TestTypeNameConstantsMatchTypeHashes(t *testing.T) {
	ctx, err := DefaultContext(false)
	require.NoError(t, err)
	rt := ctx.Runtime()

	tests := []struct {
		value values.Value
		want  string
	}{
		{values.NewInteger(1), "::std::int"},
		{values.NewString("x"), "::std::string::String"},
		{values.NewVec(nil), "::std::vec::Vec"},
		{values.NewSome(values.NewInteger(1)), "::std::option::Option"},
	}
	for _, tt := range tests {
		typeHash, err := tt.value.TypeHash()
		require.NoError(t, err)
		constant, ok := rt.Constant(hash.Instance(typeHash, hash.ProtocolIntoTypeName.Hash))
		require.True(t, ok, "missing type name constant for %s", tt.want)
		assert.Equal(t, tt.want, constant.String)
	}
}

func TestStringInstanceFunctions(t *testing.T) {
	out := callMain(t, func(t *testing.T, a *compiler.Assembly, b *compiler.UnitBuilder) {
		slot, err := b.InternString("hello world")
		require.NoError(t, err)
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_PUSH, Imm: opcodes.StaticStringImmediate(slot)}, span)
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_CALL_INSTANCE, Hash: hash.Name("to_uppercase"), B: 1}, span)
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_CALL_INSTANCE, Hash: hash.Name("len"), B: 1}, span)
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_RETURN}, span)
	})
	i, ok := out.AsInteger()
	require.True(t, ok)
	assert.Equal(t, int64(11), i)
}

func TestVecIterThroughForLoop(t *testing.T) {
	out := callMain(t, func(t *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
		head := a.NewLabel("head")
		done := a.NewLabel("done")

		// let it = [1, 2, 3].iter(); let acc = 0; for x in it { acc += x }
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_PUSH, Imm: opcodes.IntegerImmediate(1)}, span)
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_PUSH, Imm: opcodes.IntegerImmediate(2)}, span)
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_PUSH, Imm: opcodes.IntegerImmediate(3)}, span)
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_VEC, B: 3}, span)
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_CALL_INSTANCE, Hash: hash.Name("iter"), B: 1}, span) // slot 0
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_PUSH, Imm: opcodes.IntegerImmediate(0)}, span)       // slot 1
		require.NoError(t, a.BindLabel(head))
		a.IterNext(0, done, span)
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_ADD_ASSIGN, A: 1}, span)
		a.Jump(head, span)
		require.NoError(t, a.BindLabel(done))
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_COPY, A: 1}, span)
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_RETURN}, span)
	})
	i, ok := out.AsInteger()
	require.True(t, ok)
	assert.Equal(t, int64(6), i)
}

func TestOptionInstanceFunctions(t *testing.T) {
	out := callMain(t, func(t *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_PUSH, Imm: opcodes.IntegerImmediate(42)}, span)
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_CALL, Hash: values.OptionSomeHash, B: 1}, span)
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_CALL_INSTANCE, Hash: hash.Name("unwrap"), B: 1}, span)
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_RETURN}, span)
	})
	i, ok := out.AsInteger()
	require.True(t, ok)
	assert.Equal(t, int64(42), i)
}

func TestStdioDisabledIsError(t *testing.T) {
	v := defaultVm(t, func(t *testing.T, a *compiler.Assembly, b *compiler.UnitBuilder) {
		slot, err := b.InternString("hi")
		require.NoError(t, err)
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_PUSH, Imm: opcodes.StaticStringImmediate(slot)}, span)
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_CALL, Hash: hash.Type(hash.CrateItem("std", "io", "println")), B: 1}, span)
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_RETURN}, span)
	})
	_, err := v.Call(hash.TypeOf("main"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stdio is disabled")
}

func TestIntInstanceFunctions(t *testing.T) {
	out := callMain(t, func(t *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_PUSH, Imm: opcodes.IntegerImmediate(-7)}, span)
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_CALL_INSTANCE, Hash: hash.Name("abs"), B: 1}, span)
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_PUSH, Imm: opcodes.IntegerImmediate(3)}, span)
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_CALL_INSTANCE, Hash: hash.Name("max"), B: 2}, span)
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_RETURN}, span)
	})
	i, ok := out.AsInteger()
	require.True(t, ok)
	assert.Equal(t, int64(7), i)
}

func TestCorePanicFunction(t *testing.T) {
	v := defaultVm(t, func(t *testing.T, a *compiler.Assembly, b *compiler.UnitBuilder) {
		slot, err := b.InternString("boom")
		require.NoError(t, err)
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_PUSH, Imm: opcodes.StaticStringImmediate(slot)}, span)
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_CALL, Hash: hash.Type(hash.CrateItem("std", "core", "panic")), B: 1}, span)
		a.Push(opcodes.Instruction{Opcode: opcodes.OP_RETURN}, span)
	})
	_, err := v.Call(hash.TypeOf("main"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestGeneratorStateConstants(t *testing.T) {
	ctx, err := DefaultContext(false)
	require.NoError(t, err)
	tc, ok := ctx.TypeCheckFor(values.GeneratorStateYieldedHash)
	require.True(t, ok)
	assert.Equal(t, opcodes.TypeCheckGeneratorState, tc.Kind)
}
