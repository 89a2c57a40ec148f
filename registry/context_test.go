package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runelang/rune/hash"
	"github.com/runelang/rune/opcodes"
	"github.com/runelang/rune/values"
)

type testCounter struct {
	count int64
}

func testModule(t *testing.T) *Module {
	t.Helper()
	m := NewModule("test")
	_, err := Ty[testCounter](m, "Counter")
	require.NoError(t, err)
	require.NoError(t, m.Function("answer", 0, func([]values.Value) (values.Value, error) {
		return values.NewInteger(42), nil
	}))
	require.NoError(t, m.InstFn("Counter", "get", 0, func(args []values.Value) (values.Value, error) {
		any, release, err := args[0].BorrowAny("get")
		if err != nil {
			return values.Unit(), err
		}
		defer release()
		return values.NewInteger(any.Value.(*testCounter).count), nil
	}))
	require.NoError(t, m.Constant("ANSWER", values.ConstIntegerValue(42)))
	return m
}

func TestInstallIsIdempotentPerModule(t *testing.T) {
	ctx := NewContext()
	m := testModule(t)

	require.NoError(t, ctx.Install(m))
	require.NoError(t, ctx.Install(m), "reinstalling the same module value is a no-op")

	// A distinct module declaring the same function conflicts.
	other := NewModule("test")
	require.NoError(t, other.Function("answer", 0, func([]values.Value) (values.Value, error) {
		return values.Unit(), nil
	}))
	err := ctx.Install(other)
	var ctxErr *ContextError
	require.ErrorAs(t, err, &ctxErr)
	assert.Equal(t, ErrConflictingFunction, ctxErr.Kind)
}

func TestInstallPopulatesLookups(t *testing.T) {
	ctx := NewContext()
	require.NoError(t, ctx.Install(testModule(t)))

	fnHash := hash.Type(hash.CrateItem("test", "answer"))
	_, ok := ctx.LookupFunction(fnHash)
	assert.True(t, ok)

	sig, ok := ctx.LookupSignature(fnHash)
	require.True(t, ok)
	assert.Equal(t, 0, sig.Args)

	counterHash, ok := ctx.TypeHashFor("registry.testCounter")
	require.True(t, ok)
	info, ok := ctx.LookupType(counterHash)
	require.True(t, ok)
	assert.Equal(t, "::test::Counter", info.Item.String())

	// Instance function resolves through the mixed hash.
	_, ok = ctx.LookupFunction(hash.InstanceFunction(counterHash, "get"))
	assert.True(t, ok)

	meta, ok := ctx.LookupMeta(hash.NewItem("test", "ANSWER"))
	require.True(t, ok)
	assert.Equal(t, MetaConst, meta.Kind)
	assert.True(t, ctx.HasCrate("test"))
}

func TestTypeNameConstants(t *testing.T) {
	ctx := NewContext()
	require.NoError(t, ctx.Install(testModule(t)))

	counterHash, _ := ctx.TypeHashFor("registry.testCounter")
	constant, ok := ctx.Constant(hash.Instance(counterHash, hash.ProtocolIntoTypeName.Hash))
	require.True(t, ok, "every installed symbol carries an into-type-name constant")
	assert.Equal(t, "::test::Counter", constant.String)
}

func TestInternalEnumInstalledOnce(t *testing.T) {
	ctx := NewContext()

	m := NewModule("std", "option")
	require.NoError(t, m.Option("Option"))
	require.NoError(t, ctx.Install(m))

	again := NewModule("std", "option2")
	require.NoError(t, again.Option("Option"))
	err := ctx.Install(again)
	var ctxErr *ContextError
	require.ErrorAs(t, err, &ctxErr)
	assert.Equal(t, ErrInternalAlreadyPresent, ctxErr.Kind)
}

func TestInternalEnumConstructors(t *testing.T) {
	ctx := NewContext()
	m := NewModule("std", "option")
	require.NoError(t, m.Option("Option"))
	require.NoError(t, ctx.Install(m))

	some, ok := ctx.LookupFunction(values.OptionSomeHash)
	require.True(t, ok, "constructible variants install companion constructors")

	stack := values.NewStack()
	stack.Push(values.NewInteger(3))
	require.NoError(t, some(stack, 1))
	out, err := stack.Pop()
	require.NoError(t, err)
	opt, release, err := out.BorrowOption("test")
	require.NoError(t, err)
	defer release()
	assert.True(t, opt.Some)
}

func TestTypeCheckFor(t *testing.T) {
	ctx := NewContext()
	m := NewModule("std", "option")
	require.NoError(t, m.Option("Option"))
	require.NoError(t, ctx.Install(m))

	tc, ok := ctx.TypeCheckFor(values.OptionSomeHash)
	require.True(t, ok)
	assert.Equal(t, opcodes.TypeCheckOption, tc.Kind)
	assert.Equal(t, 0, tc.Index)

	tc, ok = ctx.TypeCheckFor(values.VecTypeHash)
	require.True(t, ok)
	assert.Equal(t, opcodes.TypeCheckVec, tc.Kind)

	_, ok = ctx.TypeCheckFor(hash.TypeOf("nope"))
	assert.False(t, ok)
}

func TestMissingInstanceType(t *testing.T) {
	m := NewModule("test")
	err := m.InstFn("Ghost", "boo", 0, func([]values.Value) (values.Value, error) {
		return values.Unit(), nil
	})
	var ctxErr *ContextError
	require.ErrorAs(t, err, &ctxErr)
	assert.Equal(t, ErrMissingInstanceType, ctxErr.Kind)
}

func TestIterComponents(t *testing.T) {
	ctx := NewContext()
	require.NoError(t, ctx.Install(testModule(t)))

	components := ctx.IterComponents(hash.ItemOf(hash.CrateComponent("test")))
	names := make([]string, 0, len(components))
	for _, c := range components {
		names = append(names, c.String())
	}
	assert.Equal(t, []string{"ANSWER", "Counter", "answer"}, names)
}

func TestRuntimeSnapshotIsDetached(t *testing.T) {
	ctx := NewContext()
	require.NoError(t, ctx.Install(testModule(t)))
	rt := ctx.Runtime()

	before := rt.FunctionCount()
	extra := NewModule("extra")
	require.NoError(t, extra.Function("later", 0, func([]values.Value) (values.Value, error) {
		return values.Unit(), nil
	}))
	require.NoError(t, ctx.Install(extra))

	assert.Equal(t, before, rt.FunctionCount(), "snapshot must not observe later installs")
	_, ok := rt.Function(hash.Type(hash.CrateItem("test", "answer")))
	assert.True(t, ok)
	constant, ok := rt.Constant(hash.Type(hash.CrateItem("test", "ANSWER")))
	require.True(t, ok)
	assert.Equal(t, int64(42), constant.Integer)
}

func TestAsyncFunctionProducesFuture(t *testing.T) {
	m := NewModule("test")
	require.NoError(t, m.AsyncFunction("fut", 0, func([]values.Value) (values.Value, error) {
		return values.NewInteger(42), nil
	}))
	ctx := NewContext()
	require.NoError(t, ctx.Install(m))

	fn, ok := ctx.LookupFunction(hash.Type(hash.CrateItem("test", "fut")))
	require.True(t, ok)
	stack := values.NewStack()
	require.NoError(t, fn(stack, 0))
	out, err := stack.Pop()
	require.NoError(t, err)
	assert.Equal(t, values.KindFuture, out.Kind())
}
