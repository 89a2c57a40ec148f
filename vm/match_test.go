package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runelang/rune/compiler"
	"github.com/runelang/rune/hash"
	"github.com/runelang/rune/opcodes"
	"github.com/runelang/rune/values"
)

// S2: fn f(x) { match x { (1, y) => y + 10, _ => 0 } }
func matchUnit(t *testing.T) *compiler.Unit {
	t.Helper()
	return buildUnit(t, fnDecl{
		item: hash.NewItem("f"),
		args: 1,
		assemble: func(t *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
			fallback := a.NewLabel("fallback")

			// (1, y) arm: shape check, then first element literal.
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_COPY, A: 0}, span)
			a.Push(opcodes.Instruction{
				Opcode: opcodes.OP_MATCH_SEQUENCE,
				Check:  opcodes.TypeCheck{Kind: opcodes.TypeCheckTuple},
				A:      2,
				Exact:  true,
			}, span)
			a.PopAndJumpIfNot(0, fallback, span)
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_TUPLE_INDEX_GET_AT, A: 0, B: 0}, span)
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_EQ_INTEGER, Imm: opcodes.IntegerImmediate(1)}, span)
			a.PopAndJumpIfNot(0, fallback, span)

			a.Push(opcodes.Instruction{Opcode: opcodes.OP_TUPLE_INDEX_GET_AT, A: 0, B: 1}, span)
			push(a, opcodes.IntegerImmediate(10))
			op(a, opcodes.OP_ADD)
			op(a, opcodes.OP_RETURN)

			require.NoError(t, a.BindLabel(fallback))
			push(a, opcodes.IntegerImmediate(0))
			op(a, opcodes.OP_RETURN)
		},
	})
}

func TestPatternMatchTuple(t *testing.T) {
	unit := matchUnit(t)
	v := New(emptyRuntime(), unit)

	out, err := v.Call(hash.TypeOf("f"), values.NewTuple([]values.Value{values.NewInteger(1), values.NewInteger(5)}))
	require.NoError(t, err)
	assert.Equal(t, int64(15), asInt(t, out))

	out, err = v.Call(hash.TypeOf("f"), values.NewTuple([]values.Value{values.NewInteger(2), values.NewInteger(5)}))
	require.NoError(t, err)
	assert.Equal(t, int64(0), asInt(t, out))

	// Non-tuples take the fallback arm rather than erroring.
	out, err = v.Call(hash.TypeOf("f"), values.NewInteger(9))
	require.NoError(t, err)
	assert.Equal(t, int64(0), asInt(t, out))
}

func TestMatchSequenceShapes(t *testing.T) {
	tests := []struct {
		name  string
		check opcodes.TypeCheck
		len   int
		exact bool
		value values.Value
		want  bool
	}{
		{"unit", opcodes.TypeCheck{Kind: opcodes.TypeCheckUnit}, 0, true, values.Unit(), true},
		{"unit vs int", opcodes.TypeCheck{Kind: opcodes.TypeCheckUnit}, 0, true, values.NewInteger(0), false},
		{"vec exact", opcodes.TypeCheck{Kind: opcodes.TypeCheckVec}, 2, true, values.NewVec([]values.Value{values.NewInteger(1), values.NewInteger(2)}), true},
		{"vec exact mismatch", opcodes.TypeCheck{Kind: opcodes.TypeCheckVec}, 1, true, values.NewVec([]values.Value{values.NewInteger(1), values.NewInteger(2)}), false},
		{"vec prefix", opcodes.TypeCheck{Kind: opcodes.TypeCheckVec}, 1, false, values.NewVec([]values.Value{values.NewInteger(1), values.NewInteger(2)}), true},
		{"ok", opcodes.TypeCheck{Kind: opcodes.TypeCheckResult, Index: 0}, 1, true, values.NewOk(values.NewInteger(1)), true},
		{"ok vs err", opcodes.TypeCheck{Kind: opcodes.TypeCheckResult, Index: 0}, 1, true, values.NewErr(values.NewInteger(1)), false},
		{"some", opcodes.TypeCheck{Kind: opcodes.TypeCheckOption, Index: 0}, 1, true, values.NewSome(values.NewInteger(1)), true},
		{"none", opcodes.TypeCheck{Kind: opcodes.TypeCheckOption, Index: 1}, 0, true, values.NewNone(), true},
		{"yielded", opcodes.TypeCheck{Kind: opcodes.TypeCheckGeneratorState, Index: 0}, 1, true, values.NewYielded(values.NewInteger(1)), true},
		{"complete", opcodes.TypeCheck{Kind: opcodes.TypeCheckGeneratorState, Index: 1}, 1, true, values.NewComplete(values.Unit()), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit := buildUnit(t, fnDecl{
				item: hash.NewItem("f"),
				args: 1,
				assemble: func(_ *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
					a.Push(opcodes.Instruction{Opcode: opcodes.OP_COPY, A: 0}, span)
					a.Push(opcodes.Instruction{
						Opcode: opcodes.OP_MATCH_SEQUENCE,
						Check:  tt.check,
						A:      tt.len,
						Exact:  tt.exact,
					}, span)
					op(a, opcodes.OP_RETURN)
				},
			})
			out, err := New(emptyRuntime(), unit).Call(hash.TypeOf("f"), tt.value)
			require.NoError(t, err)
			got, ok := out.AsBool()
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchObject(t *testing.T) {
	obj := values.NewObject()
	obj.Insert("a", values.NewInteger(1))
	obj.Insert("b", values.NewInteger(2))

	tests := []struct {
		name  string
		keys  []string
		exact bool
		value values.Value
		want  bool
	}{
		{"subset", []string{"a"}, false, values.NewObjectValue(obj), true},
		{"subset exact", []string{"a"}, true, values.NewObjectValue(obj), false},
		{"all exact", []string{"a", "b"}, true, values.NewObjectValue(obj), true},
		{"missing key", []string{"c"}, false, values.NewObjectValue(obj), false},
		{"not an object", []string{"a"}, false, values.NewInteger(1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit := buildUnit(t, fnDecl{
				item: hash.NewItem("f"),
				args: 1,
				assemble: func(t *testing.T, a *compiler.Assembly, b *compiler.UnitBuilder) {
					slot, err := b.InternObjectKeys(tt.keys)
					require.NoError(t, err)
					a.Push(opcodes.Instruction{Opcode: opcodes.OP_COPY, A: 0}, span)
					a.Push(opcodes.Instruction{
						Opcode: opcodes.OP_MATCH_OBJECT,
						Check:  opcodes.TypeCheck{Kind: opcodes.TypeCheckObject},
						A:      slot,
						Exact:  tt.exact,
					}, span)
					op(a, opcodes.OP_RETURN)
				},
			})
			out, err := New(emptyRuntime(), unit).Call(hash.TypeOf("f"), tt.value)
			require.NoError(t, err)
			got, ok := out.AsBool()
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEqStaticString(t *testing.T) {
	unit := buildUnit(t, fnDecl{
		item: hash.NewItem("f"),
		args: 1,
		assemble: func(t *testing.T, a *compiler.Assembly, b *compiler.UnitBuilder) {
			slot, err := b.InternString("hello")
			require.NoError(t, err)
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_COPY, A: 0}, span)
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_EQ_STATIC_STRING, A: slot}, span)
			op(a, opcodes.OP_RETURN)
		},
	})
	v := New(emptyRuntime(), unit)

	out, err := v.Call(hash.TypeOf("f"), values.NewString("hello"))
	require.NoError(t, err)
	got, _ := out.AsBool()
	assert.True(t, got)

	out, err = v.Call(hash.TypeOf("f"), values.NewString("other"))
	require.NoError(t, err)
	got, _ = out.AsBool()
	assert.False(t, got)

	out, err = v.Call(hash.TypeOf("f"), values.NewInteger(1))
	require.NoError(t, err)
	got, _ = out.AsBool()
	assert.False(t, got, "kind mismatch is false, not an error")
}

// An unmatched pattern is a panic with a well-known reason.
func TestUnmatchedPatternPanics(t *testing.T) {
	unit := buildUnit(t, fnDecl{
		item: hash.NewItem("f"),
		args: 1,
		assemble: func(t *testing.T, a *compiler.Assembly, _ *compiler.UnitBuilder) {
			fallback := a.NewLabel("fallback")
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_COPY, A: 0}, span)
			a.Push(opcodes.Instruction{
				Opcode: opcodes.OP_MATCH_SEQUENCE,
				Check:  opcodes.TypeCheck{Kind: opcodes.TypeCheckUnit},
			}, span)
			a.PopAndJumpIfNot(0, fallback, span)
			push(a, opcodes.IntegerImmediate(1))
			op(a, opcodes.OP_RETURN)
			require.NoError(t, a.BindLabel(fallback))
			a.Push(opcodes.Instruction{Opcode: opcodes.OP_PANIC, A: int(opcodes.PanicUnmatchedPattern)}, span)
		},
	})
	_, err := New(emptyRuntime(), unit).Call(hash.TypeOf("f"), values.NewInteger(3))
	var vmErr *Error
	require.ErrorAs(t, err, &vmErr)
	assert.Equal(t, ErrPanic, vmErr.Kind)
}
