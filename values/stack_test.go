package values

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStackFrameRelativeAddressing(t *testing.T) {
	s := NewStack()
	s.Push(NewInteger(10)) // caller local
	s.Push(NewInteger(20)) // arg 0
	s.Push(NewInteger(30)) // arg 1

	old := s.SwapStackBottom(1)
	assert.Equal(t, 0, old)

	v, err := s.At(0)
	require.NoError(t, err)
	i, _ := v.AsInteger()
	assert.Equal(t, int64(20), i)

	require.NoError(t, s.SetAt(1, NewInteger(31)))
	v, _ = s.Get(2)
	i, _ = v.AsInteger()
	assert.Equal(t, int64(31), i)

	// A frame cannot pop through its own bottom.
	_, err = s.Pop()
	require.NoError(t, err)
	_, err = s.Pop()
	require.NoError(t, err)
	_, err = s.Pop()
	assert.ErrorIs(t, err, ErrStackUnderflow)

	s.SwapStackBottom(0)
	v, err = s.Pop()
	require.NoError(t, err)
	i, _ = v.AsInteger()
	assert.Equal(t, int64(10), i)
}

func TestStackDrainAndClean(t *testing.T) {
	s := NewStack()
	for i := int64(1); i <= 4; i++ {
		s.Push(NewInteger(i))
	}

	vals, err := s.Drain(2)
	require.NoError(t, err)
	require.Len(t, vals, 2)
	a, _ := vals[0].AsInteger()
	b, _ := vals[1].AsInteger()
	assert.Equal(t, []int64{3, 4}, []int64{a, b}, "drain preserves stack order")

	s.Push(NewInteger(9))
	require.NoError(t, s.Clean(2))
	require.Equal(t, 1, s.Len())
	top, _ := s.Peek()
	i, _ := top.AsInteger()
	assert.Equal(t, int64(9), i)

	_, err = s.Drain(5)
	assert.ErrorIs(t, err, ErrStackUnderflow)
}

func TestStackInsertRemove(t *testing.T) {
	s := NewStack()
	s.Push(NewInteger(1))
	s.Push(NewInteger(2))

	require.NoError(t, s.Insert(1, NewInteger(5), NewInteger(6)))
	require.Equal(t, 4, s.Len())
	v, _ := s.Get(1)
	i, _ := v.AsInteger()
	assert.Equal(t, int64(5), i)

	removed, err := s.Remove(0)
	require.NoError(t, err)
	i, _ = removed.AsInteger()
	assert.Equal(t, int64(1), i)
	require.Equal(t, 3, s.Len())
}
