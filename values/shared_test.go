package values

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedBorrowStates(t *testing.T) {
	cell := NewShared(&Vec{})

	// Multiple shared borrows may coexist.
	_, r1, err := cell.BorrowShared("test")
	require.NoError(t, err)
	_, r2, err := cell.BorrowShared("test")
	require.NoError(t, err)

	// No exclusive borrow or take while shared borrows are live.
	_, _, err = cell.BorrowExclusive("test")
	var access *AccessError
	require.ErrorAs(t, err, &access)
	assert.Equal(t, AccessConflict, access.Kind)
	_, err = cell.Take("test")
	assert.ErrorAs(t, err, &access)

	r1()
	r2()

	// Free again: exclusive borrow is granted and blocks everything.
	_, release, err := cell.BorrowExclusive("test")
	require.NoError(t, err)
	_, _, err = cell.BorrowShared("test")
	assert.ErrorAs(t, err, &access)
	_, _, err = cell.BorrowExclusive("test")
	assert.ErrorAs(t, err, &access)
	release()

	_, _, err = cell.BorrowShared("test")
	assert.NoError(t, err)
}

func TestSharedTakeIsTerminal(t *testing.T) {
	cell := NewShared(&Vec{Items: []Value{NewInteger(1)}})

	data, err := cell.Take("test")
	require.NoError(t, err)
	require.Len(t, data.(*Vec).Items, 1)
	assert.True(t, cell.IsTaken())

	var access *AccessError
	_, _, err = cell.BorrowShared("test")
	require.ErrorAs(t, err, &access)
	assert.Equal(t, AccessTaken, access.Kind)
	_, _, err = cell.BorrowExclusive("test")
	assert.Error(t, err)
	_, err = cell.Take("test")
	assert.Error(t, err)
}

func TestSharedBorrowConflictAcrossGoroutines(t *testing.T) {
	value := NewVec([]Value{NewInteger(1), NewInteger(2)})

	_, release, err := value.BorrowVecMut("iterate")
	require.NoError(t, err)
	defer release()

	// Another goroutine observing the same cell must fail fast, not
	// block or corrupt the payload.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, err := value.BorrowVec("index_get")
		var access *AccessError
		assert.True(t, errors.As(err, &access))
	}()
	wg.Wait()
}

func TestValueCopiesAliasTheCell(t *testing.T) {
	a := NewVec(nil)
	b := a

	vec, release, err := b.BorrowVecMut("push")
	require.NoError(t, err)
	vec.Items = append(vec.Items, NewInteger(7))
	release()

	got, release, err := a.BorrowVec("read")
	require.NoError(t, err)
	defer release()
	require.Len(t, got.Items, 1)
}
