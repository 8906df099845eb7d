package values

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruthiness(t *testing.T) {
	assert.False(t, None().ToBool())
	assert.False(t, NewInt(0).ToBool())
	assert.True(t, NewInt(1).ToBool())
	assert.False(t, NewStr("").ToBool())
	assert.True(t, NewStr("x").ToBool())
	assert.False(t, NewList(nil).ToBool())
	assert.True(t, NewList([]*Value{NewInt(1)}).ToBool())
}

func TestNullIsNotNone(t *testing.T) {
	assert.NotEqual(t, Null().Type, None().Type)
	assert.False(t, Null().Equal(None()))
	assert.True(t, Null().Identical(Null()))
}

func TestArithmetic(t *testing.T) {
	sum, err := NewInt(2).Add(NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, int64(5), sum.ToInt())

	f, err := NewInt(1).Add(NewFloat(0.5))
	require.NoError(t, err)
	assert.Equal(t, TypeFloat, f.Type)
	assert.Equal(t, 1.5, f.ToFloat())

	s, err := NewStr("a").Add(NewStr("b"))
	require.NoError(t, err)
	assert.Equal(t, "ab", s.String())

	_, err = NewStr("a").Div(NewInt(1))
	assert.Error(t, err)
}

func TestDivisionByZero(t *testing.T) {
	_, err := NewInt(1).Div(NewInt(0))
	assert.Error(t, err)
	_, err = NewInt(1).Mod(NewInt(0))
	assert.Error(t, err)
}

func TestFloorDivNegative(t *testing.T) {
	// Python: -7 // 2 == -4 (rounds toward negative infinity)
	q, err := NewInt(-7).FloorDiv(NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, int64(-4), q.ToInt())
}

func TestDictOrderingAndEquality(t *testing.T) {
	d1 := NewDictData()
	d1.Set(NewStr("a"), NewInt(1))
	d1.Set(NewStr("b"), NewInt(2))
	assert.Equal(t, []string{"a", "b"}, keyStrings(d1))

	d2 := NewDictData()
	d2.Set(NewStr("b"), NewInt(2))
	d2.Set(NewStr("a"), NewInt(1))
	assert.True(t, dictEqual(d1, d2), "dict equality should ignore insertion order")
}

func keyStrings(d *Dict) []string {
	var out []string
	for _, k := range d.Keys() {
		out = append(out, k.String())
	}
	return out
}

func TestCellSharing(t *testing.T) {
	c := NewCell()
	c.CellSet(NewInt(1))
	v, ok := c.CellGet()
	require.True(t, ok)
	assert.Equal(t, int64(1), v.ToInt())

	// A second holder of the same Value observes the mutation.
	alias := c
	alias.CellSet(NewInt(2))
	v2, _ := c.CellGet()
	assert.Equal(t, int64(2), v2.ToInt())
}

func TestCompareOrdering(t *testing.T) {
	cmp, ok := NewInt(1).Compare(NewInt(2))
	require.True(t, ok)
	assert.Equal(t, -1, cmp)

	_, ok = NewList(nil).Compare(NewInt(2))
	assert.False(t, ok)
}
