package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocky/x-python/code"
	"github.com/rocky/x-python/opcodes"
	"github.com/rocky/x-python/values"
)

// genFunc builds a generator-flagged Function that yields 1, yields 2,
// then returns 3 -- exercising NewGenerator/Send's "re-enter run(fr)"
// resumption model across two suspensions and a final completion.
func genFunc(t *testing.T) *values.Value {
	t.Helper()
	table, err := opcodes.ForVersion(v38)
	require.NoError(t, err)
	a := opcodes.NewAssembler(table)
	require.NoError(t, a.Emit("LOAD_CONST", 0))
	require.NoError(t, a.Emit("YIELD_VALUE", 0))
	require.NoError(t, a.Emit("POP_TOP", 0))
	require.NoError(t, a.Emit("LOAD_CONST", 1))
	require.NoError(t, a.Emit("YIELD_VALUE", 0))
	require.NoError(t, a.Emit("POP_TOP", 0))
	require.NoError(t, a.Emit("LOAD_CONST", 2))
	require.NoError(t, a.Emit("RETURN_VALUE", 0))
	raw, err := a.Finish()
	require.NoError(t, err)

	co := &code.Object{
		Code:      raw,
		Consts:    []*values.Value{values.NewInt(1), values.NewInt(2), values.NewInt(3)},
		Name:      "counter",
		Qualname:  "counter",
		FirstLine: 1,
		Version:   v38,
		Flags:     code.FlagGenerator,
	}
	return values.NewFunction(&values.Function{Name: "counter", Code: co, Globals: values.NewDict()})
}

func TestGeneratorCallReturnsSuspendedWithoutRunning(t *testing.T) {
	it := newTestInterpreter(t)
	genVal, err := it.CallValue(genFunc(t), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, values.TypeGenerator, genVal.Type)
}

func TestGeneratorSendYieldsThenStopIteration(t *testing.T) {
	it := newTestInterpreter(t)
	genVal, err := it.CallValue(genFunc(t), nil, nil)
	require.NoError(t, err)
	gen := AsGenerator(genVal)

	v1, ok, err := gen.Send(values.None())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), v1.ToInt())

	v2, ok, err := gen.Send(values.None())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), v2.ToInt())

	_, ok, err = gen.Send(values.None())
	assert.False(t, ok)
	require.Error(t, err)
	ie, isIE := err.(*InterpretedException)
	require.True(t, isIE)
	assert.Equal(t, "StopIteration", ie.Exc.AsException().Type.AsClass().Name)
}

func TestGeneratorAsIteratorDrivesForLoop(t *testing.T) {
	it := newTestInterpreter(t)
	genVal, err := it.CallValue(genFunc(t), nil, nil)
	require.NoError(t, err)

	iter, err := newIteratorFor(genVal)
	require.NoError(t, err)
	var got []int64
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		got = append(got, v.ToInt())
	}
	assert.Equal(t, []int64{1, 2}, got)
}
