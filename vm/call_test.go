package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocky/x-python/code"
	"github.com/rocky/x-python/opcodes"
	"github.com/rocky/x-python/values"
)

// codeConst wraps an inner *code.Object as a LOAD_CONST-able Value the
// way a real compiler's constant pool does; MAKE_FUNCTION only ever
// type-asserts the .Data field, so no dedicated Value type tag is
// needed for it (the same trick opGetIter's iteratorBox already uses).
func codeConst(co *code.Object) *values.Value {
	return &values.Value{Type: values.TypeNone, Data: co}
}

func TestExecuteMakeFunctionAndCall(t *testing.T) {
	it := newTestInterpreter(t)

	table, err := opcodes.ForVersion(v38)
	require.NoError(t, err)

	innerAsm := opcodes.NewAssembler(table)
	require.NoError(t, innerAsm.Emit("LOAD_FAST", 0))
	require.NoError(t, innerAsm.Emit("LOAD_CONST", 0))
	require.NoError(t, innerAsm.Emit("BINARY_ADD", 0))
	require.NoError(t, innerAsm.Emit("RETURN_VALUE", 0))
	innerRaw, err := innerAsm.Finish()
	require.NoError(t, err)

	inner := &code.Object{
		Code:      innerRaw,
		Consts:    []*values.Value{values.NewInt(1)},
		Varnames:  []string{"x"},
		ArgCount:  1,
		Name:      "adder",
		Qualname:  "adder",
		FirstLine: 1,
		Version:   v38,
	}

	outer := assemble(t,
		[]*values.Value{values.NewStr("adder"), codeConst(inner), values.NewInt(41)},
		[]string{"fn"}, nil,
		emit("LOAD_CONST", 0),
		emit("LOAD_CONST", 1),
		emit("MAKE_FUNCTION", 0),
		emit("STORE_FAST", 0),
		emit("LOAD_FAST", 0),
		emit("LOAD_CONST", 2),
		emit("CALL_FUNCTION", 1),
		emit("RETURN_VALUE", 0),
	)

	result, err := it.Execute(outer, values.NewDict())
	require.NoError(t, err)
	assert.Equal(t, int64(42), result.ToInt())
}

func TestCallValueNativeFunc(t *testing.T) {
	it := newTestInterpreter(t)
	double := values.NewNativeFunc("double", func(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
		return args[0].Mul(values.NewInt(2))
	})
	result, err := it.CallValue(double, []*values.Value{values.NewInt(21)}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(42), result.ToInt())
}

func TestCallValueNotCallable(t *testing.T) {
	it := newTestInterpreter(t)
	_, err := it.CallValue(values.NewInt(1), nil, nil)
	assert.Error(t, err)
}

func TestInstantiateRunsInit(t *testing.T) {
	it := newTestInterpreter(t)
	class := &values.Class{Name: "Point", Namespace: values.NewDictData()}
	initFn := values.NewNativeFunc("__init__", func(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
		self := args[0]
		self.ObjectSet("x", args[1])
		return values.None(), nil
	})
	class.Namespace.Set(values.NewStr("__init__"), initFn)
	class.MRO = []*values.Value{values.NewClass(class)}

	inst, err := it.instantiate(class, []*values.Value{values.NewInt(7)}, nil)
	require.NoError(t, err)
	x, ok := inst.ObjectGet("x")
	require.True(t, ok)
	assert.Equal(t, int64(7), x.ToInt())
}
