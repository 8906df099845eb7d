package vm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocky/x-python/code"
	"github.com/rocky/x-python/opcodes"
	"github.com/rocky/x-python/values"
	"github.com/rocky/x-python/version"
)

var v38 = version.Tag{Major: 3, Minor: 8}

// assemble builds a minimal module-level code object for v38 from a
// sequence of (op, arg) pairs, the same Assembler the loader/asmfile
// packages drive.
func assemble(t *testing.T, consts []*values.Value, varnames, names []string, instrs ...func(*opcodes.Assembler) error) *code.Object {
	t.Helper()
	table, err := opcodes.ForVersion(v38)
	require.NoError(t, err)
	a := opcodes.NewAssembler(table)
	for _, ins := range instrs {
		require.NoError(t, ins(a))
	}
	raw, err := a.Finish()
	require.NoError(t, err)
	return &code.Object{
		Code:      raw,
		Consts:    consts,
		Varnames:  varnames,
		Names:     names,
		Name:      "<test>",
		Qualname:  "<test>",
		FirstLine: 1,
		Version:   v38,
	}
}

func emit(name string, arg int) func(*opcodes.Assembler) error {
	return func(a *opcodes.Assembler) error { return a.Emit(name, arg) }
}

func newTestInterpreter(t *testing.T) *Interpreter {
	t.Helper()
	cfg := DefaultConfig()
	cfg.TargetVersion = v38
	cfg.HostVersion = v38
	it, err := New(cfg)
	require.NoError(t, err)
	it.Stdout = &bytes.Buffer{}
	return it
}

func TestExecuteArithmetic(t *testing.T) {
	it := newTestInterpreter(t)
	co := assemble(t, []*values.Value{values.NewInt(2), values.NewInt(3)}, nil, nil,
		emit("LOAD_CONST", 0),
		emit("LOAD_CONST", 1),
		emit("BINARY_ADD", 0),
		emit("RETURN_VALUE", 0),
	)
	result, err := it.Execute(co, values.NewDict())
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.ToInt())
}

func TestExecuteFastLocalsRoundTrip(t *testing.T) {
	it := newTestInterpreter(t)
	co := assemble(t, []*values.Value{values.NewInt(41)}, []string{"x"}, nil,
		emit("LOAD_CONST", 0),
		emit("STORE_FAST", 0),
		emit("LOAD_FAST", 0),
		emit("LOAD_CONST", 0),
		emit("BINARY_ADD", 0),
		emit("RETURN_VALUE", 0),
	)
	result, err := it.Execute(co, values.NewDict())
	require.NoError(t, err)
	assert.Equal(t, int64(82), result.ToInt())
}

func TestExecuteBuildListAndCompare(t *testing.T) {
	it := newTestInterpreter(t)
	co := assemble(t, []*values.Value{values.NewInt(1), values.NewInt(2), values.NewInt(3)}, nil, nil,
		emit("LOAD_CONST", 1),
		emit("LOAD_CONST", 0),
		emit("LOAD_CONST", 1),
		emit("LOAD_CONST", 2),
		emit("BUILD_LIST", 3),
		emit("COMPARE_OP", 6), // `2 in [1, 2, 3]`
		emit("RETURN_VALUE", 0),
	)
	result, err := it.Execute(co, values.NewDict())
	require.NoError(t, err)
	assert.True(t, result.ToBool())
}

// TestExecuteForIterLoop sums 1+2+3 via a FOR_ITER loop over a
// freshly-built list, covering GET_ITER/FOR_ITER/JUMP_ABSOLUTE together.
func TestExecuteForIterLoop(t *testing.T) {
	it := newTestInterpreter(t)
	table, err := opcodes.ForVersion(v38)
	require.NoError(t, err)
	a := opcodes.NewAssembler(table)

	require.NoError(t, a.Emit("LOAD_CONST", 0)) // total = 0
	require.NoError(t, a.Emit("STORE_FAST", 0))
	require.NoError(t, a.Emit("LOAD_CONST", 1))
	require.NoError(t, a.Emit("LOAD_CONST", 2))
	require.NoError(t, a.Emit("LOAD_CONST", 3))
	require.NoError(t, a.Emit("BUILD_LIST", 3))
	require.NoError(t, a.Emit("GET_ITER", 0))
	a.Label("loop_top")
	require.NoError(t, a.EmitJump("FOR_ITER", "loop_end", true))
	require.NoError(t, a.Emit("STORE_FAST", 1)) // item
	require.NoError(t, a.Emit("LOAD_FAST", 0))
	require.NoError(t, a.Emit("LOAD_FAST", 1))
	require.NoError(t, a.Emit("BINARY_ADD", 0))
	require.NoError(t, a.Emit("STORE_FAST", 0))
	require.NoError(t, a.EmitJump("JUMP_ABSOLUTE", "loop_top", false))
	a.Label("loop_end")
	require.NoError(t, a.Emit("LOAD_FAST", 0))
	require.NoError(t, a.Emit("RETURN_VALUE", 0))

	raw, err := a.Finish()
	require.NoError(t, err)

	co := &code.Object{
		Code:      raw,
		Consts:    []*values.Value{values.NewInt(0), values.NewInt(1), values.NewInt(2), values.NewInt(3)},
		Varnames:  []string{"total", "item"},
		Name:      "<test>",
		Qualname:  "<test>",
		FirstLine: 1,
		Version:   v38,
	}
	result, err := it.Execute(co, values.NewDict())
	require.NoError(t, err)
	assert.Equal(t, int64(6), result.ToInt())
}

func TestExecuteUncaughtExceptionPropagates(t *testing.T) {
	it := newTestInterpreter(t)
	co := assemble(t, []*values.Value{values.NewInt(1), values.NewInt(0)}, nil, nil,
		emit("LOAD_CONST", 0),
		emit("LOAD_CONST", 1),
		emit("BINARY_TRUE_DIVIDE", 0),
		emit("RETURN_VALUE", 0),
	)
	_, err := it.Execute(co, values.NewDict())
	require.Error(t, err)
	var uncaught *UncaughtException
	require.ErrorAs(t, err, &uncaught)
}

func TestExecuteGlobalNameLookupFallsBackToBuiltins(t *testing.T) {
	it := newTestInterpreter(t)
	co := assemble(t, nil, nil, []string{"len"},
		emit("LOAD_GLOBAL", 0),
		emit("RETURN_VALUE", 0),
	)
	result, err := it.Execute(co, values.NewDict())
	require.NoError(t, err)
	assert.Equal(t, values.TypeNativeFunction, result.Type)
}
