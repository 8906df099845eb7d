package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocky/x-python/code"
	"github.com/rocky/x-python/opcodes"
	"github.com/rocky/x-python/values"
	"github.com/rocky/x-python/version"
)

// TestUnwindViaBlockStackCatchesExcept builds a 3.7 SETUP_EXCEPT
// try/except by hand (the 3.8 table no longer has SETUP_EXCEPT): the
// try body raises TypeError, the handler discards (type, value,
// traceback) and returns a marker.
func TestUnwindViaBlockStackCatchesExcept(t *testing.T) {
	v37 := version.Tag{Major: 3, Minor: 7}
	cfg := DefaultConfig()
	cfg.TargetVersion = v37
	cfg.HostVersion = v37
	it, err := New(cfg)
	require.NoError(t, err)
	table, err := opcodes.ForVersion(v37)
	require.NoError(t, err)
	a := opcodes.NewAssembler(table)

	require.NoError(t, a.EmitJump("SETUP_EXCEPT", "handler", true))
	require.NoError(t, a.Emit("LOAD_CONST", 0)) // TypeError class
	require.NoError(t, a.Emit("RAISE_VARARGS", 1))
	a.Label("handler")
	require.NoError(t, a.Emit("POP_TOP", 0)) // type
	require.NoError(t, a.Emit("POP_TOP", 0)) // instance
	require.NoError(t, a.Emit("POP_TOP", 0)) // traceback
	require.NoError(t, a.Emit("LOAD_CONST", 1))
	require.NoError(t, a.Emit("RETURN_VALUE", 0))

	raw, err := a.Finish()
	require.NoError(t, err)

	typeErrClass := values.NewClass(&values.Class{Name: "TypeError"})
	co := &code.Object{
		Code:      raw,
		Consts:    []*values.Value{typeErrClass, values.NewStr("caught")},
		Name:      "<test>",
		Qualname:  "<test>",
		FirstLine: 1,
		Version:   v37,
	}

	result, err := it.Execute(co, values.NewDict())
	require.NoError(t, err)
	assert.Equal(t, "caught", result.String())
}

func TestExceptionMatchesWalksBases(t *testing.T) {
	base := &values.Class{Name: "Exception"}
	derived := &values.Class{Name: "ValueError", Bases: []*values.Value{values.NewClass(base)}}
	exc := values.NewException(&values.ExceptionValue{
		Type:      values.NewClass(derived),
		Instance:  values.NewInstance(derived),
		Traceback: values.None(),
	})
	assert.True(t, exceptionMatches(exc, values.NewClass(derived)))
	assert.True(t, exceptionMatches(exc, values.NewClass(base)))
	assert.False(t, exceptionMatches(exc, values.NewClass(&values.Class{Name: "KeyError"})))
}
