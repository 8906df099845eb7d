package opcodes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocky/x-python/version"
)

func TestDifferentialConstruction(t *testing.T) {
	v27, err := ForVersion(version.Tag{Major: 2, Minor: 7})
	require.NoError(t, err)
	_, ok := v27.ByName("PRINT_ITEM")
	assert.True(t, ok, "2.7 should still have PRINT_ITEM")

	v31, err := ForVersion(version.Tag{Major: 3, Minor: 1})
	require.NoError(t, err)
	_, ok = v31.ByName("PRINT_ITEM")
	assert.False(t, ok, "3.1 should have dropped PRINT_ITEM")

	// Each version's table is independently materialized: mutating
	// one must never affect an already-built earlier version.
	v31.set(Info{Name: "PRINT_ITEM", Opcode: 184, Imm: ImmNone})
	_, ok = v27.ByName("PRINT_ITEM")
	assert.True(t, ok, "2.7's table must be unaffected by later mutation")
}

func TestCallConventionFamilies(t *testing.T) {
	for _, tc := range []struct {
		v              version.Tag
		classic, modern, v311 bool
	}{
		{version.Tag{Major: 2, Minor: 7}, true, false, false},
		{version.Tag{Major: 3, Minor: 8}, false, true, false},
		{version.Tag{Major: 3, Minor: 11}, false, false, true},
		{version.Tag{Major: 3, Minor: 12}, false, false, true},
	} {
		table, err := ForVersion(tc.v)
		require.NoError(t, err)
		_, hasVar := table.ByName("CALL_FUNCTION_VAR")
		_, hasCallFn := table.ByName("CALL_FUNCTION")
		_, hasCall := table.ByName("CALL")
		_, hasPrecall := table.ByName("PRECALL")

		assert.Equal(t, tc.classic, hasVar, "CALL_FUNCTION_VAR presence for %s", tc.v)
		if tc.v311 {
			assert.True(t, hasCall && hasPrecall, "%s should use the 3.11+ CALL/PRECALL sequence", tc.v)
			assert.False(t, hasCallFn, "%s should not retain CALL_FUNCTION", tc.v)
		} else {
			assert.True(t, hasCallFn, "%s should have CALL_FUNCTION", tc.v)
			assert.False(t, hasCall, "%s should not have 3.11+ CALL", tc.v)
		}
	}
}

func TestBlockVsExceptionTableEra(t *testing.T) {
	pre, err := ForVersion(version.Tag{Major: 3, Minor: 10})
	require.NoError(t, err)
	_, ok := pre.ByName("SETUP_FINALLY")
	assert.True(t, ok)

	post, err := ForVersion(version.Tag{Major: 3, Minor: 11})
	require.NoError(t, err)
	_, ok = post.ByName("SETUP_FINALLY")
	assert.False(t, ok, "3.11 replaces SETUP_FINALLY with the per-code exception table")
	_, ok = post.ByName("PUSH_EXC_INFO")
	assert.True(t, ok)
}

func TestAssembleAndDecodeRoundTrip(t *testing.T) {
	table, err := ForVersion(version.Tag{Major: 3, Minor: 8})
	require.NoError(t, err)

	a := NewAssembler(table)
	require.NoError(t, a.Emit("LOAD_CONST", 0))
	require.NoError(t, a.Emit("LOAD_CONST", 300)) // exercises EXTENDED_ARG
	require.NoError(t, a.Emit("BINARY_ADD", 0))
	require.NoError(t, a.Emit("RETURN_VALUE", 0))
	code, err := a.Finish()
	require.NoError(t, err)

	var extended int64
	var ops []string
	var args []int64
	ip := 0
	for ip < len(code) {
		d, err := Decode(table, code, ip, extended)
		require.NoError(t, err)
		if d.Name == "EXTENDED_ARG" {
			extended = d.Arg
			ip = d.NextIP
			continue
		}
		extended = 0
		ops = append(ops, d.Name)
		args = append(args, d.Arg)
		ip = d.NextIP
	}
	assert.Equal(t, []string{"LOAD_CONST", "LOAD_CONST", "BINARY_ADD", "RETURN_VALUE"}, ops)
	// the EXTENDED_ARG-prefixed immediate decodes back to 300
	assert.Equal(t, []int64{0, 300, 0, 0}, args)
}

func TestEveryVersionBuilds(t *testing.T) {
	for _, v := range version.Supported {
		table, err := ForVersion(v)
		require.NoError(t, err, "version %s must build a table", v)
		assert.NotEmpty(t, table.Names())
	}
}
