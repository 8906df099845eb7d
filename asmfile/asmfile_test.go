package asmfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocky/x-python/code"
	"github.com/rocky/x-python/version"
)

var v38 = version.Tag{Major: 3, Minor: 8}

func TestBuildAssemblesFlatInstructionList(t *testing.T) {
	p := Program{
		Name:      "adder",
		FirstLine: 1,
		ArgCount:  1,
		Varnames:  []string{"x"},
		Consts:    []interface{}{int64(1)},
		Code: []Instruction{
			{Op: "LOAD_FAST", Arg: 0},
			{Op: "LOAD_CONST", Arg: 0},
			{Op: "BINARY_ADD"},
			{Op: "RETURN_VALUE"},
		},
	}
	co, err := p.Build(v38)
	require.NoError(t, err)
	assert.Equal(t, "adder", co.Name)
	assert.Equal(t, "adder", co.Qualname, "Qualname defaults to Name when left blank")
	assert.Equal(t, 1, co.ArgCount)
	assert.NotEmpty(t, co.Code)
	assert.NoError(t, co.Validate())
}

func TestBuildResolvesLabelsAndJumps(t *testing.T) {
	p := Program{
		Name:      "loop",
		FirstLine: 1,
		Consts:    []interface{}{int64(0)},
		Code: []Instruction{
			{Label: "top", Op: "LOAD_CONST", Arg: 0},
			{Op: "JUMP_ABSOLUTE", Jump: "top", Rel: false},
		},
	}
	co, err := p.Build(v38)
	require.NoError(t, err)
	assert.NotEmpty(t, co.Code)
}

func TestBuildSetsGeneratorFlag(t *testing.T) {
	p := Program{
		Name:      "gen",
		FirstLine: 1,
		Generator: true,
		Consts:    []interface{}{int64(1)},
		Code: []Instruction{
			{Op: "LOAD_CONST", Arg: 0},
			{Op: "YIELD_VALUE"},
			{Op: "RETURN_VALUE"},
		},
	}
	co, err := p.Build(v38)
	require.NoError(t, err)
	assert.NotZero(t, co.Flags&code.FlagGenerator)
}

func TestBuildRejectsUnknownOpcode(t *testing.T) {
	p := Program{
		Name:      "bad",
		FirstLine: 1,
		Code:      []Instruction{{Op: "NOT_A_REAL_OPCODE"}},
	}
	_, err := p.Build(v38)
	assert.Error(t, err)
}

func TestScalarToValueConvertsYAMLScalars(t *testing.T) {
	assert.True(t, scalarToValue(nil).IsNone())
	assert.Equal(t, int64(1), scalarToValue(true).ToInt())
	assert.Equal(t, int64(42), scalarToValue(42).ToInt())
	assert.Equal(t, int64(42), scalarToValue(int64(42)).ToInt())
	assert.Equal(t, 3.5, scalarToValue(3.5).ToFloat())
	assert.Equal(t, "hi", scalarToValue("hi").String())
}

func TestLoadReadsYAMLFileFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "const.yaml")
	yamlSrc := `
name: identity
first_line: 1
consts:
  - 7
code:
  - op: LOAD_CONST
    arg: 0
  - op: RETURN_VALUE
`
	require.NoError(t, os.WriteFile(path, []byte(yamlSrc), 0o644))

	co, err := Load(path, v38)
	require.NoError(t, err)
	assert.Equal(t, "identity", co.Name)
	require.Len(t, co.Consts, 1)
	assert.Equal(t, int64(7), co.Consts[0].ToInt())
}

func TestLoadPropagatesMissingFileError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), v38)
	assert.Error(t, err)
}
