package builtins

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocky/x-python/values"
	"github.com/rocky/x-python/version"
)

func call(t *testing.T, ns *values.Value, name string, args ...*values.Value) *values.Value {
	t.Helper()
	fnVal, ok := ns.AsDict().Get(values.NewStr(name))
	require.True(t, ok, "builtin %s must be registered", name)
	result, err := fnVal.AsNative().Call(args, nil)
	require.NoError(t, err)
	return result
}

func TestNamespaceHasCoreBuiltins(t *testing.T) {
	var out bytes.Buffer
	ns := NewNamespace(&out)
	for _, name := range []string{"print", "len", "range", "str", "int", "list", "dict", "isinstance"} {
		_, ok := ns.AsDict().Get(values.NewStr(name))
		assert.True(t, ok, "expected builtin %q", name)
	}
}

func TestPrintWritesToConfiguredWriter(t *testing.T) {
	var out bytes.Buffer
	ns := NewNamespace(&out)
	call(t, ns, "print", values.NewStr("hello"), values.NewStr("world"))
	assert.Equal(t, "hello world\n", out.String())
}

func TestLenAcrossContainerTypes(t *testing.T) {
	ns := NewNamespace(&bytes.Buffer{})
	assert.Equal(t, int64(3), call(t, ns, "len", values.NewStr("abc")).ToInt())
	assert.Equal(t, int64(2), call(t, ns, "len", values.NewList([]*values.Value{values.NewInt(1), values.NewInt(2)})).ToInt())
}

func TestSumAndSorted(t *testing.T) {
	ns := NewNamespace(&bytes.Buffer{})
	nums := values.NewList([]*values.Value{values.NewInt(3), values.NewInt(1), values.NewInt(2)})
	assert.Equal(t, int64(6), call(t, ns, "sum", nums).ToInt())

	sorted := call(t, ns, "sorted", nums)
	got := make([]int64, 0, 3)
	for _, v := range sorted.AsList().Elems {
		got = append(got, v.ToInt())
	}
	assert.Equal(t, []int64{1, 2, 3}, got)
}

func TestShimAddsXrangeOnlyForPython2Target(t *testing.T) {
	ns := NewNamespace(&bytes.Buffer{})
	py2 := version.Tag{Major: 2, Minor: 7}
	py3 := version.Tag{Major: 3, Minor: 12}

	Shim(ns, "xrange", py2, py2)
	_, ok := ns.AsDict().Get(values.NewStr("xrange"))
	assert.True(t, ok, "xrange should be shimmed in for a 2.7 target")

	ns2 := NewNamespace(&bytes.Buffer{})
	Shim(ns2, "xrange", py3, py3)
	_, ok = ns2.AsDict().Get(values.NewStr("xrange"))
	assert.False(t, ok, "xrange should not appear for a 3.x target")
}

func TestIsinstanceWalksMRO(t *testing.T) {
	ns := NewNamespace(&bytes.Buffer{})
	base := &values.Class{Name: "Animal"}
	base.MRO = []*values.Value{values.NewClass(base)}
	derived := &values.Class{Name: "Dog", Bases: []*values.Value{values.NewClass(base)}}
	derived.MRO = []*values.Value{values.NewClass(derived), values.NewClass(base)}
	inst := values.NewInstance(derived)

	assert.True(t, call(t, ns, "isinstance", inst, values.NewClass(base)).ToBool())
	assert.True(t, call(t, ns, "isinstance", inst, values.NewClass(derived)).ToBool())
	other := &values.Class{Name: "Cat"}
	assert.False(t, call(t, ns, "isinstance", inst, values.NewClass(other)).ToBool())
}

func TestFrameAwareStubRejectsAliasedInvocation(t *testing.T) {
	ns := NewNamespace(&bytes.Buffer{})
	fnVal, ok := ns.AsDict().Get(values.NewStr("globals"))
	require.True(t, ok)
	_, err := fnVal.AsNative().Call(nil, nil)
	assert.Error(t, err, "globals() invoked outside vm.dispatchCall's interception must fail loudly")
}
