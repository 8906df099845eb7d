package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocky/x-python/code"
	"github.com/rocky/x-python/opcodes"
	"github.com/rocky/x-python/values"
)

// emptyClassBody returns a Function whose code object is an empty
// class body (`class X: pass` compiles to a body that just returns
// None), for exercising buildClass without needing STORE_NAME traffic.
func emptyClassBody(t *testing.T, it *Interpreter) *values.Value {
	t.Helper()
	table, err := opcodes.ForVersion(v38)
	require.NoError(t, err)
	a := opcodes.NewAssembler(table)
	require.NoError(t, a.Emit("LOAD_CONST", 0))
	require.NoError(t, a.Emit("RETURN_VALUE", 0))
	raw, err := a.Finish()
	require.NoError(t, err)
	co := &code.Object{
		Code: raw, Consts: []*values.Value{values.None()},
		Name: "Body", Qualname: "Body", FirstLine: 1, Version: v38,
	}
	return values.NewFunction(&values.Function{Name: "Body", Code: co, Globals: values.NewDict()})
}

func TestBuildClassNoBases(t *testing.T) {
	it := newTestInterpreter(t)
	body := emptyClassBody(t, it)
	classVal, err := it.buildClass([]*values.Value{body, values.NewStr("Widget")}, nil)
	require.NoError(t, err)
	require.Equal(t, values.TypeClass, classVal.Type)
	class := classVal.AsClass()
	assert.Equal(t, "Widget", class.Name)
	assert.Empty(t, class.Bases)
	assert.Len(t, class.MRO, 1, "single-class MRO is just itself")
}

func TestComputeMROSingleInheritance(t *testing.T) {
	base := &values.Class{Name: "Base", Namespace: values.NewDictData()}
	base.MRO = computeMRO(base)

	derived := &values.Class{Name: "Derived", Bases: []*values.Value{values.NewClass(base)}, Namespace: values.NewDictData()}
	derived.MRO = computeMRO(derived)

	names := make([]string, len(derived.MRO))
	for i, m := range derived.MRO {
		names[i] = m.AsClass().Name
	}
	assert.Equal(t, []string{"Derived", "Base"}, names)
}

func TestLookupMethodWalksMRO(t *testing.T) {
	base := &values.Class{Name: "Base", Namespace: values.NewDictData()}
	greet := values.NewNativeFunc("greet", func(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
		return values.NewStr("hi"), nil
	})
	base.Namespace.Set(values.NewStr("greet"), greet)
	base.MRO = computeMRO(base)

	derived := &values.Class{Name: "Derived", Bases: []*values.Value{values.NewClass(base)}, Namespace: values.NewDictData()}
	derived.MRO = computeMRO(derived)

	found, owner, ok := derived.LookupMethod("greet")
	require.True(t, ok)
	assert.Equal(t, "Base", owner.Name)
	assert.Same(t, greet, found)
}

func TestSuperSkipsToNextClassInMRO(t *testing.T) {
	it := newTestInterpreter(t)

	base := &values.Class{Name: "Base", Namespace: values.NewDictData()}
	base.Namespace.Set(values.NewStr("greet"), values.NewFunction(&values.Function{Name: "greet"}))
	base.MRO = computeMRO(base)

	derived := &values.Class{Name: "Derived", Bases: []*values.Value{values.NewClass(base)}, Namespace: values.NewDictData()}
	derived.MRO = computeMRO(derived)

	self := values.NewInstance(derived)

	fr := &Frame{
		Cells:      map[string]*values.Value{"__class__": values.NewCell()},
		FastLocals: []*values.Value{self},
	}
	fr.Cells["__class__"].CellSet(values.NewClass(derived))

	superVal, err := it.Super(fr)
	require.NoError(t, err)
	require.Equal(t, values.TypeInstance, superVal.Type)
	_, ok := superVal.AsInstance().Class.Namespace.Get(values.NewStr("greet"))
	assert.True(t, ok, "super() should expose Base's greet through its synthetic namespace")
}
