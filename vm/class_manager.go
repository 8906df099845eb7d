package vm

import (
	"github.com/rocky/x-python/code"
	"github.com/rocky/x-python/values"
)

// registerClassHandlers wires LOAD_BUILD_CLASS, the single opcode
// CPython's class statement compiles down to.
func registerClassHandlers(reg map[string]HandlerFunc) {
	register(reg, "LOAD_BUILD_CLASS", opLoadBuildClass)
}

func opLoadBuildClass(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	fr.Push(values.NewNativeFunc("__build_class__", it.buildClass))
	return Signal{Kind: SigNormal}, nil
}

// buildClass implements __build_class__(func, name, *bases,
// metaclass=None, **kwds): run the class body in its own namespace,
// pick a metaclass, and construct the Class.
func (it *Interpreter) buildClass(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	if len(args) < 2 {
		return nil, &InterpretedException{Exc: it.newTypeError("__build_class__: not enough arguments")}
	}
	bodyFn := args[0].AsFunction()
	name := args[1].String()
	bases := args[2:]

	var metaclass *values.Value
	if kwargs != nil {
		if m, ok := kwargs.Get(values.NewStr("metaclass")); ok {
			metaclass = m
		}
	}
	if metaclass == nil {
		metaclass = calculateMetaclass(bases)
	}

	namespace, err := it.runClassBody(bodyFn)
	if err != nil {
		return nil, err
	}

	class := &values.Class{Name: name, Bases: bases, Namespace: namespace, Metaclass: metaclass}
	class.MRO = computeMRO(class)

	classVal := values.NewClass(class)

	if metaclass != nil && metaclass.Type == values.TypeClass {
		if newFn, _, ok := metaclass.AsClass().LookupMethod("__new__"); ok {
			result, nerr := it.CallValue(newFn, []*values.Value{metaclass, values.NewStr(name), values.NewTuple(bases), values.NewDict()}, nil)
			if nerr == nil && result != nil && result.Type == values.TypeClass {
				return result, nil
			}
		}
	}
	return classVal, nil
}

// calculateMetaclass returns the metaclass of the first base that has
// one, or nil. It does not compare the bases' metaclasses: there is no
// most-derived selection and no metaclass-conflict check.
func calculateMetaclass(bases []*values.Value) *values.Value {
	for _, b := range bases {
		if b.Type == values.TypeClass && b.AsClass().Metaclass != nil {
			return b.AsClass().Metaclass
		}
	}
	return nil
}

// computeMRO builds bases-first linearization: the class itself, then
// each base's own MRO in order. Correct for single inheritance; with
// multiple bases this is depth-first rather than C3, a documented
// simplification (DESIGN.md).
func computeMRO(class *values.Class) []*values.Value {
	mro := []*values.Value{values.NewClass(class)}
	for _, base := range class.Bases {
		if base.Type != values.TypeClass {
			continue
		}
		if len(base.AsClass().MRO) > 0 {
			mro = append(mro, base.AsClass().MRO...)
		} else {
			mro = append(mro, base)
		}
	}
	return mro
}

// runClassBody executes a class body's code object in a fresh
// namespace dict (not aliasing module globals, unlike ordinary
// function calls) and returns that namespace as the class's Namespace
//.
func (it *Interpreter) runClassBody(fn *values.Function) (*values.Dict, error) {
	co := fn.Code.(*code.Object)
	namespace := values.NewDict()
	fr := NewFrame(co, fn.Globals, it.Builtins, namespace)
	for i, name := range co.Freevars {
		if i < len(fn.Closure) {
			fr.Cells[name] = fn.Closure[i]
		}
	}

	if err := it.Stack.PushFrame(fr); err != nil {
		return nil, err
	}
	defer it.Stack.PopFrame()

	_, kind, err := it.run(fr)
	if err != nil {
		return nil, err
	}
	if kind == SigException {
		return nil, &InterpretedException{Exc: fr.PendingException}
	}
	return namespace.AsDict(), nil
}

// Super constructs the zero-argument `super()` proxy from the calling
// frame's __class__ cell and first argument. This engine resolves
// super() using the immediately enclosing frame rather than CPython's
// __class__ cell search across nested comprehension frames, a
// deliberate simplification recorded in DESIGN.md.
func (it *Interpreter) Super(fr *Frame) (*values.Value, error) {
	classCell, ok := fr.Cells["__class__"]
	if !ok {
		return nil, &InterpretedException{Exc: it.newRuntimeError("super(): __class__ cell not found")}
	}
	classVal, bound := classCell.CellGet()
	if !bound {
		return nil, &InterpretedException{Exc: it.newRuntimeError("super(): empty __class__ cell")}
	}
	if len(fr.FastLocals) == 0 || fr.FastLocals[0] == nil {
		return nil, &InterpretedException{Exc: it.newRuntimeError("super(): no arguments")}
	}
	self := fr.FastLocals[0]
	class := &values.Class{Name: "super", Namespace: superNamespace(classVal.AsClass(), self)}
	class.MRO = []*values.Value{values.NewClass(class)}
	return values.NewInstance(class), nil
}

// superNamespace builds a synthetic namespace whose method lookups
// skip to the class after classVal in self's MRO, implementing
// BoundSuperProxy-style attribute resolution without a dedicated
// runtime type.
func superNamespace(classVal *values.Class, self *values.Value) *values.Dict {
	ns := values.NewDict()
	if self.Type != values.TypeInstance {
		return ns.AsDict()
	}
	mro := self.AsInstance().Class.MRO
	skip := true
	for _, m := range mro {
		mc := m.AsClass()
		if skip {
			if mc == classVal {
				skip = false
			}
			continue
		}
		if mc.Namespace == nil {
			continue
		}
		for _, k := range mc.Namespace.Keys() {
			if _, exists := ns.AsDict().Get(k); exists {
				continue
			}
			v, _ := mc.Namespace.Get(k)
			if v.Type == values.TypeFunction {
				v = values.NewBoundMethod(self, v)
			}
			ns.AsDict().Set(k, v)
		}
	}
	return ns.AsDict()
}
