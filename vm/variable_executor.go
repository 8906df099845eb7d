package vm

import "github.com/rocky/x-python/values"

// registerVariableHandlers wires the name/attribute/cell-access
// opcode families.
func registerVariableHandlers(reg map[string]HandlerFunc) {
	register(reg, "LOAD_FAST", opLoadFast)
	register(reg, "STORE_FAST", opStoreFast)
	register(reg, "DELETE_FAST", opDeleteFast)

	register(reg, "LOAD_GLOBAL", opLoadGlobal)
	register(reg, "STORE_GLOBAL", opStoreGlobal)
	register(reg, "DELETE_GLOBAL", opDeleteGlobal)

	register(reg, "LOAD_NAME", opLoadName)
	register(reg, "STORE_NAME", opStoreName)
	register(reg, "DELETE_NAME", opDeleteName)

	register(reg, "LOAD_ATTR", opLoadAttr)
	register(reg, "STORE_ATTR", opStoreAttr)
	register(reg, "DELETE_ATTR", opDeleteAttr)

	register(reg, "LOAD_DEREF", opLoadDeref)
	register(reg, "STORE_DEREF", opStoreDeref)
	register(reg, "DELETE_DEREF", opDeleteDeref)
	register(reg, "LOAD_CLOSURE", opLoadClosure)
	register(reg, "LOAD_CLASSDEREF", opLoadClassDeref)
}

func opLoadFast(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	idx := int(imm)
	v := fr.FastLocals[idx]
	if v == nil {
		name := fr.Code.Varnames[idx]
		return Signal{}, &InterpretedException{Exc: it.newNameError("local variable '" + name + "' referenced before assignment")}
	}
	fr.Push(v)
	return Signal{Kind: SigNormal}, nil
}

func opStoreFast(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	v, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	fr.FastLocals[int(imm)] = v
	return Signal{Kind: SigNormal}, nil
}

func opDeleteFast(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	fr.FastLocals[int(imm)] = nil
	return Signal{Kind: SigNormal}, nil
}

// opLoadGlobal resolves name in fr.Globals, falling back to
// fr.Builtins. 3.11+ overloads the
// immediate's low bit to mean "push a NULL ahead of the value," used
// by the PUSH_NULL/PRECALL/CALL sequence when the global turns out to
// be callable without a bound receiver.
func opLoadGlobal(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	idx := imm
	pushNull := false
	if fr.Code.Version.AtLeast311() {
		pushNull = idx&1 != 0
		idx >>= 1
	}
	name := fr.Code.Names[int(idx)]
	v, ok := fr.Globals.AsDict().Get(values.NewStr(name))
	if !ok {
		v, ok = fr.Builtins.AsDict().Get(values.NewStr(name))
	}
	if !ok {
		return Signal{}, &InterpretedException{Exc: it.newNameError("name '" + name + "' is not defined")}
	}
	if pushNull {
		fr.Push(values.Null())
	}
	fr.Push(v)
	return Signal{Kind: SigNormal}, nil
}

func opStoreGlobal(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	v, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	fr.Globals.AsDict().Set(values.NewStr(fr.Code.Names[int(imm)]), v)
	return Signal{Kind: SigNormal}, nil
}

func opDeleteGlobal(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	fr.Globals.AsDict().Delete(values.NewStr(fr.Code.Names[int(imm)]))
	return Signal{Kind: SigNormal}, nil
}

// opLoadName resolves name against locals, then globals, then
// builtins -- the slower lookup module-level and class
// body code uses in place of LOAD_FAST/LOAD_GLOBAL.
func opLoadName(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	name := fr.Code.Names[int(imm)]
	key := values.NewStr(name)
	if v, ok := fr.Locals.AsDict().Get(key); ok {
		fr.Push(v)
		return Signal{Kind: SigNormal}, nil
	}
	if v, ok := fr.Globals.AsDict().Get(key); ok {
		fr.Push(v)
		return Signal{Kind: SigNormal}, nil
	}
	if v, ok := fr.Builtins.AsDict().Get(key); ok {
		fr.Push(v)
		return Signal{Kind: SigNormal}, nil
	}
	return Signal{}, &InterpretedException{Exc: it.newNameError("name '" + name + "' is not defined")}
}

func opStoreName(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	v, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	fr.Locals.AsDict().Set(values.NewStr(fr.Code.Names[int(imm)]), v)
	return Signal{Kind: SigNormal}, nil
}

func opDeleteName(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	fr.Locals.AsDict().Delete(values.NewStr(fr.Code.Names[int(imm)]))
	return Signal{Kind: SigNormal}, nil
}

func opLoadAttr(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	obj, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	name := fr.Code.Names[int(imm)]
	v, aerr := it.getAttr(obj, name)
	if aerr != nil {
		return Signal{}, aerr
	}
	fr.Push(v)
	return Signal{Kind: SigNormal}, nil
}

func opStoreAttr(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	obj, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	val, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	name := fr.Code.Names[int(imm)]
	if obj.Type != values.TypeInstance {
		return Signal{}, &InterpretedException{Exc: it.newAttributeError("'" + obj.Type.String() + "' object has no attribute '" + name + "'")}
	}
	obj.ObjectSet(name, val)
	return Signal{Kind: SigNormal}, nil
}

func opDeleteAttr(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	obj, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	name := fr.Code.Names[int(imm)]
	if obj.Type != values.TypeInstance {
		return Signal{}, &InterpretedException{Exc: it.newAttributeError("'" + obj.Type.String() + "' object has no attribute '" + name + "'")}
	}
	obj.AsInstance().Properties.Delete(values.NewStr(name))
	return Signal{Kind: SigNormal}, nil
}

// cellName resolves a LOAD_DEREF-family immediate to a variable name:
// indices below len(Cellvars) refer to cellvars, the remainder to
// freevars.
func cellName(fr *Frame, imm int64) string {
	idx := int(imm)
	if idx < len(fr.Code.Cellvars) {
		return fr.Code.Cellvars[idx]
	}
	return fr.Code.Freevars[idx-len(fr.Code.Cellvars)]
}

func opLoadDeref(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	name := cellName(fr, imm)
	cell, ok := fr.Cells[name]
	if !ok {
		return Signal{}, NewEngineError(ErrMalformedBytecode, "LOAD_DEREF: no cell for %s", name)
	}
	v, bound := cell.CellGet()
	if !bound {
		return Signal{}, &InterpretedException{Exc: it.newNameError("free variable '" + name + "' referenced before assignment")}
	}
	fr.Push(v)
	return Signal{Kind: SigNormal}, nil
}

func opStoreDeref(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	v, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	name := cellName(fr, imm)
	cell, ok := fr.Cells[name]
	if !ok {
		cell = values.NewCell()
		fr.Cells[name] = cell
	}
	cell.CellSet(v)
	return Signal{Kind: SigNormal}, nil
}

func opDeleteDeref(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	name := cellName(fr, imm)
	if cell, ok := fr.Cells[name]; ok {
		cell.Data.(*values.CellData).Clear()
	}
	return Signal{Kind: SigNormal}, nil
}

func opLoadClosure(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	name := cellName(fr, imm)
	cell, ok := fr.Cells[name]
	if !ok {
		cell = values.NewCell()
		fr.Cells[name] = cell
	}
	fr.Push(cell)
	return Signal{Kind: SigNormal}, nil
}

// opLoadClassDeref is LOAD_DEREF's class-body variant: a class body's
// namespace (fr.Locals) shadows the enclosing cell, matching CPython's
// rule that a class-level assignment wins over a captured free
// variable of the same name.
func opLoadClassDeref(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	name := cellName(fr, imm)
	if v, ok := fr.Locals.AsDict().Get(values.NewStr(name)); ok {
		fr.Push(v)
		return Signal{Kind: SigNormal}, nil
	}
	return opLoadDeref(it, fr, imm)
}
