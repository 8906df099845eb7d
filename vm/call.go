package vm

import (
	"github.com/rocky/x-python/code"
	"github.com/rocky/x-python/values"
)

// registerCallHandlers wires the three calling conventions this
// engine supports: classic (<=3.5 CALL_FUNCTION/_VAR/_KW/_VAR_KW), the
// 3.6-3.10 CALL_FUNCTION/_KW/_EX + CALL_METHOD/LOAD_METHOD pair, and
// the 3.11+ PUSH_NULL/PRECALL/KW_NAMES/CALL sequence, plus
// MAKE_FUNCTION/MAKE_CLOSURE.
func registerCallHandlers(reg map[string]HandlerFunc) {
	register(reg, "CALL_FUNCTION", opCallFunctionClassic)
	register(reg, "CALL_FUNCTION_VAR", opCallFunctionVar)
	register(reg, "CALL_FUNCTION_KW", opCallFunctionKW)
	register(reg, "CALL_FUNCTION_VAR_KW", opCallFunctionVarKW)
	register(reg, "CALL_FUNCTION_EX", opCallFunctionEx)

	register(reg, "LOAD_METHOD", opLoadMethod)
	register(reg, "CALL_METHOD", opCallMethod)

	register(reg, "KW_NAMES", opKWNames)
	register(reg, "PRECALL", opNop) // PRECALL's only role here is a trace hook point
	register(reg, "CALL", opCall311)

	register(reg, "MAKE_FUNCTION", opMakeFunction)
}

// CallValue invokes callee with positional args and keyword kwargs,
// dispatching on its runtime type steps 1-7. It is
// exported within the package for use by exceptions.go's with-protocol
// handlers and class_manager.go's metaclass/super machinery.
func (it *Interpreter) CallValue(callee *values.Value, args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	switch callee.Type {
	case values.TypeNativeFunction:
		return callee.AsNative().Call(args, kwargs)

	case values.TypeFunction:
		fn := callee.AsFunction()
		if fn.Native != nil {
			return fn.Native(args, kwargs)
		}
		return it.callInterpreted(fn, args, kwargs)

	case values.TypeBoundMethod:
		bm := callee.AsBoundMethod()
		return it.CallValue(bm.Func, append([]*values.Value{bm.Receiver}, args...), kwargs)

	case values.TypeClass:
		return it.instantiate(callee.AsClass(), args, kwargs)

	case values.TypeInstance:
		call, _, ok := callee.AsInstance().Class.LookupMethod("__call__")
		if !ok {
			return nil, NewEngineError(ErrNotCallable, "'%s' object is not callable", callee.AsInstance().Class.Name)
		}
		return it.CallValue(values.NewBoundMethod(callee, call), args, kwargs)

	default:
		return nil, NewEngineError(ErrNotCallable, "'%s' object is not callable", callee.Type)
	}
}

// callInterpreted binds args/kwargs into a fresh Frame for fn and runs
// it to completion. A generator-flagged code object
// instead returns a suspended Generator value without running any
// bytecode "resumable without goroutines" design
// (see generator.go).
func (it *Interpreter) callInterpreted(fn *values.Function, args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	co := fn.Code.(*code.Object)
	fr, err := it.bindArguments(fn, co, args, kwargs)
	if err != nil {
		return nil, err
	}

	if co.Flags.Has(code.FlagGenerator) {
		return NewGenerator(it, fr), nil
	}

	if err := it.Stack.PushFrame(fr); err != nil {
		return nil, err
	}
	defer it.Stack.PopFrame()

	val, kind, rerr := it.run(fr)
	if rerr != nil {
		return nil, rerr
	}
	if kind == SigException {
		return nil, &InterpretedException{Exc: fr.PendingException}
	}
	return val, nil
}

// bindArguments implements argument-binding rules:
// positional-only, positional-or-keyword, *args, keyword-only, and
// **kwargs, honoring Defaults/KwDefaults and the synthetic ".0"
// comprehension parameter (HasDotZero).
func (it *Interpreter) bindArguments(fn *values.Function, co *code.Object, args []*values.Value, kwargs *values.Dict) (*Frame, error) {
	fr := NewFrame(co, fn.Globals, it.Builtins, values.NewDict())

	for i, name := range co.Freevars {
		if i < len(fn.Closure) {
			fr.Cells[name] = fn.Closure[i]
		}
	}

	nPositional := co.ArgCount
	varargsIdx, varkwIdx := -1, -1
	nextExtra := nPositional + co.KwOnlyArgCount
	if co.Flags.Has(code.FlagVarargs) {
		varargsIdx = nextExtra
		nextExtra++
	}
	if co.Flags.Has(code.FlagVarKeywords) {
		varkwIdx = nextExtra
	}

	bound := make([]bool, len(fr.FastLocals))

	n := len(args)
	if n > nPositional && varargsIdx < 0 {
		return nil, NewEngineError(ErrMalformedBytecode, "%s() takes %d positional arguments but %d were given", fn.Name, nPositional, n)
	}
	for i := 0; i < nPositional && i < n; i++ {
		fr.FastLocals[i] = args[i]
		bound[i] = true
	}
	if varargsIdx >= 0 {
		extra := []*values.Value{}
		if n > nPositional {
			extra = append(extra, args[nPositional:]...)
		}
		fr.FastLocals[varargsIdx] = values.NewTuple(extra)
		bound[varargsIdx] = true
	}

	var varkwDict *values.Dict
	if varkwIdx >= 0 {
		varkwDict = values.NewDictData()
		fr.FastLocals[varkwIdx] = &values.Value{Type: values.TypeDict, Data: varkwDict}
		bound[varkwIdx] = true
	}

	if kwargs != nil {
		for _, k := range kwargs.Keys() {
			name := k.Data.(string)
			idx := indexOf(co.Varnames, name)
			if idx >= 0 && idx < nPositional+co.KwOnlyArgCount {
				v, _ := kwargs.Get(k)
				fr.FastLocals[idx] = v
				bound[idx] = true
			} else if varkwDict != nil {
				v, _ := kwargs.Get(k)
				varkwDict.Set(k, v)
			} else {
				return nil, NewEngineError(ErrMalformedBytecode, "%s() got an unexpected keyword argument '%s'", fn.Name, name)
			}
		}
	}

	// Positional defaults fill trailing positional-or-keyword slots.
	if len(fn.Defaults) > 0 {
		start := nPositional - len(fn.Defaults)
		for i, d := range fn.Defaults {
			idx := start + i
			if idx >= 0 && idx < nPositional && !bound[idx] {
				fr.FastLocals[idx] = d
				bound[idx] = true
			}
		}
	}
	if fn.KwDefaults != nil {
		for _, k := range fn.KwDefaults.Keys() {
			idx := indexOf(co.Varnames, k.Data.(string))
			if idx >= 0 && !bound[idx] {
				v, _ := fn.KwDefaults.Get(k)
				fr.FastLocals[idx] = v
				bound[idx] = true
			}
		}
	}

	for i := 0; i < nPositional+co.KwOnlyArgCount; i++ {
		if !bound[i] {
			return nil, NewEngineError(ErrMalformedBytecode, "%s() missing required argument: '%s'", fn.Name, co.Varnames[i])
		}
	}

	if fn.HasDotZero && len(args) > 0 {
		idx := indexOf(co.Varnames, ".0")
		if idx >= 0 {
			fr.FastLocals[idx] = args[0]
		}
	}

	return fr, nil
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func (it *Interpreter) instantiate(class *values.Class, args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	inst := values.NewInstance(class)
	if initFn, _, ok := class.LookupMethod("__init__"); ok {
		if _, err := it.CallValue(values.NewBoundMethod(inst, initFn), args, kwargs); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

// getAttr implements generic attribute lookup ( MRO walk
// plus instance __dict__ override), shared by LOAD_METHOD and
// variable_executor.go's LOAD_ATTR.
func (it *Interpreter) getAttr(obj *values.Value, name string) (*values.Value, error) {
	switch obj.Type {
	case values.TypeInstance:
		inst := obj.AsInstance()
		if v, ok := inst.Properties.Get(values.NewStr(name)); ok {
			return v, nil
		}
		if m, _, ok := inst.Class.LookupMethod(name); ok {
			if m.Type == values.TypeBoundMethod {
				// super()'s namespace pre-binds to the real self; don't
				// wrap a second receiver around an already-bound method.
				return m, nil
			}
			return values.NewBoundMethod(obj, m), nil
		}
		return nil, &InterpretedException{Exc: it.newAttributeError("'" + inst.Class.Name + "' object has no attribute '" + name + "'")}

	case values.TypeClass:
		class := obj.AsClass()
		if class.Namespace != nil {
			if v, ok := class.Namespace.Get(values.NewStr(name)); ok {
				return v, nil
			}
		}
		return nil, &InterpretedException{Exc: it.newAttributeError("type object '" + class.Name + "' has no attribute '" + name + "'")}

	case values.TypeException:
		ev := obj.AsException()
		switch name {
		case "args":
			if v, ok := ev.Instance.ObjectGet("args"); ok {
				return v, nil
			}
			return values.NewTuple(nil), nil
		case "__traceback__":
			return ev.Traceback, nil
		case "__cause__":
			if ev.Cause != nil {
				return ev.Cause, nil
			}
			return values.None(), nil
		case "__context__":
			if ev.Context != nil {
				return ev.Context, nil
			}
			return values.None(), nil
		}
		return nil, &InterpretedException{Exc: it.newAttributeError("exception object has no attribute '" + name + "'")}

	default:
		return nil, &InterpretedException{Exc: it.newAttributeError("'" + obj.Type.String() + "' object has no attribute '" + name + "'")}
	}
}

// lookupMethodValue resolves name on obj's class for the with-
// statement protocol and dunder dispatch that does not go through
// LOAD_METHOD.
func (it *Interpreter) lookupMethodValue(obj *values.Value, name string) (*values.Value, error) {
	if obj.Type != values.TypeInstance {
		return nil, NewEngineError(ErrNotCallable, "'%s' object has no attribute '%s'", obj.Type, name)
	}
	m, _, ok := obj.AsInstance().Class.LookupMethod(name)
	if !ok {
		return nil, &InterpretedException{Exc: it.newAttributeError("'" + obj.AsInstance().Class.Name + "' object has no attribute '" + name + "'")}
	}
	return values.NewBoundMethod(obj, m), nil
}

// popCallArgs pops n positional arguments off fr in call order
// (CPython pushes them left-to-right, so the first argument is
// deepest).
func popCallArgs(fr *Frame, n int) ([]*values.Value, error) {
	args, err := fr.PopN(n)
	if err != nil {
		return nil, err
	}
	return args, nil
}

func opCallFunctionClassic(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	n := int(imm)
	args, err := popCallArgs(fr, n)
	if err != nil {
		return Signal{}, err
	}
	callee, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	return it.dispatchCall(fr, callee, args, nil)
}

func opCallFunctionVar(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	starArgs, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	n := int(imm & 0xff)
	args, err := popCallArgs(fr, n)
	if err != nil {
		return Signal{}, err
	}
	callee, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	args = append(args, expandStarArgs(starArgs)...)
	return it.dispatchCall(fr, callee, args, nil)
}

func opCallFunctionKW(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	namesTuple, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	total := int(imm)
	names := namesTuple.AsTuple()
	nKw := len(names)
	nPos := total - nKw
	all, err := popCallArgs(fr, total)
	if err != nil {
		return Signal{}, err
	}
	callee, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	kwargs := values.NewDictData()
	for i, nameVal := range names {
		kwargs.Set(nameVal, all[nPos+i])
	}
	return it.dispatchCall(fr, callee, all[:nPos], kwargs)
}

func opCallFunctionVarKW(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	starKw, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	starArgs, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	n := int(imm & 0xff)
	args, err := popCallArgs(fr, n)
	if err != nil {
		return Signal{}, err
	}
	callee, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	args = append(args, expandStarArgs(starArgs)...)
	kwargs := expandStarKwargs(starKw)
	return it.dispatchCall(fr, callee, args, kwargs)
}

func opCallFunctionEx(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	var kwargs *values.Dict
	if imm&1 != 0 {
		kwVal, err := fr.Pop()
		if err != nil {
			return Signal{}, err
		}
		kwargs = expandStarKwargs(kwVal)
	}
	argVal, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	callee, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	return it.dispatchCall(fr, callee, expandStarArgs(argVal), kwargs)
}

func expandStarArgs(v *values.Value) []*values.Value {
	switch v.Type {
	case values.TypeTuple:
		return v.AsTuple()
	case values.TypeList:
		return v.AsList().Elems
	default:
		return nil
	}
}

func expandStarKwargs(v *values.Value) *values.Dict {
	if v.Type != values.TypeDict {
		return values.NewDictData()
	}
	return v.AsDict()
}

// opLoadMethod implements the 3.6-3.10 LOAD_METHOD optimization. It
// pushes (method, obj) when name is found on obj's class, (bound
// method, NULL) when that class entry is already bound (super()'s
// namespace), and (NULL, attribute) for ordinary attribute access;
// CALL_METHOD accepts all three layouts.
func opLoadMethod(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	obj, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	name := fr.Code.Names[int(imm)]
	if obj.Type == values.TypeInstance {
		if m, _, ok := obj.AsInstance().Class.LookupMethod(name); ok {
			if m.Type == values.TypeBoundMethod {
				// Already bound (e.g. via super()'s namespace) -- push
				// it with NULL so CALL_METHOD calls it as-is instead of
				// prepending obj as a second receiver.
				fr.Push(m)
				fr.Push(values.Null())
				return Signal{Kind: SigNormal}, nil
			}
			fr.Push(m)
			fr.Push(obj)
			return Signal{Kind: SigNormal}, nil
		}
	}
	attr, aerr := it.getAttr(obj, name)
	if aerr != nil {
		return Signal{}, aerr
	}
	fr.Push(values.Null())
	fr.Push(attr)
	return Signal{Kind: SigNormal}, nil
}

func opCallMethod(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	n := int(imm)
	args, err := popCallArgs(fr, n)
	if err != nil {
		return Signal{}, err
	}
	selfOrNull, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	methodOrAttr, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	if methodOrAttr.IsNull() {
		return it.dispatchCall(fr, selfOrNull, args, nil)
	}
	if selfOrNull.IsNull() {
		return it.dispatchCall(fr, methodOrAttr, args, nil)
	}
	return it.dispatchCall(fr, values.NewBoundMethod(selfOrNull, methodOrAttr), args, nil)
}

// opKWNames (3.11+) stages the keyword-name tuple for the following
// CALL; the actual keyword values remain interleaved on the stack.
func opKWNames(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	fr.KWNames = fr.Code.Consts[int(imm)].AsTuple()
	return Signal{Kind: SigNormal}, nil
}

// opCall311 implements the 3.11+ CALL: the stack holds
// [callable_or_null, self_or_callable, arg1..argN] per PRECALL's
// NULL-padding convention; KWNames (if KW_NAMES ran immediately
// before) says how many trailing args are keyword values.
func opCall311(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	n := int(imm)
	args, err := popCallArgs(fr, n)
	if err != nil {
		return Signal{}, err
	}
	self, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	callee, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	switch {
	case callee.IsNull():
		callee = self
	case !self.IsNull():
		args = append([]*values.Value{self}, args...)
	}

	var kwargs *values.Dict
	if len(fr.KWNames) > 0 {
		kwargs = values.NewDictData()
		nKw := len(fr.KWNames)
		split := len(args) - nKw
		for i, nameVal := range fr.KWNames {
			kwargs.Set(nameVal, args[split+i])
		}
		args = args[:split]
		fr.KWNames = nil
	}
	return it.dispatchCall(fr, callee, args, kwargs)
}

// dispatchCall is the call protocol's entry point from every CALL_*
// opcode. It intercepts the frame-aware builtins step 6
// names explicitly (exec/eval/compile/globals/locals/super, which
// need the *calling* frame's scope and so cannot be ordinary
// NativeFuncs closed over nothing) before falling through to the
// ordinary CallValue dispatch.
func (it *Interpreter) dispatchCall(fr *Frame, callee *values.Value, args []*values.Value, kwargs *values.Dict) (Signal, error) {
	if callee.Type == values.TypeNativeFunction {
		if sig, handled, err := it.callFrameAwareBuiltin(fr, callee.AsNative().Name, args); handled {
			return sig, err
		}
	}
	result, err := it.CallValue(callee, args, kwargs)
	if err != nil {
		return Signal{}, err
	}
	return Signal{Kind: SigNormal, Value: result}, nil
}

// callFrameAwareBuiltin implements step 6: these names
// are intercepted rather than looked up as ordinary callables (super
// only when called with no arguments), because their behavior depends
// on the calling frame's globals/locals, not on any argument the call
// site can pass. exec, eval and compile run nothing and return None;
// when the target and host versions differ they first log a
// CrossVersionWarning, once per version pair.
func (it *Interpreter) callFrameAwareBuiltin(fr *Frame, name string, args []*values.Value) (Signal, bool, error) {
	switch name {
	case "globals":
		return Signal{Kind: SigNormal, Value: fr.Globals}, true, nil

	case "locals":
		return Signal{Kind: SigNormal, Value: localsSnapshot(fr)}, true, nil

	case "super":
		if len(args) == 0 {
			v, err := it.Super(fr)
			if err != nil {
				return Signal{}, true, err
			}
			return Signal{Kind: SigNormal, Value: v}, true, nil
		}
		return Signal{}, false, nil

	case "exec", "eval", "compile":
		if w := it.warnCrossVersion(name); w != nil {
			it.Logger.Warnf("%s", w.Error())
		}
		return Signal{Kind: SigNormal, Value: values.None()}, true, nil

	default:
		return Signal{}, false, nil
	}
}

// localsSnapshot builds the dict locals() returns: the module's own
// globals dict at module scope (f_locals aliases f_globals there), or
// a fresh dict populated from FastLocals/Cells for a function frame.
func localsSnapshot(fr *Frame) *values.Value {
	if fr.Locals == fr.Globals {
		return fr.Locals
	}
	snap := values.NewDict()
	for i, name := range fr.Code.Varnames {
		if fr.FastLocals[i] != nil {
			snap.AsDict().Set(values.NewStr(name), fr.FastLocals[i])
		}
	}
	for name, cell := range fr.Cells {
		if v, bound := cell.CellGet(); bound {
			snap.AsDict().Set(values.NewStr(name), v)
		}
	}
	return snap
}

// opMakeFunction implements MAKE_FUNCTION/MAKE_CLOSURE:
// builds a Function value from the code constant beneath it plus
// whichever of {defaults, kwdefaults, annotations, closure} the flags
// bits say were pushed ahead of it.
func opMakeFunction(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	codeVal, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	nameVal, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	co := codeVal.Data.(*code.Object)

	fn := &values.Function{Name: co.Name, Qualname: nameVal.String(), Code: co, Globals: fr.Globals}

	if imm&0x08 != 0 {
		closureVal, err := fr.Pop()
		if err != nil {
			return Signal{}, err
		}
		fn.Closure = closureVal.AsTuple()
	}
	if imm&0x04 != 0 {
		annVal, err := fr.Pop()
		if err != nil {
			return Signal{}, err
		}
		fn.Annotations = annVal.AsDict()
	}
	if imm&0x02 != 0 {
		kwdVal, err := fr.Pop()
		if err != nil {
			return Signal{}, err
		}
		fn.KwDefaults = kwdVal.AsDict()
	}
	if imm&0x01 != 0 {
		defVal, err := fr.Pop()
		if err != nil {
			return Signal{}, err
		}
		fn.Defaults = defVal.AsTuple()
	}
	fn.HasDotZero = co.IsComprehension()

	fr.Push(values.NewFunction(fn))
	return Signal{Kind: SigNormal}, nil
}
