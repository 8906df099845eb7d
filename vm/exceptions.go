package vm

import "github.com/rocky/x-python/values"

// registerExceptionHandlers wires the block-stack-driven (<=3.10) and
// exception-table-driven (3.11+) exception opcodes
func registerExceptionHandlers(reg map[string]HandlerFunc) {
	register(reg, "SETUP_EXCEPT", opSetupExcept)
	register(reg, "SETUP_FINALLY", opSetupFinally)
	register(reg, "END_FINALLY", opEndFinally)
	register(reg, "POP_EXCEPT", opPopExcept)

	register(reg, "SETUP_WITH", opSetupWith)
	register(reg, "BEFORE_WITH", opBeforeWith)
	register(reg, "WITH_CLEANUP_START", opWithCleanupStart)
	register(reg, "WITH_CLEANUP_FINISH", opWithCleanupFinish)
	register(reg, "WITH_CLEANUP", opWithCleanupStart)
	register(reg, "WITH_EXCEPT_START", opWithExceptStart)

	register(reg, "PUSH_EXC_INFO", opPushExcInfo)
	register(reg, "CHECK_EXC_MATCH", opCheckExcMatch)
	register(reg, "LOAD_ASSERTION_ERROR", opLoadAssertionError)
}

// unwindFrame drains fr's block stack (pre-3.11) or consults its
// per-code exception table (3.11+,) looking for a handler
// of exc. Returns true with fr.IP set to the handler offset if one was
// found; false if the block stack/exception table drained without a
// match, in which case the caller surfaces an UncaughtException or
// propagates to the calling frame.
func (it *Interpreter) unwindFrame(fr *Frame, exc *values.Value, reraise bool) (bool, error) {
	if fr.Code.Version.AtLeast311() {
		return it.unwindViaExceptionTable(fr, exc)
	}
	return it.unwindViaBlockStack(fr, exc)
}

func (it *Interpreter) unwindViaBlockStack(fr *Frame, exc *values.Value) (bool, error) {
	for {
		b := fr.PopBlock()
		if b == nil {
			return false, nil
		}
		switch b.Kind {
		case BlockExcept:
			fr.TruncateTo(b.StackDepth)
			ev := exc.AsException()
			tb := ev.Traceback
			if tb == nil {
				tb = values.None()
			}
			fr.Push(tb)
			fr.Push(ev.Instance)
			fr.Push(ev.Type)
			fr.IP = b.Handler
			return true, nil
		case BlockFinally:
			fr.TruncateTo(b.StackDepth)
			fr.Push(exc) // END_FINALLY re-raises this on completion if not handled
			fr.IP = b.Handler
			return true, nil
		case BlockWith:
			fr.TruncateTo(b.StackDepth)
			fr.Push(exc)
			if b.WithExit != nil {
				fr.Push(b.WithExit)
			}
			fr.IP = b.Handler
			return true, nil
		case BlockLoop, BlockExceptHandler:
			fr.TruncateTo(b.StackDepth)
			continue
		}
	}
}

func (it *Interpreter) unwindViaExceptionTable(fr *Frame, exc *values.Value) (bool, error) {
	entry, ok := fr.Code.HandlerForOffset(fr.IP - 1)
	if !ok {
		return false, nil
	}
	fr.TruncateTo(entry.StackDepth)
	if entry.Lasti {
		fr.Push(values.NewInt(int64(fr.IP - 1)))
	}
	fr.Push(exc)
	fr.IP = entry.Target
	return true, nil
}

func opSetupExcept(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	fr.PushBlock(&Block{Kind: BlockExcept, Handler: fr.IP + int(imm), StackDepth: fr.SP})
	return Signal{Kind: SigNormal}, nil
}

func opSetupFinally(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	fr.PushBlock(&Block{Kind: BlockFinally, Handler: fr.IP + int(imm), StackDepth: fr.SP})
	return Signal{Kind: SigNormal}, nil
}

// opEndFinally implements the pre-3.8 END_FINALLY: pop the value on
// top and re-raise it when it is an exception; any other value falls
// through. Return and break markers are not handled here.
func opEndFinally(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	v, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	if v.Type == values.TypeException {
		return Signal{Kind: SigReraise, Value: v}, nil
	}
	return Signal{Kind: SigNormal}, nil
}

func opPopExcept(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	fr.PopBlock()
	fr.PendingException = nil
	return Signal{Kind: SigNormal}, nil
}

func opSetupWith(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	mgr, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	exit, eerr := it.lookupMethodValue(mgr, "__exit__")
	if eerr != nil {
		return Signal{}, eerr
	}
	enter, eerr := it.lookupMethodValue(mgr, "__enter__")
	if eerr != nil {
		return Signal{}, eerr
	}
	result, cerr := it.CallValue(enter, nil, nil)
	if cerr != nil {
		return Signal{}, cerr
	}
	fr.PushBlock(&Block{Kind: BlockWith, Handler: fr.IP + int(imm), StackDepth: fr.SP, WithExit: exit})
	fr.Push(result)
	return Signal{Kind: SigNormal}, nil
}

// opBeforeWith is SETUP_WITH's 3.11+ replacement: it no longer takes a
// jump target immediate because the exception table now covers the
// with-block's range.
func opBeforeWith(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	mgr, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	exit, eerr := it.lookupMethodValue(mgr, "__exit__")
	if eerr != nil {
		return Signal{}, eerr
	}
	enter, eerr := it.lookupMethodValue(mgr, "__enter__")
	if eerr != nil {
		return Signal{}, eerr
	}
	result, cerr := it.CallValue(enter, nil, nil)
	if cerr != nil {
		return Signal{}, cerr
	}
	fr.Push(exit)
	fr.Push(result)
	return Signal{Kind: SigNormal}, nil
}

func opWithCleanupStart(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	exc, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	exitFn, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	var typ, val, tb *values.Value
	if exc.Type == values.TypeException {
		ev := exc.AsException()
		typ, val, tb = ev.Type, ev.Instance, ev.Traceback
	} else {
		typ, val, tb = values.None(), values.None(), values.None()
	}
	fr.Push(exc)
	result, cerr := it.CallValue(exitFn, []*values.Value{typ, val, tb}, nil)
	if cerr != nil {
		return Signal{}, cerr
	}
	fr.Push(result)
	return Signal{Kind: SigNormal}, nil
}

func opWithCleanupFinish(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	suppress, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	exc, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	if suppress.ToBool() || exc.IsNone() {
		return Signal{Kind: SigNormal}, nil
	}
	return Signal{Kind: SigReraise, Value: exc}, nil
}

// opWithExceptStart (3.9+): call __exit__ with the exception
// currently being handled, leaving its result on top for the
// following POP_JUMP_IF_TRUE to decide suppression.
func opWithExceptStart(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	exc, err := fr.Peek(0)
	if err != nil {
		return Signal{}, err
	}
	exitFn, err := fr.Peek(3)
	if err != nil {
		return Signal{}, err
	}
	var typ, val, tb *values.Value
	if exc.Type == values.TypeException {
		ev := exc.AsException()
		typ, val, tb = ev.Type, ev.Instance, ev.Traceback
	} else {
		typ, val, tb = values.None(), values.None(), values.None()
	}
	result, cerr := it.CallValue(exitFn, []*values.Value{typ, val, tb}, nil)
	if cerr != nil {
		return Signal{}, cerr
	}
	fr.Push(result)
	return Signal{Kind: SigNormal}, nil
}

// opPushExcInfo (3.11+) pushes the currently-handled exception ahead
// of the one just raised, matching CPython's exc_info stack shape for
// the new exception-table unwinding model.
func opPushExcInfo(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	top, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	prev := fr.PendingException
	if prev == nil {
		prev = values.None()
	}
	fr.Push(prev)
	fr.Push(top)
	return Signal{Kind: SigNormal}, nil
}

// opCheckExcMatch (3.11+) replaces COMPARE_OP(exception-match): pop
// the candidate type, compare against the exception below it, push a
// bool, leaving the exception itself on the stack.
func opCheckExcMatch(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	candidate, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	exc, err := fr.Top()
	if err != nil {
		return Signal{}, err
	}
	fr.Push(values.NewBool(exceptionMatches(exc, candidate)))
	return Signal{Kind: SigNormal}, nil
}

func exceptionMatches(exc, candidate *values.Value) bool {
	if exc.Type != values.TypeException || candidate.Type != values.TypeClass {
		return false
	}
	ev := exc.AsException()
	if ev.Type == nil || ev.Type.Type != values.TypeClass {
		return false
	}
	target := candidate.AsClass()
	for cur := ev.Type.AsClass(); cur != nil; {
		if cur == target || cur.Name == target.Name {
			return true
		}
		if len(cur.Bases) == 0 {
			break
		}
		cur = cur.Bases[0].AsClass()
	}
	return false
}

func opLoadAssertionError(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	fr.Push(values.NewClass(&values.Class{Name: "AssertionError"}))
	return Signal{Kind: SigNormal}, nil
}

// Builtin exception constructors used throughout the executor files
//.

func (it *Interpreter) newException(typeName, message string) *values.Value {
	class := &values.Class{Name: typeName}
	inst := values.NewInstance(class)
	inst.AsInstance().Properties.Set(values.NewStr("args"), values.NewTuple([]*values.Value{values.NewStr(message)}))
	return values.NewException(&values.ExceptionValue{
		Type:      values.NewClass(class),
		Instance:  inst,
		Traceback: values.None(),
		Context:   values.None(),
	})
}

func (it *Interpreter) newTypeError(message string) *values.Value      { return it.newException("TypeError", message) }
func (it *Interpreter) newNameError(message string) *values.Value      { return it.newException("NameError", message) }
func (it *Interpreter) newAttributeError(message string) *values.Value { return it.newException("AttributeError", message) }
func (it *Interpreter) newKeyError(message string) *values.Value       { return it.newException("KeyError", message) }
func (it *Interpreter) newIndexError(message string) *values.Value     { return it.newException("IndexError", message) }
func (it *Interpreter) newRuntimeError(message string) *values.Value   { return it.newException("RuntimeError", message) }
func (it *Interpreter) newStopIteration(value *values.Value) *values.Value {
	exc := it.newException("StopIteration", "")
	if value != nil {
		exc.AsException().Instance.AsInstance().Properties.Set(values.NewStr("value"), value)
	}
	return exc
}
