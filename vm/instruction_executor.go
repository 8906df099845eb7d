package vm

import (
	"fmt"

	"github.com/rocky/x-python/values"
)

// registerStackHandlers wires the generic stack-shuffling, constant,
// jump, and loop-control opcodes shared by every version -- the
// catch-all "misc" opcodes not specific to arithmetic/comparison/
// variables.
func registerStackHandlers(reg map[string]HandlerFunc) {
	register(reg, "NOP", opNop)
	register(reg, "POP_TOP", opPopTop)
	register(reg, "ROT_TWO", opRotTwo)
	register(reg, "ROT_THREE", opRotThree)
	register(reg, "DUP_TOP", opDupTop)
	register(reg, "DUP_TOP_TWO", opDupTopTwo)
	register(reg, "COPY", opCopy)
	register(reg, "SWAP", opSwap)
	register(reg, "RESUME", opNop)

	register(reg, "LOAD_CONST", opLoadConst)
	register(reg, "RETURN_VALUE", opReturnValue)
	register(reg, "RETURN_CONST", opReturnConst)
	register(reg, "YIELD_VALUE", opYieldValue)

	register(reg, "JUMP_FORWARD", opJumpForward)
	register(reg, "JUMP_ABSOLUTE", opJumpAbsolute)
	register(reg, "POP_JUMP_IF_FALSE", opPopJumpIfFalse)
	register(reg, "POP_JUMP_IF_TRUE", opPopJumpIfTrue)
	register(reg, "POP_JUMP_IF_NONE", opPopJumpIfNone)
	register(reg, "POP_JUMP_IF_NOT_NONE", opPopJumpIfNotNone)
	register(reg, "JUMP_IF_FALSE_OR_POP", opJumpIfFalseOrPop)
	register(reg, "JUMP_IF_TRUE_OR_POP", opJumpIfTrueOrPop)

	register(reg, "GET_ITER", opGetIter)
	register(reg, "GET_YIELD_FROM_ITER", opGetIter)
	register(reg, "FOR_ITER", opForIter)

	register(reg, "RAISE_VARARGS", opRaiseVarargs)
	register(reg, "RERAISE", opReraise)

	register(reg, "SETUP_LOOP", opSetupLoop)
	register(reg, "BREAK_LOOP", opBreakLoop)
	register(reg, "CONTINUE_LOOP", opContinueLoop)
	register(reg, "POP_BLOCK", opPopBlock)

	register(reg, "PRINT_EXPR", opPrintExpr)
	register(reg, "PRINT_ITEM", opPrintItem)
	register(reg, "PRINT_NEWLINE", opPrintNewline)

	register(reg, "PUSH_NULL", opPushNull)
}

func opNop(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	return Signal{Kind: SigNormal}, nil
}

func opPopTop(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	if _, err := fr.Pop(); err != nil {
		return Signal{}, err
	}
	return Signal{Kind: SigNormal}, nil
}

func opRotTwo(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	a, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	b, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	fr.Push(a)
	fr.Push(b)
	return Signal{Kind: SigNormal}, nil
}

func opRotThree(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	a, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	b, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	c, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	fr.Push(a)
	fr.Push(c)
	fr.Push(b)
	return Signal{Kind: SigNormal}, nil
}

func opDupTop(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	top, err := fr.Top()
	if err != nil {
		return Signal{}, err
	}
	fr.Push(top)
	return Signal{Kind: SigNormal}, nil
}

func opDupTopTwo(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	a, err := fr.Peek(1)
	if err != nil {
		return Signal{}, err
	}
	b, err := fr.Peek(0)
	if err != nil {
		return Signal{}, err
	}
	fr.Push(a)
	fr.Push(b)
	return Signal{Kind: SigNormal}, nil
}

// opCopy implements 3.11+ COPY i: push a copy of the i-th item from
// the top (1-indexed).
func opCopy(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	v, err := fr.Peek(int(imm) - 1)
	if err != nil {
		return Signal{}, err
	}
	fr.Push(v)
	return Signal{Kind: SigNormal}, nil
}

// opSwap implements 3.11+ SWAP i: swap top with the i-th item.
func opSwap(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	topIdx := fr.SP - 1
	otherIdx := fr.SP - int(imm)
	if topIdx < 0 || otherIdx < 0 {
		return Signal{}, NewEngineError(ErrStackUnderflow, "SWAP %d", imm)
	}
	fr.Stack[topIdx], fr.Stack[otherIdx] = fr.Stack[otherIdx], fr.Stack[topIdx]
	return Signal{Kind: SigNormal}, nil
}

func opLoadConst(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	idx := int(imm)
	if idx < 0 || idx >= len(fr.Code.Consts) {
		return Signal{}, NewEngineError(ErrConstantOutOfRange, "index %d", idx)
	}
	fr.Push(fr.Code.Consts[idx])
	return Signal{Kind: SigNormal}, nil
}

func opReturnValue(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	v, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	return Signal{Kind: SigReturn, Value: v}, nil
}

func opReturnConst(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	idx := int(imm)
	if idx < 0 || idx >= len(fr.Code.Consts) {
		return Signal{}, NewEngineError(ErrConstantOutOfRange, "index %d", idx)
	}
	return Signal{Kind: SigReturn, Value: fr.Code.Consts[idx]}, nil
}

func opYieldValue(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	v, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	return Signal{Kind: SigYield, Value: v}, nil
}

func opJumpForward(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	fr.IP += int(imm)
	return Signal{Kind: SigNormal}, nil
}

func opJumpAbsolute(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	fr.IP = int(imm)
	return Signal{Kind: SigNormal}, nil
}

func opPopJumpIfFalse(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	v, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	if !v.ToBool() {
		fr.IP = int(imm)
	}
	return Signal{Kind: SigNormal}, nil
}

func opPopJumpIfTrue(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	v, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	if v.ToBool() {
		fr.IP = int(imm)
	}
	return Signal{Kind: SigNormal}, nil
}

func opPopJumpIfNone(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	v, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	if v.IsNone() {
		fr.IP = int(imm)
	}
	return Signal{Kind: SigNormal}, nil
}

func opPopJumpIfNotNone(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	v, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	if !v.IsNone() {
		fr.IP = int(imm)
	}
	return Signal{Kind: SigNormal}, nil
}

func opJumpIfFalseOrPop(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	top, err := fr.Top()
	if err != nil {
		return Signal{}, err
	}
	if !top.ToBool() {
		fr.IP = int(imm)
		return Signal{Kind: SigNormal}, nil
	}
	_, _ = fr.Pop()
	return Signal{Kind: SigNormal}, nil
}

func opJumpIfTrueOrPop(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	top, err := fr.Top()
	if err != nil {
		return Signal{}, err
	}
	if top.ToBool() {
		fr.IP = int(imm)
		return Signal{Kind: SigNormal}, nil
	}
	_, _ = fr.Pop()
	return Signal{Kind: SigNormal}, nil
}

// Iterator is the engine-internal protocol GET_ITER/FOR_ITER drive.
// Built-in sequence types, sets, dicts and generators get a native
// iterator; any other value, an instance with __iter__/__next__
// included, makes GET_ITER raise TypeError.
type Iterator interface {
	Next() (*values.Value, bool)
}

type sliceIterator struct {
	items []*values.Value
	pos   int
}

func (s *sliceIterator) Next() (*values.Value, bool) {
	if s.pos >= len(s.items) {
		return nil, false
	}
	v := s.items[s.pos]
	s.pos++
	return v, true
}

func newIteratorFor(v *values.Value) (Iterator, error) {
	switch v.Type {
	case values.TypeList:
		return &sliceIterator{items: append([]*values.Value{}, v.AsList().Elems...)}, nil
	case values.TypeTuple:
		return &sliceIterator{items: append([]*values.Value{}, v.AsTuple()...)}, nil
	case values.TypeStr:
		s := v.Data.(string)
		items := make([]*values.Value, 0, len(s))
		for _, r := range s {
			items = append(items, values.NewStr(string(r)))
		}
		return &sliceIterator{items: items}, nil
	case values.TypeSet, values.TypeFrozenSet:
		return &sliceIterator{items: v.AsSet().Items()}, nil
	case values.TypeDict:
		return &sliceIterator{items: v.AsDict().Keys()}, nil
	case values.TypeGenerator:
		return &generatorIterator{gen: AsGenerator(v)}, nil
	default:
		return nil, fmt.Errorf("'%s' object is not iterable", v.Type)
	}
}

// iteratorBox wraps a Go Iterator as an opaque engine Value so it
// can live on the Python value stack between GET_ITER and FOR_ITER.
// This engine models iterators as a native Go object rather than a
// full TypeInstance with __next__, since no bytecode outside
// GET_ITER/FOR_ITER ever needs to introspect it as a Python object.
type iteratorBox struct{ it Iterator }

func opGetIter(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	v, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	iter, ierr := newIteratorFor(v)
	if ierr != nil {
		return Signal{}, &InterpretedException{Exc: it.newTypeError(ierr.Error())}
	}
	fr.Push(&values.Value{Type: values.TypeNone, Data: &iteratorBox{it: iter}})
	return Signal{Kind: SigNormal}, nil
}

func opForIter(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	top, err := fr.Top()
	if err != nil {
		return Signal{}, err
	}
	box, ok := top.Data.(*iteratorBox)
	if !ok {
		return Signal{}, NewEngineError(ErrMalformedBytecode, "FOR_ITER on non-iterator stack slot")
	}
	v, has := box.it.Next()
	if !has {
		_, _ = fr.Pop()
		fr.IP += int(imm)
		return Signal{Kind: SigNormal}, nil
	}
	fr.Push(v)
	return Signal{Kind: SigNormal}, nil
}

func opRaiseVarargs(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	n := int(imm)
	var cause, exc *values.Value
	if n >= 2 {
		c, err := fr.Pop()
		if err != nil {
			return Signal{}, err
		}
		cause = c
	}
	if n >= 1 {
		e, err := fr.Pop()
		if err != nil {
			return Signal{}, err
		}
		exc = e
	}
	if exc == nil {
		if fr.PendingException != nil {
			return Signal{Kind: SigReraise, Value: fr.PendingException}, nil
		}
		return Signal{}, &InterpretedException{Exc: it.newRuntimeError("No active exception to re-raise")}
	}
	ev := toExceptionValue(exc)
	if cause != nil {
		ev.Suppress = cause.IsNone()
		if !cause.IsNone() {
			ev.Cause = values.NewException(toExceptionValue(cause))
		} else {
			ev.Cause = values.None()
		}
	}
	return Signal{Kind: SigException, Value: values.NewException(ev)}, nil
}

// toExceptionValue normalizes whatever RAISE_VARARGS found on the
// stack (an exception instance, an exception class, or a legacy
// string) into the engine's ExceptionValue shape.
func toExceptionValue(v *values.Value) *values.ExceptionValue {
	switch v.Type {
	case values.TypeException:
		return v.AsException()
	case values.TypeInstance:
		return &values.ExceptionValue{Type: values.NewClass(v.AsInstance().Class), Instance: v, Traceback: values.None(), Context: values.None()}
	case values.TypeClass:
		inst := values.NewInstance(v.AsClass())
		return &values.ExceptionValue{Type: v, Instance: inst, Traceback: values.None(), Context: values.None()}
	default:
		inst := values.NewInstance(&values.Class{Name: "RuntimeError"})
		inst.AsInstance().Properties.Set(values.NewStr("args"), values.NewTuple([]*values.Value{v}))
		return &values.ExceptionValue{Type: values.NewClass(&values.Class{Name: "RuntimeError"}), Instance: inst, Traceback: values.None(), Context: values.None()}
	}
}

func opReraise(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	v, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	return Signal{Kind: SigReraise, Value: v}, nil
}

func opSetupLoop(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	fr.PushBlock(&Block{Kind: BlockLoop, Handler: fr.IP + int(imm), StackDepth: fr.SP})
	return Signal{Kind: SigNormal}, nil
}

func opBreakLoop(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	for {
		b := fr.PopBlock()
		if b == nil {
			return Signal{}, NewEngineError(ErrBlockStackCorrupt, "BREAK_LOOP with no enclosing loop block")
		}
		if b.Kind == BlockLoop {
			fr.TruncateTo(b.StackDepth)
			fr.IP = b.Handler
			return Signal{Kind: SigNormal}, nil
		}
	}
}

func opContinueLoop(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	fr.IP = int(imm)
	return Signal{Kind: SigNormal}, nil
}

func opPopBlock(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	b := fr.PopBlock()
	if b != nil {
		fr.TruncateTo(b.StackDepth)
	}
	return Signal{Kind: SigNormal}, nil
}

func opPrintExpr(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	v, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	if !v.IsNone() {
		fmt.Fprintln(it.Stdout, v.String())
	}
	return Signal{Kind: SigNormal}, nil
}

func opPrintItem(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	v, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	fmt.Fprint(it.Stdout, v.String())
	return Signal{Kind: SigNormal}, nil
}

func opPrintNewline(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	fmt.Fprintln(it.Stdout)
	return Signal{Kind: SigNormal}, nil
}

func opPushNull(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	fr.Push(values.Null())
	return Signal{Kind: SigNormal}, nil
}
