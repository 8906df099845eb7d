package vm

import "github.com/rocky/x-python/values"

// registerComparisonHandlers wires COMPARE_OP and its 3.9+ split-outs
// IS_OP/CONTAINS_OP.
func registerComparisonHandlers(reg map[string]HandlerFunc) {
	register(reg, "COMPARE_OP", opCompareOp)
	register(reg, "IS_OP", opIsOp)
	register(reg, "CONTAINS_OP", opContainsOp)
}

// compare follows CPython's pre-3.9 cmp_op table, which
// COMPARE_OP's immediate indexed directly: <, <=, ==, !=, >, >=, in,
// not in, is, is not, exception match. 3.9+ narrowed COMPARE_OP to
// just the first six and moved the rest to IS_OP/CONTAINS_OP/
// CHECK_EXC_MATCH (exceptions.go), but the immediate values for 0-5
// are unchanged, so one switch covers both eras.
func compare(it *Interpreter, lhs, rhs *values.Value, kind int64) (*values.Value, error) {
	switch kind {
	case 0: // <
		c, ok := lhs.Compare(rhs)
		if !ok {
			return nil, &InterpretedException{Exc: it.newTypeError("'<' not supported between instances of '" + lhs.Type.String() + "' and '" + rhs.Type.String() + "'")}
		}
		return values.NewBool(c < 0), nil
	case 1: // <=
		c, ok := lhs.Compare(rhs)
		if !ok {
			return nil, &InterpretedException{Exc: it.newTypeError("'<=' not supported between instances of '" + lhs.Type.String() + "' and '" + rhs.Type.String() + "'")}
		}
		return values.NewBool(c <= 0), nil
	case 2: // ==
		return values.NewBool(lhs.Equal(rhs)), nil
	case 3: // !=
		return values.NewBool(!lhs.Equal(rhs)), nil
	case 4: // >
		c, ok := lhs.Compare(rhs)
		if !ok {
			return nil, &InterpretedException{Exc: it.newTypeError("'>' not supported between instances of '" + lhs.Type.String() + "' and '" + rhs.Type.String() + "'")}
		}
		return values.NewBool(c > 0), nil
	case 5: // >=
		c, ok := lhs.Compare(rhs)
		if !ok {
			return nil, &InterpretedException{Exc: it.newTypeError("'>=' not supported between instances of '" + lhs.Type.String() + "' and '" + rhs.Type.String() + "'")}
		}
		return values.NewBool(c >= 0), nil
	case 6: // in
		ok, cerr := rhs.Contains(lhs)
		if cerr != nil {
			return nil, &InterpretedException{Exc: it.newTypeError(cerr.Error())}
		}
		return values.NewBool(ok), nil
	case 7: // not in
		ok, cerr := rhs.Contains(lhs)
		if cerr != nil {
			return nil, &InterpretedException{Exc: it.newTypeError(cerr.Error())}
		}
		return values.NewBool(!ok), nil
	case 8: // is
		return values.NewBool(lhs == rhs || lhs.Identical(rhs)), nil
	case 9: // is not
		return values.NewBool(!(lhs == rhs || lhs.Identical(rhs))), nil
	case 10: // exception match (legacy COMPARE_OP encoding, pre-3.9)
		return values.NewBool(exceptionMatches(values.NewException(&values.ExceptionValue{Type: lhs, Instance: lhs, Traceback: values.None()}), rhs)), nil
	default:
		return nil, NewEngineError(ErrMalformedBytecode, "COMPARE_OP: unknown comparison kind %d", kind)
	}
}

func opCompareOp(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	kind := imm
	if fr.Code.Version.AtLeast312() {
		kind >>= 4 // 3.12 relocated the comparison-kind bits above a cache-entry count
	}
	rhs, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	lhs, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	result, cerr := compare(it, lhs, rhs, kind&0xf)
	if cerr != nil {
		return Signal{}, cerr
	}
	fr.Push(result)
	return Signal{Kind: SigNormal}, nil
}

// opIsOp implements 3.9+'s IS_OP: imm 0 means `is`, imm 1 means `is not`.
func opIsOp(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	rhs, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	lhs, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	same := lhs == rhs || lhs.Identical(rhs)
	if imm != 0 {
		same = !same
	}
	fr.Push(values.NewBool(same))
	return Signal{Kind: SigNormal}, nil
}

// opContainsOp implements 3.9+'s CONTAINS_OP: imm 0 means `in`, imm 1
// means `not in`.
func opContainsOp(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	rhs, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	lhs, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	ok, cerr := rhs.Contains(lhs)
	if cerr != nil {
		return Signal{}, &InterpretedException{Exc: it.newTypeError(cerr.Error())}
	}
	if imm != 0 {
		ok = !ok
	}
	fr.Push(values.NewBool(ok))
	return Signal{Kind: SigNormal}, nil
}
