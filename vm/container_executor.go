package vm

import (
	"fmt"
	"strings"

	"github.com/rocky/x-python/values"
)

// registerContainerHandlers wires the BUILD_*/*_ADD/*_EXTEND/UNPACK_*
// and FORMAT_VALUE opcode families ( container dispatch
// table).
func registerContainerHandlers(reg map[string]HandlerFunc) {
	register(reg, "BUILD_TUPLE", opBuildTuple)
	register(reg, "BUILD_LIST", opBuildList)
	register(reg, "BUILD_SET", opBuildSet)
	register(reg, "BUILD_MAP", opBuildMap)
	register(reg, "BUILD_CONST_KEY_MAP", opBuildConstKeyMap)
	register(reg, "BUILD_SLICE", opBuildSlice)
	register(reg, "BUILD_STRING", opBuildString)

	register(reg, "LIST_APPEND", opListAppend)
	register(reg, "SET_ADD", opSetAdd)
	register(reg, "MAP_ADD", opMapAdd)
	register(reg, "LIST_EXTEND", opListExtend)
	register(reg, "SET_UPDATE", opSetUpdate)
	register(reg, "DICT_UPDATE", opDictUpdate)
	register(reg, "DICT_MERGE", opDictUpdate)

	register(reg, "UNPACK_SEQUENCE", opUnpackSequence)
	register(reg, "UNPACK_EX", opUnpackEx)

	register(reg, "FORMAT_VALUE", opFormatValue)
}

func opBuildTuple(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	elems, err := fr.PopN(int(imm))
	if err != nil {
		return Signal{}, err
	}
	fr.Push(values.NewTuple(elems))
	return Signal{Kind: SigNormal}, nil
}

func opBuildList(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	elems, err := fr.PopN(int(imm))
	if err != nil {
		return Signal{}, err
	}
	fr.Push(values.NewList(elems))
	return Signal{Kind: SigNormal}, nil
}

func opBuildSet(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	elems, err := fr.PopN(int(imm))
	if err != nil {
		return Signal{}, err
	}
	fr.Push(values.NewSet(elems))
	return Signal{Kind: SigNormal}, nil
}

func opBuildMap(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	n := int(imm)
	pairs, err := fr.PopN(2 * n)
	if err != nil {
		return Signal{}, err
	}
	d := values.NewDict()
	for i := 0; i < n; i++ {
		d.AsDict().Set(pairs[2*i], pairs[2*i+1])
	}
	fr.Push(d)
	return Signal{Kind: SigNormal}, nil
}

func opBuildConstKeyMap(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	n := int(imm)
	keysVal, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	vals, err := fr.PopN(n)
	if err != nil {
		return Signal{}, err
	}
	keys := keysVal.AsTuple()
	d := values.NewDict()
	for i := 0; i < n; i++ {
		d.AsDict().Set(keys[i], vals[i])
	}
	fr.Push(d)
	return Signal{Kind: SigNormal}, nil
}

func opBuildSlice(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	var step *values.Value
	if imm == 3 {
		s, err := fr.Pop()
		if err != nil {
			return Signal{}, err
		}
		step = s
	}
	stop, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	start, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	fr.Push(values.NewSlice(start, stop, step))
	return Signal{Kind: SigNormal}, nil
}

func opBuildString(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	parts, err := fr.PopN(int(imm))
	if err != nil {
		return Signal{}, err
	}
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.String())
	}
	fr.Push(values.NewStr(b.String()))
	return Signal{Kind: SigNormal}, nil
}

func opListAppend(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	v, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	target, err := fr.Peek(int(imm) - 1)
	if err != nil {
		return Signal{}, err
	}
	l := target.AsList()
	l.Elems = append(l.Elems, v)
	return Signal{Kind: SigNormal}, nil
}

func opSetAdd(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	v, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	target, err := fr.Peek(int(imm) - 1)
	if err != nil {
		return Signal{}, err
	}
	target.AsSet().Add(v)
	return Signal{Kind: SigNormal}, nil
}

func opMapAdd(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	val, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	key, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	target, err := fr.Peek(int(imm) - 1)
	if err != nil {
		return Signal{}, err
	}
	target.AsDict().Set(key, val)
	return Signal{Kind: SigNormal}, nil
}

func opListExtend(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	iterable, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	target, err := fr.Peek(int(imm) - 1)
	if err != nil {
		return Signal{}, err
	}
	l := target.AsList()
	l.Elems = append(l.Elems, expandStarArgs(iterable)...)
	return Signal{Kind: SigNormal}, nil
}

func opSetUpdate(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	iterable, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	target, err := fr.Peek(int(imm) - 1)
	if err != nil {
		return Signal{}, err
	}
	for _, e := range expandStarArgs(iterable) {
		target.AsSet().Add(e)
	}
	return Signal{Kind: SigNormal}, nil
}

func opDictUpdate(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	other, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	target, err := fr.Peek(int(imm) - 1)
	if err != nil {
		return Signal{}, err
	}
	for _, k := range other.AsDict().Keys() {
		v, _ := other.AsDict().Get(k)
		target.AsDict().Set(k, v)
	}
	return Signal{Kind: SigNormal}, nil
}

func opUnpackSequence(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	v, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	elems := expandStarArgs(v)
	if len(elems) != int(imm) {
		return Signal{}, &InterpretedException{Exc: it.newRuntimeError(fmt.Sprintf("not enough values to unpack (expected %d, got %d)", imm, len(elems)))}
	}
	for i := len(elems) - 1; i >= 0; i-- {
		fr.Push(elems[i])
	}
	return Signal{Kind: SigNormal}, nil
}

// opUnpackEx implements extended unpacking (`a, *b, c = seq`): imm's
// low byte is the count before the star target, the next byte the
// count after.
func opUnpackEx(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	before := int(imm & 0xff)
	after := int((imm >> 8) & 0xff)
	v, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}
	elems := expandStarArgs(v)
	if len(elems) < before+after {
		return Signal{}, &InterpretedException{Exc: it.newRuntimeError(fmt.Sprintf("not enough values to unpack (expected at least %d, got %d)", before+after, len(elems)))}
	}
	head := elems[:before]
	tail := elems[len(elems)-after:]
	mid := elems[before : len(elems)-after]

	for i := len(tail) - 1; i >= 0; i-- {
		fr.Push(tail[i])
	}
	fr.Push(values.NewList(append([]*values.Value{}, mid...)))
	for i := len(head) - 1; i >= 0; i-- {
		fr.Push(head[i])
	}
	return Signal{Kind: SigNormal}, nil
}

// opFormatValue implements f-string interpolation's FORMAT_VALUE: imm
// bit 2 means a format spec was pushed above the value (and is popped
// first), imm low bits select str()/repr()/ascii() conversion; ascii()
// is rendered the same as repr().
func opFormatValue(it *Interpreter, fr *Frame, imm int64) (Signal, error) {
	var spec *values.Value
	if imm&0x04 != 0 {
		s, err := fr.Pop()
		if err != nil {
			return Signal{}, err
		}
		spec = s
	}
	v, err := fr.Pop()
	if err != nil {
		return Signal{}, err
	}

	conv := imm & 0x03
	var s string
	switch conv {
	case 1: // !s
		s = v.String()
	case 2: // !r
		s = reprOf(v)
	case 3: // !a
		s = reprOf(v)
	default:
		s = v.String()
	}
	if spec != nil && spec.String() != "" {
		s = applyFormatSpec(s, v, spec.String())
	}
	fr.Push(values.NewStr(s))
	return Signal{Kind: SigNormal}, nil
}

func reprOf(v *values.Value) string {
	if v.Type == values.TypeStr {
		return fmt.Sprintf("%q", v.Data.(string))
	}
	return v.String()
}

// applyFormatSpec handles one piece of the format-spec mini-language:
// ".Nf" precision on floats. Any other spec, width included, leaves s
// unchanged.
func applyFormatSpec(s string, v *values.Value, spec string) string {
	switch {
	case spec == "":
		return s
	case v.Type == values.TypeFloat && strings.HasPrefix(spec, ".") && strings.HasSuffix(spec, "f"):
		var prec int
		fmt.Sscanf(spec, ".%df", &prec)
		return fmt.Sprintf("%.*f", prec, v.Data.(float64))
	default:
		return s
	}
}
