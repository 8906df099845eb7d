// Package values implements the tagged-union runtime value model the
// engine evaluates bytecode over: primitives, containers, callables,
// and the handful of engine-only singletons (NULL, cells) that never
// appear as ordinary Python objects.
package values

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Type discriminates the variant held in a Value's Data field.
type Type byte

const (
	TypeNone Type = iota
	TypeBool
	TypeInt
	TypeFloat
	TypeStr
	TypeBytes
	TypeTuple
	TypeList
	TypeDict
	TypeSet
	TypeFrozenSet
	TypeFunction
	TypeNativeFunction
	TypeBoundMethod
	TypeClass
	TypeInstance
	TypeCell
	TypeGenerator
	TypeTraceback
	TypeException
	TypeSlice
	TypeNull // the NULL sentinel, distinct from TypeNone ("None")
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "NoneType"
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeStr:
		return "str"
	case TypeBytes:
		return "bytes"
	case TypeTuple:
		return "tuple"
	case TypeList:
		return "list"
	case TypeDict:
		return "dict"
	case TypeSet:
		return "set"
	case TypeFrozenSet:
		return "frozenset"
	case TypeFunction:
		return "function"
	case TypeNativeFunction:
		return "builtin_function_or_method"
	case TypeBoundMethod:
		return "method"
	case TypeClass:
		return "type"
	case TypeInstance:
		return "object"
	case TypeCell:
		return "cell"
	case TypeGenerator:
		return "generator"
	case TypeTraceback:
		return "traceback"
	case TypeException:
		return "exception"
	case TypeSlice:
		return "slice"
	case TypeNull:
		return "<NULL>"
	default:
		return "unknown"
	}
}

// Value is the tagged union every engine stack slot, local, and
// container element holds. Data's concrete type is determined by Type;
// see the New* constructors for the binding between the two.
type Value struct {
	Type Type
	Data interface{}
}

// Singletons. None, Null, True and False are shared immutable
// instances; every other Value is allocated fresh so that container/identity semantics
// (is vs ==) have somewhere to hook in later without changing this
// type's shape.
var (
	none = &Value{Type: TypeNone, Data: nil}
	null = &Value{Type: TypeNull, Data: nil}
	vTrue  = &Value{Type: TypeBool, Data: true}
	vFalse = &Value{Type: TypeBool, Data: false}
)

// None returns the shared Value representing Python's None.
func None() *Value { return none }

// Null returns the shared NULL sentinel pushed by PUSH_NULL,
// LOAD_METHOD, and some LOAD_GLOBAL/LOAD_ATTR variants.
// It is never equal to None: equality uses variant discrimination.
func Null() *Value { return null }

func NewBool(b bool) *Value {
	if b {
		return vTrue
	}
	return vFalse
}

func NewInt(i int64) *Value    { return &Value{Type: TypeInt, Data: i} }
func NewFloat(f float64) *Value { return &Value{Type: TypeFloat, Data: f} }
func NewStr(s string) *Value   { return &Value{Type: TypeStr, Data: s} }
func NewBytes(b []byte) *Value { return &Value{Type: TypeBytes, Data: b} }

func NewTuple(elems []*Value) *Value { return &Value{Type: TypeTuple, Data: elems} }
func NewList(elems []*Value) *Value  { return &Value{Type: TypeList, Data: &List{Elems: elems}} }

// List is the mutable backing store for TypeList values. Distinct
// Values of TypeList may share one *List (list assignment is a
// reference copy, matching Python's object model).
type List struct {
	Elems []*Value
}

func (v *Value) AsList() *List     { return v.Data.(*List) }
func (v *Value) AsTuple() []*Value { return v.Data.([]*Value) }
func (v *Value) AsDict() *Dict     { return v.Data.(*Dict) }
func (v *Value) AsSet() *Set       { return v.Data.(*Set) }

func NewDict() *Value {
	return &Value{Type: TypeDict, Data: NewDictData()}
}

// Dict is the mutable backing store for TypeDict values. Each key is
// reduced to a string (dictKey): str, int, float, bool and None keys
// match by type and value, so 1, 1.0 and True are three distinct
// keys; every other key (tuples included) matches only the same
// *Value pointer. Equal is not consulted and __hash__/__eq__ are not
// supported.
type Dict struct {
	keys   []*Value
	values map[string]*Value
	order  map[string]int
}

func NewDictData() *Dict {
	return &Dict{values: make(map[string]*Value), order: make(map[string]int)}
}

func dictKey(k *Value) string {
	switch k.Type {
	case TypeStr:
		return "s:" + k.Data.(string)
	case TypeInt:
		return fmt.Sprintf("i:%d", k.Data.(int64))
	case TypeFloat:
		return fmt.Sprintf("f:%v", k.Data.(float64))
	case TypeBool:
		return fmt.Sprintf("b:%v", k.Data.(bool))
	case TypeNone:
		return "none"
	default:
		return fmt.Sprintf("r:%p", k)
	}
}

func (d *Dict) Get(k *Value) (*Value, bool) {
	v, ok := d.values[dictKey(k)]
	return v, ok
}

func (d *Dict) Set(k, v *Value) {
	key := dictKey(k)
	if _, ok := d.values[key]; !ok {
		d.order[key] = len(d.keys)
		d.keys = append(d.keys, k)
	}
	d.values[key] = v
}

func (d *Dict) Delete(k *Value) {
	key := dictKey(k)
	if idx, ok := d.order[key]; ok {
		d.keys = append(d.keys[:idx], d.keys[idx+1:]...)
		for kk, i := range d.order {
			if i > idx {
				d.order[kk] = i - 1
			}
		}
		delete(d.order, key)
		delete(d.values, key)
	}
}

func (d *Dict) Len() int { return len(d.keys) }

// Keys returns keys in insertion order, matching CPython 3.7+ dict
// ordering guarantees (the engine does not attempt to reproduce the
// unordered behavior of 3.6 and earlier).
func (d *Dict) Keys() []*Value {
	out := make([]*Value, len(d.keys))
	copy(out, d.keys)
	return out
}

func NewSet(elems []*Value) *Value {
	s := &Set{items: make(map[string]*Value)}
	for _, e := range elems {
		s.Add(e)
	}
	return &Value{Type: TypeSet, Data: s}
}

func NewFrozenSet(elems []*Value) *Value {
	v := NewSet(elems)
	v.Type = TypeFrozenSet
	return v
}

// Set backs both TypeSet and TypeFrozenSet; mutation methods are only
// exercised through the former (BUILD_SET / SET_ADD opcodes).
type Set struct {
	items map[string]*Value
	order []string
}

func (s *Set) Add(v *Value) {
	k := dictKey(v)
	if _, ok := s.items[k]; !ok {
		s.order = append(s.order, k)
	}
	s.items[k] = v
}

func (s *Set) Contains(v *Value) bool {
	_, ok := s.items[dictKey(v)]
	return ok
}

func (s *Set) Len() int { return len(s.items) }

func (s *Set) Items() []*Value {
	out := make([]*Value, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.items[k])
	}
	return out
}

// NewCell returns an empty Cell-backed Value; Store fills it in later.
// Cells are shared: the Value itself is the handle passed around, and
// all holders observe writes through CellData.Set.
func NewCell() *Value {
	return &Value{Type: TypeCell, Data: &CellData{}}
}

// CellData is a one-slot mutable container. Empty means declared but
// not yet bound (reading it is a Python UnboundLocalError at the
// interpreter-loop level, not an engine error).
type CellData struct {
	val   *Value
	empty bool
}

func (c *CellData) Get() (*Value, bool) {
	if c.val == nil {
		return nil, false
	}
	return c.val, true
}

func (c *CellData) Set(v *Value) { c.val = v }

func (c *CellData) Clear() { c.val = nil }

func (v *Value) CellGet() (*Value, bool) {
	return v.Data.(*CellData).Get()
}

func (v *Value) CellSet(val *Value) {
	v.Data.(*CellData).Set(val)
}

// Type predicates, one per concrete Type tag.

func (v *Value) IsNone() bool      { return v.Type == TypeNone }
func (v *Value) IsNull() bool      { return v.Type == TypeNull }
func (v *Value) IsBool() bool      { return v.Type == TypeBool }
func (v *Value) IsInt() bool       { return v.Type == TypeInt }
func (v *Value) IsFloat() bool     { return v.Type == TypeFloat }
func (v *Value) IsNumeric() bool   { return v.Type == TypeInt || v.Type == TypeFloat || v.Type == TypeBool }
func (v *Value) IsStr() bool       { return v.Type == TypeStr }
func (v *Value) IsTuple() bool     { return v.Type == TypeTuple }
func (v *Value) IsList() bool      { return v.Type == TypeList }
func (v *Value) IsDict() bool      { return v.Type == TypeDict }
func (v *Value) IsCallable() bool {
	switch v.Type {
	case TypeFunction, TypeNativeFunction, TypeBoundMethod, TypeClass:
		return true
	}
	return false
}

// ToBool implements Python truthiness: 0, 0.0, "", empty containers,
// None, and False are falsy; everything else is truthy.
func (v *Value) ToBool() bool {
	switch v.Type {
	case TypeNone, TypeNull:
		return false
	case TypeBool:
		return v.Data.(bool)
	case TypeInt:
		return v.Data.(int64) != 0
	case TypeFloat:
		return v.Data.(float64) != 0
	case TypeStr:
		return v.Data.(string) != ""
	case TypeBytes:
		return len(v.Data.([]byte)) != 0
	case TypeTuple:
		return len(v.Data.([]*Value)) != 0
	case TypeList:
		return len(v.Data.(*List).Elems) != 0
	case TypeDict:
		return v.Data.(*Dict).Len() != 0
	case TypeSet, TypeFrozenSet:
		return v.Data.(*Set).Len() != 0
	default:
		return true
	}
}

func (v *Value) ToInt() int64 {
	switch v.Type {
	case TypeInt:
		return v.Data.(int64)
	case TypeBool:
		if v.Data.(bool) {
			return 1
		}
		return 0
	case TypeFloat:
		return int64(v.Data.(float64))
	case TypeStr:
		i, _ := strconv.ParseInt(strings.TrimSpace(v.Data.(string)), 10, 64)
		return i
	default:
		return 0
	}
}

func (v *Value) ToFloat() float64 {
	switch v.Type {
	case TypeFloat:
		return v.Data.(float64)
	case TypeInt:
		return float64(v.Data.(int64))
	case TypeBool:
		if v.Data.(bool) {
			return 1
		}
		return 0
	case TypeStr:
		f, _ := strconv.ParseFloat(strings.TrimSpace(v.Data.(string)), 64)
		return f
	default:
		return 0
	}
}

func (v *Value) String() string {
	switch v.Type {
	case TypeNone:
		return "None"
	case TypeNull:
		return "<NULL>"
	case TypeBool:
		if v.Data.(bool) {
			return "True"
		}
		return "False"
	case TypeInt:
		return strconv.FormatInt(v.Data.(int64), 10)
	case TypeFloat:
		f := v.Data.(float64)
		if math.IsInf(f, 1) {
			return "inf"
		}
		if math.IsInf(f, -1) {
			return "-inf"
		}
		return strconv.FormatFloat(f, 'g', -1, 64)
	case TypeStr:
		return v.Data.(string)
	case TypeBytes:
		return fmt.Sprintf("b'%s'", v.Data.([]byte))
	case TypeTuple:
		return seqString(v.Data.([]*Value), "(", ")")
	case TypeList:
		return seqString(v.Data.(*List).Elems, "[", "]")
	case TypeDict:
		return dictString(v.Data.(*Dict))
	case TypeSet:
		return seqString(v.Data.(*Set).Items(), "{", "}")
	case TypeFrozenSet:
		return "frozenset(" + seqString(v.Data.(*Set).Items(), "{", "}") + ")"
	case TypeFunction:
		return fmt.Sprintf("<function %s>", v.Data.(*Function).Qualname)
	case TypeClass:
		return fmt.Sprintf("<class '%s'>", v.Data.(*Class).Name)
	case TypeInstance:
		return fmt.Sprintf("<%s object>", v.Data.(*Instance).Class.Name)
	case TypeGenerator:
		return "<generator object>"
	default:
		return fmt.Sprintf("<%s>", v.Type)
	}
}

func seqString(elems []*Value, open, close string) string {
	var b strings.Builder
	b.WriteString(open)
	for i, e := range elems {
		if i > 0 {
			b.WriteString(", ")
		}
		if e.Type == TypeStr {
			b.WriteString(strconv.Quote(e.Data.(string)))
		} else {
			b.WriteString(e.String())
		}
	}
	if len(elems) == 1 && open == "(" {
		b.WriteString(",")
	}
	b.WriteString(close)
	return b.String()
}

func dictString(d *Dict) string {
	var b strings.Builder
	b.WriteString("{")
	keys := d.Keys()
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		v, _ := d.Get(k)
		if k.Type == TypeStr {
			b.WriteString(strconv.Quote(k.Data.(string)))
		} else {
			b.WriteString(k.String())
		}
		b.WriteString(": ")
		if v.Type == TypeStr {
			b.WriteString(strconv.Quote(v.Data.(string)))
		} else {
			b.WriteString(v.String())
		}
	}
	b.WriteString("}")
	return b.String()
}

// Identical implements Python `is`: identity for containers/objects,
// value equality for the interned-by-the-engine immutable scalars.
func (v *Value) Identical(other *Value) bool {
	if v == other {
		return true
	}
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case TypeNone, TypeNull:
		return true
	case TypeBool:
		return v.Data.(bool) == other.Data.(bool)
	case TypeInt:
		return v.Data.(int64) == other.Data.(int64)
	default:
		return false
	}
}

// Equal implements Python `==` for the value types this engine models.
func (v *Value) Equal(other *Value) bool {
	if v.Type == TypeNull || other.Type == TypeNull {
		return v.Type == other.Type
	}
	if v.IsNumeric() && other.IsNumeric() {
		if v.Type == TypeFloat || other.Type == TypeFloat {
			return v.ToFloat() == other.ToFloat()
		}
		return v.ToInt() == other.ToInt()
	}
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case TypeNone:
		return true
	case TypeStr:
		return v.Data.(string) == other.Data.(string)
	case TypeBytes:
		return string(v.Data.([]byte)) == string(other.Data.([]byte))
	case TypeTuple:
		return seqEqual(v.Data.([]*Value), other.Data.([]*Value))
	case TypeList:
		return seqEqual(v.Data.(*List).Elems, other.Data.(*List).Elems)
	case TypeDict:
		return dictEqual(v.Data.(*Dict), other.Data.(*Dict))
	case TypeSet, TypeFrozenSet:
		return setEqual(v.Data.(*Set), other.Data.(*Set))
	default:
		return v == other
	}
}

func seqEqual(a, b []*Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func dictEqual(a, b *Dict) bool {
	if a.Len() != b.Len() {
		return false
	}
	for _, k := range a.Keys() {
		av, _ := a.Get(k)
		bv, ok := b.Get(k)
		if !ok || !av.Equal(bv) {
			return false
		}
	}
	return true
}

func setEqual(a, b *Set) bool {
	if a.Len() != b.Len() {
		return false
	}
	for _, it := range a.Items() {
		if !b.Contains(it) {
			return false
		}
	}
	return true
}

// Compare implements the ordering used by COMPARE_OP's <, <=, >, >=
// for numeric and string operands.
// Returns -1, 0, 1; the second return is false when the operands are
// not ordered against each other (engine raises a TypeError in that
// case, mirroring CPython).
func (v *Value) Compare(other *Value) (int, bool) {
	if v.IsNumeric() && other.IsNumeric() {
		a, b := v.ToFloat(), other.ToFloat()
		switch {
		case a < b:
			return -1, true
		case a > b:
			return 1, true
		default:
			return 0, true
		}
	}
	if v.Type == TypeStr && other.Type == TypeStr {
		return strings.Compare(v.Data.(string), other.Data.(string)), true
	}
	return 0, false
}

// Add implements the BINARY_ADD family for numerics, string/list/tuple
// concatenation.
func (v *Value) Add(other *Value) (*Value, error) {
	switch {
	case v.Type == TypeStr && other.Type == TypeStr:
		return NewStr(v.Data.(string) + other.Data.(string)), nil
	case v.Type == TypeList && other.Type == TypeList:
		out := append(append([]*Value{}, v.Data.(*List).Elems...), other.Data.(*List).Elems...)
		return NewList(out), nil
	case v.Type == TypeTuple && other.Type == TypeTuple:
		out := append(append([]*Value{}, v.Data.([]*Value)...), other.Data.([]*Value)...)
		return NewTuple(out), nil
	case v.IsNumeric() && other.IsNumeric():
		if v.Type == TypeFloat || other.Type == TypeFloat {
			return NewFloat(v.ToFloat() + other.ToFloat()), nil
		}
		return NewInt(v.ToInt() + other.ToInt()), nil
	default:
		return nil, fmt.Errorf("unsupported operand type(s) for +: '%s' and '%s'", v.Type, other.Type)
	}
}

func (v *Value) arith(other *Value, op func(a, b float64) float64, iop func(a, b int64) int64) (*Value, error) {
	if !v.IsNumeric() || !other.IsNumeric() {
		return nil, fmt.Errorf("unsupported operand type(s): '%s' and '%s'", v.Type, other.Type)
	}
	if v.Type == TypeFloat || other.Type == TypeFloat {
		return NewFloat(op(v.ToFloat(), other.ToFloat())), nil
	}
	return NewInt(iop(v.ToInt(), other.ToInt())), nil
}

func (v *Value) Sub(other *Value) (*Value, error) {
	return v.arith(other, func(a, b float64) float64 { return a - b }, func(a, b int64) int64 { return a - b })
}

func (v *Value) Mul(other *Value) (*Value, error) {
	if v.Type == TypeStr && other.IsInt() {
		return NewStr(strings.Repeat(v.Data.(string), int(other.ToInt()))), nil
	}
	if v.Type == TypeList && other.IsInt() {
		n := int(other.ToInt())
		src := v.Data.(*List).Elems
		out := make([]*Value, 0, len(src)*max(n, 0))
		for i := 0; i < n; i++ {
			out = append(out, src...)
		}
		return NewList(out), nil
	}
	return v.arith(other, func(a, b float64) float64 { return a * b }, func(a, b int64) int64 { return a * b })
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (v *Value) Div(other *Value) (*Value, error) {
	if !v.IsNumeric() || !other.IsNumeric() {
		return nil, fmt.Errorf("unsupported operand type(s) for /: '%s' and '%s'", v.Type, other.Type)
	}
	if other.ToFloat() == 0 {
		return nil, fmt.Errorf("division by zero")
	}
	return NewFloat(v.ToFloat() / other.ToFloat()), nil
}

func (v *Value) FloorDiv(other *Value) (*Value, error) {
	if !v.IsNumeric() || !other.IsNumeric() {
		return nil, fmt.Errorf("unsupported operand type(s) for //: '%s' and '%s'", v.Type, other.Type)
	}
	if other.ToFloat() == 0 {
		return nil, fmt.Errorf("division by zero")
	}
	if v.Type == TypeFloat || other.Type == TypeFloat {
		return NewFloat(math.Floor(v.ToFloat() / other.ToFloat())), nil
	}
	a, b := v.ToInt(), other.ToInt()
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return NewInt(q), nil
}

func (v *Value) Mod(other *Value) (*Value, error) {
	if !v.IsNumeric() || !other.IsNumeric() {
		return nil, fmt.Errorf("unsupported operand type(s) for %%: '%s' and '%s'", v.Type, other.Type)
	}
	if other.ToFloat() == 0 {
		return nil, fmt.Errorf("modulo by zero")
	}
	if v.Type == TypeFloat || other.Type == TypeFloat {
		return NewFloat(math.Mod(v.ToFloat(), other.ToFloat())), nil
	}
	a, b := v.ToInt(), other.ToInt()
	m := a % b
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return NewInt(m), nil
}

func (v *Value) Pow(other *Value) (*Value, error) {
	if !v.IsNumeric() || !other.IsNumeric() {
		return nil, fmt.Errorf("unsupported operand type(s) for ** or pow(): '%s' and '%s'", v.Type, other.Type)
	}
	if v.Type == TypeInt && other.Type == TypeInt && other.ToInt() >= 0 {
		r := int64(1)
		base := v.ToInt()
		for i := int64(0); i < other.ToInt(); i++ {
			r *= base
		}
		return NewInt(r), nil
	}
	return NewFloat(math.Pow(v.ToFloat(), other.ToFloat())), nil
}

func (v *Value) bitwiseInt(other *Value, op func(a, b int64) int64) (*Value, error) {
	if !v.IsInt() && !v.IsBool() || !other.IsInt() && !other.IsBool() {
		return nil, fmt.Errorf("unsupported operand type(s): '%s' and '%s'", v.Type, other.Type)
	}
	return NewInt(op(v.ToInt(), other.ToInt())), nil
}

// And, Or and Xor implement BINARY_AND/OR/XOR; set operands intersect,
// union, and symmetric-difference rather than bitwise-combine.
func (v *Value) And(other *Value) (*Value, error) {
	if v.Type == TypeSet && other.Type == TypeSet {
		out := NewSet(nil)
		for _, e := range v.Data.(*Set).Items() {
			if other.Data.(*Set).Contains(e) {
				out.AsSet().Add(e)
			}
		}
		return out, nil
	}
	return v.bitwiseInt(other, func(a, b int64) int64 { return a & b })
}

func (v *Value) Or(other *Value) (*Value, error) {
	if v.Type == TypeSet && other.Type == TypeSet {
		out := NewSet(v.Data.(*Set).Items())
		for _, e := range other.Data.(*Set).Items() {
			out.AsSet().Add(e)
		}
		return out, nil
	}
	return v.bitwiseInt(other, func(a, b int64) int64 { return a | b })
}

func (v *Value) Xor(other *Value) (*Value, error) {
	if v.Type == TypeSet && other.Type == TypeSet {
		out := NewSet(nil)
		for _, e := range v.Data.(*Set).Items() {
			if !other.Data.(*Set).Contains(e) {
				out.AsSet().Add(e)
			}
		}
		for _, e := range other.Data.(*Set).Items() {
			if !v.Data.(*Set).Contains(e) {
				out.AsSet().Add(e)
			}
		}
		return out, nil
	}
	return v.bitwiseInt(other, func(a, b int64) int64 { return a ^ b })
}

func (v *Value) LShift(other *Value) (*Value, error) {
	return v.bitwiseInt(other, func(a, b int64) int64 { return a << uint(b) })
}

func (v *Value) RShift(other *Value) (*Value, error) {
	return v.bitwiseInt(other, func(a, b int64) int64 { return a >> uint(b) })
}

// Neg, Pos and Invert implement UNARY_NEGATIVE/POSITIVE/INVERT.
func (v *Value) Neg() (*Value, error) {
	switch {
	case v.Type == TypeFloat:
		return NewFloat(-v.ToFloat()), nil
	case v.IsNumeric():
		return NewInt(-v.ToInt()), nil
	default:
		return nil, fmt.Errorf("bad operand type for unary -: '%s'", v.Type)
	}
}

func (v *Value) Pos() (*Value, error) {
	switch {
	case v.Type == TypeFloat:
		return NewFloat(v.ToFloat()), nil
	case v.IsNumeric():
		return NewInt(v.ToInt()), nil
	default:
		return nil, fmt.Errorf("bad operand type for unary +: '%s'", v.Type)
	}
}

func (v *Value) Invert() (*Value, error) {
	if !v.IsInt() && !v.IsBool() {
		return nil, fmt.Errorf("bad operand type for unary ~: '%s'", v.Type)
	}
	return NewInt(^v.ToInt()), nil
}

// GetItem implements BINARY_SUBSCR across sequences, mappings, and
// negative/slice indices.
func (v *Value) GetItem(key *Value) (*Value, error) {
	switch v.Type {
	case TypeList:
		return indexSeq(v.Data.(*List).Elems, key)
	case TypeTuple:
		return indexSeq(v.Data.([]*Value), key)
	case TypeStr:
		s := v.Data.(string)
		if key.Type == TypeSlice {
			return NewStr(sliceString(s, key.Data.(*SliceData))), nil
		}
		idx, err := normalizeIndex(key.ToInt(), len(s))
		if err != nil {
			return nil, err
		}
		return NewStr(string(s[idx])), nil
	case TypeDict:
		val, ok := v.Data.(*Dict).Get(key)
		if !ok {
			return nil, fmt.Errorf("KeyError: %s", key.String())
		}
		return val, nil
	default:
		return nil, fmt.Errorf("'%s' object is not subscriptable", v.Type)
	}
}

func indexSeq(elems []*Value, key *Value) (*Value, error) {
	if key.Type == TypeSlice {
		return NewList(sliceSeq(elems, key.Data.(*SliceData))), nil
	}
	idx, err := normalizeIndex(key.ToInt(), len(elems))
	if err != nil {
		return nil, err
	}
	return elems[idx], nil
}

func normalizeIndex(i int64, length int) (int, error) {
	if i < 0 {
		i += int64(length)
	}
	if i < 0 || i >= int64(length) {
		return 0, fmt.Errorf("IndexError: index out of range")
	}
	return int(i), nil
}

// SliceData is BUILD_SLICE's operand: start/stop/step, any of which
// may be nil meaning "omitted."
type SliceData struct {
	Start, Stop, Step *Value
}

func NewSlice(start, stop, step *Value) *Value {
	return &Value{Type: TypeSlice, Data: &SliceData{Start: start, Stop: stop, Step: step}}
}

func (v *Value) AsSlice() *SliceData { return v.Data.(*SliceData) }

func sliceBounds(s *SliceData, length int) (start, stop, step int) {
	step = 1
	if s.Step != nil && !s.Step.IsNone() {
		step = int(s.Step.ToInt())
	}
	if step > 0 {
		start, stop = 0, length
	} else {
		start, stop = length-1, -1
	}
	if s.Start != nil && !s.Start.IsNone() {
		start = int(s.Start.ToInt())
		if start < 0 {
			start += length
		}
	}
	if s.Stop != nil && !s.Stop.IsNone() {
		stop = int(s.Stop.ToInt())
		if stop < 0 {
			stop += length
		}
	}
	return
}

func sliceSeq(elems []*Value, s *SliceData) []*Value {
	start, stop, step := sliceBounds(s, len(elems))
	out := []*Value{}
	if step > 0 {
		for i := start; i < stop && i < len(elems); i += step {
			if i >= 0 {
				out = append(out, elems[i])
			}
		}
	} else {
		for i := start; i > stop && i >= 0; i += step {
			if i < len(elems) {
				out = append(out, elems[i])
			}
		}
	}
	return out
}

func sliceString(s string, sl *SliceData) string {
	runes := []rune(s)
	seq := make([]*Value, len(runes))
	for i, r := range runes {
		seq[i] = NewStr(string(r))
	}
	out := sliceSeq(seq, sl)
	var b strings.Builder
	for _, v := range out {
		b.WriteString(v.Data.(string))
	}
	return b.String()
}

// SetItem implements STORE_SUBSCR for lists and dicts.
func (v *Value) SetItem(key, val *Value) error {
	switch v.Type {
	case TypeList:
		l := v.Data.(*List)
		idx, err := normalizeIndex(key.ToInt(), len(l.Elems))
		if err != nil {
			return err
		}
		l.Elems[idx] = val
		return nil
	case TypeDict:
		v.Data.(*Dict).Set(key, val)
		return nil
	default:
		return fmt.Errorf("'%s' object does not support item assignment", v.Type)
	}
}

// DelItem implements DELETE_SUBSCR for lists and dicts.
func (v *Value) DelItem(key *Value) error {
	switch v.Type {
	case TypeList:
		l := v.Data.(*List)
		idx, err := normalizeIndex(key.ToInt(), len(l.Elems))
		if err != nil {
			return err
		}
		l.Elems = append(l.Elems[:idx], l.Elems[idx+1:]...)
		return nil
	case TypeDict:
		v.Data.(*Dict).Delete(key)
		return nil
	default:
		return fmt.Errorf("'%s' object doesn't support item deletion", v.Type)
	}
}

// Contains implements the `in`/`not in` comparison kinds.
func (v *Value) Contains(item *Value) (bool, error) {
	switch v.Type {
	case TypeList:
		for _, e := range v.Data.(*List).Elems {
			if e.Equal(item) {
				return true, nil
			}
		}
		return false, nil
	case TypeTuple:
		for _, e := range v.Data.([]*Value) {
			if e.Equal(item) {
				return true, nil
			}
		}
		return false, nil
	case TypeStr:
		return strings.Contains(v.Data.(string), item.Data.(string)), nil
	case TypeDict:
		_, ok := v.Data.(*Dict).Get(item)
		return ok, nil
	case TypeSet, TypeFrozenSet:
		return v.Data.(*Set).Contains(item), nil
	default:
		return false, fmt.Errorf("argument of type '%s' is not iterable", v.Type)
	}
}

// SortedItems returns a dict's (key, value) pairs sorted by key's
// string form, for callers that need a deterministic order.
func SortedItems(d *Dict) []*Value {
	keys := d.Keys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	out := make([]*Value, 0, len(keys))
	for _, k := range keys {
		v, _ := d.Get(k)
		out = append(out, NewTuple([]*Value{k, v}))
	}
	return out
}
