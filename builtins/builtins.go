// Package builtins constructs the injected builtin namespace: a
// minimal builtin namespace so programs compiled for version V see
// names expected in version V when run under host version H. It is a
// name-to-handler registry built once and handed to the VM.
package builtins

import (
	"fmt"
	"io"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/rocky/x-python/values"
	"github.com/rocky/x-python/version"
)

// NewNamespace builds the default builtin dict every top-level module
// frame's f_builtins points at. out backs the print()
// function; PRINT_ITEM/PRINT_NEWLINE (the legacy statement form) write
// to the interpreter's own io.Writer directly and do not go through
// this namespace.
func NewNamespace(out io.Writer) *values.Value {
	ns := values.NewDict()
	d := ns.AsDict()
	for name, fn := range functionTable(out) {
		d.Set(values.NewStr(name), values.NewNativeFunc(name, fn))
	}
	for name, v := range constantTable() {
		d.Set(values.NewStr(name), v)
	}
	// Frame-aware builtins intercepted by vm.dispatchCall still need an
	// entry here so LOAD_GLOBAL/LOAD_NAME resolve the name to
	// *something* callable before the call protocol special-cases it.
	for _, name := range []string{"globals", "locals", "super", "exec", "eval", "compile"} {
		if _, exists := d.Get(values.NewStr(name)); !exists {
			d.Set(values.NewStr(name), values.NewNativeFunc(name, frameAwareStub(name)))
		}
	}
	return ns
}

// frameAwareStub is the namespace entry for a name vm.dispatchCall
// always intercepts before reaching CallValue; it only runs if the
// name is invoked through a path dispatchCall doesn't see (e.g. stored
// in a variable and called later), which this engine does not support
// for these six names -- it raises rather than silently misbehaving.
func frameAwareStub(name string) func([]*values.Value, *values.Dict) (*values.Value, error) {
	return func(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
		return nil, fmt.Errorf("%s() requires the calling frame and must be invoked directly, not through an alias", name)
	}
}

// Shim overrides name in ns with the version-appropriate builtin for
// target. It handles "unicode", "xrange" and "long", each added only
// on a 2.x target; "print" and every other name leave ns unchanged.
func Shim(ns *values.Value, name string, target, host version.Tag) {
	d := ns.AsDict()
	switch name {
	case "print":
		// print() exists as a builtin function from 3.0 on; on a 2.x
		// target it is still reachable as a function (PRINT_ITEM/
		// PRINT_NEWLINE cover the statement form), so no override is
		// needed beyond documenting the divergence here.
	case "unicode":
		if !target.AtLeast311() && target.Major == 2 {
			d.Set(values.NewStr("unicode"), values.NewNativeFunc("unicode", strFunc))
		}
	case "xrange":
		if target.Major == 2 {
			d.Set(values.NewStr("xrange"), values.NewNativeFunc("xrange", rangeFunc))
		}
	case "long":
		if target.Major == 2 {
			d.Set(values.NewStr("long"), values.NewNativeFunc("long", intFunc))
		}
	}
}

func constantTable() map[string]*values.Value {
	return map[string]*values.Value{
		"None":  values.None(),
		"True":  values.NewBool(true),
		"False": values.NewBool(false),
	}
}

func functionTable(out io.Writer) map[string]func([]*values.Value, *values.Dict) (*values.Value, error) {
	return map[string]func([]*values.Value, *values.Dict) (*values.Value, error){
		"print":      printFunc(out),
		"len":        lenFunc,
		"range":      rangeFunc,
		"abs":        absFunc,
		"min":        minFunc,
		"max":        maxFunc,
		"sum":        sumFunc,
		"repr":       reprFunc,
		"str":        strFunc,
		"int":        intFunc,
		"float":      floatFunc,
		"bool":       boolFunc,
		"list":       listFunc,
		"tuple":      tupleFunc,
		"dict":       dictFunc,
		"set":        setFunc,
		"sorted":     sortedFunc,
		"isinstance": isinstanceFunc,
		"issubclass": issubclassFunc,
		"hasattr":    hasattrFunc,
		"getattr":    getattrFunc,
		"setattr":    setattrFunc,
		"callable":   callableFunc,
		"id":         idFunc,
		"iter":       iterFunc,
		"enumerate":  enumerateFunc,
		"zip":        zipFunc,
	}
}

func printFunc(out io.Writer) func([]*values.Value, *values.Dict) (*values.Value, error) {
	return func(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
		sep, end := " ", "\n"
		if kwargs != nil {
			if v, ok := kwargs.Get(values.NewStr("sep")); ok {
				sep = v.String()
			}
			if v, ok := kwargs.Get(values.NewStr("end")); ok {
				end = v.String()
			}
		}
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.String()
		}
		fmt.Fprint(out, strings.Join(parts, sep)+end)
		return values.None(), nil
	}
}

func lenFunc(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("len() takes exactly one argument (%d given)", len(args))
	}
	v := args[0]
	switch v.Type {
	case values.TypeStr:
		return values.NewInt(int64(len(v.Data.(string)))), nil
	case values.TypeList:
		return values.NewInt(int64(len(v.AsList().Elems))), nil
	case values.TypeTuple:
		return values.NewInt(int64(len(v.AsTuple()))), nil
	case values.TypeDict:
		return values.NewInt(int64(v.AsDict().Len())), nil
	case values.TypeSet, values.TypeFrozenSet:
		return values.NewInt(int64(v.AsSet().Len())), nil
	default:
		return nil, fmt.Errorf("object of type '%s' has no len()", v.Type)
	}
}

func rangeFunc(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	var start, stop, step int64 = 0, 0, 1
	switch len(args) {
	case 1:
		stop = args[0].ToInt()
	case 2:
		start, stop = args[0].ToInt(), args[1].ToInt()
	case 3:
		start, stop, step = args[0].ToInt(), args[1].ToInt(), args[2].ToInt()
	default:
		return nil, fmt.Errorf("range expected 1 to 3 arguments, got %d", len(args))
	}
	if step == 0 {
		return nil, fmt.Errorf("range() arg 3 must not be zero")
	}
	var elems []*values.Value
	if step > 0 {
		for i := start; i < stop; i += step {
			elems = append(elems, values.NewInt(i))
		}
	} else {
		for i := start; i > stop; i += step {
			elems = append(elems, values.NewInt(i))
		}
	}
	return values.NewTuple(elems), nil
}

func absFunc(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("abs() takes exactly one argument")
	}
	v := args[0]
	if v.Type == values.TypeFloat {
		return values.NewFloat(math.Abs(v.ToFloat())), nil
	}
	n := v.ToInt()
	if n < 0 {
		n = -n
	}
	return values.NewInt(n), nil
}

func minmax(args []*values.Value, less func(a, b *values.Value) bool) (*values.Value, error) {
	items := args
	if len(args) == 1 {
		items = sequenceElems(args[0])
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("min()/max() arg is an empty sequence")
	}
	best := items[0]
	for _, v := range items[1:] {
		if less(v, best) {
			best = v
		}
	}
	return best, nil
}

func minFunc(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	return minmax(args, func(a, b *values.Value) bool { c, _ := a.Compare(b); return c < 0 })
}

func maxFunc(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	return minmax(args, func(a, b *values.Value) bool { c, _ := a.Compare(b); return c > 0 })
}

func sumFunc(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("sum() takes at least one argument")
	}
	var acc *values.Value = values.NewInt(0)
	if len(args) == 2 {
		acc = args[1]
	}
	for _, v := range sequenceElems(args[0]) {
		next, err := acc.Add(v)
		if err != nil {
			return nil, err
		}
		acc = next
	}
	return acc, nil
}

func sequenceElems(v *values.Value) []*values.Value {
	switch v.Type {
	case values.TypeList:
		return v.AsList().Elems
	case values.TypeTuple:
		return v.AsTuple()
	case values.TypeSet, values.TypeFrozenSet:
		return v.AsSet().Items()
	case values.TypeStr:
		s := v.Data.(string)
		out := make([]*values.Value, 0, len(s))
		for _, r := range s {
			out = append(out, values.NewStr(string(r)))
		}
		return out
	default:
		return nil
	}
}

func reprFunc(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("repr() takes exactly one argument")
	}
	v := args[0]
	if v.Type == values.TypeStr {
		return values.NewStr(strconv.Quote(v.Data.(string))), nil
	}
	return values.NewStr(v.String()), nil
}

func strFunc(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	if len(args) == 0 {
		return values.NewStr(""), nil
	}
	return values.NewStr(args[0].String()), nil
}

func intFunc(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	if len(args) == 0 {
		return values.NewInt(0), nil
	}
	if args[0].Type == values.TypeStr {
		n, err := strconv.ParseInt(strings.TrimSpace(args[0].Data.(string)), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid literal for int(): '%s'", args[0].Data.(string))
		}
		return values.NewInt(n), nil
	}
	return values.NewInt(args[0].ToInt()), nil
}

func floatFunc(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	if len(args) == 0 {
		return values.NewFloat(0), nil
	}
	if args[0].Type == values.TypeStr {
		f, err := strconv.ParseFloat(strings.TrimSpace(args[0].Data.(string)), 64)
		if err != nil {
			return nil, fmt.Errorf("could not convert string to float: '%s'", args[0].Data.(string))
		}
		return values.NewFloat(f), nil
	}
	return values.NewFloat(args[0].ToFloat()), nil
}

func boolFunc(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	if len(args) == 0 {
		return values.NewBool(false), nil
	}
	return values.NewBool(args[0].ToBool()), nil
}

func listFunc(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	if len(args) == 0 {
		return values.NewList(nil), nil
	}
	return values.NewList(append([]*values.Value{}, sequenceElems(args[0])...)), nil
}

func tupleFunc(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	if len(args) == 0 {
		return values.NewTuple(nil), nil
	}
	return values.NewTuple(append([]*values.Value{}, sequenceElems(args[0])...)), nil
}

func dictFunc(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	d := values.NewDict()
	if len(args) == 1 && args[0].Type == values.TypeDict {
		for _, k := range args[0].AsDict().Keys() {
			v, _ := args[0].AsDict().Get(k)
			d.AsDict().Set(k, v)
		}
	}
	if kwargs != nil {
		for _, k := range kwargs.Keys() {
			v, _ := kwargs.Get(k)
			d.AsDict().Set(k, v)
		}
	}
	return d, nil
}

func setFunc(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	if len(args) == 0 {
		return values.NewSet(nil), nil
	}
	return values.NewSet(sequenceElems(args[0])), nil
}

func sortedFunc(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("sorted() takes exactly one argument")
	}
	elems := append([]*values.Value{}, sequenceElems(args[0])...)
	reverse := false
	if kwargs != nil {
		if v, ok := kwargs.Get(values.NewStr("reverse")); ok {
			reverse = v.ToBool()
		}
	}
	sort.SliceStable(elems, func(i, j int) bool {
		c, _ := elems[i].Compare(elems[j])
		if reverse {
			return c > 0
		}
		return c < 0
	})
	return values.NewList(elems), nil
}

func isinstanceFunc(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("isinstance() takes exactly two arguments")
	}
	obj, classVal := args[0], args[1]
	if obj.Type != values.TypeInstance || classVal.Type != values.TypeClass {
		return values.NewBool(false), nil
	}
	target := classVal.AsClass()
	for _, m := range obj.AsInstance().Class.MRO {
		if mc := m.AsClass(); mc == target || mc.Name == target.Name {
			return values.NewBool(true), nil
		}
	}
	return values.NewBool(false), nil
}

func issubclassFunc(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("issubclass() takes exactly two arguments")
	}
	sub, target := args[0], args[1]
	if sub.Type != values.TypeClass || target.Type != values.TypeClass {
		return nil, fmt.Errorf("issubclass() arg 1 and 2 must be classes")
	}
	tc := target.AsClass()
	for _, m := range sub.AsClass().MRO {
		if mc := m.AsClass(); mc == tc || mc.Name == tc.Name {
			return values.NewBool(true), nil
		}
	}
	return values.NewBool(false), nil
}

func hasattrFunc(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("hasattr() takes exactly two arguments")
	}
	obj := args[0]
	name := args[1].Data.(string)
	if obj.Type != values.TypeInstance {
		return values.NewBool(false), nil
	}
	if _, ok := obj.AsInstance().Properties.Get(values.NewStr(name)); ok {
		return values.NewBool(true), nil
	}
	_, _, ok := obj.AsInstance().Class.LookupMethod(name)
	return values.NewBool(ok), nil
}

func getattrFunc(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("getattr() takes at least two arguments")
	}
	obj := args[0]
	name := args[1].Data.(string)
	if obj.Type == values.TypeInstance {
		if v, ok := obj.AsInstance().Properties.Get(values.NewStr(name)); ok {
			return v, nil
		}
		if m, _, ok := obj.AsInstance().Class.LookupMethod(name); ok {
			return values.NewBoundMethod(obj, m), nil
		}
	}
	if len(args) == 3 {
		return args[2], nil
	}
	return nil, fmt.Errorf("'%s' object has no attribute '%s'", obj.Type, name)
}

func setattrFunc(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("setattr() takes exactly three arguments")
	}
	obj := args[0]
	name := args[1].Data.(string)
	if obj.Type != values.TypeInstance {
		return nil, fmt.Errorf("'%s' object has no attribute '%s'", obj.Type, name)
	}
	obj.ObjectSet(name, args[2])
	return values.None(), nil
}

func callableFunc(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("callable() takes exactly one argument")
	}
	return values.NewBool(args[0].IsCallable()), nil
}

func idFunc(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("id() takes exactly one argument")
	}
	addr := reflect.ValueOf(args[0]).Pointer()
	return values.NewInt(int64(addr)), nil
}

func iterFunc(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("iter() takes exactly one argument")
	}
	return args[0], nil
}

func enumerateFunc(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("enumerate() takes at least one argument")
	}
	start := int64(0)
	if len(args) == 2 {
		start = args[1].ToInt()
	}
	elems := sequenceElems(args[0])
	out := make([]*values.Value, len(elems))
	for i, e := range elems {
		out[i] = values.NewTuple([]*values.Value{values.NewInt(start + int64(i)), e})
	}
	return values.NewTuple(out), nil
}

func zipFunc(args []*values.Value, kwargs *values.Dict) (*values.Value, error) {
	if len(args) == 0 {
		return values.NewTuple(nil), nil
	}
	seqs := make([][]*values.Value, len(args))
	minLen := -1
	for i, a := range args {
		seqs[i] = sequenceElems(a)
		if minLen < 0 || len(seqs[i]) < minLen {
			minLen = len(seqs[i])
		}
	}
	out := make([]*values.Value, minLen)
	for i := 0; i < minLen; i++ {
		row := make([]*values.Value, len(seqs))
		for j := range seqs {
			row[j] = seqs[j][i]
		}
		out[i] = values.NewTuple(row)
	}
	return values.NewTuple(out), nil
}
