package values

// Function is an interpreted Python function: a code object closed
// over a globals mapping, defaults, and a closure tuple of cells.
type Function struct {
	Name        string
	Qualname    string
	Code        interface{} // *code.Object; interface{} avoids an import cycle with package code
	Globals     *Value      // a TypeDict Value, shared with the defining module frame
	Defaults    []*Value
	KwDefaults  *Dict
	Closure     []*Value // each element is a TypeCell Value
	Annotations *Dict
	HasDotZero  bool // comprehension code object taking the synthetic ".0" parameter

	// Native is set when a host-side Go function can serve as a fast
	// path for this Function without going through the interpreter
	// loop.
	Native func(args []*Value, kwargs *Dict) (*Value, error)
}

func NewFunction(fn *Function) *Value {
	return &Value{Type: TypeFunction, Data: fn}
}

func (v *Value) AsFunction() *Function { return v.Data.(*Function) }

// NativeFunc is a builtin implemented directly in Go.
type NativeFunc struct {
	Name string
	Call func(args []*Value, kwargs *Dict) (*Value, error)
}

func NewNativeFunc(name string, call func(args []*Value, kwargs *Dict) (*Value, error)) *Value {
	return &Value{Type: TypeNativeFunction, Data: &NativeFunc{Name: name, Call: call}}
}

func (v *Value) AsNative() *NativeFunc { return v.Data.(*NativeFunc) }

// BoundMethod pairs a receiver with an unbound callable, produced when
// an attribute lookup resolves to a function found on the instance's
// class rather than the instance itself.
type BoundMethod struct {
	Receiver *Value
	Func     *Value
}

func NewBoundMethod(receiver, fn *Value) *Value {
	return &Value{Type: TypeBoundMethod, Data: &BoundMethod{Receiver: receiver, Func: fn}}
}

func (v *Value) AsBoundMethod() *BoundMethod { return v.Data.(*BoundMethod) }

// Class is the engine's representation of a Python class/type,
// constructed via the __build_class__ protocol.
type Class struct {
	Name       string
	Bases      []*Value // each a TypeClass Value
	MRO        []*Value // computed method resolution order, bases-first
	Namespace  *Dict    // methods, class attributes, class-level constants
	Metaclass  *Value   // the TypeClass Value used to construct this class, or nil for "type"
}

func NewClass(c *Class) *Value {
	return &Value{Type: TypeClass, Data: c}
}

func (v *Value) AsClass() *Class { return v.Data.(*Class) }

// LookupMethod walks the MRO for name, returning the first binding
// found and the class that defines it.
func (c *Class) LookupMethod(name string) (*Value, *Class, bool) {
	for _, m := range c.MRO {
		mc := m.AsClass()
		if mc.Namespace == nil {
			continue
		}
		if v, ok := mc.Namespace.Get(NewStr(name)); ok {
			return v, mc, true
		}
	}
	return nil, nil, false
}

// Instance is an object of a Class.
type Instance struct {
	Class      *Class
	Properties *Dict
}

func NewInstance(class *Class) *Value {
	return &Value{Type: TypeInstance, Data: &Instance{Class: class, Properties: NewDictData()}}
}

func (v *Value) AsInstance() *Instance { return v.Data.(*Instance) }

func (v *Value) ObjectGet(name string) (*Value, bool) {
	return v.AsInstance().Properties.Get(NewStr(name))
}

func (v *Value) ObjectSet(name string, val *Value) {
	v.AsInstance().Properties.Set(NewStr(name), val)
}

// Traceback is an immutable chained list of (frame description, last
// instruction, line) entries, innermost frame first.
type Traceback struct {
	FuncName string
	Filename string
	Line     int
	LastI    int
	Next     *Traceback // the caller's frame, or nil at the outermost
}

func NewTraceback(tb *Traceback) *Value {
	return &Value{Type: TypeTraceback, Data: tb}
}

func (v *Value) AsTraceback() *Traceback { return v.Data.(*Traceback) }

// ExceptionValue wraps a raised Python exception: its type (a Class),
// the instance (its args/message), and the traceback accumulated while
// unwinding, plus __context__/__cause__ chaining.
type ExceptionValue struct {
	Type      *Value // TypeClass
	Instance  *Value // TypeInstance, or TypeStr for simple/legacy string exceptions
	Traceback *Value // TypeTraceback or None
	Context   *Value // TypeException or None: the exception being handled when this one was raised
	Cause     *Value // TypeException or None: set by `raise X from Y`
	Suppress  bool   // `raise X from None` suppresses context display
}

func NewException(ev *ExceptionValue) *Value {
	return &Value{Type: TypeException, Data: ev}
}

func (v *Value) AsException() *ExceptionValue { return v.Data.(*ExceptionValue) }
