package vm

import (
	"errors"
	"fmt"

	"github.com/rocky/x-python/values"
)

// Sentinel errors wrapped by EngineError, following the usual
// pre-defined-error-plus-context-wrapper idiom adapted to this
// engine's failure modes.
var (
	ErrMalformedBytecode    = errors.New("malformed bytecode")
	ErrOpcodeNotImplemented = errors.New("opcode not implemented for this version")
	ErrConstantOutOfRange   = errors.New("constant index out of range")
	ErrNameOutOfRange       = errors.New("name index out of range")
	ErrVarnameOutOfRange    = errors.New("varname index out of range")
	ErrFreevarOutOfRange    = errors.New("freevar/cellvar index out of range")
	ErrStackUnderflow       = errors.New("value stack underflow")
	ErrBlockStackCorrupt    = errors.New("block stack corrupted")
	ErrUnknownOpcodeByte    = errors.New("opcode byte has no entry in the target version's table")
	ErrRecursionLimit       = errors.New("maximum frame recursion depth exceeded")
	ErrNotCallable          = errors.New("object is not callable")
	ErrMetaclassConflict    = errors.New("metaclass conflict")
	ErrNoClassCell          = errors.New("super(): no __class__ cell found")
	ErrCannotCompile        = errors.New("host toolchain unavailable to compile source")
)

// EngineError is a fatal, non-recoverable failure: the bytecode is
// malformed, or the target version requires an opcode this engine has
// not implemented. It is always surfaced to
// the host; an interpreted program can never catch it, unlike
// InterpretedException.
type EngineError struct {
	Err     error
	Message string
	Func    string
	Opcode  string
	Offset  int
}

func (e *EngineError) Error() string {
	loc := ""
	if e.Func != "" {
		loc = fmt.Sprintf(" in %s", e.Func)
	}
	if e.Opcode != "" {
		loc += fmt.Sprintf(" at %s@%d", e.Opcode, e.Offset)
	}
	if e.Message != "" {
		return fmt.Sprintf("engine error%s: %s: %s", loc, e.Err, e.Message)
	}
	return fmt.Sprintf("engine error%s: %s", loc, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

func (e *EngineError) Is(target error) bool { return errors.Is(e.Err, target) }

func NewEngineError(base error, format string, args ...interface{}) *EngineError {
	return &EngineError{Err: base, Message: fmt.Sprintf(format, args...)}
}

// WithLocation decorates an EngineError with the frame/instruction
// context it was raised under.
func (e *EngineError) WithLocation(funcName, opcodeName string, offset int) *EngineError {
	e.Func = funcName
	e.Opcode = opcodeName
	e.Offset = offset
	return e
}

// InterpretedException is a Python-level raise propagating through the
// block stack. It is recoverable:
// an `except` block the interpreted program defines can catch it
// before it ever reaches the host.
type InterpretedException struct {
	Exc *values.Value // TypeException
}

func (e *InterpretedException) Error() string {
	ev := e.Exc.AsException()
	if ev.Instance != nil {
		return ev.Instance.String()
	}
	return ev.Type.AsClass().Name
}

// UncaughtException is what the engine surfaces to the host when
// block-stack unwinding drains without a handler claiming the
// exception.
type UncaughtException struct {
	Exc *values.Value // TypeException
}

func (e *UncaughtException) Error() string {
	ev := e.Exc.AsException()
	name := "Exception"
	if ev.Type != nil && ev.Type.Type == values.TypeClass {
		name = ev.Type.AsClass().Name
	}
	msg := ""
	if ev.Instance != nil {
		msg = ev.Instance.String()
	}
	if msg == "" {
		return name
	}
	return fmt.Sprintf("%s: %s", name, msg)
}

// CrossVersionWarning is emitted once per (feature, version-pair) when
// exec/eval/compile is called while the interpreted version differs
// from the host version. Those builtins run nothing in this engine and
// return None, whatever the versions.
type CrossVersionWarning struct {
	Feature string
	Target  string
	Host    string
}

func (w *CrossVersionWarning) Error() string {
	return fmt.Sprintf("cross-version %s: target %s differs from host %s; the call returns None without running anything", w.Feature, w.Target, w.Host)
}

// warningDedup tracks which (feature, version-pair) combinations have
// already been warned about, so each one is emitted at most once.
type warningDedup struct {
	seen map[string]bool
}

func newWarningDedup() *warningDedup { return &warningDedup{seen: make(map[string]bool)} }

func (w *warningDedup) shouldWarn(feature, target, host string) bool {
	key := feature + "|" + target + "|" + host
	if w.seen[key] {
		return false
	}
	w.seen[key] = true
	return true
}
