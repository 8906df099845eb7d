package vm

import (
	"io"
	"os"

	"github.com/rocky/x-python/builtins"
	"github.com/rocky/x-python/code"
	"github.com/rocky/x-python/opcodes"
	"github.com/rocky/x-python/values"
)

// Interpreter is the cross-version bytecode engine: one Config, one
// closed opcode table for that Config's TargetVersion, one call stack,
// one shared builtins namespace -- a single long-lived struct whose
// Execute method drives the fetch-decode-dispatch loop, carrying a
// per-version opcode table instead of one fixed opcode set.
type Interpreter struct {
	Config *Config
	Table  *opcodes.Table

	Stack *CallStackManager

	Builtins *values.Value // TypeDict

	Stdout io.Writer

	Logger Logger

	warnings *warningDedup

	trace TraceFunc
}

// New constructs an Interpreter for cfg, building the closed opcode
// table for cfg.TargetVersion once up front.
func New(cfg *Config) (*Interpreter, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	table, err := opcodes.ForVersion(cfg.TargetVersion)
	if err != nil {
		return nil, err
	}
	stdout := io.Writer(os.Stdout)
	b := builtins.NewNamespace(stdout)
	for _, name := range cfg.BuiltinOverrides {
		builtins.Shim(b, name, cfg.TargetVersion, cfg.HostVersion)
	}
	return &Interpreter{
		Config:   cfg,
		Table:    table,
		Stack:    NewCallStackManager(cfg.RecursionLimit),
		Builtins: b,
		Stdout:   stdout,
		Logger:   NewDefaultLogger(os.Stderr),
		warnings: newWarningDedup(),
	}, nil
}

// SetTrace installs the trace function Execute gives to the
// module-level frame it builds. Frames created for calls, class bodies
// and generators start with no trace function.
func (it *Interpreter) SetTrace(fn TraceFunc) { it.trace = fn }

// Execute runs co as a fresh module-level frame to completion and
// returns its implicit return value (None unless RETURN_VALUE/
// RETURN_CONST executed, e.g. from an injected `return` at module
// scope for embedding callers).
func (it *Interpreter) Execute(co *code.Object, globals *values.Value) (*values.Value, error) {
	fr := NewFrame(co, globals, it.Builtins, globals)
	fr.Trace = it.trace
	if it.trace != nil && it.Config.TraceEvents {
		fr.EventFlags |= EventFlagLine | EventFlagOp
	}
	return it.ExecuteFrame(fr)
}

// ExecuteFrame runs an already-constructed frame to completion, the way
// Execute does for a freshly-built one. Callers that need state to
// survive across separate top-level runs -- a debug console's
// breakpoints, whose saved original bytes live in fr.Brkpt while the
// BRKPT patches sit in the shared CodeObject -- build fr once with
// NewFrame and drive it through this
// entry point on every subsequent continue, instead of letting Execute
// construct a new frame (and a new, empty Brkpt map) each time.
func (it *Interpreter) ExecuteFrame(fr *Frame) (*values.Value, error) {
	if err := it.Stack.PushFrame(fr); err != nil {
		return nil, err
	}
	defer it.Stack.PopFrame()

	val, kind, err := it.run(fr)
	if err != nil {
		return nil, err
	}
	if kind == SigException {
		return nil, &UncaughtException{Exc: fr.PendingException}
	}
	return val, nil
}

// run drives the fetch-decode-dispatch loop for a single frame. Calls
// into other frames (CALL/CALL_METHOD/CALL_FUNCTION family) recurse
// through Go's own call stack via callInterpreted in call.go, which
// invokes run on the callee frame directly -- no trampolining, no
// goroutines; a suspended generator resumes by re-entering this same
// loop, not by scheduling.
//
// The returned SignalKind tells the caller what became of fr:
// SigReturn (normal completion, Value is the return value), SigYield
// (fr suspended mid-body, Value is the yielded value, fr's IP/stack
// are left exactly where resumption should continue), or SigException
// (fr's own block stack drained without catching, fr.PendingException
// holds the exception the caller must either catch or propagate).
func (it *Interpreter) run(fr *Frame) (*values.Value, SignalKind, error) {
	var extended int64

	for {
		if fr.IP < 0 || fr.IP >= len(fr.Code.Code) {
			return values.None(), SigReturn, nil
		}

		d, derr := opcodes.Decode(it.Table, fr.Code.Code, fr.IP, extended)
		if derr != nil {
			return nil, 0, NewEngineError(ErrMalformedBytecode, "%s", derr).WithLocation(fr.FuncName, "?", fr.IP)
		}

		if d.Opcode == opcodes.BRKPT {
			orig, ok := fr.Brkpt[fr.IP]
			if !ok {
				return nil, 0, NewEngineError(ErrUnknownOpcodeByte, "stray BRKPT at %d with no saved original", fr.IP).WithLocation(fr.FuncName, "BRKPT", fr.IP)
			}
			if fr.Trace != nil {
				ctrl, next := fr.Trace(EventBrk, fr.IP, "BRKPT", orig, fr.lineFor(fr.IP), 0, nil, fr)
				if v, done := it.applyTraceControl(fr, ctrl, next); done {
					return v, SigReturn, nil
				}
			}
			d, derr = opcodes.Decode(it.Table, []byte{orig, safeNext(fr.Code.Code, fr.IP)}, 0, extended)
			if derr != nil {
				return nil, 0, NewEngineError(ErrMalformedBytecode, "%s", derr).WithLocation(fr.FuncName, "BRKPT", fr.IP)
			}
			d.NextIP += fr.IP
		}

		if d.Name == "EXTENDED_ARG" {
			extended = d.Arg
			fr.IP = d.NextIP
			continue
		}

		handler, ok := registry()[d.Name]
		if !ok {
			if opcodes.NotImplementedMnemonics[d.Name] {
				return nil, 0, NewEngineError(ErrOpcodeNotImplemented, "%s", d.Name).WithLocation(fr.FuncName, d.Name, fr.IP)
			}
			return nil, 0, NewEngineError(ErrUnknownOpcodeByte, "no handler registered for %s", d.Name).WithLocation(fr.FuncName, d.Name, fr.IP)
		}

		line := fr.lineFor(fr.IP)
		if fr.Line != line {
			fr.Line = line
			if fr.Trace != nil && fr.EventFlags&EventFlagLine != 0 {
				ctrl, next := fr.Trace(EventLine, fr.IP, d.Name, byte(d.Opcode), line, d.Arg, nil, fr)
				if v, done := it.applyTraceControl(fr, ctrl, next); done {
					return v, SigReturn, nil
				}
			}
		}
		if fr.Trace != nil && fr.EventFlags&EventFlagOp != 0 {
			ctrl, next := fr.Trace(EventOp, fr.IP, d.Name, byte(d.Opcode), line, d.Arg, nil, fr)
			if v, done := it.applyTraceControl(fr, ctrl, next); done {
				return v, SigReturn, nil
			}
		}

		extended = 0
		fr.IP = d.NextIP

		sig, err := handler(it, fr, d.Arg)
		if err != nil {
			if ie, ok := err.(*InterpretedException); ok {
				sig = Signal{Kind: SigException, Value: ie.Exc}
			} else if ee, ok := err.(*EngineError); ok {
				return nil, 0, ee.WithLocation(fr.FuncName, d.Name, fr.IP)
			} else {
				return nil, 0, NewEngineError(err, "").WithLocation(fr.FuncName, d.Name, fr.IP)
			}
		}

		switch sig.Kind {
		case SigNormal:
			// fr.IP already points at the next instruction, possibly
			// overwritten by a jump handler.

		case SigReturn, SigYield:
			return sig.Value, sig.Kind, nil

		case SigException, SigReraise:
			if sig.Kind == SigException && fr.PendingException != nil && fr.PendingException != sig.Value {
				newExc := sig.Value.AsException()
				if newExc.Context == nil || newExc.Context.IsNone() {
					newExc.Context = fr.PendingException
				}
			}
			fr.PendingException = sig.Value
			handled, uerr := it.unwindFrame(fr, sig.Value, sig.Kind == SigReraise)
			if uerr != nil {
				return nil, 0, uerr
			}
			if !handled {
				return nil, SigException, nil
			}
			// fr.IP now points at the handler; loop continues.
		}
	}
}

// applyTraceControl interprets the (control, replacement) pair a trace
// callback returns ( "control ∈ {None, 'skip', 'return',
// 'finish', callable}"). ControlReturn forces an immediate return from
// fr with None, mirroring sys.settrace's "return" steering; ControlFinish
// drops fr's trace callback entirely; a non-nil replacement swaps fr's
// trace function for subsequent events the way a local trace function
// replaces the global one. ControlNone and ControlSkip change nothing:
// the instruction about to run still runs, and tracing stays enabled.
func (it *Interpreter) applyTraceControl(fr *Frame, ctrl TraceControl, next TraceFunc) (*values.Value, bool) {
	if next != nil {
		fr.Trace = next
	}
	switch ctrl {
	case ControlReturn:
		return values.None(), true
	case ControlFinish:
		fr.Trace = nil
		fr.EventFlags = 0
	}
	return nil, false
}

func safeNext(code []byte, ip int) byte {
	if ip+1 < len(code) {
		return code[ip+1]
	}
	return 0
}

// lineFor resolves the source line for offset via the code object's
// line table.
func (f *Frame) lineFor(offset int) int {
	return f.Code.LineForOffset(offset)
}

// warnCrossVersion emits a CrossVersionWarning the first time this
// (feature, target, host) triple is seen with target and host
// differing, and returns nil otherwise.
func (it *Interpreter) warnCrossVersion(feature string) *CrossVersionWarning {
	target, host := it.Config.TargetVersion.String(), it.Config.HostVersion.String()
	if target == host {
		return nil
	}
	if !it.warnings.shouldWarn(feature, target, host) {
		return nil
	}
	return &CrossVersionWarning{Feature: feature, Target: target, Host: host}
}
