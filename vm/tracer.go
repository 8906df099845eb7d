package vm

import (
	"github.com/rocky/x-python/opcodes"
	"github.com/rocky/x-python/values"
)

// TraceEvent names a point at which the tracing loop offers the
// per-frame trace callback a chance to observe or steer execution
//.
type TraceEvent string

const (
	EventCall TraceEvent = "call"
	EventLine TraceEvent = "line"
	EventOp   TraceEvent = "opcode"
	EventBrk  TraceEvent = "breakpoint"
)

// EventFlags is the bitset a Frame carries recording which event kinds
// its trace callback (if any) wants to be invoked for; the interpreter
// loop only pays the cost of the callback dispatch for flagged events.
type EventFlags uint8

const (
	EventFlagCall EventFlags = 1 << iota
	EventFlagLine
	EventFlagOp
	EventFlagBrk
)

// TraceControl is what a trace callback returns to steer the tracing
// loop: control ∈ {None, 'skip', 'return', 'finish', callable}.
type TraceControl int

const (
	ControlNone TraceControl = iota
	ControlSkip
	ControlReturn
	ControlFinish
)

// TraceFunc is a frame's optional f_trace callback:
// (event, offset, opcode_name, opcode_byte, line_number, immediate_arg,
// event_arg, frame) -> control; the last argument is the current
// *Frame, not the Interpreter. Returning a non-nil TraceFunc replaces
// the per-frame trace function, the callable arm of the control union.
type TraceFunc func(event TraceEvent, offset int, opcodeName string, opcodeByte byte, line int, imm int64, eventArg *values.Value, fr *Frame) (TraceControl, TraceFunc)

// SetBreakpoint patches offset in f's code with opcodes.BRKPT, saving
// the original byte in f.Brkpt for later restoration. The patch is
// written into the CodeObject's shared byte slice, so every Frame
// running that CodeObject meets it; only f holds the saved byte, and
// another Frame that reaches the offset stops with a stray-BRKPT
// EngineError.
func (f *Frame) SetBreakpoint(offset int) {
	if f.Brkpt == nil {
		f.Brkpt = make(map[int]byte)
	}
	if _, already := f.Brkpt[offset]; already {
		return
	}
	f.Brkpt[offset] = f.Code.Code[offset]
	f.Code.Code[offset] = byte(opcodes.BRKPT)
	f.EventFlags |= EventFlagBrk
}

// ClearBreakpoint restores the original opcode byte at offset.
func (f *Frame) ClearBreakpoint(offset int) {
	orig, ok := f.Brkpt[offset]
	if !ok {
		return
	}
	f.Code.Code[offset] = orig
	delete(f.Brkpt, offset)
}

// ClearAllBreakpoints restores every patched offset, used when a
// debugger session detaches.
func (f *Frame) ClearAllBreakpoints() {
	for offset := range f.Brkpt {
		f.ClearBreakpoint(offset)
	}
}
