package vm

import (
	"github.com/rocky/x-python/code"
	"github.com/rocky/x-python/values"
)

// BlockKind is the structured-construct a Block record tracks.
type BlockKind int

const (
	BlockLoop BlockKind = iota
	BlockExcept
	BlockFinally
	BlockWith
	BlockExceptHandler
)

func (k BlockKind) String() string {
	switch k {
	case BlockLoop:
		return "loop"
	case BlockExcept:
		return "except"
	case BlockFinally:
		return "finally"
	case BlockWith:
		return "with"
	case BlockExceptHandler:
		return "except-handler"
	default:
		return "unknown"
	}
}

// Block is one entry of a frame's block stack: the handler address and
// the value-stack depth to restore to on unwind.
type Block struct {
	Kind        BlockKind
	Handler     int // bytecode offset to jump to
	StackDepth  int // frame.SP at the moment this block was pushed
	ContinueTo  int // for BlockLoop: the offset `continue` jumps to
	WithExit    *values.Value // for BlockWith: the bound __exit__ callable
}

// Frame is one call's execution activation record. Generators keep
// their Frame alive across suspensions; every other call's Frame is
// discarded once Run returns.
type Frame struct {
	Code *code.Object

	Globals  *values.Value // TypeDict
	Builtins *values.Value // TypeDict
	Locals   *values.Value // TypeDict; aliases Globals at module scope

	// FastLocals holds co_varnames-indexed locals directly (the
	// "fast" slots function/class bodies use); nil entries mean
	// unbound (reading one is a Python NameError, raised by
	// the LOAD_FAST handler, not an engine error).
	FastLocals []*values.Value

	// Cells maps every free+cell variable name to its shared Cell
	// Value ( "cells (mapping free+cell variable name ->
	// Cell)").
	Cells map[string]*values.Value

	Stack []*values.Value
	SP    int // next free slot; depth is SP

	Blocks []*Block

	IP          int  // f_lasti
	Fallthrough bool // whether to advance IP before the next fetch
	extendedArg int64

	Line int

	Back *Frame // caller, nil for the outermost frame
	Gen  *Generator // non-nil if this frame belongs to a generator

	// KWNames stages the tuple of keyword-argument names for the
	// 3.11+ KW_NAMES/CALL sequence.
	KWNames []*values.Value

	// Brkpt shadows the original opcode byte at offsets patched with
	// BRKPT, restored when the breakpoint is cleared.
	Brkpt map[int]byte

	Trace      TraceFunc
	EventFlags EventFlags

	// PendingException carries the (type, value, traceback) being
	// unwound through the block stack.
	PendingException *values.Value

	FuncName string // for error/traceback context only
}

// NewFrame constructs a fresh activation record for co, ready to begin
// execution at offset 0.
func NewFrame(co *code.Object, globals, builtins, locals *values.Value) *Frame {
	f := &Frame{
		Code:       co,
		Globals:    globals,
		Builtins:   builtins,
		Locals:     locals,
		FastLocals: make([]*values.Value, len(co.Varnames)),
		Cells:      make(map[string]*values.Value),
		Stack:      make([]*values.Value, 256),
		SP:         0,
		IP:         0,
		FuncName:   co.Qualname,
	}
	for _, name := range co.Cellvars {
		f.Cells[name] = values.NewCell()
	}
	return f
}

func (f *Frame) Push(v *values.Value) {
	if f.SP == len(f.Stack) {
		f.Stack = append(f.Stack, v)
	} else {
		f.Stack[f.SP] = v
	}
	f.SP++
}

func (f *Frame) Pop() (*values.Value, error) {
	if f.SP == 0 {
		return nil, NewEngineError(ErrStackUnderflow, "frame %s", f.FuncName)
	}
	f.SP--
	v := f.Stack[f.SP]
	f.Stack[f.SP] = nil
	return v, nil
}

func (f *Frame) PopN(n int) ([]*values.Value, error) {
	if f.SP < n {
		return nil, NewEngineError(ErrStackUnderflow, "frame %s needs %d, has %d", f.FuncName, n, f.SP)
	}
	out := make([]*values.Value, n)
	copy(out, f.Stack[f.SP-n:f.SP])
	for i := f.SP - n; i < f.SP; i++ {
		f.Stack[i] = nil
	}
	f.SP -= n
	return out, nil
}

func (f *Frame) Top() (*values.Value, error) {
	if f.SP == 0 {
		return nil, NewEngineError(ErrStackUnderflow, "frame %s", f.FuncName)
	}
	return f.Stack[f.SP-1], nil
}

// Peek returns the value n slots below the top (0 = top itself).
func (f *Frame) Peek(n int) (*values.Value, error) {
	idx := f.SP - 1 - n
	if idx < 0 {
		return nil, NewEngineError(ErrStackUnderflow, "frame %s peek %d", f.FuncName, n)
	}
	return f.Stack[idx], nil
}

// TruncateTo restores the value stack to depth, used when a block
// handler pops.
func (f *Frame) TruncateTo(depth int) {
	for i := depth; i < f.SP; i++ {
		f.Stack[i] = nil
	}
	f.SP = depth
}

func (f *Frame) PushBlock(b *Block) { f.Blocks = append(f.Blocks, b) }

func (f *Frame) PopBlock() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	b := f.Blocks[len(f.Blocks)-1]
	f.Blocks = f.Blocks[:len(f.Blocks)-1]
	return b
}

func (f *Frame) TopBlock() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[len(f.Blocks)-1]
}

// Depth returns the caller-chain length by following Back.
// CallStackManager enforces Config.RecursionLimit with its own frame
// count, not with Depth.
func (f *Frame) Depth() int {
	d := 0
	for cur := f; cur != nil; cur = cur.Back {
		d++
	}
	return d
}
