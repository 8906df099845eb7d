// Package code implements the portable CodeObject representation:
// the immutable container of bytecode and metadata the interpreter
// executes, independent of how it was produced (in-process compile or
// a deserialized bytecode container — both out of scope here and
// supplied by an external loader, see package loader).
package code

import (
	"fmt"

	"github.com/rocky/x-python/values"
	"github.com/rocky/x-python/version"
)

// Flags is the bitset carried in co_flags.
type Flags uint32

const (
	FlagOptimized Flags = 1 << iota
	FlagNewLocals
	FlagVarargs
	FlagVarKeywords
	FlagNested
	FlagGenerator
	FlagNoFree
	FlagCoroutine
	FlagIterableCoroutine
	FlagAsyncGenerator
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// LineEntry maps a half-open byte-offset range [Start, End) in Code to
// a source line number, forming the line table consulted by the
// tracing loop's "line" event.
type LineEntry struct {
	Start int
	End   int
	Line  int
}

// Object is the portable, immutable compiled-code container from
// Every index an instruction's immediate resolves through
// (Consts, Names, Varnames, Freevars, Cellvars) must be in range; the
// compiler/loader that produced an Object is responsible for that
// invariant, and the interpreter loop treats a violation as a fatal
// EngineError rather than attempting to recover.
type Object struct {
	Code []byte // co_code: the raw instruction stream

	Consts    []*values.Value
	Names     []string
	Varnames  []string
	Freevars  []string
	Cellvars  []string

	ArgCount         int
	PosOnlyArgCount  int
	KwOnlyArgCount   int
	Flags            Flags

	Name     string
	Qualname string
	Filename string
	FirstLine int

	Lines []LineEntry

	// ExceptionTable is non-nil only for 3.11+ code objects: it
	// replaces the block-stack-driven SETUP_FINALLY model with a
	// direct offset-range -> handler lookup.
	ExceptionTable []ExceptionTableEntry

	Version version.Tag
}

// ExceptionTableEntry is one row of a 3.11+ per-code exception table:
// the byte range [Start, End) it covers, the Target handler offset,
// the value-stack depth to restore to, and whether a lasti value
// should be pushed ahead of the exception value (mirrors CPython's
// co_exceptiontable row shape closely enough to drive CHECK_EXC_MATCH
// / RERAISE handler lookup).
type ExceptionTableEntry struct {
	Start     int
	End       int
	Target    int
	StackDepth int
	Lasti     bool
}

// LineForOffset returns the source line active at the given bytecode
// offset, or Object.FirstLine if no entry covers it.
func (o *Object) LineForOffset(offset int) int {
	for _, e := range o.Lines {
		if offset >= e.Start && offset < e.End {
			return e.Line
		}
	}
	return o.FirstLine
}

// HandlerForOffset finds the 3.11+ exception-table row covering
// offset, if any. Rows are assumed non-overlapping; the first match
// wins.
func (o *Object) HandlerForOffset(offset int) (ExceptionTableEntry, bool) {
	for _, e := range o.ExceptionTable {
		if offset >= e.Start && offset < e.End {
			return e, true
		}
	}
	return ExceptionTableEntry{}, false
}

// Validate checks the argument-count invariants before the interpreter
// loop is handed this object: no count is negative and
// PosOnlyArgCount does not exceed ArgCount. It does not decode the
// instruction stream (that is the opcode table's job per version) and
// does not bounds-check immediates against Consts, Names, Varnames,
// Freevars or Cellvars.
func (o *Object) Validate() error {
	if o.ArgCount < 0 || o.PosOnlyArgCount < 0 || o.KwOnlyArgCount < 0 {
		return fmt.Errorf("code object %s: negative argument count", o.Name)
	}
	if o.PosOnlyArgCount > o.ArgCount {
		return fmt.Errorf("code object %s: posonlyargcount %d exceeds argcount %d", o.Name, o.PosOnlyArgCount, o.ArgCount)
	}
	return nil
}

// IsComprehension reports whether this code object is one of the
// synthetic comprehension bodies that take an implicit ".0" parameter
//.
func (o *Object) IsComprehension() bool {
	switch o.Name {
	case "<listcomp>", "<setcomp>", "<dictcomp>", "<genexpr>":
		return true
	}
	return false
}
