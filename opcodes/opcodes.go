// Package opcodes builds the per-(version, implementation) dispatch
// tables calls for: closed, separately materialized
// mappings from opcode byte to (name, immediate-decode rule), built
// once at engine initialization by differential construction from an
// adjacent version's table rather than by the source's "delete an
// inherited method" trick.
package opcodes

import (
	"fmt"
	"sort"

	"github.com/rocky/x-python/version"
)

// Opcode is a single-byte operation, possibly carrying an immediate
// operand extended via EXTENDED_ARG.
type Opcode byte

// ImmKind selects how a handler's immediate operand is decoded from
// the bytecode stream: an index into co_names/co_consts, a jump
// offset, a flags bitset, etc.
type ImmKind int

const (
	ImmNone    ImmKind = iota // no operand (Info.HasArg is false)
	ImmConst                  // index into co_consts
	ImmName                   // index into co_names
	ImmVarname                // index into co_varnames
	ImmFreevar                // index into co_freevars+co_cellvars (cell/free slot)
	ImmJumpAbs                // absolute target offset
	ImmJumpRel                // forward-relative target offset (added to the instruction's end)
	ImmRaw                    // an uninterpreted count/flags integer
	ImmCompare                // COMPARE_OP's comparison-kind selector (version-dependent bit position)
)

// Info describes one opcode's shape: its canonical name and how its
// immediate, if any, is decoded. The handler itself is NOT stored
// here — it lives in package vm's handler registry, keyed by Name, to
// avoid an import cycle between the table-construction package and
// the package that knows how to execute a frame.
type Info struct {
	Name    string
	Opcode  Opcode
	Imm     ImmKind
	HasArg  bool
}

// Table is one version's closed, materialized opcode table.
type Table struct {
	Version version.Tag
	byOp    map[Opcode]Info
	byName  map[string]Opcode
}

func newTable(v version.Tag) *Table {
	return &Table{Version: v, byOp: make(map[Opcode]Info), byName: make(map[string]Opcode)}
}

func (t *Table) set(info Info) {
	t.byOp[info.Opcode] = info
	t.byName[info.Name] = info.Opcode
}

func (t *Table) delete(name string) {
	if op, ok := t.byName[name]; ok {
		delete(t.byOp, op)
		delete(t.byName, name)
	}
}

// Lookup resolves an opcode byte to its Info. ok is false for a byte
// this version's table has no entry for, which the interpreter loop
// treats as a fatal EngineError (malformed bytecode).
func (t *Table) Lookup(op Opcode) (Info, bool) {
	info, ok := t.byOp[op]
	return info, ok
}

// ByName resolves a mnemonic to its byte value in this table, for
// assemblers and tests that build Objects by name rather than by raw
// byte.
func (t *Table) ByName(name string) (Opcode, bool) {
	op, ok := t.byName[name]
	return op, ok
}

// clone produces an independent copy of t so a later diff step cannot
// mutate an earlier version's already-published table.
func (t *Table) clone(newVersion version.Tag) *Table {
	out := newTable(newVersion)
	for op, info := range t.byOp {
		info.Opcode = op
		out.set(info)
	}
	return out
}

// Names returns every mnemonic in this table, sorted, for diagnostics
// and tests that want to assert a version covers an expected opcode
// set.
func (t *Table) Names() []string {
	out := make([]string, 0, len(t.byName))
	for n := range t.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// diff is one version-to-version delta: Add introduces or overrides
// entries, Remove deletes inherited entries the newer version no
// longer emits.
type diff struct {
	version version.Tag
	base    version.Tag // which already-built table to start from; zero value means "start empty"
	add     []Info
	remove  []string
}

var registry = map[version.Tag]*Table{}

// Tables returns the full set of materialized per-version tables,
// building them on first use via diffChain (tables.go). Construction
// happens once; callers share the resulting *Table values, which are
// treated as immutable after Tables() first returns.
func Tables() map[version.Tag]*Table {
	if len(registry) == 0 {
		build()
	}
	return registry
}

// ForVersion returns the closed table for a specific target version.
func ForVersion(v version.Tag) (*Table, error) {
	tabs := Tables()
	t, ok := tabs[v]
	if !ok {
		return nil, fmt.Errorf("opcodes: unsupported version %s", v)
	}
	return t, nil
}

func build() {
	for _, d := range diffChain {
		var t *Table
		if d.base == (version.Tag{}) {
			t = newTable(d.version)
		} else {
			base, ok := registry[d.base]
			if !ok {
				panic(fmt.Sprintf("opcodes: diff for %s references unbuilt base %s", d.version, d.base))
			}
			t = base.clone(d.version)
		}
		for _, name := range d.remove {
			t.delete(name)
		}
		for _, info := range d.add {
			t.set(info)
		}
		registry[d.version] = t
	}
}
