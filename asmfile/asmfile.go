// Package asmfile reads a hand-authored YAML assembly listing and
// builds it into a *code.Object via opcodes.Assembler. Real CPython
// marshal-container parsing and in-process source compilation are both
// out of scope; this package exists so the CLI has
// something runnable to load without either, the way a disassembler's
// text format lets you hand-edit and reassemble a function body.
package asmfile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rocky/x-python/code"
	"github.com/rocky/x-python/opcodes"
	"github.com/rocky/x-python/values"
	"github.com/rocky/x-python/version"
)

// Instruction is one line of the listing: an opcode mnemonic, its
// immediate argument (must be 0 or omitted for argument-less ops,
// which the assembler otherwise rejects), and an optional
// label this instruction should be registered under for EmitJump
// targets.
type Instruction struct {
	Label string `yaml:"label,omitempty"`
	Op    string `yaml:"op"`
	Arg   int    `yaml:"arg,omitempty"`
	Jump  string `yaml:"jump,omitempty"` // jump target label, for branch/loop ops
	Rel   bool   `yaml:"rel,omitempty"`  // relative vs. absolute jump
}

// Program is the on-disk shape: everything code.Object needs except
// the assembled byte code, which Build derives.
type Program struct {
	Name            string        `yaml:"name"`
	Qualname        string        `yaml:"qualname"`
	Filename        string        `yaml:"filename"`
	FirstLine       int           `yaml:"first_line"`
	ArgCount        int           `yaml:"arg_count"`
	PosOnlyArgCount int           `yaml:"pos_only_arg_count"`
	KwOnlyArgCount  int           `yaml:"kw_only_arg_count"`
	Generator       bool          `yaml:"generator"`
	Varargs         bool          `yaml:"varargs"`
	VarKeywords     bool          `yaml:"var_keywords"`
	Consts          []interface{} `yaml:"consts"`
	Names           []string      `yaml:"names"`
	Varnames        []string      `yaml:"varnames"`
	Freevars        []string      `yaml:"freevars"`
	Cellvars        []string      `yaml:"cellvars"`
	Code            []Instruction `yaml:"code"`
	// Lines gives the byte-offset line table directly (matching
	// code.LineEntry exactly); a listing with no Lines entries runs
	// entirely on FirstLine.
	Lines []struct {
		Start int `yaml:"start"`
		End   int `yaml:"end"`
		Line  int `yaml:"line"`
	} `yaml:"lines,omitempty"`
}

// Load reads path as YAML and builds it for target's opcode table.
func Load(path string, target version.Tag) (*code.Object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Program
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("asmfile: parsing %s: %w", path, err)
	}
	return p.Build(target)
}

// Build assembles p into a code.Object for target, resolving labels
// and jump targets through opcodes.Assembler and copying p.Lines into
// code.Object's byte-offset line table (entries whose range falls
// outside the assembled code are dropped).
func (p *Program) Build(target version.Tag) (*code.Object, error) {
	table, err := opcodes.ForVersion(target)
	if err != nil {
		return nil, fmt.Errorf("asmfile: %w", err)
	}

	asm := opcodes.NewAssembler(table)

	for i, ins := range p.Code {
		if ins.Label != "" {
			asm.Label(ins.Label)
		}
		var emitErr error
		if ins.Jump != "" {
			emitErr = asm.EmitJump(ins.Op, ins.Jump, ins.Rel)
		} else {
			emitErr = asm.Emit(ins.Op, ins.Arg)
		}
		if emitErr != nil {
			return nil, fmt.Errorf("asmfile: instruction %d (%s): %w", i, ins.Op, emitErr)
		}
	}

	raw, err := asm.Finish()
	if err != nil {
		return nil, fmt.Errorf("asmfile: %w", err)
	}

	consts := make([]*values.Value, len(p.Consts))
	for i, c := range p.Consts {
		consts[i] = scalarToValue(c)
	}

	var flags code.Flags
	if p.Generator {
		flags |= code.FlagGenerator
	}
	if p.Varargs {
		flags |= code.FlagVarargs
	}
	if p.VarKeywords {
		flags |= code.FlagVarKeywords
	}

	co := &code.Object{
		Code:            raw,
		Consts:          consts,
		Names:           p.Names,
		Varnames:        p.Varnames,
		Freevars:        p.Freevars,
		Cellvars:        p.Cellvars,
		ArgCount:        p.ArgCount,
		PosOnlyArgCount: p.PosOnlyArgCount,
		KwOnlyArgCount:  p.KwOnlyArgCount,
		Flags:           flags,
		Name:            p.Name,
		Qualname:        p.Qualname,
		Filename:        p.Filename,
		FirstLine:       p.FirstLine,
		Version:         target,
	}
	if co.Qualname == "" {
		co.Qualname = co.Name
	}
	for _, l := range p.Lines {
		if l.Start < 0 || l.End > len(raw) {
			continue
		}
		co.Lines = append(co.Lines, code.LineEntry{Start: l.Start, End: l.End, Line: l.Line})
	}
	return co, co.Validate()
}

func scalarToValue(c interface{}) *values.Value {
	switch v := c.(type) {
	case nil:
		return values.None()
	case bool:
		return values.NewBool(v)
	case int:
		return values.NewInt(int64(v))
	case int64:
		return values.NewInt(v)
	case float64:
		return values.NewFloat(v)
	case string:
		return values.NewStr(v)
	default:
		return values.NewStr(fmt.Sprintf("%v", v))
	}
}
