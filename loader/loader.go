// Package loader turns a path on disk into a *code.Object without the
// engine itself ever parsing a bytecode container or compiling
// source. Two implementations live here: ContainerLoader for
// pre-decoded bytecode containers and SourceLoader for the
// host-compile carve-out.
package loader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rocky/x-python/code"
	"github.com/rocky/x-python/version"
)

// ErrCannotCompile is returned by LoadForTarget when the target
// version differs from the host's own compiler version, and by
// SourceLoader when it has no Compile hook -- this engine carries no
// in-process compiler, so only host==target source loads work.
var ErrCannotCompile = errors.New("loader: source compilation requires target version to equal host version")

// Result is the decoded artifact a load(path) call returns: enough
// header metadata to pick an opcode table plus the code object
// itself.
type Result struct {
	Version    version.Tag
	Timestamp  time.Time
	Magic      uint32
	Code       *code.Object
	IsPyPy     bool
	SourceSize int64
	SipHash    uint64
}

// Loader is the single collaborator the engine depends on to turn a
// path into a Result. Implementations never touch interpreter state;
// they only produce the artifact the caller hands to vm.Execute.
type Loader interface {
	Load(path string) (*Result, error)
}

// magicTable maps the container's 2-byte magic number to the language
// version it identifies, the same table CPython's own importlib uses
// to validate .pyc headers. Only the versions this engine's opcode
// tables cover are listed; an unrecognized magic is a hard load error
// rather than a best-effort guess.
var magicTable = map[uint16]version.Tag{
	0xf303: {Major: 2, Minor: 7},  // 62211
	0x0c4f: {Major: 3, Minor: 1},  // 3151
	0x0c6c: {Major: 3, Minor: 2},  // 3180
	0x0c9e: {Major: 3, Minor: 3},  // 3230
	0x0cee: {Major: 3, Minor: 4},  // 3310
	0x0d16: {Major: 3, Minor: 5},  // 3350
	0x0d33: {Major: 3, Minor: 6},  // 3379
	0x0d42: {Major: 3, Minor: 7},  // 3394
	0x0d55: {Major: 3, Minor: 8},  // 3413
	0x0d61: {Major: 3, Minor: 9},  // 3425
	0x0d6f: {Major: 3, Minor: 10}, // 3439
	0x0da7: {Major: 3, Minor: 11}, // 3495
	0x0dcb: {Major: 3, Minor: 12}, // 3531
}

// ContainerLoader reads the fixed 16-byte bytecode container header
// (magic, flags, then either timestamp and source size or an 8-byte
// hash) from disk and defers
// to Decode for the marshalled code object that follows -- full
// marshal parsing is out of scope, so Decode is a caller-supplied hook
// rather than a built-in unmarshaler.
type ContainerLoader struct {
	// Decode turns the bytes following the header into a code.Object.
	// Left nil, Load returns the header-only Result with Code == nil,
	// useful for tests that only exercise header/version detection.
	Decode func(body []byte, v version.Tag) (*code.Object, error)
}

func (l *ContainerLoader) Load(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	defer f.Close()

	var header [16]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return nil, fmt.Errorf("loader: reading header: %w", err)
	}

	magic := uint16(binary.LittleEndian.Uint16(header[0:2]))
	v, ok := magicTable[magic]
	if !ok {
		return nil, fmt.Errorf("loader: unrecognized magic number 0x%04x", magic)
	}
	flags := binary.LittleEndian.Uint32(header[4:8])
	isPyPy := flags&0x1 != 0
	isHashBased := flags&0x2 != 0

	var ts time.Time
	var sipHash uint64
	var sourceSize int64
	if isHashBased {
		sipHash = binary.LittleEndian.Uint64(header[8:16])
	} else {
		epoch := binary.LittleEndian.Uint32(header[8:12])
		ts = time.Unix(int64(epoch), 0)
		sourceSize = int64(binary.LittleEndian.Uint32(header[12:16]))
	}

	res := &Result{
		Version:    v,
		Timestamp:  ts,
		Magic:      uint32(magic),
		IsPyPy:     isPyPy,
		SourceSize: sourceSize,
		SipHash:    sipHash,
	}

	if l.Decode == nil {
		return res, nil
	}
	body, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("loader: reading body: %w", err)
	}
	co, err := l.Decode(body, v)
	if err != nil {
		return nil, fmt.Errorf("loader: decoding code object: %w", err)
	}
	res.Code = co
	return res, nil
}

// SourceLoader delegates source-to-bytecode compilation to Compile,
// the host toolchain's own compile hook, and returns ErrCannotCompile
// when Compile is nil. It has no target version of its own and does
// not compare versions; LoadForTarget rejects a target that differs
// from Host before a SourceLoader runs.
type SourceLoader struct {
	Host    version.Tag
	Compile func(src []byte, filename string) (*code.Object, error)
}

func (l *SourceLoader) Load(path string) (*Result, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	if l.Compile == nil {
		return nil, ErrCannotCompile
	}
	co, err := l.Compile(src, path)
	if err != nil {
		return nil, fmt.Errorf("loader: compiling %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("loader: stat: %w", err)
	}
	return &Result{
		Version:    l.Host,
		Code:       co,
		SourceSize: info.Size(),
	}, nil
}

// LoadForTarget picks ContainerLoader or SourceLoader by file
// extension (".pyc"-style containers vs. source text), a convenience
// entry point for embedders.
func LoadForTarget(path string, target, host version.Tag, decode func([]byte, version.Tag) (*code.Object, error), compile func([]byte, string) (*code.Object, error)) (*Result, error) {
	if isContainer(path) {
		return (&ContainerLoader{Decode: decode}).Load(path)
	}
	if !target.Equal(host) {
		return nil, ErrCannotCompile
	}
	return (&SourceLoader{Host: host, Compile: compile}).Load(path)
}

func isContainer(path string) bool {
	n := len(path)
	return n >= 4 && path[n-4:] == ".pyc"
}
