package opcodes

import "github.com/rocky/x-python/version"

// BRKPT is the reserved debugger-patch opcode of Since
// this engine does not itself parse real marshalled CPython bytecode
// (out of scope — co_code is supplied pre-decoded by
// an external loader), opcode byte values are this engine's own and
// not CPython's numbering; BRKPT is simply reserved at the top of the
// byte range and never assigned to any mnemonic below, so "must not
// collide with any real opcode" holds by construction rather than by
// checking CPython's actual opcode.py per target version.
const BRKPT Opcode = 255

func noArg(name string, op Opcode) Info   { return Info{Name: name, Opcode: op, Imm: ImmNone, HasArg: false} }
func withArg(name string, op Opcode, k ImmKind) Info {
	return Info{Name: name, Opcode: op, Imm: k, HasArg: true}
}

// diffChain builds every supported version's table by differential
// construction: the 2.7 entry is the only one built from scratch;
// every later entry clones an adjacent, already-built version and
// applies an add/remove delta. Versions with no material opcode
// change of their own (3.2, 3.4, 3.7) still go through the
// same machinery with an empty delta, so the
// construction mechanism itself is never bypassed by a shortcut.
var diffChain = []diff{
	{
		version: version.Tag{Major: 2, Minor: 7},
		add: []Info{
			noArg("NOP", 1),
			noArg("POP_TOP", 2),
			noArg("ROT_TWO", 3),
			noArg("ROT_THREE", 4),
			noArg("DUP_TOP", 5),
			noArg("DUP_TOP_TWO", 6),
			withArg("EXTENDED_ARG", 7, ImmRaw),

			noArg("UNARY_POSITIVE", 10),
			noArg("UNARY_NEGATIVE", 11),
			noArg("UNARY_NOT", 12),
			noArg("UNARY_INVERT", 13),

			noArg("BINARY_ADD", 15),
			noArg("BINARY_SUBTRACT", 16),
			noArg("BINARY_MULTIPLY", 17),
			noArg("BINARY_TRUE_DIVIDE", 18),
			noArg("BINARY_FLOOR_DIVIDE", 19),
			noArg("BINARY_MODULO", 20),
			noArg("BINARY_POWER", 21),
			noArg("BINARY_LSHIFT", 22),
			noArg("BINARY_RSHIFT", 23),
			noArg("BINARY_AND", 24),
			noArg("BINARY_OR", 25),
			noArg("BINARY_XOR", 26),
			noArg("BINARY_SUBSCR", 28),
			noArg("STORE_SUBSCR", 29),
			noArg("DELETE_SUBSCR", 30),

			noArg("INPLACE_ADD", 35),
			noArg("INPLACE_SUBTRACT", 36),
			noArg("INPLACE_MULTIPLY", 37),
			noArg("INPLACE_TRUE_DIVIDE", 38),
			noArg("INPLACE_FLOOR_DIVIDE", 39),
			noArg("INPLACE_MODULO", 40),
			noArg("INPLACE_POWER", 41),

			withArg("COMPARE_OP", 45, ImmCompare),
			noArg("JUMP_IF_FALSE_OR_POP", 48),
			noArg("JUMP_IF_TRUE_OR_POP", 49),

			withArg("JUMP_FORWARD", 55, ImmJumpRel),
			withArg("JUMP_ABSOLUTE", 56, ImmJumpAbs),
			withArg("POP_JUMP_IF_FALSE", 57, ImmJumpAbs),
			withArg("POP_JUMP_IF_TRUE", 58, ImmJumpAbs),
			withArg("SETUP_LOOP", 61, ImmJumpRel),
			noArg("BREAK_LOOP", 62),
			withArg("CONTINUE_LOOP", 63, ImmJumpAbs),
			withArg("SETUP_EXCEPT", 64, ImmJumpRel),
			withArg("SETUP_FINALLY", 65, ImmJumpRel),
			noArg("POP_BLOCK", 66),
			noArg("POP_EXCEPT", 67),
			noArg("END_FINALLY", 68),
			withArg("RAISE_VARARGS", 70, ImmRaw),
			withArg("SETUP_WITH", 71, ImmJumpRel),
			noArg("WITH_CLEANUP", 72),

			withArg("LOAD_CONST", 80, ImmConst),
			withArg("LOAD_FAST", 81, ImmVarname),
			withArg("STORE_FAST", 82, ImmVarname),
			withArg("DELETE_FAST", 83, ImmVarname),
			withArg("LOAD_GLOBAL", 84, ImmName),
			withArg("STORE_GLOBAL", 85, ImmName),
			withArg("DELETE_GLOBAL", 86, ImmName),
			withArg("LOAD_NAME", 87, ImmName),
			withArg("STORE_NAME", 88, ImmName),
			withArg("DELETE_NAME", 89, ImmName),
			withArg("LOAD_ATTR", 90, ImmName),
			withArg("STORE_ATTR", 91, ImmName),
			withArg("DELETE_ATTR", 92, ImmName),
			withArg("LOAD_DEREF", 93, ImmFreevar),
			withArg("STORE_DEREF", 94, ImmFreevar),
			withArg("DELETE_DEREF", 95, ImmFreevar),
			withArg("LOAD_CLOSURE", 96, ImmFreevar),
			withArg("LOAD_CLASSDEREF", 97, ImmFreevar),

			withArg("BUILD_TUPLE", 110, ImmRaw),
			withArg("BUILD_LIST", 111, ImmRaw),
			withArg("BUILD_MAP", 112, ImmRaw),
			withArg("BUILD_SET", 113, ImmRaw),
			withArg("BUILD_SLICE", 115, ImmRaw),
			withArg("LIST_APPEND", 117, ImmRaw),
			withArg("MAP_ADD", 119, ImmRaw),
			withArg("UNPACK_SEQUENCE", 124, ImmRaw),
			withArg("UNPACK_EX", 125, ImmRaw),
			noArg("GET_ITER", 127),
			withArg("FOR_ITER", 128, ImmJumpRel),

			withArg("CALL_FUNCTION", 140, ImmRaw),
			withArg("CALL_FUNCTION_VAR", 141, ImmRaw),
			withArg("CALL_FUNCTION_KW", 142, ImmRaw),
			withArg("CALL_FUNCTION_VAR_KW", 143, ImmRaw),
			withArg("MAKE_FUNCTION", 151, ImmRaw),
			noArg("LOAD_BUILD_CLASS", 152),
			noArg("RETURN_VALUE", 153),
			noArg("YIELD_VALUE", 155),

			withArg("IMPORT_NAME", 180, ImmName),
			withArg("IMPORT_FROM", 181, ImmName),
			noArg("IMPORT_STAR", 182),
			noArg("PRINT_EXPR", 183),
			noArg("PRINT_ITEM", 184),
			noArg("PRINT_NEWLINE", 185),
		},
	},
	{
		version: version.Tag{Major: 3, Minor: 1},
		base:    version.Tag{Major: 2, Minor: 7},
		remove:  []string{"PRINT_ITEM", "PRINT_NEWLINE"},
		add: []Info{
			withArg("SET_ADD", 118, ImmRaw),
		},
	},
	{version: version.Tag{Major: 3, Minor: 2}, base: version.Tag{Major: 3, Minor: 1}},
	{
		version: version.Tag{Major: 3, Minor: 3},
		base:    version.Tag{Major: 3, Minor: 2},
		add:     []Info{noArg("YIELD_FROM", 156)},
	},
	{version: version.Tag{Major: 3, Minor: 4}, base: version.Tag{Major: 3, Minor: 3}},
	{
		version: version.Tag{Major: 3, Minor: 5},
		base:    version.Tag{Major: 3, Minor: 4},
		remove:  []string{"WITH_CLEANUP"},
		add: []Info{
			noArg("BINARY_MATRIX_MULTIPLY", 27),
			noArg("GET_YIELD_FROM_ITER", 129),
			noArg("WITH_CLEANUP_START", 72),
			noArg("WITH_CLEANUP_FINISH", 73),
		},
	},
	{
		version: version.Tag{Major: 3, Minor: 6},
		base:    version.Tag{Major: 3, Minor: 5},
		remove:  []string{"CALL_FUNCTION_VAR", "CALL_FUNCTION_VAR_KW"},
		add: []Info{
			withArg("CALL_FUNCTION_EX", 144, ImmRaw),
			withArg("CALL_METHOD", 145, ImmRaw),
			withArg("LOAD_METHOD", 146, ImmName),
			withArg("BUILD_STRING", 114, ImmRaw),
			withArg("BUILD_CONST_KEY_MAP", 116, ImmRaw),
			withArg("FORMAT_VALUE", 126, ImmRaw),
		},
	},
	{version: version.Tag{Major: 3, Minor: 7}, base: version.Tag{Major: 3, Minor: 6}},
	{
		version: version.Tag{Major: 3, Minor: 8},
		base:    version.Tag{Major: 3, Minor: 7},
		remove: []string{
			"SETUP_LOOP", "BREAK_LOOP", "CONTINUE_LOOP",
			"SETUP_EXCEPT", "END_FINALLY",
		},
		add: []Info{
			noArg("RERAISE", 69),
		},
	},
	{
		version: version.Tag{Major: 3, Minor: 9},
		base:    version.Tag{Major: 3, Minor: 8},
		add: []Info{
			withArg("LIST_EXTEND", 120, ImmRaw),
			withArg("SET_UPDATE", 121, ImmRaw),
			withArg("DICT_UPDATE", 122, ImmRaw),
			withArg("DICT_MERGE", 123, ImmRaw),
			noArg("LOAD_ASSERTION_ERROR", 186),
			noArg("WITH_EXCEPT_START", 74),
		},
	},
	{
		version: version.Tag{Major: 3, Minor: 10},
		base:    version.Tag{Major: 3, Minor: 9},
		add: []Info{
			withArg("POP_JUMP_IF_NONE", 59, ImmJumpAbs),
			withArg("POP_JUMP_IF_NOT_NONE", 60, ImmJumpAbs),
			noArg("GEN_START", 157),
		},
	},
	{
		version: version.Tag{Major: 3, Minor: 11},
		base:    version.Tag{Major: 3, Minor: 10},
		remove:  []string{"SETUP_FINALLY", "POP_BLOCK", "POP_EXCEPT", "CALL_FUNCTION", "CALL_FUNCTION_KW", "CALL_METHOD", "SETUP_WITH", "GEN_START"},
		add: []Info{
			noArg("PUSH_NULL", 147),
			withArg("PRECALL", 148, ImmRaw),
			withArg("KW_NAMES", 149, ImmConst),
			withArg("CALL", 150, ImmRaw),
			noArg("PUSH_EXC_INFO", 75),
			noArg("CHECK_EXC_MATCH", 76),
			noArg("BEFORE_WITH", 78),
			withArg("COPY", 187, ImmRaw),
			withArg("SWAP", 188, ImmRaw),
			noArg("RESUME", 189),
		},
	},
	{
		version: version.Tag{Major: 3, Minor: 12},
		base:    version.Tag{Major: 3, Minor: 11},
		add: []Info{
			withArg("RETURN_CONST", 154, ImmConst),
			noArg("INTERPRETER_EXIT", 77),
			noArg("CLEANUP_THROW", 79),
			noArg("LOAD_LOCALS", 98),
		},
	},
}

// NotImplementedMnemonics lists mnemonics this engine deliberately leaves
// unimplemented: INTERPRETER_EXIT, CLEANUP_THROW, LOAD_LOCALS (3.12,
// genuinely unfinished upstream) plus IMPORT_NAME/IMPORT_FROM/
// IMPORT_STAR (module search is out of scope — there is no module
// system to resolve a name against).
var NotImplementedMnemonics = map[string]bool{
	"INTERPRETER_EXIT": true,
	"CLEANUP_THROW":    true,
	"LOAD_LOCALS":      true,
	"IMPORT_NAME":      true,
	"IMPORT_FROM":      true,
	"IMPORT_STAR":      true,
}
