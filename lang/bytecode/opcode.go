// Package bytecode defines the fixed-width instruction encoding executed by
// lang/machine, and the ByteCodeBuilder used by lang/compiler to emit it
// with structured block/jump resolution.
package bytecode

import "fmt"

// Op identifies an instruction. The zero value is Nop.
type Op uint8

// EXTRA marks a word that is a continuation payload of the previous
// instruction. It is never a dispatchable opcode.
const EXTRA Op = 255

//nolint:revive
const (
	Nop Op = iota
	Unreachable

	// control flow
	Jump
	JumpTrue
	JumpFalse
	JumpEq
	JumpNEq
	JumpLe
	JumpNLe
	JumpLt
	JumpNLt

	// data move
	Copy
	LoadNil
	LoadBool
	LoadInt
	LoadConst
	LoadEnv

	// aggregate: list
	ListNew
	ListAppend
	ListDef
	ListSet
	ListGet
	ListLen

	// aggregate: table
	TableNew
	TableDef
	TableSet
	TableGet
	TableLen

	// aggregate: polymorphic
	Def
	Set
	Get
	Len

	// arithmetic/compare
	Add
	Sub
	Mul
	Div
	Inc
	Dec
	CmpEq
	CmpLe
	CmpLt
	CmpGe
	CmpGt

	// call/return
	PackedCall
	GatherCall
	Ret

	opCount
)

// Shape describes how an instruction's operand word(s) are laid out.
type Shape int

const (
	// ShapeABC is opcode:8 | c1:8 | c2:8 | c3:8, a single word.
	ShapeABC Shape = iota
	// ShapeAU16 is opcode:8 | c1:8 | u16, a single word.
	ShapeAU16
	// ShapeU16 is opcode:8 | u16 | (unused:8), a single word.
	ShapeU16
	// ShapeABCJump2 is ShapeABC (c1=src1, c2=src2) immediately followed by
	// an EXTRA word carrying the jump target in its u16 field.
	ShapeABCJump2
	// ShapeU16Extra is EXTRA:8 | (unused:8) | u16 (the EncodeAU16 layout
	// with c1=0), used only as a continuation word.
	ShapeU16Extra
	// ShapeABCExtra is EXTRA:8 | c1:8 | c2:8 | c3:8, used only as a
	// continuation word.
	ShapeABCExtra
)

var opShapes = [opCount]Shape{
	Nop:         ShapeABC,
	Unreachable: ShapeABC,

	Jump:      ShapeU16,
	JumpTrue:  ShapeAU16,
	JumpFalse: ShapeAU16,
	JumpEq:    ShapeABCJump2,
	JumpNEq:   ShapeABCJump2,
	JumpLe:    ShapeABCJump2,
	JumpNLe:   ShapeABCJump2,
	JumpLt:    ShapeABCJump2,
	JumpNLt:   ShapeABCJump2,

	Copy:      ShapeABC,
	LoadNil:   ShapeABC,
	LoadBool:  ShapeABC,
	LoadInt:   ShapeAU16,
	LoadConst: ShapeAU16,
	LoadEnv:   ShapeABC,

	ListNew:    ShapeABC,
	ListAppend: ShapeABC,
	ListDef:    ShapeABC,
	ListSet:    ShapeABC,
	ListGet:    ShapeABC,
	ListLen:    ShapeABC,

	TableNew: ShapeABC,
	TableDef: ShapeABC,
	TableSet: ShapeABC,
	TableGet: ShapeABC,
	TableLen: ShapeABC,

	Def: ShapeABC,
	Set: ShapeABC,
	Get: ShapeABC,
	Len: ShapeABC,

	Add: ShapeABC,
	Sub: ShapeABC,
	Mul: ShapeABC,
	Div: ShapeABC,
	Inc: ShapeABC,
	Dec: ShapeABC,

	CmpEq: ShapeABC,
	CmpLe: ShapeABC,
	CmpLt: ShapeABC,
	CmpGe: ShapeABC,
	CmpGt: ShapeABC,

	// PackedCall and GatherCall are followed by one or more EXTRA words;
	// the first word itself is ShapeABC (func, rets, num_rets).
	PackedCall: ShapeABC,
	GatherCall: ShapeABC,
	Ret:        ShapeABC,
}

// Shape returns the operand layout of op.
func (op Op) Shape() Shape {
	if int(op) >= len(opShapes) {
		return ShapeABC
	}
	return opShapes[op]
}

// IsJump reports whether op is a control-flow jump.
func (op Op) IsJump() bool {
	switch op {
	case Jump, JumpTrue, JumpFalse, JumpEq, JumpNEq, JumpLe, JumpNLe, JumpLt, JumpNLt:
		return true
	}
	return false
}

// IsTwoWordJump reports whether op's second word is an EXTRA continuation
// carrying the jump target.
func (op Op) IsTwoWordJump() bool {
	return op.Shape() == ShapeABCJump2
}

// IsCall reports whether op is one of the two call opcodes, both of which
// are followed by at least one EXTRA word.
func (op Op) IsCall() bool {
	return op == PackedCall || op == GatherCall
}

var opNames = [opCount]string{
	Nop: "nop", Unreachable: "unreachable",
	Jump: "jump", JumpTrue: "jump_true", JumpFalse: "jump_false",
	JumpEq: "jump_eq", JumpNEq: "jump_neq", JumpLe: "jump_le", JumpNLe: "jump_nle",
	JumpLt: "jump_lt", JumpNLt: "jump_nlt",
	Copy: "copy", LoadNil: "load_nil", LoadBool: "load_bool", LoadInt: "load_int",
	LoadConst: "load_const", LoadEnv: "load_env",
	ListNew: "list_new", ListAppend: "list_append", ListDef: "list_def",
	ListSet: "list_set", ListGet: "list_get", ListLen: "list_len",
	TableNew: "table_new", TableDef: "table_def", TableSet: "table_set",
	TableGet: "table_get", TableLen: "table_len",
	Def: "def", Set: "set", Get: "get", Len: "len",
	Add: "add", Sub: "sub", Mul: "mul", Div: "div", Inc: "inc", Dec: "dec",
	CmpEq: "cmp_eq", CmpLe: "cmp_le", CmpLt: "cmp_lt", CmpGe: "cmp_ge", CmpGt: "cmp_gt",
	PackedCall: "packed_call", GatherCall: "gather_call", Ret: "ret",
}

var reverseOpNames map[string]Op

func init() {
	reverseOpNames = make(map[string]Op, len(opNames)+1)
	for op, name := range opNames {
		if name != "" {
			reverseOpNames[name] = Op(op)
		}
	}
	reverseOpNames["extra"] = EXTRA
}

func (op Op) String() string {
	if op == EXTRA {
		return "extra"
	}
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", op)
}

// LookupOp returns the Op named name, and ok=false if no such opcode exists.
func LookupOp(name string) (Op, bool) {
	op, ok := reverseOpNames[name]
	return op, ok
}
