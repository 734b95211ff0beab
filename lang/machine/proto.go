package machine

import "github.com/mna/slang/lang/bytecode"

// NativeFunc is a host function callable from bytecode. It reads its
// arguments via vm.Reg relative to its own (just-pushed) frame and returns
// the number of return values it placed at the bottom of that frame's
// register window. It may call back into the VM via Push/Pop/Call, which
// may itself re-enter the dispatch loop.
type NativeFunc func(vm *VM) (int, error)

// FuncProto is an immutable function descriptor: either bytecode or a
// native function, plus the constant pool its LoadConst instructions
// reference, its parameter count, and the register-frame size the compiler
// computed for it. Prototypes are added once and live for the life of the
// VM; they are never freed.
type FuncProto struct {
	Code      []bytecode.Instr
	Native    NativeFunc
	Constants []Value
	NumParams int
	StackSize int
}

// IsNative reports whether the prototype is a native function rather than
// bytecode.
func (p *FuncProto) IsNative() bool { return p.Native != nil }
