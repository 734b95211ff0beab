package machine

import (
	"github.com/mna/slang/lang/bytecode"
)

// defaultGCThreshold is the constant countdown between collections,
// measured in executed instructions: runUntil decrements it once per
// instruction, and heap allocations themselves are not counted. It is
// deliberately small relative to a production VM's to make GC soundness and
// handle-stability easy to exercise in tests; override with WithGCThreshold
// for a real workload.
const defaultGCThreshold = 256

// Option configures a VM at construction time.
type Option func(*VM)

// WithGCThreshold overrides the number of executed instructions between GC
// cycles (heap allocations are not counted).
func WithGCThreshold(n int) Option {
	return func(vm *VM) { vm.gcThreshold = n }
}

// VM is the execution engine: prototype table, heap, value stack, frame
// stack and the global environment table. It is strictly single-threaded
// and synchronous; re-entrancy only happens via native functions invoking
// Call, which recurses through the Go call stack.
type VM struct {
	Heap *Heap

	protos []*FuncProto
	stack  []Value
	frames []frame
	pc     int
	env    Value

	gcThreshold int
	gcCountdown int
	instrCount  uint64
}

// New constructs a VM with an empty env table already installed.
func New(opts ...Option) *VM {
	h := NewHeap()
	vm := &VM{
		Heap:        h,
		env:         h.NewTable(),
		gcThreshold: defaultGCThreshold,
	}
	// root sentinel frame: never popped, marked native so the dispatch loop
	// never tries to execute bytecode from it.
	vm.frames = []frame{{isNative: true, protoIndex: -1}}
	vm.gcCountdown = vm.gcThreshold
	for _, opt := range opts {
		opt(vm)
	}
	return vm
}

// Env returns the VM's global environment table handle.
func (vm *VM) Env() Value { return vm.env }

func (vm *VM) curFrame() *frame { return &vm.frames[len(vm.frames)-1] }

// AddFunc registers proto and binds its Func value in env under name,
// returning the assigned prototype index.
func (vm *VM) AddFunc(name string, proto *FuncProto) (int, error) {
	idx := len(vm.protos)
	vm.protos = append(vm.protos, proto)
	if err := vm.Heap.TableDef(vm.env, vm.Heap.NewString(name), Func(idx)); err != nil {
		return 0, err
	}
	return idx, nil
}

// AddAnonymousFunc registers proto without binding it in env (used by the
// compiler for function-literal constants created via (fn ...)).
func (vm *VM) AddAnonymousFunc(proto *FuncProto) int {
	idx := len(vm.protos)
	vm.protos = append(vm.protos, proto)
	return idx
}

// Push appends v to the value stack, growing the current frame's window.
func (vm *VM) Push(v Value) {
	vm.stack = append(vm.stack, v)
	vm.curFrame().top = len(vm.stack)
}

// Pop removes and returns the top value of the stack.
func (vm *VM) Pop() Value {
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	vm.curFrame().top = len(vm.stack)
	return v
}

// PopN removes and returns the top n values of the stack, in stack order.
func (vm *VM) PopN(n int) []Value {
	start := len(vm.stack) - n
	vs := append([]Value(nil), vm.stack[start:]...)
	vm.stack = vm.stack[:start]
	vm.curFrame().top = len(vm.stack)
	return vs
}

// PushNumber, PushStr, PushFunc and PushGlobal are convenience wrappers
// around Push for native functions building up call arguments.
func (vm *VM) PushNumber(n float64) { vm.Push(Number(n)) }
func (vm *VM) PushStr(s string)     { vm.Push(vm.Heap.NewString(s)) }
func (vm *VM) PushFunc(idx int)     { vm.Push(Func(idx)) }

// PushGlobal looks up name in env and pushes its value.
func (vm *VM) PushGlobal(name string) error {
	v, err := vm.Heap.TableGet(vm.env, vm.Heap.NewString(name))
	if err != nil {
		return err
	}
	vm.Push(v)
	return nil
}

// Reg returns the value at register i of the currently executing frame.
func (vm *VM) Reg(i int) Value { return vm.stack[vm.curFrame().base+i] }

// SetReg assigns the value at register i of the currently executing frame.
func (vm *VM) SetReg(i int, v Value) { vm.stack[vm.curFrame().base+i] = v }

// Call invokes the function at stack[top-numArgs-1] with the numArgs
// values above it, requesting numRets return values placed starting at
// register destReg of the caller's own frame (the frame active when Call
// is invoked: the root frame for a top-level call, or a native function's
// own frame for a re-entrant call). On return the function and its
// arguments are discarded from the stack.
func (vm *VM) Call(destReg, numArgs, numRets int) error {
	funcIdx := len(vm.stack) - numArgs - 1
	if funcIdx < 0 {
		return newRuntimeError("call: not enough values on stack")
	}
	fn := vm.stack[funcIdx]
	if fn.Tag() != TagFunc {
		return newRuntimeError("attempt to call a non-function value (%s)", fn.Tag())
	}

	argsBase := funcIdx + 1
	depth := len(vm.frames)
	enter, err := vm.preCall(fn.FuncIndex(), numArgs, destReg, numRets, func(newBase int) {
		copy(vm.stack[newBase:newBase+numArgs], vm.stack[argsBase:argsBase+numArgs])
	})
	if err != nil {
		vm.stack = vm.stack[:funcIdx]
		vm.curFrame().top = len(vm.stack)
		return err
	}
	if enter {
		if err := vm.runUntil(depth); err != nil {
			return err
		}
	}
	// discard function and args; destReg's values were already copied into
	// the caller's frame by postCall.
	vm.stack = vm.stack[:funcIdx]
	vm.curFrame().top = len(vm.stack)
	return nil
}

// preCall implements the call protocol of spec §4.4: validate arity,
// grow the stack for the callee's frame, push it, and either start
// executing bytecode (enter=true) or run the native function to
// completion inline (enter=false, postCall already applied).
func (vm *VM) preCall(protoIndex, numArgs, destReg, numRets int, copyArgs func(newBase int)) (enter bool, err error) {
	if protoIndex < 0 || protoIndex >= len(vm.protos) {
		return false, newRuntimeError("call to undefined function")
	}
	if numArgs >= 128 || numRets >= 128 {
		return false, newRuntimeError("call arity must be less than 128")
	}
	proto := vm.protos[protoIndex]
	if numArgs != proto.NumParams {
		return false, newRuntimeError("function expects %d argument(s), got %d", proto.NumParams, numArgs)
	}

	caller := vm.curFrame()
	caller.savedPC = vm.pc

	base := caller.top
	top := base + proto.StackSize
	for len(vm.stack) < top {
		vm.stack = append(vm.stack, Nil)
	}
	vm.stack = vm.stack[:top]

	vm.frames = append(vm.frames, frame{
		protoIndex: protoIndex,
		isNative:   proto.IsNative(),
		destReg:    destReg,
		numRets:    numRets,
		base:       base,
		top:        top,
	})

	copyArgs(base)

	if proto.IsNative() {
		vm.pc = -1
		actualRets, nerr := proto.Native(vm)
		if nerr != nil {
			vm.frames = vm.frames[:len(vm.frames)-1]
			vm.stack = vm.stack[:base]
			return false, nerr
		}
		if _, err := vm.postCall(0, actualRets); err != nil {
			return false, err
		}
		return false, nil
	}

	vm.pc = 0
	return true, nil
}

// postCall implements the return half of the call protocol: verify the
// callee produced enough values, copy its declared return count into the
// caller's frame, pop the callee, and restore pc.
func (vm *VM) postCall(retsOffset, actualRets int) (callerIsNative bool, err error) {
	n := len(vm.frames)
	cur := vm.frames[n-1]
	if cur.base+retsOffset+actualRets > cur.top {
		return false, newRuntimeError("return values out of frame bounds")
	}
	if actualRets < cur.numRets {
		return false, newRuntimeError("callee returned %d value(s), expected at least %d", actualRets, cur.numRets)
	}
	vm.frames = vm.frames[:n-1]
	prev := &vm.frames[n-2]
	for i := 0; i < cur.numRets; i++ {
		vm.stack[prev.base+cur.destReg+i] = vm.stack[cur.base+retsOffset+i]
	}
	vm.pc = prev.savedPC
	vm.stack = vm.stack[:prev.top]
	return prev.isNative, nil
}

// runUntil executes bytecode until the frame stack returns to depth,
// i.e. until the call pushed at that depth (and everything above it) has
// returned. This is equivalent to threading the prev.isNative flag through
// every call site to decide when to stop dispatching (spec §4.4 step 7);
// tracking the starting depth instead lets arbitrarily nested native
// re-entrancy (spec §4.5) unwind correctly without that thread.
func (vm *VM) runUntil(depth int) error {
	for len(vm.frames) > depth {
		cur := vm.curFrame()
		proto := vm.protos[cur.protoIndex]
		if vm.pc < 0 || vm.pc >= len(proto.Code) {
			return newRuntimeError("program counter out of range")
		}
		pc := vm.pc
		instr := proto.Code[vm.pc]
		vm.pc++
		if err := vm.step(cur, proto, instr); err != nil {
			if re, ok := err.(*RuntimeError); ok {
				return re.withPC(pc)
			}
			return err
		}

		vm.gcCountdown--
		if vm.gcCountdown <= 0 {
			vm.collectGarbage()
			vm.gcCountdown = vm.gcThreshold
		}
	}
	return nil
}

func (vm *VM) fetchExtra(proto *FuncProto) (bytecode.Instr, error) {
	if vm.pc >= len(proto.Code) {
		return 0, newRuntimeError("missing EXTRA word at end of code")
	}
	w := proto.Code[vm.pc]
	if w.Op() != bytecode.EXTRA {
		return 0, newRuntimeError("expected EXTRA continuation word")
	}
	vm.pc++
	return w, nil
}
