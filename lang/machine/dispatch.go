package machine

import "github.com/mna/slang/lang/bytecode"

// step executes a single already-fetched instruction against frame f of
// prototype proto. vm.pc has already been advanced past instr itself (and
// past any EXTRA word step consumes here).
func (vm *VM) step(f *frame, proto *FuncProto, instr bytecode.Instr) error {
	op := instr.Op()
	reg := func(i uint8) Value { return vm.stack[f.base+int(i)] }
	setReg := func(i uint8, v Value) { vm.stack[f.base+int(i)] = v }

	switch op {
	case bytecode.Nop:
		return nil
	case bytecode.Unreachable:
		return newRuntimeError("executed unreachable instruction")

	case bytecode.Copy:
		_, dst, src, _ := instr.DecodeABC()
		setReg(dst, reg(src))
		return nil
	case bytecode.LoadNil:
		_, dst, _, _ := instr.DecodeABC()
		setReg(dst, Nil)
		return nil
	case bytecode.LoadBool:
		_, dst, b, _ := instr.DecodeABC()
		setReg(dst, Bool(b != 0))
		return nil
	case bytecode.LoadInt:
		_, dst, u := instr.DecodeAU16()
		setReg(dst, Number(float64(int16(u))))
		return nil
	case bytecode.LoadConst:
		_, dst, k := instr.DecodeAU16()
		if int(k) >= len(proto.Constants) {
			return newRuntimeError("constant index %d out of range", k)
		}
		setReg(dst, proto.Constants[k])
		return nil
	case bytecode.LoadEnv:
		_, dst, _, _ := instr.DecodeABC()
		setReg(dst, vm.env)
		return nil

	case bytecode.ListNew:
		_, dst, _, _ := instr.DecodeABC()
		setReg(dst, vm.Heap.NewList())
		return nil
	case bytecode.ListAppend:
		_, list, val, _ := instr.DecodeABC()
		return vm.Heap.ListAppend(reg(list), reg(val))
	case bytecode.ListDef:
		_, list, idx, val := instr.DecodeABC()
		return vm.Heap.ListDef(reg(list), reg(idx), reg(val))
	case bytecode.ListSet:
		_, list, idx, val := instr.DecodeABC()
		return vm.Heap.ListSet(reg(list), reg(idx), reg(val))
	case bytecode.ListGet:
		_, dst, list, idx := instr.DecodeABC()
		v, err := vm.Heap.ListGet(reg(list), reg(idx))
		if err != nil {
			return err
		}
		setReg(dst, v)
		return nil
	case bytecode.ListLen:
		_, dst, list, _ := instr.DecodeABC()
		n, err := vm.Heap.ListLen(reg(list))
		if err != nil {
			return err
		}
		setReg(dst, Number(float64(n)))
		return nil

	case bytecode.TableNew:
		_, dst, _, _ := instr.DecodeABC()
		setReg(dst, vm.Heap.NewTable())
		return nil
	case bytecode.TableDef:
		_, table, key, val := instr.DecodeABC()
		return vm.Heap.TableDef(reg(table), reg(key), reg(val))
	case bytecode.TableSet:
		_, table, key, val := instr.DecodeABC()
		return vm.Heap.TableSet(reg(table), reg(key), reg(val))
	case bytecode.TableGet:
		_, dst, table, key := instr.DecodeABC()
		v, err := vm.Heap.TableGet(reg(table), reg(key))
		if err != nil {
			return err
		}
		setReg(dst, v)
		return nil
	case bytecode.TableLen:
		_, dst, table, _ := instr.DecodeABC()
		n, err := vm.Heap.TableLen(reg(table))
		if err != nil {
			return err
		}
		setReg(dst, Number(float64(n)))
		return nil

	case bytecode.Def:
		_, obj, key, val := instr.DecodeABC()
		return vm.polyDef(reg(obj), reg(key), reg(val))
	case bytecode.Set:
		_, obj, key, val := instr.DecodeABC()
		return vm.polySet(reg(obj), reg(key), reg(val))
	case bytecode.Get:
		_, dst, obj, key := instr.DecodeABC()
		v, err := vm.polyGet(reg(obj), reg(key))
		if err != nil {
			return err
		}
		setReg(dst, v)
		return nil
	case bytecode.Len:
		_, dst, obj, _ := instr.DecodeABC()
		n, err := vm.polyLen(reg(obj))
		if err != nil {
			return err
		}
		setReg(dst, Number(float64(n)))
		return nil

	case bytecode.Add, bytecode.Sub, bytecode.Mul, bytecode.Div:
		_, dst, s1, s2 := instr.DecodeABC()
		v, err := arith(op, reg(s1), reg(s2))
		if err != nil {
			return err
		}
		setReg(dst, v)
		return nil
	case bytecode.Inc, bytecode.Dec:
		_, dst, _, _ := instr.DecodeABC()
		v := reg(dst)
		if v.Tag() != TagNumber {
			return newRuntimeError("arithmetic on non-number (%s)", v.Tag())
		}
		if op == bytecode.Inc {
			setReg(dst, Number(v.AsNumber()+1))
		} else {
			setReg(dst, Number(v.AsNumber()-1))
		}
		return nil

	case bytecode.CmpEq:
		_, dst, s1, s2 := instr.DecodeABC()
		setReg(dst, Bool(Equal(reg(s1), reg(s2))))
		return nil
	case bytecode.CmpLe, bytecode.CmpLt, bytecode.CmpGe, bytecode.CmpGt:
		_, dst, s1, s2 := instr.DecodeABC()
		b, err := order(op, reg(s1), reg(s2))
		if err != nil {
			return err
		}
		setReg(dst, Bool(b))
		return nil

	case bytecode.Jump:
		_, target := instr.DecodeU16()
		vm.pc = int(target)
		return nil
	case bytecode.JumpTrue, bytecode.JumpFalse:
		_, src, target := instr.DecodeAU16()
		v := reg(src)
		if v.Tag() != TagBool {
			return newRuntimeError("jump condition must be a boolean, got %s", v.Tag())
		}
		want := op == bytecode.JumpTrue
		if v.AsBool() == want {
			vm.pc = int(target)
		}
		return nil
	case bytecode.JumpEq, bytecode.JumpNEq, bytecode.JumpLe, bytecode.JumpNLe, bytecode.JumpLt, bytecode.JumpNLt:
		_, s1, s2, _ := instr.DecodeABC()
		extra, err := vm.fetchExtra(proto)
		if err != nil {
			return err
		}
		_, _, target := extra.DecodeAU16()
		taken, err := vm.jumpCmp(op, reg(s1), reg(s2))
		if err != nil {
			return err
		}
		if taken {
			vm.pc = int(target)
		}
		return nil

	case bytecode.PackedCall:
		_, fn, dst, numRets := instr.DecodeABC()
		extra, err := vm.fetchExtra(proto)
		if err != nil {
			return err
		}
		_, args, numArgs, _ := extra.DecodeABC()
		return vm.dispatchCall(reg(fn), int(dst), int(numRets), func(newBase int) {
			copy(vm.stack[newBase:newBase+int(numArgs)], vm.stack[f.base+int(args):f.base+int(args)+int(numArgs)])
		}, int(numArgs))
	case bytecode.GatherCall:
		_, fn, dst, numRets := instr.DecodeABC()
		extra, err := vm.fetchExtra(proto)
		if err != nil {
			return err
		}
		_, _, numArgs := extra.DecodeAU16()
		srcRegs := make([]uint8, numArgs)
		for i := range srcRegs {
			w, err := vm.fetchExtra(proto)
			if err != nil {
				return err
			}
			_, _, r := w.DecodeAU16()
			srcRegs[i] = uint8(r)
		}
		return vm.dispatchCall(reg(fn), int(dst), int(numRets), func(newBase int) {
			for i, sr := range srcRegs {
				vm.stack[newBase+i] = vm.stack[f.base+int(sr)]
			}
		}, int(numArgs))

	case bytecode.Ret:
		_, rets, numRets, _ := instr.DecodeABC()
		_, err := vm.postCall(int(rets), int(numRets))
		return err

	default:
		return newRuntimeError("invalid opcode %d", op)
	}
}

// dispatchCall runs the shared tail of PackedCall/GatherCall handling: the
// value in the func register must actually be a Func, then the generic
// call protocol (preCall) takes over.
func (vm *VM) dispatchCall(fn Value, dst, numRets int, copyArgs func(newBase int), numArgs int) error {
	if fn.Tag() != TagFunc {
		return newRuntimeError("attempt to call a non-function value (%s)", fn.Tag())
	}
	_, err := vm.preCall(fn.FuncIndex(), numArgs, dst, numRets, copyArgs)
	return err
}

func arith(op bytecode.Op, a, b Value) (Value, error) {
	if a.Tag() != TagNumber || b.Tag() != TagNumber {
		return Nil, newRuntimeError("arithmetic on non-number operand(s) (%s, %s)", a.Tag(), b.Tag())
	}
	x, y := a.AsNumber(), b.AsNumber()
	switch op {
	case bytecode.Add:
		return Number(x + y), nil
	case bytecode.Sub:
		return Number(x - y), nil
	case bytecode.Mul:
		return Number(x * y), nil
	case bytecode.Div:
		return Number(x / y), nil
	}
	panic("unreachable")
}

func order(op bytecode.Op, a, b Value) (bool, error) {
	if a.Tag() != TagNumber || b.Tag() != TagNumber {
		return false, newRuntimeError("ordering is only defined for numbers, got (%s, %s)", a.Tag(), b.Tag())
	}
	x, y := a.AsNumber(), b.AsNumber()
	switch op {
	case bytecode.CmpLe:
		return x <= y, nil
	case bytecode.CmpLt:
		return x < y, nil
	case bytecode.CmpGe:
		return x >= y, nil
	case bytecode.CmpGt:
		return x > y, nil
	}
	panic("unreachable")
}

func (vm *VM) jumpCmp(op bytecode.Op, a, b Value) (bool, error) {
	switch op {
	case bytecode.JumpEq:
		return Equal(a, b), nil
	case bytecode.JumpNEq:
		return !Equal(a, b), nil
	case bytecode.JumpLe:
		return order(bytecode.CmpLe, a, b)
	case bytecode.JumpNLe:
		v, err := order(bytecode.CmpLe, a, b)
		return !v, err
	case bytecode.JumpLt:
		return order(bytecode.CmpLt, a, b)
	case bytecode.JumpNLt:
		v, err := order(bytecode.CmpLt, a, b)
		return !v, err
	}
	panic("unreachable")
}

func (vm *VM) polyDef(obj, key, val Value) error {
	switch obj.Tag() {
	case TagList:
		return vm.Heap.ListDef(obj, key, val)
	case TagTable:
		return vm.Heap.TableDef(obj, key, val)
	default:
		return newRuntimeError("def: unsupported receiver type %s", obj.Tag())
	}
}

func (vm *VM) polySet(obj, key, val Value) error {
	switch obj.Tag() {
	case TagList:
		return vm.Heap.ListSet(obj, key, val)
	case TagTable:
		return vm.Heap.TableSet(obj, key, val)
	default:
		return newRuntimeError("set: unsupported receiver type %s", obj.Tag())
	}
}

func (vm *VM) polyGet(obj, key Value) (Value, error) {
	switch obj.Tag() {
	case TagList:
		return vm.Heap.ListGet(obj, key)
	case TagTable:
		return vm.Heap.TableGet(obj, key)
	default:
		return Nil, newRuntimeError("get: unsupported receiver type %s", obj.Tag())
	}
}

func (vm *VM) polyLen(obj Value) (int, error) {
	switch obj.Tag() {
	case TagList:
		return vm.Heap.ListLen(obj)
	case TagTable:
		return vm.Heap.TableLen(obj)
	default:
		return 0, newRuntimeError("len: unsupported receiver type %s", obj.Tag())
	}
}
