package machine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/slang/lang/bytecode"
	"github.com/mna/slang/lang/machine"
)

// identityProto returns a one-parameter bytecode function that returns its
// own argument unchanged: Ret r0, 1.
func identityProto(t *testing.T) *machine.FuncProto {
	t.Helper()
	b := bytecode.NewBuilder[machine.Value]()
	b.Ret(0, 1)
	code, err := b.Build()
	require.NoError(t, err)
	return &machine.FuncProto{Code: code.Instrs, Constants: code.Consts, NumParams: 1, StackSize: 1}
}

func TestCallIdentity(t *testing.T) {
	vm := machine.New()
	_, err := vm.AddFunc("id", identityProto(t))
	require.NoError(t, err)

	vm.Push(machine.Nil) // root register 0 receives the result
	require.NoError(t, vm.PushGlobal("id"))
	vm.PushNumber(42)
	require.NoError(t, vm.Call(0, 1, 1))
	require.Equal(t, float64(42), vm.Reg(0).AsNumber())
}

func TestCallArityMismatch(t *testing.T) {
	vm := machine.New()
	_, err := vm.AddFunc("id", identityProto(t))
	require.NoError(t, err)

	require.NoError(t, vm.PushGlobal("id"))
	vm.PushNumber(1)
	vm.PushNumber(2)
	err = vm.Call(0, 2, 1)
	require.Error(t, err)
}

func TestCallNonFunction(t *testing.T) {
	vm := machine.New()
	vm.PushNumber(1)
	vm.PushNumber(2)
	err := vm.Call(0, 1, 1)
	require.Error(t, err)
}

func TestCallTooManyArgs(t *testing.T) {
	vm := machine.New()
	_, err := vm.AddFunc("id", identityProto(t))
	require.NoError(t, err)

	require.NoError(t, vm.PushGlobal("id"))
	for i := 0; i < 128; i++ {
		vm.PushNumber(float64(i))
	}
	err = vm.Call(0, 128, 0)
	require.Error(t, err)
}

// TestCallStackDiscipline makes repeated top-level calls, each pushing a
// function and its argument above the root frame's register 0, and checks
// that every call delivers its own result to that register.
func TestCallStackDiscipline(t *testing.T) {
	vm := machine.New()
	_, err := vm.AddFunc("id", identityProto(t))
	require.NoError(t, err)

	vm.Push(machine.Nil) // root register 0 receives each result
	for i := 0; i < 3; i++ {
		require.NoError(t, vm.PushGlobal("id"))
		vm.PushNumber(float64(i))
		require.NoError(t, vm.Call(0, 1, 1))
		require.Equal(t, float64(i), vm.Reg(0).AsNumber())
	}
}

// TestGCHandleStability builds a loop in raw bytecode that repeatedly
// allocates throwaway lists (forcing several collections under a very low
// threshold) while a single rooted list stays reachable through env. Its
// handle and content must survive every collection.
func TestGCHandleStability(t *testing.T) {
	vm := machine.New(machine.WithGCThreshold(3))

	b := bytecode.NewBuilder[machine.Value]()
	const (
		keep    = 0 // the rooted list
		seven   = 1
		envReg  = 2
		keyReg  = 3
		counter = 4
		limit   = 5
		cond    = 6
		garbage = 7
	)
	b.ListNew(keep)
	b.LoadInt(seven, 7)
	b.ListAppend(keep, seven)
	b.LoadEnv(envReg)
	b.LoadConst(keyReg, vm.Heap.NewString("keep"))
	b.Def(envReg, keyReg, keep)

	b.LoadInt(counter, 0)
	b.LoadInt(limit, 50)
	b.BeginBlock()
	b.CmpLt(cond, counter, limit)
	b.ExitBlockIfFalse(cond, 0)
	b.ListNew(garbage) // unreachable again next iteration
	b.Inc(counter)
	b.RepeatBlock(0)
	b.EndBlock()
	b.Ret(0, 0)

	code, err := b.Build()
	require.NoError(t, err)
	idx, err := vm.AddFunc("main", &machine.FuncProto{Code: code.Instrs, Constants: code.Consts, StackSize: 8})
	require.NoError(t, err)
	vm.PushFunc(idx)
	require.NoError(t, vm.Call(0, 0, 0))

	keptVal, err := vm.Heap.TableGet(vm.Env(), vm.Heap.NewString("keep"))
	require.NoError(t, err)
	require.Equal(t, machine.TagList, keptVal.Tag())
	n, err := vm.Heap.ListLen(keptVal)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	v, err := vm.Heap.ListGet(keptVal, machine.Number(0))
	require.NoError(t, err)
	require.Equal(t, float64(7), v.AsNumber())
}

// TestGCCyclicReference exercises the mark phase's cycle safety: a list
// containing itself must not hang or crash collection.
func TestGCCyclicReference(t *testing.T) {
	vm := machine.New(machine.WithGCThreshold(1))
	l := vm.Heap.NewList()
	require.NoError(t, vm.Heap.ListAppend(l, l))
	require.NoError(t, vm.Heap.TableDef(vm.Env(), vm.Heap.NewString("cycle"), l))

	b := bytecode.NewBuilder[machine.Value]()
	b.LoadNil(0)
	b.Ret(0, 0)
	code, err := b.Build()
	require.NoError(t, err)
	idx, err := vm.AddFunc("noop", &machine.FuncProto{Code: code.Instrs, Constants: code.Consts, StackSize: 1})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		vm.PushFunc(idx)
		require.NoError(t, vm.Call(0, 0, 0))
	}

	v, err := vm.Heap.TableGet(vm.Env(), vm.Heap.NewString("cycle"))
	require.NoError(t, err)
	require.Equal(t, l.Handle(), v.Handle())
}
