package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/slang/lang/compiler"
	"github.com/mna/slang/lang/machine"
	"github.com/mna/slang/lang/parser"
)

// run parses and compiles src into a prototype named "main", registers it
// with vm, and executes it with call(0, 0, 0).
func run(t *testing.T, vm *machine.VM, src string) {
	t.Helper()
	forms, err := parser.ParseChunk([]byte(src))
	require.NoError(t, err)
	proto, err := compiler.CompileChunk(vm, forms)
	require.NoError(t, err)
	idx, err := vm.AddFunc("main", proto)
	require.NoError(t, err)
	vm.PushFunc(idx)
	require.NoError(t, vm.Call(0, 0, 0))
}

func TestFibonacci(t *testing.T) {
	vm := machine.New()
	run(t, vm, `
		(var fib (fn [n]
			(if (< n 2)
				(return n)
				(return (+ (fib (- n 2)) (fib (- n 1)))))))
	`)

	want := []float64{0, 1, 1, 2, 3, 5, 8, 13, 21, 34, 55, 89, 144, 233, 377}
	vm.Push(machine.Nil) // root register 0 receives each result
	for i, w := range want {
		require.NoError(t, vm.PushGlobal("fib"))
		vm.PushNumber(float64(i))
		require.NoError(t, vm.Call(0, 1, 1))
		got := vm.Reg(0)
		require.Equal(t, machine.TagNumber, got.Tag())
		require.Equal(t, w, got.AsNumber(), "fib(%d)", i)
	}
}

func TestListToTable(t *testing.T) {
	vm := machine.New()
	run(t, vm, `
		(var lst [false 0.5 2.0 4.0 5.0 10.0])
		(var tbl {})
		(var i 0)
		(while (< i 6)
			(do (def tbl (get lst i) (get lst (+ i 1)))
			    (set i (+ i 2))))
	`)

	tbl, err := vm.Heap.TableGet(vm.Env(), vm.Heap.NewString("tbl"))
	require.NoError(t, err)
	require.Equal(t, machine.TagTable, tbl.Tag())

	cases := []struct {
		key  machine.Value
		want float64
	}{
		{machine.Bool(false), 0.5},
		{machine.Number(2), 4},
		{machine.Number(5), 10},
	}
	for _, c := range cases {
		v, err := vm.Heap.TableGet(tbl, c.key)
		require.NoError(t, err)
		require.Equal(t, c.want, v.AsNumber())
	}
}

// TestComputedCallee exercises a call whose head is not a bare atom: the
// callee is itself fetched from a table at call time.
func TestComputedCallee(t *testing.T) {
	vm := machine.New()
	run(t, vm, `
		(var tbl {})
		(def tbl "f" (fn [x] (return (+ x 1))))
		(var r ((get tbl "f") 5))
	`)

	r, err := vm.Heap.TableGet(vm.Env(), vm.Heap.NewString("r"))
	require.NoError(t, err)
	require.Equal(t, machine.TagNumber, r.Tag())
	require.Equal(t, float64(6), r.AsNumber())
}

func TestEnvDefGet(t *testing.T) {
	vm := machine.New()
	run(t, vm, `(var foo "bar")`)
	run(t, vm, `(var result (get _ENV "foo"))`)

	result, err := vm.Heap.TableGet(vm.Env(), vm.Heap.NewString("result"))
	require.NoError(t, err)
	require.Equal(t, machine.TagString, result.Tag())
	s, err := vm.Heap.StringBytes(result)
	require.NoError(t, err)
	require.Equal(t, "bar", s)
}

func TestLexicalScoping(t *testing.T) {
	vm := machine.New()
	var yielded []float64
	_, err := vm.AddFunc("yield", &machine.FuncProto{
		NumParams: 1,
		StackSize: 1,
		Native: func(vm *machine.VM) (int, error) {
			yielded = append(yielded, vm.Reg(0).AsNumber())
			return 0, nil
		},
	})
	require.NoError(t, err)

	run(t, vm, `
		(var foo 42) (yield foo)
		(do (set foo 12) (yield foo)
		    (var foo 69) (yield foo)
		    (do (set foo 70) (yield foo)
		        (var foo 8)  (yield foo))
		    (yield foo)
		    (set foo 71) (yield foo))
		(yield foo)
		(set foo (* foo 2)) (yield foo)
	`)

	require.Equal(t, []float64{42, 12, 69, 70, 8, 70, 71, 12, 24}, yielded)
}

func TestWhileLoop(t *testing.T) {
	vm := machine.New()
	run(t, vm, `
		(var i 0) (var j 0) (var k 1)
		(while (< i 100)
			(do (set j (+ j (if (> k 0) 1 2)))
			    (set k (- 0 k))
			    (set i (+ i 1))))
	`)

	i, err := vm.Heap.TableGet(vm.Env(), vm.Heap.NewString("i"))
	require.NoError(t, err)
	require.Equal(t, float64(100), i.AsNumber())
	j, err := vm.Heap.TableGet(vm.Env(), vm.Heap.NewString("j"))
	require.NoError(t, err)
	require.Equal(t, float64(150), j.AsNumber())
}

// TestHostReentry mirrors scenario 6: a native function calls back into a
// bytecode function via push_global+call, and must agree with a pure
// bytecode computation of the same sum.
func TestHostReentry(t *testing.T) {
	pureVM := machine.New()
	run(t, pureVM, `
		(var sum (fn [n]
			(if (< n 1)
				(return 0)
				(return (+ n (sum (- n 1)))))))
	`)
	pureVM.Push(machine.Nil) // root register 0 receives the result
	require.NoError(t, pureVM.PushGlobal("sum"))
	pureVM.PushNumber(10)
	require.NoError(t, pureVM.Call(0, 1, 1))
	want := pureVM.Reg(0).AsNumber()

	hostVM := machine.New()
	run(t, hostVM, `
		(var sum (fn [n]
			(if (< n 1)
				(return 0)
				(return (+ n (sum (- n 1)))))))
	`)
	_, err := hostVM.AddFunc("reenter", &machine.FuncProto{
		NumParams: 1,
		StackSize: 1,
		Native: func(vm *machine.VM) (int, error) {
			n := vm.Reg(0)
			if err := vm.PushGlobal("sum"); err != nil {
				return 0, err
			}
			vm.Push(n)
			if err := vm.Call(0, 1, 1); err != nil {
				return 0, err
			}
			return 1, nil
		},
	})
	require.NoError(t, err)
	hostVM.Push(machine.Nil) // root register 0 receives the result
	require.NoError(t, hostVM.PushGlobal("reenter"))
	hostVM.PushNumber(10)
	require.NoError(t, hostVM.Call(0, 1, 1))
	got := hostVM.Reg(0).AsNumber()

	require.Equal(t, want, got)
}
