package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/mna/slang/lang/compiler"
	"github.com/mna/slang/lang/machine"
	"github.com/mna/slang/lang/parser"
)

// Run parses, compiles and executes the single source file named in args,
// then prints the VM's final environment table to stdout.
func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	src, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	forms, err := parser.ParseChunk(src)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	vm := machine.New()
	proto, err := compiler.CompileChunk(vm, forms)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	idx, err := vm.AddFunc("main", proto)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	vm.PushFunc(idx)
	if err := vm.Call(0, 0, 0); err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	fmt.Fprintln(stdio.Stdout, vm.Heap.Stringify(vm.Env()))
	return nil
}
