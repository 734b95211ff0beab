// Package compiler lowers the Lisp-shaped AST of lang/ast to the
// register-based bytecode of lang/bytecode, via lang/bytecode.Builder. It is
// a single-pass compiler: every form is visited exactly once, in the order
// it appears, and each call to compile returns the register holding the
// form's value (when it has one).
package compiler

import (
	"github.com/mna/slang/lang/ast"
	"github.com/mna/slang/lang/bytecode"
	"github.com/mna/slang/lang/machine"
)

// opMap holds the operators that fuse directly into a single arithmetic or
// comparison instruction when applied to exactly two arguments.
var opMap = map[string]bytecode.Op{
	"+":  bytecode.Add,
	"-":  bytecode.Sub,
	"*":  bytecode.Mul,
	"/":  bytecode.Div,
	"==": bytecode.CmpEq,
	"<=": bytecode.CmpLe,
	"<":  bytecode.CmpLt,
	">=": bytecode.CmpGe,
	">":  bytecode.CmpGt,
}

// localDecl is one name binding introduced by a var form inside a non-chunk
// scope. Chunk-level (scope 0) var forms bind into the environment table
// instead and never appear here.
type localDecl struct {
	scope int
	name  string
	reg   uint8
}

// fcomp compiles a single function body (a chunk, or the body of a fn form)
// into one bytecode.Code. Registers are allocated monotonically: there is no
// free list, so a temporary register is never reused once claimed, matching
// the teacher's register allocator.
type fcomp struct {
	vm *machine.VM
	b  *bytecode.Builder[machine.Value]

	locals  []localDecl
	scope   int
	nextReg int

	numParams int
}

func newFcomp(vm *machine.VM) *fcomp {
	return &fcomp{
		vm: vm,
		b:  bytecode.NewBuilder[machine.Value](),
	}
}

// CompileChunk compiles a sequence of top-level forms into a zero-parameter
// prototype. Top-level var/set act on the VM's environment table; there is
// no outer scope to shadow.
func CompileChunk(vm *machine.VM, forms []ast.Node) (*machine.FuncProto, error) {
	fc := newFcomp(vm)
	for _, f := range forms {
		if _, err := fc.compile(f, -1, 0); err != nil {
			return nil, err
		}
	}
	fc.b.Ret(0, 0)
	code, err := fc.b.Build()
	if err != nil {
		return nil, newError("%s", err)
	}
	return &machine.FuncProto{
		Code:      code.Instrs,
		Constants: code.Consts,
		NumParams: 0,
		StackSize: fc.nextReg,
	}, nil
}

// regOrNext returns dst if the caller supplied one (dst >= 0), otherwise
// claims the next unused register.
func (fc *fcomp) regOrNext(dst int) (uint8, error) {
	if dst >= 0 {
		return uint8(dst), nil
	}
	if fc.nextReg >= 255 {
		return 0, newError("function uses more than 255 registers")
	}
	r := uint8(fc.nextReg)
	fc.nextReg++
	return r, nil
}

func (fc *fcomp) pushScope() { fc.scope++ }

func (fc *fcomp) popScope() {
	fc.scope--
	i := len(fc.locals)
	for i > 0 && fc.locals[i-1].scope > fc.scope {
		i--
	}
	fc.locals = fc.locals[:i]
}

// lookupLocal walks the locals table innermost-first, so a shadowing var
// always wins over one declared in an enclosing scope.
func (fc *fcomp) lookupLocal(name string) (uint8, bool) {
	for i := len(fc.locals) - 1; i >= 0; i-- {
		if fc.locals[i].name == name {
			return fc.locals[i].reg, true
		}
	}
	return 0, false
}

// compile lowers one AST node. dst is the register the caller wants the
// result in, or -1 to let compile choose one. numRets constrains how many
// values the form must produce; forms that produce none (var, def, set, do,
// while, return) reject a nonzero numRets.
func (fc *fcomp) compile(n ast.Node, dst, numRets int) (uint8, error) {
	switch v := n.(type) {
	case *ast.Number:
		return fc.compileNumber(v, dst)
	case *ast.String:
		return fc.compileString(v, dst)
	case *ast.Atom:
		return fc.compileAtom(v, dst)
	case *ast.Array:
		return fc.compileArray(v, dst, numRets)
	case *ast.Table:
		return fc.compileTable(v, dst, numRets)
	case *ast.List:
		return fc.compileList(v, dst, numRets)
	default:
		return 0, newError("unknown AST node type %T", n)
	}
}

func (fc *fcomp) compileNumber(n *ast.Number, dst int) (uint8, error) {
	d, err := fc.regOrNext(dst)
	if err != nil {
		return 0, err
	}
	if i := int16(n.Value); float64(i) == n.Value {
		fc.b.LoadInt(d, i)
	} else {
		fc.b.LoadConst(d, machine.Number(n.Value))
	}
	return d, nil
}

func (fc *fcomp) compileString(n *ast.String, dst int) (uint8, error) {
	d, err := fc.regOrNext(dst)
	if err != nil {
		return 0, err
	}
	fc.b.LoadConst(d, fc.vm.Heap.NewString(n.Value))
	return d, nil
}

// compileAtom resolves a bare identifier: _ENV and the true/false literals
// are reserved and always resolve the same way regardless of scope, then a
// local register when one is bound by an enclosing var, otherwise a lookup
// in the environment table.
func (fc *fcomp) compileAtom(a *ast.Atom, dst int) (uint8, error) {
	if a.Name == "_ENV" {
		d, err := fc.regOrNext(dst)
		if err != nil {
			return 0, err
		}
		fc.b.LoadEnv(d)
		return d, nil
	}
	if a.Name == "true" || a.Name == "false" {
		d, err := fc.regOrNext(dst)
		if err != nil {
			return 0, err
		}
		fc.b.LoadBool(d, a.Name == "true")
		return d, nil
	}
	if reg, ok := fc.lookupLocal(a.Name); ok {
		if dst < 0 {
			return reg, nil
		}
		d := uint8(dst)
		if d != reg {
			fc.b.Copy(d, reg)
		}
		return d, nil
	}
	d, err := fc.regOrNext(dst)
	if err != nil {
		return 0, err
	}
	envReg, err := fc.regOrNext(-1)
	if err != nil {
		return 0, err
	}
	fc.b.LoadEnv(envReg)
	keyReg, err := fc.regOrNext(-1)
	if err != nil {
		return 0, err
	}
	fc.b.LoadConst(keyReg, fc.vm.Heap.NewString(a.Name))
	fc.b.Get(d, envReg, keyReg)
	return d, nil
}

func (fc *fcomp) compileArray(n *ast.Array, dst, numRets int) (uint8, error) {
	if numRets < 1 {
		return 0, newError("array literal must be used in a value context")
	}
	d, err := fc.regOrNext(dst)
	if err != nil {
		return 0, err
	}
	fc.b.ListNew(d)
	for _, e := range n.Elems {
		r, err := fc.compile(e, -1, 1)
		if err != nil {
			return 0, err
		}
		fc.b.ListAppend(d, r)
	}
	return d, nil
}

func (fc *fcomp) compileTable(n *ast.Table, dst, numRets int) (uint8, error) {
	if numRets < 1 {
		return 0, newError("table literal must be used in a value context")
	}
	d, err := fc.regOrNext(dst)
	if err != nil {
		return 0, err
	}
	fc.b.TableNew(d)
	for _, e := range n.Entries {
		k, err := fc.compile(e.Key, -1, 1)
		if err != nil {
			return 0, err
		}
		v, err := fc.compile(e.Value, -1, 1)
		if err != nil {
			return 0, err
		}
		fc.b.TableDef(d, k, v)
	}
	return d, nil
}

func (fc *fcomp) compileList(n *ast.List, dst, numRets int) (uint8, error) {
	if len(n.Elems) == 0 {
		return 0, newError("list must not be empty")
	}
	name, ok := n.Head()
	if !ok {
		// head is not an atom naming a special form: a computed callee, e.g.
		// ((get tbl "f") x), falls through to an ordinary gathered call.
		return fc.compileCall(n, dst, numRets)
	}
	args := n.Elems[1:]
	switch name {
	case "var":
		return fc.compileVar(args, numRets)
	case "def":
		return fc.compileDef(args, numRets)
	case "set":
		return fc.compileSet(args, numRets)
	case "get":
		return fc.compileGet(args, dst)
	case "do":
		return fc.compileDo(args, numRets)
	case "if":
		return fc.compileIf(args, dst, numRets)
	case "while":
		return fc.compileWhile(args, numRets)
	case "fn":
		return fc.compileFn(args, dst)
	case "return":
		return fc.compileReturn(args, numRets)
	default:
		return fc.compileCall(n, dst, numRets)
	}
}

func (fc *fcomp) compileVar(args []ast.Node, numRets int) (uint8, error) {
	if numRets != 0 {
		return 0, newError("var does not produce a value")
	}
	if len(args) < 1 || len(args) > 2 {
		return 0, newError("var: expected 1 or 2 arguments, got %d", len(args))
	}
	name, ok := args[0].(*ast.Atom)
	if !ok {
		return 0, newError("var: first argument must be a name")
	}
	var value ast.Node
	if len(args) == 2 {
		value = args[1]
	}

	if fc.scope == 0 {
		envReg, err := fc.regOrNext(-1)
		if err != nil {
			return 0, err
		}
		fc.b.LoadEnv(envReg)
		keyReg, err := fc.regOrNext(-1)
		if err != nil {
			return 0, err
		}
		fc.b.LoadConst(keyReg, fc.vm.Heap.NewString(name.Name))
		valReg, err := fc.compileVarInit(value)
		if err != nil {
			return 0, err
		}
		fc.b.Def(envReg, keyReg, valReg)
		return 0, nil
	}

	r, err := fc.regOrNext(-1)
	if err != nil {
		return 0, err
	}
	if value != nil {
		if _, err := fc.compile(value, int(r), 1); err != nil {
			return 0, err
		}
	} else {
		fc.b.LoadNil(r)
	}
	fc.locals = append(fc.locals, localDecl{scope: fc.scope, name: name.Name, reg: r})
	return 0, nil
}

func (fc *fcomp) compileVarInit(value ast.Node) (uint8, error) {
	if value == nil {
		r, err := fc.regOrNext(-1)
		if err != nil {
			return 0, err
		}
		fc.b.LoadNil(r)
		return r, nil
	}
	return fc.compile(value, -1, 1)
}

func (fc *fcomp) compileDef(args []ast.Node, numRets int) (uint8, error) {
	if numRets != 0 {
		return 0, newError("def does not produce a value")
	}
	if len(args) != 3 {
		return 0, newError("def: expected 3 arguments, got %d", len(args))
	}
	objReg, err := fc.compile(args[0], -1, 1)
	if err != nil {
		return 0, err
	}
	keyReg, err := fc.compile(args[1], -1, 1)
	if err != nil {
		return 0, err
	}
	valReg, err := fc.compile(args[2], -1, 1)
	if err != nil {
		return 0, err
	}
	fc.b.Def(objReg, keyReg, valReg)
	return 0, nil
}

func (fc *fcomp) compileSet(args []ast.Node, numRets int) (uint8, error) {
	if numRets != 0 {
		return 0, newError("set does not produce a value")
	}
	switch len(args) {
	case 2:
		name, ok := args[0].(*ast.Atom)
		if !ok {
			return 0, newError("set: first argument must be a name")
		}
		if r, ok := fc.lookupLocal(name.Name); ok {
			if _, err := fc.compile(args[1], int(r), 1); err != nil {
				return 0, err
			}
			return 0, nil
		}
		envReg, err := fc.regOrNext(-1)
		if err != nil {
			return 0, err
		}
		fc.b.LoadEnv(envReg)
		keyReg, err := fc.regOrNext(-1)
		if err != nil {
			return 0, err
		}
		fc.b.LoadConst(keyReg, fc.vm.Heap.NewString(name.Name))
		valReg, err := fc.compile(args[1], -1, 1)
		if err != nil {
			return 0, err
		}
		fc.b.Set(envReg, keyReg, valReg)
		return 0, nil
	case 3:
		objReg, err := fc.compile(args[0], -1, 1)
		if err != nil {
			return 0, err
		}
		keyReg, err := fc.compile(args[1], -1, 1)
		if err != nil {
			return 0, err
		}
		valReg, err := fc.compile(args[2], -1, 1)
		if err != nil {
			return 0, err
		}
		fc.b.Set(objReg, keyReg, valReg)
		return 0, nil
	default:
		return 0, newError("set: expected 2 or 3 arguments, got %d", len(args))
	}
}

func (fc *fcomp) compileGet(args []ast.Node, dst int) (uint8, error) {
	if len(args) != 2 {
		return 0, newError("get: expected 2 arguments, got %d", len(args))
	}
	objReg, err := fc.compile(args[0], -1, 1)
	if err != nil {
		return 0, err
	}
	keyReg, err := fc.compile(args[1], -1, 1)
	if err != nil {
		return 0, err
	}
	d, err := fc.regOrNext(dst)
	if err != nil {
		return 0, err
	}
	fc.b.Get(d, objReg, keyReg)
	return d, nil
}

func (fc *fcomp) compileDo(args []ast.Node, numRets int) (uint8, error) {
	if numRets != 0 {
		return 0, newError("do does not produce a value")
	}
	fc.pushScope()
	for _, stmt := range args {
		if _, err := fc.compile(stmt, -1, 0); err != nil {
			fc.popScope()
			return 0, err
		}
	}
	fc.popScope()
	return 0, nil
}

// compileIf lowers to the teacher's structured two-block shape: an outer
// block whose end is the join point, and an inner block whose end is the
// start of the else branch (or the join point when there is none).
func (fc *fcomp) compileIf(args []ast.Node, dst, numRets int) (uint8, error) {
	if len(args) < 2 || len(args) > 3 {
		return 0, newError("if: expected 2 or 3 arguments, got %d", len(args))
	}
	var d uint8
	if numRets == 1 {
		var err error
		d, err = fc.regOrNext(dst)
		if err != nil {
			return 0, err
		}
	}

	fc.b.BeginBlock() // outer: end = join point
	fc.b.BeginBlock() // inner: end = start of else (or join point)

	cond, err := fc.compile(args[0], -1, 1)
	if err != nil {
		return 0, err
	}
	fc.b.ExitBlockIfFalse(cond, 0)

	if numRets == 1 {
		if _, err := fc.compile(args[1], int(d), 1); err != nil {
			return 0, err
		}
	} else {
		if _, err := fc.compile(args[1], -1, 0); err != nil {
			return 0, err
		}
	}
	fc.b.ExitBlock(1)
	fc.b.EndBlock() // inner ends here: else starts at this PC

	if len(args) == 3 {
		if numRets == 1 {
			if _, err := fc.compile(args[2], int(d), 1); err != nil {
				return 0, err
			}
		} else {
			if _, err := fc.compile(args[2], -1, 0); err != nil {
				return 0, err
			}
		}
	} else if numRets == 1 {
		return 0, newError("if: producing a value requires an else branch")
	}
	fc.b.EndBlock() // outer ends here: join point

	return d, nil
}

func (fc *fcomp) compileWhile(args []ast.Node, numRets int) (uint8, error) {
	if numRets != 0 {
		return 0, newError("while does not produce a value")
	}
	if len(args) != 2 {
		return 0, newError("while: expected 2 arguments, got %d", len(args))
	}
	fc.b.BeginBlock()
	cond, err := fc.compile(args[0], -1, 1)
	if err != nil {
		return 0, err
	}
	fc.b.ExitBlockIfFalse(cond, 0)
	if _, err := fc.compile(args[1], -1, 0); err != nil {
		return 0, err
	}
	fc.b.RepeatBlock(0)
	fc.b.EndBlock()
	return 0, nil
}

// compileFn compiles a nested function body with its own register file and
// scope, registers the resulting prototype with the VM, and loads a Func
// value referencing it.
func (fc *fcomp) compileFn(args []ast.Node, dst int) (uint8, error) {
	if len(args) != 2 {
		return 0, newError("fn: expected 2 arguments, got %d", len(args))
	}
	params, ok := args[0].(*ast.Array)
	if !ok {
		return 0, newError("fn: first argument must be a parameter array")
	}

	sub := newFcomp(fc.vm)
	sub.scope = 1
	names := make(map[string]bool, len(params.Elems))
	for _, p := range params.Elems {
		a, ok := p.(*ast.Atom)
		if !ok {
			return 0, newError("fn: parameter must be a name")
		}
		if names[a.Name] {
			return 0, newError("fn: duplicate parameter %q", a.Name)
		}
		names[a.Name] = true
		r, err := sub.regOrNext(-1)
		if err != nil {
			return 0, err
		}
		sub.locals = append(sub.locals, localDecl{scope: 1, name: a.Name, reg: r})
	}
	sub.numParams = len(params.Elems)

	if _, err := sub.compile(args[1], -1, 0); err != nil {
		return 0, err
	}
	code, err := sub.b.Build()
	if err != nil {
		return 0, newError("fn: %s", err)
	}
	proto := &machine.FuncProto{
		Code:      code.Instrs,
		Constants: code.Consts,
		NumParams: sub.numParams,
		StackSize: sub.nextReg,
	}
	idx := fc.vm.AddAnonymousFunc(proto)

	d, err := fc.regOrNext(dst)
	if err != nil {
		return 0, err
	}
	fc.b.LoadConst(d, machine.Func(idx))
	return d, nil
}

// compileReturn evaluates its arguments into consecutive fresh registers
// (all of them are claimed before any argument is compiled, so temporaries
// of one argument never land between them) and emits a single Ret.
func (fc *fcomp) compileReturn(args []ast.Node, numRets int) (uint8, error) {
	if numRets != 0 {
		return 0, newError("return does not produce a value")
	}
	first := uint8(fc.nextReg)
	regs := make([]uint8, len(args))
	for i := range args {
		r, err := fc.regOrNext(-1)
		if err != nil {
			return 0, err
		}
		regs[i] = r
	}
	for i, a := range args {
		if _, err := fc.compile(a, int(regs[i]), 1); err != nil {
			return 0, err
		}
	}
	fc.b.Ret(first, len(args))
	return 0, nil
}

// compileCall lowers an ordinary function application, fusing the two-arg
// arithmetic and comparison operators into a single instruction and falling
// back to a gathered call otherwise.
func (fc *fcomp) compileCall(n *ast.List, dst, numRets int) (uint8, error) {
	head, isAtom := n.Head()
	args := n.Elems[1:]

	if isAtom {
		if op, ok := opMap[head]; ok && len(args) == 2 {
			s1, err := fc.compile(args[0], -1, 1)
			if err != nil {
				return 0, err
			}
			s2, err := fc.compile(args[1], -1, 1)
			if err != nil {
				return 0, err
			}
			d, err := fc.regOrNext(dst)
			if err != nil {
				return 0, err
			}
			fc.emitOp(op, d, s1, s2)
			return d, nil
		}
	}

	fnReg, err := fc.compile(n.Elems[0], -1, 1)
	if err != nil {
		return 0, err
	}
	argRegs := make([]uint8, len(args))
	for i, a := range args {
		r, err := fc.compile(a, -1, 1)
		if err != nil {
			return 0, err
		}
		argRegs[i] = r
	}
	if numRets >= 128 {
		return 0, newError("call requesting %d return values exceeds the limit of 128", numRets)
	}
	d, err := fc.regOrNext(dst)
	if err != nil {
		return 0, err
	}
	fc.b.GatherCall(fnReg, d, numRets, argRegs)
	return d, nil
}

func (fc *fcomp) emitOp(op bytecode.Op, dst, s1, s2 uint8) {
	switch op {
	case bytecode.Add:
		fc.b.Add(dst, s1, s2)
	case bytecode.Sub:
		fc.b.Sub(dst, s1, s2)
	case bytecode.Mul:
		fc.b.Mul(dst, s1, s2)
	case bytecode.Div:
		fc.b.Div(dst, s1, s2)
	case bytecode.CmpEq:
		fc.b.CmpEq(dst, s1, s2)
	case bytecode.CmpLe:
		fc.b.CmpLe(dst, s1, s2)
	case bytecode.CmpLt:
		fc.b.CmpLt(dst, s1, s2)
	case bytecode.CmpGe:
		fc.b.CmpGe(dst, s1, s2)
	case bytecode.CmpGt:
		fc.b.CmpGt(dst, s1, s2)
	}
}
