package bytecode

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// Disassemble renders code as human-readable text, one instruction per
// line, constants rendered with formatConst. It is the inverse of Assemble
// and exists so VM and compiler tests can be written and golden-diffed
// without depending on each other.
func Disassemble[V comparable](code *Code[V], formatConst func(V) string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "constants:\n")
	for i, c := range code.Consts {
		fmt.Fprintf(&sb, "  %d: %s\n", i, formatConst(c))
	}
	fmt.Fprintf(&sb, "code:\n")
	for pc := 0; pc < len(code.Instrs); pc++ {
		op := code.Instrs[pc].Op()
		fmt.Fprintf(&sb, "  %04d: ", pc)
		switch {
		case op == Jump:
			_, u := code.Instrs[pc].DecodeU16()
			fmt.Fprintf(&sb, "%s %d\n", op, u)
		case op == JumpTrue || op == JumpFalse:
			_, c1, u := code.Instrs[pc].DecodeAU16()
			fmt.Fprintf(&sb, "%s r%d, %d\n", op, c1, u)
		case op.IsTwoWordJump():
			_, s1, s2, _ := code.Instrs[pc].DecodeABC()
			_, _, target := code.Instrs[pc+1].DecodeAU16()
			fmt.Fprintf(&sb, "%s r%d, r%d, %d\n", op, s1, s2, target)
			pc++
			fmt.Fprintf(&sb, "  %04d: extra\n", pc)
		case op == LoadInt:
			_, c1, u := code.Instrs[pc].DecodeAU16()
			fmt.Fprintf(&sb, "load_int r%d, %d\n", c1, int16(u))
		case op == LoadConst:
			_, c1, u := code.Instrs[pc].DecodeAU16()
			fmt.Fprintf(&sb, "load_const r%d, k%d\n", c1, u)
		case op == PackedCall:
			_, fn, dst, numRets := code.Instrs[pc].DecodeABC()
			_, args, numArgs, _ := code.Instrs[pc+1].DecodeABC()
			fmt.Fprintf(&sb, "packed_call r%d, r%d, %d, r%d, %d\n", fn, dst, numRets, args, numArgs)
			pc++
			fmt.Fprintf(&sb, "  %04d: extra\n", pc)
		case op == GatherCall:
			_, fn, dst, numRets := code.Instrs[pc].DecodeABC()
			_, _, numArgs := code.Instrs[pc+1].DecodeAU16()
			regs := make([]string, numArgs)
			for i := 0; i < int(numArgs); i++ {
				_, _, r := code.Instrs[pc+2+i].DecodeAU16()
				regs[i] = fmt.Sprintf("r%d", r)
			}
			fmt.Fprintf(&sb, "gather_call r%d, r%d, %d, [%s]\n", fn, dst, numRets, strings.Join(regs, ", "))
			pc += 1 + int(numArgs)
			fmt.Fprintf(&sb, "  ...: extra x%d\n", numArgs+1)
		case op == Ret:
			_, rets, numRets, _ := code.Instrs[pc].DecodeABC()
			fmt.Fprintf(&sb, "%s r%d, %d\n", op, rets, numRets)
		default:
			_, c1, c2, c3 := code.Instrs[pc].DecodeABC()
			fmt.Fprintf(&sb, "%s r%d, r%d, r%d\n", op, c1, c2, c3)
		}
	}
	return sb.String()
}

// Assemble parses the text format produced by Disassemble back into a Code
// value, using parseConst to decode each constant line. It lets tests write
// bytecode as text without going through the compiler (the golden
// disassembly test of this package assembles its fixtures with it).
//
// Each line is assembled independently, so two-word instructions (the
// comparison jumps and the call shapes) cannot round-trip through this
// function: their EXTRA continuation word is never reconstructed from the
// "extra"/"..." placeholder lines Disassemble prints for them. Programs
// that need those shapes should be built with Builder directly.
func Assemble[V comparable](text string, parseConst func(string) (V, error)) (*Code[V], error) {
	b := NewBuilder[V]()
	sc := bufio.NewScanner(strings.NewReader(text))
	section := ""
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if trimmed == "constants:" || trimmed == "code:" {
			section = trimmed
			continue
		}
		switch section {
		case "constants:":
			parts := strings.SplitN(trimmed, ":", 2)
			if len(parts) != 2 {
				return nil, fmt.Errorf("bad constant line: %q", line)
			}
			v, err := parseConst(strings.TrimSpace(parts[1]))
			if err != nil {
				return nil, fmt.Errorf("bad constant line %q: %w", line, err)
			}
			b.Const(v)
		case "code:":
			if err := assembleLine(b, trimmed); err != nil {
				return nil, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return &Code[V]{Instrs: b.instrs, Consts: b.consts}, nil
}

func assembleLine[V comparable](b *Builder[V], line string) error {
	// strip leading "NNNN: " address label, if present
	if idx := strings.Index(line, ": "); idx > 0 {
		if _, err := strconv.Atoi(strings.TrimSpace(line[:idx])); err == nil {
			line = line[idx+2:]
		}
	}
	if line == "extra" || strings.HasPrefix(line, "...") {
		return nil // extras are re-derived from their parent instruction
	}

	fields := strings.Fields(strings.NewReplacer(",", " ").Replace(line))
	if len(fields) == 0 {
		return nil
	}
	name := fields[0]
	op, ok := LookupOp(name)
	if !ok {
		return fmt.Errorf("unknown opcode %q", name)
	}
	args := fields[1:]

	reg := func(s string) (uint8, error) {
		s = strings.TrimPrefix(s, "r")
		n, err := strconv.Atoi(s)
		return uint8(n), err
	}
	num := func(s string) (int, error) {
		s = strings.TrimPrefix(s, "k")
		return strconv.Atoi(s)
	}

	switch op.Shape() {
	case ShapeU16:
		n, err := num(args[0])
		if err != nil {
			return err
		}
		b.instrs = append(b.instrs, EncodeU16(op, uint16(n)))
	case ShapeAU16:
		r, err := reg(args[0])
		if err != nil {
			return err
		}
		n, err := num(args[1])
		if err != nil {
			return err
		}
		b.instrs = append(b.instrs, EncodeAU16(op, r, uint16(int16(n))))
	default:
		c := [3]uint8{}
		for i := 0; i < len(args) && i < 3; i++ {
			r, err := reg(args[i])
			if err != nil {
				return err
			}
			c[i] = r
		}
		b.instrs = append(b.instrs, EncodeABC(op, c[0], c[1], c[2]))
	}
	return nil
}
