package bytecode_test

import (
	"strconv"
	"strings"
	"testing"

	"github.com/mna/slang/lang/bytecode"
	"github.com/stretchr/testify/require"
)

func TestDisassembleArithmetic(t *testing.T) {
	b := bytecode.NewBuilder[float64]()
	b.LoadConst(0, 1.5)
	b.LoadInt(1, 2)
	b.Add(2, 0, 1)
	b.Ret(2, 1)
	code, err := b.Build()
	require.NoError(t, err)

	out := bytecode.Disassemble(code, func(v float64) string {
		return strconv.FormatFloat(v, 'g', -1, 64)
	})
	require.Contains(t, out, "constants:")
	require.Contains(t, out, "1.5")
	require.Contains(t, out, "load_const r0, k0")
	require.Contains(t, out, "load_int r1, 2")
	require.Contains(t, out, "add r2, r0, r1")
	require.Contains(t, out, "ret r2, 1")
}

func TestAssembleRoundTripSimple(t *testing.T) {
	text := `constants:
  0: 1.5
code:
  0000: load_const r0, k0
  0001: load_int r1, 2
  0002: add r2, r0, r1
  0003: ret r2, 1
`
	code, err := bytecode.Assemble(text, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
	require.NoError(t, err)
	require.Len(t, code.Instrs, 4)
	require.Equal(t, []float64{1.5}, code.Consts)

	op, c1, u := code.Instrs[0].DecodeAU16()
	require.Equal(t, bytecode.LoadConst, op)
	require.Equal(t, uint8(0), c1)
	require.Equal(t, uint16(0), u)

	op3, c1b, c2b, c3b := code.Instrs[2].DecodeABC()
	require.Equal(t, bytecode.Add, op3)
	require.Equal(t, uint8(2), c1b)
	require.Equal(t, uint8(0), c2b)
	require.Equal(t, uint8(1), c3b)

	require.True(t, strings.HasPrefix(code.Instrs[3].Op().String(), "ret"))
}
