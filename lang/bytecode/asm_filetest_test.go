package bytecode_test

import (
	"flag"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/mna/slang/internal/filetest"
	"github.com/mna/slang/lang/bytecode"
	"github.com/stretchr/testify/require"
)

var testUpdateAsmTests = flag.Bool("test.update-asm-tests", false, "If set, replace expected disassembly golden results with actual results.")

// TestDisassembleGolden round-trips each assembly fixture under
// testdata/asm through Assemble then Disassemble, golden-diffing the
// result against testdata/asm_out. It exists to exercise the disassembler
// on programs built independently of any in-process Builder calls.
func TestDisassembleGolden(t *testing.T) {
	srcDir, resultDir := filepath.Join("testdata", "asm"), filepath.Join("testdata", "asm_out")

	formatFloat := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	parseFloat := func(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

	for _, fi := range filetest.SourceFiles(t, srcDir, ".in") {
		t.Run(fi.Name(), func(t *testing.T) {
			text, err := os.ReadFile(filepath.Join(srcDir, fi.Name()))
			require.NoError(t, err)

			code, err := bytecode.Assemble(string(text), parseFloat)
			require.NoError(t, err)

			out := bytecode.Disassemble(code, formatFloat)
			filetest.DiffOutput(t, fi, out, resultDir, testUpdateAsmTests)
		})
	}
}
