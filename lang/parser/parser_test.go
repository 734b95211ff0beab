package parser_test

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mna/slang/internal/filetest"
	"github.com/mna/slang/lang/ast"
	"github.com/mna/slang/lang/parser"
	"github.com/stretchr/testify/require"
)

var testUpdateParserTests = flag.Bool("test.update-parser-tests", false, "If set, replace expected parser dump test results with actual results.")

func TestParseChunk(t *testing.T) {
	forms, err := parser.ParseChunk([]byte(`(var foo "bar") [1 2] {(foo 1)}`))
	require.NoError(t, err)
	require.Len(t, forms, 3)

	list, ok := forms[0].(*ast.List)
	require.True(t, ok)
	require.Len(t, list.Elems, 3)
	name, ok := list.Head()
	require.True(t, ok)
	require.Equal(t, "var", name)

	arr, ok := forms[1].(*ast.Array)
	require.True(t, ok)
	require.Len(t, arr.Elems, 2)

	tbl, ok := forms[2].(*ast.Table)
	require.True(t, ok)
	require.Len(t, tbl.Entries, 1)
}

func TestParseChunkError(t *testing.T) {
	_, err := parser.ParseChunk([]byte(`(var foo`))
	require.Error(t, err)
}

// TestParseDump golden-tests the AST dump (each top-level form's String(),
// one per line) of every source file under testdata/in against its
// corresponding file under testdata/out.
func TestParseDump(t *testing.T) {
	srcDir, resultDir := filepath.Join("testdata", "in"), filepath.Join("testdata", "out")

	for _, fi := range filetest.SourceFiles(t, srcDir, ".slang") {
		t.Run(fi.Name(), func(t *testing.T) {
			src, err := os.ReadFile(filepath.Join(srcDir, fi.Name()))
			require.NoError(t, err)

			forms, err := parser.ParseChunk(src)
			require.NoError(t, err)

			var sb strings.Builder
			for _, f := range forms {
				fmt.Fprintln(&sb, f.String())
			}
			filetest.DiffOutput(t, fi, sb.String(), resultDir, testUpdateParserTests)
		})
	}
}
