package dis

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
	"github.com/trafficlens/dfilter/ast"
	"github.com/trafficlens/dfilter/compiler"
	"github.com/trafficlens/dfilter/field"
	"github.com/trafficlens/dfilter/op"
)

func TestDisassembly(t *testing.T) {
	// Disable colors for consistent test output
	restore := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = restore }()

	registry := field.NewRegistry()
	port := registry.Register("tcp.port", "Source or Destination Port")

	program, err := compiler.Compile(&ast.Test{
		Op: ast.TestAnyEq,
		X:  &ast.Field{Info: port},
		Y:  &ast.Literal{Value: 80},
	}, registry, compiler.WithOptimization(false))
	require.Nil(t, err)

	instructions := Disassemble(program)
	require.Len(t, instructions, 4)
	require.Equal(t, op.ReadTree, instructions[0].Opcode)
	require.Equal(t, []string{"tcp.port", "reg#0"}, instructions[0].Operands)

	var buf bytes.Buffer
	Print(instructions, &buf)

	expected := strings.TrimSpace(`
ID    OPCODE           OPERANDS
00000 READ_TREE        tcp.port, reg#0
00001 IF_FALSE_GOTO    insn#3
00002 ANY_EQ           reg#0, 80
00003 RETURN
`)
	require.Equal(t, expected+"\n", buf.String())
}

func TestFprint(t *testing.T) {
	restore := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = restore }()

	registry := field.NewRegistry()
	flags := registry.Register("tcp.flags", "Flags")

	program, err := compiler.Compile(&ast.Field{Info: flags}, registry)
	require.Nil(t, err)

	var buf bytes.Buffer
	Fprint(program, &buf)
	require.Contains(t, buf.String(), "CHECK_EXISTS     tcp.flags")
}
