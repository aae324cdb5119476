package compiler

import (
	"regexp"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
	"github.com/trafficlens/dfilter/ast"
	"github.com/trafficlens/dfilter/op"
)

func TestMarshalRoundTrip(t *testing.T) {
	f := newTestFields()
	min := &ast.FuncDef{Name: "min", MinArgs: 1, MaxArgs: -1}

	// One filter exercising every operand kind: field, range, pattern,
	// literal, branch target, register, count and function.
	node := &ast.Test{
		Op: ast.TestOr,
		X: &ast.Test{
			Op: ast.TestAnd,
			X: &ast.Test{
				Op: ast.TestMatches,
				X:  &ast.Field{Info: f.payload, Range: bytesRange(0, 2)},
				Y:  &ast.Pattern{Re: regexp.MustCompile(`^GET`)},
			},
			Y: &ast.Test{
				Op: ast.TestIn,
				X:  &ast.Field{Info: f.port},
				Y: &ast.Set{Items: []ast.SetItem{
					{X: &ast.Literal{Value: 80}},
					{X: &ast.Literal{Value: 1000}, Y: &ast.Literal{Value: 2000}},
				}},
			},
		},
		Y: &ast.Function{
			Def:  min,
			Args: []ast.Node{&ast.Field{Info: f.port}, &ast.Field{Info: f.flags}},
		},
	}
	program, err := Compile(node, f.registry)
	require.Nil(t, err)

	data, err := Marshal(program)
	require.Nil(t, err)

	restored, err := Unmarshal(data, f.registry, map[string]*ast.FuncDef{"min": min})
	require.Nil(t, err)
	require.Equal(t, program.ID(), restored.ID())
	require.Equal(t, program.RegisterCount(), restored.RegisterCount())
	require.Equal(t, program.Fields(), restored.Fields())
	require.Equal(t, program.String(), restored.String())

	// Restored field operands are resolved against the registry, not copies.
	require.Same(t, f.payload, restored.Instruction(0).Arg1.Field)
}

func TestMarshalRoundTripReferences(t *testing.T) {
	f := newTestFields()
	node := &ast.Test{
		Op: ast.TestAnyEq,
		X:  &ast.Field{Info: f.addr},
		Y:  &ast.Reference{Info: f.addr},
	}
	program, err := Compile(node, f.registry)
	require.Nil(t, err)

	data, err := Marshal(program)
	require.Nil(t, err)
	restored, err := Unmarshal(data, f.registry, nil)
	require.Nil(t, err)
	require.Equal(t, program.References(), restored.References())
	require.Equal(t, program.RawReferences(), restored.RawReferences())
}

func TestUnmarshalUnknownFunction(t *testing.T) {
	f := newTestFields()
	min := &ast.FuncDef{Name: "min", MinArgs: 1, MaxArgs: -1}
	program, err := Compile(&ast.Function{
		Def:  min,
		Args: []ast.Node{&ast.Field{Info: f.port}},
	}, f.registry)
	require.Nil(t, err)

	data, err := Marshal(program)
	require.Nil(t, err)
	_, err = Unmarshal(data, f.registry, nil)
	require.NotNil(t, err)
	require.Contains(t, err.Error(), `unknown function "min"`)
}

func TestUnmarshalUnknownField(t *testing.T) {
	f := newTestFields()
	program, err := Compile(&ast.Field{Info: f.port}, f.registry)
	require.Nil(t, err)
	data, err := Marshal(program)
	require.Nil(t, err)

	// A registry that never registered the program's fields cannot resolve
	// the stored ids.
	_, err = Unmarshal(data, nil, nil)
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "unknown field id")
}

func TestUnmarshalGarbage(t *testing.T) {
	f := newTestFields()
	_, err := Unmarshal([]byte{0xff, 0x00, 0x12}, f.registry, nil)
	require.NotNil(t, err)
}

func TestUnmarshalUnknownOpcode(t *testing.T) {
	f := newTestFields()
	// Structurally valid CBOR whose first instruction carries an opcode
	// with no table entry must error, not panic.
	data, err := cbor.Marshal(programState{
		ID: "bogus",
		Insns: []insnState{
			{Op: 60000},
			{Op: uint16(op.Return)},
		},
	})
	require.Nil(t, err)
	require.NotPanics(t, func() {
		_, err = Unmarshal(data, f.registry, nil)
		require.NotNil(t, err)
		require.Contains(t, err.Error(), "unknown opcode 60000")
	})
}

func TestUnmarshalUnknownOperandKind(t *testing.T) {
	f := newTestFields()
	data, err := cbor.Marshal(programState{
		ID: "bogus",
		Insns: []insnState{
			{Op: uint16(op.Return), Args: []valueState{{Kind: 99}}},
		},
	})
	require.Nil(t, err)
	_, err = Unmarshal(data, f.registry, nil)
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "unsupported operand kind 99")
}
