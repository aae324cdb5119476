package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/trafficlens/dfilter/ast"
	"github.com/trafficlens/dfilter/field"
	"github.com/trafficlens/dfilter/op"
)

// jump builds a conditional branch with an already resolved target.
func jump(code op.Code, target int) *Instruction {
	t := newInsnNumber()
	t.Num = target
	return &Instruction{Op: code, Arg1: t}
}

func number(insns []*Instruction) []*Instruction {
	for id, insn := range insns {
		insn.ID = id
	}
	return insns
}

func TestOptimizeBranchToNextIsNoop(t *testing.T) {
	insns := number([]*Instruction{
		jump(op.IfFalseGoto, 1),
		{Op: op.Return},
	})
	optimize(insns)
	require.Equal(t, op.NoOp, insns[0].Op)
	require.Nil(t, insns[0].Arg1)
}

func TestOptimizeSkipsOppositeBranch(t *testing.T) {
	// If the branch at 0 is not taken when control reaches its target, the
	// opposite branch there cannot be taken either.
	insns := number([]*Instruction{
		jump(op.IfFalseGoto, 2),
		{Op: op.SetClear},
		jump(op.IfTrueGoto, 4),
		{Op: op.SetClear},
		{Op: op.Return},
	})
	optimize(insns)
	require.Equal(t, 3, insns[0].Arg1.Num)
	require.Equal(t, 4, insns[2].Arg1.Num)
}

func TestOptimizeSplicesBranchChain(t *testing.T) {
	// A branch whose target is the same kind of branch takes that branch's
	// target directly.
	insns := number([]*Instruction{
		jump(op.IfFalseGoto, 2),
		{Op: op.SetClear},
		jump(op.IfFalseGoto, 4),
		{Op: op.SetClear},
		{Op: op.Return},
	})
	optimize(insns)
	require.Equal(t, 4, insns[0].Arg1.Num)
}

func TestOptimizeSkipsDuplicateRead(t *testing.T) {
	r := field.NewRegistry()
	info := r.Register("tcp.port", "Port")

	// The branch at 1 follows a load into reg#0 and targets another load
	// into reg#0: the value is already there, so the branch lands past it.
	insns := number([]*Instruction{
		{Op: op.ReadTree, Arg1: newField(info, false), Arg2: newRegister(0)},
		jump(op.IfFalseGoto, 3),
		{Op: op.AnyEq, Arg1: newRegister(0), Arg2: newLiteral(80)},
		{Op: op.ReadTree, Arg1: newField(info, false), Arg2: newRegister(0)},
		{Op: op.Return},
	})
	optimize(insns)
	require.Equal(t, 4, insns[1].Arg1.Num)
}

func TestOptimizeLeavesDistinctRegistersAlone(t *testing.T) {
	r := field.NewRegistry()
	port := r.Register("tcp.port", "Port")
	flags := r.Register("tcp.flags", "Flags")

	insns := number([]*Instruction{
		{Op: op.ReadTree, Arg1: newField(port, false), Arg2: newRegister(0)},
		jump(op.IfFalseGoto, 3),
		{Op: op.AnyEq, Arg1: newRegister(0), Arg2: newLiteral(80)},
		{Op: op.ReadTree, Arg1: newField(flags, false), Arg2: newRegister(1)},
		{Op: op.Return},
	})
	optimize(insns)
	require.Equal(t, 3, insns[1].Arg1.Num)
}

func TestOptimizeIsIdempotent(t *testing.T) {
	f := newTestFields()
	node := &ast.Test{
		Op: ast.TestOr,
		X: &ast.Test{
			Op: ast.TestAnd,
			X: &ast.Test{
				Op: ast.TestAnyEq,
				X:  &ast.Field{Info: f.addr},
				Y:  &ast.Literal{Value: "10.0.0.1"},
			},
			Y: &ast.Test{
				Op: ast.TestGt,
				X:  &ast.Field{Info: f.port},
				Y:  &ast.Literal{Value: 1024},
			},
		},
		Y: &ast.Test{
			Op: ast.TestIn,
			X:  &ast.Field{Info: f.port},
			Y: &ast.Set{Items: []ast.SetItem{
				{X: &ast.Literal{Value: 80}},
				{X: &ast.Literal{Value: 443}},
			}},
		},
	}
	program, err := Compile(node, f.registry, WithOptimization(false))
	require.Nil(t, err)

	optimize(program.insns)
	once := program.String()
	optimize(program.insns)
	require.Equal(t, once, program.String())
	require.Nil(t, program.Validate())
}
