package compiler

import (
	"fmt"
	"strings"

	"github.com/trafficlens/dfilter/op"
)

// Instruction is one executable step of a compiled program: a sequential id,
// an opcode and up to three operands. Instructions are immutable once
// appended, except that branch-target operands are patched exactly once and
// the peephole optimizer may rewrite a conditional branch into a no-op.
type Instruction struct {
	ID   int
	Op   op.Code
	Arg1 *Value
	Arg2 *Value
	Arg3 *Value
}

// Args returns the non-nil operands in order.
func (i *Instruction) Args() []*Value {
	var args []*Value
	for _, a := range []*Value{i.Arg1, i.Arg2, i.Arg3} {
		if a != nil {
			args = append(args, a)
		}
	}
	return args
}

// replaceNoOp rewrites the instruction into an unconditional fallthrough.
// Used by the optimizer for branches that jump to the next instruction.
func (i *Instruction) replaceNoOp() {
	i.Op = op.NoOp
	i.Arg1 = nil
	i.Arg2 = nil
	i.Arg3 = nil
}

func (i *Instruction) String() string {
	var out strings.Builder
	fmt.Fprintf(&out, "%05d %-16s", i.ID, i.Op)
	switch i.Op {
	case op.ReadTree, op.ReadReference:
		fmt.Fprintf(&out, "%s -> %s", i.Arg1, i.Arg2)
	case op.ReadTreeR, op.ReadReferenceR:
		fmt.Fprintf(&out, "%s%s -> %s", i.Arg1, i.Arg3, i.Arg2)
	case op.MakeSlice:
		fmt.Fprintf(&out, "%s%s -> %s", i.Arg1, i.Arg3, i.Arg2)
	case op.Length, op.UnaryMinus:
		fmt.Fprintf(&out, "%s -> %s", i.Arg1, i.Arg2)
	case op.ValueString:
		fmt.Fprintf(&out, "%s(%s) -> %s", i.Arg1, i.Arg2, i.Arg3)
	case op.Add, op.Subtract, op.Multiply, op.Divide, op.Modulo, op.BitwiseAnd:
		fmt.Fprintf(&out, "%s, %s -> %s", i.Arg1, i.Arg2, i.Arg3)
	case op.CallFunction:
		fmt.Fprintf(&out, "%s [%s args] -> %s", i.Arg1, i.Arg3, i.Arg2)
	default:
		args := i.Args()
		parts := make([]string, len(args))
		for n, a := range args {
			parts[n] = a.String()
		}
		out.WriteString(strings.Join(parts, ", "))
	}
	return strings.TrimRight(out.String(), " ")
}
