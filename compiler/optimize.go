package compiler

import "github.com/trafficlens/dfilter/op"

// optimize is a single forward pass over the finished instruction array
// that rewrites branch targets and converts useless branches to no-ops. It
// never removes or reorders instructions, so instruction ids stay stable,
// and running it again on its own output changes nothing.
//
// Contract: the duplicate field-read collapse assumes that two READ_TREE
// instructions targeting the same register always load the same field and
// therefore observe the same value. That holds because instructions are
// emitted in a single forward pass and never reordered; it would be unsafe
// under any restructuring that reorders emission.
func optimize(insns []*Instruction) {
	length := len(insns)
	var prev *Instruction
	for id := 0; id < length; id++ {
		insn := insns[id]
		if insn.Op.IsBranch() {
			arg1 := insn.Arg1
			target := arg1.Num

			// A branch to the very next instruction is a no-op.
			if target == id+1 {
				insn.replaceNoOp()
				prev = insn
				continue
			}

			// From this static viewpoint the branch at `id` was not taken,
			// so the opposite branch at the target cannot be taken either.
			revert := op.IfFalseGoto
			if insn.Op == op.IfFalseGoto {
				revert = op.IfTrueGoto
			}
			for {
				next := insns[target]
				if next.Op == revert {
					// Skip it; it is never taken from here.
					target++
					continue
				}
				if next.Op == op.ReadTree && prev != nil && prev.Op == op.ReadTree &&
					prev.Arg2.Reg == next.Arg2.Reg {
					// Same register means same field and same value; the
					// re-read is redundant.
					target++
					continue
				}
				if next.Op == insn.Op {
					// The target is the same kind of branch; splice through
					// to its target.
					target = next.Arg1.Num
					continue
				}
				arg1.Num = target
				break
			}
		}
		prev = insn
	}
}
