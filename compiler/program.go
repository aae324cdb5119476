package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/trafficlens/dfilter/op"
)

// Program is a compiled filter: the ordered instruction list, the number of
// registers it uses, and the set of field ids the program depends on. It is
// immutable after assembly and safe for concurrent execution by any number
// of interpreter instances.
type Program struct {
	id            string
	insns         []*Instruction
	registerCount int
	fields        []int
	references    map[int][]int
	rawReferences map[int][]int
}

// ID returns a unique identifier assigned to the program at assembly time.
func (p *Program) ID() string {
	return p.id
}

// InstructionCount returns the number of instructions in the program.
func (p *Program) InstructionCount() int {
	return len(p.insns)
}

// Instruction returns the instruction with the given id. Callers must treat
// it as read-only.
func (p *Program) Instruction(id int) *Instruction {
	return p.insns[id]
}

// RegisterCount returns the number of registers the program uses.
func (p *Program) RegisterCount() int {
	return p.registerCount
}

// Fields returns the ids of the fields the program depends on, in ascending
// order. The dissection engine uses this set to decide which fields must be
// materialized for a given record.
func (p *Program) Fields() []int {
	out := make([]int, len(p.fields))
	copy(out, p.fields)
	return out
}

// References returns, per canonical field id, the registers loaded by
// READ_REFERENCE instructions. The interpreter binds values from the
// referenced frame into these registers before execution.
func (p *Program) References() map[int][]int {
	return copyRefs(p.references)
}

// RawReferences is References for raw (undecoded) reference loads.
func (p *Program) RawReferences() map[int][]int {
	return copyRefs(p.rawReferences)
}

func copyRefs(refs map[int][]int) map[int][]int {
	out := make(map[int][]int, len(refs))
	for id, regs := range refs {
		regsCopy := make([]int, len(regs))
		copy(regsCopy, regs)
		out[id] = regsCopy
	}
	return out
}

func (p *Program) String() string {
	lines := make([]string, len(p.insns))
	for i, insn := range p.insns {
		lines[i] = insn.String()
	}
	return strings.Join(lines, "\n")
}

// Validate checks the structural invariants every assembled program must
// satisfy: all branch targets resolved and in range, operand counts
// matching each opcode's arity, and exactly one terminal return. The
// assembler runs this before handing a program out; a non-nil result is an
// internal contract breach, not a user error.
func (p *Program) Validate() error {
	var result error
	count := len(p.insns)
	if count == 0 {
		return fmt.Errorf("program is empty")
	}
	returns := 0
	for _, insn := range p.insns {
		args := insn.Args()
		switch insn.Op {
		case op.Return:
			returns++
			if len(args) > 1 {
				result = multierror.Append(result,
					fmt.Errorf("insn %d: return with %d operands", insn.ID, len(args)))
			}
		default:
			if want := op.GetInfo(insn.Op).OperandCount; len(args) != want {
				result = multierror.Append(result,
					fmt.Errorf("insn %d: %s with %d operands, want %d",
						insn.ID, insn.Op, len(args), want))
			}
		}
		for _, arg := range args {
			if arg.Kind != ValueInsnNumber {
				continue
			}
			if !arg.Resolved() {
				result = multierror.Append(result,
					fmt.Errorf("insn %d: unresolved branch target", insn.ID))
			} else if arg.Num < 0 || arg.Num >= count {
				result = multierror.Append(result,
					fmt.Errorf("insn %d: branch target %d out of range", insn.ID, arg.Num))
			}
		}
	}
	if returns != 1 {
		result = multierror.Append(result,
			fmt.Errorf("program has %d return instructions, want 1", returns))
	} else if p.insns[count-1].Op != op.Return {
		result = multierror.Append(result,
			fmt.Errorf("program does not end with a return"))
	}
	return result
}

func newProgram(insns []*Instruction, registerCount int, interesting map[int]struct{},
	references, rawReferences map[int][]int) *Program {
	fields := make([]int, 0, len(interesting))
	for id := range interesting {
		fields = append(fields, id)
	}
	sort.Ints(fields)
	return &Program{
		id:            uuid.Must(uuid.NewV4()).String(),
		insns:         insns,
		registerCount: registerCount,
		fields:        fields,
		references:    copyRefs(references),
		rawReferences: copyRefs(rawReferences),
	}
}
