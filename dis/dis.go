// Package dis renders compiled filter programs as human-readable text.
// It works with the opcodes defined in the `op` package and the Program
// type from the `compiler` package.
package dis

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/trafficlens/dfilter/compiler"
	"github.com/trafficlens/dfilter/op"
)

// Instruction represents a single decoded instruction and its operands.
type Instruction struct {
	ID       int
	Opcode   op.Code
	Name     string
	Operands []string
}

// Disassemble returns a parsed representation of the given program.
func Disassemble(program *compiler.Program) []Instruction {
	instructions := make([]Instruction, 0, program.InstructionCount())
	for i := 0; i < program.InstructionCount(); i++ {
		insn := program.Instruction(i)
		var operands []string
		for _, arg := range insn.Args() {
			operands = append(operands, arg.String())
		}
		instructions = append(instructions, Instruction{
			ID:       insn.ID,
			Opcode:   insn.Op,
			Name:     insn.Op.String(),
			Operands: operands,
		})
	}
	return instructions
}

var (
	headerColor  = color.New(color.FgHiBlack)
	opcodeColor  = color.New(color.Bold)
	operandColor = color.New(color.FgCyan)
)

// Print writes a string representation of the given instructions to the
// given writer, one instruction per line.
func Print(instructions []Instruction, writer io.Writer) {
	fmt.Fprintln(writer, headerColor.Sprint("ID    OPCODE           OPERANDS"))
	for _, instr := range instructions {
		line := fmt.Sprintf("%05d %s %s",
			instr.ID,
			opcodeColor.Sprintf("%-16s", instr.Name),
			operandColor.Sprint(strings.Join(instr.Operands, ", ")))
		fmt.Fprintln(writer, strings.TrimRight(line, " "))
	}
}

// Fprint disassembles the program and prints it to the given writer.
func Fprint(program *compiler.Program, writer io.Writer) {
	Print(Disassemble(program), writer)
}
