package compiler

import (
	"fmt"
	"regexp"

	"github.com/trafficlens/dfilter/ast"
	"github.com/trafficlens/dfilter/drange"
	"github.com/trafficlens/dfilter/field"
)

// ValueKind discriminates the operand variants an instruction can carry.
type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueRegister
	ValueInsnNumber
	ValueField
	ValueRange
	ValueLiteral
	ValueUint
	ValuePattern
	ValueFuncDef
)

func (k ValueKind) String() string {
	switch k {
	case ValueRegister:
		return "register"
	case ValueInsnNumber:
		return "insn-number"
	case ValueField:
		return "field"
	case ValueRange:
		return "range"
	case ValueLiteral:
		return "literal"
	case ValueUint:
		return "uint"
	case ValuePattern:
		return "pattern"
	case ValueFuncDef:
		return "funcdef"
	default:
		return "none"
	}
}

// Value is one instruction operand. A Value of kind ValueInsnNumber is a
// branch target: it starts out unresolved (Num == unresolvedTarget) and the
// same cell is shared between the instruction that references it and the
// pending-jump list, so resolving it patches the instruction in place.
// Every other kind is immutable once created.
type Value struct {
	Kind    ValueKind
	Reg     int
	Num     int
	Field   *field.Info
	Raw     bool
	Range   *drange.Range
	Literal any
	Count   uint
	Pattern *regexp.Regexp
	Func    *ast.FuncDef
}

// unresolvedTarget marks a branch target whose destination instruction has
// not been emitted yet. No valid instruction id is negative.
const unresolvedTarget = -1

func newRegister(reg int) *Value {
	return &Value{Kind: ValueRegister, Reg: reg}
}

func newInsnNumber() *Value {
	return &Value{Kind: ValueInsnNumber, Num: unresolvedTarget}
}

func newField(info *field.Info, raw bool) *Value {
	return &Value{Kind: ValueField, Field: info, Raw: raw}
}

func newRange(r *drange.Range) *Value {
	return &Value{Kind: ValueRange, Range: r}
}

func newLiteral(v any) *Value {
	return &Value{Kind: ValueLiteral, Literal: v}
}

func newUint(n uint) *Value {
	return &Value{Kind: ValueUint, Count: n}
}

func newPattern(re *regexp.Regexp) *Value {
	return &Value{Kind: ValuePattern, Pattern: re}
}

func newFuncDef(def *ast.FuncDef) *Value {
	return &Value{Kind: ValueFuncDef, Func: def}
}

// Resolved reports whether the operand needs no further patching. Operands
// that are not branch targets are always resolved.
func (v *Value) Resolved() bool {
	return v.Kind != ValueInsnNumber || v.Num != unresolvedTarget
}

func (v *Value) String() string {
	switch v.Kind {
	case ValueRegister:
		return fmt.Sprintf("reg#%d", v.Reg)
	case ValueInsnNumber:
		if v.Num == unresolvedTarget {
			return "insn#?"
		}
		return fmt.Sprintf("insn#%d", v.Num)
	case ValueField:
		if v.Raw {
			return "@" + v.Field.Name
		}
		return v.Field.Name
	case ValueRange:
		return v.Range.String()
	case ValueLiteral:
		if s, ok := v.Literal.(string); ok {
			return fmt.Sprintf("%q", s)
		}
		return fmt.Sprintf("%v", v.Literal)
	case ValueUint:
		return fmt.Sprintf("%d", v.Count)
	case ValuePattern:
		return fmt.Sprintf("/%s/", v.Pattern)
	case ValueFuncDef:
		return v.Func.Name + "()"
	default:
		return "<none>"
	}
}
