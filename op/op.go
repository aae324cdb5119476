// Package op defines opcodes used by the dfilter compiler and virtual machine.
package op

// Code is an integer opcode that indicates an operation to execute.
type Code uint16

const (
	Invalid Code = 0

	// Control flow
	IfTrueGoto  Code = 1
	IfFalseGoto Code = 2
	Not         Code = 3
	Return      Code = 4
	NoOp        Code = 5

	// Existence tests
	CheckExists  Code = 10
	CheckExistsR Code = 11
	NotAllZero   Code = 12

	// Loads. The R variants carry a byte-range qualifier.
	ReadTree       Code = 20
	ReadTreeR      Code = 21
	ReadReference  Code = 22
	ReadReferenceR Code = 23
	MakeSlice      Code = 24
	Length         Code = 25
	ValueString    Code = 26

	// Relations. Each comparison has an ALL and an ANY variant which are
	// adjacent in the numbering (ANY == ALL + 1), so selecting for a match
	// mode is an index shift rather than a branch table.
	AllEq       Code = 30
	AnyEq       Code = 31
	AllNe       Code = 32
	AnyNe       Code = 33
	AllGt       Code = 34
	AnyGt       Code = 35
	AllGe       Code = 36
	AnyGe       Code = 37
	AllLt       Code = 38
	AnyLt       Code = 39
	AllLe       Code = 40
	AnyLe       Code = 41
	AllContains Code = 42
	AnyContains Code = 43
	AllMatches  Code = 44
	AnyMatches  Code = 45
	SetAllIn    Code = 46
	SetAnyIn    Code = 47
	SetAllNotIn Code = 48
	SetAnyNotIn Code = 49

	// Set construction
	SetAdd      Code = 60
	SetAddRange Code = 61
	SetClear    Code = 62

	// Function call protocol
	StackPush    Code = 70
	StackPop     Code = 71
	CallFunction Code = 72

	// Arithmetic
	UnaryMinus Code = 80
	Add        Code = 81
	Subtract   Code = 82
	Multiply   Code = 83
	Divide     Code = 84
	Modulo     Code = 85
	BitwiseAnd Code = 86
)

// Info contains information about an opcode.
type Info struct {
	Code         Code
	Name         string
	OperandCount int
}

var infos = make([]Info, 256)

func init() {
	type opInfo struct {
		op    Code
		name  string
		count int
	}
	ops := []opInfo{
		{IfTrueGoto, "IF_TRUE_GOTO", 1},
		{IfFalseGoto, "IF_FALSE_GOTO", 1},
		{Not, "NOT", 0},
		{Return, "RETURN", 1},
		{NoOp, "NO_OP", 0},
		{CheckExists, "CHECK_EXISTS", 1},
		{CheckExistsR, "CHECK_EXISTS_R", 2},
		{NotAllZero, "NOT_ALL_ZERO", 1},
		{ReadTree, "READ_TREE", 2},
		{ReadTreeR, "READ_TREE_R", 3},
		{ReadReference, "READ_REFERENCE", 2},
		{ReadReferenceR, "READ_REFERENCE_R", 3},
		{MakeSlice, "SLICE", 3},
		{Length, "LENGTH", 2},
		{ValueString, "VALUE_STRING", 3},
		{AllEq, "ALL_EQ", 2},
		{AnyEq, "ANY_EQ", 2},
		{AllNe, "ALL_NE", 2},
		{AnyNe, "ANY_NE", 2},
		{AllGt, "ALL_GT", 2},
		{AnyGt, "ANY_GT", 2},
		{AllGe, "ALL_GE", 2},
		{AnyGe, "ANY_GE", 2},
		{AllLt, "ALL_LT", 2},
		{AnyLt, "ANY_LT", 2},
		{AllLe, "ALL_LE", 2},
		{AnyLe, "ANY_LE", 2},
		{AllContains, "ALL_CONTAINS", 2},
		{AnyContains, "ANY_CONTAINS", 2},
		{AllMatches, "ALL_MATCHES", 2},
		{AnyMatches, "ANY_MATCHES", 2},
		{SetAllIn, "SET_ALL_IN", 1},
		{SetAnyIn, "SET_ANY_IN", 1},
		{SetAllNotIn, "SET_ALL_NOT_IN", 1},
		{SetAnyNotIn, "SET_ANY_NOT_IN", 1},
		{SetAdd, "SET_ADD", 1},
		{SetAddRange, "SET_ADD_RANGE", 2},
		{SetClear, "SET_CLEAR", 0},
		{StackPush, "STACK_PUSH", 1},
		{StackPop, "STACK_POP", 1},
		{CallFunction, "CALL_FUNCTION", 3},
		{UnaryMinus, "UNARY_MINUS", 2},
		{Add, "ADD", 3},
		{Subtract, "SUBTRACT", 3},
		{Multiply, "MULTIPLY", 3},
		{Divide, "DIVIDE", 3},
		{Modulo, "MODULO", 3},
		{BitwiseAnd, "BITWISE_AND", 3},
	}
	for _, o := range ops {
		infos[o.op] = Info{
			Name:         o.name,
			Code:         o.op,
			OperandCount: o.count,
		}
	}
}

// GetInfo returns information about the given opcode. Codes with no
// registered entry, including codes beyond the table, return the zero Info.
func GetInfo(op Code) Info {
	if int(op) >= len(infos) {
		return Info{}
	}
	return infos[op]
}

// String returns the canonical name of the opcode, or "INVALID" for codes
// with no registered entry.
func (c Code) String() string {
	if name := GetInfo(c).Name; name != "" {
		return name
	}
	return "INVALID"
}

// IsBranch returns true if the opcode is a conditional branch.
func (c Code) IsBranch() bool {
	return c == IfTrueGoto || c == IfFalseGoto
}
