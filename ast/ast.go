// Package ast defines the syntax-tree representation of display filter
// expressions. The upstream parser produces these nodes after validation;
// the compiler walks them and never mutates them, with one exception: a
// node's byte-range qualifier is stolen (detached) exactly once when the
// compiler consumes it.
package ast

// Node represents a portion of the syntax tree.
type Node interface {
	// String returns a human friendly representation of the Node. This
	// should be similar to the original filter text, but not necessarily
	// identical.
	String() string
}

// TestOp enumerates the boolean and relational operators that may appear on
// a Test node.
type TestOp int

const (
	TestNot TestOp = iota
	TestAnd
	TestOr
	TestAllEq
	TestAnyEq
	TestAllNe
	TestAnyNe
	TestGt
	TestGe
	TestLt
	TestLe
	TestContains
	TestMatches
	TestIn
	TestNotIn
)

// String returns the display filter spelling of the operator.
func (op TestOp) String() string {
	switch op {
	case TestNot:
		return "!"
	case TestAnd:
		return "&&"
	case TestOr:
		return "||"
	case TestAllEq:
		return "==="
	case TestAnyEq:
		return "=="
	case TestAllNe:
		return "!="
	case TestAnyNe:
		return "~="
	case TestGt:
		return ">"
	case TestGe:
		return ">="
	case TestLt:
		return "<"
	case TestLe:
		return "<="
	case TestContains:
		return "contains"
	case TestMatches:
		return "matches"
	case TestIn:
		return "in"
	case TestNotIn:
		return "not in"
	default:
		return ""
	}
}

// Match selects whether a relation must hold for every value of a
// multi-valued field or for at least one. The parser sets it from an
// explicit "all"/"any" qualifier; MatchDefault means no qualifier was
// written.
type Match int

const (
	MatchDefault Match = iota
	MatchAll
	MatchAny
)

func (m Match) String() string {
	switch m {
	case MatchAll:
		return "all"
	case MatchAny:
		return "any"
	default:
		return ""
	}
}

// ArithOp enumerates the arithmetic operators that may appear on an
// Arithmetic node. Boolean and relational operators are represented by
// Test nodes and are illegal in value position.
type ArithOp int

const (
	ArithUnaryMinus ArithOp = iota
	ArithAdd
	ArithSubtract
	ArithMultiply
	ArithDivide
	ArithModulo
	ArithBitwiseAnd
)

func (op ArithOp) String() string {
	switch op {
	case ArithUnaryMinus:
		return "-"
	case ArithAdd:
		return "+"
	case ArithSubtract:
		return "-"
	case ArithMultiply:
		return "*"
	case ArithDivide:
		return "/"
	case ArithModulo:
		return "%"
	case ArithBitwiseAnd:
		return "&"
	default:
		return ""
	}
}
