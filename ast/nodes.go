package ast

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/trafficlens/dfilter/drange"
	"github.com/trafficlens/dfilter/field"
)

// Test is a boolean combinator or relational test. Y is nil for TestNot.
// How carries an explicit "all"/"any" match qualifier for relations over
// multi-valued fields.
type Test struct {
	Op  TestOp
	How Match
	X   Node
	Y   Node
}

func (x *Test) String() string {
	if x.Op == TestNot {
		return fmt.Sprintf("!(%s)", x.X)
	}
	return fmt.Sprintf("(%s %s %s)", x.X, x.Op, x.Y)
}

// Field is a reference to a protocol field by name. Raw selects the
// undecoded wire bytes rather than the dissected value. Range optionally
// narrows the value to a byte range; the compiler steals it when consumed.
// ValueString requests the field's presentation label instead of its value.
type Field struct {
	Info        *field.Info
	Raw         bool
	Range       *drange.Range
	ValueString bool
}

func (x *Field) String() string {
	var out strings.Builder
	if x.Raw {
		out.WriteString("@")
	}
	out.WriteString(x.Info.Name)
	if x.Range != nil {
		out.WriteString(x.Range.String())
	}
	return out.String()
}

// StealRange detaches and returns the byte-range qualifier. The node no
// longer owns it afterward; a second steal returns nil.
func (x *Field) StealRange() *drange.Range {
	r := x.Range
	x.Range = nil
	return r
}

// Reference is a field read from another frame, written as ${field} in
// filter text. Unlike Field, each occurrence is compiled into its own
// register so that the interpreter can bind them independently.
type Reference struct {
	Info        *field.Info
	Raw         bool
	Range       *drange.Range
	ValueString bool
}

func (x *Reference) String() string {
	var out strings.Builder
	out.WriteString("${")
	if x.Raw {
		out.WriteString("@")
	}
	out.WriteString(x.Info.Name)
	out.WriteString("}")
	if x.Range != nil {
		out.WriteString(x.Range.String())
	}
	return out.String()
}

// StealRange detaches and returns the byte-range qualifier.
func (x *Reference) StealRange() *drange.Range {
	r := x.Range
	x.Range = nil
	return r
}

// Literal is a typed constant value produced by the parser, e.g. a number,
// string, IP address or byte sequence.
type Literal struct {
	Value any
}

func (x *Literal) String() string {
	if s, ok := x.Value.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", x.Value)
}

// Pattern is a compiled regular expression, the right-hand side of a
// "matches" test.
type Pattern struct {
	Re *regexp.Regexp
}

func (x *Pattern) String() string {
	return fmt.Sprintf("/%s/", x.Re)
}

// Slice narrows an entity to a byte range, e.g. tcp.payload[0:4]. The
// compiler steals the range when it emits the slice instruction.
type Slice struct {
	X     Node
	Range *drange.Range
}

func (x *Slice) String() string {
	if x.Range == nil {
		return x.X.String()
	}
	return x.X.String() + x.Range.String()
}

// StealRange detaches and returns the byte-range descriptor.
func (x *Slice) StealRange() *drange.Range {
	r := x.Range
	x.Range = nil
	return r
}

// FuncDef identifies a filter function in the external function registry.
// The parser has already checked the argument count against MinArgs and
// MaxArgs.
type FuncDef struct {
	Name    string
	MinArgs int
	MaxArgs int
}

func (d *FuncDef) String() string {
	return d.Name
}

// Function is a call to a filter function.
type Function struct {
	Def  *FuncDef
	Args []Node
}

func (x *Function) String() string {
	args := make([]string, len(x.Args))
	for i, a := range x.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", x.Def.Name, strings.Join(args, ", "))
}

// Arithmetic is a unary or binary arithmetic expression. Y is nil for
// ArithUnaryMinus.
type Arithmetic struct {
	Op ArithOp
	X  Node
	Y  Node
}

func (x *Arithmetic) String() string {
	if x.Y == nil {
		return fmt.Sprintf("%s%s", x.Op, x.X)
	}
	return fmt.Sprintf("(%s %s %s)", x.X, x.Op, x.Y)
}

// SetItem is one element of a set: a single value, or a low/high range when
// Y is non-nil.
type SetItem struct {
	X Node
	Y Node
}

func (x SetItem) String() string {
	if x.Y != nil {
		return fmt.Sprintf("%s..%s", x.X, x.Y)
	}
	return x.X.String()
}

// Set is the right-hand side of an "in" / "not in" test.
type Set struct {
	Items []SetItem
}

func (x *Set) String() string {
	items := make([]string, len(x.Items))
	for i, it := range x.Items {
		items[i] = it.String()
	}
	return "{" + strings.Join(items, ", ") + "}"
}
