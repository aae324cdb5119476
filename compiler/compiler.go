// Package compiler lowers a display filter syntax tree into a linear
// bytecode program for a small register-based virtual machine, together
// with the set of protocol fields the program depends on.
//
// # Single-Pass Code Generation
//
// The tree is walked once, left to right. Forward branches are emitted with
// unresolved target operands that are collected in per-scope pending-jump
// lists and patched as soon as the destination instruction id is known
// (two-pass forward-branch resolution at the operand level, without a
// second walk).
//
// # Field Loads and Register Reuse
//
// A field read with no byte-range qualifier is cached: the first load
// allocates a register and later references to the same canonical field
// reuse it. Range-qualified loads always burn a fresh register because a
// range narrows the loaded value and must not be shared with an unqualified
// load of the same field. Every load is followed by a conditional branch
// that skips the dependent code when the field is absent from the record;
// absence is ordinary control flow, never a compilation error.
//
// # Contract
//
// The syntax tree arriving here has already been validated by the upstream
// parser. An operator in a position the grammar forbids is a programming
// error between the parser and this compiler, and the compiler panics.
package compiler

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/trafficlens/dfilter/ast"
	"github.com/trafficlens/dfilter/drange"
	"github.com/trafficlens/dfilter/field"
	"github.com/trafficlens/dfilter/op"
)

// Option is a configuration function for a Compiler.
type Option func(*Compiler)

// WithOptimization enables or disables the peephole branch optimizer.
// It is enabled by default.
func WithOptimization(enabled bool) Option {
	return func(c *Compiler) {
		c.optimizeEnabled = enabled
	}
}

// WithReturnValues requests that a bare field expression at the root of the
// tree return the field's values instead of only testing its existence.
func WithReturnValues(enabled bool) Option {
	return func(c *Compiler) {
		c.returnValues = enabled
	}
}

// WithLogger supplies a logger used for debug tracing of instruction
// emission. The default logger discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Compiler) {
		c.logger = logger
	}
}

// Compiler compiles one filter syntax tree into a Program. A Compiler holds
// per-compilation state and must not be shared between concurrent
// compilations; independent Compilers need no synchronization.
type Compiler struct {
	registry        *field.Registry
	optimizeEnabled bool
	returnValues    bool
	logger          zerolog.Logger

	insns        []*Instruction
	nextInsnID   int
	nextRegister int

	// Registers used for prior range-free loads, keyed by canonical field,
	// stored as reg+1 so the zero value means "not loaded". Raw and cooked
	// loads are cached separately because they observe different values.
	loadedFields    map[*field.Info]int
	loadedRawFields map[*field.Info]int

	interesting   map[int]struct{}
	references    map[int][]int
	rawReferences map[int][]int
}

// New creates a Compiler that resolves fields against the given registry.
func New(registry *field.Registry, opts ...Option) *Compiler {
	c := &Compiler{
		registry:        registry,
		optimizeEnabled: true,
		logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile compiles the given syntax tree with a one-off Compiler.
func Compile(node ast.Node, registry *field.Registry, opts ...Option) (*Program, error) {
	return New(registry, opts...).Compile(node)
}

// Compile walks the tree rooted at node, appends the terminal return
// instruction, optionally runs the peephole optimizer, and returns the
// assembled Program. The program is only handed out if every branch target
// was resolved; a validation failure aborts with no partial result.
func (c *Compiler) Compile(node ast.Node) (*Program, error) {
	if c.registry == nil {
		panic("compile error: compiler has no field registry")
	}
	c.reset()
	val := c.compile(node, c.returnValues)
	c.append(&Instruction{Op: op.Return, Arg1: val})
	if c.optimizeEnabled {
		optimize(c.insns)
	}
	program := newProgram(c.insns, c.nextRegister, c.interesting,
		c.references, c.rawReferences)
	if err := program.Validate(); err != nil {
		return nil, fmt.Errorf("compile error: invalid program: %w", err)
	}
	c.logger.Debug().
		Str("program_id", program.ID()).
		Int("instructions", program.InstructionCount()).
		Int("registers", program.RegisterCount()).
		Msg("compiled filter")
	return program, nil
}

// reset gives the compiler a fresh per-compilation state.
func (c *Compiler) reset() {
	c.insns = nil
	c.nextInsnID = 0
	c.nextRegister = 0
	c.loadedFields = map[*field.Info]int{}
	c.loadedRawFields = map[*field.Info]int{}
	c.interesting = map[int]struct{}{}
	c.references = map[int][]int{}
	c.rawReferences = map[int][]int{}
}

// compile dispatches the root node. Anywhere other than the root,
// returnValues is false: a bare field below the root only has its
// existence tested, and truthiness wrappers apply only at the root.
func (c *Compiler) compile(node ast.Node, returnValues bool) *Value {
	switch n := node.(type) {
	case *ast.Test:
		c.genTest(n)
		return nil
	case *ast.Field:
		if returnValues {
			return c.genField(n)
		}
		c.genExists(n)
		return nil
	case *ast.Arithmetic, *ast.Function:
		return c.genNotZero(node)
	case *ast.Slice:
		return c.genNotZeroSlice(n)
	default:
		panic(fmt.Sprintf("compile error: unexpected node type at root: %T", node))
	}
}

// genTest compiles a boolean combinator or relational test.
func (c *Compiler) genTest(node *ast.Test) {
	switch node.Op {
	case ast.TestNot:
		c.compile(node.X, false)
		c.append(&Instruction{Op: op.Not})

	case ast.TestAnd:
		c.compile(node.X, false)
		jmp := c.appendJump(op.IfFalseGoto)
		c.compile(node.Y, false)
		jmp.Num = c.nextInsnID

	case ast.TestOr:
		c.compile(node.X, false)
		jmp := c.appendJump(op.IfTrueGoto)
		c.compile(node.Y, false)
		jmp.Num = c.nextInsnID

	case ast.TestAllEq:
		c.genRelation(op.AllEq, node.How, node.X, node.Y)
	case ast.TestAnyEq:
		c.genRelation(op.AnyEq, node.How, node.X, node.Y)
	case ast.TestAllNe:
		c.genRelation(op.AllNe, node.How, node.X, node.Y)
	case ast.TestAnyNe:
		c.genRelation(op.AnyNe, node.How, node.X, node.Y)
	case ast.TestGt:
		c.genRelation(op.AnyGt, node.How, node.X, node.Y)
	case ast.TestGe:
		c.genRelation(op.AnyGe, node.How, node.X, node.Y)
	case ast.TestLt:
		c.genRelation(op.AnyLt, node.How, node.X, node.Y)
	case ast.TestLe:
		c.genRelation(op.AnyLe, node.How, node.X, node.Y)
	case ast.TestContains:
		c.genRelation(op.AnyContains, node.How, node.X, node.Y)
	case ast.TestMatches:
		c.genRelation(op.AnyMatches, node.How, node.X, node.Y)

	case ast.TestIn:
		c.genRelationIn(op.SetAnyIn, node.How, node.X, node.Y)
	case ast.TestNotIn:
		c.genRelationIn(op.SetAnyNotIn, node.How, node.X, node.Y)

	default:
		panic(fmt.Sprintf("compile error: unknown test operator %d", node.Op))
	}
}

// selectOpcode maps a base comparison opcode to its ALL or ANY variant per
// the declared match mode. ALL and ANY opcodes are adjacent, so selection
// is an index shift.
func selectOpcode(code op.Code, how ast.Match) op.Code {
	if how == ast.MatchDefault {
		return code
	}
	switch code {
	case op.AllEq, op.AllNe, op.AllGt, op.AllGe, op.AllLt, op.AllLe,
		op.AllContains, op.AllMatches, op.SetAllIn, op.SetAllNotIn:
		if how == ast.MatchAll {
			return code
		}
		return code + 1
	case op.AnyEq, op.AnyNe, op.AnyGt, op.AnyGe, op.AnyLt, op.AnyLe,
		op.AnyContains, op.AnyMatches, op.SetAnyIn, op.SetAnyNotIn:
		if how == ast.MatchAny {
			return code
		}
		return code - 1
	default:
		panic(fmt.Sprintf("compile error: %s has no match-mode variants", code))
	}
}

// genRelation compiles both sides of a relation, merges their pending-jump
// lists, emits the relation instruction, then resolves every collected jump
// to the instruction after it: if either side is absent, the relation is
// false and control lands there.
func (c *Compiler) genRelation(code op.Code, how ast.Match, x, y ast.Node) {
	val1, jumps1 := c.genEntity(x)
	val2, jumps2 := c.genEntity(y)
	c.append(&Instruction{Op: selectOpcode(code, how), Arg1: val1, Arg2: val2})
	c.fixupJumps(jumps1)
	c.fixupJumps(jumps2)
}

// genRelationIn compiles an "in" / "not in" test. Set values are pushed
// onto the shared set evaluation stack, membership is evaluated in a single
// instruction against the left-hand side, and the stack is cleared. Each
// set element has a local jump scope: an absent element value skips only
// that element. The left-hand side's jump scope spans the whole construct
// and resolves after the clear.
func (c *Compiler) genRelationIn(code op.Code, how ast.Match, x, y ast.Node) {
	set, ok := y.(*ast.Set)
	if !ok {
		panic(fmt.Sprintf("compile error: membership test against %T, want *ast.Set", y))
	}

	val1, jumps := c.genEntity(x)

	for _, item := range set.Items {
		var nodeJumps []*Value
		if item.Y != nil {
			// Range element.
			lo, loJumps := c.genEntity(item.X)
			hi, hiJumps := c.genEntity(item.Y)
			c.append(&Instruction{Op: op.SetAddRange, Arg1: lo, Arg2: hi})
			nodeJumps = append(loJumps, hiJumps...)
		} else {
			val, valJumps := c.genEntity(item.X)
			c.append(&Instruction{Op: op.SetAdd, Arg1: val})
			nodeJumps = valJumps
		}
		// If an item is not present, just jump to the next item.
		c.fixupJumps(nodeJumps)
	}

	c.append(&Instruction{Op: selectOpcode(code, how), Arg1: val1})
	c.append(&Instruction{Op: op.SetClear})

	// Jump here if the LHS entity was not present.
	c.fixupJumps(jumps)
}

// genEntity compiles a node that denotes a value. It returns the operand
// that will hold the value at run time along with the unresolved "skip if
// absent" branches emitted on its behalf; the caller decides where control
// lands when the value is missing and resolves them there.
func (c *Compiler) genEntity(node ast.Node) (*Value, []*Value) {
	switch n := node.(type) {
	case *ast.Field:
		var jumps []*Value
		val, loaded := c.readTree(n.Info, n.StealRange(), n.Raw)
		if loaded {
			jumps = append(jumps, c.appendJump(op.IfFalseGoto))
		}
		if n.ValueString {
			val = c.appendValueString(n.Info, val)
			jumps = append(jumps, c.appendJump(op.IfFalseGoto))
		}
		return val, jumps
	case *ast.Reference:
		val := c.readReference(n.Info, n.StealRange(), n.Raw)
		jumps := []*Value{c.appendJump(op.IfFalseGoto)}
		if n.ValueString {
			val = c.appendValueString(n.Info, val)
			jumps = append(jumps, c.appendJump(op.IfFalseGoto))
		}
		return val, jumps
	case *ast.Literal:
		return newLiteral(n.Value), nil
	case *ast.Pattern:
		return newPattern(n.Re), nil
	case *ast.Slice:
		return c.appendSlice(n)
	case *ast.Function:
		return c.genFunction(n)
	case *ast.Arithmetic:
		return c.genArithmetic(n)
	default:
		panic(fmt.Sprintf("compile error: %T is not a value-producing node", node))
	}
}

// readTree resolves a field load. When the same canonical field was already
// loaded without a range qualifier the cached register is reused and no
// instruction is emitted; the second return value reports whether a load
// was emitted (and therefore whether an absence branch must follow). A
// range-qualified load always burns a fresh register and is never cached.
func (c *Compiler) readTree(info *field.Info, rng *drange.Range, raw bool) (*Value, bool) {
	// Rewind to the first field of this name.
	info = c.registry.Canonical(info)

	cache := c.loadedFields
	if raw {
		cache = c.loadedRawFields
	}

	if cached, ok := cache[info]; ok && rng == nil {
		c.markInteresting(info)
		return newRegister(cached - 1), false
	}

	reg := c.allocRegister()
	if rng == nil {
		cache[info] = reg + 1
	}

	regVal := newRegister(reg)
	if rng != nil {
		c.append(&Instruction{
			Op:   op.ReadTreeR,
			Arg1: newField(info, raw),
			Arg2: regVal,
			Arg3: newRange(rng),
		})
	} else {
		c.append(&Instruction{
			Op:   op.ReadTree,
			Arg1: newField(info, raw),
			Arg2: regVal,
		})
	}

	c.markInteresting(info)
	return regVal, true
}

// readReference emits a reference-frame field load. Register reuse is
// skipped entirely so that each occurrence can be bound independently by
// the interpreter; the register is recorded in the per-field reference
// list instead of the load cache.
func (c *Compiler) readReference(info *field.Info, rng *drange.Range, raw bool) *Value {
	info = c.registry.Canonical(info)

	reg := c.allocRegister()
	regVal := newRegister(reg)
	if rng != nil {
		c.append(&Instruction{
			Op:   op.ReadReferenceR,
			Arg1: newField(info, raw),
			Arg2: regVal,
			Arg3: newRange(rng),
		})
	} else {
		c.append(&Instruction{
			Op:   op.ReadReference,
			Arg1: newField(info, raw),
			Arg2: regVal,
		})
	}

	refs := c.references
	if raw {
		refs = c.rawReferences
	}
	refs[info.ID] = append(refs[info.ID], reg)

	c.markInteresting(info)
	return regVal
}

// appendSlice resolves the sliced entity and emits a slice instruction.
// The byte-range descriptor is stolen from the node; the entity's pending
// jumps propagate to the caller.
func (c *Compiler) appendSlice(node *ast.Slice) (*Value, []*Value) {
	val, jumps := c.genEntity(node.X)
	rng := node.StealRange()
	if rng == nil {
		panic("compile error: slice node has no byte range")
	}
	regVal := newRegister(c.allocRegister())
	c.append(&Instruction{
		Op:   op.MakeSlice,
		Arg1: val,
		Arg2: regVal,
		Arg3: newRange(rng),
	})
	return regVal, jumps
}

// appendValueString emits an instruction mapping the value in src to the
// field's presentation label, producing a new register.
func (c *Compiler) appendValueString(info *field.Info, src *Value) *Value {
	regVal := newRegister(c.allocRegister())
	c.append(&Instruction{
		Op:   op.ValueString,
		Arg1: newField(info, false),
		Arg2: src,
		Arg3: regVal,
	})
	return regVal
}

// appendLength compiles a len() call directly into a length-computation
// instruction instead of the generic call protocol.
func (c *Compiler) appendLength(node *ast.Function) (*Value, []*Value) {
	if len(node.Args) != 1 {
		panic(fmt.Sprintf("compile error: len() with %d arguments", len(node.Args)))
	}
	val, jumps := c.genEntity(node.Args[0])
	regVal := newRegister(c.allocRegister())
	c.append(&Instruction{Op: op.Length, Arg1: val, Arg2: regVal})
	return regVal, jumps
}

// genFunction compiles a function call. len() and vals() are recognized by
// name and lowered directly; everything else goes through the generic call
// protocol: push each argument onto the evaluation stack, call with the
// argument count, pop, then report "the call may fail" to the caller.
func (c *Compiler) genFunction(node *ast.Function) (*Value, []*Value) {
	def := node.Def

	if def.Name == "len" {
		return c.appendLength(node)
	}
	if def.Name == "vals" {
		// The field node carries the value-string request; compiling the
		// lone argument produces the label directly.
		if len(node.Args) != 1 {
			panic(fmt.Sprintf("compile error: vals() with %d arguments", len(node.Args)))
		}
		return c.genEntity(node.Args[0])
	}

	regVal := newRegister(c.allocRegister())
	var count uint
	for _, arg := range node.Args {
		val, paramJumps := c.genEntity(arg)
		// An absent argument resolves to its own push; pushing an empty
		// value is valid.
		c.fixupJumps(paramJumps)
		c.append(&Instruction{Op: op.StackPush, Arg1: val})
		count++
	}
	c.append(&Instruction{
		Op:   op.CallFunction,
		Arg1: newFuncDef(def),
		Arg2: regVal,
		Arg3: newUint(count),
	})
	c.append(&Instruction{Op: op.StackPop, Arg1: newUint(count)})

	// The call itself may fail; the caller decides where to land.
	return regVal, []*Value{c.appendJump(op.IfFalseGoto)}
}

// genArithmetic compiles a unary or binary arithmetic expression into a new
// register. The AST type system keeps boolean operators out of value
// position; an unknown operator here is a contract violation.
func (c *Compiler) genArithmetic(node *ast.Arithmetic) (*Value, []*Value) {
	var code op.Code
	switch node.Op {
	case ast.ArithUnaryMinus:
		code = op.UnaryMinus
	case ast.ArithAdd:
		code = op.Add
	case ast.ArithSubtract:
		code = op.Subtract
	case ast.ArithMultiply:
		code = op.Multiply
	case ast.ArithDivide:
		code = op.Divide
	case ast.ArithModulo:
		code = op.Modulo
	case ast.ArithBitwiseAnd:
		code = op.BitwiseAnd
	default:
		panic(fmt.Sprintf("compile error: unknown arithmetic operator %d", node.Op))
	}

	val1, jumps := c.genEntity(node.X)
	if node.Y == nil {
		regVal := newRegister(c.allocRegister())
		c.append(&Instruction{Op: code, Arg1: val1, Arg2: regVal})
		return regVal, jumps
	}
	val2, jumps2 := c.genEntity(node.Y)
	regVal := newRegister(c.allocRegister())
	c.append(&Instruction{Op: code, Arg1: val1, Arg2: val2, Arg3: regVal})
	return regVal, append(jumps, jumps2...)
}

// genExists compiles a bare field into an existence check. Rawness is
// ignored for existence tests.
func (c *Compiler) genExists(node *ast.Field) {
	info := c.registry.Canonical(node.Info)
	rng := node.StealRange()
	if rng != nil {
		c.append(&Instruction{
			Op:   op.CheckExistsR,
			Arg1: newField(info, false),
			Arg2: newRange(rng),
		})
	} else {
		c.append(&Instruction{
			Op:   op.CheckExists,
			Arg1: newField(info, false),
		})
	}
	c.markInteresting(info)
}

// genField compiles a root field in return-values mode: the field is loaded
// and its register is the program's result.
func (c *Compiler) genField(node *ast.Field) *Value {
	val, jumps := c.genEntity(node)
	c.fixupJumps(jumps)
	return val
}

// genNotZero wraps a root arithmetic or function result in a truthiness
// test: the filter matches when the value is not entirely zero or empty.
func (c *Compiler) genNotZero(node ast.Node) *Value {
	val, jumps := c.genEntity(node)
	c.append(&Instruction{Op: op.NotAllZero, Arg1: val})
	c.fixupJumps(jumps)
	return val
}

// genNotZeroSlice is genNotZero for a root slice: a slice may legitimately
// be all zero bytes, so truthiness is "the slice is non-empty" instead.
func (c *Compiler) genNotZeroSlice(node *ast.Slice) *Value {
	val, jumps := c.genEntity(node)
	regVal := newRegister(c.allocRegister())
	c.append(&Instruction{Op: op.Length, Arg1: val, Arg2: regVal})
	c.append(&Instruction{Op: op.NotAllZero, Arg1: regVal})
	c.fixupJumps(jumps)
	return val
}

// markInteresting records the whole same-name chain of the canonical field
// in the interesting-field set.
func (c *Compiler) markInteresting(info *field.Info) {
	for f := info; f != nil; f = f.SameNameNext {
		c.interesting[f.ID] = struct{}{}
	}
}

// allocRegister returns the next register id. Ids are strictly increasing
// within one compilation and never reused across distinct field identities.
func (c *Compiler) allocRegister() int {
	reg := c.nextRegister
	c.nextRegister++
	return reg
}

// append assigns the next instruction id and appends the instruction.
func (c *Compiler) append(insn *Instruction) {
	insn.ID = c.nextInsnID
	c.nextInsnID++
	c.insns = append(c.insns, insn)
	if e := c.logger.Debug(); e.Enabled() {
		e.Int("id", insn.ID).Str("insn", insn.String()).Msg("emit")
	}
}

// appendJump emits a conditional branch with an unresolved target and
// returns the target operand for later patching.
func (c *Compiler) appendJump(code op.Code) *Value {
	jmp := newInsnNumber()
	c.append(&Instruction{Op: code, Arg1: jmp})
	return jmp
}

// fixupJumps resolves every pending branch target to the next instruction
// id, i.e. to whatever is emitted next.
func (c *Compiler) fixupJumps(jumps []*Value) {
	for _, jmp := range jumps {
		jmp.Num = c.nextInsnID
	}
}
