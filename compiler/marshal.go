package compiler

import (
	"fmt"
	"regexp"

	"github.com/fxamacker/cbor/v2"
	"github.com/trafficlens/dfilter/ast"
	"github.com/trafficlens/dfilter/drange"
	"github.com/trafficlens/dfilter/field"
	"github.com/trafficlens/dfilter/op"
)

// Serialization of compiled programs. Field operands are stored by registry
// id and patterns by their source text, so unmarshaling needs the same
// field registry the program was compiled against (and definitions for any
// functions it calls).

type programState struct {
	ID            string        `cbor:"id"`
	Insns         []insnState   `cbor:"insns"`
	RegisterCount int           `cbor:"registers"`
	Fields        []int         `cbor:"fields,omitempty"`
	References    map[int][]int `cbor:"refs,omitempty"`
	RawReferences map[int][]int `cbor:"raw_refs,omitempty"`
}

type insnState struct {
	Op   uint16       `cbor:"op"`
	Args []valueState `cbor:"args,omitempty"`
}

type valueState struct {
	Kind    int         `cbor:"kind"`
	Reg     int         `cbor:"reg,omitempty"`
	Num     int         `cbor:"num,omitempty"`
	FieldID int         `cbor:"field,omitempty"`
	Raw     bool        `cbor:"raw,omitempty"`
	Range   []unitState `cbor:"range,omitempty"`
	Literal any         `cbor:"literal"`
	Count   uint64      `cbor:"count,omitempty"`
	Pattern string      `cbor:"pattern,omitempty"`
	Func    string      `cbor:"func,omitempty"`
}

type unitState struct {
	Kind   int `cbor:"kind"`
	Start  int `cbor:"start,omitempty"`
	Length int `cbor:"length,omitempty"`
	End    int `cbor:"end,omitempty"`
}

// Marshal serializes the program to CBOR.
func Marshal(p *Program) ([]byte, error) {
	state := programState{
		ID:            p.id,
		RegisterCount: p.registerCount,
		Fields:        p.fields,
		References:    p.references,
		RawReferences: p.rawReferences,
	}
	for _, insn := range p.insns {
		is := insnState{Op: uint16(insn.Op)}
		for _, arg := range insn.Args() {
			vs, err := marshalValue(arg)
			if err != nil {
				return nil, fmt.Errorf("insn %d: %w", insn.ID, err)
			}
			is.Args = append(is.Args, vs)
		}
		state.Insns = append(state.Insns, is)
	}
	return cbor.Marshal(state)
}

func marshalValue(v *Value) (valueState, error) {
	vs := valueState{Kind: int(v.Kind)}
	switch v.Kind {
	case ValueRegister:
		vs.Reg = v.Reg
	case ValueInsnNumber:
		if !v.Resolved() {
			return vs, fmt.Errorf("unresolved branch target")
		}
		vs.Num = v.Num
	case ValueField:
		vs.FieldID = v.Field.ID
		vs.Raw = v.Raw
	case ValueRange:
		for _, u := range v.Range.Units {
			vs.Range = append(vs.Range, unitState{
				Kind:   int(u.Kind),
				Start:  u.Start,
				Length: u.Length,
				End:    u.End,
			})
		}
	case ValueLiteral:
		vs.Literal = v.Literal
	case ValueUint:
		vs.Count = uint64(v.Count)
	case ValuePattern:
		vs.Pattern = v.Pattern.String()
	case ValueFuncDef:
		vs.Func = v.Func.Name
	default:
		return vs, fmt.Errorf("unsupported operand kind %s", v.Kind)
	}
	return vs, nil
}

// Unmarshal deserializes a program previously produced by Marshal. Field
// ids are resolved against registry; function operands are resolved by name
// against funcs, which may be nil when the program calls no functions.
func Unmarshal(data []byte, registry *field.Registry, funcs map[string]*ast.FuncDef) (*Program, error) {
	var state programState
	if err := cbor.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	p := &Program{
		id:            state.ID,
		registerCount: state.RegisterCount,
		fields:        state.Fields,
		references:    copyRefs(state.References),
		rawReferences: copyRefs(state.RawReferences),
	}
	for id, is := range state.Insns {
		code := op.Code(is.Op)
		if op.GetInfo(code).Name == "" {
			return nil, fmt.Errorf("insn %d: unknown opcode %d", id, is.Op)
		}
		insn := &Instruction{ID: id, Op: code}
		args := make([]*Value, 0, len(is.Args))
		for _, vs := range is.Args {
			v, err := unmarshalValue(vs, registry, funcs)
			if err != nil {
				return nil, fmt.Errorf("insn %d: %w", id, err)
			}
			args = append(args, v)
		}
		for n, arg := range args {
			switch n {
			case 0:
				insn.Arg1 = arg
			case 1:
				insn.Arg2 = arg
			case 2:
				insn.Arg3 = arg
			default:
				return nil, fmt.Errorf("insn %d: too many operands", id)
			}
		}
		p.insns = append(p.insns, insn)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func unmarshalValue(vs valueState, registry *field.Registry, funcs map[string]*ast.FuncDef) (*Value, error) {
	switch ValueKind(vs.Kind) {
	case ValueRegister:
		return newRegister(vs.Reg), nil
	case ValueInsnNumber:
		v := newInsnNumber()
		v.Num = vs.Num
		return v, nil
	case ValueField:
		if registry == nil || vs.FieldID < 0 || vs.FieldID >= registry.Len() {
			return nil, fmt.Errorf("unknown field id %d", vs.FieldID)
		}
		return newField(registry.Nth(vs.FieldID), vs.Raw), nil
	case ValueRange:
		units := make([]drange.Unit, 0, len(vs.Range))
		for _, u := range vs.Range {
			units = append(units, drange.Unit{
				Kind:   drange.Kind(u.Kind),
				Start:  u.Start,
				Length: u.Length,
				End:    u.End,
			})
		}
		return newRange(drange.New(units...)), nil
	case ValueLiteral:
		return newLiteral(vs.Literal), nil
	case ValueUint:
		return newUint(uint(vs.Count)), nil
	case ValuePattern:
		re, err := regexp.Compile(vs.Pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern: %w", err)
		}
		return newPattern(re), nil
	case ValueFuncDef:
		def, ok := funcs[vs.Func]
		if !ok {
			return nil, fmt.Errorf("unknown function %q", vs.Func)
		}
		return newFuncDef(def), nil
	default:
		return nil, fmt.Errorf("unsupported operand kind %d", vs.Kind)
	}
}
