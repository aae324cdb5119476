// Package dfilter compiles display filter syntax trees into bytecode
// programs for a small register-based virtual machine, together with the
// set of protocol fields each program depends on. The compiler package
// does the lowering; this package is the stable entry point that wires
// the pieces together.
package dfilter

import (
	"github.com/trafficlens/dfilter/ast"
	"github.com/trafficlens/dfilter/compiler"
	"github.com/trafficlens/dfilter/field"
)

func collectOptions(opts ...Option) *options {
	o := &options{optimize: true}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

func (o *options) compilerOpts() []compiler.Option {
	copts := []compiler.Option{
		compiler.WithOptimization(o.optimize),
		compiler.WithReturnValues(o.returnValues),
	}
	if o.logger != nil {
		copts = append(copts, compiler.WithLogger(*o.logger))
	}
	return copts
}

// Compile lowers a filter syntax tree into an executable program. Field
// nodes in the tree must refer to entries of the given registry. The
// returned Program is immutable and safe for concurrent use; multiple
// interpreter instances can execute the same Program simultaneously.
func Compile(tree ast.Node, registry *field.Registry, opts ...Option) (*compiler.Program, error) {
	o := collectOptions(opts...)
	return compiler.Compile(tree, registry, o.compilerOpts()...)
}

// Marshal serializes a compiled program for caching or transport.
func Marshal(program *compiler.Program) ([]byte, error) {
	return compiler.Marshal(program)
}

// Unmarshal deserializes a program previously produced by Marshal. The
// registry must contain the fields the program was compiled against; funcs
// supplies definitions for any functions the program calls and may be nil
// otherwise.
func Unmarshal(data []byte, registry *field.Registry, funcs map[string]*ast.FuncDef) (*compiler.Program, error) {
	return compiler.Unmarshal(data, registry, funcs)
}
