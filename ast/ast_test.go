package ast

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/trafficlens/dfilter/drange"
	"github.com/trafficlens/dfilter/field"
)

func testField(t *testing.T, name string) *field.Info {
	t.Helper()
	r := field.NewRegistry()
	return r.Register(name, name)
}

func TestString(t *testing.T) {
	port := testField(t, "tcp.port")
	addr := testField(t, "ip.addr")
	tests := []struct {
		name string
		node Node
		want string
	}{
		{
			name: "relation",
			node: &Test{Op: TestAnyEq, X: &Field{Info: port}, Y: &Literal{Value: 80}},
			want: "(tcp.port == 80)",
		},
		{
			name: "conjunction",
			node: &Test{
				Op: TestAnd,
				X:  &Test{Op: TestAnyEq, X: &Field{Info: addr}, Y: &Literal{Value: "10.0.0.1"}},
				Y:  &Test{Op: TestGt, X: &Field{Info: port}, Y: &Literal{Value: 1024}},
			},
			want: `((ip.addr == "10.0.0.1") && (tcp.port > 1024))`,
		},
		{
			name: "negation",
			node: &Test{Op: TestNot, X: &Field{Info: port}},
			want: "!(tcp.port)",
		},
		{
			name: "raw field with range",
			node: &Field{Info: port, Raw: true, Range: drange.New(drange.Unit{Kind: drange.StartLength, Start: 0, Length: 2})},
			want: "@tcp.port[0:2]",
		},
		{
			name: "reference",
			node: &Reference{Info: addr},
			want: "${ip.addr}",
		},
		{
			name: "slice",
			node: &Slice{X: &Field{Info: port}, Range: drange.New(drange.Unit{Kind: drange.StartLength, Start: 0, Length: 1})},
			want: "tcp.port[0:1]",
		},
		{
			name: "function",
			node: &Function{Def: &FuncDef{Name: "len", MinArgs: 1, MaxArgs: 1}, Args: []Node{&Field{Info: port}}},
			want: "len(tcp.port)",
		},
		{
			name: "pattern",
			node: &Pattern{Re: regexp.MustCompile("^GET")},
			want: "/^GET/",
		},
		{
			name: "membership",
			node: &Test{
				Op: TestIn,
				X:  &Field{Info: port},
				Y: &Set{Items: []SetItem{
					{X: &Literal{Value: 80}},
					{X: &Literal{Value: 1000}, Y: &Literal{Value: 2000}},
				}},
			},
			want: "(tcp.port in {80, 1000..2000})",
		},
		{
			name: "unary minus",
			node: &Arithmetic{Op: ArithUnaryMinus, X: &Literal{Value: 1}},
			want: "-1",
		},
		{
			name: "binary arithmetic",
			node: &Arithmetic{Op: ArithAdd, X: &Field{Info: port}, Y: &Literal{Value: 1}},
			want: "(tcp.port + 1)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.node.String())
		})
	}
}

func TestStealRange(t *testing.T) {
	rng := drange.New(drange.Unit{Kind: drange.StartLength, Start: 0, Length: 4})
	slice := &Slice{X: &Literal{Value: "abc"}, Range: rng}
	require.Same(t, rng, slice.StealRange())
	require.Nil(t, slice.Range)
	require.Nil(t, slice.StealRange())

	f := &Field{Info: testField(t, "tcp.payload"), Range: rng}
	require.Same(t, rng, f.StealRange())
	require.Nil(t, f.StealRange())
}
