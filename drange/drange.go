// Package drange describes the byte ranges used to slice field values, as in
// the filter expression "tcp.payload[0:4]". A range is an ordered list of
// units, each addressing a contiguous run of bytes within the value.
package drange

import (
	"fmt"
	"strings"
)

// Kind selects the addressing form of a single range unit.
type Kind int

const (
	// StartLength addresses Length bytes beginning at Start.
	StartLength Kind = iota

	// StartEnd addresses the bytes from offset Start up to offset End.
	StartEnd

	// StartToEnd addresses the bytes from offset Start to the end of the value.
	StartToEnd
)

// Unit is one contiguous piece of a range. Negative offsets count backward
// from the end of the value.
type Unit struct {
	Kind   Kind
	Start  int
	Length int
	End    int
}

func (u Unit) String() string {
	switch u.Kind {
	case StartLength:
		return fmt.Sprintf("%d:%d", u.Start, u.Length)
	case StartEnd:
		return fmt.Sprintf("%d-%d", u.Start, u.End)
	case StartToEnd:
		return fmt.Sprintf("%d:", u.Start)
	}
	return "?"
}

// Range is an ordered list of units. The upstream parser builds ranges; this
// package only carries them through compilation into instruction operands.
type Range struct {
	Units []Unit
}

// New returns a range over the given units.
func New(units ...Unit) *Range {
	return &Range{Units: units}
}

func (r *Range) String() string {
	parts := make([]string, len(r.Units))
	for i, u := range r.Units {
		parts[i] = u.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}
