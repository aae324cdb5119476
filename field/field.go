// Package field implements the registry of protocol fields that filter
// expressions refer to. The registry is populated by the dissection engine
// before any filter is compiled; the compiler only reads it.
//
// A field name may be registered more than once (different dissectors can
// claim the same abbreviation). Every registration gets its own identity,
// and the occurrences of one name are linked into a chain: each Info records
// the id of the previous same-name registration and a pointer to the next
// one. The first registration is the canonical identity for the name.
package field

import "fmt"

// Info describes one registered occurrence of a protocol field.
type Info struct {
	// ID is the index of this occurrence in the registry table.
	ID int

	// Name is the filter abbreviation, e.g. "tcp.port".
	Name string

	// Description is the human-readable field title.
	Description string

	// SameNamePrevID is the id of the previous registration of this name,
	// or -1 if this is the first (canonical) one.
	SameNamePrevID int

	// SameNameNext points to the next registration of this name, if any.
	SameNameNext *Info

	// Labels optionally maps field values to presentation strings. A filter
	// can compare against the label instead of the value.
	Labels map[int64]string
}

func (f *Info) String() string {
	return f.Name
}

// Registry is an append-only table of field registrations.
type Registry struct {
	infos  []*Info
	byName map[string]*Info // most recent registration per name
}

// NewRegistry returns an empty field registry.
func NewRegistry() *Registry {
	return &Registry{byName: map[string]*Info{}}
}

// Register adds a new occurrence of the named field and links it into the
// name's same-name chain. It returns the new Info, whose Labels map may be
// filled in by the caller before compilation.
func (r *Registry) Register(name, description string) *Info {
	info := &Info{
		ID:             len(r.infos),
		Name:           name,
		Description:    description,
		SameNamePrevID: -1,
	}
	if prev, ok := r.byName[name]; ok {
		info.SameNamePrevID = prev.ID
		prev.SameNameNext = info
	}
	r.infos = append(r.infos, info)
	r.byName[name] = info
	return info
}

// Nth returns the field with the given id.
func (r *Registry) Nth(id int) *Info {
	if id < 0 || id >= len(r.infos) {
		panic(fmt.Sprintf("field: no registration with id %d", id))
	}
	return r.infos[id]
}

// Lookup returns the most recent registration of the named field, or nil.
func (r *Registry) Lookup(name string) *Info {
	return r.byName[name]
}

// Canonical rewinds the same-name chain to the first registration of the
// field's name.
func (r *Registry) Canonical(info *Info) *Info {
	for info.SameNamePrevID != -1 {
		info = r.Nth(info.SameNamePrevID)
	}
	return info
}

// Len returns the number of registrations in the table.
func (r *Registry) Len() int {
	return len(r.infos)
}
