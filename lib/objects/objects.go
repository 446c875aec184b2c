package objects

import (
	"fmt"
	"slices"
)

// FieldState is the fill state of a single field.
type FieldState int

const (
	// NotLoaded means the field has not been fetched yet. It is the
	// default state for every declared field.
	NotLoaded FieldState = iota
	// Loaded means the field holds a real value.
	Loaded
	// NotAvailable means the site does not have the concept at all;
	// fetching again will not help.
	NotAvailable
)

func (s FieldState) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case NotAvailable:
		return "not-available"
	default:
		return "not-loaded"
	}
}

// Sentinel is returned by a filter to mark a field as not-available
// instead of failing.
type Sentinel struct {
	Reason string
}

// NotAvailableValue marks a field not-available with a reason.
func NotAvailableValue(reason string) Sentinel {
	return Sentinel{Reason: reason}
}

type field struct {
	state  FieldState
	value  any
	reason string
}

// Object is a domain entity with a stable identity and a fixed set of
// named fields, each tracking its own fill state. Objects are built
// partially populated and completed incrementally across page visits.
type Object struct {
	typ    string
	id     string
	order  []string
	fields map[string]*field
}

// New declares an object of the given type with its field set. The id
// must be non-empty and never changes afterwards.
func New(typ, id string, fieldNames ...string) (*Object, error) {
	if id == "" {
		return nil, fmt.Errorf("object of type %q requires a non-empty id", typ)
	}
	obj := &Object{
		typ:    typ,
		id:     id,
		order:  slices.Clone(fieldNames),
		fields: make(map[string]*field, len(fieldNames)),
	}
	for _, name := range fieldNames {
		obj.fields[name] = &field{state: NotLoaded}
	}
	return obj, nil
}

func (o *Object) Type() string { return o.typ }
func (o *Object) ID() string   { return o.id }

// FieldNames returns the declared fields in declaration order.
func (o *Object) FieldNames() []string {
	return slices.Clone(o.order)
}

func (o *Object) Has(name string) bool {
	_, ok := o.fields[name]
	return ok
}

// State returns the fill state of a field; unknown fields are reported
// as not-loaded.
func (o *Object) State(name string) FieldState {
	f, ok := o.fields[name]
	if !ok {
		return NotLoaded
	}
	return f.state
}

// Get returns the loaded value of a field. The second return is false
// when the field is not in the loaded state.
func (o *Object) Get(name string) (any, bool) {
	f, ok := o.fields[name]
	if !ok || f.state != Loaded {
		return nil, false
	}
	return f.value, true
}

// GetString is Get with a string assertion, for the common case.
func (o *Object) GetString(name string) string {
	v, ok := o.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Reason returns the not-available reason of a field, if any.
func (o *Object) Reason(name string) string {
	f, ok := o.fields[name]
	if !ok {
		return ""
	}
	return f.reason
}

// Set loads a value into a field. A loaded field may be overwritten by
// a fresher loaded value. Passing a Sentinel marks the field
// not-available instead, unless it is already loaded: a loaded field
// never reverts.
func (o *Object) Set(name string, value any) error {
	f, ok := o.fields[name]
	if !ok {
		return fmt.Errorf("object %s/%s has no field %q", o.typ, o.id, name)
	}
	if sentinel, ok := value.(Sentinel); ok {
		if f.state == Loaded {
			return nil
		}
		f.state = NotAvailable
		f.reason = sentinel.Reason
		f.value = nil
		return nil
	}
	f.state = Loaded
	f.value = value
	f.reason = ""
	return nil
}

// MarkNotAvailable transitions a field to not-available. No-op on a
// loaded field.
func (o *Object) MarkNotAvailable(name, reason string) error {
	return o.Set(name, Sentinel{Reason: reason})
}

// Missing filters the requested field names down to those still
// not-loaded. Unknown names are ignored.
func (o *Object) Missing(requested []string) []string {
	var out []string
	for _, name := range requested {
		f, ok := o.fields[name]
		if ok && f.state == NotLoaded {
			out = append(out, name)
		}
	}
	return out
}

// Complete reports whether every declared field left the not-loaded
// state.
func (o *Object) Complete() bool {
	for _, f := range o.fields {
		if f.state == NotLoaded {
			return false
		}
	}
	return true
}

func (o *Object) String() string {
	return fmt.Sprintf("%s<%s>", o.typ, o.id)
}
