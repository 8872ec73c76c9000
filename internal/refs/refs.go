// Package refs implements the reference table: an append-only vector of
// object handles indexed by a 1-based reference id, shared across a base
// (VM) snapshot and the current (isolate) snapshot.
package refs

import (
	"fmt"

	"unflutter/internal/dartfmt"
)

// Value is a tagged payload value: exactly one of the fields is set
// (Ref/IsRef distinguishes a reference from every other primitive kind).
type Value struct {
	IsRef bool
	Ref   ID

	Null    bool
	Bool    bool
	HasBool bool
	Int     int64
	HasInt  bool
	Double  float64
	HasDbl  bool
	Bytes   []byte
	Str     string
	HasStr  bool
	List    []Value
}

// RefValue constructs a Value wrapping a reference id.
func RefValue(id ID) Value { return Value{IsRef: true, Ref: id} }

// IntValue constructs a Value wrapping a plain integer.
func IntValue(v int64) Value { return Value{HasInt: true, Int: v} }

// DoubleValue constructs a Value wrapping a double.
func DoubleValue(v float64) Value { return Value{HasDbl: true, Double: v} }

// BoolValue constructs a Value wrapping a bool.
func BoolValue(v bool) Value { return Value{HasBool: true, Bool: v} }

// StrValue constructs a Value wrapping a string.
func StrValue(v string) Value { return Value{HasStr: true, Str: v} }

// BytesValue constructs a Value wrapping a byte slice.
func BytesValue(v []byte) Value { return Value{Bytes: v} }

// NullValue constructs the null Value.
func NullValue() Value { return Value{Null: true} }

// ID is a 1-based reference id. 0 is reserved as illegal.
type ID int64

// Illegal is the reserved zero id; no object ever has this id.
const Illegal ID = 0

// Source records where an object was referenced from, for diagnostics.
type Source struct {
	ParentRef ID
	Field     string
}

// Object is an entry in the reference table.
type Object struct {
	ID      ID
	Cluster *Cluster
	Payload map[string]Value
	Sources []Source

	// Class is the linker's back-pointer, populated post-fill (§4.6).
	Class *Object
	// Broken marks a sentinel standing in for a reference that could not
	// be resolved (best-effort mode only).
	Broken bool
}

// Cluster groups objects sharing a class-id.
type Cluster struct {
	CID     int64  // class identifier; pseudo-clusters use CIDPseudo with Name set
	Name    string // pseudo-cluster name ("BaseObject", "ObjectStore") or handler-derived cid name
	Handler string // polymorphic handler name, e.g. "Array", "TypedData", "Instance"
	Refs    []*Object

	// Handler-specific metadata recorded during alloc.
	Meta map[string]any
}

// CIDPseudo marks clusters addressed by name rather than numeric cid.
const CIDPseudo int64 = -1

// Table is the append-only reference table.
type Table struct {
	objects []*Object // index 0 is unused; real ids start at 1
	next    ID
}

// NewTable creates an empty table. Root is not pre-allocated; the driver
// allocates it explicitly once all clusters are filled (§4.5 step 10).
func NewTable() *Table {
	return &Table{objects: make([]*Object, 1), next: 1}
}

// Len returns next-1, i.e. the number of allocated ids (including root once
// the driver has allocated it).
func (t *Table) Len() int { return int(t.next) - 1 }

// Alloc allocates a fresh id, appends the object to both the table and the
// cluster's Refs, and returns it.
func (t *Table) Alloc(c *Cluster) *Object {
	id := t.next
	t.next++
	obj := &Object{ID: id, Cluster: c, Payload: map[string]Value{}}
	t.objects = append(t.objects, obj)
	if c != nil {
		c.Refs = append(c.Refs, obj)
	}
	return obj
}

// Get returns the object for id, failing with BrokenRef if id >= next or
// id <= 0.
func (t *Table) Get(id ID) (*Object, error) {
	if id <= 0 || id >= t.next {
		return nil, fmt.Errorf("refs: broken reference id %d (table has %d entries)", id, t.next-1)
	}
	return t.objects[id], nil
}

// ReadRef reads a reference id from the stream (ReadUnsigned or ReadRefId,
// selected by unsignedEncoding), looks it up, and
// records source in the found object's Sources. A missing id yields a
// sentinel broken-ref object (best-effort mode) and a diagnostic.
func (t *Table) ReadRef(s *dartfmt.Stream, unsignedEncoding bool, source Source, diags *dartfmt.Diags, strict bool) (*Object, error) {
	raw, err := s.ReadRef(unsignedEncoding)
	if err != nil {
		return nil, err
	}
	obj, err := t.Get(ID(raw))
	if err != nil {
		if strict {
			return nil, err
		}
		diags.Addf(uint64(s.Position()), dartfmt.DiagInvalid, "broken ref %d: %v", raw, err)
		obj = &Object{ID: ID(raw), Broken: true, Payload: map[string]Value{}}
	}
	obj.Sources = append(obj.Sources, source)
	return obj, nil
}

// StoreRef reads a ref and stores it into parent's payload under field,
// recording parent as the source.
func (t *Table) StoreRef(s *dartfmt.Stream, unsignedEncoding bool, parent *Object, field string, diags *dartfmt.Diags, strict bool) error {
	obj, err := t.ReadRef(s, unsignedEncoding, Source{ParentRef: parent.ID, Field: field}, diags, strict)
	if err != nil {
		return err
	}
	parent.Payload[field] = RefValue(obj.ID)
	return nil
}

// AdoptBase imports the first n objects of a base table into this one
// (§5: "base is moved into the new snapshot"), appending the same *Object
// pointers under the same ids; the objects themselves are not modified. It
// must be called before any Alloc on t.
func (t *Table) AdoptBase(base *Table, n int) error {
	if t.next != 1 {
		return fmt.Errorf("refs: AdoptBase called after allocation started")
	}
	if n > base.Len() {
		return fmt.Errorf("refs: base snapshot has %d objects, want at least %d", base.Len(), n)
	}
	for i := 1; i <= n; i++ {
		obj := base.objects[i]
		t.objects = append(t.objects, obj)
		t.next++
	}
	return nil
}

// All returns every allocated object in id order (including root once the
// driver has allocated it).
func (t *Table) All() []*Object {
	if len(t.objects) <= 1 {
		return nil
	}
	return t.objects[1:]
}
