// Package linker implements post-parse queries over a completed reference
// table: CID linking, cid/handler-name indices, code-address search, and
// architecture entry-point resolution (§4.6).
package linker

import (
	"sort"

	"unflutter/internal/cluster"
	"unflutter/internal/dartfmt"
	"unflutter/internal/refs"
)

// CodeRange associates a Code object with its resolved instructions address
// range, sorted for binary search (§4.6 step 13, §4.6's search_address).
type CodeRange struct {
	Code     *refs.Object
	DataAddr uint64
	Size     uint32
}

// Linker holds the indices built from a completed reference table (§4.5
// step 13, §4.6).
type Linker struct {
	Table *refs.Table

	Classes map[int64]*refs.Object // cid -> Class object
	byCID   map[string][]*refs.Object
	byName  map[string][]*refs.Object // handler name -> objects

	codeRanges []CodeRange // sorted by DataAddr
}

// New builds a Linker over t without running any indexing: RefsByCID and
// RefsByHandler return nothing until BuildIndices runs, and SearchAddress
// finds nothing until code ranges are registered and Finalize runs.
func New(t *refs.Table) *Linker {
	return &Linker{Table: t, Classes: map[int64]*refs.Object{}}
}

// LinkClasses implements §4.5 step 12: build classes: cid -> Class, then for
// every Instance-kind object set _class = classes[cluster.cid], and for
// every Type object set _class = classes[type_class_id] where type_class_id
// is expected to be a Mint ref. Missing entries are left nil and reported.
func (l *Linker) LinkClasses(diags *dartfmt.Diags) {
	for _, obj := range l.Table.All() {
		if obj.Cluster == nil || obj.Cluster.Handler != "Class" {
			continue
		}
		cidVal, ok := obj.Payload["cid"]
		if !ok || !cidVal.HasInt {
			continue
		}
		l.Classes[cidVal.Int] = obj
	}

	for _, obj := range l.Table.All() {
		if obj.Cluster == nil {
			continue
		}
		switch obj.Cluster.Handler {
		case "Instance":
			cls, ok := l.Classes[obj.Cluster.CID]
			if !ok {
				diags.Addf(0, dartfmt.DiagInvalid, "no Class entry for cid %d (ref %d)", obj.Cluster.CID, obj.ID)
				continue
			}
			obj.Class = cls
		case "Type":
			tc, ok := obj.Payload["type_class_id"]
			if !ok || !tc.IsRef {
				continue
			}
			mint, err := l.Table.Get(tc.Ref)
			if err != nil {
				diags.Addf(0, dartfmt.DiagInvalid, "type_class_id broken ref on Type %d", obj.ID)
				continue
			}
			v, ok := mint.Payload["value"]
			if !ok || !v.HasInt {
				diags.Addf(0, dartfmt.DiagInvalid, "type_class_id on Type %d does not resolve to a Mint", obj.ID)
				continue
			}
			cls, ok := l.Classes[v.Int]
			if !ok {
				diags.Addf(0, dartfmt.DiagInvalid, "no Class entry for cid %d (Type %d)", v.Int, obj.ID)
				continue
			}
			obj.Class = cls
		}
	}
}

// BuildIndices implements §4.5 step 13's cid-name and handler-name grouping;
// code ranges are sorted separately by Finalize. String/script owning-library indices are left to callers that
// need them, since they require walking handler-specific payload shapes the
// linker does not otherwise care about.
func (l *Linker) BuildIndices() {
	l.byCID = map[string][]*refs.Object{}
	l.byName = map[string][]*refs.Object{}
	for _, obj := range l.Table.All() {
		if obj.Cluster == nil {
			continue
		}
		name := cluster.CIDName(obj.Cluster.CID)
		if name == "" {
			name = obj.Cluster.Name
		}
		l.byCID[name] = append(l.byCID[name], obj)
		l.byName[obj.Cluster.Handler] = append(l.byName[obj.Cluster.Handler], obj)
	}
}

// RegisterCodeRange records a resolved Code object's instructions address
// range; call once per Code object during the fill pass, then Finalize to sort.
func (l *Linker) RegisterCodeRange(code *refs.Object, dataAddr uint64, size uint32) {
	l.codeRanges = append(l.codeRanges, CodeRange{Code: code, DataAddr: dataAddr, Size: size})
}

// Finalize sorts the recorded code ranges for SearchAddress's binary search.
func (l *Linker) Finalize() {
	sort.Slice(l.codeRanges, func(i, j int) bool { return l.codeRanges[i].DataAddr < l.codeRanges[j].DataAddr })
}

// CodeRanges returns every registered code range, sorted if Finalize has
// been called. Used by internal/codeinspect to walk every Code object
// rather than resolve a single address.
func (l *Linker) CodeRanges() []CodeRange { return l.codeRanges }

// RefsByCID returns every object whose cluster's cid name equals name
// (§4.6's get_refs).
func (l *Linker) RefsByCID(name string) []*refs.Object { return l.byCID[name] }

// RefsByHandler returns every object whose cluster was parsed by the named
// handler — a supplement to RefsByCID grounded on original_source/darter's
// Deserializer.get_all, which also supports lookup by handler/class name
// rather than only by cid name.
func (l *Linker) RefsByHandler(name string) []*refs.Object { return l.byName[name] }

// SearchAddress implements §4.6's search_address: binary search the sorted
// code-by-address list, returning the Code object and the in-function
// offset if pc falls inside it.
func (l *Linker) SearchAddress(pc uint64) (*refs.Object, uint64, bool) {
	ranges := l.codeRanges
	i := sort.Search(len(ranges), func(i int) bool { return ranges[i].DataAddr > pc })
	if i == 0 {
		return nil, 0, false
	}
	r := ranges[i-1]
	if pc < r.DataAddr || pc >= r.DataAddr+uint64(r.Size) {
		return nil, 0, false
	}
	return r.Code, pc - r.DataAddr, true
}

// EntryPointKind names one of the entries §4.6's get_entry_points produces.
type EntryPointKind struct {
	Polymorphic bool
	Checked     bool
}

// EntryPoints implements §4.6's get_entry_points: for a resolved instructions
// range, produce {mono, poly} entries at dataAddr+monoOffset/polyOffset
// (poly omitted when singleEntry), then the same entries shifted by
// uncheckedOffset with Checked=false when uncheckedOffset != 0.
func EntryPoints(dataAddr uint64, monoOffset, polyOffset, uncheckedOffset uint32, singleEntry bool) map[uint64]EntryPointKind {
	out := map[uint64]EntryPointKind{}
	out[dataAddr+uint64(monoOffset)] = EntryPointKind{Polymorphic: false, Checked: true}
	if !singleEntry {
		out[dataAddr+uint64(polyOffset)] = EntryPointKind{Polymorphic: true, Checked: true}
	}
	if uncheckedOffset != 0 {
		out[dataAddr+uint64(monoOffset)+uint64(uncheckedOffset)] = EntryPointKind{Polymorphic: false, Checked: false}
		if !singleEntry {
			out[dataAddr+uint64(polyOffset)+uint64(uncheckedOffset)] = EntryPointKind{Polymorphic: true, Checked: false}
		}
	}
	return out
}
