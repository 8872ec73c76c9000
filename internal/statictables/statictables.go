// Package statictables holds the small pieces of static data the driver
// needs but that aren't encoded in the snapshot itself: the base-object
// template used when no base snapshot is supplied, the VM-root stub-code
// list, and per-architecture code entry-point offsets (§2 item 7, §4.5
// steps 6 and 10, §4.6's get_entry_points).
//
// Grounded on original_source/darter/data/base_objects.py's
// make_base_entries (the (type, value[, cid]) entry shape and ordering) and
// original_source/darter/constants.py's kEntryOffsets/kStubCodeList. The
// real VM ships an exhaustive predefined-class-id table and stub-code list
// baked into the SDK build; this package carries a representative subset
// sized to the entry counts base_objects.py documents, not the full table,
// since the SDK's generated class_ids_*.json/stub_code_list.json aren't
// part of this module's bundled data (see DESIGN.md).
package statictables

import "unflutter/internal/refs"

// baseEntry is one synthesized base-object template row.
type baseEntry struct {
	Type string
	Value string
}

// fixedBaseEntries is base_objects.py's make_base_entries prefix: the
// singleton null/sentinel/bool/array/type objects every snapshot shares,
// in the order the real VM serializer walks them.
var fixedBaseEntries = []baseEntry{
	{"Null", "null"},
	{"Null", "sentinel"},
	{"Null", "transition_sentinel"},
	{"Array", "<empty_array>"},
	{"Array", "<zero_array>"},
	{"Type", "<dynamic type>"},
	{"Type", "<void type>"},
	{"TypeArguments", "[]"},
	{"bool", "true"},
	{"bool", "false"},
	{"Array", "<extractor parameter types>"},
	{"Array", "<extractor parameter names>"},
	{"ContextScope", "<empty>"},
	{"ObjectPool", "<empty>"},
	{"CompressedStackMaps", "<empty>"},
	{"PcDescriptors", "<empty>"},
	{"LocalVarDescriptors", "<empty>"},
	{"ExceptionHandlers", "<empty>"},
}

// kCachedDescriptorCount mirrors darter's kCachedDescriptorCount
// (runtime/vm/dart_entry.h).
const kCachedDescriptorCount = 32

// kCachedICDataArrayCount mirrors darter's derivation from
// kCachedICDataZeroArgTestedWithoutExactnessTrackingIdx(0) +
// kCachedICDataMaxArgsTestedWithoutExactnessTracking(2) + 1 + 1.
const kCachedICDataArrayCount = 4

// StubCodeNames is the stub-code list (§4.5 step 10): the VM root reads one
// ref per entry when the snapshot includes code, and SynthesizeBaseObjects
// adds one placeholder per entry when it does not.
var StubCodeNames = []string{
	"invoke_dart_code", "fix_callers_target", "fix_allocation_stub_code",
	"invoke_dart_code_from_bytecode", "lazy_compile", "interpret_call",
	"megamorphic_call_miss", "allocate_array", "allocate_mint",
	"allocate_object", "null_error", "stack_overflow",
	"unknown_dart_code",
}

// SynthesizeBaseObjects allocates n placeholder objects into a "BaseObject"
// pseudo-cluster, following base_objects.py's entry ordering: the fixed
// singleton prefix, cached-arguments-descriptor and cached-ICData-array
// placeholders, a subtype-test-cache placeholder, then generic "Class"
// placeholders standing in for the predefined-class-id span (which this
// package doesn't enumerate exhaustively), finally stub-code entries when
// !includesCode. The number of Class placeholders is whatever makes the
// table end up with exactly n objects; if the known entries alone exceed n,
// the list is truncated from the end. No diagnostic is recorded for the
// padding.
func SynthesizeBaseObjects(t *refs.Table, n int64, includesCode bool) *refs.Cluster {
	c := &refs.Cluster{CID: refs.CIDPseudo, Name: "BaseObject", Handler: "BaseObject"}

	entries := make([]baseEntry, 0, n)
	entries = append(entries, fixedBaseEntries...)
	for i := 0; i < kCachedDescriptorCount; i++ {
		entries = append(entries, baseEntry{"ArgumentsDescriptor", "<cached arguments descriptor>"})
	}
	for i := 0; i < kCachedICDataArrayCount; i++ {
		entries = append(entries, baseEntry{"Array", "<empty icdata entries>"})
	}
	entries = append(entries, baseEntry{"Array", "<empty subtype entries>"})

	numStubs := 0
	if !includesCode {
		numStubs = len(StubCodeNames)
	}
	for int64(len(entries)+numStubs) < n {
		entries = append(entries, baseEntry{"Class", "<predefined class>"})
	}

	if !includesCode {
		for _, name := range StubCodeNames {
			entries = append(entries, baseEntry{"Code", "<stub code " + name + ">"})
		}
	}
	if int64(len(entries)) > n {
		entries = entries[:n]
	}

	for _, e := range entries {
		obj := t.Alloc(c)
		obj.Payload["type"] = refs.StrValue(e.Type)
		obj.Payload["value"] = refs.StrValue(e.Value)
	}
	return c
}

// EntryOffsets is one arch's {mono, poly} entry-point byte offsets for a
// JIT or AOT instructions blob (§4.6's get_entry_points).
type EntryOffsets struct {
	Mono uint32
	Poly uint32
}

// entryOffsetsByArch mirrors constants.py's kEntryOffsets: (jit, aot) pairs
// keyed by architecture token.
var entryOffsetsByArch = map[string][2]EntryOffsets{
	"ia32":  {{Mono: 6, Poly: 34}, {Mono: 0, Poly: 0}},
	"x64":   {{Mono: 8, Poly: 40}, {Mono: 8, Poly: 32}},
	"arm":   {{Mono: 0, Poly: 40}, {Mono: 0, Poly: 20}},
	"arm64": {{Mono: 8, Poly: 48}, {Mono: 8, Poly: 28}},
}

// LookupEntryOffsets returns the {mono, poly} offsets for arch and
// isAOT, and whether arch was recognized.
func LookupEntryOffsets(arch string, isAOT bool) (EntryOffsets, bool) {
	pair, ok := entryOffsetsByArch[arch]
	if !ok {
		return EntryOffsets{}, false
	}
	if isAOT {
		return pair[1], true
	}
	return pair[0], true
}
