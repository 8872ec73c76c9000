package cluster

import (
	"fmt"
	"math/bits"

	"unflutter/internal/dartfmt"
	"unflutter/internal/refs"
)

// AllocFunc pre-allocates every object belonging to one cluster and may
// record per-cluster metadata (§4.3 "alloc").
type AllocFunc func(s *dartfmt.Stream, c *refs.Cluster, t *refs.Table, f Flags) error

// FillFunc populates one object's payload (§4.3 "fill"). t is passed so
// handlers can resolve refs read directly (handlers with DoReadFrom=false);
// handlers with DoReadFrom=true receive an obj whose ref fields the driver
// already populated from the static type table.
type FillFunc func(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error

// Handler is one entry in the polymorphic cluster handler catalog (§4.3).
type Handler struct {
	Name       string
	DoReadFrom bool
	Alloc      AllocFunc
	Fill       FillFunc
}

func simpleAlloc(s *dartfmt.Stream, c *refs.Cluster, t *refs.Table, f Flags) error {
	count, err := s.ReadUnsigned()
	if err != nil {
		return err
	}
	for i := int64(0); i < count; i++ {
		t.Alloc(c)
	}
	return nil
}

// lengthAlloc implements LengthHandler's alloc: read count, then for each
// object read a length stored in its payload before allocation.
func lengthAlloc(s *dartfmt.Stream, c *refs.Cluster, t *refs.Table, f Flags) error {
	count, err := s.ReadUnsigned()
	if err != nil {
		return err
	}
	for i := int64(0); i < count; i++ {
		length, err := s.ReadUnsigned()
		if err != nil {
			return err
		}
		obj := t.Alloc(c)
		obj.Payload["_length"] = refs.IntValue(length)
	}
	return nil
}

// objectAlignmentLog2 mirrors rodata.ObjectAlignmentLog2 (kept local to avoid
// a cluster->rodata import cycle, since rodata already imports cluster).
func objectAlignmentLog2(is64 bool) uint {
	wordSize := 4
	if is64 {
		wordSize = 8
	}
	return uint(bits.Len(uint(2*wordSize))) - 1
}

// rodataAlloc implements RODataHandler's alloc: read count, then count
// offset-deltas, accumulating a running offset (shifted by
// kObjectAlignmentLog2, arch-dependent) into the rodata region. The offsets
// are recorded for the driver/rodata parser to resolve during fill; this
// package does not read the rodata blob itself (§4.4 lives in internal/rodata).
func rodataAlloc(s *dartfmt.Stream, c *refs.Cluster, t *refs.Table, f Flags) error {
	objAlignLog2 := objectAlignmentLog2(f.Is64)
	count, err := s.ReadUnsigned()
	if err != nil {
		return err
	}
	offsets := make([]int64, 0, count)
	var running int64
	for i := int64(0); i < count; i++ {
		delta, err := s.ReadUnsigned()
		if err != nil {
			return err
		}
		running += delta << objAlignLog2
		offsets = append(offsets, running)
		t.Alloc(c)
	}
	if c.Meta == nil {
		c.Meta = map[string]any{}
	}
	c.Meta["rodata_offsets"] = offsets

	if c.CID == CIDString || c.Name == "String" {
		canonical, _ := c.Meta["canonical"].(bool)
		if canonical {
			cs, err := ReadCanonicalSetTail(s, count)
			if err != nil {
				return err
			}
			c.Meta["canonical_set"] = cs
		}
	}
	return nil
}

// mintAlloc reads count objects whose int64 value is produced during alloc,
// not fill (§4.3's Mint row).
func mintAlloc(s *dartfmt.Stream, c *refs.Cluster, t *refs.Table, f Flags) error {
	count, err := s.ReadUnsigned()
	if err != nil {
		return err
	}
	for i := int64(0); i < count; i++ {
		v, err := s.ReadTagged64()
		if err != nil {
			return err
		}
		obj := t.Alloc(c)
		obj.Payload["value"] = refs.IntValue(v)
	}
	return nil
}

func noopFill(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
	return nil
}

func storeRef(s *dartfmt.Stream, t *refs.Table, obj *refs.Object, field string, f Flags, diags *dartfmt.Diags) error {
	return t.StoreRef(s, f.UnsignedRefEncoding, obj, field, diags, f.Strict)
}

// Registry is the full set of handlers named in §4.3's catalog, keyed by
// handler name. ClassifyHandler maps a cid to one of these keys.
var Registry = buildRegistry()

func buildRegistry() map[string]*Handler {
	h := map[string]*Handler{}

	h["Class"] = &Handler{Name: "Class", DoReadFrom: true, Alloc: classAlloc, Fill: classFill}
	h["Instance"] = &Handler{Name: "Instance", DoReadFrom: false, Alloc: instanceAlloc, Fill: instanceFill}
	h["Type"] = &Handler{Name: "Type", DoReadFrom: true, Alloc: typeAlloc, Fill: typeFill}

	for _, name := range []string{
		"TypeRef", "TypeParameter", "Closure", "UnlinkedCall", "MegamorphicCache",
		"SubtypeTestCache", "UnhandledException", "Namespace", "ClosureData",
		"SignatureData", "WeakProperty", "StackTrace", "GrowableObjectArray", "FunctionType",
	} {
		h[name] = &Handler{Name: name, DoReadFrom: true, Alloc: simpleAlloc, Fill: scalarFillFor(name)}
	}

	h["Mint"] = &Handler{Name: "Mint", DoReadFrom: true, Alloc: mintAlloc, Fill: noopFill}
	h["Double"] = &Handler{Name: "Double", DoReadFrom: true, Alloc: simpleAlloc, Fill: doubleFill}
	h["PatchClass"] = &Handler{Name: "PatchClass", DoReadFrom: false, Alloc: simpleAlloc, Fill: patchClassFill}
	h["Function"] = &Handler{Name: "Function", DoReadFrom: false, Alloc: simpleAlloc, Fill: functionFill}
	h["Field"] = &Handler{Name: "Field", DoReadFrom: false, Alloc: simpleAlloc, Fill: fieldFill}
	h["Script"] = &Handler{Name: "Script", DoReadFrom: true, Alloc: simpleAlloc, Fill: scriptFill}
	h["Library"] = &Handler{Name: "Library", DoReadFrom: false, Alloc: simpleAlloc, Fill: libraryFill}
	h["Code"] = &Handler{Name: "Code", DoReadFrom: true, Alloc: codeAlloc, Fill: noopFill}
	h["ObjectPool"] = &Handler{Name: "ObjectPool", DoReadFrom: false, Alloc: lengthAlloc, Fill: objectPoolFill}
	h["ExceptionHandlers"] = &Handler{Name: "ExceptionHandlers", DoReadFrom: false, Alloc: lengthAlloc, Fill: exceptionHandlersFill}
	h["TypeArguments"] = &Handler{Name: "TypeArguments", DoReadFrom: false, Alloc: lengthAlloc, Fill: typeArgumentsFill}

	arrayFill := arrayFillFor()
	h["Array"] = &Handler{Name: "Array", DoReadFrom: false, Alloc: lengthAlloc, Fill: arrayFill}
	h["ImmutableArray"] = &Handler{Name: "ImmutableArray", DoReadFrom: false, Alloc: lengthAlloc, Fill: arrayFill}

	h["ContextScope"] = &Handler{Name: "ContextScope", DoReadFrom: false, Alloc: simpleAlloc, Fill: contextScopeFill}
	h["ICData"] = &Handler{Name: "ICData", DoReadFrom: false, Alloc: simpleAlloc, Fill: icDataFill}
	h["LibraryPrefix"] = &Handler{Name: "LibraryPrefix", DoReadFrom: true, Alloc: simpleAlloc, Fill: libraryPrefixFill}
	h["RegExp"] = &Handler{Name: "RegExp", DoReadFrom: true, Alloc: simpleAlloc, Fill: regExpFill}
	h["KernelProgramInfo"] = &Handler{Name: "KernelProgramInfo", DoReadFrom: true, Alloc: simpleAlloc, Fill: kernelProgramInfoFill}

	h["TypedData"] = &Handler{Name: "TypedData", DoReadFrom: false, Alloc: lengthAlloc, Fill: typedDataFill}
	h["TypedDataView"] = &Handler{Name: "TypedDataView", DoReadFrom: false, Alloc: simpleAlloc, Fill: typedDataViewFill}
	h["ExternalTypedData"] = &Handler{Name: "ExternalTypedData", DoReadFrom: false, Alloc: simpleAlloc, Fill: externalTypedDataFill}

	oneByte, twoByte := stringFillFor(false), stringFillFor(true)
	h["OneByteString"] = &Handler{Name: "OneByteString", DoReadFrom: false, Alloc: lengthAlloc, Fill: oneByte}
	h["TwoByteString"] = &Handler{Name: "TwoByteString", DoReadFrom: false, Alloc: lengthAlloc, Fill: twoByte}
	h["String"] = h["OneByteString"]

	roDataFill := roDataFillFor()
	for _, name := range []string{"PcDescriptors", "StackMap", "CodeSourceMap", "CompressedStackMaps"} {
		h[name] = &Handler{Name: name, DoReadFrom: false, Alloc: rodataAlloc, Fill: roDataFill}
	}

	// ObjectStore is the pseudo-cluster the driver synthesizes for the root
	// object (§4.5 step 10): its ref fields come entirely from the static
	// object-store field list, so Fill has nothing left to do.
	h["ObjectStore"] = &Handler{Name: "ObjectStore", DoReadFrom: true, Alloc: nil, Fill: noopFill}

	// BaseObject is the pseudo-cluster statictables.SynthesizeBaseObjects
	// allocates into directly; it is never dispatched through alloc/fill.
	h["BaseObject"] = &Handler{Name: "BaseObject", DoReadFrom: false, Alloc: nil, Fill: noopFill}

	return h
}

// --- Class -----------------------------------------------------------------

func classAlloc(s *dartfmt.Stream, c *refs.Cluster, t *refs.Table, f Flags) error {
	n1, err := s.ReadUnsigned()
	if err != nil {
		return err
	}
	for i := int64(0); i < n1; i++ {
		cid, err := s.ReadCID()
		if err != nil {
			return err
		}
		obj := t.Alloc(c)
		obj.Payload["predefined_cid"] = refs.IntValue(int64(cid))
	}
	n2, err := s.ReadUnsigned()
	if err != nil {
		return err
	}
	for i := int64(0); i < n2; i++ {
		t.Alloc(c)
	}
	return nil
}

func classFill(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
	cid, err := s.ReadCID()
	if err != nil {
		return err
	}
	obj.Payload["cid"] = refs.IntValue(int64(cid))

	if !f.IsPrecompiled && f.Kind != KindFullAOT {
		v, err := s.ReadTagged32()
		if err != nil {
			return err
		}
		obj.Payload["binary_declaration"] = refs.IntValue(int64(v))
	}
	fields := []string{"instance_size", "next_field_offset", "type_arguments_offset"}
	for _, name := range fields {
		v, err := s.ReadUnsigned()
		if err != nil {
			return err
		}
		obj.Payload[name] = refs.IntValue(v)
	}
	for _, name := range []string{"num_type_arguments", "num_native_fields"} {
		v, err := s.ReadUint16()
		if err != nil {
			return err
		}
		obj.Payload[name] = refs.IntValue(int64(v))
	}
	for _, name := range []string{"token_pos", "end_token_pos"} {
		v, err := s.ReadTokenPosition()
		if err != nil {
			return err
		}
		obj.Payload[name] = refs.IntValue(int64(v))
	}
	state, err := s.ReadTagged32()
	if err != nil {
		return err
	}
	obj.Payload["state_bits"] = refs.IntValue(int64(state))
	return nil
}

// --- Instance ----------------------------------------------------------------

func instanceAlloc(s *dartfmt.Stream, c *refs.Cluster, t *refs.Table, f Flags) error {
	count, err := s.ReadUnsigned()
	if err != nil {
		return err
	}
	nextFieldOffset, err := s.ReadCInt(32)
	if err != nil {
		return err
	}
	instanceSize, err := s.ReadCInt(32)
	if err != nil {
		return err
	}
	if c.Meta == nil {
		c.Meta = map[string]any{}
	}
	c.Meta["next_field_offset_in_words"] = int64(nextFieldOffset)
	c.Meta["instance_size_in_words"] = int64(instanceSize)
	for i := int64(0); i < count; i++ {
		t.Alloc(c)
	}
	return nil
}

func instanceFill(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
	canonical, err := s.ReadBool()
	if err != nil {
		return err
	}
	obj.Payload["canonical"] = refs.BoolValue(canonical)

	nextFieldOffset, _ := obj.Cluster.Meta["next_field_offset_in_words"].(int64)
	numFields := nextFieldOffset - 1
	if numFields < 0 {
		numFields = 0
	}
	fieldRefs := make([]refs.Value, 0, numFields)
	for i := int64(0); i < numFields; i++ {
		ref, err := t.ReadRef(s, f.UnsignedRefEncoding, refs.Source{ParentRef: obj.ID, Field: fmt.Sprintf("field_%d", i)}, diags, f.Strict)
		if err != nil {
			return err
		}
		fieldRefs = append(fieldRefs, refs.RefValue(ref.ID))
	}
	obj.Payload["fields"] = refs.Value{List: fieldRefs}
	return nil
}

// --- Type --------------------------------------------------------------------

func typeAlloc(s *dartfmt.Stream, c *refs.Cluster, t *refs.Table, f Flags) error {
	canonicalCount, err := s.ReadUnsigned()
	if err != nil {
		return err
	}
	for i := int64(0); i < canonicalCount; i++ {
		obj := t.Alloc(c)
		obj.Payload["canonical"] = refs.BoolValue(true)
	}
	nonCanonicalCount, err := s.ReadUnsigned()
	if err != nil {
		return err
	}
	for i := int64(0); i < nonCanonicalCount; i++ {
		obj := t.Alloc(c)
		obj.Payload["canonical"] = refs.BoolValue(false)
	}
	return nil
}

func typeFill(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
	pos, err := s.ReadTokenPosition()
	if err != nil {
		return err
	}
	obj.Payload["token_pos"] = refs.IntValue(int64(pos))
	state, err := s.ReadUint8()
	if err != nil {
		return err
	}
	obj.Payload["type_state"] = refs.IntValue(int64(state))
	return nil
}

// --- Double / PatchClass -----------------------------------------------------

func doubleFill(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
	canonical, err := s.ReadBool()
	if err != nil {
		return err
	}
	obj.Payload["canonical"] = refs.BoolValue(canonical)
	v, err := s.ReadDouble()
	if err != nil {
		return err
	}
	obj.Payload["value"] = refs.DoubleValue(v)
	return nil
}

func patchClassFill(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
	if err := storeRef(s, t, obj, "patched_class", f, diags); err != nil {
		return err
	}
	if !f.IsPrecompiled && f.Kind != KindFullAOT {
		v, err := s.ReadTagged32()
		if err != nil {
			return err
		}
		obj.Payload["library_kernel_offset"] = refs.IntValue(int64(v))
	}
	return nil
}

// --- Function ------------------------------------------------------------

func functionFill(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
	for _, name := range []string{"name", "owner", "signature", "data"} {
		if err := storeRef(s, t, obj, name, f, diags); err != nil {
			return err
		}
	}
	if f.IncludesBytecode {
		if err := storeRef(s, t, obj, "bytecode", f, diags); err != nil {
			return err
		}
	}
	if !f.IsPrecompiled {
		if err := storeRef(s, t, obj, "unoptimized_code", f, diags); err != nil {
			return err
		}
	}
	if f.IncludesCode {
		if err := storeRef(s, t, obj, "code", f, diags); err != nil {
			return err
		}
	}
	if !f.IsPrecompiled {
		if err := storeRef(s, t, obj, "ic_data_array", f, diags); err != nil {
			return err
		}
		for _, name := range []string{"token_pos", "end_token_pos"} {
			v, err := s.ReadTokenPosition()
			if err != nil {
				return err
			}
			obj.Payload[name] = refs.IntValue(int64(v))
		}
		if f.Kind != KindFullAOT {
			v, err := s.ReadTagged32()
			if err != nil {
				return err
			}
			obj.Payload["binary_declaration"] = refs.IntValue(int64(v))
		}
	}
	packed, err := s.ReadTagged32()
	if err != nil {
		return err
	}
	obj.Payload["packed_fields"] = refs.IntValue(int64(packed))
	kindTag, err := s.ReadUint64()
	if err != nil {
		return err
	}
	obj.Payload["kind_tag"] = refs.IntValue(int64(kindTag))
	return nil
}

// --- Field -----------------------------------------------------------------

func fieldFill(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
	for _, name := range []string{"name", "owner", "type"} {
		if err := storeRef(s, t, obj, name, f, diags); err != nil {
			return err
		}
	}
	if err := storeRef(s, t, obj, "initializer_or_field_offset", f, diags); err != nil {
		return err
	}
	if !f.IsPrecompiled {
		for _, name := range []string{"token_pos", "end_token_pos"} {
			v, err := s.ReadTokenPosition()
			if err != nil {
				return err
			}
			obj.Payload[name] = refs.IntValue(int64(v))
		}
		cid, err := s.ReadCID()
		if err != nil {
			return err
		}
		obj.Payload["guarded_cid"] = refs.IntValue(int64(cid))
		nullable, err := s.ReadBool()
		if err != nil {
			return err
		}
		obj.Payload["is_nullable"] = refs.BoolValue(nullable)
		binDecl, err := s.ReadTagged32()
		if err != nil {
			return err
		}
		obj.Payload["binary_declaration"] = refs.IntValue(int64(binDecl))
	} else {
		state, err := s.ReadUint8()
		if err != nil {
			return err
		}
		obj.Payload["static_type_exactness_state"] = refs.IntValue(int64(state))
	}
	kindBits, err := s.ReadUint16()
	if err != nil {
		return err
	}
	obj.Payload["kind_bits"] = refs.IntValue(int64(kindBits))
	return nil
}

// --- Script ------------------------------------------------------------------

func scriptFill(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
	for _, name := range []string{"line_offset", "col_offset"} {
		v, err := s.ReadInt32()
		if err != nil {
			return err
		}
		obj.Payload[name] = refs.IntValue(int64(v))
	}
	kind, err := s.ReadUint8()
	if err != nil {
		return err
	}
	obj.Payload["kind"] = refs.IntValue(int64(kind))
	idx, err := s.ReadInt32()
	if err != nil {
		return err
	}
	obj.Payload["kernel_script_index"] = refs.IntValue(int64(idx))
	return nil
}

// --- Library -----------------------------------------------------------------

func libraryFill(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
	for _, name := range []string{
		"name", "url", "private_key", "dictionary", "metadata",
		"toplevel_class", "used_scripts", "loaded_scripts", "owned_scripts", "imports",
	} {
		if err := storeRef(s, t, obj, name, f, diags); err != nil {
			return err
		}
	}
	idx, err := s.ReadInt32()
	if err != nil {
		return err
	}
	obj.Payload["index"] = refs.IntValue(int64(idx))
	numImports, err := s.ReadUint16()
	if err != nil {
		return err
	}
	obj.Payload["num_imports"] = refs.IntValue(int64(numImports))
	loadState, err := s.ReadUint8()
	if err != nil {
		return err
	}
	obj.Payload["load_state"] = refs.IntValue(int64(loadState))
	isDartScheme, err := s.ReadBool()
	if err != nil {
		return err
	}
	obj.Payload["is_dart_scheme"] = refs.BoolValue(isDartScheme)
	debuggable, err := s.ReadBool()
	if err != nil {
		return err
	}
	obj.Payload["debuggable"] = refs.BoolValue(debuggable)
	if !f.IsPrecompiled {
		v, err := s.ReadTagged32()
		if err != nil {
			return err
		}
		obj.Payload["binary_declaration"] = refs.IntValue(int64(v))
	}
	return nil
}

// --- Code ----------------------------------------------------------------

func codeAlloc(s *dartfmt.Stream, c *refs.Cluster, t *refs.Table, f Flags) error {
	count, err := s.ReadUnsigned()
	if err != nil {
		return err
	}
	for i := int64(0); i < count; i++ {
		state, err := s.ReadTagged32()
		if err != nil {
			return err
		}
		obj := t.Alloc(c)
		obj.Payload["state_bits"] = refs.IntValue(int64(state))
	}
	deferredCount, err := s.ReadUnsigned()
	if err != nil {
		return err
	}
	for i := int64(0); i < deferredCount; i++ {
		state, err := s.ReadTagged32()
		if err != nil {
			return err
		}
		obj := t.Alloc(c)
		obj.Payload["state_bits"] = refs.IntValue(int64(state))
		obj.Payload["deferred"] = refs.BoolValue(true)
	}
	return nil
}

// --- ObjectPool ------------------------------------------------------------

const (
	poolEntryTaggedObject = 0
	poolEntryImmediate    = 1
	poolEntryNativeEntry  = 2
)

func objectPoolFill(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
	n, err := s.ReadUnsigned()
	if err != nil {
		return err
	}
	entries := make([]refs.Value, 0, n)
	for i := int64(0); i < n; i++ {
		tag, err := s.ReadByte()
		if err != nil {
			return err
		}
		patchable := tag>>7 == 0
		typ := tag & 0x7f
		_ = patchable
		switch typ {
		case poolEntryTaggedObject, poolEntryNativeEntry:
			ref, err := t.ReadRef(s, f.UnsignedRefEncoding, refs.Source{ParentRef: obj.ID, Field: "pool_entry"}, diags, f.Strict)
			if err != nil {
				return err
			}
			entries = append(entries, refs.RefValue(ref.ID))
		case poolEntryImmediate:
			v, err := s.ReadTagged64()
			if err != nil {
				return err
			}
			entries = append(entries, refs.IntValue(v))
		default:
			entries = append(entries, refs.NullValue())
		}
	}
	obj.Payload["entries"] = refs.Value{List: entries}
	return nil
}

// --- ExceptionHandlers -------------------------------------------------------

func exceptionHandlersFill(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
	count, err := s.ReadUnsigned()
	if err != nil {
		return err
	}
	if err := storeRef(s, t, obj, "handled_types_data", f, diags); err != nil {
		return err
	}
	records := make([]refs.Value, 0, count)
	for i := int64(0); i < count; i++ {
		pcOffset, err := s.ReadInt32()
		if err != nil {
			return err
		}
		outerTry, err := s.ReadUint16()
		if err != nil {
			return err
		}
		needsStacktrace, err := s.ReadUint8()
		if err != nil {
			return err
		}
		hasCatchAll, err := s.ReadUint8()
		if err != nil {
			return err
		}
		isGenerated, err := s.ReadUint8()
		if err != nil {
			return err
		}
		records = append(records, refs.Value{List: []refs.Value{
			refs.IntValue(int64(pcOffset)), refs.IntValue(int64(outerTry)),
			refs.IntValue(int64(needsStacktrace)), refs.IntValue(int64(hasCatchAll)),
			refs.IntValue(int64(isGenerated)),
		}})
	}
	obj.Payload["handlers"] = refs.Value{List: records}
	return nil
}

// --- TypeArguments -----------------------------------------------------------

func typeArgumentsFill(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
	count, err := s.ReadUnsigned()
	if err != nil {
		return err
	}
	canonical, err := s.ReadBool()
	if err != nil {
		return err
	}
	obj.Payload["canonical"] = refs.BoolValue(canonical)
	hash, err := s.ReadTagged32()
	if err != nil {
		return err
	}
	obj.Payload["hash"] = refs.IntValue(int64(hash))
	if err := storeRef(s, t, obj, "instantiations", f, diags); err != nil {
		return err
	}
	types := make([]refs.Value, 0, count)
	for i := int64(0); i < count; i++ {
		ref, err := t.ReadRef(s, f.UnsignedRefEncoding, refs.Source{ParentRef: obj.ID, Field: "type"}, diags, f.Strict)
		if err != nil {
			return err
		}
		types = append(types, refs.RefValue(ref.ID))
	}
	obj.Payload["types"] = refs.Value{List: types}
	return nil
}

// --- Array / ImmutableArray --------------------------------------------------

func arrayFillFor() FillFunc {
	return func(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
		count, err := s.ReadUnsigned()
		if err != nil {
			return err
		}
		canonical, err := s.ReadBool()
		if err != nil {
			return err
		}
		obj.Payload["canonical"] = refs.BoolValue(canonical)
		if err := storeRef(s, t, obj, "type_arguments", f, diags); err != nil {
			return err
		}
		elems := make([]refs.Value, 0, count)
		for i := int64(0); i < count; i++ {
			ref, err := t.ReadRef(s, f.UnsignedRefEncoding, refs.Source{ParentRef: obj.ID, Field: "element"}, diags, f.Strict)
			if err != nil {
				return err
			}
			elems = append(elems, refs.RefValue(ref.ID))
		}
		obj.Payload["elements"] = refs.Value{List: elems}
		return nil
	}
}

// --- ContextScope ------------------------------------------------------------

func contextScopeFill(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
	length, err := s.ReadUnsigned()
	if err != nil {
		return err
	}
	implicit, err := s.ReadBool()
	if err != nil {
		return err
	}
	obj.Payload["implicit"] = refs.BoolValue(implicit)
	vars := make([]refs.Value, 0, length)
	for i := int64(0); i < length; i++ {
		declPos, err := s.ReadUnsigned()
		if err != nil {
			return err
		}
		tokenPos, err := s.ReadUnsigned()
		if err != nil {
			return err
		}
		entry := []refs.Value{refs.IntValue(declPos), refs.IntValue(tokenPos)}
		for _, field := range []string{"name", "is_final", "is_const", "value_or_type"} {
			ref, err := t.ReadRef(s, f.UnsignedRefEncoding, refs.Source{ParentRef: obj.ID, Field: field}, diags, f.Strict)
			if err != nil {
				return err
			}
			entry = append(entry, refs.RefValue(ref.ID))
		}
		ctxIdx, err := s.ReadUnsigned()
		if err != nil {
			return err
		}
		ctxLevel, err := s.ReadUnsigned()
		if err != nil {
			return err
		}
		entry = append(entry, refs.IntValue(ctxIdx), refs.IntValue(ctxLevel))
		vars = append(vars, refs.Value{List: entry})
	}
	obj.Payload["variables"] = refs.Value{List: vars}
	return nil
}

// --- ICData / LibraryPrefix / RegExp / KernelProgramInfo --------------------

func icDataFill(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
	for _, name := range []string{"target_name", "args_descriptor", "owner"} {
		if err := storeRef(s, t, obj, name, f, diags); err != nil {
			return err
		}
	}
	if !f.IsPrecompiled {
		v, err := s.ReadTagged32()
		if err != nil {
			return err
		}
		obj.Payload["deopt_id"] = refs.IntValue(int64(v))
	}
	state, err := s.ReadTagged32()
	if err != nil {
		return err
	}
	obj.Payload["state_bits"] = refs.IntValue(int64(state))
	return nil
}

func libraryPrefixFill(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
	numImports, err := s.ReadUint16()
	if err != nil {
		return err
	}
	obj.Payload["num_imports"] = refs.IntValue(int64(numImports))
	deferred, err := s.ReadBool()
	if err != nil {
		return err
	}
	obj.Payload["deferred_load"] = refs.BoolValue(deferred)
	return nil
}

func regExpFill(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
	for _, name := range []string{"num_one_byte_registers", "num_two_byte_registers"} {
		v, err := s.ReadTagged32()
		if err != nil {
			return err
		}
		obj.Payload[name] = refs.IntValue(int64(v))
	}
	flags, err := s.ReadUint8()
	if err != nil {
		return err
	}
	obj.Payload["type_flags"] = refs.IntValue(int64(flags))
	return nil
}

func kernelProgramInfoFill(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
	v, err := s.ReadTagged32()
	if err != nil {
		return err
	}
	obj.Payload["kernel_binary_version"] = refs.IntValue(int64(v))
	return nil
}

// --- TypedData family --------------------------------------------------------

func typedDataFill(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
	length := obj.Payload["_length"].Int
	canonical, err := s.ReadBool()
	if err != nil {
		return err
	}
	obj.Payload["canonical"] = refs.BoolValue(canonical)
	data, err := s.ReadBytes(int(length))
	if err != nil {
		return err
	}
	obj.Payload["data"] = refs.BytesValue(data)
	return nil
}

func typedDataViewFill(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
	for _, name := range []string{"typed_data", "length", "offset_in_bytes"} {
		if err := storeRef(s, t, obj, name, f, diags); err != nil {
			return err
		}
	}
	return nil
}

func externalTypedDataFill(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
	s.Align(8)
	return nil
}

// --- Strings -----------------------------------------------------------------

func stringFillFor(twoByte bool) FillFunc {
	return func(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
		length := obj.Payload["_length"].Int
		canonical, err := s.ReadBool()
		if err != nil {
			return err
		}
		obj.Payload["canonical"] = refs.BoolValue(canonical)
		hash, err := s.ReadTagged32()
		if err != nil {
			return err
		}
		obj.Payload["hash"] = refs.IntValue(int64(hash))
		if !twoByte {
			b, err := s.ReadBytes(int(length))
			if err != nil {
				return err
			}
			obj.Payload["value"] = refs.StrValue(string(b))
			return nil
		}
		units := make([]uint16, length)
		for i := range units {
			u, err := s.ReadUint16()
			if err != nil {
				return err
			}
			units[i] = u
		}
		obj.Payload["value"] = refs.StrValue(string(utf16Decode(units)))
		return nil
	}
}

func utf16Decode(units []uint16) []rune {
	out := make([]rune, 0, len(units))
	for i := 0; i < len(units); i++ {
		u := units[i]
		if u >= 0xd800 && u <= 0xdbff && i+1 < len(units) {
			lo := units[i+1]
			if lo >= 0xdc00 && lo <= 0xdfff {
				r := (rune(u)-0xd800)<<10 + (rune(lo) - 0xdc00) + 0x10000
				out = append(out, r)
				i++
				continue
			}
		}
		out = append(out, rune(u))
	}
	return out
}

// --- RODataHandler-backed kinds ----------------------------------------------

// roDataFillFor returns a Fill that is a no-op: rodata-addressed clusters'
// alloc records only each object's offset in Cluster.Meta["rodata_offsets"].
// Neither this package nor the driver parses the rodata objects at those
// offsets, so these objects' payloads stay empty.
func roDataFillFor() FillFunc {
	return func(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
		return nil
	}
}

// --- Scalar-only fill for the "specific primitive fields" SimpleHandler group -

// scalarFillFor returns the Fill for handlers whose ref fields are read
// generically via the type table (DoReadFrom=true) and whose remaining work
// is either nothing or a small fixed scalar tail, grounded on the teacher's
// fillspec.go builders (see fillspec.go's doc comment).
func scalarFillFor(name string) FillFunc {
	switch name {
	case "UnlinkedCall":
		return func(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
			canPatch, err := s.ReadBool()
			if err != nil {
				return err
			}
			obj.Payload["can_patch"] = refs.BoolValue(canPatch)
			return nil
		}
	case "MegamorphicCache":
		return func(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
			v, err := s.ReadTagged32()
			if err != nil {
				return err
			}
			obj.Payload["filled_entry_count"] = refs.IntValue(int64(v))
			return nil
		}
	case "SubtypeTestCache":
		return func(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
			for _, field := range []string{"num_inputs", "num_occupied"} {
				v, err := s.ReadTagged32()
				if err != nil {
					return err
				}
				obj.Payload[field] = refs.IntValue(int64(v))
			}
			return nil
		}
	case "ClosureData":
		return func(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
			v, err := s.ReadUnsigned()
			if err != nil {
				return err
			}
			obj.Payload["default_type_arguments_kind"] = refs.IntValue(v)
			return nil
		}
	case "TypeParameter":
		return func(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
			for _, field := range []string{"base", "index"} {
				v, err := s.ReadUint16()
				if err != nil {
					return err
				}
				obj.Payload[field] = refs.IntValue(int64(v))
			}
			flags, err := s.ReadUint8()
			if err != nil {
				return err
			}
			obj.Payload["flags"] = refs.IntValue(int64(flags))
			return nil
		}
	case "FunctionType":
		return func(s *dartfmt.Stream, obj *refs.Object, t *refs.Table, f Flags, diags *dartfmt.Diags) error {
			combined, err := s.ReadUint8()
			if err != nil {
				return err
			}
			obj.Payload["combined"] = refs.IntValue(int64(combined))
			for _, field := range []string{"packed_parameter_counts", "packed_type_parameter_counts"} {
				v, err := s.ReadTagged32()
				if err != nil {
					return err
				}
				obj.Payload[field] = refs.IntValue(int64(v))
			}
			return nil
		}
	default:
		return noopFill
	}
}
