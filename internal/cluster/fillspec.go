package cluster

// TypeTableEntry is one handler's static field schedule (§4.5 step 5, §7):
// the ordered list of reference fields the driver reads generically before
// calling the handler's Fill, for handlers whose DoReadFrom is true. Fields
// absent from a given snapshot's kind are dropped by Prune.
//
// Grounded on the teacher's internal/cluster/fillspec.go FillSpec/specX()
// builders for the handlers spec.md leaves as "specific primitive fields
// (see constant tables)" (TypeRef, TypeParameter, Closure, UnlinkedCall,
// MegamorphicCache, SubtypeTestCache, UnhandledException, Namespace,
// ClosureData, SignatureData, WeakProperty, StackTrace, GrowableObjectArray,
// FunctionType); collapsed from the teacher's ten-SDK-version matrix down to
// one canonical field list per handler, since this driver conditions only on
// snapshot kind/flags, never on historical SDK version (see DESIGN.md).
type TypeTableEntry struct {
	RefFields []string
	Prune     func(Flags) []string // nil means RefFields is never pruned
}

// typeTable holds the generic ref-read schedule for every DoReadFrom=true
// handler. Handlers with no fixed ref list (empty fill, or entirely
// scalar fill per spec.md's catalog) still get an entry with a nil/empty
// RefFields so the driver's generic step is a no-op for them.
var typeTable = map[string]TypeTableEntry{
	"Class":            {},
	"Type":             {},
	"Script":           {},
	"RegExp":           {},
	"KernelProgramInfo": {},
	"LibraryPrefix":    {},
	// Baseline Code ref fields, named after the public Dart VM Code object
	// layout (object_pool/owner/exception_handlers/pc_descriptors/...); the
	// driver reads instructions/active_instructions separately before this
	// list runs. static_calls_target_table and deopt_info_array are dropped
	// unless precompiled or FullJIT, matching darter's initialize_clusters.
	"Code": {
		RefFields: []string{
			"object_pool", "owner", "exception_handlers", "pc_descriptors",
			"catch_entry_moves_maps", "compressed_stackmaps", "inline_id_to_function",
			"code_source_map", "static_calls_target_table", "deopt_info_array",
		},
		Prune: func(f Flags) []string {
			base := []string{
				"object_pool", "owner", "exception_handlers", "pc_descriptors",
				"catch_entry_moves_maps", "compressed_stackmaps", "inline_id_to_function",
				"code_source_map",
			}
			if f.IsPrecompiled || f.Kind == KindFullJIT {
				return append(base, "static_calls_target_table", "deopt_info_array")
			}
			return base
		},
	},
	"Mint":             {},
	"Double":           {},

	// ObjectStore is the root pseudo-cluster's field schedule (§4.5 step 10,
	// isolate-root branch). The exact VM ObjectStore layout is build-specific
	// and outside this driver's bundled data; this is a representative
	// fixed-size field list (named after the public ObjectStore member
	// categories: well-known classes, core libraries, caches) sized to
	// exercise the same generic ref-read path real roots use. See DESIGN.md.
	"ObjectStore": {RefFields: []string{
		"symbol_table", "string_class", "array_class", "bool_class", "root_library",
		"async_library", "core_library", "collection_library", "typed_data_library",
		"pending_classes", "libraries", "unique_dynamic_targets",
	}},

	"TypeRef": {RefFields: []string{"type_test_stub", "type"}},

	"TypeParameter": {RefFields: []string{"name", "bound", "default_argument"}},

	// Driver coordination step 1 reads the leading canonical bit before this
	// list for Closure and GrowableObjectArray.
	"Closure": {RefFields: []string{
		"instantiator_type_arguments", "function_type_arguments",
		"delayed_type_arguments", "function", "context", "hash",
	}},

	"UnlinkedCall": {RefFields: []string{"target_name", "args_descriptor"}},

	"MegamorphicCache": {RefFields: []string{"target_name", "args_descriptor", "buckets", "mask"}},

	"SubtypeTestCache": {RefFields: []string{"cache"}},

	"UnhandledException": {RefFields: []string{"exception", "stacktrace"}},

	"Namespace": {RefFields: []string{"target"}},

	// §4.5 step 5's named pruning: ClosureData drops context_scope for FullAOT.
	"ClosureData": {
		RefFields: []string{"context_scope", "default_type_arguments_info"},
		Prune: func(f Flags) []string {
			if f.Kind == KindFullAOT {
				return []string{"default_type_arguments_info"}
			}
			return []string{"context_scope", "default_type_arguments_info"}
		},
	},

	"SignatureData": {RefFields: []string{"parent_function", "signature_type"}},

	"WeakProperty": {RefFields: []string{"key", "value"}},

	"StackTrace": {RefFields: []string{"code_array", "pc_offset_array"}},

	"GrowableObjectArray": {RefFields: []string{"type_arguments", "length", "data"}},

	"FunctionType": {RefFields: []string{
		"type_parameters", "parameter_types", "parameter_names",
		"named_parameter_names", "result_type", "hash",
	}},
}

// TypeTableFields returns the ref fields the driver should read generically
// for handler before calling its Fill, honoring any kind-specific pruning.
func TypeTableFields(handler string, f Flags) []string {
	entry, ok := typeTable[handler]
	if !ok {
		return nil
	}
	if entry.Prune != nil {
		return entry.Prune(f)
	}
	return entry.RefFields
}

// DoesReadFrom reports whether the driver should run the generic type-table
// ref-read step for handler before calling Fill. Handlers whose ref and
// scalar reads are conditionally interleaved (Instance, PatchClass,
// Function, Field, Library, ICData, and every LengthHandler/RODataHandler
// consumer) read everything themselves instead.
func DoesReadFrom(handler string) bool {
	switch handler {
	case "Instance", "PatchClass", "Function", "Field", "Library", "ICData",
		"ObjectPool", "ExceptionHandlers", "TypeArguments",
		"Array", "ImmutableArray", "ContextScope", "TypedData", "TypedDataView",
		"OneByteString", "TwoByteString", "String",
		"PcDescriptors", "StackMap", "CodeSourceMap":
		return false
	default:
		_, ok := typeTable[handler]
		return ok
	}
}
