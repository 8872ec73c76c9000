// Package cluster implements the polymorphic cluster handler catalog (§4.3):
// one handler per class kind, each exposing alloc (reserve ref ids, record
// per-cluster metadata) and fill (populate payloads).
package cluster

// Predefined class-id constants. Values below NumPredefinedCids are
// VM-defined; values at or above it are user-defined classes, which always
// use the Instance handler. Grounded on the teacher's internal/cluster/cid.go
// table, kept as one fixed set (SPEC_FULL.md conditions parsing on snapshot
// kind/flags, not historical Dart SDK version, so the teacher's
// per-version CIDTable indirection is not carried over — see DESIGN.md).
const (
	CIDIllegal             = 0
	CIDClass               = 5
	CIDPatchClass          = 6
	CIDFunction            = 7
	CIDClosureData         = 9
	CIDField               = 11
	CIDScript              = 12
	CIDLibrary             = 13
	CIDNamespace           = 14
	CIDKernelProgramInfo   = 15
	CIDWeakArray           = 17
	CIDCode                = 18
	CIDObjectPool          = 23
	CIDPcDescriptors       = 24
	CIDCodeSourceMap       = 25
	CIDCompressedStackMaps = 26
	CIDExceptionHandlers   = 28
	CIDContext             = 29
	CIDContextScope        = 30
	CIDUnlinkedCall        = 35
	CIDICData              = 36
	CIDMegamorphicCache    = 37
	CIDSubtypeTestCache    = 38
	CIDUnhandledException  = 43

	CIDInstance      = 45
	CIDLibraryPrefix = 46
	CIDTypeArguments = 47
	CIDType          = 49
	CIDFunctionType  = 50
	CIDTypeParameter = 52
	CIDClosure       = 57
	CIDMint          = 61
	CIDDouble        = 62

	CIDRecord            = 67
	CIDTypedData         = 69
	CIDExternalTypedData = 70
	CIDTypedDataView     = 71

	CIDStackTrace          = 77
	CIDRegExp              = 79
	CIDWeakProperty        = 80
	CIDGrowableObjectArray = 92

	CIDArray          = 90
	CIDImmutableArray = 91

	CIDString        = 93
	CIDOneByteString = 94
	CIDTwoByteString = 95

	NumPredefinedCids = 96
)

var cidNames = map[int64]string{
	CIDClass: "Class", CIDPatchClass: "PatchClass", CIDFunction: "Function",
	CIDClosureData: "ClosureData", CIDField: "Field", CIDScript: "Script",
	CIDLibrary: "Library", CIDNamespace: "Namespace",
	CIDKernelProgramInfo: "KernelProgramInfo", CIDWeakArray: "WeakArray",
	CIDCode: "Code", CIDObjectPool: "ObjectPool",
	CIDPcDescriptors: "PcDescriptors", CIDCodeSourceMap: "CodeSourceMap",
	CIDCompressedStackMaps: "CompressedStackMaps",
	CIDExceptionHandlers:   "ExceptionHandlers", CIDContext: "Context",
	CIDContextScope: "ContextScope", CIDUnlinkedCall: "UnlinkedCall",
	CIDICData: "ICData", CIDMegamorphicCache: "MegamorphicCache",
	CIDSubtypeTestCache: "SubtypeTestCache",
	CIDUnhandledException: "UnhandledException", CIDInstance: "Instance",
	CIDLibraryPrefix: "LibraryPrefix", CIDTypeArguments: "TypeArguments",
	CIDType: "Type", CIDFunctionType: "FunctionType",
	CIDTypeParameter: "TypeParameter", CIDClosure: "Closure",
	CIDMint: "Mint", CIDDouble: "Double", CIDRecord: "Record",
	CIDTypedData: "TypedData", CIDExternalTypedData: "ExternalTypedData",
	CIDTypedDataView: "TypedDataView", CIDStackTrace: "StackTrace",
	CIDRegExp: "RegExp", CIDWeakProperty: "WeakProperty",
	CIDGrowableObjectArray: "GrowableObjectArray", CIDArray: "Array",
	CIDImmutableArray: "ImmutableArray", CIDString: "String",
	CIDOneByteString: "OneByteString", CIDTwoByteString: "TwoByteString",
}

// CIDName returns a human-readable name for a predefined cid, or "" if cid
// is not one of the predefined kinds (a user class; the caller should use
// the linked Class name instead).
func CIDName(cid int64) string {
	return cidNames[cid]
}

// TagStyle selects how an object header's tag word is decoded. Newer
// snapshots pack {cid, canonical, immutable} into one word; the driver
// selects a style from the snapshot's version/features.
type TagStyle int

const (
	TagStyleObjectHeader TagStyle = iota // {cid: bits 12-31, canonical: bit 1, immutable: bit 6}
	TagStyleCidShift1                    // (cid << 1) | canonical
)

// DecodeTags extracts cid/canonical/immutable from a TagStyleObjectHeader
// word.
func DecodeTags(tags uint32) (cid int64, isCanonical, isImmutable bool) {
	const (
		canonicalBit = 1
		immutableBit = 6
		cidShift     = 12
		cidMask      = (1 << 20) - 1
	)
	cid = int64((tags >> cidShift) & cidMask)
	isCanonical = (tags>>canonicalBit)&1 != 0
	isImmutable = (tags>>immutableBit)&1 != 0
	return
}

// DecodeTagsCidShift1 extracts cid/canonical from a TagStyleCidShift1 word:
// (cid << 1) | canonical.
func DecodeTagsCidShift1(word int64) (cid int64, isCanonical bool) {
	return word >> 1, word&1 != 0
}
