package cluster

// Kind mirrors the snapshot's kind field (header offset 12): an index into
// {Full, FullCore, FullJIT, FullAOT, None, Invalid}.
type Kind int64

const (
	KindFull Kind = iota
	KindFullCore
	KindFullJIT
	KindFullAOT
	KindNone
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindFull:
		return "Full"
	case KindFullCore:
		return "FullCore"
	case KindFullJIT:
		return "FullJIT"
	case KindFullAOT:
		return "FullAOT"
	case KindNone:
		return "None"
	default:
		return "Invalid"
	}
}

// Flags carries the settings the snapshot driver derives in §4.5 step 4 and
// that every handler's alloc/fill conditions on. cluster deliberately does
// not import internal/snapshot (the driver imports cluster, not the other
// way around); Flags is this package's own copy of the subset handlers need.
type Flags struct {
	Kind Kind

	Is64             bool
	IsProduct        bool
	IsDebug          bool
	IsPrecompiled    bool // kind == FullAOT && is_product
	IncludesCode     bool // kind in {FullJIT, FullAOT}
	IncludesBytecode bool // kind in {Full, FullJIT}

	// UnsignedRefEncoding selects Stream.ReadRef's encoding: true uses the
	// base-128 ReadUnsigned form (snapshot producers <= Dart 2.17), false the
	// compact big-endian ReadRefId form (>= 2.18).
	UnsignedRefEncoding bool

	// Strict mirrors snapshot.Options.Strict: a broken reference is fatal
	// when true, a diagnostic plus sentinel placeholder otherwise.
	Strict bool
}

// DeriveFlags fills in the kind-dependent booleans that §4.5 step 4 computes
// from kind and is_product; callers set Is64/IsProduct/IsDebug/
// UnsignedRefEncoding themselves from the parsed header/features.
func DeriveFlags(kind Kind, is64, isProduct, isDebug, unsignedRefEncoding bool) Flags {
	f := Flags{
		Kind:                kind,
		Is64:                is64,
		IsProduct:           isProduct,
		IsDebug:             isDebug,
		UnsignedRefEncoding: unsignedRefEncoding,
	}
	f.IncludesCode = kind == KindFullJIT || kind == KindFullAOT
	f.IncludesBytecode = kind == KindFull || kind == KindFullJIT
	f.IsPrecompiled = kind == KindFullAOT && isProduct
	return f
}
