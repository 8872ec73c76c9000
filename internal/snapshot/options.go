package snapshot

import (
	"io"

	"github.com/google/uuid"

	"unflutter/internal/dartfmt"
)

// Options is the caller-supplied configuration surface (§6). Result.ParseID
// is a per-call correlation id generated fresh for every Parse call by
// newParseID; it is not attached to individual Diag entries. google/uuid
// is a named-not-grounded ecosystem dependency (no example repo in this
// pack imports a UUID library); picked over a hand-rolled id scheme per the
// instruction to never fall back to the standard library for something the
// wider Go ecosystem has a standard answer for.
type Options struct {
	// VM selects VM-snapshot parsing (reads symbol_table + stub refs) vs
	// isolate parsing (full ObjectStore field list) at the root (§4.5 step 10).
	VM bool

	// Base is a previously parsed VM snapshot whose refs seed this one
	// (§4.5 step 6, §5). Nil means base objects are synthesized.
	Base *Result

	DataOffset         int64
	InstructionsOffset int64

	// Strict: true makes inconsistencies fatal; false records a Diag and
	// continues with a best-effort placeholder (§7).
	Strict bool

	ParseRODataContents bool // if true, Code objects also carry their instructions bytes; rodata strings and descriptors are not parsed either way
	ParseCodeSourceMap  bool // not read by Parse; code-source-map objects are not decoded
	BuildTables         bool // if false, skip §4.6 index construction

	PrintLevel dartfmt.PrintLevel
	Sink       io.Writer

	// ExpectedVersion, if set, is compared against the header's 32-byte
	// version field (§4.5 step 2). Left to the caller since it is tied to a
	// specific Dart SDK build, not something this driver hardcodes.
	ExpectedVersion string
}

// newParseID generates Result.ParseID, once per Parse call.
func newParseID() string {
	return uuid.NewString()
}
