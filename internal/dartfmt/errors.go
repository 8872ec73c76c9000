package dartfmt

import (
	"errors"
	"fmt"
)

// Fatal error kinds. EndOfStream/InvalidEncoding come from Stream itself
// (ErrStreamEOF/ErrStreamOverrun in stream.go); these are the
// driver/handler-level kinds named in the error handling design.
var (
	ErrFormatMismatch       = errors.New("dartfmt: format mismatch")
	ErrUnimplementedHandler = errors.New("dartfmt: unimplemented handler")
)

// InconsistencyError reports a structural disagreement detected at parse
// time (alloc/fill count mismatch, bad section marker, duplicate class cid,
// broken reference, base snapshot header mismatch). In strict mode the
// driver returns this as a fatal error; in best-effort mode it is recorded
// as a Diag instead and parsing continues with a placeholder.
type InconsistencyError struct {
	Offset uint64
	Msg    string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("dartfmt: inconsistency at 0x%x: %s", e.Offset, e.Msg)
}

// NewInconsistency builds an InconsistencyError with a formatted message.
func NewInconsistency(offset uint64, format string, args ...any) *InconsistencyError {
	return &InconsistencyError{Offset: offset, Msg: fmt.Sprintf(format, args...)}
}
