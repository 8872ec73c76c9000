package snapshot

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unflutter/internal/cluster"
)

// --- Dart variable-length integer encoders, mirroring dartfmt.Stream's
// ReadUnsigned/ReadTagged64 decoders so these tests can hand-build snapshot
// byte streams without depending on an encoder living in production code.

func putUnsigned(buf *bytes.Buffer, v int64) {
	if v < 128 {
		buf.WriteByte(byte(v) + 128)
		return
	}
	rem := v
	for {
		b := rem & 0x7f
		rem >>= 7
		if rem == 0 {
			buf.WriteByte(byte(b) + 128)
			return
		}
		buf.WriteByte(byte(b))
	}
}

// putTagged64 encodes a single signed value in [-64, 63] as one terminal
// byte (value+192), matching ReadTagged64's one-byte fast path.
func putTagged64(buf *bytes.Buffer, v int64) {
	buf.WriteByte(byte(v + 192))
}

func putUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func putInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func putCID(buf *bytes.Buffer, cid int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(cid))
	buf.Write(b[:])
}

// buildHeader writes everything through the four top-level counts and
// returns the buffer; the caller appends cluster/root bytes, then
// finalizeLength patches the length field once the total size is known.
func buildHeader(features string, numBase, numObjects, numClusters, codeOrderLength int64) *bytes.Buffer {
	buf := &bytes.Buffer{}
	putUint32(buf, Magic)
	putInt64(buf, 0) // length placeholder, patched by finalizeLength
	putInt64(buf, int64(cluster.KindFullCore))
	buf.Write(make([]byte, VersionLength))
	buf.WriteString(features)
	buf.WriteByte(0)
	putUnsigned(buf, numBase)
	putUnsigned(buf, numObjects)
	putUnsigned(buf, numClusters)
	putUnsigned(buf, codeOrderLength)
	return buf
}

// finalizeLength patches the length field (offset 4, 8 bytes) so
// Header.TotalSize() equals the buffer's actual length.
func finalizeLength(buf *bytes.Buffer) []byte {
	data := buf.Bytes()
	length := int64(len(data)) - 4
	binary.LittleEndian.PutUint64(data[4:12], uint64(length))
	return data
}

func TestParseEmptyIsolate(t *testing.T) {
	buf := buildHeader("x64", 0, 0, 0, 0)
	for i := 0; i < len(objectStoreRefFields); i++ {
		putUnsigned(buf, 0) // every root field resolves to the illegal id 0
	}
	data := finalizeLength(buf)

	res, err := Parse(data, nil, Options{BuildTables: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Table.Len(), "empty isolate should allocate only the root")
	require.NotNil(t, res.Root, "Root should always be allocated")
	assert.NotZero(t, res.Diags.Len(), "expected broken-ref diagnostics for root fields pointing at id 0")
}

func TestParseSingleMint(t *testing.T) {
	buf := buildHeader("x64", 0, 1, 1, 0)

	putCID(buf, cluster.CIDMint)
	putUnsigned(buf, 1) // one Mint in this cluster
	putTagged64(buf, 42)

	for i := 0; i < len(objectStoreRefFields); i++ {
		putUnsigned(buf, 1) // every root field points at the Mint
	}
	data := finalizeLength(buf)

	res, err := Parse(data, nil, Options{BuildTables: true})
	require.NoError(t, err)
	require.Equal(t, 2, res.Table.Len()) // the Mint plus the root

	mint, err := res.Table.Get(1)
	require.NoError(t, err)
	assert.EqualValues(t, 42, mint.Payload["value"].Int)
	assert.Len(t, res.Linker.RefsByCID("Mint"), 1)
	assert.EqualValues(t, 1, res.Root.Payload["root_library"].Ref)
}

// TestParseCircularArrays builds a Mint plus two Arrays that reference each
// other (A's single element is B, B's single element is A), exercising the
// two-pass alloc/fill split on a genuinely cyclic graph.
func TestParseCircularArrays(t *testing.T) {
	buf := buildHeader("x64", 0, 3, 2, 0)

	putCID(buf, cluster.CIDMint)
	putUnsigned(buf, 1)
	putTagged64(buf, 7)

	putCID(buf, cluster.CIDArray)
	putUnsigned(buf, 2) // two Array objects in this cluster
	putUnsigned(buf, 1) // length hint for object A (unused by Fill)
	putUnsigned(buf, 1) // length hint for object B

	// Fill for A (ref id 2): count=1, canonical=false, type_arguments->Mint(1), element->B(3)
	putUnsigned(buf, 1)
	buf.WriteByte(0)
	putUnsigned(buf, 1)
	putUnsigned(buf, 3)

	// Fill for B (ref id 3): count=1, canonical=false, type_arguments->Mint(1), element->A(2)
	putUnsigned(buf, 1)
	buf.WriteByte(0)
	putUnsigned(buf, 1)
	putUnsigned(buf, 2)

	for i := 0; i < len(objectStoreRefFields); i++ {
		putUnsigned(buf, 1)
	}
	data := finalizeLength(buf)

	res, err := Parse(data, nil, Options{BuildTables: true})
	require.NoError(t, err)

	a, err := res.Table.Get(2)
	require.NoError(t, err)
	b, err := res.Table.Get(3)
	require.NoError(t, err)

	aElems := a.Payload["elements"].List
	bElems := b.Payload["elements"].List
	require.Len(t, aElems, 1)
	require.Len(t, bElems, 1)
	assert.EqualValues(t, 3, aElems[0].Ref, "A's element should point at B")
	assert.EqualValues(t, 2, bElems[0].Ref, "B's element should point at A")
}

// TestParseStrictSectionMarkerViolation builds a debug-mode snapshot whose
// section marker after the one cluster is wrong, and checks that strict mode
// surfaces it as a fatal error rather than a diagnostic.
func TestParseStrictSectionMarkerViolation(t *testing.T) {
	buf := buildHeader("x64 debug", 0, 1, 1, 0)

	putCID(buf, cluster.CIDMint)
	putUnsigned(buf, 1)
	putTagged64(buf, 42)
	putUint32(buf, uint32(1+1)) // correct next-ref-index check (t.Len()+1)
	putUint32(buf, 0x1234)      // wrong section marker; should be kSectionMarker

	data := finalizeLength(buf)

	_, err := Parse(data, nil, Options{Strict: true})
	assert.Error(t, err, "expected a fatal error for a bad section marker in strict mode")
}

func TestParseNonStrictSectionMarkerViolationRecordsDiag(t *testing.T) {
	buf := buildHeader("x64 debug", 0, 1, 1, 0)

	putCID(buf, cluster.CIDMint)
	putUnsigned(buf, 1)
	putTagged64(buf, 42)
	putUint32(buf, uint32(1+1))
	putUint32(buf, 0x1234) // wrong marker

	// Root's own section marker, correct this time.
	for i := 0; i < len(objectStoreRefFields); i++ {
		putUnsigned(buf, 1)
	}
	putUint32(buf, kSectionMarker)

	data := finalizeLength(buf)

	res, err := Parse(data, nil, Options{Strict: false})
	require.NoError(t, err)
	assert.NotZero(t, res.Diags.Len(), "expected a diagnostic recording the bad section marker")
}

// objectStoreRefFields mirrors the fixed ObjectStore field schedule so these
// tests don't hardcode its length in two places.
var objectStoreRefFields = cluster.TypeTableFields("ObjectStore", cluster.Flags{})
