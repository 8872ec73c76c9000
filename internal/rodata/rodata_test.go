package rodata

import (
	"encoding/binary"
	"testing"

	"unflutter/internal/cluster"
	"unflutter/internal/dartfmt"
)

func tagWord(cid int64, canonical, immutable bool) uint32 {
	var tags uint32
	tags |= uint32(cid) << 12
	if canonical {
		tags |= 1 << 1
	}
	if immutable {
		tags |= 1 << 6
	}
	return tags
}

func TestParseStringAt64BitOneByte(t *testing.T) {
	value := "abc"
	header := make([]byte, 16)
	binary.LittleEndian.PutUint32(header[0:4], tagWord(cluster.CIDOneByteString, true, true))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(value)))
	binary.LittleEndian.PutUint32(header[12:16], 0xdeadbeef)
	data := append(header, []byte(value)...)

	r := &Region{Data: data}
	ps, err := ParseStringAt(r, 0, true, false, cluster.TagStyleObjectHeader)
	if err != nil {
		t.Fatalf("ParseStringAt: %v", err)
	}
	if ps.Value != value {
		t.Errorf("Value = %q, want %q", ps.Value, value)
	}
	if ps.CID != cluster.CIDOneByteString {
		t.Errorf("CID = %d, want %d", ps.CID, cluster.CIDOneByteString)
	}
	if !ps.IsCanonical || !ps.IsImmutable {
		t.Errorf("IsCanonical/IsImmutable = %v/%v, want true/true", ps.IsCanonical, ps.IsImmutable)
	}
}

func TestParseStringAt32BitTwoByte(t *testing.T) {
	units := []uint16{'h', 'i'}
	header := make([]byte, 12)
	binary.LittleEndian.PutUint32(header[0:4], tagWord(cluster.CIDTwoByteString, false, false))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(units)))
	binary.LittleEndian.PutUint32(header[8:12], 0)
	body := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(body[i*2:], u)
	}
	data := append(header, body...)

	r := &Region{Data: data}
	ps, err := ParseStringAt(r, 0, false, true, cluster.TagStyleObjectHeader)
	if err != nil {
		t.Fatalf("ParseStringAt: %v", err)
	}
	if ps.Value != "hi" {
		t.Errorf("Value = %q, want %q", ps.Value, "hi")
	}
}

func TestParseStringAtTruncatedBody(t *testing.T) {
	header := make([]byte, 16)
	binary.LittleEndian.PutUint32(header[8:12], 100) // claims 100 bytes, body has none
	r := &Region{Data: header}
	if _, err := ParseStringAt(r, 0, true, false, cluster.TagStyleObjectHeader); err != dartfmt.ErrStreamEOF {
		t.Errorf("expected ErrStreamEOF for truncated body, got %v", err)
	}
}

func TestParseOpaqueAt(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	header := make([]byte, 16)
	binary.LittleEndian.PutUint32(header[0:4], tagWord(cluster.CIDPcDescriptors, false, false))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(payload)))
	data := append(header, payload...)

	r := &Region{Data: data}
	po, err := ParseOpaqueAt(r, 0, true)
	if err != nil {
		t.Fatalf("ParseOpaqueAt: %v", err)
	}
	if po.Length != int64(len(payload)) {
		t.Errorf("Length = %d, want %d", po.Length, len(payload))
	}
	if string(po.Payload) != string(payload) {
		t.Errorf("Payload = %v, want %v", po.Payload, payload)
	}
}

func TestObjectAlignmentLog2(t *testing.T) {
	if got := ObjectAlignmentLog2(false); got != 3 {
		t.Errorf("32-bit alignment log2 = %d, want 3", got)
	}
	if got := ObjectAlignmentLog2(true); got != 4 {
		t.Errorf("64-bit alignment log2 = %d, want 4", got)
	}
}

func TestReadInstructionsBasicHeader(t *testing.T) {
	const offset = 32
	blob := make([]byte, offset+16+8)
	binary.LittleEndian.PutUint32(blob[offset:], 0)     // tags
	binary.LittleEndian.PutUint32(blob[offset+4:], 8)   // size_and_flags: size=8, single_entry bit clear (no pad word on 32-bit)
	binary.LittleEndian.PutUint32(blob[offset+8:], 4)   // unchecked entrypoint offset
	copy(blob[offset+16:], []byte{0xde, 0xad, 0xbe, 0xef, 0, 0, 0, 0})

	s := dartfmt.NewStream(encodeInt32(offset))
	desc, err := ReadInstructions(s, blob, false, 0x100000, &dartfmt.Diags{})
	if err != nil {
		t.Fatalf("ReadInstructions: %v", err)
	}
	if desc.IsBaseRelative {
		t.Error("non-negative offset should not be base-relative")
	}
	if desc.Size != 8 {
		t.Errorf("Size = %d, want 8", desc.Size)
	}
	if desc.SingleEntry {
		t.Error("SingleEntry should be false when bit 31 is clear")
	}
	if len(desc.Code) != 8 {
		t.Errorf("Code length = %d, want 8", len(desc.Code))
	}
	wantAddr := uint64(0x100000 + offset + 16)
	if desc.DataAddr != wantAddr {
		t.Errorf("DataAddr = 0x%x, want 0x%x", desc.DataAddr, wantAddr)
	}
}

func TestReadInstructionsNegativeOffsetIsBaseRelative(t *testing.T) {
	s := dartfmt.NewStream(encodeInt32(-5))
	desc, err := ReadInstructions(s, nil, false, 0, &dartfmt.Diags{})
	if err != nil {
		t.Fatalf("ReadInstructions: %v", err)
	}
	if !desc.IsBaseRelative {
		t.Error("negative offset should be marked base-relative")
	}
}

func encodeInt32(v int32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}
