// Package rodata implements the Read-Only Data Parser (§4.4): offset-addressed
// self-describing object headers in the snapshot's rodata region, and
// instructions descriptors read from the separate instructions blob.
package rodata

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"unflutter/internal/cluster"
	"unflutter/internal/dartfmt"
)

// Region is the rodata slice: the original data blob starting at the first
// kMaxPreferredCodeAlignment-aligned offset after the clustered section.
// Offsets recorded during cluster alloc are absolute from Region's start.
type Region struct {
	Data []byte
}

// ObjectAlignmentLog2 is kObjectAlignmentLog2 = log2(2*word_size), used to
// expand the RODataHandler alloc's offset-deltas (§4.3) into byte offsets.
func ObjectAlignmentLog2(is64 bool) uint {
	wordSize := 4
	if is64 {
		wordSize = 8
	}
	return uint(bits.Len(uint(2*wordSize))) - 1
}

// ParsedString is a decoded OneByteString/TwoByteString rodata object.
type ParsedString struct {
	CID         int64
	IsCanonical bool
	IsImmutable bool
	Hash        uint32
	Value       string
}

// ParsedOpaque is a decoded PcDescriptors/StackMap/CodeSourceMap/
// CompressedStackMaps rodata object: header plus an opaque payload.
type ParsedOpaque struct {
	CID     int64
	Length  int64
	Payload []byte
}

// ParseStringAt decodes a string object header at offset, per §4.3's
// RODataHandler row: 16-byte (64-bit) or 12-byte (32-bit) header
// (tags, [pad,] length/hash), then length bytes (OneByte) or length UTF-16LE
// code units (TwoByte).
func ParseStringAt(r *Region, offset int64, is64, twoByte bool, tagStyle cluster.TagStyle) (*ParsedString, error) {
	data := r.Data
	if offset < 0 || int(offset) >= len(data) {
		return nil, fmt.Errorf("rodata: offset %d out of range (region size %d)", offset, len(data))
	}
	d := data[offset:]

	var tags uint32
	var length, hash uint32
	var headerLen int
	if is64 {
		if len(d) < 16 {
			return nil, dartfmt.ErrFormatMismatch
		}
		tags = binary.LittleEndian.Uint32(d[0:4])
		// d[4:8] is padding.
		length = binary.LittleEndian.Uint32(d[8:12])
		hash = binary.LittleEndian.Uint32(d[12:16])
		headerLen = 16
	} else {
		if len(d) < 12 {
			return nil, dartfmt.ErrFormatMismatch
		}
		tags = binary.LittleEndian.Uint32(d[0:4])
		length = binary.LittleEndian.Uint32(d[4:8])
		hash = binary.LittleEndian.Uint32(d[8:12])
		headerLen = 12
	}

	var cid int64
	var canonical, immutable bool
	switch tagStyle {
	case cluster.TagStyleCidShift1:
		cid, canonical = cluster.DecodeTagsCidShift1(int64(tags))
	default:
		cid, canonical, immutable = cluster.DecodeTags(tags)
	}

	body := d[headerLen:]
	out := &ParsedString{CID: cid, IsCanonical: canonical, IsImmutable: immutable, Hash: hash}
	if !twoByte {
		if int(length) > len(body) {
			return nil, dartfmt.ErrStreamEOF
		}
		out.Value = string(body[:length])
		return out, nil
	}
	need := int(length) * 2
	if need > len(body) {
		return nil, dartfmt.ErrStreamEOF
	}
	units := make([]uint16, length)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(body[i*2:])
	}
	out.Value = string(utf16Decode(units))
	return out, nil
}

func utf16Decode(units []uint16) []rune {
	out := make([]rune, 0, len(units))
	for i := 0; i < len(units); i++ {
		u := units[i]
		if u >= 0xd800 && u <= 0xdbff && i+1 < len(units) {
			lo := units[i+1]
			if lo >= 0xdc00 && lo <= 0xdfff {
				out = append(out, (rune(u)-0xd800)<<10+(rune(lo)-0xdc00)+0x10000)
				i++
				continue
			}
		}
		out = append(out, rune(u))
	}
	return out
}

// ParseOpaqueAt decodes a PcDescriptors/StackMap/CodeSourceMap/
// CompressedStackMaps object: 16- or 8-byte header, then length bytes of
// opaque payload (§4.3's last row).
func ParseOpaqueAt(r *Region, offset int64, is64 bool) (*ParsedOpaque, error) {
	data := r.Data
	if offset < 0 || int(offset) >= len(data) {
		return nil, fmt.Errorf("rodata: offset %d out of range (region size %d)", offset, len(data))
	}
	d := data[offset:]
	headerLen := 8
	if is64 {
		headerLen = 16
	}
	if len(d) < headerLen {
		return nil, dartfmt.ErrFormatMismatch
	}
	tags := binary.LittleEndian.Uint32(d[0:4])
	cid, _, _ := cluster.DecodeTags(tags)
	length := int64(binary.LittleEndian.Uint32(d[headerLen-4 : headerLen]))
	body := d[headerLen:]
	if length > int64(len(body)) {
		return nil, dartfmt.ErrStreamEOF
	}
	return &ParsedOpaque{CID: cid, Length: length, Payload: body[:length]}, nil
}

// InstructionsDescriptor is the result of §4.4's instructions read.
type InstructionsDescriptor struct {
	Offset                  int32
	IsBaseRelative          bool // true when Offset < 0: "refers to base instructions", out of scope
	Tags                    uint32
	SizeAndFlags            uint32
	UncheckedEntrypointOff  uint32
	Size                    uint32
	SingleEntry             bool
	Code                    []byte
	DataAddr                uint64 // absolute address = instructions_offset + header-relative offset
}

// ReadInstructions implements §4.4's instructions-descriptor read: a signed
// 32-bit offset into the instructions blob, a fixed header, then size bytes
// of machine code.
func ReadInstructions(s *dartfmt.Stream, instructions []byte, is64 bool, instructionsOffset int64, diags *dartfmt.Diags) (*InstructionsDescriptor, error) {
	off, err := s.ReadInt(32)
	if err != nil {
		return nil, err
	}
	desc := &InstructionsDescriptor{Offset: int32(off)}
	if off < 0 {
		desc.IsBaseRelative = true
		diags.Addf(uint64(s.Position()), dartfmt.DiagInvalid, "base-relative instructions offset %d out of scope", off)
		return desc, nil
	}

	if int(off) >= len(instructions) {
		diags.Addf(uint64(s.Position()), dartfmt.DiagTruncated, "instructions offset %d beyond blob (len %d)", off, len(instructions))
		return desc, nil
	}
	d := instructions[off:]
	if len(d) < 16 {
		return nil, dartfmt.ErrStreamEOF
	}
	desc.Tags = binary.LittleEndian.Uint32(d[0:4])
	headerLen := 16
	if is64 {
		headerLen = 16 + 16 // skip 16 bytes of sentinel
		desc.SizeAndFlags = binary.LittleEndian.Uint32(d[8:12])
		desc.UncheckedEntrypointOff = binary.LittleEndian.Uint32(d[12:16])
	} else {
		// No pad word on 32-bit: size_and_flags is word 1, unchecked is word 2.
		desc.SizeAndFlags = binary.LittleEndian.Uint32(d[4:8])
		desc.UncheckedEntrypointOff = binary.LittleEndian.Uint32(d[8:12])
	}
	desc.Size = desc.SizeAndFlags & 0x7FFFFFFF
	desc.SingleEntry = desc.SizeAndFlags>>31 != 0

	if headerLen+int(desc.Size) > len(d) {
		diags.Addf(uint64(off), dartfmt.DiagTruncated, "instructions size %d exceeds blob", desc.Size)
		desc.Code = d[headerLen:]
	} else {
		desc.Code = d[headerLen : headerLen+int(desc.Size)]
	}
	desc.DataAddr = uint64(instructionsOffset) + uint64(off) + uint64(headerLen)
	return desc, nil
}
