// Package imagefmt parses the AppAOT "Image" wrapper that libapp.so embeds
// around each snapshot blob's instructions: an ImageHeader pointing at an
// InstructionsSection object, whose payload is the raw machine code
// internal/rodata.ReadInstructions expects as its instructions blob.
//
// This is a supplement to the core snapshot format (§4.5's Parse takes the
// unwrapped instructions blob directly): real AOT builds hand the driver an
// ELF section, not a bare instructions array, so cmd/snapshotdump unwraps
// it here first. Adapted from the teacher's internal/snapshot/image.go and
// probe.go, generalized to the module's own Magic/Region naming instead of
// the teacher's snapshot-specific helpers.
package imagefmt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic is the 4-byte little-endian magic at the start of a Dart snapshot
// data blob, as it appears byte-reversed inside an ELF section.
var Magic = [4]byte{0xf5, 0xf5, 0xdc, 0xdc}

// ProbeMagic scans data for Magic, returning the byte offset of the first
// occurrence or -1 if not found.
func ProbeMagic(data []byte) int {
	return bytes.Index(data, Magic[:])
}

// Header is the Image wrapper's own header (arm64/x64, 64-bit words):
// ImageSize (total size including header) then InstructionsSectionOffset
// (offset from the image start to the InstructionsSection object).
type Header struct {
	ImageSize                 uint64
	InstructionsSectionOffset uint64
}

const headerSize = 16 // 2 * 8 bytes

// ParseHeader reads an Image wrapper header from the start of data.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < headerSize {
		return nil, errors.New("imagefmt: data too short for header")
	}
	return &Header{
		ImageSize:                 binary.LittleEndian.Uint64(data[0:8]),
		InstructionsSectionOffset: binary.LittleEndian.Uint64(data[8:16]),
	}, nil
}

// InstructionsSection is the heap object the Image header points at: a
// fixed-field prologue, then the raw instructions payload.
type InstructionsSection struct {
	Tags                         uint64
	PayloadLength                uint64
	BSSOffset                    int64
	InstructionsRelocatedAddress uint64
	BuildIDOffset                int64
	PayloadOffset                uint64 // offset within the image data where the payload starts
}

const instructionsSectionFields = 40 // 5 * 8 bytes (tag + 4 fields)

// ParseInstructionsSection reads the InstructionsSection object starting at
// offset within data.
func ParseInstructionsSection(data []byte, offset uint64) (*InstructionsSection, error) {
	end := offset + instructionsSectionFields
	if uint64(len(data)) < end {
		return nil, fmt.Errorf("imagefmt: data too short for InstructionsSection at 0x%x", offset)
	}
	d := data[offset:]
	return &InstructionsSection{
		Tags:                         binary.LittleEndian.Uint64(d[0:8]),
		PayloadLength:                binary.LittleEndian.Uint64(d[8:16]),
		BSSOffset:                    int64(binary.LittleEndian.Uint64(d[16:24])),
		InstructionsRelocatedAddress: binary.LittleEndian.Uint64(d[24:32]),
		BuildIDOffset:                int64(binary.LittleEndian.Uint64(d[32:40])),
		PayloadOffset:                offset + instructionsSectionFields,
	}, nil
}

// UnwrapInstructions extracts the raw instructions payload from an Image
// wrapper, suitable for passing to rodata.ReadInstructions as the
// instructions blob.
func UnwrapInstructions(imageData []byte) ([]byte, error) {
	hdr, err := ParseHeader(imageData)
	if err != nil {
		return nil, err
	}
	sect, err := ParseInstructionsSection(imageData, hdr.InstructionsSectionOffset)
	if err != nil {
		return nil, err
	}
	start := sect.PayloadOffset
	end := start + sect.PayloadLength
	if end > uint64(len(imageData)) {
		end = uint64(len(imageData))
	}
	if start >= end {
		return nil, nil
	}
	return imageData[start:end], nil
}
