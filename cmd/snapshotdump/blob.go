package main

import (
	"fmt"

	"unflutter/internal/elfx"
	"unflutter/internal/imagefmt"
)

// Dart AOT snapshots are exported from libapp.so under these four fixed
// dynamic symbol names (internal/elfx/elfx_test.go looks up
// _kDartVmSnapshotData in its fixture).
const (
	symVMData              = "_kDartVmSnapshotData"
	symVMInstructions      = "_kDartVmSnapshotInstructions"
	symIsolateData         = "_kDartIsolateSnapshotData"
	symIsolateInstructions = "_kDartIsolateSnapshotInstructions"
	maxSnapshotRegionBytes = 512 << 20 // generous cap; real symbol sizes are usually exact
)

// snapshotBlobs is the (data, instructions) pair Parse needs, plus the file
// offset the instructions blob starts at (for ReadInstructions's
// instructionsOffset parameter).
type snapshotBlobs struct {
	data               []byte
	instructions       []byte
	instructionsOffset int64
}

// loadBlobs reads the VM or isolate snapshot pair out of an opened ELF,
// unwrapping the AppAOT Image wrapper around the instructions section via
// imagefmt when present.
func loadBlobs(ef *elfx.File, vm bool) (*snapshotBlobs, error) {
	dataSym, instrSym := symIsolateData, symIsolateInstructions
	if vm {
		dataSym, instrSym = symVMData, symVMInstructions
	}

	dataVA, dataSize, err := ef.Symbol(dataSym)
	if err != nil {
		return nil, fmt.Errorf("locate %s: %w", dataSym, err)
	}
	if dataSize == 0 || dataSize > maxSnapshotRegionBytes {
		dataSize = maxSnapshotRegionBytes
	}
	data, err := ef.ReadBytesAtVA(dataVA, int(dataSize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dataSym, err)
	}

	instrVA, instrSize, err := ef.Symbol(instrSym)
	if err != nil {
		// Snapshots that don't include code (kind != FullJIT/FullAOT) have
		// no instructions symbol at all; Parse tolerates a nil instructions
		// blob for that case.
		return &snapshotBlobs{data: data}, nil
	}
	if instrSize == 0 || instrSize > maxSnapshotRegionBytes {
		instrSize = maxSnapshotRegionBytes
	}
	raw, err := ef.ReadBytesAtVA(instrVA, int(instrSize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", instrSym, err)
	}

	instructionsOffset, err := ef.VAToFileOffset(instrVA)
	if err != nil {
		return nil, fmt.Errorf("locate file offset of %s: %w", instrSym, err)
	}

	unwrapped, err := imagefmt.UnwrapInstructions(raw)
	if err != nil {
		// Older/simplified builds may hand us the bare instructions blob
		// with no Image wrapper; fall back to the raw bytes.
		unwrapped = raw
	}

	return &snapshotBlobs{
		data:               data,
		instructions:       unwrapped,
		instructionsOffset: int64(instructionsOffset),
	}, nil
}
