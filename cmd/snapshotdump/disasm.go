package main

import (
	"flag"
	"fmt"

	"github.com/sirupsen/logrus"

	"unflutter/internal/codeinspect"
	"unflutter/internal/dartfmt"
	"unflutter/internal/elfx"
	"unflutter/internal/linker"
	"unflutter/internal/snapshot"
)

func cmdDisasm(args []string) error {
	fs := flag.NewFlagSet("disasm", flag.ExitOnError)
	lib := fs.String("lib", "", "path to libapp.so")
	vm := fs.Bool("vm", false, "parse the VM snapshot instead of the isolate snapshot")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *lib == "" {
		return fmt.Errorf("--lib is required")
	}

	ef, err := elfx.Open(*lib)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer ef.Close()

	blobs, err := loadBlobs(ef, *vm)
	if err != nil {
		return fmt.Errorf("locate snapshot: %w", err)
	}

	res, err := snapshot.Parse(blobs.data, blobs.instructions, snapshot.Options{
		VM:                  *vm,
		InstructionsOffset:  blobs.instructionsOffset,
		ParseRODataContents: true,
		BuildTables:         true,
	})
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	log := logrus.New()
	logDiags(log, res.Diags, dartfmt.PrintWarn)

	entryNames := buildEntryLookup(res)
	lookup := codeinspect.SymbolLookup(func(addr uint64) (string, bool) {
		name, ok := entryNames[addr]
		return name, ok
	})

	for _, cr := range res.Linker.CodeRanges() {
		code := instructionsCode(cr)
		if code == nil {
			continue
		}
		insts, err := codeinspect.Disassemble(cr, code, codeinspect.Options{})
		if err != nil {
			log.WithField("code_ref", cr.Code.ID).Warn(err)
			continue
		}
		fmt.Printf("; code#%d @ 0x%x (%d bytes)\n", cr.Code.ID, cr.DataAddr, cr.Size)
		fmt.Print(codeinspect.Format(insts, lookup))
	}
	return nil
}

// instructionsCode extracts the "instructions_code" bytes
// storeInstructionsDescriptor (snapshot/driver.go) recorded on a Code
// object's payload when ParseRODataContents is set.
func instructionsCode(cr linker.CodeRange) []byte {
	v, ok := cr.Code.Payload["instructions_code"]
	if !ok {
		return nil
	}
	return v.Bytes
}

// buildEntryLookup maps each code range's start address (DataAddr) back to
// a "code#<id>" label, for annotating disassembly output.
func buildEntryLookup(res *snapshot.Result) map[uint64]string {
	out := map[uint64]string{}
	for _, cr := range res.Linker.CodeRanges() {
		out[cr.DataAddr] = fmt.Sprintf("code#%d", cr.Code.ID)
	}
	return out
}
