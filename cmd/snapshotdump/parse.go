package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"unflutter/internal/dartfmt"
	"unflutter/internal/elfx"
	"unflutter/internal/snapshot"
)

func cmdParse(args []string) error {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	lib := fs.String("lib", "", "path to libapp.so")
	vm := fs.Bool("vm", false, "parse the VM snapshot instead of the isolate snapshot")
	strict := fs.Bool("strict", false, "fail on first structural inconsistency")
	jsonOut := fs.Bool("json", false, "emit JSON summary")
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
		Strict:              *strict,
		InstructionsOffset:  blobs.instructionsOffset,
		ParseRODataContents: true,
		ParseCodeSourceMap:  true,
		BuildTables:         true,
		PrintLevel:          dartfmt.PrintWarn,
	})
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	log := logrus.New()
	logDiags(log, res.Diags, dartfmt.PrintWarn)

	if *jsonOut {
		summary := struct {
			ParseID     string `json:"parse_id"`
			Arch        string `json:"arch"`
			Kind        string `json:"kind"`
			NumObjects  int    `json:"num_objects"`
			NumClusters int    `json:"num_clusters"`
			NumDiags    int    `json:"num_diagnostics"`
		}{
			ParseID:     res.ParseID,
			Arch:        res.Arch,
			Kind:        res.Header.Kind.String(),
			NumObjects:  res.Table.Len(),
			NumClusters: len(res.Clusters),
			NumDiags:    res.Diags.Len(),
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Printf("ParseID:      %s\n", res.ParseID)
	fmt.Printf("Arch:         %s\n", res.Arch)
	fmt.Printf("Total size:   %d bytes\n", res.Header.TotalSize())
	fmt.Printf("Base objects: %d\n", res.Header.NumBaseObjects)
	fmt.Printf("Objects:      %d\n", res.Header.NumObjects)
	fmt.Printf("Clusters:     %d\n", len(res.Clusters))
	fmt.Printf("Table length: %d\n", res.Table.Len())
	fmt.Printf("Code ranges:  %d\n", len(res.Linker.CodeRanges()))
	fmt.Printf("Diagnostics:  %d\n", res.Diags.Len())
	return nil
}
