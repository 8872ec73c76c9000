package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"unflutter/internal/dartfmt"
	"unflutter/internal/elfx"
	"unflutter/internal/graphexport"
	"unflutter/internal/snapshot"
)

func cmdGraph(args []string) error {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	lib := fs.String("lib", "", "path to libapp.so")
	vm := fs.Bool("vm", false, "parse the VM snapshot instead of the isolate snapshot")
	out := fs.String("out", "", "write DOT output to this file instead of stdout")
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
		VM:                 *vm,
		InstructionsOffset: blobs.instructionsOffset,
		BuildTables:        true,
	})
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	log := logrus.New()
	logDiags(log, res.Diags, dartfmt.PrintWarn)

	g := graphexport.Build(res.Linker, graphexport.Kinds)

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return fmt.Errorf("create %s: %w", *out, err)
		}
		defer f.Close()
		w = f
	}

	fmt.Fprintln(w, "digraph snapshot {")
	for _, n := range g.Nodes {
		fmt.Fprintf(w, "  %q;\n", n)
	}
	for _, e := range g.Edges {
		fmt.Fprintf(w, "  %q -> %q;\n", e.Caller, e.Callee)
	}
	fmt.Fprintln(w, "}")
	return nil
}
