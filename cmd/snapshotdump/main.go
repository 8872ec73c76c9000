// Command snapshotdump parses a Dart AOT/JIT clustered snapshot out of a
// libapp.so and reports on it: structural info, disassembled code ranges,
// or an exported reference graph. It is the single CLI wrapper that ties
// internal/elfx, internal/imagefmt, internal/snapshot, internal/linker,
// internal/codeinspect and internal/graphexport together — itself outside
// CORE scope (spec §1 excludes CLI/argument parsing from the deserializer).
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "parse":
		err = cmdParse(os.Args[2:])
	case "disasm":
		err = cmdDisasm(os.Args[2:])
	case "graph":
		err = cmdGraph(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `snapshotdump — Dart clustered snapshot parser

Usage:
  snapshotdump parse   --lib <path> [--vm] [--strict] [--json]   Parse and summarize a snapshot
  snapshotdump disasm  --lib <path> [--vm]                       Disassemble every resolved code range
  snapshotdump graph   --lib <path> [--vm] [--out <file.dot>]    Export the reference graph

Flags:
  --lib <path>   Path to libapp.so
  --vm           Parse the VM snapshot instead of the isolate snapshot
  --strict       Fail on first structural inconsistency instead of recording a diagnostic
  --json         Emit machine-readable JSON instead of text
  --out <path>   Write output to a file instead of stdout
`)
}
