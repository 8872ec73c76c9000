// Package codeinspect disassembles the resolved instructions of a parsed
// Code object. It is a satellite of the deserializer: it consumes a
// linker.CodeRange plus the already-resolved code bytes a Code object's
// payload carries (see snapshot/driver.go's storeInstructionsDescriptor),
// never the raw snapshot stream, and has no effect on parsing itself
// (spec §1 excludes disassembly from the CORE).
package codeinspect

import (
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"

	"unflutter/internal/linker"
)

// Inst is a decoded ARM64 instruction at a resolved virtual address.
type Inst struct {
	Addr     uint64
	Raw      uint32
	Mnemonic string
	Operands string
	Text     string
}

// SymbolLookup resolves an address to a symbolic name, e.g. from
// linker.EntryPoints or an ELF symbol table. Returns ("", false) if unknown.
type SymbolLookup func(addr uint64) (name string, ok bool)

const defaultMaxInstructions = 10_000_000

// Options controls disassembly of one CodeRange.
type Options struct {
	MaxInstructions int // 0 = defaultMaxInstructions
	Symbols         SymbolLookup
}

func (o Options) effectiveMax() int {
	if o.MaxInstructions > 0 {
		return o.MaxInstructions
	}
	return defaultMaxInstructions
}

// Disassemble decodes code, the already-resolved instructions bytes for
// the Code object backing cr (§4.4's instructions descriptor "Code" field),
// into individual ARM64 instructions. Each address is cr.DataAddr plus the
// instruction's byte offset in code, matching the virtual addresses linker.SearchAddress and
// linker.EntryPoints use.
func Disassemble(cr linker.CodeRange, code []byte, opts Options) ([]Inst, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("codeinspect: no resolved instructions bytes for code range at 0x%x", cr.DataAddr)
	}
	data := code

	maxInsts := opts.effectiveMax()
	n := len(data) / 4
	if n > maxInsts {
		n = maxInsts
	}

	out := make([]Inst, 0, n)
	for i := 0; i < n; i++ {
		off := i * 4
		if off+4 > len(data) {
			break
		}
		raw := uint32(data[off]) | uint32(data[off+1])<<8 | uint32(data[off+2])<<16 | uint32(data[off+3])<<24
		addr := cr.DataAddr + uint64(off)

		decoded, err := arm64asm.Decode(data[off : off+4])
		var mnemonic, operands, text string
		if err != nil {
			mnemonic = ".word"
			operands = fmt.Sprintf("0x%08x", raw)
			text = fmt.Sprintf(".word 0x%08x", raw)
		} else {
			text = decoded.String()
			parts := strings.SplitN(text, " ", 2)
			mnemonic = parts[0]
			if len(parts) > 1 {
				operands = parts[1]
			}
		}

		out = append(out, Inst{Addr: addr, Raw: raw, Mnemonic: mnemonic, Operands: operands, Text: text})
	}
	return out, nil
}

// Format renders decoded instructions as stable, greppable text: one line
// per instruction, address then raw bytes then disassembly then an optional
// symbol comment.
func Format(insts []Inst, lookup SymbolLookup) string {
	var b strings.Builder
	for _, inst := range insts {
		fmt.Fprintf(&b, "0x%08x  ", inst.Addr)
		fmt.Fprintf(&b, "%02x %02x %02x %02x  ",
			byte(inst.Raw), byte(inst.Raw>>8), byte(inst.Raw>>16), byte(inst.Raw>>24))
		b.WriteString(inst.Text)
		if lookup != nil {
			if name, ok := lookup(inst.Addr); ok {
				fmt.Fprintf(&b, "  ; <%s>", name)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
