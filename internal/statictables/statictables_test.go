package statictables

import (
	"testing"

	"unflutter/internal/refs"
)

func TestSynthesizeBaseObjectsAllocatesExactlyN(t *testing.T) {
	for _, n := range []int64{0, 1, int64(len(fixedBaseEntries)), 500} {
		tbl := refs.NewTable()
		before := tbl.Len()
		c := SynthesizeBaseObjects(tbl, n, false)
		if int64(tbl.Len()-before) != n {
			t.Errorf("n=%d: table grew by %d, want %d", n, tbl.Len()-before, n)
		}
		if int64(len(c.Refs)) != n {
			t.Errorf("n=%d: cluster has %d refs, want %d", n, len(c.Refs), n)
		}
	}
}

func TestSynthesizeBaseObjectsFixedPrefixMatchesBaseObjectsPy(t *testing.T) {
	tbl := refs.NewTable()
	c := SynthesizeBaseObjects(tbl, int64(len(fixedBaseEntries)), true)
	for i, want := range fixedBaseEntries {
		obj := c.Refs[i]
		if obj.Payload["type"].Str != want.Type || obj.Payload["value"].Str != want.Value {
			t.Errorf("entry %d = (%s, %s), want (%s, %s)", i,
				obj.Payload["type"].Str, obj.Payload["value"].Str, want.Type, want.Value)
		}
	}
}

func TestSynthesizeBaseObjectsStubCodeOnlyWithoutIncludedCode(t *testing.T) {
	n := int64(len(fixedBaseEntries) + kCachedDescriptorCount + kCachedICDataArrayCount + 1 + len(StubCodeNames))

	withoutCode := refs.NewTable()
	c := SynthesizeBaseObjects(withoutCode, n, false)
	lastStub := c.Refs[len(c.Refs)-1]
	if lastStub.Payload["type"].Str != "Code" {
		t.Errorf("without includesCode, tail entries should be stub Code placeholders, got %s", lastStub.Payload["type"].Str)
	}

	withCode := refs.NewTable()
	c2 := SynthesizeBaseObjects(withCode, n, true)
	lastPadded := c2.Refs[len(c2.Refs)-1]
	if lastPadded.Payload["type"].Str == "Code" {
		t.Error("with includesCode, no stub-code entries should be synthesized")
	}
}

func TestLookupEntryOffsetsKnownArch(t *testing.T) {
	off, ok := LookupEntryOffsets("arm64", true)
	if !ok {
		t.Fatal("arm64 should be a recognized architecture")
	}
	if off.Mono != 8 || off.Poly != 28 {
		t.Errorf("arm64 AOT offsets = %+v, want {8 28}", off)
	}

	off, ok = LookupEntryOffsets("arm64", false)
	if !ok || off.Mono != 8 || off.Poly != 48 {
		t.Errorf("arm64 JIT offsets = %+v, want {8 48}", off)
	}
}

func TestLookupEntryOffsetsUnknownArch(t *testing.T) {
	if _, ok := LookupEntryOffsets("riscv64", true); ok {
		t.Error("unrecognized arch should return ok=false")
	}
}
